//go:build debug

package pgpool

import (
	"runtime/debug"
	"sync"
)

type debugState struct {
	name   string
	mu     sync.Mutex
	stacks map[string]string
}

func newDebugState(name string) *debugState {
	return &debugState{
		name:   name,
		stacks: make(map[string]string),
	}
}

func (d *debugState) recordAcquire(st *leaseState) {
	if d == nil || st == nil {
		return
	}
	stack := string(debug.Stack())
	d.mu.Lock()
	d.stacks[st.id] = stack
	d.mu.Unlock()
}

func (d *debugState) recordRelease(st *leaseState) {
	if d == nil || st == nil {
		return
	}
	d.mu.Lock()
	delete(d.stacks, st.id)
	d.mu.Unlock()
}

func (d *debugState) activeStacks() []string {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.stacks) == 0 {
		return nil
	}
	out := make([]string, 0, len(d.stacks))
	for _, stack := range d.stacks {
		out = append(out, stack)
	}
	return out
}
