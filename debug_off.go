//go:build !debug

package pgpool

type debugState struct{}

func newDebugState(string) *debugState { return nil }

func (d *debugState) recordAcquire(*leaseState) {}

func (d *debugState) recordRelease(*leaseState) {}

func (d *debugState) activeStacks() []string { return nil }
