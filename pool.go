// Package pgpool implements a bounded pool of pre-established database
// connections shared across goroutines. The pool is filled eagerly at
// construction time, hands connections out through shared-ownership leases,
// and destroys every idle connection on shutdown.
package pgpool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is the opaque resource managed by a Pool. The pool constructs
// connections through a Factory and destroys them via Close; it never
// inspects them otherwise. *pgx.Conn satisfies this interface directly.
type Conn interface {
	Close(ctx context.Context) error
}

// Factory constructs a new connection. It is invoked capacity times during
// pool construction; the pool never retries a failed call.
type Factory func(ctx context.Context) (Conn, error)

const (
	// DefaultCapacity is the pool size used when WithCapacity is not given.
	DefaultCapacity = 100

	defaultShutdownTimeout = 5 * time.Second
	connCloseTimeout       = 2 * time.Second
)

// ErrClosed is returned by Acquire once the pool is shutting down.
var ErrClosed = errors.New("pgpool: pool is shutting down")

type options struct {
	capacity int
}

// Option configures pool construction.
type Option func(*options) error

// WithCapacity fixes the number of connections held by the pool. Zero is
// accepted and yields a pool that can never satisfy Acquire.
func WithCapacity(capacity int) Option {
	return func(o *options) error {
		if capacity < 0 {
			return fmt.Errorf("pgpool: capacity must be >= 0, got %d", capacity)
		}
		o.capacity = capacity
		return nil
	}
}

// Pool owns a fixed set of connections and lends them out one lease at a
// time. The idle queue, the waiter list, and the shutdown flag are the only
// shared mutable state; all access is serialised through one mutex.
type Pool struct {
	name     string
	capacity int

	mu      sync.Mutex
	idle    []Conn      // FIFO reuse order, head at index 0
	waiters []chan Conn // each receives exactly one conn, or is closed on shutdown
	stopped bool

	closeOnce sync.Once
	inFlight  sync.WaitGroup
	leased    atomic.Int64

	debug *debugState
}

// New constructs a pool and synchronously fills it by invoking factory
// capacity times, in order. Construction is intentionally eager and blocking:
// it fails wholesale, closing any connections already built, if the factory
// fails for any slot. Callers should build the pool once, before serving
// traffic.
func New(ctx context.Context, name string, factory Factory, opts ...Option) (*Pool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(name) == "" {
		name = "primary"
	}
	if factory == nil {
		return nil, fmt.Errorf("pgpool %s: factory must be provided", name)
	}

	o := options{capacity: DefaultCapacity}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	p := new(Pool)
	p.name = name
	p.capacity = o.capacity
	p.idle = make([]Conn, 0, o.capacity)
	p.debug = newDebugState(name)

	for i := 0; i < o.capacity; i++ {
		conn, err := factory(ctx)
		if err != nil {
			for _, built := range p.idle {
				p.destroy(built)
			}
			return nil, fmt.Errorf("pgpool %s: fill connection %d/%d: %w", name, i+1, o.capacity, err)
		}
		if conn == nil {
			for _, built := range p.idle {
				p.destroy(built)
			}
			return nil, fmt.Errorf("pgpool %s: factory returned nil connection", name)
		}
		p.idle = append(p.idle, conn)
	}

	return p, nil
}

// Name reports the pool's identifying name.
func (p *Pool) Name() string { return p.name }

// Capacity reports the fixed number of connections owned by the pool.
func (p *Pool) Capacity() int { return p.capacity }

// Acquire blocks until an idle connection is available and returns it wrapped
// in a fresh Lease. It fails with ErrClosed once the pool is shutting down,
// or with the wrapped context error when ctx is cancelled or its deadline
// elapses while waiting. When ctx is nil, a background context is used.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if len(p.idle) > 0 {
		conn := p.idle[0]
		p.idle = p.idle[1:]
		p.inFlight.Add(1)
		p.leased.Add(1)
		p.mu.Unlock()
		return p.newLease(conn), nil
	}
	w := make(chan Conn, 1)
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	select {
	case conn, ok := <-w:
		if !ok {
			return nil, ErrClosed
		}
		return p.newLease(conn), nil
	case <-ctx.Done():
		p.mu.Lock()
		removed := p.removeWaiter(w)
		p.mu.Unlock()
		if !removed {
			// A handoff or shutdown close won the race. Handoffs complete
			// under the pool lock, so a non-blocking drain observes the conn
			// if one was delivered; recycle it rather than strand it.
			select {
			case conn, ok := <-w:
				if ok {
					p.put(conn)
				}
			default:
			}
		}
		return nil, fmt.Errorf("pgpool %s: acquire: %w", p.name, ctx.Err())
	}
}

// removeWaiter deletes w from the wait set, reporting whether it was still
// registered. Callers must hold p.mu.
func (p *Pool) removeWaiter(w chan Conn) bool {
	for i, candidate := range p.waiters {
		if candidate == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// put re-inserts a connection whose lease ownership has fully ended. A
// blocked waiter, when present, receives the conn directly; otherwise it
// joins the idle tail. Once shutdown has begun the conn is destroyed instead.
func (p *Pool) put(conn Conn) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.destroy(conn)
		p.leased.Add(-1)
		p.inFlight.Done()
		return
	}
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		// Buffered handoff under the lock; the in-flight accounting transfers
		// to the receiving acquirer unchanged.
		w <- conn
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, conn)
	p.leased.Add(-1)
	p.mu.Unlock()
	p.inFlight.Done()
}

func (p *Pool) destroy(conn Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), connCloseTimeout)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		log.Printf("pgpool %s: close connection: %v", p.name, err)
	}
}

// Close irreversibly marks the pool as shutting down, fails every blocked
// waiter with ErrClosed, and destroys all idle connections. Connections
// released after Close are destroyed on release. Close never blocks on
// outstanding leases; use Shutdown to wait for them.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		waiters := p.waiters
		p.waiters = nil
		idle := p.idle
		p.idle = nil
		p.mu.Unlock()

		for _, w := range waiters {
			close(w)
		}
		for _, conn := range idle {
			p.destroy(conn)
		}
	})
}

// Shutdown closes the pool and waits for all outstanding leases to be
// released, or cancels after the provided context (defaulting to 5 seconds).
// Connections still leased at the deadline are logged with acquisition
// stacks when available.
func (p *Pool) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
	}
	if cancel != nil {
		defer cancel()
	}

	p.Close()

	done := make(chan struct{})
	go func() {
		p.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		remaining := p.leased.Load()
		p.logOutstanding(remaining)
		return fmt.Errorf("pgpool %s: shutdown timeout: %d connections unreturned", p.name, remaining)
	}
}

func (p *Pool) logOutstanding(remaining int64) {
	if remaining <= 0 {
		return
	}
	log.Printf("pgpool %s: shutdown timed out with %d connections leased", p.name, remaining)
	for _, stack := range p.debug.activeStacks() {
		log.Printf("pgpool %s: leak candidate\n%s", p.name, stack)
	}
}

// Stat reports a point-in-time snapshot of pool occupancy. Idle and leased
// counts are sampled independently and may be transiently inconsistent while
// a handoff is in flight.
type Stat struct {
	Capacity int `json:"capacity"`
	Idle     int `json:"idle"`
	Leased   int `json:"leased"`
}

// Stat returns the current occupancy snapshot.
func (p *Pool) Stat() Stat {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()
	return Stat{
		Capacity: p.capacity,
		Idle:     idle,
		Leased:   int(p.leased.Load()),
	}
}
