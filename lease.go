package pgpool

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Lease is the shared-ownership wrapper handed out by Acquire. Additional
// owners are created with Share; the underlying connection returns to the
// pool exactly once, when the last owner calls Release. Each owner's release
// latch is its own, so releasing the same owner twice cannot double-return
// the connection.
type Lease struct {
	state    *leaseState
	released atomic.Bool
}

type leaseState struct {
	pool *Pool
	conn Conn
	id   string
	refs atomic.Int64
}

func (p *Pool) newLease(conn Conn) *Lease {
	st := &leaseState{pool: p, conn: conn, id: uuid.NewString()}
	st.refs.Store(1)
	p.debug.recordAcquire(st)
	return &Lease{state: st}
}

// ID returns the lease's unique identifier, shared by all owners.
func (l *Lease) ID() string { return l.state.id }

// Conn returns the leased connection. It panics if this owner has already
// released its share; the connection must not be used once every owner has
// released.
func (l *Lease) Conn() Conn {
	if l.released.Load() {
		panic("pgpool: use of released lease " + l.state.id)
	}
	return l.state.conn
}

// Share registers an additional owner of the same lease and returns its
// handle. It panics when called on an already-released owner.
func (l *Lease) Share() *Lease {
	if l.released.Load() {
		panic("pgpool: share of released lease " + l.state.id)
	}
	l.state.refs.Add(1)
	return &Lease{state: l.state}
}

// Release relinquishes this owner's share. It is idempotent per owner. When
// the last owner releases, the connection re-enters the pool's idle queue
// (or is destroyed if the pool is shutting down).
func (l *Lease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	st := l.state
	if st.refs.Add(-1) > 0 {
		return
	}
	st.pool.debug.recordRelease(st)
	st.pool.put(st.conn)
}
