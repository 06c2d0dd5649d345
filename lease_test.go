package pgpool

import (
	"context"
	"testing"
)

func newLeasedPool(t *testing.T) (*Pool, *Lease, *fakeConn) {
	t.Helper()
	p, err := New(context.Background(), "test", func(context.Context) (Conn, error) {
		return &fakeConn{}, nil
	}, WithCapacity(1))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(p.Close)

	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	return p, lease, lease.Conn().(*fakeConn)
}

func TestLeaseFanOutSharing(t *testing.T) {
	p, lease, _ := newLeasedPool(t)

	second := lease.Share()
	third := second.Share()
	if lease.ID() != second.ID() || second.ID() != third.ID() {
		t.Error("expected all owners to share one lease identity")
	}

	second.Release()
	if stat := p.Stat(); stat.Idle != 0 {
		t.Errorf("conn returned with owners outstanding: %+v", stat)
	}
	lease.Release()
	if stat := p.Stat(); stat.Idle != 0 {
		t.Errorf("conn returned with owners outstanding: %+v", stat)
	}

	third.Release()
	if stat := p.Stat(); stat.Idle != 1 || stat.Leased != 0 {
		t.Errorf("expected conn back in idle after last owner released: %+v", stat)
	}
}

func TestLeaseReleaseIdempotentPerOwner(t *testing.T) {
	p, lease, _ := newLeasedPool(t)

	lease.Release()
	lease.Release()
	lease.Release()

	if stat := p.Stat(); stat.Idle != 1 {
		t.Errorf("repeated release must not duplicate the conn: %+v", stat)
	}
}

func TestLeaseConnPanicsAfterRelease(t *testing.T) {
	_, lease, _ := newLeasedPool(t)
	lease.Release()

	defer func() {
		if recover() == nil {
			t.Error("expected panic when using a released lease")
		}
	}()
	_ = lease.Conn()
}

func TestLeaseSharePanicsAfterRelease(t *testing.T) {
	_, lease, _ := newLeasedPool(t)
	lease.Release()

	defer func() {
		if recover() == nil {
			t.Error("expected panic when sharing a released lease")
		}
	}()
	_ = lease.Share()
}

func TestSharedLeaseSurvivesOriginalOwner(t *testing.T) {
	p, lease, conn := newLeasedPool(t)

	shared := lease.Share()
	lease.Release()

	// The surviving owner can still use the conn.
	if got := shared.Conn().(*fakeConn); got != conn {
		t.Error("shared owner must see the same conn")
	}

	shared.Release()
	if stat := p.Stat(); stat.Idle != 1 {
		t.Errorf("expected conn returned exactly once: %+v", stat)
	}
}
