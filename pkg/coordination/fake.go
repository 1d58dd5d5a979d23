package coordination

import (
	"context"
	"sync/atomic"
)

// FakeElection is an in-memory double for tests whose leadership is whatever
// the test sets: TryAcquire reports that flag and Renew fails while it is false.
type FakeElection struct {
	leader atomic.Bool
}

func NewFakeElection(leader bool) *FakeElection {
	f := &FakeElection{}
	f.leader.Store(leader)
	return f
}

func (f *FakeElection) TryAcquire(ctx context.Context, ttl int) (bool, error) {
	return f.leader.Load(), nil
}

func (f *FakeElection) Renew(ctx context.Context) error {
	if !f.leader.Load() {
		return context.Canceled
	}
	return nil
}

func (f *FakeElection) Release(ctx context.Context) error {
	f.leader.Store(false)
	return nil
}

func (f *FakeElection) IsLeader() bool { return f.leader.Load() }

// SetLeader lets tests flip leadership mid-scenario.
func (f *FakeElection) SetLeader(v bool) { f.leader.Store(v) }
