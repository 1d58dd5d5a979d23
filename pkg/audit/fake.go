package audit

import (
	"context"
	"sync"
)

// FakeTrail collects records in memory for tests.
type FakeTrail struct {
	mu      sync.Mutex
	Records []Record
}

func NewFakeTrail() *FakeTrail { return &FakeTrail{} }

func (f *FakeTrail) Record(ctx context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Records = append(f.Records, rec)
	return nil
}
