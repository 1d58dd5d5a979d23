package broker

import (
	"context"
	"sync"

	"acaqueue/pkg/models"
)

// FakeProber is an in-memory double for tests and local development.
type FakeProber struct {
	mu    sync.Mutex
	state map[string]models.QueueSnapshot
	errs  map[string]error
}

func NewFakeProber() *FakeProber {
	return &FakeProber{
		state: make(map[string]models.QueueSnapshot),
		errs:  make(map[string]error),
	}
}

func (f *FakeProber) Set(queueName string, pending int64, consumers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[queueName] = models.QueueSnapshot{QueueName: queueName, PendingMessages: pending, ActiveConsumers: consumers}
	delete(f.errs, queueName)
}

func (f *FakeProber) SetError(queueName string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[queueName] = err
}

func (f *FakeProber) Probe(ctx context.Context, queueName string) (models.QueueSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[queueName]; err != nil {
		return models.QueueSnapshot{QueueName: queueName, Unknown: true}, err
	}
	snap, ok := f.state[queueName]
	if !ok {
		return models.QueueSnapshot{QueueName: queueName}, nil
	}
	return snap, nil
}

func (f *FakeProber) Close() error { return nil }
