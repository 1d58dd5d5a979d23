package containerapp

import (
	"context"
	"sync"

	"acaqueue/pkg/models"
)

// FakeDriver is an in-memory double for tests, idempotent like the real
// driver: Start(N) repeated is equivalent to Start(N) once.
type FakeDriver struct {
	mu    sync.Mutex
	repl  map[string]int
	fail  map[string]error
	Calls []string
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{repl: make(map[string]int), fail: make(map[string]error)}
}

func key(resourceGroup, app string) string { return resourceGroup + "/" + app }

// SetReplicas seeds the current state for an app, as if returned by a prior
// GetStatus call.
func (f *FakeDriver) SetReplicas(resourceGroup, app string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repl[key(resourceGroup, app)] = n
}

// FailNext causes the next Start, Stop or Restart call for this app to
// return err instead of succeeding. GetStatus is not affected.
func (f *FakeDriver) FailNext(resourceGroup, app string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[key(resourceGroup, app)] = err
}

func (f *FakeDriver) consumeFailure(k string) error {
	err := f.fail[k]
	if err != nil {
		delete(f.fail, k)
	}
	return err
}

func (f *FakeDriver) Start(ctx context.Context, resourceGroup, app string, replicas int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(resourceGroup, app)
	f.Calls = append(f.Calls, "Start:"+k)
	if err := f.consumeFailure(k); err != nil {
		return err
	}
	f.repl[k] = replicas
	return nil
}

func (f *FakeDriver) Stop(ctx context.Context, resourceGroup, app string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(resourceGroup, app)
	f.Calls = append(f.Calls, "Stop:"+k)
	if err := f.consumeFailure(k); err != nil {
		return err
	}
	f.repl[k] = 0
	return nil
}

func (f *FakeDriver) Restart(ctx context.Context, resourceGroup, app string, replicas int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(resourceGroup, app)
	f.Calls = append(f.Calls, "Restart:"+k)
	if err := f.consumeFailure(k); err != nil {
		return err
	}
	f.repl[k] = replicas
	return nil
}

func (f *FakeDriver) GetStatus(ctx context.Context, resourceGroup, app string) (models.CurrentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.CurrentStatus{MinReplicas: f.repl[key(resourceGroup, app)]}, nil
}
