package store

import (
	"context"
	"sync"

	"acaqueue/pkg/models"
)

// FakeStore is an in-memory Store double for tests.
type FakeStore struct {
	mu     sync.Mutex
	states map[string]models.RuntimeState
}

func NewFakeStore() *FakeStore {
	return &FakeStore{states: make(map[string]models.RuntimeState)}
}

func (f *FakeStore) Load(ctx context.Context, containerApp string) (models.RuntimeState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[containerApp]; ok {
		return s, nil
	}
	return models.NewRuntimeState(containerApp), nil
}

func (f *FakeStore) Save(ctx context.Context, state models.RuntimeState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.ContainerApp] = state
	return nil
}

func (f *FakeStore) Close() error { return nil }
