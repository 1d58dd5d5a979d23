// Package store is the durable state layer for per-app RuntimeState,
// adapted from the teacher's pkg/storage/postgres job store: GORM against
// Postgres, with AutoMigrate at startup and a fresh record returned on a
// not-found load rather than an error.
package store

import (
	"context"
	"errors"

	"acaqueue/pkg/models"
)

// ErrNotFound mirrors the teacher's storage.ErrNotFound sentinel; callers of
// Store.Load never see it, since Load maps not-found to a fresh RuntimeState.
var ErrNotFound = errors.New("store: record not found")

// Store is the RuntimeState persistence contract. Implementations must be
// safe for concurrent use; the Monitoring Worker calls Load/Save while
// holding the app's own mutex, so no additional per-row locking is required
// here.
type Store interface {
	// Load returns the persisted RuntimeState for containerApp, or a fresh
	// zero-valued one (NewRuntimeState) if none has ever been saved.
	Load(ctx context.Context, containerApp string) (models.RuntimeState, error)
	Save(ctx context.Context, state models.RuntimeState) error
	Close() error
}
