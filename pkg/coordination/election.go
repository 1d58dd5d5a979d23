// Package coordination provides the single-holder leader election the
// Monitoring Worker uses to ensure only one replica acts on the cluster's
// apps at a time.
package coordination

import "context"

// Election is a non-blocking lease-style election primitive. TryAcquire
// never blocks waiting for leadership the way a Campaign call would; it
// reports whether the caller now holds the lease.
type Election interface {
	// TryAcquire attempts to take the exclusive lease with the given TTL.
	// Returns true exactly when the caller now owns the lease (freshly
	// acquired or already held).
	TryAcquire(ctx context.Context, ttl int) (bool, error)

	// Renew extends a held lease. Must be called well inside the TTL
	// (roughly TTL/3). On failure the caller must treat itself as having
	// lost leadership immediately.
	Renew(ctx context.Context) error

	// Release gives up the lease. Best-effort: callers log and proceed on
	// error rather than treating it as fatal.
	Release(ctx context.Context) error

	// IsLeader reports the last known leadership state as of the most
	// recent TryAcquire/Renew outcome. Safe for concurrent use.
	IsLeader() bool
}
