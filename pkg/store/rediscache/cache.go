// Package rediscache fronts a store.Store with a write-through Redis cache,
// adapted from the teacher's pkg/storage/redis client construction (same
// go-redis/v9 client, same Ping-on-connect) but used as a simple JSON cache
// rather than a stream queue, since RuntimeState is a single row read far
// more often than it is written.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"acaqueue/pkg/models"
	"acaqueue/pkg/store"
)

const keyPrefix = "acaqueue:state:"

// Cache wraps a backing store.Store, serving Load from Redis when present
// and always writing through to both Redis and the backing store on Save.
type Cache struct {
	client  *redis.Client
	backing store.Store
	ttl     time.Duration
}

func New(addr string, backing store.Store, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("rediscache: connect: %w", err)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, backing: backing, ttl: ttl}, nil
}

func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return err
	}
	return c.backing.Close()
}

func key(containerApp string) string {
	return keyPrefix + containerApp
}

// Load tries Redis first; any miss or decode failure falls through to the
// backing store so a flushed or misbehaving cache never blocks a tick.
func (c *Cache) Load(ctx context.Context, containerApp string) (models.RuntimeState, error) {
	raw, err := c.client.Get(ctx, key(containerApp)).Bytes()
	if err == nil {
		var state models.RuntimeState
		if jsonErr := json.Unmarshal(raw, &state); jsonErr == nil {
			return state, nil
		}
	}

	state, err := c.backing.Load(ctx, containerApp)
	if err != nil {
		return models.RuntimeState{}, err
	}
	c.set(ctx, state)
	return state, nil
}

// Save writes to the backing store first — the source of truth — then
// refreshes the cache. A cache write failure is ignored and not returned:
// the backing write having already succeeded means no state is lost.
func (c *Cache) Save(ctx context.Context, state models.RuntimeState) error {
	if err := c.backing.Save(ctx, state); err != nil {
		return err
	}
	c.set(ctx, state)
	return nil
}

func (c *Cache) set(ctx context.Context, state models.RuntimeState) {
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	c.client.Set(ctx, key(state.ContainerApp), raw, c.ttl)
}
