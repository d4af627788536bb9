// Package faultinject provides the test-only one-shot fault trigger used to
// exercise the pipeline's terminal failure path. A control-plane caller arms
// the flag; the next activity call that polls it consumes it atomically and
// fails non-retryably. At most one call ever observes a given arm, no matter
// how many workers poll concurrently.
package faultinject

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Injector is the fault-injection port polled by activity wrappers.
type Injector interface {
	// Arm sets the shared flag.
	Arm(ctx context.Context) error
	// Consume atomically clears the flag, reporting whether this caller won it.
	Consume(ctx context.Context) (bool, error)
}

// RedisInjector backs the flag with a Redis key consumed via GETDEL, which
// is atomic across processes.
type RedisInjector struct {
	client *redis.Client
	key    string
}

// NewRedisInjector connects to Redis at addr. key names the shared flag.
func NewRedisInjector(addr, password string, db int, key string) *RedisInjector {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if key == "" {
		key = "restage:faultinject"
	}
	return &RedisInjector{client: rdb, key: key}
}

func (r *RedisInjector) Arm(ctx context.Context) error {
	if err := r.client.Set(ctx, r.key, "1", 0).Err(); err != nil {
		return errors.New("faultinject: arm failed: " + err.Error())
	}
	return nil
}

func (r *RedisInjector) Consume(ctx context.Context) (bool, error) {
	_, err := r.client.GetDel(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		// A broken control-plane store must never fail real traffic.
		return false, nil
	}
	return true, nil
}

// MemoryInjector is the in-process implementation used by tests.
type MemoryInjector struct {
	armed atomic.Bool
}

func NewMemoryInjector() *MemoryInjector { return &MemoryInjector{} }

func (m *MemoryInjector) Arm(ctx context.Context) error {
	m.armed.Store(true)
	return nil
}

func (m *MemoryInjector) Consume(ctx context.Context) (bool, error) {
	return m.armed.CompareAndSwap(true, false), nil
}
