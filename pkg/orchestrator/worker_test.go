package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/restage-ai/restage/pkg/activity"
	"github.com/restage-ai/restage/pkg/purge"
)

type countingPurger struct {
	calls    atomic.Int64
	failures int64 // fail this many leading calls
	done     chan struct{}
}

func (c *countingPurger) Purge(ctx context.Context, projectID string) error {
	n := c.calls.Add(1)
	if n <= c.failures {
		return errors.New("bucket unreachable")
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	return nil
}

func TestPurgeWorker_RetriesStorageFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	purger := &countingPurger{failures: 2, done: make(chan struct{})}
	done := purger.done
	w := NewPurgeWorker(purger, activity.Policy{MaxAttempts: 4, BaseDelay: time.Millisecond}, nil)

	requests := make(chan purge.Request, 1)
	requests <- purge.Request{ProjectID: "p1", Reason: purge.ReasonUserCancelled}
	go w.Run(ctx, requests)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("purge never succeeded")
	}
	if got := purger.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestPurgeWorker_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewPurgeWorker(&countingPurger{}, activity.DefaultPolicy(), nil)

	stopped := make(chan struct{})
	go func() {
		w.Run(ctx, make(chan purge.Request))
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
