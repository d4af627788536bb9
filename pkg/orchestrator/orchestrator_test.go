package orchestrator

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/restage-ai/restage/pkg/activity"
	"github.com/restage-ai/restage/pkg/project"
	"github.com/restage-ai/restage/pkg/purge"
	"github.com/restage-ai/restage/pkg/stages"
)

// stubActivities lets each test script the activity boundary.
type stubActivities struct {
	mu             sync.Mutex
	intakeCalls    []stages.IntakeInput
	generateCalls  []stages.GenerateInput
	intakeFn       func(n int, in stages.IntakeInput) (*stages.Brief, error)
	generateFn     func(n int, in stages.GenerateInput) (*stages.Option, error)
	editFn         func(in stages.EditInput) (*stages.Option, error)
	shoppingFn     func(in stages.ShoppingInput) (*stages.ShoppingList, error)
}

func (s *stubActivities) IntakeBrief(ctx context.Context, in stages.IntakeInput) (*stages.Brief, error) {
	s.mu.Lock()
	s.intakeCalls = append(s.intakeCalls, in)
	n := len(s.intakeCalls)
	s.mu.Unlock()
	if s.intakeFn != nil {
		return s.intakeFn(n, in)
	}
	return &stages.Brief{ProjectID: in.ProjectID, RoomType: "bedroom", Style: "japandi"}, nil
}

func (s *stubActivities) GenerateOption(ctx context.Context, in stages.GenerateInput) (*stages.Option, error) {
	s.mu.Lock()
	s.generateCalls = append(s.generateCalls, in)
	n := len(s.generateCalls)
	s.mu.Unlock()
	if s.generateFn != nil {
		return s.generateFn(n, in)
	}
	return &stages.Option{ID: "opt", ProjectID: in.ProjectID, AssetKey: "projects/" + in.ProjectID + "/options/opt.png"}, nil
}

func (s *stubActivities) EditOption(ctx context.Context, in stages.EditInput) (*stages.Option, error) {
	if s.editFn != nil {
		return s.editFn(in)
	}
	return &stages.Option{ID: "edited", ProjectID: in.ProjectID}, nil
}

func (s *stubActivities) ShoppingList(ctx context.Context, in stages.ShoppingInput) (*stages.ShoppingList, error) {
	if s.shoppingFn != nil {
		return s.shoppingFn(in)
	}
	return &stages.ShoppingList{ProjectID: in.ProjectID, TotalCents: 9900}, nil
}

func newOrchestrator(t *testing.T, acts Activities, opts ...func(*Config)) (*Orchestrator, *project.MemoryStore) {
	t.Helper()
	store := project.NewMemoryStore()
	cfg := Config{
		Projects:   store,
		Activities: acts,
		Policy:     activity.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}
	for _, o := range opts {
		o(&cfg)
	}
	return New(cfg), store
}

func expectPurge(t *testing.T, o *Orchestrator) purge.Request {
	t.Helper()
	select {
	case req := <-o.PurgeRequests():
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("expected a purge request")
		return purge.Request{}
	}
}

func expectNoPurge(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case req := <-o.PurgeRequests():
		t.Fatalf("unexpected purge request: %+v", req)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHappyPathToCompletionAndTimedPurge(t *testing.T) {
	ctx := context.Background()
	acts := &stubActivities{}
	o, store := newOrchestrator(t, acts, func(c *Config) {
		c.CompletionPurgeDelay = 20 * time.Millisecond
	})

	p, options, err := o.Start(ctx, []stages.ConvMessage{{Role: "user", Content: "cozy bedroom"}})
	require.NoError(t, err)
	require.Equal(t, project.StatusAwaitingSelection, p.Status)
	require.Len(t, options, 3)

	edited, err := o.RequestEdit(ctx, p.ID, options[0], "warmer lighting")
	require.NoError(t, err)
	require.Equal(t, "edited", edited.ID)

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, project.StatusAwaitingSelection, got.Status)

	list, err := o.Complete(ctx, p.ID, *edited, stages.Brief{})
	require.NoError(t, err)
	require.Equal(t, int64(9900), list.TotalCents)

	got, err = store.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, project.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	req := expectPurge(t, o)
	require.Equal(t, p.ID, req.ProjectID)
	require.Equal(t, purge.ReasonCompletionTimeout, req.Reason)

	got, err = store.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, project.StatusPurged, got.Status)
}

func TestRetryableFailureRedispatchesIdenticalInput(t *testing.T) {
	ctx := context.Background()
	acts := &stubActivities{
		intakeFn: func(n int, in stages.IntakeInput) (*stages.Brief, error) {
			if n < 3 {
				return nil, activity.Transient("model timeout")
			}
			return &stages.Brief{ProjectID: in.ProjectID}, nil
		},
	}
	o, store := newOrchestrator(t, acts)

	p, _, err := o.Start(ctx, []stages.ConvMessage{{Role: "user", Content: "den"}})
	require.NoError(t, err)
	require.Len(t, acts.intakeCalls, 3)
	// Retried calls must repeat the inputs exactly.
	require.True(t, reflect.DeepEqual(acts.intakeCalls[0], acts.intakeCalls[1]))
	require.True(t, reflect.DeepEqual(acts.intakeCalls[1], acts.intakeCalls[2]))

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, project.StatusAwaitingSelection, got.Status)
	expectNoPurge(t, o)
}

func TestNonRetryableFailureGoesToFailedWithOnePurge(t *testing.T) {
	ctx := context.Background()
	acts := &stubActivities{
		generateFn: func(n int, in stages.GenerateInput) (*stages.Option, error) {
			return nil, activity.ClientInput("unsupported room photo")
		},
	}
	o, store := newOrchestrator(t, acts)

	p, _, err := o.Start(ctx, nil)
	require.Error(t, err)

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, project.StatusFailed, got.Status)

	req := expectPurge(t, o)
	require.Equal(t, p.ID, req.ProjectID)
	require.Equal(t, purge.ReasonTerminalFailure, req.Reason)
	expectNoPurge(t, o)

	// Terminal states dispatch nothing further.
	_, err = o.RequestEdit(ctx, p.ID, stages.Option{}, "x")
	require.Error(t, err)
}

func TestDegradedGenerationIsAccepted(t *testing.T) {
	ctx := context.Background()
	acts := &stubActivities{
		generateFn: func(n int, in stages.GenerateInput) (*stages.Option, error) {
			if in.OptionIndex == 0 {
				return &stages.Option{ID: "only", ProjectID: in.ProjectID}, nil
			}
			return nil, activity.Integrity("corrupt render")
		},
	}
	o, store := newOrchestrator(t, acts)

	p, options, err := o.Start(ctx, nil)
	require.NoError(t, err)
	require.Len(t, options, 1)

	got, _ := store.Get(ctx, p.ID)
	require.Equal(t, project.StatusAwaitingSelection, got.Status)
	expectNoPurge(t, o)
}

func TestCancelBypassesTimersAndPurgesOnce(t *testing.T) {
	ctx := context.Background()
	acts := &stubActivities{}
	o, store := newOrchestrator(t, acts, func(c *Config) {
		c.CompletionPurgeDelay = time.Hour
	})

	p, options, err := o.Start(ctx, nil)
	require.NoError(t, err)
	_, err = o.Complete(ctx, p.ID, options[0], stages.Brief{})
	require.NoError(t, err)

	// Cancel before the 1h purge timer can fire.
	require.NoError(t, o.Cancel(ctx, p.ID))

	req := expectPurge(t, o)
	require.Equal(t, purge.ReasonUserCancelled, req.Reason)
	expectNoPurge(t, o)

	got, _ := store.Get(ctx, p.ID)
	require.Equal(t, project.StatusPurged, got.Status)

	// Cancelling again is a no-op.
	require.NoError(t, o.Cancel(ctx, p.ID))
	expectNoPurge(t, o)
}

func TestAbandonmentTimerFires(t *testing.T) {
	ctx := context.Background()
	acts := &stubActivities{}
	o, store := newOrchestrator(t, acts, func(c *Config) {
		c.AbandonmentPurgeDelay = 20 * time.Millisecond
	})

	p, _, err := o.Start(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, o.Abandon(ctx, p.ID))

	got, _ := store.Get(ctx, p.ID)
	require.Equal(t, project.StatusAbandoned, got.Status)
	require.NotNil(t, got.AbandonedAt)

	req := expectPurge(t, o)
	require.Equal(t, purge.ReasonAbandonmentTimeout, req.Reason)

	got, _ = store.Get(ctx, p.ID)
	require.Equal(t, project.StatusPurged, got.Status)
}

func TestTouchPostponesNothingButRefreshesInteraction(t *testing.T) {
	ctx := context.Background()
	acts := &stubActivities{}
	o, store := newOrchestrator(t, acts)

	p, _, err := o.Start(ctx, nil)
	require.NoError(t, err)
	before, _ := store.Get(ctx, p.ID)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, o.Touch(ctx, p.ID))

	after, _ := store.Get(ctx, p.ID)
	require.True(t, after.LastInteractionAt.After(before.LastInteractionAt))
}
