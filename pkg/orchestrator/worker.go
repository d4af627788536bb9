package orchestrator

import (
	"context"
	"log/slog"

	"github.com/restage-ai/restage/pkg/activity"
	"github.com/restage-ai/restage/pkg/purge"
)

// Purger executes one purge. Implemented by purge.Service.
type Purger interface {
	Purge(ctx context.Context, projectID string) error
}

// PurgeWorker drains the orchestrator's purge request stream. Storage-phase
// failures surface as retryable errors from the purge service, so the worker
// runs each request under the activity retry policy.
type PurgeWorker struct {
	svc    Purger
	policy activity.Policy
	logger *slog.Logger
}

func NewPurgeWorker(svc Purger, policy activity.Policy, logger *slog.Logger) *PurgeWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts == 0 {
		policy = activity.DefaultPolicy()
	}
	return &PurgeWorker{svc: svc, policy: policy, logger: logger}
}

// Run consumes requests until ctx is cancelled.
func (w *PurgeWorker) Run(ctx context.Context, requests <-chan purge.Request) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-requests:
			w.handle(ctx, req)
		}
	}
}

func (w *PurgeWorker) handle(ctx context.Context, req purge.Request) {
	err := w.policy.Execute(ctx, "purge", func(ctx context.Context) error {
		if err := w.svc.Purge(ctx, req.ProjectID); err != nil {
			return activity.Transient(err.Error())
		}
		return nil
	})
	if err != nil {
		w.logger.Error("purge exhausted retries; request dropped",
			"project_id", req.ProjectID, "reason", string(req.Reason), "error", err)
		return
	}
	w.logger.Info("purge complete", "project_id", req.ProjectID, "reason", string(req.Reason))
}
