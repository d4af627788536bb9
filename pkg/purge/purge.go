// Package purge implements the cascading deletion of a project: first every
// object-storage asset under the project's prefix, then the relational row.
// The ordering is deliberate. A storage failure propagates so the caller can
// retry with the row (and thus the purge request) still intact; once storage
// is clean, a row-deletion failure is logged and swallowed, because an
// orphaned row has no user-facing effect and re-running purge against an
// already-gone project is a safe no-op.
package purge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/restage-ai/restage/pkg/objectstore"
	"github.com/restage-ai/restage/pkg/project"
)

// Reason records why a purge was requested.
type Reason string

const (
	ReasonCompletionTimeout  Reason = "completion_timeout"
	ReasonAbandonmentTimeout Reason = "abandonment_timeout"
	ReasonUserCancelled      Reason = "user_cancelled"
	// ReasonTerminalFailure covers the immediate purge scheduled when a
	// non-retryable activity failure terminates the pipeline.
	ReasonTerminalFailure Reason = "terminal_failure"
)

// Request is a one-shot instruction to purge a project.
type Request struct {
	ProjectID string
	Reason    Reason
}

// Service executes purges against the object store and project store.
type Service struct {
	objects  objectstore.Store
	projects project.Store
	logger   *slog.Logger
}

func NewService(objects objectstore.Store, projects project.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{objects: objects, projects: projects, logger: logger}
}

// Purge deletes everything a project owns. See the package comment for the
// ordering contract.
func (s *Service) Purge(ctx context.Context, projectID string) error {
	prefix := objectstore.ProjectPrefix(projectID)

	if err := s.objects.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("purge storage for %s: %w", projectID, err)
	}
	s.logger.Info("purged storage prefix", "project_id", projectID, "prefix", prefix)

	if err := s.projects.Delete(ctx, projectID); err != nil {
		// Orphaned row: harmless, no live storage cost. Do not raise.
		s.logger.Error("project row deletion failed after storage purge",
			"project_id", projectID, "error", err)
		return nil
	}
	s.logger.Info("purged project row", "project_id", projectID)
	return nil
}
