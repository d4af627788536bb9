// Package orchestrator drives a project through the redesign pipeline:
// intake, generation, edit, shopping, completion or abandonment, purge.
// Transitions for one project are strictly ordered (one mutex per project
// id); activities for different projects, and the option fan-out within one
// generation stage, run fully in parallel.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/restage-ai/restage/pkg/activity"
	"github.com/restage-ai/restage/pkg/project"
	"github.com/restage-ai/restage/pkg/purge"
	"github.com/restage-ai/restage/pkg/stages"
)

// Activities is the boundary the orchestrator dispatches through. Implemented
// by stages.Runner in production; stubbed in tests.
type Activities interface {
	IntakeBrief(ctx context.Context, in stages.IntakeInput) (*stages.Brief, error)
	GenerateOption(ctx context.Context, in stages.GenerateInput) (*stages.Option, error)
	EditOption(ctx context.Context, in stages.EditInput) (*stages.Option, error)
	ShoppingList(ctx context.Context, in stages.ShoppingInput) (*stages.ShoppingList, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Telemetry receives pipeline events. All methods must be cheap and
// non-blocking; a nil Telemetry disables reporting.
type Telemetry interface {
	RecordTransition(ctx context.Context, from, to, trigger string)
	RecordPurgeRequest(ctx context.Context, reason string)
	RecordRetry(ctx context.Context, activityName string)
}

// Config wires an Orchestrator.
type Config struct {
	Projects   project.Store
	Activities Activities
	Policy     activity.Policy

	// OptionCount is the generation fan-out width. Default 3.
	OptionCount int
	// CompletionPurgeDelay is how long a completed project is retained.
	// Default 24h.
	CompletionPurgeDelay time.Duration
	// AbandonmentPurgeDelay is measured from the last user interaction.
	// Default 48h.
	AbandonmentPurgeDelay time.Duration

	Logger    *slog.Logger
	Clock     Clock
	Telemetry Telemetry
}

// proc is the per-project coordination record. Its mutex serializes every
// transition for the project; purgeIssued guarantees at most one purge
// request over the project's lifetime.
type proc struct {
	mu          sync.Mutex
	timer       *time.Timer
	purgeIssued bool
}

// Orchestrator is the durable state machine for all live projects.
type Orchestrator struct {
	cfg Config

	mu    sync.Mutex
	procs map[string]*proc

	purgeCh chan purge.Request
}

// New builds an Orchestrator, filling config defaults.
func New(cfg Config) *Orchestrator {
	if cfg.OptionCount <= 0 {
		cfg.OptionCount = 3
	}
	if cfg.CompletionPurgeDelay <= 0 {
		cfg.CompletionPurgeDelay = 24 * time.Hour
	}
	if cfg.AbandonmentPurgeDelay <= 0 {
		cfg.AbandonmentPurgeDelay = 48 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = wallClock{}
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = activity.DefaultPolicy()
	}
	o := &Orchestrator{
		cfg:     cfg,
		procs:   make(map[string]*proc),
		purgeCh: make(chan purge.Request, 64),
	}
	if cfg.Telemetry != nil {
		prev := o.cfg.Policy.OnRetry
		o.cfg.Policy.OnRetry = func(name string, attempt int) {
			cfg.Telemetry.RecordRetry(context.Background(), name)
			if prev != nil {
				prev(name, attempt)
			}
		}
	}
	return o
}

// PurgeRequests exposes the stream of purge requests for the purge worker.
func (o *Orchestrator) PurgeRequests() <-chan purge.Request { return o.purgeCh }

func (o *Orchestrator) proc(id string) *proc {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.procs[id]
	if !ok {
		p = &proc{}
		o.procs[id] = p
	}
	return p
}

// Start creates a project, runs intake, fans out option generation, and
// leaves the project awaiting selection. It blocks for the duration of the
// external calls; the per-project lock is held throughout, so no other
// transition can interleave.
func (o *Orchestrator) Start(ctx context.Context, conversation []stages.ConvMessage) (*project.Project, []stages.Option, error) {
	p := project.New(o.cfg.Clock.Now())
	if err := o.cfg.Projects.Save(ctx, p); err != nil {
		return nil, nil, fmt.Errorf("create project: %w", err)
	}
	o.cfg.Logger.Info("project created", "project_id", p.ID, "status", string(p.Status))

	pr := o.proc(p.ID)
	pr.mu.Lock()
	defer pr.mu.Unlock()

	var brief *stages.Brief
	err := o.dispatch(ctx, pr, p, "intake_brief", func(ctx context.Context) error {
		b, err := o.cfg.Activities.IntakeBrief(ctx, stages.IntakeInput{
			ProjectID:    p.ID,
			Conversation: conversation,
		})
		if err != nil {
			return err
		}
		brief = b
		return nil
	})
	if err != nil {
		return p, nil, err
	}

	if err := o.transition(ctx, p, project.StatusGenerating, "intake_complete"); err != nil {
		return p, nil, err
	}

	options, err := o.generateOptions(ctx, pr, p, *brief)
	if err != nil {
		return p, nil, err
	}

	if err := o.transition(ctx, p, project.StatusAwaitingSelection, "options_ready"); err != nil {
		return p, nil, err
	}
	return p, options, nil
}

// generateOptions dispatches the option-producing calls concurrently. The
// stage is accepted as degraded when at least one option succeeds; it fails
// terminally only when every call fails.
func (o *Orchestrator) generateOptions(ctx context.Context, pr *proc, p *project.Project, brief stages.Brief) ([]stages.Option, error) {
	n := o.cfg.OptionCount
	results := make([]*stages.Option, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := stages.GenerateInput{ProjectID: p.ID, Brief: brief, OptionIndex: i, Seed: int64(i)}
			errs[i] = o.cfg.Policy.Execute(ctx, "generate_option", func(ctx context.Context) error {
				opt, err := o.cfg.Activities.GenerateOption(ctx, in)
				if err != nil {
					return err
				}
				results[i] = opt
				return nil
			})
		}(i)
	}
	wg.Wait()

	var options []stages.Option
	for _, r := range results {
		if r != nil {
			options = append(options, *r)
		}
	}
	if len(options) == 0 {
		// Every fan-out call failed terminally; surface the first failure.
		var first error
		for _, e := range errs {
			if e != nil {
				first = e
				break
			}
		}
		o.fail(ctx, pr, p, "generate_option", first)
		return nil, first
	}
	if len(options) < n {
		o.cfg.Logger.Warn("generation degraded, accepting partial result",
			"project_id", p.ID, "produced", len(options), "requested", n)
	}
	return options, nil
}

// RequestEdit revises an option and returns the project to awaiting
// selection. A user action: it refreshes the interaction timestamp.
func (o *Orchestrator) RequestEdit(ctx context.Context, projectID string, opt stages.Option, instruction string) (*stages.Option, error) {
	pr := o.proc(projectID)
	pr.mu.Lock()
	defer pr.mu.Unlock()

	p, err := o.userAction(ctx, pr, projectID)
	if err != nil {
		return nil, err
	}
	if err := o.transition(ctx, p, project.StatusEditing, "edit_requested"); err != nil {
		return nil, err
	}

	var edited *stages.Option
	err = o.dispatch(ctx, pr, p, "edit_option", func(ctx context.Context) error {
		e, err := o.cfg.Activities.EditOption(ctx, stages.EditInput{
			ProjectID:   projectID,
			Option:      opt,
			Instruction: instruction,
		})
		if err != nil {
			return err
		}
		edited = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := o.transition(ctx, p, project.StatusAwaitingSelection, "edit_complete"); err != nil {
		return nil, err
	}
	return edited, nil
}

// Complete runs the shopping stage for the chosen option, marks the project
// completed, and arms the completion purge timer.
func (o *Orchestrator) Complete(ctx context.Context, projectID string, opt stages.Option, brief stages.Brief) (*stages.ShoppingList, error) {
	pr := o.proc(projectID)
	pr.mu.Lock()
	defer pr.mu.Unlock()

	p, err := o.userAction(ctx, pr, projectID)
	if err != nil {
		return nil, err
	}
	if err := o.transition(ctx, p, project.StatusShopping, "option_selected"); err != nil {
		return nil, err
	}

	var list *stages.ShoppingList
	err = o.dispatch(ctx, pr, p, "shopping_list", func(ctx context.Context) error {
		l, err := o.cfg.Activities.ShoppingList(ctx, stages.ShoppingInput{
			ProjectID: projectID,
			Option:    opt,
			Brief:     brief,
		})
		if err != nil {
			return err
		}
		list = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := o.transition(ctx, p, project.StatusCompleted, "shopping_ready"); err != nil {
		return nil, err
	}
	now := o.cfg.Clock.Now()
	p.CompletedAt = &now
	if err := o.cfg.Projects.Save(ctx, p); err != nil {
		return nil, err
	}

	o.armTimer(pr, projectID, o.cfg.CompletionPurgeDelay, purge.ReasonCompletionTimeout)
	return list, nil
}

// Abandon marks an inactive project abandoned and arms the abandonment purge
// timer, anchored at the last user interaction.
func (o *Orchestrator) Abandon(ctx context.Context, projectID string) error {
	pr := o.proc(projectID)
	pr.mu.Lock()
	defer pr.mu.Unlock()

	p, err := o.cfg.Projects.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if err := o.transition(ctx, p, project.StatusAbandoned, "inactivity"); err != nil {
		return err
	}
	now := o.cfg.Clock.Now()
	p.AbandonedAt = &now
	if err := o.cfg.Projects.Save(ctx, p); err != nil {
		return err
	}

	delay := p.LastInteractionAt.Add(o.cfg.AbandonmentPurgeDelay).Sub(now)
	if delay < 0 {
		delay = 0
	}
	o.armTimer(pr, projectID, delay, purge.ReasonAbandonmentTimeout)
	return nil
}

// Cancel is the user-initiated cancellation: any pending timer is stopped
// and the project goes straight to purge, bypassing retention delays.
func (o *Orchestrator) Cancel(ctx context.Context, projectID string) error {
	pr := o.proc(projectID)
	pr.mu.Lock()
	defer pr.mu.Unlock()

	cancelTimer(pr)
	p, err := o.cfg.Projects.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if project.Terminal(p.Status) {
		return nil
	}
	if err := o.transition(ctx, p, project.StatusPurged, "user_cancelled"); err != nil {
		return err
	}
	o.issuePurge(ctx, pr, projectID, purge.ReasonUserCancelled)
	return nil
}

// Touch records a user interaction, postponing abandonment.
func (o *Orchestrator) Touch(ctx context.Context, projectID string) error {
	pr := o.proc(projectID)
	pr.mu.Lock()
	defer pr.mu.Unlock()

	p, err := o.userAction(ctx, pr, projectID)
	if err != nil {
		return err
	}
	return o.cfg.Projects.Save(ctx, p)
}

// userAction loads the project, cancels any pending purge timer, and
// refreshes the interaction timestamp. Caller holds pr.mu.
func (o *Orchestrator) userAction(ctx context.Context, pr *proc, projectID string) (*project.Project, error) {
	cancelTimer(pr)
	p, err := o.cfg.Projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Terminal(p.Status) {
		return nil, fmt.Errorf("project %s is terminal (%s)", projectID, p.Status)
	}
	p.LastInteractionAt = o.cfg.Clock.Now()
	return p, nil
}

// dispatch runs one activity under the retry policy. Retryable failures are
// re-dispatched with identical inputs and never change project state; a
// terminal failure transitions the project to FAILED and schedules purge
// immediately.
func (o *Orchestrator) dispatch(ctx context.Context, pr *proc, p *project.Project, name string, fn func(ctx context.Context) error) error {
	err := o.cfg.Policy.Execute(ctx, name, fn)
	if err != nil {
		o.fail(ctx, pr, p, name, err)
	}
	return err
}

// fail moves an active project to FAILED and issues its purge request.
// Unusable partial data has no retention value.
func (o *Orchestrator) fail(ctx context.Context, pr *proc, p *project.Project, name string, cause error) {
	o.cfg.Logger.Error("activity failed terminally",
		"project_id", p.ID, "activity", name, "error", cause)
	cancelTimer(pr)
	if err := o.transition(ctx, p, project.StatusFailed, "activity_failure:"+name); err != nil {
		o.cfg.Logger.Error("failed-state transition rejected", "project_id", p.ID, "error", err)
		return
	}
	o.issuePurge(ctx, pr, p.ID, purge.ReasonTerminalFailure)
}

// transition performs one validated lifecycle step and persists it. Every
// transition is logged with project id, from-state, to-state and trigger.
func (o *Orchestrator) transition(ctx context.Context, p *project.Project, to project.Status, trigger string) error {
	from := p.Status
	if !project.CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s for project %s (trigger %s)", from, to, p.ID, trigger)
	}
	p.Status = to
	p.UpdatedAt = o.cfg.Clock.Now()
	if err := o.cfg.Projects.Save(ctx, p); err != nil {
		p.Status = from
		return fmt.Errorf("persist transition %s -> %s: %w", from, to, err)
	}
	o.cfg.Logger.Info("project transition",
		"project_id", p.ID, "from", string(from), "to", string(to), "trigger", trigger)
	if o.cfg.Telemetry != nil {
		o.cfg.Telemetry.RecordTransition(ctx, string(from), string(to), trigger)
	}
	return nil
}

// armTimer schedules a purge request after delay. Caller holds pr.mu.
func (o *Orchestrator) armTimer(pr *proc, projectID string, delay time.Duration, reason purge.Reason) {
	cancelTimer(pr)
	pr.timer = time.AfterFunc(delay, func() {
		o.firePurgeTimer(projectID, reason)
	})
	o.cfg.Logger.Info("purge timer armed",
		"project_id", projectID, "delay", delay.String(), "reason", string(reason))
}

func (o *Orchestrator) firePurgeTimer(projectID string, reason purge.Reason) {
	pr := o.proc(projectID)
	pr.mu.Lock()
	defer pr.mu.Unlock()

	ctx := context.Background()
	p, err := o.cfg.Projects.Get(ctx, projectID)
	if err != nil {
		o.cfg.Logger.Error("purge timer fired for unknown project", "project_id", projectID, "error", err)
		return
	}
	if p.Status != project.StatusCompleted && p.Status != project.StatusAbandoned {
		// A user action raced the timer; the timer no longer applies.
		return
	}
	if err := o.transition(ctx, p, project.StatusPurged, string(reason)); err != nil {
		o.cfg.Logger.Error("purge transition rejected", "project_id", projectID, "error", err)
		return
	}
	o.issuePurge(ctx, pr, projectID, reason)
}

// cancelTimer stops a pending purge timer, if any. Caller holds pr.mu.
func cancelTimer(pr *proc) {
	if pr.timer != nil {
		pr.timer.Stop()
		pr.timer = nil
	}
}

// issuePurge emits at most one purge request per project. Caller holds pr.mu.
func (o *Orchestrator) issuePurge(ctx context.Context, pr *proc, projectID string, reason purge.Reason) {
	if pr.purgeIssued {
		return
	}
	pr.purgeIssued = true
	o.cfg.Logger.Info("purge requested", "project_id", projectID, "reason", string(reason))
	if o.cfg.Telemetry != nil {
		o.cfg.Telemetry.RecordPurgeRequest(ctx, string(reason))
	}
	o.purgeCh <- purge.Request{ProjectID: projectID, Reason: reason}
}
