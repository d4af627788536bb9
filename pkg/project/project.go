// Package project defines the redesign project model and its lifecycle
// state machine. The orchestrator owns projects exclusively; purge and eval
// only reference them.
package project

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a project.
type Status string

const (
	StatusIntake            Status = "INTAKE"
	StatusGenerating        Status = "GENERATING"
	StatusAwaitingSelection Status = "AWAITING_SELECTION"
	StatusEditing           Status = "EDITING"
	StatusShopping          Status = "SHOPPING"
	StatusCompleted         Status = "COMPLETED"
	StatusAbandoned         Status = "ABANDONED"
	StatusFailed            Status = "FAILED"
	StatusPurged            Status = "PURGED"
)

// ErrNotFound is returned by stores when a project id does not exist.
var ErrNotFound = errors.New("project not found")

// Project is one redesign pipeline run.
type Project struct {
	ID                string     `json:"id"`
	Status            Status     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastInteractionAt time.Time  `json:"last_interaction_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	AbandonedAt       *time.Time `json:"abandoned_at,omitempty"`
}

// New creates a project in INTAKE.
func New(now time.Time) *Project {
	return &Project{
		ID:                uuid.New().String(),
		Status:            StatusIntake,
		CreatedAt:         now,
		UpdatedAt:         now,
		LastInteractionAt: now,
	}
}

// transitions is the full lifecycle graph. FAILED is additionally reachable
// from every active state (handled in CanTransition), and any state except a
// terminal one may move to PURGED on user cancellation.
var transitions = map[Status][]Status{
	StatusIntake:            {StatusGenerating},
	StatusGenerating:        {StatusAwaitingSelection},
	StatusAwaitingSelection: {StatusEditing, StatusShopping, StatusAbandoned},
	StatusEditing:           {StatusAwaitingSelection},
	StatusShopping:          {StatusCompleted},
	StatusCompleted:         {StatusPurged},
	StatusAbandoned:         {StatusPurged},
	StatusFailed:            {},
	StatusPurged:            {},
}

// Terminal reports whether no further activity dispatch may occur from s.
func Terminal(s Status) bool {
	return s == StatusPurged || s == StatusFailed
}

// Active reports whether s is a pipeline stage that still dispatches work.
func Active(s Status) bool {
	switch s {
	case StatusIntake, StatusGenerating, StatusAwaitingSelection, StatusEditing, StatusShopping:
		return true
	}
	return false
}

// CanTransition validates a single lifecycle step.
func CanTransition(from, to Status) bool {
	if Terminal(from) {
		return false
	}
	if to == StatusFailed {
		return Active(from)
	}
	if to == StatusPurged && from != to {
		// User cancellation short-circuits to purge from any non-terminal state.
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
