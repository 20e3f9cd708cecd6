// Package approval models the human approval entity a governed action waits
// on. An Approval is either Pending or Decided; the two shapes are separate
// types so a pending record can never carry decision fields.
package approval

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/45ck/Portarium-sub009/pkg/contracts"
)

// ErrTerminal is returned when a decision is attempted on an approval that
// has already been decided.
var ErrTerminal = errors.New("approval: already decided")

const entity = "Approval"

// Status is the lifecycle state of an approval.
type Status string

const (
	StatusPending        Status = "Pending"
	StatusApproved       Status = "Approved"
	StatusDenied         Status = "Denied"
	StatusRequestChanges Status = "RequestChanges"
)

// IsOutcome reports whether s is one of the terminal decision outcomes.
func (s Status) IsOutcome() bool {
	switch s {
	case StatusApproved, StatusDenied, StatusRequestChanges:
		return true
	}
	return false
}

// EscalationStep names who to escalate to once an approval has waited
// AfterHours since it was requested.
type EscalationStep struct {
	StepOrder        int     `json:"stepOrder"`
	EscalateToUserID string  `json:"escalateToUserId"`
	AfterHours       float64 `json:"afterHours"`
}

// After is the step's delay as a duration.
func (s EscalationStep) After() time.Duration {
	return time.Duration(s.AfterHours * float64(time.Hour))
}

// Request holds the fields every approval carries regardless of status.
type Request struct {
	ApprovalID        string
	WorkspaceID       string
	RunID             string
	PlanID            string
	WorkItemID        string
	Prompt            string
	RequestedAt       time.Time
	RequestedByUserID string
	AssigneeUserID    string
	DueAt             *time.Time
	EscalationChain   []EscalationStep
}

// Validate checks the invariants shared by both approval shapes.
func (r Request) Validate() error {
	required := []struct{ field, value string }{
		{"approvalId", r.ApprovalID},
		{"workspaceId", r.WorkspaceID},
		{"runId", r.RunID},
		{"planId", r.PlanID},
		{"prompt", r.Prompt},
		{"requestedByUserId", r.RequestedByUserID},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return contracts.Invalid(entity, f.field, "must not be empty")
		}
	}
	if r.RequestedAt.IsZero() {
		return contracts.Invalid(entity, "requestedAtIso", "must be set")
	}
	if r.DueAt != nil && r.DueAt.Before(r.RequestedAt) {
		return contracts.Invalid(entity, "dueAtIso", "must not be before requestedAtIso")
	}
	for i, s := range r.EscalationChain {
		switch {
		case s.StepOrder < 1:
			return contracts.Invalid(entity, stepField(i, "stepOrder"), "must be >= 1, got %d", s.StepOrder)
		case strings.TrimSpace(s.EscalateToUserID) == "":
			return contracts.Invalid(entity, stepField(i, "escalateToUserId"), "must not be empty")
		case !(s.AfterHours > 0):
			return contracts.Invalid(entity, stepField(i, "afterHours"), "must be > 0, got %v", s.AfterHours)
		}
	}
	return nil
}

func stepField(i int, name string) string {
	return fmt.Sprintf("escalationChain[%d].%s", i, name)
}

// Approval is either a Pending or a Decided record.
type Approval interface {
	Base() Request
	Status() Status
	approval()
}

// Pending is an approval awaiting a decision.
type Pending struct {
	Request
}

// Decided is a terminal approval.
type Decided struct {
	Request
	Outcome         Status
	DecidedAt       time.Time
	DecidedByUserID string
	Rationale       string
}

func (p Pending) Base() Request  { return p.Request }
func (p Pending) Status() Status { return StatusPending }
func (Pending) approval()        {}

func (d Decided) Base() Request  { return d.Request }
func (d Decided) Status() Status { return d.Outcome }
func (Decided) approval()        {}
