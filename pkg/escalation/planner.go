// Package escalation works out which escalation steps of a pending approval
// have come due. It never schedules or notifies; an external scheduler calls
// the Planner on its own cadence and acts on the result.
package escalation

import (
	"sort"
	"time"

	"github.com/45ck/Portarium-sub009/pkg/approval"
	"github.com/45ck/Portarium-sub009/pkg/contracts"
)

// Step is an escalation step with its absolute due time.
type Step struct {
	approval.EscalationStep
	DueAt time.Time `json:"dueAt"`
}

// Plan is the escalation state of one approval at a point in time.
type Plan struct {
	ApprovalID  string    `json:"approvalId"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
	// Due lists steps whose time has passed, in step order.
	Due []Step `json:"due"`
	// Next is the earliest step not yet due, if any.
	Next *Step `json:"next,omitempty"`
	// Overdue is set once the approval's own deadline has passed.
	Overdue bool `json:"overdue"`
}

// Planner evaluates escalation chains against a clock.
type Planner struct {
	clock func() time.Time
}

// NewPlanner creates a planner on the wall clock.
func NewPlanner() *Planner {
	return &Planner{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (p *Planner) WithClock(clock func() time.Time) *Planner {
	p.clock = clock
	return p
}

// Plan computes the escalation state of a. Decided approvals have no due or
// next steps.
func (p *Planner) Plan(a approval.Approval) Plan {
	now := p.clock()
	base := a.Base()
	out := Plan{ApprovalID: base.ApprovalID, EvaluatedAt: now, Due: []Step{}}

	switch a.(type) {
	case approval.Pending:
	case approval.Decided:
		return out
	default:
		panic(contracts.Unhandled("escalation.Plan", a))
	}

	if base.DueAt != nil && !now.Before(*base.DueAt) {
		out.Overdue = true
	}
	for _, s := range schedule(base) {
		if !now.Before(s.DueAt) {
			out.Due = append(out.Due, s)
			continue
		}
		if out.Next == nil || s.DueAt.Before(out.Next.DueAt) {
			s := s
			out.Next = &s
		}
	}
	return out
}

// Due returns the steps of a whose time has passed.
func (p *Planner) Due(a approval.Approval) []Step {
	return p.Plan(a).Due
}

// Next returns the earliest step of a not yet due.
func (p *Planner) Next(a approval.Approval) (Step, bool) {
	next := p.Plan(a).Next
	if next == nil {
		return Step{}, false
	}
	return *next, true
}

func schedule(r approval.Request) []Step {
	steps := make([]Step, 0, len(r.EscalationChain))
	for _, s := range r.EscalationChain {
		steps = append(steps, Step{EscalationStep: s, DueAt: r.RequestedAt.Add(s.After())})
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
	return steps
}
