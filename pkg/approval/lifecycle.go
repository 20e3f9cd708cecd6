package approval

import (
	"strings"
	"time"

	"github.com/45ck/Portarium-sub009/pkg/contracts"
)

// Resolution is the human decision applied to a pending approval.
type Resolution struct {
	Outcome         Status
	DecidedAt       time.Time
	DecidedByUserID string
	Rationale       string
}

// NewPending validates r and wraps it as a pending approval.
func NewPending(r Request) (Pending, error) {
	if err := r.Validate(); err != nil {
		return Pending{}, err
	}
	return Pending{Request: r}, nil
}

// Decide moves a pending approval to its terminal state. It does not check
// separation of duties; callers run the policy aggregator first.
func Decide(p Pending, res Resolution) (Decided, error) {
	if err := p.Validate(); err != nil {
		return Decided{}, err
	}
	if err := validateResolution(p.Request, res); err != nil {
		return Decided{}, err
	}
	return Decided{
		Request:         p.Request,
		Outcome:         res.Outcome,
		DecidedAt:       res.DecidedAt,
		DecidedByUserID: res.DecidedByUserID,
		Rationale:       res.Rationale,
	}, nil
}

// Apply decides a if it is still pending and returns ErrTerminal otherwise.
func Apply(a Approval, res Resolution) (Decided, error) {
	switch a := a.(type) {
	case Pending:
		return Decide(a, res)
	case Decided:
		return Decided{}, ErrTerminal
	default:
		panic(contracts.Unhandled("approval.Apply", a))
	}
}

func validateResolution(r Request, res Resolution) error {
	if !res.Outcome.IsOutcome() {
		return contracts.Invalid(entity, "status", "decision outcome must be Approved, Denied or RequestChanges, got %q", res.Outcome)
	}
	if res.DecidedAt.IsZero() {
		return contracts.Invalid(entity, "decidedAtIso", "must be set")
	}
	if res.DecidedAt.Before(r.RequestedAt) {
		return contracts.Invalid(entity, "decidedAtIso", "must not be before requestedAtIso")
	}
	if strings.TrimSpace(res.DecidedByUserID) == "" {
		return contracts.Invalid(entity, "decidedByUserId", "must not be empty")
	}
	if strings.TrimSpace(res.Rationale) == "" {
		return contracts.Invalid(entity, "rationale", "must not be empty")
	}
	return nil
}
