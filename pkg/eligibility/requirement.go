// Package eligibility resolves the approver requirements implied by a
// policy's SoD constraints before anyone acts on an approval.
//
// Resolve is the proactive twin of sod.Evaluate: every constraint kind the
// evaluator handles has a branch here, and the robot-gated kinds are absent
// from the output when their hint is false.
package eligibility

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/45ck/Portarium-sub009/pkg/contracts"
)

// RequirementType tags a requirement variant.
type RequirementType string

// Requirement types.
const (
	TypeMustNotBeInitiator            RequirementType = "MustNotBeInitiator"
	TypeMustBeDistinctFrom            RequirementType = "MustBeDistinctFrom"
	TypeMustNotHaveIncompatibleDuties RequirementType = "MustNotHaveIncompatibleDuties"
	TypeMustHaveOneOfRoles            RequirementType = "MustHaveOneOfRoles"
	TypeMustNotBeMissionProposer      RequirementType = "MustNotBeMissionProposer"
	TypeRequiresDualApproval          RequirementType = "RequiresDualApproval"
	TypeMustNotBeEstopRequester       RequirementType = "MustNotBeEstopRequester"
)

// Requirement is the sealed set of approver requirements. A requirement is
// derived data with no truth value of its own.
type Requirement interface {
	Type() RequirementType
	// Rationale is rendered verbatim to stakeholders.
	Rationale() string
	eligibilityRequirement()
}

// MustNotBeInitiator excludes the user who initiated the request.
type MustNotBeInitiator struct{}

// MustBeDistinctFrom requires MinimumDistinct different approvers.
type MustBeDistinctFrom struct {
	MinimumDistinct int
}

// MustNotHaveIncompatibleDuties excludes users who already performed one of DutyKeys.
type MustNotHaveIncompatibleDuties struct {
	DutyKeys []string
}

// MustHaveOneOfRoles limits approval to holders of one of RequiredRoles.
type MustHaveOneOfRoles struct {
	RequiredRoles []string
	Reason        string
}

// MustNotBeMissionProposer excludes the user who proposed the robot mission.
type MustNotBeMissionProposer struct{}

// RequiresDualApproval requires at least two distinct approvers for a safety-classified zone.
type RequiresDualApproval struct {
	MinimumDistinct int
}

// MustNotBeEstopRequester excludes the user who requested the emergency stop.
type MustNotBeEstopRequester struct{}

func (MustNotBeInitiator) Type() RequirementType            { return TypeMustNotBeInitiator }
func (MustBeDistinctFrom) Type() RequirementType            { return TypeMustBeDistinctFrom }
func (MustNotHaveIncompatibleDuties) Type() RequirementType { return TypeMustNotHaveIncompatibleDuties }
func (MustHaveOneOfRoles) Type() RequirementType            { return TypeMustHaveOneOfRoles }
func (MustNotBeMissionProposer) Type() RequirementType      { return TypeMustNotBeMissionProposer }
func (RequiresDualApproval) Type() RequirementType          { return TypeRequiresDualApproval }
func (MustNotBeEstopRequester) Type() RequirementType       { return TypeMustNotBeEstopRequester }

func (MustNotBeInitiator) eligibilityRequirement()            {}
func (MustBeDistinctFrom) eligibilityRequirement()            {}
func (MustNotHaveIncompatibleDuties) eligibilityRequirement() {}
func (MustHaveOneOfRoles) eligibilityRequirement()            {}
func (MustNotBeMissionProposer) eligibilityRequirement()      {}
func (RequiresDualApproval) eligibilityRequirement()          {}
func (MustNotBeEstopRequester) eligibilityRequirement()       {}

func (MustNotBeInitiator) Rationale() string {
	return "The approver must not be the person who initiated this request."
}

func (r MustBeDistinctFrom) Rationale() string {
	if r.MinimumDistinct == 1 {
		return "At least 1 approver is required."
	}
	return fmt.Sprintf("At least %d distinct approvers are required; the same person cannot approve twice.", r.MinimumDistinct)
}

func (r MustNotHaveIncompatibleDuties) Rationale() string {
	return fmt.Sprintf("No single person may perform more than one of these duties: %s.", strings.Join(r.DutyKeys, ", "))
}

func (r MustHaveOneOfRoles) Rationale() string { return r.Reason }

func (MustNotBeMissionProposer) Rationale() string {
	return "This mission enters a hazardous zone; the mission proposer cannot approve it."
}

func (r RequiresDualApproval) Rationale() string {
	return fmt.Sprintf("This mission runs in a safety-classified zone and requires %d distinct approvers.", r.MinimumDistinct)
}

func (MustNotBeEstopRequester) Rationale() string {
	return "The person who requested the remote e-stop cannot approve it."
}

// Result is the eligibility manifest for an approval.
type Result struct {
	Requirements []Requirement
}

type requirementWire struct {
	Type            RequirementType `json:"type"`
	Rationale       string          `json:"rationale"`
	MinimumDistinct int             `json:"minimumDistinct,omitempty"`
	DutyKeys        []string        `json:"dutyKeys,omitempty"`
	RequiredRoles   []string        `json:"requiredRoles,omitempty"`
}

// MarshalJSON renders the manifest as {"requirements": [...]}.
func (r Result) MarshalJSON() ([]byte, error) {
	entries := make([]requirementWire, 0, len(r.Requirements))
	for _, req := range r.Requirements {
		w := requirementWire{Type: req.Type(), Rationale: req.Rationale()}
		switch req := req.(type) {
		case MustNotBeInitiator, MustNotBeMissionProposer, MustNotBeEstopRequester:
		case MustBeDistinctFrom:
			w.MinimumDistinct = req.MinimumDistinct
		case MustNotHaveIncompatibleDuties:
			w.DutyKeys = req.DutyKeys
		case MustHaveOneOfRoles:
			w.RequiredRoles = req.RequiredRoles
		case RequiresDualApproval:
			w.MinimumDistinct = req.MinimumDistinct
		default:
			panic(contracts.Unhandled("eligibility.Result.MarshalJSON", req))
		}
		entries = append(entries, w)
	}
	return json.Marshal(struct {
		Requirements []requirementWire `json:"requirements"`
	}{entries})
}
