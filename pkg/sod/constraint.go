// Package sod implements the separation-of-duties constraint model and the
// reactive violation evaluator.
//
// Constraints are declared on a policy and are immutable. The evaluator is a
// pure function of (constraints, context): it keeps no state, performs no
// I/O and may be called concurrently. An empty result means the constraints
// are satisfied for the supplied context only; callers re-evaluate on every
// state-changing event.
package sod

// Kind identifies a constraint variant. Violations carry the kind of the
// constraint that produced them.
type Kind string

// Constraint kinds.
const (
	KindMakerChecker                     Kind = "MakerChecker"
	KindDistinctApprovers                Kind = "DistinctApprovers"
	KindIncompatibleDuties               Kind = "IncompatibleDuties"
	KindHazardousZoneNoSelfApproval      Kind = "HazardousZoneNoSelfApproval"
	KindSafetyClassifiedZoneDualApproval Kind = "SafetyClassifiedZoneDualApproval"
	KindRemoteEstopRequesterSeparation   Kind = "RemoteEstopRequesterSeparation"
	KindSpecialistApproval               Kind = "SpecialistApproval"
)

// Kinds enumerates every constraint kind. Any switch over constraints or
// violations must handle each entry; the package tests enforce this for the
// evaluator, the eligibility resolver and the governance severity table.
var Kinds = []Kind{
	KindMakerChecker,
	KindDistinctApprovers,
	KindIncompatibleDuties,
	KindHazardousZoneNoSelfApproval,
	KindSafetyClassifiedZoneDualApproval,
	KindRemoteEstopRequesterSeparation,
	KindSpecialistApproval,
}

// RobotGated reports whether constraints of kind k only activate when a
// robot-safety hint is present.
func (k Kind) RobotGated() bool {
	switch k {
	case KindHazardousZoneNoSelfApproval, KindSafetyClassifiedZoneDualApproval, KindRemoteEstopRequesterSeparation:
		return true
	}
	return false
}

// Constraint is the sealed set of SoD constraint variants.
type Constraint interface {
	Kind() Kind
	sodConstraint()
}

// MakerChecker forbids the initiator from also approving.
type MakerChecker struct{}

// DistinctApprovers requires at least MinimumApprovers distinct approvers.
type DistinctApprovers struct {
	MinimumApprovers int
}

// IncompatibleDuties forbids any single user from performing two or more of
// the listed duty keys.
type IncompatibleDuties struct {
	DutyKeys []string
}

// HazardousZoneNoSelfApproval forbids the mission proposer from approving a
// mission that enters a hazardous zone.
type HazardousZoneNoSelfApproval struct{}

// SafetyClassifiedZoneDualApproval requires two distinct approvers for
// missions in a safety-classified zone.
type SafetyClassifiedZoneDualApproval struct{}

// RemoteEstopRequesterSeparation forbids the user who requested a remote
// e-stop from approving it.
type RemoteEstopRequesterSeparation struct{}

// SpecialistApproval requires an approver holding one of RequiredRoles.
type SpecialistApproval struct {
	RequiredRoles []string
	Rationale     string
}

func (MakerChecker) Kind() Kind                     { return KindMakerChecker }
func (DistinctApprovers) Kind() Kind                { return KindDistinctApprovers }
func (IncompatibleDuties) Kind() Kind               { return KindIncompatibleDuties }
func (HazardousZoneNoSelfApproval) Kind() Kind      { return KindHazardousZoneNoSelfApproval }
func (SafetyClassifiedZoneDualApproval) Kind() Kind { return KindSafetyClassifiedZoneDualApproval }
func (RemoteEstopRequesterSeparation) Kind() Kind   { return KindRemoteEstopRequesterSeparation }
func (SpecialistApproval) Kind() Kind               { return KindSpecialistApproval }

func (MakerChecker) sodConstraint()                     {}
func (DistinctApprovers) sodConstraint()                {}
func (IncompatibleDuties) sodConstraint()               {}
func (HazardousZoneNoSelfApproval) sodConstraint()      {}
func (SafetyClassifiedZoneDualApproval) sodConstraint() {}
func (RemoteEstopRequesterSeparation) sodConstraint()   {}
func (SpecialistApproval) sodConstraint()               {}

// PerformedDuty records that a user carried out a duty on the subject.
type PerformedDuty struct {
	UserID  string `json:"userId"`
	DutyKey string `json:"dutyKey"`
}

// RobotHint carries the robot-safety flags that activate robot-gated
// constraints.
type RobotHint struct {
	HazardousZone        bool `json:"hazardousZone,omitempty"`
	SafetyClassifiedZone bool `json:"safetyClassifiedZone,omitempty"`
	RemoteEstopRequest   bool `json:"remoteEstopRequest,omitempty"`
}

// RobotContext is the robot-specific part of an evaluation context.
type RobotContext struct {
	Hint                  RobotHint `json:"hint"`
	MissionProposerUserID string    `json:"missionProposerUserId,omitempty"`
	EstopRequesterUserID  string    `json:"estopRequesterUserId,omitempty"`
}

// Context is the evaluation input. It is supplied fresh for every
// evaluation and never stored.
type Context struct {
	InitiatorUserID string          `json:"initiatorUserId"`
	ApproverUserIDs []string        `json:"approverUserIds"`
	PerformedDuties []PerformedDuty `json:"performedDuties,omitempty"`
	Robot           *RobotContext   `json:"robot,omitempty"`
	// ApproverRoles maps approver IDs to the roles they hold. When nil,
	// role gating is left to downstream collaborators.
	ApproverRoles map[string][]string `json:"approverRoles,omitempty"`
}
