package sod

import (
	"fmt"
	"strings"
)

// Violation is the sealed set of violation variants, one per constraint kind.
type Violation interface {
	// Kind is the kind of the constraint that produced the violation.
	Kind() Kind
	// Message renders a specific, actionable description.
	Message() string
	sodViolation()
}

// MakerCheckerViolation: the initiator is among the approvers.
type MakerCheckerViolation struct {
	InitiatorUserID string
}

// DistinctApproversViolation: fewer distinct approvers than required.
type DistinctApproversViolation struct {
	RequiredApprovers int
	DistinctApprovers int
	ApproverUserIDs   []string
}

// IncompatibleDutiesViolation: one user performed two or more incompatible
// duties.
type IncompatibleDutiesViolation struct {
	UserID   string
	DutyKeys []string
}

// HazardousZoneNoSelfApprovalViolation: the mission proposer approved a
// hazardous-zone mission.
type HazardousZoneNoSelfApprovalViolation struct {
	MissionProposerUserID string
}

// SafetyClassifiedZoneDualApprovalViolation: a safety-classified zone
// mission lacks two distinct approvers.
type SafetyClassifiedZoneDualApprovalViolation struct {
	RequiredApprovers int
	DistinctApprovers int
}

// RemoteEstopRequesterSeparationViolation: the e-stop requester approved
// their own request.
type RemoteEstopRequesterSeparationViolation struct {
	EstopRequesterUserID string
}

// SpecialistApprovalViolation: no approver holds a required specialist role.
type SpecialistApprovalViolation struct {
	RequiredRoles   []string
	ApproverUserIDs []string
}

func (MakerCheckerViolation) Kind() Kind                     { return KindMakerChecker }
func (DistinctApproversViolation) Kind() Kind                { return KindDistinctApprovers }
func (IncompatibleDutiesViolation) Kind() Kind               { return KindIncompatibleDuties }
func (HazardousZoneNoSelfApprovalViolation) Kind() Kind      { return KindHazardousZoneNoSelfApproval }
func (SafetyClassifiedZoneDualApprovalViolation) Kind() Kind { return KindSafetyClassifiedZoneDualApproval }
func (RemoteEstopRequesterSeparationViolation) Kind() Kind   { return KindRemoteEstopRequesterSeparation }
func (SpecialistApprovalViolation) Kind() Kind               { return KindSpecialistApproval }

func (MakerCheckerViolation) sodViolation()                     {}
func (DistinctApproversViolation) sodViolation()                {}
func (IncompatibleDutiesViolation) sodViolation()               {}
func (HazardousZoneNoSelfApprovalViolation) sodViolation()      {}
func (SafetyClassifiedZoneDualApprovalViolation) sodViolation() {}
func (RemoteEstopRequesterSeparationViolation) sodViolation()   {}
func (SpecialistApprovalViolation) sodViolation()               {}

func (v MakerCheckerViolation) Message() string {
	return fmt.Sprintf("user %s initiated this request and cannot also approve it", v.InitiatorUserID)
}

func (v DistinctApproversViolation) Message() string {
	return fmt.Sprintf("%d distinct approvers required, %d present", v.RequiredApprovers, v.DistinctApprovers)
}

func (v IncompatibleDutiesViolation) Message() string {
	return fmt.Sprintf("user %s performed incompatible duties: %s", v.UserID, strings.Join(v.DutyKeys, ", "))
}

func (v HazardousZoneNoSelfApprovalViolation) Message() string {
	return fmt.Sprintf("user %s proposed this hazardous-zone mission and cannot also approve it", v.MissionProposerUserID)
}

func (v SafetyClassifiedZoneDualApprovalViolation) Message() string {
	return fmt.Sprintf("safety-classified zone requires %d distinct approvers, %d present", v.RequiredApprovers, v.DistinctApprovers)
}

func (v RemoteEstopRequesterSeparationViolation) Message() string {
	return fmt.Sprintf("user %s requested this remote e-stop and cannot also approve it", v.EstopRequesterUserID)
}

func (v SpecialistApprovalViolation) Message() string {
	return fmt.Sprintf("an approver holding one of [%s] is required", strings.Join(v.RequiredRoles, ", "))
}
