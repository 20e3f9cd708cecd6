package eligibility

import (
	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

// RobotHint gates the robot-specific constraints. A nil hint disables them.
type RobotHint = sod.RobotHint

// dualApprovalMinimum mirrors the evaluator's safety-classified quorum.
const dualApprovalMinimum = 2

// Resolve maps each constraint to zero or one requirement, preserving
// order. The result list is never nil.
func Resolve(constraints []sod.Constraint, hint *RobotHint) Result {
	var h RobotHint
	if hint != nil {
		h = *hint
	}

	reqs := make([]Requirement, 0, len(constraints))
	for _, c := range constraints {
		if r := resolveConstraint(c, h); r != nil {
			reqs = append(reqs, r)
		}
	}
	return Result{Requirements: reqs}
}

func resolveConstraint(c sod.Constraint, hint RobotHint) Requirement {
	switch c := c.(type) {
	case sod.MakerChecker:
		return MustNotBeInitiator{}
	case sod.DistinctApprovers:
		return MustBeDistinctFrom{MinimumDistinct: c.MinimumApprovers}
	case sod.IncompatibleDuties:
		return MustNotHaveIncompatibleDuties{DutyKeys: append([]string(nil), c.DutyKeys...)}
	case sod.SpecialistApproval:
		return MustHaveOneOfRoles{RequiredRoles: append([]string(nil), c.RequiredRoles...), Reason: c.Rationale}
	case sod.HazardousZoneNoSelfApproval:
		if hint.HazardousZone {
			return MustNotBeMissionProposer{}
		}
		return nil
	case sod.SafetyClassifiedZoneDualApproval:
		if hint.SafetyClassifiedZone {
			return RequiresDualApproval{MinimumDistinct: dualApprovalMinimum}
		}
		return nil
	case sod.RemoteEstopRequesterSeparation:
		if hint.RemoteEstopRequest {
			return MustNotBeEstopRequester{}
		}
		return nil
	default:
		panic(contracts.Unhandled("eligibility.Resolve", c))
	}
}
