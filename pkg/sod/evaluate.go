package sod

import (
	"github.com/45ck/Portarium-sub009/pkg/contracts"
)

// dualApprovalMinimum is the quorum for safety-classified zone missions.
const dualApprovalMinimum = 2

// Evaluate returns the violations of constraints under ctx, in constraint
// order. Each constraint contributes at most one violation, except
// IncompatibleDuties which contributes one per offending user. The result is
// never nil.
func Evaluate(constraints []Constraint, ctx Context) []Violation {
	out := make([]Violation, 0)
	for _, c := range constraints {
		out = append(out, evaluateConstraint(c, ctx)...)
	}
	return out
}

func evaluateConstraint(c Constraint, ctx Context) []Violation {
	switch c := c.(type) {
	case MakerChecker:
		if contains(ctx.ApproverUserIDs, ctx.InitiatorUserID) {
			return []Violation{MakerCheckerViolation{InitiatorUserID: ctx.InitiatorUserID}}
		}
		return nil

	case DistinctApprovers:
		approvers := Distinct(ctx.ApproverUserIDs)
		if len(approvers) < c.MinimumApprovers {
			return []Violation{DistinctApproversViolation{
				RequiredApprovers: c.MinimumApprovers,
				DistinctApprovers: len(approvers),
				ApproverUserIDs:   approvers,
			}}
		}
		return nil

	case IncompatibleDuties:
		return evaluateIncompatibleDuties(c, ctx.PerformedDuties)

	case HazardousZoneNoSelfApproval:
		r := ctx.Robot
		if r == nil || !r.Hint.HazardousZone || r.MissionProposerUserID == "" {
			return nil
		}
		if contains(ctx.ApproverUserIDs, r.MissionProposerUserID) {
			return []Violation{HazardousZoneNoSelfApprovalViolation{MissionProposerUserID: r.MissionProposerUserID}}
		}
		return nil

	case SafetyClassifiedZoneDualApproval:
		if ctx.Robot == nil || !ctx.Robot.Hint.SafetyClassifiedZone {
			return nil
		}
		if n := len(Distinct(ctx.ApproverUserIDs)); n < dualApprovalMinimum {
			return []Violation{SafetyClassifiedZoneDualApprovalViolation{
				RequiredApprovers: dualApprovalMinimum,
				DistinctApprovers: n,
			}}
		}
		return nil

	case RemoteEstopRequesterSeparation:
		r := ctx.Robot
		if r == nil || !r.Hint.RemoteEstopRequest || r.EstopRequesterUserID == "" {
			return nil
		}
		if contains(ctx.ApproverUserIDs, r.EstopRequesterUserID) {
			return []Violation{RemoteEstopRequesterSeparationViolation{EstopRequesterUserID: r.EstopRequesterUserID}}
		}
		return nil

	case SpecialistApproval:
		if ctx.ApproverRoles == nil {
			return nil
		}
		approvers := Distinct(ctx.ApproverUserIDs)
		for _, id := range approvers {
			for _, role := range ctx.ApproverRoles[id] {
				if contains(c.RequiredRoles, role) {
					return nil
				}
			}
		}
		return []Violation{SpecialistApprovalViolation{
			RequiredRoles:   append([]string(nil), c.RequiredRoles...),
			ApproverUserIDs: approvers,
		}}

	default:
		panic(contracts.Unhandled("sod.Evaluate", c))
	}
}

func evaluateIncompatibleDuties(c IncompatibleDuties, duties []PerformedDuty) []Violation {
	if len(duties) == 0 {
		return nil
	}

	// Group by user, keeping first-seen order for both users and keys.
	var users []string
	byUser := make(map[string][]string)
	for _, d := range duties {
		keys, seen := byUser[d.UserID]
		if !seen {
			users = append(users, d.UserID)
		}
		if contains(c.DutyKeys, d.DutyKey) && !contains(keys, d.DutyKey) {
			keys = append(keys, d.DutyKey)
		}
		byUser[d.UserID] = keys
	}

	var out []Violation
	for _, u := range users {
		if keys := byUser[u]; len(keys) >= 2 {
			out = append(out, IncompatibleDutiesViolation{UserID: u, DutyKeys: keys})
		}
	}
	return out
}

// Distinct dedupes ids by identity, keeping first-seen order.
func Distinct(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
