package governance

import (
	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

// Result is the aggregate outcome of one or more policies.
// EvaluatedPolicyIDs is an audit trail: it lists every policy considered,
// including those that produced no violations.
type Result struct {
	Decision           contracts.Decision `json:"decision"`
	Violations         sod.Violations     `json:"violations"`
	EvaluatedPolicyIDs []string           `json:"evaluatedPolicyIds"`
}

// severityTable maps each violation kind to the decision it forces.
// Duty-separation breaches deny; quorum and self-approval breaches escalate.
var severityTable = []struct {
	kind     sod.Kind
	decision contracts.Decision
}{
	{sod.KindIncompatibleDuties, contracts.DecisionDeny},
	{sod.KindMakerChecker, contracts.DecisionRequireApproval},
	{sod.KindDistinctApprovers, contracts.DecisionRequireApproval},
	{sod.KindHazardousZoneNoSelfApproval, contracts.DecisionRequireApproval},
	{sod.KindSafetyClassifiedZoneDualApproval, contracts.DecisionRequireApproval},
	{sod.KindRemoteEstopRequesterSeparation, contracts.DecisionRequireApproval},
	{sod.KindSpecialistApproval, contracts.DecisionRequireApproval},
}

// DecisionForViolation looks up the severity of v. A violation kind
// missing from the table is a programming error and panics.
func DecisionForViolation(v sod.Violation) contracts.Decision {
	k := v.Kind()
	for _, row := range severityTable {
		if row.kind == k {
			return row.decision
		}
	}
	panic(contracts.Unhandled("governance.DecisionForViolation", v))
}

// EvaluateOne runs the SoD evaluator for a single policy.
func EvaluateOne(p Policy, ctx sod.Context) Result {
	violations := sod.Evaluate(p.SodConstraints, ctx)
	decision := contracts.DecisionAllow
	for _, v := range violations {
		decision = contracts.MostRestrictive(decision, DecisionForViolation(v))
	}
	return Result{
		Decision:           decision,
		Violations:         violations,
		EvaluatedPolicyIDs: []string{p.PolicyID},
	}
}

// EvaluateMany aggregates policies: the decision is the most restrictive
// per-policy decision, violations are concatenated in input order.
func EvaluateMany(policies []Policy, ctx sod.Context) Result {
	out := Result{
		Decision:           contracts.DecisionAllow,
		Violations:         sod.Violations{},
		EvaluatedPolicyIDs: make([]string, 0, len(policies)),
	}
	for _, p := range policies {
		r := EvaluateOne(p, ctx)
		out.Decision = contracts.MostRestrictive(out.Decision, r.Decision)
		out.Violations = append(out.Violations, r.Violations...)
		out.EvaluatedPolicyIDs = append(out.EvaluatedPolicyIDs, p.PolicyID)
	}
	return out
}
