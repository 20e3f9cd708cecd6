package safety

import (
	"fmt"

	"github.com/45ck/Portarium-sub009/pkg/contracts"
)

// Evaluate classifies the hazards of ctx and derives a decision.
//
// Decision precedence:
//  1. a HardStopConstraint hazard denies outright
//  2. no hazard allows
//  3. an e-stop request always requires approval, whatever the tier
//  4. a ManualOnly recommendation allows only under the ManualOnly tier
//  5. Auto and Assisted tiers require approval for any remaining hazard
//  6. HumanApprove and ManualOnly tiers allow
func Evaluate(ctx Context) Result {
	hazards := classify(ctx)
	rec := recommend(hazards)
	return Result{
		Decision:              decide(ctx.ExecutionTier, rec, hazards),
		Recommendation:        rec,
		HazardClassifications: hazards,
	}
}

func classify(ctx Context) []HazardClassification {
	out := make([]HazardClassification, 0, 4)
	add := func(code HazardCode, tier contracts.ExecutionTier, reason string) {
		if hasCode(out, code) {
			return
		}
		out = append(out, HazardClassification{
			Code:            code,
			RecommendedTier: tier,
			Reason:          reason,
			StandardsRef:    StandardsRef,
		})
	}

	switch ctx.Operation {
	case OpRobotEstopRequest:
		add(HazardRobotEstopRequest, contracts.TierManualOnly,
			"Emergency stop requests halt a physical system and must be handled by a human operator.")
	case OpRobotExecuteAction:
		if ctx.ProximityZoneActive {
			add(HazardRobotExecuteInProximityZone, contracts.TierHumanApprove,
				"The robot would act while a human proximity zone is active.")
		}
	case OpActuatorSetState:
		if a := ctx.ActuatorState; a != nil && (!a.Reversible || a.SafetyClassified) {
			add(HazardActuatorSafetyClassifiedStateChange, contracts.TierHumanApprove,
				fmt.Sprintf("Actuator state %q is irreversible or safety-classified.", a.StateKey))
		}
	}

	if ctx.Operation == OpRobotExecuteAction && ctx.Robot != nil && ctx.Robot.SafetyClassified() {
		add(HazardHighHazardRobotAction, contracts.TierHumanApprove,
			fmt.Sprintf("Robot %s is safety-classified (%s, hazard class %s).",
				ctx.Robot.RobotID, ctx.Robot.RobotClass, ctx.Robot.HazardClass))
	}

	if ctx.SafetyCase != nil {
		for _, c := range ctx.SafetyCase.AppliedConstraints {
			if c.Severity == SeverityHardStop {
				add(HazardHardStopConstraint, contracts.TierManualOnly,
					fmt.Sprintf("Safety case constraint %s carries HardStop severity.", c.ConstraintID))
			}
			if c.Type == ConstraintOperatorRequired && c.Severity != SeverityAdvisory {
				add(HazardOperatorRequiredConstraint, contracts.TierManualOnly,
					fmt.Sprintf("Safety case constraint %s requires an operator on site.", c.ConstraintID))
			}
			if c.Type == ConstraintSpeedLimit || c.Type == ConstraintPayloadLimit || c.Type == ConstraintProximityZone {
				add(HazardSpeedOrForceConstraint, contracts.TierHumanApprove,
					fmt.Sprintf("Safety case constraint %s limits speed, force or reach (%s).", c.ConstraintID, c.Type))
			}
		}
	}
	return out
}

func recommend(hazards []HazardClassification) contracts.ExecutionTier {
	var rec contracts.ExecutionTier
	for _, h := range hazards {
		switch h.RecommendedTier {
		case contracts.TierManualOnly:
			return contracts.TierManualOnly
		case contracts.TierHumanApprove:
			rec = contracts.TierHumanApprove
		}
	}
	return rec
}

func decide(tier, rec contracts.ExecutionTier, hazards []HazardClassification) contracts.Decision {
	switch {
	case hasCode(hazards, HazardHardStopConstraint):
		return contracts.DecisionDeny
	case rec == "":
		return contracts.DecisionAllow
	case hasCode(hazards, HazardRobotEstopRequest):
		return contracts.DecisionRequireApproval
	case rec == contracts.TierManualOnly:
		if tier == contracts.TierManualOnly {
			return contracts.DecisionAllow
		}
		return contracts.DecisionRequireApproval
	case tier == contracts.TierAuto || tier == contracts.TierAssisted:
		return contracts.DecisionRequireApproval
	default:
		return contracts.DecisionAllow
	}
}
