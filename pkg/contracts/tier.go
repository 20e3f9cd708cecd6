package contracts

// ExecutionTier is the governance mode an action runs under.
type ExecutionTier string

// Execution tiers, from fully autonomous to no automation.
const (
	TierAuto         ExecutionTier = "Auto"
	TierAssisted     ExecutionTier = "Assisted"
	TierHumanApprove ExecutionTier = "HumanApprove"
	TierManualOnly   ExecutionTier = "ManualOnly"
)

// ExecutionTiers lists every known tier in ascending order of human control.
var ExecutionTiers = []ExecutionTier{TierAuto, TierAssisted, TierHumanApprove, TierManualOnly}

// Valid reports whether t is a known execution tier.
func (t ExecutionTier) Valid() bool {
	for _, known := range ExecutionTiers {
		if t == known {
			return true
		}
	}
	return false
}

// ParseExecutionTier validates s as an execution tier.
func ParseExecutionTier(s string) (ExecutionTier, error) {
	t := ExecutionTier(s)
	if !t.Valid() {
		return "", Invalid("ExecutionTier", "executionTier", "unknown execution tier %q", s)
	}
	return t, nil
}
