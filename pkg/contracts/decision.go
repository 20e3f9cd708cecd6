package contracts

import (
	"encoding/json"
	"fmt"
)

// Decision is the verdict of the governance core for a proposed action.
type Decision string

// Decision constants.
const (
	DecisionAllow           Decision = "Allow"
	DecisionRequireApproval Decision = "RequireApproval"
	DecisionDeny            Decision = "Deny"
)

// decisionRank is the total order used for most-restrictive-wins
// aggregation: Deny > RequireApproval > Allow.
var decisionRank = map[Decision]int{
	DecisionAllow:           0,
	DecisionRequireApproval: 1,
	DecisionDeny:            2,
}

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	_, ok := decisionRank[d]
	return ok
}

// Rank returns the position of d in the restrictiveness order.
// Unknown decisions rank above Deny so that they never weaken a result.
func (d Decision) Rank() int {
	if r, ok := decisionRank[d]; ok {
		return r
	}
	return len(decisionRank)
}

// MoreRestrictiveThan reports whether d is strictly stricter than other.
func (d Decision) MoreRestrictiveThan(other Decision) bool {
	return d.Rank() > other.Rank()
}

// MostRestrictive returns the strictest decision among ds.
// With no arguments it returns DecisionAllow.
func MostRestrictive(ds ...Decision) Decision {
	out := DecisionAllow
	for _, d := range ds {
		if d.MoreRestrictiveThan(out) {
			out = d
		}
	}
	return out
}

// UnmarshalJSON rejects unknown decision values.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := Decision(s)
	if !v.Valid() {
		return fmt.Errorf("contracts: unknown decision %q", s)
	}
	*d = v
	return nil
}
