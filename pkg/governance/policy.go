// Package governance aggregates separation-of-duties outcomes across
// policies into a single decision and selects which policies apply to a
// request.
package governance

import (
	"strings"

	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

// Policy is a named bundle of SoD constraints.
type Policy struct {
	PolicyID       string          `json:"policyId"`
	Name           string          `json:"name,omitempty"`
	SodConstraints sod.Constraints `json:"sodConstraints,omitempty"`
	Active         bool            `json:"active"`
	// Priority orders selected policies, highest first.
	Priority int `json:"priority,omitempty"`
	// AppliesWhen is an optional CEL predicate over operation, workspaceId
	// and attributes. Empty means always.
	AppliesWhen string `json:"appliesWhen,omitempty"`
}

// Validate checks the structural invariants of a policy.
func (p Policy) Validate() error {
	if strings.TrimSpace(p.PolicyID) == "" {
		return contracts.Invalid("Policy", "policyId", "must not be empty")
	}
	if p.Priority < 0 {
		return contracts.Invalid("Policy", "priority", "must be >= 0, got %d", p.Priority)
	}
	return nil
}
