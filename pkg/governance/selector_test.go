package governance_test

import (
	"testing"

	"github.com/45ck/Portarium-sub009/pkg/governance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(ps []governance.Policy) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.PolicyID)
	}
	return out
}

func TestSelector_Select(t *testing.T) {
	sel, err := governance.NewSelector(nil)
	require.NoError(t, err)

	policies := []governance.Policy{
		{PolicyID: "always-low", Active: true, Priority: 1},
		{PolicyID: "inactive", Active: false, Priority: 100},
		{PolicyID: "payments", Active: true, Priority: 10, AppliesWhen: `operation.startsWith("payment:")`},
		{PolicyID: "robots", Active: true, Priority: 10, AppliesWhen: `operation.startsWith("robot:")`},
		{PolicyID: "big-amounts", Active: true, Priority: 5, AppliesWhen: `attributes.amount > 10000`},
		{PolicyID: "always-high", Active: true, Priority: 10},
	}

	got, err := sel.Select(policies, governance.Subject{
		Operation:   "payment:release",
		WorkspaceID: "ws-1",
		Attributes:  map[string]any{"amount": 25000},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"payments", "always-high", "big-amounts", "always-low"}, ids(got))
}

func TestSelector_EvaluationErrorIncludesPolicy(t *testing.T) {
	sel, err := governance.NewSelector(nil)
	require.NoError(t, err)

	got, err := sel.Select([]governance.Policy{
		{PolicyID: "needs-region", Active: true, AppliesWhen: `attributes.region == "eu"`},
	}, governance.Subject{Operation: "payment:release"})
	require.NoError(t, err)
	assert.Equal(t, []string{"needs-region"}, ids(got))
}

func TestSelector_WorkspaceScope(t *testing.T) {
	sel, err := governance.NewSelector(nil)
	require.NoError(t, err)

	policies := []governance.Policy{{PolicyID: "ws-only", Active: true, AppliesWhen: `workspaceId == "ws-1"`}}

	got, err := sel.Select(policies, governance.Subject{WorkspaceID: "ws-2"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = sel.Select(policies, governance.Subject{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSelector_CompileRejections(t *testing.T) {
	sel, err := governance.NewSelector(nil)
	require.NoError(t, err)

	for name, expr := range map[string]string{
		"syntax":        `operation ==`,
		"not bool":      `operation + "x"`,
		"unknown ident": `tenant == "a"`,
		"clock":         `timestamp("2026-01-01T00:00:00Z") > timestamp("2025-01-01T00:00:00Z")`,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, sel.Compile(expr))
		})
	}

	_, err = sel.Select([]governance.Policy{{PolicyID: "bad", Active: true, AppliesWhen: `operation ==`}}, governance.Subject{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy bad")
}

func TestCheckDeterministic(t *testing.T) {
	assert.NoError(t, governance.CheckDeterministic(`operation == "now"`))
	assert.NoError(t, governance.CheckDeterministic(`attributes.duration_hours > 2`))
	assert.Error(t, governance.CheckDeterministic(`now() > 0`))
	assert.Error(t, governance.CheckDeterministic(`x.getHours () == 3`))
}
