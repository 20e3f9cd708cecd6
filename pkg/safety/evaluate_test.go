package safety_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/safety"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(r safety.Result) []safety.HazardCode {
	out := make([]safety.HazardCode, 0, len(r.HazardClassifications))
	for _, h := range r.HazardClassifications {
		out = append(out, h.Code)
	}
	return out
}

func TestEvaluate_EstopRequestRequiresApproval(t *testing.T) {
	got := safety.Evaluate(safety.Context{
		Operation:     safety.OpRobotEstopRequest,
		ExecutionTier: contracts.TierAssisted,
	})

	assert.Equal(t, []safety.HazardCode{safety.HazardRobotEstopRequest}, codes(got))
	assert.Equal(t, contracts.DecisionRequireApproval, got.Decision)
	assert.Equal(t, contracts.TierManualOnly, got.Recommendation)
}

func TestEvaluate_EstopRequestUnderManualOnlyStillRequiresApproval(t *testing.T) {
	got := safety.Evaluate(safety.Context{
		Operation:     safety.OpRobotEstopRequest,
		ExecutionTier: contracts.TierManualOnly,
	})
	assert.Equal(t, contracts.DecisionRequireApproval, got.Decision)
}

func TestEvaluate_HardStopAlwaysDenies(t *testing.T) {
	for _, tier := range contracts.ExecutionTiers {
		t.Run(string(tier), func(t *testing.T) {
			got := safety.Evaluate(safety.Context{
				Operation:     safety.OpRobotEstopRequest,
				ExecutionTier: tier,
				SafetyCase: &safety.SafetyCase{
					SafetyCaseID: "sc-1",
					AppliedConstraints: []safety.AppliedConstraint{
						{ConstraintID: "c1", Type: safety.ConstraintGeofence, Severity: safety.SeverityHardStop},
					},
				},
			})
			assert.Equal(t, contracts.DecisionDeny, got.Decision)
			assert.True(t, got.Has(safety.HazardHardStopConstraint))
		})
	}
}

func TestEvaluate_ConstraintMatchingSeveralRules(t *testing.T) {
	got := safety.Evaluate(safety.Context{
		Operation:     safety.OpRobotExecuteAction,
		ExecutionTier: contracts.TierHumanApprove,
		SafetyCase: &safety.SafetyCase{SafetyCaseID: "sc-1", AppliedConstraints: []safety.AppliedConstraint{
			{ConstraintID: "op", Type: safety.ConstraintOperatorRequired, Severity: safety.SeverityHardStop},
			{ConstraintID: "speed", Type: safety.ConstraintSpeedLimit, Severity: safety.SeverityHardStop},
		}},
	})

	assert.Equal(t, []safety.HazardCode{
		safety.HazardHardStopConstraint,
		safety.HazardOperatorRequiredConstraint,
		safety.HazardSpeedOrForceConstraint,
	}, codes(got))
	assert.Equal(t, contracts.DecisionDeny, got.Decision)
	assert.Equal(t, contracts.TierManualOnly, got.Recommendation)
}

func TestEvaluate_DecisionTable(t *testing.T) {
	proximity := safety.Context{Operation: safety.OpRobotExecuteAction, ProximityZoneActive: true}
	operator := safety.Context{
		Operation: safety.OpRobotExecuteAction,
		SafetyCase: &safety.SafetyCase{SafetyCaseID: "sc-1", AppliedConstraints: []safety.AppliedConstraint{
			{ConstraintID: "op", Type: safety.ConstraintOperatorRequired, Severity: safety.SeverityWarning},
		}},
	}
	calm := safety.Context{Operation: safety.OpRobotExecuteAction}

	tests := []struct {
		name string
		base safety.Context
		tier contracts.ExecutionTier
		want contracts.Decision
	}{
		{"no hazards auto", calm, contracts.TierAuto, contracts.DecisionAllow},
		{"human approve hazard auto", proximity, contracts.TierAuto, contracts.DecisionRequireApproval},
		{"human approve hazard assisted", proximity, contracts.TierAssisted, contracts.DecisionRequireApproval},
		{"human approve hazard human approve", proximity, contracts.TierHumanApprove, contracts.DecisionAllow},
		{"human approve hazard manual only", proximity, contracts.TierManualOnly, contracts.DecisionAllow},
		{"manual only hazard human approve", operator, contracts.TierHumanApprove, contracts.DecisionRequireApproval},
		{"manual only hazard manual only", operator, contracts.TierManualOnly, contracts.DecisionAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.base
			ctx.ExecutionTier = tt.tier
			assert.Equal(t, tt.want, safety.Evaluate(ctx).Decision)
		})
	}
}

func TestEvaluate_HazardCollection(t *testing.T) {
	t.Run("safety-classified robot", func(t *testing.T) {
		for _, r := range []safety.Robot{
			{RobotID: "r1", RobotClass: safety.RobotMobile, HazardClass: safety.HazardHigh},
			{RobotID: "r2", RobotClass: safety.RobotMobile, HazardClass: safety.HazardCritical},
			{RobotID: "r3", RobotClass: safety.RobotManipulator, HazardClass: safety.HazardLow},
			{RobotID: "r4", RobotClass: safety.RobotAerial, HazardClass: safety.HazardLow},
			{RobotID: "r5", RobotClass: safety.RobotHumanoid, HazardClass: safety.HazardMedium},
		} {
			r := r
			got := safety.Evaluate(safety.Context{Operation: safety.OpRobotExecuteAction, ExecutionTier: contracts.TierAuto, Robot: &r})
			assert.Equal(t, []safety.HazardCode{safety.HazardHighHazardRobotAction}, codes(got), r.RobotID)
		}
	})

	t.Run("benign robot", func(t *testing.T) {
		got := safety.Evaluate(safety.Context{
			Operation:     safety.OpRobotExecuteAction,
			ExecutionTier: contracts.TierAuto,
			Robot:         &safety.Robot{RobotID: "r1", RobotClass: safety.RobotStationary, HazardClass: safety.HazardLow},
		})
		assert.Empty(t, got.HazardClassifications)
		assert.Equal(t, contracts.DecisionAllow, got.Decision)
		assert.Empty(t, got.Recommendation)
	})

	t.Run("robot class ignored for other operations", func(t *testing.T) {
		got := safety.Evaluate(safety.Context{
			Operation:     safety.OpActuatorSetState,
			ExecutionTier: contracts.TierAuto,
			Robot:         &safety.Robot{RobotID: "r1", RobotClass: safety.RobotHumanoid, HazardClass: safety.HazardCritical},
		})
		assert.Empty(t, got.HazardClassifications)
	})

	t.Run("actuator", func(t *testing.T) {
		for _, tt := range []struct {
			state safety.ActuatorState
			want  bool
		}{
			{safety.ActuatorState{StateKey: "valve", Reversible: true}, false},
			{safety.ActuatorState{StateKey: "valve", Reversible: false}, true},
			{safety.ActuatorState{StateKey: "valve", Reversible: true, SafetyClassified: true}, true},
		} {
			st := tt.state
			got := safety.Evaluate(safety.Context{Operation: safety.OpActuatorSetState, ExecutionTier: contracts.TierAuto, ActuatorState: &st})
			assert.Equal(t, tt.want, got.Has(safety.HazardActuatorSafetyClassifiedStateChange))
		}
	})

	t.Run("safety case constraints", func(t *testing.T) {
		got := safety.Evaluate(safety.Context{
			Operation:     safety.OpRobotExecuteAction,
			ExecutionTier: contracts.TierHumanApprove,
			SafetyCase: &safety.SafetyCase{SafetyCaseID: "sc-1", AppliedConstraints: []safety.AppliedConstraint{
				{ConstraintID: "a", Type: safety.ConstraintOperatorRequired, Severity: safety.SeverityAdvisory},
				{ConstraintID: "b", Type: safety.ConstraintSpeedLimit, Severity: safety.SeverityWarning},
				{ConstraintID: "c", Type: safety.ConstraintPayloadLimit, Severity: safety.SeverityAdvisory},
				{ConstraintID: "d", Type: safety.ConstraintGeofence, Severity: safety.SeverityWarning},
			}},
		})
		assert.Equal(t, []safety.HazardCode{safety.HazardSpeedOrForceConstraint}, codes(got))
		assert.Equal(t, contracts.TierHumanApprove, got.Recommendation)
		assert.Equal(t, contracts.DecisionAllow, got.Decision)
	})
}

func TestEvaluate_DedupAndOrder(t *testing.T) {
	got := safety.Evaluate(safety.Context{
		Operation:           safety.OpRobotExecuteAction,
		ExecutionTier:       contracts.TierAssisted,
		ProximityZoneActive: true,
		Robot:               &safety.Robot{RobotID: "arm-7", RobotClass: safety.RobotManipulator, HazardClass: safety.HazardHigh},
		SafetyCase: &safety.SafetyCase{SafetyCaseID: "sc-1", AppliedConstraints: []safety.AppliedConstraint{
			{ConstraintID: "s1", Type: safety.ConstraintSpeedLimit, Severity: safety.SeverityWarning},
			{ConstraintID: "s2", Type: safety.ConstraintProximityZone, Severity: safety.SeverityWarning},
		}},
	})

	require.Equal(t, []safety.HazardCode{
		safety.HazardRobotExecuteInProximityZone,
		safety.HazardHighHazardRobotAction,
		safety.HazardSpeedOrForceConstraint,
	}, codes(got))
	assert.Contains(t, got.HazardClassifications[2].Reason, "s1")
	for _, h := range got.HazardClassifications {
		assert.Equal(t, safety.StandardsRef, h.StandardsRef)
		assert.NotEmpty(t, h.Reason)
	}
	assert.Equal(t, contracts.DecisionRequireApproval, got.Decision)
}

func TestResult_JSON(t *testing.T) {
	data, err := json.Marshal(safety.Evaluate(safety.Context{Operation: "noop", ExecutionTier: contracts.TierAuto}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"Allow","hazardClassifications":[]}`, string(data))
}

func TestParseContext(t *testing.T) {
	ctx, err := safety.ParseContext([]byte(`{
		"operation": "robot:execute_action",
		"executionTier": "HumanApprove",
		"robot": {"robotId": "arm-7", "robotClass": "Manipulator", "hazardClass": "High"},
		"proximityZoneActive": true
	}`))
	require.NoError(t, err)
	assert.Equal(t, safety.OpRobotExecuteAction, ctx.Operation)
	assert.Equal(t, contracts.TierHumanApprove, ctx.ExecutionTier)
	require.NotNil(t, ctx.Robot)
	assert.Equal(t, safety.RobotManipulator, ctx.Robot.RobotClass)
	assert.True(t, ctx.ProximityZoneActive)
}

func TestParseContext_Rejections(t *testing.T) {
	for name, doc := range map[string]string{
		"missing tier":        `{"operation":"robot:estop_request"}`,
		"unknown tier":        `{"operation":"robot:estop_request","executionTier":"Yolo"}`,
		"unknown severity":    `{"operation":"x","executionTier":"Auto","safetyCase":{"safetyCaseId":"s","appliedConstraints":[{"constraintId":"c","type":"HardStop","severity":"Fatal"}]}}`,
		"unknown hazard":      `{"operation":"x","executionTier":"Auto","robot":{"robotId":"r","robotClass":"Mobile","hazardClass":"Extreme"}}`,
		"unexpected property": `{"operation":"x","executionTier":"Auto","speed":3}`,
		"malformed":           `{"operation":`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := safety.ParseContext([]byte(doc))
			require.Error(t, err)
			var verr *contracts.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}
