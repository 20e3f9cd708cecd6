package gate_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/45ck/Portarium-sub009/pkg/approval"
	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/evalcache"
	"github.com/45ck/Portarium-sub009/pkg/gate"
	"github.com/45ck/Portarium-sub009/pkg/governance"
	"github.com/45ck/Portarium-sub009/pkg/safety"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	gate   *gate.Gate
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	g, err := gate.New()
	require.NoError(t, err)

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	require.NoError(t, g.SetTelemetry(tp.Tracer("test"), mp.Meter("test")))

	g.SetClock(func() time.Time { return fixedNow })
	g.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &harness{gate: g, spans: spans, reader: reader}
}

func (h *harness) checkCount(t *testing.T) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, h.reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "portarium.gate.checks" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func pending(t *testing.T) approval.Pending {
	t.Helper()
	p, err := approval.NewPending(approval.Request{
		ApprovalID:        "ap-1",
		WorkspaceID:       "ws-1",
		RunID:             "run-1",
		PlanID:            "plan-1",
		Prompt:            "Release payment batch 42",
		RequestedAt:       fixedNow.Add(-time.Hour),
		RequestedByUserID: "u1",
	})
	require.NoError(t, err)
	return p
}

func makerChecker() []governance.Policy {
	return []governance.Policy{{PolicyID: "PAY-001", Active: true, SodConstraints: sod.Constraints{sod.MakerChecker{}}}}
}

func TestCheckDecision_SelfApprovalForbidden(t *testing.T) {
	h := newHarness(t)

	v, err := h.gate.CheckDecision(context.Background(), gate.DecisionRequest{
		Approval:       pending(t),
		DecidingUserID: "u1",
		Policies:       makerChecker(),
		Operation:      "payment:release",
	})
	require.NoError(t, err)

	assert.Equal(t, gate.OutcomeForbidden, v.Outcome)
	assert.False(t, v.Permitted())
	assert.Equal(t, contracts.DecisionRequireApproval, v.Decision)
	require.NotNil(t, v.Evaluation)
	require.Len(t, v.Evaluation.Violations, 1)
	assert.Equal(t, sod.MakerCheckerViolation{InitiatorUserID: "u1"}, v.Evaluation.Violations[0])
	assert.Equal(t, []string{"PAY-001"}, v.Evaluation.EvaluatedPolicyIDs)
}

func TestCheckDecision_OtherUserPermitted(t *testing.T) {
	h := newHarness(t)

	v, err := h.gate.CheckDecision(context.Background(), gate.DecisionRequest{
		Approval:       pending(t),
		DecidingUserID: "u2",
		Policies:       makerChecker(),
	})
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomePermitted, v.Outcome)
	assert.Equal(t, contracts.DecisionAllow, v.Decision)
	assert.Empty(t, v.Reason)
}

func TestCheckDecision_PriorApproversCount(t *testing.T) {
	policies := []governance.Policy{{PolicyID: "Q-2", Active: true, SodConstraints: sod.Constraints{sod.DistinctApprovers{MinimumApprovers: 2}}}}
	tests := []struct {
		name  string
		prior []string
		want  gate.Outcome
	}{
		{"second distinct approver", []string{"u2"}, gate.OutcomePermitted},
		{"same approver twice", []string{"u3"}, gate.OutcomeForbidden},
		{"first approver", nil, gate.OutcomeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := newHarness(t).gate.CheckDecision(context.Background(), gate.DecisionRequest{
				Approval:             pending(t),
				DecidingUserID:       "u3",
				PriorApproverUserIDs: tt.prior,
				Policies:             policies,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Outcome)
		})
	}
}

type panickyEvaluator struct{ t *testing.T }

func (p panickyEvaluator) EvaluateMany(context.Context, []governance.Policy, sod.Context) governance.Result {
	p.t.Fatal("policies must not be evaluated")
	return governance.Result{}
}

func TestCheckDecision_DecidedIsConflict(t *testing.T) {
	h := newHarness(t)
	h.gate.SetEvaluator(panickyEvaluator{t})

	decided, err := approval.Decide(pending(t), approval.Resolution{
		Outcome:         approval.StatusApproved,
		DecidedAt:       fixedNow,
		DecidedByUserID: "u2",
		Rationale:       "ok",
	})
	require.NoError(t, err)

	v, err := h.gate.CheckDecision(context.Background(), gate.DecisionRequest{
		Approval:       decided,
		DecidingUserID: "u3",
		Policies:       makerChecker(),
	})
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomeConflict, v.Outcome)
	assert.Nil(t, v.Evaluation)
	assert.Contains(t, v.Reason, "Approved")
}

func TestCheckDecision_InactivePoliciesIgnored(t *testing.T) {
	policies := makerChecker()
	policies[0].Active = false

	v, err := newHarness(t).gate.CheckDecision(context.Background(), gate.DecisionRequest{
		Approval:       pending(t),
		DecidingUserID: "u1",
		Policies:       policies,
	})
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomePermitted, v.Outcome)
	assert.Empty(t, v.Evaluation.EvaluatedPolicyIDs)
}

func TestCheckDecision_SelectorNarrowsPolicies(t *testing.T) {
	h := newHarness(t)
	sel, err := governance.NewSelector(nil)
	require.NoError(t, err)
	h.gate.SetSelector(sel)

	policies := makerChecker()
	policies[0].AppliesWhen = "operation == 'payment:release'"

	v, err := h.gate.CheckDecision(context.Background(), gate.DecisionRequest{
		Approval:       pending(t),
		DecidingUserID: "u1",
		Policies:       policies,
		Operation:      "invoice:archive",
	})
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomePermitted, v.Outcome)

	v, err = h.gate.CheckDecision(context.Background(), gate.DecisionRequest{
		Approval:       pending(t),
		DecidingUserID: "u1",
		Policies:       policies,
		Operation:      "payment:release",
	})
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomeForbidden, v.Outcome)
}

func TestCheckDecision_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.gate.CheckDecision(context.Background(), gate.DecisionRequest{DecidingUserID: "u1"})
	assert.True(t, errors.Is(err, contracts.ErrValidation))

	_, err = h.gate.CheckDecision(context.Background(), gate.DecisionRequest{Approval: pending(t)})
	assert.True(t, errors.Is(err, contracts.ErrValidation))

	ended := h.spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestCheckDecision_ReceiptAndTelemetry(t *testing.T) {
	h := newHarness(t)

	v, err := h.gate.CheckDecision(context.Background(), gate.DecisionRequest{
		Approval:       pending(t),
		DecidingUserID: "u1",
		Policies:       makerChecker(),
		Operation:      "payment:release",
	})
	require.NoError(t, err)

	_, err = uuid.Parse(v.Receipt.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, "ap-1", v.Receipt.Subject)
	assert.Equal(t, fixedNow, v.Receipt.EvaluatedAt)
	assert.Equal(t, gate.OutcomeForbidden, v.Receipt.Outcome)

	ok, err := gate.VerifyReceipt(v.Receipt, v.DecisionBody)
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := v.DecisionBody
	tampered.Outcome = gate.OutcomePermitted
	ok, err = gate.VerifyReceipt(v.Receipt, tampered)
	require.NoError(t, err)
	assert.False(t, ok)

	ended := h.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "gate.CheckDecision", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("portarium.outcome", "Forbidden"))
	assert.Contains(t, ended[0].Attributes(), attribute.String("portarium.approval_id", "ap-1"))
	assert.Equal(t, int64(1), h.checkCount(t))
}

func TestCheckDispatch_SafetyOnly(t *testing.T) {
	tests := []struct {
		name string
		ctx  safety.Context
		want contracts.Decision
	}{
		{
			name: "estop request",
			ctx:  safety.Context{Operation: safety.OpRobotEstopRequest, ExecutionTier: contracts.TierAssisted},
			want: contracts.DecisionRequireApproval,
		},
		{
			name: "hard stop",
			ctx: safety.Context{
				Operation:     safety.OpRobotExecuteAction,
				ExecutionTier: contracts.TierManualOnly,
				SafetyCase: &safety.SafetyCase{SafetyCaseID: "sc-1", AppliedConstraints: []safety.AppliedConstraint{
					{ConstraintID: "c1", Type: safety.ConstraintHardStop, Severity: safety.SeverityHardStop},
				}},
			},
			want: contracts.DecisionDeny,
		},
		{
			name: "plain workflow step",
			ctx:  safety.Context{Operation: "workflow:dispatch", ExecutionTier: contracts.TierAuto},
			want: contracts.DecisionAllow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := newHarness(t).gate.CheckDispatch(context.Background(), gate.DispatchRequest{Safety: tt.ctx})
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Decision)
			assert.Equal(t, tt.want, v.SafetyDecision)
			assert.NotNil(t, v.HazardClassifications)
			assert.Empty(t, v.Violations)
			assert.Empty(t, v.Receipt.Outcome)
		})
	}
}

func TestCheckDispatch_PoliciesAreMostRestrictive(t *testing.T) {
	h := newHarness(t)
	policies := []governance.Policy{{PolicyID: "DUT-1", Active: true, SodConstraints: sod.Constraints{
		sod.IncompatibleDuties{DutyKeys: []string{"payment:initiate", "payment:approve"}},
	}}}

	v, err := h.gate.CheckDispatch(context.Background(), gate.DispatchRequest{
		Safety:      safety.Context{Operation: safety.OpRobotEstopRequest, ExecutionTier: contracts.TierManualOnly},
		WorkspaceID: "ws-1",
		Policies:    policies,
		SoD: sod.Context{
			InitiatorUserID: "u1",
			ApproverUserIDs: []string{"u2"},
			PerformedDuties: []sod.PerformedDuty{
				{UserID: "u9", DutyKey: "payment:initiate"},
				{UserID: "u9", DutyKey: "payment:approve"},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, contracts.DecisionRequireApproval, v.SafetyDecision)
	assert.Equal(t, contracts.DecisionDeny, v.Decision)
	assert.Equal(t, contracts.TierManualOnly, v.Recommendation)
	assert.Equal(t, []string{"DUT-1"}, v.EvaluatedPolicyIDs)
	require.Len(t, v.Violations, 1)

	ok, err := gate.VerifyReceipt(v.Receipt, v.DispatchBody)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckDispatch_CachedEvaluator(t *testing.T) {
	h := newHarness(t)
	cache := evalcache.NewEvaluator(evalcache.NewMemoryStore(), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.gate.SetEvaluator(cache)

	req := gate.DispatchRequest{
		Safety:   safety.Context{Operation: "workflow:dispatch", ExecutionTier: contracts.TierAuto},
		Policies: makerChecker(),
		SoD:      sod.Context{InitiatorUserID: "u1", ApproverUserIDs: []string{"u1"}},
	}
	first, err := h.gate.CheckDispatch(context.Background(), req)
	require.NoError(t, err)
	second, err := h.gate.CheckDispatch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, contracts.DecisionRequireApproval, first.Decision)
	assert.Equal(t, first.DispatchBody, second.DispatchBody)
	assert.NotEqual(t, first.Receipt.ReceiptID, second.Receipt.ReceiptID)
	assert.Equal(t, evalcache.Stats{Hits: 1, Misses: 1}, cache.Stats())
	assert.Equal(t, int64(2), h.checkCount(t))
}

func TestCheckDispatch_InvalidTier(t *testing.T) {
	h := newHarness(t)
	_, err := h.gate.CheckDispatch(context.Background(), gate.DispatchRequest{
		Safety: safety.Context{Operation: safety.OpRobotEstopRequest, ExecutionTier: "Yolo"},
	})
	assert.True(t, errors.Is(err, contracts.ErrValidation))
	require.Len(t, h.spans.Ended(), 1)
	assert.Equal(t, codes.Error, h.spans.Ended()[0].Status().Code)
}
