package gate

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/governance"
	"github.com/45ck/Portarium-sub009/pkg/observability"
	"github.com/45ck/Portarium-sub009/pkg/safety"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

// DispatchRequest asks whether a workflow or robot action may be
// dispatched at its execution tier.
type DispatchRequest struct {
	Safety      safety.Context
	WorkspaceID string

	// Policies are optional. When present they are evaluated against SoD
	// and combined with the safety decision.
	Policies   []governance.Policy
	SoD        sod.Context
	Attributes map[string]any
}

// DispatchBody is the hashed part of a DispatchVerdict.
type DispatchBody struct {
	Operation             safety.Operation              `json:"operation"`
	ExecutionTier         contracts.ExecutionTier       `json:"executionTier"`
	Decision              contracts.Decision            `json:"decision"`
	SafetyDecision        contracts.Decision            `json:"safetyDecision"`
	Recommendation        contracts.ExecutionTier       `json:"recommendation,omitempty"`
	HazardClassifications []safety.HazardClassification `json:"hazardClassifications"`
	Violations            sod.Violations                `json:"violations"`
	EvaluatedPolicyIDs    []string                      `json:"evaluatedPolicyIds"`
}

// DispatchVerdict is the gate's answer to a DispatchRequest.
type DispatchVerdict struct {
	DispatchBody
	Receipt Receipt `json:"receipt"`
}

// CheckDispatch runs the safety classifier and, when policies are
// supplied, the policy aggregator. The final decision is the most
// restrictive of the two.
func (g *Gate) CheckDispatch(ctx context.Context, req DispatchRequest) (v *DispatchVerdict, err error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "gate.CheckDispatch", trace.WithAttributes(
		observability.AttrOperation.String(string(req.Safety.Operation)),
		observability.AttrWorkspaceID.String(req.WorkspaceID),
	))
	var attrs []attribute.KeyValue
	defer func() { g.finish(ctx, span, start, "dispatch", attrs, err) }()

	if !req.Safety.ExecutionTier.Valid() {
		return nil, contracts.Invalid("SafetyContext", "executionTier", "unknown tier %q", req.Safety.ExecutionTier)
	}

	sr := safety.Evaluate(req.Safety)
	body := DispatchBody{
		Operation:             req.Safety.Operation,
		ExecutionTier:         req.Safety.ExecutionTier,
		SafetyDecision:        sr.Decision,
		Recommendation:        sr.Recommendation,
		HazardClassifications: sr.HazardClassifications,
		Violations:            sod.Violations{},
		EvaluatedPolicyIDs:    []string{},
	}
	decision := sr.Decision

	if len(req.Policies) > 0 {
		policies, err := g.applicable(req.Policies, governance.Subject{
			Operation:   string(req.Safety.Operation),
			WorkspaceID: req.WorkspaceID,
			Attributes:  req.Attributes,
		})
		if err != nil {
			return nil, fmt.Errorf("gate: select policies: %w", err)
		}
		result := g.evaluator.EvaluateMany(ctx, policies, req.SoD)
		body.Violations = result.Violations
		body.EvaluatedPolicyIDs = result.EvaluatedPolicyIDs
		decision = contracts.MostRestrictive(decision, result.Decision)
		attrs = append(attrs,
			observability.AttrPolicyCount.Int(len(policies)),
			observability.AttrViolations.Int(len(result.Violations)),
		)
	}
	body.Decision = decision
	attrs = append(attrs,
		observability.AttrDecision.String(string(decision)),
		observability.AttrHazards.Int(len(sr.HazardClassifications)),
	)

	receipt, err := g.issueReceipt(string(req.Safety.Operation), decision, "", body)
	if err != nil {
		return nil, err
	}

	logArgs := []any{
		"operation", req.Safety.Operation,
		"tier", req.Safety.ExecutionTier,
		"decision", decision,
		"hazards", len(sr.HazardClassifications),
		"violations", len(body.Violations),
		"receipt_id", receipt.ReceiptID,
	}
	if decision == contracts.DecisionAllow {
		g.logger.InfoContext(ctx, "dispatch allowed", logArgs...)
	} else {
		g.logger.WarnContext(ctx, "dispatch gated", append(logArgs, "recommendation", sr.Recommendation)...)
	}

	return &DispatchVerdict{DispatchBody: body, Receipt: receipt}, nil
}
