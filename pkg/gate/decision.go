package gate

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/45ck/Portarium-sub009/pkg/approval"
	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/governance"
	"github.com/45ck/Portarium-sub009/pkg/observability"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

// DecisionRequest asks whether DecidingUserID may record a decision on
// Approval.
type DecisionRequest struct {
	Approval       approval.Approval
	DecidingUserID string
	// PriorApproverUserIDs are users who already approved earlier steps of
	// the same run. The deciding user is added to them.
	PriorApproverUserIDs []string
	PerformedDuties      []sod.PerformedDuty
	ApproverRoles        map[string][]string
	Robot                *sod.RobotContext

	Policies []governance.Policy
	// Operation and Attributes feed appliesWhen selection.
	Operation  string
	Attributes map[string]any
}

// DecisionBody is the hashed part of a Verdict.
type DecisionBody struct {
	ApprovalID     string             `json:"approvalId"`
	DecidingUserID string             `json:"decidingUserId"`
	Outcome        Outcome            `json:"outcome"`
	Decision       contracts.Decision `json:"decision"`
	Reason         string             `json:"reason,omitempty"`
	Evaluation     *governance.Result `json:"evaluation,omitempty"`
}

// Verdict is the gate's answer to a DecisionRequest.
type Verdict struct {
	DecisionBody
	Receipt Receipt `json:"receipt"`
}

// Permitted reports whether the caller may apply the decision.
func (v *Verdict) Permitted() bool { return v.Outcome == OutcomePermitted }

// CheckDecision evaluates a decision attempt. A Decided approval yields
// Conflict without running any policy; otherwise the aggregate over the
// applicable policies must be Allow for the attempt to be Permitted.
func (g *Gate) CheckDecision(ctx context.Context, req DecisionRequest) (v *Verdict, err error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "gate.CheckDecision", trace.WithAttributes(
		observability.AttrOperation.String(req.Operation),
	))
	var attrs []attribute.KeyValue
	defer func() { g.finish(ctx, span, start, "decision", attrs, err) }()

	if req.Approval == nil {
		return nil, contracts.Invalid("DecisionRequest", "approval", "is required")
	}
	if req.DecidingUserID == "" {
		return nil, contracts.Invalid("DecisionRequest", "decidingUserId", "must be non-empty")
	}
	base := req.Approval.Base()
	span.SetAttributes(
		observability.AttrApprovalID.String(base.ApprovalID),
		observability.AttrWorkspaceID.String(base.WorkspaceID),
	)

	body := DecisionBody{
		ApprovalID:     base.ApprovalID,
		DecidingUserID: req.DecidingUserID,
	}

	switch a := req.Approval.(type) {
	case approval.Decided:
		body.Outcome = OutcomeConflict
		body.Decision = contracts.DecisionDeny
		body.Reason = fmt.Sprintf("approval already decided: %s", a.Outcome)
	case approval.Pending:
		policies, err := g.applicable(req.Policies, governance.Subject{
			Operation:   req.Operation,
			WorkspaceID: base.WorkspaceID,
			Attributes:  req.Attributes,
		})
		if err != nil {
			return nil, fmt.Errorf("gate: select policies: %w", err)
		}
		sctx := sod.Context{
			InitiatorUserID: base.RequestedByUserID,
			ApproverUserIDs: sod.Distinct(append(append([]string{}, req.PriorApproverUserIDs...), req.DecidingUserID)),
			PerformedDuties: req.PerformedDuties,
			Robot:           req.Robot,
			ApproverRoles:   req.ApproverRoles,
		}
		result := g.evaluator.EvaluateMany(ctx, policies, sctx)
		body.Evaluation = &result
		body.Decision = result.Decision
		if result.Decision == contracts.DecisionAllow {
			body.Outcome = OutcomePermitted
		} else {
			body.Outcome = OutcomeForbidden
			body.Reason = fmt.Sprintf("aggregate decision %s with %d violation(s)", result.Decision, len(result.Violations))
		}
		attrs = append(attrs,
			observability.AttrPolicyCount.Int(len(policies)),
			observability.AttrViolations.Int(len(result.Violations)),
		)
	default:
		panic(contracts.Unhandled("gate.CheckDecision", a))
	}
	attrs = append(attrs, observability.DecisionOperation(req.Operation, string(body.Decision), string(body.Outcome))...)

	receipt, err := g.issueReceipt(base.ApprovalID, body.Decision, body.Outcome, body)
	if err != nil {
		return nil, err
	}

	logArgs := []any{
		"approval_id", base.ApprovalID,
		"deciding_user", req.DecidingUserID,
		"decision", body.Decision,
		"outcome", body.Outcome,
		"receipt_id", receipt.ReceiptID,
	}
	if body.Outcome == OutcomePermitted {
		g.logger.InfoContext(ctx, "approval decision permitted", logArgs...)
	} else {
		g.logger.WarnContext(ctx, "approval decision refused", append(logArgs, "reason", body.Reason)...)
	}

	return &Verdict{DecisionBody: body, Receipt: receipt}, nil
}
