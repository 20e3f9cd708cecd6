// Package gate is the narrow interface command handlers call before they
// apply an approval decision or dispatch a workflow/robot action.
//
// The gate never mutates an Approval. It returns a Verdict carrying the
// aggregate decision, the evidence behind it, and a content-hashed Receipt
// the caller can persist as its audit record.
package gate

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/45ck/Portarium-sub009/pkg/governance"
	"github.com/45ck/Portarium-sub009/pkg/observability"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

// Outcome is what the caller must do with a decision attempt.
type Outcome string

const (
	// OutcomePermitted: apply the transition.
	OutcomePermitted Outcome = "Permitted"
	// OutcomeForbidden: the deciding user may not make this decision.
	OutcomeForbidden Outcome = "Forbidden"
	// OutcomeConflict: the approval is already decided.
	OutcomeConflict Outcome = "Conflict"
)

// PolicyEvaluator aggregates SoD results across policies. Both
// governance.EvaluateMany (via Direct) and *evalcache.Evaluator satisfy it.
type PolicyEvaluator interface {
	EvaluateMany(ctx context.Context, policies []governance.Policy, sctx sod.Context) governance.Result
}

// Direct evaluates without memoization.
type Direct struct{}

// EvaluateMany implements PolicyEvaluator.
func (Direct) EvaluateMany(_ context.Context, policies []governance.Policy, sctx sod.Context) governance.Result {
	return governance.EvaluateMany(policies, sctx)
}

// Gate checks approval decisions and action dispatches.
type Gate struct {
	selector  *governance.Selector
	evaluator PolicyEvaluator
	clock     func() time.Time
	logger    *slog.Logger

	tracer  trace.Tracer
	checks  metric.Int64Counter
	latency metric.Float64Histogram
}

// New creates a gate using the global OpenTelemetry providers.
func New() (*Gate, error) {
	g := &Gate{
		evaluator: Direct{},
		clock:     time.Now,
		logger:    slog.Default().With("component", "gate"),
	}
	if err := g.SetTelemetry(otel.Tracer(observability.InstrumentationName), otel.Meter(observability.InstrumentationName)); err != nil {
		return nil, err
	}
	return g, nil
}

// SetTelemetry replaces the tracer and meter.
func (g *Gate) SetTelemetry(tracer trace.Tracer, meter metric.Meter) error {
	checks, err := meter.Int64Counter("portarium.gate.checks",
		metric.WithDescription("Gate checks by kind, decision and outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return err
	}
	latency, err := meter.Float64Histogram("portarium.gate.duration",
		metric.WithDescription("Gate check duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}
	g.tracer, g.checks, g.latency = tracer, checks, latency
	return nil
}

// SetSelector makes the gate narrow the supplied policies with CEL
// appliesWhen predicates. Without a selector every active policy applies.
func (g *Gate) SetSelector(sel *governance.Selector) {
	g.selector = sel
}

// SetEvaluator replaces the policy evaluator, e.g. with an evalcache.Evaluator.
func (g *Gate) SetEvaluator(e PolicyEvaluator) {
	g.evaluator = e
}

// SetClock overrides the time source stamped on receipts.
func (g *Gate) SetClock(clock func() time.Time) {
	g.clock = clock
}

// SetLogger overrides the logger.
func (g *Gate) SetLogger(logger *slog.Logger) {
	g.logger = logger.With("component", "gate")
}

func (g *Gate) applicable(policies []governance.Policy, subj governance.Subject) ([]governance.Policy, error) {
	if g.selector != nil {
		return g.selector.Select(policies, subj)
	}
	out := make([]governance.Policy, 0, len(policies))
	for _, p := range policies {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// finish closes the span and records metrics for one check.
func (g *Gate) finish(ctx context.Context, span trace.Span, start time.Time, kind string, attrs []attribute.KeyValue, err error) {
	all := append([]attribute.KeyValue{attribute.String("portarium.gate.kind", kind)}, attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		all = append(all, attribute.String("error.type", "evaluation"))
	} else {
		span.SetAttributes(attrs...)
	}
	g.checks.Add(ctx, 1, metric.WithAttributes(all...))
	g.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("portarium.gate.kind", kind)))
	span.End()
}
