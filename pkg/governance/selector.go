package governance

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
)

// selectorCostLimit bounds the runtime cost of a single appliesWhen program.
const selectorCostLimit = 10_000

// Subject is what appliesWhen expressions can see about a request.
type Subject struct {
	Operation   string         `json:"operation"`
	WorkspaceID string         `json:"workspaceId"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// Selector picks the policies that apply to a request. Compiled programs are
// cached by expression source, so one Selector can be shared.
type Selector struct {
	env    *cel.Env
	logger *slog.Logger

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewSelector builds the CEL environment for appliesWhen expressions.
func NewSelector(logger *slog.Logger) (*Selector, error) {
	env, err := cel.NewEnv(
		cel.Variable("operation", cel.StringType),
		cel.Variable("workspaceId", cel.StringType),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("governance: create CEL env: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		env:      env,
		logger:   logger.With("component", "policy-selector"),
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile checks and caches an appliesWhen expression. The expression must
// be deterministic and evaluate to a bool.
func (s *Selector) Compile(expr string) error {
	_, err := s.program(expr)
	return err
}

func (s *Selector) program(expr string) (cel.Program, error) {
	s.mu.RLock()
	prg, ok := s.programs[expr]
	s.mu.RUnlock()
	if ok {
		return prg, nil
	}

	if err := CheckDeterministic(expr); err != nil {
		return nil, err
	}
	ast, issues := s.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("governance: compile appliesWhen %q: %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("governance: appliesWhen %q must evaluate to bool, got %s", expr, out)
	}
	prg, err := s.env.Program(ast, cel.CostLimit(selectorCostLimit))
	if err != nil {
		return nil, fmt.Errorf("governance: build program for %q: %w", expr, err)
	}

	s.mu.Lock()
	s.programs[expr] = prg
	s.mu.Unlock()
	return prg, nil
}

// Select returns the active policies whose appliesWhen holds for subj,
// ordered by priority (highest first, stable). A runtime evaluation error
// includes the policy rather than dropping it. A policy whose expression
// does not compile is an error.
func (s *Selector) Select(policies []Policy, subj Subject) ([]Policy, error) {
	attrs := subj.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	input := map[string]any{
		"operation":   subj.Operation,
		"workspaceId": subj.WorkspaceID,
		"attributes":  attrs,
	}

	out := make([]Policy, 0, len(policies))
	for _, p := range policies {
		if !p.Active {
			continue
		}
		if p.AppliesWhen == "" {
			out = append(out, p)
			continue
		}

		prg, err := s.program(p.AppliesWhen)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", p.PolicyID, err)
		}
		val, _, err := prg.Eval(input)
		if err != nil {
			s.logger.Warn("appliesWhen evaluation failed, including policy",
				"policy_id", p.PolicyID, "error", err)
			out = append(out, p)
			continue
		}
		if applies, ok := val.Value().(bool); !ok || applies {
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}
