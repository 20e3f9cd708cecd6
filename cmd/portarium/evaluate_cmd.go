package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/45ck/Portarium-sub009/pkg/governance"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

// runEvaluateCmd implements `portarium evaluate`.
//
// Selects the applicable policies for an operation and aggregates their SoD
// constraints over the context file.
//
// Exit codes:
//
//	0 = Allow
//	1 = RequireApproval or Deny
//	2 = usage or runtime error
func runEvaluateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		contextFile string
		policyPath  string
		operation   string
		workspaceID string
	)
	cmd.StringVar(&contextFile, "context", "", "Path to the SoD evaluation context, JSON or YAML (REQUIRED)")
	cmd.StringVar(&policyPath, "policies", "", "Policy bundle file or directory (default: configured source)")
	cmd.StringVar(&operation, "operation", "", "Operation used for appliesWhen selection")
	cmd.StringVar(&workspaceID, "workspace", "", "Workspace used for appliesWhen selection")

	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if contextFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --context is required")
		return exitError
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer rt.Close(ctx)

	data, err := readDocument(contextFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read context: %v\n", err)
		return exitError
	}
	var sctx sod.Context
	if err := decodeStrict(data, &sctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parse context: %v\n", err)
		return exitError
	}

	all, err := rt.policies(ctx, policyPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: load policies: %v\n", err)
		return exitError
	}
	selected, err := rt.selector.Select(all, governance.Subject{Operation: operation, WorkspaceID: workspaceID})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: select policies: %v\n", err)
		return exitError
	}

	result := rt.evaluator.EvaluateMany(ctx, selected, sctx)
	if err := writeJSON(stdout, result); err != nil {
		return exitError
	}
	return decisionExit(result.Decision)
}
