package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/45ck/Portarium-sub009/pkg/gate"
	"github.com/45ck/Portarium-sub009/pkg/safety"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

// runSafetyCmd implements `portarium safety`.
//
// Runs the dispatch gate: hazard classification over the safety context,
// optionally combined with SoD policies over --sod.
//
// Exit codes:
//
//	0 = Allow
//	1 = RequireApproval or Deny
//	2 = usage or runtime error
func runSafetyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("safety", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		contextFile string
		sodFile     string
		policyPath  string
		workspaceID string
	)
	cmd.StringVar(&contextFile, "context", "", "Path to the safety context, JSON or YAML (REQUIRED)")
	cmd.StringVar(&sodFile, "sod", "", "Path to an SoD context; enables policy evaluation")
	cmd.StringVar(&policyPath, "policies", "", "Policy bundle file or directory (default: configured source)")
	cmd.StringVar(&workspaceID, "workspace", "", "Workspace used for appliesWhen selection")

	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if contextFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --context is required")
		return exitError
	}

	data, err := readDocument(contextFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read context: %v\n", err)
		return exitError
	}
	sctx, err := safety.ParseContext(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitGated
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer rt.Close(ctx)

	req := gate.DispatchRequest{Safety: sctx, WorkspaceID: workspaceID}
	if sodFile != "" {
		sodData, err := readDocument(sodFile)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: read sod context: %v\n", err)
			return exitError
		}
		var sodCtx sod.Context
		if err := decodeStrict(sodData, &sodCtx); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: parse sod context: %v\n", err)
			return exitError
		}
		policies, err := rt.policies(ctx, policyPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: load policies: %v\n", err)
			return exitError
		}
		req.SoD = sodCtx
		req.Policies = policies
	}

	verdict, err := rt.gate.CheckDispatch(ctx, req)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if err := writeJSON(stdout, verdict); err != nil {
		return exitError
	}
	return decisionExit(verdict.Decision)
}
