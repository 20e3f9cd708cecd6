package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/45ck/Portarium-sub009/pkg/approval"
	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/gate"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

func runApprovalCmd(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "validate":
		return runApprovalValidate(args[1:], stdout, stderr)
	case "decide":
		return runApprovalDecide(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown approval subcommand: %s\n", args[0])
		return exitError
	}
}

type validationReport struct {
	Valid      bool            `json:"valid"`
	ApprovalID string          `json:"approvalId,omitempty"`
	Status     approval.Status `json:"status,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// runApprovalValidate implements `portarium approval validate`.
//
// Exit codes:
//
//	0 = valid
//	1 = invalid record
//	2 = usage or runtime error
func runApprovalValidate(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("approval validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var file string
	cmd.StringVar(&file, "file", "", "Path to the approval record, JSON or YAML (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		return exitError
	}

	data, err := readDocument(file)
	if err != nil && !errors.Is(err, contracts.ErrValidation) {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	var a approval.Approval
	if err == nil {
		a, err = approval.Parse(data)
	}
	if err != nil {
		_ = writeJSON(stdout, validationReport{Valid: false, Error: err.Error()})
		return exitGated
	}

	if err := writeJSON(stdout, validationReport{Valid: true, ApprovalID: a.Base().ApprovalID, Status: a.Status()}); err != nil {
		return exitError
	}
	return exitAllow
}

// runApprovalDecide implements `portarium approval decide`.
//
// Asks the gate whether --user may decide the approval. Nothing is written.
//
// Exit codes:
//
//	0 = Permitted
//	1 = Forbidden or Conflict
//	2 = usage or runtime error
func runApprovalDecide(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("approval decide", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		file       string
		user       string
		prior      string
		dutiesFile string
		policyPath string
		operation  string
	)
	cmd.StringVar(&file, "file", "", "Path to the approval record (REQUIRED)")
	cmd.StringVar(&user, "user", "", "Deciding user ID (REQUIRED)")
	cmd.StringVar(&prior, "prior-approvers", "", "Comma-separated users who already approved this run")
	cmd.StringVar(&dutiesFile, "duties", "", "Path to a JSON or YAML array of performed duties")
	cmd.StringVar(&policyPath, "policies", "", "Policy bundle file or directory (default: configured source)")
	cmd.StringVar(&operation, "operation", "", "Operation used for appliesWhen selection")

	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if file == "" || user == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file and --user are required")
		return exitError
	}

	data, err := readDocument(file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	a, err := approval.Parse(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitGated
	}

	var duties []sod.PerformedDuty
	if dutiesFile != "" {
		dutyData, err := readDocument(dutiesFile)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: read duties: %v\n", err)
			return exitError
		}
		if err := decodeStrict(dutyData, &duties); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: parse duties: %v\n", err)
			return exitError
		}
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer rt.Close(ctx)

	policies, err := rt.policies(ctx, policyPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: load policies: %v\n", err)
		return exitError
	}

	verdict, err := rt.gate.CheckDecision(ctx, gate.DecisionRequest{
		Approval:             a,
		DecidingUserID:       user,
		PriorApproverUserIDs: splitList(prior),
		PerformedDuties:      duties,
		Policies:             policies,
		Operation:            operation,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if err := writeJSON(stdout, verdict); err != nil {
		return exitError
	}
	if verdict.Permitted() {
		return exitAllow
	}
	return exitGated
}
