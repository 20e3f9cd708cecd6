package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/45ck/Portarium-sub009/pkg/eligibility"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

// runEligibilityCmd implements `portarium eligibility`.
//
// Prints the approver-eligibility manifest for one policy, or for a bare
// constraint list given with --constraints.
func runEligibilityCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("eligibility", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		policyPath      string
		policyID        string
		constraintsFile string
		hazardousZone   bool
		safetyZone      bool
		remoteEstop     bool
	)
	cmd.StringVar(&policyPath, "policies", "", "Policy bundle file or directory (default: configured source)")
	cmd.StringVar(&policyID, "policy-id", "", "Policy to resolve")
	cmd.StringVar(&constraintsFile, "constraints", "", "Path to a JSON or YAML array of SoD constraints")
	cmd.BoolVar(&hazardousZone, "hazardous-zone", false, "The mission operates in a hazardous zone")
	cmd.BoolVar(&safetyZone, "safety-classified-zone", false, "The mission operates in a safety-classified zone")
	cmd.BoolVar(&remoteEstop, "remote-estop", false, "The request is a remote e-stop")

	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if (policyID == "") == (constraintsFile == "") {
		_, _ = fmt.Fprintln(stderr, "Error: exactly one of --policy-id or --constraints is required")
		return exitError
	}

	var constraints []sod.Constraint
	if constraintsFile != "" {
		data, err := readDocument(constraintsFile)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: read constraints: %v\n", err)
			return exitError
		}
		constraints, err = sod.DecodeConstraints(data)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitGated
		}
	} else {
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
		found := false
		for _, p := range policies {
			if p.PolicyID == policyID {
				constraints, found = p.SodConstraints, true
				break
			}
		}
		if !found {
			_, _ = fmt.Fprintf(stderr, "Error: policy %q not found\n", policyID)
			return exitError
		}
	}

	var hint *eligibility.RobotHint
	if hazardousZone || safetyZone || remoteEstop {
		hint = &eligibility.RobotHint{
			HazardousZone:        hazardousZone,
			SafetyClassifiedZone: safetyZone,
			RemoteEstopRequest:   remoteEstop,
		}
	}

	if err := writeJSON(stdout, eligibility.Resolve(constraints, hint)); err != nil {
		return exitError
	}
	return exitAllow
}
