package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/45ck/Portarium-sub009/pkg/approval"
	"github.com/45ck/Portarium-sub009/pkg/escalation"
)

// runEscalationsCmd implements `portarium escalations`.
//
// Prints the escalation plan of an approval at --now (default: current time).
// Scheduling and notification stay with the caller.
func runEscalationsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("escalations", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		file string
		now  string
	)
	cmd.StringVar(&file, "file", "", "Path to the approval record (REQUIRED)")
	cmd.StringVar(&now, "now", "", "Evaluation time, RFC 3339")

	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		return exitError
	}

	planner := escalation.NewPlanner()
	if now != "" {
		at, err := time.Parse(time.RFC3339, now)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: --now: %v\n", err)
			return exitError
		}
		planner = planner.WithClock(func() time.Time { return at })
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

	if err := writeJSON(stdout, planner.Plan(a)); err != nil {
		return exitError
	}
	return exitAllow
}
