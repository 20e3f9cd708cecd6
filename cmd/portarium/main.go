package main

import (
	"fmt"
	"io"
	"os"

	_ "github.com/lib/pq"  // Postgres driver for PORTARIUM_POLICY_DSN
	_ "modernc.org/sqlite" // SQLite driver for PORTARIUM_POLICY_DSN
)

// Exit codes shared by every subcommand.
const (
	exitAllow = 0 // Allow, Permitted or valid
	exitGated = 1 // RequireApproval, Deny, Forbidden, Conflict or invalid
	exitError = 2 // usage or runtime error
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return exitError
	}

	switch args[1] {
	case "evaluate":
		return runEvaluateCmd(args[2:], stdout, stderr)
	case "eligibility":
		return runEligibilityCmd(args[2:], stdout, stderr)
	case "safety":
		return runSafetyCmd(args[2:], stdout, stderr)
	case "approval":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: portarium approval <validate|decide>")
			return exitError
		}
		return runApprovalCmd(args[2:], stdout, stderr)
	case "escalations":
		return runEscalationsCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitAllow
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return exitError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "portarium: approval governance and robot safety gating")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  portarium <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	printCommand(w, "evaluate", "Aggregate SoD policies over a context (--context, --policies)")
	printCommand(w, "eligibility", "Show who may approve under a policy (--policies, --policy-id)")
	printCommand(w, "safety", "Classify hazards and gate a dispatch (--context)")
	printCommand(w, "approval", "Validate an approval record or check a decision (validate|decide)")
	printCommand(w, "escalations", "List due escalation steps of an approval (--file, --now)")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "EXIT CODES:")
	fmt.Fprintln(w, "  0 allowed or valid, 1 gated or invalid, 2 usage or runtime error")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-12s %s\n", name, desc)
}
