// Command mend drives the autonomous remediation cycle: it consumes an
// observed metrics document, selects and applies a recipe under the
// governance policy, verifies the result against the deployment gates,
// and records the outcome in the tamper-evident ledger.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/mend/pkg/executor"
	"github.com/Mindburn-Labs/mend/pkg/governance"
)

// Exit codes.
const (
	exitOK              = 0
	exitError           = 1
	exitPolicyViolation = 2
	exitIOFailure       = 3
	exitRecoveryFailed  = 4
	exitGateRejection   = 5
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the dispatcher; it exists separately from main for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return exitError
	}

	switch args[1] {
	case "run":
		return runCmd(args[2:], stdout, stderr)
	case "verify":
		return verifyCmd(args[2:], stdout, stderr)
	case "trust":
		return trustCmd(args[2:], stdout, stderr)
	case "history":
		return historyCmd(args[2:], stdout, stderr)
	case "export":
		return exportCmd(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	default:
		_, _ = fmt.Fprintf(stderr, "mend: unknown command %q\n", args[1])
		usage(stderr)
		return exitError
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprint(w, `Usage: mend <command> [flags]

Commands:
  run      apply the best admissible recipe for an observed metrics document
  verify   check the ledger hash chain and entry signatures
  trust    show per-recipe trust records and the aggregate trust score
  history  show recent runs from the ledger index
  export   bundle a run's evidence (ledger entry, manifest, attestations)

Environment:
  MEND_STATE_DIR   state root (default .mend)
`)
}

// exitCodeFor maps an error from the control plane onto the exit code
// contract. Recovery failures are checked first: they dominate any
// other classification.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, executor.ErrRecoveryFailed) {
		return exitRecoveryFailed
	}
	var violation *governance.Violation
	if errors.As(err, &violation) {
		return exitPolicyViolation
	}
	var ioFailure *executor.IOFailure
	if errors.As(err, &ioFailure) {
		return exitIOFailure
	}
	return exitError
}
