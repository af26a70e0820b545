package main

import (
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/Mindburn-Labs/mend/pkg/ledger"
	"github.com/Mindburn-Labs/mend/pkg/trust"
	"github.com/Mindburn-Labs/mend/pkg/workspace"
)

// trustCmd implements `mend trust`: the aggregate trust score over
// recent history plus every per-recipe record.
func trustCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("trust", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		state string
		reset string
	)
	cmd.StringVar(&state, "state", "", "state root (default $MEND_STATE_DIR or .mend)")
	cmd.StringVar(&reset, "reset", "", "reset the record for one recipe ID")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}

	layout, err := workspace.NewLayout(stateDir(state))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	store, err := trust.NewStore(layout.TrustFile())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitIOFailure
	}

	if reset != "" {
		if err := store.Reset(reset); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitIOFailure
		}
		_, _ = fmt.Fprintf(stdout, "record for %s reset\n", reset)
		return exitOK
	}

	led := ledger.NewStore(layout.LedgerDir())
	history, err := led.History(trust.Window)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitIOFailure
	}
	_, _ = fmt.Fprintf(stdout, "aggregate trust: %.2f over last %d run(s)\n\n", trust.ComputeScore(history), len(history))

	records := store.All()
	if len(records) == 0 {
		_, _ = fmt.Fprintln(stdout, "no per-recipe records yet")
		return exitOK
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	_, _ = fmt.Fprintf(stdout, "%-30s %8s %6s %10s %s\n", "RECIPE", "RATE", "RUNS", "CONSECFAIL", "STATE")
	for _, id := range ids {
		r := records[id]
		status := "active"
		if r.Blacklisted() {
			status = "blacklisted"
		}
		_, _ = fmt.Fprintf(stdout, "%-30s %8.4f %6d %10d %s\n", id, r.SuccessRate, r.TotalRuns, r.ConsecutiveFailures, status)
	}
	return exitOK
}
