package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/mend/pkg/ledger"
	"github.com/Mindburn-Labs/mend/pkg/workspace"
)

// historyCmd implements `mend history`: it rebuilds the SQLite read
// model from the ledger files and queries it for recent runs and
// per-recipe outcome counts. The index is derived state; the ledger
// files stay the source of truth.
func historyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("history", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		state string
		limit int
	)
	cmd.StringVar(&state, "state", "", "state root (default $MEND_STATE_DIR or .mend)")
	cmd.IntVar(&limit, "limit", 20, "number of recent runs to show")
	if err := cmd.Parse(args); err != nil {
		return exitError
	}

	layout, err := workspace.NewLayout(stateDir(state))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	ctx := context.Background()
	index, err := ledger.OpenSQLIndex(layout.LedgerIndexFile())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitIOFailure
	}
	defer func() { _ = index.Close() }()

	led := ledger.NewStore(layout.LedgerDir())
	if err := index.Rebuild(ctx, led); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: rebuild index: %v\n", err)
		return exitIOFailure
	}

	runs, err := index.RecentRuns(ctx, limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitIOFailure
	}
	_, _ = fmt.Fprintf(stdout, "%-38s %-10s %-24s %s\n", "RUN", "STATUS", "RECIPE", "SIGNATURE")
	for _, r := range runs {
		sig := r.Signature
		if len(sig) > 19 {
			sig = sig[:19] + "…"
		}
		_, _ = fmt.Fprintf(stdout, "%-38s %-10s %-24s %s\n", r.RunID, r.Status, r.RecipeID, sig)
	}

	outcomes, err := index.OutcomesByRecipe(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitIOFailure
	}
	if len(outcomes) > 0 {
		_, _ = fmt.Fprintf(stdout, "\n%-24s %6s %6s\n", "RECIPE", "RUNS", "OK")
		for _, o := range outcomes {
			_, _ = fmt.Fprintf(stdout, "%-24s %6d %6d\n", o.RecipeID, o.Total, o.OK)
		}
	}
	return exitOK
}
