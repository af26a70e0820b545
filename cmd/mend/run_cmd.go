package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
	"github.com/Mindburn-Labs/mend/pkg/executor"
	"github.com/Mindburn-Labs/mend/pkg/filerisk"
	"github.com/Mindburn-Labs/mend/pkg/gates"
	"github.com/Mindburn-Labs/mend/pkg/governance"
	"github.com/Mindburn-Labs/mend/pkg/ledger"
	"github.com/Mindburn-Labs/mend/pkg/observe"
	"github.com/Mindburn-Labs/mend/pkg/orchestrator"
	"github.com/Mindburn-Labs/mend/pkg/recipe"
	"github.com/Mindburn-Labs/mend/pkg/snapshot"
	"github.com/Mindburn-Labs/mend/pkg/telemetry"
	"github.com/Mindburn-Labs/mend/pkg/trust"
	"github.com/Mindburn-Labs/mend/pkg/workspace"
)

func stateDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("MEND_STATE_DIR"); env != "" {
		return env
	}
	return ".mend"
}

// filePlanner serves a pre-built edit plan from disk. Plan construction
// is external to the control plane: detectors know what the fix looks
// like, mend governs whether it may land.
type filePlanner struct {
	path string
}

func (p filePlanner) Plan(r *recipe.Recipe, m *contracts.Metrics) (*contracts.Plan, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var plan contracts.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &plan, nil
}

// runCmd implements `mend run`.
//
// Exit codes:
//
//	0 = change kept, or terminal no-op
//	2 = governance policy violation
//	3 = I/O failure (rolled back)
//	4 = recovery failed; tree state undefined
//	5 = deployment gates rejected the change (reverted)
//	1 = any other error
func runCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		state          string
		metricsPath    string
		planPath       string
		catalogPath    string
		aggressiveness float64
		sensitivity    string
		force          bool
		maxRecipes     int
		otlp           string
	)
	cmd.StringVar(&state, "state", "", "state root (default $MEND_STATE_DIR or .mend)")
	cmd.StringVar(&metricsPath, "metrics", "", "observed metrics document, JSON (REQUIRED)")
	cmd.StringVar(&planPath, "plan", "", "edit plan for the selected recipe, JSON (REQUIRED)")
	cmd.StringVar(&catalogPath, "catalog", "", "recipe catalog, YAML (REQUIRED)")
	cmd.Float64Var(&aggressiveness, "aggressiveness", 0, "admission threshold relaxation in [0,1]")
	cmd.StringVar(&sensitivity, "sensitivity", "low", "deployment sensitivity: low|medium|high|critical")
	cmd.BoolVar(&force, "force", false, "override gate rejection (recorded in reasoning)")
	cmd.IntVar(&maxRecipes, "max-recipes", 0, "cap on ranked candidates (default 5)")
	cmd.StringVar(&otlp, "otlp-endpoint", "", "OTLP gRPC endpoint for telemetry (default disabled)")

	if err := cmd.Parse(args); err != nil {
		return exitError
	}
	if metricsPath == "" || planPath == "" || catalogPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --metrics, --plan and --catalog are required")
		return exitError
	}

	ctx := context.Background()

	raw, err := os.ReadFile(metricsPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read metrics: %v\n", err)
		return exitIOFailure
	}
	metrics, err := observe.ParseMetrics(raw)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	layout, err := workspace.NewLayout(stateDir(state))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitIOFailure
	}
	policy, err := governance.LoadPolicy(layout.PolicyFile(), layout.LegacyGatesFile())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	catalog, err := recipe.LoadCatalog(catalogPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	trustStore, err := trust.NewStore(layout.TrustFile())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitIOFailure
	}

	led := ledger.NewStore(layout.LedgerDir())
	snaps := snapshot.NewStore(layout.SnapshotsDir())
	risk := filerisk.NewDefaultIndex()

	tel, err := telemetry.New(ctx, &telemetry.Config{
		ServiceName:  "mend",
		OTLPEndpoint: otlp,
		Enabled:      otlp != "",
		Insecure:     true,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: telemetry: %v\n", err)
		return exitError
	}
	defer func() { _ = tel.Shutdown(ctx) }()

	orch := orchestrator.New(orchestrator.Config{
		Selector:   recipe.NewSelector(catalog, trustStore, nil, risk),
		Planner:    filePlanner{path: planPath},
		Executor:   executor.New(governance.NewGuard(), snaps, led),
		Gates:      gates.NewEvaluator(risk, tel),
		Trust:      trustStore,
		Ledger:     led,
		Attestor:   ledger.NewAttestor(layout.AttestationsDir()),
		BasePolicy: policy,
		SelectOpts: recipe.Options{
			MaxRecipes:     maxRecipes,
			Aggressiveness: aggressiveness,
		},
		GateDefaults: gates.Input{
			Sensitivity:   gates.Sensitivity(sensitivity),
			ForceOverride: force,
		},
	})

	report, runErr := orch.Run(ctx, metrics)
	if report != nil {
		out, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
		tel.RecordRun(report.Status)
	}
	if runErr != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return exitCodeFor(runErr)
	}
	if report != nil && report.Status == ledger.StatusReverted {
		return exitGateRejection
	}
	return exitOK
}
