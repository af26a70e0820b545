// Package orchestrator threads one run through the Decide, Act,
// Verify and Learn phases. A run is never retried: whatever phase it
// dies in, the next observation starts an independent run.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
	"github.com/Mindburn-Labs/mend/pkg/executor"
	"github.com/Mindburn-Labs/mend/pkg/gates"
	"github.com/Mindburn-Labs/mend/pkg/governance"
	"github.com/Mindburn-Labs/mend/pkg/ledger"
	"github.com/Mindburn-Labs/mend/pkg/observe"
	"github.com/Mindburn-Labs/mend/pkg/recipe"
	"github.com/Mindburn-Labs/mend/pkg/trust"
)

// Config wires the components one orchestrator drives.
type Config struct {
	Selector  *recipe.Selector
	Planner   recipe.Planner
	Executor  *executor.Executor
	Gates     *gates.Evaluator
	Trust     *trust.Store
	Ledger    *ledger.Store
	Attestor  *ledger.Attestor // optional; attestations need Reobserve too
	Reobserve func(ctx context.Context) (*contracts.Metrics, error)

	BasePolicy governance.Policy
	SelectOpts recipe.Options

	// GateDefaults seeds the per-run gate input; BrainConfidence,
	// FusionScore and ChangedFiles are filled in from the run itself.
	GateDefaults gates.Input
}

// Report summarizes one completed (or dead) run.
type Report struct {
	RunID      string           `json:"run_id"`
	Status     string           `json:"status"` // ledger status of the run's entry
	Recipe     *recipe.Selected `json:"recipe,omitempty"`
	Decision   *gates.Decision  `json:"decision,omitempty"`
	SnapshotID string           `json:"snapshot_id,omitempty"`
	LedgerPath string           `json:"ledger_path,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Orchestrator runs the remediation cycle for one working tree.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// New builds an Orchestrator from wired components.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		logger: slog.Default().With("component", "orchestrator"),
	}
}

// Run drives one full cycle from an already-observed metrics document.
// A gate rejection is a decision, not an error: the report carries the
// "reverted" status and the returned error is nil. Errors out of Act
// have already been rolled back by the executor unless they wrap
// executor.ErrRecoveryFailed, which callers must treat as fatal.
func (o *Orchestrator) Run(ctx context.Context, m *contracts.Metrics) (*Report, error) {
	if err := observe.ValidateMetrics(m); err != nil {
		return nil, err
	}
	runID := m.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	report := &Report{RunID: runID}

	// Nothing observed: terminal no-op with a marker entry.
	if m.TotalIssues == 0 {
		return o.noop(report, "no issues observed")
	}

	// Decide.
	selected, plan, policy, err := o.decide(runID, m)
	if err != nil {
		return report, o.recordDecideFailure(report, err)
	}
	if selected == nil {
		return o.noop(report, "no admissible recipe for observed issues")
	}
	report.Recipe = selected

	// Act. Guard violations surface before any side effect; apply
	// failures come back already rolled back and recorded.
	applied, err := o.cfg.Executor.Apply(plan, policy)
	if err != nil {
		o.learn(selected.Recipe.ID, false)
		report.Status = statusOf(o.cfg.Ledger, runID)
		if report.Status == "" {
			// Guard rejections abort before any side effect and the
			// executor records nothing; the plan still reached Act,
			// so the run gets its outcome entry here.
			if _, aerr := o.cfg.Ledger.Append(runID, ledger.Payload{
				Status:   ledger.StatusFailed,
				Reason:   err.Error(),
				RecipeID: selected.Recipe.ID,
			}); aerr != nil {
				o.logger.Error("failure entry not recorded", "run_id", runID, "error", aerr)
			}
			report.Status = ledger.StatusFailed
		}
		return report, err
	}
	report.SnapshotID = applied.Snapshot.ID

	// Verify.
	decision := o.verify(selected, plan)
	report.Decision = &decision

	if !decision.CanDeploy {
		res, err := o.cfg.Executor.Revert(applied, strings.Join(decision.Reasoning, "; "))
		// Learn runs even when the revert itself failed: the gate
		// verdict is the signal, not the bookkeeping.
		o.learn(selected.Recipe.ID, false)
		if err != nil {
			return report, err
		}
		report.Status = res.Status
		report.LedgerPath = res.LedgerPath
		report.Reason = "deployment gates rejected the change"
		return report, nil
	}

	res, err := o.cfg.Executor.Commit(applied)
	if err != nil {
		o.learn(selected.Recipe.ID, false)
		return report, err
	}
	report.Status = res.Status
	report.LedgerPath = res.LedgerPath

	o.attest(ctx, selected.Recipe.ID, m)
	o.learn(selected.Recipe.ID, true)
	return report, nil
}

// decide adapts the policy from recent history and picks the top
// admissible recipe. A nil Selected with nil error means no recipe
// matched.
func (o *Orchestrator) decide(runID string, m *contracts.Metrics) (*recipe.Selected, *contracts.Plan, governance.Policy, error) {
	history, err := o.cfg.Ledger.History(trust.Window)
	if err != nil {
		return nil, nil, governance.Policy{}, fmt.Errorf("orchestrator: read history: %w", err)
	}
	score := trust.ComputeScore(history)
	failures := trailingFailures(history)
	policy := governance.Adjust(o.cfg.BasePolicy, score, failures)
	o.logger.Info("policy adapted",
		"trust_score", score,
		"consecutive_failures", failures,
		"max_files", policy.MaxFiles,
		"max_loc_per_file", policy.MaxLocPerFile)

	candidates := o.cfg.Selector.Select(m, o.cfg.SelectOpts)
	if len(candidates) == 0 {
		return nil, nil, policy, nil
	}
	top := candidates[0]

	plan, err := o.cfg.Planner.Plan(top.Recipe, m)
	if err != nil {
		return nil, nil, policy, fmt.Errorf("orchestrator: plan %s: %w", top.Recipe.ID, err)
	}
	if plan == nil || len(plan.Edits) == 0 {
		return nil, nil, policy, nil
	}
	plan.ID = runID
	plan.RecipeID = top.Recipe.ID
	return &top, plan, policy, nil
}

func (o *Orchestrator) verify(selected *recipe.Selected, plan *contracts.Plan) gates.Decision {
	in := o.cfg.GateDefaults
	in.BrainConfidence = selected.Scores.Final * 100
	in.FusionScore = selected.Scores.Fusion * 100
	in.ChangedFiles = plan.Paths()
	return o.cfg.Gates.RunGuardianCI(in)
}

// learn folds the outcome into the recipe's trust record. It always
// runs once a recipe was chosen, whatever happened downstream.
func (o *Orchestrator) learn(recipeID string, success bool) {
	if _, err := o.cfg.Trust.Update(recipeID, success); err != nil {
		o.logger.Error("trust update failed", "recipe_id", recipeID, "error", err)
	}
}

// attest records a before/after improvement proof when re-observation
// is available. Failures are logged, never fatal: the run already has
// its durable outcome.
func (o *Orchestrator) attest(ctx context.Context, recipeID string, before *contracts.Metrics) {
	if o.cfg.Attestor == nil || o.cfg.Reobserve == nil {
		return
	}
	after, err := o.cfg.Reobserve(ctx)
	if err != nil {
		o.logger.Warn("re-observation failed, skipping attestation", "error", err)
		return
	}
	if _, err := o.cfg.Attestor.Create(recipeID, metricsMap(before), metricsMap(after)); err != nil {
		o.logger.Warn("attestation failed", "recipe_id", recipeID, "error", err)
	}
}

// metricsMap flattens a metrics document into the numeric shape
// attestations compare.
func metricsMap(m *contracts.Metrics) map[string]float64 {
	out := map[string]float64{"total_issues": float64(m.TotalIssues)}
	for category, count := range m.Counts {
		out[category] = float64(count)
	}
	return out
}

func (o *Orchestrator) noop(report *Report, reason string) (*Report, error) {
	path, err := o.cfg.Ledger.Append(report.RunID, ledger.Payload{
		Status: ledger.StatusNoop,
		Reason: reason,
	})
	if err != nil {
		return report, fmt.Errorf("orchestrator: record no-op: %w", err)
	}
	report.Status = ledger.StatusNoop
	report.LedgerPath = path
	report.Reason = reason
	o.logger.Info("run is a no-op", "run_id", report.RunID, "reason", reason)
	return report, nil
}

// recordDecideFailure writes the run's single outcome entry for a
// failure before anything was mutated.
func (o *Orchestrator) recordDecideFailure(report *Report, cause error) error {
	if _, err := o.cfg.Ledger.Append(report.RunID, ledger.Payload{
		Status: ledger.StatusFailed,
		Reason: cause.Error(),
	}); err != nil {
		o.logger.Error("failure entry not recorded", "run_id", report.RunID, "error", err)
	}
	report.Status = ledger.StatusFailed
	return cause
}

// trailingFailures counts the unbroken run of non-success outcomes at
// the tail of history. No-op entries are skipped: they carry no
// learning signal either way.
func trailingFailures(history []ledger.Entry) int {
	count := 0
	for i := len(history) - 1; i >= 0; i-- {
		switch history[i].Payload.Status {
		case ledger.StatusNoop:
			continue
		case ledger.StatusOK, ledger.StatusRecovered:
			return count
		default:
			count++
		}
	}
	return count
}

func statusOf(store *ledger.Store, runID string) string {
	if entry, err := store.Get(runID); err == nil {
		return entry.Payload.Status
	}
	return ""
}
