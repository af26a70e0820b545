// Package executor applies plans transactionally: every mutation is
// preceded by a snapshot of the touched files, and any failure during
// application restores the snapshot before the error is surfaced.
package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
	"github.com/Mindburn-Labs/mend/pkg/governance"
	"github.com/Mindburn-Labs/mend/pkg/ledger"
	"github.com/Mindburn-Labs/mend/pkg/snapshot"
)

// ErrRecoveryFailed marks the one unrecoverable state: a rollback was
// attempted and did not complete, so the working tree is undefined.
// Callers must halt rather than continue past it.
var ErrRecoveryFailed = errors.New("snapshot restore failed; working tree state undefined")

// IOFailure wraps filesystem and ledger errors raised while applying a
// plan. The snapshot for the run was restored before it was returned.
type IOFailure struct {
	Op   string
	Path string
	Err  error
}

func (e *IOFailure) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("io failure during %s on %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("io failure during %s: %v", e.Op, e.Err)
}

func (e *IOFailure) Unwrap() error { return e.Err }

// Result describes a completed execution.
type Result struct {
	RunID      string `json:"run_id"`
	SnapshotID string `json:"snapshot_id"`
	LedgerPath string `json:"ledger_path"`
	Status     string `json:"status"`
}

// Applied is the intermediate state after a plan's edits are on disk
// but before the run's outcome has been recorded. Callers either
// Commit it (keep the edits, record "ok") or Revert it (restore the
// snapshot, record "reverted").
type Applied struct {
	RunID    string
	Snapshot *snapshot.Manifest
	Plan     *contracts.Plan
}

// Executor coordinates guard validation, snapshotting, edit
// application and ledger recording for a single working tree.
type Executor struct {
	guard     *governance.Guard
	snapshots *snapshot.Store
	ledger    *ledger.Store
	logger    *slog.Logger
}

// New returns an Executor over the given stores.
func New(guard *governance.Guard, snapshots *snapshot.Store, led *ledger.Store) *Executor {
	return &Executor{
		guard:     guard,
		snapshots: snapshots,
		ledger:    led,
		logger:    slog.Default().With("component", "executor"),
	}
}

// Execute runs the full transaction: validate, snapshot, apply, then
// record "ok". Policy violations are returned before any side effect.
// Any failure after the snapshot exists restores it and records the
// run as "recovered"; a failed restore returns ErrRecoveryFailed.
func (e *Executor) Execute(plan *contracts.Plan, policy governance.Policy) (*Result, error) {
	applied, err := e.Apply(plan, policy)
	if err != nil {
		return nil, err
	}
	return e.Commit(applied)
}

// Apply performs steps one through three of the transaction: guard
// validation, snapshot creation, and writing the plan's edits. The
// edits are on disk when it returns; no ledger entry exists yet.
func (e *Executor) Apply(plan *contracts.Plan, policy governance.Policy) (*Applied, error) {
	if plan == nil || len(plan.Edits) == 0 {
		return nil, fmt.Errorf("executor: empty plan")
	}
	runID := plan.ID
	if runID == "" {
		runID = uuid.NewString()
	}

	// 1. Validation happens before any side effect. A violation
	// leaves no snapshot and no ledger entry.
	if err := e.guard.Validate(plan.Edits, policy); err != nil {
		return nil, err
	}

	// 2. Snapshot the pre-images of every touched path.
	manifest, err := e.snapshots.Create(runID, plan.Paths())
	if err != nil {
		reason := fmt.Sprintf("snapshot creation failed: %v", err)
		e.recordFailure(runID, plan, "", reason)
		return nil, &IOFailure{Op: "snapshot", Err: err}
	}

	// 3. Write the edits. The first failure rolls everything back.
	for _, edit := range plan.Edits {
		if err := writeEdit(edit); err != nil {
			return nil, e.rollback(runID, plan, manifest, &IOFailure{Op: "write", Path: edit.Path, Err: err})
		}
	}

	e.logger.Info("plan applied",
		"run_id", runID,
		"snapshot_id", manifest.ID,
		"edits", len(plan.Edits))
	return &Applied{RunID: runID, Snapshot: manifest, Plan: plan}, nil
}

// Commit records the applied plan as the run's "ok" outcome. If the
// ledger append fails the edits are rolled back as well: the invariant
// is that edits persist only alongside a matching "ok" entry.
func (e *Executor) Commit(applied *Applied) (*Result, error) {
	payload := ledger.Payload{
		Status:     ledger.StatusOK,
		RecipeID:   applied.Plan.RecipeID,
		SnapshotID: applied.Snapshot.ID,
		Edits:      applied.Plan.Edits,
	}
	path, err := e.ledger.Append(applied.RunID, payload)
	if err != nil {
		return nil, e.rollback(applied.RunID, applied.Plan, applied.Snapshot, &IOFailure{Op: "ledger append", Err: err})
	}
	return &Result{
		RunID:      applied.RunID,
		SnapshotID: applied.Snapshot.ID,
		LedgerPath: path,
		Status:     ledger.StatusOK,
	}, nil
}

// Revert restores the applied plan's snapshot and records the run as
// "reverted" with the given reason. Used when a downstream check
// rejects edits that applied cleanly.
func (e *Executor) Revert(applied *Applied, reason string) (*Result, error) {
	if err := e.snapshots.Restore(applied.Snapshot.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	payload := ledger.Payload{
		Status:     ledger.StatusReverted,
		Reason:     reason,
		RecipeID:   applied.Plan.RecipeID,
		SnapshotID: applied.Snapshot.ID,
		Edits:      applied.Plan.Edits,
	}
	path, err := e.ledger.Append(applied.RunID, payload)
	if err != nil {
		// The tree is restored but the outcome is unrecorded; the
		// restore marker stays on disk to flag the gap.
		return nil, &IOFailure{Op: "ledger append", Err: err}
	}
	_ = e.snapshots.ClearRestoreMarker(applied.Snapshot.ID)
	e.logger.Warn("plan reverted", "run_id", applied.RunID, "reason", reason)
	return &Result{
		RunID:      applied.RunID,
		SnapshotID: applied.Snapshot.ID,
		LedgerPath: path,
		Status:     ledger.StatusReverted,
	}, nil
}

// rollback restores the snapshot, records the run as "recovered", and
// returns the original cause for the caller to surface. A restore
// failure escalates to ErrRecoveryFailed instead.
func (e *Executor) rollback(runID string, plan *contracts.Plan, manifest *snapshot.Manifest, cause error) error {
	e.logger.Error("apply failed, restoring snapshot",
		"run_id", runID,
		"snapshot_id", manifest.ID,
		"error", cause)

	if err := e.snapshots.Restore(manifest.ID); err != nil {
		return fmt.Errorf("%w: restore of %s: %v (after: %v)", ErrRecoveryFailed, manifest.ID, err, cause)
	}

	payload := ledger.Payload{
		Status:     ledger.StatusRecovered,
		Reason:     cause.Error(),
		RecipeID:   plan.RecipeID,
		SnapshotID: manifest.ID,
		Edits:      plan.Edits,
	}
	if _, err := e.ledger.Append(runID, payload); err != nil {
		// Tree is restored; leave the marker so the gap is visible.
		e.logger.Error("recovery entry not recorded", "run_id", runID, "error", err)
		return cause
	}
	_ = e.snapshots.ClearRestoreMarker(manifest.ID)
	return cause
}

// recordFailure appends a "failed" entry for runs that never reached
// the point of mutating the tree. Best effort: the original error is
// what the caller sees.
func (e *Executor) recordFailure(runID string, plan *contracts.Plan, snapshotID, reason string) {
	payload := ledger.Payload{
		Status:     ledger.StatusFailed,
		Reason:     reason,
		RecipeID:   plan.RecipeID,
		SnapshotID: snapshotID,
		Edits:      plan.Edits,
	}
	if _, err := e.ledger.Append(runID, payload); err != nil {
		e.logger.Error("failure entry not recorded", "run_id", runID, "error", err)
	}
}

func writeEdit(edit contracts.Edit) error {
	dir := filepath.Dir(edit.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(edit.Path, []byte(edit.NewContent), 0o644)
}
