// Package gates evaluates the fixed set of independent deployment gates
// against post-change signals and blends them into one keep/revert
// decision. Gates never mutate anything; a rejection is a first-class
// decision outcome, not an error.
package gates

import (
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/mend/pkg/filerisk"
)

// Sensitivity reflects how cautious the current deployment mode is. It
// scales the confidence threshold up by 0%/10%/20%/30%.
type Sensitivity string

const (
	SensitivityLow      Sensitivity = "low"
	SensitivityMedium   Sensitivity = "medium"
	SensitivityHigh     Sensitivity = "high"
	SensitivityCritical Sensitivity = "critical"
)

func (s Sensitivity) scale() float64 {
	switch s {
	case SensitivityMedium:
		return 1.1
	case SensitivityHigh:
		return 1.2
	case SensitivityCritical:
		return 1.3
	default:
		return 1.0
	}
}

// Default gate bounds.
const (
	DefaultConfidenceThreshold = 75.0
	DefaultLighthouseFloor     = 90.0
	DefaultMaxLCPMs            = 2500.0
	DefaultMaxFIDMs            = 100.0
	DefaultMaxCLS              = 0.1
	DefaultMaxRegressions      = 0
	SecurityRiskCeiling        = 0.7
	FileRiskCeiling            = 0.7
	FileRiskCaution            = 0.5
)

// PerformanceSignals are Lighthouse-style post-change measurements.
// Nil pointer fields mean the vital was not measured.
type PerformanceSignals struct {
	Lighthouse float64
	LCPMs      *float64
	FIDMs      *float64
	CLS        *float64
}

// Input carries every signal the gates consume for one run.
type Input struct {
	BrainConfidence     float64 // 0–100
	ConfidenceThreshold float64 // default 75
	Sensitivity         Sensitivity

	Performance *PerformanceSignals // nil when not measured

	Regressions    *int // nil when no baseline exists
	MaxRegressions int  // default 0

	SecurityRisk *float64 // 0..1; nil when no scan ran

	ChangedFiles []string

	FusionScore   float64 // 0–100
	ForceOverride bool
}

// Result is the outcome of one gate.
type Result struct {
	Gate   string   `json:"gate"`
	Pass   bool     `json:"pass"`
	Reason string   `json:"reason"`
	Score  *float64 `json:"score,omitempty"`
}

// Decision is the aggregated keep/revert verdict.
type Decision struct {
	CanDeploy       bool     `json:"can_deploy"`
	FinalConfidence float64  `json:"final_confidence"`
	Gates           []Result `json:"gates"`
	Reasoning       []string `json:"reasoning"`
}

// Telemetry receives gate evaluation counts. Implementations must be
// non-blocking; failures here never abort an evaluation.
type Telemetry interface {
	RecordGateEvaluation(passed, failed int, failedGates []string)
}

// Evaluator runs the gate set.
type Evaluator struct {
	risk      *filerisk.Index // nil degrades the file-risk gate to permissive
	telemetry Telemetry
	logger    *slog.Logger
}

// NewEvaluator wires an evaluator. Both arguments may be nil.
func NewEvaluator(risk *filerisk.Index, telemetry Telemetry) *Evaluator {
	return &Evaluator{
		risk:      risk,
		telemetry: telemetry,
		logger:    slog.Default().With("component", "gates"),
	}
}

// RunAllGates evaluates every gate independently.
func (e *Evaluator) RunAllGates(in Input) []Result {
	return []Result{
		e.confidenceGate(in),
		e.performanceGate(in),
		e.regressionGate(in),
		e.securityGate(in),
		e.fileRiskGate(in),
	}
}

func (e *Evaluator) confidenceGate(in Input) Result {
	threshold := in.ConfidenceThreshold
	if threshold == 0 {
		threshold = DefaultConfidenceThreshold
	}
	adjusted := threshold * in.Sensitivity.scale()

	score := in.BrainConfidence
	if in.BrainConfidence >= adjusted {
		return Result{Gate: "confidence", Pass: true, Score: &score,
			Reason: fmt.Sprintf("confidence %.1f meets adjusted threshold %.1f", in.BrainConfidence, adjusted)}
	}
	return Result{Gate: "confidence", Pass: false, Score: &score,
		Reason: fmt.Sprintf("confidence %.1f below adjusted threshold %.1f (base %.1f, sensitivity %s)",
			in.BrainConfidence, adjusted, threshold, in.Sensitivity)}
}

func (e *Evaluator) performanceGate(in Input) Result {
	if in.Performance == nil {
		return Result{Gate: "performance", Pass: true, Reason: "no performance signals supplied; passing permissively"}
	}
	p := in.Performance

	var violations []string
	if p.Lighthouse < DefaultLighthouseFloor {
		violations = append(violations, fmt.Sprintf("lighthouse %.0f < %.0f", p.Lighthouse, DefaultLighthouseFloor))
	}
	if p.LCPMs != nil && *p.LCPMs > DefaultMaxLCPMs {
		violations = append(violations, fmt.Sprintf("LCP %.0fms > %.0fms", *p.LCPMs, DefaultMaxLCPMs))
	}
	if p.FIDMs != nil && *p.FIDMs > DefaultMaxFIDMs {
		violations = append(violations, fmt.Sprintf("FID %.0fms > %.0fms", *p.FIDMs, DefaultMaxFIDMs))
	}
	if p.CLS != nil && *p.CLS > DefaultMaxCLS {
		violations = append(violations, fmt.Sprintf("CLS %.3f > %.3f", *p.CLS, DefaultMaxCLS))
	}

	score := p.Lighthouse
	if len(violations) > 0 {
		return Result{Gate: "performance", Pass: false, Score: &score,
			Reason: fmt.Sprintf("violated: %v", violations)}
	}
	return Result{Gate: "performance", Pass: true, Score: &score, Reason: "all web vitals within bounds"}
}

func (e *Evaluator) regressionGate(in Input) Result {
	if in.Regressions == nil {
		return Result{Gate: "regression", Pass: true, Reason: "warning: no baseline available; passing permissively"}
	}
	max := in.MaxRegressions
	if *in.Regressions <= max {
		return Result{Gate: "regression", Pass: true,
			Reason: fmt.Sprintf("%d regressions within limit %d", *in.Regressions, max)}
	}
	return Result{Gate: "regression", Pass: false,
		Reason: fmt.Sprintf("%d regressions exceed limit %d", *in.Regressions, max)}
}

func (e *Evaluator) securityGate(in Input) Result {
	if in.SecurityRisk == nil {
		return Result{Gate: "security", Pass: true, Reason: "no security risk score supplied; passing permissively"}
	}
	score := *in.SecurityRisk
	if score < SecurityRiskCeiling {
		return Result{Gate: "security", Pass: true, Score: &score,
			Reason: fmt.Sprintf("security risk %.2f below ceiling %.2f", score, SecurityRiskCeiling)}
	}
	return Result{Gate: "security", Pass: false, Score: &score,
		Reason: fmt.Sprintf("security risk %.2f at or above ceiling %.2f", score, SecurityRiskCeiling)}
}

func (e *Evaluator) fileRiskGate(in Input) Result {
	if e.risk == nil || len(in.ChangedFiles) == 0 {
		return Result{Gate: "file-risk", Pass: true, Reason: "file-risk index unavailable; passing permissively"}
	}

	var sum, worst float64
	var worstFile string
	for _, f := range in.ChangedFiles {
		score := e.risk.RiskScore(e.risk.Resolve(f))
		sum += score
		if score > worst {
			worst = score
			worstFile = f
		}
	}
	avg := sum / float64(len(in.ChangedFiles))

	switch {
	case avg >= FileRiskCeiling:
		return Result{Gate: "file-risk", Pass: false, Score: &avg,
			Reason: fmt.Sprintf("average file risk %.2f at or above %.2f", avg, FileRiskCeiling)}
	case worst >= FileRiskCeiling:
		return Result{Gate: "file-risk", Pass: false, Score: &avg,
			Reason: fmt.Sprintf("%s scores %.2f, at or above %.2f", worstFile, worst, FileRiskCeiling)}
	case avg >= FileRiskCaution:
		return Result{Gate: "file-risk", Pass: true, Score: &avg,
			Reason: fmt.Sprintf("caution: average file risk %.2f in [%.2f, %.2f)", avg, FileRiskCaution, FileRiskCeiling)}
	default:
		return Result{Gate: "file-risk", Pass: true, Score: &avg,
			Reason: fmt.Sprintf("average file risk %.2f", avg)}
	}
}

// RunGuardianCI runs every gate and aggregates the keep/revert decision:
//
//	finalConfidence = 0.5·brain + 0.3·fusion + 0.2·(passed/total)·100
//
// canDeploy requires all gates to pass, unless a force-override is
// supplied, in which case the override is recorded in the reasoning trail.
func (e *Evaluator) RunGuardianCI(in Input) Decision {
	results := e.RunAllGates(in)

	passed := 0
	var failedGates []string
	var reasoning []string
	for _, r := range results {
		if r.Pass {
			passed++
		} else {
			failedGates = append(failedGates, r.Gate)
		}
		reasoning = append(reasoning, fmt.Sprintf("[%s] pass=%t: %s", r.Gate, r.Pass, r.Reason))
	}

	total := len(results)
	finalConfidence := 0.5*in.BrainConfidence + 0.3*in.FusionScore + 0.2*(float64(passed)/float64(total))*100

	canDeploy := passed == total
	if !canDeploy && in.ForceOverride {
		canDeploy = true
		reasoning = append(reasoning,
			fmt.Sprintf("force-override applied despite failed gates: %v", failedGates))
	}

	e.emitTelemetry(passed, total-passed, failedGates)

	return Decision{
		CanDeploy:       canDeploy,
		FinalConfidence: finalConfidence,
		Gates:           results,
		Reasoning:       reasoning,
	}
}

// emitTelemetry reports gate counts. Telemetry failures must never abort
// the evaluation, so panics from the sink are contained here.
func (e *Evaluator) emitTelemetry(passed, failed int, failedGates []string) {
	if e.telemetry == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("telemetry sink panicked", "panic", r)
		}
	}()
	e.telemetry.RecordGateEvaluation(passed, failed, failedGates)
}
