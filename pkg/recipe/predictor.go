package recipe

import "errors"

// ErrPredictorUnavailable signals that a predictive backend cannot serve.
// It is never fatal: every caller degrades to a documented numeric fallback.
var ErrPredictorUnavailable = errors.New("predictor unavailable")

// Features is the input vector for one (recipe, issue group) prediction.
type Features struct {
	RecipeID      string
	IssueCount    int
	AvgIssueRisk  float64 // 0..1 from issue details
	MaxPriority   int
	FileTypeRisk  float64 // 0..1 from the file-risk index
	CategoryCount int
}

// Prediction is the opaque model output consumed by the selector.
type Prediction struct {
	EnsembleFailureProbability float64 // 0..1
	HeuristicPrediction        float64 // 0..1 success likelihood
}

// Predictor is the external model boundary. Implementations may be remote
// services or in-process heuristics; the selector does not care.
type Predictor interface {
	// Predict scores one candidate's success likelihood.
	Predict(f Features) (Prediction, error)
	// Fuse blends multi-model inputs into a single fusion score in [0,1].
	Fuse(inputs FusionInputs) (float64, error)
}

// FusionInputs carries the independent signals blended into a fusion score.
type FusionInputs struct {
	Heuristic    float64
	Neural       float64
	MultiTask    float64
	Bayesian     float64
	FileTypeRisk float64
}

// HeuristicPredictor is the built-in fallback model: a transparent linear
// blend used when no external predictor is wired.
type HeuristicPredictor struct{}

// Predict derives success likelihood from issue pressure and file risk.
func (HeuristicPredictor) Predict(f Features) (Prediction, error) {
	// More issues of the same category mean a better-understood fix;
	// riskier files mean a worse one.
	pressure := float64(f.IssueCount) / float64(f.IssueCount+5)
	success := 0.5 + 0.4*pressure - 0.3*f.FileTypeRisk - 0.1*f.AvgIssueRisk
	if success < 0 {
		success = 0
	}
	if success > 1 {
		success = 1
	}
	return Prediction{
		EnsembleFailureProbability: 1 - success,
		HeuristicPrediction:        success,
	}, nil
}

// Fuse weights the ensemble components, discounting by contextual file risk.
func (HeuristicPredictor) Fuse(in FusionInputs) (float64, error) {
	blend := 0.35*in.Heuristic + 0.25*in.Neural + 0.2*in.MultiTask + 0.2*in.Bayesian
	blend *= 1 - 0.25*in.FileTypeRisk
	if blend < 0 {
		blend = 0
	}
	if blend > 1 {
		blend = 1
	}
	return blend, nil
}
