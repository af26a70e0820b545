package recipe

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/Mindburn-Labs/mend/pkg/contracts"
	"github.com/Mindburn-Labs/mend/pkg/filerisk"
	"github.com/Mindburn-Labs/mend/pkg/trust"
)

// Score blend weights and safety thresholds.
const (
	weightML     = 0.4
	weightTrust  = 0.3
	weightFusion = 0.3

	safeFinalMin    = 0.8
	safeMLMin       = 0.7
	safeTrustMin    = 0.7
	reviewFinalMin  = 0.6
	reviewMLMin     = 0.5
	reviewTrustMin  = 0.5
	fallbackMLScore = 0.5
)

// Options tunes one selection pass.
type Options struct {
	MaxRecipes    int         // cap on returned candidates; default 5
	MinFinalScore float64     // admission floor before aggressiveness; default 0.6
	SafetyFloor   SafetyClass // default "safe"

	// Aggressiveness in [0,1] lowers the admission threshold
	// proportionally and, at or above ReviewFloorLevel, relaxes the
	// safety floor from "safe" to "review". This is the only place
	// aggressiveness affects selection.
	Aggressiveness   float64
	ReviewFloorLevel float64 // default 0.7
}

func (o Options) withDefaults() Options {
	if o.MaxRecipes <= 0 {
		o.MaxRecipes = 5
	}
	if o.MinFinalScore == 0 {
		o.MinFinalScore = 0.6
	}
	if o.SafetyFloor == "" {
		o.SafetyFloor = SafetySafe
	}
	if o.ReviewFloorLevel == 0 {
		o.ReviewFloorLevel = 0.7
	}
	return o
}

// Selector ranks candidate recipes by predicted success, historical trust,
// and an ensemble fusion score.
type Selector struct {
	catalog   *Catalog
	trust     *trust.Store
	predictor Predictor
	risk      *filerisk.Index
	logger    *slog.Logger
}

// NewSelector wires a selector. predictor may be nil, in which case the
// built-in heuristic model serves predictions.
func NewSelector(catalog *Catalog, trustStore *trust.Store, predictor Predictor, risk *filerisk.Index) *Selector {
	if predictor == nil {
		predictor = HeuristicPredictor{}
	}
	if risk == nil {
		risk = filerisk.NewDefaultIndex()
	}
	return &Selector{
		catalog:   catalog,
		trust:     trustStore,
		predictor: predictor,
		risk:      risk,
		logger:    slog.Default().With("component", "selector"),
	}
}

// Select produces the ranked, safety-classified shortlist for the observed
// metrics, ordered by descending final score and capped at MaxRecipes.
// Blacklisted recipes are never candidates regardless of their scores.
func (s *Selector) Select(m *contracts.Metrics, opts Options) []Selected {
	opts = opts.withDefaults()

	floor := opts.SafetyFloor
	if opts.Aggressiveness >= opts.ReviewFloorLevel && floor == SafetySafe {
		floor = SafetyReview
	}
	minFinal := opts.MinFinalScore * (1 - 0.3*opts.Aggressiveness)

	groups := s.groupIssues(m)

	var out []Selected
	for _, g := range groups {
		if rec, ok := s.trust.Get(g.recipe.ID); ok && rec.Blacklisted() {
			s.logger.Info("recipe excluded by blacklist",
				"recipe", g.recipe.ID,
				"consecutive_failures", rec.ConsecutiveFailures,
				"success_rate", rec.SuccessRate)
			continue
		}

		sel := s.scoreCandidate(g, m)
		if sel.Scores.Final < minFinal {
			continue
		}
		if !sel.Safety.AtLeast(floor) {
			continue
		}
		out = append(out, sel)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Scores.Final != out[j].Scores.Final {
			return out[i].Scores.Final > out[j].Scores.Final
		}
		if out[i].Recipe.Priority != out[j].Recipe.Priority {
			return out[i].Recipe.Priority > out[j].Recipe.Priority
		}
		return out[i].Recipe.ID < out[j].Recipe.ID
	})
	if len(out) > opts.MaxRecipes {
		out = out[:opts.MaxRecipes]
	}
	return out
}

// group is one candidate recipe with the issue categories routed to it.
type group struct {
	recipe     *Recipe
	categories []string
	issueCount int
}

// groupIssues assigns every observed issue category to its first matching
// candidate recipe, in recipe priority order. A category lands on at most
// one recipe.
func (s *Selector) groupIssues(m *contracts.Metrics) []group {
	ordered := make([]*Recipe, 0, len(s.catalog.Recipes))
	for i := range s.catalog.Recipes {
		ordered = append(ordered, &s.catalog.Recipes[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	categories := make([]string, 0, len(m.Counts))
	for cat, count := range m.Counts {
		if count > 0 {
			categories = append(categories, cat)
		}
	}
	sort.Strings(categories)

	byRecipe := make(map[string]*group)
	var order []string
	for _, cat := range categories {
		for _, r := range ordered {
			if r.Category != cat || !s.catalog.Matches(r, m) {
				continue
			}
			g, ok := byRecipe[r.ID]
			if !ok {
				g = &group{recipe: r}
				byRecipe[r.ID] = g
				order = append(order, r.ID)
			}
			g.categories = append(g.categories, cat)
			g.issueCount += m.Counts[cat]
			break
		}
	}

	groups := make([]group, 0, len(order))
	for _, id := range order {
		groups = append(groups, *byRecipe[id])
	}
	return groups
}

func (s *Selector) scoreCandidate(g group, m *contracts.Metrics) Selected {
	features := s.features(g, m)

	var justification []string

	mlScore := fallbackMLScore
	pred, err := s.predictor.Predict(features)
	if err != nil {
		justification = append(justification,
			fmt.Sprintf("ml: predictor unavailable, neutral fallback %.2f", mlScore))
	} else {
		mlScore = pred.HeuristicPrediction
		justification = append(justification,
			fmt.Sprintf("ml: %.2f (ensemble failure probability %.2f)", mlScore, pred.EnsembleFailureProbability))
	}

	trustScore := g.recipe.DefaultTrust
	if rec, ok := s.trust.Get(g.recipe.ID); ok {
		trustScore = rec.SuccessRate
		justification = append(justification,
			fmt.Sprintf("trust: %.2f over %d runs", trustScore, rec.TotalRuns))
	} else {
		justification = append(justification,
			fmt.Sprintf("trust: no history, recipe default %.2f", trustScore))
	}

	fusionScore, err := s.predictor.Fuse(FusionInputs{
		Heuristic:    mlScore,
		Neural:       mlScore,
		MultiTask:    trustScore,
		Bayesian:     trustScore,
		FileTypeRisk: features.FileTypeRisk,
	})
	if err != nil {
		// Documented degradation when the ensemble is unavailable.
		fusionScore = 0.6*mlScore + 0.4*trustScore
		justification = append(justification,
			fmt.Sprintf("fusion: ensemble unavailable, degraded blend %.2f", fusionScore))
	} else {
		justification = append(justification, fmt.Sprintf("fusion: %.2f", fusionScore))
	}

	final := weightML*mlScore + weightTrust*trustScore + weightFusion*fusionScore

	safety := classify(final, mlScore, trustScore)
	justification = append(justification,
		fmt.Sprintf("final: %.3f; safety: %s", final, safety))

	return Selected{
		Recipe:        g.recipe,
		Scores:        Scores{ML: mlScore, Trust: trustScore, Fusion: fusionScore, Final: final},
		Safety:        safety,
		Issues:        g.categories,
		Justification: justification,
	}
}

func (s *Selector) features(g group, m *contracts.Metrics) Features {
	f := Features{
		RecipeID:      g.recipe.ID,
		IssueCount:    g.issueCount,
		CategoryCount: len(g.categories),
	}

	var riskSum float64
	var riskN int
	for _, cat := range g.categories {
		for _, d := range m.Details[cat] {
			if d.Risk > 0 {
				riskSum += d.Risk
				riskN++
			}
			if d.Priority > f.MaxPriority {
				f.MaxPriority = d.Priority
			}
			if d.File != "" {
				f.FileTypeRisk += s.risk.RiskScore(s.risk.Resolve(d.File))
			}
		}
	}
	if riskN > 0 {
		f.AvgIssueRisk = riskSum / float64(riskN)
	}

	var files int
	for _, cat := range g.categories {
		for _, d := range m.Details[cat] {
			if d.File != "" {
				files++
			}
		}
	}
	if files > 0 {
		f.FileTypeRisk /= float64(files)
	} else {
		f.FileTypeRisk = s.risk.RiskScore(nil)
	}
	return f
}

// classify applies the safety thresholds: "safe" demands strong agreement
// across every signal, "review" tolerates moderate ones, everything else
// is "unsafe".
func classify(final, ml, trustScore float64) SafetyClass {
	switch {
	case final >= safeFinalMin && ml >= safeMLMin && trustScore >= safeTrustMin:
		return SafetySafe
	case final >= reviewFinalMin && ml >= reviewMLMin && trustScore >= reviewTrustMin:
		return SafetyReview
	default:
		return SafetyUnsafe
	}
}
