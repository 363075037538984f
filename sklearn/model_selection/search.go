package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/glassbox/core/model"
	"github.com/YuminosukeSato/glassbox/core/parallel"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
)

// TunableClassifier is a classifier whose hyperparameters a parameter
// search can set.
type TunableClassifier interface {
	model.Classifier
	model.ParameterSetter
}

// CandidateResult is the cross-validated outcome of one parameter set.
type CandidateResult struct {
	Params     map[string]interface{}
	MeanScore  float64
	StdScore   float64
	FoldScores []float64
}

// searchConfig holds the options shared by grid and randomized search.
type searchConfig struct {
	splitter Splitter
	scoring  string
	nJobs    int
}

// SearchOption configures GridSearchCV and RandomizedSearchCV.
type SearchOption func(*searchConfig)

// WithSearchSplitter sets the cross-validation splitter. The default is a
// shuffled 5-fold stratified split.
func WithSearchSplitter(s Splitter) SearchOption {
	return func(c *searchConfig) { c.splitter = s }
}

// WithSearchScoring sets the scoring metric, one of the names accepted by
// CrossValidate.
func WithSearchScoring(scoring string) SearchOption {
	return func(c *searchConfig) { c.scoring = scoring }
}

// WithSearchNJobs sets the number of workers evaluating candidates. Zero
// or negative uses all CPUs.
func WithSearchNJobs(n int) SearchOption {
	return func(c *searchConfig) { c.nJobs = n }
}

func newSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{
		splitter: NewStratifiedKFold(5, true, 0),
		scoring:  "accuracy",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// searchResult holds the outcome of a finished parameter search.
type searchResult struct {
	results    []CandidateResult
	bestParams map[string]interface{}
	bestScore  float64
	bestModel  TunableClassifier
	fitted     bool
}

// BestParams returns the parameter set with the best mean CV score.
// Valid after Fit.
func (s *searchResult) BestParams() map[string]interface{} {
	if !s.fitted {
		return nil
	}
	out := make(map[string]interface{}, len(s.bestParams))
	for k, v := range s.bestParams {
		out[k] = v
	}
	return out
}

// BestScore returns the best mean CV score. Valid after Fit.
func (s *searchResult) BestScore() float64 {
	return s.bestScore
}

// BestModel returns the model refitted on the full data with the best
// parameters. Valid after Fit.
func (s *searchResult) BestModel() TunableClassifier {
	return s.bestModel
}

// Results returns all evaluated candidates, best first.
func (s *searchResult) Results() []CandidateResult {
	return append([]CandidateResult(nil), s.results...)
}

// IsFitted reports whether the search has run.
func (s *searchResult) IsFitted() bool {
	return s.fitted
}

// runSearch cross-validates every candidate, ranks them and refits the
// winner on the full data.
func (s *searchResult) runSearch(factory func() TunableClassifier, candidates []map[string]interface{}, X, y mat.Matrix, cfg *searchConfig) error {
	results := make([]CandidateResult, len(candidates))

	err := parallel.ForEachIndexed(len(candidates), cfg.nJobs, func(i int) error {
		params := candidates[i]

		// Catch invalid parameter values before spending CV time on them.
		probe := factory()
		if err := probe.SetParams(params); err != nil {
			return errors.Wrapf(err, "candidate %d has invalid parameters", i)
		}

		cv, err := CrossValidate(func() model.Classifier {
			clf := factory()
			_ = clf.SetParams(params)
			return clf
		}, X, y, cfg.splitter, cfg.scoring)
		if err != nil {
			return errors.Wrapf(err, "candidate %d failed", i)
		}

		results[i] = CandidateResult{
			Params:     params,
			MeanScore:  cv.GetMeanScore(),
			StdScore:   cv.GetStdScore(),
			FoldScores: cv.TestScores,
		}
		return nil
	})
	if err != nil {
		return err
	}

	loss := isLossMetric(cfg.scoring)
	sort.SliceStable(results, func(a, b int) bool {
		if loss {
			return results[a].MeanScore < results[b].MeanScore
		}
		return results[a].MeanScore > results[b].MeanScore
	})

	best := factory()
	if err := best.SetParams(results[0].Params); err != nil {
		return err
	}
	if err := best.Fit(X, y); err != nil {
		return errors.Wrap(err, "failed to refit the best candidate")
	}

	s.results = results
	s.bestParams = results[0].Params
	s.bestScore = results[0].MeanScore
	s.bestModel = best
	s.fitted = true

	logger := log.GetLoggerWithName("model_selection.search")
	logger.Info("parameter search finished",
		"candidates", len(candidates),
		"scoring", cfg.scoring,
		"best_score", s.bestScore,
	)
	return nil
}

// GridSearchCV exhaustively cross-validates every combination of the
// parameter grid.
type GridSearchCV struct {
	searchResult

	factory func() TunableClassifier
	grid    map[string][]interface{}
	cfg     searchConfig
}

// NewGridSearchCV creates a grid search over the given parameter grid.
// An empty grid evaluates the factory defaults as the only candidate.
func NewGridSearchCV(factory func() TunableClassifier, grid map[string][]interface{}, opts ...SearchOption) *GridSearchCV {
	return &GridSearchCV{
		factory: factory,
		grid:    grid,
		cfg:     newSearchConfig(opts),
	}
}

// Fit evaluates all grid candidates and refits the best one.
func (gs *GridSearchCV) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GridSearchCV.Fit")

	if gs.factory == nil {
		return errors.NewValueError("GridSearchCV.Fit", "model factory must not be nil")
	}
	candidates, err := enumerateGrid(gs.grid)
	if err != nil {
		return err
	}
	return gs.runSearch(gs.factory, candidates, X, y, &gs.cfg)
}

// enumerateGrid expands the grid into candidate parameter sets. Keys are
// walked in sorted order so the enumeration is deterministic.
func enumerateGrid(grid map[string][]interface{}) ([]map[string]interface{}, error) {
	if len(grid) == 0 {
		return []map[string]interface{}{{}}, nil
	}

	keys := make([]string, 0, len(grid))
	for k := range grid {
		if len(grid[k]) == 0 {
			return nil, errors.NewValidationError(k, "grid values must not be empty", nil)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 1
	for _, k := range keys {
		total *= len(grid[k])
	}

	candidates := make([]map[string]interface{}, 0, total)
	odometer := make([]int, len(keys))
	for {
		params := make(map[string]interface{}, len(keys))
		for i, k := range keys {
			params[k] = grid[k][odometer[i]]
		}
		candidates = append(candidates, params)

		pos := len(keys) - 1
		for pos >= 0 {
			odometer[pos]++
			if odometer[pos] < len(grid[keys[pos]]) {
				break
			}
			odometer[pos] = 0
			pos--
		}
		if pos < 0 {
			return candidates, nil
		}
	}
}

// ParamDistribution describes how RandomizedSearchCV draws one parameter.
// With Values set, draws pick uniformly from the list; otherwise draws are
// uniform on [Min, Max], rounded to int when Ints is true.
type ParamDistribution struct {
	Values []interface{}
	Min    float64
	Max    float64
	Ints   bool
}

// RandomizedSearchCV cross-validates a fixed number of randomly drawn
// parameter sets.
type RandomizedSearchCV struct {
	searchResult

	factory       func() TunableClassifier
	distributions map[string]ParamDistribution
	nIter         int
	seed          int64
	cfg           searchConfig
}

// NewRandomizedSearchCV creates a randomized search drawing nIter
// candidates from the given distributions.
func NewRandomizedSearchCV(factory func() TunableClassifier, distributions map[string]ParamDistribution, nIter int, seed int64, opts ...SearchOption) *RandomizedSearchCV {
	return &RandomizedSearchCV{
		factory:       factory,
		distributions: distributions,
		nIter:         nIter,
		seed:          seed,
		cfg:           newSearchConfig(opts),
	}
}

// Fit draws and evaluates the candidates, then refits the best one.
func (rs *RandomizedSearchCV) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomizedSearchCV.Fit")

	if rs.factory == nil {
		return errors.NewValueError("RandomizedSearchCV.Fit", "model factory must not be nil")
	}
	if rs.nIter < 1 {
		return errors.NewValueError("RandomizedSearchCV.Fit",
			fmt.Sprintf("n_iter must be >= 1, got %d", rs.nIter))
	}
	if len(rs.distributions) == 0 {
		return errors.NewValueError("RandomizedSearchCV.Fit", "no parameter distributions given")
	}

	keys := make([]string, 0, len(rs.distributions))
	for k := range rs.distributions {
		d := rs.distributions[k]
		if len(d.Values) == 0 && d.Min >= d.Max {
			return errors.NewValidationError(k, "continuous distribution needs Min < Max", d)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// One seeded uniform source drives every draw, so a fixed seed
	// reproduces the full candidate list.
	u := distuv.Uniform{
		Min: 0,
		Max: 1,
		Src: rand.NewPCG(uint64(rs.seed), uint64(rs.seed)),
	}

	candidates := make([]map[string]interface{}, rs.nIter)
	for i := 0; i < rs.nIter; i++ {
		params := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			d := rs.distributions[k]
			if len(d.Values) > 0 {
				idx := int(u.Rand() * float64(len(d.Values)))
				if idx >= len(d.Values) {
					idx = len(d.Values) - 1
				}
				params[k] = d.Values[idx]
			} else {
				v := d.Min + u.Rand()*(d.Max-d.Min)
				if d.Ints {
					params[k] = int(math.Round(v))
				} else {
					params[k] = v
				}
			}
		}
		candidates[i] = params
	}

	return rs.runSearch(rs.factory, candidates, X, y, &rs.cfg)
}
