package explain

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/glassbox/core/parallel"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
)

// ShapleyContribution is one feature's sampled Shapley attribution.
type ShapleyContribution struct {
	Feature string
	// Value is the observation's value for Feature.
	Value float64
	// Mean averages the feature's marginal contribution over the
	// sampled permutations; Std is the spread across them.
	Mean float64
	Std  float64
}

// ShapleyResult holds sampled Shapley values for one observation,
// sorted by absolute mean contribution. The means sum to the
// observation's prediction minus the intercept.
type ShapleyResult struct {
	Label         string
	Intercept     float64
	Prediction    float64
	Rounds        int
	Contributions []ShapleyContribution
}

type shapleyConfig struct {
	rounds  int
	seed    int64
	workers int
}

// ShapleyOption configures ShapleyValues.
type ShapleyOption func(*shapleyConfig)

// WithShapleyRounds sets the number of sampled permutations. The
// default is 25.
func WithShapleyRounds(b int) ShapleyOption {
	return func(c *shapleyConfig) { c.rounds = b }
}

// WithShapleySeed fixes the permutation stream.
func WithShapleySeed(seed int64) ShapleyOption {
	return func(c *shapleyConfig) { c.seed = seed }
}

// WithShapleyWorkers caps the number of parallel workers. Zero or
// negative selects the number of CPUs.
func WithShapleyWorkers(n int) ShapleyOption {
	return func(c *shapleyConfig) { c.workers = n }
}

// ShapleyValues estimates Shapley attributions by averaging marginal
// contributions over random feature orderings. Within one ordering the
// features are substituted into the reference data one by one and each
// step's change in mean prediction is that feature's marginal.
// Permutation rounds run in parallel; a fixed seed gives identical
// results at any worker count.
func (e *Explainer) ShapleyValues(obs *mat.VecDense, opts ...ShapleyOption) (*ShapleyResult, error) {
	cfg := shapleyConfig{rounds: 25, seed: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rounds < 1 {
		return nil, errors.NewValueError("ShapleyValues", "rounds must be >= 1")
	}
	if err := e.checkObservation("ShapleyValues", obs); err != nil {
		return nil, err
	}
	_, cols := e.X.Dims()

	intercept, err := e.meanPredictOn(e.X)
	if err != nil {
		return nil, err
	}

	// marginals[j][b] is feature j's marginal in round b. Rounds write
	// disjoint slots, so the parallel loop needs no locking.
	marginals := make([][]float64, cols)
	for j := range marginals {
		marginals[j] = make([]float64, cfg.rounds)
	}

	err = parallel.ForEachIndexed(cfg.rounds, cfg.workers, func(b int) error {
		rng := rand.New(rand.NewPCG(uint64(cfg.seed), uint64(b)+1))
		order := rng.Perm(cols)

		scratch := mat.DenseCopyOf(e.X)
		current := intercept
		for _, j := range order {
			setColumn(scratch, j, obs.AtVec(j))
			m, err := e.meanPredictOn(scratch)
			if err != nil {
				return errors.Wrapf(err, "failed round %d at %q", b, e.features[j])
			}
			marginals[j][b] = m - current
			current = m
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	contributions := make([]ShapleyContribution, cols)
	for j := 0; j < cols; j++ {
		mean, std := stat.MeanStdDev(marginals[j], nil)
		if cfg.rounds == 1 {
			std = 0
		}
		contributions[j] = ShapleyContribution{
			Feature: e.features[j],
			Value:   obs.AtVec(j),
			Mean:    mean,
			Std:     std,
		}
	}
	sort.SliceStable(contributions, func(a, b int) bool {
		return math.Abs(contributions[a].Mean) > math.Abs(contributions[b].Mean)
	})

	prediction, err := e.predictObservation(obs)
	if err != nil {
		return nil, err
	}

	e.logger.Info("shapley values computed",
		log.ModelNameKey, e.label,
		log.FeaturesKey, cols,
		"rounds", cfg.rounds,
	)
	return &ShapleyResult{
		Label:         e.label,
		Intercept:     intercept,
		Prediction:    prediction,
		Rounds:        cfg.rounds,
		Contributions: contributions,
	}, nil
}
