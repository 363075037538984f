package explain

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/glassbox/core/parallel"
	"github.com/YuminosukeSato/glassbox/metrics"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
)

// LossFunc scores predictions against true labels. Lower is better.
type LossFunc func(yTrue, yScore *mat.VecDense) (float64, error)

// OneMinusAUC is the default dropout loss for permutation importance.
func OneMinusAUC(yTrue, yScore *mat.VecDense) (float64, error) {
	auc, err := metrics.AUC(yTrue, yScore)
	if err != nil {
		return 0, err
	}
	return 1 - auc, nil
}

// FeatureImportance is the dropout-loss summary for one feature.
type FeatureImportance struct {
	Feature         string
	MeanDropoutLoss float64
	StdDropoutLoss  float64
}

// ImportanceResult holds permutation importances for every feature,
// sorted by mean dropout loss in descending order.
type ImportanceResult struct {
	Label    string
	LossName string
	Rounds   int

	// FullModelLoss is the loss with the data intact.
	FullModelLoss float64
	// BaselineLoss is the loss after permuting every column at once, a
	// reference for a model stripped of all information.
	BaselineLoss float64

	Importances []FeatureImportance
}

type importanceConfig struct {
	rounds   int
	seed     int64
	loss     LossFunc
	lossName string
	workers  int
}

// ImportanceOption configures PermutationImportance.
type ImportanceOption func(*importanceConfig)

// WithImportanceRounds sets the number of permutation rounds per
// feature. The default is 10.
func WithImportanceRounds(b int) ImportanceOption {
	return func(c *importanceConfig) { c.rounds = b }
}

// WithImportanceSeed fixes the permutation stream.
func WithImportanceSeed(seed int64) ImportanceOption {
	return func(c *importanceConfig) { c.seed = seed }
}

// WithImportanceLoss replaces the default 1-AUC dropout loss. The name
// labels plot axes and reports.
func WithImportanceLoss(name string, loss LossFunc) ImportanceOption {
	return func(c *importanceConfig) {
		c.lossName = name
		c.loss = loss
	}
}

// WithImportanceWorkers caps the number of parallel workers. Zero or
// negative selects the number of CPUs.
func WithImportanceWorkers(n int) ImportanceOption {
	return func(c *importanceConfig) { c.workers = n }
}

// PermutationImportance measures each feature's contribution as the
// increase in loss after permuting that feature's column, averaged over
// several permutation rounds. Features are processed in parallel; a
// fixed seed gives identical results at any worker count.
func (e *Explainer) PermutationImportance(opts ...ImportanceOption) (*ImportanceResult, error) {
	cfg := importanceConfig{
		rounds:   10,
		seed:     1,
		loss:     OneMinusAUC,
		lossName: "1 - AUC",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rounds < 1 {
		return nil, errors.NewValueError("PermutationImportance", "rounds must be >= 1")
	}
	if cfg.loss == nil {
		return nil, errors.NewValueError("PermutationImportance", "loss function must not be nil")
	}

	rows, cols := e.X.Dims()

	scores, err := e.predictOn(e.X)
	if err != nil {
		return nil, err
	}
	fullLoss, err := cfg.loss(e.y, scores)
	if err != nil {
		return nil, err
	}

	baseline, err := e.allPermutedLoss(cfg)
	if err != nil {
		return nil, err
	}

	importances := make([]FeatureImportance, cols)
	err = parallel.ForEachIndexed(cols, cfg.workers, func(j int) error {
		// Stream sub-keyed by column, so results do not depend on
		// which worker picks the column up.
		rng := rand.New(rand.NewPCG(uint64(cfg.seed), uint64(j)+1))

		scratch := mat.DenseCopyOf(e.X)
		original := make([]float64, rows)
		mat.Col(original, j, e.X)
		permuted := make([]float64, rows)
		losses := make([]float64, cfg.rounds)

		for b := 0; b < cfg.rounds; b++ {
			copy(permuted, original)
			rng.Shuffle(rows, func(u, v int) {
				permuted[u], permuted[v] = permuted[v], permuted[u]
			})
			scratch.SetCol(j, permuted)

			permScores, err := e.predictOn(scratch)
			if err != nil {
				return errors.Wrapf(err, "failed to score permutation of %q", e.features[j])
			}
			losses[b], err = cfg.loss(e.y, permScores)
			if err != nil {
				return errors.Wrapf(err, "loss failed on permutation of %q", e.features[j])
			}
		}

		mean, std := stat.MeanStdDev(losses, nil)
		if cfg.rounds == 1 {
			std = 0
		}
		importances[j] = FeatureImportance{
			Feature:         e.features[j],
			MeanDropoutLoss: mean,
			StdDropoutLoss:  std,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Stable sort keeps column order on ties.
	sort.SliceStable(importances, func(a, b int) bool {
		return importances[a].MeanDropoutLoss > importances[b].MeanDropoutLoss
	})

	e.logger.Info("permutation importance computed",
		log.ModelNameKey, e.label,
		log.FeaturesKey, cols,
		"rounds", cfg.rounds,
		log.LossKey, fullLoss,
	)
	return &ImportanceResult{
		Label:         e.label,
		LossName:      cfg.lossName,
		Rounds:        cfg.rounds,
		FullModelLoss: fullLoss,
		BaselineLoss:  baseline,
		Importances:   importances,
	}, nil
}

// allPermutedLoss permutes every column at once and averages the loss
// over the configured number of rounds.
func (e *Explainer) allPermutedLoss(cfg importanceConfig) (float64, error) {
	rows, cols := e.X.Dims()
	rng := rand.New(rand.NewPCG(uint64(cfg.seed), 0))

	scratch := mat.DenseCopyOf(e.X)
	column := make([]float64, rows)
	var sum float64
	for b := 0; b < cfg.rounds; b++ {
		for j := 0; j < cols; j++ {
			mat.Col(column, j, e.X)
			rng.Shuffle(rows, func(u, v int) {
				column[u], column[v] = column[v], column[u]
			})
			scratch.SetCol(j, column)
		}
		scores, err := e.predictOn(scratch)
		if err != nil {
			return 0, err
		}
		loss, err := cfg.loss(e.y, scores)
		if err != nil {
			return 0, err
		}
		sum += loss
	}
	return sum / float64(cfg.rounds), nil
}
