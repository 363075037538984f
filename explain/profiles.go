package explain

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
)

// Grid strategies for profile computation.
const (
	GridUniform  = "uniform"
	GridQuantile = "quantile"
)

type profileConfig struct {
	gridSize int
	strategy string
}

// ProfileOption configures PartialDependence and CeterisParibus grids.
type ProfileOption func(*profileConfig)

// WithGridSize sets the maximum number of grid points per feature. The
// default is 20. Features with fewer distinct values use those values
// directly, so binary flags always get a two-point grid.
func WithGridSize(n int) ProfileOption {
	return func(c *profileConfig) { c.gridSize = n }
}

// WithGridStrategy selects GridUniform (evenly spaced between min and
// max, the default) or GridQuantile (empirical quantiles, robust to
// skewed features).
func WithGridStrategy(s string) ProfileOption {
	return func(c *profileConfig) { c.strategy = s }
}

// PDPoint is one grid point of a partial-dependence profile.
type PDPoint struct {
	Value   float64
	Average float64
}

// PDProfile is the partial-dependence curve for a single feature: the
// model's average prediction over the reference population with that
// feature forced to each grid value.
type PDProfile struct {
	Feature string
	Points  []PDPoint
}

// PartialDependence computes profiles for the named features. Each grid
// value is substituted into every reference row and the predictions are
// averaged, so the curve shows the model's response with the remaining
// features held at their observed joint distribution.
func (e *Explainer) PartialDependence(features []string, opts ...ProfileOption) ([]PDProfile, error) {
	cfg, err := resolveProfileConfig(opts)
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, errors.NewValueError("PartialDependence", "at least one feature is required")
	}

	rows, _ := e.X.Dims()
	scratch := mat.DenseCopyOf(e.X)
	original := make([]float64, rows)

	profiles := make([]PDProfile, 0, len(features))
	for _, name := range features {
		j, err := e.featureIndex("PartialDependence", name)
		if err != nil {
			return nil, err
		}
		grid := e.gridFor(j, cfg)

		points := make([]PDPoint, 0, len(grid))
		for _, v := range grid {
			setColumn(scratch, j, v)
			avg, err := e.meanPredictOn(scratch)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to profile %q", name)
			}
			points = append(points, PDPoint{Value: v, Average: avg})
		}

		// Put the untouched column back before the next feature.
		mat.Col(original, j, e.X)
		scratch.SetCol(j, original)

		profiles = append(profiles, PDProfile{Feature: name, Points: points})
	}

	e.logger.Info("partial dependence computed",
		log.ModelNameKey, e.label,
		log.FeaturesKey, len(profiles),
		"grid_size", cfg.gridSize,
	)
	return profiles, nil
}

// CPPoint is one grid point of a ceteris-paribus profile.
type CPPoint struct {
	Value      float64
	Prediction float64
}

// CPProfile traces the model's prediction for one observation as a
// single feature sweeps its grid, all other features held fixed.
type CPProfile struct {
	Feature string
	Points  []CPPoint
	// ActualValue is the observation's own value for Feature, and
	// Observed the model's prediction at the unmodified observation.
	ActualValue float64
	Observed    float64
}

// CeterisParibus computes what-if profiles for a single observation
// over the same grids PartialDependence uses.
func (e *Explainer) CeterisParibus(obs *mat.VecDense, features []string, opts ...ProfileOption) ([]CPProfile, error) {
	cfg, err := resolveProfileConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := e.checkObservation("CeterisParibus", obs); err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, errors.NewValueError("CeterisParibus", "at least one feature is required")
	}

	observed, err := e.predictObservation(obs)
	if err != nil {
		return nil, err
	}
	base := rawVec(obs)

	profiles := make([]CPProfile, 0, len(features))
	for _, name := range features {
		j, err := e.featureIndex("CeterisParibus", name)
		if err != nil {
			return nil, err
		}
		grid := e.gridFor(j, cfg)

		// One row per grid value, predicted in a single batch.
		sweep := mat.NewDense(len(grid), len(base), nil)
		for g, v := range grid {
			sweep.SetRow(g, base)
			sweep.Set(g, j, v)
		}
		preds, err := e.predictOn(sweep)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to profile %q", name)
		}

		points := make([]CPPoint, len(grid))
		for g, v := range grid {
			points[g] = CPPoint{Value: v, Prediction: preds.AtVec(g)}
		}
		profiles = append(profiles, CPProfile{
			Feature:     name,
			Points:      points,
			ActualValue: obs.AtVec(j),
			Observed:    observed,
		})
	}

	e.logger.Info("ceteris paribus computed",
		log.ModelNameKey, e.label,
		log.FeaturesKey, len(profiles),
	)
	return profiles, nil
}

func resolveProfileConfig(opts []ProfileOption) (profileConfig, error) {
	cfg := profileConfig{gridSize: 20, strategy: GridUniform}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.gridSize < 2 {
		return cfg, errors.NewValidationError("gridSize", "must be >= 2", cfg.gridSize)
	}
	if cfg.strategy != GridUniform && cfg.strategy != GridQuantile {
		return cfg, errors.NewValidationError("gridStrategy", `must be "uniform" or "quantile"`, cfg.strategy)
	}
	return cfg, nil
}

// gridFor builds the evaluation grid for column j from the reference
// data. Low-cardinality columns use their distinct values as-is.
func (e *Explainer) gridFor(j int, cfg profileConfig) []float64 {
	rows, _ := e.X.Dims()
	values := make([]float64, rows)
	mat.Col(values, j, e.X)
	sort.Float64s(values)

	unique := values[:0:0]
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			unique = append(unique, v)
		}
	}
	if len(unique) <= cfg.gridSize {
		return unique
	}

	grid := make([]float64, 0, cfg.gridSize)
	switch cfg.strategy {
	case GridQuantile:
		for i := 0; i < cfg.gridSize; i++ {
			q := float64(i) / float64(cfg.gridSize-1)
			v := stat.Quantile(q, stat.Empirical, values, nil)
			if len(grid) == 0 || v != grid[len(grid)-1] {
				grid = append(grid, v)
			}
		}
	default:
		lo, hi := unique[0], unique[len(unique)-1]
		step := (hi - lo) / float64(cfg.gridSize-1)
		for i := 0; i < cfg.gridSize; i++ {
			grid = append(grid, lo+float64(i)*step)
		}
		grid[len(grid)-1] = hi
	}
	return grid
}
