package explain

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
)

// Contribution is one feature's additive share of a single prediction.
type Contribution struct {
	Feature string
	// Value is the observation's value for Feature.
	Value        float64
	Contribution float64
	// Cumulative is the running total intercept + contributions so far.
	Cumulative float64
}

// BreakDownResult decomposes one prediction into an intercept (the mean
// prediction over the reference data) plus one contribution per
// feature. The contributions sum exactly to the prediction.
type BreakDownResult struct {
	Label         string
	Intercept     float64
	Prediction    float64
	Contributions []Contribution
}

// BreakDown attributes an observation's prediction to its features with
// greedy sequential substitution: at every step the not-yet-fixed
// feature whose substitution moves the mean prediction the most is
// fixed to the observation's value, and the move is recorded as its
// contribution.
func (e *Explainer) BreakDown(obs *mat.VecDense) (*BreakDownResult, error) {
	if err := e.checkObservation("BreakDown", obs); err != nil {
		return nil, err
	}
	_, cols := e.X.Dims()

	intercept, err := e.meanPredictOn(e.X)
	if err != nil {
		return nil, err
	}

	scratch := mat.DenseCopyOf(e.X)
	original := make([][]float64, cols)
	for j := 0; j < cols; j++ {
		original[j] = make([]float64, e.NSamples())
		mat.Col(original[j], j, e.X)
	}

	remaining := make([]int, cols)
	for j := range remaining {
		remaining[j] = j
	}

	contributions := make([]Contribution, 0, cols)
	current := intercept
	for len(remaining) > 0 {
		bestPos := -1
		bestMean := 0.0
		bestAbs := math.Inf(-1)

		for pos, j := range remaining {
			setColumn(scratch, j, obs.AtVec(j))
			m, err := e.meanPredictOn(scratch)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to evaluate candidate %q", e.features[j])
			}
			scratch.SetCol(j, original[j])

			if delta := math.Abs(m - current); delta > bestAbs {
				bestPos, bestMean, bestAbs = pos, m, delta
			}
		}

		j := remaining[bestPos]
		setColumn(scratch, j, obs.AtVec(j))
		contributions = append(contributions, Contribution{
			Feature:      e.features[j],
			Value:        obs.AtVec(j),
			Contribution: bestMean - current,
			Cumulative:   bestMean,
		})
		current = bestMean
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	prediction, err := e.predictObservation(obs)
	if err != nil {
		return nil, err
	}

	e.logger.Info("break-down computed",
		log.ModelNameKey, e.label,
		log.FeaturesKey, cols,
		"prediction", prediction,
	)
	return &BreakDownResult{
		Label:         e.label,
		Intercept:     intercept,
		Prediction:    prediction,
		Contributions: contributions,
	}, nil
}
