package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/metrics"
)

func TestPermutationImportance_Oracle(t *testing.T) {
	e := stepExplainer(t)

	result, err := e.PermutationImportance(
		WithImportanceRounds(5),
		WithImportanceSeed(3),
	)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Rounds)
	assert.Equal(t, "1 - AUC", result.LossName)
	// The oracle ranks perfectly on intact data.
	assert.InDelta(t, 0.0, result.FullModelLoss, 1e-12)
	// Permuting everything destroys the ranking.
	assert.Greater(t, result.BaselineLoss, 0.1)

	require.Len(t, result.Importances, 3)
	top := result.Importances[0]
	assert.Equal(t, "flag", top.Feature)
	assert.Greater(t, top.MeanDropoutLoss, 0.1)

	// The oracle never reads the other columns, so permuting them
	// changes nothing at all.
	for _, imp := range result.Importances[1:] {
		assert.InDelta(t, 0.0, imp.MeanDropoutLoss, 1e-12, imp.Feature)
		assert.InDelta(t, 0.0, imp.StdDropoutLoss, 1e-12, imp.Feature)
	}
}

func TestPermutationImportance_Deterministic(t *testing.T) {
	e := stepExplainer(t)

	a, err := e.PermutationImportance(WithImportanceSeed(11), WithImportanceWorkers(1))
	require.NoError(t, err)
	b, err := e.PermutationImportance(WithImportanceSeed(11), WithImportanceWorkers(4))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestPermutationImportance_CustomLoss(t *testing.T) {
	e := stepExplainer(t)

	brier := func(yTrue, yScore *mat.VecDense) (float64, error) {
		return metrics.BrierScore(yTrue, yScore)
	}
	result, err := e.PermutationImportance(
		WithImportanceRounds(3),
		WithImportanceSeed(1),
		WithImportanceLoss("Brier score", brier),
	)
	require.NoError(t, err)

	assert.Equal(t, "Brier score", result.LossName)
	assert.InDelta(t, 0.01, result.FullModelLoss, 1e-12)
	assert.Equal(t, "flag", result.Importances[0].Feature)
}

func TestPermutationImportance_Errors(t *testing.T) {
	e := stepExplainer(t)

	_, err := e.PermutationImportance(WithImportanceRounds(0))
	require.ErrorContains(t, err, "rounds")

	_, err = e.PermutationImportance(WithImportanceLoss("nil", nil))
	require.Error(t, err)
}
