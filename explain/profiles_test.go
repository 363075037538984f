package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

func TestPartialDependence_FlagAndConstant(t *testing.T) {
	e := stepExplainer(t)

	profiles, err := e.PartialDependence([]string{"flag", "constant"})
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	// A binary flag keeps its two observed values as the grid.
	flag := profiles[0]
	assert.Equal(t, "flag", flag.Feature)
	require.Len(t, flag.Points, 2)
	assert.InDelta(t, 0.0, flag.Points[0].Value, 1e-15)
	assert.InDelta(t, 0.1, flag.Points[0].Average, 1e-12)
	assert.InDelta(t, 1.0, flag.Points[1].Value, 1e-15)
	assert.InDelta(t, 0.9, flag.Points[1].Average, 1e-12)

	// A constant column collapses to a single flat grid point at the
	// population mean prediction.
	constant := profiles[1]
	require.Len(t, constant.Points, 1)
	assert.InDelta(t, 5.0, constant.Points[0].Value, 1e-15)
	assert.InDelta(t, 0.5, constant.Points[0].Average, 1e-12)
}

func TestPartialDependence_IgnoredNumeric(t *testing.T) {
	e := stepExplainer(t)

	profiles, err := e.PartialDependence([]string{"noise"})
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	points := profiles[0].Points
	// 40 distinct values exceed the default grid, so the grid is a
	// uniform sweep from min to max.
	require.Len(t, points, 20)
	assert.InDelta(t, 0.0, points[0].Value, 1e-12)
	assert.InDelta(t, 9.75, points[len(points)-1].Value, 1e-12)

	// The oracle ignores this column entirely.
	for _, pt := range points {
		assert.InDelta(t, 0.5, pt.Average, 1e-12)
	}
}

func TestPartialDependence_QuantileGrid(t *testing.T) {
	e := stepExplainer(t)

	profiles, err := e.PartialDependence([]string{"noise"},
		WithGridStrategy(GridQuantile),
		WithGridSize(5),
	)
	require.NoError(t, err)

	points := profiles[0].Points
	require.Len(t, points, 5)
	for k := 1; k < len(points); k++ {
		assert.Greater(t, points[k].Value, points[k-1].Value)
	}
	assert.GreaterOrEqual(t, points[0].Value, 0.0)
	assert.LessOrEqual(t, points[len(points)-1].Value, 9.75)
}

func TestPartialDependence_Errors(t *testing.T) {
	e := stepExplainer(t)

	_, err := e.PartialDependence(nil)
	require.Error(t, err)

	_, err = e.PartialDependence([]string{"no-such-column"})
	require.ErrorContains(t, err, "unknown feature")

	_, err = e.PartialDependence([]string{"flag"}, WithGridSize(1))
	require.Error(t, err)

	_, err = e.PartialDependence([]string{"flag"}, WithGridStrategy("zigzag"))
	require.Error(t, err)
}

func TestCeterisParibus_Profiles(t *testing.T) {
	e := stepExplainer(t)
	obs := mat.NewVecDense(3, []float64{0, 2, 5})

	profiles, err := e.CeterisParibus(obs, []string{"flag", "noise"})
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	flag := profiles[0]
	assert.InDelta(t, 0.0, flag.ActualValue, 1e-15)
	assert.InDelta(t, 0.1, flag.Observed, 1e-12)
	require.Len(t, flag.Points, 2)
	assert.InDelta(t, 0.1, flag.Points[0].Prediction, 1e-12)
	assert.InDelta(t, 0.9, flag.Points[1].Prediction, 1e-12)

	// Sweeping the ignored column never moves the prediction.
	noise := profiles[1]
	assert.InDelta(t, 2.0, noise.ActualValue, 1e-15)
	for _, pt := range noise.Points {
		assert.InDelta(t, 0.1, pt.Prediction, 1e-12)
	}
}

func TestCeterisParibus_ShapeError(t *testing.T) {
	e := stepExplainer(t)

	_, err := e.CeterisParibus(mat.NewVecDense(2, []float64{1, 2}), []string{"flag"})
	var shapeErr *errors.InputShapeError
	require.ErrorAs(t, err, &shapeErr)

	_, err = e.CeterisParibus(nil, []string{"flag"})
	require.Error(t, err)
}
