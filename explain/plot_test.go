package explain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func requirePNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), len(pngMagic))
	assert.Equal(t, pngMagic, data[:len(pngMagic)])
}

func TestPlotImportance(t *testing.T) {
	e := stepExplainer(t)
	result, err := e.PermutationImportance(WithImportanceRounds(3), WithImportanceSeed(1))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "importance.png")
	require.NoError(t, PlotImportance(result, path))
	requirePNG(t, path)
}

func TestPlotPartialDependence_SVG(t *testing.T) {
	e := stepExplainer(t)
	profiles, err := e.PartialDependence([]string{"flag", "noise"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "pdp.svg")
	require.NoError(t, PlotPartialDependence(profiles, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestPlotCeterisParibus(t *testing.T) {
	e := stepExplainer(t)
	obs := mat.NewVecDense(3, []float64{0, 2, 5})
	profiles, err := e.CeterisParibus(obs, []string{"flag", "noise"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cp.png")
	require.NoError(t, PlotCeterisParibus(profiles, path))
	requirePNG(t, path)
}

func TestPlotBreakDown(t *testing.T) {
	e := linearExplainer(t)
	result, err := e.BreakDown(mat.NewVecDense(3, []float64{1, 5, 5}))
	require.NoError(t, err)

	// Nested output path exercises directory creation.
	path := filepath.Join(t.TempDir(), "plots", "breakdown.png")
	require.NoError(t, PlotBreakDown(result, path))
	requirePNG(t, path)
}

func TestPlotROC(t *testing.T) {
	e := stepExplainer(t)
	perf, err := e.ModelPerformance()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "roc.png")
	require.NoError(t, PlotROC(perf, path))
	requirePNG(t, path)
}

func TestPlot_EmptyInputs(t *testing.T) {
	dir := t.TempDir()

	require.Error(t, PlotImportance(nil, filepath.Join(dir, "a.png")))
	require.Error(t, PlotImportance(&ImportanceResult{}, filepath.Join(dir, "b.png")))
	require.Error(t, PlotPartialDependence(nil, filepath.Join(dir, "c.png")))
	require.Error(t, PlotCeterisParibus(nil, filepath.Join(dir, "d.png")))
	require.Error(t, PlotBreakDown(nil, filepath.Join(dir, "e.png")))
	require.Error(t, PlotROC(nil, filepath.Join(dir, "f.png")))
}
