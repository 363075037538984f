package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/sklearn/tree"
)

// stepData builds a 40x3 reference set: column 0 is a 0/1 flag that
// fully determines the label, column 1 is a spread numeric column the
// oracles ignore, column 2 is constant.
func stepData() (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(40, 3, nil)
	y := mat.NewVecDense(40, nil)
	for i := 0; i < 40; i++ {
		flag := float64(i % 2)
		X.Set(i, 0, flag)
		X.Set(i, 1, 0.25*float64(i))
		X.Set(i, 2, 5)
		y.SetVec(i, flag)
	}
	return X, y
}

// stepOracle predicts 0.9 when the flag is set and 0.1 otherwise.
func stepOracle(X mat.Matrix) (*mat.VecDense, error) {
	rows, _ := X.Dims()
	out := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		if X.At(i, 0) == 1 {
			out.SetVec(i, 0.9)
		} else {
			out.SetVec(i, 0.1)
		}
	}
	return out, nil
}

// linearOracle is additive in the first two features and ignores the
// third, so attribution methods have closed-form answers.
func linearOracle(X mat.Matrix) (*mat.VecDense, error) {
	rows, _ := X.Dims()
	out := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		out.SetVec(i, 0.05+0.5*X.At(i, 0)+0.02*X.At(i, 1))
	}
	return out, nil
}

var stepNames = []string{"flag", "noise", "constant"}

func stepExplainer(t *testing.T, opts ...ExplainerOption) *Explainer {
	t.Helper()
	X, y := stepData()
	all := append([]ExplainerOption{WithFeatureNames(stepNames)}, opts...)
	e, err := NewExplainerFromFunc(stepOracle, X, y, all...)
	require.NoError(t, err)
	return e
}

func linearExplainer(t *testing.T) *Explainer {
	t.Helper()
	X, y := stepData()
	e, err := NewExplainerFromFunc(linearOracle, X, y, WithFeatureNames(stepNames))
	require.NoError(t, err)
	return e
}

func TestNewExplainer_FromModel(t *testing.T) {
	X := mat.NewDense(20, 2, nil)
	yMat := mat.NewDense(20, 1, nil)
	yVec := mat.NewVecDense(20, nil)
	for i := 0; i < 20; i++ {
		label := float64(i % 2)
		X.Set(i, 0, label*10)
		X.Set(i, 1, float64(i))
		yMat.Set(i, 0, label)
		yVec.SetVec(i, label)
	}

	clf := tree.NewDecisionTreeClassifier(tree.WithMaxDepth(2))
	require.NoError(t, clf.Fit(X, yMat))

	e, err := NewExplainer(clf, X, yVec)
	require.NoError(t, err)
	assert.Contains(t, e.Label(), "DecisionTreeClassifier")

	perf, err := e.ModelPerformance()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, perf.AUC, 1e-12)
	assert.InDelta(t, 1.0, perf.Accuracy, 1e-12)
}

func TestNewExplainerFromFunc_Defaults(t *testing.T) {
	X, y := stepData()
	e, err := NewExplainerFromFunc(stepOracle, X, y)
	require.NoError(t, err)

	assert.Equal(t, "custom predict function", e.Label())
	assert.Equal(t, []string{"x0", "x1", "x2"}, e.FeatureNames())
	assert.Equal(t, 40, e.NSamples())
}

func TestNewExplainer_Validation(t *testing.T) {
	X, y := stepData()

	_, err := NewExplainer(nil, X, y)
	require.Error(t, err)

	unfitted := tree.NewDecisionTreeClassifier()
	_, err = NewExplainer(unfitted, X, y)
	var nfe *errors.NotFittedError
	require.ErrorAs(t, err, &nfe)

	_, err = NewExplainerFromFunc(nil, X, y)
	require.Error(t, err)

	short := mat.NewVecDense(10, nil)
	_, err = NewExplainerFromFunc(stepOracle, X, short)
	var shapeErr *errors.InputShapeError
	require.ErrorAs(t, err, &shapeErr)

	bad := mat.VecDenseCopyOf(y)
	bad.SetVec(0, 2)
	_, err = NewExplainerFromFunc(stepOracle, X, bad)
	require.ErrorContains(t, err, "binary")

	_, err = NewExplainerFromFunc(stepOracle, X, y, WithFeatureNames([]string{"only-one"}))
	require.Error(t, err)

	_, err = NewExplainerFromFunc(stepOracle, X, y, WithThreshold(1.5))
	require.Error(t, err)

	// A predict function whose output length ignores the input must be
	// rejected by the construction probe.
	fixed := func(mat.Matrix) (*mat.VecDense, error) {
		return mat.NewVecDense(3, nil), nil
	}
	_, err = NewExplainerFromFunc(fixed, X, y)
	require.ErrorAs(t, err, &shapeErr)
}

func TestModelPerformance_Oracle(t *testing.T) {
	e := stepExplainer(t)

	perf, err := e.ModelPerformance()
	require.NoError(t, err)

	assert.Equal(t, "custom predict function", perf.Label)
	assert.InDelta(t, 0.5, perf.Threshold, 1e-15)
	assert.InDelta(t, 1.0, perf.Accuracy, 1e-12)
	assert.InDelta(t, 1.0, perf.Precision, 1e-12)
	assert.InDelta(t, 1.0, perf.Recall, 1e-12)
	assert.InDelta(t, 1.0, perf.F1, 1e-12)
	assert.InDelta(t, 1.0, perf.AUC, 1e-12)
	assert.InDelta(t, 1.0, perf.AveragePrecision, 1e-12)
	// Every prediction misses its label by 0.1.
	assert.InDelta(t, 0.01, perf.Brier, 1e-12)
	assert.InDelta(t, 0.10536, perf.LogLoss, 1e-4)

	require.NotNil(t, perf.Confusion)
	assert.Equal(t, 20, perf.Confusion.TruePositives)
	assert.Equal(t, 20, perf.Confusion.TrueNegatives)
	assert.Equal(t, 0, perf.Confusion.FalsePositives)
	assert.Equal(t, 0, perf.Confusion.FalseNegatives)

	// Two distinct scores give (0,0) -> (0,1) -> (1,1).
	require.Len(t, perf.ROC, 3)
	assert.InDelta(t, 0.0, perf.ROC[1].FPR, 1e-12)
	assert.InDelta(t, 1.0, perf.ROC[1].TPR, 1e-12)
}

func TestModelPerformance_CustomThreshold(t *testing.T) {
	e := stepExplainer(t, WithThreshold(0.95))

	perf, err := e.ModelPerformance()
	require.NoError(t, err)

	// Nothing clears 0.95, so every row is predicted negative.
	assert.InDelta(t, 0.5, perf.Accuracy, 1e-12)
	assert.InDelta(t, 0.0, perf.Recall, 1e-12)
	assert.InDelta(t, 0.0, perf.F1, 1e-12)
	// Ranking metrics do not depend on the threshold.
	assert.InDelta(t, 1.0, perf.AUC, 1e-12)
}
