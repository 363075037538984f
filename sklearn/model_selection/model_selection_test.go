package model_selection

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/core/model"
	"github.com/YuminosukeSato/glassbox/sklearn/tree"
)

// makeBlobs builds two well-separated clusters along column 0.
func makeBlobs(nPerClass int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	rows := 2 * nPerClass

	X := mat.NewDense(rows, 2, nil)
	y := mat.NewDense(rows, 1, nil)
	for c := 0; c < 2; c++ {
		for i := 0; i < nPerClass; i++ {
			r := c*nPerClass + i
			X.Set(r, 0, float64(10*c)+rng.Float64()*2-1)
			X.Set(r, 1, rng.Float64()*10)
			y.Set(r, 0, float64(c))
		}
	}
	return X, y
}

// makeXORClusters builds four tight clusters in a checkerboard pattern, so
// a depth-1 tree fails and a depth-2 tree is perfect.
func makeXORClusters(nPerCluster int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	centers := [][3]float64{
		{0, 0, 0},
		{5, 5, 0},
		{0, 5, 1},
		{5, 0, 1},
	}

	rows := 4 * nPerCluster
	X := mat.NewDense(rows, 2, nil)
	y := mat.NewDense(rows, 1, nil)
	for c, center := range centers {
		for i := 0; i < nPerCluster; i++ {
			r := c*nPerCluster + i
			X.Set(r, 0, center[0]+rng.Float64()-0.5)
			X.Set(r, 1, center[1]+rng.Float64()-0.5)
			y.Set(r, 0, center[2])
		}
	}
	return X, y
}

func treeFactory() model.Classifier {
	return tree.NewDecisionTreeClassifier()
}

func tunableTreeFactory() TunableClassifier {
	return tree.NewDecisionTreeClassifier()
}

func TestKFold_Split(t *testing.T) {
	X, y := makeBlobs(5, 1)

	kf := NewKFold(5, false, 0)
	require.Equal(t, 5, kf.NSplits())

	folds := kf.Split(X, y)
	require.Len(t, folds, 5)

	seen := make(map[int]int)
	for _, fold := range folds {
		assert.Len(t, fold.TestIndices, 2)
		assert.Len(t, fold.TrainIndices, 8)
		for _, idx := range fold.TestIndices {
			seen[idx]++
		}
		for _, idx := range fold.TrainIndices {
			assert.NotContains(t, fold.TestIndices, idx)
		}
	}
	// Every sample lands in exactly one test fold.
	require.Len(t, seen, 10)
	for idx, count := range seen {
		assert.Equal(t, 1, count, "index %d", idx)
	}

	// Without shuffling the first fold is the first consecutive block.
	assert.Equal(t, []int{0, 1}, folds[0].TestIndices)
}

func TestKFold_ShuffleDeterministic(t *testing.T) {
	X, y := makeBlobs(6, 2)

	a := NewKFold(3, true, 42).Split(X, y)
	b := NewKFold(3, true, 42).Split(X, y)
	require.Equal(t, a, b, "same seed must reproduce the same folds")

	// Shuffling still partitions every sample exactly once.
	seen := make(map[int]int)
	for _, fold := range a {
		require.Len(t, fold.TestIndices, 4)
		for _, idx := range fold.TestIndices {
			seen[idx]++
		}
	}
	require.Len(t, seen, 12)
	for _, count := range seen {
		assert.Equal(t, 1, count)
	}
}

func TestKFold_TooFewSplits(t *testing.T) {
	assert.Equal(t, 5, NewKFold(1, false, 0).NSplits())
	assert.Equal(t, 5, NewStratifiedKFold(0, false, 0).NSplits())
}

func TestStratifiedKFold_Proportions(t *testing.T) {
	// 8 negatives then 4 positives.
	X := mat.NewDense(12, 1, nil)
	y := mat.NewDense(12, 1, nil)
	for i := 0; i < 12; i++ {
		X.Set(i, 0, float64(i))
		if i >= 8 {
			y.Set(i, 0, 1)
		}
	}

	folds := NewStratifiedKFold(4, true, 3).Split(X, y)
	require.Len(t, folds, 4)

	seen := make(map[int]bool)
	for i, fold := range folds {
		require.Len(t, fold.TestIndices, 3, "fold %d", i)

		positives := 0
		for _, idx := range fold.TestIndices {
			if y.At(idx, 0) == 1 {
				positives++
			}
			assert.False(t, seen[idx], "index %d in two folds", idx)
			seen[idx] = true
		}
		assert.Equal(t, 1, positives, "fold %d should hold exactly one positive", i)
	}
	assert.Len(t, seen, 12)
}

func TestTrainTestSplit_Matrix(t *testing.T) {
	n := 20
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		if i >= 10 {
			y.Set(i, 0, 1)
		}
	}

	XTrain, XTest, yTrain, yTest, err := TrainTestSplit(X, y, 0.25, 42, false)
	require.NoError(t, err)

	trainRows, _ := XTrain.Dims()
	testRows, _ := XTest.Dims()
	assert.Equal(t, 15, trainRows)
	assert.Equal(t, 5, testRows)

	seen := make(map[float64]bool)
	for i := 0; i < trainRows; i++ {
		seen[XTrain.At(i, 0)] = true
	}
	for i := 0; i < testRows; i++ {
		require.False(t, seen[XTest.At(i, 0)], "row leaked into both partitions")
		seen[XTest.At(i, 0)] = true
	}
	assert.Len(t, seen, n)

	yr, _ := yTrain.Dims()
	assert.Equal(t, trainRows, yr)
	yr, _ = yTest.Dims()
	assert.Equal(t, testRows, yr)
}

func TestTrainTestSplit_Stratified(t *testing.T) {
	n := 20
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		if i >= 10 {
			y.Set(i, 0, 1)
		}
	}

	_, XTest, _, yTest, err := TrainTestSplit(X, y, 0.25, 11, true)
	require.NoError(t, err)

	testRows, _ := XTest.Dims()
	require.Equal(t, 6, testRows, "3 of each class at test_size 0.25")

	positives := 0
	for i := 0; i < testRows; i++ {
		if yTest.At(i, 0) == 1 {
			positives++
		}
	}
	assert.Equal(t, 3, positives)
}

func TestTrainTestSplit_Errors(t *testing.T) {
	X, y := makeBlobs(3, 4)

	_, _, _, _, err := TrainTestSplit(X, y, 0, 1, false)
	assert.Error(t, err)

	_, _, _, _, err = TrainTestSplit(X, y, 1.5, 1, false)
	assert.Error(t, err)

	one := mat.NewDense(1, 1, []float64{1})
	_, _, _, _, err = TrainTestSplit(one, one, 0.5, 1, false)
	assert.Error(t, err)
}

func TestCrossValidate_Tree(t *testing.T) {
	X, y := makeBlobs(12, 5)

	cv, err := CrossValidate(treeFactory, X, y, NewStratifiedKFold(4, true, 7), "accuracy")
	require.NoError(t, err)

	require.Len(t, cv.TestScores, 4)
	require.Len(t, cv.TrainScores, 4)
	require.Len(t, cv.FitTimes, 4)
	require.Len(t, cv.ScoreTimes, 4)
	assert.Equal(t, "accuracy", cv.Metric)

	// Cleanly separated blobs: every fold should be perfect.
	assert.Equal(t, 1.0, cv.GetMeanScore())
	assert.Equal(t, 0.0, cv.GetStdScore())
	assert.Equal(t, 1.0, cv.GetMeanTrainScore())
	for _, ft := range cv.FitTimes {
		assert.GreaterOrEqual(t, ft, 0.0)
	}
}

func TestCrossValidate_AUC(t *testing.T) {
	X, y := makeBlobs(12, 6)

	cv, err := CrossValidate(treeFactory, X, y, NewStratifiedKFold(3, true, 1), "auc")
	require.NoError(t, err)
	assert.Equal(t, 1.0, cv.GetMeanScore())
}

func TestCrossValidate_Errors(t *testing.T) {
	X, y := makeBlobs(6, 7)

	_, err := CrossValidate(nil, X, y, NewKFold(3, false, 0), "accuracy")
	assert.Error(t, err)

	_, err = CrossValidate(treeFactory, X, y, NewKFold(3, false, 0), "lift")
	assert.Error(t, err)

	// Three classes cannot be scored with a binary ranking metric.
	y3 := mat.NewDense(12, 1, nil)
	for i := 0; i < 12; i++ {
		y3.Set(i, 0, float64(i%3))
	}
	_, err = CrossValidate(treeFactory, X, y3, NewKFold(3, false, 0), "auc")
	assert.Error(t, err)
}

func TestCVResult_Stats(t *testing.T) {
	cv := &CVResult{TestScores: []float64{0.8, 0.9, 1.0}}
	assert.InDelta(t, 0.9, cv.GetMeanScore(), 1e-12)
	assert.InDelta(t, 0.1, cv.GetStdScore(), 1e-12)

	empty := &CVResult{}
	assert.Equal(t, 0.0, empty.GetMeanScore())
	assert.Equal(t, 0.0, empty.GetStdScore())
}

func TestEnumerateGrid(t *testing.T) {
	grid := map[string][]interface{}{
		"b": {1, 2, 3},
		"a": {"x", "y"},
	}

	candidates, err := enumerateGrid(grid)
	require.NoError(t, err)
	require.Len(t, candidates, 6)

	// Keys iterate in sorted order, so "a" is the slow axis.
	assert.Equal(t, map[string]interface{}{"a": "x", "b": 1}, candidates[0])
	assert.Equal(t, map[string]interface{}{"a": "x", "b": 2}, candidates[1])
	assert.Equal(t, map[string]interface{}{"a": "y", "b": 3}, candidates[5])

	empty, err := enumerateGrid(nil)
	require.NoError(t, err)
	require.Len(t, empty, 1)
	assert.Empty(t, empty[0])

	_, err = enumerateGrid(map[string][]interface{}{"a": {}})
	assert.Error(t, err)
}

func TestGridSearchCV(t *testing.T) {
	X, y := makeXORClusters(6, 8)

	gs := NewGridSearchCV(tunableTreeFactory, map[string][]interface{}{
		"max_depth": {1, 3},
	}, WithSearchSplitter(NewStratifiedKFold(3, true, 5)))

	require.NoError(t, gs.Fit(X, y))
	require.True(t, gs.IsFitted())

	// A single split cannot express the checkerboard.
	assert.Equal(t, 3, gs.BestParams()["max_depth"])
	assert.Greater(t, gs.BestScore(), 0.9)

	results := gs.Results()
	require.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[0].MeanScore, results[1].MeanScore)
	assert.Len(t, results[0].FoldScores, 3)

	best := gs.BestModel()
	require.NotNil(t, best)
	require.True(t, best.IsFitted())

	pred, err := best.Predict(mat.NewDense(2, 2, []float64{0, 0, 0, 5}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, pred.At(0, 0))
	assert.Equal(t, 1.0, pred.At(1, 0))
}

func TestGridSearchCV_EmptyGrid(t *testing.T) {
	X, y := makeBlobs(9, 9)

	gs := NewGridSearchCV(tunableTreeFactory, nil,
		WithSearchSplitter(NewStratifiedKFold(3, true, 2)))
	require.NoError(t, gs.Fit(X, y))

	assert.NotNil(t, gs.BestParams())
	assert.Empty(t, gs.BestParams())
	assert.Equal(t, 1.0, gs.BestScore())
}

func TestGridSearchCV_NotFittedAccessors(t *testing.T) {
	gs := NewGridSearchCV(tunableTreeFactory, nil)
	assert.False(t, gs.IsFitted())
	assert.Nil(t, gs.BestParams())
	assert.Nil(t, gs.BestModel())
}

func TestRandomizedSearchCV(t *testing.T) {
	X, y := makeXORClusters(6, 10)

	newSearch := func() *RandomizedSearchCV {
		return NewRandomizedSearchCV(tunableTreeFactory, map[string]ParamDistribution{
			"max_depth":        {Values: []interface{}{1, 3}},
			"min_samples_leaf": {Min: 1, Max: 3.99, Ints: true},
		}, 8, 42, WithSearchSplitter(NewStratifiedKFold(3, true, 5)))
	}

	rs := newSearch()
	require.NoError(t, rs.Fit(X, y))
	require.True(t, rs.IsFitted())

	results := rs.Results()
	require.Len(t, results, 8)
	for _, res := range results {
		depth := res.Params["max_depth"]
		assert.Contains(t, []interface{}{1, 3}, depth)

		leaf, ok := res.Params["min_samples_leaf"].(int)
		require.True(t, ok, "continuous int draw must produce an int")
		assert.GreaterOrEqual(t, leaf, 1)
		assert.LessOrEqual(t, leaf, 4)
	}
	assert.Equal(t, results[0].MeanScore, rs.BestScore())

	// Same seed, same draws, same outcome.
	rs2 := newSearch()
	require.NoError(t, rs2.Fit(X, y))
	assert.Equal(t, rs.Results(), rs2.Results())
	assert.Equal(t, rs.BestParams(), rs2.BestParams())
}

func TestRandomizedSearchCV_Errors(t *testing.T) {
	X, y := makeBlobs(6, 11)

	rs := NewRandomizedSearchCV(tunableTreeFactory, map[string]ParamDistribution{
		"max_depth": {Values: []interface{}{1}},
	}, 0, 1)
	assert.Error(t, rs.Fit(X, y))

	rs = NewRandomizedSearchCV(tunableTreeFactory, nil, 3, 1)
	assert.Error(t, rs.Fit(X, y))

	rs = NewRandomizedSearchCV(tunableTreeFactory, map[string]ParamDistribution{
		"min_samples_leaf": {Min: 5, Max: 2},
	}, 3, 1)
	assert.Error(t, rs.Fit(X, y))
}
