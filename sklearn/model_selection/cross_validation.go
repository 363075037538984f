package model_selection

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/core/model"
	"github.com/YuminosukeSato/glassbox/metrics"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

// CVResult stores per-fold cross-validation results.
type CVResult struct {
	TrainScores []float64
	TestScores  []float64
	FitTimes    []float64 // seconds
	ScoreTimes  []float64 // seconds
	Metric      string
}

// GetMeanScore returns the mean test score.
func (cv *CVResult) GetMeanScore() float64 {
	if len(cv.TestScores) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, score := range cv.TestScores {
		sum += score
	}
	return sum / float64(len(cv.TestScores))
}

// GetStdScore returns the sample standard deviation of the test scores.
func (cv *CVResult) GetStdScore() float64 {
	if len(cv.TestScores) <= 1 {
		return 0.0
	}
	mean := cv.GetMeanScore()
	sumSq := 0.0
	for _, score := range cv.TestScores {
		diff := score - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(cv.TestScores)-1))
}

// GetMeanTrainScore returns the mean train score.
func (cv *CVResult) GetMeanTrainScore() float64 {
	if len(cv.TrainScores) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, score := range cv.TrainScores {
		sum += score
	}
	return sum / float64(len(cv.TrainScores))
}

// CrossValidate fits a fresh model from factory on each fold and scores it
// on the held-out part. Folds run concurrently. Scoring is one of
// "accuracy" (default), "auc", "f1", "logloss" or "brier".
func CrossValidate(factory func() model.Classifier, X, y mat.Matrix, splitter Splitter, scoring string) (*CVResult, error) {
	if factory == nil {
		return nil, errors.NewValueError("CrossValidate", "model factory must not be nil")
	}
	if scoring == "" {
		scoring = "accuracy"
	}
	if !knownScoring(scoring) {
		return nil, errors.NewValueError("CrossValidate",
			fmt.Sprintf("unknown scoring %q, expected accuracy, auc, f1, logloss or brier", scoring))
	}

	folds := splitter.Split(X, y)
	nFolds := len(folds)
	if nFolds == 0 {
		return nil, errors.NewValueError("CrossValidate", "splitter produced no folds")
	}

	result := &CVResult{
		TrainScores: make([]float64, nFolds),
		TestScores:  make([]float64, nFolds),
		FitTimes:    make([]float64, nFolds),
		ScoreTimes:  make([]float64, nFolds),
		Metric:      scoring,
	}

	var wg sync.WaitGroup
	foldErrs := make([]error, nFolds)

	for foldIdx := 0; foldIdx < nFolds; foldIdx++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			fold := folds[idx]
			if len(fold.TrainIndices) == 0 || len(fold.TestIndices) == 0 {
				foldErrs[idx] = errors.NewValueError("CrossValidate",
					fmt.Sprintf("fold %d has an empty partition; use fewer splits", idx))
				return
			}

			trainX, trainY := extractSubset(X, y, fold.TrainIndices)
			testX, testY := extractSubset(X, y, fold.TestIndices)

			clf := factory()

			start := time.Now()
			if err := clf.Fit(trainX, trainY); err != nil {
				foldErrs[idx] = errors.Wrapf(err, "fold %d training failed", idx)
				return
			}
			result.FitTimes[idx] = time.Since(start).Seconds()

			start = time.Now()
			trainScore, err := scoreClassifier(clf, trainX, trainY, scoring)
			if err != nil {
				foldErrs[idx] = errors.Wrapf(err, "fold %d train scoring failed", idx)
				return
			}
			testScore, err := scoreClassifier(clf, testX, testY, scoring)
			if err != nil {
				foldErrs[idx] = errors.Wrapf(err, "fold %d test scoring failed", idx)
				return
			}
			result.ScoreTimes[idx] = time.Since(start).Seconds()

			result.TrainScores[idx] = trainScore
			result.TestScores[idx] = testScore
		}(foldIdx)
	}
	wg.Wait()

	for _, err := range foldErrs {
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// knownScoring reports whether the scoring name is supported.
func knownScoring(scoring string) bool {
	switch scoring {
	case "accuracy", "auc", "f1", "logloss", "brier":
		return true
	}
	return false
}

// isLossMetric returns true when lower scores are better.
func isLossMetric(scoring string) bool {
	switch scoring {
	case "logloss", "brier":
		return true
	}
	return false
}

// scoreClassifier evaluates a fitted classifier with the named metric.
// Probability metrics use the column of the highest class label, which is
// the positive class for 0/1 targets.
func scoreClassifier(clf model.Classifier, X, y mat.Matrix, scoring string) (float64, error) {
	yVec := columnVec(y, 0)

	switch scoring {
	case "accuracy", "f1":
		pred, err := clf.Predict(X)
		if err != nil {
			return 0, err
		}
		predVec := columnVec(pred, 0)
		if scoring == "f1" {
			return metrics.F1Score(yVec, predVec)
		}
		return metrics.Accuracy(yVec, predVec)

	case "auc", "logloss", "brier":
		classes := clf.Classes()
		if len(classes) != 2 {
			return 0, errors.NewValueError("CrossValidate",
				fmt.Sprintf("%s scoring requires a binary target, got %d classes", scoring, len(classes)))
		}
		proba, err := clf.PredictProba(X)
		if err != nil {
			return 0, err
		}
		scoreVec := columnVec(proba, 1)
		switch scoring {
		case "auc":
			return metrics.AUC(yVec, scoreVec)
		case "logloss":
			return metrics.BinaryLogLoss(yVec, scoreVec)
		default:
			return metrics.BrierScore(yVec, scoreVec)
		}
	}
	return 0, errors.NewValueError("CrossValidate", fmt.Sprintf("unknown scoring %q", scoring))
}

// columnVec copies column j of m into a vector.
func columnVec(m mat.Matrix, j int) *mat.VecDense {
	rows, _ := m.Dims()
	v := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		v.SetVec(i, m.At(i, j))
	}
	return v
}

// extractSubset copies the given rows of X and y into fresh matrices.
// Indices are sorted first so row order stays stable across folds.
func extractSubset(X, y mat.Matrix, indices []int) (*mat.Dense, *mat.Dense) {
	rows := len(indices)
	_, xCols := X.Dims()
	_, yCols := y.Dims()

	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.Ints(sorted)

	xSubset := mat.NewDense(rows, xCols, nil)
	ySubset := mat.NewDense(rows, yCols, nil)
	for i, idx := range sorted {
		for j := 0; j < xCols; j++ {
			xSubset.Set(i, j, X.At(idx, j))
		}
		for j := 0; j < yCols; j++ {
			ySubset.Set(i, j, y.At(idx, j))
		}
	}
	return xSubset, ySubset
}
