// Package model_selection provides cross-validation splitters, scoring and
// hyperparameter search.
package model_selection

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

// Splitter generates train/test folds for cross-validation.
type Splitter interface {
	Split(X, y mat.Matrix) []Fold
	NSplits() int
}

// Fold is a single train/test partition.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold splits samples into k consecutive folds, optionally shuffled.
type KFold struct {
	K          int
	Shuffle    bool
	RandomSeed int
}

// NewKFold creates a k-fold splitter. Fewer than 2 splits falls back to 5.
func NewKFold(nSplits int, shuffle bool, randomSeed int) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{
		K:          nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// NSplits returns the number of folds.
func (kf *KFold) NSplits() int {
	return kf.K
}

// Split generates train/test indices for each fold.
func (kf *KFold) Split(X, _ mat.Matrix) []Fold {
	nSamples, _ := X.Dims()

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(uint64(kf.RandomSeed), uint64(kf.RandomSeed)))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]Fold, kf.K)
	foldSize := nSamples / kf.K
	remainder := nSamples % kf.K

	current := 0
	for i := 0; i < kf.K; i++ {
		testSize := foldSize
		if i < remainder {
			testSize++
		}

		test := make([]int, testSize)
		copy(test, indices[current:current+testSize])

		inTest := make(map[int]bool, testSize)
		for _, idx := range test {
			inTest[idx] = true
		}
		train := make([]int, 0, nSamples-testSize)
		for _, idx := range indices {
			if !inTest[idx] {
				train = append(train, idx)
			}
		}

		folds[i] = Fold{TrainIndices: train, TestIndices: test}
		current += testSize
	}
	return folds
}

// StratifiedKFold splits samples so each fold keeps roughly the class
// proportions of y.
type StratifiedKFold struct {
	K          int
	Shuffle    bool
	RandomSeed int
}

// NewStratifiedKFold creates a stratified k-fold splitter. Fewer than 2
// splits falls back to 5.
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed int) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{
		K:          nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// NSplits returns the number of folds.
func (skf *StratifiedKFold) NSplits() int {
	return skf.K
}

// Split generates stratified train/test indices for each fold.
func (skf *StratifiedKFold) Split(_, y mat.Matrix) []Fold {
	nSamples, _ := y.Dims()

	classIndices := make(map[float64][]int)
	var classOrder []float64
	for i := 0; i < nSamples; i++ {
		label := y.At(i, 0)
		if _, seen := classIndices[label]; !seen {
			classOrder = append(classOrder, label)
		}
		classIndices[label] = append(classIndices[label], i)
	}

	if skf.Shuffle {
		r := rand.New(rand.NewPCG(uint64(skf.RandomSeed), uint64(skf.RandomSeed)))
		for _, label := range classOrder {
			indices := classIndices[label]
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
	}

	folds := make([]Fold, skf.K)

	// Deal each class across the folds round-robin so the proportions
	// survive even when a class has fewer samples than folds.
	for _, label := range classOrder {
		indices := classIndices[label]
		nClass := len(indices)
		foldSize := nClass / skf.K
		remainder := nClass % skf.K

		current := 0
		for i := 0; i < skf.K; i++ {
			testSize := foldSize
			if i < remainder {
				testSize++
			}
			for j := 0; j < testSize && current < nClass; j++ {
				folds[i].TestIndices = append(folds[i].TestIndices, indices[current])
				current++
			}
		}
	}

	for i := range folds {
		inTest := make(map[int]bool, len(folds[i].TestIndices))
		for _, idx := range folds[i].TestIndices {
			inTest[idx] = true
		}
		for j := 0; j < nSamples; j++ {
			if !inTest[j] {
				folds[i].TrainIndices = append(folds[i].TrainIndices, j)
			}
		}
	}
	return folds
}

// TrainTestSplit partitions X and y into train and test matrices. With
// stratify true the split keeps the class proportions of y.
func TrainTestSplit(X, y mat.Matrix, testSize float64, seed int64, stratify bool) (XTrain, XTest, yTrain, yTest *mat.Dense, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, nil, nil, errors.NewValidationError("testSize",
			"must be strictly between 0 and 1", testSize)
	}

	nSamples, _ := X.Dims()
	yRows, _ := y.Dims()
	if nSamples != yRows {
		return nil, nil, nil, nil, errors.NewDimensionError("TrainTestSplit", nSamples, yRows, 0)
	}

	nTest := int(float64(nSamples) * testSize)
	if nTest < 1 || nSamples-nTest < 1 {
		return nil, nil, nil, nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("cannot split %d samples with test_size=%g", nSamples, testSize))
	}

	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	var testIdx []int

	if stratify {
		classIndices := make(map[float64][]int)
		var classOrder []float64
		for i := 0; i < nSamples; i++ {
			label := y.At(i, 0)
			if _, seen := classIndices[label]; !seen {
				classOrder = append(classOrder, label)
			}
			classIndices[label] = append(classIndices[label], i)
		}

		for _, label := range classOrder {
			indices := classIndices[label]
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
			k := int(float64(len(indices))*testSize + 0.5)
			if k >= len(indices) {
				k = len(indices) - 1
			}
			testIdx = append(testIdx, indices[:k]...)
		}
	} else {
		perm := r.Perm(nSamples)
		testIdx = perm[:nTest]
	}

	inTest := make(map[int]bool, len(testIdx))
	for _, idx := range testIdx {
		inTest[idx] = true
	}
	var trainIdx []int
	for i := 0; i < nSamples; i++ {
		if !inTest[i] {
			trainIdx = append(trainIdx, i)
		}
	}
	if len(trainIdx) == 0 || len(testIdx) == 0 {
		return nil, nil, nil, nil, errors.NewValueError("TrainTestSplit",
			"split produced an empty partition; adjust test_size")
	}

	XTrain, yTrain = extractSubset(X, y, trainIdx)
	XTest, yTest = extractSubset(X, y, testIdx)
	return XTrain, XTest, yTrain, yTest, nil
}
