// Package ensemble implements ensemble classifiers built from decision trees.
package ensemble

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/core/model"
	"github.com/YuminosukeSato/glassbox/core/parallel"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
	"github.com/YuminosukeSato/glassbox/sklearn/tree"
)

// RandomForestClassifier is a bagged ensemble of decision trees with
// per-split feature subsampling.
type RandomForestClassifier struct {
	state *model.StateManager

	// Hyperparameters
	nEstimators     int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     interface{} // "sqrt", "log2" or an int
	bootstrap       bool
	oobScore        bool
	randomState     int64
	nJobs           int

	// Learned state
	trees_     []*tree.DecisionTreeClassifier
	classes_   []int
	nClasses_  int
	nFeatures_ int
	oobScore_  float64
	oobSet_    bool
}

// RandomForestOption configures a RandomForestClassifier.
type RandomForestOption func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithMaxDepth limits the depth of each tree. Zero means unlimited.
func WithMaxDepth(depth int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum samples required to split a node.
func WithMinSamplesSplit(n int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum samples required in each leaf.
func WithMinSamplesLeaf(n int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features each split considers: "sqrt",
// "log2" or an explicit int.
func WithMaxFeatures(v interface{}) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = v }
}

// WithBootstrap toggles bootstrap sampling of the training rows.
func WithBootstrap(b bool) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.bootstrap = b }
}

// WithOOBScore enables the out-of-bag generalization estimate. Requires
// bootstrap sampling.
func WithOOBScore(enabled bool) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.oobScore = enabled }
}

// WithRandomState seeds the forest; per-tree streams are derived from it.
func WithRandomState(seed int64) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs sets the number of worker goroutines for fitting. Zero or
// negative uses all CPUs.
func WithNJobs(n int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// NewRandomForestClassifier creates a random forest classifier with the
// given options.
func NewRandomForestClassifier(opts ...RandomForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
	}

	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// resolveMaxFeatures turns the max_features setting into a feature count.
func resolveMaxFeatures(v interface{}, nFeatures int) (int, error) {
	switch mf := v.(type) {
	case nil:
		return resolveMaxFeatures("sqrt", nFeatures)
	case string:
		switch mf {
		case "sqrt":
			return max(1, int(math.Sqrt(float64(nFeatures)))), nil
		case "log2":
			return max(1, int(math.Log2(float64(nFeatures)))), nil
		default:
			return 0, errors.NewValueError("RandomForestClassifier",
				fmt.Sprintf("unknown max_features %q, expected sqrt, log2 or an int", mf))
		}
	case int:
		if mf < 1 {
			return 0, errors.NewValueError("RandomForestClassifier",
				fmt.Sprintf("max_features must be >= 1, got %d", mf))
		}
		if mf > nFeatures {
			mf = nFeatures
		}
		return mf, nil
	default:
		return 0, errors.NewValueError("RandomForestClassifier",
			fmt.Sprintf("max_features must be a string or int, got %T", v))
	}
}

// oobResult holds one tree's predictions on its out-of-bag rows.
type oobResult struct {
	rows  []int
	proba *mat.Dense
}

// Fit trains nEstimators trees on bootstrap samples in parallel.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomForestClassifier.Fit")

	if rf.nEstimators < 1 {
		return errors.NewValueError("RandomForestClassifier.Fit",
			fmt.Sprintf("n_estimators must be >= 1, got %d", rf.nEstimators))
	}
	if rf.oobScore && !rf.bootstrap {
		return errors.NewValueError("RandomForestClassifier.Fit",
			"out-of-bag estimates require bootstrap sampling")
	}

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return errors.NewDimensionError("RandomForestClassifier.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("RandomForestClassifier.Fit", 1, yCols, 1)
	}
	if rows == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty training data", errors.ErrEmptyData)
	}

	classes, err := collectClasses(y, rows)
	if err != nil {
		return err
	}
	classIdx := make(map[int]int, len(classes))
	for k, c := range classes {
		classIdx[c] = k
	}

	maxFeatures, err := resolveMaxFeatures(rf.maxFeatures, cols)
	if err != nil {
		return err
	}

	// Derive one independent seed per tree so parallel fitting stays
	// deterministic for a given random state.
	seedRng := rand.New(rand.NewPCG(uint64(rf.randomState), uint64(rf.randomState)))
	seeds := make([]int64, rf.nEstimators)
	for i := range seeds {
		seeds[i] = seedRng.Int64()
	}

	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	oob := make([]oobResult, rf.nEstimators)

	fitErr := parallel.ForEachIndexed(rf.nEstimators, rf.nJobs, func(i int) error {
		seed := seeds[i]
		t := tree.NewDecisionTreeClassifier(
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesSplit(rf.minSamplesSplit),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(maxFeatures),
			tree.WithRandomState(seed),
		)

		inBag := make([]bool, rows)
		var Xb, yb mat.Matrix
		if rf.bootstrap {
			rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
			idx := make([]int, rows)
			for j := range idx {
				k := rng.IntN(rows)
				idx[j] = k
				inBag[k] = true
			}
			Xb, yb = subsetRows(X, y, idx)
		} else {
			for j := range inBag {
				inBag[j] = true
			}
			Xb, yb = X, y
		}

		if err := t.Fit(Xb, yb); err != nil {
			return errors.Wrapf(err, "failed to fit tree %d", i)
		}
		trees[i] = t

		if rf.oobScore {
			var oobRows []int
			for j := 0; j < rows; j++ {
				if !inBag[j] {
					oobRows = append(oobRows, j)
				}
			}
			if len(oobRows) > 0 {
				Xoob, _ := subsetRows(X, y, oobRows)
				proba, err := t.PredictProba(Xoob)
				if err != nil {
					return errors.Wrapf(err, "failed to score out-of-bag rows of tree %d", i)
				}
				oob[i] = oobResult{
					rows:  oobRows,
					proba: alignProba(proba, t.Classes(), classIdx, len(classes)),
				}
			}
		}
		return nil
	})
	if fitErr != nil {
		return fitErr
	}

	rf.trees_ = trees
	rf.classes_ = classes
	rf.nClasses_ = len(classes)
	rf.nFeatures_ = cols
	rf.state.SetDimensions(cols, rows)
	rf.state.SetFitted()

	if rf.oobScore {
		rf.computeOOBScore(y, rows, oob)
	}

	logger := log.GetLoggerWithName("ensemble.random_forest")
	logger.Info("random forest fitted",
		log.ModelNameKey, "RandomForestClassifier",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"trees", rf.nEstimators,
	)
	return nil
}

// computeOOBScore accumulates per-row out-of-bag probabilities and scores
// the rows that were left out at least once.
func (rf *RandomForestClassifier) computeOOBScore(y mat.Matrix, rows int, oob []oobResult) {
	votes := mat.NewDense(rows, rf.nClasses_, nil)
	covered := make([]bool, rows)

	for _, res := range oob {
		for k, row := range res.rows {
			covered[row] = true
			for c := 0; c < rf.nClasses_; c++ {
				votes.Set(row, c, votes.At(row, c)+res.proba.At(k, c))
			}
		}
	}

	correct, scored := 0, 0
	for i := 0; i < rows; i++ {
		if !covered[i] {
			continue
		}
		scored++

		best, bestVal := 0, math.Inf(-1)
		for c := 0; c < rf.nClasses_; c++ {
			if v := votes.At(i, c); v > bestVal {
				best, bestVal = c, v
			}
		}
		if float64(rf.classes_[best]) == y.At(i, 0) {
			correct++
		}
	}

	if scored == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("oob_score",
			"no sample was left out of bag; use more trees", 0))
		rf.oobScore_ = 0
		rf.oobSet_ = false
		return
	}

	rf.oobScore_ = float64(correct) / float64(scored)
	rf.oobSet_ = true
}

// OOBScore returns the out-of-bag accuracy estimate.
func (rf *RandomForestClassifier) OOBScore() (float64, error) {
	if err := rf.state.RequireFittedFor("RandomForestClassifier", "OOBScore"); err != nil {
		return 0, err
	}
	if !rf.oobScore {
		return 0, errors.NewValueError("RandomForestClassifier.OOBScore",
			"fit with WithOOBScore(true) to enable out-of-bag estimates")
	}
	if !rf.oobSet_ {
		return 0, errors.NewValueError("RandomForestClassifier.OOBScore",
			"out-of-bag score is undefined: no sample was left out of bag")
	}
	return rf.oobScore_, nil
}

func (rf *RandomForestClassifier) validatePredictInput(op string, X mat.Matrix) (int, error) {
	if err := rf.state.RequireFittedFor("RandomForestClassifier", op); err != nil {
		return 0, err
	}
	rows, cols := X.Dims()
	if cols != rf.nFeatures_ {
		return 0, errors.NewDimensionError("RandomForestClassifier."+op, rf.nFeatures_, cols, 1)
	}
	return rows, nil
}

// Predict returns the majority vote over the trees as an n x 1 matrix.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := rf.validatePredictInput("Predict", X)
	if err != nil {
		return nil, err
	}

	classIdx := make(map[int]int, rf.nClasses_)
	for k, c := range rf.classes_ {
		classIdx[c] = k
	}

	votes := mat.NewDense(rows, rf.nClasses_, nil)
	for _, t := range rf.trees_ {
		pred, err := t.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < rows; i++ {
			k := classIdx[int(pred.At(i, 0))]
			votes.Set(i, k, votes.At(i, k)+1)
		}
	}

	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best, bestVal := 0, math.Inf(-1)
		for c := 0; c < rf.nClasses_; c++ {
			if v := votes.At(i, c); v > bestVal {
				best, bestVal = c, v
			}
		}
		out.Set(i, 0, float64(rf.classes_[best]))
	}
	return out, nil
}

// PredictProba returns the per-class probabilities averaged over the trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, err := rf.validatePredictInput("PredictProba", X)
	if err != nil {
		return nil, err
	}

	classIdx := make(map[int]int, rf.nClasses_)
	for k, c := range rf.classes_ {
		classIdx[c] = k
	}

	sum := mat.NewDense(rows, rf.nClasses_, nil)
	for _, t := range rf.trees_ {
		proba, err := t.PredictProba(X)
		if err != nil {
			return nil, err
		}
		aligned := alignProba(proba, t.Classes(), classIdx, rf.nClasses_)
		sum.Add(sum, aligned)
	}

	sum.Scale(1/float64(len(rf.trees_)), sum)
	return sum, nil
}

// Score returns the accuracy on the given data.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}

	rows, _ := pred.Dims()
	yRows, _ := y.Dims()
	if yRows != rows {
		return 0, errors.NewDimensionError("RandomForestClassifier.Score", rows, yRows, 0)
	}

	correct := 0
	for i := 0; i < rows; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rows), nil
}

// GetFeatureImportances returns the mean impurity-decrease importances over
// the trees, normalized to sum to 1.
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	if !rf.state.IsFitted() {
		return nil
	}

	mean := make([]float64, rf.nFeatures_)
	for _, t := range rf.trees_ {
		for i, imp := range t.GetFeatureImportances() {
			mean[i] += imp
		}
	}

	total := 0.0
	for i := range mean {
		mean[i] /= float64(len(rf.trees_))
		total += mean[i]
	}
	if total > 0 {
		for i := range mean {
			mean[i] /= total
		}
	}
	return mean
}

// Classes returns the class labels seen during fitting.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.classes_...)
}

// IsFitted returns whether the forest has been fitted.
func (rf *RandomForestClassifier) IsFitted() bool {
	return rf.state.IsFitted()
}

// NTrees returns the number of fitted trees.
func (rf *RandomForestClassifier) NTrees() int {
	return len(rf.trees_)
}

// GetParams returns the forest's hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"oob_score":         rf.oobScore,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// SetParams sets the forest's hyperparameters.
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	if v, ok := params["n_estimators"].(int); ok {
		rf.nEstimators = v
	}
	if v, ok := params["max_depth"].(int); ok {
		rf.maxDepth = v
	}
	if v, ok := params["min_samples_split"].(int); ok {
		rf.minSamplesSplit = v
	}
	if v, ok := params["min_samples_leaf"].(int); ok {
		rf.minSamplesLeaf = v
	}
	if v, ok := params["max_features"]; ok {
		rf.maxFeatures = v
	}
	if v, ok := params["bootstrap"].(bool); ok {
		rf.bootstrap = v
	}
	if v, ok := params["oob_score"].(bool); ok {
		rf.oobScore = v
	}
	if v, ok := params["random_state"].(int64); ok {
		rf.randomState = v
	}
	if v, ok := params["n_jobs"].(int); ok {
		rf.nJobs = v
	}
	return nil
}

// Save writes the fitted forest to path using gob.
func (rf *RandomForestClassifier) Save(path string) error {
	return model.SaveModel(rf, path)
}

// Load reads a forest saved by Save.
func (rf *RandomForestClassifier) Load(path string) error {
	return model.LoadModel(rf, path)
}

// String returns the string representation of the forest.
func (rf *RandomForestClassifier) String() string {
	if !rf.state.IsFitted() {
		return fmt.Sprintf("RandomForestClassifier(n_estimators=%d, max_features=%v)",
			rf.nEstimators, rf.maxFeatures)
	}
	return fmt.Sprintf("RandomForestClassifier(n_estimators=%d, classes=%d, features=%d)",
		rf.nEstimators, rf.nClasses_, rf.nFeatures_)
}

// forestState is the gob image of a fitted forest.
type forestState struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeaturesStr  string
	MaxFeaturesInt  int
	Bootstrap       bool
	OOBEnabled      bool
	RandomState     int64
	NJobs           int

	Fitted    bool
	Trees     []*tree.DecisionTreeClassifier
	Classes   []int
	NFeatures int
	OOBScore  float64
	OOBSet    bool
}

// GobEncode serializes the forest, fitted trees included.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	state := forestState{
		NEstimators:     rf.nEstimators,
		MaxDepth:        rf.maxDepth,
		MinSamplesSplit: rf.minSamplesSplit,
		MinSamplesLeaf:  rf.minSamplesLeaf,
		Bootstrap:       rf.bootstrap,
		OOBEnabled:      rf.oobScore,
		RandomState:     rf.randomState,
		NJobs:           rf.nJobs,
		Fitted:          rf.state.IsFitted(),
		Trees:           rf.trees_,
		Classes:         rf.classes_,
		NFeatures:       rf.nFeatures_,
		OOBScore:        rf.oobScore_,
		OOBSet:          rf.oobSet_,
	}

	switch mf := rf.maxFeatures.(type) {
	case string:
		state.MaxFeaturesStr = mf
	case int:
		state.MaxFeaturesInt = mf
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, errors.Wrap(err, "failed to encode random forest")
	}
	return buf.Bytes(), nil
}

// GobDecode restores a forest serialized by GobEncode.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var state forestState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return errors.Wrap(err, "failed to decode random forest")
	}

	rf.state = model.NewStateManager()
	rf.nEstimators = state.NEstimators
	rf.maxDepth = state.MaxDepth
	rf.minSamplesSplit = state.MinSamplesSplit
	rf.minSamplesLeaf = state.MinSamplesLeaf
	rf.bootstrap = state.Bootstrap
	rf.oobScore = state.OOBEnabled
	rf.randomState = state.RandomState
	rf.nJobs = state.NJobs
	rf.trees_ = state.Trees
	rf.classes_ = state.Classes
	rf.nClasses_ = len(state.Classes)
	rf.nFeatures_ = state.NFeatures
	rf.oobScore_ = state.OOBScore
	rf.oobSet_ = state.OOBSet

	if state.MaxFeaturesStr != "" {
		rf.maxFeatures = state.MaxFeaturesStr
	} else if state.MaxFeaturesInt > 0 {
		rf.maxFeatures = state.MaxFeaturesInt
	} else {
		rf.maxFeatures = "sqrt"
	}

	if state.Fitted {
		rf.state.SetDimensions(state.NFeatures, 0)
		rf.state.SetFitted()
	}
	return nil
}

// collectClasses gathers the sorted unique integer labels of y.
func collectClasses(y mat.Matrix, rows int) ([]int, error) {
	set := make(map[int]bool)
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		c := int(v)
		if float64(c) != v {
			return nil, errors.NewValueError("RandomForestClassifier.Fit",
				fmt.Sprintf("labels must be integers, got %v at row %d", v, i))
		}
		set[c] = true
	}

	classes := make([]int, 0, len(set))
	for c := range set {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes, nil
}

// subsetRows copies the given rows of X and y into fresh matrices.
func subsetRows(X, y mat.Matrix, idx []int) (*mat.Dense, *mat.Dense) {
	_, cols := X.Dims()
	Xs := mat.NewDense(len(idx), cols, nil)
	ys := mat.NewDense(len(idx), 1, nil)

	for i, r := range idx {
		for j := 0; j < cols; j++ {
			Xs.Set(i, j, X.At(r, j))
		}
		ys.Set(i, 0, y.At(r, 0))
	}
	return Xs, ys
}

// alignProba maps a tree's probability columns onto the forest's class
// order; classes a bootstrap sample never saw get probability zero.
func alignProba(proba mat.Matrix, treeClasses []int, classIdx map[int]int, nClasses int) *mat.Dense {
	rows, _ := proba.Dims()
	aligned := mat.NewDense(rows, nClasses, nil)

	for j, c := range treeClasses {
		k := classIdx[c]
		for i := 0; i < rows; i++ {
			aligned.Set(i, k, proba.At(i, j))
		}
	}
	return aligned
}
