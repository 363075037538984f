// Package tree implements decision tree classifiers.
package tree

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/core/model"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

// splits below this impurity decrease are not worth keeping
const minGain = 1e-12

// node is one cell of the flat tree array. Child links are indexes into the
// same array. Fields are exported so a fitted tree gob-encodes.
type node struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      int
	Right     int

	// Prediction is the majority class index; ClassCounts are the training
	// sample counts per class reaching this node, used for probabilities.
	Prediction  int
	ClassCounts []float64
	NSamples    int
	Impurity    float64
}

// DecisionTreeClassifier is a CART-style classifier supporting gini and
// entropy split criteria.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 means all features
	randomState     int64

	// Learned state
	nodes      []node
	classes_   []int
	nClasses_  int
	nFeatures_ int
	depth_     int
	nLeaves_   int

	featureImportances_ []float64
}

// DecisionTreeOption configures a DecisionTreeClassifier.
type DecisionTreeOption func(*DecisionTreeClassifier)

// WithCriterion sets the split criterion: "gini" or "entropy".
func WithCriterion(criterion string) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the tree depth. Zero means unlimited.
func WithMaxDepth(depth int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum samples required to split a node.
func WithMinSamplesSplit(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum samples required in each leaf.
func WithMinSamplesLeaf(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures limits how many features are considered per split. Zero
// means all features. Used by random forests for per-split subsampling.
func WithMaxFeatures(n int) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithRandomState seeds the feature subsampling stream.
func WithRandomState(seed int64) DecisionTreeOption {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

// NewDecisionTreeClassifier creates a decision tree classifier with the
// given options.
func NewDecisionTreeClassifier(opts ...DecisionTreeOption) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}

	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// treeBuilder carries the shared state of one Fit call.
type treeBuilder struct {
	dt       *DecisionTreeClassifier
	X        mat.Matrix
	labels   []int // class index per row
	nClasses int
	nTotal   int
	rng      *rand.Rand

	nodes       []node
	importances []float64
	maxSeen     int
	nLeaves     int
}

// Fit grows the tree on X and integer labels y.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "DecisionTreeClassifier.Fit")

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", 1, yCols, 1)
	}
	if rows == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty training data", errors.ErrEmptyData)
	}
	if dt.criterion != "gini" && dt.criterion != "entropy" {
		return errors.NewValueError("DecisionTreeClassifier.Fit",
			fmt.Sprintf("unknown criterion %q, expected gini or entropy", dt.criterion))
	}

	// Map labels to a dense class index.
	classSet := make(map[int]bool)
	rawLabels := make([]int, rows)
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		c := int(v)
		if float64(c) != v {
			return errors.NewValueError("DecisionTreeClassifier.Fit",
				fmt.Sprintf("labels must be integers, got %v at row %d", v, i))
		}
		rawLabels[i] = c
		classSet[c] = true
	}

	classes := make([]int, 0, len(classSet))
	for c := range classSet {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	classIdx := make(map[int]int, len(classes))
	for k, c := range classes {
		classIdx[c] = k
	}

	labels := make([]int, rows)
	for i, c := range rawLabels {
		labels[i] = classIdx[c]
	}

	b := &treeBuilder{
		dt:          dt,
		X:           X,
		labels:      labels,
		nClasses:    len(classes),
		nTotal:      rows,
		rng:         rand.New(rand.NewPCG(uint64(dt.randomState), uint64(dt.randomState))),
		importances: make([]float64, cols),
	}

	samples := make([]int, rows)
	for i := range samples {
		samples[i] = i
	}
	b.build(samples, 0)

	dt.nodes = b.nodes
	dt.classes_ = classes
	dt.nClasses_ = len(classes)
	dt.nFeatures_ = cols
	dt.depth_ = b.maxSeen
	dt.nLeaves_ = b.nLeaves

	// Normalize importances so they sum to 1.
	total := 0.0
	for _, imp := range b.importances {
		total += imp
	}
	if total > 0 {
		for i := range b.importances {
			b.importances[i] /= total
		}
	}
	dt.featureImportances_ = b.importances

	dt.state.SetDimensions(cols, rows)
	dt.state.SetFitted()
	return nil
}

// build grows one subtree and returns its node index.
func (b *treeBuilder) build(samples []int, depth int) int {
	counts := make([]float64, b.nClasses)
	for _, i := range samples {
		counts[b.labels[i]]++
	}

	n := len(samples)
	imp := impurity(b.dt.criterion, counts, n)

	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{
		Leaf:        true,
		Prediction:  argmax(counts),
		ClassCounts: counts,
		NSamples:    n,
		Impurity:    imp,
	})

	if depth > b.maxSeen {
		b.maxSeen = depth
	}

	if imp == 0 ||
		n < b.dt.minSamplesSplit ||
		(b.dt.maxDepth > 0 && depth >= b.dt.maxDepth) {
		b.nLeaves++
		return idx
	}

	feature, threshold, gain := b.bestSplit(samples, counts, imp)
	if gain <= minGain {
		b.nLeaves++
		return idx
	}

	left := make([]int, 0, n)
	right := make([]int, 0, n)
	for _, i := range samples {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.importances[feature] += float64(n) / float64(b.nTotal) * gain

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)

	b.nodes[idx].Leaf = false
	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = threshold
	b.nodes[idx].Left = leftIdx
	b.nodes[idx].Right = rightIdx
	return idx
}

// bestSplit scans every candidate feature and every midpoint between
// consecutive distinct values, tracking the split with the largest
// impurity decrease.
func (b *treeBuilder) bestSplit(samples []int, counts []float64, parentImp float64) (int, float64, float64) {
	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	n := len(samples)

	order := make([]int, n)
	left := make([]float64, len(counts))
	right := make([]float64, len(counts))

	for _, f := range b.candidateFeatures() {
		copy(order, samples)
		sort.Slice(order, func(i, j int) bool {
			return b.X.At(order[i], f) < b.X.At(order[j], f)
		})

		for i := range left {
			left[i] = 0
			right[i] = counts[i]
		}

		for pos := 1; pos < n; pos++ {
			moved := b.labels[order[pos-1]]
			left[moved]++
			right[moved]--

			prev := b.X.At(order[pos-1], f)
			cur := b.X.At(order[pos], f)
			if prev == cur {
				continue
			}
			if pos < b.dt.minSamplesLeaf || n-pos < b.dt.minSamplesLeaf {
				continue
			}

			weighted := (float64(pos)*impurity(b.dt.criterion, left, pos) +
				float64(n-pos)*impurity(b.dt.criterion, right, n-pos)) / float64(n)
			gain := parentImp - weighted
			if gain > bestGain {
				bestFeature = f
				bestThreshold = (prev + cur) / 2
				bestGain = gain
			}
		}
	}

	return bestFeature, bestThreshold, bestGain
}

// candidateFeatures returns the features considered for the next split:
// all of them, or a random subset when maxFeatures is set.
func (b *treeBuilder) candidateFeatures() []int {
	_, cols := b.X.Dims()

	if b.dt.maxFeatures <= 0 || b.dt.maxFeatures >= cols {
		all := make([]int, cols)
		for i := range all {
			all[i] = i
		}
		return all
	}

	perm := b.rng.Perm(cols)
	return perm[:b.dt.maxFeatures]
}

func impurity(criterion string, counts []float64, n int) float64 {
	if n == 0 {
		return 0
	}

	total := float64(n)
	switch criterion {
	case "entropy":
		e := 0.0
		for _, c := range counts {
			if c == 0 {
				continue
			}
			p := c / total
			e -= p * math.Log2(p)
		}
		return e
	default: // gini
		g := 1.0
		for _, c := range counts {
			p := c / total
			g -= p * p
		}
		return g
	}
}

func argmax(values []float64) int {
	best, bestVal := 0, math.Inf(-1)
	for i, v := range values {
		if v > bestVal {
			best, bestVal = i, v
		}
	}
	return best
}

// leafFor walks the tree for row i of X.
func (dt *DecisionTreeClassifier) leafFor(X mat.Matrix, i int) *node {
	idx := 0
	for !dt.nodes[idx].Leaf {
		nd := &dt.nodes[idx]
		if X.At(i, nd.Feature) <= nd.Threshold {
			idx = nd.Left
		} else {
			idx = nd.Right
		}
	}
	return &dt.nodes[idx]
}

func (dt *DecisionTreeClassifier) validatePredictInput(op string, X mat.Matrix) (int, error) {
	if err := dt.state.RequireFittedFor("DecisionTreeClassifier", op); err != nil {
		return 0, err
	}
	rows, cols := X.Dims()
	if cols != dt.nFeatures_ {
		return 0, errors.NewDimensionError("DecisionTreeClassifier."+op, dt.nFeatures_, cols, 1)
	}
	return rows, nil
}

// Predict returns an n x 1 matrix of class labels.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := dt.validatePredictInput("Predict", X)
	if err != nil {
		return nil, err
	}

	pred := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		leaf := dt.leafFor(X, i)
		pred.Set(i, 0, float64(dt.classes_[leaf.Prediction]))
	}
	return pred, nil
}

// PredictProba returns an n x nClasses matrix of class probabilities, the
// training class distribution of each sample's leaf.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, err := dt.validatePredictInput("PredictProba", X)
	if err != nil {
		return nil, err
	}

	proba := mat.NewDense(rows, dt.nClasses_, nil)
	for i := 0; i < rows; i++ {
		leaf := dt.leafFor(X, i)
		total := float64(leaf.NSamples)
		for k := 0; k < dt.nClasses_; k++ {
			proba.Set(i, k, leaf.ClassCounts[k]/total)
		}
	}
	return proba, nil
}

// Score returns the accuracy on the given data, or 0 when prediction fails.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}

	rows, _ := pred.Dims()
	yRows, _ := y.Dims()
	if rows == 0 || rows != yRows {
		return 0
	}

	correct := 0
	for i := 0; i < rows; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rows)
}

// Classes returns the class labels seen during fitting.
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.classes_...)
}

// IsFitted returns whether the tree has been fitted.
func (dt *DecisionTreeClassifier) IsFitted() bool {
	return dt.state.IsFitted()
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	return dt.depth_
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return dt.nLeaves_
}

// GetFeatureImportances returns the normalized impurity decrease per
// feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetParams returns the tree's hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams sets the tree's hyperparameters.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	if v, ok := params["criterion"].(string); ok {
		dt.criterion = v
	}
	if v, ok := params["max_depth"].(int); ok {
		dt.maxDepth = v
	}
	if v, ok := params["min_samples_split"].(int); ok {
		dt.minSamplesSplit = v
	}
	if v, ok := params["min_samples_leaf"].(int); ok {
		dt.minSamplesLeaf = v
	}
	if v, ok := params["max_features"].(int); ok {
		dt.maxFeatures = v
	}
	if v, ok := params["random_state"].(int64); ok {
		dt.randomState = v
	}
	return nil
}

// String returns the string representation of the tree.
func (dt *DecisionTreeClassifier) String() string {
	if !dt.state.IsFitted() {
		return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, max_depth=%d)", dt.criterion, dt.maxDepth)
	}
	return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, depth=%d, leaves=%d, classes=%d)",
		dt.criterion, dt.depth_, dt.nLeaves_, dt.nClasses_)
}

// treeState is the gob image of a fitted tree.
type treeState struct {
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     int64

	Fitted     bool
	Nodes      []node
	Classes    []int
	NFeatures  int
	Depth      int
	NLeaves    int
	Importance []float64
}

// GobEncode serializes the tree, fitted state included.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	state := treeState{
		Criterion:       dt.criterion,
		MaxDepth:        dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit,
		MinSamplesLeaf:  dt.minSamplesLeaf,
		MaxFeatures:     dt.maxFeatures,
		RandomState:     dt.randomState,
		Fitted:          dt.state.IsFitted(),
		Nodes:           dt.nodes,
		Classes:         dt.classes_,
		NFeatures:       dt.nFeatures_,
		Depth:           dt.depth_,
		NLeaves:         dt.nLeaves_,
		Importance:      dt.featureImportances_,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, errors.Wrap(err, "failed to encode decision tree")
	}
	return buf.Bytes(), nil
}

// GobDecode restores a tree serialized by GobEncode.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	var state treeState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return errors.Wrap(err, "failed to decode decision tree")
	}

	dt.state = model.NewStateManager()
	dt.criterion = state.Criterion
	dt.maxDepth = state.MaxDepth
	dt.minSamplesSplit = state.MinSamplesSplit
	dt.minSamplesLeaf = state.MinSamplesLeaf
	dt.maxFeatures = state.MaxFeatures
	dt.randomState = state.RandomState
	dt.nodes = state.Nodes
	dt.classes_ = state.Classes
	dt.nClasses_ = len(state.Classes)
	dt.nFeatures_ = state.NFeatures
	dt.depth_ = state.Depth
	dt.nLeaves_ = state.NLeaves
	dt.featureImportances_ = state.Importance

	if state.Fitted {
		dt.state.SetDimensions(state.NFeatures, 0)
		dt.state.SetFitted()
	}
	return nil
}
