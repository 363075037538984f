// Package linear_model provides linear classifiers.
package linear_model

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/core/model"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
)

// baseLearningRate is the initial gradient descent step size; it decays
// as 1/(1+0.1*iter).
const baseLearningRate = 1.0

// LogisticRegression is a linear classifier trained by gradient descent.
// Binary problems use a single sigmoid head, multiclass problems use
// either a multinomial softmax or one-vs-rest, controlled by multiClass.
type LogisticRegression struct {
	state *model.StateManager

	// Hyperparameters
	penalty      string  // "l2", "l1" or "none"
	C            float64 // Inverse regularization strength
	fitIntercept bool
	maxIter      int
	multiClass   string // "auto", "multinomial" or "ovr"
	tol          float64

	// Model parameters. coef_ has one row for binary problems and one
	// row per class otherwise.
	coef_      [][]float64
	intercept_ []float64
	classes_   []int
	nClasses_  int
	nFeatures_ int
	nIter_     []int
}

// LogisticRegressionOption is a functional option for LogisticRegression.
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier.
// Weights start at zero, so fits are reproducible without a seed.
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		maxIter:      100,
		multiClass:   "auto",
		tol:          1e-4,
	}

	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type: "l2", "l1" or "none".
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength.
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit an intercept term.
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRMaxIter sets the maximum number of gradient descent iterations.
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the gradient tolerance for early stopping.
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRMultiClass selects the multiclass strategy: "auto", "multinomial"
// or "ovr".
func WithLRMultiClass(strategy string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.multiClass = strategy
	}
}

// Fit trains the classifier on X and integer labels y.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LogisticRegression.Fit")

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}
	if nSamples == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty training data", errors.ErrEmptyData)
	}

	switch lr.penalty {
	case "l2", "l1", "none":
	default:
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("unknown penalty %q, expected l2, l1 or none", lr.penalty))
	}
	switch lr.multiClass {
	case "auto", "multinomial", "ovr":
	default:
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("unknown multi_class %q, expected auto, multinomial or ovr", lr.multiClass))
	}

	if err := lr.extractClasses(y); err != nil {
		return err
	}
	if lr.nClasses_ < 2 {
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("needs at least 2 classes, got %d", lr.nClasses_))
	}
	lr.nFeatures_ = nFeatures
	lr.initializeWeights(nFeatures)

	converged := true
	if lr.nClasses_ == 2 {
		target := make([]float64, nSamples)
		for i := 0; i < nSamples; i++ {
			if int(y.At(i, 0)) == lr.classes_[1] {
				target[i] = 1.0
			}
		}
		converged = lr.fitSigmoid(X, target, 0)
	} else if lr.multiClass == "ovr" {
		for classIdx, class := range lr.classes_ {
			target := make([]float64, nSamples)
			for i := 0; i < nSamples; i++ {
				if int(y.At(i, 0)) == class {
					target[i] = 1.0
				}
			}
			if !lr.fitSigmoid(X, target, classIdx) {
				converged = false
			}
		}
	} else {
		converged = lr.fitMultinomial(X, y)
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.maxIter,
			"gradient did not reach tolerance; consider more iterations or scaling the features"))
	}

	// NaN features or a diverged descent leave NaN weights behind.
	for k := range lr.coef_ {
		if err := errors.CheckNumericalStability("LogisticRegression.Fit", lr.coef_[k], lr.nIter_[k]); err != nil {
			return err
		}
	}

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()

	logger := log.GetLoggerWithName("linear_model.logistic")
	logger.Info("logistic regression fitted",
		log.ModelNameKey, "LogisticRegression",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		"classes", lr.nClasses_,
	)
	return nil
}

// extractClasses identifies the sorted unique class labels of y.
func (lr *LogisticRegression) extractClasses(y mat.Matrix) error {
	rows, _ := y.Dims()
	classMap := make(map[int]bool)

	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		label := int(v)
		if float64(label) != v {
			return errors.NewValueError("LogisticRegression.Fit",
				fmt.Sprintf("labels must be integers, got %v at row %d", v, i))
		}
		classMap[label] = true
	}

	lr.classes_ = make([]int, 0, len(classMap))
	for class := range classMap {
		lr.classes_ = append(lr.classes_, class)
	}

	for i := 0; i < len(lr.classes_)-1; i++ {
		for j := i + 1; j < len(lr.classes_); j++ {
			if lr.classes_[i] > lr.classes_[j] {
				lr.classes_[i], lr.classes_[j] = lr.classes_[j], lr.classes_[i]
			}
		}
	}

	lr.nClasses_ = len(lr.classes_)
	return nil
}

// initializeWeights allocates zeroed weights: one head for binary
// problems, one per class otherwise.
func (lr *LogisticRegression) initializeWeights(nFeatures int) {
	nHeads := 1
	if lr.nClasses_ > 2 {
		nHeads = lr.nClasses_
	}

	lr.coef_ = make([][]float64, nHeads)
	for i := range lr.coef_ {
		lr.coef_[i] = make([]float64, nFeatures)
	}
	lr.intercept_ = make([]float64, nHeads)
	lr.nIter_ = make([]int, nHeads)
}

// penaltyGradient returns the regularization term added to the averaged
// loss gradient of weight w. The strength is 1/(C*n), matching the
// objective (1/n)*sum(logloss) + ||w||^2 / (2*C*n).
func (lr *LogisticRegression) penaltyGradient(w float64, nSamples int) float64 {
	switch lr.penalty {
	case "l2":
		return w / (lr.C * float64(nSamples))
	case "l1":
		if w > 0 {
			return 1 / (lr.C * float64(nSamples))
		}
		if w < 0 {
			return -1 / (lr.C * float64(nSamples))
		}
	}
	return 0
}

// fitSigmoid runs gradient descent for one sigmoid head against a 0/1
// target. Used directly for binary problems and per class for OVR.
func (lr *LogisticRegression) fitSigmoid(X mat.Matrix, target []float64, classIdx int) bool {
	nSamples, nFeatures := X.Dims()
	weights := lr.coef_[classIdx]
	intercept := &lr.intercept_[classIdx]

	for iter := 0; iter < lr.maxIter; iter++ {
		gradWeights := make([]float64, nFeatures)
		gradIntercept := 0.0

		for i := 0; i < nSamples; i++ {
			z := *intercept
			for j := 0; j < nFeatures; j++ {
				z += X.At(i, j) * weights[j]
			}
			residual := sigmoid(z) - target[i]
			gradIntercept += residual
			for j := 0; j < nFeatures; j++ {
				gradWeights[j] += residual * X.At(i, j)
			}
		}

		maxGrad := math.Abs(gradIntercept / float64(nSamples))
		for j := range gradWeights {
			gradWeights[j] = gradWeights[j]/float64(nSamples) + lr.penaltyGradient(weights[j], nSamples)
			if g := math.Abs(gradWeights[j]); g > maxGrad {
				maxGrad = g
			}
		}
		gradIntercept /= float64(nSamples)

		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		for j := range weights {
			weights[j] -= learningRate * gradWeights[j]
		}
		if lr.fitIntercept {
			*intercept -= learningRate * gradIntercept
		}

		lr.nIter_[classIdx] = iter + 1
		if maxGrad < lr.tol {
			return true
		}
	}
	return false
}

// fitMultinomial runs gradient descent on the softmax cross-entropy over
// all classes at once.
func (lr *LogisticRegression) fitMultinomial(X, y mat.Matrix) bool {
	nSamples, nFeatures := X.Dims()

	classIdx := make(map[int]int, lr.nClasses_)
	for k, c := range lr.classes_ {
		classIdx[c] = k
	}

	scores := make([]float64, lr.nClasses_)
	for iter := 0; iter < lr.maxIter; iter++ {
		gradW := make([][]float64, lr.nClasses_)
		for k := range gradW {
			gradW[k] = make([]float64, nFeatures)
		}
		gradB := make([]float64, lr.nClasses_)

		for i := 0; i < nSamples; i++ {
			for k := 0; k < lr.nClasses_; k++ {
				z := lr.intercept_[k]
				for j := 0; j < nFeatures; j++ {
					z += X.At(i, j) * lr.coef_[k][j]
				}
				scores[k] = z
			}
			softmaxInPlace(scores)

			trueClass := classIdx[int(y.At(i, 0))]
			for k := 0; k < lr.nClasses_; k++ {
				residual := scores[k]
				if k == trueClass {
					residual -= 1.0
				}
				gradB[k] += residual
				for j := 0; j < nFeatures; j++ {
					gradW[k][j] += residual * X.At(i, j)
				}
			}
		}

		maxGrad := 0.0
		for k := 0; k < lr.nClasses_; k++ {
			gradB[k] /= float64(nSamples)
			if g := math.Abs(gradB[k]); g > maxGrad {
				maxGrad = g
			}
			for j := 0; j < nFeatures; j++ {
				gradW[k][j] = gradW[k][j]/float64(nSamples) + lr.penaltyGradient(lr.coef_[k][j], nSamples)
				if g := math.Abs(gradW[k][j]); g > maxGrad {
					maxGrad = g
				}
			}
		}

		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		for k := 0; k < lr.nClasses_; k++ {
			if lr.fitIntercept {
				lr.intercept_[k] -= learningRate * gradB[k]
			}
			for j := 0; j < nFeatures; j++ {
				lr.coef_[k][j] -= learningRate * gradW[k][j]
			}
		}

		for k := range lr.nIter_ {
			lr.nIter_[k] = iter + 1
		}
		if maxGrad < lr.tol {
			return true
		}
	}
	return false
}

func (lr *LogisticRegression) validatePredictInput(op string, X mat.Matrix) (int, error) {
	if err := lr.state.RequireFittedFor("LogisticRegression", op); err != nil {
		return 0, err
	}
	rows, cols := X.Dims()
	if cols != lr.nFeatures_ {
		return 0, errors.NewDimensionError("LogisticRegression."+op, lr.nFeatures_, cols, 1)
	}
	return rows, nil
}

// decisionScore returns the raw linear score of head k for row i of X.
func (lr *LogisticRegression) decisionScore(X mat.Matrix, i, k int) float64 {
	z := lr.intercept_[k]
	for j := 0; j < lr.nFeatures_; j++ {
		z += X.At(i, j) * lr.coef_[k][j]
	}
	return z
}

// Predict returns the predicted class labels as an n x 1 matrix.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	nSamples, err := lr.validatePredictInput("Predict", X)
	if err != nil {
		return nil, err
	}

	predictions := mat.NewDense(nSamples, 1, nil)
	if lr.nClasses_ == 2 {
		for i := 0; i < nSamples; i++ {
			if sigmoid(lr.decisionScore(X, i, 0)) >= 0.5 {
				predictions.Set(i, 0, float64(lr.classes_[1]))
			} else {
				predictions.Set(i, 0, float64(lr.classes_[0]))
			}
		}
		return predictions, nil
	}

	for i := 0; i < nSamples; i++ {
		best, bestScore := 0, math.Inf(-1)
		for k := 0; k < lr.nClasses_; k++ {
			if z := lr.decisionScore(X, i, k); z > bestScore {
				best, bestScore = k, z
			}
		}
		predictions.Set(i, 0, float64(lr.classes_[best]))
	}
	return predictions, nil
}

// PredictProba returns per-class probability estimates as an
// n x nClasses matrix.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	nSamples, err := lr.validatePredictInput("PredictProba", X)
	if err != nil {
		return nil, err
	}

	probas := mat.NewDense(nSamples, lr.nClasses_, nil)
	if lr.nClasses_ == 2 {
		for i := 0; i < nSamples; i++ {
			p := sigmoid(lr.decisionScore(X, i, 0))
			probas.Set(i, 0, 1.0-p)
			probas.Set(i, 1, p)
		}
		return probas, nil
	}

	scores := make([]float64, lr.nClasses_)
	for i := 0; i < nSamples; i++ {
		for k := 0; k < lr.nClasses_; k++ {
			scores[k] = lr.decisionScore(X, i, k)
		}
		softmaxInPlace(scores)
		for k := 0; k < lr.nClasses_; k++ {
			probas.Set(i, k, scores[k])
		}
	}
	return probas, nil
}

// Score returns the mean accuracy on the given data and labels.
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0.0
	}

	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}

// Classes returns the class labels seen during fitting.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.classes_...)
}

// IsFitted returns whether the model has been fitted.
func (lr *LogisticRegression) IsFitted() bool {
	return lr.state.IsFitted()
}

// Weights returns the learned coefficients. For multiclass models this is
// the first class head; use Coef for all of them.
func (lr *LogisticRegression) Weights() []float64 {
	if len(lr.coef_) == 0 {
		return nil
	}
	return append([]float64(nil), lr.coef_[0]...)
}

// Intercept returns the learned intercept of the first head.
func (lr *LogisticRegression) Intercept() float64 {
	if len(lr.intercept_) == 0 {
		return 0
	}
	return lr.intercept_[0]
}

// Coef returns a copy of all coefficient rows.
func (lr *LogisticRegression) Coef() [][]float64 {
	out := make([][]float64, len(lr.coef_))
	for i, row := range lr.coef_ {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// NIter returns the number of gradient descent iterations per head.
func (lr *LogisticRegression) NIter() []int {
	return append([]int(nil), lr.nIter_...)
}

// GetParams returns the model hyperparameters.
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"max_iter":      lr.maxIter,
		"multi_class":   lr.multiClass,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters.
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "penalty":
			lr.penalty = value.(string)
		case "C":
			lr.C = value.(float64)
		case "fit_intercept":
			lr.fitIntercept = value.(bool)
		case "max_iter":
			// Integer values survive a JSON round trip as float64.
			switch v := value.(type) {
			case int:
				lr.maxIter = v
			case float64:
				lr.maxIter = int(v)
			}
		case "multi_class":
			lr.multiClass = value.(string)
		case "tol":
			lr.tol = value.(float64)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}

// ExportWeights exports the fitted coefficients with a content checksum.
// Multiclass heads are flattened row by row.
func (lr *LogisticRegression) ExportWeights() (*model.ModelWeights, error) {
	if !lr.state.IsFitted() {
		return nil, errors.NewNotFittedError("LogisticRegression", "ExportWeights")
	}

	flat := make([]float64, 0, len(lr.coef_)*lr.nFeatures_)
	for _, row := range lr.coef_ {
		flat = append(flat, row...)
	}

	coefJSON, err := json.Marshal(flat)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize coefficients")
	}
	checksum := sha256.Sum256(coefJSON)

	classes := make([]float64, len(lr.classes_))
	for i, c := range lr.classes_ {
		classes[i] = float64(c)
	}

	return &model.ModelWeights{
		ModelType:    "LogisticRegression",
		Version:      "1.0.0",
		Coefficients: flat,
		Intercept:    lr.intercept_[0],
		Hyperparameters: map[string]interface{}{
			"penalty":  lr.penalty,
			"C":        lr.C,
			"max_iter": lr.maxIter,
			"tol":      lr.tol,
		},
		Metadata: map[string]interface{}{
			"checksum":   fmt.Sprintf("%x", checksum),
			"n_features": lr.nFeatures_,
			"classes":    classes,
			"intercepts": append([]float64(nil), lr.intercept_...),
		},
		IsFitted: true,
	}, nil
}

// ImportWeights restores coefficients exported by ExportWeights.
func (lr *LogisticRegression) ImportWeights(weights *model.ModelWeights) error {
	if weights == nil {
		return errors.NewValueError("LogisticRegression.ImportWeights", "weights must not be nil")
	}
	if weights.ModelType != "LogisticRegression" {
		return errors.NewValueError("LogisticRegression.ImportWeights",
			fmt.Sprintf("expected LogisticRegression weights, got %s", weights.ModelType))
	}

	if stored, ok := weights.Metadata["checksum"].(string); ok {
		coefJSON, err := json.Marshal(weights.Coefficients)
		if err != nil {
			return errors.Wrap(err, "failed to serialize coefficients")
		}
		if actual := fmt.Sprintf("%x", sha256.Sum256(coefJSON)); actual != stored {
			return errors.NewValueError("LogisticRegression.ImportWeights",
				"checksum mismatch: weights are corrupted")
		}
	}

	nFeatures, ok := asInt(weights.Metadata["n_features"])
	if !ok || nFeatures < 1 {
		return errors.NewValueError("LogisticRegression.ImportWeights", "missing n_features metadata")
	}
	classes, ok := asFloats(weights.Metadata["classes"])
	if !ok || len(classes) < 2 {
		return errors.NewValueError("LogisticRegression.ImportWeights", "missing classes metadata")
	}
	intercepts, ok := asFloats(weights.Metadata["intercepts"])
	if !ok {
		return errors.NewValueError("LogisticRegression.ImportWeights", "missing intercepts metadata")
	}

	nHeads := len(weights.Coefficients) / nFeatures
	if nHeads*nFeatures != len(weights.Coefficients) || len(intercepts) != nHeads {
		return errors.NewValueError("LogisticRegression.ImportWeights",
			"coefficient shape does not match n_features")
	}

	lr.nFeatures_ = nFeatures
	lr.classes_ = make([]int, len(classes))
	for i, c := range classes {
		lr.classes_[i] = int(c)
	}
	lr.nClasses_ = len(lr.classes_)
	lr.coef_ = make([][]float64, nHeads)
	for k := 0; k < nHeads; k++ {
		lr.coef_[k] = append([]float64(nil), weights.Coefficients[k*nFeatures:(k+1)*nFeatures]...)
	}
	lr.intercept_ = intercepts
	lr.nIter_ = make([]int, nHeads)

	lr.state.SetDimensions(nFeatures, 0)
	lr.state.SetFitted()
	return nil
}

// Save writes the fitted model to path using gob.
func (lr *LogisticRegression) Save(path string) error {
	return model.SaveModel(lr, path)
}

// Load reads a model saved by Save.
func (lr *LogisticRegression) Load(path string) error {
	return model.LoadModel(lr, path)
}

// String returns the string representation of the model.
func (lr *LogisticRegression) String() string {
	if !lr.state.IsFitted() {
		return fmt.Sprintf("LogisticRegression(penalty=%s, C=%g)", lr.penalty, lr.C)
	}
	return fmt.Sprintf("LogisticRegression(penalty=%s, C=%g, classes=%d, features=%d)",
		lr.penalty, lr.C, lr.nClasses_, lr.nFeatures_)
}

// logisticState is the gob image of a fitted model.
type logisticState struct {
	Penalty      string
	C            float64
	FitIntercept bool
	MaxIter      int
	MultiClass   string
	Tol          float64

	Fitted    bool
	Coef      [][]float64
	Intercept []float64
	Classes   []int
	NFeatures int
	NIter     []int
}

// GobEncode serializes the model.
func (lr *LogisticRegression) GobEncode() ([]byte, error) {
	state := logisticState{
		Penalty:      lr.penalty,
		C:            lr.C,
		FitIntercept: lr.fitIntercept,
		MaxIter:      lr.maxIter,
		MultiClass:   lr.multiClass,
		Tol:          lr.tol,
		Fitted:       lr.state.IsFitted(),
		Coef:         lr.coef_,
		Intercept:    lr.intercept_,
		Classes:      lr.classes_,
		NFeatures:    lr.nFeatures_,
		NIter:        lr.nIter_,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, errors.Wrap(err, "failed to encode logistic regression")
	}
	return buf.Bytes(), nil
}

// GobDecode restores a model serialized by GobEncode.
func (lr *LogisticRegression) GobDecode(data []byte) error {
	var state logisticState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return errors.Wrap(err, "failed to decode logistic regression")
	}

	lr.state = model.NewStateManager()
	lr.penalty = state.Penalty
	lr.C = state.C
	lr.fitIntercept = state.FitIntercept
	lr.maxIter = state.MaxIter
	lr.multiClass = state.MultiClass
	lr.tol = state.Tol
	lr.coef_ = state.Coef
	lr.intercept_ = state.Intercept
	lr.classes_ = state.Classes
	lr.nClasses_ = len(state.Classes)
	lr.nFeatures_ = state.NFeatures
	lr.nIter_ = state.NIter

	if state.Fitted {
		lr.state.SetDimensions(state.NFeatures, 0)
		lr.state.SetFitted()
	}
	return nil
}

// sigmoid computes 1/(1+exp(-z)) without overflowing for large |z|.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1.0 + e)
}

// softmaxInPlace turns raw scores into probabilities.
func softmaxInPlace(scores []float64) {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	sum := 0.0
	for i, s := range scores {
		scores[i] = math.Exp(s - maxScore)
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
}

// asInt converts a JSON-decoded numeric value to int.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

// asFloats converts a JSON-decoded numeric slice to []float64.
func asFloats(v interface{}) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return append([]float64(nil), s...), true
	case []interface{}:
		out := make([]float64, len(s))
		for i, e := range s {
			f, ok := e.(float64)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}
