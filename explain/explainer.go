// Package explain provides model-agnostic explanations for binary
// classifiers: performance summaries, permutation feature importance,
// partial-dependence and ceteris-paribus profiles, and additive
// break-down and Shapley attributions for single observations.
//
// An Explainer pairs a prediction function with the reference data used
// to probe it. Models plug in through their PredictProba method or as a
// raw PredictFunc, so every explanation works the same way for a hand
// written scorecard, a decision tree or a forest.
package explain

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
)

// PredictFunc maps a feature matrix to one positive-class probability
// per row.
type PredictFunc func(X mat.Matrix) (*mat.VecDense, error)

// ProbabilityModel is the slice of a fitted classifier an explainer
// needs. All classifiers in this repository satisfy it.
type ProbabilityModel interface {
	PredictProba(X mat.Matrix) (mat.Matrix, error)
	Classes() []int
}

// Explainer wraps a prediction function together with reference data,
// labels and feature names. All explanation methods hang off this type.
type Explainer struct {
	predict   PredictFunc
	X         *mat.Dense
	y         *mat.VecDense
	features  []string
	label     string
	threshold float64
	logger    log.Logger
}

// ExplainerOption configures an Explainer.
type ExplainerOption func(*Explainer)

// WithFeatureNames sets the column names used in profiles, attributions
// and plots. Without it columns are named x0, x1, ...
func WithFeatureNames(names []string) ExplainerOption {
	return func(e *Explainer) { e.features = names }
}

// WithLabel names the wrapped model in logs, plots and reports.
func WithLabel(label string) ExplainerOption {
	return func(e *Explainer) { e.label = label }
}

// WithThreshold sets the classification cutoff used by
// ModelPerformance. The default is 0.5.
func WithThreshold(t float64) ExplainerOption {
	return func(e *Explainer) { e.threshold = t }
}

// NewExplainer builds an explainer around a fitted binary classifier.
// The reference data X, y is copied; y must hold 0/1 labels.
func NewExplainer(m ProbabilityModel, X mat.Matrix, y *mat.VecDense, opts ...ExplainerOption) (*Explainer, error) {
	fn, label, err := wrapModel(m)
	if err != nil {
		return nil, err
	}
	e, err := newExplainer(fn, X, y, opts...)
	if err != nil {
		return nil, err
	}
	if e.label == "" {
		e.label = label
	}
	e.logCreated()
	return e, nil
}

// NewExplainerFromFunc builds an explainer around a raw prediction
// function, for models that live outside this repository.
func NewExplainerFromFunc(fn PredictFunc, X mat.Matrix, y *mat.VecDense, opts ...ExplainerOption) (*Explainer, error) {
	if fn == nil {
		return nil, errors.NewValueError("NewExplainerFromFunc", "predict function must not be nil")
	}
	e, err := newExplainer(fn, X, y, opts...)
	if err != nil {
		return nil, err
	}
	if e.label == "" {
		e.label = "custom predict function"
	}
	e.logCreated()
	return e, nil
}

func wrapModel(m ProbabilityModel) (PredictFunc, string, error) {
	if m == nil {
		return nil, "", errors.NewValueError("NewExplainer", "model must not be nil")
	}
	classes := m.Classes()
	if len(classes) == 0 {
		return nil, "", errors.NewNotFittedError(fmt.Sprintf("%T", m), "NewExplainer")
	}
	if len(classes) != 2 {
		return nil, "", errors.NewValueError("NewExplainer",
			fmt.Sprintf("binary classifier required, got %d classes", len(classes)))
	}
	fn := func(X mat.Matrix) (*mat.VecDense, error) {
		proba, err := m.PredictProba(X)
		if err != nil {
			return nil, err
		}
		rows, _ := proba.Dims()
		out := mat.NewVecDense(rows, nil)
		// Column 1 holds the probability of the higher class label.
		for i := 0; i < rows; i++ {
			out.SetVec(i, proba.At(i, 1))
		}
		return out, nil
	}
	label := strings.TrimPrefix(fmt.Sprintf("%T", m), "*")
	return fn, label, nil
}

func newExplainer(fn PredictFunc, X mat.Matrix, y *mat.VecDense, opts ...ExplainerOption) (*Explainer, error) {
	if X == nil || y == nil {
		return nil, errors.NewValueError("NewExplainer", "reference data must not be nil")
	}
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "NewExplainer")
	}
	if y.Len() != rows {
		return nil, errors.NewInputShapeError("NewExplainer", []int{rows}, []int{y.Len()})
	}
	for i := 0; i < rows; i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return nil, errors.NewValueError("NewExplainer", "labels must be binary (0 or 1)")
		}
	}

	e := &Explainer{
		predict:   fn,
		X:         mat.DenseCopyOf(X),
		y:         mat.VecDenseCopyOf(y),
		threshold: 0.5,
		logger:    log.GetLoggerWithName("explain"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.features == nil {
		e.features = make([]string, cols)
		for j := range e.features {
			e.features[j] = fmt.Sprintf("x%d", j)
		}
	}
	if len(e.features) != cols {
		return nil, errors.NewValidationError("featureNames",
			fmt.Sprintf("need one name per column (%d columns)", cols), len(e.features))
	}
	if e.threshold <= 0 || e.threshold >= 1 {
		return nil, errors.NewValidationError("threshold", "must be in (0, 1)", e.threshold)
	}

	// Probe with a single row so a broken predict function fails here
	// instead of deep inside an explanation loop.
	if _, err := e.predictOn(e.X.Slice(0, 1, 0, cols)); err != nil {
		return nil, errors.Wrap(err, "predict function rejected the reference data")
	}
	return e, nil
}

func (e *Explainer) logCreated() {
	rows, cols := e.X.Dims()
	e.logger.Info("explainer created",
		log.ModelNameKey, e.label,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.ThresholdKey, e.threshold,
	)
}

// Label returns the model label used in plots and reports.
func (e *Explainer) Label() string {
	return e.label
}

// FeatureNames returns a copy of the explainer's feature names.
func (e *Explainer) FeatureNames() []string {
	out := make([]string, len(e.features))
	copy(out, e.features)
	return out
}

// NSamples returns the number of reference observations.
func (e *Explainer) NSamples() int {
	rows, _ := e.X.Dims()
	return rows
}

// predictOn runs the prediction function and guards its output shape.
func (e *Explainer) predictOn(X mat.Matrix) (*mat.VecDense, error) {
	rows, _ := X.Dims()
	p, err := e.predict(X)
	if err != nil {
		return nil, errors.Wrap(err, "failed to evaluate predict function")
	}
	got := 0
	if p != nil {
		got = p.Len()
	}
	if got != rows {
		return nil, errors.NewInputShapeError("Explainer.predict", []int{rows}, []int{got})
	}
	return p, nil
}

// meanPredictOn averages the prediction function over every row of X.
func (e *Explainer) meanPredictOn(X mat.Matrix) (float64, error) {
	p, err := e.predictOn(X)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < p.Len(); i++ {
		sum += p.AtVec(i)
	}
	return sum / float64(p.Len()), nil
}

// predictObservation scores a single observation vector.
func (e *Explainer) predictObservation(obs *mat.VecDense) (float64, error) {
	row := mat.NewDense(1, obs.Len(), nil)
	row.SetRow(0, rawVec(obs))
	p, err := e.predictOn(row)
	if err != nil {
		return 0, err
	}
	return p.AtVec(0), nil
}

// checkObservation validates a single-observation vector against the
// reference data width.
func (e *Explainer) checkObservation(op string, obs *mat.VecDense) error {
	_, cols := e.X.Dims()
	if obs == nil {
		return errors.NewValueError(op, "observation must not be nil")
	}
	if obs.Len() != cols {
		return errors.NewInputShapeError(op, []int{cols}, []int{obs.Len()})
	}
	return nil
}

// featureIndex resolves a feature name to its column index.
func (e *Explainer) featureIndex(op, name string) (int, error) {
	for j, f := range e.features {
		if f == name {
			return j, nil
		}
	}
	return 0, errors.NewValueError(op, fmt.Sprintf("unknown feature %q", name))
}

func rawVec(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// setColumn overwrites column j of dst with a constant value.
func setColumn(dst *mat.Dense, j int, value float64) {
	rows, _ := dst.Dims()
	for i := 0; i < rows; i++ {
		dst.Set(i, j, value)
	}
}
