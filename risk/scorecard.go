// Package risk implements a hand-built clinical points scorecard.
//
// Unlike the learned models, the structure of the score is written by hand:
// each rule awards points when a feature crosses its threshold, and only the
// logistic curve mapping total points to probability is calibrated on data.
package risk

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/core/model"
	"github.com/YuminosukeSato/glassbox/metrics"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
)

// Calibration defaults. Fit falls back to these when the values are unset,
// for example on a scorecard restored from gob.
const (
	defaultLearningRate   = 0.1
	defaultMaxIter        = 1000
	defaultTol            = 1e-6
	defaultClassThreshold = 0.5
)

// Rule awards Points when a feature value is at or above Threshold.
// Flag features are encoded 0/1, so Threshold 1 means "answered Yes".
// A missing (NaN) value never fires a rule.
type Rule struct {
	Feature   string
	Threshold float64
	Points    float64
}

// Scorecard is a points model over a fixed feature schema. The rules stay as
// written; Fit only calibrates the intercept and slope of the logistic curve
// that turns total points into a probability. Data fields are exported so a
// fitted card survives gob encoding.
type Scorecard struct {
	State *model.StateManager

	// Hand-written structure.
	Rules        []Rule
	FeatureNames []string

	// Logistic calibration learned by Fit.
	Intercept float64
	Slope     float64

	// ClassThreshold is the probability at or above which Predict returns 1.
	ClassThreshold float64

	learningRate float64
	maxIter      int
	tol          float64

	ruleCols []int // resolved rule -> column mapping, rebuilt after gob decode
}

// ScorecardOption configures a Scorecard.
type ScorecardOption func(*Scorecard)

// WithLearningRate sets the calibration step size.
func WithLearningRate(rate float64) ScorecardOption {
	return func(sc *Scorecard) { sc.learningRate = rate }
}

// WithMaxIterations sets the calibration iteration cap.
func WithMaxIterations(n int) ScorecardOption {
	return func(sc *Scorecard) { sc.maxIter = n }
}

// WithTolerance sets the gradient norm below which calibration stops.
func WithTolerance(tol float64) ScorecardOption {
	return func(sc *Scorecard) { sc.tol = tol }
}

// WithClassThreshold sets the probability cutoff used by Predict.
func WithClassThreshold(p float64) ScorecardOption {
	return func(sc *Scorecard) { sc.ClassThreshold = p }
}

// NewScorecard builds a scorecard over the given feature schema. Rules are
// checked against the schema on first use.
func NewScorecard(rules []Rule, featureNames []string, opts ...ScorecardOption) *Scorecard {
	sc := &Scorecard{
		State:          model.NewStateManager(),
		Rules:          append([]Rule(nil), rules...),
		FeatureNames:   append([]string(nil), featureNames...),
		ClassThreshold: defaultClassThreshold,
		learningRate:   defaultLearningRate,
		maxIter:        defaultMaxIter,
		tol:            defaultTol,
	}

	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// DefaultCardiacRules returns the walkthrough preset: cumulative age bands
// plus one rule per comorbidity flag. Only rules whose feature appears in
// featureNames are kept, so the preset adapts to the loaded schema.
func DefaultCardiacRules(featureNames []string) []Rule {
	preset := []Rule{
		{Feature: "Age", Threshold: 60, Points: 1},
		{Feature: "Age", Threshold: 75, Points: 2},
		{Feature: "HeartFailure", Threshold: 1, Points: 2},
		{Feature: "Kidney", Threshold: 1, Points: 2},
		{Feature: "Anaemia", Threshold: 1, Points: 1},
		{Feature: "Diabetes", Threshold: 1, Points: 1},
		{Feature: "Hypertension", Threshold: 1, Points: 1},
	}

	present := make(map[string]bool, len(featureNames))
	for _, name := range featureNames {
		present[name] = true
	}

	rules := make([]Rule, 0, len(preset))
	for _, rule := range preset {
		if present[rule.Feature] {
			rules = append(rules, rule)
		}
	}
	return rules
}

// resolveRules maps each rule to its column index in the schema.
func (sc *Scorecard) resolveRules() error {
	if sc.ruleCols != nil {
		return nil
	}
	if len(sc.Rules) == 0 {
		return errors.NewValueError("Scorecard", "no rules defined")
	}

	idx := make(map[string]int, len(sc.FeatureNames))
	for j, name := range sc.FeatureNames {
		idx[name] = j
	}

	cols := make([]int, len(sc.Rules))
	for i, rule := range sc.Rules {
		j, ok := idx[rule.Feature]
		if !ok {
			return errors.NewValidationError("rule", "feature not in schema", rule.Feature)
		}
		cols[i] = j
	}

	sc.ruleCols = cols
	return nil
}

// RawScores computes the total points for every row. The score is fully
// defined by the hand-written rules, so it works before Fit.
func (sc *Scorecard) RawScores(X mat.Matrix) (*mat.VecDense, error) {
	if err := sc.resolveRules(); err != nil {
		return nil, err
	}

	n, c := X.Dims()
	if c != len(sc.FeatureNames) {
		return nil, errors.NewDimensionError("Scorecard.RawScores", len(sc.FeatureNames), c, 1)
	}

	scores := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		var s float64
		for r, rule := range sc.Rules {
			if X.At(i, sc.ruleCols[r]) >= rule.Threshold {
				s += rule.Points
			}
		}
		scores.SetVec(i, s)
	}
	return scores, nil
}

// Fit calibrates the logistic curve by gradient descent on the log loss.
// The rule points are never touched.
func (sc *Scorecard) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "Scorecard.Fit")

	rows, _ := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return errors.NewDimensionError("Scorecard.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("Scorecard.Fit", 1, yCols, 1)
	}
	if rows == 0 {
		return errors.NewModelError("Scorecard.Fit", "empty training data", errors.ErrEmptyData)
	}

	scores, err := sc.RawScores(X)
	if err != nil {
		return err
	}

	labels := make([]float64, rows)
	for i := range labels {
		v := y.At(i, 0)
		if v != 0 && v != 1 {
			return errors.NewValueError("Scorecard.Fit",
				fmt.Sprintf("labels must be 0 or 1, got %v at row %d", v, i))
		}
		labels[i] = v
	}

	if sc.learningRate <= 0 {
		sc.learningRate = defaultLearningRate
	}
	if sc.maxIter <= 0 {
		sc.maxIter = defaultMaxIter
	}
	if sc.tol <= 0 {
		sc.tol = defaultTol
	}

	a, b := 0.0, 0.0
	converged := false
	for iter := 0; iter < sc.maxIter; iter++ {
		var gradA, gradB float64
		for i := 0; i < rows; i++ {
			s := scores.AtVec(i)
			diff := sigmoid(a+b*s) - labels[i]
			gradA += diff
			gradB += diff * s
		}
		gradA /= float64(rows)
		gradB /= float64(rows)

		a -= sc.learningRate * gradA
		b -= sc.learningRate * gradB

		// An oversized learning rate can blow the calibration up.
		if err := errors.CheckNumericalStability("Scorecard.Fit", []float64{a, b}, iter); err != nil {
			return err
		}

		if math.Abs(gradA) < sc.tol && math.Abs(gradB) < sc.tol {
			converged = true
			break
		}
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("Scorecard", sc.maxIter,
			"calibration gradient did not reach tolerance"))
	}

	sc.Intercept = a
	sc.Slope = b
	sc.State.SetDimensions(len(sc.FeatureNames), rows)
	sc.State.SetFitted()

	logger := log.GetLoggerWithName("risk.scorecard")
	logger.Info("scorecard calibrated",
		log.ModelNameKey, "Scorecard",
		log.SamplesKey, rows,
		"rules", len(sc.Rules),
	)

	return nil
}

// PredictProba returns an n x 2 matrix of class probabilities, columns
// ordered as Classes().
func (sc *Scorecard) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := sc.State.RequireFittedFor("Scorecard", "PredictProba"); err != nil {
		return nil, err
	}

	scores, err := sc.RawScores(X)
	if err != nil {
		return nil, err
	}

	n := scores.Len()
	proba := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := sigmoid(sc.Intercept + sc.Slope*scores.AtVec(i))
		proba.Set(i, 0, 1-p)
		proba.Set(i, 1, p)
	}
	return proba, nil
}

// Predict returns an n x 1 matrix of 0/1 labels using ClassThreshold.
func (sc *Scorecard) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := sc.State.RequireFittedFor("Scorecard", "Predict"); err != nil {
		return nil, err
	}

	proba, err := sc.PredictProba(X)
	if err != nil {
		return nil, err
	}

	n, _ := proba.Dims()
	pred := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if proba.At(i, 1) >= sc.ClassThreshold {
			pred.Set(i, 0, 1)
		}
	}
	return pred, nil
}

// Score returns the accuracy on the given data.
func (sc *Scorecard) Score(X, y mat.Matrix) (float64, error) {
	pred, err := sc.Predict(X)
	if err != nil {
		return 0, err
	}

	n, _ := pred.Dims()
	yRows, _ := y.Dims()
	if yRows != n {
		return 0, errors.NewDimensionError("Scorecard.Score", n, yRows, 0)
	}

	yTrue := mat.NewVecDense(n, nil)
	yPred := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		yTrue.SetVec(i, y.At(i, 0))
		yPred.SetVec(i, pred.At(i, 0))
	}
	return metrics.Accuracy(yTrue, yPred)
}

// Classes returns the class labels, always 0 and 1 for a scorecard.
func (sc *Scorecard) Classes() []int {
	return []int{0, 1}
}

// IsFitted returns whether the calibration has been fitted.
func (sc *Scorecard) IsFitted() bool {
	return sc.State.IsFitted()
}

// GetParams returns the scorecard's hyperparameters.
func (sc *Scorecard) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_rules":         len(sc.Rules),
		"class_threshold": sc.ClassThreshold,
		"learning_rate":   sc.learningRate,
		"max_iter":        sc.maxIter,
		"tol":             sc.tol,
	}
}

// SetParams sets the scorecard's hyperparameters. Integer values survive a
// JSON round trip as float64, so both forms are accepted.
func (sc *Scorecard) SetParams(params map[string]interface{}) error {
	if v, ok := params["class_threshold"].(float64); ok {
		sc.ClassThreshold = v
	}
	if v, ok := params["learning_rate"].(float64); ok {
		sc.learningRate = v
	}
	if v, ok := params["max_iter"]; ok {
		switch n := v.(type) {
		case int:
			sc.maxIter = n
		case float64:
			sc.maxIter = int(n)
		}
	}
	if v, ok := params["tol"].(float64); ok {
		sc.tol = v
	}
	return nil
}

// ExportWeights exports the rule points and calibration as ModelWeights.
func (sc *Scorecard) ExportWeights() (*model.ModelWeights, error) {
	if !sc.State.IsFitted() {
		return nil, errors.NewNotFittedError("Scorecard", "ExportWeights")
	}

	points := make([]float64, len(sc.Rules))
	features := make([]string, len(sc.Rules))
	thresholds := make([]float64, len(sc.Rules))
	for i, rule := range sc.Rules {
		points[i] = rule.Points
		features[i] = rule.Feature
		thresholds[i] = rule.Threshold
	}

	weights := &model.ModelWeights{
		ModelType:       "RiskScorecard",
		Version:         "1.0.0",
		Coefficients:    points,
		Intercept:       sc.Intercept,
		Features:        features,
		IsFitted:        true,
		Hyperparameters: sc.GetParams(),
		Metadata: map[string]interface{}{
			"slope":         sc.Slope,
			"thresholds":    thresholds,
			"feature_names": sc.FeatureNames,
		},
	}

	data, _ := json.Marshal(weights.Coefficients)
	hash := sha256.Sum256(data)
	weights.Metadata["checksum"] = hex.EncodeToString(hash[:])

	return weights, nil
}

// ImportWeights restores rules and calibration from ModelWeights.
func (sc *Scorecard) ImportWeights(weights *model.ModelWeights) error {
	if weights == nil {
		return errors.NewValueError("Scorecard.ImportWeights", "weights cannot be nil")
	}
	if weights.ModelType != "RiskScorecard" {
		return errors.NewValueError("Scorecard.ImportWeights",
			fmt.Sprintf("model type mismatch: expected RiskScorecard, got %s", weights.ModelType))
	}

	thresholds, ok := asFloatSlice(weights.Metadata["thresholds"])
	if !ok {
		return errors.NewValueError("Scorecard.ImportWeights", "missing rule thresholds")
	}
	names, ok := asStringSlice(weights.Metadata["feature_names"])
	if !ok {
		return errors.NewValueError("Scorecard.ImportWeights", "missing feature names")
	}
	slope, ok := weights.Metadata["slope"].(float64)
	if !ok {
		return errors.NewValueError("Scorecard.ImportWeights", "missing slope")
	}

	if len(thresholds) != len(weights.Coefficients) || len(weights.Features) != len(weights.Coefficients) {
		return errors.NewValueError("Scorecard.ImportWeights", "inconsistent rule arrays")
	}

	if checksum, ok := weights.Metadata["checksum"].(string); ok {
		data, _ := json.Marshal(weights.Coefficients)
		hash := sha256.Sum256(data)
		if checksum != hex.EncodeToString(hash[:]) {
			return errors.NewValueError("Scorecard.ImportWeights", "checksum mismatch: weights may be corrupted")
		}
	}

	rules := make([]Rule, len(weights.Coefficients))
	for i := range rules {
		rules[i] = Rule{
			Feature:   weights.Features[i],
			Threshold: thresholds[i],
			Points:    weights.Coefficients[i],
		}
	}

	if err := sc.SetParams(weights.Hyperparameters); err != nil {
		return err
	}

	sc.Rules = rules
	sc.FeatureNames = names
	sc.Intercept = weights.Intercept
	sc.Slope = slope
	sc.ruleCols = nil

	sc.State.SetDimensions(len(names), 0)
	sc.State.SetFitted()
	return nil
}

// RenderCard writes the card as a terminal table, one row per rule.
func (sc *Scorecard) RenderCard(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Rule", "Condition", "Points"})
	for i, rule := range sc.Rules {
		t.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%s >= %g", rule.Feature, rule.Threshold),
			fmt.Sprintf("%+g", rule.Points),
		})
	}
	t.Render()

	if sc.State.IsFitted() {
		fmt.Fprintf(w, "P(outcome) = sigmoid(%.4f + %.4f * points)\n", sc.Intercept, sc.Slope)
	}
}

// String returns the string representation of the scorecard.
func (sc *Scorecard) String() string {
	if !sc.State.IsFitted() {
		return fmt.Sprintf("Scorecard(rules=%d, threshold=%g)", len(sc.Rules), sc.ClassThreshold)
	}
	return fmt.Sprintf("Scorecard(rules=%d, intercept=%.4f, slope=%.4f)",
		len(sc.Rules), sc.Intercept, sc.Slope)
}

// sigmoid is the numerically stable logistic function.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func asFloatSlice(v interface{}) ([]float64, bool) {
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

func asStringSlice(v interface{}) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...), true
	case []interface{}:
		out := make([]string, len(s))
		for i, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			out[i] = str
		}
		return out, true
	}
	return nil, false
}
