package explain

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/metrics"
	"github.com/YuminosukeSato/glassbox/pkg/log"
)

// Performance summarizes a binary classifier on the explainer's
// reference data. Threshold-dependent entries (accuracy, precision,
// recall, F1) use the explainer's classification cutoff; AUC, log loss,
// Brier and average precision score the raw probabilities.
type Performance struct {
	Label     string
	Threshold float64

	Accuracy         float64
	Precision        float64
	Recall           float64
	F1               float64
	AUC              float64
	LogLoss          float64
	Brier            float64
	AveragePrecision float64

	ROC       []metrics.ROCPoint
	Confusion *metrics.ConfusionMatrix
}

// ModelPerformance scores the wrapped model on the reference data.
func (e *Explainer) ModelPerformance() (*Performance, error) {
	scores, err := e.predictOn(e.X)
	if err != nil {
		return nil, err
	}

	labels := mat.NewVecDense(scores.Len(), nil)
	for i := 0; i < scores.Len(); i++ {
		if scores.AtVec(i) >= e.threshold {
			labels.SetVec(i, 1)
		}
	}

	cm, err := metrics.NewConfusionMatrix(e.y, labels)
	if err != nil {
		return nil, err
	}
	auc, err := metrics.AUC(e.y, scores)
	if err != nil {
		return nil, err
	}
	logLoss, err := metrics.BinaryLogLoss(e.y, scores)
	if err != nil {
		return nil, err
	}
	brier, err := metrics.BrierScore(e.y, scores)
	if err != nil {
		return nil, err
	}
	ap, err := metrics.AveragePrecision(e.y, scores)
	if err != nil {
		return nil, err
	}
	roc, err := metrics.ROCCurve(e.y, scores)
	if err != nil {
		return nil, err
	}

	perf := &Performance{
		Label:            e.label,
		Threshold:        e.threshold,
		Accuracy:         cm.Accuracy(),
		Precision:        cm.Precision(),
		Recall:           cm.Recall(),
		F1:               cm.F1(),
		AUC:              auc,
		LogLoss:          logLoss,
		Brier:            brier,
		AveragePrecision: ap,
		ROC:              roc,
		Confusion:        cm,
	}

	e.logger.Info("model performance computed",
		log.ModelNameKey, e.label,
		log.AccuracyKey, perf.Accuracy,
		"metrics.auc", perf.AUC,
		"metrics.brier", perf.Brier,
	)
	return perf, nil
}
