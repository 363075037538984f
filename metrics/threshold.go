package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ConfusionMatrix は二値分類の混同行列
//
// 陽性クラスはラベル1、陰性クラスはラベル0とする。
type ConfusionMatrix struct {
	TruePositives  int
	TrueNegatives  int
	FalsePositives int
	FalseNegatives int
}

// NewConfusionMatrix は正解ラベルと予測ラベルから混同行列を構築する
func NewConfusionMatrix(yTrue, yPred *mat.VecDense) (*ConfusionMatrix, error) {
	// 入力検証
	if yTrue == nil || yPred == nil {
		return nil, errors.NewValueError("ConfusionMatrix", "empty vector")
	}

	n := yTrue.Len()
	if n == 0 {
		return nil, errors.NewValueError("ConfusionMatrix", "empty vector")
	}

	if yPred.Len() != n {
		return nil, errors.NewDimensionError("ConfusionMatrix", n, yPred.Len(), 0)
	}

	cm := &ConfusionMatrix{}
	for i := 0; i < n; i++ {
		yt := yTrue.AtVec(i)
		yp := yPred.AtVec(i)
		if (yt != 0 && yt != 1) || (yp != 0 && yp != 1) {
			return nil, errors.NewValueError("ConfusionMatrix", "labels must be binary (0 or 1)")
		}

		switch {
		case yt == 1 && yp == 1:
			cm.TruePositives++
		case yt == 0 && yp == 0:
			cm.TrueNegatives++
		case yt == 0 && yp == 1:
			cm.FalsePositives++
		default:
			cm.FalseNegatives++
		}
	}

	return cm, nil
}

// Total は総サンプル数を返す
func (cm *ConfusionMatrix) Total() int {
	return cm.TruePositives + cm.TrueNegatives + cm.FalsePositives + cm.FalseNegatives
}

// Accuracy は正解率を返す
func (cm *ConfusionMatrix) Accuracy() float64 {
	total := cm.Total()
	if total == 0 {
		return 0
	}
	return float64(cm.TruePositives+cm.TrueNegatives) / float64(total)
}

// Precision は適合率 TP/(TP+FP) を返す。予測陽性が無い場合は0を返す
func (cm *ConfusionMatrix) Precision() float64 {
	denom := cm.TruePositives + cm.FalsePositives
	if denom == 0 {
		return 0
	}
	return float64(cm.TruePositives) / float64(denom)
}

// Recall は再現率（感度） TP/(TP+FN) を返す。実陽性が無い場合は0を返す
func (cm *ConfusionMatrix) Recall() float64 {
	denom := cm.TruePositives + cm.FalseNegatives
	if denom == 0 {
		return 0
	}
	return float64(cm.TruePositives) / float64(denom)
}

// Specificity は特異度 TN/(TN+FP) を返す。実陰性が無い場合は0を返す
func (cm *ConfusionMatrix) Specificity() float64 {
	denom := cm.TrueNegatives + cm.FalsePositives
	if denom == 0 {
		return 0
	}
	return float64(cm.TrueNegatives) / float64(denom)
}

// F1 は適合率と再現率の調和平均を返す
func (cm *ConfusionMatrix) F1() float64 {
	p := cm.Precision()
	r := cm.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Precision は適合率を計算する
//
// 予測陽性が1つも無い場合は UndefinedMetricWarning を発行して 0 を返す。
func Precision(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if cm.TruePositives+cm.FalsePositives == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("Precision", "no predicted positives", 0))
		return 0, nil
	}
	return cm.Precision(), nil
}

// Recall は再現率（感度）を計算する
//
// 実陽性が1つも無い場合は UndefinedMetricWarning を発行して 0 を返す。
func Recall(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if cm.TruePositives+cm.FalseNegatives == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("Recall", "no positive labels in yTrue", 0))
		return 0, nil
	}
	return cm.Recall(), nil
}

// F1Score は適合率と再現率の調和平均（F1スコア）を計算する
func F1Score(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if cm.F1() == 0 && cm.TruePositives == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("F1Score", "no true positives", 0))
		return 0, nil
	}
	return cm.F1(), nil
}

// ROCPoint はROC曲線上の1点
type ROCPoint struct {
	Threshold float64 // この値以上のスコアを陽性と判定
	FPR       float64 // 偽陽性率
	TPR       float64 // 真陽性率
}

// ROCCurve はROC曲線を計算する
//
// 予測スコアの降順に閾値を動かし、各閾値での偽陽性率と真陽性率を返す。
// 先頭は (0, 0)、末尾は (1, 1) となる。yTrue は両方のクラスを含む必要がある。
func ROCCurve(yTrue, yScore *mat.VecDense) ([]ROCPoint, error) {
	// 入力検証
	if yTrue == nil || yScore == nil {
		return nil, errors.NewValueError("ROCCurve", "empty vector")
	}

	n := yTrue.Len()
	if n == 0 {
		return nil, errors.NewValueError("ROCCurve", "empty vector")
	}

	if yScore.Len() != n {
		return nil, errors.NewDimensionError("ROCCurve", n, yScore.Len(), 0)
	}

	nPos, nNeg := 0, 0
	pairs := make([]rankedPair, n)
	for i := 0; i < n; i++ {
		yt := yTrue.AtVec(i)
		switch yt {
		case 1:
			nPos++
		case 0:
			nNeg++
		default:
			return nil, errors.NewValueError("ROCCurve", "labels must be binary (0 or 1)")
		}
		pairs[i] = rankedPair{score: yScore.AtVec(i), relevance: yt}
	}

	if nPos == 0 || nNeg == 0 {
		return nil, errors.NewValueError("ROCCurve", "both classes must be present in yTrue")
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	points := []ROCPoint{{Threshold: math.Inf(1), FPR: 0, TPR: 0}}
	tp, fp := 0, 0
	for i := 0; i < n; {
		// 同一スコアはまとめて1つの閾値として扱う
		j := i
		for j < n && pairs[j].score == pairs[i].score {
			if pairs[j].relevance == 1 {
				tp++
			} else {
				fp++
			}
			j++
		}
		points = append(points, ROCPoint{
			Threshold: pairs[i].score,
			FPR:       float64(fp) / float64(nNeg),
			TPR:       float64(tp) / float64(nPos),
		})
		i = j
	}

	return points, nil
}

// BrierScore はBrierスコア（予測確率の平均二乗誤差）を計算する
func BrierScore(yTrue, yProb *mat.VecDense) (float64, error) {
	// 入力検証
	if yTrue == nil || yProb == nil {
		return 0, errors.NewValueError("BrierScore", "empty vector")
	}

	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("BrierScore", "empty vector")
	}

	if yProb.Len() != n {
		return 0, errors.NewDimensionError("BrierScore", n, yProb.Len(), 0)
	}

	for i := 0; i < n; i++ {
		if y := yTrue.AtVec(i); y != 0 && y != 1 {
			return 0, errors.NewValueError("BrierScore", "labels must be binary (0 or 1)")
		}
	}

	// Brier = (1/n) * Σ(p - y)² つまり確率ベクトルに対するMSE
	return MSE(yTrue, yProb)
}
