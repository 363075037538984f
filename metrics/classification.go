package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// logLossEpsilon は予測確率のクリッピングに使う微小値（log(0)の回避）
const logLossEpsilon = 1e-15

// Accuracy は正解率（Accuracy）を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}

	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("Accuracy", n, yPred.Len(), 0)
	}

	// 一致したラベル数を数える
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}

	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率（1 - Accuracy）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// BinaryLogLoss は二値分類の対数損失（クロスエントロピー）を計算する
//
// 予測確率は log(0) を避けるため [eps, 1-eps] にクリッピングされる。
// yTrue は 0/1 の二値ラベルでなければならない。
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("BinaryLogLoss", "empty vector")
	}

	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("BinaryLogLoss", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("BinaryLogLoss", n, yPred.Len(), 0)
	}

	// LogLoss = -(1/n) * Σ[y*log(p) + (1-y)*log(1-p)]
	var sum float64
	for i := 0; i < n; i++ {
		y := yTrue.AtVec(i)
		if y != 0 && y != 1 {
			return 0, errors.NewValueError("BinaryLogLoss", "labels must be binary (0 or 1)")
		}

		p := errors.ClipValue(yPred.AtVec(i), logLossEpsilon, 1-logLossEpsilon)
		sum += y*math.Log(p) + (1-y)*math.Log(1-p)
	}

	return -sum / float64(n), nil
}

// AUC はROC曲線下面積（Area Under the ROC Curve）を計算する
//
// 順位ベースの計算（Mann-Whitney U統計量と等価）であり、同点の予測値には
// 平均順位を割り当てる。yTrue が片方のクラスしか含まない場合、AUCは定義
// できないため UndefinedMetricWarning を発行して 0.5 を返す。
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("AUC", "empty vector")
	}

	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("AUC", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("AUC", n, yPred.Len(), 0)
	}

	// 二値ラベルの検証と陽性・陰性の数え上げ
	nPos, nNeg := 0, 0
	for i := 0; i < n; i++ {
		switch yTrue.AtVec(i) {
		case 1:
			nPos++
		case 0:
			nNeg++
		default:
			return 0, errors.NewValueError("AUC", "labels must be binary (0 or 1)")
		}
	}

	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in yTrue", 0.5))
		return 0.5, nil
	}

	// 予測値の昇順に並べ、同点には平均順位を割り当てる
	type scoredLabel struct {
		score float64
		label float64
	}
	pairs := make([]scoredLabel, n)
	for i := 0; i < n; i++ {
		pairs[i] = scoredLabel{score: yPred.AtVec(i), label: yTrue.AtVec(i)}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	var sumRanksPos float64
	for i := 0; i < n; {
		j := i
		for j < n && pairs[j].score == pairs[i].score {
			j++
		}
		// 順位 i+1..j の平均
		avgRank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if pairs[k].label == 1 {
				sumRanksPos += avgRank
			}
		}
		i = j
	}

	// AUC = (R⁺ - nPos(nPos+1)/2) / (nPos * nNeg)
	auc := (sumRanksPos - float64(nPos)*float64(nPos+1)/2) / (float64(nPos) * float64(nNeg))
	return auc, nil
}

// AUCMatrix は行列形式の入力に対してAUCを計算する（先頭列を使用）
func AUCMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	// 入力検証
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("AUCMatrix", "nil matrix")
	}

	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()

	if rTrue == 0 || cTrue == 0 || rPred == 0 || cPred == 0 {
		return 0, errors.NewValueError("AUCMatrix", "empty matrix")
	}

	if rTrue != rPred {
		return 0, errors.NewDimensionError("AUCMatrix", rTrue, rPred, 0)
	}

	// 先頭列をVecDenseに変換してAUCを計算
	yTrueVec := mat.NewVecDense(rTrue, nil)
	yPredVec := mat.NewVecDense(rPred, nil)

	for i := 0; i < rTrue; i++ {
		yTrueVec.SetVec(i, yTrue.At(i, 0))
		yPredVec.SetVec(i, yPred.At(i, 0))
	}

	return AUC(yTrueVec, yPredVec)
}
