package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// rankedPair はスコアと正解関連度の組
type rankedPair = struct {
	score     float64
	relevance float64
}

// dcg は与えられた並び順のまま上位k件のDCG（Discounted Cumulative Gain）を計算する
//
// 利得は指数形式 (2^rel - 1)、割引は log2(position + 1) を用いる。
// 並べ替えは呼び出し側の責務であり、この関数はソートしない。
func dcg(pairs []rankedPair, k int) float64 {
	if k > len(pairs) {
		k = len(pairs)
	}

	var sum float64
	for i := 0; i < k; i++ {
		gain := math.Pow(2, pairs[i].relevance) - 1
		discount := math.Log2(float64(i) + 2)
		sum += gain / discount
	}
	return sum
}

// NDCG は正規化減損累積利得（Normalized Discounted Cumulative Gain）を計算する
//
// yTrue は非負の関連度、yPred はランキングスコア。k = -1 で全件を評価する。
// 理想順（関連度の降順）のDCGがゼロの場合、NDCGは定義できないため
// UndefinedMetricWarning を発行して 0 を返す。
func NDCG(yTrue, yPred *mat.VecDense, k int) (float64, error) {
	// 入力検証
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("NDCG", "empty vector")
	}

	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("NDCG", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("NDCG", n, yPred.Len(), 0)
	}

	if k == 0 || k < -1 {
		return 0, errors.NewValueError("NDCG", "k must be positive or -1 for all items")
	}
	if k == -1 || k > n {
		k = n
	}

	pairs := make([]rankedPair, n)
	for i := 0; i < n; i++ {
		rel := yTrue.AtVec(i)
		if rel < 0 {
			return 0, errors.NewValueError("NDCG", "relevance scores must be non-negative")
		}
		pairs[i] = rankedPair{score: yPred.AtVec(i), relevance: rel}
	}

	// モデル順: スコアの降順
	modelOrder := make([]rankedPair, n)
	copy(modelOrder, pairs)
	sort.SliceStable(modelOrder, func(i, j int) bool { return modelOrder[i].score > modelOrder[j].score })

	// 理想順: 関連度の降順
	idealOrder := make([]rankedPair, n)
	copy(idealOrder, pairs)
	sort.SliceStable(idealOrder, func(i, j int) bool { return idealOrder[i].relevance > idealOrder[j].relevance })

	idcg := dcg(idealOrder, k)
	if idcg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("NDCG", "all relevance scores are zero", 0))
		return 0, nil
	}

	return dcg(modelOrder, k) / idcg, nil
}

// NDCGMatrix は行列形式の入力に対してNDCGを計算する（先頭列を使用）
func NDCGMatrix(yTrue, yPred mat.Matrix, k int) (float64, error) {
	// 入力検証
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("NDCGMatrix", "nil matrix")
	}

	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()

	if rTrue == 0 || cTrue == 0 || rPred == 0 || cPred == 0 {
		return 0, errors.NewValueError("NDCGMatrix", "empty matrix")
	}

	if rTrue != rPred {
		return 0, errors.NewDimensionError("NDCGMatrix", rTrue, rPred, 0)
	}

	yTrueVec := mat.NewVecDense(rTrue, nil)
	yPredVec := mat.NewVecDense(rPred, nil)

	for i := 0; i < rTrue; i++ {
		yTrueVec.SetVec(i, yTrue.At(i, 0))
		yPredVec.SetVec(i, yPred.At(i, 0))
	}

	return NDCG(yTrueVec, yPredVec, k)
}

// AveragePrecision は平均適合率（Average Precision）を計算する
//
// yTrue は 0/1 の二値関連度。スコアの降順に並べたとき、関連アイテムが
// 出現する各順位での適合率を平均する。関連アイテムが存在しない場合は
// UndefinedMetricWarning を発行して 0 を返す。
func AveragePrecision(yTrue, yPred *mat.VecDense) (float64, error) {
	// 入力検証
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("AveragePrecision", "empty vector")
	}

	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("AveragePrecision", "empty vector")
	}

	if yPred.Len() != n {
		return 0, errors.NewDimensionError("AveragePrecision", n, yPred.Len(), 0)
	}

	pairs := make([]rankedPair, n)
	nRelevant := 0
	for i := 0; i < n; i++ {
		rel := yTrue.AtVec(i)
		if rel != 0 && rel != 1 {
			return 0, errors.NewValueError("AveragePrecision", "labels must be binary (0 or 1)")
		}
		if rel == 1 {
			nRelevant++
		}
		pairs[i] = rankedPair{score: yPred.AtVec(i), relevance: rel}
	}

	if nRelevant == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AveragePrecision", "no relevant items in yTrue", 0))
		return 0, nil
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	// AP = (1/R) * Σ Precision@i （関連アイテムの出現位置のみ）
	var sum float64
	hits := 0
	for i, p := range pairs {
		if p.relevance == 1 {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}

	return sum / float64(nRelevant), nil
}

// MeanAveragePrecision は複数クエリに対する平均適合率の平均（MAP）を計算する
func MeanAveragePrecision(yTrueList, yPredList []*mat.VecDense) (float64, error) {
	// 入力検証
	if len(yTrueList) == 0 || len(yPredList) == 0 {
		return 0, errors.NewValueError("MeanAveragePrecision", "empty query list")
	}

	if len(yTrueList) != len(yPredList) {
		return 0, errors.NewDimensionError("MeanAveragePrecision", len(yTrueList), len(yPredList), 0)
	}

	var sum float64
	for i := range yTrueList {
		ap, err := AveragePrecision(yTrueList[i], yPredList[i])
		if err != nil {
			return 0, err
		}
		sum += ap
	}

	return sum / float64(len(yTrueList)), nil
}
