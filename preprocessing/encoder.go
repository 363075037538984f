package preprocessing

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/glassbox/core/model"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

// LabelEncoder はカテゴリ文字列を 0..K-1 の整数コードに変換するエンコーダー
//
// scikit-learnのLabelEncoderと同様、クラスは辞書順に割り当てられる。
// 例えば {"No", "Yes"} は No=0, Yes=1 になる。
type LabelEncoder struct {
	model.BaseEstimator

	// Classes は辞書順に並んだクラスラベル
	Classes []string

	index map[string]int
}

// NewLabelEncoder は新しいLabelEncoderを作成する
//
// 使用例:
//
//	enc := preprocessing.NewLabelEncoder()
//	codes, err := enc.FitTransform([]string{"Yes", "No", "Yes"})
//	// codes = [1, 0, 1], enc.Classes = ["No", "Yes"]
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{}
}

// Fit は値の集合から一意なクラスを学習する
func (e *LabelEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data", errors.ErrEmptyData)
	}

	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}

	e.Classes = make([]string, 0, len(seen))
	for v := range seen {
		e.Classes = append(e.Classes, v)
	}
	sort.Strings(e.Classes)

	e.rebuildIndex()
	e.SetFitted()
	return nil
}

// Transform は文字列ラベルを学習済みの整数コードに変換する
//
// 未知のラベルに遭遇した場合はエラーを返す。
func (e *LabelEncoder) Transform(values []string) ([]float64, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("LabelEncoder", "Transform")
	}
	if e.index == nil {
		e.rebuildIndex()
	}

	codes := make([]float64, len(values))
	for i, v := range values {
		code, ok := e.index[v]
		if !ok {
			return nil, errors.NewValueError("LabelEncoder.Transform",
				fmt.Sprintf("unseen label %q (known: %v)", v, e.Classes))
		}
		codes[i] = float64(code)
	}

	return codes, nil
}

// FitTransform は学習と変換を同時に実行する
func (e *LabelEncoder) FitTransform(values []string) ([]float64, error) {
	if err := e.Fit(values); err != nil {
		return nil, err
	}
	return e.Transform(values)
}

// InverseTransform は整数コードを元の文字列ラベルに戻す
func (e *LabelEncoder) InverseTransform(codes []float64) ([]string, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("LabelEncoder", "InverseTransform")
	}

	values := make([]string, len(codes))
	for i, code := range codes {
		idx := int(code)
		if float64(idx) != code || idx < 0 || idx >= len(e.Classes) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform",
				fmt.Sprintf("code %v out of range [0, %d)", code, len(e.Classes)))
		}
		values[i] = e.Classes[idx]
	}

	return values, nil
}

// NClasses は学習したクラス数を返す
func (e *LabelEncoder) NClasses() int {
	return len(e.Classes)
}

// rebuildIndex はClassesから逆引きマップを再構築する（gob復元後にも必要）
func (e *LabelEncoder) rebuildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}
