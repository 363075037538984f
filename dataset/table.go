// Package dataset provides the tabular data layer for health-record studies:
// delimited-text loading, flag/categorical encoding, descriptive summaries,
// and train/test splitting.
//
// A Table keeps all values as encoded float64 in a gonum matrix. Flag columns
// (Yes/No) are encoded 1/0, Male/Female as 1/0, free categorical columns with
// ordinal codes from preprocessing.LabelEncoder. Missing values are NaN.
package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

// ColumnKind classifies how a column was encoded.
type ColumnKind int

const (
	// Numeric columns parse directly as float64.
	Numeric ColumnKind = iota
	// Flag columns hold Yes/No style binary answers, encoded 1/0.
	Flag
	// Categorical columns hold arbitrary string levels with ordinal codes.
	Categorical
)

// String returns a human-readable kind name.
func (k ColumnKind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Flag:
		return "flag"
	case Categorical:
		return "categorical"
	default:
		return fmt.Sprintf("ColumnKind(%d)", int(k))
	}
}

// Column describes one encoded column.
type Column struct {
	Name string
	Kind ColumnKind
	// Levels maps codes back to the original strings for Flag and
	// Categorical columns: Levels[i] is the string encoded as float64(i).
	Levels []string
}

// Table is a column-ordered tabular dataset with encoded float64 values.
type Table struct {
	columns []Column
	data    *mat.Dense
}

// NewTable builds a Table from column descriptors and an encoded matrix.
// The matrix must have exactly one column per descriptor; duplicate column
// names are rejected.
func NewTable(columns []Column, data *mat.Dense) (*Table, error) {
	if data == nil || len(columns) == 0 {
		return nil, errors.NewValueError("NewTable", "empty table")
	}

	_, c := data.Dims()
	if c != len(columns) {
		return nil, errors.NewDimensionError("NewTable", len(columns), c, 1)
	}

	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if _, dup := seen[col.Name]; dup {
			return nil, errors.NewValidationError("column", "duplicate name", col.Name)
		}
		seen[col.Name] = struct{}{}
	}

	return &Table{columns: columns, data: data}, nil
}

// NRows returns the number of rows.
func (t *Table) NRows() int {
	r, _ := t.data.Dims()
	return r
}

// NCols returns the number of columns.
func (t *Table) NCols() int {
	return len(t.columns)
}

// Columns returns a copy of the column descriptors.
func (t *Table) Columns() []Column {
	cols := make([]Column, len(t.columns))
	copy(cols, t.columns)
	return cols
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.Name
	}
	return names
}

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, col := range t.columns {
		if col.Name == name {
			return i, true
		}
	}
	return 0, false
}

// ColumnValues returns a copy of one column's encoded values.
func (t *Table) ColumnValues(name string) ([]float64, error) {
	j, ok := t.ColumnIndex(name)
	if !ok {
		return nil, errors.NewValidationError("column", "not found", name)
	}

	values := make([]float64, t.NRows())
	mat.Col(values, j, t.data)
	return values, nil
}

// LevelName maps an encoded value of a Flag or Categorical column back to
// its original string. Numeric columns format the value directly.
func (t *Table) LevelName(name string, code float64) (string, error) {
	j, ok := t.ColumnIndex(name)
	if !ok {
		return "", errors.NewValidationError("column", "not found", name)
	}

	col := t.columns[j]
	if col.Kind == Numeric {
		return fmt.Sprintf("%g", code), nil
	}

	idx := int(code)
	if float64(idx) != code || idx < 0 || idx >= len(col.Levels) {
		return "", errors.NewValueError("LevelName",
			fmt.Sprintf("code %v out of range for column %s", code, name))
	}
	return col.Levels[idx], nil
}

// Matrix exposes the encoded values as a read-only gonum matrix.
func (t *Table) Matrix() mat.Matrix {
	return t.data
}

// Row returns a copy of one encoded row.
func (t *Table) Row(i int) []float64 {
	row := make([]float64, t.NCols())
	mat.Row(row, i, t.data)
	return row
}

// Features splits the table into a feature matrix X and a label vector y,
// with every column except target kept in table order. The returned names
// give X's column order so a second table can be projected onto the same
// schema with FeaturesAs.
func (t *Table) Features(target string) (*mat.Dense, *mat.VecDense, []string, error) {
	if _, ok := t.ColumnIndex(target); !ok {
		return nil, nil, nil, errors.NewValidationError("target", "column not found", target)
	}

	names := make([]string, 0, t.NCols()-1)
	for _, col := range t.columns {
		if col.Name != target {
			names = append(names, col.Name)
		}
	}

	X, y, err := t.FeaturesAs(target, names)
	if err != nil {
		return nil, nil, nil, err
	}
	return X, y, names, nil
}

// FeaturesAs builds the feature matrix in an explicit column order, so that
// a validation table can reproduce the schema of the table a model was
// trained on. Columns missing from the table are an error.
func (t *Table) FeaturesAs(target string, order []string) (*mat.Dense, *mat.VecDense, error) {
	targetIdx, ok := t.ColumnIndex(target)
	if !ok {
		return nil, nil, errors.NewValidationError("target", "column not found", target)
	}
	if len(order) == 0 {
		return nil, nil, errors.NewValueError("FeaturesAs", "empty feature list")
	}

	colIdx := make([]int, len(order))
	for i, name := range order {
		if name == target {
			return nil, nil, errors.NewValidationError("feature", "target column listed as feature", name)
		}
		j, ok := t.ColumnIndex(name)
		if !ok {
			return nil, nil, errors.NewValidationError("feature", "column not found in table", name)
		}
		colIdx[i] = j
	}

	n := t.NRows()
	X := mat.NewDense(n, len(order), nil)
	y := mat.NewVecDense(n, nil)

	for i := 0; i < n; i++ {
		for k, j := range colIdx {
			X.Set(i, k, t.data.At(i, j))
		}
		y.SetVec(i, t.data.At(i, targetIdx))
	}

	return X, y, nil
}

// Select returns a new table holding the given rows in the given order.
func (t *Table) Select(rows []int) *Table {
	data := mat.NewDense(len(rows), t.NCols(), nil)
	for i, r := range rows {
		for j := 0; j < t.NCols(); j++ {
			data.Set(i, j, t.data.At(r, j))
		}
	}
	return &Table{columns: t.Columns(), data: data}
}

// DropIncomplete returns a new table without rows containing missing (NaN)
// values.
func (t *Table) DropIncomplete() *Table {
	keep := make([]int, 0, t.NRows())
	for i := 0; i < t.NRows(); i++ {
		complete := true
		for j := 0; j < t.NCols(); j++ {
			if math.IsNaN(t.data.At(i, j)) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}
	return t.Select(keep)
}
