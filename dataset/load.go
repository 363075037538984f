package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
	"github.com/YuminosukeSato/glassbox/preprocessing"
)

// LoadOptions controls delimited-text parsing.
type LoadOptions struct {
	// Delimiter separates fields. Health registries in this corpus use ';'.
	Delimiter rune
	// Comment, when non-zero, marks comment lines for the csv reader.
	Comment rune
	// Strict makes unparseable or missing cells an error instead of NaN.
	Strict bool
	// Target, when set, must be present in the header.
	Target string
	// FlagColumns forces the named columns to be parsed as Yes/No flags.
	FlagColumns []string
}

// LoadOption mutates LoadOptions.
type LoadOption func(*LoadOptions)

// WithDelimiter sets the field delimiter.
func WithDelimiter(d rune) LoadOption {
	return func(o *LoadOptions) { o.Delimiter = d }
}

// WithComment sets the comment rune.
func WithComment(c rune) LoadOption {
	return func(o *LoadOptions) { o.Comment = c }
}

// WithStrict turns conversion problems into errors.
func WithStrict() LoadOption {
	return func(o *LoadOptions) { o.Strict = true }
}

// WithTarget requires the named column to exist in the header.
func WithTarget(name string) LoadOption {
	return func(o *LoadOptions) { o.Target = name }
}

// WithFlagColumns forces Yes/No parsing for the named columns, so that a
// validation file whose column happens to contain a single level still gets
// the training file's encoding.
func WithFlagColumns(names ...string) LoadOption {
	return func(o *LoadOptions) { o.FlagColumns = append(o.FlagColumns, names...) }
}

// Load reads a delimited text file into a Table.
func Load(path string, opts ...LoadOption) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	t, err := LoadFromReader(f, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}
	return t, nil
}

// LoadFromReader reads delimited text into a Table.
//
// The first record is the header. Column kinds are inferred from the data:
// mostly numeric columns parse as float64, Yes/No (or Y/N) columns become
// flags encoded 1/0, Male/Female columns encode Male=1/Female=0, anything
// else becomes a categorical column with LabelEncoder codes. Empty, "NA" and
// "?" cells are missing: NaN in lenient mode (with a DataConversionWarning
// per affected column), an error in strict mode.
func LoadFromReader(r io.Reader, opts ...LoadOption) (*Table, error) {
	options := LoadOptions{Delimiter: ';'}
	for _, opt := range opts {
		opt(&options)
	}

	reader := csv.NewReader(r)
	reader.Comma = options.Delimiter
	reader.Comment = options.Comment
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse delimited input")
	}

	if len(records) == 0 {
		return nil, errors.NewModelError("dataset.Load", "empty input", errors.ErrEmptyData)
	}

	header := records[0]
	rows := records[1:]
	if len(rows) == 0 {
		return nil, errors.NewModelError("dataset.Load", "header only, no data rows", errors.ErrEmptyData)
	}

	seen := make(map[string]struct{}, len(header))
	for _, name := range header {
		if _, dup := seen[name]; dup {
			return nil, errors.NewValidationError("column", "duplicate name", name)
		}
		seen[name] = struct{}{}
	}

	if options.Target != "" {
		if _, ok := seen[options.Target]; !ok {
			return nil, errors.NewValidationError("target", "column not found in header", options.Target)
		}
	}

	forcedFlags := make(map[string]bool, len(options.FlagColumns))
	for _, name := range options.FlagColumns {
		forcedFlags[name] = true
	}

	nRows, nCols := len(rows), len(header)
	data := mat.NewDense(nRows, nCols, nil)
	columns := make([]Column, nCols)

	for j, name := range header {
		cells := make([]string, nRows)
		for i, row := range rows {
			if len(row) != nCols {
				return nil, errors.NewDimensionError(fmt.Sprintf("dataset.Load row %d", i+2), nCols, len(row), 1)
			}
			cells[i] = strings.TrimSpace(row[j])
		}

		col, values, err := encodeColumn(name, cells, forcedFlags[name], options.Strict)
		if err != nil {
			return nil, err
		}

		columns[j] = col
		for i, v := range values {
			data.Set(i, j, v)
		}
	}

	table, err := NewTable(columns, data)
	if err != nil {
		return nil, err
	}

	logger := log.GetLoggerWithName("dataset.loader")
	logger.Info("table loaded",
		log.SamplesKey, nRows,
		log.FeaturesKey, nCols,
	)

	return table, nil
}

// missing markers accepted in input cells
func isMissing(cell string) bool {
	switch cell {
	case "", "NA", "N/A", "?", "NaN":
		return true
	}
	return false
}

func flagValue(cell string) (float64, bool) {
	switch strings.ToLower(cell) {
	case "yes", "y":
		return 1, true
	case "no", "n":
		return 0, true
	}
	return 0, false
}

func sexValue(cell string) (float64, bool) {
	switch strings.ToLower(cell) {
	case "male", "m":
		return 1, true
	case "female", "f":
		return 0, true
	}
	return 0, false
}

// encodeColumn infers the column kind and encodes the cells.
func encodeColumn(name string, cells []string, forceFlag, strict bool) (Column, []float64, error) {
	allNumeric, allFlag, allSex := true, true, true
	nMissing, nNumeric := 0, 0

	for _, cell := range cells {
		if isMissing(cell) {
			nMissing++
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			allNumeric = false
		} else {
			nNumeric++
		}
		if _, ok := flagValue(cell); !ok {
			allFlag = false
		}
		if _, ok := sexValue(cell); !ok {
			allSex = false
		}
	}

	if nMissing == len(cells) {
		if strict {
			return Column{}, nil, errors.NewValidationError("column", "all values missing", name)
		}
		errors.Warn(errors.NewDataConversionWarning("string", "float64",
			fmt.Sprintf("column %s: all values missing", name)))
		values := make([]float64, len(cells))
		for i := range values {
			values[i] = math.NaN()
		}
		return Column{Name: name, Kind: Numeric}, values, nil
	}

	// A column stays numeric when most of its present cells parse, so a
	// stray typo becomes NaN instead of flipping the column to categorical.
	nPresent := len(cells) - nMissing

	switch {
	case forceFlag || (allFlag && !allNumeric):
		return encodeFlagColumn(name, cells, strict)
	case allSex && !allNumeric:
		return encodeSexColumn(name, cells, strict)
	case nNumeric*2 > nPresent:
		return encodeNumericColumn(name, cells, strict)
	default:
		return encodeCategoricalColumn(name, cells, strict)
	}
}

func encodeNumericColumn(name string, cells []string, strict bool) (Column, []float64, error) {
	values := make([]float64, len(cells))
	nConverted := 0

	for i, cell := range cells {
		if isMissing(cell) {
			if strict {
				return Column{}, nil, errors.NewValidationError("cell",
					fmt.Sprintf("missing value in column %s, row %d", name, i+2), cell)
			}
			values[i] = math.NaN()
			nConverted++
			continue
		}

		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			if strict {
				return Column{}, nil, errors.NewValidationError("cell",
					fmt.Sprintf("unparseable value in column %s, row %d", name, i+2), cell)
			}
			values[i] = math.NaN()
			nConverted++
			continue
		}
		values[i] = v
	}

	if nConverted > 0 {
		errors.Warn(errors.NewDataConversionWarning("string", "float64",
			fmt.Sprintf("column %s: %d cells treated as missing", name, nConverted)))
	}

	return Column{Name: name, Kind: Numeric}, values, nil
}

func encodeFlagColumn(name string, cells []string, strict bool) (Column, []float64, error) {
	values := make([]float64, len(cells))
	nConverted := 0

	for i, cell := range cells {
		if v, ok := flagValue(cell); ok {
			values[i] = v
			continue
		}
		if strict {
			return Column{}, nil, errors.NewValidationError("cell",
				fmt.Sprintf("expected Yes/No in column %s, row %d", name, i+2), cell)
		}
		values[i] = math.NaN()
		nConverted++
	}

	if nConverted > 0 {
		errors.Warn(errors.NewDataConversionWarning("string", "flag",
			fmt.Sprintf("column %s: %d non-flag cells treated as missing", name, nConverted)))
	}

	return Column{Name: name, Kind: Flag, Levels: []string{"No", "Yes"}}, values, nil
}

func encodeSexColumn(name string, cells []string, strict bool) (Column, []float64, error) {
	values := make([]float64, len(cells))
	nConverted := 0

	for i, cell := range cells {
		if v, ok := sexValue(cell); ok {
			values[i] = v
			continue
		}
		if strict {
			return Column{}, nil, errors.NewValidationError("cell",
				fmt.Sprintf("expected Male/Female in column %s, row %d", name, i+2), cell)
		}
		values[i] = math.NaN()
		nConverted++
	}

	if nConverted > 0 {
		errors.Warn(errors.NewDataConversionWarning("string", "flag",
			fmt.Sprintf("column %s: %d cells treated as missing", name, nConverted)))
	}

	return Column{Name: name, Kind: Flag, Levels: []string{"Female", "Male"}}, values, nil
}

func encodeCategoricalColumn(name string, cells []string, strict bool) (Column, []float64, error) {
	present := make([]string, 0, len(cells))
	for _, cell := range cells {
		if !isMissing(cell) {
			present = append(present, cell)
		}
	}

	enc := preprocessing.NewLabelEncoder()
	if err := enc.Fit(present); err != nil {
		return Column{}, nil, errors.Wrapf(err, "failed to encode column %s", name)
	}

	values := make([]float64, len(cells))
	nMissing := 0
	for i, cell := range cells {
		if isMissing(cell) {
			if strict {
				return Column{}, nil, errors.NewValidationError("cell",
					fmt.Sprintf("missing value in column %s, row %d", name, i+2), cell)
			}
			values[i] = math.NaN()
			nMissing++
			continue
		}

		codes, err := enc.Transform([]string{cell})
		if err != nil {
			return Column{}, nil, err
		}
		values[i] = codes[0]
	}

	if nMissing > 0 {
		errors.Warn(errors.NewDataConversionWarning("string", "categorical",
			fmt.Sprintf("column %s: %d cells treated as missing", name, nMissing)))
	}

	return Column{Name: name, Kind: Categorical, Levels: enc.Classes}, values, nil
}
