package dataset

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/stat"
)

// LevelCount pairs a categorical level with its occurrence count.
type LevelCount struct {
	Level string
	Count int
}

// ColumnSummary holds descriptive statistics for one column.
type ColumnSummary struct {
	Name    string
	Kind    ColumnKind
	Count   int // non-missing values
	Missing int

	// Numeric statistics (zero for flag/categorical columns).
	Mean   float64
	Std    float64
	Min    float64
	Q25    float64
	Median float64
	Q75    float64
	Max    float64

	// Level counts for flag/categorical columns, ordered by code.
	LevelCounts []LevelCount
}

// Summary holds per-column descriptive statistics for a table.
type Summary struct {
	NRows   int
	Columns []ColumnSummary
}

// Describe computes descriptive statistics for every column: count, missing,
// mean/std/quartiles for numeric columns, level counts for flags and
// categoricals.
func (t *Table) Describe() *Summary {
	s := &Summary{
		NRows:   t.NRows(),
		Columns: make([]ColumnSummary, 0, t.NCols()),
	}

	for _, col := range t.columns {
		values, _ := t.ColumnValues(col.Name)

		cs := ColumnSummary{Name: col.Name, Kind: col.Kind}

		present := make([]float64, 0, len(values))
		for _, v := range values {
			if math.IsNaN(v) {
				cs.Missing++
				continue
			}
			present = append(present, v)
		}
		cs.Count = len(present)

		if cs.Count == 0 {
			s.Columns = append(s.Columns, cs)
			continue
		}

		switch col.Kind {
		case Numeric:
			sort.Float64s(present)
			cs.Mean = stat.Mean(present, nil)
			cs.Std = stat.StdDev(present, nil)
			cs.Min = present[0]
			cs.Max = present[len(present)-1]
			cs.Q25 = stat.Quantile(0.25, stat.Empirical, present, nil)
			cs.Median = stat.Quantile(0.5, stat.Empirical, present, nil)
			cs.Q75 = stat.Quantile(0.75, stat.Empirical, present, nil)
		default:
			counts := make(map[int]int)
			for _, v := range present {
				counts[int(v)]++
			}
			for code := 0; code < len(col.Levels); code++ {
				cs.LevelCounts = append(cs.LevelCounts, LevelCount{
					Level: col.Levels[code],
					Count: counts[code],
				})
			}
			// flags are 0/1 so the mean doubles as prevalence
			cs.Mean = stat.Mean(present, nil)
		}

		s.Columns = append(s.Columns, cs)
	}

	return s
}

// Render writes the summary as a bordered terminal table.
func (s *Summary) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Column", "Kind", "Count", "Missing", "Mean", "Std", "Min", "Median", "Max", "Levels"})

	for _, cs := range s.Columns {
		var mean, std, min, median, max, levels string
		switch cs.Kind {
		case Numeric:
			mean = fmt.Sprintf("%.2f", cs.Mean)
			std = fmt.Sprintf("%.2f", cs.Std)
			min = fmt.Sprintf("%g", cs.Min)
			median = fmt.Sprintf("%g", cs.Median)
			max = fmt.Sprintf("%g", cs.Max)
			levels = "-"
		default:
			mean = fmt.Sprintf("%.2f", cs.Mean)
			std, min, median, max = "-", "-", "-", "-"
			parts := make([]string, 0, len(cs.LevelCounts))
			for _, lc := range cs.LevelCounts {
				parts = append(parts, fmt.Sprintf("%s:%d", lc.Level, lc.Count))
			}
			levels = strings.Join(parts, " ")
		}

		t.AppendRow(table.Row{cs.Name, cs.Kind.String(), cs.Count, cs.Missing, mean, std, min, median, max, levels})
	}

	t.Render()
	fmt.Fprintf(w, "(%d rows)\n", s.NRows)
}

// String renders the summary table for terminal display.
func (s *Summary) String() string {
	var sb strings.Builder
	s.Render(&sb)
	return sb.String()
}
