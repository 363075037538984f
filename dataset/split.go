package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

// TrainTestSplit randomly partitions the table's rows into a training and a
// test table. testSize is the test fraction in (0, 1). When stratifyBy names
// a column, rows are split per level of that column so both sides keep the
// label balance. The split is deterministic for a given seed.
func (t *Table) TrainTestSplit(testSize float64, seed int64, stratifyBy string) (*Table, *Table, error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("testSize must be in (0, 1), got %v", testSize))
	}

	n := t.NRows()
	if n < 2 {
		return nil, nil, errors.NewValueError("TrainTestSplit", "need at least 2 rows to split")
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))

	var groups [][]int
	if stratifyBy == "" {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		groups = [][]int{all}
	} else {
		values, err := t.ColumnValues(stratifyBy)
		if err != nil {
			return nil, nil, err
		}
		byLevel := make(map[float64][]int)
		order := make([]float64, 0)
		for i, v := range values {
			if math.IsNaN(v) {
				return nil, nil, errors.NewValueError("TrainTestSplit",
					fmt.Sprintf("cannot stratify on column %s with missing values", stratifyBy))
			}
			if _, ok := byLevel[v]; !ok {
				order = append(order, v)
			}
			byLevel[v] = append(byLevel[v], i)
		}
		sort.Float64s(order)
		for _, v := range order {
			groups = append(groups, byLevel[v])
		}
	}

	var testIdx, trainIdx []int
	for _, group := range groups {
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})

		nTest := int(math.Round(testSize * float64(len(group))))
		if nTest >= len(group) {
			nTest = len(group) - 1
		}

		testIdx = append(testIdx, group[:nTest]...)
		trainIdx = append(trainIdx, group[nTest:]...)
	}

	if len(testIdx) == 0 || len(trainIdx) == 0 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("split produced an empty side (testSize=%v, n=%d)", testSize, n))
	}

	// keep original row order inside each side
	sort.Ints(trainIdx)
	sort.Ints(testIdx)

	return t.Select(trainIdx), t.Select(testIdx), nil
}
