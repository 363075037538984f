package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainTestSplit_Sizes(t *testing.T) {
	table := loadPatients(t)

	train, test, err := table.TrainTestSplit(0.25, 42, "")
	require.NoError(t, err)

	assert.Equal(t, 9, train.NRows())
	assert.Equal(t, 3, test.NRows())

	// every row lands on exactly one side; ages are unique in the fixture
	seen := make(map[float64]int)
	for _, side := range []*Table{train, test} {
		age, err := side.ColumnValues("Age")
		require.NoError(t, err)
		for _, a := range age {
			seen[a]++
		}
	}
	assert.Len(t, seen, 12)
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}

func TestTrainTestSplit_Deterministic(t *testing.T) {
	table := loadPatients(t)

	_, test1, err := table.TrainTestSplit(0.25, 7, "")
	require.NoError(t, err)
	_, test2, err := table.TrainTestSplit(0.25, 7, "")
	require.NoError(t, err)

	age1, err := test1.ColumnValues("Age")
	require.NoError(t, err)
	age2, err := test2.ColumnValues("Age")
	require.NoError(t, err)
	assert.Equal(t, age1, age2)
}

func TestTrainTestSplit_Stratified(t *testing.T) {
	table := loadPatients(t)

	// 8 survivors and 4 deaths: a stratified quarter keeps 2+1 for test
	train, test, err := table.TrainTestSplit(0.25, 42, "Death")
	require.NoError(t, err)

	sumDeaths := func(tab *Table) float64 {
		death, err := tab.ColumnValues("Death")
		require.NoError(t, err)
		var s float64
		for _, d := range death {
			s += d
		}
		return s
	}

	assert.Equal(t, 3, test.NRows())
	assert.Equal(t, 1.0, sumDeaths(test))
	assert.Equal(t, 3.0, sumDeaths(train))
}

func TestTrainTestSplit_Errors(t *testing.T) {
	table := loadPatients(t)

	_, _, err := table.TrainTestSplit(0, 1, "")
	assert.Error(t, err)

	_, _, err = table.TrainTestSplit(1.2, 1, "")
	assert.Error(t, err)

	_, _, err = table.TrainTestSplit(0.25, 1, "NoSuchColumn")
	assert.Error(t, err)

	one := table.Select([]int{0})
	_, _, err = one.TrainTestSplit(0.5, 1, "")
	assert.Error(t, err)
}

func TestTrainTestSplit_StratifyWithMissing(t *testing.T) {
	messy, err := Load("testdata/messy.csv")
	require.NoError(t, err)

	_, _, err = messy.TrainTestSplit(0.5, 1, "HeartFailure")
	assert.Error(t, err, "NaN in the stratification column")
}
