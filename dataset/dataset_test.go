// Copyright 2025 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2025 Department of Linguistics,
// Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testColumns() []Column {
	return []Column{
		{Name: "a", DType: DTypeFloat},
		{Name: "b", DType: DTypeInt},
		{Name: "c", DType: DTypeCategorical},
	}
}

func TestNewTableRejectsRaggedRows(t *testing.T) {
	_, err := NewTable("t1", testColumns(), [][]float64{{1, 2, 3}, {4, 5}})
	assert.Error(t, err)
}

func TestNewSequenceRejectsRaggedTimesteps(t *testing.T) {
	_, err := NewSequence("s1", testColumns(), [][][]float64{
		{{1, 2, 3}, {4, 5, 6}},
		{{7, 8, 9}},
	})
	assert.Error(t, err)
}

func TestNewSequenceRejectsRaggedRows(t *testing.T) {
	_, err := NewSequence("s1", testColumns(), [][][]float64{
		{{1, 2, 3}, {4, 5}},
	})
	assert.Error(t, err)
}

func TestSampleAndTimestepCounts(t *testing.T) {
	tab, err := NewTable("t1", testColumns(), [][]float64{{1, 2, 3}, {4, 5, 6}})
	assert.NoError(t, err)
	assert.Equal(t, KindTable, tab.Kind())
	assert.Equal(t, 2, tab.SampleCount())
	assert.Equal(t, 0, tab.TimestepCount())

	seq, err := NewSequence("s1", testColumns(), [][][]float64{
		{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}},
	})
	assert.NoError(t, err)
	assert.Equal(t, KindSequence, seq.Kind())
	assert.Equal(t, 1, seq.SampleCount())
	assert.Equal(t, 3, seq.TimestepCount())
}

func TestRowsSelectsColumnsAndRows(t *testing.T) {
	tab, err := NewTable("t1", testColumns(), [][]float64{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	})
	assert.NoError(t, err)
	got := tab.Rows([]int{2, 0}, []int{0, 2})
	assert.Equal(t, [][]float64{{7, 9}, {1, 3}}, got)

	all := tab.Rows(nil, []int{1})
	assert.Equal(t, [][]float64{{2}, {5}, {8}}, all)
}

func TestSequencesSelectsColumnsAndSamples(t *testing.T) {
	seq, err := NewSequence("s1", testColumns(), [][][]float64{
		{{1, 2, 3}, {4, 5, 6}},
		{{7, 8, 9}, {10, 11, 12}},
	})
	assert.NoError(t, err)
	got := seq.Sequences([]int{1}, []int{2, 0})
	assert.Equal(t, [][][]float64{{{9, 7}, {12, 10}}}, got)
}

func TestSelectionMutualExclusion(t *testing.T) {
	sel := Selection{Include: []string{"a"}, Exclude: []string{"b"}}
	_, err := sel.Resolve(testColumns())
	assert.Error(t, err)
	var confErr ConfigError
	assert.ErrorAs(t, err, &confErr)
}

func TestSelectionUnknownColumn(t *testing.T) {
	_, err := Selection{Include: []string{"nope"}}.Resolve(testColumns())
	assert.Error(t, err)
	var confErr ConfigError
	assert.ErrorAs(t, err, &confErr)
}

func TestSelectionPreservesSchemaOrder(t *testing.T) {
	idx, err := Selection{Include: []string{"c", "a"}}.Resolve(testColumns())
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 2}, idx)

	idx, err = Selection{Exclude: []string{"b"}}.Resolve(testColumns())
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 2}, idx)

	idx, err = All().Resolve(testColumns())
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, idx)
}

func TestSelectionMatchingNothing(t *testing.T) {
	_, err := Selection{Exclude: []string{"a", "b", "c"}}.Resolve(testColumns())
	assert.Error(t, err)
}

func TestViewColumns(t *testing.T) {
	tab, err := NewTable("t1", testColumns(), [][]float64{{1, 2, 3}})
	assert.NoError(t, err)
	v, err := NewView(tab, Selection{Exclude: []string{"b"}})
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, v.ColumnNames())
}
