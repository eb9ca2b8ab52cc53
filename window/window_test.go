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

package window

import (
	"testing"

	"github.com/czcorpus/trainbed/dataset"
	"github.com/stretchr/testify/assert"
)

func TestMakeRecordShifted(t *testing.T) {
	w, err := Make(10, Spec{SizeWindow: 4, SizeShift: 2, RecordShifted: true})
	assert.NoError(t, err)
	assert.Equal(t, 3, w.WindowCount)
	assert.Equal(t, []int{0, 1, 2, 3}, w.Unshifted[0])
	assert.Equal(t, []int{2, 3, 4, 5}, w.Shifted[0])
	assert.Equal(t, []int{4, 5, 6, 7}, w.Unshifted[2])
	assert.Equal(t, []int{6, 7, 8, 9}, w.Shifted[2])
}

func TestMakeRecordShiftedPrunesLeadingRows(t *testing.T) {
	// 11 rows: one leading row cannot fill a window and is dropped,
	// the trailing row is always covered
	w, err := Make(11, Spec{SizeWindow: 4, SizeShift: 2, RecordShifted: true})
	assert.NoError(t, err)
	assert.Equal(t, 3, w.WindowCount)
	assert.Equal(t, []int{1, 2, 3, 4}, w.Unshifted[0])
	assert.Equal(t, []int{7, 8, 9, 10}, w.Shifted[2])
}

func TestMakeUnshifted(t *testing.T) {
	w, err := Make(10, Spec{SizeWindow: 4, SizeShift: 2})
	assert.NoError(t, err)
	assert.Equal(t, 4, w.WindowCount)
	assert.Nil(t, w.Shifted)
	assert.Equal(t, []int{0, 1, 2, 3}, w.Unshifted[0])
	assert.Equal(t, []int{6, 7, 8, 9}, w.Unshifted[3])
}

func TestMakeRejectsOversizedWindow(t *testing.T) {
	_, err := Make(5, Spec{SizeWindow: 10, SizeShift: 1})
	assert.Error(t, err)
	var confErr dataset.ConfigError
	assert.ErrorAs(t, err, &confErr)

	_, err = Make(5, Spec{SizeWindow: 5, SizeShift: 1, RecordShifted: true})
	assert.Error(t, err)
}

func TestAnchorRow(t *testing.T) {
	w, err := Make(10, Spec{SizeWindow: 4, SizeShift: 2, RecordShifted: true})
	assert.NoError(t, err)
	assert.Equal(t, 3, w.AnchorRow(0))
	assert.Equal(t, 7, w.AnchorRow(2))
}

func TestSlice(t *testing.T) {
	columns := []dataset.Column{
		{Name: "a", DType: dataset.DTypeFloat},
		{Name: "b", DType: dataset.DTypeFloat},
	}
	rows := make([][]float64, 10)
	for i := range rows {
		rows[i] = []float64{float64(i), float64(i * 10)}
	}
	ds, err := dataset.NewTable("t", columns, rows)
	assert.NoError(t, err)

	w, err := Make(10, Spec{SizeWindow: 4, SizeShift: 2, RecordShifted: true})
	assert.NoError(t, err)

	out, err := w.Slice(ds, []int{0, 2}, []int{0}, false)
	assert.NoError(t, err)
	assert.Equal(t, [][]float64{{0}, {1}, {2}, {3}}, out[0])
	assert.Equal(t, [][]float64{{4}, {5}, {6}, {7}}, out[1])

	shifted, err := w.Slice(ds, []int{0}, []int{1}, true)
	assert.NoError(t, err)
	assert.Equal(t, [][]float64{{20}, {30}, {40}, {50}}, shifted[0])
}

func TestSliceWithoutShiftedRanges(t *testing.T) {
	ds, err := dataset.NewTable("t",
		[]dataset.Column{{Name: "a", DType: dataset.DTypeFloat}},
		[][]float64{{0}, {1}, {2}, {3}, {4}, {5}})
	assert.NoError(t, err)
	w, err := Make(6, Spec{SizeWindow: 3, SizeShift: 1})
	assert.NoError(t, err)
	_, err = w.Slice(ds, []int{0}, []int{0}, true)
	assert.Error(t, err)
}
