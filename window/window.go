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

// Package window slices a 2D (rows x features) table into overlapping
// time windows, turning window indices into the sample axis used by
// downstream splitting. Rows which do not fill a whole window are pruned
// from the leading edge, never the trailing one, so the most recent data
// is always covered.
package window

import (
	"github.com/czcorpus/trainbed/dataset"
	"github.com/rs/zerolog/log"
)

// Spec declares how a 2D dataset becomes overlapping 3D samples.
// With RecordShifted, each window additionally records the index range
// shifted forward by SizeShift, which serves as the self-supervised
// label of the window.
type Spec struct {
	SizeWindow    int  `json:"sizeWindow"`
	SizeShift     int  `json:"sizeShift"`
	RecordShifted bool `json:"recordShifted"`
}

// Windowing maps window indices back to the originating row ranges.
// Unshifted[i] and Shifted[i] hold the row indices of window i;
// Shifted is nil unless the spec recorded shifted ranges.
type Windowing struct {
	Spec        Spec    `json:"spec"`
	WindowCount int     `json:"windowCount"`
	Unshifted   [][]int `json:"unshifted"`
	Shifted     [][]int `json:"shifted"`
}

// Make computes the windowing of a table with rowCount rows.
func Make(rowCount int, spec Spec) (*Windowing, error) {
	if spec.RecordShifted {
		if spec.SizeWindow < 1 || spec.SizeWindow > rowCount-spec.SizeShift {
			return nil, dataset.NewConfigError(
				"sizeWindow %d must be within [1, rowCount-sizeShift] = [1, %d]",
				spec.SizeWindow, rowCount-spec.SizeShift)
		}
		if spec.SizeShift < 1 || spec.SizeShift > rowCount-spec.SizeWindow {
			return nil, dataset.NewConfigError(
				"sizeShift %d must be within [1, rowCount-sizeWindow] = [1, %d]",
				spec.SizeShift, rowCount-spec.SizeWindow)
		}
		windowCount := (rowCount - spec.SizeWindow) / spec.SizeShift
		pruneShiftedLead := rowCount - ((windowCount-1)*spec.SizeShift + spec.SizeWindow)
		pruneUnshiftedLead := pruneShiftedLead - spec.SizeShift
		ans := &Windowing{
			Spec:        spec,
			WindowCount: windowCount,
			Unshifted:   make([][]int, windowCount),
			Shifted:     make([][]int, windowCount),
		}
		for i := 0; i < windowCount; i++ {
			start := pruneUnshiftedLead + i*spec.SizeShift
			ans.Unshifted[i] = rowRange(start, spec.SizeWindow)
			ans.Shifted[i] = rowRange(start+spec.SizeShift, spec.SizeWindow)
		}
		if pruneUnshiftedLead > 0 {
			log.Debug().
				Int("prunedRows", pruneUnshiftedLead).
				Int("windowCount", windowCount).
				Msg("leading rows do not fill a window and were pruned")
		}
		return ans, nil
	}
	// pure inference: take as many windows as fit, no shifted labels
	if spec.SizeWindow < 1 || spec.SizeShift < 1 || spec.SizeWindow > rowCount {
		return nil, dataset.NewConfigError(
			"invalid window spec (sizeWindow %d, sizeShift %d) for %d rows",
			spec.SizeWindow, spec.SizeShift, rowCount)
	}
	windowCount := (rowCount-spec.SizeWindow)/spec.SizeShift + 1
	pruneLead := rowCount - ((windowCount-1)*spec.SizeShift + spec.SizeWindow)
	ans := &Windowing{
		Spec:        spec,
		WindowCount: windowCount,
		Unshifted:   make([][]int, windowCount),
	}
	for i := 0; i < windowCount; i++ {
		ans.Unshifted[i] = rowRange(pruneLead+i*spec.SizeShift, spec.SizeWindow)
	}
	return ans, nil
}

func rowRange(start, size int) []int {
	ans := make([]int, size)
	for i := range ans {
		ans[i] = start + i
	}
	return ans
}

// AnchorRow returns the row a window is anchored to (its last unshifted
// row). Split membership of a window is decided solely by its anchor, so
// a window never belongs to more than one split.
func (w *Windowing) AnchorRow(windowIdx int) int {
	rows := w.Unshifted[windowIdx]
	return rows[len(rows)-1]
}

// Slice materializes the windows of the given window indices from the
// selected columns of a table, producing a (windows x sizeWindow x cols)
// array. With shifted=true the shifted ranges are sliced instead.
func (w *Windowing) Slice(ds *dataset.Dataset, windowIdx []int, colIdx []int, shifted bool) ([][][]float64, error) {
	src := w.Unshifted
	if shifted {
		if w.Shifted == nil {
			return nil, dataset.NewConfigError("windowing did not record shifted ranges")
		}
		src = w.Shifted
	}
	ans := make([][][]float64, len(windowIdx))
	for i, wi := range windowIdx {
		ans[i] = ds.Rows(src[wi], colIdx)
	}
	return ans, nil
}
