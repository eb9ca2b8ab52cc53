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
	"fmt"
)

// DType classifies the values stored in a column. Categorical columns
// hold integer category codes; the original category values are kept
// by the caller (typically in a codebook next to the dataset).
type DType int

const (
	DTypeFloat DType = iota
	DTypeInt
	DTypeCategorical
)

func (dt DType) String() string {
	switch dt {
	case DTypeFloat:
		return "float"
	case DTypeInt:
		return "int"
	case DTypeCategorical:
		return "categorical"
	}
	return fmt.Sprintf("unknown(%d)", int(dt))
}

// IsNumericContinuous tells whether stratification over this dtype
// requires quantile binning first.
func (dt DType) IsNumericContinuous() bool {
	return dt == DTypeFloat
}

type Column struct {
	Name  string `json:"name"`
	DType DType  `json:"dtype"`
}

type Kind int

const (
	KindTable Kind = iota
	KindSequence
)

// Dataset is an immutable logical table (samples x features) or a 3D
// sequence array (samples x timesteps x features). Pipelines reference
// a Dataset, they never copy it.
type Dataset struct {
	id      string
	kind    Kind
	columns []Column
	table   [][]float64
	seq     [][][]float64
}

// NewTable creates a 2D dataset. Each row must have one value per column.
func NewTable(id string, columns []Column, rows [][]float64) (*Dataset, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("dataset %s: row %d has %d values, expected %d", id, i, len(row), len(columns))
		}
	}
	return &Dataset{id: id, kind: KindTable, columns: columns, table: rows}, nil
}

// NewSequence creates a 3D dataset where each sample is a 2D
// (timesteps x features) block. All samples must share the timestep count.
func NewSequence(id string, columns []Column, seqs [][][]float64) (*Dataset, error) {
	if len(seqs) > 0 {
		steps := len(seqs[0])
		for i, s := range seqs {
			if len(s) != steps {
				return nil, fmt.Errorf("dataset %s: sequence %d has %d timesteps, expected %d", id, i, len(s), steps)
			}
			for j, row := range s {
				if len(row) != len(columns) {
					return nil, fmt.Errorf(
						"dataset %s: sequence %d row %d has %d values, expected %d",
						id, i, j, len(row), len(columns))
				}
			}
		}
	}
	return &Dataset{id: id, kind: KindSequence, columns: columns, seq: seqs}, nil
}

func (ds *Dataset) ID() string { return ds.id }

func (ds *Dataset) Kind() Kind { return ds.kind }

func (ds *Dataset) Columns() []Column { return ds.columns }

func (ds *Dataset) ColumnNames() []string {
	ans := make([]string, len(ds.columns))
	for i, c := range ds.columns {
		ans[i] = c.Name
	}
	return ans
}

// SampleCount returns the number of rows for a table dataset
// and the number of sequences for a sequence dataset.
func (ds *Dataset) SampleCount() int {
	if ds.kind == KindSequence {
		return len(ds.seq)
	}
	return len(ds.table)
}

// TimestepCount is meaningful only for sequence datasets.
func (ds *Dataset) TimestepCount() int {
	if ds.kind != KindSequence || len(ds.seq) == 0 {
		return 0
	}
	return len(ds.seq[0])
}

func (ds *Dataset) ColumnIndex(name string) (int, bool) {
	for i, c := range ds.columns {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Rows returns a copy of the selected columns of the selected rows.
// A nil rowIdx selects all rows.
func (ds *Dataset) Rows(rowIdx []int, colIdx []int) [][]float64 {
	if rowIdx == nil {
		rowIdx = make([]int, len(ds.table))
		for i := range rowIdx {
			rowIdx[i] = i
		}
	}
	ans := make([][]float64, len(rowIdx))
	for i, ri := range rowIdx {
		row := make([]float64, len(colIdx))
		for j, ci := range colIdx {
			row[j] = ds.table[ri][ci]
		}
		ans[i] = row
	}
	return ans
}

// Sequences returns a copy of the selected columns of the selected samples
// of a sequence dataset.
func (ds *Dataset) Sequences(sampleIdx []int, colIdx []int) [][][]float64 {
	if sampleIdx == nil {
		sampleIdx = make([]int, len(ds.seq))
		for i := range sampleIdx {
			sampleIdx[i] = i
		}
	}
	ans := make([][][]float64, len(sampleIdx))
	for i, si := range sampleIdx {
		block := make([][]float64, len(ds.seq[si]))
		for t, row := range ds.seq[si] {
			vals := make([]float64, len(colIdx))
			for j, ci := range colIdx {
				vals[j] = row[ci]
			}
			block[t] = vals
		}
		ans[i] = block
	}
	return ans
}

// Col returns a copy of a single column across all rows of a table dataset.
func (ds *Dataset) Col(idx int) []float64 {
	ans := make([]float64, len(ds.table))
	for i, row := range ds.table {
		ans[i] = row[idx]
	}
	return ans
}
