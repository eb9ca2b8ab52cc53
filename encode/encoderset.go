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

// Package encode orchestrates fit/transform preprocessing steps scoped
// to column/dtype filters. Steps are applied sequentially: columns
// consumed by one step are no longer available to the next, and leftover
// columns pass through unencoded in their original order. Fitting always
// happens on the designated fit-source partition only; the fitted chain
// is then applied to every other partition without refitting. That
// fit/transform asymmetry is the leakage-prevention contract of the
// whole system.
package encode

import (
	"strings"

	"github.com/czcorpus/trainbed/dataset"
	"github.com/rs/zerolog/log"
)

// Step binds an encoder constructor to a column/dtype filter.
// New is a constructor rather than an instance because each split
// context (whole-split, fold 0, fold 1, ...) needs its own fit.
type Step struct {
	Label  string
	New    func() Encoder
	Filter Filter
}

func (st Step) label() string {
	if st.Label != "" {
		return st.Label
	}
	return st.New().Name()
}

// Encoderset is an ordered list of steps applied to one feature view.
type Encoderset struct {
	Steps []Step
}

type plannedStep struct {
	step    Step
	colPos  []int
	inNames []string
}

// Plan resolves all step filters against the feature columns, consuming
// columns sequentially. It fails with a FilterError before any data is
// touched when a step matches nothing.
type Plan struct {
	steps       []plannedStep
	leftoverPos []int
	columns     []dataset.Column
}

// NewPlan validates the encoderset against a schema at build time.
func (es Encoderset) NewPlan(columns []dataset.Column) (*Plan, error) {
	availCols := append([]dataset.Column{}, columns...)
	availPos := make([]int, len(columns))
	for i := range availPos {
		availPos[i] = i
	}
	plan := &Plan{columns: columns}
	for _, st := range es.Steps {
		matched, err := st.Filter.Apply(st.label(), availCols, availPos)
		if err != nil {
			return nil, err
		}
		taken := make(map[int]bool, len(matched))
		for _, p := range matched {
			taken[p] = true
		}
		names := make([]string, len(matched))
		for i, p := range matched {
			names[i] = columns[p].Name
		}
		plan.steps = append(plan.steps, plannedStep{step: st, colPos: matched, inNames: names})
		var nextCols []dataset.Column
		var nextPos []int
		for i, p := range availPos {
			if !taken[p] {
				nextCols = append(nextCols, availCols[i])
				nextPos = append(nextPos, p)
			}
		}
		availCols, availPos = nextCols, nextPos
	}
	plan.leftoverPos = availPos
	if len(availPos) > 0 {
		names := make([]string, len(availPos))
		for i, p := range availPos {
			names[i] = columns[p].Name
		}
		log.Info().
			Str("columns", strings.Join(names, ",")).
			Msg("columns not matched by any encoder pass through unencoded")
	}
	return plan, nil
}

// PlannedColumns returns the column metadata of the transformed output
// assuming name-preserving steps (interpolators, scalers). Steps which
// change the column set (one-hot) only know their output after fit, so
// chained plans must be built on name-preserving stages only.
func (p *Plan) PlannedColumns() []dataset.Column {
	byName := make(map[string]dataset.Column, len(p.columns))
	for _, c := range p.columns {
		byName[c.Name] = c
	}
	var ans []dataset.Column
	for _, ps := range p.steps {
		for _, name := range ps.inNames {
			ans = append(ans, byName[name])
		}
	}
	for _, pos := range p.leftoverPos {
		ans = append(ans, p.columns[pos])
	}
	return ans
}

func subset(rows [][]float64, colPos []int) [][]float64 {
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(colPos))
		for j, p := range colPos {
			out[j] = row[p]
		}
		ans[i] = out
	}
	return ans
}

// Fitted is one fit of the whole plan, bound to a single split context.
type Fitted struct {
	plan     *Plan
	encoders []Encoder
	outCols  []string
}

// Fit instantiates every step's encoder and fits it on the fit-source
// rows (full feature width). A Plan may be fit many times, once per
// split context; every Fit creates fresh encoder instances so fitted
// state never crosses contexts.
func (p *Plan) Fit(fitRows [][]float64) (*Fitted, error) {
	ans := &Fitted{plan: p}
	for _, ps := range p.steps {
		enc := ps.step.New()
		if err := enc.Fit(subset(fitRows, ps.colPos)); err != nil {
			return nil, err
		}
		ans.encoders = append(ans.encoders, enc)
		ans.outCols = append(ans.outCols, enc.OutputColumns(ps.inNames)...)
	}
	for _, pos := range p.leftoverPos {
		ans.outCols = append(ans.outCols, p.columns[pos].Name)
	}
	return ans, nil
}

// Transform applies the fitted chain to any partition's rows, merging
// step outputs column-wise with the untouched leftover columns.
func (f *Fitted) Transform(rows [][]float64) ([][]float64, error) {
	type block struct {
		data [][]float64
	}
	var blocks []block
	for i, ps := range f.plan.steps {
		out, err := f.encoders[i].Transform(subset(rows, ps.colPos))
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block{data: out})
	}
	if len(f.plan.leftoverPos) > 0 {
		blocks = append(blocks, block{data: subset(rows, f.plan.leftoverPos)})
	}
	ans := make([][]float64, len(rows))
	for i := range rows {
		var row []float64
		for _, b := range blocks {
			row = append(row, b.data[i]...)
		}
		ans[i] = row
	}
	return ans, nil
}

// OutputColumns lists the column names of the transformed output:
// encoded columns in step order followed by leftovers in original order.
func (f *Fitted) OutputColumns() []string {
	return f.outCols
}

// Encoders exposes the fitted encoder instances in step order.
func (f *Fitted) Encoders() []Encoder {
	return f.encoders
}

// Stack3D flattens a (samples x timesteps x cols) array into a tall
// (samples*timesteps x cols) table so 2D encoders can fit/transform
// sequence data.
func Stack3D(seq [][][]float64) [][]float64 {
	var ans [][]float64
	for _, block := range seq {
		ans = append(ans, block...)
	}
	return ans
}

// Unstack3D is the inverse of Stack3D for a known timestep count.
func Unstack3D(rows [][]float64, timesteps int) [][][]float64 {
	if timesteps == 0 {
		return nil
	}
	ans := make([][][]float64, 0, len(rows)/timesteps)
	for start := 0; start+timesteps <= len(rows); start += timesteps {
		ans = append(ans, rows[start:start+timesteps])
	}
	return ans
}
