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

// Package pipeline composes windowing, stratification, interpolation
// and encoding into one reproducible recipe and materializes the
// resulting per-split tensors. Preprocessing is fit on the train
// partition of each split context only and applied everywhere else
// without refitting; the materialized tensors are write-once and shared
// read-only by every training job.
package pipeline

import (
	"fmt"

	"github.com/czcorpus/trainbed/cache"
	"github.com/czcorpus/trainbed/dataset"
	"github.com/czcorpus/trainbed/encode"
	"github.com/czcorpus/trainbed/stratify"
	"github.com/czcorpus/trainbed/window"
)

// WholeSplitContext is the fold index addressing the non-folded
// train/validation/test tensors.
const WholeSplitContext = -1

// LeakageError reports a breach of the fit-on-train-only invariant.
// It marks an internal defect, not a user-recoverable condition.
type LeakageError struct {
	Msg string
}

func (err LeakageError) Error() string {
	return "leakage guard violation: " + err.Msg
}

// CacheMissError reports a request for split tensors of a
// pipeline/fold/split combination that was never materialized. It is
// surfaced immediately instead of recomputing so configuration drift
// cannot hide behind silent refits.
type CacheMissError struct {
	Key string
}

func (err CacheMissError) Error() string {
	return fmt.Sprintf("no cached tensors under key `%s`", err.Key)
}

// Tensor is one materialized partition of the encoded data.
// Rows holds 2D data; Seq holds 3D (windowed) data; exactly one of the
// two is populated. Indices map tensor rows back to original sample
// (or window) indices.
type Tensor struct {
	Columns []string      `msgpack:"columns"`
	Rows    [][]float64   `msgpack:"rows"`
	Seq     [][][]float64 `msgpack:"seq"`
	Indices []int         `msgpack:"indices"`
}

func (t *Tensor) SampleCount() int {
	if t.Seq != nil {
		return len(t.Seq)
	}
	return len(t.Rows)
}

// Shape reports the per-sample shape: [features] for 2D data,
// [timesteps, features] for 3D data.
func (t *Tensor) Shape() []int {
	if t.Seq != nil {
		if len(t.Seq) == 0 {
			return []int{0, len(t.Columns)}
		}
		return []int{len(t.Seq[0]), len(t.Columns)}
	}
	return []int{len(t.Columns)}
}

// Pipeline declares the full data-preparation intent. The referenced
// Dataset is never copied or mutated.
type Pipeline struct {
	ID string

	// Features selects the input columns.
	Features dataset.View

	// Label selects the target columns; nil means unsupervised
	// (or self-supervised when a Window with RecordShifted is set).
	Label *dataset.View

	// StratifyColumn optionally names a feature column to stratify by
	// when no label exists.
	StratifyColumn string

	// Window turns the 2D table into overlapping 3D samples before
	// anything else runs.
	Window *window.Spec

	// Interpolate runs before encoding and fills missing values.
	Interpolate encode.Encoderset

	// Encode is the ordered encoder chain for the feature columns.
	Encode encode.Encoderset

	// LabelCoder optionally encodes the label columns; fit on the
	// fit-source partition like every other step.
	LabelCoder *encode.Step

	Strat stratify.Config
}

func (p *Pipeline) validate() error {
	if p.ID == "" {
		return dataset.NewConfigError("pipeline requires a non-empty id")
	}
	if p.Window != nil && p.Label != nil {
		return dataset.NewConfigError(
			"windowed features cannot be combined with a label - use recordShifted self-supervision instead")
	}
	if p.Label != nil && p.StratifyColumn != "" {
		return dataset.NewConfigError("stratifyColumn cannot be present when there is a label")
	}
	if p.Window != nil && p.Features.Dataset.Kind() != dataset.KindTable {
		return dataset.NewConfigError("windowing applies to 2D table datasets only")
	}
	if p.Label != nil && p.Label.Dataset.Kind() != dataset.KindTable {
		return dataset.NewConfigError("label columns must come from a 2D table dataset")
	}
	if p.StratifyColumn != "" && p.Features.Dataset.Kind() != dataset.KindTable {
		return dataset.NewConfigError("stratifyColumn requires a 2D table dataset")
	}
	if p.Label != nil && p.Label.Dataset.SampleCount() != p.Features.Dataset.SampleCount() {
		return dataset.NewConfigError(
			"label dataset has %d samples but the feature dataset has %d",
			p.Label.Dataset.SampleCount(), p.Features.Dataset.SampleCount())
	}
	return nil
}

// stratLabels assembles the stratification source: encoded-as-ordinal
// label values, a surrogate feature column, or nothing.
func (p *Pipeline) stratLabels(wnd *window.Windowing) (*stratify.Labels, error) {
	if p.Label != nil {
		cols := p.Label.Columns()
		if len(cols) > 1 {
			// one-hot labels are collapsed so they can still be
			// stratified ordinally
			rows := p.Label.Dataset.Rows(nil, p.Label.ColIdx)
			return &stratify.Labels{
				Values: stratify.CollapseOneHot(rows),
				DType:  dataset.DTypeInt,
			}, nil
		}
		return &stratify.Labels{
			Values: p.Label.Dataset.Col(p.Label.ColIdx[0]),
			DType:  cols[0].DType,
		}, nil
	}
	if p.StratifyColumn != "" {
		ci, ok := p.Features.Dataset.ColumnIndex(p.StratifyColumn)
		if !ok {
			return nil, dataset.NewConfigError("stratifyColumn refers to unknown column `%s`", p.StratifyColumn)
		}
		col := p.Features.Dataset.Col(ci)
		dt := p.Features.Dataset.Columns()[ci].DType
		if wnd == nil {
			return &stratify.Labels{Values: col, DType: dt}, nil
		}
		// windowed data stratifies by the anchor-row value, so each
		// window belongs to exactly one split
		vals := make([]float64, wnd.WindowCount)
		for i := range vals {
			vals[i] = col[wnd.AnchorRow(i)]
		}
		return &stratify.Labels{Values: vals, DType: dt}, nil
	}
	return nil, nil
}

// guardFitIndices asserts that every index an encoder is about to be
// fit on belongs to the designated fit partition.
func guardFitIndices(fitIdx, allowed []int) error {
	ok := make(map[int]bool, len(allowed))
	for _, i := range allowed {
		ok[i] = true
	}
	for _, i := range fitIdx {
		if !ok[i] {
			return LeakageError{
				Msg: fmt.Sprintf("sample %d is outside the designated fit partition", i),
			}
		}
	}
	return nil
}

// Key formats the tensor cache key of this pipeline.
func (p *Pipeline) Key(foldIdx int, split string) string {
	return cache.TensorKey(p.ID, foldIdx, split)
}
