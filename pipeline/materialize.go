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

package pipeline

import (
	"bytes"
	"context"
	"sync"

	"github.com/czcorpus/trainbed/cache"
	"github.com/czcorpus/trainbed/dataset"
	"github.com/czcorpus/trainbed/encode"
	"github.com/czcorpus/trainbed/stratify"
	"github.com/czcorpus/trainbed/window"
	"github.com/rs/zerolog/log"
)

// StaleCacheError reports that a persisted materialization exists for
// the pipeline id but was produced by a different configuration.
type StaleCacheError struct {
	PipelineID string
}

func (err StaleCacheError) Error() string {
	return "persisted cache for pipeline `" + err.PipelineID + "` was produced by a different configuration"
}

type Option func(*Materialized)

// WithCache persists the materialized tensors into db in addition to
// the in-memory cache, and serves later fetches from it.
func WithCache(db *cache.DB) Option {
	return func(m *Materialized) {
		m.persist = db
	}
}

type fittedCtx struct {
	interp *encode.Fitted
	enc    *encode.Fitted
	label  encode.Encoder
}

// Materialized is the write-once result of one pipeline run: the split
// memberships plus the encoded per-split (and per-fold) tensors. Once
// Materialize returns, any number of goroutines may fetch tensors
// concurrently; lazy loads from the persistence layer are serialized
// through an internal lock.
type Materialized struct {
	Pipeline  *Pipeline
	Splitset  *stratify.Splitset
	Foldset   *stratify.Foldset
	Windowing *window.Windowing

	tensorsMu sync.RWMutex
	tensors   map[string]*Tensor
	fitted    map[int]*fittedCtx
	persist   *cache.DB

	featureColumns []string
	featureShape   []int
	labelShape     []int
}

// Materialize runs the whole preparation: windowing, stratification and
// the per-context fit/transform chains. It blocks until every tensor is
// computed; no partial result is observable. Calling it twice with an
// identical configuration yields bit-identical split memberships and
// encoded values.
func (p *Pipeline) Materialize(ctx context.Context, opts ...Option) (*Materialized, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	m := &Materialized{
		Pipeline: p,
		tensors:  make(map[string]*Tensor),
		fitted:   make(map[int]*fittedCtx),
	}
	for _, opt := range opts {
		opt(m)
	}

	var wnd *window.Windowing
	if p.Window != nil {
		var err error
		wnd, err = window.Make(p.Features.Dataset.SampleCount(), *p.Window)
		if err != nil {
			return nil, err
		}
		m.Windowing = wnd
	}
	sampleCount := p.Features.Dataset.SampleCount()
	if wnd != nil {
		sampleCount = wnd.WindowCount
	}

	labels, err := p.stratLabels(wnd)
	if err != nil {
		return nil, err
	}
	ss, err := stratify.Run(sampleCount, labels, p.Strat)
	if err != nil {
		return nil, err
	}
	m.Splitset = ss
	if p.Strat.FoldCount != 0 {
		fs, err := stratify.Folds(ss, labels, p.Strat)
		if err != nil {
			return nil, err
		}
		m.Foldset = fs
	}
	if err := m.checkPersisted(); err != nil {
		return nil, err
	}

	// build-time filter validation, before any data is touched
	interpPlan, err := p.Interpolate.NewPlan(p.Features.Columns())
	if err != nil {
		return nil, err
	}
	encPlan, err := p.Encode.NewPlan(interpPlan.PlannedColumns())
	if err != nil {
		return nil, err
	}

	trainIdx := ss.Samples[stratify.SplitTrain]
	if err := m.runContext(WholeSplitContext, interpPlan, encPlan, trainIdx, ss.Samples, trainIdx); err != nil {
		return nil, err
	}
	if m.Foldset != nil {
		for _, fold := range m.Foldset.Folds {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			parts := map[string][]int{
				stratify.FoldSplitName(false): fold.TrainIdx,
				stratify.FoldSplitName(true):  fold.EvalIdx,
			}
			// evaluation against held-out splits inside a fold uses the
			// fold-fit encoders, so those tensors are fold-specific too
			for _, name := range []string{stratify.SplitValidation, stratify.SplitTest} {
				if ss.HasSplit(name) {
					parts[name] = ss.Samples[name]
				}
			}
			if err := m.runContext(fold.Index, interpPlan, encPlan, fold.TrainIdx, parts, trainIdx); err != nil {
				return nil, err
			}
		}
	}
	log.Info().
		Str("pipeline", p.ID).
		Int("tensors", len(m.tensors)).
		Int("samples", sampleCount).
		Msg("materialized pipeline")
	return m, nil
}

// partitionRows fetches the raw feature rows of a partition, stacked to
// 2D when the samples are 3D (windowed tables or sequence datasets).
func (m *Materialized) partitionRows(indices []int, shifted bool) ([][]float64, error) {
	p := m.Pipeline
	if m.Windowing != nil {
		seq, err := m.Windowing.Slice(p.Features.Dataset, indices, p.Features.ColIdx, shifted)
		if err != nil {
			return nil, err
		}
		return encode.Stack3D(seq), nil
	}
	if p.Features.Dataset.Kind() == dataset.KindSequence {
		return encode.Stack3D(p.Features.Dataset.Sequences(indices, p.Features.ColIdx)), nil
	}
	return p.Features.Dataset.Rows(indices, p.Features.ColIdx), nil
}

// seqTimesteps reports the per-sample timestep count of 3D data, 0 for
// plain tables.
func (m *Materialized) seqTimesteps() int {
	if m.Windowing != nil {
		return m.Windowing.Spec.SizeWindow
	}
	if m.Pipeline.Features.Dataset.Kind() == dataset.KindSequence {
		return m.Pipeline.Features.Dataset.TimestepCount()
	}
	return 0
}

func (m *Materialized) runContext(
	foldIdx int,
	interpPlan, encPlan *encode.Plan,
	fitIdx []int,
	partitions map[string][]int,
	allowedFit []int,
) error {
	p := m.Pipeline
	if err := guardFitIndices(fitIdx, allowedFit); err != nil {
		return err
	}

	fitRows, err := m.partitionRows(fitIdx, false)
	if err != nil {
		return err
	}
	fc := &fittedCtx{}
	fc.interp, err = interpPlan.Fit(fitRows)
	if err != nil {
		return err
	}
	interpFit, err := fc.interp.Transform(fitRows)
	if err != nil {
		return err
	}
	fc.enc, err = encPlan.Fit(interpFit)
	if err != nil {
		return err
	}
	if p.Label != nil && p.LabelCoder != nil {
		fc.label = p.LabelCoder.New()
		fitLabels := p.Label.Dataset.Rows(fitIdx, p.Label.ColIdx)
		if err := fc.label.Fit(fitLabels); err != nil {
			return err
		}
	}
	m.fitted[foldIdx] = fc

	for split, indices := range partitions {
		feat, err := m.transformPartition(fc, indices, false)
		if err != nil {
			return err
		}
		if err := m.store(p.Key(foldIdx, split), feat); err != nil {
			return err
		}
		lbl, err := m.labelTensor(fc, indices)
		if err != nil {
			return err
		}
		if lbl != nil {
			if err := m.store(p.Key(foldIdx, split)+":label", lbl); err != nil {
				return err
			}
		}
		if m.featureShape == nil {
			m.featureColumns = feat.Columns
			m.featureShape = feat.Shape()
			if lbl != nil {
				m.labelShape = lbl.Shape()
			}
		}
	}
	return nil
}

func (m *Materialized) transformPartition(fc *fittedCtx, indices []int, shifted bool) (*Tensor, error) {
	rows, err := m.partitionRows(indices, shifted)
	if err != nil {
		return nil, err
	}
	interp, err := fc.interp.Transform(rows)
	if err != nil {
		return nil, err
	}
	out, err := fc.enc.Transform(interp)
	if err != nil {
		return nil, err
	}
	t := &Tensor{
		Columns: fc.enc.OutputColumns(),
		Indices: append([]int{}, indices...),
	}
	if ts := m.seqTimesteps(); ts != 0 {
		t.Seq = encode.Unstack3D(out, ts)
	} else {
		t.Rows = out
	}
	return t, nil
}

// labelTensor produces the target partition: encoded labels for
// supervised pipelines, shift-encoded windows for self-supervised ones,
// nil otherwise.
func (m *Materialized) labelTensor(fc *fittedCtx, indices []int) (*Tensor, error) {
	p := m.Pipeline
	if p.Label != nil {
		rows := p.Label.Dataset.Rows(indices, p.Label.ColIdx)
		cols := p.Label.ColumnNames()
		if fc.label != nil {
			var err error
			rows, err = fc.label.Transform(rows)
			if err != nil {
				return nil, err
			}
			cols = fc.label.OutputColumns(cols)
		}
		return &Tensor{Columns: cols, Rows: rows, Indices: append([]int{}, indices...)}, nil
	}
	if m.Windowing != nil && m.Windowing.Spec.RecordShifted {
		return m.transformPartition(fc, indices, true)
	}
	return nil, nil
}

func (m *Materialized) store(key string, t *Tensor) error {
	m.tensorsMu.Lock()
	m.tensors[key] = t
	m.tensorsMu.Unlock()
	if m.persist == nil {
		return nil
	}
	_, exists, err := m.persist.ReadBlob(cache.TensorPrefix, key)
	if err != nil {
		return err
	}
	if exists {
		// deterministic materialization makes re-writing pointless
		return nil
	}
	blob, err := cache.EncodeBlob(t)
	if err != nil {
		return err
	}
	return m.persist.StoreBlob(cache.TensorPrefix, key, blob)
}

// checkPersisted compares the freshly computed split memberships with a
// previously persisted run of the same pipeline id.
func (m *Materialized) checkPersisted() error {
	if m.persist == nil {
		return nil
	}
	blob, err := cache.EncodeBlob(m.Splitset)
	if err != nil {
		return err
	}
	old, exists, err := m.persist.ReadBlob(cache.SplitsetPrefix, m.Pipeline.ID)
	if err != nil {
		return err
	}
	if exists {
		if !bytes.Equal(old, blob) {
			return StaleCacheError{PipelineID: m.Pipeline.ID}
		}
		return nil
	}
	return m.persist.StoreBlob(cache.SplitsetPrefix, m.Pipeline.ID, blob)
}

func (m *Materialized) fetch(key string) (*Tensor, error) {
	m.tensorsMu.RLock()
	t, ok := m.tensors[key]
	m.tensorsMu.RUnlock()
	if ok {
		return t, nil
	}
	if m.persist != nil {
		blob, exists, err := m.persist.ReadBlob(cache.TensorPrefix, key)
		if err != nil {
			return nil, err
		}
		if exists {
			loaded := &Tensor{}
			if err := cache.DecodeBlob(blob, loaded); err != nil {
				return nil, err
			}
			m.tensorsMu.Lock()
			// a concurrent fetch may have loaded the key meanwhile
			if cached, ok := m.tensors[key]; ok {
				loaded = cached
			} else {
				m.tensors[key] = loaded
			}
			m.tensorsMu.Unlock()
			return loaded, nil
		}
	}
	return nil, CacheMissError{Key: key}
}

// Features returns the cached feature tensor of one fold context and
// split. Use WholeSplitContext for the non-folded splits.
func (m *Materialized) Features(foldIdx int, split string) (*Tensor, error) {
	return m.fetch(m.Pipeline.Key(foldIdx, split))
}

// Labels returns the cached target tensor of one fold context and
// split; CacheMissError for unsupervised pipelines.
func (m *Materialized) Labels(foldIdx int, split string) (*Tensor, error) {
	return m.fetch(m.Pipeline.Key(foldIdx, split) + ":label")
}

// FeatureShape is the per-sample feature shape fed to build callbacks.
func (m *Materialized) FeatureShape() []int { return m.featureShape }

// LabelShape is the per-sample label shape fed to build callbacks;
// nil for unsupervised pipelines.
func (m *Materialized) LabelShape() []int { return m.labelShape }

// FeatureColumns lists the encoded feature column names.
func (m *Materialized) FeatureColumns() []string { return m.featureColumns }

// EncodeNew encodes new raw samples (full feature width, original
// column order) with the already-fit whole-split transformers. This is
// the inference entry point: no refitting happens.
func (m *Materialized) EncodeNew(rows [][]float64) ([][]float64, error) {
	fc, ok := m.fitted[WholeSplitContext]
	if !ok {
		return nil, CacheMissError{Key: m.Pipeline.Key(WholeSplitContext, "fitted")}
	}
	interp, err := fc.interp.Transform(rows)
	if err != nil {
		return nil, err
	}
	return fc.enc.Transform(interp)
}
