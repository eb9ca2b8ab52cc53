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

package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/czcorpus/trainbed/dataset"
	"github.com/czcorpus/trainbed/encode"
	"github.com/czcorpus/trainbed/hyper"
	"github.com/czcorpus/trainbed/pipeline"
	"github.com/czcorpus/trainbed/stratify"
	"github.com/stretchr/testify/assert"
)

// fakeKit trains nothing and predicts a constant class. It fails or
// panics for designated combo indices.
type fakeKit struct {
	failIndex  int
	panicIndex int
	built      int
}

func (k *fakeKit) Build(featuresShape, labelShape []int, hp *hyper.Combo) (Model, error) {
	if hp != nil && hp.Index == k.failIndex {
		return nil, errors.New("synthetic build failure")
	}
	k.built++
	return "model", nil
}

func (k *fakeKit) Train(ctx context.Context, model Model, train, eval SplitData, hp *hyper.Combo, hist *History) (Model, error) {
	if hp != nil && hp.Index == k.panicIndex {
		panic("synthetic train panic")
	}
	hist.Record("loss", 1.0)
	return model, nil
}

func (k *fakeKit) Predict(model Model, features *pipeline.Tensor) ([]float64, error) {
	return make([]float64, features.SampleCount()), nil
}

func testMaterialized(t *testing.T, foldCount int) *pipeline.Materialized {
	t.Helper()
	columns := []dataset.Column{
		{Name: "x", DType: dataset.DTypeFloat},
		{Name: "y", DType: dataset.DTypeCategorical},
	}
	rows := make([][]float64, 40)
	for i := range rows {
		label := 0.0
		if i%2 == 0 {
			label = 1.0
		}
		rows[i] = []float64{float64(i), label}
	}
	ds, err := dataset.NewTable("runner-test", columns, rows)
	assert.NoError(t, err)
	features, err := dataset.NewView(ds, dataset.Selection{Include: []string{"x"}})
	assert.NoError(t, err)
	label, err := dataset.NewView(ds, dataset.Selection{Include: []string{"y"}})
	assert.NoError(t, err)
	pp := &pipeline.Pipeline{
		ID:       "runner-test",
		Features: features,
		Label:    &label,
		Encode: encode.Encoderset{
			Steps: []encode.Step{
				{
					New:    func() encode.Encoder { return &encode.MinMaxScaler{} },
					Filter: encode.Filter{Columns: []string{"x"}},
				},
			},
		},
		LabelCoder: &encode.Step{
			New: func() encode.Encoder { return &encode.OrdinalEncoder{} },
		},
		Strat: stratify.Config{SizeTest: 0.25, FoldCount: foldCount, Seed: 3},
	}
	mat, err := pp.Materialize(context.Background())
	assert.NoError(t, err)
	return mat
}

func TestRunnerToleratesFailingJobs(t *testing.T) {
	combos := make([]*hyper.Combo, 8)
	for i := range combos {
		combos[i] = &hyper.Combo{Index: i, Params: map[string]any{"i": i}}
	}
	q, err := New(combos, 0, 1, false)
	assert.NoError(t, err)
	assert.Equal(t, 8, q.Total())

	runner := &Runner{
		Queue:    q,
		Data:     testMaterialized(t, 0),
		Kit:      &fakeKit{failIndex: 3, panicIndex: -1},
		Analysis: AnalysisClassification,
	}
	report, err := runner.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 7, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 8, q.Completed())

	failed := q.Jobs()[3]
	assert.Equal(t, StatusFailed, failed.Status)
	var jobErr JobExecutionError
	assert.ErrorAs(t, failed.Err, &jobErr)
	assert.Equal(t, "build", jobErr.Phase)
}

func TestRunnerRecoversFromPanics(t *testing.T) {
	combos := []*hyper.Combo{{Index: 0, Params: map[string]any{}}}
	q, err := New(combos, 0, 1, false)
	assert.NoError(t, err)
	runner := &Runner{
		Queue:    q,
		Data:     testMaterialized(t, 0),
		Kit:      &fakeKit{failIndex: -1, panicIndex: 0},
		Analysis: AnalysisClassification,
	}
	report, err := runner.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	var jobErr JobExecutionError
	assert.ErrorAs(t, q.Jobs()[0].Err, &jobErr)
	assert.Equal(t, "train", jobErr.Phase)
}

func TestRunnerProducesPredictors(t *testing.T) {
	q, err := New(nil, 0, 1, false)
	assert.NoError(t, err)
	runner := &Runner{
		Queue:    q,
		Data:     testMaterialized(t, 0),
		Kit:      &fakeKit{failIndex: -1, panicIndex: -1},
		Analysis: AnalysisClassification,
	}
	report, err := runner.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	p := q.Jobs()[0].Predictor
	assert.NotNil(t, p)
	assert.Equal(t, []float64{1.0}, p.History.Epochs["loss"])
	// the constant-zero predictor gets the zero-class proportion right
	assert.Contains(t, p.Metrics, stratify.SplitTrain)
	assert.Contains(t, p.Metrics, stratify.SplitTest)
	assert.InDelta(t, 0.5, p.Metrics[stratify.SplitTest]["accuracy"], 1e-9)
	assert.Contains(t, p.Aggregates, "accuracy")
}

func TestRunnerHonorsHideTest(t *testing.T) {
	q, err := New(nil, 0, 1, true)
	assert.NoError(t, err)
	runner := &Runner{
		Queue:    q,
		Data:     testMaterialized(t, 0),
		Kit:      &fakeKit{failIndex: -1, panicIndex: -1},
		Analysis: AnalysisClassification,
	}
	_, err = runner.Run(context.Background())
	assert.NoError(t, err)
	p := q.Jobs()[0].Predictor
	assert.NotContains(t, p.Metrics, stratify.SplitTest)
}

func TestRunnerRunsFoldJobs(t *testing.T) {
	q, err := New(nil, 4, 1, false)
	assert.NoError(t, err)
	assert.Equal(t, 4, q.Total())
	runner := &Runner{
		Queue:    q,
		Data:     testMaterialized(t, 4),
		Kit:      &fakeKit{failIndex: -1, panicIndex: -1},
		Analysis: AnalysisClassification,
	}
	report, err := runner.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 4, report.Succeeded)
	for _, job := range q.Jobs() {
		p := job.Predictor
		assert.Contains(t, p.Metrics, stratify.FoldSplitName(false))
		assert.Contains(t, p.Metrics, stratify.FoldSplitName(true))
	}
}

func TestRunnerStopsOnCancelledContext(t *testing.T) {
	combos := make([]*hyper.Combo, 3)
	for i := range combos {
		combos[i] = &hyper.Combo{Index: i, Params: map[string]any{"i": i}}
	}
	q, err := New(combos, 0, 1, false)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	data := testMaterialized(t, 0)
	kit := &fakeKit{failIndex: -1, panicIndex: -1}
	runner := &Runner{
		Queue:    q,
		Data:     data,
		Kit:      kit,
		Analysis: AnalysisClassification,
		OnProgress: func(completed, total int) {
			if completed == 1 {
				cancel()
			}
		},
	}
	report, err := runner.Run(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Stopped)
	assert.Equal(t, StatusPending, q.Jobs()[1].Status)
}

func TestJobExecutionErrorFormatting(t *testing.T) {
	err := JobExecutionError{JobOrdinal: 4, Phase: "train", Cause: fmt.Errorf("boom")}
	assert.Equal(t, "job 4 failed during train: boom", err.Error())
	assert.Equal(t, "boom", errors.Unwrap(err).Error())
}
