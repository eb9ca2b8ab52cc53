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
	"fmt"

	"github.com/czcorpus/trainbed/hyper"
	"github.com/czcorpus/trainbed/pipeline"
	"github.com/czcorpus/trainbed/stratify"
	"github.com/rs/zerolog/log"
)

// Model is an opaque handle produced by a TrainerKit's Build and
// consumed by its Train/Predict. The runner never inspects it.
type Model any

// SplitData bundles the read-only cached tensors of one partition.
// Labels is nil for unsupervised pipelines.
type SplitData struct {
	Features *pipeline.Tensor
	Labels   *pipeline.Tensor
}

// LabelVector flattens single-column labels for metric computation.
func (sd SplitData) LabelVector() []float64 {
	if sd.Labels == nil {
		return nil
	}
	ans := make([]float64, len(sd.Labels.Rows))
	for i, row := range sd.Labels.Rows {
		if len(row) > 0 {
			ans[i] = row[0]
		}
	}
	return ans
}

// TrainerKit supplies the framework-specific callables of an
// experiment. The runner depends only on this interface, never on a
// concrete training library.
type TrainerKit interface {
	// Build constructs an untrained model for the given tensor shapes
	// and hyperparameter combination.
	Build(featuresShape, labelShape []int, hp *hyper.Combo) (Model, error)
	// Train fits the model on train data, evaluating against eval data
	// (eval may hold no samples); per-epoch values go into hist.
	Train(ctx context.Context, model Model, train, eval SplitData, hp *hyper.Combo, hist *History) (Model, error)
	// Predict returns one raw prediction per sample.
	Predict(model Model, features *pipeline.Tensor) ([]float64, error)
}

// Loser optionally overrides the loss recorded per split.
type Loser interface {
	Lose(truth, preds []float64) float64
}

// Optimizer optionally adjusts a freshly built model before training,
// e.g. to attach a tuned solver derived from the hyperparameters.
type Optimizer interface {
	Optimize(model Model, hp *hyper.Combo) (Model, error)
}

// JobRecorder observes job lifecycle transitions, typically to persist
// them into the registry. Both methods are called from the runner
// goroutine.
type JobRecorder interface {
	JobStarted(job *Job)
	JobFinished(job *Job)
}

// Predictor is the artifact of one successful job: the trained model
// handle, its training history and final metrics keyed by split name.
type Predictor struct {
	Model      Model
	History    *History
	Metrics    map[string]SplitMetrics
	Aggregates map[string]Aggregate
}

// Report is the complete outcome of one queue run. It is returned even
// when some (or all) jobs failed.
type Report struct {
	Succeeded int
	Failed    int
	Stopped   int
	Jobs      []*Job
}

func (r *Report) String() string {
	return fmt.Sprintf("Report{succeeded: %d, failed: %d, pending: %d}", r.Succeeded, r.Failed, r.Stopped)
}

// Runner executes a queue's jobs sequentially against a materialized
// pipeline. Jobs share nothing but the read-only cached tensors, so a
// caller may instead shard the pending jobs over several runners in
// separate processes; the recorded (combo, fold, repeat) identities
// keep aggregation order-independent.
type Runner struct {
	Queue    *Queue
	Data     *pipeline.Materialized
	Kit      TrainerKit
	Analysis AnalysisType

	// OnProgress, when set, is invoked after every finished job with
	// (completed, total).
	OnProgress func(completed, total int)

	// Recorder, when set, receives job transitions for persistence.
	Recorder JobRecorder
}

// Run executes every pending job in enumeration order. A failing job is
// recorded and the run continues; the only error returned is context
// cancellation, which stops the queue between jobs and leaves the
// remaining ones pending. In-flight training callbacks receive ctx but
// are never forcibly interrupted.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{Jobs: r.Queue.Jobs()}
	for _, job := range r.Queue.Jobs() {
		if job.Status != StatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Stopped = r.Queue.Total() - r.Queue.Completed()
			log.Warn().
				Int("completed", r.Queue.Completed()).
				Int("total", r.Queue.Total()).
				Msg("queue stopped before finishing all jobs")
			return report, err
		}
		r.runOne(ctx, job)
		if job.Status == StatusSucceeded {
			report.Succeeded++
		} else {
			report.Failed++
		}
		r.Queue.markCompleted()
		if r.OnProgress != nil {
			r.OnProgress(r.Queue.Completed(), r.Queue.Total())
		}
	}
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, job *Job) {
	job.Status = StatusRunning
	if r.Recorder != nil {
		r.Recorder.JobStarted(job)
	}
	predictor, err := r.execute(ctx, job)
	if err != nil {
		job.Status = StatusFailed
		job.Err = err
		log.Error().
			Err(err).
			Int("job", job.Ordinal).
			Str("identity", job.Identity()).
			Msg("job failed")

	} else {
		job.Status = StatusSucceeded
		job.Predictor = predictor
	}
	if r.Recorder != nil {
		r.Recorder.JobFinished(job)
	}
}

// execute runs the build/train/predict chain of one job, converting
// panics raised inside user callables into JobExecutionError.
func (r *Runner) execute(ctx context.Context, job *Job) (ans *Predictor, err error) {
	phase := "build"
	defer func() {
		if rec := recover(); rec != nil {
			ans = nil
			err = JobExecutionError{
				JobOrdinal: job.Ordinal,
				Phase:      phase,
				Cause:      fmt.Errorf("panic: %v", rec),
			}
		}
	}()

	splits, trainKey, evalKey, err := r.jobSplits(job)
	if err != nil {
		return nil, err
	}
	model, err := r.Kit.Build(r.Data.FeatureShape(), r.Data.LabelShape(), job.Combo)
	if err != nil {
		return nil, JobExecutionError{JobOrdinal: job.Ordinal, Phase: phase, Cause: err}
	}
	if opt, ok := r.Kit.(Optimizer); ok {
		phase = "optimize"
		model, err = opt.Optimize(model, job.Combo)
		if err != nil {
			return nil, JobExecutionError{JobOrdinal: job.Ordinal, Phase: phase, Cause: err}
		}
	}
	phase = "train"
	hist := NewHistory()
	evalData := SplitData{}
	if evalKey != "" {
		evalData = splits[evalKey]
	}
	model, err = r.Kit.Train(ctx, model, splits[trainKey], evalData, job.Combo, hist)
	if err != nil {
		return nil, JobExecutionError{JobOrdinal: job.Ordinal, Phase: phase, Cause: err}
	}
	phase = "predict"
	metrics := make(map[string]SplitMetrics, len(splits))
	for name, sd := range splits {
		preds, err := r.Kit.Predict(model, sd.Features)
		if err != nil {
			return nil, JobExecutionError{JobOrdinal: job.Ordinal, Phase: phase, Cause: err}
		}
		truth := sd.LabelVector()
		if truth == nil {
			continue
		}
		var sm SplitMetrics
		if r.Analysis == AnalysisRegression {
			sm = regressionMetrics(truth, preds)
		} else {
			sm = classificationMetrics(truth, preds)
		}
		if loser, ok := r.Kit.(Loser); ok {
			sm["loss"] = loser.Lose(truth, preds)
		}
		metrics[name] = sm
	}
	return &Predictor{
		Model:      model,
		History:    hist,
		Metrics:    metrics,
		Aggregates: AggregateMetrics(metrics),
	}, nil
}

// jobSplits resolves which cached tensors a job consumes and which
// partition trains/evaluates it. Folded jobs train on fold-train and
// evaluate on fold-eval; non-folded jobs train on train and evaluate on
// validation when present, else test (unless the test split is hidden).
func (r *Runner) jobSplits(job *Job) (map[string]SplitData, string, string, error) {
	names := make([]string, 0, 4)
	trainKey := stratify.SplitTrain
	evalKey := ""
	if job.FoldIndex != NoFold {
		trainKey = stratify.FoldSplitName(false)
		evalKey = stratify.FoldSplitName(true)
		names = append(names, trainKey, evalKey)
	} else {
		names = append(names, stratify.SplitTrain)
	}
	if r.Data.Splitset.HasSplit(stratify.SplitValidation) {
		names = append(names, stratify.SplitValidation)
		if evalKey == "" {
			evalKey = stratify.SplitValidation
		}
	}
	if r.Data.Splitset.HasSplit(stratify.SplitTest) && !r.Queue.HideTest {
		names = append(names, stratify.SplitTest)
		if evalKey == "" {
			evalKey = stratify.SplitTest
		}
	}
	foldIdx := job.FoldIndex
	ans := make(map[string]SplitData, len(names))
	for _, name := range names {
		feat, err := r.Data.Features(foldIdx, name)
		if err != nil {
			return nil, "", "", err
		}
		sd := SplitData{Features: feat}
		lbl, err := r.Data.Labels(foldIdx, name)
		if err == nil {
			sd.Labels = lbl
		} else if _, ok := err.(pipeline.CacheMissError); !ok {
			return nil, "", "", err
		}
		ans[name] = sd
	}
	return ans, trainKey, evalKey, nil
}
