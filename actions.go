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

package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/czcorpus/trainbed/cache"
	"github.com/czcorpus/trainbed/cnf"
	"github.com/czcorpus/trainbed/dataset"
	"github.com/czcorpus/trainbed/encode"
	"github.com/czcorpus/trainbed/hyper"
	"github.com/czcorpus/trainbed/models/nn"
	"github.com/czcorpus/trainbed/models/rf"
	"github.com/czcorpus/trainbed/pipeline"
	"github.com/czcorpus/trainbed/queue"
	"github.com/czcorpus/trainbed/registry"
	"github.com/czcorpus/trainbed/stratify"
)

const (
	errColor = color.FgHiRed

	demoSampleCount = 240
)

// demoDataset generates a synthetic sensor-failure table: four
// continuous readings (a few of them missing), one categorical code and
// a binary target derived from the readings.
func demoDataset(seed uint64) (*dataset.Dataset, error) {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	columns := []dataset.Column{
		{Name: "temp", DType: dataset.DTypeFloat},
		{Name: "pressure", DType: dataset.DTypeFloat},
		{Name: "flow", DType: dataset.DTypeFloat},
		{Name: "ratio", DType: dataset.DTypeFloat},
		{Name: "material", DType: dataset.DTypeCategorical},
		{Name: "failure", DType: dataset.DTypeCategorical},
	}
	rows := make([][]float64, demoSampleCount)
	for i := range rows {
		temp := 60 + 15*rng.NormFloat64()
		pressure := 1.2 + 0.3*rng.NormFloat64()
		flow := 100 + 25*rng.NormFloat64()
		ratio := rng.Float64()
		material := float64(rng.IntN(3))
		score := 0.04*(temp-60) + 1.5*(pressure-1.2) - 0.01*(flow-100) + 0.5*(ratio-0.5)
		failure := 0.0
		if score+0.3*rng.NormFloat64() > 0.4 {
			failure = 1.0
		}
		if rng.Float64() < 0.05 {
			temp = math.NaN()
		}
		if rng.Float64() < 0.05 {
			flow = math.NaN()
		}
		rows[i] = []float64{temp, pressure, flow, ratio, material, failure}
	}
	return dataset.NewTable("demo-sensors", columns, rows)
}

func demoPipeline(ds *dataset.Dataset, foldCount int, seed uint64) (*pipeline.Pipeline, error) {
	features, err := dataset.NewView(ds, dataset.Selection{Exclude: []string{"failure"}})
	if err != nil {
		return nil, err
	}
	label, err := dataset.NewView(ds, dataset.Selection{Include: []string{"failure"}})
	if err != nil {
		return nil, err
	}
	return &pipeline.Pipeline{
		ID:       "demo-failure",
		Features: features,
		Label:    &label,
		Interpolate: encode.Encoderset{
			Steps: []encode.Step{
				{
					New:    func() encode.Encoder { return &encode.Interpolator{} },
					Filter: encode.Filter{DTypes: []dataset.DType{dataset.DTypeFloat}},
				},
			},
		},
		Encode: encode.Encoderset{
			Steps: []encode.Step{
				{
					New:    func() encode.Encoder { return &encode.StandardScaler{} },
					Filter: encode.Filter{DTypes: []dataset.DType{dataset.DTypeFloat}},
				},
				{
					New:    func() encode.Encoder { return &encode.OneHotEncoder{} },
					Filter: encode.Filter{DTypes: []dataset.DType{dataset.DTypeCategorical}},
				},
			},
		},
		LabelCoder: &encode.Step{
			New: func() encode.Encoder { return &encode.OrdinalEncoder{} },
		},
		Strat: stratify.Config{
			SizeTest:       0.2,
			SizeValidation: 0.1,
			FoldCount:      foldCount,
			Seed:           seed,
		},
	}, nil
}

func demoSpace(useNN bool) hyper.Space {
	if useNN {
		return hyper.Space{
			"hidden": {8, 16},
			"epochs": {60},
			"lr":     {0.005},
		}
	}
	return hyper.Space{
		"trees":         {50, 100},
		"voteThreshold": {0.5},
	}
}

func runDemo(conf *cnf.Conf, foldCount int, seed uint64, useNN bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ds, err := demoDataset(seed)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorExperimentFailed)
	}
	pp, err := demoPipeline(ds, foldCount, seed)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorExperimentFailed)
	}

	var opts []pipeline.Option
	if conf.CacheDir != "" {
		cacheDB, err := cache.OpenDB(filepath.Join(conf.CacheDir, "tensors"))
		if err != nil {
			color.New(errColor).Fprintln(os.Stderr, err)
			os.Exit(exitErrorFailedToOpenCache)
		}
		defer cacheDB.Close()
		opts = append(opts, pipeline.WithCache(cacheDB))
	}
	mat, err := pp.Materialize(ctx, opts...)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorExperimentFailed)
	}
	log.Info().
		Strs("columns", mat.FeatureColumns()).
		Ints("featureShape", mat.FeatureShape()).
		Msg("pipeline materialized")

	combos, err := demoSpace(useNN).Expand(hyper.Options{Seed: seed})
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorExperimentFailed)
	}
	q, err := queue.New(combos, foldCount, conf.RepeatCount, conf.HideTest)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorExperimentFailed)
	}

	regDB, err := registry.NewDatabase(conf.RegistryDBPath)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorFailedToOpenRegistry)
	}
	defer regDB.Close()
	if err := regDB.Init(); err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorFailedToOpenRegistry)
	}
	queueID := fmt.Sprintf("%s-%d", pp.ID, time.Now().Unix())
	if err := regDB.AddQueue(queueID, pp.ID, q); err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorFailedToOpenRegistry)
	}

	var kit queue.TrainerKit
	if useNN {
		kit = &nn.Kit{Analysis: queue.AnalysisClassification}

	} else {
		kit = &rf.Kit{}
	}
	bar := progressbar.Default(int64(q.Total()), "running jobs")
	runner := &queue.Runner{
		Queue:    q,
		Data:     mat,
		Kit:      kit,
		Analysis: queue.AnalysisClassification,
		OnProgress: func(completed, total int) {
			bar.Set(completed)
		},
		Recorder: &registry.Recorder{DB: regDB, QueueID: queueID},
	}
	report, err := runner.Run(ctx)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorExperimentFailed)
	}
	printReport(queueID, report)
}

func printReport(queueID string, report *queue.Report) {
	okColor := color.New(color.FgGreen).SprintFunc()
	badColor := color.New(color.FgRed).SprintFunc()
	fmt.Printf("\nqueue %s: %s succeeded, %s failed\n\n",
		queueID,
		okColor(report.Succeeded),
		badColor(report.Failed),
	)
	for _, job := range report.Jobs {
		if job.Status != queue.StatusSucceeded {
			if job.Err != nil {
				fmt.Printf("%s  %s (%s)\n", job.Identity(), badColor(job.Status), job.Err)
			}
			continue
		}
		fmt.Printf("%s  %s\n", job.Identity(), okColor(job.Status))
		for split, sm := range job.Predictor.Metrics {
			fmt.Printf("\t%s:", split)
			for name, v := range sm {
				fmt.Printf(" %s=%.3f", name, v)
			}
			fmt.Println()
		}
	}
}

func runListQueues(conf *cnf.Conf) {
	regDB, err := registry.NewDatabase(conf.RegistryDBPath)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorFailedToOpenRegistry)
	}
	defer regDB.Close()
	queues, err := regDB.ListQueues()
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorGeneralFailure)
	}
	for _, rec := range queues {
		fmt.Printf("%s\t%s\tpipeline: %s\tjobs: %d\n",
			rec.ID,
			time.Unix(rec.Created, 0).Format(time.RFC3339),
			rec.PipelineID,
			rec.TotalJobs,
		)
	}
}

func runListJobs(conf *cnf.Conf, queueID string) {
	if queueID == "" {
		color.New(errColor).Fprintln(os.Stderr, "missing queue id")
		os.Exit(exitErrorGeneralFailure)
	}
	regDB, err := registry.NewDatabase(conf.RegistryDBPath)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorFailedToOpenRegistry)
	}
	defer regDB.Close()
	jobs, err := regDB.JobsOfQueue(queueID)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorGeneralFailure)
	}
	okColor := color.New(color.FgGreen).SprintFunc()
	badColor := color.New(color.FgRed).SprintFunc()
	for _, job := range jobs {
		status := job.Status
		switch status {
		case "succeeded":
			status = okColor(status)
		case "failed":
			status = badColor(status)
		}
		fmt.Printf("#%d\tcombo: %s\tfold: %d\trepeat: %d\t%s\n",
			job.Ordinal, job.ComboID, job.FoldIndex, job.RepeatIndex, status)
		if job.Error != "" {
			fmt.Printf("\terror: %s\n", job.Error)
		}
	}
}
