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

// Package queue enumerates and executes the cross-product of
// hyperparameter combinations x folds x repeats as independently
// failable training jobs over a materialized pipeline.
package queue

import (
	"fmt"
	"sync/atomic"

	"github.com/czcorpus/trainbed/dataset"
	"github.com/czcorpus/trainbed/hyper"
)

type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (st Status) String() string {
	switch st {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int(st))
}

// NoFold is the fold index of jobs which run on the whole-split
// partitions.
const NoFold = -1

// JobExecutionError wraps any failure (error or panic) raised by
// a user-supplied build/train/predict callable. It is recorded against
// its job and never propagates to sibling jobs.
type JobExecutionError struct {
	JobOrdinal int
	Phase      string
	Cause      error
}

func (err JobExecutionError) Error() string {
	return fmt.Sprintf("job %d failed during %s: %s", err.JobOrdinal, err.Phase, err.Cause)
}

func (err JobExecutionError) Unwrap() error {
	return err.Cause
}

// Job is one executable unit: a hyperparameter combination x fold x
// repeat. Its lifecycle is pending -> running -> succeeded|failed;
// both final states are terminal and there are no automatic retries.
type Job struct {
	Ordinal     int
	Combo       *hyper.Combo
	FoldIndex   int
	RepeatIndex int

	Status    Status
	Err       error
	Predictor *Predictor
}

// Identity describes the job independently of execution order, so
// result aggregation stays order-independent under concurrent runs.
func (j *Job) Identity() string {
	comboID := "-"
	if j.Combo != nil {
		comboID = j.Combo.Identity()
	}
	return fmt.Sprintf("%s/f%d/r%d", comboID, j.FoldIndex, j.RepeatIndex)
}

// Queue owns the ordered job list of one experiment.
type Queue struct {
	Combos      []*hyper.Combo
	FoldCount   int
	RepeatCount int

	// HideTest withholds the test split from evaluation during the
	// runs, reserving it for a final assessment.
	HideTest bool

	jobs      []*Job
	completed atomic.Int64
}

// New validates the queue configuration and enumerates its jobs.
// Enumeration order is fixed: combinations outermost, folds in the
// middle, repeats innermost. Dashboards sort by this order, so it is
// part of the contract.
func New(combos []*hyper.Combo, foldCount, repeatCount int, hideTest bool) (*Queue, error) {
	if repeatCount < 1 {
		return nil, dataset.NewConfigError("repeatCount must be at least 1 (got %d)", repeatCount)
	}
	if foldCount < 0 {
		return nil, dataset.NewConfigError("foldCount cannot be negative (got %d)", foldCount)
	}
	q := &Queue{
		Combos:      combos,
		FoldCount:   foldCount,
		RepeatCount: repeatCount,
		HideTest:    hideTest,
	}
	comboList := combos
	if len(comboList) == 0 {
		comboList = []*hyper.Combo{nil} // fixed-parameter experiment
	}
	folds := []int{NoFold}
	if foldCount > 0 {
		folds = make([]int, foldCount)
		for i := range folds {
			folds[i] = i
		}
	}
	ordinal := 0
	for _, c := range comboList {
		for _, f := range folds {
			for r := 0; r < repeatCount; r++ {
				q.jobs = append(q.jobs, &Job{
					Ordinal:     ordinal,
					Combo:       c,
					FoldIndex:   f,
					RepeatIndex: r,
					Status:      StatusPending,
				})
				ordinal++
			}
		}
	}
	return q, nil
}

// Jobs exposes the enumerated jobs in their stable order.
func (q *Queue) Jobs() []*Job {
	return q.jobs
}

func (q *Queue) Total() int {
	return len(q.jobs)
}

// Completed monotonically counts finished jobs (either outcome) and is
// safe to poll from another goroutine.
func (q *Queue) Completed() int {
	return int(q.completed.Load())
}

func (q *Queue) markCompleted() {
	q.completed.Add(1)
}
