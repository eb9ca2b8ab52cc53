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
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// AnalysisType selects which metric set a runner computes from raw
// predictions.
type AnalysisType int

const (
	AnalysisClassification AnalysisType = iota
	AnalysisRegression
)

// SplitMetrics maps metric name to value for one split.
type SplitMetrics map[string]float64

// History records per-epoch series reported by training callbacks,
// keyed by metric name.
type History struct {
	Epochs map[string][]float64
}

func NewHistory() *History {
	return &History{Epochs: make(map[string][]float64)}
}

// Record appends one epoch value of the named metric.
func (h *History) Record(metric string, value float64) {
	h.Epochs[metric] = append(h.Epochs[metric], value)
}

// classificationMetrics evaluates predicted class codes against truth.
// Multi-class inputs get accuracy only; binary inputs additionally get
// precision, recall and f1 of the positive class.
func classificationMetrics(truth, preds []float64) SplitMetrics {
	if len(truth) == 0 {
		return SplitMetrics{"accuracy": 0}
	}
	correct := 0
	binary := true
	var tp, fp, fn float64
	for i := range truth {
		p := math.Round(preds[i])
		t := math.Round(truth[i])
		if p == t {
			correct++
		}
		if t != 0 && t != 1 {
			binary = false
		}
		if p == 1 && t == 1 {
			tp++
		}
		if p == 1 && t == 0 {
			fp++
		}
		if p == 0 && t == 1 {
			fn++
		}
	}
	ans := SplitMetrics{
		"accuracy": float64(correct) / float64(len(truth)),
	}
	if binary {
		precision := 0.0
		if tp+fp > 0 {
			precision = tp / (tp + fp)
		}
		recall := 0.0
		if tp+fn > 0 {
			recall = tp / (tp + fn)
		}
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		ans["precision"] = precision
		ans["recall"] = recall
		ans["f1"] = f1
	}
	return ans
}

func regressionMetrics(truth, preds []float64) SplitMetrics {
	if len(truth) == 0 {
		return SplitMetrics{"mse": 0, "mae": 0, "r2": 0}
	}
	var mse, mae float64
	for i := range truth {
		d := preds[i] - truth[i]
		mse += d * d
		mae += math.Abs(d)
	}
	n := float64(len(truth))
	mse /= n
	mae /= n
	meanT := stat.Mean(truth, nil)
	var ssTot float64
	for _, t := range truth {
		ssTot += (t - meanT) * (t - meanT)
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1.0 - mse*n/ssTot
	}
	return SplitMetrics{"mse": mse, "mae": mae, "r2": r2}
}

// Aggregate summarizes each metric across splits
// (mean/median/pstdev/min/max), mirroring what experiment dashboards
// display next to the per-split values.
type Aggregate struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	PStdev float64 `json:"pstdev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func AggregateMetrics(perSplit map[string]SplitMetrics) map[string]Aggregate {
	byMetric := make(map[string][]float64)
	for _, sm := range perSplit {
		for name, v := range sm {
			byMetric[name] = append(byMetric[name], v)
		}
	}
	ans := make(map[string]Aggregate, len(byMetric))
	for name, vals := range byMetric {
		sort.Float64s(vals)
		mean := stat.Mean(vals, nil)
		var ss float64
		for _, v := range vals {
			ss += (v - mean) * (v - mean)
		}
		var median float64
		if n := len(vals); n%2 == 1 {
			median = vals[n/2]
		} else {
			median = (vals[n/2-1] + vals[n/2]) / 2
		}
		ans[name] = Aggregate{
			Mean:   mean,
			Median: median,
			PStdev: math.Sqrt(ss / float64(len(vals))),
			Min:    vals[0],
			Max:    vals[len(vals)-1],
		}
	}
	return ans
}
