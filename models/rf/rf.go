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

// Package rf adapts a random forest classifier to the queue runner's
// trainer interface.
package rf

import (
	"context"
	"fmt"
	"math"

	randomforest "github.com/malaschitz/randomForest"
	"github.com/rs/zerolog/log"

	"github.com/czcorpus/trainbed/hyper"
	"github.com/czcorpus/trainbed/pipeline"
	"github.com/czcorpus/trainbed/queue"
)

const (
	DefaultNumTrees      = 100
	DefaultVoteThreshold = 0.5
)

// Model wraps a trained forest together with the voting threshold
// applied to binary decisions.
type Model struct {
	Forest        *randomforest.Forest
	NumTrees      int
	VoteThreshold float64
}

// Kit builds and trains random forest classifiers. Recognized
// hyperparameters: `trees` (int), `voteThreshold` (float, binary
// classes only).
type Kit struct{}

func (kit *Kit) Build(featuresShape, labelShape []int, hp *hyper.Combo) (queue.Model, error) {
	if len(featuresShape) != 1 {
		return nil, fmt.Errorf("failed to build RF model: sequence features are not supported")
	}
	numTrees := hp.Int("trees", DefaultNumTrees)
	if numTrees <= 0 {
		return nil, fmt.Errorf("failed to build RF model: invalid value of trees")
	}
	return &Model{
		Forest:        &randomforest.Forest{},
		NumTrees:      numTrees,
		VoteThreshold: hp.Float("voteThreshold", DefaultVoteThreshold),
	}, nil
}

func (kit *Kit) Train(
	ctx context.Context,
	model queue.Model,
	train, eval queue.SplitData,
	hp *hyper.Combo,
	hist *queue.History,
) (queue.Model, error) {
	m := model.(*Model)
	if train.Labels == nil {
		return nil, fmt.Errorf("failed to train RF model: no labels available")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	truth := train.LabelVector()
	yData := make([]int, len(truth))
	numPositive := 0
	for i, v := range truth {
		yData[i] = int(math.Round(v))
		if yData[i] > 0 {
			numPositive++
		}
	}
	log.Debug().
		Int("numPositive", numPositive).
		Int("dataSize", len(yData)).
		Msg("prepared training vectors")
	m.Forest.Data = randomforest.ForestData{
		X:     train.Features.Rows,
		Class: yData,
	}
	m.Forest.Train(m.NumTrees)

	preds, err := kit.Predict(m, train.Features)
	if err != nil {
		return nil, err
	}
	hist.Record("train_accuracy", accuracy(truth, preds))
	if eval.Features != nil && eval.Labels != nil {
		evalPreds, err := kit.Predict(m, eval.Features)
		if err != nil {
			return nil, err
		}
		hist.Record("eval_accuracy", accuracy(eval.LabelVector(), evalPreds))
	}
	return m, nil
}

// Predict returns one predicted class code per sample. With two
// classes the voting threshold decides; otherwise the most voted class
// wins.
func (kit *Kit) Predict(model queue.Model, features *pipeline.Tensor) ([]float64, error) {
	m := model.(*Model)
	ans := make([]float64, len(features.Rows))
	for i, row := range features.Rows {
		votes := m.Forest.Vote(row)
		if len(votes) == 2 {
			if votes[1] > m.VoteThreshold {
				ans[i] = 1
			}
			continue
		}
		best := 0
		for cls := 1; cls < len(votes); cls++ {
			if votes[cls] > votes[best] {
				best = cls
			}
		}
		ans[i] = float64(best)
	}
	return ans, nil
}

func accuracy(truth, preds []float64) float64 {
	if len(truth) == 0 {
		return 0
	}
	correct := 0
	for i := range truth {
		if math.Round(preds[i]) == math.Round(truth[i]) {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}
