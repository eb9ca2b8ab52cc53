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

// Package nn adapts a feed-forward neural network to the queue
// runner's trainer interface. Windowed feature tensors are flattened
// into one input vector per window.
package nn

import (
	"context"
	"fmt"
	"math"

	"github.com/patrikeh/go-deep"
	"github.com/patrikeh/go-deep/training"
	"github.com/rs/zerolog/log"

	"github.com/czcorpus/trainbed/hyper"
	"github.com/czcorpus/trainbed/pipeline"
	"github.com/czcorpus/trainbed/queue"
)

const (
	DefaultHiddenSize   = 8
	DefaultNumEpochs    = 100
	DefaultLearningRate = 0.001

	trainerVerbosity = 50
)

// Model wraps the trained network together with its input width so
// prediction can validate incoming tensors.
type Model struct {
	NeuralNet *deep.Neural
	NumInputs int
}

// Kit builds and trains feed-forward networks via the Adam optimizer.
// Recognized hyperparameters: `hidden` (int), `epochs` (int),
// `lr` (float).
type Kit struct {
	Analysis queue.AnalysisType
}

func (kit *Kit) Build(featuresShape, labelShape []int, hp *hyper.Combo) (queue.Model, error) {
	numInputs := 1
	for _, d := range featuresShape {
		numInputs *= d
	}
	if numInputs == 0 {
		return nil, fmt.Errorf("failed to build NN model: empty feature shape")
	}
	numOutputs := 1
	if len(labelShape) > 0 {
		numOutputs = labelShape[0]
	}
	hidden := hp.Int("hidden", DefaultHiddenSize)
	if hidden <= 0 {
		return nil, fmt.Errorf("failed to build NN model: invalid value of hidden")
	}
	mode := deep.ModeRegression
	if kit.Analysis == queue.AnalysisClassification {
		if numOutputs > 1 {
			mode = deep.ModeMultiClass

		} else {
			mode = deep.ModeBinary
		}
	}
	net := deep.NewNeural(&deep.Config{
		Inputs:     numInputs,
		Layout:     []int{hidden, numOutputs},
		Activation: deep.ActivationReLU,
		Mode:       mode,
		Weight:     deep.NewUniform(1.0, 0.0),
		Bias:       true,
	})
	return &Model{NeuralNet: net, NumInputs: numInputs}, nil
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
		return nil, fmt.Errorf("failed to train NN model: no labels available")
	}
	trn, err := kit.examples(m, train)
	if err != nil {
		return nil, err
	}
	heldout := trn
	if eval.Features != nil && eval.Labels != nil && eval.Features.SampleCount() > 0 {
		heldout, err = kit.examples(m, eval)
		if err != nil {
			return nil, err
		}
	}
	numEpochs := hp.Int("epochs", DefaultNumEpochs)
	learningRate := hp.Float("lr", DefaultLearningRate)
	log.Debug().
		Int("dataSize", len(trn)).
		Int("epochs", numEpochs).
		Float64("lr", learningRate).
		Msg("prepared training vectors")
	optimizer := training.NewAdam(learningRate, 0.9, 0.999, 1e-8)
	trainer := training.NewTrainer(optimizer, trainerVerbosity)
	trainer.TrainContext(ctx, m.NeuralNet, trn, heldout, numEpochs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hist.Record("train_mse", meanSquaredError(m.NeuralNet, trn))
	hist.Record("eval_mse", meanSquaredError(m.NeuralNet, heldout))
	return m, nil
}

// Predict returns one value per sample: the raw output for single
// output networks, the most activated class code otherwise.
func (kit *Kit) Predict(model queue.Model, features *pipeline.Tensor) ([]float64, error) {
	m := model.(*Model)
	inputs, err := featureVectors(features)
	if err != nil {
		return nil, err
	}
	ans := make([]float64, len(inputs))
	for i, input := range inputs {
		if len(input) != m.NumInputs {
			return nil, fmt.Errorf(
				"failed to predict: sample has %d features, model expects %d",
				len(input), m.NumInputs)
		}
		out := m.NeuralNet.Predict(input)
		if len(out) == 1 {
			if kit.Analysis == queue.AnalysisClassification {
				ans[i] = math.Round(out[0])

			} else {
				ans[i] = out[0]
			}
			continue
		}
		best := 0
		for j := 1; j < len(out); j++ {
			if out[j] > out[best] {
				best = j
			}
		}
		ans[i] = float64(best)
	}
	return ans, nil
}

func (kit *Kit) examples(m *Model, data queue.SplitData) (training.Examples, error) {
	inputs, err := featureVectors(data.Features)
	if err != nil {
		return nil, err
	}
	ans := make(training.Examples, 0, len(inputs))
	for i, input := range inputs {
		if len(input) != m.NumInputs {
			return nil, fmt.Errorf(
				"failed to prepare examples: sample has %d features, model expects %d",
				len(input), m.NumInputs)
		}
		ans = append(ans, training.Example{
			Input:    input,
			Response: data.Labels.Rows[i],
		})
	}
	return ans, nil
}

// featureVectors flattens a tensor into one vector per sample,
// concatenating the timesteps of windowed data.
func featureVectors(t *pipeline.Tensor) ([][]float64, error) {
	if t.Seq == nil {
		return t.Rows, nil
	}
	ans := make([][]float64, len(t.Seq))
	for i, window := range t.Seq {
		flat := make([]float64, 0, len(window)*len(t.Columns))
		for _, step := range window {
			flat = append(flat, step...)
		}
		ans[i] = flat
	}
	return ans, nil
}

func meanSquaredError(net *deep.Neural, data training.Examples) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, ex := range data {
		out := net.Predict(ex.Input)
		for j := range out {
			d := out[j] - ex.Response[j]
			sum += d * d
		}
	}
	return sum / float64(len(data))
}
