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

package stratify

import (
	"testing"

	"github.com/czcorpus/trainbed/dataset"
	"github.com/stretchr/testify/assert"
)

// binaryLabels returns 100 class labels: 30 ones followed by 70 zeros.
func binaryLabels() *Labels {
	values := make([]float64, 100)
	for i := 0; i < 30; i++ {
		values[i] = 1
	}
	return &Labels{Values: values, DType: dataset.DTypeCategorical}
}

func countClass(labels *Labels, idx []int, class float64) int {
	ans := 0
	for _, i := range idx {
		if labels.Values[i] == class {
			ans++
		}
	}
	return ans
}

func TestRunPartitionsPopulation(t *testing.T) {
	labels := binaryLabels()
	ss, err := Run(100, labels, Config{SizeTest: 0.2, SizeValidation: 0.1, Seed: 7})
	assert.NoError(t, err)

	seen := make(map[int]int)
	for _, name := range ss.SplitNames() {
		for _, idx := range ss.Samples[name] {
			seen[idx]++
		}
	}
	assert.Equal(t, 100, len(seen))
	for idx, cnt := range seen {
		assert.Equal(t, 1, cnt, "sample %d appears %d times", idx, cnt)
	}
}

func TestRunPreservesClassProportions(t *testing.T) {
	labels := binaryLabels()
	ss, err := Run(100, labels, Config{SizeTest: 0.2, SizeValidation: 0.1, Seed: 7})
	assert.NoError(t, err)

	test := ss.Samples[SplitTest]
	assert.Equal(t, 20, len(test))
	assert.Equal(t, 6, countClass(labels, test, 1))

	validation := ss.Samples[SplitValidation]
	assert.Equal(t, 10, len(validation))
	assert.Equal(t, 3, countClass(labels, validation, 1))

	train := ss.Samples[SplitTrain]
	assert.Equal(t, 70, len(train))
	assert.Equal(t, 21, countClass(labels, train, 1))
}

func TestRunIsDeterministic(t *testing.T) {
	labels := binaryLabels()
	conf := Config{SizeTest: 0.3, Seed: 11}
	ss1, err := Run(100, labels, conf)
	assert.NoError(t, err)
	ss2, err := Run(100, labels, conf)
	assert.NoError(t, err)
	assert.Equal(t, ss1.Samples, ss2.Samples)
}

func TestRunSeedChangesAssignment(t *testing.T) {
	labels := binaryLabels()
	ss1, err := Run(100, labels, Config{SizeTest: 0.3, Seed: 1})
	assert.NoError(t, err)
	ss2, err := Run(100, labels, Config{SizeTest: 0.3, Seed: 2})
	assert.NoError(t, err)
	assert.NotEqual(t, ss1.Samples[SplitTest], ss2.Samples[SplitTest])
}

func TestRunInferenceMode(t *testing.T) {
	ss, err := Run(50, nil, Config{})
	assert.NoError(t, err)
	assert.Equal(t, 50, len(ss.Samples[SplitTrain]))
	assert.False(t, ss.HasSplit(SplitTest))
	assert.False(t, ss.Supervised)
}

func TestRunRejectsInvalidSizes(t *testing.T) {
	_, err := Run(100, nil, Config{SizeTest: 1.2})
	assert.Error(t, err)
	var confErr dataset.ConfigError
	assert.ErrorAs(t, err, &confErr)

	_, err = Run(100, nil, Config{SizeValidation: 0.1})
	assert.Error(t, err)

	_, err = Run(100, nil, Config{SizeTest: 0.6, SizeValidation: 0.4})
	assert.Error(t, err)
}

func TestRunRejectsEmptyTestSplit(t *testing.T) {
	_, err := Run(4, nil, Config{SizeTest: 0.05})
	assert.Error(t, err)
}

func TestContinuousLabelsAreBinned(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i)
	}
	labels := &Labels{Values: values, DType: dataset.DTypeFloat}
	ss, err := Run(100, labels, Config{SizeTest: 0.2, Seed: 3})
	assert.NoError(t, err)
	assert.Equal(t, DefaultBinCount, ss.BinCount)

	// each quartile of the value range must contribute equally
	test := ss.Samples[SplitTest]
	assert.Equal(t, 20, len(test))
	perQuartile := make(map[int]int)
	for _, idx := range test {
		perQuartile[idx/25]++
	}
	for q := 0; q < 4; q++ {
		assert.Equal(t, 5, perQuartile[q], "quartile %d", q)
	}
}

func TestValuesToBins(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	bins := ValuesToBins(values, 4)
	assert.Equal(t, []int{0, 0, 1, 1, 2, 2, 3, 3}, bins)
}

func TestValuesToBinsUnsortedInput(t *testing.T) {
	values := []float64{8, 1, 5, 4, 2, 7, 3, 6}
	bins := ValuesToBins(values, 4)
	assert.Equal(t, []int{3, 0, 2, 1, 0, 3, 1, 2}, bins)
}

func TestFoldsPartitionTrainSplit(t *testing.T) {
	labels := binaryLabels()
	conf := Config{SizeTest: 0.2, FoldCount: 4, Seed: 7}
	ss, err := Run(100, labels, conf)
	assert.NoError(t, err)
	fs, err := Folds(ss, labels, conf)
	assert.NoError(t, err)
	assert.Equal(t, 4, fs.FoldCount)

	train := ss.Samples[SplitTrain]
	seen := make(map[int]int)
	for _, fold := range fs.Folds {
		assert.Equal(t, len(train), len(fold.TrainIdx)+len(fold.EvalIdx))
		for _, idx := range fold.EvalIdx {
			seen[idx]++
		}
	}
	// eval sets partition the train split across folds
	assert.Equal(t, len(train), len(seen))
	for idx, cnt := range seen {
		assert.Equal(t, 1, cnt, "sample %d evaluated %d times", idx, cnt)
	}
}

func TestFoldsAreStratified(t *testing.T) {
	labels := binaryLabels()
	conf := Config{SizeTest: 0.2, FoldCount: 4, Seed: 7}
	ss, err := Run(100, labels, conf)
	assert.NoError(t, err)
	fs, err := Folds(ss, labels, conf)
	assert.NoError(t, err)
	for _, fold := range fs.Folds {
		assert.Equal(t, 20, len(fold.EvalIdx))
		assert.Equal(t, 6, countClass(labels, fold.EvalIdx, 1), "fold %d", fold.Index)
	}
}

func TestFoldsRejectTinyBuckets(t *testing.T) {
	values := []float64{0, 0, 0, 0, 0, 0, 0, 0, 1, 1}
	labels := &Labels{Values: values, DType: dataset.DTypeCategorical}
	conf := Config{SizeTest: 0.2, FoldCount: 3, Seed: 1}
	ss, err := Run(10, labels, conf)
	assert.NoError(t, err)
	_, err = Folds(ss, labels, conf)
	assert.Error(t, err)
}

func TestFoldSplitName(t *testing.T) {
	assert.Equal(t, "fold_eval", FoldSplitName(true))
	assert.Equal(t, "fold_train", FoldSplitName(false))
}

func TestCollapseOneHot(t *testing.T) {
	rows := [][]float64{
		{1, 0, 0},
		{0, 0, 1},
		{0, 1, 0},
	}
	assert.Equal(t, []float64{0, 2, 1}, CollapseOneHot(rows))
}
