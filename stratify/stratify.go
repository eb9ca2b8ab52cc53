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

// Package stratify partitions sample indices into named splits and
// cross-validation folds while preserving the label distribution of
// the whole population. Continuous labels are stratified via quantile
// binning; folds are always carved from the train split only.
package stratify

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/czcorpus/trainbed/dataset"
	"github.com/rs/zerolog/log"
)

const (
	SplitTrain      = "train"
	SplitValidation = "validation"
	SplitTest       = "test"

	// DefaultBinCount is used for continuous-label stratification
	// when the caller does not specify a bin count.
	DefaultBinCount = 4
)

// Config declares how the sample population should be partitioned.
// Zero SizeTest produces a single train split holding every sample
// (used by inference pipelines).
type Config struct {
	SizeTest       float64 `json:"sizeTest"`
	SizeValidation float64 `json:"sizeValidation"`

	// FoldCount >= 2 additionally carves cross-validation folds
	// out of the train split.
	FoldCount int `json:"foldCount"`

	// BinCount is the number of quantile buckets used to stratify
	// continuous labels.
	BinCount int `json:"binCount"`

	Seed uint64 `json:"seed"`
}

type SplitSize struct {
	Percent float64 `json:"percent"`
	Count   int     `json:"count"`
}

// Splitset is the materialized output of one stratifier run: a mapping
// from split name to sorted sample indices. The splits partition the
// population exactly once.
type Splitset struct {
	Samples    map[string][]int     `json:"samples"`
	Sizes      map[string]SplitSize `json:"sizes"`
	Supervised bool                 `json:"supervised"`
	BinCount   int                  `json:"binCount"`
	Seed       uint64               `json:"seed"`
}

func (ss *Splitset) HasSplit(name string) bool {
	_, ok := ss.Samples[name]
	return ok
}

// SplitNames returns present split names in logical order
// (train, validation, test).
func (ss *Splitset) SplitNames() []string {
	ans := make([]string, 0, 3)
	for _, name := range []string{SplitTrain, SplitValidation, SplitTest} {
		if ss.HasSplit(name) {
			ans = append(ans, name)
		}
	}
	return ans
}

// Fold is one train/evaluation rotation of a cross-validation scheme.
// Both index lists address the original sample population.
type Fold struct {
	Index    int   `json:"index"`
	TrainIdx []int `json:"trainIdx"`
	EvalIdx  []int `json:"evalIdx"`
}

type Foldset struct {
	FoldCount int    `json:"foldCount"`
	BinCount  int    `json:"binCount"`
	Seed      uint64 `json:"seed"`
	Folds     []Fold `json:"folds"`
}

// Labels carries the stratification source. Values must have one entry
// per sample. A nil Labels means unstratified splitting.
type Labels struct {
	Values []float64
	DType  dataset.DType
}

// CollapseOneHot reduces a one-hot encoded label matrix to ordinal
// class values via argmax so it can still be stratified.
func CollapseOneHot(rows [][]float64) []float64 {
	ans := make([]float64, len(rows))
	for i, row := range rows {
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		ans[i] = float64(best)
	}
	return ans
}

func (conf Config) validate(sampleCount int) error {
	if conf.SizeTest != 0 && (conf.SizeTest <= 0.0 || conf.SizeTest >= 1.0) {
		return dataset.NewConfigError("sizeTest must be between 0.0 and 1.0 (got %f)", conf.SizeTest)
	}
	if conf.SizeValidation != 0 {
		if conf.SizeTest == 0 {
			return dataset.NewConfigError("sizeValidation requires sizeTest to be set")
		}
		if conf.SizeValidation <= 0.0 || conf.SizeValidation >= 1.0 {
			return dataset.NewConfigError("sizeValidation must be between 0.0 and 1.0 (got %f)", conf.SizeValidation)
		}
		if conf.SizeTest+conf.SizeValidation >= 1.0 {
			return dataset.NewConfigError(
				"sizeTest + sizeValidation must leave room for the training set (got %f)",
				conf.SizeTest+conf.SizeValidation)
		}
	}
	if conf.FoldCount != 0 {
		if conf.FoldCount < 2 {
			return dataset.NewConfigError("cross-validation requires foldCount >= 2 (got %d)", conf.FoldCount)
		}
		if conf.FoldCount == 2 {
			log.Warn().Msg("foldCount == 2 - consider using a validation split instead of two folds")
		}
	}
	if sampleCount < 2 {
		return dataset.NewConfigError("cannot split %d samples", sampleCount)
	}
	return nil
}

// bucketize assigns each sample to a stratification bucket. Classification
// labels map 1:1 to buckets; continuous labels are first binned into
// binCount quantile buckets. Nil labels produce a single bucket.
func bucketize(n int, labels *Labels, binCount int) (assignment []int, usedBins int, err error) {
	assignment = make([]int, n)
	if labels == nil {
		return assignment, 0, nil
	}
	if len(labels.Values) != n {
		return nil, 0, dataset.NewConfigError(
			"label array has %d values but the population has %d samples", len(labels.Values), n)
	}
	if labels.DType.IsNumericContinuous() {
		if binCount == 0 {
			binCount = DefaultBinCount
			log.Info().Int("binCount", binCount).Msg("no binCount provided for continuous label, using default")
		}
		assignment = ValuesToBins(labels.Values, binCount)
		return assignment, binCount, nil
	}
	classes := make(map[float64]int)
	for i, v := range labels.Values {
		id, ok := classes[v]
		if !ok {
			id = len(classes)
			classes[v] = id
		}
		assignment[i] = id
	}
	return assignment, 0, nil
}

// buckets groups member indices by their bucket assignment. Bucket order
// is deterministic (ascending bucket id as produced by bucketize over
// the first occurrence order is not stable, so we sort member lists by
// the smallest member).
func buckets(members []int, assignment []int) [][]int {
	byBucket := make(map[int][]int)
	for _, i := range members {
		byBucket[assignment[i]] = append(byBucket[assignment[i]], i)
	}
	keys := make([]int, 0, len(byBucket))
	for k := range byBucket {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	ans := make([][]int, len(keys))
	for i, k := range keys {
		ans[i] = byBucket[k]
	}
	return ans
}

// Run produces a Splitset covering all n sample indices exactly once.
// With labels provided, each split preserves the label distribution of
// the population within rounding error.
func Run(n int, labels *Labels, conf Config) (*Splitset, error) {
	if err := conf.validate(n); err != nil {
		return nil, err
	}
	ss := &Splitset{
		Samples:    make(map[string][]int),
		Sizes:      make(map[string]SplitSize),
		Supervised: labels != nil,
		Seed:       conf.Seed,
	}
	if conf.SizeTest == 0 {
		// inference mode: everything is "train"
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		ss.Samples[SplitTrain] = all
		ss.Sizes[SplitTrain] = SplitSize{Percent: 1.0, Count: n}
		return ss, nil
	}

	assignment, usedBins, err := bucketize(n, labels, conf.BinCount)
	if err != nil {
		return nil, err
	}
	ss.BinCount = usedBins

	rng := rand.New(rand.NewPCG(conf.Seed, conf.Seed^0x9e3779b97f4a7c15))
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	var train, validation, test []int
	// The second carve uses a rescaled fraction so that the requested
	// validation proportion applies to the whole population, not to
	// the post-test remainder.
	valFraction := 0.0
	if conf.SizeValidation != 0 {
		valFraction = (1.0 / (1.0 - conf.SizeTest)) * conf.SizeValidation
	}
	for _, bucket := range buckets(all, assignment) {
		shuffled := append([]int{}, bucket...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		nTest := int(math.Round(float64(len(shuffled)) * conf.SizeTest))
		test = append(test, shuffled[:nTest]...)
		rest := shuffled[nTest:]
		if valFraction > 0 {
			nVal := int(math.Round(float64(len(rest)) * valFraction))
			validation = append(validation, rest[:nVal]...)
			rest = rest[nVal:]
		}
		train = append(train, rest...)
	}
	if len(test) == 0 {
		return nil, dataset.NewConfigError("requested sizeTest %f produces an empty test split", conf.SizeTest)
	}
	if conf.SizeValidation != 0 && len(validation) == 0 {
		return nil, dataset.NewConfigError(
			"requested sizeValidation %f produces an empty validation split", conf.SizeValidation)
	}
	if len(train) == 0 {
		return nil, dataset.NewConfigError("requested split proportions leave an empty train split")
	}
	sort.Ints(train)
	sort.Ints(test)
	ss.Samples[SplitTrain] = train
	ss.Samples[SplitTest] = test
	sizeTrain := 1.0 - conf.SizeTest
	if conf.SizeValidation != 0 {
		sort.Ints(validation)
		ss.Samples[SplitValidation] = validation
		ss.Sizes[SplitValidation] = SplitSize{Percent: conf.SizeValidation, Count: len(validation)}
		sizeTrain -= conf.SizeValidation
	}
	ss.Sizes[SplitTrain] = SplitSize{Percent: sizeTrain, Count: len(train)}
	ss.Sizes[SplitTest] = SplitSize{Percent: conf.SizeTest, Count: len(test)}
	log.Debug().
		Int("train", len(train)).
		Int("validation", len(validation)).
		Int("test", len(test)).
		Msg("created splitset")
	return ss, nil
}

// Folds carves conf.FoldCount cross-validation folds out of the train
// split of ss, reusing the same stratification rule. Test and validation
// samples are never folded. When the train size is not divisible by the
// fold count, the first folds receive one extra evaluation sample each
// in ascending fold order.
func Folds(ss *Splitset, labels *Labels, conf Config) (*Foldset, error) {
	if conf.FoldCount < 2 {
		return nil, dataset.NewConfigError("cross-validation requires foldCount >= 2 (got %d)", conf.FoldCount)
	}
	trainIdx := ss.Samples[SplitTrain]
	if conf.FoldCount > len(trainIdx) {
		return nil, dataset.NewConfigError(
			"foldCount %d exceeds the number of train samples %d", conf.FoldCount, len(trainIdx))
	}
	n := 0
	for _, s := range ss.Samples {
		n += len(s)
	}
	assignment, _, err := bucketize(n, labels, pickBinCount(conf.BinCount, ss.BinCount))
	if err != nil {
		return nil, err
	}
	if labels != nil {
		for _, bucket := range buckets(trainIdx, assignment) {
			if len(bucket) < conf.FoldCount {
				return nil, dataset.NewConfigError(
					"stratification bucket of %d train samples cannot span %d folds",
					len(bucket), conf.FoldCount)
			}
		}
	}
	if rem := len(trainIdx) % conf.FoldCount; rem != 0 {
		log.Warn().
			Int("trainCount", len(trainIdx)).
			Int("foldCount", conf.FoldCount).
			Int("remainder", rem).
			Msg("train split is not evenly divisible by foldCount, first folds receive one extra sample")
	}

	rng := rand.New(rand.NewPCG(conf.Seed^0xa5a5a5a5a5a5a5a5, conf.Seed))
	evalSets := make([][]int, conf.FoldCount)
	for _, bucket := range buckets(trainIdx, assignment) {
		shuffled := append([]int{}, bucket...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		for j, idx := range shuffled {
			f := j % conf.FoldCount
			evalSets[f] = append(evalSets[f], idx)
		}
	}
	fs := &Foldset{
		FoldCount: conf.FoldCount,
		BinCount:  pickBinCount(conf.BinCount, ss.BinCount),
		Seed:      conf.Seed,
		Folds:     make([]Fold, conf.FoldCount),
	}
	inEval := make(map[int]int, len(trainIdx)) // sample -> fold
	for f, ev := range evalSets {
		for _, idx := range ev {
			inEval[idx] = f
		}
	}
	for f := 0; f < conf.FoldCount; f++ {
		var ftrain []int
		for _, idx := range trainIdx {
			if inEval[idx] != f {
				ftrain = append(ftrain, idx)
			}
		}
		ev := append([]int{}, evalSets[f]...)
		sort.Ints(ev)
		sort.Ints(ftrain)
		fs.Folds[f] = Fold{Index: f, TrainIdx: ftrain, EvalIdx: ev}
	}
	return fs, nil
}

func pickBinCount(confBins, splitsetBins int) int {
	if confBins != 0 {
		return confBins
	}
	return splitsetBins
}

// FoldSplitName names the per-fold partitions used as cache keys.
func FoldSplitName(eval bool) string {
	if eval {
		return "fold_eval"
	}
	return "fold_train"
}

func (f Fold) String() string {
	return fmt.Sprintf("Fold{%d, train: %d, eval: %d}", f.Index, len(f.TrainIdx), len(f.EvalIdx))
}
