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
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ValuesToBins assigns each continuous value to one of binCount quantile
// buckets so a regression label can be stratified like a categorical one.
// Bucket edges are the k/binCount empirical quantiles of the data itself,
// which keeps bucket populations near-equal regardless of the value
// distribution.
func ValuesToBins(values []float64, binCount int) []int {
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	edges := make([]float64, binCount-1)
	for k := 1; k < binCount; k++ {
		edges[k-1] = stat.Quantile(float64(k)/float64(binCount), stat.Empirical, sorted, nil)
	}
	ans := make([]int, len(values))
	for i, v := range values {
		// smallest bucket whose upper edge >= v, i.e. right-closed intervals
		ans[i] = sort.SearchFloat64s(edges, v)
	}
	return ans
}
