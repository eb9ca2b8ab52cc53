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

package encode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardScalerRoundTrip(t *testing.T) {
	rows := [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}}
	sc := &StandardScaler{}
	assert.NoError(t, sc.Fit(rows))
	out, err := sc.Transform(rows)
	assert.NoError(t, err)

	var mean0 float64
	for _, row := range out {
		mean0 += row[0]
	}
	assert.InDelta(t, 0.0, mean0/float64(len(out)), 1e-9)

	back, err := sc.InverseTransform(out)
	assert.NoError(t, err)
	for i := range rows {
		assert.InDelta(t, rows[i][0], back[i][0], 1e-9)
		assert.InDelta(t, rows[i][1], back[i][1], 1e-9)
	}
}

func TestStandardScalerRequiresFit(t *testing.T) {
	sc := &StandardScaler{}
	_, err := sc.Transform([][]float64{{1}})
	assert.Error(t, err)
}

func TestStandardScalerIgnoresUnseenData(t *testing.T) {
	fitRows := [][]float64{{1}, {2}, {3}}
	sc1 := &StandardScaler{}
	assert.NoError(t, sc1.Fit(fitRows))

	// fitting a second instance on a superset must differ, proving the
	// fitted state comes only from the fit partition
	sc2 := &StandardScaler{}
	assert.NoError(t, sc2.Fit(append(append([][]float64{}, fitRows...), []float64{100})))
	assert.Equal(t, []float64{2}, sc1.Mean())
	assert.NotEqual(t, sc1.Mean(), sc2.Mean())
}

func TestInverseTransformChecksWidth(t *testing.T) {
	fitRows := [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}}
	encoders := []Encoder{
		&StandardScaler{},
		&MinMaxScaler{},
		&RobustScaler{},
		&OrdinalEncoder{},
	}
	for _, enc := range encoders {
		assert.NoError(t, enc.Fit(fitRows))
		inv, ok := enc.(Invertible)
		assert.True(t, ok, enc.Name())
		_, err := inv.InverseTransform([][]float64{{1, 2, 3}})
		assert.Error(t, err, enc.Name())
	}
}

func TestMinMaxScalerRange(t *testing.T) {
	rows := [][]float64{{2}, {4}, {6}, {10}}
	sc := &MinMaxScaler{}
	assert.NoError(t, sc.Fit(rows))
	out, err := sc.Transform(rows)
	assert.NoError(t, err)
	assert.InDelta(t, 0.0, out[0][0], 1e-9)
	assert.InDelta(t, 1.0, out[3][0], 1e-9)

	back, err := sc.InverseTransform(out)
	assert.NoError(t, err)
	assert.InDelta(t, 4.0, back[1][0], 1e-9)
}

func TestRobustScalerCentersOnMedian(t *testing.T) {
	rows := [][]float64{{1}, {2}, {3}, {4}, {100}}
	sc := &RobustScaler{}
	assert.NoError(t, sc.Fit(rows))
	out, err := sc.Transform([][]float64{{3}})
	assert.NoError(t, err)
	assert.InDelta(t, 0.0, out[0][0], 1e-9)
}

func TestOrdinalEncoder(t *testing.T) {
	rows := [][]float64{{10}, {30}, {20}, {10}}
	enc := &OrdinalEncoder{}
	assert.NoError(t, enc.Fit(rows))
	out, err := enc.Transform(rows)
	assert.NoError(t, err)
	assert.Equal(t, [][]float64{{0}, {2}, {1}, {0}}, out)

	back, err := enc.InverseTransform(out)
	assert.NoError(t, err)
	assert.Equal(t, rows, back)
}

func TestOrdinalEncoderRejectsUnseenValue(t *testing.T) {
	enc := &OrdinalEncoder{}
	assert.NoError(t, enc.Fit([][]float64{{1}, {2}}))
	_, err := enc.Transform([][]float64{{3}})
	assert.Error(t, err)
}

func TestOneHotEncoder(t *testing.T) {
	rows := [][]float64{{0}, {1}, {2}, {1}}
	enc := &OneHotEncoder{}
	assert.NoError(t, enc.Fit(rows))
	out, err := enc.Transform(rows)
	assert.NoError(t, err)
	assert.Equal(t, [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0, 1, 0},
	}, out)
	assert.Equal(t, []string{"material=0", "material=1", "material=2"},
		enc.OutputColumns([]string{"material"}))
}

func TestOneHotEncoderSparseForcedDense(t *testing.T) {
	enc := &OneHotEncoder{Sparse: true}
	assert.NoError(t, enc.Fit([][]float64{{0}, {1}}))
	assert.False(t, enc.Sparse)
}

func TestBinarizer(t *testing.T) {
	enc := &Binarizer{Threshold: 0.5}
	assert.NoError(t, enc.Fit([][]float64{{0}}))
	out, err := enc.Transform([][]float64{{0.2}, {0.5}, {0.7}})
	assert.NoError(t, err)
	assert.Equal(t, [][]float64{{0}, {0}, {1}}, out)
}

func TestInterpolatorFillsGaps(t *testing.T) {
	ip := &Interpolator{}
	rows := [][]float64{{1}, {math.NaN()}, {3}, {math.NaN()}, {math.NaN()}, {6}}
	assert.NoError(t, ip.Fit(rows))
	out, err := ip.Transform(rows)
	assert.NoError(t, err)
	assert.InDelta(t, 2.0, out[1][0], 1e-9)
	assert.InDelta(t, 4.0, out[3][0], 1e-9)
	assert.InDelta(t, 5.0, out[4][0], 1e-9)
}

func TestInterpolatorEdgeGaps(t *testing.T) {
	ip := &Interpolator{}
	rows := [][]float64{{math.NaN()}, {2}, {3}, {math.NaN()}}
	assert.NoError(t, ip.Fit(rows))
	out, err := ip.Transform(rows)
	assert.NoError(t, err)
	assert.InDelta(t, 2.0, out[0][0], 1e-9)
	assert.InDelta(t, 3.0, out[3][0], 1e-9)
}
