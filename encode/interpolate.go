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
	"fmt"
	"math"
)

// Interpolator fills missing values (NaN) along the sample/time axis
// of each matched column using linear interpolation between the nearest
// valid neighbours. Leading and trailing gaps are filled with the
// nearest valid value. It participates in the step chain like an
// encoder but learns nothing from the fit partition, so it cannot leak.
type Interpolator struct {
	width int
	fit   bool
}

func (ip *Interpolator) Name() string { return "LinearInterpolator" }

func (ip *Interpolator) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("LinearInterpolator: no rows to fit")
	}
	ip.width = len(rows[0])
	ip.fit = true
	return nil
}

func (ip *Interpolator) Transform(rows [][]float64) ([][]float64, error) {
	if err := checkFitted(ip.Name(), ip.fit); err != nil {
		return nil, err
	}
	if err := checkWidth(ip.Name(), rows, ip.width); err != nil {
		return nil, err
	}
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		ans[i] = append([]float64{}, row...)
	}
	for j := 0; j < ip.width; j++ {
		col := make([]float64, len(ans))
		for i := range ans {
			col[i] = ans[i][j]
		}
		if err := interpolateColumn(col); err != nil {
			return nil, fmt.Errorf("LinearInterpolator: column %d: %w", j, err)
		}
		for i := range ans {
			ans[i][j] = col[i]
		}
	}
	return ans, nil
}

func (ip *Interpolator) OutputColumns(in []string) []string { return in }

func interpolateColumn(col []float64) error {
	prevValid := -1
	for i := 0; i <= len(col); i++ {
		atEnd := i == len(col)
		if !atEnd && math.IsNaN(col[i]) {
			continue
		}
		if !atEnd && prevValid == i-1 {
			prevValid = i
			continue
		}
		// a gap [prevValid+1, i-1] just closed (or the column ended)
		switch {
		case prevValid == -1 && atEnd:
			return fmt.Errorf("no valid values to interpolate from")
		case prevValid == -1:
			for k := 0; k < i; k++ {
				col[k] = col[i] // leading gap: nearest-fill
			}
		case atEnd:
			for k := prevValid + 1; k < len(col); k++ {
				col[k] = col[prevValid] // trailing gap: nearest-fill
			}
		default:
			span := float64(i - prevValid)
			for k := prevValid + 1; k < i; k++ {
				t := float64(k-prevValid) / span
				col[k] = col[prevValid]*(1-t) + col[i]*t
			}
		}
		if !atEnd {
			prevValid = i
		}
	}
	return nil
}
