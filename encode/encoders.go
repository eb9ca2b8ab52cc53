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
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// Encoder is a fit/transform numeric column encoder. Fit consumes only
// the designated fit-source partition; Transform may then be applied to
// any partition without refitting.
type Encoder interface {
	// Name identifies the encoder kind in logs and cache metadata.
	Name() string
	// Fit learns the encoder parameters from (rows x cols) data.
	Fit(rows [][]float64) error
	// Transform encodes (rows x cols) data; the column count must match
	// the fitted one. The output column count may differ (one-hot).
	Transform(rows [][]float64) ([][]float64, error)
	// OutputColumns maps input column names to output column names.
	OutputColumns(in []string) []string
}

// Invertible is implemented by encoders whose transform can be reversed
// within numeric tolerance.
type Invertible interface {
	InverseTransform(rows [][]float64) ([][]float64, error)
}

func column(rows [][]float64, j int) []float64 {
	ans := make([]float64, len(rows))
	for i, row := range rows {
		ans[i] = row[j]
	}
	return ans
}

func checkFitted(name string, fitted bool) error {
	if !fitted {
		return fmt.Errorf("%s: transform called before fit", name)
	}
	return nil
}

func checkWidth(name string, rows [][]float64, width int) error {
	if len(rows) > 0 && len(rows[0]) != width {
		return fmt.Errorf("%s: fitted on %d columns but got %d", name, width, len(rows[0]))
	}
	return nil
}

// ---------------------- StandardScaler ----------------------

// StandardScaler centers each column to zero mean and unit variance.
type StandardScaler struct {
	mean, std []float64
}

func (s *StandardScaler) Name() string { return "StandardScaler" }

func (s *StandardScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("StandardScaler: no rows to fit")
	}
	width := len(rows[0])
	s.mean = make([]float64, width)
	s.std = make([]float64, width)
	for j := 0; j < width; j++ {
		col := column(rows, j)
		s.mean[j] = stat.Mean(col, nil)
		s.std[j] = stat.StdDev(col, nil)
		if s.std[j] == 0 || math.IsNaN(s.std[j]) {
			s.std[j] = 1 // constant column
		}
	}
	return nil
}

func (s *StandardScaler) Transform(rows [][]float64) ([][]float64, error) {
	if err := checkFitted(s.Name(), s.mean != nil); err != nil {
		return nil, err
	}
	if err := checkWidth(s.Name(), rows, len(s.mean)); err != nil {
		return nil, err
	}
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(row))
		for j, v := range row {
			out[j] = (v - s.mean[j]) / s.std[j]
		}
		ans[i] = out
	}
	return ans, nil
}

func (s *StandardScaler) InverseTransform(rows [][]float64) ([][]float64, error) {
	if err := checkFitted(s.Name(), s.mean != nil); err != nil {
		return nil, err
	}
	if err := checkWidth(s.Name(), rows, len(s.mean)); err != nil {
		return nil, err
	}
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(row))
		for j, v := range row {
			out[j] = v*s.std[j] + s.mean[j]
		}
		ans[i] = out
	}
	return ans, nil
}

func (s *StandardScaler) OutputColumns(in []string) []string { return in }

// Mean exposes the fitted per-column means (tested to prove the fit is
// a pure function of the train partition).
func (s *StandardScaler) Mean() []float64 { return s.mean }

// ---------------------- MinMaxScaler ----------------------

// MinMaxScaler rescales each column into [0, 1] based on the fitted
// per-column range.
type MinMaxScaler struct {
	min, max []float64
}

func (s *MinMaxScaler) Name() string { return "MinMaxScaler" }

func (s *MinMaxScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("MinMaxScaler: no rows to fit")
	}
	width := len(rows[0])
	s.min = make([]float64, width)
	s.max = make([]float64, width)
	for j := 0; j < width; j++ {
		col := column(rows, j)
		s.min[j] = col[0]
		s.max[j] = col[0]
		for _, v := range col {
			if v < s.min[j] {
				s.min[j] = v
			}
			if v > s.max[j] {
				s.max[j] = v
			}
		}
	}
	return nil
}

func (s *MinMaxScaler) Transform(rows [][]float64) ([][]float64, error) {
	if err := checkFitted(s.Name(), s.min != nil); err != nil {
		return nil, err
	}
	if err := checkWidth(s.Name(), rows, len(s.min)); err != nil {
		return nil, err
	}
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(row))
		for j, v := range row {
			if s.max[j] == s.min[j] {
				out[j] = 0
			} else {
				out[j] = (v - s.min[j]) / (s.max[j] - s.min[j])
			}
		}
		ans[i] = out
	}
	return ans, nil
}

func (s *MinMaxScaler) InverseTransform(rows [][]float64) ([][]float64, error) {
	if err := checkFitted(s.Name(), s.min != nil); err != nil {
		return nil, err
	}
	if err := checkWidth(s.Name(), rows, len(s.min)); err != nil {
		return nil, err
	}
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(row))
		for j, v := range row {
			out[j] = v*(s.max[j]-s.min[j]) + s.min[j]
		}
		ans[i] = out
	}
	return ans, nil
}

func (s *MinMaxScaler) OutputColumns(in []string) []string { return in }

// ---------------------- RobustScaler ----------------------

// RobustScaler centers on the median and scales by the interquartile
// range, making it tolerant to outliers in the fit data.
type RobustScaler struct {
	median, iqr []float64
}

func (s *RobustScaler) Name() string { return "RobustScaler" }

func (s *RobustScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("RobustScaler: no rows to fit")
	}
	width := len(rows[0])
	s.median = make([]float64, width)
	s.iqr = make([]float64, width)
	for j := 0; j < width; j++ {
		col := column(rows, j)
		sort.Float64s(col)
		s.median[j] = stat.Quantile(0.5, stat.Empirical, col, nil)
		q1 := stat.Quantile(0.25, stat.Empirical, col, nil)
		q3 := stat.Quantile(0.75, stat.Empirical, col, nil)
		s.iqr[j] = q3 - q1
		if s.iqr[j] == 0 {
			s.iqr[j] = 1
		}
	}
	return nil
}

func (s *RobustScaler) Transform(rows [][]float64) ([][]float64, error) {
	if err := checkFitted(s.Name(), s.median != nil); err != nil {
		return nil, err
	}
	if err := checkWidth(s.Name(), rows, len(s.median)); err != nil {
		return nil, err
	}
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(row))
		for j, v := range row {
			out[j] = (v - s.median[j]) / s.iqr[j]
		}
		ans[i] = out
	}
	return ans, nil
}

func (s *RobustScaler) InverseTransform(rows [][]float64) ([][]float64, error) {
	if err := checkFitted(s.Name(), s.median != nil); err != nil {
		return nil, err
	}
	if err := checkWidth(s.Name(), rows, len(s.median)); err != nil {
		return nil, err
	}
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(row))
		for j, v := range row {
			out[j] = v*s.iqr[j] + s.median[j]
		}
		ans[i] = out
	}
	return ans, nil
}

func (s *RobustScaler) OutputColumns(in []string) []string { return in }

// ---------------------- OrdinalEncoder ----------------------

// OrdinalEncoder maps the distinct values of each column to ordinal
// codes 0..k-1 in ascending value order. Values unseen during fit
// cause a transform error.
type OrdinalEncoder struct {
	categories [][]float64
}

func (e *OrdinalEncoder) Name() string { return "OrdinalEncoder" }

func (e *OrdinalEncoder) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("OrdinalEncoder: no rows to fit")
	}
	width := len(rows[0])
	e.categories = make([][]float64, width)
	for j := 0; j < width; j++ {
		seen := make(map[float64]bool)
		for _, row := range rows {
			seen[row[j]] = true
		}
		cats := make([]float64, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Float64s(cats)
		e.categories[j] = cats
	}
	return nil
}

func (e *OrdinalEncoder) code(j int, v float64) (int, error) {
	pos := sort.SearchFloat64s(e.categories[j], v)
	if pos == len(e.categories[j]) || e.categories[j][pos] != v {
		return 0, fmt.Errorf("OrdinalEncoder: value %v in column %d was not seen during fit", v, j)
	}
	return pos, nil
}

func (e *OrdinalEncoder) Transform(rows [][]float64) ([][]float64, error) {
	if err := checkFitted(e.Name(), e.categories != nil); err != nil {
		return nil, err
	}
	if err := checkWidth(e.Name(), rows, len(e.categories)); err != nil {
		return nil, err
	}
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(row))
		for j, v := range row {
			code, err := e.code(j, v)
			if err != nil {
				return nil, err
			}
			out[j] = float64(code)
		}
		ans[i] = out
	}
	return ans, nil
}

func (e *OrdinalEncoder) InverseTransform(rows [][]float64) ([][]float64, error) {
	if err := checkFitted(e.Name(), e.categories != nil); err != nil {
		return nil, err
	}
	if err := checkWidth(e.Name(), rows, len(e.categories)); err != nil {
		return nil, err
	}
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(row))
		for j, v := range row {
			code := int(math.Round(v))
			if code < 0 || code >= len(e.categories[j]) {
				return nil, fmt.Errorf("OrdinalEncoder: code %d out of range for column %d", code, j)
			}
			out[j] = e.categories[j][code]
		}
		ans[i] = out
	}
	return ans, nil
}

func (e *OrdinalEncoder) OutputColumns(in []string) []string { return in }

// ---------------------- OneHotEncoder ----------------------

// OneHotEncoder expands each column into one indicator column per
// distinct fitted value, named `col=value`.
type OneHotEncoder struct {
	// Sparse output is not supported by downstream tensor assembly;
	// requesting it is overridden with a notice rather than failing.
	Sparse bool

	categories [][]float64
}

func (e *OneHotEncoder) Name() string { return "OneHotEncoder" }

func (e *OneHotEncoder) Fit(rows [][]float64) error {
	if e.Sparse {
		log.Info().Msg("OneHotEncoder: sparse output forced to dense for downstream tensor compatibility")
		e.Sparse = false
	}
	if len(rows) == 0 {
		return fmt.Errorf("OneHotEncoder: no rows to fit")
	}
	width := len(rows[0])
	e.categories = make([][]float64, width)
	for j := 0; j < width; j++ {
		seen := make(map[float64]bool)
		for _, row := range rows {
			seen[row[j]] = true
		}
		cats := make([]float64, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Float64s(cats)
		e.categories[j] = cats
	}
	return nil
}

func (e *OneHotEncoder) Transform(rows [][]float64) ([][]float64, error) {
	if err := checkFitted(e.Name(), e.categories != nil); err != nil {
		return nil, err
	}
	if err := checkWidth(e.Name(), rows, len(e.categories)); err != nil {
		return nil, err
	}
	outWidth := 0
	for _, cats := range e.categories {
		outWidth += len(cats)
	}
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, outWidth)
		offset := 0
		for j, v := range row {
			pos := sort.SearchFloat64s(e.categories[j], v)
			if pos == len(e.categories[j]) || e.categories[j][pos] != v {
				return nil, fmt.Errorf("OneHotEncoder: value %v in column %d was not seen during fit", v, j)
			}
			out[offset+pos] = 1
			offset += len(e.categories[j])
		}
		ans[i] = out
	}
	return ans, nil
}

func (e *OneHotEncoder) OutputColumns(in []string) []string {
	var ans []string
	for j, name := range in {
		for _, v := range e.categories[j] {
			ans = append(ans, fmt.Sprintf("%s=%v", name, v))
		}
	}
	return ans
}

// Categories exposes the fitted per-column category values.
func (e *OneHotEncoder) Categories() [][]float64 { return e.categories }

// ---------------------- Binarizer ----------------------

// Binarizer maps values to 1 when strictly above Threshold, else 0.
type Binarizer struct {
	Threshold float64

	width int
	fit   bool
}

func (e *Binarizer) Name() string { return "Binarizer" }

func (e *Binarizer) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("Binarizer: no rows to fit")
	}
	e.width = len(rows[0])
	e.fit = true
	return nil
}

func (e *Binarizer) Transform(rows [][]float64) ([][]float64, error) {
	if err := checkFitted(e.Name(), e.fit); err != nil {
		return nil, err
	}
	if err := checkWidth(e.Name(), rows, e.width); err != nil {
		return nil, err
	}
	ans := make([][]float64, len(rows))
	for i, row := range rows {
		out := make([]float64, len(row))
		for j, v := range row {
			if v > e.Threshold {
				out[j] = 1
			}
		}
		ans[i] = out
	}
	return ans, nil
}

func (e *Binarizer) OutputColumns(in []string) []string { return in }
