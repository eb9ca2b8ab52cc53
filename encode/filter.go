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

	"github.com/czcorpus/trainbed/dataset"
)

// FilterError signals that a step's column/dtype filter matched nothing
// of the columns still available to it.
type FilterError struct {
	Step string
	Msg  string
}

func (err FilterError) Error() string {
	return fmt.Sprintf("step %s: %s", err.Step, err.Msg)
}

// Filter scopes an encoder or interpolation step to a column subset.
// Columns and DTypes act as an intersection when both are present.
// Exclude inverts the match.
type Filter struct {
	Columns []string
	DTypes  []dataset.DType
	Exclude bool
}

// AllColumns matches everything still available.
func AllColumns() Filter {
	return Filter{}
}

func (f Filter) matches(col dataset.Column) bool {
	colOK := len(f.Columns) == 0
	for _, name := range f.Columns {
		if name == col.Name {
			colOK = true
			break
		}
	}
	dtOK := len(f.DTypes) == 0
	for _, dt := range f.DTypes {
		if dt == col.DType {
			dtOK = true
			break
		}
	}
	ans := colOK && dtOK
	if f.Exclude {
		return !ans
	}
	return ans
}

// Apply intersects the filter with the still-available columns.
// Positions index the original feature view. The answer preserves
// the original column order.
func (f Filter) Apply(stepName string, available []dataset.Column, availablePos []int) ([]int, error) {
	var ans []int
	for i, col := range available {
		if f.matches(col) {
			ans = append(ans, availablePos[i])
		}
	}
	if len(ans) == 0 {
		return nil, FilterError{
			Step: stepName,
			Msg:  "column/dtype filter does not match any remaining column",
		}
	}
	return ans, nil
}
