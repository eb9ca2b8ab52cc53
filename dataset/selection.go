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

package dataset

import (
	"fmt"
)

// ConfigError signals an invalid declarative configuration. It is always
// raised before any data is materialized and never recovered internally.
type ConfigError struct {
	Msg string
}

func (err ConfigError) Error() string {
	return err.Msg
}

func NewConfigError(tpl string, args ...any) ConfigError {
	return ConfigError{Msg: fmt.Sprintf(tpl, args...)}
}

// Selection picks a column subset of a Dataset either by an include
// list or by an exclude list. The two are mutually exclusive.
type Selection struct {
	Include []string
	Exclude []string
}

// All selects every column.
func All() Selection {
	return Selection{}
}

// Resolve maps the selection to ordered column indices of the provided
// schema. Column order of the schema is preserved.
func (sel Selection) Resolve(columns []Column) ([]int, error) {
	if len(sel.Include) > 0 && len(sel.Exclude) > 0 {
		return nil, NewConfigError("column selection cannot combine include and exclude lists")
	}
	byName := make(map[string]int, len(columns))
	for i, c := range columns {
		byName[c.Name] = i
	}
	for _, name := range append(append([]string{}, sel.Include...), sel.Exclude...) {
		if _, ok := byName[name]; !ok {
			return nil, NewConfigError("column selection refers to unknown column `%s`", name)
		}
	}
	excluded := make(map[string]bool, len(sel.Exclude))
	for _, name := range sel.Exclude {
		excluded[name] = true
	}
	ans := make([]int, 0, len(columns))
	if len(sel.Include) > 0 {
		included := make(map[string]bool, len(sel.Include))
		for _, name := range sel.Include {
			included[name] = true
		}
		for i, c := range columns {
			if included[c.Name] {
				ans = append(ans, i)
			}
		}

	} else {
		for i, c := range columns {
			if !excluded[c.Name] {
				ans = append(ans, i)
			}
		}
	}
	if len(ans) == 0 {
		return nil, NewConfigError("column selection matches no columns")
	}
	return ans, nil
}

// View is a resolved column subset of a concrete Dataset, used as
// a Pipeline's feature input or its label target.
type View struct {
	Dataset *Dataset
	ColIdx  []int
}

// NewView resolves sel against ds.
func NewView(ds *Dataset, sel Selection) (View, error) {
	idx, err := sel.Resolve(ds.Columns())
	if err != nil {
		return View{}, err
	}
	return View{Dataset: ds, ColIdx: idx}, nil
}

func (v View) Columns() []Column {
	ans := make([]Column, len(v.ColIdx))
	for i, ci := range v.ColIdx {
		ans[i] = v.Dataset.Columns()[ci]
	}
	return ans
}

func (v View) ColumnNames() []string {
	ans := make([]string, len(v.ColIdx))
	for i, c := range v.Columns() {
		ans[i] = c.Name
	}
	return ans
}
