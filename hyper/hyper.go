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

// Package hyper expands a declared hyperparameter space into concrete
// parameter combinations with stable, content-addressed identities.
package hyper

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/czcorpus/trainbed/dataset"
	"github.com/rs/zerolog/log"
)

// Space maps a parameter name to its ordered candidate values.
type Space map[string][]any

// Combo is one concrete assignment of values to all declared
// parameters.
type Combo struct {
	Index  int
	Params map[string]any
}

// Identity is a stable content address of the assignment: the digest of
// the sorted name=value pairs. Identical assignments produced by
// different invocations compare equal.
func (c *Combo) Identity() string {
	names := make([]string, 0, len(c.Params))
	for name := range c.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		fmt.Fprintf(h, "%s=%v\n", name, c.Params[name])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Float reads a parameter as float64, accepting int candidates too.
// A nil combo (a run without hyperparameters) yields the default.
func (c *Combo) Float(name string, dflt float64) float64 {
	if c == nil {
		return dflt
	}
	v, ok := c.Params[name]
	if !ok {
		return dflt
	}
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return dflt
}

func (c *Combo) Int(name string, dflt int) int {
	if c == nil {
		return dflt
	}
	v, ok := c.Params[name]
	if !ok {
		return dflt
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	}
	return dflt
}

func (c *Combo) String() string {
	names := make([]string, 0, len(c.Params))
	for name := range c.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	ans := "Combo{"
	for i, name := range names {
		if i > 0 {
			ans += ", "
		}
		ans += fmt.Sprintf("%s: %v", name, c.Params[name])
	}
	return ans + "}"
}

// Options select a subset of the full cross-product. SearchCount and
// SearchPercent sample without replacement keeping the stable
// enumeration order; PermuteCount draws without replacement in a
// randomized order. The three are mutually exclusive.
type Options struct {
	SearchCount   int
	SearchPercent float64
	PermuteCount  int
	Seed          uint64
}

// Size is the number of combinations the full cross-product contains.
func (s Space) Size() int {
	ans := 1
	for _, vals := range s {
		ans *= len(vals)
	}
	return ans
}

// Expand enumerates the cross-product of all candidate lists in a fixed
// order: parameter names sorted ascending, the rightmost parameter
// varying fastest. The order is part of the contract - job enumeration
// and result dashboards rely on it.
func (s Space) Expand(opt Options) ([]*Combo, error) {
	set := 0
	if opt.SearchCount != 0 {
		set++
	}
	if opt.SearchPercent != 0 {
		set++
	}
	if opt.PermuteCount != 0 {
		set++
	}
	if set > 1 {
		return nil, dataset.NewConfigError(
			"searchCount, searchPercent and permuteCount are mutually exclusive")
	}
	if opt.SearchCount < 0 {
		return nil, dataset.NewConfigError("searchCount cannot be negative (got %d)", opt.SearchCount)
	}
	if opt.SearchPercent != 0 && (opt.SearchPercent <= 0.0 || opt.SearchPercent > 1.0) {
		return nil, dataset.NewConfigError("searchPercent must be within (0.0, 1.0] (got %f)", opt.SearchPercent)
	}

	names := make([]string, 0, len(s))
	for name := range s {
		if len(s[name]) == 0 {
			return nil, dataset.NewConfigError("parameter `%s` has no candidate values", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	total := s.Size()
	combos := make([]*Combo, 0, total)
	cursor := make([]int, len(names))
	for i := 0; i < total; i++ {
		params := make(map[string]any, len(names))
		for j, name := range names {
			params[name] = s[name][cursor[j]]
		}
		combos = append(combos, &Combo{Index: i, Params: params})
		for j := len(names) - 1; j >= 0; j-- {
			cursor[j]++
			if cursor[j] < len(s[names[j]]) {
				break
			}
			cursor[j] = 0
		}
	}

	want := 0
	shuffle := false
	switch {
	case opt.SearchCount > 0:
		if opt.SearchCount > total {
			log.Info().
				Int("searchCount", opt.SearchCount).
				Int("comboCount", total).
				Msg("searchCount exceeds the number of combinations, proceeding with all of them")
			return combos, nil
		}
		want = opt.SearchCount
	case opt.SearchPercent > 0:
		want = int(math.Ceil(float64(total) * opt.SearchPercent))
	case opt.PermuteCount > 0:
		want = opt.PermuteCount
		if want > total {
			want = total
		}
		shuffle = true
	default:
		return combos, nil
	}

	rng := rand.New(rand.NewPCG(opt.Seed, opt.Seed^0xc2b2ae3d27d4eb4f))
	perm := rng.Perm(total)[:want]
	if !shuffle {
		sort.Ints(perm)
	}
	ans := make([]*Combo, want)
	for i, p := range perm {
		ans[i] = combos[p]
	}
	return ans, nil
}
