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

package hyper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testSpace() Space {
	return Space{
		"lr":     {0.1, 0.01, 0.001},
		"hidden": {8, 16},
	}
}

func TestExpandFullCrossProduct(t *testing.T) {
	combos, err := testSpace().Expand(Options{})
	assert.NoError(t, err)
	assert.Equal(t, 6, len(combos))

	// sorted names: hidden, lr; lr (rightmost) varies fastest
	assert.Equal(t, 8, combos[0].Params["hidden"])
	assert.Equal(t, 0.1, combos[0].Params["lr"])
	assert.Equal(t, 8, combos[1].Params["hidden"])
	assert.Equal(t, 0.01, combos[1].Params["lr"])
	assert.Equal(t, 16, combos[3].Params["hidden"])
	assert.Equal(t, 0.1, combos[3].Params["lr"])
	for i, c := range combos {
		assert.Equal(t, i, c.Index)
	}
}

func TestExpandSearchCount(t *testing.T) {
	combos, err := testSpace().Expand(Options{SearchCount: 3, Seed: 5})
	assert.NoError(t, err)
	assert.Equal(t, 3, len(combos))
	seen := make(map[string]bool)
	for _, c := range combos {
		seen[c.Identity()] = true
	}
	assert.Equal(t, 3, len(seen))
}

func TestExpandSearchCountExceedsTotal(t *testing.T) {
	combos, err := testSpace().Expand(Options{SearchCount: 100})
	assert.NoError(t, err)
	assert.Equal(t, 6, len(combos))
}

func TestExpandSearchPercent(t *testing.T) {
	combos, err := testSpace().Expand(Options{SearchPercent: 0.5, Seed: 5})
	assert.NoError(t, err)
	assert.Equal(t, 3, len(combos))
}

func TestExpandPermuteCount(t *testing.T) {
	combos, err := testSpace().Expand(Options{PermuteCount: 4, Seed: 5})
	assert.NoError(t, err)
	assert.Equal(t, 4, len(combos))
	seen := make(map[string]bool)
	for _, c := range combos {
		seen[c.Identity()] = true
	}
	assert.Equal(t, 4, len(seen))
}

func TestExpandOptionsMutuallyExclusive(t *testing.T) {
	_, err := testSpace().Expand(Options{SearchCount: 2, SearchPercent: 0.5})
	assert.Error(t, err)
}

func TestExpandRejectsEmptyCandidateList(t *testing.T) {
	s := Space{"lr": {}}
	_, err := s.Expand(Options{})
	assert.Error(t, err)
}

func TestIdentityIsContentAddressed(t *testing.T) {
	a := &Combo{Index: 0, Params: map[string]any{"lr": 0.1, "hidden": 8}}
	b := &Combo{Index: 5, Params: map[string]any{"hidden": 8, "lr": 0.1}}
	c := &Combo{Index: 0, Params: map[string]any{"lr": 0.2, "hidden": 8}}
	assert.Equal(t, a.Identity(), b.Identity())
	assert.NotEqual(t, a.Identity(), c.Identity())
	assert.Equal(t, 16, len(a.Identity()))
}

func TestComboGettersTolerateNil(t *testing.T) {
	var c *Combo
	assert.Equal(t, 7, c.Int("trees", 7))
	assert.Equal(t, 0.5, c.Float("lr", 0.5))
}

func TestComboGetterTypeCoercion(t *testing.T) {
	c := &Combo{Params: map[string]any{"trees": 50, "lr": 0.1}}
	assert.Equal(t, 50, c.Int("trees", 0))
	assert.Equal(t, 50.0, c.Float("trees", 0))
	assert.Equal(t, 0.1, c.Float("lr", 0))
	assert.Equal(t, 3, c.Int("missing", 3))
}

func TestSize(t *testing.T) {
	assert.Equal(t, 6, testSpace().Size())
	assert.Equal(t, 1, Space{}.Size())
}
