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

package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeBlob(t *testing.T) {
	src := map[string][]float64{
		"train": {0.25, 1.5, -3},
		"test":  {42},
	}
	blob, err := EncodeBlob(src)
	assert.NoError(t, err)
	assert.NotEmpty(t, blob)

	var dst map[string][]float64
	err = DecodeBlob(blob, &dst)
	assert.NoError(t, err)
	assert.Equal(t, src, dst)
}

// Stale-cache detection compares encoded blobs byte for byte, so
// encoding the same map twice must yield identical output.
func TestEncodeBlobIsDeterministic(t *testing.T) {
	src := map[string][]int{
		"train":      {1, 2, 3},
		"validation": {4},
		"test":       {5, 6},
	}
	a, err := EncodeBlob(src)
	assert.NoError(t, err)
	b, err := EncodeBlob(src)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecodeBlobGarbage(t *testing.T) {
	var dst map[string]int
	err := DecodeBlob([]byte("definitely not xz"), &dst)
	assert.Error(t, err)
}

func TestTensorKey(t *testing.T) {
	assert.Equal(t, "pl1/-1/train", TensorKey("pl1", -1, "train"))
	assert.Equal(t, "pl1/2/fold_eval", TensorKey("pl1", 2, "fold_eval"))
}
