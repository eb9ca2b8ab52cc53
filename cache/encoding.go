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
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeBlob serializes a value with msgpack and compresses the result
// with xz. Cached tensors are large and repetitive, so the compression
// pays for itself on any nontrivial dataset. Map keys are sorted so
// that identical values always yield identical bytes; stale-cache
// detection compares encoded blobs directly.
func EncodeBlob(v any) ([]byte, error) {
	var raw bytes.Buffer
	enc := msgpack.NewEncoder(&raw)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode blob: %w", err)
	}
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to encode blob: %w", err)
	}
	if _, err := w.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to encode blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode blob: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBlob reverses EncodeBlob into the provided destination.
func DecodeBlob(data []byte, dst any) error {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode blob: %w", err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to decode blob: %w", err)
	}
	if err := msgpack.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode blob: %w", err)
	}
	return nil
}

// TensorKey formats the canonical cache key of one materialized tensor.
// foldIdx is -1 for the whole-split context.
func TensorKey(pipelineID string, foldIdx int, split string) string {
	return fmt.Sprintf("%s/%d/%s", pipelineID, foldIdx, split)
}
