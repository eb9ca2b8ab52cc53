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

// Package cache provides the persistent, write-once blob store backing
// pipeline materializations. Values are msgpack-encoded and
// xz-compressed before hitting Badger.
package cache

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const (
	SplitsetPrefix byte = 0x01 // materialized splitset/foldset memberships
	TensorPrefix   byte = 0x02 // encoded per-split tensors
	MetaPrefix     byte = 0x03 // pipeline configuration digests etc.
)

// DB is a wrapper around badger.DB providing concrete methods for
// storing and retrieving materialization blobs.
type DB struct {
	bdb *badger.DB
}

func OpenDB(path string) (*DB, error) {
	opts := badger.DefaultOptions(path).
		WithValueLogFileSize(256 << 20).
		WithNumMemtables(8).
		WithNumLevelZeroTables(8)

	ans := &DB{}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	ans.bdb = db
	return ans, nil
}

// Close closes the internal Badger database. It is possible to call
// the method on a nil instance or an uninitialized DB object, in which
// case it is a NOP.
func (db *DB) Close() error {
	if db != nil && db.bdb != nil {
		return db.bdb.Close()
	}
	return nil
}

func (db *DB) Flush() error {
	return db.bdb.DropAll()
}

func (db *DB) Size() (int64, int64) {
	return db.bdb.Size()
}

func encodeKey(prefix byte, key string) []byte {
	ans := make([]byte, 1+len(key))
	ans[0] = prefix
	copy(ans[1:], []byte(key))
	return ans
}

// StoreBlob writes an already-encoded blob. Materialized tensors are
// write-once: overwriting an existing key is refused so configuration
// drift cannot silently replace cached data.
func (db *DB) StoreBlob(prefix byte, key string, data []byte) error {
	kb := encodeKey(prefix, key)
	return db.bdb.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(kb)
		if err == nil {
			return fmt.Errorf("refusing to overwrite cached blob `%s`", key)
		}
		if err != badger.ErrKeyNotFound {
			return fmt.Errorf("failed to probe cached blob: %w", err)
		}
		return txn.Set(kb, data)
	})
}

// ReadBlob fetches a blob; the second value reports whether the key
// exists at all.
func (db *DB) ReadBlob(prefix byte, key string) ([]byte, bool, error) {
	var ans []byte
	err := db.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(prefix, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ans = append([]byte{}, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached blob: %w", err)
	}
	return ans, true, nil
}

// DeleteBlob removes a cached blob (used when a pipeline is dropped).
func (db *DB) DeleteBlob(prefix byte, key string) error {
	return db.bdb.Update(func(txn *badger.Txn) error {
		return txn.Delete(encodeKey(prefix, key))
	})
}
