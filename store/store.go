// Copyright 2014-2022 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store provides content addressed blob storage for persisted
// stacks.
//
// A Store maps the BLAKE2b-256 digest of a blob to the blob itself. Because
// identifiers are derived from content, storing the same subtree twice is
// free, and any number of independent readers may load the same identifier
// and observe the same immutable bytes.
//
// Two backends are provided: Memory, which keeps blobs in a map, and Disk,
// which keeps them in a bbolt database file. Both are safe for concurrent
// use by multiple goroutines.
package store

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrNotFound is returned by Get when no blob is stored under an id.
	ErrNotFound = errors.New("store: object not found")
	// ErrCorrupt is returned by Get when the stored bytes no longer hash to
	// the id they were stored under.
	ErrCorrupt = errors.New("store: object digest mismatch")
	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("store: backend closed")
)

// ID identifies a stored blob. It is the BLAKE2b-256 digest of the blob.
type ID [blake2b.Size256]byte

// Sum returns the id of data.
func Sum(data []byte) ID {
	return blake2b.Sum256(data)
}

// String returns the id hex encoded.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero returns true if the id is the empty value.
func (id ID) IsZero() bool {
	return id == (ID{})
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	if ln := hex.DecodedLen(len(text)); ln != len(id) {
		return errors.Errorf("store.ID.UnmarshalText: text wrong length: %d, want %d", ln, len(id))
	}
	if _, err := hex.Decode(id[:], text); err != nil {
		return errors.Wrap(err, "store.ID.UnmarshalText")
	}
	return nil
}

// Store is a content addressed blob store.
//
// Put stores data and returns its id; putting the same bytes twice returns
// the same id. Get returns the bytes stored under id, or an error matching
// ErrNotFound if there are none. Callers own the slices passed to Put and
// returned from Get.
type Store interface {
	Put(data []byte) (ID, error)
	Get(id ID) ([]byte, error)
}
