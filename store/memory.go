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

package store

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Memory is a Store that keeps blobs in process memory.
type Memory struct {
	mu    sync.RWMutex
	blobs map[ID][]byte
	log   *zap.SugaredLogger
}

// NewMemory returns an empty in-memory store. Only WithLogger is
// meaningful for this backend.
func NewMemory(opts ...Option) *Memory {
	o := newOptions(opts...)
	return &Memory{
		blobs: make(map[ID][]byte),
		log:   o.Logger,
	}
}

// Put implements Store.
func (m *Memory) Put(data []byte) (ID, error) {
	id := Sum(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; ok {
		return id, nil
	}
	m.blobs[id] = append([]byte(nil), data...)
	m.log.Debugf("memory put: id=%s len=%d", id, len(data))
	return id, nil
}

// Get implements Store.
func (m *Memory) Get(id ID) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "memory get %s", id)
	}
	return append([]byte(nil), data...), nil
}

// Len returns the number of distinct blobs held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
