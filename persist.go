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

package nstack

import (
	"math"

	"github.com/pkg/errors"

	"github.com/google/nstack/store"
)

// maxHeight bounds the height accepted from a root record. Fanout^maxHeight
// elements is far beyond anything addressable.
const maxHeight = 64

// linkRecord is the stored form of a link: the child's id and its summary.
type linkRecord[A any] struct {
	ID   store.ID `cbor:"1,keyasint"`
	Anno A        `cbor:"2,keyasint"`
}

// nodeRecord is the stored form of a node. Leaves (Height 0) carry Items,
// internal nodes carry Links. Both are the occupied prefix of the node's
// slots.
type nodeRecord[T, A any] struct {
	Height int             `cbor:"1,keyasint"`
	Items  []T             `cbor:"2,keyasint,omitempty"`
	Links  []linkRecord[A] `cbor:"3,keyasint,omitempty"`
}

// rootRecord is the stored form of a Stack.
type rootRecord struct {
	Node   store.ID `cbor:"1,keyasint"`
	Len    uint64   `cbor:"2,keyasint"`
	Height int      `cbor:"3,keyasint"`
}

func (r *rootRecord) validate() error {
	if r.Height < 0 || r.Height > maxHeight {
		return errors.Wrapf(ErrInvalidRoot, "height %d", r.Height)
	}
	if r.Node.IsZero() {
		return errors.Wrap(ErrInvalidRoot, "missing root node")
	}
	if r.Len > math.MaxInt || r.Len > capacity(r.Height) {
		return errors.Wrapf(ErrInvalidRoot, "length %d at height %d", r.Len, r.Height)
	}
	return nil
}

// capacity returns the number of elements a stack of the given height can
// hold, saturating at math.MaxUint64.
func capacity(height int) uint64 {
	c := uint64(Fanout)
	for ; height > 0; height-- {
		if c > math.MaxUint64/Fanout {
			return math.MaxUint64
		}
		c *= Fanout
	}
	return c
}

// validate checks that the record can sit at the given height without
// breaking the uniform depth of the stack.
func (r *nodeRecord[T, A]) validate(height int) error {
	switch {
	case r.Height != height:
		return errors.Wrapf(ErrInvalidNode, "height %d, want %d", r.Height, height)
	case len(r.Items) > Fanout || len(r.Links) > Fanout:
		return errors.Wrapf(ErrInvalidNode, "%d items and %d links exceed fanout", len(r.Items), len(r.Links))
	case height == 0 && len(r.Links) > 0:
		return errors.Wrap(ErrInvalidNode, "leaf with links")
	case height > 0 && len(r.Items) > 0:
		return errors.Wrap(ErrInvalidNode, "internal node with items")
	case height > 0 && len(r.Links) == 0:
		return errors.Wrap(ErrInvalidNode, "internal node without links")
	}
	for i, l := range r.Links {
		if l.ID.IsZero() {
			return errors.Wrapf(ErrInvalidNode, "link %d has no id", i)
		}
	}
	return nil
}

// Persist stores every node of s in st and returns the id of the stack's
// root record, which Restore accepts.
//
// Subtrees unchanged since s was last persisted to, or restored from, st are
// not written again. Persist records the ids of stored subtrees in s, so it
// must not run concurrently with other operations on s or its clones.
// Stores are compared with ==, so st must be of a comparable type. After a
// failed Persist to a store other than the last one, the next Persist writes
// every node again.
func (s *Stack[T, A]) Persist(st store.Store) (store.ID, error) {
	codec := store.DefaultCodec()
	reuse := st == s.ctx.persisted
	if !reuse {
		// From here on links may cache ids of either store. Until st holds
		// a complete copy, neither store holds every cached id.
		s.ctx.persisted = nil
	}
	rootID, err := s.ctx.persist(s.root, s.height, st, reuse, codec)
	if err != nil {
		return store.ID{}, errors.Wrap(err, "nstack: persist")
	}
	id, err := store.PutRecord(st, codec, rootRecord{
		Node:   rootID,
		Len:    uint64(s.length),
		Height: s.height,
	})
	if err != nil {
		return store.ID{}, errors.Wrap(err, "nstack: persist root")
	}
	s.ctx.persisted = st
	return id, nil
}

func (c *stackContext[T, A]) persist(n *node[T, A], height int, st store.Store, reuse bool, codec store.Codec) (store.ID, error) {
	rec := nodeRecord[T, A]{Height: height}
	if n.leaf {
		for _, s := range n.items {
			if s.valid {
				rec.Items = append(rec.Items, s.item)
			}
		}
		return store.PutRecord(st, codec, rec)
	}
	for i := range n.links {
		l := &n.links[i]
		if !l.valid {
			continue
		}
		id := l.id
		if id.IsZero() || !reuse {
			child, err := c.peek(l, height-1)
			if err != nil {
				return store.ID{}, err
			}
			if id, err = c.persist(child, height-1, st, reuse, codec); err != nil {
				return store.ID{}, err
			}
			// Ids are only cached in nodes no other stack can see.
			if c.writable(n) {
				l.id = id
			}
		}
		rec.Links = append(rec.Links, linkRecord[A]{ID: id, Anno: l.anno})
	}
	return store.PutRecord(st, codec, rec)
}

// Restore returns the stack persisted in st under id. Only the root node
// is read; every other node is read on first use, and validated as it is
// read.
func Restore[T, A any](annotator Annotator[T, A], st store.Store, id store.ID) (*Stack[T, A], error) {
	var rec rootRecord
	if err := store.GetRecord(st, store.DefaultCodec(), id, &rec); err != nil {
		return nil, errors.Wrap(err, "nstack: restore")
	}
	if err := rec.validate(); err != nil {
		return nil, errors.Wrapf(err, "nstack: restore %s", id)
	}
	s := New(annotator)
	s.ctx.loader = st
	s.ctx.persisted = st
	root, err := s.ctx.load(rec.Node, rec.Height)
	if err != nil {
		return nil, errors.Wrap(err, "nstack: restore")
	}
	s.ctx.freelist.freeNode(s.root)
	s.root = s.ctx.adopt(root)
	s.length = int(rec.Len)
	s.height = rec.Height
	return s, nil
}

// load reads and validates the node stored under id, expected at the given
// height. The node returned is not yet part of any stack.
func (c *stackContext[T, A]) load(id store.ID, height int) (*node[T, A], error) {
	if c.loader == nil {
		panic("nstack: link has neither a child nor a store")
	}
	var rec nodeRecord[T, A]
	if err := store.GetRecord(c.loader, store.DefaultCodec(), id, &rec); err != nil {
		return nil, errors.Wrapf(err, "load node %s", id)
	}
	if err := rec.validate(height); err != nil {
		return nil, errors.Wrapf(err, "load node %s", id)
	}
	n := new(node[T, A])
	n.leaf = height == 0
	for i, item := range rec.Items {
		n.items[i] = slot[T]{item: item, valid: true}
	}
	for i, l := range rec.Links {
		n.links[i] = link[T, A]{anno: l.Anno, id: l.ID, valid: true}
	}
	return n, nil
}

// peek returns the child of l, reading it from the store if needed without
// keeping it.
func (c *stackContext[T, A]) peek(l *link[T, A], height int) (*node[T, A], error) {
	if l.child != nil {
		return l.child, nil
	}
	return c.load(l.id, height)
}

// materialize reads the child of l from the store if needed and keeps it.
// The node holding l must be writable.
func (c *stackContext[T, A]) materialize(l *link[T, A], height int) error {
	if l.child != nil {
		return nil
	}
	child, err := c.load(l.id, height)
	if err != nil {
		return err
	}
	l.child = c.adopt(child)
	return nil
}
