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

// Package nstack implements an annotated stack with logarithmic indexed
// access.
//
// A Stack is a tree of fixed fan-out (Fanout) in which every element sits
// at the same depth. Elements are pushed to and popped from the end, as on
// any stack, but each subtree also carries a summary (an annotation) of the
// elements below it. Summaries are computed bottom-up by a pluggable
// Annotator and kept current on every mutation, so queries such as "the
// n-th element" or "the element with the largest key" descend from the root
// to a single leaf in O(log n) steps instead of scanning.
//
// Queries are expressed as Walkers. A walker is shown one node at a time and
// decides whether the target is an element in that node, lies below one of
// its children, or does not exist. Walking yields a Branch, the path from the
// root to the element found. A mutable walk (WalkMut) gives exclusive access
// to the element and recomputes every annotation on the path afterwards.
//
// Two annotations are provided and used by the built-in walkers: Cardinality
// (element count, used by Nth) and MaxKey (largest key, used by FindMaxKey).
// CountMax carries both.
//
// Stacks can be stored in and restored from a content addressed
// store.Store. Restored stacks load their nodes lazily: a child is read from
// the store only when a walk, push or pop needs to descend into it.
//
// Write operations are not safe for concurrent mutation by multiple
// goroutines, but Read operations are.
package nstack

import (
	"sync"

	"github.com/pkg/errors"
)

// Fanout is the maximum number of elements in a leaf and of children in an
// internal node.
const Fanout = 4

const (
	DefaultFreeListSize = 32
)

// FreeList represents a free list of stack nodes. By default each
// Stack has its own FreeList, but multiple Stacks can share the same
// FreeList, in particular when they're created with Clone.
// Two Stacks using the same freelist are safe for concurrent write access.
type FreeList[T, A any] struct {
	mu       sync.Mutex
	freelist []*node[T, A]
}

// NewFreeList creates a new free list.
// size is the maximum size of the returned free list.
func NewFreeList[T, A any](size int) *FreeList[T, A] {
	return &FreeList[T, A]{freelist: make([]*node[T, A], 0, size)}
}

func (f *FreeList[T, A]) newNode() (n *node[T, A]) {
	f.mu.Lock()
	index := len(f.freelist) - 1
	if index < 0 {
		f.mu.Unlock()
		return new(node[T, A])
	}
	n = f.freelist[index]
	f.freelist[index] = nil
	f.freelist = f.freelist[:index]
	f.mu.Unlock()
	return
}

func (f *FreeList[T, A]) freeNode(n *node[T, A]) (out bool) {
	// clear to allow GC
	*n = node[T, A]{}
	f.mu.Lock()
	if len(f.freelist) < cap(f.freelist) {
		f.freelist = append(f.freelist, n)
		out = true
	}
	f.mu.Unlock()
	return
}

// Stack is a last-in-first-out sequence of T annotated with summaries of
// type A.
type Stack[T, A any] struct {
	root   *node[T, A]
	length int
	height int
	ctx    stackContext[T, A]
}

// New creates a new empty Stack whose subtrees are summarized by annotator.
func New[T, A any](annotator Annotator[T, A]) *Stack[T, A] {
	return NewWithFreeList(annotator, NewFreeList[T, A](DefaultFreeListSize))
}

// NewWithFreeList creates a new empty Stack that uses the given node free
// list.
func NewWithFreeList[T, A any](annotator Annotator[T, A], f *FreeList[T, A]) *Stack[T, A] {
	if annotator == nil {
		panic("nil annotator")
	}
	s := &Stack[T, A]{
		ctx: stackContext[T, A]{
			annotator: annotator,
			freelist:  f,
		},
	}
	s.root = s.ctx.newLeaf()
	return s
}

// Len returns the number of elements currently in the stack.
func (s *Stack[T, A]) Len() int {
	return s.length
}

// Height returns the number of internal levels above the leaves. It grows
// by one each time a push finds the tree full and never shrinks.
func (s *Stack[T, A]) Height() int {
	return s.height
}

// Annotation returns the summary of the whole stack.
func (s *Stack[T, A]) Annotation() A {
	return s.ctx.annotate(s.root)
}

// Push adds item to the top of the stack.
//
// Push only fails on restored stacks, when a node it needs cannot be
// loaded; the stack is then left unchanged.
func (s *Stack[T, A]) Push(item T) error {
	if err := s.prepareSpine(); err != nil {
		return err
	}
	for {
		if _, ok := s.root.push(item, &s.ctx); ok {
			break
		}
		// The tree is full. The old root becomes the first child of a new
		// root, so every element moves one level down.
		oldroot := s.root
		s.root = s.ctx.newNode()
		s.root.links[0] = s.ctx.newLink(oldroot)
		s.height++
	}
	s.length++
	return nil
}

// Pop removes the item at the top of the stack and returns it, or
// (zeroValue, false) if the stack is empty.
//
// The height of the stack is left as is, even when the last element is
// removed.
func (s *Stack[T, A]) Pop() (_ T, _ bool, err error) {
	if err = s.prepareSpine(); err != nil {
		return
	}
	item, res := s.root.pop(&s.ctx)
	if res == popEmpty {
		return
	}
	s.length--
	return item, true, nil
}

// prepareSpine makes every node push and pop may change writable and
// materialized: from the root, repeatedly the last occupied child. All store
// reads a push or pop needs happen here, before anything is changed.
//
// Only the subtree in slot 0 may be empty, so once the spine leaves slot 0
// it must end in a leaf holding an element. A loaded spine that does not is
// reported as ErrInvalidNode.
func (s *Stack[T, A]) prepareSpine() error {
	c := &s.ctx
	s.root = c.writableNode(s.root)
	n, height := s.root, s.height
	offFirst := false
	for !n.leaf {
		i := n.lastLink()
		if i < 0 {
			return nil
		}
		offFirst = offFirst || i > 0
		l := &n.links[i]
		if err := c.materialize(l, height-1); err != nil {
			return err
		}
		n = c.mutableChild(l)
		height--
	}
	if offFirst && !n.items[0].valid {
		return errors.Wrap(ErrInvalidNode, "nstack: empty subtree outside the first slot")
	}
	return nil
}

// Clone returns a stack with the same elements as s. The two stacks share
// their nodes until either is changed, so Clone runs in constant time;
// later writes to either copy only the nodes on the changed path.
//
// Clone mutates s's bookkeeping and must not run concurrently with other
// operations on s.
func (s *Stack[T, A]) Clone() *Stack[T, A] {
	s.ctx.shared()
	out := &Stack[T, A]{
		root:   s.root,
		length: s.length,
		height: s.height,
		ctx: stackContext[T, A]{
			annotator: s.ctx.annotator,
			freelist:  s.ctx.freelist,
			loader:    s.ctx.loader,
			persisted: s.ctx.persisted,
		},
	}
	out.ctx.shared()
	return out
}
