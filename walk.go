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

// ChildKind classifies a slot of a node as seen by a Walker.
type ChildKind int

const (
	ChildEmpty ChildKind = iota // the slot is unoccupied
	ChildLeaf                   // the slot holds an element
	ChildNode                   // the slot holds a subtree
	ChildEnd                    // the index is past the last slot
)

// Child is one slot of a node as seen by a Walker.
type Child[T, A any] struct {
	Kind ChildKind
	// Item is set when Kind is ChildLeaf.
	Item T
	// Anno is the summary of the subtree when Kind is ChildNode.
	Anno A
}

// NodeView is the read-only view of a single node handed to a Walker.
type NodeView[T, A any] struct {
	n *node[T, A]
}

// Child returns slot i of the node. Indexes from Fanout on report
// ChildEnd.
func (v NodeView[T, A]) Child(i int) (c Child[T, A]) {
	switch {
	case i < 0 || i >= Fanout:
		c.Kind = ChildEnd
	case v.n.leaf:
		if s := v.n.items[i]; s.valid {
			c.Kind, c.Item = ChildLeaf, s.item
		}
	default:
		if l := v.n.links[i]; l.valid {
			c.Kind, c.Anno = ChildNode, l.anno
		}
	}
	return
}

type stepKind int

const (
	stepAbort stepKind = iota
	stepFound
	stepInto
)

// Step is the decision a Walker makes at a node.
type Step struct {
	kind  stepKind
	index int
}

// Found returns the Step ending a walk at the element in slot i of the
// current leaf.
func Found(i int) Step { return Step{kind: stepFound, index: i} }

// Into returns the Step descending into the subtree in slot i of the current
// node.
func Into(i int) Step { return Step{kind: stepInto, index: i} }

// Abort returns the Step ending a walk with nothing found.
func Abort() Step { return Step{kind: stepAbort} }

// Walker directs a search from the root of a stack to one element.
//
// Walk is called once per level, starting at the root, and may inspect the
// node's children left to right through NodeView.Child. A Walker may keep
// state between calls; a fresh Walker is needed for every walk.
type Walker[T, A any] interface {
	Walk(v NodeView[T, A]) Step
}

// WalkerFunc adapts an ordinary function to the Walker interface.
type WalkerFunc[T, A any] func(v NodeView[T, A]) Step

// Walk calls f(v).
func (f WalkerFunc[T, A]) Walk(v NodeView[T, A]) Step { return f(v) }

// level is one segment of a branch: a node and the slot taken in it.
type level[T, A any] struct {
	n     *node[T, A]
	index int
}

func pathOf[T, A any](levels []level[T, A]) []int {
	path := make([]int, len(levels))
	for i, lv := range levels {
		path[i] = lv.index
	}
	return path
}

// Branch is the path from the root of a stack to one of its elements.
//
// A Branch is only valid until the stack is next changed.
type Branch[T, A any] struct {
	levels []level[T, A]
}

// Leaf returns the element the branch leads to.
func (b *Branch[T, A]) Leaf() T {
	lv := b.levels[len(b.levels)-1]
	return lv.n.items[lv.index].item
}

// Depth returns the number of segments in the branch, one per level of the
// stack. All branches of a stack have the same depth.
func (b *Branch[T, A]) Depth() int {
	return len(b.levels)
}

// Path returns the slot taken at each level, root first.
func (b *Branch[T, A]) Path() []int {
	return pathOf(b.levels)
}

// BranchMut is a Branch with exclusive access to its element. It is only
// valid inside the callback passed to WalkMut.
type BranchMut[T, A any] struct {
	levels []level[T, A]
}

// Leaf returns a pointer to the element the branch leads to, for in-place
// changes.
func (b *BranchMut[T, A]) Leaf() *T {
	lv := b.levels[len(b.levels)-1]
	return &lv.n.items[lv.index].item
}

// Depth returns the number of segments in the branch.
func (b *BranchMut[T, A]) Depth() int {
	return len(b.levels)
}

// Path returns the slot taken at each level, root first.
func (b *BranchMut[T, A]) Path() []int {
	return pathOf(b.levels)
}

// release recomputes the annotation of every link on the branch, innermost
// first, so each parent combines already fresh child summaries.
func (b *BranchMut[T, A]) release(c *stackContext[T, A]) {
	for i := len(b.levels) - 2; i >= 0; i-- {
		lv := b.levels[i]
		c.refresh(&lv.n.links[lv.index])
	}
	b.levels = nil
}

// Walk follows w from the root and returns the branch to the element it
// finds, or nil if w aborts.
//
// Walk never changes s. On a restored stack, children that w descends into
// are read from the store without being kept, and a failed read is
// returned as an error.
func (s *Stack[T, A]) Walk(w Walker[T, A]) (*Branch[T, A], error) {
	levels, err := s.walk(w, false)
	if err != nil || levels == nil {
		return nil, err
	}
	return &Branch[T, A]{levels: levels}, nil
}

// WalkMut follows w like Walk. If w finds an element, fn is called with a
// BranchMut giving exclusive access to it, and once fn returns, or panics,
// every annotation on the branch is recomputed. found reports whether w
// found an element; err is the error of a failed store read or the error
// returned by fn.
//
// A walk that fails or aborts leaves the elements and annotations of s
// unchanged.
func (s *Stack[T, A]) WalkMut(w Walker[T, A], fn func(b *BranchMut[T, A]) error) (found bool, err error) {
	levels, err := s.walk(w, true)
	if err != nil || levels == nil {
		return false, err
	}
	b := &BranchMut[T, A]{levels: levels}
	defer b.release(&s.ctx)
	return true, fn(b)
}

func (s *Stack[T, A]) walk(w Walker[T, A], mutable bool) ([]level[T, A], error) {
	c := &s.ctx
	if mutable {
		s.root = c.writableNode(s.root)
	}
	n, height := s.root, s.height
	var levels []level[T, A]
	for {
		step := w.Walk(NodeView[T, A]{n: n})
		if step.kind != stepAbort && (step.index < 0 || step.index >= Fanout) {
			panic("nstack: walker stepped outside the node")
		}
		switch step.kind {
		case stepAbort:
			return nil, nil
		case stepFound:
			if !n.leaf || !n.items[step.index].valid {
				panic("nstack: walker found a slot holding no element")
			}
			return append(levels, level[T, A]{n: n, index: step.index}), nil
		case stepInto:
			if n.leaf || !n.links[step.index].valid {
				panic("nstack: walker descended into a slot holding no subtree")
			}
			levels = append(levels, level[T, A]{n: n, index: step.index})
			l := &n.links[step.index]
			if mutable {
				if err := c.materialize(l, height-1); err != nil {
					return nil, err
				}
				n = c.mutableChild(l)
			} else {
				child, err := c.peek(l, height-1)
				if err != nil {
					return nil, err
				}
				n = child
			}
			height--
		default:
			panic("invalid step")
		}
	}
}
