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
	"fmt"
	"io"
	"strings"

	"github.com/google/nstack/store"
)

// slot is an optional element in a leaf.
type slot[T any] struct {
	item  T
	valid bool
}

// link is an optional, annotated reference from an internal node to a
// child subtree.
//
// A link whose child is nil refers to a subtree that is only known by its
// store id; anno is still current, because it was stored next to the id.
// id is the zero value whenever the child has not been stored since it was
// last changed.
type link[T, A any] struct {
	child *node[T, A]
	anno  A
	id    store.ID
	valid bool
}

// node is either a leaf holding up to Fanout elements or an internal node
// holding up to Fanout links.
//
// It must at all times maintain the invariants that:
//   - occupied slots form a prefix of items (leaf) or links (internal)
//   - every occupied element below the root is at the same depth
//   - only the child in slot 0 of an internal node may be an empty subtree,
//     and only when the whole internal node is empty
type node[T, A any] struct {
	leaf  bool
	items [Fanout]slot[T]
	links [Fanout]link[T, A]
}

// lastLink returns the index of the last occupied link, or -1.
func (n *node[T, A]) lastLink() int {
	for i := Fanout - 1; i >= 0; i-- {
		if n.links[i].valid {
			return i
		}
	}
	return -1
}

// push adds item to the first empty leaf slot on the rightmost path of n.
//
// If every slot in the subtree is taken, push returns ok == false and the
// height of n, which is the height a new sibling subtree needs to take the
// item instead.
func (n *node[T, A]) push(item T, c *stackContext[T, A]) (depth int, ok bool) {
	if n.leaf {
		for i := range n.items {
			if !n.items[i].valid {
				n.items[i] = slot[T]{item: item, valid: true}
				return 0, true
			}
		}
		return 0, false
	}
	i := n.lastLink()
	if i < 0 {
		panic("nstack: push into internal node without children")
	}
	l := &n.links[i]
	depth, ok = c.mutableChild(l).push(item, c)
	switch {
	case ok:
		c.refresh(l)
		return 0, true
	case i == Fanout-1:
		return depth + 1, false
	}
	if l.child.leaf != (depth == 0) {
		panic("nstack: mixed leaf and internal siblings")
	}
	n.links[i+1] = c.newLink(c.spine(item, depth))
	return 0, true
}

// popResult details what a node.pop call removed.
type popResult int

const (
	popEmpty popResult = iota // nothing to remove in the subtree
	popOK                     // removed an element, the subtree is not empty
	popLast                   // removed the element in slot 0, the subtree is now empty
)

// pop removes the element in the last occupied leaf slot of n.
func (n *node[T, A]) pop(c *stackContext[T, A]) (item T, res popResult) {
	if n.leaf {
		for i := Fanout - 1; i >= 0; i-- {
			if n.items[i].valid {
				item = n.items[i].item
				n.items[i] = slot[T]{}
				if i == 0 {
					return item, popLast
				}
				return item, popOK
			}
		}
		return item, popEmpty
	}
	i := n.lastLink()
	if i < 0 {
		return item, popEmpty
	}
	l := &n.links[i]
	item, res = c.mutableChild(l).pop(c)
	switch res {
	case popEmpty:
		// Only the spine left behind in slot 0 by earlier pops may be empty.
		if i > 0 {
			panic("nstack: pop reached an empty subtree")
		}
		return item, popEmpty
	case popLast:
		if i > 0 {
			c.freeNode(l.child)
			n.links[i] = link[T, A]{}
			return item, popOK
		}
	}
	c.refresh(l)
	return item, res
}

// print is used for testing/debugging purposes.
func (n *node[T, A]) print(w io.Writer, level int) {
	indent := strings.Repeat("  ", level)
	if n.leaf {
		var items []T
		for _, s := range n.items {
			if s.valid {
				items = append(items, s.item)
			}
		}
		fmt.Fprintf(w, "%sLEAF:%v\n", indent, items)
		return
	}
	for i, l := range n.links {
		if !l.valid {
			continue
		}
		fmt.Fprintf(w, "%sLINK[%d]:%+v\n", indent, i, l.anno)
		if l.child == nil {
			fmt.Fprintf(w, "%s  STORED:%s\n", indent, l.id)
			continue
		}
		l.child.print(w, level+1)
	}
}

// stackContext handles annotation, node allocation and the sharing of
// nodes.
//
// Each Stack instance has its own context which keeps track of which
// nodes in the stack are shared and which nodes are unshared.
type stackContext[T, A any] struct {
	annotator Annotator[T, A]
	// writables is the set of nodes the stack can safely write to. That is,
	// the set of nodes that are unshared. nil means all nodes are unshared.
	// empty means all nodes are shared.
	writables map[*node[T, A]]bool
	freelist  *FreeList[T, A]
	// loader materializes children only known by id. nil for stacks that
	// were never restored.
	loader store.Store
	// persisted holds the blob of every id cached in a link reachable from
	// this stack.
	persisted store.Store
}

// shared marks all nodes shared.
func (c *stackContext[T, A]) shared() {
	c.writables = make(map[*node[T, A]]bool)
}

// newNode returns a new, empty node.
func (c *stackContext[T, A]) newNode() *node[T, A] {
	return c.adopt(c.freelist.newNode())
}

// adopt marks n, which must not be reachable from any other stack, as
// writable.
func (c *stackContext[T, A]) adopt(n *node[T, A]) *node[T, A] {
	if c.writables != nil {
		c.writables[n] = true
	}
	return n
}

func (c *stackContext[T, A]) newLeaf() *node[T, A] {
	n := c.newNode()
	n.leaf = true
	return n
}

func (c *stackContext[T, A]) writable(n *node[T, A]) bool {
	return c.writables == nil || c.writables[n]
}

// freeNode frees n and every materialized node below it.
func (c *stackContext[T, A]) freeNode(n *node[T, A]) {
	if n == nil || !c.writable(n) {
		return
	}
	for i := range n.links {
		if n.links[i].valid {
			c.freeNode(n.links[i].child)
		}
	}
	if c.writables != nil {
		delete(c.writables, n)
	}
	c.freelist.freeNode(n)
}

// writableNode returns a writable version of n by copying n and marking
// the copy unshared. If n is already unshared, writableNode returns
// n itself.
func (c *stackContext[T, A]) writableNode(n *node[T, A]) *node[T, A] {
	if c.writable(n) {
		return n
	}
	result := c.newNode()
	*result = *n
	return result
}

// mutableChild makes the materialized child of l writable and returns it.
func (c *stackContext[T, A]) mutableChild(l *link[T, A]) *node[T, A] {
	if l.child == nil {
		panic("nstack: mutating a child that was not materialized")
	}
	l.child = c.writableNode(l.child)
	return l.child
}

// annotate computes the summary of n from its live elements or links.
func (c *stackContext[T, A]) annotate(n *node[T, A]) A {
	var buf [Fanout]A
	annos := buf[:0]
	if n.leaf {
		for _, s := range n.items {
			if s.valid {
				annos = append(annos, c.annotator.FromLeaf(s.item))
			}
		}
	} else {
		for _, l := range n.links {
			if l.valid {
				annos = append(annos, l.anno)
			}
		}
	}
	return c.annotator.Combine(annos)
}

// newLink returns a link owning child, with its annotation computed.
func (c *stackContext[T, A]) newLink(child *node[T, A]) link[T, A] {
	return link[T, A]{child: child, anno: c.annotate(child), valid: true}
}

// refresh recomputes the annotation of l after its child changed.
func (c *stackContext[T, A]) refresh(l *link[T, A]) {
	l.anno = c.annotate(l.child)
	l.id = store.ID{}
}

// spine returns a subtree of the given height holding only item, in the
// first slot of every level.
func (c *stackContext[T, A]) spine(item T, height int) *node[T, A] {
	n := c.newLeaf()
	n.items[0] = slot[T]{item: item, valid: true}
	for ; height > 0; height-- {
		parent := c.newNode()
		parent.links[0] = c.newLink(n)
		n = parent
	}
	return n
}
