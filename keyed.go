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

// Keyed is implemented by elements that carry their own ordering key.
type Keyed[K any] interface {
	Key() K
}

// maxKeyWalker descends towards the element with the largest key. Among
// equal keys the leftmost, i.e. the one pushed first, wins.
type maxKeyWalker[T any, A MaxKeyed[K], K any] struct {
	order KeyOrder[T, K]
}

func (w maxKeyWalker[T, A, K]) Walk(v NodeView[T, A]) Step {
	var best MaxKey[K]
	step := Abort()
	for i := 0; ; i++ {
		c := v.Child(i)
		switch c.Kind {
		case ChildLeaf:
			if m := w.order.leafMax(c.Item); m.greater(best, w.order.Less) {
				best, step = m, Found(i)
			}
		case ChildNode:
			if m := c.Anno.Max(); m.greater(best, w.order.Less) {
				best, step = m, Into(i)
			}
		case ChildEnd:
			return step
		}
	}
}

// FindMaxKey returns the branch to the element with the largest key under
// order, or nil if the stack is empty. If several elements share the
// largest key, the one pushed first is returned.
func FindMaxKey[T any, A MaxKeyed[K], K any](s *Stack[T, A], order KeyOrder[T, K]) (*Branch[T, A], error) {
	return s.Walk(maxKeyWalker[T, A, K]{order: order})
}

// FindMaxKeyMut calls fn with the element FindMaxKey would return, and
// recomputes the annotations above it afterwards. It returns false if the
// stack is empty.
func FindMaxKeyMut[T any, A MaxKeyed[K], K any](s *Stack[T, A], order KeyOrder[T, K], fn func(item *T) error) (bool, error) {
	return s.WalkMut(maxKeyWalker[T, A, K]{order: order}, func(b *BranchMut[T, A]) error {
		return fn(b.Leaf())
	})
}
