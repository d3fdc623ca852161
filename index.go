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

// indexWalker finds the element at a position, counted from the bottom of
// the stack.
type indexWalker[T any, A Counted] struct {
	remaining uint64
}

func (w *indexWalker[T, A]) Walk(v NodeView[T, A]) Step {
	for i := 0; ; i++ {
		c := v.Child(i)
		switch c.Kind {
		case ChildLeaf:
			if w.remaining == 0 {
				return Found(i)
			}
			w.remaining--
		case ChildNode:
			count := c.Anno.Count()
			if w.remaining < count {
				return Into(i)
			}
			w.remaining -= count
		case ChildEnd:
			return Abort()
		}
	}
}

// Nth returns the branch to the element at index, where the first element
// pushed has index 0, or nil if index is out of range.
func Nth[T any, A Counted](s *Stack[T, A], index uint64) (*Branch[T, A], error) {
	return s.Walk(&indexWalker[T, A]{remaining: index})
}

// NthMut calls fn with a pointer to the element at index, and recomputes
// the annotations above it afterwards. It returns false if index is out of
// range.
func NthMut[T any, A Counted](s *Stack[T, A], index uint64, fn func(item *T) error) (bool, error) {
	return s.WalkMut(&indexWalker[T, A]{remaining: index}, func(b *BranchMut[T, A]) error {
		return fn(b.Leaf())
	})
}

// Get returns the element at index, or (zeroValue, false) if index is out
// of range.
func Get[T any, A Counted](s *Stack[T, A], index uint64) (_ T, _ bool, err error) {
	b, err := Nth(s, index)
	if err != nil || b == nil {
		return
	}
	return b.Leaf(), true, nil
}
