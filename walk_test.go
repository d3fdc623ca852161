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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

type job struct {
	Name     string `cbor:"1,keyasint"`
	Priority int    `cbor:"2,keyasint"`
}

func (j job) Key() int { return j.Priority }

func newMax(t testing.TB, keys ...int) *Stack[int, MaxKey[int]] {
	t.Helper()
	s := New(MaxKeys(OrderedKeys[int]()))
	for _, k := range keys {
		if err := s.Push(k); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func newCountMax(t testing.TB, keys ...int) *Stack[int, CountMax[int]] {
	t.Helper()
	s := New(CountsAndMaxKeys(OrderedKeys[int]()))
	for _, k := range keys {
		if err := s.Push(k); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestNth(t *testing.T) {
	n := *stackSize
	s := newCounted()
	pushRange(t, s, n)
	for i := 0; i < n; i++ {
		b, err := Nth(s, uint64(i))
		if err != nil || b == nil {
			t.Fatalf("nth(%d): (%v, %v)", i, b, err)
		}
		if b.Leaf() != uint64(i) {
			t.Fatalf("nth(%d) = %d", i, b.Leaf())
		}
	}
	for _, i := range []uint64{uint64(n), uint64(n) + 1, 1 << 40} {
		if b, err := Nth(s, i); b != nil || err != nil {
			t.Fatalf("nth(%d) out of range: (%v, %v)", i, b, err)
		}
	}
}

func TestNthPath(t *testing.T) {
	s := newCounted()
	pushRange(t, s, 2*Fanout*Fanout)
	for _, tc := range []struct {
		index uint64
		path  []int
	}{
		{0, []int{0, 0, 0}},
		{3, []int{0, 0, 3}},
		{4, []int{0, 1, 0}},
		{Fanout * Fanout, []int{1, 0, 0}},
		{2*Fanout*Fanout - 1, []int{1, 3, 3}},
	} {
		b, _ := Nth(s, tc.index)
		if diff := cmp.Diff(tc.path, b.Path()); diff != "" {
			t.Errorf("nth(%d) path (-want, +got):\n%s", tc.index, diff)
		}
	}
}

func TestNthMut(t *testing.T) {
	n := 100
	s := newCounted()
	pushRange(t, s, n)
	for i := 0; i < n; i++ {
		found, err := NthMut(s, uint64(i), func(v *uint64) error {
			*v += 1000
			return nil
		})
		if !found || err != nil {
			t.Fatalf("nthmut(%d): (%v, %v)", i, found, err)
		}
	}
	if got := s.Annotation().Count(); got != uint64(n) {
		t.Fatalf("count after mutation: %d", got)
	}
	for i := 0; i < n; i++ {
		if got, _, _ := Get(s, uint64(i)); got != uint64(i+1000) {
			t.Fatalf("get(%d) = %d", i, got)
		}
	}
	if found, err := NthMut(s, uint64(n), func(*uint64) error {
		t.Fatal("called for an out of range index")
		return nil
	}); found || err != nil {
		t.Fatalf("nthmut out of range: (%v, %v)", found, err)
	}
}

func TestUniformDepth(t *testing.T) {
	n := 256
	s := newCounted()
	pushRange(t, s, n)
	want := s.Height() + 1
	for i := 0; i < n; i++ {
		b, _ := Nth(s, uint64(i))
		if b.Depth() != want || len(b.Path()) != want {
			t.Fatalf("nth(%d): depth %d, want %d", i, b.Depth(), want)
		}
	}
}

func TestWalkEmpty(t *testing.T) {
	s := newCounted()
	if b, err := Nth(s, 0); b != nil || err != nil {
		t.Fatalf("nth on empty stack: (%v, %v)", b, err)
	}
	m := newMax(t)
	if b, err := FindMaxKey(m, OrderedKeys[int]()); b != nil || err != nil {
		t.Fatalf("max on empty stack: (%v, %v)", b, err)
	}
	if m.Annotation().Valid {
		t.Fatalf("empty stack has a max key: %+v", m.Annotation())
	}
	// A drained stack keeps its levels but still holds nothing.
	pushRange(t, s, 50)
	popAll(t, s)
	if b, err := Nth(s, 0); b != nil || err != nil {
		t.Fatalf("nth on drained stack: (%v, %v)", b, err)
	}
}

func TestFindMaxKey(t *testing.T) {
	for _, tc := range []struct {
		keys []int
		path []int
	}{
		{[]int{3, 1, 3, 2}, []int{0}},
		{[]int{1, 2, 3, 4}, []int{3}},
		{[]int{1, 9, 2, 3, 4, 9, 5}, []int{0, 1}},
		{[]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17}, []int{1, 0, 0}},
		{[]int{-5, -3, -4}, []int{1}},
	} {
		t.Run(fmt.Sprint(tc.keys), func(t *testing.T) {
			s := newMax(t, tc.keys...)
			b, err := FindMaxKey(s, OrderedKeys[int]())
			if err != nil || b == nil {
				t.Fatalf("max: (%v, %v)", b, err)
			}
			if diff := cmp.Diff(tc.path, b.Path()); diff != "" {
				t.Fatalf("path (-want, +got):\n%s", diff)
			}
			if got, want := b.Leaf(), s.Annotation().Key; got != want {
				t.Fatalf("leaf %d, root max %d", got, want)
			}
		})
	}
}

func TestFindMaxKeyTiesPreferFirstPushed(t *testing.T) {
	s := New(MaxKeys(ByKey[job, int]()))
	for _, j := range []job{
		{"a", 1}, {"b", 7}, {"c", 2}, {"d", 3},
		{"e", 7}, {"f", 7}, {"g", 0},
	} {
		s.Push(j)
	}
	b, _ := FindMaxKey(s, ByKey[job, int]())
	if got := b.Leaf().Name; got != "b" {
		t.Fatalf("max job %q, want %q", got, "b")
	}
}

func TestFindMaxKeyMut(t *testing.T) {
	order := OrderedKeys[int]()
	s := newMax(t, 5, 8, 1, 8, 2, 6)
	// Repeatedly lowering the maximum visits elements in key order.
	var seen []int
	for i := 0; i < 6; i++ {
		found, err := FindMaxKeyMut(s, order, func(v *int) error {
			seen = append(seen, *v)
			*v = -1 - i
			return nil
		})
		if !found || err != nil {
			t.Fatalf("max mut: (%v, %v)", found, err)
		}
	}
	if diff := cmp.Diff([]int{8, 8, 6, 5, 2, 1}, seen); diff != "" {
		t.Fatalf("visit order (-want, +got):\n%s", diff)
	}
	if got := s.Annotation(); got != (MaxKey[int]{Key: -1, Valid: true}) {
		t.Fatalf("root max %+v", got)
	}
}

func TestCountMax(t *testing.T) {
	order := ByKey[job, int]()
	s := New(CountsAndMaxKeys(order))
	for i := 0; i < 40; i++ {
		s.Push(job{Name: fmt.Sprint("job", i), Priority: i % 7})
	}
	if got := s.Annotation(); got.Count() != 40 || got.Max().Key != 6 {
		t.Fatalf("root summary %+v", got)
	}
	if j, ok, _ := Get(s, 21); !ok || j.Name != "job21" {
		t.Fatalf("get(21) = (%+v, %v)", j, ok)
	}
	if _, err := NthMut(s, 30, func(j *job) error {
		j.Priority = 100
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	b, _ := FindMaxKey(s, order)
	if got := b.Leaf(); got.Name != "job30" {
		t.Fatalf("max after raising job30: %+v", got)
	}
	if got := s.Annotation(); got.Count() != 40 || got.Max().Key != 100 {
		t.Fatalf("root summary after mutation %+v", got)
	}
}

func TestWalkMutError(t *testing.T) {
	s := newCountMax(t, 1, 2, 3, 4, 5, 6, 7)
	errStop := errors.New("stop")
	found, err := s.WalkMut(&indexWalker[int, CountMax[int]]{}, func(b *BranchMut[int, CountMax[int]]) error {
		*b.Leaf() = 50
		return errStop
	})
	// The change made before the error stays, and is summarized.
	if !found || errors.Cause(err) != errStop {
		t.Fatalf("walk: (%v, %v)", found, err)
	}
	if got := s.Annotation().Max().Key; got != 50 {
		t.Fatalf("root max %d, want 50", got)
	}
}

func TestWalkMutPanic(t *testing.T) {
	s := newCountMax(t, 1, 2, 3, 4, 5, 6, 7)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		s.WalkMut(&indexWalker[int, CountMax[int]]{remaining: 2}, func(b *BranchMut[int, CountMax[int]]) error {
			*b.Leaf() = 60
			panic("callback failed")
		})
	}()
	if got := s.Annotation().Max().Key; got != 60 {
		t.Fatalf("root max %d after panicking callback, want 60", got)
	}
}

func TestWalkMutBranch(t *testing.T) {
	s := newCounted()
	pushRange(t, s, 20)
	s.WalkMut(&indexWalker[uint64, Cardinality]{remaining: 17}, func(b *BranchMut[uint64, Cardinality]) error {
		if diff := cmp.Diff([]int{1, 0, 1}, b.Path()); diff != "" {
			t.Errorf("path (-want, +got):\n%s", diff)
		}
		if b.Depth() != 3 || *b.Leaf() != 17 {
			t.Errorf("depth %d leaf %d", b.Depth(), *b.Leaf())
		}
		return nil
	})
}

func TestWalkerFunc(t *testing.T) {
	s := newCounted()
	pushRange(t, s, 10)
	// Always take the rightmost occupied slot: the top of the stack.
	top := WalkerFunc[uint64, Cardinality](func(v NodeView[uint64, Cardinality]) Step {
		last := -1
		for i := 0; v.Child(i).Kind != ChildEnd; i++ {
			switch v.Child(i).Kind {
			case ChildLeaf:
				last = i
			case ChildNode:
				last = i
			}
		}
		switch {
		case last < 0:
			return Abort()
		case v.Child(last).Kind == ChildLeaf:
			return Found(last)
		}
		return Into(last)
	})
	b, err := s.Walk(top)
	if err != nil || b == nil || b.Leaf() != 9 {
		t.Fatalf("walk to top: (%v, %v)", b, err)
	}
}

func TestNodeView(t *testing.T) {
	s := newCounted()
	pushRange(t, s, 6)
	v := NodeView[uint64, Cardinality]{n: s.root}
	want := []Child[uint64, Cardinality]{
		{Kind: ChildNode, Anno: 4},
		{Kind: ChildNode, Anno: 2},
		{Kind: ChildEmpty},
		{Kind: ChildEmpty},
		{Kind: ChildEnd},
	}
	var got []Child[uint64, Cardinality]
	for i := 0; i <= Fanout; i++ {
		got = append(got, v.Child(i))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("children (-want, +got):\n%s", diff)
	}
	if c := v.Child(-1); c.Kind != ChildEnd {
		t.Fatalf("child(-1) kind %v", c.Kind)
	}
}

func TestWalkerContract(t *testing.T) {
	s := newCounted()
	pushRange(t, s, 6)
	for name, w := range map[string]WalkerFunc[uint64, Cardinality]{
		"found on internal node": func(NodeView[uint64, Cardinality]) Step { return Found(0) },
		"into empty slot":        func(NodeView[uint64, Cardinality]) Step { return Into(2) },
		"out of node":            func(NodeView[uint64, Cardinality]) Step { return Into(Fanout) },
		"negative index":         func(NodeView[uint64, Cardinality]) Step { return Found(-1) },
		"into leaf": func(v NodeView[uint64, Cardinality]) Step {
			if v.Child(0).Kind == ChildLeaf {
				return Into(0)
			}
			return Into(1)
		},
		"found empty slot": func(v NodeView[uint64, Cardinality]) Step {
			if v.Child(0).Kind == ChildLeaf {
				return Found(3)
			}
			return Into(1)
		},
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			s.Walk(w)
		})
	}
}
