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

// Annotator computes the summary A of a subtree holding elements of type T.
//
// FromLeaf summarizes a single element. Combine merges the summaries of a
// node's live children (or of a leaf's live elements), in slot order. It
// must return the identity summary when annos is empty, and must not
// retain annos after returning.
//
// Both functions must be total: they are called on every mutation and have
// no way to report failure.
type Annotator[T, A any] interface {
	FromLeaf(item T) A
	Combine(annos []A) A
}

// Ordered represents the set of types for which the '<' operator work.
type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64 | ~string
}

// LessFunc[K] determines how to order keys of type 'K'. It should return true
// if within that ordering, 'a' < 'b'. The ordering may be partial: keys for
// which neither is less are treated as equal.
type LessFunc[K any] func(a, b K) bool

// Less[K] returns a default LessFunc that uses the '<' operator for types that support it.
func Less[K Ordered]() LessFunc[K] {
	return func(a, b K) bool { return a < b }
}

// Cardinality is the number of elements in a subtree.
type Cardinality uint64

// Count returns c as a plain integer.
func (c Cardinality) Count() uint64 {
	return uint64(c)
}

// Counted is implemented by summaries that can be viewed as an element
// count. Indexed lookup requires it.
type Counted interface {
	Count() uint64
}

type counting[T any] struct{}

// Counting returns the Annotator that counts elements.
func Counting[T any]() Annotator[T, Cardinality] {
	return counting[T]{}
}

func (counting[T]) FromLeaf(T) Cardinality { return 1 }

func (counting[T]) Combine(annos []Cardinality) Cardinality {
	return sumCounts(annos)
}

func sumCounts[A Counted](annos []A) Cardinality {
	var sum uint64
	for _, a := range annos {
		sum += a.Count()
	}
	return Cardinality(sum)
}

// MaxKey is the largest key in a subtree. A MaxKey with Valid false means
// the subtree holds no elements, and is smaller than every real key.
type MaxKey[K any] struct {
	Key   K    `cbor:"1,keyasint"`
	Valid bool `cbor:"2,keyasint"`
}

// Max returns m itself, so MaxKey satisfies MaxKeyed.
func (m MaxKey[K]) Max() MaxKey[K] {
	return m
}

// greater reports whether m is strictly greater than other.
func (m MaxKey[K]) greater(other MaxKey[K], less LessFunc[K]) bool {
	if !m.Valid {
		return false
	}
	return !other.Valid || less(other.Key, m.Key)
}

// MaxKeyed is implemented by summaries that can be viewed as a maximum key.
// Max key search requires it.
type MaxKeyed[K any] interface {
	Max() MaxKey[K]
}

// KeyOrder describes how to obtain an ordered key from an element.
type KeyOrder[T, K any] struct {
	Key  func(item T) K
	Less LessFunc[K]
}

// OrderedKeys returns the KeyOrder of elements that are their own key.
func OrderedKeys[K Ordered]() KeyOrder[K, K] {
	return KeyOrder[K, K]{
		Key:  func(item K) K { return item },
		Less: Less[K](),
	}
}

// ByKey returns the KeyOrder of elements implementing Keyed.
func ByKey[T Keyed[K], K Ordered]() KeyOrder[T, K] {
	return KeyOrder[T, K]{
		Key:  func(item T) K { return item.Key() },
		Less: Less[K](),
	}
}

func (o KeyOrder[T, K]) leafMax(item T) MaxKey[K] {
	return MaxKey[K]{Key: o.Key(item), Valid: true}
}

type maxKeys[T, K any] struct {
	order KeyOrder[T, K]
}

// MaxKeys returns the Annotator tracking the largest key under order.
func MaxKeys[T, K any](order KeyOrder[T, K]) Annotator[T, MaxKey[K]] {
	return maxKeys[T, K]{order: order}
}

func (m maxKeys[T, K]) FromLeaf(item T) MaxKey[K] {
	return m.order.leafMax(item)
}

func (m maxKeys[T, K]) Combine(annos []MaxKey[K]) MaxKey[K] {
	return maxOf(annos, m.order.Less)
}

// maxOf returns the greatest summary in annos. Equal maxima resolve to the
// leftmost one.
func maxOf[A MaxKeyed[K], K any](annos []A, less LessFunc[K]) MaxKey[K] {
	var best MaxKey[K]
	for _, a := range annos {
		if m := a.Max(); m.greater(best, less) {
			best = m
		}
	}
	return best
}

// Unit is the empty summary, for stacks that need no annotation.
type Unit struct{}

type unannotated[T any] struct{}

// Unannotated returns the Annotator producing Unit for every subtree.
func Unannotated[T any]() Annotator[T, Unit] {
	return unannotated[T]{}
}

func (unannotated[T]) FromLeaf(T) Unit    { return Unit{} }
func (unannotated[T]) Combine([]Unit) Unit { return Unit{} }

// CountMax carries both an element count and a maximum key, so a single
// stack answers indexed and max key queries.
type CountMax[K any] struct {
	Cardinality Cardinality `cbor:"1,keyasint"`
	MaxKey      MaxKey[K]   `cbor:"2,keyasint"`
}

// Count implements Counted.
func (c CountMax[K]) Count() uint64 { return c.Cardinality.Count() }

// Max implements MaxKeyed.
func (c CountMax[K]) Max() MaxKey[K] { return c.MaxKey }

type countMax[T, K any] struct {
	order KeyOrder[T, K]
}

// CountsAndMaxKeys returns the Annotator producing CountMax summaries.
func CountsAndMaxKeys[T, K any](order KeyOrder[T, K]) Annotator[T, CountMax[K]] {
	return countMax[T, K]{order: order}
}

func (c countMax[T, K]) FromLeaf(item T) CountMax[K] {
	return CountMax[K]{Cardinality: 1, MaxKey: c.order.leafMax(item)}
}

func (c countMax[T, K]) Combine(annos []CountMax[K]) CountMax[K] {
	return CountMax[K]{
		Cardinality: sumCounts(annos),
		MaxKey:      maxOf(annos, c.order.Less),
	}
}
