// Copyright 2024 The Cockroach Authors
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

// Package waitfree is a Go implementation of a wait-free dynamic array
// built on descriptors and cooperative helping, in the style of Dechev et
// al.'s lock-free vector and Feldman et al.'s wait-free vector. See:
// https://www.stroustrup.com/lock-free-vector.pdf and
// https://arxiv.org/abs/1507.01813.
//
// # Slots and descriptors
//
// Every index of the vector is a single atomic word. A word is empty, a
// value, or a descriptor: a published record of an in-flight change to that
// slot. A thread that wants to change a slot first CASes its descriptor
// into it and then "completes" the descriptor, deciding its outcome with a
// CAS on a field of the descriptor and finally CASing the descriptor out
// of the slot. Any thread that finds a descriptor in a slot completes it
// before going on; each step is a CAS that only the first thread wins, so
// helping is idempotent.
//
//	push at 3:   [ a | b | c | P ]    P passes iff slot 2 holds a value
//	pop  at 3:   [ a | b | S | P ]    P links sub-descriptor S over c; the
//	                                  first linked S wins and empties slot 2
//	shift at 1:  [ a |s1 |s2 |s3 ]    a chain of nodes, one per slot, that
//	                                  settles to the shifted values
//
// The position of a push is linearized when its descriptor passes, which
// requires every earlier index to be populated; the element count (Len) is
// adjusted afterwards and is advisory for bounds checks only.
//
// # Helping
//
// Retry loops are lock-free on their own. To make them wait-free, an
// operation that fails more than its retry limit (WithRetryLimit, 1000 by
// default) is announced in a per-thread table. Every public call first helps
// one other thread's announced operation, round robin, so once announced an
// operation completes within a bounded number of calls by the other
// threads. Announced operations are guarded so that exactly one descriptor
// acts on their behalf no matter how many helpers run them.
//
// # Resizing
//
// The storage is a chain of generations, each of capacity 2n+1 of the one
// it replaces. Growth is incremental: the new generation marks its prefix
// as not-copied and every index is pulled forward on first access, or by
// the thread that published the generation. Copying freezes the source slot
// first so a late writer to the old generation fails its CAS and retries
// against the new one.
//
// # Memory
//
// Descriptors and value boxes are never reused, which rules out ABA on the
// CAS-by-identity used everywhere. Retired descriptors are reclaimed by the
// garbage collector once unreachable.
//
// # Thread ids
//
// Every call takes the caller's thread id in [0, NumThreads). A thread id
// must not be used by two goroutines at the same time.
package waitfree

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	debug = false

	// defaultRetryLimit bounds in-place retries before an operation is
	// announced.
	defaultRetryLimit = 1000

	// minElementSize keeps element pointers distinct and aligned like a
	// tagged pointer would need.
	minElementSize = 4
)

// Stats are monotonically increasing counters describing how much
// cooperation a Vector has needed.
type Stats struct {
	// Helped counts announced operations run by a thread other than the
	// one that announced them.
	Helped uint64
	// Announced counts operations that exhausted their retry limit.
	Announced uint64
	// Resizes counts storage generations published.
	Resizes uint64
}

type counters struct {
	helped    atomic.Uint64
	announced atomic.Uint64
	resizes   atomic.Uint64
}

// Vector is a growable array of *T supporting concurrent PushBack, PopBack,
// At, CompareAndWrite, Insert and Erase without locks.
//
// A Vector IS goroutine-safe, provided every goroutine uses its own thread
// id.
type Vector[T any] struct {
	// storage is the current generation. Reads and writes always resolve
	// through it, never through a generation held from an earlier load.
	storage atomic.Pointer[generation[T]]
	// size is the logical element count.
	size atomic.Int64
	// threads is the announce table, one row per thread id.
	threads []threadState
	// limit is the per-operation failure budget.
	limit           int
	initialCapacity int
	// Sentinels. notCopied marks not yet migrated slots; popFailed and
	// shiftFailed are the failure markers of pop and shift links.
	notCopied   *word[T]
	popFailed   *popSubDescr[T]
	shiftFailed *shiftDescr[T]
	stats       counters
}

// New constructs a Vector for numThreads cooperating threads. T must be at
// least minElementSize bytes wide.
func New[T any](numThreads int, options ...option[T]) *Vector[T] {
	var zero T
	if sz := unsafe.Sizeof(zero); sz < minElementSize {
		panic(fmt.Errorf("%w: %T is %d bytes, need %d", ErrElementSize, zero, sz, minElementSize))
	}
	if numThreads <= 0 {
		panic(fmt.Errorf("%w: need at least one thread, got %d", ErrThreadID, numThreads))
	}

	v := &Vector[T]{
		threads:     make([]threadState, numThreads),
		limit:       defaultRetryLimit,
		notCopied:   &word[T]{bits: tagDescriptor},
		popFailed:   &popSubDescr[T]{},
		shiftFailed: &shiftDescr[T]{},
	}
	for _, op := range options {
		op.apply(v)
	}
	v.storage.Store(newGeneration(v, nil, v.initialCapacity))
	return v
}

// Len returns the number of elements in the vector. The count is advisory
// while operations are in flight: a pop can account for an element before
// the push that stored it has, so the counter may briefly dip below zero.
// Len never reports less than zero.
func (v *Vector[T]) Len() int {
	return max(int(v.size.Load()), 0)
}

// Capacity returns the capacity of the current storage generation.
func (v *Vector[T]) Capacity() int {
	return v.storage.Load().capacity
}

// NumThreads returns the number of thread ids the vector accepts.
func (v *Vector[T]) NumThreads() int {
	return len(v.threads)
}

// Stats returns a snapshot of the vector's counters.
func (v *Vector[T]) Stats() Stats {
	return Stats{
		Helped:    v.stats.helped.Load(),
		Announced: v.stats.announced.Load(),
		Resizes:   v.stats.resizes.Load(),
	}
}

func (v *Vector[T]) getSpot(pos int) *slot[T] {
	return v.storage.Load().getSpot(pos)
}

// frontEmpty reports whether index 0 holds nothing, which is the only
// state in which a pop may report an empty vector. It never grows the
// storage.
func (v *Vector[T]) frontEmpty() bool {
	g := v.storage.Load()
	return g.capacity == 0 || g.getSpot(0).load() == nil
}

// settle swaps expected for replacement at pos, following the slot across
// resizes. It returns false once the slot no longer holds expected, which
// means another thread settled it first.
func (v *Vector[T]) settle(pos int, expected, replacement *word[T]) bool {
	for {
		s := v.getSpot(pos)
		w := s.load()
		if w.unmark() != expected {
			return false
		}
		if !w.isResizing() && s.cas(expected, replacement) {
			return true
		}
	}
}

// At returns the element at pos. ok is false if pos is outside [0, Len())
// or the slot is empty.
func (v *Vector[T]) At(tid, pos int) (value *T, ok bool) {
	v.helpIfNeeded(tid)

	if pos < 0 || pos >= v.Len() {
		return nil, false
	}
	value = v.getSpot(pos).load().observe()
	return value, value != nil
}

// PushBack appends value and returns the index it was stored at.
func (v *Vector[T]) PushBack(tid int, value *T) int {
	if value == nil {
		panic(fmt.Errorf("%w: PushBack", ErrNilValue))
	}
	v.helpIfNeeded(tid)

	pos := v.Len()
	for failures := 0; failures <= v.limit; failures++ {
		spot := v.getSpot(pos)
		expected := spot.load()
		switch {
		case expected == nil:
			if pos == 0 {
				// Nothing precedes index 0, so there is nothing to check.
				if spot.cas(nil, valueWord(value)) {
					v.size.Add(1)
					return 0
				}
				pos++
				continue
			}
			d := newPushDescr(v, value, pos, nil)
			if spot.cas(nil, d.packed) {
				if d.complete(tid) {
					v.size.Add(1)
					return pos
				}
				pos--
			}
		case expected.isDescriptor():
			expected.unpack().complete(tid)
		case expected.isResizing():
		default:
			pos++
		}
	}

	op := newPushOp(v, value)
	v.announceOp(tid, op)
	return int(op.result.Load())
}

// PopBack removes the last element and returns it. ok is false if the
// vector was empty.
func (v *Vector[T]) PopBack(tid int) (value *T, ok bool) {
	v.helpIfNeeded(tid)

	pos := v.Len()
	for failures := 0; failures <= v.limit; failures++ {
		if pos <= 0 {
			if v.frontEmpty() {
				return nil, false
			}
			// A forced failure walked us down; start over from the end.
			pos = max(v.Len(), 1)
			continue
		}
		spot := v.getSpot(pos)
		expected := spot.load()
		switch {
		case expected == nil:
			d := newPopDescr(v, pos, nil)
			if spot.cas(nil, d.packed) {
				if d.complete(tid) {
					v.size.Add(-1)
					return d.child.Load().value(), true
				}
				pos--
			}
		case expected.isDescriptor():
			expected.unpack().complete(tid)
		case expected.isResizing():
		default:
			pos++
		}
	}

	op := newPopOp(v)
	v.announceOp(tid, op)
	r := op.result.Load()
	return r.value, r.ok
}

// CompareAndWrite replaces the element at pos with new if it is currently
// old, comparing by pointer identity. On success it returns (old, true). On
// failure it returns the element it found instead. Positions outside
// [0, Len()) and a nil new value always fail.
func (v *Vector[T]) CompareAndWrite(tid, pos int, old, new *T) (prev *T, ok bool) {
	v.helpIfNeeded(tid)

	if new == nil || pos < 0 || pos >= v.Len() {
		return nil, false
	}
	for failures := 0; failures <= v.limit; failures++ {
		spot := v.getSpot(pos)
		w := spot.load()
		switch {
		case w.isDescriptor():
			w.unpack().complete(tid)
		case w.isResizing():
		case w == nil || w.value() != old:
			return w.value(), false
		default:
			if spot.cas(w, valueWord(new)) {
				return old, true
			}
			cur := v.getSpot(pos).load().unmark()
			if cur == w {
				// Only a resize got in the way; the value is unchanged.
				continue
			}
			return cur.observe(), false
		}
	}

	op := newWriteOp(v, pos, old, new)
	v.announceOp(tid, op)
	r := op.result.Load()
	return r.prev, r.ok
}

// Insert places value at pos, shifting the elements at and after pos one
// position to the right. It returns false, leaving the vector unchanged,
// if pos is not in [0, Len()).
func (v *Vector[T]) Insert(tid, pos int, value *T) bool {
	if value == nil {
		panic(fmt.Errorf("%w: Insert", ErrNilValue))
	}
	v.helpIfNeeded(tid)

	if pos < 0 {
		return false
	}
	return v.shift(tid, newInsertOp(v, pos, value), +1)
}

// Erase removes the element at pos, shifting the elements after it one
// position to the left. It returns false, leaving the vector unchanged, if
// pos is not in [0, Len()).
func (v *Vector[T]) Erase(tid, pos int) bool {
	v.helpIfNeeded(tid)

	if pos < 0 {
		return false
	}
	return v.shift(tid, newEraseOp(v, pos), -1)
}

func (v *Vector[T]) shift(tid int, op *shiftOp[T], delta int64) bool {
	if !op.run(tid, v.limit) {
		v.announceOp(tid, op)
	}
	if op.failed() {
		return false
	}
	op.clean()
	v.size.Add(delta)
	return true
}

// All calls yield sequentially for each index and element in [0, Len()).
// If yield returns false, iteration stops. The vector can be mutated during
// iteration, though there is no guarantee that the mutations will be
// visible to the iteration, and the elements seen need not form a snapshot.
func (v *Vector[T]) All(yield func(pos int, value *T) bool) {
	n := v.Len()
	for i := 0; i < n; i++ {
		value := v.getSpot(i).load().observe()
		if value == nil {
			continue
		}
		if !yield(i, value) {
			return
		}
	}
}

// verify checks the layout of a quiescent vector: values exactly in
// [0, Len()), no descriptors, nothing left frozen or not copied.
func (v *Vector[T]) verify() error {
	g := v.storage.Load()
	n := int(v.size.Load())
	if n < 0 || n > g.capacity {
		return fmt.Errorf("size %d outside capacity %d", n, g.capacity)
	}
	if g.old.Load() != nil {
		return fmt.Errorf("generation of capacity %d still linked to its predecessor", g.capacity)
	}
	for i := 0; i < g.capacity; i++ {
		w := g.slots[i].load()
		switch {
		case w == v.notCopied || w.isResizing() || w.isDescriptor():
			return fmt.Errorf("slot %d: unexpected %s", i, w)
		case i < n && w == nil:
			return fmt.Errorf("slot %d: empty below size %d", i, n)
		case i >= n && w != nil:
			return fmt.Errorf("slot %d: %s at or beyond size %d", i, w, n)
		}
	}
	return nil
}
