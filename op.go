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

package waitfree

import (
	"fmt"
	"sync/atomic"
)

// operation is an announced operation record. Once announced, any thread
// may run complete; it returns only after the operation has a result.
type operation interface {
	complete(tid int) bool
	done() bool
}

// opClaim ensures that at most one descriptor acts on behalf of an
// announced operation. Several helpers may each place a descriptor for the
// same push or pop; only the one holding the claim may pass.
type opClaim[T any] struct {
	winner atomic.Pointer[word[T]]
}

func (c *opClaim[T]) claim(w *word[T]) bool {
	return c.winner.CompareAndSwap(nil, w) || c.winner.Load() == w
}

func (c *opClaim[T]) release(w *word[T]) {
	c.winner.CompareAndSwap(w, nil)
}

// pushOp is an announced PushBack.
type pushOp[T any] struct {
	opClaim[T]
	vec   *Vector[T]
	value *T
	// result is the index the value landed at, or -1.
	result atomic.Int64
}

func newPushOp[T any](v *Vector[T], value *T) *pushOp[T] {
	op := &pushOp[T]{vec: v, value: value}
	op.result.Store(-1)
	return op
}

func (op *pushOp[T]) done() bool {
	return op.result.Load() >= 0
}

// publish records the index of the winning descriptor. Whoever sets the
// result also accounts for the new element, so the size changes once.
func (op *pushOp[T]) publish(pos int) {
	if op.result.CompareAndSwap(-1, int64(pos)) {
		op.vec.size.Add(1)
		return
	}
	if invariants {
		if r := op.result.Load(); r != int64(pos) {
			panic(fmt.Sprintf("invariant failed: push published at %d and %d", r, pos))
		}
	}
}

func (op *pushOp[T]) complete(tid int) bool {
	v := op.vec
	pos := v.Len()
	for !op.done() {
		if w := op.winner.Load(); w.isDescriptor() {
			w.unpack().complete(tid)
			continue
		}
		spot := v.getSpot(pos)
		expected := spot.load()
		switch {
		case expected.isDescriptor():
			expected.unpack().complete(tid)
		case expected.isResizing():
		case expected != nil:
			pos++
		default:
			d := newPushDescr(v, op.value, pos, op)
			if spot.cas(nil, d.packed) && !d.complete(tid) {
				if pos == 0 {
					pos++
				} else {
					pos--
				}
			}
		}
	}
	return true
}

type popResult[T any] struct {
	value *T
	ok    bool
}

// popOp is an announced PopBack.
type popOp[T any] struct {
	opClaim[T]
	vec *Vector[T]
	// empty is the claim token for deciding the vector was empty.
	empty  *word[T]
	result atomic.Pointer[popResult[T]]
}

func newPopOp[T any](v *Vector[T]) *popOp[T] {
	return &popOp[T]{vec: v, empty: &word[T]{}}
}

func (op *popOp[T]) done() bool {
	return op.result.Load() != nil
}

func (op *popOp[T]) publish(value *T) {
	if op.result.CompareAndSwap(nil, &popResult[T]{value: value, ok: true}) {
		op.vec.size.Add(-1)
		return
	}
	if invariants {
		if r := op.result.Load(); !r.ok || r.value != value {
			panic(fmt.Sprintf("invariant failed: pop published %p and %p", r.value, value))
		}
	}
}

func (op *popOp[T]) complete(tid int) bool {
	v := op.vec
	pos := v.Len()
	for !op.done() {
		switch w := op.winner.Load(); {
		case w == op.empty:
			op.result.CompareAndSwap(nil, &popResult[T]{})
			continue
		case w.isDescriptor():
			w.unpack().complete(tid)
			continue
		}
		if pos <= 0 {
			if v.frontEmpty() {
				op.claim(op.empty)
			}
			pos = max(v.Len(), 1)
			continue
		}
		spot := v.getSpot(pos)
		expected := spot.load()
		switch {
		case expected.isDescriptor():
			expected.unpack().complete(tid)
		case expected.isResizing():
		case expected != nil:
			pos++
		default:
			d := newPopDescr(v, pos, op)
			if spot.cas(nil, d.packed) && !d.complete(tid) {
				pos--
			}
		}
	}
	return true
}

type writeResult[T any] struct {
	prev *T
	ok   bool
	// by is the descriptor whose swap won, if any.
	by *writeDescr[T]
}

// writeOp is an announced CompareAndWrite.
type writeOp[T any] struct {
	vec      *Vector[T]
	pos      int
	old, new *T
	result   atomic.Pointer[writeResult[T]]
}

func newWriteOp[T any](v *Vector[T], pos int, old, new *T) *writeOp[T] {
	return &writeOp[T]{vec: v, pos: pos, old: old, new: new}
}

func (op *writeOp[T]) done() bool {
	return op.result.Load() != nil
}

func (op *writeOp[T]) complete(tid int) bool {
	v := op.vec
	for !op.done() {
		spot := v.getSpot(op.pos)
		w := spot.load()
		switch {
		case w.isDescriptor():
			w.unpack().complete(tid)
		case w.isResizing():
		case w == nil || w.value() != op.old:
			op.result.CompareAndSwap(nil, &writeResult[T]{prev: w.value()})
		default:
			d := newWriteDescr(op, w)
			if spot.cas(w, d.packed) {
				d.complete(tid)
			}
		}
	}
	// The winning descriptor may still be waiting in the slot.
	if by := op.result.Load().by; by != nil {
		by.complete(tid)
	}
	return true
}

// writeDescr performs the check-then-swap of an announced write once,
// cooperatively. Only the descriptor that sets the op's result writes the
// new value; any other restores the word it displaced.
type writeDescr[T any] struct {
	op     *writeOp[T]
	orig   *word[T]
	packed *word[T]
}

func newWriteDescr[T any](op *writeOp[T], orig *word[T]) *writeDescr[T] {
	d := &writeDescr[T]{op: op, orig: orig}
	d.packed = packDescriptor[T](d)
	return d
}

func (d *writeDescr[T]) complete(tid int) bool {
	op := d.op
	op.result.CompareAndSwap(nil, &writeResult[T]{prev: op.old, ok: true, by: d})
	if op.result.Load().by == d {
		op.vec.settle(op.pos, d.packed, valueWord(op.new))
		return true
	}
	op.vec.settle(op.pos, d.packed, d.orig)
	return false
}

func (d *writeDescr[T]) value() *T {
	if r := d.op.result.Load(); r != nil && r.by != d {
		return d.orig.value()
	}
	return d.op.new
}
