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

import "sync/atomic"

// shiftOp moves a run of elements one position right (insert) or left
// (erase). It builds a chain of shiftDescr nodes starting at pos:
//
//	pos      pos+1    pos+2    pos+3
//	[ a ] -> [ b ] -> [ c ] -> [ _ ]     chain ends at the first empty slot
//
// Each node captures the word it displaced. Once the chain reaches an empty
// slot every node is settled to valueOf(node): for insert that is the new
// value at pos and the predecessor's captured value elsewhere, for erase
// the successor's captured value (nil at the end).
type shiftOp[T any] struct {
	vec *Vector[T]
	pos int
	// incomplete is cleared once the chain has reached an empty slot.
	incomplete atomic.Bool
	// next is the first node, or the vector's shiftFailed sentinel.
	next    atomic.Pointer[shiftDescr[T]]
	valueOf func(d *shiftDescr[T]) *T
}

func newShiftOp[T any](v *Vector[T], pos int, valueOf func(d *shiftDescr[T]) *T) *shiftOp[T] {
	op := &shiftOp[T]{vec: v, pos: pos, valueOf: valueOf}
	op.incomplete.Store(true)
	return op
}

func newInsertOp[T any](v *Vector[T], pos int, value *T) *shiftOp[T] {
	return newShiftOp(v, pos, func(d *shiftDescr[T]) *T {
		if d.prev == nil {
			return value
		}
		return d.prev.orig.value()
	})
}

func newEraseOp[T any](v *Vector[T], pos int) *shiftOp[T] {
	return newShiftOp(v, pos, func(d *shiftDescr[T]) *T {
		if n := d.next.Load(); n != nil {
			return n.orig.value()
		}
		return nil
	})
}

// failed reports whether the op found nothing to shift at pos.
func (op *shiftOp[T]) failed() bool {
	return op.next.Load() == op.vec.shiftFailed
}

func (op *shiftOp[T]) done() bool {
	return op.failed() || (op.next.Load() != nil && !op.incomplete.Load())
}

func (op *shiftOp[T]) complete(tid int) bool {
	return op.run(tid, -1)
}

// run extends the chain until the op is decided. It gives up and returns
// false once a step has failed more than budget times; a negative budget
// never gives up.
func (op *shiftOp[T]) run(tid, budget int) bool {
	v := op.vec
	if op.pos >= v.Len() {
		op.next.CompareAndSwap(nil, v.shiftFailed)
	}

	for failures := 0; op.next.Load() == nil; failures++ {
		if budget >= 0 && failures > budget {
			return false
		}
		spot := v.getSpot(op.pos)
		w := spot.load()
		switch {
		case w.isDescriptor():
			w.unpack().complete(tid)
		case w.isResizing():
		case w == nil:
			op.next.CompareAndSwap(nil, v.shiftFailed)
		default:
			d := newShiftDescr(op, nil, w, op.pos)
			if spot.cas(w, d.packed) {
				op.next.CompareAndSwap(nil, d)
				if op.next.Load() != d {
					v.settle(op.pos, d.packed, w)
				}
			}
		}
	}

	last := op.next.Load()
	if last == v.shiftFailed {
		return true
	}
	for op.incomplete.Load() {
		if last.orig == nil {
			op.incomplete.Store(false)
			break
		}
		i := last.pos + 1
		for failures := 0; last.next.Load() == nil; failures++ {
			if budget >= 0 && failures > budget {
				return false
			}
			spot := v.getSpot(i)
			w := spot.load()
			switch {
			case w.isDescriptor():
				// Force pending pushes and pops to a definitive outcome so
				// the chain cannot stall behind them.
				switch d := w.unpack().(type) {
				case *pushDescr[T]:
					d.decide(true)
				case *popDescr[T]:
					d.fail()
				}
				w.unpack().complete(tid)
			case w.isResizing():
			default:
				d := newShiftDescr(op, last, w, i)
				if spot.cas(w, d.packed) {
					last.next.CompareAndSwap(nil, d)
					if last.next.Load() != d {
						v.settle(i, d.packed, w)
					}
				}
			}
		}
		last = last.next.Load()
	}
	return true
}

// clean replaces every node of a finished chain with its final value.
func (op *shiftOp[T]) clean() {
	for d := op.next.Load(); d != nil; d = d.next.Load() {
		op.vec.settle(d.pos, d.packed, valueWord(op.valueOf(d)))
	}
}

// shiftDescr is one node of a shift chain.
type shiftDescr[T any] struct {
	op     *shiftOp[T]
	pos    int
	orig   *word[T]
	prev   *shiftDescr[T]
	next   atomic.Pointer[shiftDescr[T]]
	packed *word[T]
}

func newShiftDescr[T any](op *shiftOp[T], prev *shiftDescr[T], orig *word[T], pos int) *shiftDescr[T] {
	d := &shiftDescr[T]{op: op, pos: pos, orig: orig, prev: prev}
	d.packed = packDescriptor[T](d)
	return d
}

func (d *shiftDescr[T]) complete(tid int) bool {
	link := &d.op.next
	if d.prev != nil {
		link = &d.prev.next
	}
	link.CompareAndSwap(nil, d)
	if link.Load() != d {
		d.op.vec.settle(d.pos, d.packed, d.orig)
		return true
	}
	d.op.complete(tid)
	d.op.vec.settle(d.pos, d.packed, valueWord(d.op.valueOf(d)))
	return true
}

func (d *shiftDescr[T]) value() *T {
	return d.orig.value()
}
