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

// descriptor is a published record of in-flight intent to change a slot.
// The set of descriptors is closed: *pushDescr, *popDescr, *popSubDescr,
// *writeDescr and *shiftDescr. Any thread that finds a descriptor in a slot
// must drive it to completion before touching the slot itself.
type descriptor[T any] interface {
	// complete drives the descriptor to a terminal state and removes it
	// from its slot. It is safe to call concurrently and repeatedly.
	complete(tid int) bool
	// value is the element a reader should observe while the descriptor
	// occupies its slot.
	value() *T
}

// descriptorState only moves forward: undecided -> passed or
// undecided -> failed. The first CAS wins.
type descriptorState = uint32

const (
	undecided descriptorState = iota
	failed
	passed
)

// pushDescr publishes a value at pos. It passes iff the slot before pos
// holds a value, which is what makes pushes contiguous.
type pushDescr[T any] struct {
	vec    *Vector[T]
	val    *T
	pos    int
	state  atomic.Uint32
	owner  *pushOp[T]
	packed *word[T]
}

func newPushDescr[T any](v *Vector[T], val *T, pos int, owner *pushOp[T]) *pushDescr[T] {
	d := &pushDescr[T]{vec: v, val: val, pos: pos, owner: owner}
	d.packed = packDescriptor[T](d)
	return d
}

// decide moves the descriptor out of undecided. A descriptor working for
// an announced op can only pass if it holds the op's claim.
func (d *pushDescr[T]) decide(pass bool) {
	if pass && d.owner != nil && !d.owner.claim(d.packed) {
		pass = false
	}
	if pass {
		d.state.CompareAndSwap(undecided, passed)
	} else {
		d.state.CompareAndSwap(undecided, failed)
	}
	if d.owner != nil && d.state.Load() == failed {
		d.owner.release(d.packed)
	}
}

func (d *pushDescr[T]) complete(tid int) bool {
	v := d.vec
	if d.pos == 0 {
		d.decide(true)
	}
	for failures := 0; d.state.Load() == undecided; failures++ {
		if failures > v.limit {
			d.decide(false)
			break
		}
		prev := v.getSpot(d.pos - 1).load()
		switch {
		case prev.isDescriptor():
			prev.unpack().complete(tid)
		case prev.isResizing():
			// Stale generation; look again through the current one.
		case prev == nil:
			d.decide(false)
		default:
			d.decide(true)
		}
	}

	if d.state.Load() != passed {
		v.settle(d.pos, d.packed, nil)
		return false
	}
	v.settle(d.pos, d.packed, valueWord(d.val))
	if d.owner != nil {
		d.owner.publish(d.pos)
	}
	return true
}

func (d *pushDescr[T]) value() *T {
	return d.val
}

// popDescr sits on the first empty slot past the end and removes the value
// before it. The removal is decided by linking a popSubDescr as its child;
// the vector's popFailed sentinel marks failure.
type popDescr[T any] struct {
	vec    *Vector[T]
	pos    int
	child  atomic.Pointer[popSubDescr[T]]
	owner  *popOp[T]
	packed *word[T]
}

func newPopDescr[T any](v *Vector[T], pos int, owner *popOp[T]) *popDescr[T] {
	d := &popDescr[T]{vec: v, pos: pos, owner: owner}
	d.packed = packDescriptor[T](d)
	return d
}

func (d *popDescr[T]) fail() {
	d.child.CompareAndSwap(nil, d.vec.popFailed)
	if d.owner != nil && d.child.Load() == d.vec.popFailed {
		d.owner.release(d.packed)
	}
}

// link tries to make sub the winning child.
func (d *popDescr[T]) link(sub *popSubDescr[T]) {
	if d.owner != nil && !d.owner.claim(d.packed) {
		d.fail()
		return
	}
	d.child.CompareAndSwap(nil, sub)
	if d.owner != nil && d.child.Load() == d.vec.popFailed {
		d.owner.release(d.packed)
	}
}

func (d *popDescr[T]) complete(tid int) bool {
	v := d.vec
	for failures := 0; d.child.Load() == nil; failures++ {
		if failures > v.limit {
			d.fail()
			break
		}
		spot := v.getSpot(d.pos - 1)
		expected := spot.load()
		switch {
		case expected == nil:
			d.fail()
		case expected.isDescriptor():
			expected.unpack().complete(tid)
		case expected.isResizing():
		default:
			sub := newPopSubDescr(d, expected)
			if spot.cas(expected, sub.packed) {
				sub.complete(tid)
			}
		}
	}

	v.settle(d.pos, d.packed, nil)
	child := d.child.Load()
	if child == v.popFailed {
		return false
	}
	if d.owner != nil {
		d.owner.publish(child.value())
	}
	return true
}

func (d *popDescr[T]) value() *T {
	return nil
}

// popSubDescr captures the value being popped at parent.pos-1. If it wins
// the parent's child link the slot is emptied, otherwise the captured word
// is put back.
type popSubDescr[T any] struct {
	parent *popDescr[T]
	orig   *word[T]
	packed *word[T]
}

func newPopSubDescr[T any](parent *popDescr[T], orig *word[T]) *popSubDescr[T] {
	s := &popSubDescr[T]{parent: parent, orig: orig}
	s.packed = packDescriptor[T](s)
	return s
}

func (s *popSubDescr[T]) complete(tid int) bool {
	p := s.parent
	p.link(s)
	if p.child.Load() == s {
		p.vec.settle(p.pos-1, s.packed, nil)
		return true
	}
	p.vec.settle(p.pos-1, s.packed, s.orig)
	return false
}

func (s *popSubDescr[T]) value() *T {
	return s.orig.value()
}
