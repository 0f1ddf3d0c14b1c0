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

// tag holds the two low bits of a slot word. The encoding mirrors the
// classic pointer-tagging scheme:
//
//	     empty: nil
//	not copied: tag-only word (descriptor bit, no descriptor)
//	     value: 0b00 + value
//	descriptor: 0b01 + descriptor
//	  resizing: 0b10 + frozen word being copied forward
//
// Go does not allow smuggling tag bits into real pointers without hiding
// them from the garbage collector, so a word is a small immutable box and
// the tag lives next to the payload. Words are compared by identity, never
// by content.
type tag uint8

const (
	tagDescriptor tag = 0b01
	tagResize     tag = 0b10
	tagMask           = tagDescriptor | tagResize
)

// word is the immutable content of a slot. Exactly one of val, desc or
// frozen is set, selected by bits.
type word[T any] struct {
	bits   tag
	val    *T
	desc   descriptor[T]
	frozen *word[T]
}

// packDescriptor returns the slot word announcing d. Every descriptor packs
// itself exactly once at construction so that helpers can CAS against the
// same word.
func packDescriptor[T any](d descriptor[T]) *word[T] {
	if d == nil {
		panic("waitfree: cannot pack a nil descriptor")
	}
	return &word[T]{bits: tagDescriptor, desc: d}
}

// valueWord boxes a live element. A nil element is the empty slot.
func valueWord[T any](v *T) *word[T] {
	if v == nil {
		return nil
	}
	return &word[T]{val: v}
}

// isDescriptor reports whether w carries a descriptor. The tag-only
// not-copied sentinel has the descriptor bit set but no descriptor and is
// rejected.
func (w *word[T]) isDescriptor() bool {
	return w != nil && w.bits&tagMask == tagDescriptor && w.desc != nil
}

// isResizing reports whether w was frozen by a resize.
func (w *word[T]) isResizing() bool {
	return w != nil && w.bits&tagResize != 0
}

// unpack returns the descriptor held by w.
func (w *word[T]) unpack() descriptor[T] {
	return w.desc
}

// unmark strips a resize mark, returning the word that was frozen.
func (w *word[T]) unmark() *word[T] {
	if w.isResizing() {
		return w.frozen
	}
	return w
}

// value returns the element held by a value word, or nil.
func (w *word[T]) value() *T {
	if w == nil || w.bits&tagMask != 0 {
		return nil
	}
	return w.val
}

// observe returns the element a reader should see for w: the value itself,
// or the value the descriptor currently stands for.
func (w *word[T]) observe() *T {
	w = w.unmark()
	if w.isDescriptor() {
		return w.desc.value()
	}
	return w.value()
}

func (w *word[T]) String() string {
	switch {
	case w == nil:
		return "empty"
	case w.isResizing():
		return fmt.Sprintf("resizing(%s)", w.frozen)
	case w.isDescriptor():
		return fmt.Sprintf("descriptor(%T)", w.desc)
	case w.bits&tagMask == tagDescriptor:
		return "not-copied"
	default:
		return fmt.Sprintf("value(%p)", w.val)
	}
}

// slot is one element position's atomic storage cell. All mutation goes
// through cas; there are no plain stores once a generation is published.
type slot[T any] struct {
	p atomic.Pointer[word[T]]
}

func (s *slot[T]) load() *word[T] {
	return s.p.Load()
}

func (s *slot[T]) cas(old, new *word[T]) bool {
	return s.p.CompareAndSwap(old, new)
}

// markResize freezes the slot so that writers racing a copy into the next
// generation fail their CAS instead of being lost. It is idempotent.
func (s *slot[T]) markResize() {
	for {
		w := s.load()
		if w.isResizing() || s.cas(w, &word[T]{bits: tagResize, frozen: w}) {
			return
		}
	}
}
