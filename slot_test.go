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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordEncoding(t *testing.T) {
	v := New[int](1)
	x := ptr(1)

	var empty *word[int]
	require.Nil(t, valueWord[int](nil))
	require.False(t, empty.isDescriptor())
	require.False(t, empty.isResizing())
	require.Nil(t, empty.value())
	require.Nil(t, empty.observe())
	require.Equal(t, "empty", empty.String())

	val := valueWord(x)
	require.False(t, val.isDescriptor())
	require.False(t, val.isResizing())
	require.Same(t, x, val.value())
	require.Same(t, x, val.observe())
	require.Same(t, val, val.unmark())

	// The not-copied sentinel carries the descriptor tag but is not a
	// descriptor.
	require.False(t, v.notCopied.isDescriptor())
	require.Nil(t, v.notCopied.value())
	require.Nil(t, v.notCopied.observe())
	require.Equal(t, "not-copied", v.notCopied.String())

	d := newPushDescr(v, x, 3, nil)
	require.True(t, d.packed.isDescriptor())
	require.True(t, d.packed.unpack() == descriptor[int](d))
	require.Nil(t, d.packed.value())
	require.Same(t, x, d.packed.observe())
	require.Contains(t, d.packed.String(), "descriptor(")

	require.Panics(t, func() {
		packDescriptor[int](nil)
	})
}

func TestMarkResize(t *testing.T) {
	x := valueWord(ptr(1))
	var s slot[int]
	s.p.Store(x)

	s.markResize()
	w := s.load()
	require.True(t, w.isResizing())
	require.False(t, w.isDescriptor())
	require.Same(t, x, w.unmark())
	require.Same(t, x.val, w.observe())
	require.Contains(t, w.String(), "resizing(value(")

	// Marking again leaves the frozen word alone.
	s.markResize()
	require.Same(t, w, s.load())

	// Writers holding the pre-freeze word lose.
	require.False(t, s.cas(x, nil))
	require.Same(t, w, s.load())

	// Descriptors and empty slots freeze the same way.
	var e slot[int]
	e.markResize()
	require.True(t, e.load().isResizing())
	require.Nil(t, e.load().unmark())
	require.Nil(t, e.load().observe())

	d := newPushDescr(New[int](1), ptr(2), 1, nil)
	var ds slot[int]
	ds.p.Store(d.packed)
	ds.markResize()
	require.Same(t, d.packed, ds.load().unmark())
	require.EqualValues(t, 2, *ds.load().observe())
}
