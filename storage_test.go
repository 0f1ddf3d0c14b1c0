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
	"golang.org/x/sync/errgroup"
)

func TestLazyCopy(t *testing.T) {
	v := New[int](1, WithInitialCapacity[int](3))
	g0 := v.storage.Load()
	words := make([]*word[int], 3)
	for i := range words {
		words[i] = valueWord(ptr(i))
		g0.slots[i].p.Store(words[i])
	}

	// Publish a generation without migrating it.
	g1 := newGeneration(v, g0, 7)
	v.storage.Store(g1)
	for i := 0; i < 3; i++ {
		require.Same(t, v.notCopied, g1.slots[i].load())
	}
	for i := 3; i < 7; i++ {
		require.Nil(t, g1.slots[i].load())
	}

	// First access pulls the value forward and freezes the source.
	require.Same(t, words[1], g1.getSpot(1).load())
	require.True(t, g0.slots[1].load().isResizing())
	require.False(t, g0.slots[1].cas(words[1], nil))
	require.Same(t, v.notCopied, g1.slots[0].load())
	require.Same(t, words[0], g0.slots[0].load())

	// Copying again changes nothing.
	g1.copyValue(1)
	require.Same(t, words[1], g1.slots[1].load())

	// A generation published while its predecessor is still migrating
	// copies through both.
	g2 := newGeneration(v, g1, 15)
	v.storage.Store(g2)
	require.Same(t, words[0], g2.getSpot(0).load())
	require.True(t, g1.slots[0].load().isResizing())
	require.True(t, g0.slots[0].load().isResizing())
	require.Same(t, words[1], g2.getSpot(1).load())
	require.Same(t, words[2], g2.getSpot(2).load())
}

func TestResize(t *testing.T) {
	v := New[int](1)
	fill(t, v, 3)
	require.EqualValues(t, 2, v.Stats().Resizes)

	g := v.storage.Load()
	require.EqualValues(t, 3, g.capacity)
	next := g.resize()
	require.EqualValues(t, 7, next.capacity)
	require.Same(t, next, v.storage.Load())
	require.Nil(t, next.old.Load())
	for i := 0; i < 3; i++ {
		require.True(t, g.slots[i].load().isResizing())
		require.Same(t, g.slots[i].load().unmark(), next.slots[i].load())
	}
	require.EqualValues(t, 3, v.Stats().Resizes)

	// A superseded generation hands out the current one.
	require.Same(t, next, g.resize())
	require.EqualValues(t, 3, v.Stats().Resizes)
	require.Equal(t, []int{0, 1, 2}, v.toSlice(deref))
	require.NoError(t, v.verify())

	// getSpot past the end grows as many times as needed.
	next.getSpot(20)
	require.EqualValues(t, 31, v.Capacity())
	require.NoError(t, v.verify())
}

func TestConcurrentResize(t *testing.T) {
	v := New[int](1)
	fill(t, v, 7)
	g := v.storage.Load()
	resizes := v.Stats().Resizes

	var eg errgroup.Group
	for i := 0; i < 8; i++ {
		eg.Go(func() error {
			g.resize()
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	require.EqualValues(t, resizes+1, v.Stats().Resizes)
	require.EqualValues(t, 15, v.Capacity())
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, v.toSlice(deref))
	require.NoError(t, v.verify())
}

func TestSettleAcrossResize(t *testing.T) {
	v := New[int](1)
	fill(t, v, 1)
	w := v.getSpot(0).load()

	v.storage.Load().resize()
	r := valueWord(ptr(5))
	require.True(t, v.settle(0, w, r))
	require.Same(t, r, v.getSpot(0).load())

	// Once settled, a second attempt finds a different word.
	require.False(t, v.settle(0, w, nil))
	require.Same(t, r, v.getSpot(0).load())
}
