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

// generation is one version of the backing storage at a fixed capacity.
// A new generation starts with every index below the previous capacity set
// to the not-copied sentinel and copies values forward lazily, on first
// access, or eagerly by the thread that published it.
//
//	gen 0 (cap 3)   [ a | b | c ]
//	gen 1 (cap 7)   [ ~ | ~ | ~ |   |   |   |   ]   ~ = not copied
//
// Any number of threads may copy the same index; the CAS from not-copied
// lets exactly one of them win. The previous generation's slot is frozen
// with the resize bit first so a writer cannot slip a store in behind the
// copy.
type generation[T any] struct {
	vec *Vector[T]
	// old is the generation this one supersedes. It is cleared once every
	// slot has been copied, releasing the old slots to the GC.
	old      atomic.Pointer[generation[T]]
	capacity int
	slots    []slot[T]
}

func newGeneration[T any](v *Vector[T], old *generation[T], capacity int) *generation[T] {
	g := &generation[T]{
		vec:      v,
		capacity: capacity,
		slots:    make([]slot[T], capacity),
	}
	if old != nil {
		for i := 0; i < old.capacity; i++ {
			g.slots[i].p.Store(v.notCopied)
		}
		g.old.Store(old)
	}
	return g
}

// getSpot returns the slot for pos, growing the storage if pos is beyond
// capacity and pulling the value forward if it has not been copied yet.
func (g *generation[T]) getSpot(pos int) *slot[T] {
	if pos < 0 {
		panic(fmt.Sprintf("getSpot: negative position %d", pos))
	}
	if pos >= g.capacity {
		return g.resize().getSpot(pos)
	}
	s := &g.slots[pos]
	if s.load() == g.vec.notCopied {
		g.copyValue(pos)
	}
	return s
}

// resize publishes a generation of capacity 2*capacity+1 chained to g. The
// winner of the publishing CAS migrates every slot; losers return whatever
// generation is current.
func (g *generation[T]) resize() *generation[T] {
	v := g.vec
	if cur := v.storage.Load(); cur != g {
		return cur
	}
	next := newGeneration(v, g, 2*g.capacity+1)
	if v.storage.CompareAndSwap(g, next) {
		v.stats.resizes.Add(1)
		if debug {
			fmt.Printf("resize: capacity=%d->%d\n", g.capacity, next.capacity)
		}
		for i := 0; i < g.capacity; i++ {
			next.copyValue(i)
		}
		next.old.Store(nil)
		next.checkInvariants(g)
	}
	return v.storage.Load()
}

// copyValue moves the value at pos from the previous generation into g.
func (g *generation[T]) copyValue(pos int) {
	old := g.old.Load()
	if old == nil {
		// Migration already finished, so the slot has been filled.
		return
	}
	src := &old.slots[pos]
	if src.load() == g.vec.notCopied {
		old.copyValue(pos)
	}
	src.markResize()
	g.slots[pos].cas(g.vec.notCopied, src.load().unmark())
}

func (g *generation[T]) checkInvariants(prev *generation[T]) {
	if invariants {
		if g.capacity != 2*prev.capacity+1 {
			panic(fmt.Sprintf("invariant failed: capacity %d does not follow %d", g.capacity, prev.capacity))
		}
		for i := 0; i < prev.capacity; i++ {
			if w := g.slots[i].load().unmark(); w == g.vec.notCopied {
				panic(fmt.Sprintf("invariant failed: slot %d not migrated: %s", i, w))
			}
			if !prev.slots[i].load().isResizing() {
				panic(fmt.Sprintf("invariant failed: slot %d of superseded generation is not frozen", i))
			}
		}
	}
}
