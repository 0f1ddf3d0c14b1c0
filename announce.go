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

	"golang.org/x/sys/cpu"
)

// announcement wraps an operation so it can sit in an atomic pointer.
type announcement struct {
	op operation
}

// threadState is the per-thread row of the announce table. Rows are padded
// to a cache line since every thread polls every other thread's row.
type threadState struct {
	_  cpu.CacheLinePad
	op atomic.Pointer[announcement]
	// helpNext is the round-robin cursor. Only the owning thread touches it.
	helpNext int
	_        cpu.CacheLinePad
}

// checkThread panics if tid cannot index the announce table.
func (v *Vector[T]) checkThread(tid int) {
	if tid < 0 || tid >= len(v.threads) {
		panic(fmt.Errorf("%w: %d not in [0, %d)", ErrThreadID, tid, len(v.threads)))
	}
}

// helpIfNeeded is run at the start of every public operation. It advances
// the caller's cursor and finishes whatever operation the thread under the
// cursor has announced. Since every call helps someone, an announced
// operation is completed after at most a bounded number of calls by other
// threads.
func (v *Vector[T]) helpIfNeeded(tid int) {
	v.checkThread(tid)
	t := &v.threads[tid]
	t.helpNext = (t.helpNext + 1) % len(v.threads)
	v.help(tid, t.helpNext)
}

// help completes the operation announced by tid, if any, on behalf of
// helper, then clears the announcement.
func (v *Vector[T]) help(helper, tid int) {
	t := &v.threads[tid]
	a := t.op.Load()
	if a == nil {
		return
	}
	if helper != tid && !a.op.done() {
		v.stats.helped.Add(1)
		if debug {
			fmt.Printf("help: thread %d completing %T for thread %d\n", helper, a.op, tid)
		}
	}
	a.op.complete(helper)
	t.op.CompareAndSwap(a, nil)
}

// announceOp publishes op in tid's row and runs it to completion. A
// pending announcement is never overwritten; if a helper finished the
// previous operation but has not cleared it yet, tid clears it first.
func (v *Vector[T]) announceOp(tid int, op operation) {
	v.checkThread(tid)
	a := &announcement{op: op}
	t := &v.threads[tid]
	for !t.op.CompareAndSwap(nil, a) {
		v.help(tid, tid)
	}
	v.stats.announced.Add(1)
	if debug {
		fmt.Printf("announce: thread %d published %T\n", tid, op)
	}
	v.help(tid, tid)
}
