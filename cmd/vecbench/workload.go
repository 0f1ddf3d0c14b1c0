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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/waitfree"
	"github.com/cockroachdb/waitfree/internal/baseline"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

type workload string

const (
	insertWorkload workload = "insert"
	eraseWorkload  workload = "erase"
)

// target is the surface a workload drives. Thread ids are ignored by the
// baselines.
type target interface {
	pushBack(tid int, x *int)
	at(tid, pos int) bool
	insert(tid, pos int, x *int) bool
	erase(tid, pos int) bool
	size() int
}

type waitfreeTarget struct {
	v *waitfree.Vector[int]
}

func (t waitfreeTarget) pushBack(tid int, x *int) { t.v.PushBack(tid, x) }

func (t waitfreeTarget) at(tid, pos int) bool {
	_, ok := t.v.At(tid, pos)
	return ok
}

func (t waitfreeTarget) insert(tid, pos int, x *int) bool { return t.v.Insert(tid, pos, x) }
func (t waitfreeTarget) erase(tid, pos int) bool          { return t.v.Erase(tid, pos) }
func (t waitfreeTarget) size() int                        { return t.v.Len() }

type lockedTarget struct {
	l *baseline.Locked[int]
}

func (t lockedTarget) pushBack(_ int, x *int) { t.l.PushBack(x) }

func (t lockedTarget) at(_, pos int) bool {
	_, err := t.l.At(pos)
	return err == nil
}

func (t lockedTarget) insert(_, pos int, x *int) bool { return t.l.Insert(pos, x) == nil }
func (t lockedTarget) erase(_, pos int) bool          { return t.l.Erase(pos) == nil }
func (t lockedTarget) size() int                      { return t.l.Len() }

type sequentialTarget struct {
	s *baseline.Sequential[int]
}

func (t sequentialTarget) pushBack(_ int, x *int) { t.s.PushBack(x) }

func (t sequentialTarget) at(_, pos int) bool {
	_, err := t.s.At(pos)
	return err == nil
}

func (t sequentialTarget) insert(_, pos int, x *int) bool { return t.s.Insert(pos, x) == nil }
func (t sequentialTarget) erase(_, pos int) bool          { return t.s.Erase(pos) == nil }
func (t sequentialTarget) size() int                      { return t.s.Len() }

func newTarget(impl string, threads, retryLimit int) (target, error) {
	switch impl {
	case implWaitfree:
		return waitfreeTarget{waitfree.New[int](threads, waitfree.WithRetryLimit[int](retryLimit))}, nil
	case implLocked:
		return lockedTarget{baseline.NewLocked[int](0)}, nil
	case implSequential:
		if threads != 1 {
			return nil, fmt.Errorf("%s cannot run with %d threads", impl, threads)
		}
		return sequentialTarget{baseline.NewSequential[int](0)}, nil
	default:
		return nil, fmt.Errorf("unknown implementation %q", impl)
	}
}

// splitOps divides ops across threads. The remainder goes to the lowest
// thread ids.
func splitOps(ops, threads int) []int {
	each, extra := ops/threads, ops%threads
	split := make([]int, threads)
	for i := range split {
		split[i] = each
		if i < extra {
			split[i]++
		}
	}
	return split
}

// runWorker performs n operations of workload w as thread tid. An
// operation is a push back with probability pushPercent; otherwise it is
// one of insert-or-erase at a random position, push back, or a read at a
// random position, chosen uniformly.
func runWorker(ctx context.Context, t target, w workload, tid, n, pushPercent int, rng *rand.Rand) error {
	for i := 0; i < n; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		op := rng.Intn(3)
		push := rng.Intn(100) < pushPercent
		x := rng.Int()
		size := t.size()
		switch {
		case push || op == 1:
			t.pushBack(tid, &x)
		case op == 0 && size > 0:
			pos := rng.Intn(size)
			if w == insertWorkload {
				t.insert(tid, pos, &x)
			} else {
				t.erase(tid, pos)
			}
		case op == 2 && size > 0:
			t.at(tid, rng.Intn(size))
		}
	}
	return nil
}

type trialResult struct {
	impl     string
	workload workload
	threads  int
	elapsed  time.Duration
	// size is the element count after the trial.
	size int
	// stats is only set for the wait-free vector.
	stats *waitfree.Stats
}

// runTrial prefills a fresh target and times cfg.Ops operations of w spread
// over threads workers.
func runTrial(ctx context.Context, cfg *config, impl string, w workload, threads int) (trialResult, error) {
	t, err := newTarget(impl, threads, cfg.RetryLimit)
	if err != nil {
		return trialResult{}, err
	}
	for i := 0; i < cfg.Prefill; i++ {
		x := i
		t.pushBack(0, &x)
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for tid, n := range splitOps(cfg.Ops, threads) {
		tid, n := tid, n
		g.Go(func() error {
			rng := rand.New(rand.NewSource(uint64(cfg.Seed) + uint64(tid) + 1))
			return runWorker(ctx, t, w, tid, n, cfg.PushPercent, rng)
		})
	}
	if err := g.Wait(); err != nil {
		return trialResult{}, err
	}
	r := trialResult{
		impl:     impl,
		workload: w,
		threads:  threads,
		elapsed:  time.Since(start),
		size:     t.size(),
	}
	if wt, ok := t.(waitfreeTarget); ok {
		stats := wt.v.Stats()
		r.stats = &stats
	}
	logrus.WithFields(logrus.Fields{
		"impl":     impl,
		"workload": w,
		"threads":  threads,
		"elapsed":  r.elapsed,
		"size":     r.size,
	}).Debug("trial finished")
	return r, nil
}
