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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitOps(t *testing.T) {
	require.Equal(t, []int{6400}, splitOps(6400, 1))
	require.Equal(t, []int{2134, 2133, 2133}, splitOps(6400, 3))
	require.Equal(t, []int{1, 1, 0, 0}, splitOps(2, 4))
	require.Equal(t, []int{0, 0}, splitOps(0, 2))
}

func TestNewTarget(t *testing.T) {
	for _, impl := range allImpls {
		tg, err := newTarget(impl, 1, 10)
		require.NoError(t, err)

		x, y := 1, 2
		tg.pushBack(0, &x)
		require.Equal(t, 1, tg.size())
		require.True(t, tg.at(0, 0))
		require.False(t, tg.at(0, 1))
		require.True(t, tg.insert(0, 0, &y))
		require.Equal(t, 2, tg.size())
		require.True(t, tg.erase(0, 1))
		require.False(t, tg.erase(0, 1))
		require.Equal(t, 1, tg.size())
	}

	_, err := newTarget(implSequential, 2, 10)
	require.EqualError(t, err, "sequential cannot run with 2 threads")
	_, err = newTarget("btree", 1, 10)
	require.EqualError(t, err, `unknown implementation "btree"`)
}

func TestRunTrial(t *testing.T) {
	cfg := defaultConfig()
	cfg.Ops = 2000
	for _, impl := range allImpls {
		for _, w := range []workload{insertWorkload, eraseWorkload} {
			threads := []int{1, 4}
			if impl == implSequential {
				threads = threads[:1]
			}
			for _, n := range threads {
				r, err := runTrial(context.Background(), &cfg, impl, w, n)
				require.NoError(t, err)
				require.Equal(t, impl, r.impl)
				require.Equal(t, w, r.workload)
				require.Equal(t, n, r.threads)
				require.Equal(t, impl == implWaitfree, r.stats != nil)
				if w == insertWorkload {
					// Nothing is ever removed.
					require.Greater(t, r.size, cfg.Prefill)
				}
			}
		}
	}
}

func TestRunTrialDeterministic(t *testing.T) {
	cfg := defaultConfig()
	cfg.Ops = 5000
	a, err := runTrial(context.Background(), &cfg, implSequential, eraseWorkload, 1)
	require.NoError(t, err)
	b, err := runTrial(context.Background(), &cfg, implWaitfree, eraseWorkload, 1)
	require.NoError(t, err)
	// A single thread replays the same operations on both.
	require.Equal(t, a.size, b.size)
}

func TestRunTrialCanceled(t *testing.T) {
	cfg := defaultConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runTrial(ctx, &cfg, implLocked, insertWorkload, 2)
	require.ErrorIs(t, err, context.Canceled)
}
