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
	"fmt"
	"time"

	"github.com/cockroachdb/waitfree"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

func newDemoCmd() *cobra.Command {
	var (
		threads  int
		pushes   int
		maxSleep time.Duration
		seed     int64
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Push from several threads with random pauses and print the result",
		Long: `Demo starts threads-1 workers. Worker tid pushes (tid+1)*100+i for
i in [0, pushes), sleeping up to max-sleep between pushes, then the final
contents are printed one per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if threads < 2 {
				return fmt.Errorf("threads must be at least 2, got %d", threads)
			}
			v := waitfree.New[int](threads)
			var g errgroup.Group
			for tid := 1; tid < threads; tid++ {
				tid := tid
				g.Go(func() error {
					rng := rand.New(rand.NewSource(uint64(seed) + uint64(tid)))
					for i := 0; i < pushes; i++ {
						x := (tid+1)*100 + i
						v.PushBack(tid, &x)
						if maxSleep > 0 {
							time.Sleep(time.Duration(rng.Int63n(int64(maxSleep) + 1)))
						}
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			v.All(func(_ int, x *int) bool {
				fmt.Fprintln(out, *x)
				return true
			})
			stats := v.Stats()
			logrus.WithFields(logrus.Fields{
				"len":       v.Len(),
				"capacity":  v.Capacity(),
				"helped":    stats.Helped,
				"announced": stats.Announced,
				"resizes":   stats.Resizes,
			}).Info("demo finished")
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&threads, "threads", 3, "thread ids; thread 0 stays idle")
	f.IntVar(&pushes, "pushes", 100, "pushes per worker")
	f.DurationVar(&maxSleep, "max-sleep", 10*time.Millisecond, "longest pause between pushes")
	f.Int64Var(&seed, "seed", time.Now().UnixNano(), "seed of the pause generators")
	return cmd
}
