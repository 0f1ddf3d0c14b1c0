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
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		metricsOut string
		flags      = defaultConfig()
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Time the insert and erase workloads for 1..max-threads threads",
		Long: `Run prefills each implementation, then times a mix of push backs,
reads, and inserts or erases at random positions split across the threads.
One CSV row of elapsed milliseconds is printed per thread count.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultConfig()
			if configPath != "" {
				loaded, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = *loaded
				logrus.WithField("path", configPath).Debug("loaded config")
			}
			overrides := map[string]func(){
				"max-threads":  func() { cfg.MaxThreads = flags.MaxThreads },
				"ops":          func() { cfg.Ops = flags.Ops },
				"prefill":      func() { cfg.Prefill = flags.Prefill },
				"push-percent": func() { cfg.PushPercent = flags.PushPercent },
				"seed":         func() { cfg.Seed = flags.Seed },
				"impls":        func() { cfg.Impls = flags.Impls },
				"workloads":    func() { cfg.Workloads = flags.Workloads },
				"retry-limit":  func() { cfg.RetryLimit = flags.RetryLimit },
			}
			for name, apply := range overrides {
				if cmd.Flags().Changed(name) {
					apply()
				}
			}
			if err := cfg.validate(); err != nil {
				return err
			}

			var m *metrics
			if metricsOut != "" {
				m = newMetrics()
			}
			if err := runAll(cmd, &cfg, m); err != nil {
				return err
			}
			if m != nil {
				if err := m.write(metricsOut); err != nil {
					return err
				}
				logrus.WithField("path", metricsOut).Info("wrote metrics")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "TOML workload file")
	f.StringVar(&metricsOut, "metrics-out", "", "write Prometheus textfile metrics to this path")
	f.IntVar(&flags.MaxThreads, "max-threads", flags.MaxThreads, "largest thread count to time")
	f.IntVar(&flags.Ops, "ops", flags.Ops, "operations per trial, split across threads")
	f.IntVar(&flags.Prefill, "prefill", flags.Prefill, "elements pushed before timing")
	f.IntVar(&flags.PushPercent, "push-percent", flags.PushPercent, "percent of operations that are push backs")
	f.Int64Var(&flags.Seed, "seed", flags.Seed, "base seed of the per-thread generators")
	f.StringSliceVar(&flags.Impls, "impls", flags.Impls, "implementations to time")
	f.StringSliceVar(&flags.Workloads, "workloads", flags.Workloads, "workloads to time")
	f.IntVar(&flags.RetryLimit, "retry-limit", flags.RetryLimit, "wait-free vector retry limit")
	return cmd
}

// runAll prints a header and one row per thread count. The sequential
// baseline only has a column entry for one thread.
func runAll(cmd *cobra.Command, cfg *config, m *metrics) error {
	out := cmd.OutOrStdout()
	var header []string
	for _, impl := range cfg.Impls {
		for _, w := range cfg.Workloads {
			header = append(header, impl+"/"+w)
		}
	}
	fmt.Fprintf(out, "threads,%s\n", strings.Join(header, ","))

	for threads := 1; threads <= cfg.MaxThreads; threads++ {
		row := []string{strconv.Itoa(threads)}
		for _, impl := range cfg.Impls {
			for _, w := range cfg.Workloads {
				if impl == implSequential && threads > 1 {
					row = append(row, "")
					continue
				}
				r, err := runTrial(cmd.Context(), cfg, impl, workload(w), threads)
				if err != nil {
					return err
				}
				if m != nil {
					m.observe(r)
				}
				row = append(row, strconv.FormatInt(r.elapsed.Milliseconds(), 10))
			}
		}
		fmt.Fprintln(out, strings.Join(row, ","))
	}
	return nil
}
