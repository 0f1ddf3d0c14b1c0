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
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	implWaitfree   = "waitfree"
	implLocked     = "locked"
	implSequential = "sequential"
)

var (
	allImpls     = []string{implWaitfree, implLocked, implSequential}
	allWorkloads = []string{string(insertWorkload), string(eraseWorkload)}
)

// config describes a benchmark run. It can be loaded from a TOML file;
// flags given on the command line override the file.
type config struct {
	// MaxThreads is the largest thread count timed. Every count from 1 up
	// to MaxThreads is run.
	MaxThreads int `toml:"max_threads"`
	// Ops is the total number of operations per trial, split across the
	// threads.
	Ops int `toml:"ops"`
	// Prefill is the number of elements pushed before timing starts.
	Prefill int `toml:"prefill"`
	// PushPercent is the chance, in percent, that an operation is a plain
	// push back.
	PushPercent int `toml:"push_percent"`
	// Seed seeds the per-thread generators. Thread tid uses Seed+tid+1.
	Seed int64 `toml:"seed"`
	// Impls and Workloads select what to time.
	Impls     []string `toml:"impls"`
	Workloads []string `toml:"workloads"`
	// RetryLimit is passed to the wait-free vector.
	RetryLimit int `toml:"retry_limit"`
}

func defaultConfig() config {
	return config{
		MaxThreads:  32,
		Ops:         6400,
		Prefill:     10,
		PushPercent: 30,
		Seed:        1,
		Impls:       slices.Clone(allImpls),
		Workloads:   slices.Clone(allWorkloads),
		RetryLimit:  1000,
	}
}

// loadConfig reads a TOML workload file on top of the defaults.
func loadConfig(path string) (*config, error) {
	c := defaultConfig()
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return &c, nil
}

func (c *config) validate() error {
	switch {
	case c.MaxThreads < 1:
		return fmt.Errorf("max_threads must be at least 1, got %d", c.MaxThreads)
	case c.Ops < 0:
		return fmt.Errorf("ops must not be negative, got %d", c.Ops)
	case c.Prefill < 0:
		return fmt.Errorf("prefill must not be negative, got %d", c.Prefill)
	case c.PushPercent < 0 || c.PushPercent > 100:
		return fmt.Errorf("push_percent must be in [0, 100], got %d", c.PushPercent)
	case c.RetryLimit < 0:
		return fmt.Errorf("retry_limit must not be negative, got %d", c.RetryLimit)
	case len(c.Impls) == 0:
		return fmt.Errorf("no implementations selected")
	case len(c.Workloads) == 0:
		return fmt.Errorf("no workloads selected")
	}
	for _, impl := range c.Impls {
		if !slices.Contains(allImpls, impl) {
			return fmt.Errorf("unknown implementation %q, want one of %s", impl, strings.Join(allImpls, ", "))
		}
	}
	for _, w := range c.Workloads {
		if !slices.Contains(allWorkloads, w) {
			return fmt.Errorf("unknown workload %q, want one of %s", w, strings.Join(allWorkloads, ", "))
		}
	}
	return nil
}
