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
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestRunCommand(t *testing.T) {
	metricsPath := filepath.Join(t.TempDir(), "vecbench.prom")
	out := execute(t, "run",
		"--max-threads", "3",
		"--ops", "300",
		"--log-level", "warn",
		"--metrics-out", metricsPath)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	require.Equal(t,
		"threads,waitfree/insert,waitfree/erase,locked/insert,locked/erase,sequential/insert,sequential/erase",
		lines[0])
	for i, line := range lines[1:] {
		cells := strings.Split(line, ",")
		require.Len(t, cells, 7)
		require.Equal(t, strconv.Itoa(i+1), cells[0])
		for j, cell := range cells[1:] {
			if j >= 4 && i > 0 {
				require.Empty(t, cell)
				continue
			}
			_, err := strconv.Atoi(cell)
			require.NoError(t, err)
		}
	}

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	text := string(data)
	require.Contains(t, text, "vecbench_elapsed_seconds")
	require.Contains(t, text, "vecbench_resizes")
	require.Contains(t, text, `impl="sequential"`)
	require.Contains(t, text, `threads="3"`)
}

func TestRunCommandConfig(t *testing.T) {
	path := writeFile(t, "workload.toml", `
max_threads = 8
ops = 100
impls = ["locked"]
workloads = ["insert"]
`)
	// Flags override the file.
	out := execute(t, "run", "--config", path, "--max-threads", "2")
	require.Equal(t, []string{"threads,locked/insert", "1,", "2,"}, trimCells(out))
}

// trimCells drops the timing values, which vary from run to run.
func trimCells(out string) []string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := 1; i < len(lines); i++ {
		cells := strings.Split(lines[i], ",")
		for j := 1; j < len(cells); j++ {
			cells[j] = ""
		}
		lines[i] = strings.Join(cells, ",")
	}
	return lines
}

func TestRunCommandInvalid(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--push-percent", "200"})
	require.EqualError(t, root.Execute(), "push_percent must be in [0, 100], got 200")
}

func TestDemoCommand(t *testing.T) {
	out := execute(t, "demo", "--threads", "3", "--pushes", "20", "--max-sleep", "100us", "--seed", "7")

	var got []int
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		x, err := strconv.Atoi(line)
		require.NoError(t, err)
		got = append(got, x)
	}
	sort.Ints(got)

	var want []int
	for tid := 1; tid < 3; tid++ {
		for i := 0; i < 20; i++ {
			want = append(want, (tid+1)*100+i)
		}
	}
	require.Equal(t, want, got)
}

func TestMetrics(t *testing.T) {
	m := newMetrics()
	m.observe(trialResult{impl: implLocked, workload: insertWorkload, threads: 2, size: 42})
	path := filepath.Join(t.TempDir(), "out.prom")
	require.NoError(t, m.write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data),
		`vecbench_final_size{impl="locked",threads="2",workload="insert"} 42`)
	// Vector counters are only reported for the wait-free vector.
	require.NotContains(t, string(data), "vecbench_helped_operations{")
}
