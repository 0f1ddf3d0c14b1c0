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
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics collects trial results for export as a Prometheus textfile.
type metrics struct {
	reg       *prometheus.Registry
	elapsed   *prometheus.GaugeVec
	size      *prometheus.GaugeVec
	helped    *prometheus.GaugeVec
	announced *prometheus.GaugeVec
	resizes   *prometheus.GaugeVec
}

func newMetrics() *metrics {
	labels := []string{"impl", "workload", "threads"}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vecbench",
			Name:      name,
			Help:      help,
		}, labels)
	}
	m := &metrics{
		reg:       prometheus.NewRegistry(),
		elapsed:   gauge("elapsed_seconds", "Wall time of the timed part of a trial."),
		size:      gauge("final_size", "Element count after a trial."),
		helped:    gauge("helped_operations", "Announced operations completed by another thread."),
		announced: gauge("announced_operations", "Operations that exhausted their retry limit."),
		resizes:   gauge("resizes", "Storage generations published."),
	}
	m.reg.MustRegister(m.elapsed, m.size, m.helped, m.announced, m.resizes)
	return m
}

func (m *metrics) observe(r trialResult) {
	lv := []string{r.impl, string(r.workload), strconv.Itoa(r.threads)}
	m.elapsed.WithLabelValues(lv...).Set(r.elapsed.Seconds())
	m.size.WithLabelValues(lv...).Set(float64(r.size))
	if r.stats != nil {
		m.helped.WithLabelValues(lv...).Set(float64(r.stats.Helped))
		m.announced.WithLabelValues(lv...).Set(float64(r.stats.Announced))
		m.resizes.WithLabelValues(lv...).Set(float64(r.stats.Resizes))
	}
}

// write stores the collected metrics at path in the text exposition format.
func (m *metrics) write(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
