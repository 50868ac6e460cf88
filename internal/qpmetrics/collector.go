/*
Copyright (c) Meta Platforms, Inc. and affiliates.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package qpmetrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/isc-projects/qpzonedb/internal/qpdb"
)

// Attach registers db so that every Collect call refreshes the tracked
// series (node count, live reader count, per-partition resign-heap
// depth, glue-cache hit/miss counts, rollback count) under keys
// namespaced by the zone's origin. A Stats instance can track more than
// one zone.
func (s *Stats) Attach(db *qpdb.Database) {
	s.mu.Lock()
	s.dbs = append(s.dbs, db)
	s.mu.Unlock()
}

// Describe implements prometheus.Collector. It intentionally sends
// nothing: the series tracked here are named by runtime key, not known
// ahead of registration, which makes Stats an "unchecked" collector in
// client_golang's terms.
func (s *Stats) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector, first refreshing every
// attached database's counters and then emitting one gauge per entry
// currently in the map.
func (s *Stats) Collect(ch chan<- prometheus.Metric) {
	s.refreshAttached()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, val := range s.values {
		desc := prometheus.NewDesc(flattenKey(key), key, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(val))
	}
}

func (s *Stats) refreshAttached() {
	s.mu.RLock()
	dbs := append([]*qpdb.Database(nil), s.dbs...)
	s.mu.RUnlock()

	for _, db := range dbs {
		origin := flattenKey(db.Origin.String())
		s.ResetCounterTo(origin+".node_count", int64(db.NodeCount()))
		s.ResetCounterTo(origin+".current_readers", int64(db.CurrentReaders()))
		for p := 0; p < db.Partitions(); p++ {
			s.ResetCounterTo(fmt.Sprintf("%s.resign_heap_depth.%d", origin, p), int64(db.ResignDepth(p)))
		}
		hits, misses := db.GlueStats()
		s.ResetCounterTo(origin+".glue_cache_hits", hits)
		s.ResetCounterTo(origin+".glue_cache_misses", misses)
		s.ResetCounterTo(origin+".rollbacks", db.Rollbacks())
	}
}

func flattenKey(key string) string {
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, "=", "_")
	key = strings.ReplaceAll(key, "/", "_")
	return key
}
