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

// Package qpmetrics exposes the zone database's counters to Prometheus
// without opening an HTTP listener of its own: Stats is a plain counter
// map a caller can increment from arbitrary call sites, and it doubles as
// a prometheus.Collector so a surrounding server can register it with
// whatever Registry it already runs.
package qpmetrics

import (
	"sync"

	"github.com/isc-projects/qpzonedb/internal/qpdb"
)

// Stats is a flat, string-keyed counter map guarded by a single lock.
type Stats struct {
	mu     sync.RWMutex
	values map[string]int64
	dbs    []*qpdb.Database
}

// NewStats creates an empty counter map.
func NewStats() *Stats {
	return &Stats{values: make(map[string]int64)}
}

// IncrementCounter increments the counter for key by 1.
func (s *Stats) IncrementCounter(key string) {
	s.mu.Lock()
	s.values[key]++
	s.mu.Unlock()
}

// IncrementCounterBy adds value to the counter for key.
func (s *Stats) IncrementCounterBy(key string, value int64) {
	s.mu.Lock()
	s.values[key] += value
	s.mu.Unlock()
}

// ResetCounter sets the counter for key to 0.
func (s *Stats) ResetCounter(key string) {
	s.mu.Lock()
	s.values[key] = 0
	s.mu.Unlock()
}

// ResetCounterTo sets the counter for key to value.
func (s *Stats) ResetCounterTo(key string, value int64) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// Get returns a snapshot copy of every counter.
func (s *Stats) Get() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make(map[string]int64, len(s.values))
	for k, v := range s.values {
		ret[k] = v
	}
	return ret
}
