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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/isc-projects/qpzonedb/internal/qpdb"
)

func TestStatsCounters(t *testing.T) {
	s := NewStats()
	s.IncrementCounter("queries")
	s.IncrementCounter("queries")
	s.IncrementCounterBy("bytes", 512)
	s.ResetCounterTo("bytes", 1024)
	s.ResetCounter("queries")

	got := s.Get()
	require.Equal(t, int64(0), got["queries"])
	require.Equal(t, int64(1024), got["bytes"])
}

func TestCollectEmitsAttachedDatabaseSeries(t *testing.T) {
	origin, err := qpdb.NewName("example.com.")
	require.NoError(t, err)
	db := qpdb.NewDatabase(origin, 1, 4)

	s := NewStats()
	s.Attach(db)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(s))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var sawNodeCount bool
	flat := flattenKey(origin.String())
	for _, mf := range mfs {
		if mf.GetName() == flat+"_node_count" {
			sawNodeCount = true
		}
	}
	require.True(t, sawNodeCount)
}

func TestFlattenKey(t *testing.T) {
	require.Equal(t, "a_b_c_d_e", flattenKey("a b.c-d=e"))
}
