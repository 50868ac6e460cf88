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

package qpdb

import (
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestAddRdatasetUnchangedSlabInstallsNoNewHeader(t *testing.T) {
	origin := mustName(t, "example.com.")
	db := NewDatabase(origin, dns.ClassINET, 4)
	require.NoError(t, db.BeginLoad())

	w, err := db.NewWriter()
	require.NoError(t, err)

	slab := NewSlab(RRType{Base: dns.TypeA}, dns.ClassINET, 300, TrustAnswer, [][]byte{{192, 0, 2, 1}})
	result, err := db.AddRdataset(w, mustName(t, "www.example.com."), slab, time.Time{})
	require.NoError(t, err)
	require.Equal(t, AddInstalled, result)

	same := NewSlab(RRType{Base: dns.TypeA}, dns.ClassINET, 600, TrustAnswer, [][]byte{{192, 0, 2, 1}})
	result, err = db.AddRdataset(w, mustName(t, "www.example.com."), same, time.Time{})
	require.NoError(t, err)
	require.Equal(t, AddUnchanged, result, "identical rdata set should be treated as UNCHANGED regardless of TTL")
}

func TestAddRdatasetJittersDefaultResignTimeForRRSIG(t *testing.T) {
	origin := mustName(t, "example.com.")
	db := NewDatabase(origin, dns.ClassINET, 4)
	require.NoError(t, db.BeginLoad())

	w, err := db.NewWriter()
	require.NoError(t, err)

	owner := mustName(t, "www.example.com.")
	sigSlab := NewSlab(RRType{Base: dns.TypeRRSIG, Covers: dns.TypeA}, dns.ClassINET, 300, TrustSecure, [][]byte{{1, 2, 3}})

	before := time.Now()
	_, err = db.AddRdataset(w, owner, sigSlab, time.Time{})
	require.NoError(t, err)

	node, ok := db.tree.Get(owner)
	require.True(t, ok)
	node.mu.RLock()
	h := node.headerOfType(RRType{Base: dns.TypeRRSIG, Covers: dns.TypeA})
	node.mu.RUnlock()
	require.NotNil(t, h)

	require.True(t, h.ShouldResign(), "a loaded RRSIG with no explicit resign time gets a jittered default, not none")
	require.False(t, h.resignAt.IsZero())
	require.True(t, h.resignAt.After(before))
	require.True(t, h.resignAt.Before(before.Add(defaultResignWindow+time.Second)))
}

func TestAddRdatasetExplicitResignTimeIsNotOverridden(t *testing.T) {
	origin := mustName(t, "example.com.")
	db := NewDatabase(origin, dns.ClassINET, 4)
	require.NoError(t, db.BeginLoad())

	w, err := db.NewWriter()
	require.NoError(t, err)

	owner := mustName(t, "www.example.com.")
	sigSlab := NewSlab(RRType{Base: dns.TypeRRSIG, Covers: dns.TypeA}, dns.ClassINET, 300, TrustSecure, [][]byte{{1, 2, 3}})
	explicit := time.Now().Add(72 * time.Hour)

	_, err = db.AddRdataset(w, owner, sigSlab, explicit)
	require.NoError(t, err)

	node, ok := db.tree.Get(owner)
	require.True(t, ok)
	node.mu.RLock()
	h := node.headerOfType(RRType{Base: dns.TypeRRSIG, Covers: dns.TypeA})
	node.mu.RUnlock()
	require.NotNil(t, h)
	require.True(t, h.resignAt.Equal(explicit))
}
