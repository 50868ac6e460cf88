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

func packNSRdata(t *testing.T, target string) []byte {
	t.Helper()
	buf := make([]byte, 255)
	off, err := dns.PackDomainName(target, buf, 0, nil, false)
	require.NoError(t, err)
	return buf[:off]
}

func TestResolveDelegationGlueResolvesNSTargetAddresses(t *testing.T) {
	origin := mustName(t, "example.com.")
	db := NewDatabase(origin, dns.ClassINET, 4)
	require.NoError(t, db.BeginLoad())

	w, err := db.NewWriter()
	require.NoError(t, err)

	nsSlab := NewSlab(RRType{Base: dns.TypeNS}, dns.ClassINET, 300, TrustAuthAnswer, [][]byte{packNSRdata(t, "ns1.sub.example.com.")})
	_, err = db.AddRdataset(w, mustName(t, "sub.example.com."), nsSlab, time.Time{})
	require.NoError(t, err)

	aSlab := NewSlab(RRType{Base: dns.TypeA}, dns.ClassINET, 300, TrustGlue, [][]byte{{192, 0, 2, 53}})
	_, err = db.AddRdataset(w, mustName(t, "ns1.sub.example.com."), aSlab, time.Time{})
	require.NoError(t, err)

	require.NoError(t, db.Close(w, true))
	db.EndLoad()

	cur := db.Current()
	defer db.Close(cur, true)

	res, err := db.Find(mustName(t, "host.sub.example.com."), dns.TypeA, cur.Version(), 0)
	require.NoError(t, err)
	require.Equal(t, ResultDelegation, res.Code)

	glue := db.ResolveDelegationGlue(res, cur.Version())
	require.NotNil(t, glue)
	require.Equal(t, "ns1.sub.example.com.", glue.Name.String())
	require.True(t, glue.Required)
	require.NotNil(t, glue.A)
	require.Nil(t, glue.Next)

	glueAgain := db.ResolveDelegationGlue(res, cur.Version())
	require.Same(t, glue, glueAgain)
}

func TestGlueCacheResolveMemoizesAndCountsHitMiss(t *testing.T) {
	gc := NewGlueCache(16)
	owner := mustName(t, "example.com.")
	target := mustName(t, "ns1.example.com.")
	aSlab := NewSlab(RRType{Base: 1}, 1, 300, TrustGlue, [][]byte{{192, 0, 2, 1}})

	h := NewHeader(owner, NewSlab(RRType{Base: 2}, 1, 300, TrustAnswer, [][]byte{{1}}), 1)
	calls := 0
	lookupGlue := func(target Name, version *Version) (a, aaaa, sigA, sigAAAA *Slab) {
		calls++
		return aSlab, nil, nil, nil
	}

	entry := gc.Resolve(h, owner, []Name{target}, nil, lookupGlue)
	require.NotNil(t, entry)
	require.Equal(t, target.String(), entry.Name.String())
	require.True(t, entry.Required)

	entry2 := gc.Resolve(h, owner, []Name{target}, nil, lookupGlue)
	require.Same(t, entry, entry2)
	require.Equal(t, 1, calls, "second Resolve must hit the memoized list, not call lookupGlue again")

	hits, misses := gc.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
}

func TestGlueCacheResolveReturnsNilWhenNoTargetsResolve(t *testing.T) {
	gc := NewGlueCache(16)
	owner := mustName(t, "example.com.")
	h := NewHeader(owner, NewSlab(RRType{Base: 2}, 1, 300, TrustAnswer, [][]byte{{1}}), 1)

	lookupGlue := func(target Name, version *Version) (a, aaaa, sigA, sigAAAA *Slab) {
		return nil, nil, nil, nil
	}

	entry := gc.Resolve(h, owner, []Name{mustName(t, "ns1.example.com.")}, nil, lookupGlue)
	require.Nil(t, entry)

	_, misses := gc.Stats()
	require.Equal(t, int64(1), misses)
}

func TestGlueCacheInvalidateForcesRecompute(t *testing.T) {
	gc := NewGlueCache(16)
	owner := mustName(t, "example.com.")
	target := mustName(t, "ns1.example.com.")
	aSlab := NewSlab(RRType{Base: 1}, 1, 300, TrustGlue, [][]byte{{192, 0, 2, 1}})
	h := NewHeader(owner, NewSlab(RRType{Base: 2}, 1, 300, TrustAnswer, [][]byte{{1}}), 1)

	calls := 0
	lookupGlue := func(target Name, version *Version) (a, aaaa, sigA, sigAAAA *Slab) {
		calls++
		return aSlab, nil, nil, nil
	}

	gc.Resolve(h, owner, []Name{target}, nil, lookupGlue)
	gc.Invalidate(h)
	gc.Resolve(h, owner, []Name{target}, nil, lookupGlue)

	require.Equal(t, 2, calls)
}

func TestGlueCacheRequiredTargetSortsFirst(t *testing.T) {
	gc := NewGlueCache(16)
	owner := mustName(t, "sub.example.com.")
	outOfBailiwick := mustName(t, "ns1.other.example.")
	inBailiwick := mustName(t, "ns2.sub.example.com.")
	aSlab := NewSlab(RRType{Base: 1}, 1, 300, TrustGlue, [][]byte{{192, 0, 2, 1}})

	h := NewHeader(owner, NewSlab(RRType{Base: 2}, 1, 300, TrustAnswer, [][]byte{{1}}), 1)
	lookupGlue := func(target Name, version *Version) (a, aaaa, sigA, sigAAAA *Slab) {
		return aSlab, nil, nil, nil
	}

	entry := gc.Resolve(h, owner, []Name{outOfBailiwick, inBailiwick}, nil, lookupGlue)
	require.NotNil(t, entry)
	require.Equal(t, inBailiwick.String(), entry.Name.String())
	require.True(t, entry.Required)
}
