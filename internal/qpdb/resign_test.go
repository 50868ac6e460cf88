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

	"github.com/stretchr/testify/require"
)

func TestResignHeapsOrdersBySigningTime(t *testing.T) {
	rh := NewResignHeaps(1)
	owner := mustName(t, "www.example.com.")
	slab := NewSlab(RRType{Base: 46}, 1, 300, TrustAnswer, [][]byte{{1}})

	now := time.Now()
	hLate := NewHeader(owner, slab, 1)
	hEarly := NewHeader(owner, slab, 2)

	rh.SetSigningTime(owner, hLate, 0, now.Add(time.Hour))
	rh.SetSigningTime(owner, hEarly, 0, now)

	require.Equal(t, 2, rh.Depth(0))
	gotOwner, gotHeader, ok := rh.GetSigningTime()
	require.True(t, ok)
	require.Equal(t, owner.String(), gotOwner.String())
	require.Same(t, hEarly, gotHeader)
}

func TestResignHeapsZeroTimeRemoves(t *testing.T) {
	rh := NewResignHeaps(1)
	owner := mustName(t, "www.example.com.")
	slab := NewSlab(RRType{Base: 46}, 1, 300, TrustAnswer, [][]byte{{1}})
	h := NewHeader(owner, slab, 1)

	rh.SetSigningTime(owner, h, 0, time.Now())
	require.Equal(t, 1, rh.Depth(0))

	rh.SetSigningTime(owner, h, 0, time.Time{})
	require.Equal(t, 0, rh.Depth(0))
	require.False(t, h.ShouldResign())
}

func TestResignHeapsUnchangedKeyDoesNotPerturb(t *testing.T) {
	rh := NewResignHeaps(1)
	owner := mustName(t, "www.example.com.")
	slab := NewSlab(RRType{Base: 46}, 1, 300, TrustAnswer, [][]byte{{1}})
	h := NewHeader(owner, slab, 1)
	when := time.Now()

	rh.SetSigningTime(owner, h, 0, when)
	before := h.heapIndex
	rh.SetSigningTime(owner, h, 0, when)
	require.Equal(t, before, h.heapIndex)
}

func TestResignHeapsPartitionsBySeparateLocknums(t *testing.T) {
	rh := NewResignHeaps(4)
	owner := mustName(t, "www.example.com.")
	slab := NewSlab(RRType{Base: 46}, 1, 300, TrustAnswer, [][]byte{{1}})

	h0 := NewHeader(owner, slab, 1)
	h5 := NewHeader(owner, slab, 2)
	rh.SetSigningTime(owner, h0, 0, time.Now())
	rh.SetSigningTime(owner, h5, 5, time.Now())

	require.Equal(t, 1, rh.Depth(0))
	require.Equal(t, 1, rh.Depth(5)) // 5 % 4 == 1, distinct from partition 0
}

func TestResignHeapsEmptyReturnsNotOK(t *testing.T) {
	rh := NewResignHeaps(2)
	_, _, ok := rh.GetSigningTime()
	require.False(t, ok)
}
