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
	"container/heap"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// resignKey computes the tie-breaking resign_lsb for a header: a stable
// hash of the owner name and type, standing in for the bit pattern the C
// source derives from the header's own pointer value (which Go cannot and
// should not expose). xxhash is already pulled in transitively by the
// teacher's prometheus dependency; this gives it a direct, concrete job.
func resignKey(name Name, rtype RRType) uint64 {
	var buf [4]byte
	binary.BigEndian.PutUint16(buf[0:2], rtype.Base)
	binary.BigEndian.PutUint16(buf[2:4], rtype.Covers)
	h := xxhash.New()
	_, _ = h.Write(name.CanonicalKey())
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

// resignHeapEntry is one slot; it stores the owner name alongside the
// header so getsigningtime can report which name to resign without a
// second tree lookup.
type resignHeapEntry struct {
	header *Header
	owner  Name
}

// partitionHeap is a min-heap ordered by (resignAt, resignLSB), implementing
// container/heap.Interface. One exists per node-lock partition.
type partitionHeap struct {
	mu      sync.RWMutex
	entries []*resignHeapEntry
}

func newPartitionHeap() *partitionHeap {
	return &partitionHeap{}
}

func (h *partitionHeap) Len() int { return len(h.entries) }

func (h *partitionHeap) Less(i, j int) bool {
	a, b := h.entries[i].header, h.entries[j].header
	if !a.resignAt.Equal(b.resignAt) {
		return a.resignAt.Before(b.resignAt)
	}
	return a.resignLSB < b.resignLSB
}

func (h *partitionHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].header.heapIndex = i + 1
	h.entries[j].header.heapIndex = j + 1
}

func (h *partitionHeap) Push(x any) {
	e := x.(*resignHeapEntry)
	e.header.heapIndex = len(h.entries) + 1
	h.entries = append(h.entries, e)
}

func (h *partitionHeap) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.entries = old[:n-1]
	e.header.heapIndex = 0
	return e
}

// ResignHeaps holds the P independent min-heaps, one per node-lock
// partition, used to find the next RRSIG due for regeneration.
type ResignHeaps struct {
	partitions []*partitionHeap
}

// NewResignHeaps allocates P empty partition heaps.
func NewResignHeaps(p int) *ResignHeaps {
	rh := &ResignHeaps{partitions: make([]*partitionHeap, p)}
	for i := range rh.partitions {
		rh.partitions[i] = newPartitionHeap()
	}
	return rh
}

func (rh *ResignHeaps) partitionFor(locknum int) *partitionHeap {
	return rh.partitions[locknum%len(rh.partitions)]
}

// SetSigningTime inserts, removes, increases, or decreases a header's
// position in its partition's heap, and only in that case — an unchanged
// key leaves the heap untouched, preserving the heap invariant without a
// redundant sift. Passing a zero time removes the header (RESIGN cleared).
func (rh *ResignHeaps) SetSigningTime(owner Name, h *Header, locknum int, when time.Time) {
	ph := rh.partitionFor(locknum)
	ph.mu.Lock()
	defer ph.mu.Unlock()

	if when.IsZero() {
		if h.heapIndex != 0 {
			heap.Remove(ph, h.heapIndex-1)
			h.attr &^= attrResign
		}
		return
	}

	if h.heapIndex == 0 {
		h.resignAt = when
		h.resignLSB = resignKey(owner, h.Type)
		h.attr |= attrResign
		heap.Push(ph, &resignHeapEntry{header: h, owner: owner})
		return
	}

	if h.resignAt.Equal(when) {
		return // key unchanged: do not perturb the heap
	}
	h.resignAt = when
	heap.Fix(ph, h.heapIndex-1)
}

// GetSigningTime acquires each partition's read lock in turn, peeking each
// root, and returns the name/header holding the earliest resign deadline
// across all partitions. ok is false if every heap is empty.
func (rh *ResignHeaps) GetSigningTime() (owner Name, header *Header, ok bool) {
	var best *resignHeapEntry
	for _, ph := range rh.partitions {
		ph.mu.RLock()
		if len(ph.entries) > 0 {
			cand := ph.entries[0]
			if best == nil || cand.header.resignAt.Before(best.header.resignAt) ||
				(cand.header.resignAt.Equal(best.header.resignAt) && cand.header.resignLSB < best.header.resignLSB) {
				best = cand
			}
		}
		ph.mu.RUnlock()
	}
	if best == nil {
		return Name{}, nil, false
	}
	return best.owner, best.header, true
}

// Depth returns the number of entries parked in partition locknum's heap,
// exposed as a metrics gauge.
func (rh *ResignHeaps) Depth(locknum int) int {
	ph := rh.partitionFor(locknum)
	ph.mu.RLock()
	defer ph.mu.RUnlock()
	return len(ph.entries)
}
