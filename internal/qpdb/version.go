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
	"sync"
	"sync/atomic"
)

// NSEC3Params holds the parameters of one NSEC3 chain, copied into every
// version so that a reader's view of "which chain is active" never changes
// mid-lookup even if the zone rolls its NSEC3 salt concurrently.
type NSEC3Params struct {
	Hash       uint8
	Iterations uint16
	Salt       []byte
	Flags      uint8
	HaveNSEC3  bool
}

// Equal reports whether two parameter sets describe the same NSEC3 chain.
func (p NSEC3Params) Equal(o NSEC3Params) bool {
	if p.Hash != o.Hash || p.Iterations != o.Iterations || p.Flags != o.Flags || p.HaveNSEC3 != o.HaveNSEC3 {
		return false
	}
	if len(p.Salt) != len(o.Salt) {
		return false
	}
	for i := range p.Salt {
		if p.Salt[i] != o.Salt[i] {
			return false
		}
	}
	return true
}

// Version is one MVCC snapshot, identified by a monotonically increasing
// serial. A writable version additionally tracks the bookkeeping needed to
// publish or roll back.
type Version struct {
	serial uint32
	writer bool

	mu           sync.RWMutex // version-metadata lock: counts, secure bit, nsec3 params
	secure       bool
	recordCount  uint64
	transferSize uint64
	nsec3        NSEC3Params

	refcount atomic.Int32 // live reader+writer handles attached to this version

	// Writer-only bookkeeping, populated as the load/update pipeline
	// installs headers under this version and consumed at Close.
	changedNodes    []*Node
	resignCandidate []*Header
	glueStack       []*GlueEntry
}

// Serial returns the version's serial number.
func (v *Version) Serial() uint32 { return v.serial }

// IsWriter reports whether this version is the (at most one) open writer.
func (v *Version) IsWriter() bool { return v.writer }

// IsSecure reports the secure-zone bit captured by this version.
func (v *Version) IsSecure() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.secure
}

// SetSecure sets the secure-zone bit. EndLoad sets it on the committed
// current version; NewWriter copies it from there.
func (v *Version) SetSecure(secure bool) {
	v.mu.Lock()
	v.secure = secure
	v.mu.Unlock()
}

// NSEC3Params returns the version's NSEC3 chain parameters.
func (v *Version) NSEC3Params() NSEC3Params {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.nsec3
}

// SetNSEC3Params installs the version's NSEC3 chain parameters.
func (v *Version) SetNSEC3Params(p NSEC3Params) {
	v.mu.Lock()
	v.nsec3 = p
	v.mu.Unlock()
}

// RecordCount returns the version's record counter.
func (v *Version) RecordCount() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.recordCount
}

// AddRecordCount adjusts the version's record counter. Only meaningful on a writer.
func (v *Version) AddRecordCount(delta int64) {
	v.mu.Lock()
	if delta < 0 {
		v.recordCount -= uint64(-delta)
	} else {
		v.recordCount += uint64(delta)
	}
	v.mu.Unlock()
}

// TransferSize returns the estimated wire size of a full zone transfer at
// this version.
func (v *Version) TransferSize() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.transferSize
}

// AddTransferSize adjusts the version's transfer-size estimate.
func (v *Version) AddTransferSize(delta int64) {
	v.mu.Lock()
	if delta < 0 {
		v.transferSize -= uint64(-delta)
	} else {
		v.transferSize += uint64(delta)
	}
	v.mu.Unlock()
}

// noteChangedNode records that node was touched by this writer, so commit
// can scan exactly the nodes that changed rather than the whole tree.
func (v *Version) noteChangedNode(n *Node) {
	v.mu.Lock()
	v.changedNodes = append(v.changedNodes, n)
	v.mu.Unlock()
}

// noteResignCandidate records a freshly installed RESIGN header so commit
// can insert it into the partitioned resign heap.
func (v *Version) noteResignCandidate(h *Header) {
	v.mu.Lock()
	v.resignCandidate = append(v.resignCandidate, h)
	v.mu.Unlock()
}

// pushGlue records a glue-cache entry allocated under this writer so that a
// rollback (or, on commit, a later structural change) can find and free it.
func (v *Version) pushGlue(g *GlueEntry) {
	v.mu.Lock()
	v.glueStack = append(v.glueStack, g)
	v.mu.Unlock()
}
