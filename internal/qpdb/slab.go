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
	"bytes"
	"sort"

	"github.com/segmentio/fasthash/fnv1a"
)

// RRType identifies an rdataset's type. For RRSIG rdatasets, Covers holds
// the type covered by the signature; for every other type Covers is 0.
type RRType struct {
	Base   uint16
	Covers uint16
}

// Trust grades how much confidence the surrounding server places in the
// rdataset's source, mirroring dns_trust_t.
type Trust uint8

// Trust levels, weakest first, matching the source's dns_trust_t ordering.
const (
	TrustNone Trust = iota
	TrustGlue
	TrustAdditional
	TrustPending
	TrustAnswer
	TrustAuthAnswer
	TrustSecure
)

// Slab is an immutable RRset: every record shares an owner name (carried
// by the Node, not the Slab), class, and (type, covers) pair. Records are
// kept as separate rdata byte slices, not packed into one length-prefixed
// buffer. Records are unique and held in canonical (RFC 4034
// §6.3) order. TTL and trust are stored once per slab, never per record.
type Slab struct {
	Type    RRType
	Class   uint16
	TTL     uint32
	Trust   Trust
	records [][]byte // canonical rdata order, deduplicated
	digest  uint64   // content hash over type/class/records, for UNCHANGED detection
}

// NewSlab builds a Slab from raw packed rdata, sorting into canonical order
// and removing exact duplicates. TTL is the slab-wide TTL (the minimum of
// the rrset's TTLs, by convention of the loader).
func NewSlab(rtype RRType, class uint16, ttl uint32, trust Trust, rdata [][]byte) *Slab {
	uniq := dedupSorted(rdata)
	s := &Slab{Type: rtype, Class: class, TTL: ttl, Trust: trust, records: uniq}
	s.digest = s.computeDigest()
	return s
}

func dedupSorted(rdata [][]byte) [][]byte {
	cp := make([][]byte, len(rdata))
	copy(cp, rdata)
	sort.Slice(cp, func(i, j int) bool { return bytes.Compare(cp[i], cp[j]) < 0 })
	out := cp[:0]
	var prev []byte
	for i, r := range cp {
		if i == 0 || !bytes.Equal(r, prev) {
			out = append(out, r)
			prev = r
		}
	}
	return out
}

// Len returns the number of records in the slab.
func (s *Slab) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Record returns the i'th record's raw rdata in canonical order.
func (s *Slab) Record(i int) []byte {
	return s.records[i]
}

// Records returns the canonical-order rdata slices. Callers must not mutate
// the returned slices; the slab is immutable.
func (s *Slab) Records() [][]byte {
	return s.records
}

// computeDigest hashes type, class and every record with a fast
// non-cryptographic hash (FNV-1a via fasthash, the same hashing family the
// teacher's RDB builder uses for content identity), so that Slab.Equal can
// short-circuit on a cheap comparison before falling back to a byte
// comparison when digests collide.
func (s *Slab) computeDigest() uint64 {
	h := fnv1a.HashUint64(uint64(s.Type.Base)<<32 | uint64(s.Type.Covers))
	h = fnv1a.AddUint64(h, uint64(s.Class))
	for _, r := range s.records {
		h = fnv1a.AddBytes64(h, r)
	}
	return h
}

// Equal reports whether two slabs carry the same type, class and record set
// (ignoring TTL and trust), which is the condition the load pipeline calls
// UNCHANGED: merging an identical rdataset into a node is a success that
// installs no new header.
func (s *Slab) Equal(other *Slab) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.digest != other.digest {
		return false
	}
	if s.Type != other.Type || s.Class != other.Class || len(s.records) != len(other.records) {
		return false
	}
	for i := range s.records {
		if !bytes.Equal(s.records[i], other.records[i]) {
			return false
		}
	}
	return true
}
