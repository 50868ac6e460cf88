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
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/miekg/dns"
)

// atomic64 is a tiny wrapper kept distinct from the header's own use of
// sync/atomic so glue-cache counters read clearly at call sites.
type atomic64 struct{ v atomic.Int64 }

func (a *atomic64) add(n int64)  { a.v.Add(n) }
func (a *atomic64) get() int64   { return a.v.Load() }

// GlueCache memoizes, per NS-rdataset header, the additional-section
// addresses for its targets (component C9). The per-header linked list is
// the authoritative representation the spec describes; the LRU on top of
// it is a resource bound the source does not need (it runs inside a
// process with its own allocator budget) but that a Go port benefits from,
// since nothing here ever shrinks the per-header pointer back to nil on
// its own. Evicting a header from the LRU clears its memoized list, which
// simply forces the next lookup to recompute it — cheap and correctness
// preserving.
type GlueCache struct {
	hits, misses atomic64
	recent       *lru.Cache
}

// NewGlueCache creates a glue cache bounding memoized glue lists to at most
// size distinct headers (0 means unbounded).
func NewGlueCache(size int) *GlueCache {
	gc := &GlueCache{}
	if size > 0 {
		c, err := lru.NewWithEvict(size, func(key, value interface{}) {
			if h, ok := key.(*Header); ok {
				h.glue.Store(nil)
			}
		})
		if err == nil {
			gc.recent = c
		}
	}
	return gc
}

// lookupGlueFn resolves one NS target name to its address rdatasets,
// implemented by the lookup engine (component C6) with GLUEOK set. It is a
// function value rather than an interface so glue.go has no import-time
// dependency on lookup.go beyond this package boundary.
type lookupGlueFn func(target Name, version *Version) (a, aaaa, sigA, sigAAAA *Slab)

// Resolve returns the memoized glue list for header h (an NS rdataset),
// computing it via lookupGlue on first use. ownerName is the NS rdataset's
// owner, used to tag in-bailiwick targets REQUIRED. version's glue stack
// receives the newly allocated entries so a structural change at commit
// can invalidate them.
func (gc *GlueCache) Resolve(h *Header, ownerName Name, targets []Name, version *Version, lookupGlue lookupGlueFn) *GlueEntry {
	if existing := h.glue.Load(); existing != nil {
		gc.hits.add(1)
		if existing == glueNotFound {
			return nil
		}
		return existing
	}
	gc.misses.add(1)

	var head, tail *GlueEntry
	var firstRequired *GlueEntry
	for _, target := range targets {
		a, aaaa, sigA, sigAAAA := lookupGlue(target, version)
		if a == nil && aaaa == nil {
			continue
		}
		entry := &GlueEntry{
			Name:     target,
			A:        a,
			AAAA:     aaaa,
			SigA:     sigA,
			SigAAAA:  sigAAAA,
			Required: IsSubdomain(target, ownerName),
		}
		if entry.Required && firstRequired == nil {
			firstRequired = entry
		}
		if head == nil {
			head = entry
		} else {
			tail.Next = entry
		}
		tail = entry
	}

	result := head
	if result == nil {
		result = glueNotFound
	} else if firstRequired != nil && firstRequired != head {
		// Message assembly moves the first REQUIRED name to the front of
		// the ADDITIONAL section so a truncating renderer still honors it;
		// we do the equivalent here by reordering the cached list itself.
		result = reorderRequiredFirst(head, firstRequired)
	}

	if !h.glue.CompareAndSwap(nil, result) {
		// Another goroutine won the race; use its result.
		result = h.glue.Load()
	} else {
		gc.touch(h)
		if version != nil && result != glueNotFound {
			version.pushGlue(result)
		}
	}
	if result == glueNotFound {
		return nil
	}
	return result
}

func reorderRequiredFirst(head, required *GlueEntry) *GlueEntry {
	if head == required {
		return head
	}
	var prev *GlueEntry
	for cur := head; cur != nil; cur = cur.Next {
		if cur == required {
			prev.Next = cur.Next
			cur.Next = head
			return cur
		}
		prev = cur
	}
	return head
}

// Invalidate drops the memoized glue list for h, e.g. because its node was
// destroyed or a new writer version overwrote the NS rdataset.
func (gc *GlueCache) Invalidate(h *Header) {
	h.glue.Store(nil)
	if gc.recent != nil {
		gc.recent.Remove(h)
	}
}

// Stats reports cumulative hit/miss counts for metrics export.
func (gc *GlueCache) Stats() (hits, misses int64) {
	return gc.hits.get(), gc.misses.get()
}

// touch records that header h's glue entry was just (re)computed, for LRU
// accounting. A no-op if the cache is unbounded.
func (gc *GlueCache) touch(h *Header) {
	if gc.recent != nil {
		gc.recent.Add(h, struct{}{})
	}
}

// ResolveDelegationGlue computes the additional-section glue for a
// delegation: result must be a Find outcome carrying an NS rdataset
// (ResultDelegation or ResultZoneCut). Each NS target is decoded from its
// wire rdata and looked up with GLUEOK set, and the resolved list is
// memoized on the NS header via the glue cache. Returns nil if result
// carries no NS rdataset or no target resolved.
func (db *Database) ResolveDelegationGlue(result *FindResult, version *Version) *GlueEntry {
	if result == nil || result.Rdataset == nil {
		return nil
	}
	slab := result.Rdataset.Slab()
	if slab == nil || slab.Type.Base != dns.TypeNS {
		return nil
	}
	targets := make([]Name, 0, slab.Len())
	for i := 0; i < slab.Len(); i++ {
		target, err := unpackNameRdata(slab.Record(i))
		if err != nil {
			continue
		}
		targets = append(targets, target)
	}
	if len(targets) == 0 {
		return nil
	}
	return db.glue.Resolve(result.Rdataset, result.FoundName, targets, version, db.lookupGlue)
}

// lookupGlue implements lookupGlueFn by calling back into the lookup
// engine with GLUEOK set, resolving one NS target's address rdatasets the
// same way a delegation's additional section would.
func (db *Database) lookupGlue(target Name, version *Version) (a, aaaa, sigA, sigAAAA *Slab) {
	if res, err := db.Find(target, dns.TypeA, version, OptGlueOK); err == nil && addressFound(res) {
		a = res.Rdataset.Slab()
		sigA = sigSlabOf(res.Signature)
	}
	if res, err := db.Find(target, dns.TypeAAAA, version, OptGlueOK); err == nil && addressFound(res) {
		aaaa = res.Rdataset.Slab()
		sigAAAA = sigSlabOf(res.Signature)
	}
	return a, aaaa, sigA, sigAAAA
}

func addressFound(res *FindResult) bool {
	return res != nil && (res.Code == ResultSuccess || res.Code == ResultGlue) && res.Rdataset != nil
}

func sigSlabOf(h *Header) *Slab {
	if h == nil {
		return nil
	}
	return h.Slab()
}

// unpackNameRdata decodes a packed domain name out of an NS rdataset's
// wire rdata. This is the one place the glue cache needs to interpret
// record bytes rather than treat them as opaque: it has to know which
// name to chase.
func unpackNameRdata(rdata []byte) (Name, error) {
	s, _, err := dns.UnpackDomainName(rdata, 0)
	if err != nil {
		return Name{}, err
	}
	return NewName(s)
}
