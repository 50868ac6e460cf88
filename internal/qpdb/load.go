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
	"time"

	"github.com/miekg/dns"

	"github.com/isc-projects/qpzonedb/internal/qplog"
)

// defaultResignWindow bounds the jitter applied to a loaded RRSIG's resign
// deadline when the loader does not compute one explicitly from the
// signature's own inception/expiration fields.
const defaultResignWindow = 24 * time.Hour

// AddRdatasetResult reports the outcome of one AddRdataset call.
type AddRdatasetResult uint8

// AddRdatasetResult values.
const (
	AddInstalled  AddRdatasetResult = iota // a new header was installed
	AddUnchanged                           // the slab was identical to the header visible to the writer; treated as success
)

// AddRdataset ingests one rdataset at owner under the given writer version,
// implementing the load pipeline's merge and wildcard-magic rules. It is
// the single entry point used both by the initial zone load and by
// incremental updates; neither needs a distinct code path at this layer.
func (db *Database) AddRdataset(w *VersionHandle, owner Name, slab *Slab, resignAt time.Time) (AddRdatasetResult, error) {
	if w.db != db {
		return 0, ErrWrongDB
	}
	v := w.version
	if !v.writer {
		return 0, ErrNotWriter
	}

	if slab.Type.Base == dns.TypeSOA && !owner.Equal(db.Origin) {
		return 0, ErrNotZoneTop
	}
	if owner.IsWildcard() {
		if slab.Type.Base == dns.TypeNS {
			return 0, ErrInvalidNS
		}
		if slab.Type.Base == dns.TypeNSEC3 {
			return 0, ErrInvalidNSEC3
		}
	}

	if slab.Type.Base != dns.TypeNSEC3 && ownerHasWildcardLabel(owner) {
		db.applyWildcardMagic(owner)
	}

	var node *Node
	switch slab.Type.Base {
	case dns.TypeNSEC3:
		node, _ = db.findOrCreateNode(db.nsec3Tree, owner)
		node.setNSEC(NSECNsec3)
	case dns.TypeNSEC:
		node, _ = db.findOrCreateNode(db.tree, owner)
		node.setNSEC(NSECHasNSEC)
		if _, existed := db.nsecTree.Get(owner); existed {
			qplog.DuplicateNSEC(owner.String())
		} else {
			db.nsecTree.Insert(owner, node)
		}
	default:
		node, _ = db.findOrCreateNode(db.tree, owner)
	}

	if slab.Type.Base == dns.TypeNS || slab.Type.Base == dns.TypeDNAME {
		if slab.Type.Base != dns.TypeNS || !owner.Equal(db.Origin) {
			node.setFindCallback()
		}
	}

	result, installed := db.mergeHeader(node, v, slab)
	if result == AddInstalled {
		v.noteChangedNode(node)
		if resignAt.IsZero() && slab.Type.Base == dns.TypeRRSIG {
			// The loader didn't compute a resign deadline from the
			// signature's own expiration; spread the default across the
			// window instead of letting every signature of a freshly
			// loaded zone compete for the same resign-heap slot.
			resignAt = time.Now().Add(db.entropy.Jitter(defaultResignWindow))
		}
		if !resignAt.IsZero() {
			installed.attr |= attrResign
			installed.resignAt = resignAt
			installed.resignLSB = resignKey(owner, installed.Type)
			v.noteResignCandidate(installed)
		}
		v.AddRecordCount(int64(slab.Len()))
	}
	return result, nil
}

// mergeHeader installs slab as the new head of its type's chain at node,
// unless an existing visible header already carries an identical slab
// (UNCHANGED), in which case nothing is installed.
func (db *Database) mergeHeader(node *Node, v *Version, slab *Slab) (AddRdatasetResult, *Header) {
	node.mu.Lock()
	defer node.mu.Unlock()

	if existing := visibleAt(node.headerOfType(slab.Type), v.serial); existing != nil && existing.slab.Equal(slab) {
		return AddUnchanged, existing
	}

	h := NewHeader(node.name, slab, v.serial)
	node.installHeader(h)
	return AddInstalled, h
}

// DeleteRdataset marks the visible header of rtype at owner NONEXISTENT
// under the writer version, the MVCC equivalent of a delete.
func (db *Database) DeleteRdataset(w *VersionHandle, owner Name, rtype RRType) error {
	if w.db != db {
		return ErrWrongDB
	}
	v := w.version
	if !v.writer {
		return ErrNotWriter
	}
	node, ok := db.tree.Get(owner)
	if !ok {
		return nil
	}
	node.mu.Lock()
	h := &Header{Type: rtype, Owner: owner, Serial: v.serial, attr: attrNonexistent}
	node.installHeader(h)
	node.mu.Unlock()
	v.noteChangedNode(node)
	return nil
}

// ownerHasWildcardLabel reports whether name contains a "*" label at any
// position, not only as the leftmost label.
func ownerHasWildcardLabel(name Name) bool {
	for i := 0; i < name.LabelCount(); i++ {
		if name.Label(i) == "*" {
			return true
		}
	}
	return false
}

// applyWildcardMagic sets the wild bit on every proper ancestor of owner
// between the zone origin and owner, creating ancestor nodes as needed.
func (db *Database) applyWildcardMagic(owner Name) {
	cur, ok := owner.Parent()
	for ok {
		if !IsSubdomain(cur, db.Origin) {
			break
		}
		node, _ := db.findOrCreateNode(db.tree, cur)
		node.setWild()
		node.setFindCallback()
		if cur.Equal(db.Origin) {
			break
		}
		cur, ok = cur.Parent()
	}
}
