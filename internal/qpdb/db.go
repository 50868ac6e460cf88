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

	"github.com/miekg/dns"
	"golang.org/x/sync/semaphore"

	"github.com/isc-projects/qpzonedb/internal/qplog"
)

// dbAttr is the db-level attribute bitfield (LOADING/LOADED).
type dbAttr uint8

const (
	dbLoading dbAttr = 1 << iota
	dbLoaded
)

// Database is the top-level versioned zone database: the dns_dbmethods
// object, minus everything the surrounding server owns (wire codec,
// network I/O, zone-file parsing). It wires together the name tree, nodes,
// version manager, lookup engine, load pipeline, resign heap and glue
// cache.
//
// Lock order, never violated: db-lock -> tree-lock -> node-lock ->
// version-lock. The db-lock below guards attribute bits and the current-
// version pointer; tree-lock lives inside Tree; each Node has its own
// mutex as its node-lock (no lock is shared between nodes, and the
// partition number selects only the resign-heap partition); version-locks
// live inside Version.
type Database struct {
	mu   sync.Mutex // db-level lock
	attr dbAttr

	Origin Name
	Class  uint16

	partitions int

	tree      *Tree
	nsecTree  *Tree
	nsec3Tree *Tree

	resign  *ResignHeaps
	glue    *GlueCache
	entropy *EntropySource

	current    atomic.Pointer[Version]
	nextSerial uint32

	// writerGate enforces "one writable version may exist at a time" via a
	// non-blocking TryAcquire rather than a bare mutex+flag, the same
	// golang.org/x/sync/semaphore idiom used elsewhere for bounding
	// concurrent holders of a resource.
	writerGate *semaphore.Weighted
	writerMu   sync.Mutex
	writer     *Version

	originNode *Node

	rollbacks atomic.Int64
}

// NewDatabase creates an empty, unloaded database for the given zone origin.
// partitions is P, the number of node-lock partitions; it must be a power
// of two (callers typically pass 16).
func NewDatabase(origin Name, class uint16, partitions int) *Database {
	if partitions <= 0 {
		partitions = 16
	}
	db := &Database{
		Origin:     origin,
		Class:      class,
		partitions: partitions,
		tree:       NewTree(),
		nsecTree:   NewTree(),
		nsec3Tree:  NewTree(),
		resign:     NewResignHeaps(partitions),
		glue:       NewGlueCache(4096),
		entropy:    NewEntropySource(),
		writerGate: semaphore.NewWeighted(1),
	}
	initial := &Version{serial: 1}
	db.current.Store(initial)
	db.nextSerial = 2
	db.originNode, _ = db.findOrCreateNode(db.tree, origin)
	return db
}

func (db *Database) partitionFor(name Name) int {
	return int(partitionHash(name.CanonicalKey()) % uint64(db.partitions))
}

func (db *Database) findOrCreateNode(t *Tree, name Name) (*Node, bool) {
	if n, ok := t.Get(name); ok {
		return n, false
	}
	n := newNode(name, db.partitionFor(name))
	existing := t.Insert(name, n)
	return existing, existing == n
}

// GetOriginNode returns the node materialized at zone load for the zone
// origin.
func (db *Database) GetOriginNode() *Node { return db.originNode }

// NodeCount returns the number of distinct owner names in the main tree.
func (db *Database) NodeCount() int { return db.tree.Len() }

// ----- load gate (C7 begin_load/end_load) -----

// BeginLoad sets the LOADING attribute, failing if the database has
// already been loaded or is already loading.
func (db *Database) BeginLoad() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.attr&(dbLoading|dbLoaded) != 0 {
		return ErrAlreadyLoaded
	}
	db.attr |= dbLoading
	return nil
}

// EndLoad clears LOADING and sets LOADED. If the origin node carries a
// zone key (DNSKEY) rdataset visible in the current version, the initial
// version is marked secure.
func (db *Database) EndLoad() {
	db.mu.Lock()
	db.attr &^= dbLoading
	db.attr |= dbLoaded
	db.mu.Unlock()

	cur := db.current.Load()
	db.originNode.mu.RLock()
	head := db.originNode.headerOfType(RRType{Base: dns.TypeDNSKEY})
	db.originNode.mu.RUnlock()
	if h := visibleAt(head, cur.serial); h != nil && !h.IsNonexistent() {
		cur.SetSecure(true)
	}
}

// IsLoading reports whether a load is currently in progress.
func (db *Database) IsLoading() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.attr&dbLoading != 0
}

// IsLoaded reports whether a load has completed.
func (db *Database) IsLoaded() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.attr&dbLoaded != 0
}

// ----- version manager (C5) -----

// VersionHandle is what current()/new_writer() hand back to callers: a
// reference-counted attachment to one Version. Every operation that
// validates version handles checks Handle.db against the database it was
// asked to operate on.
type VersionHandle struct {
	db      *Database
	version *Version
	closed  atomic.Bool
}

// Version exposes the underlying Version for read access.
func (h *VersionHandle) Version() *Version { return h.version }

// Current attaches the latest committed version, bumping its reader count.
func (db *Database) Current() *VersionHandle {
	v := db.current.Load()
	v.refcount.Add(1)
	return &VersionHandle{db: db, version: v}
}

// NewWriter opens a writable version. It fails with ErrWriterOutstanding if
// one is already open. The writer's serial is current.serial + 1 and it
// starts as a copy of current's NSEC3 params and counters.
func (db *Database) NewWriter() (*VersionHandle, error) {
	if !db.writerGate.TryAcquire(1) {
		qplog.WriterOutstanding(db.Origin.String())
		return nil, ErrWriterOutstanding
	}
	db.writerMu.Lock()
	defer db.writerMu.Unlock()

	cur := db.current.Load()
	db.mu.Lock()
	serial := db.nextSerial
	db.nextSerial++
	db.mu.Unlock()

	w := &Version{serial: serial, writer: true}
	w.nsec3 = cur.NSEC3Params()
	w.secure = cur.IsSecure()
	w.recordCount = cur.RecordCount()
	w.transferSize = cur.TransferSize()
	w.refcount.Add(1)
	db.writer = w
	return &VersionHandle{db: db, version: w}, nil
}

// Close releases a handle. For a reader this simply decrements the
// refcount. For a writer, commit publishes the version (atomic pointer
// swap of current), or rollback marks every header installed at this
// writer's serial IGNORE, discarding the glue-invalidation stack. Ignored
// headers are not unlinked: they stay in their chains and visibleAt skips
// them.
func (db *Database) Close(h *VersionHandle, commit bool) error {
	if h.db != db {
		return ErrWrongDB
	}
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	v := h.version
	if !v.writer {
		v.refcount.Add(-1)
		return nil
	}

	defer db.writerGate.Release(1)
	db.writerMu.Lock()
	defer db.writerMu.Unlock()

	if commit {
		db.publish(v)
	} else {
		db.rollback(v)
		db.rollbacks.Add(1)
		qplog.Rollback(v.serial)
	}
	db.writer = nil
	v.refcount.Add(-1)
	return nil
}

// publish clears v's writer flag (handles later attached to it through
// Current close as readers), makes v the current version, then scans its
// resign-candidate list: headers marked RESIGN are inserted into the
// partition resign heap, and headers parked on the glue-invalidation stack
// are dropped so Go's collector can reclaim them once no reader references
// survive.
func (db *Database) publish(v *Version) {
	v.writer = false
	prev := db.current.Swap(v)
	for _, cand := range v.resignCandidate {
		if cand.attr.has(attrResign) {
			db.resign.SetSigningTime(db.ownerOf(cand), cand, db.partitionForHeader(cand), cand.resignAt)
		}
	}
	v.glueStack = nil
	db.maybeCollect(prev)
}

// rollback marks every header this writer installed IGNORE, per invariant:
// an aborted writer's edits must never become visible. The headers are
// left linked in their chains; visibleAt skips them.
func (db *Database) rollback(v *Version) {
	for _, n := range v.changedNodes {
		n.mu.Lock()
		for h := n.data; h != nil; h = h.Next {
			for d := h; d != nil; d = d.Down {
				if d.Serial == v.serial {
					d.attr |= attrIgnore
				}
			}
		}
		n.mu.Unlock()
	}
	for _, g := range v.glueStack {
		_ = g // released by GC; nothing to invalidate explicitly here
	}
	v.glueStack = nil
}

// maybeCollect is the "previous current version's reader-closed callback":
// once prev has no outstanding readers, headers shadowed by a newer
// version and older than every remaining live version's view become
// unreachable and Go's GC reclaims them. There is nothing to do explicitly
// beyond dropping the reference, which publish already did by overwriting
// db.current; this function exists as the named hook for symmetry with an
// explicit free path in a non-GC'd implementation.
func (db *Database) maybeCollect(prev *Version) {
	if prev == nil || prev.refcount.Load() > 0 {
		return
	}
}

// Partitions returns P, the number of node-lock/resign-heap partitions.
func (db *Database) Partitions() int { return db.partitions }

// ResignDepth returns the number of headers awaiting resignature in the
// given partition's heap.
func (db *Database) ResignDepth(partition int) int { return db.resign.Depth(partition) }

// GlueStats returns cumulative glue-cache hit and miss counts.
func (db *Database) GlueStats() (hits, misses int64) { return db.glue.Stats() }

// Rollbacks returns the number of writer versions closed without commit.
func (db *Database) Rollbacks() int64 { return db.rollbacks.Load() }

// CurrentReaders returns the number of handles currently attached to the
// current version. An open writer is attached to its own, not yet
// published version and is not counted.
func (db *Database) CurrentReaders() int32 { return db.current.Load().refcount.Load() }

func (db *Database) ownerOf(h *Header) Name {
	return h.Owner
}

func (db *Database) partitionForHeader(h *Header) int {
	return db.partitionFor(h.Owner)
}
