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

	"github.com/segmentio/fasthash/fnv1a"
)

// Node is the per-name container of typed rdataset headers, dns_dbnode_t in
// the source. One Node exists per distinct owner name present in the tree.
type Node struct {
	name Name

	mu   sync.RWMutex // guards data, below; one lock per node, not shared by locknum
	data *Header       // head of the singly linked header list (distinct types)

	wild         bool // true if this node is the parent of a wildcard child
	findCallback bool // true for DNAME/NS owners and wildcard parents
	nsec         NSECStatus
	locknum      int

	refcount atomic.Int32
}

func newNode(name Name, locknum int) *Node {
	return &Node{name: name, locknum: locknum}
}

// Name returns the node's owner name.
func (n *Node) Name() Name { return n.name }

// Ref increments the node's reference count (invariant 6: refcount > 0
// keeps a node alive even if every header chain is empty in every
// version).
func (n *Node) Ref() { n.refcount.Add(1) }

// Unref decrements the node's reference count and reports whether it
// reached zero.
func (n *Node) Unref() bool { return n.refcount.Add(-1) == 0 }

// RefCount returns the current reference count.
func (n *Node) RefCount() int32 { return n.refcount.Load() }

// IsWild reports the wild bit: this node is the parent of a wildcard child.
func (n *Node) IsWild() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.wild
}

// setWild sets the wild bit. It takes the node's write lock itself, so the
// caller (typically the load pipeline) must not already hold it.
func (n *Node) setWild() {
	n.mu.Lock()
	n.wild = true
	n.mu.Unlock()
}

// HasFindCallback reports whether lookup should fast-path-check this node
// for a zone cut or wildcard-parent trigger while walking the chain.
func (n *Node) HasFindCallback() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.findCallback
}

func (n *Node) setFindCallback() {
	n.mu.Lock()
	n.findCallback = true
	n.mu.Unlock()
}

// NSEC returns the node's NSEC status.
func (n *Node) NSEC() NSECStatus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nsec
}

func (n *Node) setNSEC(s NSECStatus) {
	n.mu.Lock()
	n.nsec = s
	n.mu.Unlock()
}

// headerOfType returns the head of the down-chain for rtype at this node,
// or nil. Caller must hold at least a read lock on n.
func (n *Node) headerOfType(rtype RRType) *Header {
	for h := n.data; h != nil; h = h.Next {
		if h.Type == rtype {
			return h
		}
	}
	return nil
}

// ForEachType calls f once per distinct type chain head present at the
// node.
func (n *Node) ForEachType(f func(head *Header)) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for h := n.data; h != nil; h = h.Next {
		f(h)
	}
}

// installHeader pushes newHeader onto the front of the down-chain for its
// type, linking it either after the existing type-chain head (if the type
// was already present) or into the node's Next list (if this is the first
// header of that type at this node). Must be called under the node's write
// lock. Preserves invariant 1: Next-reachable headers have distinct types,
// and a type's chain is strictly decreasing in Serial.
func (n *Node) installHeader(newHeader *Header) {
	var prevOfType *Header
	for h := n.data; h != nil; h = h.Next {
		if h.Type == newHeader.Type {
			prevOfType = h
			break
		}
	}
	if prevOfType == nil {
		newHeader.Next = n.data
		n.data = newHeader
		return
	}
	newHeader.Down = prevOfType
	newHeader.Next = prevOfType.Next
	// Splice newHeader in place of prevOfType in the Next list.
	if n.data == prevOfType {
		n.data = newHeader
		return
	}
	for h := n.data; h != nil; h = h.Next {
		if h.Next == prevOfType {
			h.Next = newHeader
			return
		}
	}
}

// partitionHash computes a fast, non-cryptographic hash of a canonical name
// key used to assign a node to one of the P node-lock partitions. FNV-1a
// via fasthash, repurposed here for load spreading: no collision
// resistance is needed, only a roughly uniform split across partitions.
func partitionHash(key []byte) uint64 {
	return fnv1a.HashBytes64(key)
}
