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
	"github.com/miekg/dns"

	"github.com/isc-projects/qpzonedb/internal/qplog"
)

// Options are the per-call lookup flags accepted by Find.
type Options uint8

// Option flags.
const (
	OptGlueOK     Options = 1 << iota // allow returning data below a zone cut
	OptNoWild                         // disable wildcard synthesis
	OptForceNSEC3                     // search the NSEC3 tree instead of the main tree
)

func (o Options) has(f Options) bool { return o&f != 0 }

// ResultCode is the outcome of a Find call. These are normal results of
// a lookup, not Go errors: every ResultCode except ResultBadDB is a
// successful, well-defined outcome the caller must branch on.
type ResultCode int

// ResultCode values.
const (
	ResultSuccess ResultCode = iota
	ResultCNAME
	ResultDNAME
	ResultDelegation
	ResultGlue
	ResultZoneCut
	ResultNXDomain
	ResultNXRRSet
	ResultEmptyName
	ResultEmptyWild
	ResultPartialMatch
	ResultBadDB
)

var resultCodeNames = map[ResultCode]string{
	ResultSuccess:      "SUCCESS",
	ResultCNAME:        "CNAME",
	ResultDNAME:        "DNAME",
	ResultDelegation:   "DELEGATION",
	ResultGlue:         "GLUE",
	ResultZoneCut:      "ZONECUT",
	ResultNXDomain:     "NXDOMAIN",
	ResultNXRRSet:      "NXRRSET",
	ResultEmptyName:    "EMPTYNAME",
	ResultEmptyWild:    "EMPTYWILD",
	ResultPartialMatch: "PARTIALMATCH",
	ResultBadDB:        "BADDB",
}

// String renders a ResultCode the way dns.RcodeToString renders an RCODE,
// for diagnostics and CLI output.
func (c ResultCode) String() string {
	if s, ok := resultCodeNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// FindResult is the out-parameter bundle a Find call returns.
type FindResult struct {
	Code       ResultCode
	FoundName  Name
	Node       *Node
	Rdataset   *Header // primary rdataset (or the delegation/cname rdataset)
	Signature  *Header // RRSIG covering Rdataset, if any
	IsWildcard bool
}

const maxNSEC3Restarts = 2

// Find implements the lookup engine: exact match, delegation and DNAME
// detection, wildcard synthesis, and NSEC/NSEC3 denial-of-existence
// synthesis for a secure zone.
func (db *Database) Find(q Name, qtype uint16, version *Version, opts Options) (*FindResult, error) {
	for attempt := 0; attempt <= maxNSEC3Restarts; attempt++ {
		res, restart, err := db.findOnce(q, qtype, version, opts)
		if err != nil || !restart {
			return res, err
		}
	}
	qplog.Corrupt(q.String(), "exceeded NSEC3 parameter-mismatch restart limit")
	return &FindResult{Code: ResultBadDB}, ErrBadDB
}

func (db *Database) findOnce(q Name, qtype uint16, version *Version, opts Options) (*FindResult, bool, error) {
	tree := db.tree
	if opts.has(OptForceNSEC3) {
		tree = db.nsec3Tree
	}

	exact, node, chain, iter := tree.Lookup(q)

	scanChain := chain
	if exact && len(scanChain) > 0 {
		scanChain = scanChain[:len(scanChain)-1]
	}
	cutNode, cutHeader, cutIsDNAME, cutFound := db.scanZoneCuts(scanChain, version)

	if !exact {
		if cutFound {
			code := ResultDelegation
			if cutIsDNAME {
				code = ResultDNAME
			}
			return &FindResult{Code: code, FoundName: cutNode.Name(), Node: cutNode, Rdataset: cutHeader}, false, nil
		}

		if !opts.has(OptNoWild) {
			if res, ok := db.tryWildcard(chain, q, version); ok {
				r, restart, err := db.scanNodeAndClassify(res.node, res.name, qtype, version, opts, nil, true)
				return r, restart, err
			}
		}

		return db.classifyNonExistence(iter, q, version)
	}

	return db.scanNodeAndClassify(node, q, qtype, version, opts, cutNodeIfAny(cutFound, cutNode), false)
}

func cutNodeIfAny(found bool, n *Node) *Node {
	if found {
		return n
	}
	return nil
}

// scanZoneCuts scans ancestors root to deepest for the topmost NS or
// DNAME, where a DNAME only overrides a deeper NS when no shallower NS
// exists.
func (db *Database) scanZoneCuts(ancestors []*Node, version *Version) (node *Node, header *Header, isDNAME bool, found bool) {
	var nsNode, dnameNode *Node
	var nsHeader, dnameHeader *Header
	nsIdx, dnameIdx := -1, -1

	for i, a := range ancestors {
		if !a.HasFindCallback() {
			continue
		}
		a.mu.RLock()
		ns := a.headerOfType(RRType{Base: dns.TypeNS})
		dname := a.headerOfType(RRType{Base: dns.TypeDNAME})
		a.mu.RUnlock()

		if nsIdx == -1 && ns != nil && !a.name.Equal(db.Origin) {
			if h := visibleAt(ns, version.serial); h != nil && !h.IsNonexistent() {
				nsNode, nsHeader, nsIdx = a, h, i
			}
		}
		if dnameIdx == -1 && dname != nil {
			if h := visibleAt(dname, version.serial); h != nil && !h.IsNonexistent() {
				dnameNode, dnameHeader, dnameIdx = a, h, i
			}
		}
	}

	if nsIdx != -1 && (dnameIdx == -1 || nsIdx <= dnameIdx) {
		return nsNode, nsHeader, false, true
	}
	if dnameIdx != -1 {
		return dnameNode, dnameHeader, true, true
	}
	return nil, nil, false, false
}

type wildcardMatch struct {
	node *Node
	name Name
}

// tryWildcard implements step 3b: walk ancestors deepest to shallowest,
// looking for one that is itself inactive in V but has a visible wildcard
// child, synthesizing *.ancestor and checking wildcard_blocked.
func (db *Database) tryWildcard(chain []*Node, q Name, version *Version) (wildcardMatch, bool) {
	for i := len(chain) - 1; i >= 0; i-- {
		ancestor := chain[i]
		if !ancestor.IsWild() {
			continue
		}
		if nodeActiveAt(ancestor, version) {
			continue
		}
		wname := Concat(Name{labels: []string{"*"}}, ancestor.name)
		wnode, exists := db.tree.Get(wname)
		if !exists || !nodeActiveAt(wnode, version) {
			continue
		}
		if db.wildcardBlocked(q, ancestor.name) {
			continue
		}
		return wildcardMatch{node: wnode, name: q}, true
	}
	return wildcardMatch{}, false
}

// wildcardBlocked reports whether a wildcard match for q against
// wildcardParent is invalid because a version-active name exists strictly
// between the wildcard's parent and q: for each of q's proper ancestors a
// that is itself a strict descendant of wildcardParent, a tree neighbor of
// q (predecessor or successor in canonical order) lying at or below a means
// something more specific than the wildcard already has presence there.
func (db *Database) wildcardBlocked(q Name, wildcardParent Name) bool {
	_, _, _, iter := db.tree.Lookup(q)
	for _, dir := range []func(Iter) WalkResult{db.tree.Next, db.tree.Prev} {
		wr := dir(iter)
		if !wr.OK || wr.Wrapped {
			continue
		}
		for a, ok := q.Parent(); ok && !a.Equal(wildcardParent) && IsSubdomain(a, wildcardParent); a, ok = a.Parent() {
			if IsSubdomain(wr.Name, a) {
				return true
			}
		}
	}
	return false
}

// nodeActiveAt reports whether node carries any rdataset visible at
// version (i.e. it is a real owner at this version, not merely a
// wildcard-magic placeholder or a since-deleted name).
func nodeActiveAt(node *Node, version *Version) bool {
	active := false
	node.mu.RLock()
	for h := node.data; h != nil; h = h.Next {
		if v := visibleAt(h, version.serial); v != nil && !v.IsNonexistent() {
			active = true
			break
		}
	}
	node.mu.RUnlock()
	return active
}

// classifyNonExistence implements step 3c/3d: distinguish an empty
// non-terminal from outright non-existence, falling through to NSEC
// synthesis when the zone is secure.
func (db *Database) classifyNonExistence(iter Iter, q Name, version *Version) (*FindResult, bool, error) {
	wr := db.tree.Next(iter)
	if wr.OK && !wr.Wrapped && IsSubdomain(wr.Name, q) {
		return &FindResult{Code: ResultEmptyName, FoundName: q}, false, nil
	}

	cur := db.current.Load()
	if cur.IsSecure() && !version.nsec3.HaveNSEC3 {
		res, err := db.synthesizeNSEC(q, version)
		if err != nil {
			return &FindResult{Code: ResultBadDB}, false, err
		}
		res.Code = ResultNXDomain
		return res, false, nil
	}
	return &FindResult{Code: ResultNXDomain, FoundName: q}, false, nil
}

// scanNodeAndClassify classifies the node found by an exact match or a
// wildcard synthesis: CNAME redirection, zone-cut/glue precedence, and
// plain success or NXRRSET.
func (db *Database) scanNodeAndClassify(node *Node, foundName Name, qtype uint16, version *Version, opts Options, cutAbove *Node, wildcard bool) (*FindResult, bool, error) {
	node.mu.RLock()
	var found, foundSig, cnameHeader *Header
	allowCNAME := qtype != dns.TypeKEY && qtype != dns.TypeNSEC
	var nsec3Mismatch bool

	for h := node.data; h != nil; h = h.Next {
		v := visibleAt(h, version.serial)
		if v == nil {
			continue
		}
		if h.Type.Base == dns.TypeNSEC3 && !v.IsNonexistent() {
			if !version.nsec3.Equal(db.current.Load().NSEC3Params()) {
				nsec3Mismatch = true
			}
		}
		if h.Type.Base == qtype {
			if !v.IsNonexistent() {
				found = v
			}
		} else if h.Type.Base == dns.TypeCNAME && allowCNAME && found == nil {
			if !v.IsNonexistent() {
				cnameHeader = v
			}
		} else if h.Type.Base == dns.TypeRRSIG {
			if h.Type.Covers == qtype && !v.IsNonexistent() {
				foundSig = v
			}
		}
	}
	var visibleNS *Header
	if h := node.headerOfType(RRType{Base: dns.TypeNS}); h != nil {
		if v := visibleAt(h, version.serial); v != nil && !v.IsNonexistent() {
			visibleNS = v
		}
	}
	node.mu.RUnlock()

	if nsec3Mismatch {
		return nil, true, nil
	}

	if found == nil && cnameHeader != nil {
		found = cnameHeader
	}

	selfIsCut := visibleNS != nil && !node.name.Equal(db.Origin)
	if selfIsCut {
		cutAbove = node
	}

	if selfIsCut && qtype != dns.TypeNSEC && qtype != dns.TypeKEY && !opts.has(OptGlueOK) {
		return &FindResult{Code: ResultDelegation, FoundName: node.name, Node: node, Rdataset: visibleNS}, false, nil
	}

	if found == nil {
		cur := db.current.Load()
		if cur.IsSecure() {
			res, err := db.synthesizeNSEC(foundName, version)
			if err != nil {
				return &FindResult{Code: ResultBadDB}, false, err
			}
			res.Code = ResultNXRRSet
			return res, false, nil
		}
		return &FindResult{Code: ResultNXRRSet, FoundName: foundName, Node: node}, false, nil
	}

	result := &FindResult{FoundName: foundName, Node: node, Rdataset: found, Signature: foundSig, IsWildcard: wildcard}

	if found.Type.Base == dns.TypeCNAME && qtype != dns.TypeCNAME {
		result.Code = ResultCNAME
		return result, false, nil
	}

	if cutAbove != nil {
		switch {
		case qtype == dns.TypeANY:
			result.Code = ResultZoneCut
		case qtype == dns.TypeNSEC || qtype == dns.TypeKEY:
			result.Code = ResultSuccess
		default:
			result.Code = ResultGlue
		}
		return result, false, nil
	}

	result.Code = ResultSuccess
	return result, false, nil
}

// synthesizeNSEC implements step 7: closest-encloser NSEC (or NSEC3)
// search, starting from the predecessor of q in the auxiliary tree and
// walking backwards (with wrap-around on the NSEC3 tree) until a visible
// NSEC/NSEC3 header with its RRSIG is found.
func (db *Database) synthesizeNSEC(q Name, version *Version) (*FindResult, error) {
	aux := db.nsecTree
	if version.nsec3.HaveNSEC3 {
		aux = db.nsec3Tree
	}

	it := aux.IterAt(q)
	seenWrap := false
	for step := 0; step < aux.Len()+1; step++ {
		wr := aux.Prev(it)
		if !wr.OK {
			break
		}
		if wr.Wrapped {
			if seenWrap {
				break
			}
			seenWrap = true
		}

		twin, ok := db.tree.Get(wr.Name)
		if !ok {
			twin = wr.Node
		}
		twin.mu.RLock()
		nsecHead := twin.headerOfType(RRType{Base: dns.TypeNSEC})
		if version.nsec3.HaveNSEC3 {
			nsecHead = twin.headerOfType(RRType{Base: dns.TypeNSEC3})
		}
		var sigHead *Header
		if sh := twin.headerOfType(RRType{Base: dns.TypeRRSIG, Covers: dns.TypeNSEC}); sh != nil {
			sigHead = sh
		}
		if version.nsec3.HaveNSEC3 {
			sigHead = twin.headerOfType(RRType{Base: dns.TypeRRSIG, Covers: dns.TypeNSEC3})
		}
		nsecVisible := visibleAt(nsecHead, version.serial)
		sigVisible := visibleAt(sigHead, version.serial)
		twin.mu.RUnlock()

		if nsecVisible != nil && !nsecVisible.IsNonexistent() {
			return &FindResult{FoundName: wr.Name, Node: twin, Rdataset: nsecVisible, Signature: sigVisible}, nil
		}
		it = aux.IterAt(wr.Name)
	}
	qplog.Corrupt(q.String(), "no NSEC/NSEC3 covering record found in the closest-encloser walk")
	return nil, ErrBadDB
}
