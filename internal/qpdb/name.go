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

// Package qpdb implements the versioned authoritative zone database: a
// prefix-indexed name tree carrying MVCC rdataset chains, delegation and
// wildcard lookup semantics, NSEC/NSEC3 denial-of-existence search, a
// resign-ordering heap, and a glue-address cache.
package qpdb

import (
	"bytes"
	"strings"

	"github.com/miekg/dns"
)

// Name is a wire-format domain name: an ordered list of labels, root last.
// Comparisons are case-insensitive on ASCII octets, matching DNS name
// equivalence rules. Name is immutable once constructed.
type Name struct {
	labels []string // lower-cased labels, leftmost (most specific) first
	wire   string    // canonical lower-case dotted form, always root-terminated
}

// NewName parses a presentation-format domain name (e.g. "www.example.com.")
// into a Name. Escaping follows the same convention as dns.Name.
func NewName(s string) (Name, error) {
	fqdn := dns.Fqdn(s)
	labels := dns.SplitDomainName(fqdn)
	if labels == nil {
		labels = []string{}
	}
	lower := make([]string, len(labels))
	for i, l := range labels {
		lower[i] = strings.ToLower(l)
	}
	return Name{labels: lower, wire: strings.ToLower(fqdn)}, nil
}

// RootName is the zero-label root name ".".
func RootName() Name {
	n, _ := NewName(".")
	return n
}

// String returns the presentation form of the name.
func (n Name) String() string {
	if n.wire == "" {
		return "."
	}
	return n.wire
}

// IsRoot reports whether n is the root name.
func (n Name) IsRoot() bool {
	return len(n.labels) == 0
}

// LabelCount returns the number of non-root labels.
func (n Name) LabelCount() int {
	return len(n.labels)
}

// Label returns the i'th label counting from the leftmost (most specific)
// label. Label(0) on "www.example.com." returns "www".
func (n Name) Label(i int) string {
	return n.labels[i]
}

// IsWildcard reports whether n's leftmost label is the single octet "*".
func (n Name) IsWildcard() bool {
	return len(n.labels) > 0 && n.labels[0] == "*"
}

// Parent returns the name with the leftmost label removed, and false if n is
// already the root.
func (n Name) Parent() (Name, bool) {
	if n.IsRoot() {
		return Name{}, false
	}
	return Name{labels: n.labels[1:], wire: joinLabels(n.labels[1:])}, true
}

// WildcardSibling returns "*.<parent-of-n>", i.e. the wildcard name that
// would synthesize an answer for n's owner.
func (n Name) WildcardSibling() (Name, bool) {
	parent, ok := n.Parent()
	if !ok {
		return Name{}, false
	}
	labels := append([]string{"*"}, parent.labels...)
	return Name{labels: labels, wire: joinLabels(labels)}, true
}

// Concat returns prefix.suffix formed by prepending prefix's labels to suffix's
// (used to build "*.ancestor" or "label.owner" names).
func Concat(prefix, suffix Name) Name {
	labels := append(append([]string{}, prefix.labels...), suffix.labels...)
	return Name{labels: labels, wire: joinLabels(labels)}
}

func joinLabels(labels []string) string {
	if len(labels) == 0 {
		return "."
	}
	return strings.Join(labels, ".") + "."
}

// Equal reports case-insensitive equality.
func (n Name) Equal(other Name) bool {
	return n.wire == other.wire
}

// IsSubdomain reports whether b is a label-suffix of a, i.e. a is equal to
// or a descendant of b. This matches dns_name_issubdomain: every name is a
// subdomain of the root.
func IsSubdomain(a, b Name) bool {
	if len(b.labels) > len(a.labels) {
		return false
	}
	offset := len(a.labels) - len(b.labels)
	for i, l := range b.labels {
		if a.labels[offset+i] != l {
			return false
		}
	}
	return true
}

// CommonAncestorDepth returns the number of labels shared as a suffix
// between a and b (0 if they share only the root).
func CommonAncestorDepth(a, b Name) int {
	i, j := len(a.labels)-1, len(b.labels)-1
	depth := 0
	for i >= 0 && j >= 0 && a.labels[i] == b.labels[j] {
		depth++
		i--
		j--
	}
	return depth
}

// CanonicalKey returns the DNSSEC canonical-order sort key for n: labels in
// reverse (root-first) order, lower-cased, NUL-separated so that a label
// boundary never collides with label content and shorter names sort before
// their own children (empty non-terminal ordering).
func (n Name) CanonicalKey() []byte {
	var buf bytes.Buffer
	for i := len(n.labels) - 1; i >= 0; i-- {
		buf.WriteString(n.labels[i])
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// Compare implements the ordering used by the name tree's iterator: DNSSEC
// canonical name order (label-reversed, case-insensitive).
func Compare(a, b Name) int {
	return bytes.Compare(a.CanonicalKey(), b.CanonicalKey())
}
