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

package main

import (
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/isc-projects/qpzonedb/internal/qpdb"
)

// record is one toy rdata entry for a fixture zone.
type record struct {
	owner string
	rtype uint16
	rdata string // "A" rdata is an IPv4 literal; "NS"/"CNAME" rdata is a domain name
}

var fixtures = map[string][]record{
	"simple": {
		{"example.com.", dns.TypeA, "192.0.2.1"},
		{"www.example.com.", dns.TypeA, "192.0.2.10"},
		{"alias.example.com.", dns.TypeCNAME, "www.example.com."},
	},
	// "host.sub.example.com." is deliberately absent from the fixture: a
	// query below the sub.example.com. cut for a name with no record of its
	// own is a genuine miss, which returns DELEGATION. A name that does
	// have its own record below the cut (ns1.sub.example.com. here) is an
	// exact match and returns GLUE instead, per the lookup engine's
	// zone-cut classification rules.
	"delegated": {
		{"example.com.", dns.TypeA, "192.0.2.1"},
		{"sub.example.com.", dns.TypeNS, "ns1.sub.example.com."},
		{"ns1.sub.example.com.", dns.TypeA, "192.0.2.53"},
	},
	// "sub.example.com." never gets a record of its own: it exists only as
	// the wildcard-magic placeholder created for "*.sub.example.com.", so
	// it is inactive and a lookup below it can synthesize from the
	// wildcard (an active ancestor, such as the zone apex itself, would
	// block the synthesis).
	"wildcard": {
		{"example.com.", dns.TypeA, "192.0.2.1"},
		{"*.sub.example.com.", dns.TypeA, "192.0.2.200"},
	},
}

// loadFixture builds an in-memory database from one of the toy fixtures
// above, exercising the same BeginLoad/NewWriter/AddRdataset/commit/EndLoad
// sequence a real zone-file loader would use.
func loadFixture(name string) (*qpdb.Database, error) {
	recs, ok := fixtures[name]
	if !ok {
		return nil, fmt.Errorf("no such fixture %q", name)
	}
	origin, err := qpdb.NewName("example.com.")
	if err != nil {
		return nil, err
	}

	db := qpdb.NewDatabase(origin, dns.ClassINET, 4)
	if err := db.BeginLoad(); err != nil {
		return nil, err
	}

	w, err := db.NewWriter()
	if err != nil {
		return nil, err
	}

	for _, r := range recs {
		owner, err := qpdb.NewName(r.owner)
		if err != nil {
			return nil, err
		}
		rdata, err := packRdata(r.rtype, r.rdata)
		if err != nil {
			return nil, err
		}
		slab := qpdb.NewSlab(qpdb.RRType{Base: r.rtype}, dns.ClassINET, 3600, qpdb.TrustAuthAnswer, [][]byte{rdata})
		if _, err := db.AddRdataset(w, owner, slab, time.Time{}); err != nil {
			return nil, err
		}
	}

	if err := db.Close(w, true); err != nil {
		return nil, err
	}
	db.EndLoad()
	return db, nil
}

// packRdata renders a toy record's presentation-format rdata into wire
// format: a bare 4-byte address for A, a packed domain name for NS/CNAME.
func packRdata(rtype uint16, value string) ([]byte, error) {
	switch rtype {
	case dns.TypeA:
		ip := net.ParseIP(value)
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("invalid A rdata %q", value)
		}
		return ip.To4(), nil
	case dns.TypeNS, dns.TypeCNAME, dns.TypeDNAME:
		buf := make([]byte, 255)
		off, err := dns.PackDomainName(value, buf, 0, nil, false)
		if err != nil {
			return nil, err
		}
		return buf[:off], nil
	default:
		return nil, fmt.Errorf("unsupported fixture rdata type %d", rtype)
	}
}
