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
	"encoding/hex"
	"flag"
	"fmt"
	"log"

	"github.com/miekg/dns"

	"github.com/isc-projects/qpzonedb/internal/proxy2"
	"github.com/isc-projects/qpzonedb/internal/qpdb"
)

func main() {
	zoneName := flag.String("zone", "simple", "fixture zone to load: simple, delegated, wildcard")
	qName := flag.String("qname", "www.example.com.", "name to query")
	qType := flag.String("qtype", "A", "type of the query")
	glueOK := flag.Bool("glueok", false, "allow returning data at or below a zone cut")
	proxy2Hex := flag.String("proxy2", "", "hex-encoded PROXYv2 header to decode instead of running a lookup")
	flag.Parse()

	if *proxy2Hex != "" {
		if err := decodeProxy2(*proxy2Hex); err != nil {
			log.Fatalf("%s", err)
		}
		return
	}

	rrtype, ok := dns.StringToType[*qType]
	if !ok {
		log.Fatalf("unknown qtype %q", *qType)
	}

	db, err := loadFixture(*zoneName)
	if err != nil {
		log.Fatalf("failed to load fixture %q: %s", *zoneName, err)
	}

	q, err := qpdb.NewName(*qName)
	if err != nil {
		log.Fatalf("invalid qname %q: %s", *qName, err)
	}

	handle := db.Current()
	defer db.Close(handle, true)

	var opts qpdb.Options
	if *glueOK {
		opts |= qpdb.OptGlueOK
	}

	res, err := db.Find(q, rrtype, handle.Version(), opts)
	if err != nil {
		log.Fatalf("find failed: %s", err)
	}

	fmt.Printf("%s\n", res.Code)
	if res.Rdataset != nil {
		printRdataset(res.FoundName, res.Rdataset)
	}
	if res.Code == qpdb.ResultDelegation || res.Code == qpdb.ResultZoneCut {
		if glue := db.ResolveDelegationGlue(res, handle.Version()); glue != nil {
			fmt.Println("; additional section:")
			for g := glue; g != nil; g = g.Next {
				printGlueEntry(g)
			}
		}
	}
}

func printGlueEntry(g *qpdb.GlueEntry) {
	required := ""
	if g.Required {
		required = " (required)"
	}
	fmt.Printf(";; %s%s\n", g.Name, required)
	if a := g.A; a != nil {
		for i := 0; i < a.Len(); i++ {
			fmt.Printf("%s\t%d\t%s\n", g.Name, a.TTL, hex.EncodeToString(a.Record(i)))
		}
	}
	if aaaa := g.AAAA; aaaa != nil {
		for i := 0; i < aaaa.Len(); i++ {
			fmt.Printf("%s\t%d\t%s\n", g.Name, aaaa.TTL, hex.EncodeToString(aaaa.Record(i)))
		}
	}
}

func printRdataset(owner qpdb.Name, h *qpdb.Header) {
	slab := h.Slab()
	if slab == nil {
		fmt.Printf("; %s NONEXISTENT\n", owner)
		return
	}
	for i := 0; i < slab.Len(); i++ {
		fmt.Printf("%s\t%d\t%s\n", owner, h.TTL(), hex.EncodeToString(slab.Record(i)))
	}
}

func decodeProxy2(hexStr string) error {
	data, err := hex.DecodeString(hexStr)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	return proxy2.HandleDirectly(data, func(result error, cmd proxy2.Command, sockType proxy2.SockType, src, dst *proxy2.Endpoint, tlvData, extra []byte) {
		if result != nil {
			fmt.Printf("error: %s\n", result)
			return
		}
		fmt.Printf("command=%v socktype=%v\n", cmd, sockType)
		if src != nil {
			fmt.Printf("src=%s:%d\n", src.IP, src.Port)
		}
		if dst != nil {
			fmt.Printf("dst=%s:%d\n", dst.IP, dst.Port)
		}
		if len(tlvData) > 0 {
			fmt.Printf("tlv-bytes=%d\n", len(tlvData))
		}
		if len(extra) > 0 {
			fmt.Printf("extra=%q\n", extra)
		}
	})
}
