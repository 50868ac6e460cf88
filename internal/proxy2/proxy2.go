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

// Package proxy2 decodes and encodes PROXYv2 protocol headers (the
// connection-preamble HAProxy uses to carry a client's original address
// through a TCP proxy), independent of any particular transport.
package proxy2

import "net"

// Command is the PROXYv2 command nibble.
type Command uint8

// Command values.
const (
	CmdLocal Command = 0 // header carries no address information
	CmdProxy Command = 1 // header carries address information on behalf of a client
)

// AddrFamily is the PROXYv2 address-family nibble.
type AddrFamily uint8

// AddrFamily values.
const (
	AFUnspec AddrFamily = 0
	AFInet   AddrFamily = 1
	AFInet6  AddrFamily = 2
	AFUnix   AddrFamily = 3
)

// SockType is the PROXYv2 socket-type nibble.
type SockType uint8

// SockType values.
const (
	SockUnspec SockType = 0
	SockStream SockType = 1
	SockDgram  SockType = 2
)

// TLVType identifies a top-level TLV entry in a PROXYv2 header.
type TLVType uint8

// TLVType values, per the PROXY protocol specification.
const (
	TLVALPN      TLVType = 0x01
	TLVAuthority TLVType = 0x02
	TLVCRC32C    TLVType = 0x03
	TLVNOOP      TLVType = 0x04
	TLVUniqueID  TLVType = 0x05
	TLVTLS       TLVType = 0x20
	TLVNetNS     TLVType = 0x30

	TLVMinCustom TLVType = 0xE0
	TLVMaxCustom TLVType = 0xEF

	TLVMinExperiment TLVType = 0xF0
	TLVMaxExperiment TLVType = 0xF7

	TLVMinFuture TLVType = 0xF8
	TLVMaxFuture TLVType = 0xFF
)

// TLSClientFlag is a bit in the client_flags byte of a TLS TLV's value.
type TLSClientFlag uint8

// TLSClientFlag bits.
const (
	TLSClientTLS      TLSClientFlag = 0x01
	TLSClientCertConn TLSClientFlag = 0x02
	TLSClientCertSess TLSClientFlag = 0x04
)

// TLSSubtype identifies a sub-TLV nested inside a TLS TLV's value.
type TLSSubtype uint8

// TLSSubtype values.
const (
	TLSSubtypeVersion TLSSubtype = 0x21
	TLSSubtypeCN      TLSSubtype = 0x22
	TLSSubtypeCipher  TLSSubtype = 0x23
	TLSSubtypeSigAlg  TLSSubtype = 0x24
	TLSSubtypeKeyAlg  TLSSubtype = 0x25
)

// Wire layout sizes for the fixed PROXYv2 header.
const (
	signatureSize = 12

	// HeaderSize is the size of the fixed part of a PROXYv2 header:
	// signature + version/command byte + family/socktype byte + length.
	HeaderSize = signatureSize + 1 + 1 + 2

	// MaxSize is the largest a complete PROXYv2 header (including its
	// address block and TLVs) can be.
	MaxSize = HeaderSize + 0xFFFF

	unixMaxPathLen = 108

	// MinINETSize, MinINET6Size and MinUnixSize are the smallest complete
	// header sizes for each address family that carries addresses.
	MinINETSize  = HeaderSize + 4 + 4 + 2 + 2
	MinINET6Size = HeaderSize + 16 + 16 + 2 + 2
	MinUnixSize  = HeaderSize + unixMaxPathLen + unixMaxPathLen

	tlvHeaderSize        = 1 + 2
	tlsSubheaderMinSize  = 1 + 4
)

var signature = [signatureSize]byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

// Endpoint is one side (source or destination) of the address pair a
// PROXYv2 header carries. Exactly one of IP or UnixPath is meaningful,
// depending on the header's address family.
type Endpoint struct {
	IP       net.IP
	Port     uint16
	UnixPath string
}

func addrDataSize(family AddrFamily) int {
	switch family {
	case AFInet:
		return 4 + 4 + 2 + 2
	case AFInet6:
		return 16 + 16 + 2 + 2
	case AFUnix:
		return unixMaxPathLen + unixMaxPathLen
	default:
		return 0
	}
}
