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

package proxy2

import (
	"encoding/binary"
	"net"
)

// MakeHeader builds a complete PROXYv2 header for cmd, with the given
// socket type, endpoints and TLV data. cmd == CmdLocal requires
// sockType == SockUnspec and both endpoints nil; when cmd == CmdProxy and
// sockType == SockUnspec both endpoints must also be nil (an "unspecified"
// PROXY header); otherwise src and dst must be non-nil and of the same
// address family.
func MakeHeader(cmd Command, sockType SockType, src, dst *Endpoint, tlvData []byte) ([]byte, error) {
	if cmd == CmdLocal {
		if sockType != SockUnspec || src != nil || dst != nil {
			return nil, ErrUnexpected
		}
	}

	family := AFUnspec
	var addrBody []byte
	if cmd == CmdProxy && sockType != SockUnspec {
		if src == nil || dst == nil {
			return nil, ErrUnexpected
		}
		var err error
		family, addrBody, err = encodeAddresses(src, dst)
		if err != nil {
			return nil, err
		}
	} else if cmd == CmdProxy && (src != nil || dst != nil) {
		return nil, ErrUnexpected
	}

	total := HeaderSize + len(addrBody) + len(tlvData)
	if total > MaxSize {
		return nil, ErrRange
	}

	buf := make([]byte, HeaderSize, total)
	copy(buf[0:signatureSize], signature[:])
	buf[12] = 0x20 | byte(cmd)
	buf[13] = byte(family)<<4 | byte(sockType)
	binary.BigEndian.PutUint16(buf[14:16], uint16(len(addrBody)+len(tlvData)))
	buf = append(buf, addrBody...)
	buf = append(buf, tlvData...)
	return buf, nil
}

func encodeAddresses(src, dst *Endpoint) (AddrFamily, []byte, error) {
	switch {
	case src.UnixPath != "" || dst.UnixPath != "":
		if len(src.UnixPath) > unixMaxPathLen || len(dst.UnixPath) > unixMaxPathLen {
			return 0, nil, ErrRange
		}
		body := make([]byte, 2*unixMaxPathLen)
		copy(body[0:unixMaxPathLen], src.UnixPath)
		copy(body[unixMaxPathLen:], dst.UnixPath)
		return AFUnix, body, nil

	case len(src.IP.To4()) == net.IPv4len && len(dst.IP.To4()) == net.IPv4len:
		body := make([]byte, MinINETSize-HeaderSize)
		copy(body[0:4], src.IP.To4())
		copy(body[4:8], dst.IP.To4())
		binary.BigEndian.PutUint16(body[8:10], src.Port)
		binary.BigEndian.PutUint16(body[10:12], dst.Port)
		return AFInet, body, nil

	case len(src.IP) == net.IPv6len && len(dst.IP) == net.IPv6len:
		body := make([]byte, MinINET6Size-HeaderSize)
		copy(body[0:16], src.IP.To16())
		copy(body[16:32], dst.IP.To16())
		binary.BigEndian.PutUint16(body[32:34], src.Port)
		binary.BigEndian.PutUint16(body[34:36], dst.Port)
		return AFInet6, body, nil

	default:
		return 0, nil, ErrUnexpected
	}
}

// HeaderAppendTLV appends one TLV entry to a complete PROXYv2 header
// built by MakeHeader, updating the header's length field in place.
func HeaderAppendTLV(header []byte, tlvType TLVType, data []byte) ([]byte, error) {
	if len(header) < HeaderSize {
		return nil, ErrRange
	}
	newLen := len(header) - HeaderSize + tlvHeaderSize + len(data)
	if newLen > 0xFFFF || HeaderSize+newLen > MaxSize {
		return nil, ErrRange
	}
	header = AppendTLV(header, uint8(tlvType), data)
	binary.BigEndian.PutUint16(header[14:16], uint16(newLen))
	return header, nil
}

// HeaderAppendTLVString is HeaderAppendTLV for a UTF-8 string value.
func HeaderAppendTLVString(header []byte, tlvType TLVType, s string) ([]byte, error) {
	return HeaderAppendTLV(header, tlvType, []byte(s))
}

// AppendTLV appends one raw TLV entry (type, 16-bit length, value) to
// buf without touching any header length field, the building block used
// both for top-level TLVs staged before a length update and for sub-TLVs
// nested inside a TLS TLV's value.
func AppendTLV(buf []byte, tlvType uint8, data []byte) []byte {
	buf = append(buf, tlvType, byte(len(data)>>8), byte(len(data)))
	return append(buf, data...)
}

// AppendTLVString is AppendTLV for a UTF-8 string value.
func AppendTLVString(buf []byte, tlvType uint8, s string) []byte {
	return AppendTLV(buf, tlvType, []byte(s))
}

// MakeTLSSubheader builds the value of a TLVTLS entry: the client-flags
// byte, the 32-bit verify result (0 means "successfully verified"), and
// whatever sub-TLVs the caller has already assembled with AppendTLV.
func MakeTLSSubheader(clientFlags uint8, certVerified bool, subTLVs []byte) []byte {
	buf := make([]byte, tlsSubheaderMinSize, tlsSubheaderMinSize+len(subTLVs))
	buf[0] = clientFlags
	if !certVerified {
		binary.BigEndian.PutUint32(buf[1:5], 1)
	}
	return append(buf, subTLVs...)
}
