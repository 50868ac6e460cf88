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

import "encoding/binary"

// TLVCallback is called once per TLV entry found while iterating TLV
// data. Returning false stops the iteration early.
type TLVCallback func(tlvType TLVType, data []byte) bool

// IterateTLVs walks the TLV entries packed into tlvData (the region a
// Handler exposes via TLVs, or any buffer built the same way), calling cb
// for each one in order.
func IterateTLVs(tlvData []byte, cb TLVCallback) error {
	rest := tlvData
	for len(rest) > 0 {
		if len(rest) < tlvHeaderSize {
			return ErrRange
		}
		tlvType := TLVType(rest[0])
		length := int(binary.BigEndian.Uint16(rest[1:3]))
		if tlvHeaderSize+length > len(rest) {
			return ErrRange
		}
		value := rest[tlvHeaderSize : tlvHeaderSize+length]
		if cb != nil && !cb(tlvType, value) {
			return nil
		}
		rest = rest[tlvHeaderSize+length:]
	}
	return nil
}

// VerifyTLVData checks that tlvData is a structurally well-formed
// sequence of TLV entries, without invoking any callback. A Handler
// already calls this as part of normal processing; it is exposed
// separately for verifying outgoing data or for tests.
func VerifyTLVData(tlvData []byte) error {
	return IterateTLVs(tlvData, nil)
}

// TLSSubTLVCallback is called once per sub-TLV entry found while
// iterating the value of a TLVTLS entry.
type TLSSubTLVCallback func(clientFlags uint8, certVerified bool, subtype TLSSubtype, data []byte) bool

// TLSSubheaderData extracts the client-flags byte and certificate
// verification status from the value of a TLVTLS entry.
func TLSSubheaderData(tlsValue []byte) (clientFlags uint8, certVerified bool, err error) {
	if len(tlsValue) < tlsSubheaderMinSize {
		return 0, false, ErrRange
	}
	clientFlags = tlsValue[0]
	verify := binary.BigEndian.Uint32(tlsValue[1:5])
	return clientFlags, verify == 0, nil
}

// IterateTLSSubTLVs walks the sub-TLV entries nested inside the value of
// a TLVTLS entry, calling cb for each one in order.
func IterateTLSSubTLVs(tlsValue []byte, cb TLSSubTLVCallback) error {
	clientFlags, certVerified, err := TLSSubheaderData(tlsValue)
	if err != nil {
		return err
	}
	return IterateTLVs(tlsValue[tlsSubheaderMinSize:], func(t TLVType, data []byte) bool {
		if cb == nil {
			return true
		}
		return cb(clientFlags, certVerified, TLSSubtype(t), data)
	})
}
