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
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeHeaderLocalRoundTrip(t *testing.T) {
	hdr, err := MakeHeader(CmdLocal, SockUnspec, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, hdr, HeaderSize)

	var gotCmd Command
	var gotErr error
	h := NewHandler(0, func(result error, cmd Command, sockType SockType, src, dst *Endpoint, tlvData, extra []byte) {
		gotErr = result
		gotCmd = cmd
		require.Nil(t, src)
		require.Nil(t, dst)
		require.Empty(t, tlvData)
		require.Empty(t, extra)
	})
	err = h.PushData(hdr)
	require.NoError(t, err)
	require.NoError(t, gotErr)
	require.Equal(t, CmdLocal, gotCmd)
}

func TestMakeHeaderProxyINETRoundTrip(t *testing.T) {
	src := &Endpoint{IP: net.ParseIP("192.0.2.1"), Port: 5000}
	dst := &Endpoint{IP: net.ParseIP("192.0.2.2"), Port: 53}

	hdr, err := MakeHeader(CmdProxy, SockDgram, src, dst, nil)
	require.NoError(t, err)

	var gotSrc, gotDst *Endpoint
	var gotSock SockType
	h := NewHandler(0, func(result error, cmd Command, sockType SockType, s, d *Endpoint, tlvData, extra []byte) {
		require.NoError(t, result)
		require.Equal(t, CmdProxy, cmd)
		gotSock = sockType
		gotSrc, gotDst = s, d
	})
	require.NoError(t, h.PushData(hdr))
	require.Equal(t, SockDgram, gotSock)
	require.True(t, gotSrc.IP.Equal(src.IP))
	require.Equal(t, src.Port, gotSrc.Port)
	require.True(t, gotDst.IP.Equal(dst.IP))
	require.Equal(t, dst.Port, gotDst.Port)
}

func TestPushDataFragmentedAcrossCalls(t *testing.T) {
	src := &Endpoint{IP: net.ParseIP("10.0.0.1"), Port: 1}
	dst := &Endpoint{IP: net.ParseIP("10.0.0.2"), Port: 2}
	hdr, err := MakeHeader(CmdProxy, SockStream, src, dst, nil)
	require.NoError(t, err)

	var results []error
	h := NewHandler(0, func(result error, cmd Command, sockType SockType, s, d *Endpoint, tlvData, extra []byte) {
		results = append(results, result)
	})

	for i := 0; i < len(hdr); i++ {
		err := h.PushData(hdr[i : i+1])
		if errors.Is(err, ErrNoMore) {
			continue
		}
		require.NoError(t, err)
	}
	require.Len(t, results, 1)
	require.NoError(t, results[0])
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	hdr, err := MakeHeader(CmdLocal, SockUnspec, nil, nil, nil)
	require.NoError(t, err)
	hdr[0] ^= 0xFF

	var gotErr error
	h := NewHandler(0, func(result error, cmd Command, sockType SockType, s, d *Endpoint, tlvData, extra []byte) {
		gotErr = result
	})
	err = h.PushData(hdr)
	require.ErrorIs(t, err, ErrUnexpected)
	require.ErrorIs(t, gotErr, ErrUnexpected)
}

func TestHandlerExtraPayloadPassedThrough(t *testing.T) {
	hdr, err := MakeHeader(CmdLocal, SockUnspec, nil, nil, nil)
	require.NoError(t, err)
	payload := append(append([]byte{}, hdr...), []byte("dns-message")...)

	var gotExtra []byte
	h := NewHandler(0, func(result error, cmd Command, sockType SockType, s, d *Endpoint, tlvData, extra []byte) {
		require.NoError(t, result)
		gotExtra = extra
	})
	require.NoError(t, h.PushData(payload))
	require.Equal(t, []byte("dns-message"), gotExtra)
}

func TestRecursivePushFromCallbackIsRejected(t *testing.T) {
	var h *Handler
	var nestedErr error
	h = NewHandler(0, func(result error, cmd Command, sockType SockType, s, d *Endpoint, tlvData, extra []byte) {
		nestedErr = h.PushData([]byte{0})
	})
	hdr, err := MakeHeader(CmdLocal, SockUnspec, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.PushData(hdr))
	require.ErrorIs(t, nestedErr, ErrRecursivePush)
}

func TestTLVRoundTrip(t *testing.T) {
	hdr, err := MakeHeader(CmdLocal, SockUnspec, nil, nil, nil)
	require.NoError(t, err)
	hdr, err = HeaderAppendTLV(hdr, TLVAuthority, []byte("resolver.example."))
	require.NoError(t, err)
	hdr, err = HeaderAppendTLVString(hdr, TLVUniqueID, "conn-1")
	require.NoError(t, err)

	var seen []TLVType
	var values []string
	h := NewHandler(0, func(result error, cmd Command, sockType SockType, s, d *Endpoint, tlvData, extra []byte) {
		require.NoError(t, result)
		require.NoError(t, IterateTLVs(tlvData, func(tlvType TLVType, data []byte) bool {
			seen = append(seen, tlvType)
			values = append(values, string(data))
			return true
		}))
	})
	require.NoError(t, h.PushData(hdr))
	require.Equal(t, []TLVType{TLVAuthority, TLVUniqueID}, seen)
	require.Equal(t, []string{"resolver.example.", "conn-1"}, values)
}

func TestTLSSubTLVRoundTrip(t *testing.T) {
	sub := AppendTLVString(nil, uint8(TLSSubtypeCipher), "ECDHE-RSA-AES128-GCM-SHA256")
	tlsValue := MakeTLSSubheader(uint8(TLSClientTLS), true, sub)

	clientFlags, verified, err := TLSSubheaderData(tlsValue)
	require.NoError(t, err)
	require.Equal(t, uint8(TLSClientTLS), clientFlags)
	require.True(t, verified)

	var cipher string
	require.NoError(t, IterateTLSSubTLVs(tlsValue, func(flags uint8, certVerified bool, subtype TLSSubtype, data []byte) bool {
		if subtype == TLSSubtypeCipher {
			cipher = string(data)
		}
		return true
	}))
	require.Equal(t, "ECDHE-RSA-AES128-GCM-SHA256", cipher)
}

func TestVerifyTLVDataRejectsTruncated(t *testing.T) {
	require.ErrorIs(t, VerifyTLVData([]byte{0x01, 0x00, 0x05, 'a', 'b'}), ErrRange)
}

func TestLocalCommandIgnoresPopulatedAddressBlock(t *testing.T) {
	// A LOCAL header can arrive with a fully populated address block (some
	// health-check probes send one anyway); the family byte still governs
	// how many bytes to skip, but those bytes are never decoded as an
	// address pair under LOCAL.
	body := make([]byte, addrDataSize(AFInet))
	copy(body[0:4], net.ParseIP("192.0.2.9").To4())
	copy(body[4:8], net.ParseIP("192.0.2.10").To4())
	binary.BigEndian.PutUint16(body[8:10], 1234)
	binary.BigEndian.PutUint16(body[10:12], 53)

	hdr := make([]byte, HeaderSize)
	copy(hdr, signature[:])
	hdr[12] = 0x20 | byte(CmdLocal)
	hdr[13] = byte(AFInet)<<4 | byte(SockStream)
	binary.BigEndian.PutUint16(hdr[14:16], uint16(len(body)))
	hdr = append(hdr, body...)

	var gotErr error
	var gotSrc, gotDst *Endpoint
	h := NewHandler(0, func(result error, cmd Command, sockType SockType, s, d *Endpoint, tlvData, extra []byte) {
		gotErr = result
		gotSrc, gotDst = s, d
	})
	require.NoError(t, h.PushData(hdr))
	require.NoError(t, gotErr)
	require.Nil(t, gotSrc)
	require.Nil(t, gotDst)
}

func TestHandleDirectly(t *testing.T) {
	hdr, err := MakeHeader(CmdLocal, SockUnspec, nil, nil, nil)
	require.NoError(t, err)
	var gotErr error
	require.NoError(t, HandleDirectly(hdr, func(result error, cmd Command, sockType SockType, s, d *Endpoint, tlvData, extra []byte) {
		gotErr = result
	}))
	require.NoError(t, gotErr)
}
