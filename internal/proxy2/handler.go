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
	"bytes"
	"encoding/binary"
	"net"
)

type state int

const (
	stateHeader state = iota // accumulating the fixed 16-byte prefix
	stateBody                // accumulating the address block + TLVs
	stateDone                // a result has been produced
)

// HandlerFunc is the data-processing callback a Handler invokes once a
// PROXYv2 header (and any immediately following payload) has been
// processed, successfully or not. src and dst are nil when the header
// carries no addresses (CmdLocal, or an unspecified-family CmdProxy).
type HandlerFunc func(result error, cmd Command, sockType SockType, src, dst *Endpoint, tlvData, extra []byte)

// Handler is a resumable PROXYv2 header parser: push arbitrarily sized
// chunks of a byte stream into it, in order, and it calls back exactly
// once a complete header has been assembled or an error is detected.
// It has no connection to any networking code, matching the source's
// design of a state machine driven purely by PushData.
type Handler struct {
	maxSize uint32
	cb      HandlerFunc

	state state
	buf   []byte // raw bytes accumulated for the current state

	addrAndTLVLen uint16
	cmd           Command
	family        AddrFamily
	sockType      SockType

	callingCB bool
	result    error

	headerSize uint16
	tlvData    []byte
	extraData  []byte
	src, dst   Endpoint
	haveAddrs  bool
}

// NewHandler creates a Handler. maxSize caps the total header size
// (address block + TLVs included); 0 means MaxSize.
func NewHandler(maxSize uint32, cb HandlerFunc) *Handler {
	if maxSize == 0 || int(maxSize) > MaxSize {
		maxSize = MaxSize
	}
	return &Handler{maxSize: maxSize, cb: cb, state: stateHeader}
}

// Clear returns the handler to its initial state, discarding any
// partially or fully processed header, so the object can be reused for a
// new stream.
func (h *Handler) Clear() {
	*h = Handler{maxSize: h.maxSize, cb: h.cb, state: stateHeader}
}

// Result returns the outcome of the most recently completed processing
// pass, or ErrNoMore if no header has completed yet.
func (h *Handler) Result() error {
	if h.state != stateDone {
		return ErrNoMore
	}
	return h.result
}

// Header returns the complete raw PROXYv2 header (fixed prefix, address
// block and TLVs) once processing has completed.
func (h *Handler) Header() ([]byte, bool) {
	if h.state != stateDone || h.result != nil {
		return nil, false
	}
	return h.buf, true
}

// TLVs returns the TLV-data region of a successfully processed header.
func (h *Handler) TLVs() []byte {
	if h.state != stateDone || h.result != nil {
		return nil
	}
	return h.tlvData
}

// Extra returns any bytes pushed past the end of the processed header
// (payload that arrived in the same PushData call, common over TCP).
func (h *Handler) Extra() []byte {
	if h.state != stateDone || h.result != nil {
		return nil
	}
	return h.extraData
}

// Addresses returns the decoded socket type and endpoints of a
// successfully processed CmdProxy header with a specified address family.
func (h *Handler) Addresses() (SockType, *Endpoint, *Endpoint, error) {
	if h.state != stateDone || h.result != nil {
		return 0, nil, nil, ErrNoMore
	}
	if !h.haveAddrs {
		return h.sockType, nil, nil, nil
	}
	return h.sockType, &h.src, &h.dst, nil
}

// PushData feeds buf into the state machine, invoking the callback
// exactly once if this call completes (successfully or not) the header
// that's been accumulating. Calling PushData from within the callback is
// forbidden and reported as ErrRecursivePush rather than the abort the
// source performs, since aborting a Go process on misuse would be
// needlessly hostile to a caller that can recover.
func (h *Handler) PushData(buf []byte) error {
	if h.callingCB {
		return ErrRecursivePush
	}
	if h.state == stateDone {
		return ErrDone
	}

	for len(buf) > 0 {
		switch h.state {
		case stateHeader:
			need := HeaderSize - len(h.buf)
			take := min(need, len(buf))
			h.buf = append(h.buf, buf[:take]...)
			buf = buf[take:]
			if len(h.buf) < HeaderSize {
				return h.deliver(ErrNoMore)
			}
			if err := h.parseFixedHeader(); err != nil {
				return h.deliver(err)
			}
			if h.addrAndTLVLen == 0 {
				return h.finish(buf)
			}
			h.state = stateBody

		case stateBody:
			need := int(HeaderSize+h.addrAndTLVLen) - len(h.buf)
			take := min(need, len(buf))
			h.buf = append(h.buf, buf[:take]...)
			buf = buf[take:]
			if len(h.buf) < int(HeaderSize+h.addrAndTLVLen) {
				return h.deliver(ErrNoMore)
			}
			return h.finish(buf)
		}
	}
	return h.deliver(ErrNoMore)
}

// PushRegion is equivalent to PushData but reads from an io.Reader-style
// region already held in memory; kept distinct from PushData to mirror
// the source's push/push_data split for callers that already have a
// delimited byte region instead of a raw slice.
func (h *Handler) PushRegion(region []byte) error { return h.PushData(region) }

func (h *Handler) parseFixedHeader() error {
	if !bytes.Equal(h.buf[:signatureSize], signature[:]) {
		return ErrUnexpected
	}
	verCmd := h.buf[12]
	if verCmd>>4 != 0x2 {
		return ErrUnexpected
	}
	switch Command(verCmd & 0x0F) {
	case CmdLocal, CmdProxy:
		h.cmd = Command(verCmd & 0x0F)
	default:
		return ErrUnexpected
	}

	protoFam := h.buf[13]
	h.family = AddrFamily(protoFam >> 4)
	h.sockType = SockType(protoFam & 0x0F)
	switch h.family {
	case AFUnspec, AFInet, AFInet6, AFUnix:
	default:
		return ErrUnexpected
	}
	switch h.sockType {
	case SockUnspec, SockStream, SockDgram:
	default:
		return ErrUnexpected
	}

	h.addrAndTLVLen = binary.BigEndian.Uint16(h.buf[14:16])
	if int(HeaderSize)+int(h.addrAndTLVLen) > int(h.maxSize) {
		return ErrRange
	}
	minSize := addrDataSize(h.family)
	if h.cmd == CmdProxy && h.family != AFUnspec && int(h.addrAndTLVLen) < minSize {
		return ErrRange
	}
	return nil
}

func (h *Handler) finish(extra []byte) error {
	h.headerSize = HeaderSize + h.addrAndTLVLen
	body := h.buf[HeaderSize:]

	// A LOCAL header's address block, if present, is skipped unparsed: the
	// source treats LOCAL as valid with addresses ignored rather than
	// rejecting a health-check probe that sends one anyway.
	addrSize := addrDataSize(h.family)
	if addrSize > len(body) {
		return h.deliver(ErrRange)
	}
	if addrSize > 0 && h.cmd == CmdProxy {
		if err := h.decodeAddresses(body[:addrSize]); err != nil {
			return h.deliver(err)
		}
		h.haveAddrs = true
	}
	h.tlvData = body[addrSize:]
	if err := VerifyTLVData(h.tlvData); err != nil {
		return h.deliver(err)
	}
	h.extraData = extra
	return h.deliver(nil)
}

func (h *Handler) decodeAddresses(body []byte) error {
	switch h.family {
	case AFInet:
		h.src = Endpoint{IP: net.IP(append([]byte{}, body[0:4]...)), Port: binary.BigEndian.Uint16(body[8:10])}
		h.dst = Endpoint{IP: net.IP(append([]byte{}, body[4:8]...)), Port: binary.BigEndian.Uint16(body[10:12])}
	case AFInet6:
		h.src = Endpoint{IP: net.IP(append([]byte{}, body[0:16]...)), Port: binary.BigEndian.Uint16(body[32:34])}
		h.dst = Endpoint{IP: net.IP(append([]byte{}, body[16:32]...)), Port: binary.BigEndian.Uint16(body[34:36])}
	case AFUnix:
		h.src = Endpoint{UnixPath: unixPathString(body[0:unixMaxPathLen])}
		h.dst = Endpoint{UnixPath: unixPathString(body[unixMaxPathLen : 2*unixMaxPathLen])}
	default:
		return ErrUnexpected
	}
	return nil
}

func unixPathString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (h *Handler) deliver(err error) error {
	if err == ErrNoMore {
		h.result = nil
		return err
	}
	h.result = err
	h.state = stateDone
	if h.cb != nil {
		h.callingCB = true
		h.cb(err, h.cmd, h.sockType, addrOrNil(h), dstOrNil(h), h.tlvData, h.extraData)
		h.callingCB = false
	}
	return err
}

func addrOrNil(h *Handler) *Endpoint {
	if !h.haveAddrs {
		return nil
	}
	return &h.src
}

func dstOrNil(h *Handler) *Endpoint {
	if !h.haveAddrs {
		return nil
	}
	return &h.dst
}

// HandleDirectly processes a single complete PROXYv2 header (and any
// trailing payload) held entirely in data, without incremental state.
// It is meant for datagram transports, where a full header is always
// available in one read.
func HandleDirectly(data []byte, cb HandlerFunc) error {
	h := NewHandler(0, cb)
	return h.PushData(data)
}
