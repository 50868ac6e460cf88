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

import "errors"

// Sentinel errors mirroring the small isc_result_t vocabulary the source
// uses for this component: most callers only need to distinguish "need
// more data" from "this is malformed" from "this is too big".
var (
	// ErrNoMore reports that the data pushed so far was consumed but a
	// complete header has not yet arrived; push more and retry.
	ErrNoMore = errors.New("proxy2: need more data")
	// ErrUnexpected reports a structurally invalid header (bad signature,
	// bad version, unknown family/socktype combination).
	ErrUnexpected = errors.New("proxy2: unexpected header contents")
	// ErrRange reports a value outside its permitted range (a header or
	// TLV longer than its declared length, or longer than MaxSize).
	ErrRange = errors.New("proxy2: value out of range")
	// ErrRecursivePush reports that PushData was called re-entrantly from
	// within the handler's own callback.
	ErrRecursivePush = errors.New("proxy2: recursive push from callback")
	// ErrDone reports that the handler has already produced a result and
	// must be Clear()ed before accepting more data.
	ErrDone = errors.New("proxy2: handler already completed; call Clear")
)
