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
	"math/rand"
	"sync"
	"time"
)

// EntropySource is the explicit stand-in for the external entropy source
// the core is allowed to consume without owning it: a mutex-guarded PRNG
// source rather than a package-global one, so a test can construct an
// isolated, seedable source instead of sharing math/rand's global state
// with every other package in the binary.
type EntropySource struct {
	mu  sync.Mutex
	src rand.Source64
}

// NewEntropySource returns an EntropySource seeded from the current time.
func NewEntropySource() *EntropySource {
	return &EntropySource{src: rand.NewSource(time.Now().UnixNano()).(rand.Source64)}
}

// NewSeededEntropySource returns a deterministic EntropySource, for tests.
func NewSeededEntropySource(seed int64) *EntropySource {
	return &EntropySource{src: rand.NewSource(seed).(rand.Source64)}
}

// Int63 returns a non-negative pseudo-random 63-bit integer.
func (e *EntropySource) Int63() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src.Int63()
}

// Jitter returns a duration uniformly distributed in [0, max), used to
// spread resign deadlines that the load pipeline assigns a default for
// (rather than one read explicitly from an RRSIG's inception/expiration).
func (e *EntropySource) Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(e.Int63() % int64(max))
}

// Salt returns n pseudo-random bytes, used by tools/tests to pick a default
// NSEC3 salt. This is not a cryptographic salt generator: the core
// explicitly does not own a crypto backend, so callers that need a
// cryptographically strong salt must supply one from outside.
func (e *EntropySource) Salt(n int) []byte {
	out := make([]byte, n)
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range out {
		out[i] = byte(e.src.Int63())
	}
	return out
}
