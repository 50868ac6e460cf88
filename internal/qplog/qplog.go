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

// Package qplog collects the handful of diagnostic log lines the zone
// database emits for conditions a caller cannot usefully recover from in
// the return value alone (corruption, a rolled-back writer, a duplicate
// on-disk NSEC record). It is a thin naming layer over glog, the way the
// surrounding server already logs, so the database package itself never
// needs to pick format strings or severities inline.
package qplog

import "github.com/golang/glog"

// Corrupt logs a structural inconsistency detected in the loaded zone
// data (the NSEC3 parameter-mismatch restart limit exceeded, or no
// covering NSEC/NSEC3 record found in a secure zone) that the
// caller's error return already reports, but that an operator will want
// a stack-attributable line for.
func Corrupt(owner string, detail string) {
	glog.Errorf("qpdb: corrupt data at %q: %s", owner, detail)
}

// Rollback logs that an open writer version was discarded rather than
// committed, naming the serial that will never become visible.
func Rollback(serial uint32) {
	glog.Infof("qpdb: rolled back writer version %d", serial)
}

// DuplicateNSEC logs that a second NSEC rdataset was loaded for an owner
// that already had one. The load pipeline treats this as recoverable
// (the later one wins), but it usually indicates a zone-file generation
// bug worth surfacing.
func DuplicateNSEC(owner string) {
	glog.Warningf("qpdb: duplicate NSEC at %q, keeping the most recently loaded one", owner)
}

// WriterOutstanding logs a rejected NewWriter call, the one contention
// case worth a line since it means a caller's update attempt did nothing.
func WriterOutstanding(origin string) {
	glog.Warningf("qpdb: writer already open for zone %q", origin)
}
