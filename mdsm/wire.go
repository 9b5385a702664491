/*
Copyright (c) Facebook, Inc. and its affiliates.

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

package mdsm

import (
	"time"

	"github.com/excelfore/gptp/protocol"
)

// nsToTimestamp converts a local-clock ns value to the wire Timestamp
// type (48-bit seconds + 32-bit nanoseconds, Table 5).
func nsToTimestamp(ns int64) protocol.Timestamp {
	t := time.Unix(0, ns).UTC()
	return protocol.Timestamp{
		Seconds:     protocol.NewPTPSeconds(t),
		Nanoseconds: uint32(t.Nanosecond()),
	}
}
