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

// Package bmca implements the per-port Best Master Clock Algorithm
// machines of spec.md §4.5: PortAnnounceReceive/Information(+Ext),
// PortAnnounceTransmit, PortStateSelection (PortStateSettingExt),
// the interval-setting machines, and gPtpCapableTransmit/Receive.
package bmca

import (
	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/protocol"
)

// Comparison is the outcome of comparing two priority vectors, spec.md
// §4.5.2/§7's invariant that compare(A,A)=SAME and compare is
// antisymmetric.
type Comparison int8

// Comparison values.
const (
	Superior Comparison = 1
	Same     Comparison = 0
	Inferior Comparison = -1
)

// PriorityVector is the 224-bit packed tuple spec.md §3 describes:
// rootSystemIdentity, stepsRemoved, sourcePortIdentity, portNumber.
// Comparison is lexicographic unsigned byte order over exactly this
// field order; lower is superior.
type PriorityVector struct {
	Priority1               uint8
	ClockClass              protocol.ClockClass
	ClockAccuracy           protocol.ClockAccuracy
	OffsetScaledLogVariance uint16
	Priority2               uint8
	ClockIdentity           protocol.ClockIdentity
	StepsRemoved            uint16
	SourcePortIdentity      protocol.PortIdentity
	PortNumber              uint16
}

// inferiorVector is the all-0xFF vector spec.md §4.5.4 assigns to
// ports not in the Received infoIs state, guaranteed to lose every
// comparison against a real vector.
var inferiorVector = PriorityVector{
	Priority1:               0xFF,
	ClockClass:               0xFF,
	ClockAccuracy:            0xFF,
	OffsetScaledLogVariance:  0xFFFF,
	Priority2:                0xFF,
	ClockIdentity:            protocol.ClockIdentity(0xFFFFFFFFFFFFFFFF),
	StepsRemoved:             0xFFFF,
	SourcePortIdentity:       protocol.PortIdentity{ClockIdentity: protocol.ClockIdentity(0xFFFFFFFFFFFFFFFF), PortNumber: 0xFFFF},
	PortNumber:               0xFFFF,
}

// Compare implements compare_priority_vectors(a, b): cascading
// field-by-field comparison in the vector's declared order, lower
// wins, matching the cascading-comparison idiom of Dscmp/Dscmp2 in
// the sptp BMC (those compare GM identity/quality/priority then fall
// back to a topology tie-break on stepsRemoved+port identity; this is
// the same shape applied to the full 224-bit vector spec.md defines).
func Compare(a, b PriorityVector) Comparison {
	switch {
	case a.Priority1 < b.Priority1:
		return Superior
	case a.Priority1 > b.Priority1:
		return Inferior
	}
	switch {
	case a.ClockClass < b.ClockClass:
		return Superior
	case a.ClockClass > b.ClockClass:
		return Inferior
	}
	switch {
	case a.ClockAccuracy < b.ClockAccuracy:
		return Superior
	case a.ClockAccuracy > b.ClockAccuracy:
		return Inferior
	}
	switch {
	case a.OffsetScaledLogVariance < b.OffsetScaledLogVariance:
		return Superior
	case a.OffsetScaledLogVariance > b.OffsetScaledLogVariance:
		return Inferior
	}
	switch {
	case a.Priority2 < b.Priority2:
		return Superior
	case a.Priority2 > b.Priority2:
		return Inferior
	}
	switch {
	case a.ClockIdentity < b.ClockIdentity:
		return Superior
	case a.ClockIdentity > b.ClockIdentity:
		return Inferior
	}
	switch {
	case a.StepsRemoved < b.StepsRemoved:
		return Superior
	case a.StepsRemoved > b.StepsRemoved:
		return Inferior
	}
	switch {
	case a.SourcePortIdentity.ClockIdentity < b.SourcePortIdentity.ClockIdentity:
		return Superior
	case a.SourcePortIdentity.ClockIdentity > b.SourcePortIdentity.ClockIdentity:
		return Inferior
	}
	switch {
	case a.SourcePortIdentity.PortNumber < b.SourcePortIdentity.PortNumber:
		return Superior
	case a.SourcePortIdentity.PortNumber > b.SourcePortIdentity.PortNumber:
		return Inferior
	}
	switch {
	case a.PortNumber < b.PortNumber:
		return Superior
	case a.PortNumber > b.PortNumber:
		return Inferior
	}
	return Same
}

// FromAnnounce builds the priority vector an incoming Announce
// represents, as the message-derived "messagePriority" spec.md
// §4.5.2 compares against portPriority.
func FromAnnounce(msg mdsm.AnnounceMessage) PriorityVector {
	return PriorityVector{
		Priority1:               msg.GrandmasterPriority1,
		ClockClass:              msg.GrandmasterClockQuality.ClockClass,
		ClockAccuracy:           msg.GrandmasterClockQuality.ClockAccuracy,
		OffsetScaledLogVariance: msg.GrandmasterClockQuality.OffsetScaledLogVariance,
		Priority2:               msg.GrandmasterPriority2,
		ClockIdentity:           msg.GrandmasterIdentity,
		StepsRemoved:            msg.StepsRemoved,
		SourcePortIdentity:      msg.SourcePortIdentity,
		PortNumber:              msg.SourcePortIdentity.PortNumber,
	}
}

// GmPathPriority returns portPriority with stepsRemoved incremented by
// one, the per-port path vector spec.md §4.5.4's PortStateSelection
// compares against the global gmPriority.
func GmPathPriority(p PriorityVector) PriorityVector {
	p.StepsRemoved++
	return p
}
