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

package bmca

import (
	"time"

	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/protocol"
)

// announceAligner is the 25 ms alignment grid spec.md §4.5.5 calls
// out for the default 1 s announceInterval.
const announceAligner = 25 * time.Millisecond

// PortAnnounceTransmit periodically emits Announce on Master ports,
// spec.md §4.5.5.
type PortAnnounceTransmit struct {
	PortIndex int
	sender    *mdsm.AnnounceSendMachine

	nextDeadline int64 // ns, absolute
}

// NewPortAnnounceTransmit creates a PortAnnounceTransmit machine for one port.
func NewPortAnnounceTransmit(portIndex int, sender *mdsm.AnnounceSendMachine) *PortAnnounceTransmit {
	return &PortAnnounceTransmit{PortIndex: portIndex, sender: sender}
}

// Timeout emits an Announce if due, using announceSlowdown's
// oldAnnounceInterval for the transition period after an interval
// change, spec.md §4.5.5.
func (t *PortAnnounceTransmit) Timeout(p *Port, gmPriority PriorityVector, pathTrace []protocol.ClockIdentity, timeSource protocol.TimeSource, nowNs int64) error {
	if t.nextDeadline == 0 {
		t.nextDeadline = nowNs
	}
	if nowNs < t.nextDeadline {
		return nil
	}

	interval := p.AnnounceInterval
	if p.AnnounceSlowdown {
		interval = p.OldAnnounceInterval
	}

	msg := mdsm.AnnounceMessage{
		PortIndex:               t.PortIndex,
		GrandmasterPriority1:    gmPriority.Priority1,
		GrandmasterClockQuality: protocol.ClockQuality{ClockClass: gmPriority.ClockClass, ClockAccuracy: gmPriority.ClockAccuracy, OffsetScaledLogVariance: gmPriority.OffsetScaledLogVariance},
		GrandmasterPriority2:    gmPriority.Priority2,
		GrandmasterIdentity:     gmPriority.ClockIdentity,
		StepsRemoved:            gmPriority.StepsRemoved,
		TimeSource:              timeSource,
		PathSequence:            pathTrace,
	}
	if err := t.sender.Send(msg, nowNs); err != nil {
		return err
	}
	t.nextDeadline = nowNs + interval.Duration().Nanoseconds()
	return nil
}
