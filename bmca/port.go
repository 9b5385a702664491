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

	log "github.com/sirupsen/logrus"

	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/protocol"
)

// InfoIs is the per-port information-source state spec.md §3 defines.
type InfoIs int

// InfoIs values.
const (
	InfoDisabled InfoIs = iota
	InfoAged
	InfoMine
	InfoReceived
)

// PortAnnounceState is a state of the PortAnnounceInformation machine,
// spec.md §4.5.2.
type PortAnnounceState int

// PortAnnounceInformation machine states.
const (
	PortAnnounceDisabled PortAnnounceState = iota
	PortAnnounceAged
	PortAnnounceUpdate
	PortAnnounceCurrent
	PortAnnounceReceiveState
	PortAnnounceSuperiorMasterPort
	PortAnnounceRepeatedMasterPort
	PortAnnounceInferiorMasterOrOtherPort
)

// SelectedState is the output of PortStateSelection for one port,
// spec.md §4.5.4.
type SelectedState int

// SelectedState values.
const (
	DisabledPort SelectedState = iota
	MasterPort
	PassivePort
	SlavePort
)

// receiptTimeoutMultiplier is the default announceReceiptTimeout /
// syncReceiptTimeout multiplier (IEEE 802.1AS default: 3 intervals).
const receiptTimeoutMultiplier = 3

// Port holds the BMCA per-port globals spec.md §3 lists: infoIs,
// portPriority, masterPriority, messageStepsRemoved, portStepsRemoved,
// the cached path sequence, announce flags, timers, and the
// update/new-info latches PortStateSelection consumes.
type Port struct {
	PortIndex int

	InfoIs              InfoIs
	State               PortAnnounceState
	PortPriority        PriorityVector
	MasterPriority      PriorityVector
	MessageStepsRemoved uint16
	PortStepsRemoved    uint16
	AnnPathSequence     []protocol.ClockIdentity

	AnnounceInterval       protocol.LogInterval
	InitialAnnounceInterval protocol.LogInterval
	AnnounceReceiptTimeout time.Duration
	SyncReceiptTimeout     time.Duration
	AnnounceReceiptTimeoutTime int64 // ns, absolute
	SyncReceiptTimeoutTime     int64 // ns, absolute

	UpdtInfo bool
	NewInfo  bool

	AnnounceSlowdown    bool
	OldAnnounceInterval protocol.LogInterval

	IsSlave  bool
	AsCapable bool

	selected bool
	reselect bool

	ExternalPortConfiguration bool
	QuickUpdate               bool
}

// NewPort creates a Port with infoIs=Disabled, matching a freshly
// added port before its first Announce qualifies.
func NewPort(portIndex int, announceInterval protocol.LogInterval) *Port {
	return &Port{
		PortIndex:              portIndex,
		InfoIs:                 InfoDisabled,
		State:                  PortAnnounceDisabled,
		AnnounceInterval:       announceInterval,
		InitialAnnounceInterval: announceInterval,
		AnnounceReceiptTimeout: receiptTimeoutMultiplier * announceInterval.Duration(),
		SyncReceiptTimeout:     receiptTimeoutMultiplier * announceInterval.Duration(),
	}
}

// GmPathPriorityVector is this port's contribution to PortStateSelection,
// spec.md §4.5.4: portPriority with stepsRemoved+1, or the all-0xFF
// inferior vector when infoIs != Received.
func (p *Port) GmPathPriorityVector() PriorityVector {
	if p.InfoIs != InfoReceived {
		return inferiorVector
	}
	return GmPathPriority(p.PortPriority)
}

// PortAnnounceReceive qualifies an incoming Announce per spec.md
// §4.5.1: rejects self-loops, stepsRemoved>=255, and path-sequence
// cycles containing thisClock. On success it returns the message
// priority vector and true. While this port is Slave it also stores the
// received path (at most 15 entries) followed by thisClock in
// AnnPathSequence; otherwise it clears AnnPathSequence.
func (p *Port) PortAnnounceReceive(msg mdsm.AnnounceMessage, thisClock protocol.ClockIdentity) (PriorityVector, bool) {
	if msg.SourcePortIdentity.ClockIdentity == thisClock {
		log.WithField("port", p.PortIndex).Debug("bmca: rejecting self-loop Announce")
		return PriorityVector{}, false
	}
	if msg.StepsRemoved >= 255 {
		log.WithField("port", p.PortIndex).Warn("bmca: rejecting Announce with stepsRemoved >= 255")
		return PriorityVector{}, false
	}
	for _, id := range msg.PathSequence {
		if id == thisClock {
			log.WithField("port", p.PortIndex).Warn("bmca: rejecting Announce with a path-trace cycle")
			return PriorityVector{}, false
		}
	}

	vec := FromAnnounce(msg)
	if p.IsSlave {
		path := append([]protocol.ClockIdentity{}, msg.PathSequence...)
		if len(path) > maxPathTraceEntries-1 {
			path = path[:maxPathTraceEntries-1]
		}
		p.AnnPathSequence = append(path, thisClock)
	} else {
		p.AnnPathSequence = nil
	}
	return vec, true
}

const maxPathTraceEntries = 16
