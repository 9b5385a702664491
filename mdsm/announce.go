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
	"github.com/excelfore/gptp/protocol"
)

// maxPathTraceEntries is the 16-entry cap spec.md §3/§4.4.5 places on
// pathTrace, mirroring PortAnnounceReceive's own cap of 16-1 plus
// thisClock.
const maxPathTraceEntries = 16

// AnnounceMessage is the parsed form AnnounceReceive/AnnounceSend
// machines exchange with the BMCA layer (C5), decoupled from the raw
// wire struct so BMCA doesn't need to import protocol directly.
type AnnounceMessage struct {
	PortIndex               int
	SourcePortIdentity      protocol.PortIdentity
	SequenceID              uint16
	DomainNumber            uint8
	CurrentUTCOffset        int16
	GrandmasterPriority1    uint8
	GrandmasterClockQuality protocol.ClockQuality
	GrandmasterPriority2    uint8
	GrandmasterIdentity     protocol.ClockIdentity
	StepsRemoved            uint16
	TimeSource              protocol.TimeSource
	PathSequence            []protocol.ClockIdentity
}

// AnnounceSendMachine implements spec.md §4.4.5's AnnounceSend half.
type AnnounceSendMachine struct {
	PortIndex    int
	DomainNumber uint8
	sender       Sender

	sequenceID uint16
}

// NewAnnounceSendMachine creates an AnnounceSend machine for one port.
func NewAnnounceSendMachine(portIndex int, domainNumber uint8, sender Sender) *AnnounceSendMachine {
	return &AnnounceSendMachine{PortIndex: portIndex, DomainNumber: domainNumber, sender: sender}
}

// Send transmits an Announce built from msg. The PathTrace TLV is
// included when msg carries at most 16 path entries and omitted
// entirely, not truncated, when it carries more (spec.md §4.4.5).
func (m *AnnounceSendMachine) Send(msg AnnounceMessage, nowNs int64) error {
	a := &protocol.Announce{}
	a.SdoIDAndMsgType = protocol.NewSdoIDAndMsgType(protocol.MessageAnnounce, protocol.SdoIDDefault)
	a.Version = 2
	a.DomainNumber = m.DomainNumber
	a.SequenceID = m.sequenceID
	a.CurrentUTCOffset = msg.CurrentUTCOffset
	a.GrandmasterPriority1 = msg.GrandmasterPriority1
	a.GrandmasterClockQuality = msg.GrandmasterClockQuality
	a.GrandmasterPriority2 = msg.GrandmasterPriority2
	a.GrandmasterIdentity = msg.GrandmasterIdentity
	a.StepsRemoved = msg.StepsRemoved
	a.TimeSource = msg.TimeSource

	if len(msg.PathSequence) <= maxPathTraceEntries {
		a.TLVs = []protocol.TLV{pathTraceTLV(msg.PathSequence)}
	}

	b, err := protocol.Bytes(a)
	if err != nil {
		return err
	}
	if err := m.sender.Send(b, protocol.MessageAnnounce, uint32(m.sequenceID), m.DomainNumber, nowNs); err != nil {
		return err
	}
	m.sequenceID++
	return nil
}

func pathTraceTLV(path []protocol.ClockIdentity) *protocol.PathTraceTLV {
	t := &protocol.PathTraceTLV{PathSequence: append([]protocol.ClockIdentity{}, path...)}
	t.TLVType = protocol.TLVPathTrace
	t.LengthField = uint16(8 * len(path))
	return t
}

// AnnounceReceiveMachine implements spec.md §4.4.5's AnnounceReceive
// half: it just decodes, qualification (self-loop/cycle/stepsRemoved
// rejection) is PortAnnounceReceive's job in package bmca.
type AnnounceReceiveMachine struct {
	PortIndex int
}

// NewAnnounceReceiveMachine creates an AnnounceReceive machine for one port.
func NewAnnounceReceiveMachine(portIndex int) *AnnounceReceiveMachine {
	return &AnnounceReceiveMachine{PortIndex: portIndex}
}

// Recv decodes a wire Announce into an AnnounceMessage. A PathTrace
// TLV shorter than stepsRemoved is padded with all-ones clockIdentity
// entries, per spec.md §4.4.5; a longer one is cut to stepsRemoved
// entries.
func (m *AnnounceReceiveMachine) Recv(a *protocol.Announce) AnnounceMessage {
	msg := AnnounceMessage{
		PortIndex:               m.PortIndex,
		SourcePortIdentity:      a.Header.SourcePortIdentity,
		SequenceID:              a.SequenceID,
		DomainNumber:            a.DomainNumber,
		CurrentUTCOffset:        a.CurrentUTCOffset,
		GrandmasterPriority1:    a.GrandmasterPriority1,
		GrandmasterClockQuality: a.GrandmasterClockQuality,
		GrandmasterPriority2:    a.GrandmasterPriority2,
		GrandmasterIdentity:     a.GrandmasterIdentity,
		StepsRemoved:            a.StepsRemoved,
		TimeSource:              a.TimeSource,
	}

	for _, t := range a.TLVs {
		pt, ok := t.(*protocol.PathTraceTLV)
		if !ok {
			continue
		}
		msg.PathSequence = append([]protocol.ClockIdentity{}, pt.PathSequence...)
	}
	if want := int(a.StepsRemoved); want > 0 && len(msg.PathSequence) != want {
		padded := make([]protocol.ClockIdentity, want)
		copy(padded, msg.PathSequence)
		for i := len(msg.PathSequence); i < want; i++ {
			padded[i] = protocol.ClockIdentity(0xFFFFFFFFFFFFFFFF)
		}
		msg.PathSequence = padded
	}
	return msg
}
