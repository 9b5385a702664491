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

// IntervalRequest is the decoded form of a MessageIntervalRequestTLV,
// handed to the interval-setting machines in package bmca, spec.md
// §4.4.5/§4.5.6.
type IntervalRequest struct {
	PortIndex         int
	SourcePortIdentity protocol.PortIdentity
	LinkDelayInterval protocol.LogInterval
	TimeSyncInterval  protocol.LogInterval
	AnnounceInterval  protocol.LogInterval
	Flags             protocol.MessageIntervalFlags
}

// GPTPCapableMessage is the decoded form of a GPTPCapableTLV, handed
// to the gPtpCapableReceive machine in package bmca, spec.md §4.5.6.
type GPTPCapableMessage struct {
	PortIndex                    int
	SourcePortIdentity           protocol.PortIdentity
	LogGptpCapableMessageInterval protocol.LogInterval
	Flags                        protocol.MessageIntervalFlags
}

// SignalingReceiveMachine decodes an incoming Signaling message's
// TLVs and routes them to their consumer record types. Per spec.md
// §4.4.5, SignalingReceive is just a decode-and-dispatch step; the
// interval-setting/gPtpCapable state machines that act on these
// records live in package bmca.
type SignalingReceiveMachine struct {
	PortIndex int
}

// NewSignalingReceiveMachine creates a SignalingReceive machine for one port.
func NewSignalingReceiveMachine(portIndex int) *SignalingReceiveMachine {
	return &SignalingReceiveMachine{PortIndex: portIndex}
}

// Recv splits a Signaling message's TLVs into the interval-request
// and gPtpCapable records found within it. Unrecognized TLVs (the
// 1588 unicast-negotiation TLVs the teacher already decodes) are
// ignored here; they carry no gPTP semantics.
func (m *SignalingReceiveMachine) Recv(s *protocol.Signaling) (intervals []IntervalRequest, caps []GPTPCapableMessage) {
	for _, t := range s.TLVs {
		switch tlv := t.(type) {
		case *protocol.MessageIntervalRequestTLV:
			intervals = append(intervals, IntervalRequest{
				PortIndex:          m.PortIndex,
				SourcePortIdentity: s.Header.SourcePortIdentity,
				LinkDelayInterval:  tlv.LinkDelayInterval,
				TimeSyncInterval:   tlv.TimeSyncInterval,
				AnnounceInterval:   tlv.AnnounceInterval,
				Flags:              tlv.Flags,
			})
		case *protocol.GPTPCapableTLV:
			caps = append(caps, GPTPCapableMessage{
				PortIndex:                     m.PortIndex,
				SourcePortIdentity:            s.Header.SourcePortIdentity,
				LogGptpCapableMessageInterval: tlv.LogGptpCapableMessageInterval,
				Flags:                         tlv.Flags,
			})
		}
	}
	return intervals, caps
}

// SignalingSendMachine builds and transmits Signaling messages
// carrying a MessageIntervalRequestTLV and/or a GPTPCapableTLV,
// spec.md §4.4.5.
type SignalingSendMachine struct {
	PortIndex    int
	DomainNumber uint8
	sender       Sender

	sequenceID uint16
}

// NewSignalingSendMachine creates a SignalingSend machine for one port.
func NewSignalingSendMachine(portIndex int, domainNumber uint8, sender Sender) *SignalingSendMachine {
	return &SignalingSendMachine{PortIndex: portIndex, DomainNumber: domainNumber, sender: sender}
}

// SendIntervalRequest transmits a Signaling message carrying a single
// MessageIntervalRequestTLV addressed to target.
func (m *SignalingSendMachine) SendIntervalRequest(target protocol.PortIdentity, req IntervalRequest, nowNs int64) error {
	tlv := &protocol.MessageIntervalRequestTLV{
		LinkDelayInterval: req.LinkDelayInterval,
		TimeSyncInterval:  req.TimeSyncInterval,
		AnnounceInterval:  req.AnnounceInterval,
		Flags:             req.Flags,
	}
	return m.send(target, tlv, nowNs)
}

// SendGPTPCapable transmits a Signaling message carrying a single
// GPTPCapableTLV addressed to target.
func (m *SignalingSendMachine) SendGPTPCapable(target protocol.PortIdentity, msg GPTPCapableMessage, nowNs int64) error {
	tlv := &protocol.GPTPCapableTLV{
		LogGptpCapableMessageInterval: msg.LogGptpCapableMessageInterval,
		Flags:                         msg.Flags,
	}
	return m.send(target, tlv, nowNs)
}

func (m *SignalingSendMachine) send(target protocol.PortIdentity, tlv protocol.TLV, nowNs int64) error {
	s := &protocol.Signaling{}
	s.SdoIDAndMsgType = protocol.NewSdoIDAndMsgType(protocol.MessageSignaling, protocol.SdoIDDefault)
	s.Version = 2
	s.DomainNumber = m.DomainNumber
	s.SequenceID = m.sequenceID
	s.TargetPortIdentity = target
	s.TLVs = []protocol.TLV{tlv}

	b, err := protocol.Bytes(s)
	if err != nil {
		return err
	}
	if err := m.sender.Send(b, protocol.MessageSignaling, uint32(m.sequenceID), m.DomainNumber, nowNs); err != nil {
		return err
	}
	m.sequenceID++
	return nil
}
