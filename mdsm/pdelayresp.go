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
	log "github.com/sirupsen/logrus"

	"github.com/excelfore/gptp/protocol"
)

// PdelayRespState is a state of the PdelayResp machine, spec.md §4.4.2.
type PdelayRespState int

// PdelayResp machine states.
const (
	PdelayRespNotEnabled PdelayRespState = iota
	PdelayRespInitialWaiting
	PdelayRespWaiting
	PdelayRespSentWaitingForTimestamp
)

// NonCMLDSState is the tri-state per-port latch spec.md §4.4.2 /
// SPEC_FULL.md §3 describes: the most recent PdelayReq's CMLDS-ness.
type NonCMLDSState int

// Values for NonCMLDSState: 0 is "never received one yet" (neither
// latch has fired), matching the original's receivedNonCMLDSPdelayReq
// being left at its zero value until the first PdelayReq arrives.
const (
	NonCMLDSUnknown NonCMLDSState = 0
	NonCMLDSLatched NonCMLDSState = 1
	CMLDSLatched    NonCMLDSState = -1
)

// PdelayRespConfig holds the per-port tunables this machine reads.
type PdelayRespConfig struct {
	LogMessageInterval protocol.LogInterval
}

// PdelayRespMachine implements spec.md §4.4.2.
type PdelayRespMachine struct {
	PortIndex int
	cfg       PdelayRespConfig
	sender    Sender
	injector  FaultInjector

	state PdelayRespState

	lastSequenceID      uint16
	haveLastSequenceID  bool
	pendingSequenceID   uint16
	pendingRequester    protocol.PortIdentity
	pendingT3SendTimeNs int64

	// ReceivedNonCMLDSPdelayReq is the mutually-exclusive latch
	// documented in spec.md §4.4.2.
	ReceivedNonCMLDSPdelayReq NonCMLDSState
}

// NewPdelayRespMachine creates a PdelayResp machine for one port.
func NewPdelayRespMachine(portIndex int, cfg PdelayRespConfig, sender Sender, injector FaultInjector) *PdelayRespMachine {
	return &PdelayRespMachine{PortIndex: portIndex, cfg: cfg, sender: sender, injector: injector, state: PdelayRespInitialWaiting}
}

// State returns the machine's current state.
func (m *PdelayRespMachine) State() PdelayRespState { return m.state }

// RecvPdelayReq processes an incoming PdelayReq, capturing t2 and
// emitting a PdelayResp immediately.
func (m *PdelayRespMachine) RecvPdelayReq(req *protocol.PDelayReq, rxTs int64, nowNs int64) {
	if m.haveLastSequenceID {
		delta := req.SequenceID - m.lastSequenceID
		if delta != 1 {
			log.WithField("port", m.PortIndex).Warnf("mdsm: PdelayReq sequence gap: last=%d got=%d", m.lastSequenceID, req.SequenceID)
		}
	}
	m.lastSequenceID = req.SequenceID
	m.haveLastSequenceID = true

	cmlds := protocol.IsCMLDSPdelay(&req.Header)
	if cmlds {
		m.ReceivedNonCMLDSPdelayReq = CMLDSLatched
	} else {
		m.ReceivedNonCMLDSPdelayReq = NonCMLDSLatched
	}

	if m.injector != nil && m.injector.DropPdelayResp(m.PortIndex, req.SequenceID) {
		return
	}

	resp := &protocol.PDelayResp{}
	resp.SdoIDAndMsgType = protocol.NewSdoIDAndMsgType(protocol.MessagePDelayResp, protocol.SdoIDForPdelay(cmlds))
	resp.Version = 2
	resp.DomainNumber = req.DomainNumber
	resp.SequenceID = req.SequenceID
	resp.LogMessageInterval = m.cfg.LogMessageInterval
	resp.RequestReceiptTimestamp = nsToTimestamp(rxTs)
	resp.RequestingPortIdentity = req.Header.SourcePortIdentity

	b, err := protocol.Bytes(resp)
	if err != nil {
		log.WithField("port", m.PortIndex).Warnf("mdsm: marshaling PdelayResp: %v", err)
		return
	}
	if err := m.sender.Send(b, protocol.MessagePDelayResp, uint32(req.SequenceID), req.DomainNumber, nowNs); err != nil {
		log.WithField("port", m.PortIndex).Warnf("mdsm: sending PdelayResp: %v", err)
		return
	}
	m.pendingSequenceID = req.SequenceID
	m.pendingRequester = req.Header.SourcePortIdentity
	m.state = PdelayRespSentWaitingForTimestamp
}

// TXTS feeds back our own PdelayResp transmit timestamp (t3), emitting
// the PdelayRespFollowUp.
func (m *PdelayRespMachine) TXTS(sequenceID uint32, ts int64, domainNumber uint8, cmlds bool, nowNs int64) {
	if m.state != PdelayRespSentWaitingForTimestamp || uint16(sequenceID) != m.pendingSequenceID {
		return
	}
	fup := &protocol.PDelayRespFollowUp{}
	fup.SdoIDAndMsgType = protocol.NewSdoIDAndMsgType(protocol.MessagePDelayRespFollowUp, protocol.SdoIDForPdelay(cmlds))
	fup.Version = 2
	fup.DomainNumber = domainNumber
	fup.SequenceID = m.pendingSequenceID
	fup.ResponseOriginTimestamp = nsToTimestamp(ts)
	fup.RequestingPortIdentity = m.pendingRequester

	b, err := protocol.Bytes(fup)
	if err != nil {
		log.WithField("port", m.PortIndex).Warnf("mdsm: marshaling PdelayRespFollowUp: %v", err)
		return
	}
	if err := m.sender.Send(b, protocol.MessagePDelayRespFollowUp, uint32(m.pendingSequenceID), domainNumber, nowNs); err != nil {
		log.WithField("port", m.PortIndex).Warnf("mdsm: sending PdelayRespFollowUp: %v", err)
		return
	}
	m.state = PdelayRespWaiting
}
