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

// PdelayReqState is a state of the PdelayReq machine, spec.md §4.4.1.
type PdelayReqState int

// PdelayReq machine states.
const (
	PdelayReqNotEnabled PdelayReqState = iota
	PdelayReqInitialSend
	PdelayReqReset
	PdelayReqSend
	PdelayReqWaitingForResp
	PdelayReqWaitingForRespFollowUp
	PdelayReqWaitingForInterval
)

// PdelayReqConfig holds the per-port tunables this machine reads.
type PdelayReqConfig struct {
	DomainNumber          uint8
	CMLDS                 bool
	ThisClockID           protocol.ClockIdentity
	NeighborPropDelayThresh int64 // ns
	AllowedLostResponses  int
	AllowedFaults         int
	LogPdelayReqInterval  protocol.LogInterval
}

// PdelayReqMachine implements spec.md §4.4.1.
type PdelayReqMachine struct {
	PortIndex int
	cfg       PdelayReqConfig
	sender    Sender
	clock     Clock

	state PdelayReqState

	sequenceID uint16

	t1 int64
	t2 int64
	t3 int64
	t4 int64

	haveT1, haveT2, haveT3, haveT4 bool
	respSourcePortIdentity         protocol.PortIdentity
	respFollowUpSourcePortIdentity protocol.PortIdentity

	lostResponses   int
	detectedFaults  int
	asCapable       bool
	isMeasuringDelay bool

	nextDeadline int64 // ns, absolute
}

// NewPdelayReqMachine creates a PdelayReq machine for one port.
func NewPdelayReqMachine(portIndex int, cfg PdelayReqConfig, sender Sender, clock Clock) *PdelayReqMachine {
	return &PdelayReqMachine{PortIndex: portIndex, cfg: cfg, sender: sender, clock: clock, state: PdelayReqInitialSend}
}

// State returns the machine's current state.
func (m *PdelayReqMachine) State() PdelayReqState { return m.state }

// AsCapable reports whether this port currently qualifies as
// AS-capable per the most recent Pdelay exchange.
func (m *PdelayReqMachine) AsCapable() bool { return m.asCapable }

// Enable (re)arms periodic PdelayReq transmission.
func (m *PdelayReqMachine) Enable() {
	if m.state == PdelayReqNotEnabled {
		m.state = PdelayReqInitialSend
	}
}

// Disable tears the machine down, clearing asCapable.
func (m *PdelayReqMachine) Disable() {
	m.state = PdelayReqNotEnabled
	m.asCapable = false
	m.isMeasuringDelay = false
}

func (m *PdelayReqMachine) resetExchange() {
	m.haveT1, m.haveT2, m.haveT3, m.haveT4 = false, false, false, false
}

// Timeout drives the periodic-send and TXTS-retry logic on every
// TIMEOUT event.
func (m *PdelayReqMachine) Timeout(nowNs int64) {
	switch m.state {
	case PdelayReqNotEnabled:
		return
	case PdelayReqInitialSend, PdelayReqSend, PdelayReqWaitingForInterval:
		if nowNs < m.nextDeadline {
			return
		}
		m.sendRequest(nowNs)
	case PdelayReqWaitingForResp, PdelayReqWaitingForRespFollowUp:
		if nowNs < m.nextDeadline {
			return
		}
		// no valid Resp pair arrived within the interval: count a loss
		// and go around again with a fresh sequence id.
		m.lostResponses++
		if m.lostResponses > m.cfg.AllowedLostResponses {
			m.state = PdelayReqReset
			m.asCapable = false
			m.lostResponses = 0
		}
		m.sequenceID++
		m.sendRequest(nowNs)
	case PdelayReqReset:
		m.resetExchange()
		m.state = PdelayReqInitialSend
		m.sendRequest(nowNs)
	}
}

func (m *PdelayReqMachine) sendRequest(nowNs int64) {
	m.resetExchange()
	req := &protocol.PDelayReq{}
	req.SdoIDAndMsgType = protocol.NewSdoIDAndMsgType(protocol.MessagePDelayReq, protocol.SdoIDForPdelay(m.cfg.CMLDS))
	req.Version = 2
	req.DomainNumber = m.cfg.DomainNumber
	req.SequenceID = m.sequenceID
	req.LogMessageInterval = m.cfg.LogPdelayReqInterval
	b, err := protocol.Bytes(req)
	if err != nil {
		log.WithField("port", m.PortIndex).Warnf("mdsm: marshaling PdelayReq: %v", err)
		return
	}
	if err := m.sender.Send(b, protocol.MessagePDelayReq, uint32(m.sequenceID), m.cfg.DomainNumber, nowNs); err != nil {
		log.WithField("port", m.PortIndex).Warnf("mdsm: sending PdelayReq: %v", err)
		// resend with the same sequence id next tick
		m.state = PdelayReqSend
		m.nextDeadline = nowNs + m.cfg.LogPdelayReqInterval.Duration().Nanoseconds()
		return
	}
	m.state = PdelayReqWaitingForResp
	m.nextDeadline = nowNs + m.cfg.LogPdelayReqInterval.Duration().Nanoseconds()
}

// TXTS feeds back our own PdelayReq transmit timestamp.
func (m *PdelayReqMachine) TXTS(sequenceID uint32, ts int64) {
	if uint16(sequenceID) != m.sequenceID {
		return
	}
	m.t1 = ts
	m.haveT1 = true
}

// RecvPdelayResp processes an incoming PdelayResp.
func (m *PdelayReqMachine) RecvPdelayResp(resp *protocol.PDelayResp, rxTs int64) {
	if m.state != PdelayReqWaitingForResp && m.state != PdelayReqWaitingForRespFollowUp {
		return
	}
	if resp.SequenceID < m.sequenceID {
		return // stale, lower sequence id than our current request
	}
	m.t2 = resp.RequestReceiptTimestamp.Time().UnixNano()
	m.t4 = rxTs
	m.respSourcePortIdentity = resp.Header.SourcePortIdentity
	m.haveT2, m.haveT4 = true, true
	m.state = PdelayReqWaitingForRespFollowUp
}

// RecvPdelayRespFollowUp processes an incoming PdelayRespFollowUp and,
// if the exchange is complete, qualifies it into a PdelayResult.
func (m *PdelayReqMachine) RecvPdelayRespFollowUp(fup *protocol.PDelayRespFollowUp) (PdelayResult, bool) {
	if m.state != PdelayReqWaitingForRespFollowUp {
		return PdelayResult{}, false
	}
	if fup.SequenceID != m.sequenceID {
		return PdelayResult{}, false // discard silently, keep waiting
	}
	if fup.Header.SourcePortIdentity != m.respSourcePortIdentity {
		return PdelayResult{}, false // duplicate responder, keep waiting
	}
	m.t3 = fup.ResponseOriginTimestamp.Time().UnixNano()
	m.haveT3 = true

	if !(m.haveT1 && m.haveT2 && m.haveT3 && m.haveT4) {
		return PdelayResult{}, false
	}

	raw := ((m.t4 - m.t1) - (m.t3 - m.t2)) / 2
	propTime, inRange := clampPropTime(raw)
	if !inRange {
		log.WithField("port", m.PortIndex).Warnf("mdsm: propTime %dns out of range, clamping to 0", raw)
	}

	selfPdelay := m.respSourcePortIdentity.ClockIdentity == m.cfg.ThisClockID
	asCapable := inRange &&
		propTime <= m.cfg.NeighborPropDelayThresh &&
		!selfPdelay

	result := PdelayResult{
		PortIndex:       m.PortIndex,
		PropTime:        propTime,
		T1:              m.t1,
		T2:              m.t2,
		T3:              m.t3,
		T4:              m.t4,
		AsCapable:       asCapable,
		NeighborClockID: m.respSourcePortIdentity.ClockIdentity,
	}

	if asCapable {
		m.asCapable = true
		m.isMeasuringDelay = true
		m.detectedFaults = 0
	} else {
		m.detectedFaults++
		if m.detectedFaults > m.cfg.AllowedFaults {
			m.asCapable = false
			m.isMeasuringDelay = false
		}
	}

	m.lostResponses = 0
	m.sequenceID++
	m.state = PdelayReqWaitingForInterval
	m.nextDeadline = m.t4 + m.cfg.LogPdelayReqInterval.Duration().Nanoseconds()
	return result, true
}
