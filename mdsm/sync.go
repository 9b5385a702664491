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

	log "github.com/sirupsen/logrus"

	"github.com/excelfore/gptp/protocol"
)

// SyncReceiveState is a state of the SyncReceive machine, spec.md
// §4.4.3.
type SyncReceiveState int

// SyncReceive machine states.
const (
	SyncReceiveDiscard SyncReceiveState = iota
	SyncReceiveWaitingForFollowUp
	SyncReceiveWaitingForSync
)

// SyncReceiveConfig holds the tunables SyncReceive needs from the
// estimator/domain layers to compute upstreamTxTime.
type SyncReceiveConfig struct {
	NeighborPropDelay  int64   // ns
	NeighborRateRatio  float64
	DelayAsymmetry     int64 // ns
	FollowUpGraceFactor time.Duration
}

// SyncReceiveMachine implements spec.md §4.4.3.
type SyncReceiveMachine struct {
	PortIndex int
	cfg       SyncReceiveConfig

	state SyncReceiveState

	pendingSync     *protocol.SyncDelayReq
	pendingRxTs     int64
	followUpDeadline int64
}

// NewSyncReceiveMachine creates a SyncReceive machine for one port.
func NewSyncReceiveMachine(portIndex int, cfg SyncReceiveConfig) *SyncReceiveMachine {
	return &SyncReceiveMachine{PortIndex: portIndex, cfg: cfg, state: SyncReceiveDiscard}
}

// State returns the machine's current state.
func (m *SyncReceiveMachine) State() SyncReceiveState { return m.state }

// RecvSync caches an incoming two-step Sync and arms the FollowUp
// grace timer. A Sync arriving while already waiting for a FollowUp
// discards the stale pending Sync and restarts the wait.
func (m *SyncReceiveMachine) RecvSync(sync *protocol.SyncDelayReq, rxTs int64, nowNs int64) {
	if m.state == SyncReceiveWaitingForFollowUp {
		log.WithField("port", m.PortIndex).Warn("mdsm: new Sync arrived before FollowUp, discarding pending Sync")
	}
	m.pendingSync = sync
	m.pendingRxTs = rxTs
	grace := sync.LogMessageInterval.Duration()
	if m.cfg.FollowUpGraceFactor > 0 {
		grace = time.Duration(float64(grace) * float64(m.cfg.FollowUpGraceFactor) / float64(time.Second))
	}
	m.followUpDeadline = nowNs + grace.Nanoseconds()
	m.state = SyncReceiveWaitingForFollowUp
}

// Timeout returns the machine to DISCARD if the FollowUp grace period
// has elapsed without a match.
func (m *SyncReceiveMachine) Timeout(nowNs int64) {
	if m.state != SyncReceiveWaitingForFollowUp {
		return
	}
	if nowNs < m.followUpDeadline {
		return
	}
	m.pendingSync = nil
	m.state = SyncReceiveDiscard
}

// RecvFollowUp pairs an incoming FollowUp with the cached Sync and, on
// a sequence-id match, emits an MDSyncReceive record.
func (m *SyncReceiveMachine) RecvFollowUp(fup *protocol.FollowUp) (MDSyncReceive, bool) {
	if m.state != SyncReceiveWaitingForFollowUp || m.pendingSync == nil {
		return MDSyncReceive{}, false
	}
	if fup.SequenceID != m.pendingSync.SequenceID {
		return MDSyncReceive{}, false
	}

	var fupTLV *protocol.FollowUpInformationTLV
	for _, t := range fup.TLVs {
		if tlv, ok := t.(*protocol.FollowUpInformationTLV); ok {
			fupTLV = tlv
			break
		}
	}

	followUpCF := m.pendingSync.CorrectionField.Nanoseconds() + fup.CorrectionField.Nanoseconds()
	rateRatio := 1.0
	gmTimeBaseIndicator := uint16(0)
	var lastGmPhaseChange protocol.ScaledNs
	lastGmFreqChange := 0.0
	if fupTLV != nil {
		rateRatio = fupTLV.RateRatio()
		gmTimeBaseIndicator = fupTLV.GMTimeBaseIndicator
		lastGmPhaseChange = fupTLV.LastGMPhaseChange
		lastGmFreqChange = float64(fupTLV.ScaledLastGMFreqChange) / (1 << 41)
	}

	upstreamTxTime := m.pendingRxTs
	if m.cfg.NeighborRateRatio != 0 {
		upstreamTxTime -= int64(float64(m.cfg.NeighborPropDelay) / m.cfg.NeighborRateRatio)
	}
	if rateRatio != 0 {
		upstreamTxTime -= int64(float64(m.cfg.DelayAsymmetry) / rateRatio)
	}

	rec := MDSyncReceive{
		PortIndex:               m.PortIndex,
		SourcePortIdentity:      fup.Header.SourcePortIdentity,
		PreciseOriginTimestamp:  fup.PreciseOriginTimestamp.Time().UnixNano(),
		FollowUpCorrectionField: followUpCF,
		RateRatio:               rateRatio,
		GmTimeBaseIndicator:     gmTimeBaseIndicator,
		LastGmPhaseChange:       lastGmPhaseChange,
		LastGmFreqChange:        lastGmFreqChange,
		LogMessageInterval:      fup.LogMessageInterval,
		DomainNumber:            fup.DomainNumber,
		UpstreamTxTime:          upstreamTxTime,
	}
	m.pendingSync = nil
	m.state = SyncReceiveWaitingForSync
	return rec, true
}

// SyncSendState is a state of the SyncSend machine, spec.md §4.4.4.
type SyncSendState int

// SyncSend machine states.
const (
	SyncSendInitializing SyncSendState = iota
	SyncSendTwoStep
	SyncSendFollowUp
	SyncSendOneStep
	SyncSendSetCorrectionField
)

// SyncSendMachine implements spec.md §4.4.4.
type SyncSendMachine struct {
	PortIndex    int
	DomainNumber uint8
	sender       Sender

	state      SyncSendState
	syncSequenceID uint16

	pending         *MDSyncSend
	pendingSyncTxNs int64
}

// NewSyncSendMachine creates a SyncSend machine for one port.
func NewSyncSendMachine(portIndex int, domainNumber uint8, sender Sender) *SyncSendMachine {
	return &SyncSendMachine{PortIndex: portIndex, DomainNumber: domainNumber, sender: sender, state: SyncSendInitializing}
}

// State returns the machine's current state.
func (m *SyncSendMachine) State() SyncSendState { return m.state }

// RecvMDSyncSend accepts a PortSyncSync-derived send request from C6
// and transmits a two-step Sync.
func (m *SyncSendMachine) RecvMDSyncSend(req MDSyncSend, nowNs int64) error {
	sync := &protocol.SyncDelayReq{}
	sync.SdoIDAndMsgType = protocol.NewSdoIDAndMsgType(protocol.MessageSync, protocol.SdoIDDefault)
	sync.Version = 2
	sync.DomainNumber = m.DomainNumber
	sync.SequenceID = m.syncSequenceID
	sync.FlagField = 0x0200 // twoStepFlag, Table 37 bit 1 of octet 0

	b, err := protocol.Bytes(sync)
	if err != nil {
		return err
	}
	if err := m.sender.Send(b, protocol.MessageSync, uint32(m.syncSequenceID), m.DomainNumber, nowNs); err != nil {
		m.state = SyncSendTwoStep // retry with the same sequence id next attempt
		return err
	}
	m.pending = &req
	m.state = SyncSendFollowUp
	return nil
}

// TXTS completes the two-step exchange: captures t_sync_tx and emits
// the paired FollowUp.
func (m *SyncSendMachine) TXTS(sequenceID uint32, txTs int64, nowNs int64) error {
	if m.state != SyncSendFollowUp || uint16(sequenceID) != m.syncSequenceID || m.pending == nil {
		return nil
	}
	req := m.pending
	m.pendingSyncTxNs = txTs

	fup := &protocol.FollowUp{}
	fup.SdoIDAndMsgType = protocol.NewSdoIDAndMsgType(protocol.MessageFollowUp, protocol.SdoIDDefault)
	fup.Version = 2
	fup.DomainNumber = m.DomainNumber
	fup.SequenceID = m.syncSequenceID

	var correctionNs float64
	var originNs int64
	if req.IsGrandmaster {
		correctionNs = 0
		originNs = txTs
	} else {
		correctionNs = req.FollowUpCorrectionField + req.RateRatio*float64(txTs-req.UpstreamTxTime)
		originNs = req.PreciseOriginTimestamp
	}
	fup.CorrectionField = protocol.NewCorrection(correctionNs)
	fup.PreciseOriginTimestamp = nsToTimestamp(originNs)

	infoTLV := &protocol.FollowUpInformationTLV{
		GMTimeBaseIndicator:    req.GmTimeBaseIndicator,
		LastGMPhaseChange:      req.LastGmPhaseChange,
		ScaledLastGMFreqChange: int32(req.LastGmFreqChange * float64(int64(1)<<41)),
	}
	infoTLV.SetRateRatio(req.RateRatio)
	fup.TLVs = []protocol.TLV{infoTLV}

	b, err := protocol.Bytes(fup)
	if err != nil {
		return err
	}
	if err := m.sender.Send(b, protocol.MessageFollowUp, uint32(m.syncSequenceID), m.DomainNumber, nowNs); err != nil {
		return err
	}
	m.syncSequenceID++
	m.pending = nil
	m.state = SyncSendTwoStep
	return nil
}
