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

package orchestrator

import (
	"github.com/excelfore/gptp/bmca"
	"github.com/excelfore/gptp/clockreg"
	"github.com/excelfore/gptp/domain"
	"github.com/excelfore/gptp/estimator"
	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/protocol"
)

// portDomainState bundles the state spec.md §3 calls "per (domain,
// port)": one BMCA Port, the message-layer Sync/Announce/Signaling
// machines for that pairing, the interval-setting latches, and the
// C6/C7 machines that turn this port's Sync stream into clock
// corrections when it is the domain's Slave port.
type portDomainState struct {
	portIndex    int
	domainNumber uint8

	bmcaPort          *bmca.Port
	lastSelectedState bmca.SelectedState
	announceSend      *mdsm.AnnounceSendMachine
	announceRecv      *mdsm.AnnounceReceiveMachine
	announceTx        *bmca.PortAnnounceTransmit

	syncSend *mdsm.SyncSendMachine
	syncRecv *mdsm.SyncReceiveMachine

	signalingSend *mdsm.SignalingSendMachine
	signalingRecv *mdsm.SignalingReceiveMachine

	intervals *bmca.IntervalSettings
	oneStep   *bmca.OneStepTxOperSetting

	gptpCapTx *bmca.GPtpCapableTransmit
	gptpCapRx *bmca.GPtpCapableReceive

	syncSyncRecv *domain.PortSyncSyncReceive
	syncSyncSend *domain.PortSyncSyncSend

	rateFilter     *estimator.NeighborRateRatio
	freqAdjust     *estimator.FreqAdjust
	phaseCorrector *estimator.PhaseCorrector

	neighborPortIdentity protocol.PortIdentity
}

func newPortDomainState(portIndex int, cfg DomainConfig, sender mdsm.Sender, registry *clockreg.Registry, thisClockIndex int) *portDomainState {
	bmcaPort := bmca.NewPort(portIndex, cfg.LogAnnounceInterval)
	announceSend := mdsm.NewAnnounceSendMachine(portIndex, cfg.DomainNumber, sender)
	announceRecv := mdsm.NewAnnounceReceiveMachine(portIndex)
	announceTx := bmca.NewPortAnnounceTransmit(portIndex, announceSend)

	syncSend := mdsm.NewSyncSendMachine(portIndex, cfg.DomainNumber, sender)
	syncRecv := mdsm.NewSyncReceiveMachine(portIndex, mdsm.SyncReceiveConfig{})

	signalingSend := mdsm.NewSignalingSendMachine(portIndex, cfg.DomainNumber, sender)
	signalingRecv := mdsm.NewSignalingReceiveMachine(portIndex)

	intervals := bmca.NewIntervalSettings(cfg.LogAnnounceInterval, cfg.LogSyncInterval, cfg.LogLinkDelayInterval)
	oneStep := bmca.NewOneStepTxOperSetting(portIndex, bmca.TwoStep)

	gptpCapTx := bmca.NewGPtpCapableTransmit(portIndex, cfg.LogGptpCapableInterval, signalingSend, protocol.DefaultTargetPortIdentity)
	gptpCapRx := bmca.NewGPtpCapableReceive(portIndex)

	syncSyncRecv := domain.NewPortSyncSyncReceive(portIndex)
	syncSyncSend := domain.NewPortSyncSyncSend(portIndex, cfg.DomainNumber, cfg.LogSyncInterval, syncSend)

	rateFilter := estimator.NewNeighborRateRatio()
	freqAdjust := estimator.NewFreqAdjust(thisClockIndex, cfg.DomainNumber, registry, rateFilter)
	phaseCorrector := estimator.NewPhaseCorrector(thisClockIndex, cfg.DomainNumber, registry)

	return &portDomainState{
		portIndex:      portIndex,
		domainNumber:   cfg.DomainNumber,
		bmcaPort:       bmcaPort,
		announceSend:   announceSend,
		announceRecv:   announceRecv,
		announceTx:     announceTx,
		syncSend:       syncSend,
		syncRecv:       syncRecv,
		signalingSend:  signalingSend,
		signalingRecv:  signalingRecv,
		intervals:      intervals,
		oneStep:        oneStep,
		gptpCapTx:      gptpCapTx,
		gptpCapRx:      gptpCapRx,
		syncSyncRecv:   syncSyncRecv,
		syncSyncSend:   syncSyncSend,
		rateFilter:     rateFilter,
		freqAdjust:     freqAdjust,
		phaseCorrector: phaseCorrector,
	}
}
