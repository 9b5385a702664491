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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/excelfore/gptp/bmca"
	"github.com/excelfore/gptp/domain"
	"github.com/excelfore/gptp/estimator"
	"github.com/excelfore/gptp/gptpipc"
	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/netport"
	"github.com/excelfore/gptp/protocol"
	"github.com/excelfore/gptp/stats"
)

func nowNs() int64 { return time.Now().UnixNano() }

// handleRecv decodes a RECV event's payload and routes it to the
// message-layer machine for its (portIndex, domainNumber) pairing,
// spec.md §5's RECV dispatch.
func (o *Orchestrator) handleRecv(ev netport.Event) {
	ps, ok := o.ports[ev.PortIndex]
	if !ok {
		return
	}
	now := nowNs()

	pkt, err := protocol.DecodePacket(ev.Payload)
	if err != nil {
		log.WithField("port", ev.PortIndex).Debugf("orchestrator: dropping unparseable RECV: %v", err)
		return
	}

	switch p := pkt.(type) {
	case *protocol.PDelayReq:
		o.bumpSystem(ev.PortIndex, func(c *stats.SystemCounters) { c.PdelayReqRec.Add(1) })
		ps.pdelayResp.RecvPdelayReq(p, ev.RxTimestamp, now)

	case *protocol.PDelayResp:
		o.bumpSystem(ev.PortIndex, func(c *stats.SystemCounters) { c.PdelayRespRec.Add(1) })
		ps.pdelayReq.RecvPdelayResp(p, ev.RxTimestamp)

	case *protocol.PDelayRespFollowUp:
		o.bumpSystem(ev.PortIndex, func(c *stats.SystemCounters) { c.PdelayRespFupRec.Add(1) })
		result, ok := ps.pdelayReq.RecvPdelayRespFollowUp(p)
		if !ok {
			return
		}
		o.bumpSystem(ev.PortIndex, func(c *stats.SystemCounters) { c.PdelayRespFupRecValid.Add(1) })
		o.handlePdelayResult(ps, result)

	case *protocol.SyncDelayReq:
		if p.MessageType() != protocol.MessageSync {
			return // DelayReq shares this wire shape but isn't used in the gPTP profile
		}
		pd, ok := ps.domains[ev.DomainNumber]
		if !ok {
			return
		}
		o.bumpTas(ev.DomainNumber, ev.PortIndex, func(c *stats.TasCounters) { c.SyncRec.Add(1) })
		pd.syncRecv.RecvSync(p, ev.RxTimestamp, now)

	case *protocol.FollowUp:
		pd, ok := ps.domains[ev.DomainNumber]
		if !ok {
			return
		}
		o.bumpTas(ev.DomainNumber, ev.PortIndex, func(c *stats.TasCounters) { c.SyncFupRec.Add(1) })
		rec, ok := pd.syncRecv.RecvFollowUp(p)
		if !ok {
			return
		}
		o.bumpTas(ev.DomainNumber, ev.PortIndex, func(c *stats.TasCounters) { c.SyncFupRecValid.Add(1) })
		o.handleSyncReceive(ps, pd, rec, now)

	case *protocol.Announce:
		pd, ok := ps.domains[ev.DomainNumber]
		if !ok {
			return
		}
		dom := o.domains[ev.DomainNumber]
		o.bumpTas(ev.DomainNumber, ev.PortIndex, func(c *stats.TasCounters) { c.AnnounceRec.Add(1) })
		msg := pd.announceRecv.Recv(p)
		vec, qualified := pd.bmcaPort.PortAnnounceReceive(msg, dom.cfg.ThisClockID)
		if !qualified {
			return
		}
		o.bumpTas(ev.DomainNumber, ev.PortIndex, func(c *stats.TasCounters) { c.AnnounceRecValid.Add(1) })
		if dom.cfg.ExternalPortConfiguration {
			pd.bmcaPort.RecvQualifiedAnnounceExt(vec)
		} else {
			pd.bmcaPort.RecvQualifiedAnnounce(vec, p.Header.LogMessageInterval, now)
		}

	case *protocol.Signaling:
		pd, ok := ps.domains[ev.DomainNumber]
		if !ok {
			return
		}
		o.bumpTas(ev.DomainNumber, ev.PortIndex, func(c *stats.TasCounters) { c.SignalRec.Add(1) })
		intervals, caps := pd.signalingRecv.Recv(p)
		for _, req := range intervals {
			o.bumpTas(ev.DomainNumber, ev.PortIndex, func(c *stats.TasCounters) { c.SignalMsgIntervalRec.Add(1) })
			pd.intervals.ApplyIntervalRequest(req)
		}
		for _, msg := range caps {
			o.bumpTas(ev.DomainNumber, ev.PortIndex, func(c *stats.TasCounters) { c.SignalGptpCapableRec.Add(1) })
			wasCapable := pd.gptpCapRx.NeighborGptpCapable
			pd.gptpCapRx.Recv(msg, now)
			o.noteAsCapableChange(ev.PortIndex, ev.DomainNumber, pd, ps, wasCapable)
		}
	}
}

func (o *Orchestrator) bumpSystem(portIndex int, f func(*stats.SystemCounters)) {
	if o.stats == nil {
		return
	}
	f(o.stats.System(portIndex))
}

func (o *Orchestrator) bumpTas(domainNumber uint8, portIndex int, f func(*stats.TasCounters)) {
	if o.stats == nil {
		return
	}
	f(o.stats.Tas(domainNumber, portIndex))
}

// noteAsCapableChange publishes a Notice when portIndex's AS-capable
// state flips, spec.md §6's PORT_AS_CAPABLE_DOWN/UP notice classes.
func (o *Orchestrator) noteAsCapableChange(portIndex int, domainNumber uint8, pd *portDomainState, ps *portState, was bool) {
	if o.bus == nil {
		return
	}
	now := o.asCapable(pd, ps)
	if now == was {
		return
	}
	flag := gptpipc.NoticeAsCapableUp
	if !now {
		flag = gptpipc.NoticeAsCapableDown
	}
	o.bus.Publish(gptpipc.Notice{EventFlags: flag, DomainNumber: int32(domainNumber), PortIndex: int32(portIndex)})
}

func (o *Orchestrator) handlePdelayResult(ps *portState, result mdsm.PdelayResult) {
	for _, pd := range ps.domains {
		pd.neighborPortIdentity.ClockIdentity = result.NeighborClockID
		pd.rateFilter.Sample(estimator.PdelaySample{T1: result.T1, T2: result.T2, T3: result.T3, T4: result.T4})
		pd.freqAdjust.Sample(estimator.PdelaySample{T1: result.T1, T2: result.T2, T3: result.T3, T4: result.T4})
	}
}

// handleSyncReceive folds a completed Sync/FollowUp pairing through
// PortSyncSyncReceive, relays it through SiteSyncSync if this port is
// the domain's current Slave, and broadcasts the result to every
// other port's SyncSend machine, spec.md §4.6.1.
func (o *Orchestrator) handleSyncReceive(ps *portState, pd *portDomainState, rec mdsm.MDSyncReceive, now int64) {
	dom, ok := o.domains[pd.domainNumber]
	if !ok {
		return
	}
	sync := pd.syncSyncRecv.Recv(rec, pd.rateFilter.Mrate(), now)

	slaveResult := dom.clockSlaveSync.Recv(sync, pd.rateFilter.Mrate())
	dom.clockMasterOffset.Update(slaveResult.SyncReceiptTimeNs, slaveResult.SyncReceiptLocalTimeNs)
	offset := slaveResult.SyncReceiptTimeNs - slaveResult.SyncReceiptLocalTimeNs
	pd.phaseCorrector.Sample(offset)

	relayed, ok := dom.siteSync.Relay(ps.index, sync)
	if !ok {
		return
	}
	o.broadcastSync(pd.domainNumber, ps.index, relayed, now)
}

// broadcastSync delivers a PortSyncSync to every other port's
// PortSyncSyncSend machine for domainNumber, spec.md §4.6.1's
// SiteSyncSync fan-out.
func (o *Orchestrator) broadcastSync(domainNumber uint8, sourcePort int, sync domain.PortSyncSync, now int64) {
	for idx, ps := range o.ports {
		if idx == sourcePort {
			continue
		}
		pd, ok := ps.domains[domainNumber]
		if !ok {
			continue
		}
		if err := pd.syncSyncSend.Recv(sync, true, now); err != nil {
			log.WithField("port", idx).Warnf("orchestrator: relaying sync: %v", err)
		}
	}
}

// handleTXTS completes a pending two-step exchange on its owning
// machine, keyed by messageType, spec.md §5's TXTS dispatch.
func (o *Orchestrator) handleTXTS(ev netport.Event) {
	ps, ok := o.ports[ev.PortIndex]
	if !ok {
		return
	}
	now := nowNs()

	switch ev.MessageType {
	case protocol.MessagePDelayReq:
		o.bumpSystem(ev.PortIndex, func(c *stats.SystemCounters) { c.PdelayReqSend.Add(1) })
		ps.pdelayReq.TXTS(ev.SequenceID, ev.TxTimestamp)
	case protocol.MessagePDelayResp:
		o.bumpSystem(ev.PortIndex, func(c *stats.SystemCounters) { c.PdelayRespSend.Add(1) })
		ps.pdelayResp.TXTS(ev.SequenceID, ev.TxTimestamp, ev.DomainNumber, ps.cmlds, now)
	case protocol.MessageSync:
		pd, ok := ps.domains[ev.DomainNumber]
		if !ok {
			return
		}
		o.bumpTas(ev.DomainNumber, ev.PortIndex, func(c *stats.TasCounters) { c.SyncSend.Add(1) })
		if err := pd.syncSend.TXTS(ev.SequenceID, ev.TxTimestamp, now); err != nil {
			log.WithField("port", ev.PortIndex).Warnf("orchestrator: sync TXTS: %v", err)
		}
	}
}

// handleTimeout fans TIMEOUT out to every machine that schedules
// itself off the wall clock: per-port Pdelay, per-(port,domain)
// message-layer timers, and per-domain BMCA/GmStable/grandmaster
// machines, spec.md §5's TIMEOUT dispatch.
func (o *Orchestrator) handleTimeout(_ netport.Event) {
	now := nowNs()

	for _, ps := range o.ports {
		ps.pdelayReq.Timeout(now)
	}

	for domainNumber, dom := range o.domains {
		externalPorts := map[int]*bmca.Port{}
		for idx, ps := range o.ports {
			pd, ok := ps.domains[domainNumber]
			if !ok {
				continue
			}
			gmPresent := dom.bmcaDomain.HaveGmPriority
			pd.bmcaPort.Timeout(now, gmPresent)
			pd.syncRecv.Timeout(now)
			pd.gptpCapRx.Timeout(now)
			_ = pd.gptpCapTx.Timeout(o.asCapable(pd, ps), now)
			if err := pd.syncSyncSend.Timeout(now); err != nil {
				log.WithField("port", idx).Warnf("orchestrator: sync send timeout: %v", err)
			}
			externalPorts[idx] = pd.bmcaPort
		}

		var selected bmca.SelectedStates
		if dom.cfg.ExternalPortConfiguration {
			selected = bmca.PortStateSettingExt(externalPorts, dom.configuredSlave)
		} else {
			selected = dom.bmcaDomain.PortStateSelection(externalPorts)
		}

		previousGm := dom.bmcaDomain.GmPriority.ClockIdentity
		dom.bmcaDomain.GmStableInitDone = o.gmStable.GmStable(domainNumber)
		o.gmStable.NoteGmChange(domainNumber, dom.bmcaDomain.GmPriority.ClockIdentity, now)
		o.gmStable.Timeout(domainNumber, now)
		if o.bus != nil && dom.bmcaDomain.GmPriority.ClockIdentity != previousGm {
			o.bus.Publish(gptpipc.Notice{
				EventFlags:   gptpipc.NoticeGmChange,
				DomainNumber: int32(domainNumber),
				GmPriority:   dom.bmcaDomain.GmPriority,
			})
		}

		for idx, ps := range o.ports {
			pd, ok := ps.domains[domainNumber]
			if !ok {
				continue
			}
			state := selected[idx]
			pd.lastSelectedState = state
			if err := pd.announceTx.Timeout(pd.bmcaPort, dom.bmcaDomain.GmPriority, dom.bmcaDomain.PathTrace, dom.cfg.TimeSource, now); err != nil && state == bmca.MasterPort {
				log.WithField("port", idx).Warnf("orchestrator: announce transmit: %v", err)
			}
		}

		if o.isGrandmaster(domainNumber, selected) {
			sync, isGm, err := dom.clockMasterSend.Timeout(true, now)
			if err != nil {
				log.WithField("domain", domainNumber).Warnf("orchestrator: clock master sync: %v", err)
			} else if isGm {
				o.broadcastSync(domainNumber, -1, sync, now)
			}
		} else {
			dom.clockMasterSend.Timeout(false, now)
		}
	}
}
