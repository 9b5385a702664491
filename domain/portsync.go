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

package domain

import (
	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/protocol"
)

// syncReceiptTimeoutMultiplier is the default syncReceiptTimeout
// multiplier spec.md §4.6.1 applies to LOG_TO_NSEC(logMessageInterval).
const syncReceiptTimeoutMultiplier = 3

// PortSyncSyncReceive implements spec.md §4.6.1 step 1: converts an
// MDSyncReceive from mdsm's SyncReceive machine on port P into a
// PortSyncSync, folding in this port's neighborRateRatio, and arms the
// per-port syncReceiptTimeoutTime.
type PortSyncSyncReceive struct {
	PortIndex int

	SyncReceiptTimeoutTime int64 // ns, absolute
}

// NewPortSyncSyncReceive creates a PortSyncSyncReceive machine for one port.
func NewPortSyncSyncReceive(portIndex int) *PortSyncSyncReceive {
	return &PortSyncSyncReceive{PortIndex: portIndex}
}

// Recv produces the outgoing PortSyncSync and arms the receipt timeout.
func (m *PortSyncSyncReceive) Recv(rec mdsm.MDSyncReceive, neighborRateRatio float64, nowNs int64) PortSyncSync {
	m.SyncReceiptTimeoutTime = nowNs + syncReceiptTimeoutMultiplier*rec.LogMessageInterval.Duration().Nanoseconds()
	return PortSyncSync{
		SourcePortIdentity:      rec.SourcePortIdentity,
		PreciseOriginTimestamp:  rec.PreciseOriginTimestamp,
		UpstreamTxTime:          rec.UpstreamTxTime,
		FollowUpCorrectionField: rec.FollowUpCorrectionField,
		RateRatio:               rec.RateRatio + (neighborRateRatio - 1),
		GmTimeBaseIndicator:     rec.GmTimeBaseIndicator,
		LastGmPhaseChange:       rec.LastGmPhaseChange,
		LastGmFreqChange:        rec.LastGmFreqChange,
		LogSyncInterval:         rec.LogMessageInterval,
	}
}

// SiteSyncSync implements spec.md §4.6.1 step 2: a single per-domain
// relay that only accepts a PortSyncSync from the port currently
// selected as Slave (or a configured test port), tracks
// parentLogSyncInterval, and broadcasts to every other port's
// PortSyncSyncSend.
type SiteSyncSync struct {
	DomainNumber uint8

	SlavePortIndex        int
	ParentLogSyncInterval protocol.LogInterval
}

// NewSiteSyncSync creates the SiteSyncSync relay for one domain.
func NewSiteSyncSync(domainNumber uint8) *SiteSyncSync {
	return &SiteSyncSync{DomainNumber: domainNumber, SlavePortIndex: -1}
}

// SetSlavePort updates which port SiteSyncSync accepts PortSyncSync
// from, following PortStateSelection's current Slave-port choice (or a
// configured test port override).
func (s *SiteSyncSync) SetSlavePort(portIndex int) {
	s.SlavePortIndex = portIndex
}

// Relay accepts a PortSyncSync from sourcePortIndex and, if it
// originates from the selected Slave port, records
// parentLogSyncInterval and returns the message to broadcast plus
// true; otherwise it is discarded.
func (s *SiteSyncSync) Relay(sourcePortIndex int, sync PortSyncSync) (PortSyncSync, bool) {
	if sourcePortIndex != s.SlavePortIndex {
		return PortSyncSync{}, false
	}
	s.ParentLogSyncInterval = sync.LogSyncInterval
	return sync, true
}

// PortSyncSyncSend implements spec.md §4.6.1 step 3: on a Master port
// Q != P, converts a broadcast PortSyncSync into an MDSyncSend and
// hands it to the port's SyncSend machine. When syncLocked (parent and
// child intervals match) it sends immediately on arrival; otherwise it
// waits for its own syncInterval tick.
type PortSyncSyncSend struct {
	PortIndex    int
	DomainNumber uint8
	SyncInterval protocol.LogInterval
	sender       SyncSender

	pending      *PortSyncSync
	nextDeadline int64
}

// SyncSender is the subset of *mdsm.SyncSendMachine PortSyncSyncSend needs.
type SyncSender interface {
	RecvMDSyncSend(req mdsm.MDSyncSend, nowNs int64) error
}

// NewPortSyncSyncSend creates a PortSyncSyncSend machine for one port.
func NewPortSyncSyncSend(portIndex int, domainNumber uint8, syncInterval protocol.LogInterval, sender SyncSender) *PortSyncSyncSend {
	return &PortSyncSyncSend{PortIndex: portIndex, DomainNumber: domainNumber, SyncInterval: syncInterval, sender: sender}
}

// Recv caches an incoming broadcast PortSyncSync and, if syncLocked,
// sends immediately.
func (p *PortSyncSyncSend) Recv(sync PortSyncSync, syncLocked bool, nowNs int64) error {
	p.pending = &sync
	if syncLocked {
		return p.flush(nowNs)
	}
	if p.nextDeadline == 0 {
		p.nextDeadline = nowNs + p.SyncInterval.Duration().Nanoseconds()
	}
	return nil
}

// Timeout flushes a pending PortSyncSync once this port's own
// syncInterval elapses, for the non-locked case.
func (p *PortSyncSyncSend) Timeout(nowNs int64) error {
	if p.pending == nil {
		return nil
	}
	if p.nextDeadline == 0 {
		p.nextDeadline = nowNs
	}
	if nowNs < p.nextDeadline {
		return nil
	}
	return p.flush(nowNs)
}

func (p *PortSyncSyncSend) flush(nowNs int64) error {
	sync := p.pending
	p.pending = nil
	p.nextDeadline = nowNs + p.SyncInterval.Duration().Nanoseconds()
	return p.sender.RecvMDSyncSend(mdsm.MDSyncSend{
		DomainNumber:            p.DomainNumber,
		IsGrandmaster:           sync.IsGrandmaster,
		PreciseOriginTimestamp:  sync.PreciseOriginTimestamp,
		UpstreamTxTime:          sync.UpstreamTxTime,
		FollowUpCorrectionField: sync.FollowUpCorrectionField,
		RateRatio:               sync.RateRatio,
		GmTimeBaseIndicator:     sync.GmTimeBaseIndicator,
		LastGmPhaseChange:       sync.LastGmPhaseChange,
		LastGmFreqChange:        sync.LastGmFreqChange,
	}, nowNs)
}
