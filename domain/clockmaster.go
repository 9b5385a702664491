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
	"time"

	"github.com/excelfore/gptp/protocol"
)

// defaultClockMasterSyncInterval is spec.md §4.6.2's default 125 ms,
// 25 ms aligned tick.
const defaultClockMasterSyncInterval = 125 * time.Millisecond

// MasterClock is the subset of clockreg a grandmaster-side domain
// needs: reading the master oscillator and thisClock's local time on
// the same tick, spec.md §4.6.2's `gptpclock_apply_offset` reconciliation.
type MasterClock interface {
	MasterTimeNs() (int64, error)
	ThisClockTimeNs() (int64, error)
}

// ClockMasterSyncSend implements spec.md §4.6.2: when this node is
// grandmaster (selectedState[0] == Slave), ticks every
// clockMasterSyncInterval and produces the PortSyncSync SiteSyncSync
// relays to every port.
type ClockMasterSyncSend struct {
	DomainNumber uint8
	ThisClockID  protocol.ClockIdentity
	Interval     time.Duration

	clock MasterClock

	nextDeadline int64
}

// NewClockMasterSyncSend creates the grandmaster-side sync-send driver
// for one domain. Interval defaults to 125 ms when zero.
func NewClockMasterSyncSend(domainNumber uint8, thisClockID protocol.ClockIdentity, interval time.Duration, clock MasterClock) *ClockMasterSyncSend {
	if interval <= 0 {
		interval = defaultClockMasterSyncInterval
	}
	return &ClockMasterSyncSend{DomainNumber: domainNumber, ThisClockID: thisClockID, Interval: interval, clock: clock}
}

// Timeout produces a grandmaster PortSyncSync if due, or nothing
// (false) if this domain is not yet grandmaster or the tick hasn't
// elapsed.
func (s *ClockMasterSyncSend) Timeout(isGrandmaster bool, nowNs int64) (PortSyncSync, bool, error) {
	if !isGrandmaster {
		s.nextDeadline = 0
		return PortSyncSync{}, false, nil
	}
	if s.nextDeadline == 0 {
		s.nextDeadline = nowNs
	}
	if nowNs < s.nextDeadline {
		return PortSyncSync{}, false, nil
	}
	s.nextDeadline = nowNs + s.Interval.Nanoseconds()

	originNs, err := s.clock.MasterTimeNs()
	if err != nil {
		return PortSyncSync{}, false, err
	}
	upstreamNs, err := s.clock.ThisClockTimeNs()
	if err != nil {
		return PortSyncSync{}, false, err
	}

	return PortSyncSync{
		SourcePortIdentity:     protocol.PortIdentity{ClockIdentity: s.ThisClockID, PortNumber: 0},
		PreciseOriginTimestamp: originNs,
		UpstreamTxTime:         upstreamNs,
		RateRatio:              1.0,
		IsGrandmaster:          true,
	}, true, nil
}

// ClockMasterSyncReceive/Offset consume each ClockSlaveSync result (the
// receipt time pair computed on this tick) to derive the grandmaster's
// own source-clock phase/frequency offsets, feeding C7's rate/phase
// estimators. Kept together since spec.md describes them as a single
// consume-and-update step rather than distinct state machines.
type ClockMasterSyncOffset struct {
	ClockSourcePhaseOffset int64 // ns
	ClockSourceFreqOffset  float64

	prevReceiptTimeNs      int64
	prevReceiptLocalTimeNs int64
	havePrev               bool
}

// Update folds one (syncReceiptTime, syncReceiptLocalTime) sample into
// the tracked source-clock phase/frequency offsets: phase is their
// direct difference, frequency is the ratio of deltas since the
// previous sample.
func (o *ClockMasterSyncOffset) Update(syncReceiptTimeNs, syncReceiptLocalTimeNs int64) {
	o.ClockSourcePhaseOffset = syncReceiptTimeNs - syncReceiptLocalTimeNs
	if o.havePrev {
		dLocal := syncReceiptLocalTimeNs - o.prevReceiptLocalTimeNs
		if dLocal != 0 {
			o.ClockSourceFreqOffset = float64(syncReceiptTimeNs-o.prevReceiptTimeNs) / float64(dLocal)
		}
	}
	o.prevReceiptTimeNs = syncReceiptTimeNs
	o.prevReceiptLocalTimeNs = syncReceiptLocalTimeNs
	o.havePrev = true
}
