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

// Package mdsm implements the per-port Media-Dependent state machines
// (MDSM, spec.md §4.4): PdelayReq/PdelayResp path-delay measurement,
// Sync send/receive, and Announce/Signaling send/receive. Each machine
// consumes netport.Event values for its port and produces either wire
// messages (sent back out through a Sender) or records handed to the
// per-domain machines in package domain.
package mdsm

import (
	"time"

	"github.com/excelfore/gptp/protocol"
)

// Sender is the subset of netport.Port/Manager a machine needs to
// transmit a gPTP message and schedule an earlier wake-up.
type Sender interface {
	Send(payload []byte, messageType protocol.MessageType, sequenceID uint32, domainNumber uint8, nowLocalNs int64) error
	ExtraTimeout(delta time.Duration)
}

// Clock is the subset of clockreg a machine needs: the local-clock
// read used to stamp deadlines and derive upstreamTxTime.
type Clock interface {
	NowNs() int64
}

// FaultInjector lets tests force MDSM machines into abnormal behavior
// (spec.md §7(e) / SPEC_FULL.md §3's md_abnormal_hooks.c), without
// cmd/gptp2d ever wiring one in production.
type FaultInjector interface {
	// DropPdelayResp reports whether an outgoing PdelayResp for
	// sequenceID should be suppressed, to exercise PdelayReq's
	// lost-response accounting.
	DropPdelayResp(portIndex int, sequenceID uint16) bool
	// CorruptNeighborRateRatio reports an override rate ratio (and
	// whether to apply it) to exercise C7's IIR filter edge cases.
	CorruptNeighborRateRatio(portIndex int) (ratio float64, ok bool)
}

// MDSyncReceive is the record SyncReceive hands to PortSyncSyncReceive
// (C6) on a successful two-step Sync/FollowUp pairing, spec.md §4.4.3.
type MDSyncReceive struct {
	PortIndex              int
	SourcePortIdentity     protocol.PortIdentity
	PreciseOriginTimestamp int64 // ns
	FollowUpCorrectionField float64 // ns
	RateRatio              float64
	GmTimeBaseIndicator    uint16
	LastGmPhaseChange      protocol.ScaledNs
	LastGmFreqChange       float64
	LogMessageInterval     protocol.LogInterval
	DomainNumber           uint8
	UpstreamTxTime         int64 // ns
}

// MDSyncSend is the record SiteSyncSync/PortSyncSyncSend (C6) hands
// down to a port's SyncSend machine, spec.md §4.4.4/§4.6.1.
type MDSyncSend struct {
	DomainNumber           uint8
	IsGrandmaster          bool
	PreciseOriginTimestamp int64
	UpstreamTxTime         int64
	FollowUpCorrectionField float64
	RateRatio              float64
	GmTimeBaseIndicator    uint16
	LastGmPhaseChange      protocol.ScaledNs
	LastGmFreqChange       float64
}

// PdelayResult is what the PdelayReq machine hands to the estimator
// (C7) and BMCA globals on a qualified exchange, spec.md §4.4.1.
type PdelayResult struct {
	PortIndex           int
	PropTime            int64 // ns; 0 when the raw value is outside [0, 10ms]
	T1, T2, T3, T4      int64
	AsCapable           bool
	NeighborClockID     protocol.ClockIdentity
}

func clampPropTime(ns int64) (int64, bool) {
	const maxPropTime = 10 * int64(time.Millisecond)
	if ns < 0 || ns > maxPropTime {
		return 0, false
	}
	return ns, true
}
