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

package bmca

import (
	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/protocol"
)

// IntervalSettings is the per-port mutable state the three
// interval-setting machines of spec.md §4.5.6 share: the current and
// initial log-intervals for announce/sync/link-delay, plus the
// slowdown latches PortAnnounceTransmit/SyncSend read.
type IntervalSettings struct {
	AnnounceInterval        protocol.LogInterval
	InitialAnnounceInterval protocol.LogInterval
	SyncInterval            protocol.LogInterval
	InitialSyncInterval     protocol.LogInterval
	LinkDelayInterval       protocol.LogInterval
	InitialLinkDelayInterval protocol.LogInterval

	AnnounceSlowdown bool
	SyncSlowdown     bool
}

// NewIntervalSettings seeds current == initial for all three intervals.
func NewIntervalSettings(announce, sync, linkDelay protocol.LogInterval) *IntervalSettings {
	return &IntervalSettings{
		AnnounceInterval:         announce,
		InitialAnnounceInterval:  announce,
		SyncInterval:             sync,
		InitialSyncInterval:      sync,
		LinkDelayInterval:        linkDelay,
		InitialLinkDelayInterval: linkDelay,
	}
}

// ApplyIntervalRequest implements AnnounceIntervalSetting,
// SyncIntervalSetting, and LinkDelayIntervalSetting together: each of
// the three log-interval fields in an incoming MessageIntervalRequest
// TLV is handled identically per spec.md §4.5.6 — keep-current (-128),
// restore-initial (126), or set-and-derive, with slowdown armed when
// the new interval is shorter than the old.
func (s *IntervalSettings) ApplyIntervalRequest(req mdsm.IntervalRequest) {
	newAnnounce := resolveInterval(req.AnnounceInterval, s.AnnounceInterval, s.InitialAnnounceInterval)
	if newAnnounce < s.AnnounceInterval {
		s.AnnounceSlowdown = true
	}
	s.AnnounceInterval = newAnnounce

	newSync := resolveInterval(req.TimeSyncInterval, s.SyncInterval, s.InitialSyncInterval)
	if newSync < s.SyncInterval {
		s.SyncSlowdown = true
	}
	s.SyncInterval = newSync

	s.LinkDelayInterval = resolveInterval(req.LinkDelayInterval, s.LinkDelayInterval, s.InitialLinkDelayInterval)
}

func resolveInterval(requested, current, initial protocol.LogInterval) protocol.LogInterval {
	switch requested {
	case protocol.IntervalKeepCurrent:
		return current
	case protocol.IntervalSetInitial:
		return initial
	default:
		return requested
	}
}
