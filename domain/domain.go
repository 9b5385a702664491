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

// Package domain implements the per-domain synchronization machines of
// spec.md §4.6: PortSyncSyncReceive/Send, SiteSyncSync, the
// grandmaster-side ClockMasterSync machines, ClockSlaveSync, and
// GmStable. These consume the records mdsm (C4) and bmca (C5) produce
// per port and propagate a single selected time base across every
// other port in the domain.
package domain

import (
	"github.com/excelfore/gptp/protocol"
)

// PortSyncSync is the domain-internal message SiteSyncSync fans out to
// every port's PortSyncSyncSend, spec.md §4.6.1.
type PortSyncSync struct {
	SourcePortIdentity      protocol.PortIdentity
	PreciseOriginTimestamp  int64 // ns
	UpstreamTxTime          int64 // ns
	FollowUpCorrectionField float64
	RateRatio               float64
	GmTimeBaseIndicator     uint16
	LastGmPhaseChange       protocol.ScaledNs
	LastGmFreqChange        float64
	LogSyncInterval         protocol.LogInterval
	IsGrandmaster           bool
}
