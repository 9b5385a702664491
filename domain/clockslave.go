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
	"github.com/excelfore/gptp/protocol"
)

// SlaveSyncResult is what ClockSlaveSync hands to the orchestrator,
// which feeds it to C7 to compute a clock correction, spec.md §4.6.3.
type SlaveSyncResult struct {
	SyncReceiptTimeNs      int64
	SyncReceiptLocalTimeNs int64
	GmTimeBaseIndicator    uint16
	LastGmPhaseChange      protocol.ScaledNs
	LastGmFreqChange       float64
}

// ClockSlaveSync implements spec.md §4.6.3: consumes the PortSyncSync
// SiteSyncSync relays and computes the synchronized local time.
type ClockSlaveSync struct {
	DomainNumber      int
	NeighborPropDelay int64 // ns
	DelayAsymmetry    int64 // ns
}

// Recv computes syncReceiptTime/syncReceiptLocalTime from sync per the
// formulas:
//
//	syncReceiptTime      = preciseOriginTimestamp + followUpCorrectionField
//	                       + neighborPropDelay*(rateRatio/neighborRateRatio) + delayAsymmetry
//	syncReceiptLocalTime = upstreamTxTime + neighborPropDelay/neighborRateRatio + delayAsymmetry/rateRatio
func (c *ClockSlaveSync) Recv(sync PortSyncSync, neighborRateRatio float64) SlaveSyncResult {
	rateRatio := sync.RateRatio
	if rateRatio == 0 {
		rateRatio = 1
	}
	if neighborRateRatio == 0 {
		neighborRateRatio = 1
	}

	receiptTime := sync.PreciseOriginTimestamp +
		int64(sync.FollowUpCorrectionField) +
		int64(float64(c.NeighborPropDelay)*(rateRatio/neighborRateRatio)) +
		c.DelayAsymmetry

	receiptLocalTime := sync.UpstreamTxTime +
		int64(float64(c.NeighborPropDelay)/neighborRateRatio) +
		int64(float64(c.DelayAsymmetry)/rateRatio)

	return SlaveSyncResult{
		SyncReceiptTimeNs:      receiptTime,
		SyncReceiptLocalTimeNs: receiptLocalTime,
		GmTimeBaseIndicator:    sync.GmTimeBaseIndicator,
		LastGmPhaseChange:      sync.LastGmPhaseChange,
		LastGmFreqChange:       sync.LastGmFreqChange,
	}
}
