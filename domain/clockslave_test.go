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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClockSlaveSyncComputesReceiptTimes(t *testing.T) {
	c := &ClockSlaveSync{DomainNumber: 0, NeighborPropDelay: 1000, DelayAsymmetry: 0}
	sync := PortSyncSync{
		PreciseOriginTimestamp: 1_000_000,
		UpstreamTxTime:         900_000,
		RateRatio:              1.0,
	}
	res := c.Recv(sync, 1.0)
	require.Equal(t, int64(1_000_000+1000), res.SyncReceiptTimeNs)
	require.Equal(t, int64(900_000+1000), res.SyncReceiptLocalTimeNs)
}

func TestClockSlaveSyncDefaultsZeroRateRatioToOne(t *testing.T) {
	c := &ClockSlaveSync{DomainNumber: 0, NeighborPropDelay: 500}
	sync := PortSyncSync{PreciseOriginTimestamp: 0, UpstreamTxTime: 0}
	res := c.Recv(sync, 0)
	require.Equal(t, int64(500), res.SyncReceiptTimeNs)
	require.Equal(t, int64(500), res.SyncReceiptLocalTimeNs)
}

func TestClockSlaveSyncAppliesDelayAsymmetry(t *testing.T) {
	c := &ClockSlaveSync{DomainNumber: 0, NeighborPropDelay: 0, DelayAsymmetry: 200}
	sync := PortSyncSync{RateRatio: 1.0}
	res := c.Recv(sync, 1.0)
	require.Equal(t, int64(200), res.SyncReceiptTimeNs)
	require.Equal(t, int64(200), res.SyncReceiptLocalTimeNs)
}

func TestClockSlaveSyncCarriesGmTimeBaseFields(t *testing.T) {
	c := &ClockSlaveSync{DomainNumber: 0}
	sync := PortSyncSync{GmTimeBaseIndicator: 7, LastGmFreqChange: 0.5}
	res := c.Recv(sync, 1.0)
	require.Equal(t, uint16(7), res.GmTimeBaseIndicator)
	require.Equal(t, 0.5, res.LastGmFreqChange)
}
