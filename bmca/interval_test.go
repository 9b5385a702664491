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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/protocol"
)

func TestApplyIntervalRequestSetsNewInterval(t *testing.T) {
	s := NewIntervalSettings(protocol.LogInterval(0), protocol.LogInterval(-3), protocol.LogInterval(0))
	s.ApplyIntervalRequest(mdsm.IntervalRequest{
		AnnounceInterval:  protocol.LogInterval(1),
		TimeSyncInterval:  protocol.LogInterval(-3),
		LinkDelayInterval: protocol.LogInterval(0),
	})
	require.Equal(t, protocol.LogInterval(1), s.AnnounceInterval)
	require.False(t, s.AnnounceSlowdown)
}

func TestApplyIntervalRequestKeepCurrent(t *testing.T) {
	s := NewIntervalSettings(protocol.LogInterval(0), protocol.LogInterval(-3), protocol.LogInterval(0))
	s.ApplyIntervalRequest(mdsm.IntervalRequest{
		AnnounceInterval:  protocol.IntervalKeepCurrent,
		TimeSyncInterval:  protocol.IntervalKeepCurrent,
		LinkDelayInterval: protocol.IntervalKeepCurrent,
	})
	require.Equal(t, protocol.LogInterval(0), s.AnnounceInterval)
	require.Equal(t, protocol.LogInterval(-3), s.SyncInterval)
	require.Equal(t, protocol.LogInterval(0), s.LinkDelayInterval)
}

func TestApplyIntervalRequestRestoreInitial(t *testing.T) {
	s := NewIntervalSettings(protocol.LogInterval(0), protocol.LogInterval(-3), protocol.LogInterval(0))
	s.ApplyIntervalRequest(mdsm.IntervalRequest{AnnounceInterval: protocol.LogInterval(5)})
	require.Equal(t, protocol.LogInterval(5), s.AnnounceInterval)

	s.ApplyIntervalRequest(mdsm.IntervalRequest{AnnounceInterval: protocol.IntervalSetInitial, TimeSyncInterval: protocol.IntervalKeepCurrent, LinkDelayInterval: protocol.IntervalKeepCurrent})
	require.Equal(t, protocol.LogInterval(0), s.AnnounceInterval)
}

func TestApplyIntervalRequestArmsSlowdownOnShorterInterval(t *testing.T) {
	s := NewIntervalSettings(protocol.LogInterval(2), protocol.LogInterval(0), protocol.LogInterval(0))
	s.ApplyIntervalRequest(mdsm.IntervalRequest{AnnounceInterval: protocol.LogInterval(0), TimeSyncInterval: protocol.IntervalKeepCurrent, LinkDelayInterval: protocol.IntervalKeepCurrent})
	require.True(t, s.AnnounceSlowdown)
	require.Equal(t, protocol.LogInterval(0), s.AnnounceInterval)
}

func TestApplyIntervalRequestDoesNotArmSlowdownOnLongerInterval(t *testing.T) {
	s := NewIntervalSettings(protocol.LogInterval(0), protocol.LogInterval(0), protocol.LogInterval(0))
	s.ApplyIntervalRequest(mdsm.IntervalRequest{AnnounceInterval: protocol.LogInterval(2), TimeSyncInterval: protocol.IntervalKeepCurrent, LinkDelayInterval: protocol.IntervalKeepCurrent})
	require.False(t, s.AnnounceSlowdown)
}
