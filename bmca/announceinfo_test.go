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

	"github.com/excelfore/gptp/protocol"
)

func TestRecvQualifiedAnnounceSuperiorAdoptsAndArmsReselect(t *testing.T) {
	p := NewPort(1, protocol.LogInterval(0))
	p.PortPriority = bestVector(testClockID)
	p.PortPriority.Priority1 = 200

	better := bestVector(peerClockID)
	better.Priority1 = 1

	p.RecvQualifiedAnnounce(better, protocol.LogInterval(0), 1_000_000_000)

	require.Equal(t, PortAnnounceSuperiorMasterPort, p.State)
	require.Equal(t, InfoReceived, p.InfoIs)
	require.Equal(t, better, p.PortPriority)
	require.True(t, p.reselect)
	require.False(t, p.selected)
	require.Equal(t, int64(1_000_000_000+3*protocol.LogInterval(0).Duration().Nanoseconds()), p.AnnounceReceiptTimeoutTime)
}

func TestRecvQualifiedAnnounceSameRefreshesTimeoutOnly(t *testing.T) {
	p := NewPort(1, protocol.LogInterval(0))
	v := bestVector(peerClockID)
	p.PortPriority = v
	p.InfoIs = InfoReceived

	p.RecvQualifiedAnnounce(v, protocol.LogInterval(0), 2_000_000_000)

	require.Equal(t, PortAnnounceRepeatedMasterPort, p.State)
	require.Equal(t, v, p.PortPriority)
	require.Equal(t, InfoReceived, p.InfoIs)
}

func TestRecvQualifiedAnnounceInferiorDiscarded(t *testing.T) {
	p := NewPort(1, protocol.LogInterval(0))
	mine := bestVector(testClockID)
	mine.Priority1 = 1
	p.PortPriority = mine

	worse := bestVector(peerClockID)
	worse.Priority1 = 200

	p.RecvQualifiedAnnounce(worse, protocol.LogInterval(0), 3_000_000_000)

	require.Equal(t, PortAnnounceInferiorMasterOrOtherPort, p.State)
	require.Equal(t, mine, p.PortPriority)
}

func TestRecvQualifiedAnnounceInferiorQuickUpdateMatchingSourceAges(t *testing.T) {
	p := NewPort(1, protocol.LogInterval(0))
	mine := bestVector(testClockID)
	mine.Priority1 = 1
	p.PortPriority = mine
	p.QuickUpdate = true

	worse := bestVector(peerClockID)
	worse.Priority1 = 200
	worse.SourcePortIdentity = mine.SourcePortIdentity

	p.RecvQualifiedAnnounce(worse, protocol.LogInterval(0), 4_000_000_000)

	require.Equal(t, PortAnnounceAged, p.State)
}

func TestRecvQualifiedAnnounceExtBypassesComparison(t *testing.T) {
	p := NewPort(1, protocol.LogInterval(0))
	p.PortPriority = bestVector(testClockID)
	p.PortStepsRemoved = 5

	incoming := bestVector(peerClockID)
	incoming.Priority1 = 255 // would lose a real comparison

	p.RecvQualifiedAnnounceExt(incoming)

	require.Equal(t, incoming, p.PortPriority)
	require.Equal(t, uint16(6), p.PortStepsRemoved)
	require.Equal(t, InfoReceived, p.InfoIs)
	require.True(t, p.reselect)
}

func TestTimeoutAgesExpiredCurrentPort(t *testing.T) {
	p := NewPort(1, protocol.LogInterval(0))
	p.State = PortAnnounceSuperiorMasterPort
	p.InfoIs = InfoReceived
	p.AnnounceReceiptTimeoutTime = 1000

	p.Timeout(2000, false)

	require.Equal(t, PortAnnounceAged, p.State)
	require.Equal(t, InfoAged, p.InfoIs)
	require.True(t, p.reselect)
}

func TestTimeoutDoesNothingBeforeDeadline(t *testing.T) {
	p := NewPort(1, protocol.LogInterval(0))
	p.State = PortAnnounceCurrent
	p.AnnounceReceiptTimeoutTime = 5000

	p.Timeout(1000, false)

	require.Equal(t, PortAnnounceCurrent, p.State)
}

func TestTimeoutIgnoresNonTrackedStates(t *testing.T) {
	p := NewPort(1, protocol.LogInterval(0))
	p.State = PortAnnounceDisabled
	p.AnnounceReceiptTimeoutTime = 1

	p.Timeout(1_000_000, false)

	require.Equal(t, PortAnnounceDisabled, p.State)
}
