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

func TestPortStateSelectionPicksSlaveOnReceivedSuperiorPort(t *testing.T) {
	clock := &fakeGmSyncSetter{}
	d := NewDomain(0, bestVector(testClockID), clock)

	superior := bestVector(peerClockID)
	superior.Priority1 = 1
	p1 := NewPort(1, protocol.LogInterval(0))
	p1.InfoIs = InfoReceived
	p1.PortPriority = superior

	out := d.PortStateSelection(map[int]*Port{1: p1})

	require.Equal(t, SlavePort, out[1])
	require.Equal(t, PassivePort, out[0])
	require.True(t, p1.IsSlave)
	require.Len(t, clock.gmSyncCalls, 0)
	require.Len(t, clock.gmChangeCalls, 1)
	require.Equal(t, peerClockID, clock.gmChangeCalls[0])
}

func TestPortStateSelectionNoExternalSlaveMeansInternalSlave(t *testing.T) {
	clock := &fakeGmSyncSetter{}
	d := NewDomain(0, bestVector(testClockID), clock)

	out := d.PortStateSelection(map[int]*Port{})

	require.Equal(t, SlavePort, out[0])
	require.Len(t, clock.gmSyncCalls, 1)
}

func TestPortStateSelectionInfoMineBecomesMaster(t *testing.T) {
	d := NewDomain(0, bestVector(testClockID), nil)
	p1 := NewPort(1, protocol.LogInterval(0))
	p1.InfoIs = InfoMine
	p1.PortPriority = bestVector(testClockID)
	p1.MasterPriority = bestVector(testClockID)

	out := d.PortStateSelection(map[int]*Port{1: p1})

	require.Equal(t, MasterPort, out[1])
	require.False(t, p1.UpdtInfo)
}

func TestPortStateSelectionInfoAgedBecomesMasterWithUpdtInfo(t *testing.T) {
	d := NewDomain(0, bestVector(testClockID), nil)
	p1 := NewPort(1, protocol.LogInterval(0))
	p1.InfoIs = InfoAged

	out := d.PortStateSelection(map[int]*Port{1: p1})

	require.Equal(t, MasterPort, out[1])
	require.True(t, p1.UpdtInfo)
}

func TestPortStateSelectionDisabledStaysDisabled(t *testing.T) {
	d := NewDomain(0, bestVector(testClockID), nil)
	p1 := NewPort(1, protocol.LogInterval(0))

	out := d.PortStateSelection(map[int]*Port{1: p1})

	require.Equal(t, DisabledPort, out[1])
}

func TestPortStateSelectionNoGmChangeOnRepeatedRun(t *testing.T) {
	clock := &fakeGmSyncSetter{}
	d := NewDomain(0, bestVector(testClockID), clock)

	superior := bestVector(peerClockID)
	superior.Priority1 = 1
	p1 := NewPort(1, protocol.LogInterval(0))
	p1.InfoIs = InfoReceived
	p1.PortPriority = superior

	d.PortStateSelection(map[int]*Port{1: p1})
	d.PortStateSelection(map[int]*Port{1: p1})

	require.Len(t, clock.gmChangeCalls, 1)
}

func TestPortStateSettingExtAssignsConfiguredRoles(t *testing.T) {
	p1 := NewPort(1, protocol.LogInterval(0))
	p2 := NewPort(2, protocol.LogInterval(0))

	out := PortStateSettingExt(map[int]*Port{1: p1, 2: p2}, map[int]bool{1: true})

	require.Equal(t, SlavePort, out[1])
	require.Equal(t, MasterPort, out[2])
	require.Equal(t, PassivePort, out[0])
	require.True(t, p1.IsSlave)
	require.False(t, p2.IsSlave)
}

func TestPortStateSettingExtInternalSlaveWhenNoneConfigured(t *testing.T) {
	p1 := NewPort(1, protocol.LogInterval(0))

	out := PortStateSettingExt(map[int]*Port{1: p1}, map[int]bool{})

	require.Equal(t, MasterPort, out[1])
	require.Equal(t, SlavePort, out[0])
}
