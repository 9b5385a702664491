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

package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistrySystemCreatesLazily(t *testing.T) {
	r := NewRegistry()
	_, ok := r.SystemSnapshot(3)
	require.False(t, ok)

	r.System(3).PdelayReqSend.Add(1)
	snap, ok := r.SystemSnapshot(3)
	require.True(t, ok)
	require.Equal(t, int32(3), snap.PortIndex)
	require.Equal(t, uint32(1), snap.PdelayReqSend)
}

func TestRegistrySystemReturnsSameCounterForRepeatedCalls(t *testing.T) {
	r := NewRegistry()
	r.System(1).PdelayRespRec.Add(2)
	r.System(1).PdelayRespRec.Add(3)
	snap, ok := r.SystemSnapshot(1)
	require.True(t, ok)
	require.Equal(t, uint32(5), snap.PdelayRespRec)
}

func TestRegistryTasKeyedByDomainAndPort(t *testing.T) {
	r := NewRegistry()
	r.Tas(0, 1).SyncSend.Add(1)
	r.Tas(1, 1).SyncSend.Add(7)

	snap0, ok := r.TasSnapshot(0, 1)
	require.True(t, ok)
	require.Equal(t, uint32(1), snap0.SyncSend)

	snap1, ok := r.TasSnapshot(1, 1)
	require.True(t, ok)
	require.Equal(t, uint32(7), snap1.SyncSend)
}

func TestRegistryTasSnapshotMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	_, ok := r.TasSnapshot(5, 9)
	require.False(t, ok)
}

func TestRegistryAllSystemAndAllTasCoverEveryTouchedKey(t *testing.T) {
	r := NewRegistry()
	r.System(1).PdelayReqSend.Add(1)
	r.System(2).PdelayReqSend.Add(1)
	r.Tas(0, 1).AnnounceSend.Add(1)
	r.Tas(0, 2).AnnounceSend.Add(1)

	require.Len(t, r.AllSystem(), 2)
	require.Len(t, r.AllTas(), 2)
}
