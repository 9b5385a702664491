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

package mdsm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/excelfore/gptp/protocol"
)

func TestAnnounceSendIncludesPathTrace(t *testing.T) {
	sender := &fakeSender{}
	m := NewAnnounceSendMachine(0, 0, sender)

	msg := AnnounceMessage{
		GrandmasterIdentity: testClockID,
		StepsRemoved:        1,
		PathSequence:        []protocol.ClockIdentity{testClockID},
	}
	require.NoError(t, m.Send(msg, 0))

	last, ok := sender.last()
	require.True(t, ok)
	require.Equal(t, protocol.MessageAnnounce, last.messageType)
	require.Equal(t, uint32(0), last.sequenceID)
}

func TestAnnounceSendOmitsOversizedPathTrace(t *testing.T) {
	sender := &fakeSender{}
	m := NewAnnounceSendMachine(0, 0, sender)

	path := make([]protocol.ClockIdentity, maxPathTraceEntries+1)
	msg := AnnounceMessage{PathSequence: path}
	require.NoError(t, m.Send(msg, 0))
	// Should still send successfully, just without the TLV; verified
	// indirectly by not erroring since an overlong TLVs slice would
	// otherwise blow the fixed Announce marshal buffer.
}

func TestAnnounceReceiveDecodesPathTrace(t *testing.T) {
	m := NewAnnounceReceiveMachine(0)

	a := &protocol.Announce{}
	a.SequenceID = 3
	a.StepsRemoved = 2
	a.GrandmasterIdentity = peerClockID
	a.Header.SourcePortIdentity = testPortIdentity(peerClockID, 1)
	a.TLVs = []protocol.TLV{&protocol.PathTraceTLV{
		PathSequence: []protocol.ClockIdentity{peerClockID, testClockID},
	}}

	msg := m.Recv(a)
	require.Equal(t, uint16(3), msg.SequenceID)
	require.Equal(t, peerClockID, msg.GrandmasterIdentity)
	require.Len(t, msg.PathSequence, 2)
	require.Equal(t, peerClockID, msg.PathSequence[0])
}

func TestAnnounceReceivePadsOnStepsRemovedMismatch(t *testing.T) {
	m := NewAnnounceReceiveMachine(0)

	a := &protocol.Announce{}
	a.StepsRemoved = 3
	a.TLVs = []protocol.TLV{&protocol.PathTraceTLV{
		PathSequence: []protocol.ClockIdentity{peerClockID},
	}}

	msg := m.Recv(a)
	require.Len(t, msg.PathSequence, 3)
	require.Equal(t, peerClockID, msg.PathSequence[0])
	require.Equal(t, protocol.ClockIdentity(0xFFFFFFFFFFFFFFFF), msg.PathSequence[1])
	require.Equal(t, protocol.ClockIdentity(0xFFFFFFFFFFFFFFFF), msg.PathSequence[2])
}

func TestAnnounceReceiveNoPathTraceTLV(t *testing.T) {
	m := NewAnnounceReceiveMachine(0)
	a := &protocol.Announce{}
	msg := m.Recv(a)
	require.Nil(t, msg.PathSequence)
}
