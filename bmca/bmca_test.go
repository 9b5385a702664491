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
	"sync"
	"time"

	"github.com/excelfore/gptp/protocol"
)

// sentMessage records one fakeSender.Send call for assertions.
type sentMessage struct {
	payload      []byte
	messageType  protocol.MessageType
	sequenceID   uint32
	domainNumber uint8
	nowLocalNs   int64
}

// fakeSender is an mdsm.Sender test double, mirroring the one in
// package mdsm's own tests.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *fakeSender) Send(payload []byte, messageType protocol.MessageType, sequenceID uint32, domainNumber uint8, nowLocalNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.sent = append(s.sent, sentMessage{cp, messageType, sequenceID, domainNumber, nowLocalNs})
	return nil
}

func (s *fakeSender) ExtraTimeout(delta time.Duration) {}

func (s *fakeSender) last() (sentMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentMessage{}, false
	}
	return s.sent[len(s.sent)-1], true
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// fakeGmSyncSetter is a GmSyncSetter test double recording calls.
type fakeGmSyncSetter struct {
	gmSyncCalls   []uint8
	gmChangeCalls []protocol.ClockIdentity
}

func (f *fakeGmSyncSetter) SetGmSync(domainNumber uint8) error {
	f.gmSyncCalls = append(f.gmSyncCalls, domainNumber)
	return nil
}

func (f *fakeGmSyncSetter) SetGmChange(domainNumber uint8, gmClockID protocol.ClockIdentity) error {
	f.gmChangeCalls = append(f.gmChangeCalls, gmClockID)
	return nil
}

var testClockID = protocol.ClockIdentity(0x0011223344556677)
var peerClockID = protocol.ClockIdentity(0x8899AABBCCDDEEFF)
var otherClockID = protocol.ClockIdentity(0x1122334455667788)

func testPortIdentity(id protocol.ClockIdentity, port uint16) protocol.PortIdentity {
	return protocol.PortIdentity{ClockIdentity: id, PortNumber: port}
}

func bestVector(id protocol.ClockIdentity) PriorityVector {
	return PriorityVector{
		Priority1:          128,
		ClockClass:         248,
		ClockAccuracy:      0x20,
		Priority2:          128,
		ClockIdentity:      id,
		StepsRemoved:       0,
		SourcePortIdentity: testPortIdentity(id, 1),
		PortNumber:         1,
	}
}
