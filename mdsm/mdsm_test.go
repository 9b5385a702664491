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
	"sync"
	"time"

	"github.com/excelfore/gptp/protocol"
)

// sentMessage records one Sender.Send call for assertions.
type sentMessage struct {
	payload      []byte
	messageType  protocol.MessageType
	sequenceID   uint32
	domainNumber uint8
	nowLocalNs   int64
}

// fakeSender is a Sender test double that records every send and lets
// tests force a failure on the next call.
type fakeSender struct {
	mu         sync.Mutex
	sent       []sentMessage
	extras     []time.Duration
	failNext   bool
}

func (s *fakeSender) Send(payload []byte, messageType protocol.MessageType, sequenceID uint32, domainNumber uint8, nowLocalNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errSendFailed
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.sent = append(s.sent, sentMessage{cp, messageType, sequenceID, domainNumber, nowLocalNs})
	return nil
}

func (s *fakeSender) ExtraTimeout(delta time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extras = append(s.extras, delta)
}

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

type sendError string

func (e sendError) Error() string { return string(e) }

const errSendFailed = sendError("fakeSender: forced failure")

// fakeFaultInjector is a FaultInjector test double implementing the
// abnormal-behavior hooks spec.md §7(e) / SPEC_FULL.md §3 describe.
type fakeFaultInjector struct {
	dropSequenceIDs map[uint16]bool
	rateRatio       map[int]float64
}

func newFakeFaultInjector() *fakeFaultInjector {
	return &fakeFaultInjector{dropSequenceIDs: map[uint16]bool{}, rateRatio: map[int]float64{}}
}

func (f *fakeFaultInjector) DropPdelayResp(portIndex int, sequenceID uint16) bool {
	return f.dropSequenceIDs[sequenceID]
}

func (f *fakeFaultInjector) CorruptNeighborRateRatio(portIndex int) (float64, bool) {
	r, ok := f.rateRatio[portIndex]
	return r, ok
}

var testClockID = protocol.ClockIdentity(0x0011223344556677)
var peerClockID = protocol.ClockIdentity(0x8899AABBCCDDEEFF)

func testPortIdentity(id protocol.ClockIdentity, port uint16) protocol.PortIdentity {
	return protocol.PortIdentity{ClockIdentity: id, PortNumber: port}
}
