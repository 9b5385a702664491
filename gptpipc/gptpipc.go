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

// Package gptpipc implements spec.md §6's external IPC surface: a
// typed notice bus fed by the orchestrator and consumed by the stats
// exporter and a minimal request/response query server. The original
// daemon's gptpipcmon.c exchanges packed C structs over a datagram
// socket; here the wire framing is out of scope (per spec.md's
// Non-goals) and is realized instead as Go channels plus JSON over a
// Unix socket, matching this repo's ambient stack (net/http,
// encoding/json) rather than inventing a binary protocol.
package gptpipc

import (
	"sync"

	"github.com/excelfore/gptp/bmca"
	"github.com/excelfore/gptp/protocol"
)

// NoticeFlags mirrors gptpipc.h's gptpipc_event_t bitset.
type NoticeFlags uint32

const (
	NoticeNetdevDown NoticeFlags = 1 << iota
	NoticeNetdevUp
	NoticePhaseUpdate
	NoticeFreqUpdate
	NoticeGmSynced
	NoticeGmUnsynced
	NoticeGmChange
	NoticeAsCapableDown
	NoticeAsCapableUp
	NoticeActiveDomainChange
)

// Notice is gptpipc_notice_data_t, adapted to Go-native types.
type Notice struct {
	EventFlags          NoticeFlags
	DomainNumber        int32
	DomainIndex         int32
	PortIndex           int32
	GmPriority          bmca.PriorityVector
	LastGmPhaseChangeNs int64
	GmTimeBaseIndicator uint16
	LastGmFreqChange    float64
}

// NDPortData is gptpipc_ndport_data_t: netlink-observed port status.
type NDPortData struct {
	Up      bool
	DevName string
	PTPDev  string
	Speed   uint32
	Duplex  uint32
	PortID  protocol.ClockIdentity
}

// GPortData is gptpipc_gport_data_t: this port's gPTP status.
type GPortData struct {
	DomainNumber    int32
	PortIndex       int32
	GmClockID       protocol.ClockIdentity
	AsCapable       bool
	PortOper        bool
	GmStable        bool
	SelectedState   bmca.SelectedState
	AnnPathSequence []protocol.ClockIdentity
}

// ClockData is gptpipc_clock_data_t: this domain's clock status.
type ClockData struct {
	DomainNumber        int32
	PortIndex           int32
	LastGmPhaseChangeNs int64
	ClockID             protocol.ClockIdentity
	GmClockID           protocol.ClockIdentity
	GmSync              bool
	DomainActive        bool
	GmTimeBaseIndicator uint16
	AdjPpb              int32
	LastGmFreqChange    float64
}

// StatsSystemData is gptpipc_statistics_system_t: per-port Pdelay
// exchange counters.
type StatsSystemData struct {
	PortIndex             int32
	PdelayReqSend         uint32
	PdelayRespRec         uint32
	PdelayRespRecValid    uint32
	PdelayRespFupRec      uint32
	PdelayRespFupRecValid uint32
	PdelayReqRec          uint32
	PdelayReqRecValid     uint32
	PdelayRespSend        uint32
	PdelayRespFupSend     uint32
}

// StatsTasData is gptpipc_statistics_tas_t: per-(domain,port) message
// counters.
type StatsTasData struct {
	DomainNumber          int32
	PortIndex             int32
	SyncSend              uint32
	SyncFupSend           uint32
	SyncRec               uint32
	SyncRecValid          uint32
	SyncFupRec            uint32
	SyncFupRecValid       uint32
	AnnounceSend          uint32
	AnnounceRec           uint32
	AnnounceRecValid      uint32
	SignalMsgIntervalSend uint32
	SignalGptpCapableSend uint32
	SignalRec             uint32
	SignalMsgIntervalRec  uint32
	SignalGptpCapableRec  uint32
}

// Bus fans Notices out to every active subscriber. The orchestrator
// publishes; the stats exporter and the query server's notice log
// both subscribe, per spec.md §6's "datagram socket accepts ...
// notice structs" being realized in-process.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Notice
	next int
}

// NewBus creates an empty notice bus.
func NewBus() *Bus {
	return &Bus{subs: map[int]chan Notice{}}
}

// Subscribe registers a new receiver with a small buffer; callers
// must drain it or notices are dropped, never blocking the publisher.
func (b *Bus) Subscribe() (<-chan Notice, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Notice, 32)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish fans n out to every live subscriber, dropping it for any
// subscriber whose buffer is full rather than blocking the caller.
func (b *Bus) Publish(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}
