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

package netport

import (
	"sync"
	"time"

	"github.com/excelfore/gptp/protocol"
)

// TXTSLostTime is the default deadline (20 ms, spec.md §5 "deferred
// timestamps") after which a missing hardware transmit timestamp is
// replaced with a software fallback captured at send time.
const TXTSLostTime = 20 * time.Millisecond

type txtsKey struct {
	messageType  protocol.MessageType
	sequenceID   uint32
	domainNumber uint8
}

type txtsEntry struct {
	sendTime int64 // local-clock ns at the moment Send() was called
	deadline time.Time
}

// pendingTXTS is the per-port deferred-timestamp queue spec.md §5
// requires be modeled explicitly ("an explicit pending-timestamp queue
// with per-entry deadlines, not as state-machine-internal scratch
// memory") rather than folded into Port's send path.
type pendingTXTS struct {
	mu      sync.Mutex
	entries map[txtsKey]txtsEntry
}

func newPendingTXTS() *pendingTXTS {
	return &pendingTXTS{entries: make(map[txtsKey]txtsEntry)}
}

func (p *pendingTXTS) add(messageType protocol.MessageType, sequenceID uint32, domainNumber uint8, sendTimeNs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[txtsKey{messageType, sequenceID, domainNumber}] = txtsEntry{
		sendTime: sendTimeNs,
		deadline: time.Now().Add(TXTSLostTime),
	}
}

// resolve removes and returns the pending entry for a hardware TXTS
// arrival, if still outstanding.
func (p *pendingTXTS) resolve(messageType protocol.MessageType, sequenceID uint32, domainNumber uint8) (txtsEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := txtsKey{messageType, sequenceID, domainNumber}
	e, ok := p.entries[key]
	if ok {
		delete(p.entries, key)
	}
	return e, ok
}

// expired returns, and removes, every entry whose deadline has passed as
// of now -- these become synthetic TXTS events.
func (p *pendingTXTS) expired(now time.Time) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for key, e := range p.entries {
		if now.Before(e.deadline) {
			continue
		}
		out = append(out, Event{
			Kind:         KindTXTS,
			MessageType:  key.messageType,
			SequenceID:   key.sequenceID,
			DomainNumber: key.domainNumber,
			TxTimestamp:  e.sendTime,
			Synthetic:    true,
		})
		delete(p.entries, key)
	}
	return out
}
