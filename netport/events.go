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

// Package netport abstracts a gPTP-carrying network port: raw-Ethernet
// send/receive with hardware timestamping, link-state monitoring, and
// the deferred-transmit-timestamp bookkeeping the orchestrator (C8)
// drives through a single event channel.
package netport

import (
	"time"

	"github.com/excelfore/gptp/protocol"
)

// Kind identifies the category of an Event, matching spec.md §5's
// "Data flow" event vocabulary (RECV, TXTS, DEVUP, DEVDOWN, TIMEOUT).
type Kind int

// Event kinds raised by a Port onto its owning Manager's channel.
const (
	KindRecv Kind = iota
	KindTXTS
	KindDevUp
	KindDevDown
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindRecv:
		return "RECV"
	case KindTXTS:
		return "TXTS"
	case KindDevUp:
		return "DEVUP"
	case KindDevDown:
		return "DEVDOWN"
	case KindTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Event is the single type flowing out of netport into the orchestrator.
// Only the fields relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind Kind

	PortIndex int

	// RECV
	Payload      []byte
	RxTimestamp  int64 // local-clock ns
	MessageType  protocol.MessageType
	DomainNumber uint8

	// TXTS
	SequenceID uint32
	TxTimestamp int64 // local-clock ns
	Synthetic   bool  // true if software fallback, not a hardware TXTS

	// DEVUP / DEVDOWN
	LinkSpeed   uint64 // bits/sec
	FullDuplex  bool
	PortID      [8]byte
	PTPDev      string

	// TIMEOUT carries nothing extra: consumers read the current time
	// themselves from clockreg.
}
