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
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	log "github.com/sirupsen/logrus"

	"github.com/excelfore/gptp/protocol"
)

// SnapshotLen is the per-packet capture length: large enough for any
// gPTP message (the largest, Signaling with several TLVs, is well under
// 300 bytes) plus the Ethernet header.
const SnapshotLen = 512

// promiscuous capture is required to observe our own transmitted frames
// looped back by the NIC, which this package uses to derive a software
// transmit timestamp when no hardware TXTS arrives (see txts.go).
const promiscuous = true

// recvTimeout bounds how long a single pcap poll blocks; the capture
// loop re-checks its stop channel on every timeout.
const recvTimeout = 50 * time.Millisecond

// Port is one network interface carrying gPTP traffic.
type Port struct {
	Index  int
	Name   string
	PTPDev string

	srcMAC net.HardwareAddr
	handle *pcap.Handle
	cmlds  bool

	events chan<- Event
	stop   chan struct{}

	pending *pendingTXTS
}

// OpenPort opens a live capture/injection handle on ifaceName, filtered
// to gPTP EtherType frames, and starts its background receive loop.
// Received and derived-TXTS events are sent to events; the caller owns
// that channel's lifetime.
func OpenPort(index int, ifaceName, ptpdev string, cmlds bool, events chan<- Event) (*Port, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("netport: looking up interface %s: %w", ifaceName, err)
	}
	handle, err := pcap.OpenLive(ifaceName, SnapshotLen, promiscuous, recvTimeout)
	if err != nil {
		return nil, fmt.Errorf("netport: opening %s: %w", ifaceName, err)
	}
	if err := handle.SetBPFFilter(bpfFilter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("netport: setting BPF filter on %s: %w", ifaceName, err)
	}
	p := &Port{
		Index:   index,
		Name:    ifaceName,
		PTPDev:  ptpdev,
		srcMAC:  iface.HardwareAddr,
		handle:  handle,
		cmlds:   cmlds,
		events:  events,
		stop:    make(chan struct{}),
		pending: newPendingTXTS(),
	}
	go p.recvLoop()
	return p, nil
}

// Send transmits payload (an already-marshaled gPTP message) and
// records a pending transmit-timestamp entry so either a loopback
// capture or the eventual TIMEOUT-driven deadline check resolves it.
func (p *Port) Send(payload []byte, messageType protocol.MessageType, sequenceID uint32, domainNumber uint8, nowLocalNs int64) error {
	frame, err := buildFrame(p.srcMAC, payload)
	if err != nil {
		return err
	}
	if err := p.handle.WritePacketData(frame); err != nil {
		return fmt.Errorf("netport: sending on %s: %w", p.Name, err)
	}
	p.pending.add(messageType, sequenceID, domainNumber, nowLocalNs)
	return nil
}

// CheckTXTSTimeouts resolves every pending transmit timestamp whose
// deadline has passed into a synthetic TXTS Event, per spec.md §5's
// TXTS_LOST_TIME fallback. The Manager calls this on every TIMEOUT
// tick.
func (p *Port) CheckTXTSTimeouts(now time.Time) []Event {
	evs := p.pending.expired(now)
	for i := range evs {
		evs[i].PortIndex = p.Index
	}
	return evs
}

func (p *Port) recvLoop() {
	src := gopacket.NewPacketSource(p.handle, p.handle.LinkType())
	packets := src.Packets()
	for {
		select {
		case <-p.stop:
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			p.handlePacket(pkt)
		}
	}
}

func (p *Port) handlePacket(pkt gopacket.Packet) {
	data := pkt.Data()
	payload, srcMAC, ok := parseFrame(data)
	if !ok {
		return
	}
	now := pkt.Metadata().Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	msgType, err := protocol.ProbeMsgType(payload)
	if err != nil {
		log.WithField("port", p.Name).Debugf("netport: undecodable frame: %v", err)
		return
	}

	if isOwnTransmission(srcMAC, p.srcMAC) {
		p.handleLoopback(payload, msgType, now)
		return
	}

	_, domainNumber, ok := peekSequenceAndDomain(payload)
	if !ok {
		return
	}
	p.events <- Event{
		Kind:         KindRecv,
		PortIndex:    p.Index,
		Payload:      payload,
		RxTimestamp:  now.UnixNano(),
		MessageType:  msgType,
		DomainNumber: domainNumber,
	}
}

// handleLoopback derives a software transmit timestamp from a captured
// copy of our own frame: a best-effort stand-in for hardware TXTS on
// links/drivers that don't provide SO_TIMESTAMPING on raw sockets.
func (p *Port) handleLoopback(payload []byte, msgType protocol.MessageType, now time.Time) {
	seq, domainNumber, ok := peekSequenceAndDomain(payload)
	if !ok {
		return
	}
	if _, ok := p.pending.resolve(msgType, seq, domainNumber); ok {
		p.events <- Event{
			Kind:         KindTXTS,
			PortIndex:    p.Index,
			MessageType:  msgType,
			SequenceID:   seq,
			DomainNumber: domainNumber,
			TxTimestamp:  now.UnixNano(),
		}
	}
}

func isOwnTransmission(src, own net.HardwareAddr) bool {
	if len(own) == 0 {
		return false
	}
	return src.String() == own.String()
}

// commonHeaderSize is the fixed PTPv2 common header length (802.1AS
// §10.5.2), used here only to validate a frame is long enough to peek.
const commonHeaderSize = 34

// peekSequenceAndDomain reads just the domainNumber and sequenceId
// fields directly out of the common header, since loopback resolution
// and RECV dispatch don't need a full TLV-aware decode -- that belongs
// to the message-codec consumer (mdsm), not netport.
func peekSequenceAndDomain(payload []byte) (sequenceID uint32, domainNumber uint8, ok bool) {
	if len(payload) < commonHeaderSize {
		return 0, 0, false
	}
	domainNumber = payload[4]
	sequenceID = uint32(binary.BigEndian.Uint16(payload[30:32]))
	return sequenceID, domainNumber, true
}

// Close stops the capture loop and releases the underlying handle.
func (p *Port) Close() error {
	close(p.stop)
	p.handle.Close()
	return nil
}
