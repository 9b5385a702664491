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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/excelfore/gptp/protocol"
)

func TestBuildParseFrameRoundTrip(t *testing.T) {
	src := net.HardwareAddr{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	payload := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}

	frame, err := buildFrame(src, payload)
	require.NoError(t, err)

	gotPayload, gotSrc, ok := parseFrame(frame)
	require.True(t, ok)
	require.Equal(t, payload, gotPayload)
	require.Equal(t, src.String(), gotSrc.String())
}

func TestParseFrameRejectsShortOrWrongEtherType(t *testing.T) {
	_, _, ok := parseFrame([]byte{0x01, 0x02})
	require.False(t, ok)

	src := net.HardwareAddr{0, 0, 0, 0, 0, 1}
	dst := net.HardwareAddr{0, 0, 0, 0, 0, 2}
	arp := append(append([]byte{}, dst...), src...)
	arp = append(arp, 0x08, 0x06) // EtherType ARP, not gPTP
	_, _, ok = parseFrame(arp)
	require.False(t, ok)
}

func TestIsOwnTransmission(t *testing.T) {
	own := net.HardwareAddr{1, 2, 3, 4, 5, 6}
	require.True(t, isOwnTransmission(net.HardwareAddr{1, 2, 3, 4, 5, 6}, own))
	require.False(t, isOwnTransmission(net.HardwareAddr{1, 2, 3, 4, 5, 7}, own))
	require.False(t, isOwnTransmission(own, nil))
}

func TestExtendedPortID(t *testing.T) {
	got := extendedPortID([]byte{0x11, 0x22, 0x33, 0xff, 0x44, 0x55})
	require.Equal(t, [8]byte{0x11, 0x22, 0x33, 0xff, 0xfe, 0xff, 0x44, 0x55}, got)
}

func TestPeekSequenceAndDomain(t *testing.T) {
	payload := make([]byte, commonHeaderSize)
	payload[4] = 7 // domainNumber
	payload[30] = 0x01
	payload[31] = 0x02 // sequenceID = 0x0102
	seq, dom, ok := peekSequenceAndDomain(payload)
	require.True(t, ok)
	require.Equal(t, uint8(7), dom)
	require.Equal(t, uint32(0x0102), seq)

	_, _, ok = peekSequenceAndDomain(payload[:10])
	require.False(t, ok)
}

func TestPendingTXTSResolve(t *testing.T) {
	p := newPendingTXTS()
	p.add(protocol.MessageSync, 42, 1, 1000)

	_, ok := p.resolve(protocol.MessageSync, 99, 1)
	require.False(t, ok, "wrong sequence id must not resolve")

	e, ok := p.resolve(protocol.MessageSync, 42, 1)
	require.True(t, ok)
	require.Equal(t, int64(1000), e.sendTime)

	_, ok = p.resolve(protocol.MessageSync, 42, 1)
	require.False(t, ok, "resolve is one-shot")
}

func TestPendingTXTSExpired(t *testing.T) {
	p := newPendingTXTS()
	p.entries[txtsKey{protocol.MessageSync, 1, 0}] = txtsEntry{
		sendTime: 123,
		deadline: time.Now().Add(-time.Millisecond),
	}
	p.entries[txtsKey{protocol.MessagePDelayReq, 2, 0}] = txtsEntry{
		sendTime: 456,
		deadline: time.Now().Add(time.Hour),
	}

	evs := p.expired(time.Now())
	require.Len(t, evs, 1)
	require.Equal(t, KindTXTS, evs[0].Kind)
	require.True(t, evs[0].Synthetic)
	require.Equal(t, int64(123), evs[0].TxTimestamp)

	// the still-outstanding entry remains pending
	_, ok := p.resolve(protocol.MessagePDelayReq, 2, 0)
	require.True(t, ok)
}
