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
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// MulticastGroupAddr is the gPTP L2 multicast destination,
// 802.1AS §10.5.2.2.2: 01:80:C2:00:00:0E.
var MulticastGroupAddr = net.HardwareAddr{0x01, 0x80, 0xC2, 0x00, 0x00, 0x0E}

// PdelayGroupAddr is used for Pdelay exchanges under the "non-forwardable"
// rule; this daemon always addresses Pdelay to the same group as every
// other gPTP message, matching 802.1AS's default bridge configuration.
var PdelayGroupAddr = MulticastGroupAddr

// EtherTypeGPTP is the gPTP EtherType, 802.1AS §10.5.2.2.3: 0x88F7.
const EtherTypeGPTP = 0x88F7

// bpfFilter is the libpcap filter string applied to every port's capture
// handle so only gPTP frames reach userspace.
const bpfFilter = "ether proto 0x88f7"

// frameOverhead is the size of the Ethernet header this package prepends
// to every gPTP payload (no 802.1Q tag).
const frameOverhead = 14

// buildFrame wraps a gPTP message payload in an untagged Ethernet II
// frame addressed to the gPTP multicast group.
func buildFrame(srcMAC net.HardwareAddr, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       MulticastGroupAddr,
		EthernetType: layers.EthernetType(EtherTypeGPTP),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("netport: serializing frame: %w", err)
	}
	return buf.Bytes(), nil
}

// parseFrame strips the Ethernet header from a captured frame, returning
// the gPTP payload, the frame's source MAC, and whether the frame was a
// well-formed gPTP Ethernet frame. Telling our own looped-back
// transmissions apart is left to isOwnTransmission.
func parseFrame(data []byte) (payload []byte, srcMAC net.HardwareAddr, ok bool) {
	if len(data) < frameOverhead {
		return nil, nil, false
	}
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return nil, nil, false
	}
	eth, ok := ethLayer.(*layers.Ethernet)
	if !ok || eth.EthernetType != layers.EthernetType(EtherTypeGPTP) {
		return nil, nil, false
	}
	return eth.Payload, eth.SrcMAC, true
}
