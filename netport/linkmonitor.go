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
	"time"

	"github.com/jsimonetti/rtnetlink"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// linkMonitor polls link state over netlink (replacing an ioctl poll
// loop) and raises DEVUP/DEVDOWN events on transitions. Polling, rather
// than subscribing to RTMGRP_LINK multicast notifications, keeps this
// on the same TIMEOUT-driven cadence as every other machine in the
// daemon (spec.md §5), and needs nothing from the kernel beyond
// rtnetlink's Link.List().
type linkMonitor struct {
	conn  *rtnetlink.Conn
	ports []*Port
	up    map[int]bool // ifindex -> last known up state
}

func newLinkMonitor(ports []*Port) (*linkMonitor, error) {
	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, err
	}
	return &linkMonitor{conn: conn, ports: ports, up: make(map[int]bool)}, nil
}

// poll checks every monitored port's link state and returns any
// DEVUP/DEVDOWN transitions since the previous poll.
func (m *linkMonitor) poll() []Event {
	links, err := m.conn.Link.List()
	if err != nil {
		log.Warnf("netport: listing links: %v", err)
		return nil
	}
	byName := make(map[string]rtnetlink.LinkMessage, len(links))
	for _, l := range links {
		if l.Attributes != nil {
			byName[l.Attributes.Name] = l
		}
	}

	var events []Event
	for _, p := range m.ports {
		link, ok := byName[p.Name]
		if !ok {
			continue
		}
		nowUp := link.Flags&unix.IFF_RUNNING != 0 && link.Flags&unix.IFF_UP != 0
		wasUp, seen := m.up[p.Index]
		m.up[p.Index] = nowUp
		if seen && wasUp == nowUp {
			continue
		}
		if nowUp {
			events = append(events, Event{
				Kind:       KindDevUp,
				PortIndex:  p.Index,
				FullDuplex: true, // duplex/speed require an ethtool ioctl, out of netport's interface contract (SPEC_FULL.md Non-goals)
				PortID:     extendedPortID(p.srcMAC),
				PTPDev:     p.PTPDev,
			})
		} else {
			events = append(events, Event{Kind: KindDevDown, PortIndex: p.Index})
		}
	}
	return events
}

func (m *linkMonitor) close() error {
	return m.conn.Close()
}

// extendedPortID derives the IEEE 802.1AS extended (EUI-64-style)
// port identifier from a 6-byte MAC: ff:fe inserted at the midpoint.
func extendedPortID(mac []byte) [8]byte {
	var id [8]byte
	if len(mac) != 6 {
		return id
	}
	copy(id[0:3], mac[0:3])
	id[3] = 0xff
	id[4] = 0xfe
	copy(id[5:8], mac[3:6])
	return id
}

// linkPollInterval is how often the Manager re-checks link state.
const linkPollInterval = 1 * time.Second
