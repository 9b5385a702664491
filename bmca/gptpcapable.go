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
	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/protocol"
)

// gPtpCapableReceiptTimeout is the receipt-timeout multiplier spec.md
// §4.5.7 applies to LOG_TO_NSEC(logGptpCapableMessageInterval).
const gPtpCapableReceiptTimeout = 3

// GPtpCapableTransmit emits a gPTP-capable Signaling TLV every
// logGptpCapableMessageInterval while the port is asCapable, spec.md
// §4.5.7.
type GPtpCapableTransmit struct {
	PortIndex int
	Interval  protocol.LogInterval
	sender    *mdsm.SignalingSendMachine
	target    protocol.PortIdentity

	nextDeadline int64
}

// NewGPtpCapableTransmit creates a gPtpCapableTransmit machine for one port.
func NewGPtpCapableTransmit(portIndex int, interval protocol.LogInterval, sender *mdsm.SignalingSendMachine, target protocol.PortIdentity) *GPtpCapableTransmit {
	return &GPtpCapableTransmit{PortIndex: portIndex, Interval: interval, sender: sender, target: target}
}

// Timeout transmits if due and asCapable is true; it stays silent and
// leaves the deadline armed for later otherwise so the first qualifying
// tick after asCapable flips true doesn't wait a full interval.
func (t *GPtpCapableTransmit) Timeout(asCapable bool, nowNs int64) error {
	if !asCapable {
		return nil
	}
	if t.nextDeadline == 0 {
		t.nextDeadline = nowNs
	}
	if nowNs < t.nextDeadline {
		return nil
	}
	if err := t.sender.SendGPTPCapable(t.target, mdsm.GPTPCapableMessage{
		PortIndex:                     t.PortIndex,
		LogGptpCapableMessageInterval: t.Interval,
	}, nowNs); err != nil {
		return err
	}
	t.nextDeadline = nowNs + t.Interval.Duration().Nanoseconds()
	return nil
}

// GPtpCapableReceive tracks neighborGptpCapable per spec.md §4.5.7:
// set true on receipt, arm a receipt timeout, clear on expiry.
type GPtpCapableReceive struct {
	PortIndex int

	NeighborGptpCapable bool
	deadline            int64
}

// NewGPtpCapableReceive creates a gPtpCapableReceive machine for one port.
func NewGPtpCapableReceive(portIndex int) *GPtpCapableReceive {
	return &GPtpCapableReceive{PortIndex: portIndex}
}

// Recv latches neighborGptpCapable and (re)arms the receipt timeout.
func (r *GPtpCapableReceive) Recv(msg mdsm.GPTPCapableMessage, nowNs int64) {
	r.NeighborGptpCapable = true
	r.deadline = nowNs + gPtpCapableReceiptTimeout*msg.LogGptpCapableMessageInterval.Duration().Nanoseconds()
}

// Timeout clears neighborGptpCapable once the receipt timeout elapses.
func (r *GPtpCapableReceive) Timeout(nowNs int64) {
	if r.NeighborGptpCapable && r.deadline != 0 && nowNs >= r.deadline {
		r.NeighborGptpCapable = false
		r.deadline = 0
	}
}
