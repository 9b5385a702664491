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
	"github.com/excelfore/gptp/protocol"
)

// RecvQualifiedAnnounce runs PortAnnounceInformation's classification
// step on an already-qualified Announce, spec.md §4.5.2: compares the
// message priority vector to the port's current portPriority and
// transitions among REPEATED/SUPERIOR/INFERIOR_MASTER_OR_OTHER_PORT.
func (p *Port) RecvQualifiedAnnounce(messagePriority PriorityVector, logMessageInterval protocol.LogInterval, nowNs int64) {
	switch Compare(messagePriority, p.PortPriority) {
	case Same:
		p.State = PortAnnounceRepeatedMasterPort
		p.refreshReceiptTimeout(logMessageInterval, nowNs)
	case Superior:
		p.State = PortAnnounceSuperiorMasterPort
		p.PortPriority = messagePriority
		p.refreshReceiptTimeout(logMessageInterval, nowNs)
		p.InfoIs = InfoReceived
		p.reselect = true
		p.selected = false
	default: // Inferior
		p.State = PortAnnounceInferiorMasterOrOtherPort
		if p.QuickUpdate && messagePriority.SourcePortIdentity == p.PortPriority.SourcePortIdentity {
			p.State = PortAnnounceAged
		}
	}
}

func (p *Port) refreshReceiptTimeout(logMessageInterval protocol.LogInterval, nowNs int64) {
	interval := logMessageInterval.Duration()
	p.AnnounceReceiptTimeoutTime = nowNs + receiptTimeoutMultiplier*interval.Nanoseconds()
	p.SyncReceiptTimeoutTime = nowNs + receiptTimeoutMultiplier*interval.Nanoseconds()
}

// RecvQualifiedAnnounceExt implements PortAnnounceInformationExt,
// spec.md §4.5.3: with externalPortConfiguration enabled, BMCA's
// priority comparison is bypassed entirely — every qualified Announce
// is recorded directly and portStepsRemoved advances by one.
func (p *Port) RecvQualifiedAnnounceExt(messagePriority PriorityVector) {
	p.PortPriority = messagePriority
	p.PortStepsRemoved++
	p.InfoIs = InfoReceived
	p.reselect = true
	p.selected = false
}

// Timeout ages CURRENT ports whose announceReceiptTimeoutTime (or, when
// a grandmaster is present, syncReceiptTimeoutTime) has expired,
// spec.md §4.5.2.
func (p *Port) Timeout(nowNs int64, gmPresent bool) {
	if p.State != PortAnnounceCurrent && p.State != PortAnnounceSuperiorMasterPort && p.State != PortAnnounceRepeatedMasterPort {
		return
	}
	expired := nowNs >= p.AnnounceReceiptTimeoutTime
	if gmPresent {
		expired = expired || nowNs >= p.SyncReceiptTimeoutTime
	}
	if expired {
		p.State = PortAnnounceAged
		p.InfoIs = InfoAged
		p.reselect = true
	}
}
