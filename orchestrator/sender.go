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

// Package orchestrator implements spec.md §5's event loop (C8): a
// single-threaded, run-to-completion dispatcher that reads
// netport.Event values off netport.Manager's channel and drives every
// per-port (mdsm, bmca) and per-domain (domain, estimator) state
// machine built in the other packages, applying the resulting
// corrections through clockreg.
package orchestrator

import (
	"time"

	"github.com/excelfore/gptp/netport"
	"github.com/excelfore/gptp/protocol"
)

// portSender adapts one netport.Port plus the owning netport.Manager
// into the mdsm.Sender interface: Send goes to the port, ExtraTimeout
// is a Manager-wide wake-up request (netport.Manager only exposes it
// at that scope, there is no earlier-wake-up concept per port).
type portSender struct {
	port    *netport.Port
	manager *netport.Manager
}

func newPortSender(port *netport.Port, manager *netport.Manager) *portSender {
	return &portSender{port: port, manager: manager}
}

func (s *portSender) Send(payload []byte, messageType protocol.MessageType, sequenceID uint32, domainNumber uint8, nowLocalNs int64) error {
	return s.port.Send(payload, messageType, sequenceID, domainNumber, nowLocalNs)
}

func (s *portSender) ExtraTimeout(delta time.Duration) {
	s.manager.ExtraTimeout(delta)
}
