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

package orchestrator

import (
	"github.com/excelfore/gptp/bmca"
	"github.com/excelfore/gptp/protocol"
)

// PortConfig describes one physical network port to bring up.
type PortConfig struct {
	Index     int
	IfaceName string
	PTPDev    string
	CMLDS     bool
	Domains   []uint8 // domain numbers this port participates in
}

// DomainConfig describes one gPTP domain's tunables, spec.md §6's
// per-domain configuration options.
type DomainConfig struct {
	DomainNumber              uint8
	ThisClockID               protocol.ClockIdentity
	SystemPriority            bmca.PriorityVector
	TimeSource                protocol.TimeSource
	ExternalPortConfiguration bool
	ConfiguredSlavePort       int // STATIC_PORT_STATE_SLAVE_PORT, -1 if unset

	LogAnnounceInterval  protocol.LogInterval
	LogSyncInterval      protocol.LogInterval
	LogLinkDelayInterval protocol.LogInterval
	LogPdelayReqInterval protocol.LogInterval
	LogGptpCapableInterval protocol.LogInterval

	NeighborPropDelayThresh int64 // ns
	AllowedLostResponses    int
	AllowedFaults           int
}

// Config is the full orchestrator wiring configuration.
type Config struct {
	Domains []DomainConfig
	Ports   []PortConfig
}
