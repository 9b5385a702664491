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
	"github.com/excelfore/gptp/gptpipc"
	"github.com/excelfore/gptp/stats"
)

// SetStats wires a stats.Registry so the event loop's message handlers
// increment per-port/per-(domain,port) counters as traffic flows; nil
// (the default) disables counting.
func (o *Orchestrator) SetStats(s *stats.Registry) { o.stats = s }

// SetBus wires a gptpipc.Bus so notable state transitions (AS-capable
// flips, grandmaster changes) are published as gptpipc.Notice events;
// nil (the default) disables publishing.
func (o *Orchestrator) SetBus(b *gptpipc.Bus) { o.bus = b }

// NDPort answers gptpipc.DataSource's network-device query: whether
// portIndex is known to this Orchestrator and, if so, its interface
// name, PTP device, and observed link state.
func (o *Orchestrator) NDPort(portIndex int) (gptpipc.NDPortData, bool) {
	ps, ok := o.ports[portIndex]
	if !ok {
		return gptpipc.NDPortData{}, false
	}
	return gptpipc.NDPortData{
		Up:      ps.linkUp,
		DevName: ps.netPort.Name,
		PTPDev:  ps.netPort.PTPDev,
	}, true
}

// GPort answers gptpipc.DataSource's per-(domain,port) BMCA query.
func (o *Orchestrator) GPort(domainNumber uint8, portIndex int) (gptpipc.GPortData, bool) {
	ps, ok := o.ports[portIndex]
	if !ok {
		return gptpipc.GPortData{}, false
	}
	pd, ok := ps.domains[domainNumber]
	if !ok {
		return gptpipc.GPortData{}, false
	}
	return gptpipc.GPortData{
		DomainNumber:    int32(domainNumber),
		PortIndex:       int32(portIndex),
		GmClockID:       pd.bmcaPort.MasterPriority.ClockIdentity,
		AsCapable:       o.asCapable(pd, ps),
		PortOper:        ps.linkUp,
		GmStable:        o.gmStable.GmStable(domainNumber),
		SelectedState:   pd.lastSelectedState,
		AnnPathSequence: pd.bmcaPort.AnnPathSequence,
	}, true
}

// Clock answers gptpipc.DataSource's per-domain clock query.
func (o *Orchestrator) Clock(domainNumber uint8) (gptpipc.ClockData, bool) {
	dom, ok := o.domains[domainNumber]
	if !ok {
		return gptpipc.ClockData{}, false
	}
	return gptpipc.ClockData{
		DomainNumber:     int32(domainNumber),
		ClockID:          dom.cfg.ThisClockID,
		GmClockID:        dom.bmcaDomain.GmPriority.ClockIdentity,
		GmSync:           o.gmStable.GmStable(domainNumber),
		DomainActive:     dom.bmcaDomain.HaveGmPriority,
		LastGmFreqChange: dom.clockMasterOffset.ClockSourceFreqOffset,
	}, true
}

// StatsSystem answers gptpipc.DataSource's per-port Pdelay counters.
func (o *Orchestrator) StatsSystem(portIndex int) (gptpipc.StatsSystemData, bool) {
	if o.stats == nil {
		return gptpipc.StatsSystemData{}, false
	}
	return o.stats.SystemSnapshot(portIndex)
}

// StatsTas answers gptpipc.DataSource's per-(domain,port) TAS counters.
func (o *Orchestrator) StatsTas(domainNumber uint8, portIndex int) (gptpipc.StatsTasData, bool) {
	if o.stats == nil {
		return gptpipc.StatsTasData{}, false
	}
	return o.stats.TasSnapshot(domainNumber, portIndex)
}
