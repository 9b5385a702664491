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

// Package stats implements spec.md §6's STATSD/STATTD counters, kept as
// plain Go structs per SPEC_FULL.md's ambient-stack decision to expose
// them as Prometheus metrics rather than a bespoke datagram format, and
// exported through a Prometheus registry as in
// ptp/sptp/stats/prom_exporter.go, as named counters read from the
// in-process Registry at collect time (there is no scrape loop).
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/excelfore/gptp/gptpipc"
)

// SystemCounters mirrors gptpipc_statistics_system_t: one set per
// physical port, tallying the port-wide Pdelay exchange regardless of
// which domain (if any) it's attributed to.
type SystemCounters struct {
	PdelayReqSend         atomic.Uint32
	PdelayRespRec         atomic.Uint32
	PdelayRespRecValid    atomic.Uint32
	PdelayRespFupRec      atomic.Uint32
	PdelayRespFupRecValid atomic.Uint32
	PdelayReqRec          atomic.Uint32
	PdelayReqRecValid     atomic.Uint32
	PdelayRespSend        atomic.Uint32
	PdelayRespFupSend     atomic.Uint32
}

// Snapshot reads SystemCounters into gptpipc's query/export type.
func (c *SystemCounters) Snapshot(portIndex int) gptpipc.StatsSystemData {
	return gptpipc.StatsSystemData{
		PortIndex:             int32(portIndex),
		PdelayReqSend:         c.PdelayReqSend.Load(),
		PdelayRespRec:         c.PdelayRespRec.Load(),
		PdelayRespRecValid:    c.PdelayRespRecValid.Load(),
		PdelayRespFupRec:      c.PdelayRespFupRec.Load(),
		PdelayRespFupRecValid: c.PdelayRespFupRecValid.Load(),
		PdelayReqRec:          c.PdelayReqRec.Load(),
		PdelayReqRecValid:     c.PdelayReqRecValid.Load(),
		PdelayRespSend:        c.PdelayRespSend.Load(),
		PdelayRespFupSend:     c.PdelayRespFupSend.Load(),
	}
}

// TasCounters mirrors gptpipc_statistics_tas_t: one set per
// (domain, port), tallying the time-aware-system message traffic.
type TasCounters struct {
	SyncSend              atomic.Uint32
	SyncFupSend           atomic.Uint32
	SyncRec               atomic.Uint32
	SyncRecValid          atomic.Uint32
	SyncFupRec            atomic.Uint32
	SyncFupRecValid       atomic.Uint32
	AnnounceSend          atomic.Uint32
	AnnounceRec           atomic.Uint32
	AnnounceRecValid      atomic.Uint32
	SignalMsgIntervalSend atomic.Uint32
	SignalGptpCapableSend atomic.Uint32
	SignalRec             atomic.Uint32
	SignalMsgIntervalRec  atomic.Uint32
	SignalGptpCapableRec  atomic.Uint32
}

// Snapshot reads TasCounters into gptpipc's query/export type.
func (c *TasCounters) Snapshot(domainNumber uint8, portIndex int) gptpipc.StatsTasData {
	return gptpipc.StatsTasData{
		DomainNumber:          int32(domainNumber),
		PortIndex:             int32(portIndex),
		SyncSend:              c.SyncSend.Load(),
		SyncFupSend:           c.SyncFupSend.Load(),
		SyncRec:               c.SyncRec.Load(),
		SyncRecValid:          c.SyncRecValid.Load(),
		SyncFupRec:            c.SyncFupRec.Load(),
		SyncFupRecValid:       c.SyncFupRecValid.Load(),
		AnnounceSend:          c.AnnounceSend.Load(),
		AnnounceRec:           c.AnnounceRec.Load(),
		AnnounceRecValid:      c.AnnounceRecValid.Load(),
		SignalMsgIntervalSend: c.SignalMsgIntervalSend.Load(),
		SignalGptpCapableSend: c.SignalGptpCapableSend.Load(),
		SignalRec:             c.SignalRec.Load(),
		SignalMsgIntervalRec:  c.SignalMsgIntervalRec.Load(),
		SignalGptpCapableRec:  c.SignalGptpCapableRec.Load(),
	}
}

type tasKey struct {
	domainNumber uint8
	portIndex    int
}

// Registry owns every port's and (domain,port)'s counters, created
// lazily on first touch so callers never need to pre-declare their
// port/domain set.
type Registry struct {
	mu     sync.RWMutex
	system map[int]*SystemCounters
	tas    map[tasKey]*TasCounters
}

// NewRegistry creates an empty counters registry.
func NewRegistry() *Registry {
	return &Registry{
		system: map[int]*SystemCounters{},
		tas:    map[tasKey]*TasCounters{},
	}
}

// System returns (creating if needed) portIndex's SystemCounters.
func (r *Registry) System(portIndex int) *SystemCounters {
	r.mu.RLock()
	c, ok := r.system[portIndex]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.system[portIndex]; ok {
		return c
	}
	c = &SystemCounters{}
	r.system[portIndex] = c
	return c
}

// Tas returns (creating if needed) (domainNumber,portIndex)'s
// TasCounters.
func (r *Registry) Tas(domainNumber uint8, portIndex int) *TasCounters {
	key := tasKey{domainNumber, portIndex}
	r.mu.RLock()
	c, ok := r.tas[key]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.tas[key]; ok {
		return c
	}
	c = &TasCounters{}
	r.tas[key] = c
	return c
}

// SystemSnapshot returns portIndex's counters if it has been touched.
func (r *Registry) SystemSnapshot(portIndex int) (gptpipc.StatsSystemData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.system[portIndex]
	if !ok {
		return gptpipc.StatsSystemData{}, false
	}
	return c.Snapshot(portIndex), true
}

// TasSnapshot returns (domainNumber,portIndex)'s counters if touched.
func (r *Registry) TasSnapshot(domainNumber uint8, portIndex int) (gptpipc.StatsTasData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.tas[tasKey{domainNumber, portIndex}]
	if !ok {
		return gptpipc.StatsTasData{}, false
	}
	return c.Snapshot(domainNumber, portIndex), true
}

// AllSystem returns a snapshot of every touched port's counters.
func (r *Registry) AllSystem() []gptpipc.StatsSystemData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]gptpipc.StatsSystemData, 0, len(r.system))
	for idx, c := range r.system {
		out = append(out, c.Snapshot(idx))
	}
	return out
}

// AllTas returns a snapshot of every touched (domain,port)'s counters.
func (r *Registry) AllTas() []gptpipc.StatsTasData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]gptpipc.StatsTasData, 0, len(r.tas))
	for key, c := range r.tas {
		out = append(out, c.Snapshot(key.domainNumber, key.portIndex))
	}
	return out
}
