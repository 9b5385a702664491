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
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/excelfore/gptp/bmca"
	"github.com/excelfore/gptp/clockreg"
	"github.com/excelfore/gptp/domain"
	"github.com/excelfore/gptp/gptpipc"
	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/netport"
	"github.com/excelfore/gptp/protocol"
	"github.com/excelfore/gptp/stats"
)

// Orchestrator is the single-threaded, run-to-completion event loop of
// spec.md §5: it owns every per-port and per-domain state machine and
// drives them exclusively from netport.Manager's Event channel, never
// blocking and never touching a machine from more than one goroutine.
type Orchestrator struct {
	manager  *netport.Manager
	registry *clockreg.Registry
	gmStable *domain.GmStable

	ports   map[int]*portState
	domains map[uint8]*domainState

	stats *stats.Registry
	bus   *gptpipc.Bus
}

// New creates an Orchestrator wired to manager/registry/gmStable. Call
// AddDomain and AddPort to populate it, then Run to drive it.
func New(manager *netport.Manager, registry *clockreg.Registry, gmStable *domain.GmStable) *Orchestrator {
	return &Orchestrator{
		manager:  manager,
		registry: registry,
		gmStable: gmStable,
		ports:    make(map[int]*portState),
		domains:  make(map[uint8]*domainState),
	}
}

// AddDomain registers a gPTP domain's per-system globals.
func (o *Orchestrator) AddDomain(cfg DomainConfig) {
	o.domains[cfg.DomainNumber] = newDomainState(cfg, o.registry)
}

// AddPort opens a physical port through the Manager and instantiates
// its domain-independent Pdelay machines plus one portDomainState per
// domain named in cfg.Domains.
func (o *Orchestrator) AddPort(cfg PortConfig) error {
	netPort, err := o.manager.AddPort(cfg.Index, cfg.IfaceName, cfg.PTPDev, cfg.CMLDS)
	if err != nil {
		return fmt.Errorf("orchestrator: adding port %d: %w", cfg.Index, err)
	}
	sender := newPortSender(netPort, o.manager)
	ps := newPortState(cfg.Index, netPort, sender, cfg.CMLDS)

	if len(cfg.Domains) == 0 {
		return fmt.Errorf("orchestrator: port %d has no domains configured", cfg.Index)
	}
	ps.primaryDomain = cfg.Domains[0]

	pdelayCfg := mdsm.PdelayReqConfig{
		DomainNumber: ps.primaryDomain,
		CMLDS:        cfg.CMLDS,
	}
	for _, domainNumber := range cfg.Domains {
		dom, ok := o.domains[domainNumber]
		if !ok {
			return fmt.Errorf("orchestrator: port %d references unregistered domain %d", cfg.Index, domainNumber)
		}
		if domainNumber == ps.primaryDomain {
			pdelayCfg.ThisClockID = dom.cfg.ThisClockID
			pdelayCfg.NeighborPropDelayThresh = dom.cfg.NeighborPropDelayThresh
			pdelayCfg.AllowedLostResponses = dom.cfg.AllowedLostResponses
			pdelayCfg.AllowedFaults = dom.cfg.AllowedFaults
			pdelayCfg.LogPdelayReqInterval = dom.cfg.LogPdelayReqInterval
		}
		thisClockIndex := o.registry.ThisClockIndex(domainNumber)
		ps.domains[domainNumber] = newPortDomainState(cfg.Index, dom.cfg, sender, o.registry, thisClockIndex)
	}

	ps.pdelayReq = mdsm.NewPdelayReqMachine(cfg.Index, pdelayCfg, sender, wallClock{})
	ps.pdelayResp = mdsm.NewPdelayRespMachine(cfg.Index, mdsm.PdelayRespConfig{LogMessageInterval: pdelayCfg.LogPdelayReqInterval}, sender, nil)
	ps.pdelayReq.Enable()

	o.ports[cfg.Index] = ps
	return nil
}

// Run consumes netport.Manager events until ctx is canceled or the
// event channel closes.
func (o *Orchestrator) Run(ctx context.Context) error {
	events := o.manager.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.handleEvent(ev)
		}
	}
}

func (o *Orchestrator) handleEvent(ev netport.Event) {
	switch ev.Kind {
	case netport.KindRecv:
		o.handleRecv(ev)
	case netport.KindTXTS:
		o.handleTXTS(ev)
	case netport.KindDevUp:
		o.handleDevUp(ev)
	case netport.KindDevDown:
		o.handleDevDown(ev)
	case netport.KindTimeout:
		o.handleTimeout(ev)
	}
}

func (o *Orchestrator) handleDevUp(ev netport.Event) {
	ps, ok := o.ports[ev.PortIndex]
	if !ok {
		return
	}
	ps.linkUp = true
	ps.pdelayReq.Enable()
	log.WithField("port", ev.PortIndex).Info("orchestrator: link up")
}

func (o *Orchestrator) handleDevDown(ev netport.Event) {
	ps, ok := o.ports[ev.PortIndex]
	if !ok {
		return
	}
	ps.linkUp = false
	ps.pdelayReq.Disable()
	log.WithField("port", ev.PortIndex).Warn("orchestrator: link down")
}

// isGrandmaster reports whether domainNumber's internal port (0) is
// currently the Slave selection, i.e. no external port outranks it:
// this instance is the root of the domain's sync tree.
func (o *Orchestrator) isGrandmaster(domainNumber uint8, selected bmca.SelectedStates) bool {
	return selected[0] == bmca.SlavePort
}

func (o *Orchestrator) asCapable(pd *portDomainState, ps *portState) bool {
	return ps.pdelayReq.AsCapable() || pd.gptpCapRx.NeighborGptpCapable
}
