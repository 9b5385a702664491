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

// gptp2d is the gPTP/IEEE 802.1AS daemon: it loads a config.Config,
// wires a clockreg.Registry, a netport.Manager, and an
// orchestrator.Orchestrator together, and runs the event loop until
// signaled to stop. Flag parsing is limited to the config file path
// and an optional shared-memory window path (-window) per the ambient
// config section's scope (the struct and its
// validation are in scope, a full flag frontend is not).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/excelfore/gptp/clockreg"
	"github.com/excelfore/gptp/config"
	"github.com/excelfore/gptp/domain"
	"github.com/excelfore/gptp/gptpipc"
	"github.com/excelfore/gptp/netport"
	"github.com/excelfore/gptp/orchestrator"
	"github.com/excelfore/gptp/stats"
)

func main() {
	configPath := flag.String("config", "/etc/gptp2d.yaml", "path to gptp2d's YAML config file")
	windowPath := flag.String("window", "", "path to the shared-memory clock window file (disabled if empty)")
	flag.Parse()

	c, err := config.ReadConfig(*configPath)
	if err != nil {
		log.Fatalf("gptp2d: loading config: %v", err)
	}

	if !c.UseMgtSettableLogSyncInterval {
		log.Warn("gptp2d: useMgtSettableLogSyncInterval defaults to false here, deviating from the standard's default of true")
	}

	var window *clockreg.Window
	if *windowPath != "" {
		window, err = clockreg.OpenWindow(*windowPath, int32(len(c.Domains)))
		if err != nil {
			log.Fatalf("gptp2d: opening clock window %s: %v", *windowPath, err)
		}
		defer window.Close()
	}

	registry := clockreg.NewRegistry(window, c.ActiveDomainAutoSwitch)
	defer registry.Close()

	for _, d := range c.Domains {
		if err := registry.AddClock(0, "", d.DomainNumber, d.ThisClockID, nil); err != nil {
			log.Fatalf("gptp2d: adding grandmaster-facing clock entity for domain %d: %v", d.DomainNumber, err)
		}
		if err := registry.AddClock(c.ThisClockIndex, "", d.DomainNumber, d.ThisClockID, nil); err != nil {
			log.Fatalf("gptp2d: adding clock entity for domain %d: %v", d.DomainNumber, err)
		}
		if err := registry.SetThisClock(c.ThisClockIndex, d.DomainNumber); err != nil {
			log.Fatalf("gptp2d: setting this-clock for domain %d: %v", d.DomainNumber, err)
		}
	}

	gmStable := domain.NewGmStable()
	manager := netport.NewManager(100 * time.Millisecond)
	defer manager.Close()

	orch := orchestrator.New(manager, registry, gmStable)

	statsRegistry := stats.NewRegistry()
	orch.SetStats(statsRegistry)

	bus := gptpipc.NewBus()
	orch.SetBus(bus)

	for _, d := range c.Domains {
		orch.AddDomain(orchestrator.DomainConfig{
			DomainNumber:              d.DomainNumber,
			ThisClockID:               d.ThisClockID,
			SystemPriority:            d.PriorityVector(),
			TimeSource:                d.TimeSource,
			ExternalPortConfiguration: d.ExternalPortConfiguration,
			ConfiguredSlavePort:       d.ConfiguredSlavePort,
			LogAnnounceInterval:       d.LogAnnounceInterval,
			LogSyncInterval:           d.LogSyncInterval,
			LogLinkDelayInterval:      d.LogLinkDelayInterval,
			LogPdelayReqInterval:      d.LogPdelayReqInterval,
			LogGptpCapableInterval:    d.LogGptpCapableInterval,
			NeighborPropDelayThresh:   d.NeighborPropDelayThresh,
			AllowedLostResponses:      d.AllowedLostResponses,
			AllowedFaults:             d.AllowedFaults,
		})
	}
	for i, p := range c.Ports {
		if err := orch.AddPort(orchestrator.PortConfig{
			Index:     i + 1,
			IfaceName: p.IfaceName,
			PTPDev:    p.PTPDev,
			CMLDS:     p.CMLDS,
			Domains:   p.Domains,
		}); err != nil {
			log.Fatalf("gptp2d: adding port %s: %v", p.IfaceName, err)
		}
	}

	domainNumbers := make([]uint8, len(c.Domains))
	for i, d := range c.Domains {
		domainNumbers[i] = d.DomainNumber
	}
	registry.RunActiveDomainSelector(gmStable, domainNumbers, time.Second)
	defer registry.StopActiveDomainSelector()

	exporter := stats.NewPrometheusExporter(c.MetricsListenPort, statsRegistry)
	go func() {
		if err := exporter.ListenAndServe(); err != nil {
			log.Errorf("gptp2d: metrics exporter stopped: %v", err)
		}
	}()

	ipcServer := gptpipc.NewServer(c.IPCSocketPath, orch)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := ipcServer.ListenAndServe(ctx); err != nil {
			log.Errorf("gptp2d: ipc server stopped: %v", err)
		}
	}()

	if err := manager.Start(); err != nil {
		log.Fatalf("gptp2d: starting netport manager: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("gptp2d: shutting down")
		cancel()
	}()

	if err := orch.Run(ctx); err != nil && err != context.Canceled {
		log.Errorf("gptp2d: event loop stopped: %v", err)
	}
}

var _ gptpipc.DataSource = (*orchestrator.Orchestrator)(nil)
