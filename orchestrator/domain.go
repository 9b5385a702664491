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
	"github.com/excelfore/gptp/clockreg"
	"github.com/excelfore/gptp/domain"
)

// domainState bundles spec.md §3's "per-time-aware-system globals (one
// per domain)": the BMCA system globals, the Sync-propagation relay,
// and the grandmaster/slave clock machines.
type domainState struct {
	cfg DomainConfig

	bmcaDomain *bmca.Domain
	siteSync   *domain.SiteSyncSync

	clockMasterSend   *domain.ClockMasterSyncSend
	clockMasterOffset *domain.ClockMasterSyncOffset
	clockSlaveSync    *domain.ClockSlaveSync

	configuredSlave map[int]bool // port index -> statically-configured Slave
}

func newDomainState(cfg DomainConfig, registry *clockreg.Registry) *domainState {
	bmcaDomain := bmca.NewDomain(cfg.DomainNumber, cfg.SystemPriority, registry)
	siteSync := domain.NewSiteSyncSync(cfg.DomainNumber)

	masterClock := &registryMasterClock{registry: registry, domainNumber: cfg.DomainNumber}
	clockMasterSend := domain.NewClockMasterSyncSend(cfg.DomainNumber, cfg.ThisClockID, 0, masterClock)
	clockMasterOffset := &domain.ClockMasterSyncOffset{}
	clockSlaveSync := &domain.ClockSlaveSync{DomainNumber: int(cfg.DomainNumber)}

	configuredSlave := map[int]bool{}
	if cfg.ExternalPortConfiguration && cfg.ConfiguredSlavePort >= 0 {
		configuredSlave[cfg.ConfiguredSlavePort] = true
	}

	return &domainState{
		cfg:               cfg,
		bmcaDomain:        bmcaDomain,
		siteSync:          siteSync,
		clockMasterSend:   clockMasterSend,
		clockMasterOffset: clockMasterOffset,
		clockSlaveSync:    clockSlaveSync,
		configuredSlave:   configuredSlave,
	}
}
