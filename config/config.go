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

// Package config holds gptp2d's on-disk configuration: the struct and
// its defaults/validation, mirroring ptp/sptp/client/config.go. Flag
// parsing and the file-loading frontend stay out of scope; ReadConfig
// is provided for cmd/gptp2d to call directly.
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/excelfore/gptp/bmca"
	"github.com/excelfore/gptp/clockreg"
	"github.com/excelfore/gptp/protocol"
)

// PortConfig describes one physical port's wiring, yaml-tagged the way
// sptp/client's Config fields are.
type PortConfig struct {
	IfaceName string  `yaml:"iface"`
	PTPDev    string  `yaml:"ptp_dev"`
	CMLDS     bool    `yaml:"cmlds"`
	Domains   []uint8 `yaml:"domains"`
}

// DomainConfig describes one gPTP domain's tunables, yaml-tagged per
// spec.md §6's per-domain configuration options.
type DomainConfig struct {
	DomainNumber              uint8                 `yaml:"domain_number"`
	ThisClockID               protocol.ClockIdentity `yaml:"this_clock_id"`
	Priority1                 uint8                  `yaml:"priority1"`
	Priority2                 uint8                  `yaml:"priority2"`
	ClockClass                protocol.ClockClass    `yaml:"clock_class"`
	ClockAccuracy             protocol.ClockAccuracy `yaml:"clock_accuracy"`
	OffsetScaledLogVariance   uint16                 `yaml:"offset_scaled_log_variance"`
	TimeSource                protocol.TimeSource    `yaml:"time_source"`
	ExternalPortConfiguration bool                   `yaml:"external_port_configuration"`
	ConfiguredSlavePort       int                    `yaml:"configured_slave_port"`

	LogAnnounceInterval    protocol.LogInterval `yaml:"log_announce_interval"`
	LogSyncInterval        protocol.LogInterval `yaml:"log_sync_interval"`
	LogLinkDelayInterval   protocol.LogInterval `yaml:"log_link_delay_interval"`
	LogPdelayReqInterval   protocol.LogInterval `yaml:"log_pdelay_req_interval"`
	LogGptpCapableInterval protocol.LogInterval `yaml:"log_gptp_capable_interval"`

	NeighborPropDelayThresh int64 `yaml:"neighbor_prop_delay_thresh_ns"`
	AllowedLostResponses    int   `yaml:"allowed_lost_responses"`
	AllowedFaults           int   `yaml:"allowed_faults"`
}

// Config is gptp2d's full daemon configuration.
type Config struct {
	Ports   []PortConfig   `yaml:"ports"`
	Domains []DomainConfig `yaml:"domains"`

	// ActiveDomainAutoSwitch selects clockreg.Registry's active-domain
	// policy: 0 manual, 1 eager, 2 auto.
	ActiveDomainAutoSwitch clockreg.ActiveDomainAutoSwitch `yaml:"active_domain_auto_switch"`

	// ThisClockIndex is the clockreg.Registry entity index this daemon
	// steers; index 0 is always the grandmaster-facing entity.
	ThisClockIndex int `yaml:"this_clock_index"`

	MetricsListenPort int    `yaml:"metrics_listen_port"`
	IPCSocketPath     string `yaml:"ipc_socket_path"`

	// UseMgtSettableLogSyncInterval deviates from the standard's
	// default of true; kept false here per the documented Open
	// Question decision, with cmd/gptp2d logging the deviation once.
	UseMgtSettableLogSyncInterval bool `yaml:"use_mgt_settable_log_sync_interval"`
}

// Default values applied before unmarshaling overrides them, matching
// spec.md §6's named defaults.
const (
	DefaultLogAnnounceInterval       protocol.LogInterval = 0
	DefaultLogSyncInterval           protocol.LogInterval = -3
	DefaultLogPdelayReqInterval      protocol.LogInterval = 0
	DefaultLogGptpCapableInterval    protocol.LogInterval = 0
	DefaultNeighborPropDelayThreshNs int64                = 40_000
	DefaultAllowedLostResponses      int                  = 9
	DefaultAllowedFaults             int                  = 9
	DefaultMetricsListenPort         int                  = 8888
	DefaultIPCSocketPath             string               = "/var/run/gptp2d.sock"
)

// ReadConfig reads and parses a YAML config file, applying defaults to
// any domain that doesn't set its interval/fault fields explicitly.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	c := &Config{
		ActiveDomainAutoSwitch: clockreg.ActiveDomainAuto,
		MetricsListenPort:      DefaultMetricsListenPort,
		IPCSocketPath:          DefaultIPCSocketPath,
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Domains {
		d := &c.Domains[i]
		if d.LogSyncInterval == 0 && d.LogAnnounceInterval == 0 && d.LogPdelayReqInterval == 0 {
			d.LogSyncInterval = DefaultLogSyncInterval
			d.LogAnnounceInterval = DefaultLogAnnounceInterval
			d.LogPdelayReqInterval = DefaultLogPdelayReqInterval
		}
		if d.LogGptpCapableInterval == 0 {
			d.LogGptpCapableInterval = DefaultLogGptpCapableInterval
		}
		if d.NeighborPropDelayThresh == 0 {
			d.NeighborPropDelayThresh = DefaultNeighborPropDelayThreshNs
		}
		if d.AllowedLostResponses == 0 {
			d.AllowedLostResponses = DefaultAllowedLostResponses
		}
		if d.AllowedFaults == 0 {
			d.AllowedFaults = DefaultAllowedFaults
		}
		if !d.ExternalPortConfiguration {
			d.ConfiguredSlavePort = -1
		}
	}
}

// Validate checks the config for the errors spec.md §6 calls out as
// daemon-start failures: no ports, a port referencing an undeclared
// domain, or two domains sharing a domain number.
func (c *Config) Validate() error {
	if len(c.Ports) == 0 {
		return fmt.Errorf("config: at least one port is required")
	}
	domainNumbers := map[uint8]bool{}
	for _, d := range c.Domains {
		if domainNumbers[d.DomainNumber] {
			return fmt.Errorf("config: duplicate domain_number %d", d.DomainNumber)
		}
		domainNumbers[d.DomainNumber] = true
	}
	for _, p := range c.Ports {
		if p.IfaceName == "" {
			return fmt.Errorf("config: port missing iface")
		}
		for _, dn := range p.Domains {
			if !domainNumbers[dn] {
				return fmt.Errorf("config: port %s references undeclared domain %d", p.IfaceName, dn)
			}
		}
	}
	if c.ThisClockIndex == 0 {
		return fmt.Errorf("config: this_clock_index must be non-zero (0 is reserved for the grandmaster entity)")
	}
	return nil
}

// PriorityVector builds the bmca.PriorityVector this domain's system
// priority starts at, before any Announce traffic updates it.
func (d DomainConfig) PriorityVector() bmca.PriorityVector {
	return bmca.PriorityVector{
		Priority1:               d.Priority1,
		ClockClass:              d.ClockClass,
		ClockAccuracy:           d.ClockAccuracy,
		OffsetScaledLogVariance: d.OffsetScaledLogVariance,
		Priority2:               d.Priority2,
		ClockIdentity:           d.ThisClockID,
	}
}
