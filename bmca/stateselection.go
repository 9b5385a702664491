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

// GmSyncSetter is the subset of clockreg.Registry PortStateSelection
// needs: arming setGmSync(true) when the internal port (0) transitions
// to Slave, spec.md §4.5.4.
type GmSyncSetter interface {
	SetGmSync(domainNumber uint8) error
	SetGmChange(domainNumber uint8, gmClockID protocol.ClockIdentity) error
}

// Domain holds the BMCA per-system globals spec.md §3 lists: pathTrace,
// systemPriority, gmPriority, lastGmPriority, masterStepsRemoved, and
// the externalPortConfiguration/quick-update mode flags.
type Domain struct {
	DomainNumber uint8

	PathTrace      []protocol.ClockIdentity
	SystemPriority PriorityVector
	GmPriority     PriorityVector
	LastGmPriority PriorityVector
	HaveGmPriority bool

	MasterStepsRemoved uint16

	ExternalPortConfiguration bool

	// GmStableInitDone defers setGmSync(true) on the internal port's
	// first transition to Slave until the estimator's (C7) stability
	// criteria are met, spec.md §4.5.4.
	GmStableInitDone bool

	clock GmSyncSetter
}

// NewDomain creates per-domain BMCA globals. clock may be nil in tests
// that don't exercise the GM-sync/GM-change side effects.
func NewDomain(domainNumber uint8, systemPriority PriorityVector, clock GmSyncSetter) *Domain {
	return &Domain{DomainNumber: domainNumber, SystemPriority: systemPriority, clock: clock}
}

// SelectedStates is PortStateSelection's per-port output, keyed by
// port index; port 0 is the internal ("this clock") port.
type SelectedStates map[int]SelectedState

// PortStateSelection runs spec.md §4.5.4's per-domain state selection
// across every port with its reselect flag raised (or unconditionally,
// callers may run it every cycle — it is idempotent when nothing
// changed). externalPorts excludes port 0, the internal port.
func (d *Domain) PortStateSelection(externalPorts map[int]*Port) SelectedStates {
	gmPriority := d.SystemPriority
	for _, p := range externalPorts {
		if cand := p.GmPathPriorityVector(); Compare(cand, gmPriority) == Superior {
			gmPriority = cand
		}
	}

	gmChanged := !d.HaveGmPriority || Compare(gmPriority, d.GmPriority) != Same
	if gmChanged {
		d.LastGmPriority = d.GmPriority
		d.GmPriority = gmPriority
		d.HaveGmPriority = true
		if d.clock != nil {
			if err := d.clock.SetGmChange(d.DomainNumber, gmPriority.ClockIdentity); err != nil {
				// clockreg logs internally; state selection still proceeds.
				_ = err
			}
		}
	}

	out := SelectedStates{}
	anySlave := false
	for idx, p := range externalPorts {
		state := selectedStateFor(p, gmPriority)
		out[idx] = state
		if state == SlavePort {
			anySlave = true
			p.IsSlave = true
		} else {
			p.IsSlave = false
		}
		p.reselect = false
		p.selected = true
	}

	internalState := PassivePort
	if !anySlave {
		internalState = SlavePort
	}
	out[0] = internalState
	if internalState == SlavePort && d.clock != nil && !d.GmStableInitDone {
		_ = d.clock.SetGmSync(d.DomainNumber)
	}

	if gmChanged {
		d.PathTrace = append([]protocol.ClockIdentity{}, gmPriority.ClockIdentity)
		d.MasterStepsRemoved = gmPriority.StepsRemoved
	}

	return out
}

// PortStateSettingExt implements the externalPortConfiguration variant
// of state selection, spec.md §4.5.4: each port's selectedState is
// taken directly from its configured role rather than derived from
// priority-vector comparison, matching PortAnnounceInformationExt's
// bypass of BMCA on the receive side.
func PortStateSettingExt(externalPorts map[int]*Port, configuredSlave map[int]bool) SelectedStates {
	out := SelectedStates{}
	anySlave := false
	for idx, p := range externalPorts {
		state := MasterPort
		if configuredSlave[idx] {
			state = SlavePort
			anySlave = true
		}
		out[idx] = state
		p.IsSlave = state == SlavePort
		p.reselect = false
		p.selected = true
	}
	internalState := PassivePort
	if !anySlave {
		internalState = SlavePort
	}
	out[0] = internalState
	return out
}

func selectedStateFor(p *Port, gmPriority PriorityVector) SelectedState {
	switch p.InfoIs {
	case InfoDisabled:
		return DisabledPort
	case InfoAged:
		p.UpdtInfo = true
		return MasterPort
	case InfoMine:
		changed := Compare(p.PortPriority, p.MasterPriority) != Same
		p.UpdtInfo = changed
		return MasterPort
	case InfoReceived:
		pathPriority := p.GmPathPriorityVector()
		if Compare(pathPriority, gmPriority) == Same {
			return SlavePort
		}
		if Compare(p.PortPriority, p.MasterPriority) == Superior {
			return MasterPort
		}
		return PassivePort
	default:
		return DisabledPort
	}
}
