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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/excelfore/gptp/bmca"
	"github.com/excelfore/gptp/clockreg"
	"github.com/excelfore/gptp/domain"
	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/netport"
	"github.com/excelfore/gptp/protocol"
)

// fakeSender is an in-memory mdsm.Sender double, recording every
// transmitted message instead of touching a real network device.
type fakeSender struct {
	mu    sync.Mutex
	sent  []fakeSend
	extra int
}

type fakeSend struct {
	messageType  protocol.MessageType
	sequenceID   uint32
	domainNumber uint8
}

func (f *fakeSender) Send(payload []byte, messageType protocol.MessageType, sequenceID uint32, domainNumber uint8, nowLocalNs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fakeSend{messageType, sequenceID, domainNumber})
	return nil
}

func (f *fakeSender) ExtraTimeout(delta time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extra++
}

func newTestRegistry(domainNumber uint8, thisClockIndex int, thisClockID protocol.ClockIdentity) *clockreg.Registry {
	r := clockreg.NewRegistry(nil, clockreg.ActiveDomainManual)
	if err := r.AddClock(0, "", domainNumber, thisClockID, nil); err != nil {
		panic(err)
	}
	if thisClockIndex != 0 {
		if err := r.AddClock(thisClockIndex, "", domainNumber, thisClockID, nil); err != nil {
			panic(err)
		}
		if err := r.SetThisClock(thisClockIndex, domainNumber); err != nil {
			panic(err)
		}
	}
	return r
}

func newTestPortDomainState(t *testing.T, sender mdsm.Sender) (*portDomainState, *clockreg.Registry) {
	t.Helper()
	registry := newTestRegistry(0, 1, 0x1122_33ff_fe44_5566)
	cfg := DomainConfig{
		DomainNumber: 0,
		ThisClockID:  0x1122_33ff_fe44_5566,
	}
	pd := newPortDomainState(1, cfg, sender, registry, 1)
	return pd, registry
}

func TestIsGrandmasterTrueWhenInternalPortIsSlave(t *testing.T) {
	o := &Orchestrator{}
	selected := bmca.SelectedStates{0: bmca.SlavePort, 1: bmca.MasterPort}
	require.True(t, o.isGrandmaster(0, selected))
}

func TestIsGrandmasterFalseWhenInternalPortIsPassive(t *testing.T) {
	o := &Orchestrator{}
	selected := bmca.SelectedStates{0: bmca.PassivePort, 1: bmca.SlavePort}
	require.False(t, o.isGrandmaster(0, selected))
}

func TestAsCapableTrueFromGptpCapableMessage(t *testing.T) {
	o := &Orchestrator{}
	sender := &fakeSender{}
	pd, _ := newTestPortDomainState(t, sender)
	ps := &portState{
		pdelayReq: mdsm.NewPdelayReqMachine(1, mdsm.PdelayReqConfig{DomainNumber: 0}, sender, wallClock{}),
	}
	require.False(t, o.asCapable(pd, ps))

	pd.gptpCapRx.Recv(mdsm.GPTPCapableMessage{LogGptpCapableMessageInterval: protocol.LogInterval(0)}, 0)
	require.True(t, o.asCapable(pd, ps))
}

func TestHandleDevUpEnablesPdelayReq(t *testing.T) {
	o := &Orchestrator{ports: map[int]*portState{}}
	sender := &fakeSender{}
	ps := &portState{
		index:     1,
		pdelayReq: mdsm.NewPdelayReqMachine(1, mdsm.PdelayReqConfig{DomainNumber: 0}, sender, wallClock{}),
		domains:   map[uint8]*portDomainState{},
	}
	ps.pdelayReq.Disable()
	require.Equal(t, mdsm.PdelayReqNotEnabled, ps.pdelayReq.State())
	o.ports[1] = ps

	o.handleDevUp(netport.Event{PortIndex: 1})
	require.Equal(t, mdsm.PdelayReqInitialSend, ps.pdelayReq.State())
}

func TestHandleDevDownDisablesPdelayReq(t *testing.T) {
	o := &Orchestrator{ports: map[int]*portState{}}
	sender := &fakeSender{}
	ps := &portState{
		index:     1,
		pdelayReq: mdsm.NewPdelayReqMachine(1, mdsm.PdelayReqConfig{DomainNumber: 0}, sender, wallClock{}),
		domains:   map[uint8]*portDomainState{},
	}
	o.ports[1] = ps

	o.handleDevDown(netport.Event{PortIndex: 1})
	require.Equal(t, mdsm.PdelayReqNotEnabled, ps.pdelayReq.State())
	require.False(t, ps.pdelayReq.AsCapable())
}

func TestHandlePdelayResultFeedsEstimators(t *testing.T) {
	o := &Orchestrator{}
	sender := &fakeSender{}
	pd, _ := newTestPortDomainState(t, sender)
	ps := &portState{domains: map[uint8]*portDomainState{0: pd}}

	result := mdsm.PdelayResult{
		NeighborClockID: 0xaabb_ccff_fe11_2233,
		T1:              1_000_000_000,
		T2:              1_000_000_100,
		T3:              1_000_000_200,
		T4:              1_000_000_300,
	}
	o.handlePdelayResult(ps, result)
	require.Equal(t, protocol.ClockIdentity(0xaabb_ccff_fe11_2233), pd.neighborPortIdentity.ClockIdentity)

	// A second, well-spaced sample lets the rate-ratio filter produce
	// a real estimate instead of discarding for lack of a prior point.
	second := result
	second.T1 += int64(2 * 1_000_000_000)
	second.T2 += int64(2 * 1_000_000_000)
	second.T3 += int64(2 * 1_000_000_000)
	second.T4 += int64(2 * 1_000_000_000)
	o.handlePdelayResult(ps, second)
	require.InDelta(t, 1.0, pd.rateFilter.Mrate(), 0.01)
}

func TestHandleTXTSIgnoresUnknownDomain(t *testing.T) {
	o := &Orchestrator{ports: map[int]*portState{}}
	sender := &fakeSender{}
	ps := &portState{
		index:     1,
		pdelayReq: mdsm.NewPdelayReqMachine(1, mdsm.PdelayReqConfig{DomainNumber: 0}, sender, wallClock{}),
		domains:   map[uint8]*portDomainState{},
	}
	o.ports[1] = ps

	require.NotPanics(t, func() {
		o.handleTXTS(netport.Event{PortIndex: 1, MessageType: protocol.MessageSync, DomainNumber: 9})
	})
}

func TestHandleTXTSPdelayRespWithCMLDSDoesNotPanic(t *testing.T) {
	o := &Orchestrator{ports: map[int]*portState{}}
	sender := &fakeSender{}
	ps := &portState{
		index:      1,
		cmlds:      true,
		pdelayResp: mdsm.NewPdelayRespMachine(1, mdsm.PdelayRespConfig{}, sender, nil),
		domains:    map[uint8]*portDomainState{},
	}
	o.ports[1] = ps

	require.NotPanics(t, func() {
		o.handleTXTS(netport.Event{PortIndex: 1, MessageType: protocol.MessagePDelayResp, SequenceID: 1, DomainNumber: 0})
	})
}

func TestHandleRecvDropsUnparseablePayload(t *testing.T) {
	o := &Orchestrator{ports: map[int]*portState{}}
	sender := &fakeSender{}
	ps := &portState{
		index:      1,
		pdelayReq:  mdsm.NewPdelayReqMachine(1, mdsm.PdelayReqConfig{DomainNumber: 0}, sender, wallClock{}),
		pdelayResp: mdsm.NewPdelayRespMachine(1, mdsm.PdelayRespConfig{}, sender, nil),
		domains:    map[uint8]*portDomainState{},
	}
	o.ports[1] = ps

	require.NotPanics(t, func() {
		o.handleRecv(netport.Event{PortIndex: 1, Payload: []byte{0x01, 0x02}})
	})
}

func TestHandleTimeoutMakesInternalPortSlaveWithoutAnnounces(t *testing.T) {
	sender := &fakeSender{}
	registry := newTestRegistry(0, 1, 0x1122_33ff_fe44_5566)
	cfg := DomainConfig{DomainNumber: 0, ThisClockID: 0x1122_33ff_fe44_5566}
	dom := newDomainState(cfg, registry)
	pd := newPortDomainState(1, cfg, sender, registry, 1)

	ps := &portState{
		index:      1,
		pdelayReq:  mdsm.NewPdelayReqMachine(1, mdsm.PdelayReqConfig{DomainNumber: 0}, sender, wallClock{}),
		pdelayResp: mdsm.NewPdelayRespMachine(1, mdsm.PdelayRespConfig{}, sender, nil),
		domains:    map[uint8]*portDomainState{0: pd},
	}
	ps.pdelayReq.Enable()

	o := &Orchestrator{
		registry: registry,
		gmStable: domain.NewGmStable(),
		ports:    map[int]*portState{1: ps},
		domains:  map[uint8]*domainState{0: dom},
	}

	require.NotPanics(t, func() {
		o.handleTimeout(netport.Event{})
	})
	// The external port never received an Announce (infoIs stays
	// Disabled), so it contributes nothing and the internal port
	// defaults to Slave: this instance is its own grandmaster.
	require.True(t, dom.bmcaDomain.HaveGmPriority)
}
