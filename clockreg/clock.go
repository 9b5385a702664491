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

// Package clockreg owns every gPTP clock entity (hardware-backed or
// virtual), applies phase and frequency adjustments on their behalf, and
// maintains the cross-process shared-memory window external readers use
// to observe the synchronized master clock without an IPC round trip.
package clockreg

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/excelfore/gptp/protocol"
)

// Mode is the adjustment discipline a clock Entity operates under.
type Mode int

// Clock entity modes, §4.1.
const (
	// ModeMaster applies phase offset in software; the underlying clock
	// (if any) is never adjusted.
	ModeMaster Mode = iota
	// ModeSlaveMain disciplines the underlying hardware clock directly;
	// reads pass through untouched.
	ModeSlaveMain
	// ModeSlaveSub applies both phase and frequency in software on top
	// of an undisciplined hardware clock.
	ModeSlaveSub
)

func (m Mode) String() string {
	switch m {
	case ModeMaster:
		return "Master"
	case ModeSlaveMain:
		return "SlaveMain"
	case ModeSlaveSub:
		return "SlaveSub"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// HWClock is the subset of phc.Device (or a virtual stand-in) a clock
// Entity disciplines. ClockIndex 0 of each domain uses a virtual
// implementation backed by time.Now(); clockIndex > 0 entities wrap an
// actual PTP Hardware Clock device.
type HWClock interface {
	Now() (time.Time, error)
	AdjFreq(freqPPB float64) error
	Step(delta time.Duration) error
	Writable() bool
	Close() error
}

// virtualClock is the HWClock for the per-domain logical master clock
// (clockIndex 0): it has no hardware backing, so frequency adjustment
// and stepping are not meaningful operations on it directly -- all
// discipline happens through Entity.offset64/adjrate instead.
type virtualClock struct{}

func (virtualClock) Now() (time.Time, error)         { return time.Now(), nil }
func (virtualClock) AdjFreq(_ float64) error         { return fmt.Errorf("clockreg: virtual clock cannot be frequency-adjusted directly") }
func (virtualClock) Step(_ time.Duration) error      { return fmt.Errorf("clockreg: virtual clock cannot be stepped directly") }
func (virtualClock) Writable() bool                  { return false }
func (virtualClock) Close() error                    { return nil }

// entityKey identifies an Entity within the Registry.
type entityKey struct {
	clockIndex   int
	domainNumber uint8
}

// Entity is one gPTP clock: either the per-domain logical master clock
// (clockIndex 0) or a specific network port's hardware PTP clock.
type Entity struct {
	mu sync.Mutex

	ClockIndex   int
	DomainNumber uint8
	PTPDev       string
	ClockID      protocol.ClockIdentity
	Mode         Mode

	hw HWClock

	offset64    int64 // ns, Master/SlaveSub phase offset
	adjrate     float64 // unitless ratio delta, SlaveSub only
	lastSetTs64 int64   // ns, anchor point for adjrate extrapolation

	ts2diff time.Duration // measured setOffset round-trip cost, set at addClock

	gmSync      bool
	gmChangeInd uint32

	pendingGmChange  bool
	lastGmPhaseChange protocol.ScaledNs
}

func newEntity(clockIndex int, domainNumber uint8, ptpdev string, clockID protocol.ClockIdentity, hw HWClock) (*Entity, error) {
	e := &Entity{
		ClockIndex:   clockIndex,
		DomainNumber: domainNumber,
		PTPDev:       ptpdev,
		ClockID:      clockID,
		Mode:         ModeMaster,
		hw:           hw,
	}
	start := time.Now()
	if _, err := hw.Now(); err != nil {
		return nil, fmt.Errorf("clockreg: opening clock %d/%d (%s): %w", clockIndex, domainNumber, ptpdev, err)
	}
	e.ts2diff = time.Since(start)
	if e.ts2diff <= 0 {
		e.ts2diff = time.Microsecond
	}
	return e, nil
}

// rawHW reads the underlying hardware (or virtual) clock as ns since
// the PTP epoch.
func (e *Entity) rawHW() (int64, error) {
	t, err := e.hw.Now()
	if err != nil {
		return 0, err
	}
	return t.UnixNano(), nil
}

// getTs64 returns the current time of this entity, applying its mode's
// software adjustment.
func (e *Entity) getTs64() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getTs64Locked()
}

func (e *Entity) getTs64Locked() (int64, error) {
	raw, err := e.rawHW()
	if err != nil {
		return 0, err
	}
	switch e.Mode {
	case ModeSlaveMain:
		return raw, nil
	case ModeSlaveSub:
		return raw + e.offset64 + int64(e.adjrate*float64(raw-e.lastSetTs64)), nil
	default: // ModeMaster
		return raw + e.offset64, nil
	}
}

// setTs64 phase-jumps the entity to target.
func (e *Entity) setTs64(target int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.Mode {
	case ModeSlaveMain:
		raw, err := e.rawHW()
		if err != nil {
			return err
		}
		return e.hw.Step(time.Duration(target - raw))
	default: // Master, SlaveSub
		raw, err := e.rawHW()
		if err != nil {
			return err
		}
		e.offset64 = target - raw
		e.lastSetTs64 = raw
		return nil
	}
}

// setOffset64 incrementally shifts the entity's phase by delta ns.
func (e *Entity) setOffset64(delta int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()
	switch e.Mode {
	case ModeSlaveMain:
		if err := e.hw.Step(time.Duration(delta)); err != nil {
			return err
		}
	default: // Master, SlaveSub
		e.offset64 += delta
	}
	if elapsed := time.Since(start); e.ts2diff > 0 && elapsed > 10*e.ts2diff {
		log.WithFields(log.Fields{"clockIndex": e.ClockIndex, "domain": e.DomainNumber}).
			Warnf("setOffset64 took %s, more than 10x the measured ts2diff (%s)", elapsed, e.ts2diff)
	}
	if e.pendingGmChange {
		e.lastGmPhaseChange = protocol.NewScaledNs(delta)
		e.pendingGmChange = false
	}
	return nil
}

// setAdj sets the frequency adjustment, in parts-per-billion.
func (e *Entity) setAdj(ppb float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.Mode {
	case ModeMaster:
		return fmt.Errorf("clockreg: cannot setAdj on a Master-mode clock")
	case ModeSlaveMain:
		return e.hw.AdjFreq(ppb)
	default: // ModeSlaveSub
		e.adjrate = ppb / 1e9
		raw, err := e.rawHW()
		if err != nil {
			return err
		}
		e.lastSetTs64 = raw
		return nil
	}
}

// setGmChange latches the pre-change offset baseline and bumps the
// grandmaster-change indicator; the next setOffset64 call records the
// resulting phase jump into lastGmPhaseChange.
func (e *Entity) setGmChange() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gmChangeInd++
	e.pendingGmChange = true
}

// Registry owns every clock Entity in the daemon, keyed by
// (clockIndex, domainNumber), and the shared-memory window writer.
type Registry struct {
	mu       sync.RWMutex
	entities map[entityKey]*Entity

	thisClockIndex map[uint8]int // domainNumber -> clockIndex designated thisClock

	window *Window

	autoSwitch      ActiveDomainAutoSwitch
	stopSelector    chan struct{}
	selectorRunning bool
}

// ActiveDomainAutoSwitch controls how the registry picks the domain
// exposed to shared-window readers as the default, §4.1 "Active-domain
// selection".
type ActiveDomainAutoSwitch int

// Modes for ActiveDomainAutoSwitch. Values are a local convention --
// the wire protocol never carries them -- but 2 (Auto) matches the
// ACTIVE_DOMAIN_AUTO_SWITCH(2) default named in spec.md §6.
const (
	ActiveDomainManual ActiveDomainAutoSwitch = 0
	ActiveDomainEager  ActiveDomainAutoSwitch = 1
	ActiveDomainAuto   ActiveDomainAutoSwitch = 2
)

// NewRegistry creates an empty Registry backed by the given shared
// memory Window (may be nil in tests that don't exercise the shared
// window).
func NewRegistry(window *Window, autoSwitch ActiveDomainAutoSwitch) *Registry {
	return &Registry{
		entities:       make(map[entityKey]*Entity),
		thisClockIndex: make(map[uint8]int),
		window:         window,
		autoSwitch:     autoSwitch,
	}
}

// AddClock creates a clock entity. hw is nil for clockIndex 0 (the
// virtual per-domain master clock), which uses a wall-clock-backed
// stand-in automatically.
func (r *Registry) AddClock(clockIndex int, ptpdev string, domainNumber uint8, clockID protocol.ClockIdentity, hw HWClock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entityKey{clockIndex, domainNumber}
	if _, ok := r.entities[key]; ok {
		return fmt.Errorf("clockreg: clock %d/%d already exists", clockIndex, domainNumber)
	}
	if hw == nil {
		hw = virtualClock{}
	}
	e, err := newEntity(clockIndex, domainNumber, ptpdev, clockID, hw)
	if err != nil {
		return err
	}
	r.entities[key] = e
	if r.window != nil {
		r.window.ensureDomain(domainNumber)
	}
	return nil
}

// DelClock frees a clock entity. Absent entities are a no-op.
func (r *Registry) DelClock(clockIndex int, domainNumber uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entityKey{clockIndex, domainNumber}
	if e, ok := r.entities[key]; ok {
		_ = e.hw.Close()
		delete(r.entities, key)
	}
}

func (r *Registry) get(clockIndex int, domainNumber uint8) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[entityKey{clockIndex, domainNumber}]
	if !ok {
		return nil, fmt.Errorf("clockreg: no clock %d/%d", clockIndex, domainNumber)
	}
	return e, nil
}

// GetTs64 returns the current time of (clockIndex, domainNumber).
func (r *Registry) GetTs64(clockIndex int, domainNumber uint8) (int64, error) {
	e, err := r.get(clockIndex, domainNumber)
	if err != nil {
		return 0, err
	}
	return e.getTs64()
}

// SetTs64 phase-jumps (clockIndex, domainNumber) to target ns.
func (r *Registry) SetTs64(clockIndex int, domainNumber uint8, target int64) error {
	e, err := r.get(clockIndex, domainNumber)
	if err != nil {
		return err
	}
	if err := e.setTs64(target); err != nil {
		return err
	}
	r.syncWindow(domainNumber)
	return nil
}

// SetOffset64 shifts (clockIndex, domainNumber)'s phase by delta ns.
func (r *Registry) SetOffset64(clockIndex int, domainNumber uint8, delta int64) error {
	e, err := r.get(clockIndex, domainNumber)
	if err != nil {
		return err
	}
	if err := e.setOffset64(delta); err != nil {
		return err
	}
	r.syncWindow(domainNumber)
	return nil
}

// SetAdj sets the frequency adjustment of (clockIndex, domainNumber),
// in parts-per-billion.
func (r *Registry) SetAdj(clockIndex int, domainNumber uint8, ppb float64) error {
	e, err := r.get(clockIndex, domainNumber)
	if err != nil {
		return err
	}
	if err := e.setAdj(ppb); err != nil {
		return err
	}
	r.syncWindow(domainNumber)
	return nil
}

// Tsconv converts a timestamp from the (srcIdx, srcDom) clock's frame
// into the (dstIdx, dstDom) clock's frame by three interleaved reads:
// ts1 (src), ts2 (dst), ts3 (src); result = ts2 - (ts1+ts3)/2. If the
// inner src-src read pair takes suspiciously long (context switch), one
// retry is attempted.
func (r *Registry) Tsconv(srcIdx int, srcDom uint8, dstIdx int, dstDom uint8) (int64, error) {
	src, err := r.get(srcIdx, srcDom)
	if err != nil {
		return 0, err
	}
	dst, err := r.get(dstIdx, dstDom)
	if err != nil {
		return 0, err
	}
	const maxInnerReadFactor = 10
	for attempt := 0; attempt < 2; attempt++ {
		ts1, err := src.getTs64()
		if err != nil {
			return 0, err
		}
		ts2, err := dst.getTs64()
		if err != nil {
			return 0, err
		}
		ts3, err := src.getTs64()
		if err != nil {
			return 0, err
		}
		if attempt == 0 && src.ts2diff > 0 && time.Duration(ts3-ts1) > maxInnerReadFactor*src.ts2diff {
			continue
		}
		return ts2 - (ts1+ts3)/2, nil
	}
	ts1, err := src.getTs64()
	if err != nil {
		return 0, err
	}
	ts2, err := dst.getTs64()
	if err != nil {
		return 0, err
	}
	ts3, err := src.getTs64()
	if err != nil {
		return 0, err
	}
	return ts2 - (ts1+ts3)/2, nil
}

// SetThisClock designates (clockIndex, domainNumber) as the domain's
// thisClock, migrating the master entity's accumulated offset onto it
// and switching mode to SlaveMain (if the device is writable) or
// SlaveSub otherwise.
func (r *Registry) SetThisClock(clockIndex int, domainNumber uint8) error {
	if clockIndex == 0 {
		return fmt.Errorf("clockreg: clockIndex 0 cannot be thisClock")
	}
	master, err := r.get(0, domainNumber)
	if err != nil {
		return err
	}
	e, err := r.get(clockIndex, domainNumber)
	if err != nil {
		return err
	}

	master.mu.Lock()
	offset := master.offset64
	master.mu.Unlock()

	e.mu.Lock()
	e.offset64 = offset
	if e.hw.Writable() {
		e.Mode = ModeSlaveMain
	} else {
		e.Mode = ModeSlaveSub
	}
	raw, rerr := e.rawHW()
	if rerr == nil {
		e.lastSetTs64 = raw
	}
	e.mu.Unlock()

	r.mu.Lock()
	r.thisClockIndex[domainNumber] = clockIndex
	r.mu.Unlock()
	r.syncWindow(domainNumber)
	return nil
}

// ThisClockIndex returns the clockIndex designated thisClock for
// domainNumber, or 0 if none has been designated yet.
func (r *Registry) ThisClockIndex(domainNumber uint8) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.thisClockIndex[domainNumber]
}

// SetGmSync raises the GM-synchronized event flag for domainNumber.
func (r *Registry) SetGmSync(domainNumber uint8) error {
	return r.setGmSync(domainNumber, true)
}

// ResetGmSync clears the GM-synchronized event flag for domainNumber.
func (r *Registry) ResetGmSync(domainNumber uint8) error {
	return r.setGmSync(domainNumber, false)
}

func (r *Registry) setGmSync(domainNumber uint8, v bool) error {
	master, err := r.get(0, domainNumber)
	if err != nil {
		return err
	}
	master.mu.Lock()
	master.gmSync = v
	master.mu.Unlock()
	r.syncWindow(domainNumber)
	return nil
}

// SetGmChange records a grandmaster identity change on domainNumber:
// it increments gmchange_ind and arms lastGmPhaseChange capture on the
// next SetOffset64 call.
func (r *Registry) SetGmChange(domainNumber uint8, gmClockID protocol.ClockIdentity) error {
	master, err := r.get(0, domainNumber)
	if err != nil {
		return err
	}
	master.setGmChange()
	log.WithFields(log.Fields{"domain": domainNumber, "gm": gmClockID}).Info("grandmaster changed")
	r.syncWindow(domainNumber)
	return nil
}

// syncWindow pushes the current state of domainNumber's thisClock (or,
// absent one, its master entity) into the shared-memory window.
// Per §4.1 invariant: when SlaveMain is active the shared offset64
// reflects the master entity alone and adjrate is 0; when SlaveSub is
// active the shared offset64 is the sum of master and thisClock offsets.
func (r *Registry) syncWindow(domainNumber uint8) {
	if r.window == nil {
		return
	}
	master, err := r.get(0, domainNumber)
	if err != nil {
		return
	}
	clockIndex := r.ThisClockIndex(domainNumber)

	master.mu.Lock()
	entry := WindowEntry{
		PTPDev:       master.PTPDev,
		DomainNumber: domainNumber,
		GmSync:       master.gmSync,
		GmChangeInd:  master.gmChangeInd,
		Offset64:     master.offset64,
		LastSetTs64:  master.lastSetTs64,
	}
	masterOffset := master.offset64
	master.mu.Unlock()

	if clockIndex != 0 {
		if this, err := r.get(clockIndex, domainNumber); err == nil {
			this.mu.Lock()
			switch this.Mode {
			case ModeSlaveMain:
				entry.Offset64 = masterOffset
				entry.AdjRate = 0
			case ModeSlaveSub:
				entry.Offset64 = masterOffset + this.offset64
				entry.AdjRate = this.adjrate
				entry.LastSetTs64 = this.lastSetTs64
			}
			this.mu.Unlock()
		}
	}
	r.window.Store(domainNumber, entry)
}

// Close releases every clock entity and the shared window.
func (r *Registry) Close() {
	r.StopActiveDomainSelector()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entities {
		_ = e.hw.Close()
	}
	if r.window != nil {
		_ = r.window.Close()
	}
}
