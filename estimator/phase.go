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

package estimator

// PhaseState is the four-state phase-correction machine of spec.md
// §4.7, mirroring servo/pi.go's filterState progression from an
// unlocked PI servo to a converged one.
type PhaseState int

const (
	// PhaseNotAdj: no slave sync history yet, nothing to correct.
	PhaseNotAdj PhaseState = iota
	// PhaseStartAdj: a new grandmaster was just adopted; a large
	// offset is expected and corrected unconditionally via SetOffset64.
	PhaseStartAdj
	// PhaseUnstableAdj: offsets are still settling; only the subset of
	// samples exceeding PhaseOffsetAdjustByFreq are pushed through
	// SetOffset64, the rest are left to the frequency estimator.
	PhaseUnstableAdj
	// PhaseStableAdj: an offset sample at or under phaseStableCriterion
	// was seen; no phase steps are applied until an offset exceeds
	// phaseUnstableCriterion.
	PhaseStableAdj
)

// Phase-correction tunables, spec.md §4.7.
const (
	phaseNewGMCriterion     = 1_000_000 // 1ms, ns
	phaseStableCriterion    = 10_000    // 10us, ns
	phaseUnstableCriterion  = 30_000    // 30us, ns
	phaseOffsetAdjustByFreq = 100_000   // 100us, ns
)

// PhaseCorrector drives PhaseState transitions from successive
// syncReceiptTime/syncReceiptLocalTime offset samples and applies
// phase steps through a ClockAdjuster.
type PhaseCorrector struct {
	ClockIndex   int
	DomainNumber uint8

	adjuster ClockAdjuster
	state    PhaseState
}

// NewPhaseCorrector creates a corrector starting in PhaseNotAdj.
func NewPhaseCorrector(clockIndex int, domainNumber uint8, adjuster ClockAdjuster) *PhaseCorrector {
	return &PhaseCorrector{ClockIndex: clockIndex, DomainNumber: domainNumber, adjuster: adjuster}
}

// State returns the machine's current PhaseState.
func (p *PhaseCorrector) State() PhaseState { return p.state }

// NewGrandmaster forces the machine back to PhaseStartAdj, spec.md
// §4.7's reaction to a grandmaster change: the next offset sample is
// assumed to be large and is stepped unconditionally.
func (p *PhaseCorrector) NewGrandmaster() {
	p.state = PhaseStartAdj
}

// Sample folds in a signed offset (syncReceiptTimeNs -
// syncReceiptLocalTimeNs, ns) and returns the delta actually applied
// through SetOffset64, or 0 if this sample produced no correction.
func (p *PhaseCorrector) Sample(offsetNs int64) int64 {
	a := offsetNs
	if a < 0 {
		a = -a
	}

	switch p.state {
	case PhaseNotAdj:
		if a >= phaseNewGMCriterion {
			p.state = PhaseStartAdj
		} else {
			return 0
		}
		fallthrough
	case PhaseStartAdj:
		p.apply(offsetNs)
		p.state = PhaseUnstableAdj
		return offsetNs
	case PhaseUnstableAdj:
		if a <= phaseStableCriterion {
			p.state = PhaseStableAdj
			return 0
		}
		if a >= phaseNewGMCriterion {
			p.state = PhaseStartAdj
			p.apply(offsetNs)
			return offsetNs
		}
		if a >= phaseOffsetAdjustByFreq {
			p.apply(offsetNs)
			return offsetNs
		}
		return 0
	case PhaseStableAdj:
		if a > phaseUnstableCriterion {
			p.state = PhaseUnstableAdj
			if a >= phaseOffsetAdjustByFreq {
				p.apply(offsetNs)
				return offsetNs
			}
		}
		return 0
	}
	return 0
}

func (p *PhaseCorrector) apply(offsetNs int64) {
	_ = p.adjuster.SetOffset64(p.ClockIndex, p.DomainNumber, offsetNs)
}
