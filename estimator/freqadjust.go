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

// Frequency-adjustment tunables, spec.md §4.7.
const (
	freqOffsetUpdateMratePpb = 10.0        // minimum |ppb| worth pushing to the clock
	maxAdjustRateOnClock     = 1_000_000.0 // clamp, ppb
)

// FreqAdjust accumulates neighborRateRatio updates and, once the
// accumulated skew crosses freqOffsetUpdateMratePpb, pushes a clamped
// frequency correction through a ClockAdjuster and resets the
// feeding filter back to mrate=1.0 so it restarts unbiased.
type FreqAdjust struct {
	ClockIndex   int
	DomainNumber uint8

	adjuster ClockAdjuster
	filter   *NeighborRateRatio

	lastAppliedPpb float64
}

// NewFreqAdjust wires a NeighborRateRatio filter to a ClockAdjuster.
func NewFreqAdjust(clockIndex int, domainNumber uint8, adjuster ClockAdjuster, filter *NeighborRateRatio) *FreqAdjust {
	return &FreqAdjust{
		ClockIndex:   clockIndex,
		DomainNumber: domainNumber,
		adjuster:     adjuster,
		filter:       filter,
	}
}

// Sample folds in one PdelayReq exchange and, if the resulting
// smoothed ratio warrants it, applies a clamped frequency correction.
// It returns the ppb actually pushed to the clock, or false if no
// correction was applied this call.
func (f *FreqAdjust) Sample(s PdelaySample) (float64, bool) {
	if !f.filter.Sample(s) {
		return 0, false
	}

	ppb := (f.filter.Mrate() - 1.0) * 1e9
	if abs(ppb) < freqOffsetUpdateMratePpb {
		return 0, false
	}

	clamped := ppb
	if clamped > maxAdjustRateOnClock {
		clamped = maxAdjustRateOnClock
	} else if clamped < -maxAdjustRateOnClock {
		clamped = -maxAdjustRateOnClock
	}

	if err := f.adjuster.SetAdj(f.ClockIndex, f.DomainNumber, clamped); err != nil {
		return 0, false
	}
	f.lastAppliedPpb = clamped
	f.filter.Reset()
	return clamped, true
}

// LastAppliedPpb returns the ppb value of the most recently applied
// frequency correction (0 if none has been applied yet).
func (f *FreqAdjust) LastAppliedPpb() float64 { return f.lastAppliedPpb }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
