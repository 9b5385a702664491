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

import (
	"math"
	"time"
)

// Neighbor-rate-ratio IIR tunables, spec.md §4.7.
const (
	freqOffsetIIRAlphaStartValue  = 2.0  // alpha = 1/2
	freqOffsetIIRAlphaStableValue = 10.0 // alpha = 1/10
	freqOffsetStableTrns          = 3
	freqOffsetStablePpb           = 100.0
	freqOffsetUnstablePpb         = 1000.0

	minRawRatioSampleSpan = 1 * time.Second
	maxT2T1Skew           = 100 * time.Millisecond
)

// PdelaySample is one cached (t1,t2,t3,t4) PdelayReq/Resp exchange,
// spec.md §4.7's candidate-ratio input.
type PdelaySample struct {
	T1, T2, T3, T4 int64 // ns
}

// NeighborRateRatio implements spec.md §4.7's neighborRateRatio IIR
// filter: a candidate raw ratio derived from consecutive qualifying
// PdelayReq exchanges, smoothed with an alpha that starts aggressive
// and switches to a slow steady-state filter once consecutive samples
// prove stable, reverting immediately on a large excursion.
type NeighborRateRatio struct {
	prev       *PdelaySample
	mrate      float64
	stableRun  int
	haveSample bool
}

// NewNeighborRateRatio creates a filter seeded at mrate=1.0 (no skew).
func NewNeighborRateRatio() *NeighborRateRatio {
	return &NeighborRateRatio{mrate: 1.0}
}

// Mrate returns the current smoothed neighborRateRatio.
func (n *NeighborRateRatio) Mrate() float64 { return n.mrate }

// Reset restores the filter to its initial, unsynchronized state
// (mrate=1.0), used after a frequency adjustment absorbs the drift.
func (n *NeighborRateRatio) Reset() {
	n.mrate = 1.0
	n.stableRun = 0
	n.prev = nil
	n.haveSample = false
}

// Sample folds in one PdelayReq exchange's (t1,t2,t3,t4). It returns
// false (no update) when there is no usable previous sample yet, or
// when the pair fails the t1-span / t2-t1-skew qualification spec.md
// §4.7 requires of a candidate raw ratio.
func (n *NeighborRateRatio) Sample(cur PdelaySample) bool {
	prev := n.prev
	n.prev = &cur
	if prev == nil {
		return false
	}

	t1Span := cur.T1 - prev.T1
	if t1Span < minRawRatioSampleSpan.Nanoseconds() {
		return false
	}
	t2Span := cur.T2 - prev.T2
	skew := t2Span - t1Span
	if skew < 0 {
		skew = -skew
	}
	if skew >= maxT2T1Skew.Nanoseconds() {
		return false
	}

	rawRatio := float64(cur.T4-prev.T4) / float64(t1Span)

	alpha := 1.0 / freqOffsetIIRAlphaStartValue
	if n.stableRun >= freqOffsetStableTrns {
		alpha = 1.0 / freqOffsetIIRAlphaStableValue
	}
	n.mrate = alpha*rawRatio + (1-alpha)*n.mrate

	ppb := (n.mrate - 1.0) * 1e9
	switch {
	case math.Abs(ppb) > freqOffsetUnstablePpb:
		n.stableRun = 0
	case math.Abs(ppb) < freqOffsetStablePpb:
		n.stableRun++
	default:
		// between stable and unstable thresholds: hold the run count.
	}
	n.haveSample = true
	return true
}
