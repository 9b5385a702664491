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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPhaseCorrectorStaysNotAdjBelowNewGMCriterion(t *testing.T) {
	adj := &fakeAdjuster{}
	p := NewPhaseCorrector(0, 0, adj)

	delta := p.Sample(500_000) // 0.5ms, below 1ms criterion
	require.Zero(t, delta)
	require.Equal(t, PhaseNotAdj, p.State())
	require.Empty(t, adj.offsetCalls)
}

func TestPhaseCorrectorStepsOnNewGMCriterion(t *testing.T) {
	adj := &fakeAdjuster{}
	p := NewPhaseCorrector(0, 0, adj)

	delta := p.Sample(2_000_000) // 2ms, above 1ms criterion
	require.Equal(t, int64(2_000_000), delta)
	require.Equal(t, PhaseUnstableAdj, p.State())
	require.Equal(t, []int64{2_000_000}, adj.offsetCalls)
}

func TestPhaseCorrectorNewGrandmasterForcesStartAdj(t *testing.T) {
	adj := &fakeAdjuster{}
	p := NewPhaseCorrector(0, 0, adj)
	p.NewGrandmaster()
	require.Equal(t, PhaseStartAdj, p.State())

	delta := p.Sample(50_000) // small offset, still stepped unconditionally
	require.Equal(t, int64(50_000), delta)
	require.Equal(t, PhaseUnstableAdj, p.State())
}

func TestPhaseCorrectorSettlesToStable(t *testing.T) {
	adj := &fakeAdjuster{}
	p := NewPhaseCorrector(0, 0, adj)
	p.NewGrandmaster()
	p.Sample(2_000_000)
	require.Equal(t, PhaseUnstableAdj, p.State())

	delta := p.Sample(5_000) // under stable criterion (10us)
	require.Zero(t, delta)
	require.Equal(t, PhaseStableAdj, p.State())
}

func TestPhaseCorrectorUnstableIgnoresSmallOffsetsBelowAdjustByFreq(t *testing.T) {
	adj := &fakeAdjuster{}
	p := NewPhaseCorrector(0, 0, adj)
	p.NewGrandmaster()
	p.Sample(2_000_000)
	require.Equal(t, PhaseUnstableAdj, p.State())

	// Above unstable criterion (30us) but below the adjust-by-freq
	// threshold (100us): left to the frequency estimator, no step.
	delta := p.Sample(50_000)
	require.Zero(t, delta)
	require.Equal(t, PhaseUnstableAdj, p.State())
}

func TestPhaseCorrectorStableReturnsToUnstableOnExcursion(t *testing.T) {
	adj := &fakeAdjuster{}
	p := NewPhaseCorrector(0, 0, adj)
	p.NewGrandmaster()
	p.Sample(2_000_000)
	p.Sample(5_000)
	require.Equal(t, PhaseStableAdj, p.State())

	delta := p.Sample(150_000) // exceeds both unstable and adjust-by-freq
	require.Equal(t, int64(150_000), delta)
	require.Equal(t, PhaseUnstableAdj, p.State())
}

func TestPhaseCorrectorNewGMDuringUnstableRestartsStartAdj(t *testing.T) {
	adj := &fakeAdjuster{}
	p := NewPhaseCorrector(0, 0, adj)
	p.NewGrandmaster()
	p.Sample(2_000_000)
	require.Equal(t, PhaseUnstableAdj, p.State())

	delta := p.Sample(3_000_000) // a second huge jump, e.g. new GM mid-settle
	require.Equal(t, int64(3_000_000), delta)
	require.Equal(t, PhaseStartAdj, p.State())
}
