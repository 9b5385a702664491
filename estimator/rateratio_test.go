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
	"time"

	"github.com/stretchr/testify/require"
)

func TestNeighborRateRatioFirstSampleNoUpdate(t *testing.T) {
	n := NewNeighborRateRatio()
	ok := n.Sample(PdelaySample{T1: 0, T2: 0, T3: 0, T4: 0})
	require.False(t, ok)
	require.Equal(t, 1.0, n.Mrate())
}

func TestNeighborRateRatioRejectsShortSpan(t *testing.T) {
	n := NewNeighborRateRatio()
	n.Sample(PdelaySample{T1: 0, T2: 0, T3: 0, T4: 0})
	ok := n.Sample(PdelaySample{T1: int64(500 * time.Millisecond), T2: int64(500 * time.Millisecond), T4: int64(500 * time.Millisecond)})
	require.False(t, ok, "t1 span under 1s must not produce a candidate ratio")
}

func TestNeighborRateRatioRejectsSkewedT2(t *testing.T) {
	n := NewNeighborRateRatio()
	n.Sample(PdelaySample{T1: 0, T2: 0, T3: 0, T4: 0})
	ok := n.Sample(PdelaySample{
		T1: int64(1 * time.Second),
		T2: int64(1*time.Second + 200*time.Millisecond), // 200ms skew vs t1 span
		T4: int64(1 * time.Second),
	})
	require.False(t, ok)
}

func TestNeighborRateRatioAcceptsQualifyingSample(t *testing.T) {
	n := NewNeighborRateRatio()
	n.Sample(PdelaySample{T1: 0, T2: 0, T3: 0, T4: 0})
	// 1s elapsed on both sides, t4 runs 1000ppm fast relative to t1.
	ok := n.Sample(PdelaySample{
		T1: int64(time.Second),
		T2: int64(time.Second),
		T4: int64(time.Second) + 1_000_000,
	})
	require.True(t, ok)
	require.Greater(t, n.Mrate(), 1.0)
}

func TestNeighborRateRatioSwitchesToStableAlphaAfterRun(t *testing.T) {
	n := NewNeighborRateRatio()
	prev := PdelaySample{T1: 0, T2: 0, T3: 0, T4: 0}
	n.Sample(prev)

	// Feed freqOffsetStableTrns qualifying samples with a tiny, stable offset.
	for i := 1; i <= freqOffsetStableTrns; i++ {
		cur := PdelaySample{
			T1: int64(i) * int64(time.Second),
			T2: int64(i) * int64(time.Second),
			T4: int64(i)*int64(time.Second) + 10, // negligible drift -> stable ppb
		}
		ok := n.Sample(cur)
		require.True(t, ok)
	}
	require.Equal(t, freqOffsetStableTrns, n.stableRun)
}

func TestNeighborRateRatioResetsToUnbiased(t *testing.T) {
	n := NewNeighborRateRatio()
	n.Sample(PdelaySample{T1: 0, T2: 0, T3: 0, T4: 0})
	n.Sample(PdelaySample{T1: int64(time.Second), T2: int64(time.Second), T4: int64(time.Second) + 1_000_000})
	require.NotEqual(t, 1.0, n.Mrate())

	n.Reset()
	require.Equal(t, 1.0, n.Mrate())
	require.Equal(t, 0, n.stableRun)
}
