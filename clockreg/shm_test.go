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

package clockreg

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWindowStoreReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm0")
	w, err := OpenWindow(path, 4)
	require.NoError(t, err)
	defer w.Close()

	entry := WindowEntry{
		PTPDev:       "/dev/ptp0",
		DomainNumber: 1,
		GmSync:       true,
		GmChangeInd:  7,
		Offset64:     -12345,
		AdjRate:      0.0000123,
		LastSetTs64:  999888777,
	}
	w.Store(1, entry)

	got, err := w.Read(1)
	require.NoError(t, err)
	require.Equal(t, entry, got)
}

func TestWindowReadUnknownDomain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm1")
	w, err := OpenWindow(path, 4)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Read(3)
	require.Error(t, err)
}

func TestWindowActiveDomainDefaultsToZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm2")
	w, err := OpenWindow(path, 4)
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, int32(0), w.ActiveDomain())
	w.SetActiveDomain(2)
	require.Equal(t, int32(2), w.ActiveDomain())
}

func TestWindowMultipleDomainsDistinctSlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm3")
	w, err := OpenWindow(path, 4)
	require.NoError(t, err)
	defer w.Close()

	w.Store(0, WindowEntry{DomainNumber: 0, Offset64: 1})
	w.Store(1, WindowEntry{DomainNumber: 1, Offset64: 2})

	e0, err := w.Read(0)
	require.NoError(t, err)
	require.Equal(t, int64(1), e0.Offset64)

	e1, err := w.Read(1)
	require.NoError(t, err)
	require.Equal(t, int64(2), e1.Offset64)
}

type fakeStability struct {
	stable map[uint8]bool
}

func (f fakeStability) GmStable(domainNumber uint8) bool { return f.stable[domainNumber] }

func TestSelectActiveDomainPrefersLowestStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm4")
	w, err := OpenWindow(path, 4)
	require.NoError(t, err)
	defer w.Close()

	r := NewRegistry(w, ActiveDomainAuto)
	stable := fakeStability{stable: map[uint8]bool{1: true, 2: true}}
	r.selectActiveDomain(stable, []uint8{0, 1, 2})
	require.Equal(t, int32(1), w.ActiveDomain())
}

func TestSelectActiveDomainEagerPrefersZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm5")
	w, err := OpenWindow(path, 4)
	require.NoError(t, err)
	defer w.Close()

	r := NewRegistry(w, ActiveDomainEager)
	stable := fakeStability{stable: map[uint8]bool{0: true, 1: true}}
	r.selectActiveDomain(stable, []uint8{0, 1})
	require.Equal(t, int32(0), w.ActiveDomain())
}

func TestSelectActiveDomainNoneStableLeavesUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shm6")
	w, err := OpenWindow(path, 4)
	require.NoError(t, err)
	defer w.Close()

	w.SetActiveDomain(5)
	r := NewRegistry(w, ActiveDomainAuto)
	stable := fakeStability{stable: map[uint8]bool{}}
	r.selectActiveDomain(stable, []uint8{0, 1})
	require.Equal(t, int32(5), w.ActiveDomain())
}
