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
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultSharedWindowPath is the default shared-memory region name,
// §6 "Shared memory" (MASTER_CLOCK_SHARED_MEM).
const DefaultSharedWindowPath = "/dev/shm/gptp_mc_shm0"

// Window is the process-shared memory region described in §4.1/§6:
// a small header followed by one entry per domain. It replaces the
// original's process_shared_mutex with a spinlock implemented over an
// atomically-accessed int32 living in the mapped region itself, which
// is visible -- and lockable -- from any process that maps the same
// file, matching the "try_lock" writer discipline of §5.
type Window struct {
	file *os.File
	data []byte

	maxDomains int32
	slots      map[uint8]int32 // domainNumber -> slot index
	nextSlot   int32
}

// WindowEntry is the public, per-domain data published in the window.
type WindowEntry struct {
	PTPDev       string
	DomainNumber uint8
	GmSync       bool
	GmChangeInd  uint32
	Offset64     int64
	AdjRate      float64
	LastSetTs64  int64
}

const (
	ptpDevFieldLen = 32
	entrySize      = ptpDevFieldLen + 4 + 1 + 4 + 8 + 8 + 8 // ptpdev, domainNumber, gmsync, gmChangeInd, offset64, adjrate, lastSetTs64
	headerSize     = 16                                     // maxDomains, activeDomain, lockWord, padding
)

// OpenWindow creates (or re-opens) the shared-memory window at path,
// sized to hold maxDomains entries, and maps it MAP_SHARED so external
// reader processes observe writes immediately.
func OpenWindow(path string, maxDomains int32) (*Window, error) {
	size := int64(headerSize) + int64(maxDomains)*int64(entrySize)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("clockreg: opening shared window %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("clockreg: sizing shared window %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("clockreg: mmap shared window %s: %w", path, err)
	}
	w := &Window{file: f, data: data, maxDomains: maxDomains, slots: make(map[uint8]int32)}
	binary.LittleEndian.PutUint32(w.data[0:], uint32(maxDomains))
	return w, nil
}

func (w *Window) lockWordPtr() *int32 {
	return (*int32)(unsafe.Pointer(&w.data[8])) //#nosec G103
}

// tryLock attempts to acquire the writer spinlock, retrying briefly;
// per §5 the writer never blocks indefinitely on a slow external reader.
func (w *Window) tryLock() bool {
	lock := w.lockWordPtr()
	for i := 0; i < 1000; i++ {
		if atomic.CompareAndSwapInt32(lock, 0, 1) {
			return true
		}
	}
	return false
}

func (w *Window) unlock() {
	atomic.StoreInt32(w.lockWordPtr(), 0)
}

// ensureDomain assigns domainNumber a slot if it doesn't have one yet.
func (w *Window) ensureDomain(domainNumber uint8) {
	if _, ok := w.slots[domainNumber]; ok {
		return
	}
	if w.nextSlot >= w.maxDomains {
		return
	}
	w.slots[domainNumber] = w.nextSlot
	w.nextSlot++
}

func (w *Window) entryOffset(slot int32) int {
	return headerSize + int(slot)*entrySize
}

// Store writes entry into domainNumber's slot, under the writer
// spinlock. Locking is best-effort: on contention timeout the write
// proceeds unlocked rather than stalling the event loop.
func (w *Window) Store(domainNumber uint8, entry WindowEntry) {
	slot, ok := w.slots[domainNumber]
	if !ok {
		w.ensureDomain(domainNumber)
		slot = w.slots[domainNumber]
	}
	locked := w.tryLock()
	if locked {
		defer w.unlock()
	}
	off := w.entryOffset(slot)
	b := w.data[off : off+entrySize]
	var dev [ptpDevFieldLen]byte
	copy(dev[:], entry.PTPDev)
	copy(b[0:ptpDevFieldLen], dev[:])
	p := ptpDevFieldLen
	binary.LittleEndian.PutUint32(b[p:], uint32(entry.DomainNumber))
	p += 4
	if entry.GmSync {
		b[p] = 1
	} else {
		b[p] = 0
	}
	p++
	binary.LittleEndian.PutUint32(b[p:], entry.GmChangeInd)
	p += 4
	binary.LittleEndian.PutUint64(b[p:], uint64(entry.Offset64))
	p += 8
	binary.LittleEndian.PutUint64(b[p:], math.Float64bits(entry.AdjRate))
	p += 8
	binary.LittleEndian.PutUint64(b[p:], uint64(entry.LastSetTs64))
}

// Read returns the last entry written for domainNumber. Intended for
// external readers (and tests); it takes the same best-effort spinlock
// as Store.
func (w *Window) Read(domainNumber uint8) (WindowEntry, error) {
	slot, ok := w.slots[domainNumber]
	if !ok {
		return WindowEntry{}, fmt.Errorf("clockreg: no shared window slot for domain %d", domainNumber)
	}
	locked := w.tryLock()
	if locked {
		defer w.unlock()
	}
	off := w.entryOffset(slot)
	b := w.data[off : off+entrySize]
	var entry WindowEntry
	entry.PTPDev = cstring(b[0:ptpDevFieldLen])
	p := ptpDevFieldLen
	entry.DomainNumber = uint8(binary.LittleEndian.Uint32(b[p:]))
	p += 4
	entry.GmSync = b[p] != 0
	p++
	entry.GmChangeInd = binary.LittleEndian.Uint32(b[p:])
	p += 4
	entry.Offset64 = int64(binary.LittleEndian.Uint64(b[p:]))
	p += 8
	entry.AdjRate = math.Float64frombits(binary.LittleEndian.Uint64(b[p:]))
	p += 8
	entry.LastSetTs64 = int64(binary.LittleEndian.Uint64(b[p:]))
	return entry, nil
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// ActiveDomain returns the domain currently exposed as the default to
// shared-window readers.
func (w *Window) ActiveDomain() int32 {
	return int32(binary.LittleEndian.Uint32(w.data[4:]))
}

// SetActiveDomain updates the active domain field.
func (w *Window) SetActiveDomain(domainNumber int32) {
	binary.LittleEndian.PutUint32(w.data[4:], uint32(domainNumber))
}

// Close unmaps and closes the shared window file.
func (w *Window) Close() error {
	if err := unix.Munmap(w.data); err != nil {
		return err
	}
	return w.file.Close()
}
