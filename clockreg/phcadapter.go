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
	"os"
	"time"

	"github.com/excelfore/gptp/phc"
)

// PHCClock adapts a *phc.Device to the HWClock interface an Entity
// disciplines, so clockIndex > 0 entities can be backed by a real PTP
// Hardware Clock device opened from a network port's /dev/ptpN.
type PHCClock struct {
	dev *phc.Device
}

// OpenPHCClock opens the PTP Hardware Clock device at path.
func OpenPHCClock(path string) (*PHCClock, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &PHCClock{dev: phc.FromFile(f)}, nil
}

// Now implements HWClock.
func (c *PHCClock) Now() (time.Time, error) { return c.dev.Time() }

// AdjFreq implements HWClock.
func (c *PHCClock) AdjFreq(freqPPB float64) error { return c.dev.AdjFreq(freqPPB) }

// Step implements HWClock.
func (c *PHCClock) Step(delta time.Duration) error { return c.dev.Step(delta) }

// Writable implements HWClock: PHC devices opened read-write can be
// disciplined directly, making them eligible for SlaveMain mode.
func (c *PHCClock) Writable() bool {
	// os.O_RDWR file descriptors support the PTP_CLOCK_SETTIME-class
	// ioctls; a read-only fd (e.g. for a remote/monitor-only port)
	// would not, but phc.Device does not expose the open mode, so any
	// successfully-opened device here is assumed writable.
	return true
}

// Close implements HWClock.
func (c *PHCClock) Close() error { return c.dev.File().Close() }
