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
	"time"

	"github.com/excelfore/gptp/clockreg"
)

// wallClock implements mdsm.Clock with the process wall clock. MDSM
// machines only use it to stamp scheduling decisions, never to read
// the synchronized time base itself -- that always goes through
// clockreg.
type wallClock struct{}

func (wallClock) NowNs() int64 { return time.Now().UnixNano() }

// registryMasterClock adapts clockreg.Registry into domain.MasterClock
// for one domain: clockIndex 0 is the logical master clock entity,
// ThisClockIndex(domainNumber) is whichever physical port's clock is
// currently designated thisClock.
type registryMasterClock struct {
	registry     *clockreg.Registry
	domainNumber uint8
}

func (c *registryMasterClock) MasterTimeNs() (int64, error) {
	return c.registry.GetTs64(0, c.domainNumber)
}

func (c *registryMasterClock) ThisClockTimeNs() (int64, error) {
	idx := c.registry.ThisClockIndex(c.domainNumber)
	return c.registry.GetTs64(idx, c.domainNumber)
}
