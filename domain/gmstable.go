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

package domain

import (
	"sync"
	"time"

	"github.com/excelfore/gptp/protocol"
)

// GmStableState is a state of the GmStable machine, spec.md §4.6.4.
type GmStableState int

// GmStable machine states.
const (
	GmLost GmStableState = iota
	GmUnstable
	GmStableOK
)

// initialGmStableTime/normalGmStableTime are spec.md §4.6.4's
// INITIAL_GM_STABLE_TIME / NORMAL_GM_STABLE_TIME constants.
const (
	initialGmStableTime = 1 * time.Second
	normalGmStableTime  = 10 * time.Second
)

// GmStable tracks, per domain, how long the current grandmaster
// identity has held since its last change, implementing
// clockreg.StabilityProvider so the active-domain selector can gate
// switching on it.
type GmStable struct {
	mu sync.Mutex

	state         map[uint8]GmStableState
	lastGmID      map[uint8]protocol.ClockIdentity
	stableSince   map[uint8]int64 // ns, absolute deadline
	everStabilized map[uint8]bool
}

// NewGmStable creates an empty GmStable tracker.
func NewGmStable() *GmStable {
	return &GmStable{
		state:          map[uint8]GmStableState{},
		lastGmID:       map[uint8]protocol.ClockIdentity{},
		stableSince:    map[uint8]int64{},
		everStabilized: map[uint8]bool{},
	}
}

// NoteGmChange records a grandmaster identity change on domainNumber,
// moving it to GM_LOST; a repeat of the current identity changes
// nothing. The next Timeout moves it on to GM_UNSTABLE and arms the
// stabilization deadline.
func (g *GmStable) NoteGmChange(domainNumber uint8, gmID protocol.ClockIdentity, nowNs int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.lastGmID[domainNumber]; ok && prev == gmID {
		return
	}
	g.lastGmID[domainNumber] = gmID
	g.state[domainNumber] = GmLost
}

// Timeout drives GmLost -> GmUnstable (arming the stabilization
// deadline) and GmUnstable -> GmStable once that deadline elapses
// without a further identity change.
func (g *GmStable) Timeout(domainNumber uint8, nowNs int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state[domainNumber] {
	case GmLost:
		g.state[domainNumber] = GmUnstable
		wait := normalGmStableTime
		if !g.everStabilized[domainNumber] {
			wait = initialGmStableTime
		}
		g.stableSince[domainNumber] = nowNs + wait.Nanoseconds()
	case GmUnstable:
		if nowNs >= g.stableSince[domainNumber] {
			g.state[domainNumber] = GmStableOK
			g.everStabilized[domainNumber] = true
		}
	}
}

// GmStable reports whether domainNumber's grandmaster has been stable
// long enough to be a safe default for shared-window readers,
// implementing clockreg.StabilityProvider.
func (g *GmStable) GmStable(domainNumber uint8) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state[domainNumber] == GmStableOK
}
