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
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// StabilityProvider reports whether a domain's grandmaster has been
// stable long enough to be a safe default for shared-window readers.
// domain.GmStable implements this; kept as an interface here to avoid a
// clockreg -> domain import cycle.
type StabilityProvider interface {
	GmStable(domainNumber uint8) bool
}

// RunActiveDomainSelector starts the background goroutine described in
// §4.1 "Active-domain selection": on ActiveDomainAuto, it continually
// picks the lowest-numbered stable domain; on ActiveDomainEager, it
// prefers domain 0 whenever domain 0 is stable, falling back to the
// lowest-numbered stable domain otherwise. On ActiveDomainManual, or
// without a shared window, it returns without starting the goroutine.
func (r *Registry) RunActiveDomainSelector(stable StabilityProvider, domains []uint8, tick time.Duration) {
	if r.window == nil || r.autoSwitch == ActiveDomainManual {
		return
	}
	r.mu.Lock()
	if r.selectorRunning {
		r.mu.Unlock()
		return
	}
	r.selectorRunning = true
	r.stopSelector = make(chan struct{})
	stop := r.stopSelector
	r.mu.Unlock()

	sorted := append([]uint8(nil), domains...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.selectActiveDomain(stable, sorted)
			}
		}
	}()
}

// StopActiveDomainSelector stops a previously started selector
// goroutine; it is a no-op if none is running.
func (r *Registry) StopActiveDomainSelector() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selectorRunning {
		close(r.stopSelector)
		r.selectorRunning = false
	}
}

func (r *Registry) selectActiveDomain(stable StabilityProvider, sorted []uint8) {
	if r.window == nil {
		return
	}
	if r.autoSwitch == ActiveDomainEager {
		if len(sorted) > 0 && sorted[0] == 0 && stable.GmStable(0) {
			r.window.SetActiveDomain(0)
			return
		}
	}
	for _, d := range sorted {
		if stable.GmStable(d) {
			if r.window.ActiveDomain() != int32(d) {
				log.WithField("domain", d).Info("active domain switched")
			}
			r.window.SetActiveDomain(int32(d))
			return
		}
	}
}
