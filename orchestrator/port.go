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
	"github.com/excelfore/gptp/mdsm"
	"github.com/excelfore/gptp/netport"
)

// portState bundles one physical netport.Port with the PdelayReq/Resp
// machines spec.md §3/§4.4.1-2 describes as "forAllDomain": a single
// shared path-delay exchange per port, amortized across every domain
// that port carries (CMLDS is just a flag on these same machines, not
// a separate entity), plus the per-(port,domain) bundles for every
// domain this port participates in.
type portState struct {
	index   int
	netPort *netport.Port
	sender  *portSender

	pdelayReq  *mdsm.PdelayReqMachine
	pdelayResp *mdsm.PdelayRespMachine
	cmlds      bool
	linkUp     bool

	domains map[uint8]*portDomainState

	// primaryDomain is the domain whose number stamps the
	// domain-independent Pdelay exchange's wire header when CMLDS is
	// not configured; the first domain this port was added for.
	primaryDomain uint8
}

func newPortState(index int, netPort *netport.Port, sender *portSender, cmlds bool) *portState {
	return &portState{
		index:   index,
		netPort: netPort,
		sender:  sender,
		cmlds:   cmlds,
		domains: make(map[uint8]*portDomainState),
	}
}
