// Copyright 2025 Acnodal Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hub

import (
	"errors"

	"peerhub.io/internal/ipam"
)

// Broadcast fans payload out to the org's sessions, skipping exclude.
// When subnet and virtualIP are both set, only sessions whose virtual
// IP shares that subnet with virtualIP receive the frame. The session
// list is a snapshot; sends happen without the registry lock so one
// stalled recipient can't block the org. Per-recipient failures are
// logged and skipped. Returns the number of successful sends.
func (h *Hub) Broadcast(orgID int64, payload []byte, exclude *Session, subnet, virtualIP string) int {
	broadcastsTotal.Inc()

	sent := 0
	for _, s := range h.registry.Snapshot(orgID) {
		if s == exclude {
			continue
		}
		if subnet != "" && virtualIP != "" && !ipam.SameSubnet(subnet, s.VirtualIP, virtualIP) {
			continue
		}
		if err := s.queueSend(payload); err != nil {
			sendFailures.Inc()
			h.logger.Log("op", "broadcast", "peer", s.PeerID, "error", err, "msg", "skipping recipient")
			if errors.Is(err, errSendBufferFull) {
				// slow consumer: drop the session, not the publisher
				go h.teardown(s)
			}
			continue
		}
		sent++
	}
	eventsSent.Add(float64(sent))
	return sent
}
