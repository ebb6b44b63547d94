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
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	signalv1 "peerhub.io/pkg/apis/signal/v1"
)

const (
	defaultPingInterval      = 30 * time.Second
	defaultPongTimeout       = 60 * time.Second
	defaultPongCheckInterval = 10 * time.Second

	writeTimeout = 10 * time.Second
)

// pingLoop emits an application-level ping every PingInterval until
// the session ends. The first ping seeds the pong deadline so a fresh
// session gets a full interval before the watcher may act.
func (h *Hub) pingLoop(s *Session) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.lastPong.CompareAndSwap(0, time.Now().UnixNano())
			payload, _ := json.Marshal(signalv1.Ping{
				Type:      signalv1.TypePing,
				Timestamp: time.Now().Unix(),
			})
			if err := s.queueSend(payload); err != nil {
				h.logger.Log("op", "ping", "peer", s.PeerID, "error", err)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// pongWatch closes the session once the peer misses its pong deadline.
// An unset deadline (no ping emitted yet) never fires.
func (h *Hub) pongWatch(s *Session) {
	ticker := time.NewTicker(h.cfg.PongCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			last := s.lastPong.Load()
			if last == 0 {
				continue
			}
			if time.Since(time.Unix(0, last)) > h.cfg.PongTimeout {
				heartbeatTimeouts.Inc()
				h.logger.Log("event", "pongTimeout", "peer", s.PeerID, "org", s.OrgID, "msg", "closing unresponsive session")
				// send the close frame while the socket is still up,
				// then tear down as if the peer had closed
				s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, signalv1.CloseReasonPongTimeout),
					time.Now().Add(writeTimeout))
				h.teardown(s)
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}
