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
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	signalv1 "peerhub.io/pkg/apis/signal/v1"
)

var (
	errSessionClosed  = errors.New("session closed")
	errSendBufferFull = errors.New("send buffer full")
)

// Session is one registered agent connection. The goroutine running
// the actor owns it; the registry holds a back-reference that peers
// use only to reach the send channel, which is safe concurrently.
type Session struct {
	ConnectionID string
	PeerID       string
	UserID       int64
	Email        string
	OrgID        int64
	Subnet       string
	VirtualIP    string

	AgentID    string
	PublicIP   string
	PublicPort int
	RelayIP    string
	RelayPort  int

	// lastPong is unix nanos of the most recent pong, zero until the
	// first ping seeds it. Zero never times out.
	lastPong atomic.Int64

	conn    *websocket.Conn
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	closed  sync.Once
	eventID int64 // connection_events row; zero when recording failed
}

// peerInfo renders the session the way its peers see it.
func (s *Session) peerInfo() signalv1.PeerInfo {
	return signalv1.PeerInfo{
		PeerID:     s.PeerID,
		UserID:     s.UserID,
		Email:      s.Email,
		AgentID:    s.AgentID,
		PublicIP:   s.PublicIP,
		PublicPort: s.PublicPort,
		RelayIP:    s.RelayIP,
		RelayPort:  s.RelayPort,
		VirtualIP:  s.VirtualIP,
	}
}

// queueSend hands a frame to the writer goroutine. It never blocks: a
// full buffer means the consumer is too slow to keep, and the caller
// decides what to do about it.
func (s *Session) queueSend(payload []byte) error {
	select {
	case s.send <- payload:
		return nil
	case <-s.ctx.Done():
		return errSessionClosed
	default:
		return errSendBufferFull
	}
}

// writePump drains the send channel onto the socket, giving each
// session exactly one writer and FIFO delivery.
func (s *Session) writePump(h *Hub) {
	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Log("op", "write", "peer", s.PeerID, "error", err)
				h.teardown(s)
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}
