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

// Package hub is the realtime signaling plane: it owns the presence
// registry and runs one session actor per agent WebSocket. An actor
// authenticates the socket, waits for a register frame, resolves the
// caller's virtual IP, announces arrival and departure to same-subnet
// peers, and supervises the heartbeat.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"peerhub.io/internal/ipam"
	"peerhub.io/internal/store"
	signalv1 "peerhub.io/pkg/apis/signal/v1"
)

// errNoVirtualIP means the user has no allocated mapping in any of
// their organizations; registering requires one.
var errNoVirtualIP = errors.New("no virtual ip allocated for user")

// Config carries the hub's operating parameters. Zero values fall
// back to production defaults; tests shrink the heartbeat.
type Config struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	PongCheckInterval time.Duration
	// SendBuffer is the per-session outbound queue depth. A session
	// that lets it fill is dropped as a slow consumer.
	SendBuffer int
}

// Store is the slice of the persistence API the signaling plane
// reads. Virtual IPs are looked up, never allocated, on this path.
type Store interface {
	FindUserByID(ctx context.Context, id int64) (*store.User, error)
	ListUserOrgs(ctx context.Context, userID int64) ([]store.Organization, error)
	GetMapping(ctx context.Context, userID, orgID int64) (string, error)
	RecordConnect(ctx context.Context, userID, orgID int64, peerID string, at time.Time) (int64, error)
	RecordDisconnect(ctx context.Context, eventID int64, at time.Time) error
}

// TokenVerifier validates a bearer token and returns the user id it
// names.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// Hub runs the signaling plane for all organizations.
type Hub struct {
	logger   log.Logger
	cfg      Config
	verifier TokenVerifier
	store    Store
	registry *Registry
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

func New(l log.Logger, cfg Config, verifier TokenVerifier, st Store) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.PongCheckInterval <= 0 {
		cfg.PongCheckInterval = defaultPongCheckInterval
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		logger:   l,
		cfg:      cfg,
		verifier: verifier,
		store:    st,
		registry: NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// agents aren't browsers, skip origin checks
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Registry exposes the presence registry for status handlers and
// tests.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Shutdown closes every live session with a normal-closure frame and
// stops all per-session goroutines.
func (h *Hub) Shutdown() {
	h.cancel()
	for _, s := range h.registry.SnapshotAll() {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		h.teardown(s)
	}
}

// ServeWS upgrades the connection and runs the session actor until
// the peer goes away. Upgrade is unconditional: authentication
// happens on the socket so failures can carry a close code instead of
// an HTTP status.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Log("op", "upgrade", "error", err)
		return
	}
	h.serve(conn, r)
}

func (h *Hub) serve(conn *websocket.Conn, r *http.Request) {
	token := tokenFrom(r)
	if token == "" {
		closeWithCode(conn, signalv1.CloseAuthFailure, signalv1.CloseReasonNoToken)
		return
	}
	userID, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Log("op", "auth", "error", err)
		closeWithCode(conn, signalv1.CloseAuthFailure, "Invalid token")
		return
	}
	user, err := h.store.FindUserByID(h.ctx, userID)
	if err != nil {
		h.logger.Log("op", "auth", "user", userID, "error", err)
		closeWithCode(conn, signalv1.CloseAuthFailure, "Invalid token")
		return
	}
	if !user.IsActive {
		h.logger.Log("op", "auth", "user", userID, "msg", "inactive user rejected")
		closeWithCode(conn, signalv1.CloseAuthFailure, "User inactive")
		return
	}

	// AUTHENTICATED: wait for a conforming register frame. Anything
	// else is answered with an error and the wait continues.
	var req signalv1.RegisterRequest
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}
		var env signalv1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			writeError(conn, signalv1.ErrInvalidJSON)
			continue
		}
		if env.Type != signalv1.TypeRegister {
			writeError(conn, signalv1.ErrFirstNotRegister)
			continue
		}
		req = signalv1.RegisterRequest{}
		if err := json.Unmarshal(data, &req); err != nil || req.PublicIP == "" || req.PublicPort <= 0 {
			writeError(conn, signalv1.ErrMissingFields)
			continue
		}
		break
	}

	s, err := h.register(conn, user, &req)
	if err != nil {
		if errors.Is(err, errSessionClosed) {
			return
		}
		if errors.Is(err, errNoVirtualIP) {
			writeError(conn, signalv1.ErrNoVirtualIP)
		} else {
			h.logger.Log("op", "register", "user", user.ID, "error", err)
			writeError(conn, signalv1.ErrRegistrationFault)
		}
		closeWithCode(conn, websocket.CloseNormalClosure, "")
		return
	}

	// REGISTERED: main loop. Only pong frames matter; unknown types
	// are ignored without tearing the session down.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var env signalv1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == signalv1.TypePong {
			s.lastPong.Store(time.Now().UnixNano())
		}
	}
	h.teardown(s)
}

// register resolves the caller's org and virtual IP, then makes the
// session visible. The order is load-bearing: snapshot the same-subnet
// peers, serialize the response against that snapshot, add to the
// registry, queue the response, then announce the arrival. The
// response describes the registry as it was before the caller joined,
// and the caller never hears its own peer_online.
func (h *Hub) register(conn *websocket.Conn, user *store.User, req *signalv1.RegisterRequest) (*Session, error) {
	orgs, err := h.store.ListUserOrgs(h.ctx, user.ID)
	if err != nil {
		return nil, err
	}

	// first org (id ascending) with an existing mapping wins; this
	// path never allocates
	var (
		org *store.Organization
		vip string
	)
	for i := range orgs {
		ip, err := h.store.GetMapping(h.ctx, user.ID, orgs[i].ID)
		if err == nil {
			org, vip = &orgs[i], ip
			break
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if org == nil {
		return nil, errNoVirtualIP
	}

	ctx, cancel := context.WithCancel(h.ctx)
	s := &Session{
		ConnectionID: uuid.NewString(),
		UserID:       user.ID,
		Email:        user.Email,
		OrgID:        org.ID,
		Subnet:       org.Subnet,
		VirtualIP:    vip,
		AgentID:      req.AgentID,
		PublicIP:     req.PublicIP,
		PublicPort:   req.PublicPort,
		RelayIP:      req.RelayIP,
		RelayPort:    req.RelayPort,
		conn:         conn,
		send:         make(chan []byte, h.cfg.SendBuffer),
		ctx:          ctx,
		cancel:       cancel,
	}
	s.PeerID = req.AgentID
	if s.PeerID == "" {
		s.PeerID = fmt.Sprintf("peer_%d_%s", user.ID, s.ConnectionID[:8])
	}

	existing := []signalv1.PeerInfo{}
	for _, other := range h.registry.Snapshot(org.ID) {
		if ipam.SameSubnet(s.Subnet, other.VirtualIP, s.VirtualIP) {
			existing = append(existing, other.peerInfo())
		}
	}
	respPayload, err := json.Marshal(signalv1.RegisterResponse{
		Type:          signalv1.TypeRegisterResponse,
		Status:        signalv1.StatusRegistered,
		VirtualIP:     s.VirtualIP,
		ConnectionID:  s.ConnectionID,
		ExistingPeers: existing,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	// the connection log is best effort and never blocks a session
	eventID, err := h.store.RecordConnect(h.ctx, s.UserID, s.OrgID, s.PeerID, time.Now().UTC())
	if err != nil {
		h.logger.Log("op", "register", "peer", s.PeerID, "error", err, "msg", "failed to record connect")
	}
	s.eventID = eventID

	go s.writePump(h)
	h.registry.Add(s)
	if err := s.queueSend(respPayload); err != nil {
		// fresh buffer, so only a concurrent shutdown lands here
		h.teardown(s)
		return nil, errSessionClosed
	}

	onlinePayload, _ := json.Marshal(signalv1.PeerEvent{Type: signalv1.TypePeerOnline, Peer: s.peerInfo()})
	h.Broadcast(s.OrgID, onlinePayload, s, s.Subnet, s.VirtualIP)

	go h.pingLoop(s)
	go h.pongWatch(s)

	registersTotal.Inc()
	sessionsActive.WithLabelValues(strconv.FormatInt(s.OrgID, 10)).Inc()
	h.logger.Log("event", "peerRegistered", "peer", s.PeerID, "org", s.OrgID, "ip", s.VirtualIP, "connection", s.ConnectionID)

	return s, nil
}

// teardown is the single exit path for a registered session and is
// idempotent: the first caller wins, later calls are no-ops.
func (h *Hub) teardown(s *Session) {
	s.closed.Do(func() {
		removed := h.registry.Remove(s)
		s.cancel()

		if removed {
			// remove → snapshot → broadcast: the departing session can
			// never receive its own offline event
			payload, _ := json.Marshal(signalv1.PeerEvent{Type: signalv1.TypePeerOffline, Peer: s.peerInfo()})
			h.Broadcast(s.OrgID, payload, s, s.Subnet, s.VirtualIP)
			sessionsActive.WithLabelValues(strconv.FormatInt(s.OrgID, 10)).Dec()
		}

		if s.eventID != 0 {
			if err := h.store.RecordDisconnect(context.Background(), s.eventID, time.Now().UTC()); err != nil {
				h.logger.Log("op", "teardown", "peer", s.PeerID, "error", err, "msg", "failed to record disconnect")
			}
		}

		teardownsTotal.Inc()
		s.conn.Close()
		h.logger.Log("event", "peerDisconnected", "peer", s.PeerID, "org", s.OrgID)
	})
}

// tokenFrom extracts the bearer token: query parameter first, then
// the Authorization header.
func tokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// writeError reports a failure on a socket that doesn't have a writer
// goroutine yet.
func writeError(conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(signalv1.ErrorMessage{Error: msg})
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteMessage(websocket.TextMessage, payload)
}

// closeWithCode sends a close frame and drops the connection.
func closeWithCode(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeTimeout))
	conn.Close()
}
