// Copyright 2025 Acnodal, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package v1

// Message type discriminators. Clients send TypeRegister and TypePong;
// everything else is server-to-client.
const (
	TypeRegister         = "register"
	TypePong             = "pong"
	TypeRegisterResponse = "register_agent_response"
	TypePeerOnline       = "peer_online"
	TypePeerOffline      = "peer_offline"
	TypePing             = "ping"
)

const (
	// StatusRegistered is the status reported in a successful register
	// response.
	StatusRegistered = "registered"

	// CloseAuthFailure is the close code sent when the connection
	// carries no token or a token that fails verification.
	CloseAuthFailure = 4001

	// CloseReasonNoToken is the close reason when no token was found in
	// either the query string or the Authorization header.
	CloseReasonNoToken = "No token provided"

	// CloseReasonPongTimeout is the close reason when the peer stopped
	// answering pings.
	CloseReasonPongTimeout = "Connection timeout - no pong received"

	// MetricsNamespace is the Prometheus metrics namespace for PeerHub.
	MetricsNamespace = "peerhub"
)

// Wire error strings. These are contract: clients match on them.
const (
	ErrInvalidJSON       = "Invalid JSON"
	ErrFirstNotRegister  = "First message must be register"
	ErrMissingFields     = "Missing required fields: public_ip, public_port"
	ErrNoVirtualIP       = "No virtual IP allocated for user in any organization"
	ErrRegistrationFault = "Registration failed"
)

// Envelope is the minimal decode of any inbound frame, enough to
// dispatch on the type discriminator.
type Envelope struct {
	Type string `json:"type"`
}

// PeerInfo describes a registered agent as its peers see it.
type PeerInfo struct {
	PeerID     string `json:"peer_id"`
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	AgentID    string `json:"agent_id,omitempty"`
	PublicIP   string `json:"public_ip"`
	PublicPort int    `json:"public_port"`
	RelayIP    string `json:"relay_ip,omitempty"`
	RelayPort  int    `json:"relay_port,omitempty"`
	VirtualIP  string `json:"virtual_ip"`
}

// RegisterRequest is the first frame an agent must send after the
// socket is authenticated. PublicIP and PublicPort are required;
// AgentID names the agent across reconnects, and the relay fields
// advertise a fallback path when the public address is unreachable.
type RegisterRequest struct {
	Type       string `json:"type"`
	PublicIP   string `json:"public_ip"`
	PublicPort int    `json:"public_port"`
	AgentID    string `json:"agent_id,omitempty"`
	RelayIP    string `json:"relay_ip,omitempty"`
	RelayPort  int    `json:"relay_port,omitempty"`
}

// RegisterResponse acknowledges a register. ExistingPeers lists the
// same-subnet sessions that were registered at the moment the request
// was processed, never including the caller.
type RegisterResponse struct {
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	VirtualIP     string     `json:"virtual_ip"`
	ConnectionID  string     `json:"connection_id"`
	ExistingPeers []PeerInfo `json:"existing_peers"`
}

// PeerEvent announces a peer joining (TypePeerOnline) or leaving
// (TypePeerOffline) the caller's subnet.
type PeerEvent struct {
	Type string   `json:"type"`
	Peer PeerInfo `json:"peer"`
}

// Ping is the server-side heartbeat probe. Timestamp is unix seconds.
type Ping struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Pong is the client's answer to a Ping. The timestamp is optional and
// ignored by the hub; receipt alone refreshes the liveness deadline.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ErrorMessage reports a protocol or contract failure. Unless the
// session is closed right after, the client may retry.
type ErrorMessage struct {
	Error string `json:"error"`
}
