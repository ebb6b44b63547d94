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

// Package store is the persistence layer: users, organizations,
// memberships, virtual-IP mappings, OTP verifications, and connection
// events. Two implementations exist: SQL (SQLite or PostgreSQL) and an
// in-memory store used by tests.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation, e.g. two actors
	// racing to allocate the same virtual IP.
	ErrConflict = errors.New("conflict")
)

// User is an account created by the registration flow. The signaling
// plane only reads users; an inactive user can't establish a session.
type User struct {
	ID             int64
	Email          string
	HashedPassword string
	IsActive       bool
	EmailVerified  bool
	CreatedAt      time.Time
}

// Organization groups users and owns the IPv4 subnet that virtual IPs
// are drawn from.
type Organization struct {
	ID        int64
	Name      string
	Subnet    string
	CreatedAt time.Time
}

// VirtualIPMapping pins a (user, org) pair to an address inside the
// org's subnet. Once allocated it is sticky.
type VirtualIPMapping struct {
	ID        int64
	UserID    int64
	OrgID     int64
	VirtualIP string
	CreatedAt time.Time
}

// OTPVerification is one emailed verification code.
type OTPVerification struct {
	ID        int64
	Email     string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Verified  bool
}

// ConnectionEvent records one signaling session for status display.
// DisconnectedAt is nil while the session is live.
type ConnectionEvent struct {
	ID             int64
	UserID         int64
	OrgID          int64
	PeerID         string
	ConnectedAt    time.Time
	DisconnectedAt *time.Time
}

// Store is the full persistence surface. The hub and the allocator
// consume narrower interfaces declared on their side; this one exists
// for the control plane and as the compile-time contract both
// implementations satisfy.
type Store interface {
	// Read path used by the signaling plane.
	FindUserByID(ctx context.Context, id int64) (*User, error)
	FindOrgByID(ctx context.Context, id int64) (*Organization, error)
	IsMember(ctx context.Context, userID, orgID int64) (bool, error)
	// ListUserOrgs returns the user's organizations ordered by org id
	// ascending.
	ListUserOrgs(ctx context.Context, userID int64) ([]Organization, error)
	// GetMapping returns the virtual IP for (user, org), or ErrNotFound.
	GetMapping(ctx context.Context, userID, orgID int64) (string, error)
	ListUsedIPs(ctx context.Context, orgID int64) ([]string, error)
	// InsertMapping stores a new allocation. ErrConflict reports a
	// uniqueness violation on either (user, org) or (org, ip).
	InsertMapping(ctx context.Context, userID, orgID int64, ip string) error

	// Control plane.
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, email, hashedPassword string, emailVerified bool) (*User, error)
	CreateOrg(ctx context.Context, name, subnet string) (*Organization, error)
	// AddMember is idempotent: adding an existing membership is a no-op.
	AddMember(ctx context.Context, userID, orgID int64) error
	ListMembers(ctx context.Context, orgID int64) ([]User, error)
	ListMappings(ctx context.Context, orgID int64) ([]VirtualIPMapping, error)

	// OTP flow.
	CreateOTP(ctx context.Context, email, code string, expiresAt time.Time) error
	// ConsumeOTP validates code against the newest unverified,
	// unexpired entry for email and marks it verified. ErrNotFound when
	// nothing matches.
	ConsumeOTP(ctx context.Context, email, code string, now time.Time) error

	// Connection events, written by the hub.
	RecordConnect(ctx context.Context, userID, orgID int64, peerID string, at time.Time) (int64, error)
	RecordDisconnect(ctx context.Context, eventID int64, at time.Time) error
}
