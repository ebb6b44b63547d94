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

package store

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQL {
	t.Helper()
	s, err := Open(log.NewNopLogger(), "sqlite::memory:")
	require.NoError(t, err, "opening the in-memory database should not fail")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open(log.NewNopLogger(), "mysql://nope")
	assert.Error(t, err)
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice@example.com", "hash1", true)
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.True(t, u.IsActive)
	assert.True(t, u.EmailVerified)

	byID, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)
	assert.Equal(t, "hash1", byID.HashedPassword)

	byEmail, err := s.FindUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.CreateUser(ctx, "alice@example.com", "hash2", false)
	assert.ErrorIs(t, err, ErrConflict, "duplicate email must conflict")

	_, err = s.FindUserByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrgsAndMembership(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice@example.com", "h", true)
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob@example.com", "h", true)
	require.NoError(t, err)

	acme, err := s.CreateOrg(ctx, "acme", "10.1.0.0/24")
	require.NoError(t, err)
	globex, err := s.CreateOrg(ctx, "globex", "10.2.0.0/24")
	require.NoError(t, err)

	_, err = s.CreateOrg(ctx, "acme", "10.3.0.0/24")
	assert.ErrorIs(t, err, ErrConflict, "duplicate org name must conflict")

	_, err = s.FindOrgByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	// membership is idempotent
	require.NoError(t, s.AddMember(ctx, alice.ID, globex.ID))
	require.NoError(t, s.AddMember(ctx, alice.ID, acme.ID))
	require.NoError(t, s.AddMember(ctx, alice.ID, acme.ID))

	member, err := s.IsMember(ctx, alice.ID, acme.ID)
	require.NoError(t, err)
	assert.True(t, member)
	member, err = s.IsMember(ctx, bob.ID, acme.ID)
	require.NoError(t, err)
	assert.False(t, member)

	// org id ascending regardless of join order
	orgs, err := s.ListUserOrgs(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, acme.ID, orgs[0].ID)
	assert.Equal(t, globex.ID, orgs[1].ID)

	require.NoError(t, s.AddMember(ctx, bob.ID, acme.ID))
	members, err := s.ListMembers(ctx, acme.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice@example.com", members[0].Email)
	assert.Equal(t, "bob@example.com", members[1].Email)
}

func TestMappings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice@example.com", "h", true)
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob@example.com", "h", true)
	require.NoError(t, err)
	acme, err := s.CreateOrg(ctx, "acme", "10.1.0.0/24")
	require.NoError(t, err)
	globex, err := s.CreateOrg(ctx, "globex", "10.2.0.0/24")
	require.NoError(t, err)

	_, err = s.GetMapping(ctx, alice.ID, acme.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.InsertMapping(ctx, alice.ID, acme.ID, "10.1.0.1"))

	ip, err := s.GetMapping(ctx, alice.ID, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.1.0.1", ip)

	// one mapping per (user, org)
	err = s.InsertMapping(ctx, alice.ID, acme.ID, "10.1.0.2")
	assert.ErrorIs(t, err, ErrConflict)
	// one owner per (org, ip)
	err = s.InsertMapping(ctx, bob.ID, acme.ID, "10.1.0.1")
	assert.ErrorIs(t, err, ErrConflict)
	// the same address is fine in another org
	require.NoError(t, s.InsertMapping(ctx, alice.ID, globex.ID, "10.1.0.1"))

	require.NoError(t, s.InsertMapping(ctx, bob.ID, acme.ID, "10.1.0.2"))
	used, err := s.ListUsedIPs(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.0.1", "10.1.0.2"}, used)

	maps, err := s.ListMappings(ctx, acme.ID)
	require.NoError(t, err)
	mappingComparer := cmp.Comparer(func(x, y VirtualIPMapping) bool {
		return x.UserID == y.UserID && x.OrgID == y.OrgID && x.VirtualIP == y.VirtualIP
	})
	want := []VirtualIPMapping{
		{UserID: alice.ID, OrgID: acme.ID, VirtualIP: "10.1.0.1"},
		{UserID: bob.ID, OrgID: acme.ID, VirtualIP: "10.1.0.2"},
	}
	if diff := cmp.Diff(want, maps, mappingComparer); diff != "" {
		t.Errorf("ListMappings returned wrong result (-want, +got)\n%s", diff)
	}
}

func TestOTPLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateOTP(ctx, "new@example.com", "111111", now.Add(10*time.Minute)))

	// wrong code leaves the entry usable
	assert.ErrorIs(t, s.ConsumeOTP(ctx, "new@example.com", "222222", now), ErrNotFound)
	require.NoError(t, s.ConsumeOTP(ctx, "new@example.com", "111111", now))

	// consumed codes don't work twice
	assert.ErrorIs(t, s.ConsumeOTP(ctx, "new@example.com", "111111", now), ErrNotFound)

	// expired codes don't verify
	require.NoError(t, s.CreateOTP(ctx, "late@example.com", "333333", now.Add(-time.Minute)))
	assert.ErrorIs(t, s.ConsumeOTP(ctx, "late@example.com", "333333", now), ErrNotFound)

	// only the newest unverified code counts
	require.NoError(t, s.CreateOTP(ctx, "two@example.com", "444444", now.Add(10*time.Minute)))
	require.NoError(t, s.CreateOTP(ctx, "two@example.com", "555555", now.Add(10*time.Minute)))
	assert.ErrorIs(t, s.ConsumeOTP(ctx, "two@example.com", "444444", now), ErrNotFound)
	require.NoError(t, s.ConsumeOTP(ctx, "two@example.com", "555555", now))

	assert.ErrorIs(t, s.ConsumeOTP(ctx, "unknown@example.com", "111111", now), ErrNotFound)
}

func TestConnectionEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice@example.com", "h", true)
	require.NoError(t, err)
	acme, err := s.CreateOrg(ctx, "acme", "10.1.0.0/24")
	require.NoError(t, err)

	connectedAt := time.Now().UTC().Truncate(time.Second)
	id, err := s.RecordConnect(ctx, alice.ID, acme.ID, "agent-1", connectedAt)
	require.NoError(t, err)
	assert.NotZero(t, id)

	var disconnected *time.Time
	err = s.db.QueryRowContext(ctx,
		"SELECT disconnected_at FROM connection_events WHERE id = $1", id).Scan(&disconnected)
	require.NoError(t, err)
	assert.Nil(t, disconnected, "a live session has no disconnect time")

	require.NoError(t, s.RecordDisconnect(ctx, id, connectedAt.Add(time.Minute)))
	err = s.db.QueryRowContext(ctx,
		"SELECT disconnected_at FROM connection_events WHERE id = $1", id).Scan(&disconnected)
	require.NoError(t, err)
	require.NotNil(t, disconnected)
	assert.True(t, disconnected.After(connectedAt))
}
