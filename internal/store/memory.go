package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Mem is an in-memory Store with the same semantics as SQL, including
// uniqueness enforcement. Tests use it to avoid a database; it is safe
// for concurrent use.
type Mem struct {
	mu sync.Mutex

	users    map[int64]*User
	orgs     map[int64]*Organization
	members  map[int64]map[int64]bool // org id → user id set
	mappings []VirtualIPMapping
	otps     []OTPVerification
	events   map[int64]*ConnectionEvent

	nextUser, nextOrg, nextMapping, nextOTP, nextEvent int64
}

var _ Store = (*Mem)(nil)

func NewMem() *Mem {
	return &Mem{
		users:   map[int64]*User{},
		orgs:    map[int64]*Organization{},
		members: map[int64]map[int64]bool{},
		events:  map[int64]*ConnectionEvent{},
	}
}

func (m *Mem) FindUserByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Mem) FindUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Mem) CreateUser(_ context.Context, email, hashedPassword string, emailVerified bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, ErrConflict
		}
	}
	m.nextUser++
	u := &User{
		ID:             m.nextUser,
		Email:          email,
		HashedPassword: hashedPassword,
		IsActive:       true,
		EmailVerified:  emailVerified,
		CreatedAt:      time.Now().UTC(),
	}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

// SetActive flips a user's is_active flag. Test helper; the service
// itself never deactivates users.
func (m *Mem) SetActive(id int64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.IsActive = active
	}
}

func (m *Mem) FindOrgByID(_ context.Context, id int64) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *Mem) CreateOrg(_ context.Context, name, subnet string) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.Name == name {
			return nil, ErrConflict
		}
	}
	m.nextOrg++
	o := &Organization{ID: m.nextOrg, Name: name, Subnet: subnet, CreatedAt: time.Now().UTC()}
	m.orgs[o.ID] = o
	cp := *o
	return &cp, nil
}

func (m *Mem) IsMember(_ context.Context, userID, orgID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[orgID][userID], nil
}

func (m *Mem) AddMember(_ context.Context, userID, orgID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[orgID] == nil {
		m.members[orgID] = map[int64]bool{}
	}
	m.members[orgID][userID] = true
	return nil
}

func (m *Mem) ListUserOrgs(_ context.Context, userID int64) ([]Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orgs []Organization
	for orgID, users := range m.members {
		if users[userID] {
			orgs = append(orgs, *m.orgs[orgID])
		}
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].ID < orgs[j].ID })
	return orgs, nil
}

func (m *Mem) ListMembers(_ context.Context, orgID int64) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []User
	for userID := range m.members[orgID] {
		users = append(users, *m.users[userID])
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *Mem) GetMapping(_ context.Context, userID, orgID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mp := range m.mappings {
		if mp.UserID == userID && mp.OrgID == orgID {
			return mp.VirtualIP, nil
		}
	}
	return "", ErrNotFound
}

func (m *Mem) ListUsedIPs(_ context.Context, orgID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ips []string
	for _, mp := range m.mappings {
		if mp.OrgID == orgID {
			ips = append(ips, mp.VirtualIP)
		}
	}
	return ips, nil
}

func (m *Mem) InsertMapping(_ context.Context, userID, orgID int64, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mp := range m.mappings {
		if mp.OrgID == orgID && (mp.UserID == userID || mp.VirtualIP == ip) {
			return ErrConflict
		}
	}
	m.nextMapping++
	m.mappings = append(m.mappings, VirtualIPMapping{
		ID:        m.nextMapping,
		UserID:    userID,
		OrgID:     orgID,
		VirtualIP: ip,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *Mem) ListMappings(_ context.Context, orgID int64) ([]VirtualIPMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var maps []VirtualIPMapping
	for _, mp := range m.mappings {
		if mp.OrgID == orgID {
			maps = append(maps, mp)
		}
	}
	return maps, nil
}

func (m *Mem) CreateOTP(_ context.Context, email, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOTP++
	m.otps = append(m.otps, OTPVerification{
		ID:        m.nextOTP,
		Email:     email,
		Code:      code,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	})
	return nil
}

func (m *Mem) ConsumeOTP(_ context.Context, email, code string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// newest entry for the address wins
	for i := len(m.otps) - 1; i >= 0; i-- {
		o := &m.otps[i]
		if o.Email != email || o.Verified {
			continue
		}
		if o.Code != code || now.After(o.ExpiresAt) {
			return ErrNotFound
		}
		o.Verified = true
		return nil
	}
	return ErrNotFound
}

func (m *Mem) RecordConnect(_ context.Context, userID, orgID int64, peerID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEvent++
	m.events[m.nextEvent] = &ConnectionEvent{
		ID:          m.nextEvent,
		UserID:      userID,
		OrgID:       orgID,
		PeerID:      peerID,
		ConnectedAt: at,
	}
	return m.nextEvent, nil
}

func (m *Mem) RecordDisconnect(_ context.Context, eventID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return ErrNotFound
	}
	ev.DisconnectedAt = &at
	return nil
}

// Events returns a copy of the connection log, ordered by id. Used by
// tests to assert connect/disconnect bookkeeping.
func (m *Mem) Events() []ConnectionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	evs := make([]ConnectionEvent, 0, len(m.events))
	for _, ev := range m.events {
		evs = append(evs, *ev)
	}
	sort.Slice(evs, func(i, j int) bool { return evs[i].ID < evs[j].ID })
	return evs
}
