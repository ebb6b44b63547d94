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
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

const (
	flavorSQLite   = "sqlite"
	flavorPostgres = "postgres"
)

// SQL is the database-backed Store. It speaks SQLite (pure Go driver)
// for development and tests, and PostgreSQL in production. Statements
// use $n placeholders, which both engines accept, so the query text is
// shared; only the DDL is per-engine.
type SQL struct {
	logger log.Logger
	db     *sql.DB
	flavor string
}

var _ Store = (*SQL)(nil)

// Open connects to the database named by databaseURL, applies pending
// migrations, and returns the store. Accepted forms are
// "sqlite:<path>" and "postgres://…".
func Open(l log.Logger, databaseURL string) (*SQL, error) {
	flavor, dsn, err := splitURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(flavor, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", flavor, err)
	}
	if flavor == flavorSQLite {
		// SQLite allows one writer; a single connection avoids
		// SQLITE_BUSY under concurrent sessions.
		db.SetMaxOpenConns(1)
	}

	s := &SQL{logger: l, db: db, flavor: flavor}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s database: %w", flavor, err)
	}
	l.Log("op", "open", "flavor", flavor, "msg", "database schema up to date")

	return s, nil
}

// Close releases the underlying connection pool.
func (s *SQL) Close() error {
	return s.db.Close()
}

func splitURL(u string) (flavor, dsn string, err error) {
	switch {
	case strings.HasPrefix(u, "sqlite:"):
		return flavorSQLite, strings.TrimPrefix(u, "sqlite:"), nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return flavorPostgres, u, nil
	}
	return "", "", fmt.Errorf("unsupported database URL %q (want sqlite:<path> or postgres://…)", u)
}

// isUniqueViolation recognizes uniqueness errors from both drivers so
// callers see ErrConflict regardless of engine.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// SQLITE_CONSTRAINT_PRIMARYKEY and SQLITE_CONSTRAINT_UNIQUE
		return liteErr.Code() == 1555 || liteErr.Code() == 2067
	}
	return false
}

const userColumns = "id, email, hashed_password, is_active, email_verified, created_at"

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.IsActive, &u.EmailVerified, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQL) FindUserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (s *SQL) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

func (s *SQL) CreateUser(ctx context.Context, email, hashedPassword string, emailVerified bool) (*User, error) {
	u := User{
		Email:          email,
		HashedPassword: hashedPassword,
		IsActive:       true,
		EmailVerified:  emailVerified,
		CreatedAt:      time.Now().UTC(),
	}
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO users (email, hashed_password, is_active, email_verified, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		u.Email, u.HashedPassword, u.IsActive, u.EmailVerified, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQL) FindOrgByID(ctx context.Context, id int64) (*Organization, error) {
	var o Organization
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, subnet, created_at FROM organizations WHERE id = $1", id).
		Scan(&o.ID, &o.Name, &o.Subnet, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *SQL) CreateOrg(ctx context.Context, name, subnet string) (*Organization, error) {
	o := Organization{Name: name, Subnet: subnet, CreatedAt: time.Now().UTC()}
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO organizations (name, subnet, created_at) VALUES ($1, $2, $3) RETURNING id",
		o.Name, o.Subnet, o.CreatedAt).Scan(&o.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &o, nil
}

func (s *SQL) IsMember(ctx context.Context, userID, orgID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM organization_users WHERE user_id = $1 AND org_id = $2",
		userID, orgID).Scan(&n)
	return n > 0, err
}

func (s *SQL) AddMember(ctx context.Context, userID, orgID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO organization_users (user_id, org_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		userID, orgID)
	return err
}

func (s *SQL) ListUserOrgs(ctx context.Context, userID int64) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.name, o.subnet, o.created_at
		FROM organizations o
		JOIN organization_users m ON m.org_id = o.id
		WHERE m.user_id = $1
		ORDER BY o.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Subnet, &o.CreatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func (s *SQL) ListMembers(ctx context.Context, orgID int64) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.hashed_password, u.is_active, u.email_verified, u.created_at
		FROM users u
		JOIN organization_users m ON m.user_id = u.id
		WHERE m.org_id = $1
		ORDER BY u.id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.IsActive, &u.EmailVerified, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQL) GetMapping(ctx context.Context, userID, orgID int64) (string, error) {
	var ip string
	err := s.db.QueryRowContext(ctx,
		"SELECT virtual_ip FROM virtual_ip_mappings WHERE user_id = $1 AND org_id = $2",
		userID, orgID).Scan(&ip)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return ip, err
}

func (s *SQL) ListUsedIPs(ctx context.Context, orgID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT virtual_ip FROM virtual_ip_mappings WHERE org_id = $1 ORDER BY id", orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, err
		}
		ips = append(ips, ip)
	}
	return ips, rows.Err()
}

func (s *SQL) InsertMapping(ctx context.Context, userID, orgID int64, ip string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO virtual_ip_mappings (user_id, org_id, virtual_ip, created_at) VALUES ($1, $2, $3, $4)",
		userID, orgID, ip, time.Now().UTC())
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *SQL) ListMappings(ctx context.Context, orgID int64) ([]VirtualIPMapping, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, org_id, virtual_ip, created_at FROM virtual_ip_mappings WHERE org_id = $1 ORDER BY id", orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var maps []VirtualIPMapping
	for rows.Next() {
		var m VirtualIPMapping
		if err := rows.Scan(&m.ID, &m.UserID, &m.OrgID, &m.VirtualIP, &m.CreatedAt); err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

func (s *SQL) CreateOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO otp_verifications (email, otp_code, created_at, expires_at, verified) VALUES ($1, $2, $3, $4, FALSE)",
		email, code, time.Now().UTC(), expiresAt.UTC())
	return err
}

func (s *SQL) ConsumeOTP(ctx context.Context, email, code string, now time.Time) error {
	var (
		id     int64
		stored string
		expiry time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, otp_code, expires_at FROM otp_verifications
		WHERE email = $1 AND verified = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, email).Scan(&id, &stored, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if stored != code || now.After(expiry) {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, "UPDATE otp_verifications SET verified = TRUE WHERE id = $1", id)
	return err
}

func (s *SQL) RecordConnect(ctx context.Context, userID, orgID int64, peerID string, at time.Time) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO connection_events (user_id, org_id, peer_id, connected_at) VALUES ($1, $2, $3, $4) RETURNING id",
		userID, orgID, peerID, at.UTC()).Scan(&id)
	return id, err
}

func (s *SQL) RecordDisconnect(ctx context.Context, eventID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE connection_events SET disconnected_at = $1 WHERE id = $2", at.UTC(), eventID)
	return err
}
