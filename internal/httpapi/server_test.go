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

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerhub.io/internal/auth"
	"peerhub.io/internal/ipam"
	"peerhub.io/internal/ratelimit"
	"peerhub.io/internal/store"
)

var apiSecret = []byte("api-test-secret")

// captureSender keeps sent mail in memory so tests can fish the OTP
// code back out.
type captureSender struct {
	mu     sync.Mutex
	to     []string
	bodies []string
}

func (c *captureSender) Send(to, _, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.to = append(c.to, to)
	c.bodies = append(c.bodies, body)
	return nil
}

var otpPattern = regexp.MustCompile(`[0-9]{6}`)

func (c *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.bodies, "no mail was sent")
	code := otpPattern.FindString(c.bodies[len(c.bodies)-1])
	require.NotEmpty(t, code, "mail carries no code: %s", c.bodies[len(c.bodies)-1])
	return code
}

type apiFixture struct {
	server *Server
	store  *store.Mem
	mailer *captureSender
	issuer *auth.Issuer
}

func newAPIFixture(t *testing.T, limiter ratelimit.Limiter) *apiFixture {
	t.Helper()
	mem := store.NewMem()
	mailer := &captureSender{}
	srv := New(Deps{
		Logger:   log.NewNopLogger(),
		Store:    mem,
		Issuer:   auth.NewIssuer(apiSecret, time.Hour),
		Verifier: auth.NewVerifier(apiSecret),
		IPs:      ipam.NewService(log.NewNopLogger(), mem),
		Mailer:   mailer,
		Limiter:  limiter,
	})
	return &apiFixture{
		server: srv,
		store:  mem,
		mailer: mailer,
		issuer: auth.NewIssuer(apiSecret, time.Hour),
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), "body: %s", w.Body.String())
	return m
}

// signup drives the dev registration endpoint and returns a usable
// bearer token.
func (f *apiFixture) signup(t *testing.T, email string) (int64, string) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/register", map[string]string{"email": email, "password": "hunter2hunter2"}, "")
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	resp := decode(t, w)
	return int64(resp["id"].(float64)), resp["access_token"].(string)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, nil)
	w := f.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestBearerMiddleware(t *testing.T) {
	f := newAPIFixture(t, nil)
	id, token := f.signup(t, "alice@example.com")

	w := f.do(t, http.MethodGet, "/organizations", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing token")

	w = f.do(t, http.MethodGet, "/organizations", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "malformed token")

	// a well-signed token naming a user that doesn't exist
	ghost, err := f.issuer.Issue(9999, time.Now())
	require.NoError(t, err)
	w = f.do(t, http.MethodGet, "/organizations", nil, ghost)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/organizations", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)

	f.store.SetActive(id, false)
	w = f.do(t, http.MethodGet, "/organizations", nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code, "inactive users are shut out")
}

func TestRateLimiting(t *testing.T) {
	// one request a minute with a burst of two
	f := newAPIFixture(t, ratelimit.NewKeyedLimiter(1, 2))
	body := map[string]string{"email": "alice@example.com", "password": "wrong"}

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, "/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "request %d should pass the limiter", i+1)
	}
	w := f.do(t, http.MethodPost, "/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// unthrottled routes are unaffected
	w = f.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
