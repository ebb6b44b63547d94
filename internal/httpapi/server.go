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

// Package httpapi is the HTTP control plane: account registration and
// login, the OTP flow, organization management, and virtual-IP
// allocation. The signaling WebSocket mounts on the same engine so a
// single listener serves both planes.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/log"

	"peerhub.io/internal/ipam"
	"peerhub.io/internal/mail"
	"peerhub.io/internal/ratelimit"
	"peerhub.io/internal/store"
)

// TokenVerifier validates a bearer token and returns the user id it
// names.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// TokenIssuer mints a bearer token for a user.
type TokenIssuer interface {
	Issue(userID int64, now time.Time) (string, error)
}

// Deps collects everything the control plane talks to.
type Deps struct {
	Logger   log.Logger
	Store    store.Store
	Issuer   TokenIssuer
	Verifier TokenVerifier
	IPs      *ipam.Service
	Mailer   mail.Sender
	// Limiter guards login and the OTP endpoints; nil disables
	// throttling.
	Limiter ratelimit.Limiter
	// WS handles the signaling endpoint; nil leaves it unmounted.
	WS http.HandlerFunc
}

// Server routes control-plane requests.
type Server struct {
	logger   log.Logger
	store    store.Store
	issuer   TokenIssuer
	verifier TokenVerifier
	ips      *ipam.Service
	mailer   mail.Sender
	limiter  ratelimit.Limiter
	engine   *gin.Engine
}

func New(d Deps) *Server {
	s := &Server{
		logger:   d.Logger,
		store:    d.Store,
		issuer:   d.Issuer,
		verifier: d.Verifier,
		ips:      d.IPs,
		mailer:   d.Mailer,
		limiter:  d.Limiter,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.observe)

	engine.GET("/health", s.health)
	engine.POST("/register", s.registerUser)
	engine.POST("/login", s.rateLimited, s.login)
	engine.POST("/auth/request-otp", s.rateLimited, s.requestOTP)
	engine.POST("/auth/verify-otp-and-register", s.rateLimited, s.verifyOTPAndRegister)

	orgs := engine.Group("/organizations", s.requireUser)
	orgs.POST("", s.createOrg)
	orgs.GET("", s.listOrgs)
	orgs.POST("/:id/join", s.joinOrg)
	orgs.GET("/:id/members", s.listMembers)
	orgs.POST("/:id/allocate_ip", s.allocateIP)
	orgs.GET("/:id/ips", s.listIPs)

	if d.WS != nil {
		engine.GET("/ws/", gin.WrapF(d.WS))
	}

	s.engine = engine
	return s
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// observe counts and logs every request by its route template, not the
// raw path, to keep metric cardinality bounded.
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	status := c.Writer.Status()
	requestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
	s.logger.Log("op", "http", "method", c.Request.Method, "path", path, "status", status, "duration", time.Since(start).String())
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
