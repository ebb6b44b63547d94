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
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"peerhub.io/internal/auth"
	"peerhub.io/internal/store"
)

type credentials struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type otpRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type verifyRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Code     string `json:"code" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// registerUser creates an account without email verification.
// Production signups go through the OTP flow; this stays for dev
// setups and scripted provisioning.
func (s *Server) registerUser(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Log("op", "register", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	user, err := s.store.CreateUser(c.Request.Context(), req.Email, hash, false)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		s.logger.Log("op", "register", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	s.issueToken(c, http.StatusCreated, user)
}

func (s *Server) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	user, err := s.store.FindUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		// same answer for unknown email and bad password
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !auth.CheckPassword(user.HashedPassword, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "user inactive"})
		return
	}
	s.issueToken(c, http.StatusOK, user)
}

func (s *Server) requestOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	code, err := auth.GenerateOTP()
	if err != nil {
		s.logger.Log("op", "requestOTP", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate verification code"})
		return
	}
	expires := time.Now().UTC().Add(auth.OTPTTL)
	if err := s.store.CreateOTP(c.Request.Context(), req.Email, code, expires); err != nil {
		s.logger.Log("op", "requestOTP", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store verification code"})
		return
	}
	body := "Your verification code is " + code + ". It expires in 10 minutes."
	if err := s.mailer.Send(req.Email, "Your PeerHub verification code", body); err != nil {
		s.logger.Log("op", "requestOTP", "error", err, "msg", "failed to send code")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send verification code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

func (s *Server) verifyOTPAndRegister(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, code and password are required"})
		return
	}
	if err := s.store.ConsumeOTP(c.Request.Context(), req.Email, req.Code, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired code"})
			return
		}
		s.logger.Log("op", "verifyOTP", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Log("op", "verifyOTP", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	user, err := s.store.CreateUser(c.Request.Context(), req.Email, hash, true)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		s.logger.Log("op", "verifyOTP", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	s.issueToken(c, http.StatusCreated, user)
}

func (s *Server) issueToken(c *gin.Context, status int, user *store.User) {
	token, err := s.issuer.Issue(user.ID, time.Now())
	if err != nil {
		s.logger.Log("op", "issueToken", "user", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(status, gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"access_token": token,
		"token_type":   "bearer",
	})
}
