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
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"peerhub.io/internal/store"
)

const userKey = "peerhub.user"

// requireUser authenticates the Authorization header and loads the
// account for downstream handlers. Unknown tokens are 401, inactive
// accounts 403.
func (s *Server) requireUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	userID, err := s.verifier.Verify(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	user, err := s.store.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if !user.IsActive {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user inactive"})
		return
	}
	c.Set(userKey, user)
	c.Next()
}

// currentUser returns the account loaded by requireUser.
func currentUser(c *gin.Context) *store.User {
	return c.MustGet(userKey).(*store.User)
}

// rateLimited throttles by client IP. Limiter trouble fails open:
// losing Redis shouldn't lock everyone out.
func (s *Server) rateLimited(c *gin.Context) {
	if s.limiter == nil {
		c.Next()
		return
	}
	ok, err := s.limiter.Allow(c.Request.Context(), c.ClientIP())
	if err != nil {
		s.logger.Log("op", "ratelimit", "error", err, "msg", "limiter unavailable, allowing")
		c.Next()
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}
	c.Next()
}
