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
	"strconv"

	"github.com/gin-gonic/gin"

	"peerhub.io/internal/ipam"
	"peerhub.io/internal/store"
)

type orgRequest struct {
	Name   string `json:"name" binding:"required"`
	Subnet string `json:"subnet" binding:"required"`
}

func (s *Server) createOrg(c *gin.Context) {
	var req orgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and subnet are required"})
		return
	}
	if ipam.HostCount(req.Subnet) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subnet must be an IPv4 network with usable host addresses"})
		return
	}
	user := currentUser(c)
	org, err := s.store.CreateOrg(c.Request.Context(), req.Name, req.Subnet)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "organization name already taken"})
			return
		}
		s.logger.Log("op", "createOrg", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create organization"})
		return
	}
	if err := s.store.AddMember(c.Request.Context(), user.ID, org.ID); err != nil {
		s.logger.Log("op", "createOrg", "org", org.ID, "error", err, "msg", "failed to add creator as member")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create organization"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": org.ID, "name": org.Name, "subnet": org.Subnet})
}

func (s *Server) listOrgs(c *gin.Context) {
	user := currentUser(c)
	orgs, err := s.store.ListUserOrgs(c.Request.Context(), user.ID)
	if err != nil {
		s.logger.Log("op", "listOrgs", "user", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list organizations"})
		return
	}
	out := make([]gin.H, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, gin.H{"id": o.ID, "name": o.Name, "subnet": o.Subnet})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) joinOrg(c *gin.Context) {
	org, ok := s.orgFromPath(c)
	if !ok {
		return
	}
	user := currentUser(c)
	if err := s.store.AddMember(c.Request.Context(), user.ID, org.ID); err != nil {
		s.logger.Log("op", "joinOrg", "org", org.ID, "user", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join organization"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "joined", "organization_id": org.ID})
}

func (s *Server) listMembers(c *gin.Context) {
	org, ok := s.orgFromPath(c)
	if !ok || !s.membersOnly(c, org.ID) {
		return
	}
	members, err := s.store.ListMembers(c.Request.Context(), org.ID)
	if err != nil {
		s.logger.Log("op", "listMembers", "org", org.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list members"})
		return
	}
	out := make([]gin.H, 0, len(members))
	for _, m := range members {
		out = append(out, gin.H{"id": m.ID, "email": m.Email})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) allocateIP(c *gin.Context) {
	org, ok := s.orgFromPath(c)
	if !ok || !s.membersOnly(c, org.ID) {
		return
	}
	user := currentUser(c)
	ip, err := s.ips.EnsureIP(c.Request.Context(), user.ID, org.ID)
	if err != nil {
		if errors.Is(err, ipam.ErrSubnetFull) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		s.logger.Log("op", "allocateIP", "org", org.ID, "user", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "allocation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"organization_id": org.ID, "virtual_ip": ip})
}

func (s *Server) listIPs(c *gin.Context) {
	org, ok := s.orgFromPath(c)
	if !ok || !s.membersOnly(c, org.ID) {
		return
	}
	mappings, err := s.store.ListMappings(c.Request.Context(), org.ID)
	if err != nil {
		s.logger.Log("op", "listIPs", "org", org.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list mappings"})
		return
	}
	out := make([]gin.H, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, gin.H{"user_id": m.UserID, "virtual_ip": m.VirtualIP})
	}
	c.JSON(http.StatusOK, out)
}

// orgFromPath parses the :id parameter and loads the organization,
// answering the request itself when that fails.
func (s *Server) orgFromPath(c *gin.Context) (*store.Organization, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization id"})
		return nil, false
	}
	org, err := s.store.FindOrgByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return nil, false
	}
	if err != nil {
		s.logger.Log("op", "orgLookup", "org", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return nil, false
	}
	return org, true
}

// membersOnly rejects callers outside the organization.
func (s *Server) membersOnly(c *gin.Context, orgID int64) bool {
	user := currentUser(c)
	member, err := s.store.IsMember(c.Request.Context(), user.ID, orgID)
	if err != nil {
		s.logger.Log("op", "membership", "org", orgID, "user", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this organization"})
		return false
	}
	return true
}
