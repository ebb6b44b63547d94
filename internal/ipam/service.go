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

package ipam

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-kit/kit/log"

	"peerhub.io/internal/store"
)

// ErrSubnetFull is returned when every host address in the org's
// subnet is already mapped.
var ErrSubnetFull = errors.New("no available IPs")

// maxAttempts bounds the allocate/insert loop when concurrent callers
// race for the same address.
const maxAttempts = 3

// Mapper is the slice of the persistence API the service needs.
type Mapper interface {
	FindOrgByID(ctx context.Context, id int64) (*store.Organization, error)
	GetMapping(ctx context.Context, userID, orgID int64) (string, error)
	ListUsedIPs(ctx context.Context, orgID int64) ([]string, error)
	InsertMapping(ctx context.Context, userID, orgID int64, ip string) error
}

// Service hands out sticky virtual IPs: the first call for a (user,
// org) pair allocates, every later call returns the same address.
type Service struct {
	logger log.Logger
	store  Mapper
}

func NewService(l log.Logger, m Mapper) *Service {
	return &Service{logger: l, store: m}
}

// EnsureIP returns the virtual IP for user in org, allocating one if
// none exists yet. When two callers race for the same address the
// loser sees a store conflict, refreshes the used set, and tries
// again.
func (s *Service) EnsureIP(ctx context.Context, userID, orgID int64) (string, error) {
	org, err := s.store.FindOrgByID(ctx, orgID)
	if err != nil {
		return "", fmt.Errorf("looking up org %d: %w", orgID, err)
	}
	orgLabel := strconv.FormatInt(orgID, 10)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		ip, err := s.store.GetMapping(ctx, userID, orgID)
		if err == nil {
			return ip, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}

		used, err := s.store.ListUsedIPs(ctx, orgID)
		if err != nil {
			return "", err
		}
		usedSet := make(map[string]bool, len(used))
		for _, u := range used {
			usedSet[u] = true
		}

		next := NextFreeHost(org.Subnet, usedSet)
		if next == "" {
			allocationRejected.WithLabelValues(orgLabel, "exhausted").Inc()
			return "", ErrSubnetFull
		}

		err = s.store.InsertMapping(ctx, userID, orgID, next)
		if err == nil {
			poolCapacity.WithLabelValues(orgLabel).Set(float64(HostCount(org.Subnet)))
			poolActive.WithLabelValues(orgLabel).Set(float64(len(used) + 1))
			s.logger.Log("event", "ipAllocated", "ip", next, "org", orgID, "user", userID)
			return next, nil
		}
		if errors.Is(err, store.ErrConflict) {
			allocationRejected.WithLabelValues(orgLabel, "conflict").Inc()
			s.logger.Log("op", "EnsureIP", "org", orgID, "user", userID, "msg", "allocation raced, retrying")
			continue
		}
		return "", err
	}

	return "", fmt.Errorf("allocating for user %d in org %d kept conflicting", userID, orgID)
}
