// Copyright 2017 Google Inc.
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

// Package ipam allocates virtual IPs from an organization's subnet.
// NextFreeHost is the pure allocation rule; Service layers
// allocate-if-absent semantics with conflict retry on top of the
// persistence layer.
package ipam

import (
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
)

// NextFreeHost returns the numerically smallest usable host address in
// subnet that isn't in used, or "" when the subnet is invalid, isn't
// IPv4, or has no free hosts. The network and broadcast addresses are
// never handed out.
func NextFreeHost(subnet string, used map[string]bool) string {
	ip, ipnet, err := net.ParseCIDR(subnet)
	if err != nil || ip.To4() == nil {
		return ""
	}
	if ones, bits := ipnet.Mask.Size(); bits != 32 || ones >= 31 {
		// /31 and /32 have no conventional hosts
		return ""
	}

	first, last := cidr.AddressRange(ipnet)
	for h := cidr.Inc(first); !h.Equal(last); h = cidr.Inc(h) {
		if !used[h.String()] {
			return h.String()
		}
	}
	return ""
}

// HostCount returns the number of usable host addresses in subnet,
// zero for anything NextFreeHost would reject outright.
func HostCount(subnet string) uint64 {
	ip, ipnet, err := net.ParseCIDR(subnet)
	if err != nil || ip.To4() == nil {
		return 0
	}
	if ones, bits := ipnet.Mask.Size(); bits != 32 || ones >= 31 {
		return 0
	}
	return cidr.AddressCount(ipnet) - 2
}

// SameSubnet reports whether ip1 and ip2 both lie inside subnet. Any
// parse failure makes it false.
func SameSubnet(subnet, ip1, ip2 string) bool {
	_, ipnet, err := net.ParseCIDR(subnet)
	if err != nil {
		return false
	}
	a, b := net.ParseIP(ip1), net.ParseIP(ip2)
	return a != nil && b != nil && ipnet.Contains(a) && ipnet.Contains(b)
}
