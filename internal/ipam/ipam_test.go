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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextFreeHost(t *testing.T) {
	full := map[string]bool{}
	for i := 1; i <= 254; i++ {
		full[fmt.Sprintf("10.1.0.%d", i)] = true
	}

	tests := []struct {
		desc   string
		subnet string
		used   map[string]bool
		want   string
	}{
		{desc: "empty subnet",
			subnet: "10.1.0.0/24",
			want:   "10.1.0.1",
		},

		{desc: "first host taken",
			subnet: "10.1.0.0/24",
			used:   map[string]bool{"10.1.0.1": true},
			want:   "10.1.0.2",
		},

		{desc: "holes fill in numeric order",
			subnet: "10.1.0.0/24",
			used:   map[string]bool{"10.1.0.1": true, "10.1.0.3": true},
			want:   "10.1.0.2",
		},

		{desc: "slash 30 second host",
			subnet: "10.1.0.0/30",
			used:   map[string]bool{"10.1.0.1": true},
			want:   "10.1.0.2",
		},

		// the network and broadcast addresses are never handed out
		{desc: "slash 30 full",
			subnet: "10.1.0.0/30",
			used:   map[string]bool{"10.1.0.1": true, "10.1.0.2": true},
			want:   "",
		},

		{desc: "slash 24 full",
			subnet: "10.1.0.0/24",
			used:   full,
			want:   "",
		},

		{desc: "slash 31 has no usable hosts",
			subnet: "10.1.0.0/31",
			want:   "",
		},

		{desc: "slash 32 has no usable hosts",
			subnet: "10.1.0.1/32",
			want:   "",
		},

		{desc: "missing prefix length",
			subnet: "10.1.0.0",
			want:   "",
		},

		{desc: "not a network at all",
			subnet: "bogus",
			want:   "",
		},

		{desc: "IPv6 is out of scope",
			subnet: "2001:db8::/112",
			want:   "",
		},
	}

	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			got := NextFreeHost(test.subnet, test.used)
			if got != test.want {
				t.Errorf("%q: NextFreeHost returned %q, want %q", test.desc, got, test.want)
			}
		})
	}
}

func TestHostCount(t *testing.T) {
	assert.Equal(t, uint64(254), HostCount("192.168.1.0/24"))
	assert.Equal(t, uint64(2), HostCount("192.168.1.0/30"))
	assert.Equal(t, uint64(0), HostCount("192.168.1.0/31"))
	assert.Equal(t, uint64(0), HostCount("192.168.1.1"))
	assert.Equal(t, uint64(0), HostCount("2001:db8::/112"))
}

func TestSameSubnet(t *testing.T) {
	assert.True(t, SameSubnet("10.0.0.0/24", "10.0.0.1", "10.0.0.254"))
	assert.True(t, SameSubnet("10.0.0.0/16", "10.0.1.1", "10.0.2.1"))
	assert.False(t, SameSubnet("10.0.0.0/24", "10.0.0.1", "10.0.1.1"))
	assert.False(t, SameSubnet("10.0.0.0/24", "10.0.1.1", "10.0.0.1"))
	assert.False(t, SameSubnet("bogus", "10.0.0.1", "10.0.0.2"))
	assert.False(t, SameSubnet("10.0.0.0/24", "bogus", "10.0.0.1"))
	assert.False(t, SameSubnet("10.0.0.0/24", "10.0.0.1", ""))
}
