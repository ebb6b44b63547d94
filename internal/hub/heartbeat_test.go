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

package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastHeartbeat shrinks the supervisor enough for tests to watch a
// whole lifetime. The timeout leaves slack for scheduler hiccups so a
// responsive peer is never dropped by accident.
var fastHeartbeat = Config{
	PingInterval:      20 * time.Millisecond,
	PongTimeout:       150 * time.Millisecond,
	PongCheckInterval: 10 * time.Millisecond,
}

func TestHeartbeatTimesOutSilentPeer(t *testing.T) {
	f := newFixture(t, fastHeartbeat)
	alice := f.addUser(t, "alice@example.com", "10.10.0.1")

	conn := f.dial(t, f.token(t, alice.ID))
	register(t, conn, "agent-alice")

	// swallow pings without answering until the hub gives up
	sawPing := false
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "the hub never closed the silent session")
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeErr := &websocket.CloseError{}
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
			assert.Equal(t, "Connection timeout - no pong received", closeErr.Text)
			break
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		require.Equal(t, "ping", m["type"])
		assert.InDelta(t, float64(time.Now().Unix()), m["timestamp"].(float64), 5)
		sawPing = true
	}
	assert.True(t, sawPing, "at least one ping precedes the timeout")

	require.Eventually(t, func() bool {
		return f.hub.Registry().Count(f.org.ID) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHeartbeatPongKeepsSessionAlive(t *testing.T) {
	f := newFixture(t, fastHeartbeat)
	alice := f.addUser(t, "alice@example.com", "10.10.0.1")

	conn := f.dial(t, f.token(t, alice.ID))
	register(t, conn, "agent-alice")

	// answer every ping for several timeout windows
	end := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(end) {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "the session should stay open while pongs flow")
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		if m["type"] == "ping" {
			require.NoError(t, conn.WriteJSON(map[string]string{"type": "pong"}))
		}
	}

	assert.Equal(t, 1, f.hub.Registry().Count(f.org.ID), "a responsive peer must not be dropped")
}

func TestHeartbeatUnsetPongNeverFires(t *testing.T) {
	// pings an hour apart: the pong deadline is never seeded, so the
	// watcher has nothing to compare against
	f := newFixture(t, Config{
		PingInterval:      time.Hour,
		PongTimeout:       30 * time.Millisecond,
		PongCheckInterval: 5 * time.Millisecond,
	})
	alice := f.addUser(t, "alice@example.com", "10.10.0.1")

	conn := f.dial(t, f.token(t, alice.ID))
	register(t, conn, "agent-alice")

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, f.hub.Registry().Count(f.org.ID), "no ping was sent, so no timeout may fire")
}
