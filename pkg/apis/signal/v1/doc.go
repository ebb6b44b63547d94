// Copyright 2025 Acnodal, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package v1 is the v1 version of the PeerHub signaling protocol.
//
// It defines the JSON frames exchanged over an agent's WebSocket and
// the constants (message types, close codes, wire error strings)
// shared between the hub and its clients. All frames are text frames
// carrying a JSON object with a "type" discriminator.
package v1 // import "peerhub.io/pkg/apis/signal/v1"
