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

package hub

import (
	signalv1 "peerhub.io/pkg/apis/signal/v1"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "hub"

var (
	sessionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: signalv1.MetricsNamespace,
		Subsystem: subsystem,
		Name:      "sessions",
		Help:      "Number of registered signaling sessions",
	}, []string{"org"})

	registersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: signalv1.MetricsNamespace,
		Subsystem: subsystem,
		Name:      "registers_total",
		Help:      "Number of successful agent registrations",
	})

	teardownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: signalv1.MetricsNamespace,
		Subsystem: subsystem,
		Name:      "teardowns_total",
		Help:      "Number of session teardowns",
	})

	broadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: signalv1.MetricsNamespace,
		Subsystem: subsystem,
		Name:      "broadcasts_total",
		Help:      "Number of presence broadcasts",
	})

	eventsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: signalv1.MetricsNamespace,
		Subsystem: subsystem,
		Name:      "events_sent_total",
		Help:      "Number of presence events delivered to sessions",
	})

	sendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: signalv1.MetricsNamespace,
		Subsystem: subsystem,
		Name:      "send_failures_total",
		Help:      "Number of per-recipient send failures during broadcast",
	})

	heartbeatTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: signalv1.MetricsNamespace,
		Subsystem: subsystem,
		Name:      "heartbeat_timeouts_total",
		Help:      "Number of sessions closed for missing their pong deadline",
	})
)

func init() {
	prometheus.MustRegister(sessionsActive)
	prometheus.MustRegister(registersTotal)
	prometheus.MustRegister(teardownsTotal)
	prometheus.MustRegister(broadcastsTotal)
	prometheus.MustRegister(eventsSent)
	prometheus.MustRegister(sendFailures)
	prometheus.MustRegister(heartbeatTimeouts)
}
