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

package httpapi

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	signalv1 "peerhub.io/pkg/apis/signal/v1"
)

const subsystem = "http"

var requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: signalv1.MetricsNamespace,
	Subsystem: subsystem,
	Name:      "requests_total",
	Help:      "Control-plane requests handled, by route and status code",
}, []string{"method", "path", "code"})

func init() {
	prometheus.MustRegister(requestsTotal)
}

// RunMetrics runs the metrics server. It doesn't ever return.
func RunMetrics(metricsHost string, metricsPort int) {
	http.Handle("/metrics", promhttp.Handler())
	http.ListenAndServe(fmt.Sprintf("%s:%d", metricsHost, metricsPort), nil)
}
