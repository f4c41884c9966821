/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package obsmetrics holds the Prometheus collectors the orchestrator and
// its collaborators publish to, generalizing the teacher's pkg/metrics.
package obsmetrics

import "github.com/prometheus/client_golang/prometheus"

const Namespace = "residency_sched"

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "runs",
			Name:      "total",
			Help:      "Number of schedule runs by terminal status.",
		},
		[]string{"status", "algorithm"},
	)
	RunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a schedule run.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"algorithm"},
	)
	ACGMEViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "acgme",
			Name:      "violations_total",
			Help:      "ACGME duty-hour / supervision-ratio violations found by rule.",
		},
		[]string{"rule"},
	)
	RigidityScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "churn",
			Name:      "rigidity_score",
			Help:      "Anti-churn rigidity score of the most recent run.",
			Buckets:   []float64{0.5, 0.7, 0.85, 0.95, 0.99, 1},
		},
	)
	OutboxRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "outbox",
			Name:      "retries_total",
			Help:      "Outbox publish retry attempts by event type.",
		},
		[]string{"event_type"},
	)
)

// MustRegister registers every collector against reg. Tests may pass a fresh
// prometheus.NewRegistry() to avoid double-registration panics.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(RunsTotal, RunDurationSeconds, ACGMEViolationsTotal, RigidityScore, OutboxRetriesTotal)
}
