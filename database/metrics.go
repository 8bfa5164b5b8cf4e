/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// Metrics holds the Prometheus collectors for queries and session commits.
type Metrics struct {
	queryDuration *prometheus.HistogramVec
	queryErrors   *prometheus.CounterVec
	commits       *prometheus.CounterVec
	commitRows    prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bunrepo",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		queryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bunrepo",
			Name:      "query_errors_total",
			Help:      "Failed database queries by operation.",
		}, []string{"operation"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bunrepo",
			Name:      "session_commits_total",
			Help:      "Session commits by outcome.",
		}, []string{"outcome"}),
		commitRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bunrepo",
			Name:      "session_commit_rows_total",
			Help:      "Rows affected by successful session commits.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.queryDuration, m.queryErrors, m.commits, m.commitRows)
	}
	return m
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the collectors registered on the default
// Prometheus registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// QueryHook returns a Bun hook feeding the query collectors.
func (m *Metrics) QueryHook() bun.QueryHook {
	return &metricsQueryHook{metrics: m}
}

func (m *Metrics) observeCommit(outcome string, rows int64) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(outcome).Inc()
	if rows > 0 {
		m.commitRows.Add(float64(rows))
	}
}

type metricsQueryHook struct {
	metrics *Metrics
}

var _ bun.QueryHook = (*metricsQueryHook)(nil)

func (h *metricsQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *metricsQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	op := event.Operation()
	h.metrics.queryDuration.WithLabelValues(op).Observe(time.Since(event.StartTime).Seconds())
	if event.Err != nil && !isBenignQueryErr(event.Err) {
		h.metrics.queryErrors.WithLabelValues(op).Inc()
	}
}
