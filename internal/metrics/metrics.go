// Copyright 2025 The Hyperdrive Authors
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

// Package metrics instruments drive bring-up, stat mutation and
// content-feed write sessions, in the shape of the teacher's
// common.GCSMetricHandle: a narrow interface the drive core depends on,
// with a Prometheus-backed production implementation and a no-op
// implementation for tests that don't care about metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Handle is the metrics surface internal/drive depends on.
type Handle interface {
	BringUp(ctx context.Context, d time.Duration, err error)
	StatPut(ctx context.Context, path string)
	ContentAcquire(ctx context.Context, d time.Duration)
	WriteSession(ctx context.Context, bytesWritten int64, d time.Duration)
}

// noopHandle is used when the caller hasn't wired a registry.
type noopHandle struct{}

func (noopHandle) BringUp(context.Context, time.Duration, error)  {}
func (noopHandle) StatPut(context.Context, string)                {}
func (noopHandle) ContentAcquire(context.Context, time.Duration)  {}
func (noopHandle) WriteSession(context.Context, int64, time.Duration) {}

// Noop returns a Handle that records nothing.
func Noop() Handle { return noopHandle{} }

// promHandle is the production implementation, registered against a
// caller-supplied prometheus.Registerer the way the teacher's
// common.oc_metrics/otel_metrics wire into the process registry.
type promHandle struct {
	bringUps        *prometheus.CounterVec
	bringUpDuration prometheus.Histogram
	statPuts        *prometheus.CounterVec
	contentAcquire  prometheus.Histogram
	writeBytes      prometheus.Counter
	writeDuration   prometheus.Histogram
}

// NewPrometheus builds a Handle and registers its collectors with reg.
func NewPrometheus(reg prometheus.Registerer) Handle {
	h := &promHandle{
		bringUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hyperdrive_bring_up_total",
			Help: "Count of drive bring-up attempts, labeled by outcome.",
		}, []string{"outcome"}),
		bringUpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hyperdrive_bring_up_duration_seconds",
			Help:    "Time spent in the memoized ready future.",
			Buckets: prometheus.DefBuckets,
		}),
		statPuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hyperdrive_stat_puts_total",
			Help: "Count of trie stat puts, labeled by whether the path is the root or a leaf.",
		}, []string{"kind"}),
		contentAcquire: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hyperdrive_content_acquire_duration_seconds",
			Help:    "Time spent resolving a trie's ContentState (_getContent).",
			Buckets: prometheus.DefBuckets,
		}),
		writeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hyperdrive_write_bytes_total",
			Help: "Bytes appended to content feeds across all write sessions.",
		}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hyperdrive_write_session_duration_seconds",
			Help:    "Duration of a content-feed write session, lock held for its entirety.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(h.bringUps, h.bringUpDuration, h.statPuts, h.contentAcquire, h.writeBytes, h.writeDuration)
	return h
}

func (h *promHandle) BringUp(_ context.Context, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h.bringUps.WithLabelValues(outcome).Inc()
	h.bringUpDuration.Observe(d.Seconds())
}

func (h *promHandle) StatPut(_ context.Context, path string) {
	h.statPuts.WithLabelValues(kindLabel(path)).Inc()
}

// kindLabel keeps cardinality bounded: we label by whether the path
// looks like a directory probe ("/") or a leaf, not by the path itself.
func kindLabel(path string) string {
	if path == "/" || path == "" {
		return "root"
	}
	return "leaf"
}

func (h *promHandle) ContentAcquire(_ context.Context, d time.Duration) {
	h.contentAcquire.Observe(d.Seconds())
}

func (h *promHandle) WriteSession(_ context.Context, bytesWritten int64, d time.Duration) {
	h.writeBytes.Add(float64(bytesWritten))
	h.writeDuration.Observe(d.Seconds())
}
