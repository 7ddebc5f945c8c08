//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of flowetl.
//
// flowetl is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// flowetl is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with flowetl. If not, see https://www.gnu.org/licenses/.

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const FlowETLMetricsPrefix = "flowetl_"

type Metrics struct {
	linesRead       prometheus.Counter
	recordsEmitted  prometheus.Counter
	errors          *prometheus.CounterVec
	batchesFlushed  *prometheus.CounterVec
	recordsRejected prometheus.Counter
	flushDuration   prometheus.Histogram
	batchSize       prometheus.Histogram
}

// NewMetrics registers the pipeline metrics with the default registry.
func NewMetrics(prefix string) *Metrics {
	return newMetrics(prefix, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers the pipeline metrics with reg. Used where the default registry
// would see duplicate registrations, e.g. several pipelines in one test binary.
func NewMetricsWithRegistry(prefix string, reg prometheus.Registerer) *Metrics {
	return newMetrics(prefix, reg)
}

func newMetrics(prefix string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		linesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "lines_read_total",
			Help: "Number of non-blank input lines distributed to workers",
		}),
		recordsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "records_emitted_total",
			Help: "Number of records parsed, transformed and handed to the writer",
		}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "errors_total",
			Help: "Number of errors reported to the collector grouped by kind",
		}, []string{"kind"}),
		batchesFlushed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "batches_flushed_total",
			Help: "Number of batch flushes grouped by outcome",
		}, []string{"outcome"}),
		recordsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: prefix + "records_rejected_total",
			Help: "Number of individual records rejected by the sink",
		}),
		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "flush_duration_seconds",
			Help:    "Time spent in one sink flush",
			Buckets: prometheus.DefBuckets,
		}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "batch_size",
			Help:    "Number of records per flushed batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

func (m *Metrics) RecordLineRead() {
	m.linesRead.Inc()
}

func (m *Metrics) RecordEmitted() {
	m.recordsEmitted.Inc()
}

func (m *Metrics) RecordError(kind string) {
	m.errors.With(map[string]string{"kind": kind}).Inc()
}

// RecordFlush observes one flush. outcome is "ok", "partial" or "failed".
func (m *Metrics) RecordFlush(outcome string, size int, rejected int, duration time.Duration) {
	m.batchesFlushed.With(map[string]string{"outcome": outcome}).Inc()
	m.batchSize.Observe(float64(size))
	m.flushDuration.Observe(duration.Seconds())
	if rejected > 0 {
		m.recordsRejected.Add(float64(rejected))
	}
}

// ServeMetrics exposes the default registry on :port/metrics and returns a function that stops the server.
func ServeMetrics(port uint16) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return serveHttp(port, mux)
}

func serveHttp(port uint16, handler http.Handler) (shutdown func()) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting http server listening on %d", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Infof("Stopping http server listening on %d", port)
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("http server shutdown failed")
		}
	}
}
