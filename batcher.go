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

package flowetl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aaronlmathis/flowetl/core"
	"github.com/aaronlmathis/flowetl/metrics"
)

// BatchWriterStats holds statistics about the batching writer.
type BatchWriterStats struct {
	RecordsReceived int64         // records drained from the input channel
	RecordsAccepted int64         // records the sink stored
	RecordsRejected int64         // records the sink rejected individually
	RecordsDropped  int64         // records in batches that failed as a whole
	Flushes         int64         // Accept calls, successful or not
	FailedFlushes   int64         // Accept calls that returned an error
	FlushDuration   time.Duration // total time spent in Accept
	LastFlush       time.Time
}

// BatchWriterOptions configures the batching writer.
type BatchWriterOptions struct {
	BatchSize int
	Reporter  core.Reporter
	Metrics   *metrics.Metrics
	Logger    *log.Entry
}

// WriterOption allows functional customization of BatchWriter.
type WriterOption func(*BatchWriterOptions)

// WithWriterBatchSize sets the maximum number of records per flush.
func WithWriterBatchSize(size int) WriterOption {
	return func(o *BatchWriterOptions) { o.BatchSize = size }
}

// WithWriterReporter sets where sink failures are reported.
func WithWriterReporter(r core.Reporter) WriterOption {
	return func(o *BatchWriterOptions) { o.Reporter = r }
}

// WithWriterMetrics enables flush metrics.
func WithWriterMetrics(m *metrics.Metrics) WriterOption {
	return func(o *BatchWriterOptions) { o.Metrics = m }
}

// WithWriterLogger sets the log entry used for flush logging.
func WithWriterLogger(l *log.Entry) WriterOption {
	return func(o *BatchWriterOptions) { o.Logger = l }
}

// BatchWriter is the single consumer of the pipeline's output channel.
// It groups records into batches of at most BatchSize and hands each to the sink in one call.
type BatchWriter struct {
	sink  core.BatchSink
	opts  BatchWriterOptions
	stats BatchWriterStats
	mu    sync.Mutex
}

// NewBatchWriter creates a writer for sink. The batch size defaults to 5000 and must be positive.
func NewBatchWriter(sink core.BatchSink, options ...WriterOption) (*BatchWriter, error) {
	opts := BatchWriterOptions{BatchSize: 5000}
	for _, opt := range options {
		opt(&opts)
	}

	if sink == nil {
		return nil, errors.New("batch writer requires a sink")
	}
	if opts.BatchSize < 1 {
		return nil, &core.ConfigError{Path: "pipeline.batch_size", Err: fmt.Errorf("must be at least 1, got %d", opts.BatchSize)}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}

	return &BatchWriter{sink: sink, opts: opts}, nil
}

// Run drains in until it is closed, flushing every full batch and the final partial one.
//
// Sink calls are detached from ctx cancellation so that records already in flight are still
// delivered during shutdown; the sink client's own timeout bounds each call.
func (w *BatchWriter) Run(ctx context.Context, in <-chan core.Record) {
	sinkCtx := context.WithoutCancel(ctx)
	batch := make(core.Batch, 0, w.opts.BatchSize)

	for record := range in {
		batch = append(batch, record)
		w.mu.Lock()
		w.stats.RecordsReceived++
		w.mu.Unlock()

		if len(batch) >= w.opts.BatchSize {
			w.flush(sinkCtx, batch)
			batch = make(core.Batch, 0, w.opts.BatchSize)
		}
	}

	if len(batch) > 0 {
		w.flush(sinkCtx, batch)
	}
}

// flush performs one Accept call and reports its outcome. The batch is not retried.
func (w *BatchWriter) flush(ctx context.Context, batch core.Batch) {
	start := time.Now()
	result, err := w.sink.Accept(ctx, batch)
	elapsed := time.Since(start)

	w.mu.Lock()
	w.stats.Flushes++
	w.stats.FlushDuration += elapsed
	w.stats.LastFlush = time.Now()
	w.mu.Unlock()

	logger := w.opts.Logger.WithField("size", len(batch)).WithField("duration", elapsed)

	if err != nil {
		w.mu.Lock()
		w.stats.FailedFlushes++
		w.stats.RecordsDropped += int64(len(batch))
		w.mu.Unlock()

		w.report(&core.SinkError{Op: "flush", BatchSize: len(batch), Index: -1, Err: err})
		w.observe("failed", len(batch), 0, elapsed)
		logger.WithError(err).Warn("batch flush failed")
		return
	}

	rejected := 0
	if result != nil {
		for _, r := range result.Rejected {
			w.report(&core.SinkError{
				Op:        "index",
				BatchSize: len(batch),
				Index:     r.Index,
				Status:    r.Status,
				Err:       errors.New(r.Reason),
			})
		}
		rejected = len(result.Rejected)
	}

	w.mu.Lock()
	w.stats.RecordsRejected += int64(rejected)
	w.stats.RecordsAccepted += int64(len(batch) - rejected)
	w.mu.Unlock()

	outcome := "ok"
	if rejected > 0 {
		outcome = "partial"
		logger.WithField("rejected", rejected).Warn("sink rejected records")
	} else {
		logger.Debug("batch flushed")
	}
	w.observe(outcome, len(batch), rejected, elapsed)
}

func (w *BatchWriter) report(err error) {
	if w.opts.Reporter != nil {
		w.opts.Reporter.Report(err)
	}
}

func (w *BatchWriter) observe(outcome string, size, rejected int, elapsed time.Duration) {
	if w.opts.Metrics != nil {
		w.opts.Metrics.RecordFlush(outcome, size, rejected, elapsed)
	}
}

// Stats returns writer statistics.
func (w *BatchWriter) Stats() BatchWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
