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
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/aaronlmathis/flowetl/core"
	"github.com/aaronlmathis/flowetl/metrics"
)

// Package flowetl provides a concurrent ingestion pipeline for line-oriented flow-accounting records.
//
// Core Concepts:
//   - LineSource: raw input lines (file, stdin, S3 objects).
//   - Parser: one line to one Record (JSON or delimited).
//   - Transformer: the rule engine and any extra per-record steps.
//   - BatchSink: bulk destination accepting one batch per call (HTTP bulk, MongoDB, PostgreSQL, Parquet, stdout).
//   - ErrorCollector: every non-fatal failure, drained once to decide the run's verdict.
//
// Lines are distributed round-robin over N workers with bounded queues. Workers parse and
// transform, then push to one bounded output channel drained by a single BatchWriter.
//
// Example usage:
//
//   pipeline, err := flowetl.NewPipeline().
//       From(lineReader).
//       ParseWith(readers.NewJSONParser()).
//       Transform(engine).
//       To(sink).
//       WithWorkers(4).
//       WithBatchSize(5000).
//       Build()
//   if err != nil { log.Fatal(err) }
//   result, err := pipeline.Execute(context.Background())

// Defaults for pipeline sizing.
const (
	DefaultWorkers      = 4
	DefaultQueueSize    = 64
	DefaultOutputBuffer = 256
	DefaultBatchSize    = 5000
)

// PipelineBuilder provides a fluent API for constructing pipelines.
// Use NewPipeline() to create a new builder, then chain From, ParseWith, Transform, To and sizing methods.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder with default sizing.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			transformers: make([]core.Transformer, 0),
			workers:      DefaultWorkers,
			queueSize:    DefaultQueueSize,
			outputBuffer: DefaultOutputBuffer,
			batchSize:    DefaultBatchSize,
		},
	}
}

// From sets the LineSource for the pipeline.
func (pb *PipelineBuilder) From(source core.LineSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// ParseWith sets the parser applied to every input line.
func (pb *PipelineBuilder) ParseWith(parser core.Parser) *PipelineBuilder {
	pb.pipeline.parser = parser
	return pb
}

// ParseHeaderWith makes the first non-blank input line a header: fn builds the parser for the
// remaining lines from it. Used for delimited input without configured columns.
func (pb *PipelineBuilder) ParseHeaderWith(fn HeaderParserFunc) *PipelineBuilder {
	pb.pipeline.headerParser = fn
	return pb
}

// Transform adds a Transformer to the pipeline. Transformers run in the order they are added.
func (pb *PipelineBuilder) Transform(transformer core.Transformer) *PipelineBuilder {
	pb.pipeline.transformers = append(pb.pipeline.transformers, transformer)
	return pb
}

// Map adds a transformation to the pipeline using a function.
func (pb *PipelineBuilder) Map(fn func(ctx context.Context, record core.Record) (core.Record, error)) *PipelineBuilder {
	return pb.Transform(core.TransformFunc(fn))
}

// To sets the BatchSink for the pipeline.
func (pb *PipelineBuilder) To(sink core.BatchSink) *PipelineBuilder {
	pb.pipeline.sink = sink
	return pb
}

// WithWorkers sets the number of parse/transform workers.
func (pb *PipelineBuilder) WithWorkers(n int) *PipelineBuilder {
	pb.pipeline.workers = n
	return pb
}

// WithQueueSize sets the capacity of each worker's input queue.
func (pb *PipelineBuilder) WithQueueSize(n int) *PipelineBuilder {
	pb.pipeline.queueSize = n
	return pb
}

// WithOutputBuffer sets the capacity of the shared output channel.
func (pb *PipelineBuilder) WithOutputBuffer(n int) *PipelineBuilder {
	pb.pipeline.outputBuffer = n
	return pb
}

// WithBatchSize sets the maximum number of records per sink call.
func (pb *PipelineBuilder) WithBatchSize(n int) *PipelineBuilder {
	pb.pipeline.batchSize = n
	return pb
}

// WithCollector sets the error collector. Warnings from transformers should go to the same collector.
func (pb *PipelineBuilder) WithCollector(c *core.ErrorCollector) *PipelineBuilder {
	pb.pipeline.collector = c
	return pb
}

// WithMetrics enables prometheus metrics.
func (pb *PipelineBuilder) WithMetrics(m *metrics.Metrics) *PipelineBuilder {
	pb.pipeline.metrics = m
	return pb
}

// Build validates and constructs the Pipeline from the builder.
//
// Returns the constructed pipeline, or an error if required components are missing or sizes are invalid.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	p := pb.pipeline
	if p.source == nil {
		return nil, errors.New("pipeline requires a line source")
	}
	if p.sink == nil {
		return nil, errors.New("pipeline requires a batch sink")
	}
	if p.parser == nil && p.headerParser == nil {
		return nil, errors.New("pipeline requires a parser")
	}

	for _, check := range []struct {
		path  string
		value int
		min   int
	}{
		{"pipeline.workers", p.workers, 1},
		{"pipeline.queue_size", p.queueSize, 1},
		{"pipeline.output_buffer", p.outputBuffer, 0},
		{"pipeline.batch_size", p.batchSize, 1},
	} {
		if check.value < check.min {
			return nil, &core.ConfigError{Path: check.path, Err: fmt.Errorf("must be at least %d, got %d", check.min, check.value)}
		}
	}

	if p.collector == nil {
		var opts []core.CollectorOption
		if m := p.metrics; m != nil {
			opts = append(opts, core.WithReportHook(func(e core.ErrorEntry) { m.RecordError(string(e.Kind)) }))
		}
		p.collector = core.NewErrorCollector(opts...)
	}
	return p, nil
}

// Pipeline is a configured ingestion run. Execute may be called once.
type Pipeline struct {
	source       core.LineSource
	parser       core.Parser
	headerParser HeaderParserFunc
	transformers []core.Transformer
	sink         core.BatchSink
	collector    *core.ErrorCollector
	metrics      *metrics.Metrics

	workers      int
	queueSize    int
	outputBuffer int
	batchSize    int
}

// Stats summarises a run.
type Stats struct {
	Lines           int64 // non-blank lines handed to workers
	BlankLines      int64
	Emitted         int64 // records handed to the writer
	ParseErrors     int64
	TransformErrors int64
	Writer          BatchWriterStats
	Duration        time.Duration
	Cancelled       bool
}

// Result is the outcome of Execute.
type Result struct {
	RunID   string
	Success bool // true iff the error collector drained empty
	Errors  []core.ErrorEntry
	Stats   Stats
}

// Execute runs the pipeline until the source is exhausted, ctx is cancelled or the source fails.
//
// Shutdown always follows the same order: worker queues are closed and the workers joined, the
// output channel is closed and the writer joined (flushing its partial batch), the sink is
// closed, and finally the error collector is drained exactly once.
//
// The returned error is non-nil for a *core.FatalIOError from the source or a *core.ConfigError
// from the header parser. The Result is always non-nil.
func (p *Pipeline) Execute(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	logger := log.WithField("run_id", runID)
	start := time.Now()
	logger.WithField("workers", p.workers).WithField("batch_size", p.batchSize).Info("pipeline started")

	defer func() {
		if err := p.source.Close(); err != nil {
			logger.WithError(err).Warn("failed to close line source")
		}
	}()

	var (
		cnt       counters
		runErr    error
		cancelled bool
		parser    = p.parser
	)

	if parser == nil {
		parser, runErr = p.readHeader(ctx, &cnt)
		cancelled = parser == nil && ctx.Err() != nil
	}

	out := make(chan core.Record, p.outputBuffer)
	writer, err := NewBatchWriter(p.sink,
		WithWriterBatchSize(p.batchSize),
		WithWriterReporter(p.collector),
		WithWriterMetrics(p.metrics),
		WithWriterLogger(logger),
	)
	if err != nil {
		p.sink.Close()
		return p.finish(logger, runID, start, &cnt, BatchWriterStats{}, false, err)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writer.Run(ctx, out)
	}()

	if runErr == nil && parser != nil {
		pool := startWorkerPool(ctx, p.workers, p.queueSize, workerDeps{
			parser:       parser,
			transformers: p.transformers,
			reporter:     p.collector,
			out:          out,
			counters:     &cnt,
			metrics:      p.metrics,
			logger:       logger,
		})

		cancelled, runErr = p.distribute(ctx, pool, &cnt)
		pool.shutdown()
	}

	close(out)
	<-writerDone

	if err := p.sink.Close(); err != nil {
		p.collector.Report(&core.SinkError{Op: "close", Index: -1, Err: err})
	}

	return p.finish(logger, runID, start, &cnt, writer.Stats(), cancelled, runErr)
}

// readHeader consumes input up to the first non-blank line and builds the parser from it.
// A nil parser with a nil error means the input ended (or ctx was cancelled) before any header.
func (p *Pipeline) readHeader(ctx context.Context, cnt *counters) (core.Parser, error) {
	for {
		line, err := p.source.ReadLine(ctx)
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			fatal := &core.FatalIOError{Op: "read header", Err: err}
			p.collector.Report(fatal)
			return nil, fatal
		}
		if strings.TrimSpace(line) == "" {
			cnt.blank.Add(1)
			continue
		}

		parser, err := p.headerParser(line)
		if err != nil {
			var cfgErr *core.ConfigError
			if !errors.As(err, &cfgErr) {
				err = &core.ConfigError{Path: "input.header", Err: err}
			}
			p.collector.Report(err)
			return nil, err
		}
		return parser, nil
	}
}

// distribute reads the source and assigns lines to workers until EOF, cancellation or a read failure.
func (p *Pipeline) distribute(ctx context.Context, pool *workerPool, cnt *counters) (bool, error) {
	for {
		if ctx.Err() != nil {
			return true, nil
		}

		line, err := p.source.ReadLine(ctx)
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			fatal := &core.FatalIOError{Op: "read", Err: err}
			p.collector.Report(fatal)
			return false, fatal
		}

		if strings.TrimSpace(line) == "" {
			cnt.blank.Add(1)
			continue
		}

		if !pool.dispatch(ctx, line) {
			return true, nil
		}
		p.countLine(cnt)
	}
}

func (p *Pipeline) countLine(cnt *counters) {
	cnt.lines.Add(1)
	if p.metrics != nil {
		p.metrics.RecordLineRead()
	}
}

// finish drains the collector once and builds the Result.
func (p *Pipeline) finish(logger *log.Entry, runID string, start time.Time, cnt *counters, ws BatchWriterStats, cancelled bool, runErr error) (*Result, error) {
	entries := p.collector.Drain()

	result := &Result{
		RunID:   runID,
		Success: len(entries) == 0 && runErr == nil,
		Errors:  entries,
		Stats: Stats{
			Lines:           cnt.lines.Load(),
			BlankLines:      cnt.blank.Load(),
			Emitted:         cnt.emitted.Load(),
			ParseErrors:     cnt.parseErrors.Load(),
			TransformErrors: cnt.transformErrors.Load(),
			Writer:          ws,
			Duration:        time.Since(start),
			Cancelled:       cancelled,
		},
	}

	logger.WithFields(log.Fields{
		"lines":        result.Stats.Lines,
		"emitted":      result.Stats.Emitted,
		"parse_errors": result.Stats.ParseErrors,
		"flushes":      ws.Flushes,
		"accepted":     ws.RecordsAccepted,
		"rejected":     ws.RecordsRejected,
		"dropped":      ws.RecordsDropped,
		"errors":       len(entries),
		"cancelled":    cancelled,
		"duration":     result.Stats.Duration,
	}).Info("pipeline finished")

	return result, runErr
}
