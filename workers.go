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
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aaronlmathis/flowetl/core"
	"github.com/aaronlmathis/flowetl/metrics"
)

// counters are the per-run line accounting shared by the coordinator and the workers.
type counters struct {
	lines           atomic.Int64
	blank           atomic.Int64
	emitted         atomic.Int64
	parseErrors     atomic.Int64
	transformErrors atomic.Int64
}

// workerPool runs N workers, each fed by its own bounded queue.
// Lines are assigned round-robin; closing the queues is the end-of-stream signal.
type workerPool struct {
	queues []chan string
	next   int
	group  errgroup.Group
}

// workerDeps is what every worker needs to turn a line into an emitted record.
type workerDeps struct {
	parser       core.Parser
	transformers []core.Transformer
	reporter     core.Reporter
	out          chan<- core.Record
	counters     *counters
	metrics      *metrics.Metrics
	logger       *log.Entry
}

// startWorkerPool starts n workers. Transformers run under ctx detached from cancellation,
// so lines that were queued before a cancellation are still processed.
func startWorkerPool(ctx context.Context, n, queueSize int, deps workerDeps) *workerPool {
	pool := &workerPool{queues: make([]chan string, n)}
	workCtx := context.WithoutCancel(ctx)

	for i := 0; i < n; i++ {
		queue := make(chan string, queueSize)
		pool.queues[i] = queue
		id := i
		pool.group.Go(func() error {
			runWorker(workCtx, id, queue, deps)
			return nil
		})
	}
	return pool
}

// dispatch hands line to the next worker in turn, blocking while that worker's queue is full.
// It returns false if ctx is cancelled first; the line is then not accounted for.
func (p *workerPool) dispatch(ctx context.Context, line string) bool {
	queue := p.queues[p.next]
	select {
	case queue <- line:
		p.next = (p.next + 1) % len(p.queues)
		return true
	case <-ctx.Done():
		return false
	}
}

// shutdown closes every queue and waits for the workers to drain them.
func (p *workerPool) shutdown() {
	for _, queue := range p.queues {
		close(queue)
	}
	_ = p.group.Wait()
}

func runWorker(ctx context.Context, id int, queue <-chan string, deps workerDeps) {
	logger := deps.logger.WithField("worker", id)
	logger.Debug("worker started")

	processed := 0
	for line := range queue {
		processed++
		record, err := deps.parser.Parse(line)
		if err != nil {
			deps.counters.parseErrors.Add(1)
			deps.reporter.Report(err)
			continue
		}

		record, err = applyTransformations(ctx, deps.transformers, record)
		if err != nil {
			deps.counters.transformErrors.Add(1)
			deps.reporter.Report(err)
			continue
		}

		deps.out <- record
		deps.counters.emitted.Add(1)
		if deps.metrics != nil {
			deps.metrics.RecordEmitted()
		}
	}

	logger.WithField("lines", processed).Debug("worker stopped")
}

// applyTransformations applies all configured transformers to a record in sequence.
func applyTransformations(ctx context.Context, transformers []core.Transformer, record core.Record) (core.Record, error) {
	current := record
	for _, transformer := range transformers {
		transformed, err := transformer.Transform(ctx, current)
		if err != nil {
			return nil, err
		}
		current = transformed
	}
	return current, nil
}
