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

package writers

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aaronlmathis/flowetl/core"
)

// PrintSinkStats holds statistics about printed batches.
type PrintSinkStats struct {
	Batches      int64
	Records      int64
	BytesWritten int64
}

// PrintSink is the dry-run sink: it writes every batch, encoded with its codec, to an io.Writer.
type PrintSink struct {
	writer io.Writer
	codec  BulkCodec
	stats  PrintSinkStats
	mu     sync.Mutex
}

// PrintOption configures a PrintSink.
type PrintOption func(*PrintSink)

// WithPrintCodec prints batches in the wire format of codec instead of plain NDJSON.
func WithPrintCodec(codec BulkCodec) PrintOption {
	return func(p *PrintSink) { p.codec = codec }
}

// NewPrintSink creates a print sink writing to w.
func NewPrintSink(w io.Writer, options ...PrintOption) *PrintSink {
	p := &PrintSink{writer: w, codec: NDJSONCodec{}}
	for _, option := range options {
		option(p)
	}
	return p
}

// Accept writes the encoded batch. A write error fails the whole batch; a record JSON cannot
// encode is rejected on its own.
func (p *PrintSink) Accept(ctx context.Context, batch core.Batch) (*core.BatchResult, error) {
	send, _, unencodable := splitEncodable(batch)
	if len(send) == 0 {
		return &core.BatchResult{Rejected: unencodable}, nil
	}

	data, err := p.codec.Encode(send)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.writer.Write(data)
	p.stats.BytesWritten += int64(n)
	if err != nil {
		return nil, fmt.Errorf("failed to write batch: %w", err)
	}
	if flusher, ok := p.writer.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			return nil, fmt.Errorf("failed to flush output: %w", err)
		}
	}

	p.stats.Batches++
	p.stats.Records += int64(len(send))
	return &core.BatchResult{Accepted: len(send), Rejected: unencodable}, nil
}

// Close does not close the underlying writer; stdout outlives the sink.
func (p *PrintSink) Close() error {
	return nil
}

// Stats returns a copy of the print statistics.
func (p *PrintSink) Stats() PrintSinkStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
