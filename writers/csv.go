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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aaronlmathis/flowetl/core"
)

// CSVSinkError wraps CSV-specific write errors with context.
type CSVSinkError struct {
	Op  string
	Err error
}

func (e *CSVSinkError) Error() string {
	return fmt.Sprintf("csv sink %s: %v", e.Op, e.Err)
}

func (e *CSVSinkError) Unwrap() error {
	return e.Err
}

// CSVSinkStats holds CSV write statistics.
type CSVSinkStats struct {
	Batches         int64
	RecordsWritten  int64
	RecordsRejected int64
	FlushDuration   time.Duration
	NullValueCounts map[string]int64
}

// CSVSinkOptions configures CSV output.
type CSVSinkOptions struct {
	Comma       rune
	UseCRLF     bool
	WriteHeader bool
	Columns     []string // empty: the sorted keys of the first record
}

// SinkOptionCSV is a functional option for CSVSinkOptions.
type SinkOptionCSV func(*CSVSinkOptions)

func WithCSVComma(comma rune) SinkOptionCSV {
	return func(opts *CSVSinkOptions) { opts.Comma = comma }
}

func WithCSVColumns(columns []string) SinkOptionCSV {
	return func(opts *CSVSinkOptions) { opts.Columns = append([]string(nil), columns...) }
}

func WithCSVHeader(write bool) SinkOptionCSV {
	return func(opts *CSVSinkOptions) { opts.WriteHeader = write }
}

func WithCSVCRLF(useCRLF bool) SinkOptionCSV {
	return func(opts *CSVSinkOptions) { opts.UseCRLF = useCRLF }
}

// CSVSink implements core.BatchSink by appending delimited rows to a file.
// Records holding a field outside the column set are rejected.
type CSVSink struct {
	writer      *csv.Writer
	closer      io.Closer
	opts        CSVSinkOptions
	columns     []string
	known       map[string]bool
	wroteHeader bool
	stats       CSVSinkStats
	mu          sync.Mutex
}

// NewCSVSink creates a CSV sink writing to w. Close closes w.
func NewCSVSink(w io.WriteCloser, options ...SinkOptionCSV) (*CSVSink, error) {
	opts := CSVSinkOptions{Comma: ',', WriteHeader: true}
	for _, option := range options {
		option(&opts)
	}
	if opts.Comma == 0 || opts.Comma == '"' || opts.Comma == '\n' || opts.Comma == '\r' {
		return nil, &core.ConfigError{Path: "sink.csv.delimiter", Err: fmt.Errorf("invalid delimiter %q", opts.Comma)}
	}

	cw := csv.NewWriter(w)
	cw.Comma = opts.Comma
	cw.UseCRLF = opts.UseCRLF

	c := &CSVSink{
		writer: cw,
		closer: w,
		opts:   opts,
		stats:  CSVSinkStats{NullValueCounts: make(map[string]int64)},
	}
	if len(opts.Columns) > 0 {
		c.setColumns(opts.Columns)
	}
	return c, nil
}

// CreateCSVSink creates (or truncates) path and writes CSV to it.
func CreateCSVSink(path string, options ...SinkOptionCSV) (*CSVSink, error) {
	if path == "" {
		return nil, &core.ConfigError{Path: "sink.csv.path", Err: fmt.Errorf("required")}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, &CSVSinkError{Op: "create", Err: err}
	}
	sink, err := NewCSVSink(file, options...)
	if err != nil {
		file.Close()
		return nil, err
	}
	return sink, nil
}

func (c *CSVSink) setColumns(columns []string) {
	c.columns = columns
	c.known = make(map[string]bool, len(columns))
	for _, col := range columns {
		c.known[col] = true
	}
}

// Accept implements the core.BatchSink interface. A failing write fails the whole batch.
func (c *CSVSink) Accept(ctx context.Context, batch core.Batch) (*core.BatchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	if c.columns == nil && len(batch) > 0 {
		c.setColumns(batch[0].Keys())
	}
	if !c.wroteHeader && c.opts.WriteHeader && c.columns != nil {
		if err := c.writer.Write(c.columns); err != nil {
			return nil, &CSVSinkError{Op: "write_header", Err: err}
		}
		c.wroteHeader = true
	}

	result := &core.BatchResult{}
	row := make([]string, len(c.columns))
	for i, record := range batch {
		if field, ok := c.unknownField(record); ok {
			result.Rejected = append(result.Rejected, core.RecordFailure{Index: i, Reason: fmt.Sprintf("field %q is not a column", field)})
			continue
		}
		for j, col := range c.columns {
			value := record[col]
			if value == nil {
				c.stats.NullValueCounts[col]++
			}
			row[j] = core.Stringify(value)
		}
		if err := c.writer.Write(row); err != nil {
			return nil, &CSVSinkError{Op: "write_row", Err: err}
		}
		result.Accepted++
	}

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return nil, &CSVSinkError{Op: "flush", Err: err}
	}

	c.stats.Batches++
	c.stats.RecordsWritten += int64(result.Accepted)
	c.stats.RecordsRejected += int64(len(result.Rejected))
	c.stats.FlushDuration += time.Since(start)
	return result, nil
}

func (c *CSVSink) unknownField(record core.Record) (string, bool) {
	for _, key := range record.Keys() {
		if !c.known[key] {
			return key, true
		}
	}
	return "", false
}

// Close implements the core.BatchSink interface.
func (c *CSVSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return &CSVSinkError{Op: "flush", Err: err}
	}
	if c.closer != nil {
		if err := c.closer.Close(); err != nil {
			return &CSVSinkError{Op: "close", Err: err}
		}
		c.closer = nil
	}
	return nil
}

// Stats returns write statistics.
func (c *CSVSink) Stats() CSVSinkStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.NullValueCounts = make(map[string]int64, len(c.stats.NullValueCounts))
	for k, v := range c.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}
