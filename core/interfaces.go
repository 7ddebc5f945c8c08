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

package core

import (
	"context"
)

// Package core defines the core interfaces for the flowetl library.
//
// This file contains the primary interfaces for line sources, parsers, transformers, sinks and error reporting.

// LineSource defines the interface for raw input.
// Implementations stream text lines from a source (e.g., a file, stdin, S3 objects).
type LineSource interface {
	// ReadLine returns the next line without its terminator, or io.EOF when the source is exhausted.
	ReadLine(ctx context.Context) (string, error)
	// Close releases any resources held by the source.
	Close() error
}

// Parser converts one raw input line into a Record.
// Implementations must be pure: a failure on one line never affects another.
type Parser interface {
	// Parse returns the record for line or a *ParseError.
	Parse(line string) (Record, error)
}

// Transformer defines the interface for record transformation.
// Transformers modify or enrich records as they pass through the pipeline.
type Transformer interface {
	// Transform applies the transformation to a record and returns the result.
	Transform(ctx context.Context, record Record) (Record, error)
}

// BatchSink is the capability every sink implementation provides to the batching writer.
type BatchSink interface {
	// Accept persists one batch. A non-nil error means the whole batch failed.
	// Otherwise the result lists the records the sink rejected, if any.
	Accept(ctx context.Context, batch Batch) (*BatchResult, error)
	// Close releases any resources held by the sink.
	Close() error
}

// Reporter receives non-fatal failures from any pipeline stage.
type Reporter interface {
	Report(err error)
}
