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
	"github.com/aaronlmathis/flowetl/core"
)

// Package flowetl defines the core interfaces and types for the flowetl library.
//
// This file re-exports the types from package core that a pipeline is assembled from, so callers
// building a pipeline only need to import this package and their chosen readers and writers.

// Record represents a single flow record in the pipeline.
type Record = core.Record

// Batch is an ordered group of records flushed to a sink in one call.
type Batch = core.Batch

// LineSource streams raw input lines and returns io.EOF when exhausted.
type LineSource = core.LineSource

// Parser converts one raw input line into a Record.
type Parser = core.Parser

// Transformer modifies or enriches records as they pass through the pipeline.
type Transformer = core.Transformer

// BatchSink persists batches of records.
type BatchSink = core.BatchSink

// BatchResult is the outcome of a batch accepted at the transport level.
type BatchResult = core.BatchResult

// TransformFunc is a function adapter for the Transformer interface.
type TransformFunc = core.TransformFunc

// ParserFunc is a function adapter for the Parser interface.
type ParserFunc = core.ParserFunc

// HeaderParserFunc builds the parser for the remaining input from its first non-blank line.
type HeaderParserFunc func(header string) (core.Parser, error)
