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

package readers

import (
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aaronlmathis/flowetl/core"
)

// DelimitedParserOptions configures the delimited parser.
type DelimitedParserOptions struct {
	Comma      rune
	Columns    []string
	LazyQuotes bool
	TrimSpace  bool
}

// ParserOptionDelimited allows functional customization of DelimitedParser.
type ParserOptionDelimited func(*DelimitedParserOptions)

func WithDelimiter(r rune) ParserOptionDelimited {
	return func(o *DelimitedParserOptions) { o.Comma = r }
}

func WithColumns(columns []string) ParserOptionDelimited {
	return func(o *DelimitedParserOptions) { o.Columns = append([]string(nil), columns...) }
}

func WithLazyQuotes(lazy bool) ParserOptionDelimited {
	return func(o *DelimitedParserOptions) { o.LazyQuotes = lazy }
}

func WithTrimSpace(trim bool) ParserOptionDelimited {
	return func(o *DelimitedParserOptions) { o.TrimSpace = trim }
}

// DelimitedParser implements core.Parser for delimited (CSV) lines with a fixed column mapping.
// Empty values become nil; other values are inferred as int64, float64, bool or string.
type DelimitedParser struct {
	opts DelimitedParserOptions
}

// NewDelimitedParser creates a DelimitedParser. At least one column is required and column names must be unique.
func NewDelimitedParser(options ...ParserOptionDelimited) (*DelimitedParser, error) {
	opts := DelimitedParserOptions{
		Comma:     ',',
		TrimSpace: true,
	}
	for _, opt := range options {
		opt(&opts)
	}

	if len(opts.Columns) == 0 {
		return nil, &core.ConfigError{Path: "input.columns", Err: fmt.Errorf("delimited input needs at least one column")}
	}
	seen := make(map[string]bool, len(opts.Columns))
	for i, col := range opts.Columns {
		col = strings.TrimSpace(col)
		if col == "" {
			return nil, &core.ConfigError{Path: fmt.Sprintf("input.columns[%d]", i), Err: fmt.Errorf("empty column name")}
		}
		if seen[col] {
			return nil, &core.ConfigError{Path: fmt.Sprintf("input.columns[%d]", i), Err: fmt.Errorf("duplicate column %q", col)}
		}
		seen[col] = true
		opts.Columns[i] = col
	}

	return &DelimitedParser{opts: opts}, nil
}

// Columns returns the column mapping.
func (d *DelimitedParser) Columns() []string {
	return append([]string(nil), d.opts.Columns...)
}

// Parse implements the core.Parser interface.
func (d *DelimitedParser) Parse(line string) (core.Record, error) {
	fields, err := splitDelimited(line, d.opts.Comma, d.opts.LazyQuotes)
	if err != nil {
		return nil, &core.ParseError{Line: line, Err: err}
	}
	if len(fields) != len(d.opts.Columns) {
		return nil, &core.ParseError{
			Line: line,
			Err:  fmt.Errorf("expected %d fields, got %d", len(d.opts.Columns), len(fields)),
		}
	}

	record := make(core.Record, len(fields))
	for i, val := range fields {
		key := d.opts.Columns[i]
		if d.opts.TrimSpace {
			val = strings.TrimSpace(val)
		}
		if val == "" {
			record[key] = nil
		} else {
			record[key] = parseValue(val)
		}
	}
	return record, nil
}

// ParseHeader splits a header line into column names.
func ParseHeader(line string, comma rune) ([]string, error) {
	fields, err := splitDelimited(line, comma, true)
	if err != nil {
		return nil, &core.ParseError{Line: line, Err: fmt.Errorf("header: %w", err)}
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields, nil
}

func splitDelimited(line string, comma rune, lazy bool) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = comma
	r.LazyQuotes = lazy
	r.FieldsPerRecord = -1
	return r.Read()
}

// parseValue attempts to infer int, float, bool, or fallback to string.
func parseValue(value string) interface{} {
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}
