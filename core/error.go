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
	"errors"
	"fmt"
)

// Package core defines the error taxonomy for the flowetl library.
//
// Every stage reports non-fatal failures to an ErrorCollector. Only ConfigError (before any
// record is processed) and FatalIOError abort a run.

// ErrorKind classifies an error entry.
type ErrorKind string

const (
	KindParse     ErrorKind = "parse"
	KindConfig    ErrorKind = "config"
	KindTransform ErrorKind = "transform"
	KindSink      ErrorKind = "sink"
	KindFatalIO   ErrorKind = "fatal_io"
	KindOther     ErrorKind = "other"
)

// ParseError reports a malformed input line.
type ParseError struct {
	Line string // the offending input line
	Err  error  // underlying cause
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", truncate(e.Line, 120), e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid rule, condition or configuration value.
type ConfigError struct {
	Path string // location of the offending definition, e.g. "rules[2].if.and[0]"
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// TransformWarning reports a cast or template that could not be applied.
// The record continues with the field unchanged.
type TransformWarning struct {
	Op    string // "cast" or "set"
	Field string
	Err   error
}

func (e *TransformWarning) Error() string {
	return fmt.Sprintf("transform %s %s: %v", e.Op, e.Field, e.Err)
}

func (e *TransformWarning) Unwrap() error {
	return e.Err
}

// SinkError reports a batch or a single record rejected by the sink.
// Index is -1 when the whole batch failed.
type SinkError struct {
	Op        string
	BatchSize int
	Index     int
	Status    int
	Err       error
}

func (e *SinkError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("sink %s: batch of %d records: %v", e.Op, e.BatchSize, e.Err)
	}
	if e.Status > 0 {
		return fmt.Sprintf("sink %s: record %d rejected [%d]: %v", e.Op, e.Index, e.Status, e.Err)
	}
	return fmt.Sprintf("sink %s: record %d rejected: %v", e.Op, e.Index, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// FatalIOError reports an unusable input source or sink transport.
type FatalIOError struct {
	Op  string
	Err error
}

func (e *FatalIOError) Error() string {
	return fmt.Sprintf("fatal io %s: %v", e.Op, e.Err)
}

func (e *FatalIOError) Unwrap() error {
	return e.Err
}

// ErrorEntry is one failure held by the ErrorCollector.
type ErrorEntry struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// NewErrorEntry classifies err into an entry.
func NewErrorEntry(err error) ErrorEntry {
	return ErrorEntry{Kind: KindOf(err), Message: err.Error(), Cause: err}
}

func (e ErrorEntry) Error() string {
	return e.Message
}

func (e ErrorEntry) Unwrap() error {
	return e.Cause
}

// KindOf returns the taxonomy kind of err, looking through wrapping.
func KindOf(err error) ErrorKind {
	var (
		parseErr  *ParseError
		configErr *ConfigError
		warnErr   *TransformWarning
		sinkErr   *SinkError
		fatalErr  *FatalIOError
	)
	switch {
	case errors.As(err, &fatalErr):
		return KindFatalIO
	case errors.As(err, &configErr):
		return KindConfig
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &warnErr):
		return KindTransform
	case errors.As(err, &sinkErr):
		return KindSink
	default:
		return KindOther
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
