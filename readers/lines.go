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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// LineReaderError wraps structured error information for the line reader.
type LineReaderError struct {
	Op  string
	Err error
}

func (e *LineReaderError) Error() string {
	return fmt.Sprintf("line reader %s: %v", e.Op, e.Err)
}

func (e *LineReaderError) Unwrap() error {
	return e.Err
}

// LineReaderStats holds statistics about the line reader.
type LineReaderStats struct {
	LinesRead int64
	BytesRead int64
}

// LineReaderOptions configures the line reader.
type LineReaderOptions struct {
	BufferSize  int // initial scanner buffer
	MaxLineSize int // longest accepted line
}

// ReaderOptionLines allows functional customization of LineReader.
type ReaderOptionLines func(*LineReaderOptions)

func WithMaxLineSize(size int) ReaderOptionLines {
	return func(o *LineReaderOptions) { o.MaxLineSize = size }
}

func WithLineBufferSize(size int) ReaderOptionLines {
	return func(o *LineReaderOptions) { o.BufferSize = size }
}

// LineReader implements core.LineSource over any io.Reader.
type LineReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	lines   atomic.Int64
	bytes   atomic.Int64
}

// NewLineReader creates a LineReader. The closer may be nil (e.g. for stdin).
func NewLineReader(r io.Reader, closer io.Closer, options ...ReaderOptionLines) *LineReader {
	opts := LineReaderOptions{
		BufferSize:  64 * 1024,
		MaxLineSize: 16 * 1024 * 1024,
	}
	for _, opt := range options {
		opt(&opts)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, opts.BufferSize), opts.MaxLineSize)
	return &LineReader{scanner: scanner, closer: closer}
}

// OpenLineReader opens path for reading; "-" or "" means standard input.
func OpenLineReader(path string, options ...ReaderOptionLines) (*LineReader, error) {
	if path == "" || path == "-" {
		return NewLineReader(os.Stdin, nil, options...), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, &LineReaderError{Op: "open", Err: err}
	}
	return NewLineReader(file, file, options...), nil
}

// ReadLine implements the core.LineSource interface.
func (l *LineReader) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", &LineReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			return "", &LineReaderError{Op: "scan", Err: err}
		}
		return "", io.EOF
	}

	line := l.scanner.Text()
	l.lines.Add(1)
	l.bytes.Add(int64(len(line)) + 1)
	return strings.TrimSuffix(line, "\r"), nil
}

// Close implements the core.LineSource interface.
func (l *LineReader) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Stats returns line reader statistics.
func (l *LineReader) Stats() LineReaderStats {
	return LineReaderStats{LinesRead: l.lines.Load(), BytesRead: l.bytes.Load()}
}
