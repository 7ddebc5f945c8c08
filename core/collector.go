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
	"sync"
)

// ErrorCollector accumulates failures reported by workers and the writer.
// It is safe for concurrent use. Report only takes a mutex and appends, so it never blocks on I/O.
type ErrorCollector struct {
	mu       sync.Mutex
	entries  []ErrorEntry
	counts   map[ErrorKind]int64
	onReport func(ErrorEntry)
}

// CollectorOption configures an ErrorCollector.
type CollectorOption func(*ErrorCollector)

// WithReportHook registers a function invoked for every reported entry, outside the lock.
// The hook must be cheap and safe for concurrent use (e.g. a metrics counter).
func WithReportHook(fn func(ErrorEntry)) CollectorOption {
	return func(c *ErrorCollector) {
		c.onReport = fn
	}
}

// NewErrorCollector creates an empty collector.
func NewErrorCollector(opts ...CollectorOption) *ErrorCollector {
	c := &ErrorCollector{counts: make(map[ErrorKind]int64)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Report records err. Nil errors are ignored.
func (c *ErrorCollector) Report(err error) {
	if err == nil {
		return
	}
	entry, ok := err.(ErrorEntry)
	if !ok {
		entry = NewErrorEntry(err)
	}

	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.counts[entry.Kind]++
	c.mu.Unlock()

	if c.onReport != nil {
		c.onReport(entry)
	}
}

// Len returns the number of entries currently held.
func (c *ErrorCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Counts returns the number of reports per kind since creation. Draining does not reset it.
func (c *ErrorCollector) Counts() map[ErrorKind]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[ErrorKind]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Drain returns all held entries and clears the collector.
func (c *ErrorCollector) Drain() []ErrorEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.entries
	c.entries = nil
	return out
}
