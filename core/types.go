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
	"sort"
	"strconv"
	"strings"
)

// Package core defines the core types for the flowetl library.
//
// flowetl ingests line-oriented flow-accounting records, applies conditional transformation rules
// and ships the results in bounded batches to a bulk sink.
//
// This file contains the record and batch types and the function adapters.

// Record represents a single flow record in the pipeline.
// Each record maps a (possibly dotted) field name to a scalar value: string, int64, float64, bool or nil.
// Dotted names stay flat here and only become nested objects when the record is emitted, see Nest.
type Record map[string]interface{}

// Clone returns a shallow copy of the record. Values are scalars, so the copy is independent.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Nest builds the document emitted to sinks, expanding dotted field names into nested objects.
//
// Keys are processed in sorted order. If a dotted path runs into a scalar that already owns one
// of its prefixes (e.g. "a" and "a.b"), the path is kept flat under its full dotted name.
func (r Record) Nest() map[string]interface{} {
	doc := make(map[string]interface{}, len(r))
	for _, key := range r.Keys() {
		value := r[key]
		// a plain key sorts before every dotted key it prefixes, so it is never already taken
		if !strings.Contains(key, ".") {
			doc[key] = value
			continue
		}
		if !nestInto(doc, strings.Split(key, "."), value) {
			doc[key] = value
		}
	}
	return doc
}

func nestInto(doc map[string]interface{}, parts []string, value interface{}) bool {
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	node := doc
	for _, p := range parts[:len(parts)-1] {
		next, exists := node[p]
		if !exists {
			child := make(map[string]interface{})
			node[p] = child
			node = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return false
		}
		node = child
	}
	leaf := parts[len(parts)-1]
	if _, exists := node[leaf]; exists {
		return false
	}
	node[leaf] = value
	return true
}

// Stringify returns the canonical string representation of a scalar value.
// Nil becomes the empty string.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// IsScalar reports whether value is one of the types a Record may hold.
func IsScalar(value interface{}) bool {
	switch value.(type) {
	case nil, string, int64, float64, bool:
		return true
	default:
		return false
	}
}

// Batch is an ordered group of records flushed to a sink in one call.
type Batch []Record

// RecordFailure describes a single record rejected by a sink.
type RecordFailure struct {
	Index  int    // position of the record within the batch
	Status int    // sink specific status code, 0 when not applicable
	Reason string // sink supplied rejection reason
}

// BatchResult is the outcome of a batch the sink accepted at the transport level.
// An empty Rejected slice means every record was stored.
type BatchResult struct {
	Accepted int
	Rejected []RecordFailure
}

// Partial reports whether the sink rejected some of the records.
func (r *BatchResult) Partial() bool {
	return r != nil && len(r.Rejected) > 0
}

// TransformFunc is a function adapter for the Transformer interface.
// Allows ordinary functions to be used as Transformers.
type TransformFunc func(ctx context.Context, record Record) (Record, error)

// Transform implements the Transformer interface for TransformFunc.
func (f TransformFunc) Transform(ctx context.Context, record Record) (Record, error) {
	return f(ctx, record)
}

// ParserFunc is a function adapter for the Parser interface.
type ParserFunc func(line string) (Record, error)

// Parse implements the Parser interface for ParserFunc.
func (f ParserFunc) Parse(line string) (Record, error) {
	return f(line)
}
