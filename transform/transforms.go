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

package transform

import (
	"context"
	"time"

	"github.com/aaronlmathis/flowetl/core"
)

// Package transform provides the rule engine and standalone transformers for flowetl pipelines.
//
// Rules (condition + action) are applied by Engine. The functions in this file return
// core.Transformer implementations that run after the engine.

// AddField creates a transformer that adds a new field with a computed value to each record.
// The value is computed by the provided function, which receives the current record.
func AddField(field string, fn func(core.Record) interface{}) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		out := record.Clone()
		out[field] = fn(record)
		return out, nil
	})
}

// AddTimestamp creates a transformer that stamps each record with the ingestion time in RFC 3339 (UTC).
// A nil clock uses time.Now.
func AddTimestamp(field string, clock func() time.Time) core.Transformer {
	if clock == nil {
		clock = time.Now
	}
	return AddField(field, func(core.Record) interface{} {
		return clock().UTC().Format(time.RFC3339)
	})
}
