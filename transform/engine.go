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
	"fmt"
	"sync/atomic"

	"github.com/aaronlmathis/flowetl/core"
	"github.com/aaronlmathis/flowetl/filter"
)

// Rule is an action guarded by an optional condition. A nil Condition always applies.
type Rule struct {
	Name      string
	Condition filter.Condition
	Action    Action
}

func (r Rule) String() string {
	action := "noop"
	if r.Action != nil {
		action = r.Action.String()
	}
	if r.Condition == nil {
		return action
	}
	return fmt.Sprintf("if %s then %s", r.Condition, action)
}

// EngineStats holds counters for the transformation engine.
type EngineStats struct {
	RecordsTransformed int64
	RulesApplied       int64
	Warnings           int64
}

// Engine applies an ordered rule list to records. It is safe for concurrent use.
type Engine struct {
	rules    []Rule
	reporter core.Reporter

	records  atomic.Int64
	applied  atomic.Int64
	warnings atomic.Int64
}

// NewEngine creates an engine. Warnings go to reporter; a nil reporter discards them.
func NewEngine(rules []Rule, reporter core.Reporter) *Engine {
	return &Engine{
		rules:    append([]Rule(nil), rules...),
		reporter: reporter,
	}
}

// Rules returns the engine's rules in application order.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Apply runs every rule in order against a copy of record and returns the copy.
// Later rules see the effects of earlier ones; the input record is not modified.
func (e *Engine) Apply(record core.Record) core.Record {
	out := record.Clone()
	for _, rule := range e.rules {
		if rule.Action == nil || !filter.Evaluate(rule.Condition, out) {
			continue
		}
		e.applied.Add(1)
		if err := rule.Action.apply(out); err != nil {
			e.warnings.Add(1)
			if e.reporter != nil {
				e.reporter.Report(err)
			}
		}
	}
	e.records.Add(1)
	return out
}

// Transform implements the core.Transformer interface.
func (e *Engine) Transform(ctx context.Context, record core.Record) (core.Record, error) {
	return e.Apply(record), nil
}

// Stats returns engine counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		RecordsTransformed: e.records.Load(),
		RulesApplied:       e.applied.Load(),
		Warnings:           e.warnings.Load(),
	}
}
