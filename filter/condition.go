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

package filter

import (
	"strings"

	"github.com/aaronlmathis/flowetl/core"
)

// Package filter provides the condition trees that guard transformation rules.
//
// A Condition is a closed set of variants: And, Or, Not and *Compare. Trees are validated when
// they are built (see NewCompare), so evaluation is total: it never fails and never panics.

// Condition is a boolean predicate over a record.
// The set of implementations is closed; only the types in this package satisfy it.
type Condition interface {
	eval(record core.Record) bool
	String() string
}

// And is true when every child is true. An empty And is true.
type And struct {
	Children []Condition
}

// Or is true when at least one child is true. An empty Or is false.
type Or struct {
	Children []Condition
}

// Not negates its child.
type Not struct {
	Child Condition
}

// Evaluate reports whether record satisfies c. A nil condition is always satisfied.
func Evaluate(c Condition, record core.Record) bool {
	if c == nil {
		return true
	}
	return c.eval(record)
}

func (a And) eval(record core.Record) bool {
	for _, child := range a.Children {
		if !Evaluate(child, record) {
			return false
		}
	}
	return true
}

func (o Or) eval(record core.Record) bool {
	for _, child := range o.Children {
		if Evaluate(child, record) {
			return true
		}
	}
	return false
}

func (n Not) eval(record core.Record) bool {
	return !Evaluate(n.Child, record)
}

func (a And) String() string {
	return "and(" + joinConditions(a.Children) + ")"
}

func (o Or) String() string {
	return "or(" + joinConditions(o.Children) + ")"
}

func (n Not) String() string {
	if n.Child == nil {
		return "not(true)"
	}
	return "not(" + n.Child.String() + ")"
}

func joinConditions(children []Condition) string {
	parts := make([]string, len(children))
	for i, child := range children {
		if child == nil {
			parts[i] = "true"
			continue
		}
		parts[i] = child.String()
	}
	return strings.Join(parts, ", ")
}
