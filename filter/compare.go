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
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aaronlmathis/flowetl/core"
)

// Operator names a field comparison.
type Operator string

const (
	OpEq     Operator = "eq"
	OpNe     Operator = "ne"
	OpLt     Operator = "lt"
	OpLe     Operator = "le"
	OpGt     Operator = "gt"
	OpGe     Operator = "ge"
	OpIn     Operator = "in"
	OpNotIn  Operator = "nin"
	OpExists Operator = "exists"
	OpMatch  Operator = "match"
)

var (
	ErrUnknownOperator = errors.New("unknown operator")
	ErrMissingField    = errors.New("field is required")
	ErrNonScalar       = errors.New("literal must be a string, number, boolean or null")
)

var operatorAliases = map[string]Operator{
	"eq": OpEq, "=": OpEq, "==": OpEq,
	"ne": OpNe, "!=": OpNe, "<>": OpNe,
	"lt": OpLt, "<": OpLt,
	"le": OpLe, "<=": OpLe,
	"gt": OpGt, ">": OpGt,
	"ge": OpGe, ">=": OpGe,
	"in": OpIn,
	"nin": OpNotIn, "not_in": OpNotIn,
	"exists": OpExists,
	"match": OpMatch, "regex": OpMatch, "~": OpMatch,
}

// ParseOperator resolves an operator name or its symbolic alias ("==", ">=", "~", ...).
func ParseOperator(name string) (Operator, error) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownOperator, name)
	}
	return op, nil
}

// Compare tests one field against a literal.
type Compare struct {
	Field  string
	Op     Operator
	Value  interface{}   // literal for the scalar operators and the pattern for match
	Values []interface{} // literal list for in and nin

	re *regexp.Regexp
}

// NewCompare validates a comparison and prepares it for evaluation.
//
// exists takes no literal, in and nin take a list of scalars, match takes a regular expression
// which is compiled here, and the ordering operators take a literal that coerces to a number.
// Integer literals of any width are normalised to int64.
func NewCompare(field string, op Operator, literal interface{}) (*Compare, error) {
	if strings.TrimSpace(field) == "" {
		return nil, ErrMissingField
	}
	c := &Compare{Field: field, Op: op}

	switch op {
	case OpExists:
		if literal != nil {
			return nil, fmt.Errorf("operator %s takes no value", op)
		}

	case OpIn, OpNotIn:
		list, ok := toList(literal)
		if !ok {
			return nil, fmt.Errorf("operator %s needs a list of values, got %T", op, literal)
		}
		c.Values = make([]interface{}, len(list))
		for i, item := range list {
			scalar, ok := NormalizeScalar(item)
			if !ok {
				return nil, fmt.Errorf("values[%d]: %w, got %T", i, ErrNonScalar, item)
			}
			c.Values[i] = scalar
		}

	case OpMatch:
		pattern, ok := literal.(string)
		if !ok {
			return nil, fmt.Errorf("operator %s needs a string pattern, got %T", op, literal)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		c.Value = pattern
		c.re = re

	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		scalar, ok := NormalizeScalar(literal)
		if !ok {
			return nil, fmt.Errorf("%w, got %T", ErrNonScalar, literal)
		}
		if op.ordering() {
			if _, ok := toNumber(scalar); !ok {
				return nil, fmt.Errorf("operator %s needs a numeric value, got %q", op, core.Stringify(scalar))
			}
		}
		c.Value = scalar

	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownOperator, op)
	}

	return c, nil
}

// MustCompare is like NewCompare but panics on an invalid comparison.
func MustCompare(field string, op Operator, literal interface{}) *Compare {
	c, err := NewCompare(field, op, literal)
	if err != nil {
		panic(fmt.Sprintf("filter: %s %s: %v", field, op, err))
	}
	return c
}

func (op Operator) ordering() bool {
	return op == OpLt || op == OpLe || op == OpGt || op == OpGe
}

func (c *Compare) eval(record core.Record) bool {
	value, exists := record[c.Field]

	switch c.Op {
	case OpExists:
		return exists
	case OpEq:
		return equal(value, c.Value)
	case OpNe:
		return !equal(value, c.Value)
	case OpLt, OpLe, OpGt, OpGe:
		cmp, ok := compareNumbers(value, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpLt:
			return cmp < 0
		case OpLe:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	case OpIn:
		return c.member(value)
	case OpNotIn:
		return !c.member(value)
	case OpMatch:
		if value == nil || c.re == nil {
			return false
		}
		return c.re.MatchString(core.Stringify(value))
	default:
		return false
	}
}

func (c *Compare) member(value interface{}) bool {
	for _, candidate := range c.Values {
		if equal(value, candidate) {
			return true
		}
	}
	return false
}

func (c *Compare) String() string {
	switch c.Op {
	case OpExists:
		return fmt.Sprintf("%s exists", c.Field)
	case OpIn, OpNotIn:
		return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Values)
	default:
		return fmt.Sprintf("%s %s %#v", c.Field, c.Op, c.Value)
	}
}
