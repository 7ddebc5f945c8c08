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
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/aaronlmathis/flowetl/core"
)

// number is a coerced numeric operand. Integers compare exactly.
type number struct {
	i     int64
	f     float64
	isInt bool
}

// toNumber coerces int64, float64 and numeric strings. Booleans and nil are not numbers.
func toNumber(value interface{}) (number, bool) {
	switch v := value.(type) {
	case int64:
		return number{i: v, f: float64(v), isInt: true}, true
	case float64:
		if math.IsNaN(v) {
			return number{}, false
		}
		return number{f: v}, true
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return number{i: i, f: float64(i), isInt: true}, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) {
			return number{f: f}, true
		}
	}
	return number{}, false
}

func isNumeric(value interface{}) bool {
	switch value.(type) {
	case int64, float64:
		return true
	default:
		return false
	}
}

// compareNumbers returns -1, 0 or 1 when both operands coerce to numbers.
func compareNumbers(a, b interface{}) (int, bool) {
	x, ok := toNumber(a)
	if !ok {
		return 0, false
	}
	y, ok := toNumber(b)
	if !ok {
		return 0, false
	}

	if x.isInt && y.isInt {
		switch {
		case x.i < y.i:
			return -1, true
		case x.i > y.i:
			return 1, true
		default:
			return 0, true
		}
	}
	switch {
	case x.f < y.f:
		return -1, true
	case x.f > y.f:
		return 1, true
	default:
		return 0, true
	}
}

// equal implements the eq operator.
//
// nil only equals nil. When one side is numeric and the other coerces to a number the values
// are compared numerically; two booleans compare by value; anything else compares by string form.
func equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumeric(a) || isNumeric(b) {
		if cmp, ok := compareNumbers(a, b); ok {
			return cmp == 0
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			return x == y
		}
	}
	return core.Stringify(a) == core.Stringify(b)
}

// NormalizeScalar converts literals decoded from YAML, JSON or Go code to the record value types.
// Integers of every width become int64 and float32 becomes float64.
func NormalizeScalar(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case nil, string, int64, float64, bool:
		return v, true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		f, err := v.Float64()
		return f, err == nil
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return float64(v), true
		}
		return int64(v), true
	case float32:
		return float64(v), true
	default:
		return nil, false
	}
}

// toList accepts the list shapes produced by YAML, JSON and Go callers.
func toList(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case []interface{}:
		return v, true
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out, true
	case []int64:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}
