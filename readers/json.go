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
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/aaronlmathis/flowetl/core"
)

var errInvalidJSON = fmt.Errorf("invalid JSON")

// JSONParser implements core.Parser for one JSON object per line.
//
// Integers decode to int64, other numbers to float64. Nested objects are flattened into dotted
// field names and arrays are kept as their compact JSON text, so every record value is a scalar.
type JSONParser struct{}

// NewJSONParser creates a new JSON line parser.
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// Parse implements the core.Parser interface.
func (j *JSONParser) Parse(line string) (core.Record, error) {
	if !gjson.Valid(line) {
		return nil, &core.ParseError{Line: line, Err: errInvalidJSON}
	}

	doc := gjson.Parse(line)
	if !doc.IsObject() {
		return nil, &core.ParseError{Line: line, Err: fmt.Errorf("top-level value is %s, not an object", describeJSON(doc))}
	}

	record := make(core.Record)
	if err := flattenJSON(record, "", doc); err != nil {
		return nil, &core.ParseError{Line: line, Err: err}
	}
	return record, nil
}

// flattenJSON copies the members of obj into record, prefixing names with prefix.
// Two members that flatten to the same name are an error, so "a.b" and {"a":{"b":..}} never
// silently replace each other. Empty objects are kept as "{}".
func flattenJSON(record core.Record, prefix string, obj gjson.Result) error {
	var err error
	obj.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if prefix != "" {
			name = prefix + "." + name
		}

		if value.IsObject() && hasMembers(value) {
			err = flattenJSON(record, name, value)
			return err == nil
		}
		if _, exists := record[name]; exists {
			err = fmt.Errorf("duplicate field %q", name)
			return false
		}

		switch value.Type {
		case gjson.Null:
			record[name] = nil
		case gjson.False:
			record[name] = false
		case gjson.True:
			record[name] = true
		case gjson.Number:
			var n interface{}
			if n, err = jsonNumber(value); err != nil {
				err = fmt.Errorf("field %q: %w", name, err)
				return false
			}
			record[name] = n
		case gjson.String:
			record[name] = value.Str
		case gjson.JSON:
			record[name] = compactJSON(value.Raw)
		}
		return true
	})
	return err
}

func hasMembers(obj gjson.Result) bool {
	found := false
	obj.ForEach(func(_, _ gjson.Result) bool {
		found = true
		return false
	})
	return found
}

// jsonNumber returns an int64 when the literal is an integer in range, otherwise a float64.
// Literals outside the float64 range are rejected; JSON output could not represent them.
func jsonNumber(value gjson.Result) (interface{}, error) {
	if i, err := strconv.ParseInt(value.Raw, 10, 64); err == nil {
		return i, nil
	}
	if math.IsInf(value.Num, 0) || math.IsNaN(value.Num) {
		return nil, fmt.Errorf("number %s is out of range", value.Raw)
	}
	return value.Num, nil
}

func compactJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}

func describeJSON(value gjson.Result) string {
	switch {
	case value.IsArray():
		return "an array"
	case value.Type == gjson.String:
		return "a string"
	case value.Type == gjson.Number:
		return "a number"
	case value.Type == gjson.Null:
		return "null"
	default:
		return "a boolean"
	}
}
