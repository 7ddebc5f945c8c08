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
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aaronlmathis/flowetl/core"
)

// CastType is the target type of a CastField action.
type CastType string

const (
	CastInt    CastType = "int"
	CastFloat  CastType = "float"
	CastString CastType = "string"
	CastBool   CastType = "bool"
)

var castAliases = map[string]CastType{
	"int": CastInt, "integer": CastInt, "int64": CastInt, "long": CastInt,
	"float": CastFloat, "float64": CastFloat, "double": CastFloat, "number": CastFloat,
	"string": CastString, "str": CastString, "keyword": CastString,
	"bool": CastBool, "boolean": CastBool,
}

// ParseCastType resolves a cast target name.
func ParseCastType(name string) (CastType, error) {
	t, ok := castAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unsupported cast type %q", name)
	}
	return t, nil
}

// convertValue converts a record value to the target type. Nil stays nil.
func convertValue(value interface{}, target CastType) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch target {
	case CastString:
		return core.Stringify(value), nil
	case CastInt:
		return convertToInt(value)
	case CastFloat:
		return convertToFloat(value)
	case CastBool:
		return convertToBool(value)
	default:
		return nil, fmt.Errorf("unsupported target type: %s", target)
	}
}

// convertToInt attempts to convert a value to int64. Fractions are truncated toward zero.
func convertToInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case float64:
		return floatToInt(v)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to int", v)
		}
		return floatToInt(f)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v is out of int range", f)
	}
	return int64(math.Trunc(f)), nil
}

// convertToFloat attempts to convert a value to float64.
func convertToFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("cannot convert %q to float", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", value)
	}
}

// convertToBool attempts to convert a value to bool.
func convertToBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("cannot convert %q to bool", v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", value)
	}
}
