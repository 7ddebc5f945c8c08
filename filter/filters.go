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

// This file holds shorthand constructors for building condition trees in code.
// Configuration-driven trees are built by the validators package.

// Equals matches records where field equals value.
func Equals(field string, value interface{}) Condition {
	return MustCompare(field, OpEq, value)
}

// NotEquals matches records where field does not equal value. Missing fields match.
func NotEquals(field string, value interface{}) Condition {
	return MustCompare(field, OpNe, value)
}

// GreaterThan matches records where the numeric field is greater than threshold
func GreaterThan(field string, threshold float64) Condition {
	return MustCompare(field, OpGt, threshold)
}

// LessThan matches records where the numeric field is less than threshold
func LessThan(field string, threshold float64) Condition {
	return MustCompare(field, OpLt, threshold)
}

// Between matches records where the numeric field is between min and max (inclusive)
func Between(field string, min, max float64) Condition {
	return AllOf(MustCompare(field, OpGe, min), MustCompare(field, OpLe, max))
}

// In matches records where the field value is in the provided set
func In(field string, values ...interface{}) Condition {
	return MustCompare(field, OpIn, values)
}

// Exists matches records that carry field, even with a null value.
func Exists(field string) Condition {
	return MustCompare(field, OpExists, nil)
}

// MatchesRegex matches records where the string form of field matches pattern
func MatchesRegex(field, pattern string) Condition {
	return MustCompare(field, OpMatch, pattern)
}

// AllOf requires all provided conditions to hold
func AllOf(conditions ...Condition) Condition {
	return And{Children: conditions}
}

// AnyOf requires at least one of the provided conditions to hold
func AnyOf(conditions ...Condition) Condition {
	return Or{Children: conditions}
}

// Negate inverts the provided condition
func Negate(condition Condition) Condition {
	return Not{Child: condition}
}
