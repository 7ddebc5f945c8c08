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

	"github.com/aaronlmathis/flowetl/core"
)

// Action mutates a record in place. The set of actions is closed.
// A returned error is a *core.TransformWarning; the field it names is left unchanged.
type Action interface {
	apply(record core.Record) error
	String() string
}

// SetField assigns a literal value, or the rendering of a ${field} template, to Field.
type SetField struct {
	Field string
	Value interface{}

	tmpl *template
}

// NewSetField builds a SetField, parsing Value as a template when it is a string with placeholders.
// NaN and infinite literals are refused because no sink can encode them.
func NewSetField(field string, value interface{}) (SetField, error) {
	if f, ok := value.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return SetField{}, fmt.Errorf("value %v is not a finite number", f)
	}
	s := SetField{Field: field, Value: value}
	if str, ok := value.(string); ok {
		tmpl, err := parseTemplate(str)
		if err != nil {
			return SetField{}, err
		}
		s.tmpl = tmpl
	}
	return s, nil
}

func (s SetField) apply(record core.Record) error {
	tmpl := s.tmpl
	if tmpl == nil {
		if str, ok := s.Value.(string); ok {
			tmpl, _ = parseTemplate(str)
		}
	}
	if tmpl == nil {
		record[s.Field] = s.Value
		return nil
	}

	value, err := tmpl.resolve(record)
	if err != nil {
		return &core.TransformWarning{Op: "set", Field: s.Field, Err: err}
	}
	record[s.Field] = value
	return nil
}

func (s SetField) String() string {
	return fmt.Sprintf("set %s = %#v", s.Field, s.Value)
}

// RenameField moves the value of From to To, replacing any existing To. Missing From is a no-op.
type RenameField struct {
	From string
	To   string
}

func (r RenameField) apply(record core.Record) error {
	value, ok := record[r.From]
	if !ok || r.From == r.To {
		return nil
	}
	delete(record, r.From)
	record[r.To] = value
	return nil
}

func (r RenameField) String() string {
	return fmt.Sprintf("rename %s -> %s", r.From, r.To)
}

// RemoveField deletes Field. Missing fields are a no-op.
type RemoveField struct {
	Field string
}

func (r RemoveField) apply(record core.Record) error {
	delete(record, r.Field)
	return nil
}

func (r RemoveField) String() string {
	return "remove " + r.Field
}

// CastField converts Field to Type. Missing and null fields are left alone.
type CastField struct {
	Field string
	Type  CastType
}

func (c CastField) apply(record core.Record) error {
	value, ok := record[c.Field]
	if !ok {
		return nil
	}
	converted, err := convertValue(value, c.Type)
	if err != nil {
		return &core.TransformWarning{Op: "cast", Field: c.Field, Err: err}
	}
	record[c.Field] = converted
	return nil
}

func (c CastField) String() string {
	return fmt.Sprintf("cast %s to %s", c.Field, c.Type)
}
