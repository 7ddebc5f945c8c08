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
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aaronlmathis/flowetl/core"
)

var (
	placeholderPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

	// ErrMissingTemplateField is wrapped by the warning raised when a placeholder names an absent field.
	ErrMissingTemplateField = errors.New("template field missing")
)

// template is a string with ${field} placeholders.
type template struct {
	raw    string
	parts  []string // literal text, len(fields)+1 entries
	fields []string
}

// parseTemplate returns nil when s holds no placeholders.
func parseTemplate(s string) (*template, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	t := &template{raw: s}
	last := 0
	for _, m := range matches {
		name := strings.TrimSpace(s[m[2]:m[3]])
		if name == "" {
			return nil, fmt.Errorf("empty placeholder in template %q", s)
		}
		t.parts = append(t.parts, s[last:m[0]])
		t.fields = append(t.fields, name)
		last = m[1]
	}
	t.parts = append(t.parts, s[last:])
	return t, nil
}

// single reports whether the template is exactly one placeholder with no surrounding text.
func (t *template) single() bool {
	return len(t.fields) == 1 && t.parts[0] == "" && t.parts[1] == ""
}

// resolve renders the template against record. A lone placeholder yields the referenced value
// with its type; otherwise values are interpolated by their string form.
func (t *template) resolve(record core.Record) (interface{}, error) {
	values := make([]interface{}, len(t.fields))
	for i, name := range t.fields {
		value, ok := record[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingTemplateField, name)
		}
		values[i] = value
	}
	if t.single() {
		return values[0], nil
	}

	var b strings.Builder
	for i, part := range t.parts {
		b.WriteString(part)
		if i < len(values) {
			b.WriteString(core.Stringify(values[i]))
		}
	}
	return b.String(), nil
}
