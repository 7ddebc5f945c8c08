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
	"fmt"
	"strings"

	"github.com/aaronlmathis/flowetl/core"
)

// Input format tags.
const (
	FormatJSON      = "json"
	FormatDelimited = "delimited"
	FormatCSV       = "csv" // alias for FormatDelimited
)

// NormalizeFormat maps a configured format tag to its canonical name.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatDelimited, FormatCSV:
		return FormatDelimited, nil
	default:
		return "", &core.ConfigError{Path: "input.format", Err: fmt.Errorf("unknown input format %q", format)}
	}
}

// NewParser returns the parser for format. Delimited options are ignored for JSON input.
func NewParser(format string, options ...ParserOptionDelimited) (core.Parser, error) {
	canonical, err := NormalizeFormat(format)
	if err != nil {
		return nil, err
	}
	if canonical == FormatJSON {
		return NewJSONParser(), nil
	}
	parser, err := NewDelimitedParser(options...)
	if err != nil {
		return nil, err
	}
	return parser, nil
}
