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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/flowetl/core"
)

func TestIdentityElements(t *testing.T) {
	records := []core.Record{
		{},
		{"proto": "tcp"},
		{"bytes": int64(0), "flag": nil},
	}
	for _, r := range records {
		assert.True(t, Evaluate(And{}, r))
		assert.False(t, Evaluate(Or{}, r))
		assert.True(t, Evaluate(nil, r))
	}
}

func TestEquals_ProtoScenario(t *testing.T) {
	cond := MustCompare("proto", OpEq, "tcp")

	assert.True(t, Evaluate(cond, core.Record{"proto": "tcp", "bytes": int64(100)}))
	assert.False(t, Evaluate(cond, core.Record{"proto": "udp"}))
	assert.False(t, Evaluate(cond, core.Record{}))
}

func TestCompare_Evaluate(t *testing.T) {
	record := core.Record{
		"proto":    "tcp",
		"bytes":    int64(2000),
		"ratio":    0.5,
		"port":     "443",
		"sampled":  true,
		"tag":      nil,
		"ip_src":   "10.1.2.3",
		"as_dst":   int64(65001),
		"packets":  "many",
		"tos_text": "0",
	}

	tests := []struct {
		name     string
		field    string
		op       Operator
		literal  interface{}
		expected bool
	}{
		{"string eq", "proto", OpEq, "tcp", true},
		{"int eq numeric string literal", "bytes", OpEq, "2000", true},
		{"numeric string field eq int literal", "port", OpEq, 443, true},
		{"int eq float literal", "bytes", OpEq, 2000.0, true},
		{"non-coercible falls back to string", "packets", OpEq, 5, false},
		{"bool eq bool", "sampled", OpEq, true, true},
		{"bool eq string form", "sampled", OpEq, "true", true},
		{"nil eq nil", "tag", OpEq, nil, true},
		{"missing eq nil", "missing", OpEq, nil, true},
		{"nil ne string", "tag", OpNe, "x", true},
		{"missing ne value", "missing", OpNe, "tcp", true},
		{"ne same", "proto", OpNe, "tcp", false},
		{"gt", "bytes", OpGt, 1000, true},
		{"gt equal", "bytes", OpGt, 2000, false},
		{"ge equal", "bytes", OpGe, 2000, true},
		{"lt float", "ratio", OpLt, 1, true},
		{"le numeric string field", "port", OpLe, 443, true},
		{"ordering on non-numeric field", "proto", OpGt, 1, false},
		{"ordering on nil", "tag", OpLt, 1, false},
		{"ordering on missing", "missing", OpGt, 0, false},
		{"ordering on bool", "sampled", OpGt, 0, false},
		{"in hit", "proto", OpIn, []interface{}{"udp", "tcp"}, true},
		{"in numeric", "as_dst", OpIn, []interface{}{"65001", 65002}, true},
		{"in miss", "proto", OpIn, []string{"icmp"}, false},
		{"in empty", "proto", OpIn, []interface{}{}, false},
		{"nin", "proto", OpNotIn, []string{"icmp"}, true},
		{"nin missing", "missing", OpNotIn, []string{"icmp"}, true},
		{"exists", "proto", OpExists, nil, true},
		{"exists with nil value", "tag", OpExists, nil, true},
		{"exists missing", "missing", OpExists, nil, false},
		{"match", "ip_src", OpMatch, `^10\.`, true},
		{"match number string form", "as_dst", OpMatch, `^650`, true},
		{"match miss", "proto", OpMatch, `^udp$`, false},
		{"match nil", "tag", OpMatch, `.*`, false},
		{"match missing", "missing", OpMatch, `.*`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := NewCompare(tt.field, tt.op, tt.literal)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, Evaluate(cond, record))
		})
	}
}

func TestNewCompare_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		op      Operator
		literal interface{}
		target  error
	}{
		{name: "unknown operator", field: "a", op: "between", literal: 1, target: ErrUnknownOperator},
		{name: "empty field", field: " ", op: OpEq, literal: 1, target: ErrMissingField},
		{name: "non-scalar literal", field: "a", op: OpEq, literal: map[string]interface{}{"x": 1}, target: ErrNonScalar},
		{name: "non-scalar list item", field: "a", op: OpIn, literal: []interface{}{[]int{1}}, target: ErrNonScalar},
		{name: "in without list", field: "a", op: OpIn, literal: "tcp"},
		{name: "exists with value", field: "a", op: OpExists, literal: true},
		{name: "match without string", field: "a", op: OpMatch, literal: 3},
		{name: "bad pattern", field: "a", op: OpMatch, literal: "("},
		{name: "ordering with text", field: "a", op: OpGt, literal: "big"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCompare(tt.field, tt.op, tt.literal)
			assert.Nil(t, c)
			require.Error(t, err)
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target))
			}
		})
	}
}

func TestParseOperator(t *testing.T) {
	for name, expected := range map[string]Operator{
		"eq": OpEq, "==": OpEq, "!=": OpNe, ">=": OpGe, "<": OpLt, "NIN": OpNotIn, " regex ": OpMatch,
	} {
		op, err := ParseOperator(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, op, name)
	}

	_, err := ParseOperator("like")
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestComposite(t *testing.T) {
	web := AllOf(Equals("proto", "tcp"), In("port_dst", 80, 443))
	bulk := AnyOf(GreaterThan("bytes", 1e6), Negate(Exists("packets")))

	assert.True(t, Evaluate(web, core.Record{"proto": "tcp", "port_dst": int64(443)}))
	assert.False(t, Evaluate(web, core.Record{"proto": "tcp", "port_dst": int64(22)}))

	assert.True(t, Evaluate(bulk, core.Record{"bytes": int64(2000000), "packets": int64(1)}))
	assert.True(t, Evaluate(bulk, core.Record{"bytes": int64(1)}))
	assert.False(t, Evaluate(bulk, core.Record{"bytes": int64(1), "packets": nil}))

	assert.True(t, Evaluate(Between("bytes", 10, 20), core.Record{"bytes": int64(20)}))
	assert.True(t, Evaluate(Not{}, core.Record{}) == false)
}

func TestAnd_ShortCircuits(t *testing.T) {
	// the second child would match; the first decides
	cond := And{Children: []Condition{Or{}, Exists("a")}}
	assert.False(t, Evaluate(cond, core.Record{"a": 1}))

	cond2 := Or{Children: []Condition{And{}, Equals("a", "x")}}
	assert.True(t, Evaluate(cond2, core.Record{}))
}

func TestCondition_String(t *testing.T) {
	cond := AllOf(Equals("proto", "tcp"), Negate(Exists("tag")), In("port", 80))
	assert.Equal(t, `and(proto eq "tcp", not(tag exists), port in [80])`, cond.String())
}
