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

package validators

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/flowetl/core"
	"github.com/aaronlmathis/flowetl/filter"
	"github.com/aaronlmathis/flowetl/transform"
)

func parseDefs(t *testing.T, doc string) []RuleDefinition {
	t.Helper()
	var file RuleFile
	require.NoError(t, yaml.Unmarshal([]byte(doc), &file))
	return file.Rules
}

func TestCompileRules_Valid(t *testing.T) {
	defs := parseDefs(t, `
rules:
  - name: flag-large
    if: {field: bytes, op: gt, value: 1000}
    then: {set: {field: flagged, value: true}}
  - if:
      and:
        - {field: proto, op: in, values: [tcp, udp]}
        - not: {field: port_dst, op: eq, value: 22}
        - or:
            - {field: ip_src, op: match, value: '^10\.'}
            - {field: tag, op: exists}
    then: {set: {field: label, value: "${ip_src}:${port_dst}"}}
  - then: {rename: {from: ip_src, to: src.ip}}
  - then: {remove: {field: tmp}}
  - then: {cast: {field: packets, type: integer}}
`)

	rules, err := CompileRules(defs)
	require.NoError(t, err)
	require.Len(t, rules, 5)

	assert.Equal(t, "flag-large", rules[0].Name)
	engine := transform.NewEngine(rules, nil)

	out := engine.Apply(core.Record{
		"bytes": int64(5000), "proto": "tcp", "port_dst": int64(443),
		"ip_src": "10.0.0.1", "tmp": "x", "packets": "12",
	})
	assert.Equal(t, core.Record{
		"bytes": int64(5000), "flagged": true, "proto": "tcp", "port_dst": int64(443),
		"label": "10.0.0.1:443", "src.ip": "10.0.0.1", "packets": int64(12),
	}, out)

	out = engine.Apply(core.Record{"bytes": int64(10), "proto": "tcp", "port_dst": int64(22), "ip_src": "10.0.0.1"})
	assert.NotContains(t, out, "flagged")
	assert.NotContains(t, out, "label")
}

func TestCompileCondition_Shapes(t *testing.T) {
	cond, err := CompileCondition(map[string]interface{}{
		"or": []interface{}{
			map[string]interface{}{"field": "proto", "op": "==", "value": "icmp"},
			map[interface{}]interface{}{"field": "bytes", "op": ">=", "value": 100},
		},
	}, "if")
	require.NoError(t, err)

	or, ok := cond.(filter.Or)
	require.True(t, ok)
	assert.Len(t, or.Children, 2)
	assert.True(t, filter.Evaluate(cond, core.Record{"bytes": int64(100)}))

	cond, err = CompileCondition(map[string]interface{}{"and": []interface{}{}}, "if")
	require.NoError(t, err)
	assert.True(t, filter.Evaluate(cond, core.Record{}))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  RuleDefinition
		path string
	}{
		{
			name: "unknown operator",
			def:  RuleDefinition{If: map[string]interface{}{"field": "a", "op": "like", "value": "x"}, Then: setFlag()},
			path: "rule.if.op",
		},
		{
			name: "missing field",
			def:  RuleDefinition{If: map[string]interface{}{"op": "eq", "value": "x"}, Then: setFlag()},
			path: "rule.if",
		},
		{
			name: "missing value",
			def:  RuleDefinition{If: map[string]interface{}{"field": "a", "op": "eq"}, Then: setFlag()},
			path: "rule.if",
		},
		{
			name: "non-scalar literal",
			def:  RuleDefinition{If: map[string]interface{}{"field": "a", "op": "eq", "value": []interface{}{1}}, Then: setFlag()},
			path: "rule.if",
		},
		{
			name: "values on scalar operator",
			def:  RuleDefinition{If: map[string]interface{}{"field": "a", "op": "gt", "values": []interface{}{1}}, Then: setFlag()},
			path: "rule.if.values",
		},
		{
			name: "exists with value",
			def:  RuleDefinition{If: map[string]interface{}{"field": "a", "op": "exists", "value": true}, Then: setFlag()},
			path: "rule.if",
		},
		{
			name: "and not a list",
			def:  RuleDefinition{If: map[string]interface{}{"and": map[string]interface{}{}}, Then: setFlag()},
			path: "rule.if.and",
		},
		{
			name: "nested child error",
			def: RuleDefinition{If: map[string]interface{}{"and": []interface{}{
				map[string]interface{}{"field": "a", "op": "exists"},
				map[string]interface{}{"not": "oops"},
			}}, Then: setFlag()},
			path: "rule.if.and[1].not",
		},
		{
			name: "mixed combinator",
			def:  RuleDefinition{If: map[string]interface{}{"and": []interface{}{}, "field": "a"}, Then: setFlag()},
			path: "rule.if",
		},
		{
			name: "bad regex",
			def:  RuleDefinition{If: map[string]interface{}{"field": "a", "op": "match", "value": "("}, Then: setFlag()},
			path: "rule.if",
		},
		{
			name: "no action",
			def:  RuleDefinition{},
			path: "rule.then",
		},
		{
			name: "two actions",
			def: RuleDefinition{Then: map[string]interface{}{
				"remove": map[string]interface{}{"field": "a"},
				"set":    map[string]interface{}{"field": "b", "value": 1},
			}},
			path: "rule.then",
		},
		{
			name: "unknown action",
			def:  RuleDefinition{Then: map[string]interface{}{"drop": map[string]interface{}{}}},
			path: "rule.then",
		},
		{
			name: "rename missing to",
			def:  RuleDefinition{Then: map[string]interface{}{"rename": map[string]interface{}{"from": "a"}}},
			path: "rule.then.rename",
		},
		{
			name: "cast unknown type",
			def:  RuleDefinition{Then: map[string]interface{}{"cast": map[string]interface{}{"field": "a", "type": "date"}}},
			path: "rule.then.cast.type",
		},
		{
			name: "set without value",
			def:  RuleDefinition{Then: map[string]interface{}{"set": map[string]interface{}{"field": "a"}}},
			path: "rule.then.set",
		},
		{
			name: "set empty placeholder",
			def:  RuleDefinition{Then: map[string]interface{}{"set": map[string]interface{}{"field": "a", "value": "${}"}}},
			path: "rule.then.set.value",
		},
		{
			name: "set nan literal",
			def:  RuleDefinition{Then: map[string]interface{}{"set": map[string]interface{}{"field": "a", "value": math.NaN()}}},
			path: "rule.then.set.value",
		},
		{
			name: "set infinite literal",
			def:  RuleDefinition{Then: map[string]interface{}{"set": map[string]interface{}{"field": "a", "value": math.Inf(1)}}},
			path: "rule.then.set.value",
		},
		{
			name: "remove unknown key",
			def:  RuleDefinition{Then: map[string]interface{}{"remove": map[string]interface{}{"field": "a", "fields": "b"}}},
			path: "rule.then.remove",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.def)
			var cfgErr *core.ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.path, cfgErr.Path)
		})
	}
}

func TestCompileRules_CollectsAllErrors(t *testing.T) {
	defs := []RuleDefinition{
		{Then: setFlag()},
		{If: map[string]interface{}{"field": "a", "op": "nope", "value": 1}, Then: setFlag()},
		{Then: map[string]interface{}{}},
	}

	rules, err := CompileRules(defs)
	assert.Nil(t, rules)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 2)

	var first, second *core.ConfigError
	require.True(t, errors.As(merr.Errors[0], &first))
	require.True(t, errors.As(merr.Errors[1], &second))
	assert.Equal(t, "rules[1].if.op", first.Path)
	assert.Equal(t, "rules[2].then", second.Path)
	assert.Equal(t, core.KindConfig, core.KindOf(err))
}

func TestCompileRules_YAMLNaNLiteral(t *testing.T) {
	defs := parseDefs(t, `
rules:
  - then: {set: {field: ratio, value: .nan}}
  - then: {set: {field: ratio, value: -.inf}}
`)
	rules, err := CompileRules(defs)
	assert.Nil(t, rules)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 2)
	for i, e := range merr.Errors {
		var cfgErr *core.ConfigError
		require.True(t, errors.As(e, &cfgErr))
		assert.Equal(t, fmt.Sprintf("rules[%d].then.set.value", i), cfgErr.Path)
	}
}

func TestLoadRuleFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
rules:
  - if: {field: bytes, op: gt, value: 1000}
    then: {set: {field: flagged, value: true}}
`), 0o600))

	jsonPath := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(
		`{"rules":[{"if":{"field":"port","op":"in","values":[80,443]},"then":{"set":{"field":"web","value":1}}}]}`), 0o600))

	for _, path := range []string{yamlPath, jsonPath} {
		defs, err := LoadRuleFile(path)
		require.NoError(t, err, path)
		rules, err := CompileRules(defs)
		require.NoError(t, err, path)
		require.Len(t, rules, 1)
	}

	defs, err := LoadRuleFile(jsonPath)
	require.NoError(t, err)
	rules, err := CompileRules(defs)
	require.NoError(t, err)
	out := transform.NewEngine(rules, nil).Apply(core.Record{"port": int64(443)})
	assert.Equal(t, int64(1), out["web"])

	_, err = LoadRuleFile(filepath.Join(dir, "missing.yaml"))
	var cfgErr *core.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "rules_file", cfgErr.Path)
}

func setFlag() map[string]interface{} {
	return map[string]interface{}{"set": map[string]interface{}{"field": "flagged", "value": true}}
}
