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

// validators.go - Rule definition validation and compilation into typed transformation rules
package validators

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/aaronlmathis/flowetl/core"
	"github.com/aaronlmathis/flowetl/filter"
	"github.com/aaronlmathis/flowetl/transform"
)

// RuleDefinition is the loosely typed form of a transformation rule as it appears in configuration.
//
//	- name: flag-large
//	  if: {field: bytes, op: gt, value: 1000}
//	  then: {set: {field: flagged, value: true}}
type RuleDefinition struct {
	Name string                 `mapstructure:"name" yaml:"name" json:"name"`
	If   map[string]interface{} `mapstructure:"if" yaml:"if" json:"if"`
	Then map[string]interface{} `mapstructure:"then" yaml:"then" json:"then"`
}

// Validate checks a rule definition without compiling it into the pipeline.
// It needs no sample data.
func Validate(def RuleDefinition) error {
	_, err := compileRule(def, "rule")
	return err
}

// CompileRule converts a definition into a transform.Rule. Errors are *core.ConfigError.
func CompileRule(def RuleDefinition) (transform.Rule, error) {
	return compileRule(def, "rule")
}

// CompileRules compiles every definition, reporting all invalid ones at once.
// Error paths are of the form "rules[2].if.and[0].op".
func CompileRules(defs []RuleDefinition) ([]transform.Rule, error) {
	var result *multierror.Error
	rules := make([]transform.Rule, 0, len(defs))

	for i, def := range defs {
		rule, err := compileRule(def, fmt.Sprintf("rules[%d]", i))
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		rules = append(rules, rule)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return rules, nil
}

func compileRule(def RuleDefinition, path string) (transform.Rule, error) {
	rule := transform.Rule{Name: def.Name}

	if len(def.If) > 0 {
		cond, err := CompileCondition(def.If, path+".if")
		if err != nil {
			return transform.Rule{}, err
		}
		rule.Condition = cond
	}

	if len(def.Then) == 0 {
		return transform.Rule{}, configErr(path+".then", "an action is required")
	}
	action, err := compileAction(def.Then, path+".then")
	if err != nil {
		return transform.Rule{}, err
	}
	rule.Action = action
	return rule, nil
}

// CompileCondition converts a condition definition into a filter.Condition.
//
// Accepted shapes: {and: [...]}, {or: [...]}, {not: {...}}, {field, op, value},
// {field, op: in|nin, values: [...]} and {field, op: exists}.
func CompileCondition(def interface{}, path string) (filter.Condition, error) {
	m, ok := asMap(def)
	if !ok {
		return nil, configErr(path, "condition must be a mapping, got %T", def)
	}

	for _, key := range []string{"and", "or"} {
		raw, ok := m[key]
		if !ok {
			continue
		}
		if len(m) != 1 {
			return nil, configErr(path, "%q cannot be combined with other keys", key)
		}
		items, ok := raw.([]interface{})
		if !ok {
			return nil, configErr(path+"."+key, "expected a list of conditions, got %T", raw)
		}
		children := make([]filter.Condition, len(items))
		for i, item := range items {
			child, err := CompileCondition(item, fmt.Sprintf("%s.%s[%d]", path, key, i))
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		if key == "and" {
			return filter.And{Children: children}, nil
		}
		return filter.Or{Children: children}, nil
	}

	if raw, ok := m["not"]; ok {
		if len(m) != 1 {
			return nil, configErr(path, `"not" cannot be combined with other keys`)
		}
		child, err := CompileCondition(raw, path+".not")
		if err != nil {
			return nil, err
		}
		return filter.Not{Child: child}, nil
	}

	return compileCompare(m, path)
}

func compileCompare(m map[string]interface{}, path string) (filter.Condition, error) {
	if err := onlyKeys(m, path, "field", "op", "value", "values"); err != nil {
		return nil, err
	}

	field, err := requireString(m, "field", path)
	if err != nil {
		return nil, err
	}
	opName, err := requireString(m, "op", path)
	if err != nil {
		return nil, err
	}
	op, err := filter.ParseOperator(opName)
	if err != nil {
		return nil, &core.ConfigError{Path: path + ".op", Err: err}
	}

	value, hasValue := m["value"]
	values, hasValues := m["values"]

	var literal interface{}
	switch op {
	case filter.OpExists:
		if hasValue || hasValues {
			return nil, configErr(path, "operator exists takes no value")
		}
	case filter.OpIn, filter.OpNotIn:
		if hasValue && hasValues {
			return nil, configErr(path, "use either value or values, not both")
		}
		if !hasValue && !hasValues {
			return nil, configErr(path, "operator %s requires values", op)
		}
		literal = values
		if hasValue {
			literal = value
		}
	default:
		if hasValues {
			return nil, configErr(path+".values", "operator %s takes a single value", op)
		}
		if !hasValue {
			return nil, configErr(path, "operator %s requires a value", op)
		}
		literal = value
	}

	cmp, err := filter.NewCompare(field, op, literal)
	if err != nil {
		return nil, &core.ConfigError{Path: path, Err: err}
	}
	return cmp, nil
}

func compileAction(m map[string]interface{}, path string) (transform.Action, error) {
	if len(m) != 1 {
		return nil, configErr(path, "exactly one of set, rename, remove or cast is required, got %s", keyList(m))
	}

	for kind, raw := range m {
		args, ok := asMap(raw)
		if !ok {
			return nil, configErr(path+"."+kind, "expected a mapping, got %T", raw)
		}
		argPath := path + "." + kind

		switch kind {
		case "set":
			if err := onlyKeys(args, argPath, "field", "value"); err != nil {
				return nil, err
			}
			field, err := requireString(args, "field", argPath)
			if err != nil {
				return nil, err
			}
			raw, ok := args["value"]
			if !ok {
				return nil, configErr(argPath, "value is required")
			}
			value, ok := filter.NormalizeScalar(raw)
			if !ok {
				return nil, configErr(argPath+".value", "%v, got %T", filter.ErrNonScalar, raw)
			}
			set, err := transform.NewSetField(field, value)
			if err != nil {
				return nil, &core.ConfigError{Path: argPath + ".value", Err: err}
			}
			return set, nil

		case "rename":
			if err := onlyKeys(args, argPath, "from", "to"); err != nil {
				return nil, err
			}
			from, err := requireString(args, "from", argPath)
			if err != nil {
				return nil, err
			}
			to, err := requireString(args, "to", argPath)
			if err != nil {
				return nil, err
			}
			return transform.RenameField{From: from, To: to}, nil

		case "remove":
			if err := onlyKeys(args, argPath, "field"); err != nil {
				return nil, err
			}
			field, err := requireString(args, "field", argPath)
			if err != nil {
				return nil, err
			}
			return transform.RemoveField{Field: field}, nil

		case "cast":
			if err := onlyKeys(args, argPath, "field", "type"); err != nil {
				return nil, err
			}
			field, err := requireString(args, "field", argPath)
			if err != nil {
				return nil, err
			}
			typeName, err := requireString(args, "type", argPath)
			if err != nil {
				return nil, err
			}
			castType, err := transform.ParseCastType(typeName)
			if err != nil {
				return nil, &core.ConfigError{Path: argPath + ".type", Err: err}
			}
			return transform.CastField{Field: field, Type: castType}, nil

		default:
			return nil, configErr(path, "unknown action %q", kind)
		}
	}
	return nil, configErr(path, "an action is required")
}

func configErr(path, format string, args ...interface{}) error {
	return &core.ConfigError{Path: path, Err: fmt.Errorf(format, args...)}
}

// asMap accepts the mapping shapes produced by viper, yaml.v3 and encoding/json.
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func requireString(m map[string]interface{}, key, path string) (string, error) {
	raw, ok := m[key]
	if !ok {
		return "", configErr(path, "%s is required", key)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", configErr(path+"."+key, "expected a non-empty string, got %#v", raw)
	}
	return s, nil
}

func onlyKeys(m map[string]interface{}, path string, allowed ...string) error {
	for key := range m {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			return configErr(path, "unknown key %q", key)
		}
	}
	return nil
}

func keyList(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "[" + strings.Join(keys, ", ") + "]"
}
