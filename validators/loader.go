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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/flowetl/core"
)

// RuleFile is the document layout of a rules file.
type RuleFile struct {
	Rules []RuleDefinition `yaml:"rules" json:"rules"`
}

// LoadRuleFile reads rule definitions from a YAML or JSON file, chosen by extension.
// Files without a recognised extension are parsed as YAML, which also accepts JSON.
func LoadRuleFile(path string) ([]RuleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.ConfigError{Path: "rules_file", Err: fmt.Errorf("failed to read file: %w", err)}
	}

	var file RuleFile
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&file); err != nil {
			return nil, &core.ConfigError{Path: "rules_file", Err: fmt.Errorf("failed to parse JSON: %w", err)}
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, &core.ConfigError{Path: "rules_file", Err: fmt.Errorf("failed to parse YAML: %w", err)}
		}
	}

	log.WithField("path", path).WithField("rules", len(file.Rules)).Debug("rules file loaded")
	return file.Rules, nil
}
