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

package cmd

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/flowetl/config"
	"github.com/aaronlmathis/flowetl/core"
	"github.com/aaronlmathis/flowetl/validators"
)

const flowRules = `
rules:
  - name: flag-large
    if: {field: BYTES, op: gt, value: 1000}
    then: {set: {field: flagged, value: true}}
  - name: drop-tag
    then: {remove: {field: tag}}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := RootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// documentLines drops the bulk action lines --print emits for an elasticsearch sink.
func documentLines(s string) []string {
	var docs []string
	for _, line := range nonEmptyLines(s) {
		if !strings.HasPrefix(line, `{"index":`) {
			docs = append(docs, line)
		}
	}
	return docs
}

func TestRun_JSONToPrintSink(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "flows.json", strings.Join([]string{
		`{"SRC_IP":"10.0.0.1","BYTES":2000,"tag":"x"}`,
		``,
		`{"SRC_IP":"10.0.0.2","BYTES":10}`,
		`{"SRC_IP":"10.0.0.3","BYTES":5000}`,
	}, "\n"))
	cfgPath := writeFile(t, dir, "flowetl.yaml", "input:\n  path: "+input+"\n"+flowRules)

	out, err := execute(t, "run", "--config", cfgPath, "--print", "--batch-size", "2", "--workers", "3")
	require.NoError(t, err)

	lines := documentLines(out)
	require.Len(t, lines, 3)
	flagged := 0
	for _, line := range lines {
		assert.NotContains(t, line, `"tag"`)
		if strings.Contains(line, `"flagged":true`) {
			flagged++
		}
	}
	assert.Equal(t, 2, flagged)
}

func TestRun_RootCommandRunsPipeline(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "flows.json", `{"BYTES":1}`+"\n")

	out, err := execute(t, "--input", input, "--print")
	require.NoError(t, err)
	lines := nonEmptyLines(out)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `{"index":{"_index":"flows-`), lines[0])
	assert.Equal(t, `{"BYTES":1}`, lines[1])
}

func TestRun_PrintNDJSONSink(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "flows.json", `{"BYTES":1}`+"\n")
	cfgPath := writeFile(t, dir, "flowetl.yaml", "sink:\n  type: ndjson\n  url: http://collector:8080/ingest\n")

	out, err := execute(t, "--config", cfgPath, "--input", input, "--print")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"BYTES":1}`}, nonEmptyLines(out))
}

func TestRun_CSVHeaderInput(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "flows.csv", "SRC_IP,BYTES\n10.0.0.1,2000\n10.0.0.2,10\n")
	cfgPath := writeFile(t, dir, "flowetl.yaml", "input:\n  path: "+input+"\n  format: csv\n"+flowRules)

	out, err := execute(t, "run", "--config", cfgPath, "--print", "--workers", "1")
	require.NoError(t, err)

	lines := documentLines(out)
	require.Len(t, lines, 2)
	assert.Contains(t, out, `{"BYTES":2000,"SRC_IP":"10.0.0.1","flagged":true}`)
	assert.Contains(t, out, `{"BYTES":10,"SRC_IP":"10.0.0.2"}`)
}

func TestRun_ParseErrorFailsRun(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "flows.json", "{\"BYTES\":1}\nnot json\n{\"BYTES\":2}\n")

	out, err := execute(t, "run", "--input", input, "--print")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finished with 1 errors")
	assert.Len(t, documentLines(out), 2)
}

func TestRun_MissingInputFile(t *testing.T) {
	_, err := execute(t, "run", "--input", filepath.Join(t.TempDir(), "missing.json"), "--print")

	var ioErr *core.FatalIOError
	require.True(t, errors.As(err, &ioErr))
}

func TestRun_InvalidRuleStopsBeforeReading(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "flowetl.yaml", `
input:
  path: does-not-exist.json
rules:
  - if: {field: BYTES, op: between, value: 1}
    then: {remove: {field: BYTES}}
`)

	_, err := execute(t, "run", "--config", cfgPath, "--print")
	var cfgErr *core.ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Contains(t, cfgErr.Path, "rules[0].if")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "flowetl.yaml", "sink:\n  type: print\n"+flowRules)

	out, err := execute(t, "validate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration ok: json input, print sink, 2 rules")
	assert.Contains(t, out, "flag-large: if ")
	assert.Contains(t, out, "drop-tag: ")
}

func TestValidate_ReportsConfigErrors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "flowetl.yaml", "pipeline:\n  workers: 0\n")

	_, err := execute(t, "validate", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.workers")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flowetl dev "))
}

func TestLoadRules_FileRulesComeFirst(t *testing.T) {
	rulesPath := writeFile(t, t.TempDir(), "rules.yaml", flowRules)
	cfg := config.Config{
		RulesFile: rulesPath,
		Rules: []validators.RuleDefinition{
			{Name: "inline", Then: map[string]interface{}{"remove": map[string]interface{}{"field": "x"}}},
		},
	}

	rules, err := loadRules(cfg)
	require.NoError(t, err)

	var names []string
	for _, r := range rules {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"flag-large", "drop-tag", "inline"}, names)
}

func TestNewParser(t *testing.T) {
	parser, header, err := newParser(config.InputConfig{Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, parser)
	assert.Nil(t, header)

	parser, header, err = newParser(config.InputConfig{Format: "csv", Delimiter: ';', Columns: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Nil(t, header)
	record, err := parser.Parse("1;x")
	require.NoError(t, err)
	assert.Equal(t, core.Record{"a": int64(1), "b": "x"}, record)

	parser, header, err = newParser(config.InputConfig{Format: "delimited", Delimiter: '\t'})
	require.NoError(t, err)
	require.Nil(t, parser)
	require.NotNil(t, header)

	parser, err = header("src\tdst")
	require.NoError(t, err)
	record, err = parser.Parse("a\tb")
	require.NoError(t, err)
	assert.Equal(t, core.Record{"src": "a", "dst": "b"}, record)

	_, err = header("a\ta")
	var cfgErr *core.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}
