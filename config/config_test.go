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

package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/flowetl/core"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("input", "-", "")
	flags.String("format", "json", "")
	flags.Int("workers", 4, "")
	flags.Int("batch-size", 5000, "")
	flags.Bool("print", false, "")
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "-", cfg.Input.Path)
	assert.Equal(t, "json", cfg.Input.Format)
	assert.Equal(t, ',', cfg.Input.Delimiter)
	assert.Equal(t, PipelineConfig{Workers: 4, QueueSize: 64, OutputBuffer: 256, BatchSize: 5000}, cfg.Pipeline)
	assert.Equal(t, SinkElasticsearch, cfg.Sink.Type)
	assert.Equal(t, "flows-%Y-%m-%d", cfg.Sink.Index)
	assert.Equal(t, 30*time.Second, cfg.Sink.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Sink.RetryDelay)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Rules)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowetl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input:
  path: /var/log/pmacct/flows.csv
  format: csv
  delimiter: tab
  columns: [SRC_IP, DST_IP, PROTOCOL, BYTES]
pipeline:
  workers: 2
  batch_size: 100
sink:
  type: ndjson
  url: http://collector:8080/ingest
  timeout: 5s
  auth:
    type: bearer
    token: secret
rules:
  - if: {field: BYTES, op: gt, value: 1000}
    then: {set: {field: flagged, value: true}}
timestamp_field: "@timestamp"
`), 0644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "csv", cfg.Input.Format)
	assert.Equal(t, '\t', cfg.Input.Delimiter)
	assert.Equal(t, []string{"SRC_IP", "DST_IP", "PROTOCOL", "BYTES"}, cfg.Input.Columns)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 64, cfg.Pipeline.QueueSize)
	assert.Equal(t, 100, cfg.Pipeline.BatchSize)
	assert.Equal(t, SinkNDJSON, cfg.Sink.Type)
	assert.Equal(t, 5*time.Second, cfg.Sink.Timeout)
	assert.Equal(t, AuthConfig{Type: "bearer", Token: "secret"}, cfg.Sink.Auth)
	assert.Equal(t, "@timestamp", cfg.TimestampField)

	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "BYTES", cfg.Rules[0].If["field"])
	assert.Contains(t, cfg.Rules[0].Then, "set")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	var cfgErr *core.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "config", cfgErr.Path)
}

func TestLoad_EnvironmentAndFlags(t *testing.T) {
	t.Setenv("FLOWETL_PIPELINE_WORKERS", "6")
	t.Setenv("FLOWETL_SINK_URL", "http://es:9200")
	t.Setenv("FLOWETL_PIPELINE_BATCH_SIZE", "10")

	cfg, err := Load("", testFlags(t, "--batch-size=20", "--format=csv"))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Pipeline.Workers)
	assert.Equal(t, 20, cfg.Pipeline.BatchSize)
	assert.Equal(t, "csv", cfg.Input.Format)
	assert.Equal(t, "http://es:9200", cfg.Sink.URL)
	assert.Equal(t, SinkElasticsearch, cfg.Sink.Type)
}

func TestLoad_PrintFlagForcesPrintSink(t *testing.T) {
	t.Setenv("FLOWETL_SINK_TYPE", "mongodb")

	cfg, err := Load("", testFlags(t, "--print"))
	require.NoError(t, err)
	assert.Equal(t, SinkPrint, cfg.Sink.Type)
	assert.Equal(t, SinkNDJSON, cfg.Sink.PrintCodec)
}

func TestLoad_PrintFlagKeepsElasticsearchFormat(t *testing.T) {
	cfg, err := Load("", testFlags(t, "--print"))
	require.NoError(t, err)
	assert.Equal(t, SinkPrint, cfg.Sink.Type)
	assert.Equal(t, SinkElasticsearch, cfg.Sink.PrintCodec)
	assert.Equal(t, "flows-%Y-%m-%d", cfg.Sink.Index)

	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, SinkNDJSON, cfg.Sink.PrintCodec)
}

func TestValidate_PrintCodec(t *testing.T) {
	_, err := Decode(map[string]interface{}{
		"sink": map[string]interface{}{"type": "print", "print_codec": "xml"},
	})
	var cfgErr *core.ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "sink.print_codec", cfgErr.Path)

	cfg, err := Decode(map[string]interface{}{
		"sink": map[string]interface{}{"type": "print", "print_codec": "elasticsearch", "index": "flows"},
	})
	require.NoError(t, err)
	assert.Equal(t, SinkElasticsearch, cfg.Sink.PrintCodec)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	_, err := Decode(map[string]interface{}{
		"input":    map[string]interface{}{"format": "xml"},
		"pipeline": map[string]interface{}{"workers": 0, "batch_size": 0},
		"sink":     map[string]interface{}{"type": "kafka"},
		"logging":  map[string]interface{}{"level": "loud"},
	})
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))

	var paths []string
	for _, e := range merr.Errors {
		var cfgErr *core.ConfigError
		require.True(t, errors.As(e, &cfgErr), "unexpected error type %T", e)
		paths = append(paths, cfgErr.Path)
	}
	assert.ElementsMatch(t, []string{"input.format", "pipeline.workers", "pipeline.batch_size", "sink.type", "logging.level"}, paths)
}

func TestValidate_SinkRequirements(t *testing.T) {
	tests := []struct {
		name string
		sink map[string]interface{}
		path string
	}{
		{name: "mongodb database", sink: map[string]interface{}{"type": "mongodb", "mongodb": map[string]interface{}{"collection": "flows"}}, path: "sink.mongodb.database"},
		{name: "postgres dsn", sink: map[string]interface{}{"type": "postgres"}, path: "sink.postgres.dsn"},
		{name: "csv path", sink: map[string]interface{}{"type": "csv"}, path: "sink.csv.path"},
		{name: "csv delimiter", sink: map[string]interface{}{"type": "csv", "csv": map[string]interface{}{"path": "out.csv", "delimiter": `"`}}, path: "sink.csv.delimiter"},
		{name: "parquet path", sink: map[string]interface{}{"type": "parquet"}, path: "sink.parquet.path"},
		{name: "basic auth user", sink: map[string]interface{}{"auth": map[string]interface{}{"type": "basic"}}, path: "sink.auth.username"},
		{name: "unknown auth", sink: map[string]interface{}{"auth": map[string]interface{}{"type": "digest"}}, path: "sink.auth.type"},
		{name: "empty url", sink: map[string]interface{}{"type": "ndjson", "url": ""}, path: "sink.url"},
		{name: "negative retries", sink: map[string]interface{}{"retries": -1}, path: "sink.retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(map[string]interface{}{"sink": tt.sink})
			var merr *multierror.Error
			require.True(t, errors.As(err, &merr))
			require.Len(t, merr.Errors, 1)

			var cfgErr *core.ConfigError
			require.True(t, errors.As(merr.Errors[0], &cfgErr))
			assert.Equal(t, tt.path, cfgErr.Path)
		})
	}
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{in: ",", want: ','},
		{in: ";", want: ';'},
		{in: "tab", want: '\t'},
		{in: `\t`, want: '\t'},
		{in: "pipe", want: '|'},
		{in: "§", want: '§'},
		{in: "", wantErr: true},
		{in: ",,", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDelimiter(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestConfigureLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New()

	require.NoError(t, configureLogger(logger, LoggingConfig{Level: "warn", Format: "json"}, &buf))
	logger.Info("hidden")
	logger.WithField("run_id", "abc").Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"run_id":"abc"`)
	assert.Contains(t, out, `"level":"warning"`)

	assert.Error(t, configureLogger(logger, LoggingConfig{Level: "loud"}, &buf))
}
