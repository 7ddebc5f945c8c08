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

// Package config loads the flowetl run configuration from a YAML or JSON file, FLOWETL_
// environment variables and command line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/aaronlmathis/flowetl/core"
	"github.com/aaronlmathis/flowetl/readers"
	"github.com/aaronlmathis/flowetl/validators"
)

// Sink types.
const (
	SinkElasticsearch = "elasticsearch"
	SinkNDJSON        = "ndjson"
	SinkPrint         = "print"
	SinkMongoDB       = "mongodb"
	SinkPostgres      = "postgres"
	SinkParquet       = "parquet"
	SinkCSV           = "csv"
)

// EnvPrefix is the prefix of environment variables overriding configuration keys,
// e.g. FLOWETL_SINK_URL for sink.url.
const EnvPrefix = "FLOWETL"

type Config struct {
	Input          InputConfig                 `mapstructure:"input"`
	Pipeline       PipelineConfig              `mapstructure:"pipeline"`
	Sink           SinkConfig                  `mapstructure:"sink"`
	RulesFile      string                      `mapstructure:"rules_file"`
	Rules          []validators.RuleDefinition `mapstructure:"rules"`
	TimestampField string                      `mapstructure:"timestamp_field"`
	Logging        LoggingConfig               `mapstructure:"logging"`
	Metrics        MetricsConfig               `mapstructure:"metrics"`
}

type InputConfig struct {
	Path      string   `mapstructure:"path"` // file path, or "-" for stdin
	Format    string   `mapstructure:"format"`
	Delimiter rune     `mapstructure:"delimiter"`
	Columns   []string `mapstructure:"columns"` // empty: the first line is the header
	S3        S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Key       string `mapstructure:"key"`
	Prefix    string `mapstructure:"prefix"`
	Suffix    string `mapstructure:"suffix"`
	Region    string `mapstructure:"region"`
	Profile   string `mapstructure:"profile"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// Enabled reports whether input is read from S3 instead of Path.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type PipelineConfig struct {
	Workers      int `mapstructure:"workers"`
	QueueSize    int `mapstructure:"queue_size"`
	OutputBuffer int `mapstructure:"output_buffer"`
	BatchSize    int `mapstructure:"batch_size"`
}

type SinkConfig struct {
	Type       string         `mapstructure:"type"`
	URL        string         `mapstructure:"url"`
	Index      string         `mapstructure:"index"`
	Timeout    time.Duration  `mapstructure:"timeout"`
	Retries    int            `mapstructure:"retries"`
	RetryDelay time.Duration  `mapstructure:"retry_delay"`
	Auth       AuthConfig     `mapstructure:"auth"`
	MongoDB    MongoDBConfig  `mapstructure:"mongodb"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
	Parquet    ParquetConfig  `mapstructure:"parquet"`
	CSV        CSVConfig      `mapstructure:"csv"`
	// PrintCodec is the wire format of the print sink: ndjson or elasticsearch. --print sets it
	// to elasticsearch when the configured sink was elasticsearch.
	PrintCodec string `mapstructure:"print_codec"`
}

type AuthConfig struct {
	Type     string `mapstructure:"type"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	CreateTable bool   `mapstructure:"create_table"`
}

type ParquetConfig struct {
	Path        string `mapstructure:"path"`
	Compression string `mapstructure:"compression"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Key       string `mapstructure:"s3_key"`
	S3Region    string `mapstructure:"s3_region"`
}

type CSVConfig struct {
	Path      string   `mapstructure:"path"`
	Delimiter rune     `mapstructure:"delimiter"`
	Columns   []string `mapstructure:"columns"`
	Header    bool     `mapstructure:"header"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// Port of the prometheus endpoint; 0 disables it.
	Port int `mapstructure:"port"`
}

var defaults = map[string]interface{}{
	"input.path":                 "-",
	"input.format":               readers.FormatJSON,
	"input.delimiter":            ",",
	"input.columns":              []string{},
	"input.s3.bucket":            "",
	"input.s3.key":               "",
	"input.s3.prefix":            "",
	"input.s3.suffix":            "",
	"input.s3.region":            "",
	"input.s3.profile":           "",
	"input.s3.endpoint":          "",
	"input.s3.path_style":        false,
	"pipeline.workers":           4,
	"pipeline.queue_size":        64,
	"pipeline.output_buffer":     256,
	"pipeline.batch_size":        5000,
	"sink.type":                  SinkElasticsearch,
	"sink.url":                   "http://localhost:9200",
	"sink.index":                 "flows-%Y-%m-%d",
	"sink.timeout":               "30s",
	"sink.retries":               2,
	"sink.retry_delay":           "500ms",
	"sink.auth.type":             "",
	"sink.auth.username":         "",
	"sink.auth.password":         "",
	"sink.auth.token":            "",
	"sink.mongodb.uri":           "mongodb://localhost:27017",
	"sink.mongodb.database":      "",
	"sink.mongodb.collection":    "",
	"sink.postgres.dsn":          "",
	"sink.postgres.table":        "flows",
	"sink.postgres.create_table": false,
	"sink.parquet.path":          "",
	"sink.parquet.compression":   "snappy",
	"sink.parquet.s3_bucket":     "",
	"sink.parquet.s3_key":        "",
	"sink.parquet.s3_region":     "",
	"sink.csv.path":              "",
	"sink.csv.delimiter":         ",",
	"sink.csv.columns":           []string{},
	"sink.csv.header":            true,
	"sink.print_codec":           SinkNDJSON,
	"rules_file":                 "",
	"timestamp_field":            "",
	"logging.level":              "info",
	"logging.format":             "text",
	"metrics.port":               0,
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"input":      "input.path",
	"format":     "input.format",
	"workers":    "pipeline.workers",
	"batch-size": "pipeline.batch_size",
	"log-level":  "logging.level",
}

// Load reads the configuration. path may be empty, in which case defaults, environment and
// flags apply. Flags that were set on the command line override every other source.
// The returned value is validated.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &core.ConfigError{Path: "config", Err: errors.Wrapf(err, "reading %s", path)}
		}
		log.WithField("file", v.ConfigFileUsed()).Debug("configuration file loaded")
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, errors.WithMessagef(err, "binding flag --%s", name)
				}
			}
		}
		if printOnly, err := flags.GetBool("print"); err == nil && printOnly {
			if v.GetString("sink.type") == SinkElasticsearch {
				v.Set("sink.print_codec", SinkElasticsearch)
			}
			v.Set("sink.type", SinkPrint)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, CustomHooks...); err != nil {
		return Config{}, &core.ConfigError{Path: "config", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode builds a Config from an already parsed map, applying defaults. Used by tests and by
// callers embedding the configuration in a larger document.
func Decode(raw map[string]interface{}) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := v.MergeConfigMap(raw); err != nil {
		return Config{}, &core.ConfigError{Path: "config", Err: err}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, CustomHooks...); err != nil {
		return Config{}, &core.ConfigError{Path: "config", Err: err}
	}
	return cfg, cfg.Validate()
}

// Validate checks every key and returns all problems at once as *core.ConfigError values
// combined in a *multierror.Error.
func (c Config) Validate() error {
	var result *multierror.Error
	add := func(path string, format string, args ...interface{}) {
		result = multierror.Append(result, &core.ConfigError{Path: path, Err: fmt.Errorf(format, args...)})
	}

	if _, err := readers.NormalizeFormat(c.Input.Format); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Input.Delimiter == 0 || c.Input.Delimiter == '\n' || c.Input.Delimiter == '\r' || c.Input.Delimiter == '"' {
		add("input.delimiter", "invalid delimiter %q", c.Input.Delimiter)
	}
	if c.Input.S3.Key != "" && c.Input.S3.Bucket == "" {
		add("input.s3.bucket", "required when input.s3.key is set")
	}

	for _, check := range []struct {
		path  string
		value int
		min   int
	}{
		{"pipeline.workers", c.Pipeline.Workers, 1},
		{"pipeline.queue_size", c.Pipeline.QueueSize, 1},
		{"pipeline.output_buffer", c.Pipeline.OutputBuffer, 0},
		{"pipeline.batch_size", c.Pipeline.BatchSize, 1},
	} {
		if check.value < check.min {
			add(check.path, "must be at least %d, got %d", check.min, check.value)
		}
	}

	result = multierror.Append(result, c.Sink.validate()...)

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		add("logging.format", "must be text or json, got %q", c.Logging.Format)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		add("metrics.port", "out of range: %d", c.Metrics.Port)
	}

	return result.ErrorOrNil()
}

func (s SinkConfig) validate() []error {
	var errs []error
	add := func(path string, format string, args ...interface{}) {
		errs = append(errs, &core.ConfigError{Path: path, Err: fmt.Errorf(format, args...)})
	}

	switch s.Type {
	case SinkElasticsearch, SinkNDJSON:
		if s.URL == "" {
			add("sink.url", "required for sink type %s", s.Type)
		}
		if s.Type == SinkElasticsearch && s.Index == "" {
			add("sink.index", "required for sink type %s", s.Type)
		}
		if s.Timeout <= 0 {
			add("sink.timeout", "must be positive")
		}
		if s.Retries < 0 {
			add("sink.retries", "must not be negative, got %d", s.Retries)
		}
		switch s.Auth.Type {
		case "":
		case "basic":
			if s.Auth.Username == "" {
				add("sink.auth.username", "required for basic auth")
			}
		case "bearer":
			if s.Auth.Token == "" {
				add("sink.auth.token", "required for bearer auth")
			}
		default:
			add("sink.auth.type", "must be basic or bearer, got %q", s.Auth.Type)
		}
	case SinkPrint:
		switch s.PrintCodec {
		case SinkNDJSON:
		case SinkElasticsearch:
			if s.Index == "" {
				add("sink.index", "required for print codec %s", s.PrintCodec)
			}
		default:
			add("sink.print_codec", "must be ndjson or elasticsearch, got %q", s.PrintCodec)
		}
	case SinkMongoDB:
		if s.MongoDB.Database == "" {
			add("sink.mongodb.database", "required for sink type %s", s.Type)
		}
		if s.MongoDB.Collection == "" {
			add("sink.mongodb.collection", "required for sink type %s", s.Type)
		}
	case SinkPostgres:
		if s.Postgres.DSN == "" {
			add("sink.postgres.dsn", "required for sink type %s", s.Type)
		}
	case SinkParquet:
		if s.Parquet.Path == "" {
			add("sink.parquet.path", "required for sink type %s", s.Type)
		}
		if (s.Parquet.S3Bucket == "") != (s.Parquet.S3Key == "") {
			add("sink.parquet.s3_bucket", "s3_bucket and s3_key must be set together")
		}
	case SinkCSV:
		if s.CSV.Path == "" {
			add("sink.csv.path", "required for sink type %s", s.Type)
		}
		if s.CSV.Delimiter == 0 || s.CSV.Delimiter == '\n' || s.CSV.Delimiter == '\r' || s.CSV.Delimiter == '"' {
			add("sink.csv.delimiter", "invalid delimiter %q", s.CSV.Delimiter)
		}
	default:
		add("sink.type", "unknown sink type %q", s.Type)
	}
	return errs
}
