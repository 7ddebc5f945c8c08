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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/flowetl"
	"github.com/aaronlmathis/flowetl/config"
	"github.com/aaronlmathis/flowetl/core"
	"github.com/aaronlmathis/flowetl/metrics"
	"github.com/aaronlmathis/flowetl/readers"
	"github.com/aaronlmathis/flowetl/transform"
	"github.com/aaronlmathis/flowetl/validators"
	"github.com/aaronlmathis/flowetl/writers"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion pipeline until the input is exhausted.",
		Args:  cobra.NoArgs,
		RunE:  runE,
	}
}

func runE(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logConfigError(err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runPipeline(ctx, cfg, cmd.OutOrStdout())
	if result != nil {
		for _, entry := range result.Errors {
			log.WithField("run_id", result.RunID).WithField("kind", entry.Kind).Error(entry.Message)
		}
	}
	if err != nil {
		return err
	}
	if !result.Success {
		return errors.Errorf("run %s finished with %d errors", result.RunID, len(result.Errors))
	}
	return nil
}

// runPipeline assembles the pipeline described by cfg and executes it. stdout receives the
// output of the print sink.
func runPipeline(ctx context.Context, cfg config.Config, stdout io.Writer) (*flowetl.Result, error) {
	rules, err := loadRules(cfg)
	if err != nil {
		logConfigError(err)
		return nil, err
	}

	parser, headerParser, err := newParser(cfg.Input)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	var collectorOpts []core.CollectorOption
	if cfg.Metrics.Port > 0 {
		m = metrics.NewMetrics(metrics.FlowETLMetricsPrefix)
		collectorOpts = append(collectorOpts, core.WithReportHook(func(e core.ErrorEntry) { m.RecordError(string(e.Kind)) }))
		shutdown := metrics.ServeMetrics(uint16(cfg.Metrics.Port))
		defer shutdown()
	}
	collector := core.NewErrorCollector(collectorOpts...)

	source, err := newSource(ctx, cfg.Input)
	if err != nil {
		return nil, err
	}

	sink, err := writers.NewSink(ctx, cfg.Sink, stdout)
	if err != nil {
		source.Close()
		return nil, errors.WithMessage(err, "creating sink")
	}

	builder := flowetl.NewPipeline().
		From(source).
		Transform(transform.NewEngine(rules, collector)).
		To(sink).
		WithWorkers(cfg.Pipeline.Workers).
		WithQueueSize(cfg.Pipeline.QueueSize).
		WithOutputBuffer(cfg.Pipeline.OutputBuffer).
		WithBatchSize(cfg.Pipeline.BatchSize).
		WithCollector(collector).
		WithMetrics(m)
	if cfg.TimestampField != "" {
		builder.Transform(transform.AddTimestamp(cfg.TimestampField, time.Now))
	}
	if parser != nil {
		builder.ParseWith(parser)
	} else {
		builder.ParseHeaderWith(headerParser)
	}

	pipeline, err := builder.Build()
	if err != nil {
		source.Close()
		sink.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"input":  describeInput(cfg.Input),
		"format": cfg.Input.Format,
		"sink":   cfg.Sink.Type,
		"rules":  len(rules),
	}).Info("starting flowetl")

	result, err := pipeline.Execute(ctx)
	if err != nil {
		log.WithError(err).Error("pipeline aborted")
	}
	if result != nil {
		logSummary(result)
	}
	return result, err
}

// loadRules compiles the rules of the rules file followed by the inline rules.
func loadRules(cfg config.Config) ([]transform.Rule, error) {
	var defs []validators.RuleDefinition
	if cfg.RulesFile != "" {
		fileDefs, err := validators.LoadRuleFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	defs = append(defs, cfg.Rules...)
	return validators.CompileRules(defs)
}

// newParser returns either a fixed parser or, for delimited input without configured columns,
// a header parser that builds one from the first line.
func newParser(in config.InputConfig) (core.Parser, flowetl.HeaderParserFunc, error) {
	format, err := readers.NormalizeFormat(in.Format)
	if err != nil {
		return nil, nil, err
	}
	if format == readers.FormatJSON {
		return readers.NewJSONParser(), nil, nil
	}
	if len(in.Columns) > 0 {
		parser, err := readers.NewParser(format,
			readers.WithDelimiter(in.Delimiter),
			readers.WithColumns(append([]string(nil), in.Columns...)),
		)
		return parser, nil, err
	}

	comma := in.Delimiter
	return nil, func(header string) (core.Parser, error) {
		columns, err := readers.ParseHeader(header, comma)
		if err != nil {
			return nil, &core.ConfigError{Path: "input.header", Err: err}
		}
		return readers.NewDelimitedParser(readers.WithDelimiter(comma), readers.WithColumns(columns))
	}, nil
}

func newSource(ctx context.Context, in config.InputConfig) (core.LineSource, error) {
	if !in.S3.Enabled() {
		source, err := readers.OpenLineReader(in.Path)
		if err != nil {
			return nil, &core.FatalIOError{Op: "open", Err: err}
		}
		return source, nil
	}

	s3cfg := in.S3
	source, err := readers.NewS3LineReader(ctx,
		readers.WithS3Bucket(s3cfg.Bucket),
		readers.WithS3Key(s3cfg.Key),
		readers.WithS3Prefix(s3cfg.Prefix),
		readers.WithS3Suffix(s3cfg.Suffix),
		readers.WithS3Region(s3cfg.Region),
		readers.WithS3Profile(s3cfg.Profile),
		readers.WithS3Endpoint(s3cfg.Endpoint),
		readers.WithS3PathStyle(s3cfg.PathStyle),
	)
	if err != nil {
		return nil, &core.FatalIOError{Op: "open", Err: err}
	}
	return source, nil
}

func describeInput(in config.InputConfig) string {
	switch {
	case in.S3.Enabled() && in.S3.Key != "":
		return fmt.Sprintf("s3://%s/%s", in.S3.Bucket, in.S3.Key)
	case in.S3.Enabled():
		return fmt.Sprintf("s3://%s/%s*%s", in.S3.Bucket, in.S3.Prefix, in.S3.Suffix)
	case in.Path == "" || in.Path == "-":
		return "stdin"
	default:
		return in.Path
	}
}

func logSummary(result *flowetl.Result) {
	s := result.Stats
	log.WithFields(log.Fields{
		"run_id":           result.RunID,
		"lines":            s.Lines,
		"emitted":          s.Emitted,
		"parse_errors":     s.ParseErrors,
		"transform_errors": s.TransformErrors,
		"accepted":         s.Writer.RecordsAccepted,
		"rejected":         s.Writer.RecordsRejected,
		"dropped":          s.Writer.RecordsDropped,
		"flushes":          s.Writer.Flushes,
		"cancelled":        s.Cancelled,
		"duration":         s.Duration.Round(time.Millisecond),
	}).Info("flowetl finished")
}
