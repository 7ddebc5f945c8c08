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

package writers

import (
	"context"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"

	"github.com/aaronlmathis/flowetl/config"
	"github.com/aaronlmathis/flowetl/core"
)

// NewSink builds the sink selected by cfg.Type. stdout receives the output of the print sink.
func NewSink(ctx context.Context, cfg config.SinkConfig, stdout io.Writer) (core.BatchSink, error) {
	logger := log.WithField("sink", cfg.Type)

	switch cfg.Type {
	case config.SinkElasticsearch:
		url := strings.TrimRight(cfg.URL, "/") + "/_bulk"
		return asSink[*HTTPSink](NewHTTPSink(url, NewElasticsearchCodec(cfg.Index), httpOptions(cfg, logger)...))

	case config.SinkNDJSON:
		return asSink[*HTTPSink](NewHTTPSink(cfg.URL, NDJSONCodec{}, httpOptions(cfg, logger)...))

	case config.SinkPrint:
		if cfg.PrintCodec == config.SinkElasticsearch {
			return NewPrintSink(stdout, WithPrintCodec(NewElasticsearchCodec(cfg.Index))), nil
		}
		return NewPrintSink(stdout), nil

	case config.SinkMongoDB:
		return asSink[*MongoSink](NewMongoSink(ctx,
			WithMongoURI(cfg.MongoDB.URI),
			WithMongoDatabase(cfg.MongoDB.Database),
			WithMongoCollection(cfg.MongoDB.Collection),
			WithMongoTimeout(cfg.Timeout),
		))

	case config.SinkPostgres:
		return asSink[*PostgresSink](NewPostgresSink(ctx,
			WithPostgresDSN(cfg.Postgres.DSN),
			WithPostgresTable(cfg.Postgres.Table),
			WithPostgresCreateTable(cfg.Postgres.CreateTable),
			WithPostgresQueryTimeout(cfg.Timeout),
		))

	case config.SinkParquet:
		codec, err := ParquetCompression(cfg.Parquet.Compression)
		if err != nil {
			return nil, err
		}
		options := []SinkOptionParquet{
			WithParquetCompression(codec),
			WithParquetMetadata(map[string]string{"writer": "flowetl"}),
		}
		if cfg.Parquet.S3Bucket != "" {
			uploader, err := newS3Uploader(ctx, cfg.Parquet.S3Region)
			if err != nil {
				return nil, err
			}
			options = append(options, WithParquetS3Upload(uploader, cfg.Parquet.S3Bucket, cfg.Parquet.S3Key))
		}
		return asSink[*ParquetSink](NewParquetSink(cfg.Parquet.Path, options...))

	case config.SinkCSV:
		options := []SinkOptionCSV{
			WithCSVComma(cfg.CSV.Delimiter),
			WithCSVHeader(cfg.CSV.Header),
		}
		if len(cfg.CSV.Columns) > 0 {
			options = append(options, WithCSVColumns(cfg.CSV.Columns))
		}
		return asSink[*CSVSink](CreateCSVSink(cfg.CSV.Path, options...))

	default:
		return nil, &core.ConfigError{Path: "sink.type", Err: fmt.Errorf("unknown sink type %q", cfg.Type)}
	}
}

// asSink keeps a failed constructor from yielding a non-nil interface holding a nil pointer.
func asSink[S core.BatchSink](sink S, err error) (core.BatchSink, error) {
	if err != nil {
		return nil, err
	}
	return sink, nil
}

func httpOptions(cfg config.SinkConfig, logger *log.Entry) []SinkOptionHTTP {
	options := []SinkOptionHTTP{
		WithHTTPTimeout(cfg.Timeout),
		WithHTTPRetries(cfg.Retries, cfg.RetryDelay),
		WithHTTPLogger(logger),
	}
	switch cfg.Auth.Type {
	case "basic":
		options = append(options, WithHTTPBasicAuth(cfg.Auth.Username, cfg.Auth.Password))
	case "bearer":
		options = append(options, WithHTTPBearerToken(cfg.Auth.Token))
	}
	return options
}

func newS3Uploader(ctx context.Context, region string) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &ParquetSinkError{Op: "aws_config", Err: err}
	}
	return s3.NewFromConfig(awsCfg), nil
}
