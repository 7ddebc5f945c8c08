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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"

	"github.com/aaronlmathis/flowetl/core"
)

// ParquetSinkError wraps Parquet-specific errors with context about the operation.
type ParquetSinkError struct {
	Op  string
	Err error
}

func (e *ParquetSinkError) Error() string {
	return fmt.Sprintf("parquet sink %s: %v", e.Op, e.Err)
}

func (e *ParquetSinkError) Unwrap() error {
	return e.Err
}

// ParquetSinkStats holds statistics about the Parquet sink.
type ParquetSinkStats struct {
	RecordsWritten  int64
	RecordsRejected int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
	Uploaded        bool
}

// objectUploader is the part of *s3.Client used to archive the finished file.
type objectUploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ParquetSinkOptions configures the Parquet sink.
type ParquetSinkOptions struct {
	Compression  compress.Compression
	RowGroupSize int64
	FieldOrder   []string
	Metadata     map[string]string
	S3Bucket     string
	S3Key        string
	Uploader     objectUploader
	Logger       *log.Entry
}

// SinkOptionParquet represents a configuration function for ParquetSinkOptions.
type SinkOptionParquet func(*ParquetSinkOptions)

// WithParquetCompression sets the Parquet compression codec.
func WithParquetCompression(codec compress.Compression) SinkOptionParquet {
	return func(o *ParquetSinkOptions) { o.Compression = codec }
}

// WithParquetRowGroupSize sets the maximum rows per row group.
func WithParquetRowGroupSize(size int64) SinkOptionParquet {
	return func(o *ParquetSinkOptions) { o.RowGroupSize = size }
}

// WithParquetFieldOrder fixes the column set and order instead of inferring it from the first record.
func WithParquetFieldOrder(fields []string) SinkOptionParquet {
	return func(o *ParquetSinkOptions) { o.FieldOrder = append([]string(nil), fields...) }
}

// WithParquetMetadata adds key/value metadata to the Arrow schema.
func WithParquetMetadata(metadata map[string]string) SinkOptionParquet {
	return func(o *ParquetSinkOptions) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			o.Metadata[k] = v
		}
	}
}

// WithParquetS3Upload uploads the finished file to bucket/key on Close.
func WithParquetS3Upload(uploader objectUploader, bucket, key string) SinkOptionParquet {
	return func(o *ParquetSinkOptions) {
		o.Uploader = uploader
		o.S3Bucket = bucket
		o.S3Key = key
	}
}

// ParquetCompression maps a configuration name to a codec.
func ParquetCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	case "lz4":
		return compress.Codecs.Lz4, nil
	default:
		return compress.Codecs.Uncompressed, &core.ConfigError{Path: "sink.parquet.compression", Err: fmt.Errorf("unknown codec %q", name)}
	}
}

// ParquetSink writes each batch as one Arrow record into a Parquet file.
// The schema is inferred from the first record unless a field order is configured.
type ParquetSink struct {
	path      string
	file      *os.File
	writer    *pqarrow.FileWriter
	schema    *arrow.Schema
	columns   map[string]int
	allocator memory.Allocator
	opts      ParquetSinkOptions
	stats     ParquetSinkStats
	closed    bool
	mu        sync.Mutex
}

// NewParquetSink creates a sink writing to path. The file is created on the first batch.
func NewParquetSink(path string, options ...SinkOptionParquet) (*ParquetSink, error) {
	opts := ParquetSinkOptions{
		Compression:  compress.Codecs.Snappy,
		RowGroupSize: 64 * 1024,
	}
	for _, option := range options {
		option(&opts)
	}
	if path == "" {
		return nil, &core.ConfigError{Path: "sink.parquet.path", Err: fmt.Errorf("path is required")}
	}
	if opts.Uploader != nil && (opts.S3Bucket == "" || opts.S3Key == "") {
		return nil, &core.ConfigError{Path: "sink.parquet.s3_bucket", Err: fmt.Errorf("upload needs both bucket and key")}
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("sink", "parquet")
	}

	return &ParquetSink{
		path:      path,
		allocator: memory.NewGoAllocator(),
		opts:      opts,
		stats:     ParquetSinkStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Accept appends the records that fit the schema as one Arrow record.
func (p *ParquetSink) Accept(ctx context.Context, batch core.Batch) (*core.BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, &ParquetSinkError{Op: "write", Err: fmt.Errorf("sink is closed")}
	}
	if len(batch) == 0 {
		return &core.BatchResult{}, nil
	}
	if p.writer == nil {
		if err := p.open(batch[0]); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result := &core.BatchResult{}
	accepted := make(core.Batch, 0, len(batch))
	for i, record := range batch {
		if err := p.validateRecord(record); err != nil {
			result.Rejected = append(result.Rejected, core.RecordFailure{Index: i, Reason: err.Error()})
			continue
		}
		accepted = append(accepted, record)
	}

	if len(accepted) > 0 {
		rec := p.buildRecord(accepted)
		defer rec.Release()
		if err := p.writer.Write(rec); err != nil {
			return nil, &ParquetSinkError{Op: "write_batch", Err: err}
		}
	}
	result.Accepted = len(accepted)

	p.stats.RecordsWritten += int64(len(accepted))
	p.stats.RecordsRejected += int64(len(result.Rejected))
	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	return result, nil
}

// open creates the file and writer for the schema derived from first.
func (p *ParquetSink) open(first core.Record) error {
	fieldNames := p.opts.FieldOrder
	if len(fieldNames) == 0 {
		fieldNames = first.Keys()
	}

	fields := make([]arrow.Field, len(fieldNames))
	p.columns = make(map[string]int, len(fieldNames))
	for i, name := range fieldNames {
		fields[i] = arrow.Field{Name: name, Type: inferArrowType(first[name]), Nullable: true}
		p.columns[name] = i
	}

	var metadata *arrow.Metadata
	if len(p.opts.Metadata) > 0 {
		keys := make([]string, 0, len(p.opts.Metadata))
		for k := range p.opts.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]string, len(keys))
		for i, k := range keys {
			values[i] = p.opts.Metadata[k]
		}
		md := arrow.NewMetadata(keys, values)
		metadata = &md
	}
	p.schema = arrow.NewSchema(fields, metadata)

	if dir := filepath.Dir(p.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &ParquetSinkError{Op: "create_directory", Err: err}
		}
	}
	file, err := os.Create(p.path)
	if err != nil {
		return &ParquetSinkError{Op: "open_file", Err: err}
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(p.schema, file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		file.Close()
		return &ParquetSinkError{Op: "create_writer", Err: err}
	}

	p.file = file
	p.writer = writer
	p.opts.Logger.WithField("path", p.path).WithField("columns", len(fields)).Debug("parquet file opened")
	return nil
}

// inferArrowType maps a record value to a column type. Null and missing values become strings.
func inferArrowType(value interface{}) arrow.DataType {
	switch value.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int64, int:
		return arrow.PrimitiveTypes.Int64
	case float64:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

// validateRecord checks every field of the record against the schema.
func (p *ParquetSink) validateRecord(record core.Record) error {
	for _, name := range record.Keys() {
		idx, ok := p.columns[name]
		if !ok {
			return fmt.Errorf("field %q is not in the file schema", name)
		}
		value := record[name]
		if value == nil {
			continue
		}
		if !fitsType(p.schema.Field(idx).Type, value) {
			return fmt.Errorf("field %q: %T does not fit column type %s", name, value, p.schema.Field(idx).Type)
		}
	}
	return nil
}

func fitsType(dataType arrow.DataType, value interface{}) bool {
	switch dataType.ID() {
	case arrow.BOOL:
		_, ok := value.(bool)
		return ok
	case arrow.INT64:
		switch value.(type) {
		case int64, int:
			return true
		}
	case arrow.FLOAT64:
		switch value.(type) {
		case float64, int64, int:
			return true
		}
	case arrow.STRING:
		_, ok := value.(string)
		return ok
	}
	return false
}

// buildRecord converts validated records into an Arrow record. The caller releases it.
func (p *ParquetSink) buildRecord(records core.Batch) arrow.Record {
	fields := p.schema.Fields()
	builders := make([]array.Builder, len(fields))
	for i, f := range fields {
		builders[i] = array.NewBuilder(p.allocator, f.Type)
		defer builders[i].Release()
	}

	for _, record := range records {
		for i, f := range fields {
			value, ok := record[f.Name]
			if !ok || value == nil {
				builders[i].AppendNull()
				p.stats.NullValueCounts[f.Name]++
				continue
			}
			appendValue(builders[i], value)
		}
	}

	arrays := make([]arrow.Array, len(builders))
	for i, b := range builders {
		arrays[i] = b.NewArray()
		defer arrays[i].Release()
	}
	return array.NewRecord(p.schema, arrays, int64(len(records)))
}

func appendValue(builder array.Builder, value interface{}) {
	switch b := builder.(type) {
	case *array.BooleanBuilder:
		b.Append(value.(bool))
	case *array.Int64Builder:
		switch v := value.(type) {
		case int64:
			b.Append(v)
		case int:
			b.Append(int64(v))
		}
	case *array.Float64Builder:
		switch v := value.(type) {
		case float64:
			b.Append(v)
		case int64:
			b.Append(float64(v))
		case int:
			b.Append(float64(v))
		}
	case *array.StringBuilder:
		b.Append(value.(string))
	default:
		builder.AppendNull()
	}
}

// Close finishes the Parquet file and, when configured, uploads it to S3.
func (p *ParquetSink) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.writer == nil {
		p.opts.Logger.Info("no records written, parquet file not created")
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return &ParquetSinkError{Op: "close_writer", Err: err}
	}
	if err := p.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return &ParquetSinkError{Op: "close_file", Err: err}
	}
	p.writer = nil
	p.file = nil

	if p.opts.Uploader != nil {
		return p.upload()
	}
	return nil
}

func (p *ParquetSink) upload() error {
	f, err := os.Open(p.path)
	if err != nil {
		return &ParquetSinkError{Op: "upload", Err: err}
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	_, err = p.opts.Uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &p.opts.S3Bucket,
		Key:         &p.opts.S3Key,
		Body:        f,
		ContentType: stringPtr("application/vnd.apache.parquet"),
	})
	if err != nil {
		return &ParquetSinkError{Op: "upload", Err: err}
	}
	p.stats.Uploaded = true
	p.opts.Logger.WithField("bucket", p.opts.S3Bucket).WithField("key", p.opts.S3Key).Info("parquet file uploaded")
	return nil
}

func stringPtr(s string) *string {
	return &s
}

// Stats returns a copy of the sink statistics.
func (p *ParquetSink) Stats() ParquetSinkStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.stats
	stats.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}
