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

package readers

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Package readers provides implementations of core.LineSource and core.Parser.
//
// This file implements a line source that streams the lines of one or more S3 objects,
// e.g. flow dumps that a collector uploads periodically.

// S3ReaderError provides structured error information for S3 reader operations
type S3ReaderError struct {
	Op  string // Operation that failed (e.g., "list_objects", "get_object", "read")
	Err error  // Underlying error
}

func (e *S3ReaderError) Error() string {
	return fmt.Sprintf("s3 reader %s: %v", e.Op, e.Err)
}

func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// S3ReaderStats holds statistics about the S3 reader's performance
type S3ReaderStats struct {
	ObjectsListed  int64         // Total objects discovered
	ObjectsRead    int64         // Total objects opened
	LinesRead      int64         // Total lines read across all objects
	ReadDuration   time.Duration // Total time spent reading
	CurrentObject  string        // Key of the object being read
	ProcessedFiles []string      // Keys fully read
}

// S3ReaderOptions configures the S3 line reader
type S3ReaderOptions struct {
	Bucket         string
	Key            string // single object; when empty every object under Prefix is read
	Prefix         string
	Suffix         string
	Region         string
	Profile        string
	Credentials    aws.Credentials
	EndpointURL    string
	ForcePathStyle bool
	MaxKeys        int32
	LineOptions    []ReaderOptionLines
}

// ReaderOptionS3 is a functional option for S3ReaderOptions
type ReaderOptionS3 func(*S3ReaderOptions)

func WithS3Bucket(bucket string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Bucket = bucket }
}

func WithS3Key(key string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Key = key }
}

func WithS3Prefix(prefix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Prefix = prefix }
}

func WithS3Suffix(suffix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Suffix = suffix }
}

func WithS3Region(region string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Region = region }
}

func WithS3Profile(profile string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Profile = profile }
}

func WithS3Credentials(creds aws.Credentials) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Credentials = creds }
}

func WithS3Endpoint(endpoint string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.EndpointURL = endpoint }
}

func WithS3PathStyle(pathStyle bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.ForcePathStyle = pathStyle }
}

func WithS3LineOptions(options ...ReaderOptionLines) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.LineOptions = append(opts.LineOptions, options...) }
}

// s3API is the subset of the S3 client used by the reader.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3LineReader implements core.LineSource over the lines of S3 objects, read in key order.
type S3LineReader struct {
	client  s3API
	keys    []string
	next    int
	current *LineReader
	stats   S3ReaderStats
	opts    S3ReaderOptions
	mu      sync.Mutex
}

// NewS3LineReader creates a new S3 line reader with the specified options
func NewS3LineReader(ctx context.Context, options ...ReaderOptionS3) (*S3LineReader, error) {
	opts := S3ReaderOptions{MaxKeys: 1000}
	for _, option := range options {
		option(&opts)
	}

	if opts.Bucket == "" {
		return nil, &S3ReaderError{Op: "validate_options", Err: fmt.Errorf("bucket is required")}
	}

	cfg, err := createAWSConfig(ctx, opts.Region, opts.Profile, opts.Credentials)
	if err != nil {
		return nil, &S3ReaderError{Op: "create_aws_config", Err: err}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return newS3LineReader(ctx, client, opts)
}

func newS3LineReader(ctx context.Context, client s3API, opts S3ReaderOptions) (*S3LineReader, error) {
	reader := &S3LineReader{client: client, opts: opts}
	if opts.Key != "" {
		reader.keys = []string{opts.Key}
	} else if err := reader.listObjects(ctx); err != nil {
		return nil, &S3ReaderError{Op: "list_objects", Err: err}
	}
	reader.stats.ObjectsListed = int64(len(reader.keys))
	return reader, nil
}

// ReadLine implements the core.LineSource interface
func (s *S3LineReader) ReadLine(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { s.stats.ReadDuration += time.Since(start) }()

	for {
		if s.current == nil {
			if s.next >= len(s.keys) {
				return "", io.EOF
			}
			if err := s.openNextObject(ctx); err != nil {
				return "", err
			}
		}

		line, err := s.current.ReadLine(ctx)
		if err == io.EOF {
			s.stats.ProcessedFiles = append(s.stats.ProcessedFiles, s.stats.CurrentObject)
			s.closeCurrent()
			continue
		}
		if err != nil {
			return "", &S3ReaderError{Op: "read", Err: err}
		}
		s.stats.LinesRead++
		return line, nil
	}
}

// Close implements the core.LineSource interface
func (s *S3LineReader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCurrent()
}

// Stats returns S3 reader performance statistics
func (s *S3LineReader) Stats() S3ReaderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.ProcessedFiles = append([]string(nil), s.stats.ProcessedFiles...)
	return stats
}

// createAWSConfig creates AWS configuration from options
func createAWSConfig(ctx context.Context, region, profile string, creds aws.Credentials) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if region != "" {
		configOpts = append(configOpts, config.WithRegion(region))
	}
	if profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	// Override with explicit credentials if provided
	if creds.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				creds.AccessKeyID,
				creds.SecretAccessKey,
				creds.SessionToken,
			),
		)
	}

	return cfg, nil
}

// listObjects retrieves the keys under the configured prefix, filtered by suffix and sorted
func (s *S3LineReader) listObjects(ctx context.Context) error {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.opts.Bucket),
		MaxKeys: aws.Int32(s.opts.MaxKeys),
	}
	if s.opts.Prefix != "" {
		input.Prefix = aws.String(s.opts.Prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.opts.Suffix != "" && !strings.HasSuffix(key, s.opts.Suffix) {
				continue
			}
			s.keys = append(s.keys, key)
		}
	}

	sort.Strings(s.keys)
	return nil
}

// openNextObject opens the next S3 object for reading
func (s *S3LineReader) openNextObject(ctx context.Context) error {
	key := s.keys[s.next]
	s.stats.CurrentObject = key

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &S3ReaderError{Op: "get_object", Err: fmt.Errorf("failed to get object %s: %w", key, err)}
	}

	s.current = NewLineReader(result.Body, result.Body, s.opts.LineOptions...)
	s.stats.ObjectsRead++
	return nil
}

// closeCurrent closes the current object body and advances to the next key
func (s *S3LineReader) closeCurrent() error {
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	s.next++
	return err
}
