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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aaronlmathis/flowetl/core"
)

// HTTPSinkError wraps bulk endpoint failures with the operation and, when known, the HTTP status.
type HTTPSinkError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *HTTPSinkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("http sink %s %s [%d]: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("http sink %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *HTTPSinkError) Unwrap() error {
	return e.Err
}

// retryable reports whether another attempt may succeed.
func (e *HTTPSinkError) retryable() bool {
	if e.Op == "request" {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPSinkStats holds statistics about bulk requests.
type HTTPSinkStats struct {
	Batches         int64
	RecordsSent     int64
	RecordsRejected int64
	Requests        int64
	Retries         int64
	FailedBatches   int64
	BytesSent       int64
	RequestDuration time.Duration
}

// HTTPAuth holds the credentials attached to every request. Type is "basic", "bearer" or empty.
type HTTPAuth struct {
	Type     string
	Username string
	Password string
	Token    string
}

// HTTPSinkOptions configures the HTTP bulk sink.
type HTTPSinkOptions struct {
	Timeout         time.Duration
	RetryAttempts   int
	Backoff         BackoffStrategy
	Auth            HTTPAuth
	Headers         map[string]string
	UserAgent       string
	MaxResponseSize int64
	Client          *http.Client
	Logger          *log.Entry
}

// SinkOptionHTTP represents a configuration function for HTTPSinkOptions.
type SinkOptionHTTP func(*HTTPSinkOptions)

// WithHTTPTimeout sets the timeout of a single request.
func WithHTTPTimeout(timeout time.Duration) SinkOptionHTTP {
	return func(o *HTTPSinkOptions) { o.Timeout = timeout }
}

// WithHTTPRetries sets how many times a failed request is retried and the base backoff delay.
func WithHTTPRetries(attempts int, delay time.Duration) SinkOptionHTTP {
	return func(o *HTTPSinkOptions) {
		o.RetryAttempts = attempts
		o.Backoff = &ExponentialBackoff{BaseDelay: delay, MaxDelay: 30 * time.Second}
	}
}

// WithHTTPBasicAuth sets basic authentication.
func WithHTTPBasicAuth(username, password string) SinkOptionHTTP {
	return func(o *HTTPSinkOptions) {
		o.Auth = HTTPAuth{Type: "basic", Username: username, Password: password}
	}
}

// WithHTTPBearerToken sets bearer token authentication.
func WithHTTPBearerToken(token string) SinkOptionHTTP {
	return func(o *HTTPSinkOptions) {
		o.Auth = HTTPAuth{Type: "bearer", Token: token}
	}
}

// WithHTTPHeaders adds custom headers.
func WithHTTPHeaders(headers map[string]string) SinkOptionHTTP {
	return func(o *HTTPSinkOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}

// WithHTTPClient sets a custom HTTP client. Its Timeout overrides WithHTTPTimeout.
func WithHTTPClient(client *http.Client) SinkOptionHTTP {
	return func(o *HTTPSinkOptions) { o.Client = client }
}

// WithHTTPLogger sets the log entry used for request logging.
func WithHTTPLogger(logger *log.Entry) SinkOptionHTTP {
	return func(o *HTTPSinkOptions) { o.Logger = logger }
}

// HTTPSink posts every batch as one request body to a bulk endpoint.
type HTTPSink struct {
	url    string
	codec  BulkCodec
	client *http.Client
	opts   HTTPSinkOptions
	stats  HTTPSinkStats
	mu     sync.Mutex
}

// NewHTTPSink creates a sink posting to url with the given wire format.
func NewHTTPSink(url string, codec BulkCodec, options ...SinkOptionHTTP) (*HTTPSink, error) {
	opts := HTTPSinkOptions{
		Timeout:         30 * time.Second,
		RetryAttempts:   2,
		Backoff:         &ExponentialBackoff{BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second},
		UserAgent:       "flowetl/1.0",
		MaxResponseSize: 64 * 1024 * 1024,
	}
	for _, option := range options {
		option(&opts)
	}

	if url == "" {
		return nil, &core.ConfigError{Path: "sink.url", Err: fmt.Errorf("url is required")}
	}
	if codec == nil {
		return nil, &HTTPSinkError{Op: "validate", URL: url, Err: fmt.Errorf("codec is required")}
	}
	if opts.RetryAttempts < 0 {
		return nil, &core.ConfigError{Path: "sink.retries", Err: fmt.Errorf("must not be negative, got %d", opts.RetryAttempts)}
	}
	switch opts.Auth.Type {
	case "", "basic", "bearer":
	default:
		return nil, &core.ConfigError{Path: "sink.auth.type", Err: fmt.Errorf("unsupported auth type %q", opts.Auth.Type)}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPSink{url: url, codec: codec, client: client, opts: opts}, nil
}

// Accept encodes the batch and posts it. Transport errors, 429 and 5xx responses are retried
// with backoff; any other non-2xx response fails the batch as a whole. Records JSON cannot
// encode are rejected one by one and left out of the request.
func (s *HTTPSink) Accept(ctx context.Context, batch core.Batch) (*core.BatchResult, error) {
	send, positions, unencodable := splitEncodable(batch)
	if len(send) == 0 {
		s.mu.Lock()
		s.stats.RecordsRejected += int64(len(unencodable))
		s.mu.Unlock()
		return &core.BatchResult{Rejected: unencodable}, nil
	}

	body, err := s.codec.Encode(send)
	if err != nil {
		s.recordFailure()
		return nil, &HTTPSinkError{Op: "encode", URL: s.url, Err: err}
	}

	start := time.Now()
	data, err := s.postWithRetry(ctx, body)
	s.mu.Lock()
	s.stats.RequestDuration += time.Since(start)
	s.mu.Unlock()
	if err != nil {
		s.recordFailure()
		return nil, err
	}

	result, err := s.codec.Decode(data, len(send))
	if err != nil {
		s.recordFailure()
		return nil, &HTTPSinkError{Op: "decode", URL: s.url, Err: err}
	}
	result = mergeRejected(result, positions, unencodable)

	s.mu.Lock()
	s.stats.Batches++
	s.stats.RecordsSent += int64(len(send))
	s.stats.RecordsRejected += int64(len(result.Rejected))
	s.mu.Unlock()
	return result, nil
}

func (s *HTTPSink) recordFailure() {
	s.mu.Lock()
	s.stats.FailedBatches++
	s.mu.Unlock()
}

func (s *HTTPSink) postWithRetry(ctx context.Context, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := s.opts.Backoff.Delay(attempt)
			s.opts.Logger.WithError(lastErr).WithField("attempt", attempt).WithField("delay", delay).Warn("retrying bulk request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &HTTPSinkError{Op: "request", URL: s.url, Err: ctx.Err()}
			}
			s.mu.Lock()
			s.stats.Retries++
			s.mu.Unlock()
		}

		data, err := s.post(ctx, body)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if httpErr, ok := err.(*HTTPSinkError); ok && !httpErr.retryable() {
			break
		}
	}
	return nil, lastErr
}

func (s *HTTPSink) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, &HTTPSinkError{Op: "create_request", URL: s.url, Err: err}
	}
	req.Header.Set("Content-Type", s.codec.ContentType())
	req.Header.Set("User-Agent", s.opts.UserAgent)
	for k, v := range s.opts.Headers {
		req.Header.Set(k, v)
	}
	switch s.opts.Auth.Type {
	case "basic":
		req.SetBasicAuth(s.opts.Auth.Username, s.opts.Auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+s.opts.Auth.Token)
	}

	s.mu.Lock()
	s.stats.Requests++
	s.stats.BytesSent += int64(len(body))
	s.mu.Unlock()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &HTTPSinkError{Op: "request", URL: s.url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxResponseSize))
	if err != nil {
		return nil, &HTTPSinkError{Op: "read_response", URL: s.url, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPSinkError{
			Op:         "status_check",
			URL:        s.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", truncateBody(data)),
		}
	}
	return data, nil
}

func truncateBody(data []byte) string {
	const max = 256
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}

// Close releases idle connections.
func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Stats returns a copy of the request statistics.
func (s *HTTPSink) Stats() HTTPSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
