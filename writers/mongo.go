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
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aaronlmathis/flowetl/core"
)

// MongoSinkError wraps MongoDB-specific errors with context about the operation.
type MongoSinkError struct {
	Op  string
	Err error
}

func (e *MongoSinkError) Error() string {
	return fmt.Sprintf("mongo sink %s: %v", e.Op, e.Err)
}

func (e *MongoSinkError) Unwrap() error {
	return e.Err
}

// MongoSinkStats holds MongoDB write statistics.
type MongoSinkStats struct {
	Batches          int64
	DocumentsWritten int64
	DocumentsFailed  int64
	WriteDuration    time.Duration
	LastWriteTime    time.Time
}

// MongoSinkOptions configures the MongoDB sink.
type MongoSinkOptions struct {
	URI         string
	Database    string
	Collection  string
	Timeout     time.Duration
	MaxPoolSize uint64
	AppName     string
}

// SinkOptionMongo represents a configuration function for MongoSinkOptions.
type SinkOptionMongo func(*MongoSinkOptions)

// WithMongoURI sets the connection string.
func WithMongoURI(uri string) SinkOptionMongo {
	return func(o *MongoSinkOptions) { o.URI = uri }
}

// WithMongoDatabase sets the target database.
func WithMongoDatabase(database string) SinkOptionMongo {
	return func(o *MongoSinkOptions) { o.Database = database }
}

// WithMongoCollection sets the target collection.
func WithMongoCollection(collection string) SinkOptionMongo {
	return func(o *MongoSinkOptions) { o.Collection = collection }
}

// WithMongoTimeout bounds connecting and every InsertMany call.
func WithMongoTimeout(timeout time.Duration) SinkOptionMongo {
	return func(o *MongoSinkOptions) { o.Timeout = timeout }
}

// documentInserter is the part of *mongo.Collection the sink uses.
type documentInserter interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// MongoSink inserts each batch with one unordered InsertMany.
type MongoSink struct {
	client     *mongo.Client
	collection documentInserter
	opts       MongoSinkOptions
	stats      MongoSinkStats
	mu         sync.Mutex
}

// NewMongoSink connects to MongoDB and verifies the connection.
func NewMongoSink(ctx context.Context, options ...SinkOptionMongo) (*MongoSink, error) {
	opts := MongoSinkOptions{
		URI:         "mongodb://localhost:27017",
		Timeout:     30 * time.Second,
		MaxPoolSize: 10,
		AppName:     "flowetl",
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Database == "" {
		return nil, &core.ConfigError{Path: "sink.mongodb.database", Err: fmt.Errorf("database name is required")}
	}
	if opts.Collection == "" {
		return nil, &core.ConfigError{Path: "sink.mongodb.collection", Err: fmt.Errorf("collection name is required")}
	}

	clientOpts := mongoClientOptions(opts)
	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, &MongoSinkError{Op: "connect", Err: err}
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &MongoSinkError{Op: "ping", Err: err}
	}

	return &MongoSink{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		opts:       opts,
	}, nil
}

func mongoClientOptions(opts MongoSinkOptions) *options.ClientOptions {
	return options.Client().
		ApplyURI(opts.URI).
		SetMaxPoolSize(opts.MaxPoolSize).
		SetAppName(opts.AppName).
		SetConnectTimeout(opts.Timeout).
		SetRetryWrites(true)
}

// Accept inserts the batch. Documents rejected by the server (duplicate keys, validation) are
// reported individually; any other failure fails the whole batch.
func (m *MongoSink) Accept(ctx context.Context, batch core.Batch) (*core.BatchResult, error) {
	docs := make([]interface{}, len(batch))
	for i, record := range batch {
		docs[i] = bson.M(record.Nest())
	}

	insertCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	start := time.Now()
	_, err := m.collection.InsertMany(insertCtx, docs, options.InsertMany().SetOrdered(false))
	elapsed := time.Since(start)

	result, err := mongoBatchResult(err, len(batch))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.WriteDuration += elapsed
	m.stats.LastWriteTime = time.Now()
	if err != nil {
		return nil, &MongoSinkError{Op: "insert_many", Err: err}
	}
	m.stats.Batches++
	m.stats.DocumentsWritten += int64(result.Accepted)
	m.stats.DocumentsFailed += int64(len(result.Rejected))
	return result, nil
}

// mongoBatchResult maps the InsertMany error to the batch outcome.
func mongoBatchResult(err error, size int) (*core.BatchResult, error) {
	if err == nil {
		return &core.BatchResult{Accepted: size}, nil
	}

	var bulkErr mongo.BulkWriteException
	if !errors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil || len(bulkErr.WriteErrors) == 0 {
		return nil, err
	}

	result := &core.BatchResult{}
	for _, we := range bulkErr.WriteErrors {
		result.Rejected = append(result.Rejected, core.RecordFailure{
			Index:  we.Index,
			Status: we.Code,
			Reason: we.Message,
		})
	}
	result.Accepted = size - len(result.Rejected)
	return result, nil
}

// Close disconnects the client.
func (m *MongoSink) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	defer cancel()
	if err := m.client.Disconnect(ctx); err != nil {
		return &MongoSinkError{Op: "disconnect", Err: err}
	}
	return nil
}

// Stats returns a copy of the write statistics.
func (m *MongoSink) Stats() MongoSinkStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
