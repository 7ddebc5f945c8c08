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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/aaronlmathis/flowetl/core"
)

// PostgresSinkError wraps PostgreSQL-specific errors with context about the operation.
type PostgresSinkError struct {
	Op  string
	Err error
}

func (e *PostgresSinkError) Error() string {
	return fmt.Sprintf("postgres sink %s: %v", e.Op, e.Err)
}

func (e *PostgresSinkError) Unwrap() error {
	return e.Err
}

// PostgresSinkStats holds PostgreSQL write statistics.
type PostgresSinkStats struct {
	RowsWritten      int64
	RowsRejected     int64
	TransactionCount int64
	RollbackCount    int64
	WriteDuration    time.Duration
	ConnectionTime   time.Duration
	LastWriteTime    time.Time
}

// PostgresSinkOptions configures the PostgreSQL sink.
type PostgresSinkOptions struct {
	DSN             string
	TableName       string
	CreateTable     bool
	QueryTimeout    time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SinkOptionPostgres represents a configuration function for PostgresSinkOptions.
type SinkOptionPostgres func(*PostgresSinkOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) SinkOptionPostgres {
	return func(o *PostgresSinkOptions) { o.DSN = dsn }
}

// WithPostgresTable sets the target table name.
func WithPostgresTable(table string) SinkOptionPostgres {
	return func(o *PostgresSinkOptions) { o.TableName = table }
}

// WithPostgresCreateTable creates the table on connect when it does not exist.
func WithPostgresCreateTable(create bool) SinkOptionPostgres {
	return func(o *PostgresSinkOptions) { o.CreateTable = create }
}

// WithPostgresQueryTimeout bounds every batch transaction.
func WithPostgresQueryTimeout(timeout time.Duration) SinkOptionPostgres {
	return func(o *PostgresSinkOptions) { o.QueryTimeout = timeout }
}

// PostgresSink stores each record as one jsonb row. A batch is one transaction; every row is
// inserted under a savepoint so a failing row is rolled back alone and reported as rejected.
type PostgresSink struct {
	db     *sql.DB
	opts   PostgresSinkOptions
	table  string
	insert string
	stats  PostgresSinkStats
	mu     sync.Mutex
}

// NewPostgresSink opens the connection pool, verifies it and optionally creates the table.
func NewPostgresSink(ctx context.Context, options ...SinkOptionPostgres) (*PostgresSink, error) {
	opts := PostgresSinkOptions{
		TableName:       "flows",
		QueryTimeout:    30 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.DSN == "" {
		return nil, &core.ConfigError{Path: "sink.postgres.dsn", Err: fmt.Errorf("dsn is required")}
	}
	if opts.TableName == "" {
		return nil, &core.ConfigError{Path: "sink.postgres.table", Err: fmt.Errorf("table name is required")}
	}

	start := time.Now()
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, &PostgresSinkError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &PostgresSinkError{Op: "ping", Err: err}
	}

	sink := newPostgresSink(db, opts)
	sink.stats.ConnectionTime = time.Since(start)

	if opts.CreateTable {
		if _, err := db.ExecContext(pingCtx, sink.createTableQuery()); err != nil {
			db.Close()
			return nil, &PostgresSinkError{Op: "create_table", Err: err}
		}
	}
	return sink, nil
}

func newPostgresSink(db *sql.DB, opts PostgresSinkOptions) *PostgresSink {
	table := pq.QuoteIdentifier(opts.TableName)
	return &PostgresSink{
		db:     db,
		opts:   opts,
		table:  table,
		insert: fmt.Sprintf("INSERT INTO %s (doc) VALUES ($1)", table),
	}
}

func (w *PostgresSink) createTableQuery() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	doc JSONB NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, w.table)
}

// Accept writes the batch in one transaction. Failure to begin or commit fails the whole batch.
func (w *PostgresSink) Accept(ctx context.Context, batch core.Batch) (*core.BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.QueryTimeout)
	defer cancel()

	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PostgresSinkError{Op: "begin", Err: err}
	}

	result, err := w.insertRows(ctx, tx, batch)
	if err != nil {
		_ = tx.Rollback()
		w.mu.Lock()
		w.stats.RollbackCount++
		w.mu.Unlock()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, &PostgresSinkError{Op: "commit", Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.TransactionCount++
	w.stats.RowsWritten += int64(result.Accepted)
	w.stats.RowsRejected += int64(len(result.Rejected))
	w.stats.WriteDuration += time.Since(start)
	w.stats.LastWriteTime = time.Now()
	return result, nil
}

func (w *PostgresSink) insertRows(ctx context.Context, tx *sql.Tx, batch core.Batch) (*core.BatchResult, error) {
	stmt, err := tx.PrepareContext(ctx, w.insert)
	if err != nil {
		return nil, &PostgresSinkError{Op: "prepare", Err: err}
	}
	defer stmt.Close()

	result := &core.BatchResult{}
	for i, record := range batch {
		doc, err := json.Marshal(record.Nest())
		if err != nil {
			result.Rejected = append(result.Rejected, core.RecordFailure{Index: i, Reason: err.Error()})
			continue
		}

		if _, err := tx.ExecContext(ctx, "SAVEPOINT flowetl_row"); err != nil {
			return nil, &PostgresSinkError{Op: "savepoint", Err: err}
		}
		if _, err := stmt.ExecContext(ctx, string(doc)); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT flowetl_row"); rbErr != nil {
				return nil, &PostgresSinkError{Op: "rollback_savepoint", Err: rbErr}
			}
			result.Rejected = append(result.Rejected, rowFailure(i, err))
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT flowetl_row"); err != nil {
			return nil, &PostgresSinkError{Op: "release_savepoint", Err: err}
		}
		result.Accepted++
	}
	return result, nil
}

// rowFailure describes a rejected row, using the SQLSTATE class when the server supplied one.
func rowFailure(index int, err error) core.RecordFailure {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return core.RecordFailure{Index: index, Reason: fmt.Sprintf("%s (%s): %s", pqErr.Code.Name(), pqErr.Code, pqErr.Message)}
	}
	return core.RecordFailure{Index: index, Reason: err.Error()}
}

// Close closes the connection pool.
func (w *PostgresSink) Close() error {
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Stats returns a copy of the write statistics.
func (w *PostgresSink) Stats() PostgresSinkStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
