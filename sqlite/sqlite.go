// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package sqlite implements durable records of AuthGraph shared sessions with
// a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	authgraph "github.com/fido-device-onboard/go-authgraph"
)

// DB implements shared session persistence.
type DB struct {
	// Log all SQL queries to this optional writer.
	DebugLog io.Writer

	db *sql.DB
}

// New creates a DB. The expected tables must be created and FOREIGN_KEYS must
// be enabled before the database is used for shared session records.
func New(db *sql.DB) *DB { return &DB{db: db} }

// Init ensures all tables are created and pragma are set. It does not
// recognize if tables have been created with invalid schemas.
//
// In most cases, Open should be used, which implicitly calls Init. However,
// Init can be useful for alternative SQLite connections that do not use a
// local file.
func Init(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shared_sessions
			( id BLOB PRIMARY KEY
			, arc_count INTEGER NOT NULL
			)`,
		`CREATE TABLE IF NOT EXISTS shared_session_arcs
			( session BLOB NOT NULL
			, idx INTEGER NOT NULL
			, digest BLOB NOT NULL
			, PRIMARY KEY(session, idx)
			, FOREIGN KEY(session) REFERENCES shared_sessions(id) ON DELETE CASCADE
			)`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, sql := range stmts {
		if _, err := db.Exec(sql); err != nil {
			_ = db.Close()
			if strings.Contains(err.Error(), "file is not a database") {
				return fmt.Errorf("file is not a database: likely due to incorrect or missing database password")
			}
			return fmt.Errorf("error creating tables: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error { return db.db.Close() }

// DB returns the underlying database/sql DB.
func (db *DB) DB() *sql.DB { return db.db }

type debugLogKey struct{}

func (db *DB) debugCtx(parent context.Context) context.Context {
	return context.WithValue(parent, debugLogKey{}, db.DebugLog)
}

func debug(ctx context.Context, format string, a ...any) {
	w, ok := ctx.Value(debugLogKey{}).(io.Writer)
	if !ok || w == nil {
		return
	}
	msg := strings.TrimSpace(fmt.Sprintf(format, a...))
	_, _ = fmt.Fprintln(w, msg)
}

var _ authgraph.SharedSessionState = (*DB)(nil)

// AddSharedSession stores a shared session record, replacing any record with
// the same key.
func (db *DB) AddSharedSession(ctx context.Context, key [authgraph.SHA256Len]byte, arcDigests [][authgraph.SHA256Len]byte) error {
	ctx = db.debugCtx(ctx)

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := remove(ctx, tx, "shared_sessions", map[string]any{"id": key[:]}); err != nil && !errors.Is(err, authgraph.ErrNotFound) {
		return fmt.Errorf("error removing previous record: %w", err)
	}
	if err := insert(ctx, tx, "shared_sessions", map[string]any{
		"id":        key[:],
		"arc_count": len(arcDigests),
	}); err != nil {
		return fmt.Errorf("error adding shared session: %w", err)
	}
	for i, digest := range arcDigests {
		if err := insert(ctx, tx, "shared_session_arcs", map[string]any{
			"session": key[:],
			"idx":     i,
			"digest":  digest[:],
		}); err != nil {
			return fmt.Errorf("error adding arc digest %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// SharedSession retrieves the arc digests of a shared session record.
func (db *DB) SharedSession(ctx context.Context, key [authgraph.SHA256Len]byte) ([][authgraph.SHA256Len]byte, error) {
	ctx = db.debugCtx(ctx)

	var count int
	if err := query(ctx, db.db, "shared_sessions", []string{"arc_count"}, map[string]any{"id": key[:]}, &count); err != nil {
		return nil, err
	}

	const stmt = "SELECT `digest` FROM shared_session_arcs WHERE `session` = ? ORDER BY `idx` ASC"
	debug(ctx, "sqlite: %s\n%x", stmt, key)
	rows, err := db.db.QueryContext(ctx, stmt, key[:])
	if err != nil {
		return nil, fmt.Errorf("error querying arc digests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	digests := make([][authgraph.SHA256Len]byte, 0, count)
	for rows.Next() {
		var digest []byte
		if err := rows.Scan(&digest); err != nil {
			return nil, fmt.Errorf("error scanning arc digest: %w", err)
		}
		if len(digest) != authgraph.SHA256Len {
			return nil, fmt.Errorf("arc digest has invalid length %d", len(digest))
		}
		digests = append(digests, [authgraph.SHA256Len]byte(digest))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error querying arc digests: %w", err)
	}
	if len(digests) != count {
		return nil, fmt.Errorf("shared session has %d arc digests, expected %d", len(digests), count)
	}
	return digests, nil
}

// RemoveSharedSession deletes a shared session record. It returns
// authgraph.ErrNotFound if there was no record for the key.
func (db *DB) RemoveSharedSession(ctx context.Context, key [authgraph.SHA256Len]byte) error {
	return remove(db.debugCtx(ctx), db.db, "shared_sessions", map[string]any{"id": key[:]})
}

// ClearSharedSessions deletes all records. Records are only meaningful while
// the per-boot key which sealed their arcs lives, so a device should clear
// them when it generates a new per-boot key.
func (db *DB) ClearSharedSessions(ctx context.Context) error {
	ctx = db.debugCtx(ctx)
	const stmt = "DELETE FROM shared_sessions"
	debug(ctx, "sqlite: %s", stmt)
	if _, err := db.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("error clearing shared sessions: %w", err)
	}
	return nil
}

// Allows using *sql.DB or *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Allows using *sql.DB or *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insert(ctx context.Context, db execer, table string, kvs map[string]any) error {
	columns := slices.Sorted(maps.Keys(kvs))
	args := make([]any, len(columns))
	for i, name := range columns {
		args[i] = kvs[name]
	}
	markers := slices.Repeat([]string{"?"}, len(columns))

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		"`"+strings.Join(columns, "`, `")+"`",
		strings.Join(markers, ", "),
	)
	debug(ctx, "sqlite: %s\n%+v", query, args)
	_, err := db.ExecContext(ctx, query, args...)
	return err
}

func whereClause(where map[string]any) (string, []any) {
	keys := slices.Sorted(maps.Keys(where))
	clauses := make([]string, len(keys))
	vals := make([]any, len(keys))
	for i, key := range keys {
		clauses[i] = "`" + key + "` = ?"
		vals[i] = where[key]
	}
	return strings.Join(clauses, " AND "), vals
}

func query(ctx context.Context, db querier, table string, columns []string, where map[string]any, into ...any) error {
	if len(columns) != len(into) {
		panic("programming error - query must have the same number of columns and values")
	}

	clauses, whereVals := whereClause(where)
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s`,
		"`"+strings.Join(columns, "`, `")+"`",
		table,
		clauses,
	)
	debug(ctx, "sqlite: %s\n%x", query, whereVals)

	row := db.QueryRowContext(ctx, query, whereVals...)
	if err := row.Scan(into...); errors.Is(err, sql.ErrNoRows) {
		return authgraph.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("error querying DB: %w", err)
	}
	return nil
}

func remove(ctx context.Context, db execer, table string, where map[string]any) error {
	clauses, whereVals := whereClause(where)
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s`, table, clauses)
	debug(ctx, "sqlite: %s\n%x", query, whereVals)

	result, err := db.ExecContext(ctx, query, whereVals...)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n < 1 {
		return authgraph.ErrNotFound
	}
	return nil
}
