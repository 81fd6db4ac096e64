package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/erazemk/zaloga/internal/store")

// withTx runs fn in a transaction and commits when it returns nil. Every
// ledger operation goes through here, so a failure anywhere rolls back all
// bucket changes and movements written so far.
func withTx(ctx context.Context, db *sqlx.DB, name string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	ctx, span := tracer.Start(ctx, "store."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.driver", db.DriverName())))
	defer span.End()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		span.RecordError(err)
		var se *Error
		if !errors.As(err, &se) {
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("committing %s: %w", name, err)
	}
	return nil
}

// forUpdate is appended to row reads that precede a write and locks the rows
// of the table aliased as alias. SQLite already holds the write lock from
// BEGIN IMMEDIATE.
func forUpdate(q sqlx.ExtContext, alias string) string {
	if q.DriverName() == "pgx" {
		return " FOR UPDATE OF " + alias
	}
	return ""
}

func get(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
}

func sel(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

func exec(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, q.Rebind(query), args...)
}

// insert runs an INSERT and returns the new row's id.
func insert(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	var id int64
	err := get(ctx, q, &id, query+" RETURNING id", args...)
	return id, err
}

// selIn expands a single IN (?) placeholder for ids.
func selIn(ctx context.Context, q sqlx.ExtContext, dest any, query string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(query, ids)
	if err != nil {
		return err
	}
	return sel(ctx, q, dest, query, args...)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches the constraint errors of both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}

func now() time.Time {
	return time.Now().UTC()
}

func ptr[T any](v T) *T {
	return &v
}
