/**
 * @description
 * This file defines the PostgreSQL-backed data access layer for the pledge-service.
 * One repository type serves both pledges and their per-slot compliance checks; the
 * service layer depends on it only through narrow interfaces.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 */
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrPledgeNotFound = errors.New("pledge not found")
	// ErrCheckAlreadyRecorded signals that the slot already has a compliance record.
	// It is a normal deduplication outcome, not a storage failure.
	ErrCheckAlreadyRecorded = errors.New("pledge check already recorded for slot")
)

const uniqueViolationCode = "23505"

// DBTX is the subset of pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements pledge and check persistence on PostgreSQL.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
