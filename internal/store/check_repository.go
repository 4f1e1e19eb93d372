package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/d9rick/GeoPledge/internal/domain"
)

const checkColumns = `id, pledge_id, scheduled_for, status, user_latitude, user_longitude, checked_at`

// InsertCheckIfAbsent stores c unless its pledge already has a record for the same
// scheduled slot, in which case ErrCheckAlreadyRecorded is returned. The check and
// the insert are a single statement guarded by the (pledge_id, scheduled_for)
// unique constraint, so concurrent fixes for one slot cannot both succeed.
func (r *PostgresRepository) InsertCheckIfAbsent(ctx context.Context, c *domain.PledgeCheck) error {
	query := `
        INSERT INTO pledge_checks (` + checkColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (pledge_id, scheduled_for) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query,
		c.ID,
		c.PledgeID,
		c.ScheduledFor,
		c.Status.String(),
		c.UserLatitude,
		c.UserLongitude,
		c.CheckedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCheckAlreadyRecorded
		}
		return fmt.Errorf("insert pledge check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCheckAlreadyRecorded
	}
	return nil
}

// FindLatestCheck returns the most recently evaluated check for a pledge, or nil
// when the pledge has never been checked.
func (r *PostgresRepository) FindLatestCheck(ctx context.Context, pledgeID uuid.UUID) (*domain.PledgeCheck, error) {
	query := `
        SELECT ` + checkColumns + `
        FROM pledge_checks
        WHERE pledge_id = $1
        ORDER BY checked_at DESC
        LIMIT 1
    `
	c, err := scanCheck(r.db.QueryRow(ctx, query, pledgeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find latest pledge check: %w", err)
	}
	return c, nil
}

// ListChecks returns up to limit checks for a pledge, newest first.
func (r *PostgresRepository) ListChecks(ctx context.Context, pledgeID uuid.UUID, limit int) ([]domain.PledgeCheck, error) {
	query := `
        SELECT ` + checkColumns + `
        FROM pledge_checks
        WHERE pledge_id = $1
        ORDER BY checked_at DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, pledgeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pledge checks: %w", err)
	}
	defer rows.Close()

	checks := []domain.PledgeCheck{}
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("list pledge checks: scan: %w", err)
		}
		checks = append(checks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pledge checks: %w", err)
	}
	return checks, nil
}

func scanCheck(row rowScanner) (*domain.PledgeCheck, error) {
	var (
		c        domain.PledgeCheck
		id       string
		pledgeID string
		status   string
	)
	if err := row.Scan(
		&id,
		&pledgeID,
		&c.ScheduledFor,
		&status,
		&c.UserLatitude,
		&c.UserLongitude,
		&c.CheckedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse check id: %w", err)
	}
	if c.PledgeID, err = uuid.Parse(pledgeID); err != nil {
		return nil, fmt.Errorf("parse check pledge id: %w", err)
	}
	if c.Status, err = domain.ParseCheckStatus(status); err != nil {
		return nil, err
	}
	return &c, nil
}
