package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/d9rick/GeoPledge/internal/domain"
)

const pledgeColumns = `id, user_id, name, target_latitude, target_longitude, radius_meters,
        stake_cents, charity_id, days_of_week, time_hour, time_minute, is_active,
        created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreatePledge inserts a new pledge row.
func (r *PostgresRepository) CreatePledge(ctx context.Context, p *domain.Pledge) error {
	query := `
        INSERT INTO geo_pledges (` + pledgeColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    `
	_, err := r.db.Exec(ctx, query,
		p.ID,
		p.UserID,
		p.Name,
		p.TargetLatitude,
		p.TargetLongitude,
		p.RadiusMeters,
		p.StakeCents,
		p.CharityID,
		encodeWeekdays(p.Recurrence.Weekdays),
		p.Recurrence.Hour,
		p.Recurrence.Minute,
		p.Active,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pledge: %w", err)
	}
	return nil
}

// UpdatePledge overwrites the mutable fields of an existing pledge owned by p.UserID.
func (r *PostgresRepository) UpdatePledge(ctx context.Context, p *domain.Pledge) error {
	query := `
        UPDATE geo_pledges SET
            name = $3,
            target_latitude = $4,
            target_longitude = $5,
            radius_meters = $6,
            stake_cents = $7,
            charity_id = $8,
            days_of_week = $9,
            time_hour = $10,
            time_minute = $11,
            is_active = $12,
            updated_at = $13
        WHERE id = $1 AND user_id = $2
    `
	tag, err := r.db.Exec(ctx, query,
		p.ID,
		p.UserID,
		p.Name,
		p.TargetLatitude,
		p.TargetLongitude,
		p.RadiusMeters,
		p.StakeCents,
		p.CharityID,
		encodeWeekdays(p.Recurrence.Weekdays),
		p.Recurrence.Hour,
		p.Recurrence.Minute,
		p.Active,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update pledge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPledgeNotFound
	}
	return nil
}

// FindPledgeByID returns the pledge with the given id if it belongs to userID.
func (r *PostgresRepository) FindPledgeByID(ctx context.Context, userID, pledgeID uuid.UUID) (*domain.Pledge, error) {
	query := `SELECT ` + pledgeColumns + ` FROM geo_pledges WHERE id = $1 AND user_id = $2`
	p, err := scanPledge(r.db.QueryRow(ctx, query, pledgeID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPledgeNotFound
		}
		return nil, fmt.Errorf("find pledge: %w", err)
	}
	return p, nil
}

// FindPledgesByUserID returns every pledge owned by userID, oldest first.
func (r *PostgresRepository) FindPledgesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Pledge, error) {
	query := `SELECT ` + pledgeColumns + ` FROM geo_pledges WHERE user_id = $1 ORDER BY created_at, id`
	return r.queryPledges(ctx, "find pledges by user", query, userID)
}

// FindActivePledgesByUserID returns the active pledges owned by userID.
func (r *PostgresRepository) FindActivePledgesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Pledge, error) {
	query := `SELECT ` + pledgeColumns + ` FROM geo_pledges WHERE user_id = $1 AND is_active ORDER BY created_at, id`
	return r.queryPledges(ctx, "find active pledges by user", query, userID)
}

// FindActivePledges returns every active pledge across all users.
func (r *PostgresRepository) FindActivePledges(ctx context.Context) ([]domain.Pledge, error) {
	query := `SELECT ` + pledgeColumns + ` FROM geo_pledges WHERE is_active ORDER BY created_at, id`
	return r.queryPledges(ctx, "find active pledges", query)
}

func (r *PostgresRepository) queryPledges(ctx context.Context, op, query string, args ...any) ([]domain.Pledge, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	pledges := []domain.Pledge{}
	for rows.Next() {
		p, err := scanPledge(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		pledges = append(pledges, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pledges, nil
}

func scanPledge(row rowScanner) (*domain.Pledge, error) {
	var (
		p         domain.Pledge
		id        string
		userID    string
		charityID string
		days      []int16
		hour      int16
		minute    int16
	)
	err := row.Scan(
		&id,
		&userID,
		&p.Name,
		&p.TargetLatitude,
		&p.TargetLongitude,
		&p.RadiusMeters,
		&p.StakeCents,
		&charityID,
		&days,
		&hour,
		&minute,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse pledge id: %w", err)
	}
	if p.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse pledge user id: %w", err)
	}
	if p.CharityID, err = uuid.Parse(charityID); err != nil {
		return nil, fmt.Errorf("parse pledge charity id: %w", err)
	}
	p.Recurrence = domain.Recurrence{
		Weekdays: decodeWeekdays(days),
		Hour:     int(hour),
		Minute:   int(minute),
	}
	return &p, nil
}

// encodeWeekdays stores the weekday set sorted and without duplicates.
func encodeWeekdays(days []time.Weekday) []int16 {
	seen := make(map[time.Weekday]bool, len(days))
	out := make([]int16, 0, len(days))
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, int16(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func decodeWeekdays(days []int16) []time.Weekday {
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, time.Weekday(d))
	}
	return out
}
