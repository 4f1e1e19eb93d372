/**
 * @description
 * Compliance evaluation: decides whether a location fix satisfies a pledge's geofence
 * for the slot it lands in, and records at most one outcome per (pledge, slot).
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/d9rick/GeoPledge/internal/domain"
	"github.com/d9rick/GeoPledge/internal/geo"
	"github.com/d9rick/GeoPledge/internal/schedule"
	"github.com/d9rick/GeoPledge/internal/store"
)

// CheckRepository persists and reads compliance records.
type CheckRepository interface {
	InsertCheckIfAbsent(ctx context.Context, c *domain.PledgeCheck) error
	FindLatestCheck(ctx context.Context, pledgeID uuid.UUID) (*domain.PledgeCheck, error)
	ListChecks(ctx context.Context, pledgeID uuid.UUID, limit int) ([]domain.PledgeCheck, error)
}

// EvaluationOutcome describes what an evaluation did.
type EvaluationOutcome int

const (
	// OutcomeSkipped means the pledge was inactive or the instant is not a scheduled slot.
	OutcomeSkipped EvaluationOutcome = iota
	// OutcomeRecorded means a new compliance record was persisted.
	OutcomeRecorded
	// OutcomeDuplicate means the slot already had a record; nothing was written.
	OutcomeDuplicate
)

func (o EvaluationOutcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRecorded:
		return "recorded"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("EvaluationOutcome(%d)", int(o))
	}
}

// Evaluation is the result of evaluating one fix against one pledge.
type Evaluation struct {
	Outcome EvaluationOutcome
	// Check is the record that was (or would have been) written. Nil when skipped.
	Check          *domain.PledgeCheck
	DistanceMeters float64
}

// Evaluator applies the geofence rule to scheduled slots.
type Evaluator struct {
	resolver schedule.Resolver
	checks   CheckRepository
	newID    func() uuid.UUID
}

// NewEvaluator creates an evaluator that resolves slots with resolver and writes to checks.
func NewEvaluator(resolver schedule.Resolver, checks CheckRepository) *Evaluator {
	return &Evaluator{resolver: resolver, checks: checks, newID: uuid.New}
}

// Evaluate decides MET or VIOLATED for the slot now falls in and persists the outcome
// once. The first fix recorded for a slot wins; later fixes for the same slot return
// OutcomeDuplicate without error. Storage failures are returned unchanged in kind.
func (e *Evaluator) Evaluate(ctx context.Context, p domain.Pledge, fix domain.LocationFix, now time.Time) (Evaluation, error) {
	if !p.Active {
		return Evaluation{Outcome: OutcomeSkipped}, nil
	}
	if !e.resolver.IsScheduledNow(p.Recurrence, now) {
		return Evaluation{Outcome: OutcomeSkipped}, nil
	}

	distance := geo.DistanceMeters(fix.Latitude, fix.Longitude, p.TargetLatitude, p.TargetLongitude)
	status := domain.CheckStatusViolated
	if distance <= float64(p.RadiusMeters) {
		status = domain.CheckStatusMet
	}

	check := &domain.PledgeCheck{
		ID:            e.newID(),
		PledgeID:      p.ID,
		ScheduledFor:  e.resolver.SlotFor(now),
		Status:        status,
		UserLatitude:  fix.Latitude,
		UserLongitude: fix.Longitude,
		CheckedAt:     now,
	}

	if err := e.checks.InsertCheckIfAbsent(ctx, check); err != nil {
		if errors.Is(err, store.ErrCheckAlreadyRecorded) {
			return Evaluation{Outcome: OutcomeDuplicate, Check: check, DistanceMeters: distance}, nil
		}
		return Evaluation{}, fmt.Errorf("record check for pledge %s: %w", p.ID, err)
	}

	return Evaluation{Outcome: OutcomeRecorded, Check: check, DistanceMeters: distance}, nil
}
