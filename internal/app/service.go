/**
 * @description
 * Core business logic of the pledge-service. The `Service` struct coordinates the
 * pledge and check repositories, the schedule resolver and the event publisher.
 *
 * Key features:
 * - CreatePledge / UpdatePledge validate input before anything is persisted.
 * - ListPledges / GetPledge return read projections with the next scheduled run.
 * - RecordFix evaluates one location fix against every active pledge of the owner,
 *   records at most one outcome per scheduled slot and publishes check events.
 *
 * @dependencies
 * - github.com/google/uuid: pledge and check identifiers.
 * - internal/schedule, internal/store: scheduling and storage errors.
 * - pkg/rabbitmq: event publishing.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/d9rick/GeoPledge/internal/domain"
	"github.com/d9rick/GeoPledge/internal/schedule"
	"github.com/d9rick/GeoPledge/internal/store"
	"github.com/d9rick/GeoPledge/pkg/rabbitmq"
)

const (
	DefaultCheckHistoryLimit = 50
	MaxCheckHistoryLimit     = 200

	fixRateLimitScope  = "pledge_fix"
	fixRateLimitWindow = time.Minute
)

// PledgeRepository persists pledges.
type PledgeRepository interface {
	CreatePledge(ctx context.Context, p *domain.Pledge) error
	UpdatePledge(ctx context.Context, p *domain.Pledge) error
	FindPledgeByID(ctx context.Context, userID, pledgeID uuid.UUID) (*domain.Pledge, error)
	FindPledgesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Pledge, error)
	FindActivePledgesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Pledge, error)
	FindActivePledges(ctx context.Context) ([]domain.Pledge, error)
}

// FixRateLimiter counts fix submissions per subject in a fixed window.
type FixRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RateLimitError is returned when an owner submits fixes faster than allowed.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many location fixes; retry after %ds", e.RetryAfterSeconds)
}

// RecordFixResult summarises one RecordFix call.
type RecordFixResult struct {
	Evaluated  int                  `json:"evaluated"`
	Recorded   []domain.PledgeCheck `json:"recorded"`
	Duplicates int                  `json:"duplicates"`
}

// Service provides the pledge use cases.
type Service struct {
	pledges   PledgeRepository
	checks    CheckRepository
	resolver  schedule.Resolver
	evaluator *Evaluator
	publisher rabbitmq.Publisher
	exchange  string
	logger    *slog.Logger
	newID     func() uuid.UUID

	limiter     FixRateLimiter
	fixesPerMin int
}

// NewService creates a pledge service. A nil publisher drops events; a nil logger
// uses slog.Default().
func NewService(pledges PledgeRepository, checks CheckRepository, resolver schedule.Resolver, publisher rabbitmq.Publisher, exchange string, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pledges:   pledges,
		checks:    checks,
		resolver:  resolver,
		evaluator: NewEvaluator(resolver, checks),
		publisher: publisher,
		exchange:  exchange,
		logger:    logger,
		newID:     uuid.New,
	}
}

// SetFixRateLimiter enables per-owner throttling of RecordFix. A limit of zero or a
// nil limiter disables it.
func (s *Service) SetFixRateLimiter(limiter FixRateLimiter, perMinute int) {
	s.limiter = limiter
	s.fixesPerMin = perMinute
}

// CreatePledge validates input and stores a new active pledge owned by ownerID.
func (s *Service) CreatePledge(ctx context.Context, ownerID uuid.UUID, in CreatePledgeInput, now time.Time) (domain.PledgeView, error) {
	rule, err := buildRecurrence(in.DaysOfWeek, in.TimeHour, in.TimeMinute)
	if err != nil {
		return domain.PledgeView{}, err
	}
	radius := in.RadiusMeters
	if radius == 0 {
		radius = domain.DefaultRadiusMeters
	}

	p := &domain.Pledge{
		ID:              s.newID(),
		UserID:          ownerID,
		Name:            in.Name,
		TargetLatitude:  in.TargetLatitude,
		TargetLongitude: in.TargetLongitude,
		RadiusMeters:    radius,
		StakeCents:      in.StakeCents,
		CharityID:       in.CharityID,
		Recurrence:      rule,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validatePledge(p); err != nil {
		return domain.PledgeView{}, err
	}

	if err := s.pledges.CreatePledge(ctx, p); err != nil {
		return domain.PledgeView{}, fmt.Errorf("failed to create pledge: %w", err)
	}
	s.logger.Info("pledge created", "pledge_id", p.ID, "user_id", ownerID)

	return s.project(ctx, *p, now, nil)
}

// ListPledges returns every pledge owned by ownerID, active or not.
func (s *Service) ListPledges(ctx context.Context, ownerID uuid.UUID, now time.Time) ([]domain.PledgeView, error) {
	pledges, err := s.pledges.FindPledgesByUserID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pledges: %w", err)
	}

	views := make([]domain.PledgeView, 0, len(pledges))
	for _, p := range pledges {
		view, err := s.project(ctx, p, now, s.checks.FindLatestCheck)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// GetPledge returns the projection of one pledge owned by ownerID.
func (s *Service) GetPledge(ctx context.Context, ownerID, pledgeID uuid.UUID, now time.Time) (domain.PledgeView, error) {
	p, err := s.pledges.FindPledgeByID(ctx, ownerID, pledgeID)
	if err != nil {
		return domain.PledgeView{}, err
	}
	return s.project(ctx, *p, now, s.checks.FindLatestCheck)
}

// UpdatePledge applies the non-nil fields of in and re-validates the whole pledge.
func (s *Service) UpdatePledge(ctx context.Context, ownerID, pledgeID uuid.UUID, in UpdatePledgeInput, now time.Time) (domain.PledgeView, error) {
	p, err := s.pledges.FindPledgeByID(ctx, ownerID, pledgeID)
	if err != nil {
		return domain.PledgeView{}, err
	}

	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.TargetLatitude != nil {
		p.TargetLatitude = *in.TargetLatitude
	}
	if in.TargetLongitude != nil {
		p.TargetLongitude = *in.TargetLongitude
	}
	if in.RadiusMeters != nil {
		p.RadiusMeters = *in.RadiusMeters
	}
	if in.StakeCents != nil {
		p.StakeCents = *in.StakeCents
	}
	if in.CharityID != nil {
		p.CharityID = *in.CharityID
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	if in.DaysOfWeek != nil || in.TimeHour != nil || in.TimeMinute != nil {
		days := weekdayInts(p.Recurrence.Weekdays)
		hour, minute := p.Recurrence.Hour, p.Recurrence.Minute
		if in.DaysOfWeek != nil {
			days = *in.DaysOfWeek
		}
		if in.TimeHour != nil {
			hour = *in.TimeHour
		}
		if in.TimeMinute != nil {
			minute = *in.TimeMinute
		}
		rule, err := buildRecurrence(days, hour, minute)
		if err != nil {
			return domain.PledgeView{}, err
		}
		p.Recurrence = rule
	}
	if err := validatePledge(p); err != nil {
		return domain.PledgeView{}, err
	}
	p.UpdatedAt = now

	if err := s.pledges.UpdatePledge(ctx, p); err != nil {
		if errors.Is(err, store.ErrPledgeNotFound) {
			return domain.PledgeView{}, err
		}
		return domain.PledgeView{}, fmt.Errorf("failed to update pledge: %w", err)
	}
	s.logger.Info("pledge updated", "pledge_id", p.ID, "user_id", ownerID, "active", p.Active)

	return s.project(ctx, *p, now, s.checks.FindLatestCheck)
}

// ListChecks returns the newest compliance records of a pledge owned by ownerID.
func (s *Service) ListChecks(ctx context.Context, ownerID, pledgeID uuid.UUID, limit int) ([]domain.PledgeCheck, error) {
	if _, err := s.pledges.FindPledgeByID(ctx, ownerID, pledgeID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultCheckHistoryLimit
	}
	if limit > MaxCheckHistoryLimit {
		limit = MaxCheckHistoryLimit
	}
	checks, err := s.checks.ListChecks(ctx, pledgeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	return checks, nil
}

// RecordFix evaluates fix against every active pledge of ownerID at now. Pledges that
// are not due at now are left untouched. The first storage failure aborts the call;
// outcomes recorded before it stay recorded.
func (s *Service) RecordFix(ctx context.Context, ownerID uuid.UUID, fix domain.LocationFix, now time.Time) (RecordFixResult, error) {
	if err := validateFix(fix); err != nil {
		return RecordFixResult{}, err
	}
	if err := s.consumeFixQuota(ctx, ownerID); err != nil {
		return RecordFixResult{}, err
	}

	pledges, err := s.pledges.FindActivePledgesByUserID(ctx, ownerID)
	if err != nil {
		return RecordFixResult{}, fmt.Errorf("failed to load active pledges: %w", err)
	}

	result := RecordFixResult{Recorded: []domain.PledgeCheck{}}
	for _, p := range pledges {
		eval, err := s.evaluator.Evaluate(ctx, p, fix, now)
		if err != nil {
			return result, err
		}
		switch eval.Outcome {
		case OutcomeSkipped:
			continue
		case OutcomeDuplicate:
			result.Evaluated++
			result.Duplicates++
			s.logger.Debug("check already recorded for slot", "pledge_id", p.ID, "scheduled_for", eval.Check.ScheduledFor)
		case OutcomeRecorded:
			result.Evaluated++
			result.Recorded = append(result.Recorded, *eval.Check)
			s.logger.Info("pledge check recorded",
				"pledge_id", p.ID,
				"user_id", ownerID,
				"status", eval.Check.Status.String(),
				"distance_meters", eval.DistanceMeters,
				"scheduled_for", eval.Check.ScheduledFor,
			)
			s.publishCheck(ctx, p, *eval.Check)
		}
	}
	return result, nil
}

func (s *Service) consumeFixQuota(ctx context.Context, ownerID uuid.UUID) error {
	if s.limiter == nil || s.fixesPerMin <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, fixRateLimitScope, ownerID.String(), s.fixesPerMin, fixRateLimitWindow)
	if err != nil {
		s.logger.Warn("fix rate limiter unavailable; allowing request", "user_id", ownerID, "error", err)
		return nil
	}
	if count > s.fixesPerMin {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func (s *Service) publishCheck(ctx context.Context, p domain.Pledge, c domain.PledgeCheck) {
	event := domain.PledgeCheckEvent{
		CheckID:      c.ID,
		PledgeID:     p.ID,
		UserID:       p.UserID,
		CharityID:    p.CharityID,
		StakeCents:   p.StakeCents,
		Status:       c.Status.String(),
		ScheduledFor: c.ScheduledFor,
		CheckedAt:    c.CheckedAt,
	}
	routingKey := domain.CheckRoutingKey(c.Status)
	if err := s.publisher.Publish(ctx, s.exchange, routingKey, event); err != nil {
		s.logger.Error("failed to publish check event", "pledge_id", p.ID, "routing_key", routingKey, "error", err)
	}
}

func (s *Service) project(ctx context.Context, p domain.Pledge, now time.Time, lookup LatestCheckLookup) (domain.PledgeView, error) {
	if _, ok := s.resolver.NextOccurrenceStrict(p.Recurrence, now); !ok {
		s.logger.Debug("pledge has no upcoming occurrence; using reference instant", "pledge_id", p.ID)
	}
	return ProjectPledge(ctx, s.resolver, p, now, lookup)
}
