package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d9rick/GeoPledge/internal/domain"
	"github.com/d9rick/GeoPledge/internal/geo"
	"github.com/d9rick/GeoPledge/internal/store"
)

type pledgeRepoStub struct {
	mu        sync.Mutex
	pledges   map[uuid.UUID]domain.Pledge
	order     []uuid.UUID
	createErr error
	findErr   error
	created   int
	updated   int
}

func newPledgeRepoStub(pledges ...domain.Pledge) *pledgeRepoStub {
	s := &pledgeRepoStub{pledges: map[uuid.UUID]domain.Pledge{}}
	for _, p := range pledges {
		s.pledges[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	return s
}

func (s *pledgeRepoStub) CreatePledge(ctx context.Context, p *domain.Pledge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.pledges[p.ID] = *p
	s.order = append(s.order, p.ID)
	s.created++
	return nil
}

func (s *pledgeRepoStub) UpdatePledge(ctx context.Context, p *domain.Pledge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.pledges[p.ID]
	if !ok || existing.UserID != p.UserID {
		return store.ErrPledgeNotFound
	}
	s.pledges[p.ID] = *p
	s.updated++
	return nil
}

func (s *pledgeRepoStub) FindPledgeByID(ctx context.Context, userID, pledgeID uuid.UUID) (*domain.Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	p, ok := s.pledges[pledgeID]
	if !ok || p.UserID != userID {
		return nil, store.ErrPledgeNotFound
	}
	return &p, nil
}

func (s *pledgeRepoStub) FindPledgesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Pledge, error) {
	return s.filter(func(p domain.Pledge) bool { return p.UserID == userID })
}

func (s *pledgeRepoStub) FindActivePledgesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Pledge, error) {
	return s.filter(func(p domain.Pledge) bool { return p.UserID == userID && p.Active })
}

func (s *pledgeRepoStub) FindActivePledges(ctx context.Context) ([]domain.Pledge, error) {
	return s.filter(func(p domain.Pledge) bool { return p.Active })
}

func (s *pledgeRepoStub) filter(keep func(domain.Pledge) bool) ([]domain.Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []domain.Pledge
	for _, id := range s.order {
		if p := s.pledges[id]; keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

type slotKey struct {
	pledgeID uuid.UUID
	slot     int64
}

// checkRepoStub enforces the (pledge, slot) uniqueness the database provides.
type checkRepoStub struct {
	mu        sync.Mutex
	checks    map[slotKey]domain.PledgeCheck
	insertErr error
	latestErr error
	lastLimit int
}

func newCheckRepoStub() *checkRepoStub {
	return &checkRepoStub{checks: map[slotKey]domain.PledgeCheck{}}
}

func (s *checkRepoStub) InsertCheckIfAbsent(ctx context.Context, c *domain.PledgeCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	key := slotKey{pledgeID: c.PledgeID, slot: c.ScheduledFor.Unix()}
	if _, exists := s.checks[key]; exists {
		return store.ErrCheckAlreadyRecorded
	}
	s.checks[key] = *c
	return nil
}

func (s *checkRepoStub) FindLatestCheck(ctx context.Context, pledgeID uuid.UUID) (*domain.PledgeCheck, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	list := s.forPledge(pledgeID)
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (s *checkRepoStub) ListChecks(ctx context.Context, pledgeID uuid.UUID, limit int) ([]domain.PledgeCheck, error) {
	s.mu.Lock()
	s.lastLimit = limit
	s.mu.Unlock()
	list := s.forPledge(pledgeID)
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *checkRepoStub) forPledge(pledgeID uuid.UUID) []domain.PledgeCheck {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PledgeCheck
	for _, c := range s.checks {
		if c.PledgeID == pledgeID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedAt.After(out[j].CheckedAt) })
	return out
}

func (s *checkRepoStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.checks)
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type publisherStub struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *publisherStub) Close() {}

type limiterStub struct {
	count      int
	retryAfter int
	err        error
	calls      int
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	l.calls++
	return l.count, l.retryAfter, l.err
}

var errStorage = errors.New("connection refused")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mondayAt returns 2024-01-01 (a Monday) at the given UTC wall clock.
func mondayAt(hour, minute, second int) time.Time {
	return time.Date(2024, time.January, 1, hour, minute, second, 0, time.UTC)
}

// northOf moves a point due north by meters along the meridian.
func northOf(lat, meters float64) float64 {
	return lat + meters/(geo.EarthRadiusMeters*math.Pi/180)
}

func mondayNinePledge(owner uuid.UUID) domain.Pledge {
	return domain.Pledge{
		ID:              uuid.New(),
		UserID:          owner,
		Name:            "Gym",
		TargetLatitude:  40.0,
		TargetLongitude: -73.0,
		RadiusMeters:    100,
		StakeCents:      500,
		CharityID:       uuid.New(),
		Recurrence:      domain.Recurrence{Weekdays: []time.Weekday{time.Monday}, Hour: 9, Minute: 0},
		Active:          true,
	}
}
