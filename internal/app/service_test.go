package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/d9rick/GeoPledge/internal/domain"
	"github.com/d9rick/GeoPledge/internal/schedule"
)

type serviceFixture struct {
	svc       *Service
	pledges   *pledgeRepoStub
	checks    *checkRepoStub
	publisher *publisherStub
}

func newServiceFixture(pledges ...domain.Pledge) serviceFixture {
	repo := newPledgeRepoStub(pledges...)
	checks := newCheckRepoStub()
	pub := &publisherStub{}
	svc := NewService(repo, checks, schedule.NewResolver(time.UTC), pub, "geopledge.events", discardLogger())
	return serviceFixture{svc: svc, pledges: repo, checks: checks, publisher: pub}
}

func validCreateInput() CreatePledgeInput {
	return CreatePledgeInput{
		Name:            "Gym",
		TargetLatitude:  40.0,
		TargetLongitude: -73.0,
		StakeCents:      500,
		CharityID:       uuid.New(),
		DaysOfWeek:      []int{1},
		TimeHour:        9,
		TimeMinute:      0,
	}
}

func TestCreatePledge_PersistsActivePledgeWithDefaults(t *testing.T) {
	f := newServiceFixture()
	owner := uuid.New()
	now := mondayAt(8, 0, 0)

	view, err := f.svc.CreatePledge(context.Background(), owner, validCreateInput(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.LastStatus != nil {
		t.Fatalf("expected no last status on a new pledge, got %v", *view.LastStatus)
	}
	if !view.NextScheduledRun.Equal(mondayAt(9, 0, 0)) {
		t.Fatalf("expected next run today 09:00, got %s", view.NextScheduledRun)
	}

	stored, err := f.pledges.FindPledgeByID(context.Background(), owner, view.ID)
	if err != nil {
		t.Fatalf("expected pledge to be stored: %v", err)
	}
	if !stored.Active {
		t.Fatal("expected new pledge to be active")
	}
	if stored.RadiusMeters != domain.DefaultRadiusMeters {
		t.Fatalf("expected default radius %d, got %d", domain.DefaultRadiusMeters, stored.RadiusMeters)
	}
}

func TestCreatePledge_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*CreatePledgeInput)
		field string
	}{
		{name: "empty weekdays", mut: func(in *CreatePledgeInput) { in.DaysOfWeek = nil }, field: "daysOfWeek"},
		{name: "weekday out of range", mut: func(in *CreatePledgeInput) { in.DaysOfWeek = []int{7} }, field: "daysOfWeek"},
		{name: "hour out of range", mut: func(in *CreatePledgeInput) { in.TimeHour = 24 }, field: "timeHour"},
		{name: "minute out of range", mut: func(in *CreatePledgeInput) { in.TimeMinute = 60 }, field: "timeMinute"},
		{name: "latitude out of range", mut: func(in *CreatePledgeInput) { in.TargetLatitude = 91 }, field: "targetLatitude"},
		{name: "longitude out of range", mut: func(in *CreatePledgeInput) { in.TargetLongitude = -181 }, field: "targetLongitude"},
		{name: "negative radius", mut: func(in *CreatePledgeInput) { in.RadiusMeters = -5 }, field: "radiusMeters"},
		{name: "negative stake", mut: func(in *CreatePledgeInput) { in.StakeCents = -1 }, field: "stakeCents"},
		{name: "missing charity", mut: func(in *CreatePledgeInput) { in.CharityID = uuid.Nil }, field: "charityId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()
			in := validCreateInput()
			tt.mut(&in)

			_, err := f.svc.CreatePledge(context.Background(), uuid.New(), in, mondayAt(8, 0, 0))
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, vErr.Field)
			}
			if f.pledges.created != 0 {
				t.Fatalf("expected nothing persisted, got %d", f.pledges.created)
			}
		})
	}
}

func TestCreatePledge_DeduplicatesWeekdays(t *testing.T) {
	f := newServiceFixture()
	owner := uuid.New()
	in := validCreateInput()
	in.DaysOfWeek = []int{1, 3, 1}

	view, err := f.svc.CreatePledge(context.Background(), owner, in, mondayAt(8, 0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := f.pledges.FindPledgeByID(context.Background(), owner, view.ID)
	if len(stored.Recurrence.Weekdays) != 2 {
		t.Fatalf("expected two distinct weekdays, got %v", stored.Recurrence.Weekdays)
	}
}

func TestCreatePledge_StorageFailure(t *testing.T) {
	f := newServiceFixture()
	f.pledges.createErr = errStorage

	_, err := f.svc.CreatePledge(context.Background(), uuid.New(), validCreateInput(), mondayAt(8, 0, 0))
	if !errors.Is(err, errStorage) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

func TestListPledges_ReportsLastStatus(t *testing.T) {
	owner := uuid.New()
	checked := mondayNinePledge(owner)
	fresh := mondayNinePledge(owner)
	fresh.Active = false
	other := mondayNinePledge(uuid.New())
	f := newServiceFixture(checked, fresh, other)

	if _, err := f.svc.RecordFix(context.Background(), owner, domain.LocationFix{Latitude: northOf(40, 150), Longitude: -73}, mondayAt(9, 0, 10)); err != nil {
		t.Fatalf("unexpected error recording fix: %v", err)
	}

	views, err := f.svc.ListPledges(context.Background(), owner, mondayAt(9, 0, 30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected both of the owner's pledges, got %d", len(views))
	}
	byID := map[uuid.UUID]domain.PledgeView{}
	for _, v := range views {
		byID[v.ID] = v
	}

	if s := byID[checked.ID].LastStatus; s == nil || *s != domain.CheckStatusViolated {
		t.Fatalf("expected VIOLATED last status, got %v", s)
	}
	if s := byID[fresh.ID].LastStatus; s != nil {
		t.Fatalf("expected absent last status, got %v", *s)
	}
	nextMonday := mondayAt(9, 0, 0).AddDate(0, 0, 7)
	if !byID[checked.ID].NextScheduledRun.Equal(nextMonday) {
		t.Fatalf("expected next run %s, got %s", nextMonday, byID[checked.ID].NextScheduledRun)
	}
}

func TestListPledges_LookupFailure(t *testing.T) {
	owner := uuid.New()
	f := newServiceFixture(mondayNinePledge(owner))
	f.checks.latestErr = errStorage

	if _, err := f.svc.ListPledges(context.Background(), owner, mondayAt(8, 0, 0)); !errors.Is(err, errStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestRecordFix_EvaluatesEveryActivePledge(t *testing.T) {
	owner := uuid.New()
	due := mondayNinePledge(owner)
	notDue := mondayNinePledge(owner)
	notDue.Recurrence.Hour = 18
	inactive := mondayNinePledge(owner)
	inactive.Active = false
	f := newServiceFixture(due, notDue, inactive)

	result, err := f.svc.RecordFix(context.Background(), owner, domain.LocationFix{Latitude: northOf(40, 50), Longitude: -73}, mondayAt(9, 0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Evaluated != 1 || len(result.Recorded) != 1 || result.Duplicates != 0 {
		t.Fatalf("expected one recorded evaluation, got %+v", result)
	}
	if result.Recorded[0].PledgeID != due.ID || result.Recorded[0].Status != domain.CheckStatusMet {
		t.Fatalf("expected MET for the due pledge, got %+v", result.Recorded[0])
	}

	if len(f.publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(f.publisher.events))
	}
	ev := f.publisher.events[0]
	if ev.exchange != "geopledge.events" || ev.routingKey != domain.RoutingKeyCheckMet {
		t.Fatalf("unexpected event destination %s/%s", ev.exchange, ev.routingKey)
	}
	payload, ok := ev.body.(domain.PledgeCheckEvent)
	if !ok {
		t.Fatalf("expected PledgeCheckEvent payload, got %T", ev.body)
	}
	if payload.StakeCents != due.StakeCents || payload.CharityID != due.CharityID || payload.Status != "MET" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestRecordFix_DuplicateIsNotPublished(t *testing.T) {
	owner := uuid.New()
	f := newServiceFixture(mondayNinePledge(owner))
	fix := domain.LocationFix{Latitude: northOf(40, 150), Longitude: -73}

	if _, err := f.svc.RecordFix(context.Background(), owner, fix, mondayAt(9, 0, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := f.svc.RecordFix(context.Background(), owner, fix, mondayAt(9, 0, 59))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Duplicates != 1 || len(result.Recorded) != 0 {
		t.Fatalf("expected a duplicate, got %+v", result)
	}
	if f.checks.count() != 1 {
		t.Fatalf("expected one record, got %d", f.checks.count())
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].routingKey != domain.RoutingKeyCheckViolated {
		t.Fatalf("expected a single violated event, got %+v", f.publisher.events)
	}
}

func TestRecordFix_NothingDue(t *testing.T) {
	owner := uuid.New()
	f := newServiceFixture(mondayNinePledge(owner))

	result, err := f.svc.RecordFix(context.Background(), owner, domain.LocationFix{Latitude: 40, Longitude: -73}, mondayAt(9, 1, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Evaluated != 0 || f.checks.count() != 0 || len(f.publisher.events) != 0 {
		t.Fatalf("expected no effect, got %+v", result)
	}
}

func TestRecordFix_PublishFailureDoesNotFailRequest(t *testing.T) {
	owner := uuid.New()
	f := newServiceFixture(mondayNinePledge(owner))
	f.publisher.err = errors.New("broker down")

	result, err := f.svc.RecordFix(context.Background(), owner, domain.LocationFix{Latitude: 40, Longitude: -73}, mondayAt(9, 0, 0))
	if err != nil {
		t.Fatalf("expected publish failure to be logged only, got %v", err)
	}
	if len(result.Recorded) != 1 {
		t.Fatalf("expected the record to persist, got %+v", result)
	}
}

func TestRecordFix_StorageFailure(t *testing.T) {
	owner := uuid.New()
	f := newServiceFixture(mondayNinePledge(owner))
	f.checks.insertErr = errStorage

	if _, err := f.svc.RecordFix(context.Background(), owner, domain.LocationFix{Latitude: 40, Longitude: -73}, mondayAt(9, 0, 0)); !errors.Is(err, errStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestRecordFix_RejectsInvalidCoordinates(t *testing.T) {
	f := newServiceFixture()
	_, err := f.svc.RecordFix(context.Background(), uuid.New(), domain.LocationFix{Latitude: 95, Longitude: 0}, mondayAt(9, 0, 0))
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "lat" {
		t.Fatalf("expected lat validation error, got %v", err)
	}
}

func TestRecordFix_RateLimit(t *testing.T) {
	owner := uuid.New()

	t.Run("over limit", func(t *testing.T) {
		f := newServiceFixture(mondayNinePledge(owner))
		f.svc.SetFixRateLimiter(&limiterStub{count: 31, retryAfter: 12}, 30)

		_, err := f.svc.RecordFix(context.Background(), owner, domain.LocationFix{Latitude: 40, Longitude: -73}, mondayAt(9, 0, 0))
		var rlErr *RateLimitError
		if !errors.As(err, &rlErr) || rlErr.RetryAfterSeconds != 12 {
			t.Fatalf("expected rate limit error with retry 12, got %v", err)
		}
		if f.checks.count() != 0 {
			t.Fatal("expected no record when rate limited")
		}
	})

	t.Run("limiter unavailable fails open", func(t *testing.T) {
		f := newServiceFixture(mondayNinePledge(owner))
		f.svc.SetFixRateLimiter(&limiterStub{err: errors.New("redis down")}, 30)

		result, err := f.svc.RecordFix(context.Background(), owner, domain.LocationFix{Latitude: 40, Longitude: -73}, mondayAt(9, 0, 0))
		if err != nil || len(result.Recorded) != 1 {
			t.Fatalf("expected fix to be evaluated, got %+v / %v", result, err)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		f := newServiceFixture(mondayNinePledge(owner))
		limiter := &limiterStub{count: 1000}
		f.svc.SetFixRateLimiter(limiter, 0)

		if _, err := f.svc.RecordFix(context.Background(), owner, domain.LocationFix{Latitude: 40, Longitude: -73}, mondayAt(9, 0, 0)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if limiter.calls != 0 {
			t.Fatalf("expected limiter not to be consulted, got %d calls", limiter.calls)
		}
	})
}

func TestGetPledge_NotOwned(t *testing.T) {
	p := mondayNinePledge(uuid.New())
	f := newServiceFixture(p)

	if _, err := f.svc.GetPledge(context.Background(), uuid.New(), p.ID, mondayAt(8, 0, 0)); !errors.Is(err, ErrPledgeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdatePledge_PartialUpdate(t *testing.T) {
	owner := uuid.New()
	p := mondayNinePledge(owner)
	f := newServiceFixture(p)

	active := false
	days := []int{2, 4}
	name := "Morning run"
	view, err := f.svc.UpdatePledge(context.Background(), owner, p.ID, UpdatePledgeInput{Name: &name, DaysOfWeek: &days, Active: &active}, mondayAt(8, 0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Name != name {
		t.Fatalf("expected renamed pledge, got %q", view.Name)
	}
	// Tuesday 09:00
	if !view.NextScheduledRun.Equal(mondayAt(9, 0, 0).AddDate(0, 0, 1)) {
		t.Fatalf("expected next run on Tuesday, got %s", view.NextScheduledRun)
	}

	stored, _ := f.pledges.FindPledgeByID(context.Background(), owner, p.ID)
	if stored.Active || stored.Recurrence.Hour != 9 || stored.TargetLatitude != 40 {
		t.Fatalf("expected only the given fields to change, got %+v", stored)
	}
}

func TestUpdatePledge_InvalidLeavesPledgeUntouched(t *testing.T) {
	owner := uuid.New()
	p := mondayNinePledge(owner)
	f := newServiceFixture(p)

	radius := 0
	_, err := f.svc.UpdatePledge(context.Background(), owner, p.ID, UpdatePledgeInput{RadiusMeters: &radius}, mondayAt(8, 0, 0))
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "radiusMeters" {
		t.Fatalf("expected radius validation error, got %v", err)
	}
	if f.pledges.updated != 0 {
		t.Fatalf("expected no update, got %d", f.pledges.updated)
	}
}

func TestUpdatePledge_NotFound(t *testing.T) {
	f := newServiceFixture()
	if _, err := f.svc.UpdatePledge(context.Background(), uuid.New(), uuid.New(), UpdatePledgeInput{}, mondayAt(8, 0, 0)); !errors.Is(err, ErrPledgeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListChecks_ClampsLimit(t *testing.T) {
	owner := uuid.New()
	p := mondayNinePledge(owner)
	f := newServiceFixture(p)

	tests := []struct {
		limit int
		want  int
	}{
		{limit: 0, want: DefaultCheckHistoryLimit},
		{limit: 10, want: 10},
		{limit: 5000, want: MaxCheckHistoryLimit},
	}
	for _, tt := range tests {
		if _, err := f.svc.ListChecks(context.Background(), owner, p.ID, tt.limit); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.checks.lastLimit != tt.want {
			t.Fatalf("limit %d: expected %d, got %d", tt.limit, tt.want, f.checks.lastLimit)
		}
	}

	if _, err := f.svc.ListChecks(context.Background(), uuid.New(), p.ID, 10); !errors.Is(err, ErrPledgeNotFound) {
		t.Fatalf("expected not found for another owner, got %v", err)
	}
}
