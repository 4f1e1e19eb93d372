package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/d9rick/GeoPledge/internal/domain"
	"github.com/d9rick/GeoPledge/internal/schedule"
)

// LatestCheckLookup returns the newest compliance record of a pledge, or nil if none.
type LatestCheckLookup func(ctx context.Context, pledgeID uuid.UUID) (*domain.PledgeCheck, error)

// ProjectPledge builds the read view of p at now. A nil lookup yields an absent
// last status, which is what a freshly created pledge shows.
func ProjectPledge(ctx context.Context, resolver schedule.Resolver, p domain.Pledge, now time.Time, lookup LatestCheckLookup) (domain.PledgeView, error) {
	view := domain.PledgeView{
		ID:               p.ID,
		Name:             p.Name,
		NextScheduledRun: resolver.NextOccurrence(p.Recurrence, now),
		StakeCents:       p.StakeCents,
	}
	if lookup == nil {
		return view, nil
	}

	latest, err := lookup(ctx, p.ID)
	if err != nil {
		return domain.PledgeView{}, fmt.Errorf("latest check for pledge %s: %w", p.ID, err)
	}
	if latest != nil {
		status := latest.Status
		view.LastStatus = &status
	}
	return view, nil
}
