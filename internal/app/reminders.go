/**
 * @description
 * Scheduled job that reminds users of upcoming pledge slots. Each tick looks one lead
 * interval ahead and publishes a reminder for every active pledge due at that minute.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/d9rick/GeoPledge/internal/domain"
	"github.com/d9rick/GeoPledge/internal/schedule"
	"github.com/d9rick/GeoPledge/pkg/rabbitmq"
)

// ActivePledgeSource lists every active pledge across all users.
type ActivePledgeSource interface {
	FindActivePledges(ctx context.Context) ([]domain.Pledge, error)
}

// Jobs contains the logic for scheduled tasks.
type Jobs struct {
	pledges   ActivePledgeSource
	resolver  schedule.Resolver
	publisher rabbitmq.Publisher
	exchange  string
	lead      time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewJobs creates a job runner. lead is how far ahead of a slot reminders are sent.
func NewJobs(pledges ActivePledgeSource, resolver schedule.Resolver, publisher rabbitmq.Publisher, exchange string, lead time.Duration, logger *slog.Logger) *Jobs {
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		pledges:   pledges,
		resolver:  resolver,
		publisher: publisher,
		exchange:  exchange,
		lead:      lead,
		logger:    logger,
		now:       time.Now,
	}
}

// SendPledgeReminders is the cron entry point.
func (j *Jobs) SendPledgeReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
	defer cancel()

	sent, err := j.sendRemindersAt(ctx, j.now())
	if err != nil {
		j.logger.Error("pledge reminder job failed", "error", err, "sent", sent)
		return
	}
	if sent > 0 {
		j.logger.Info("pledge reminder job finished", "sent", sent)
	}
}

// sendRemindersAt publishes reminders for slots starting exactly one lead after the
// minute containing now, and returns how many were published.
func (j *Jobs) sendRemindersAt(ctx context.Context, now time.Time) (int, error) {
	target := j.resolver.SlotFor(now).Add(j.lead)

	pledges, err := j.pledges.FindActivePledges(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, p := range pledges {
		if !p.Active || !j.resolver.IsScheduledNow(p.Recurrence, target) {
			continue
		}
		event := domain.PledgeReminderEvent{
			PledgeID:     p.ID,
			UserID:       p.UserID,
			Name:         p.Name,
			ScheduledFor: target,
		}
		if err := j.publisher.Publish(ctx, j.exchange, domain.RoutingKeyReminder, event); err != nil {
			j.logger.Warn("failed to publish pledge reminder", "pledge_id", p.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
