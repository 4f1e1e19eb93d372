package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys published on the events exchange.
const (
	RoutingKeyCheckMet      = "pledge.check.met"
	RoutingKeyCheckViolated = "pledge.check.violated"
	RoutingKeyReminder      = "pledge.reminder"
)

// PledgeCheckEvent is emitted once for every newly recorded compliance outcome.
// Penalty and push-notification consumers act on the violated variant.
type PledgeCheckEvent struct {
	CheckID      uuid.UUID `json:"check_id"`
	PledgeID     uuid.UUID `json:"pledge_id"`
	UserID       uuid.UUID `json:"user_id"`
	CharityID    uuid.UUID `json:"charity_id"`
	StakeCents   int64     `json:"stake_cents"`
	Status       string    `json:"status"`
	ScheduledFor time.Time `json:"scheduled_for"`
	CheckedAt    time.Time `json:"checked_at"`
}

// PledgeReminderEvent asks the notification service to remind a user of an upcoming slot.
type PledgeReminderEvent struct {
	PledgeID     uuid.UUID `json:"pledge_id"`
	UserID       uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// CheckRoutingKey returns the routing key for a recorded status.
func CheckRoutingKey(status CheckStatus) string {
	if status == CheckStatusViolated {
		return RoutingKeyCheckViolated
	}
	return RoutingKeyCheckMet
}
