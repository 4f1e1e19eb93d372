/**
 * @description
 * This file defines the core domain models for the pledge-service: the recurring
 * Pledge, its weekly Recurrence rule, the per-slot PledgeCheck outcome, and the
 * ephemeral LocationFix reported by clients.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRadiusMeters is applied when a pledge is created without a radius.
const DefaultRadiusMeters = 100

// Recurrence is a weekly rule: a set of weekdays and a wall-clock time of day.
// It is always interpreted in the single configured schedule zone.
type Recurrence struct {
	Weekdays []time.Weekday `json:"days_of_week"`
	Hour     int            `json:"time_hour"`
	Minute   int            `json:"time_minute"`
}

// HasWeekday reports whether d is part of the rule's weekday set.
func (r Recurrence) HasWeekday(d time.Weekday) bool {
	for _, w := range r.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// Pledge is a user's recurring commitment to be inside a geofence at scheduled times.
type Pledge struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Name            string     `json:"name"`
	TargetLatitude  float64    `json:"target_latitude"`
	TargetLongitude float64    `json:"target_longitude"`
	RadiusMeters    int        `json:"radius_meters"`
	StakeCents      int64      `json:"stake_cents"`
	CharityID       uuid.UUID  `json:"charity_id"`
	Recurrence      Recurrence `json:"recurrence"`
	Active          bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// LocationFix is a single location observation supplied by the client.
type LocationFix struct {
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lon"`
	ObservedAt time.Time `json:"at"`
}
