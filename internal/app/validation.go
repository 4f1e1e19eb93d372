package app

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/d9rick/GeoPledge/internal/domain"
)

// CreatePledgeInput carries the owner-supplied fields of a new pledge.
type CreatePledgeInput struct {
	Name            string    `json:"name"`
	TargetLatitude  float64   `json:"targetLatitude"`
	TargetLongitude float64   `json:"targetLongitude"`
	RadiusMeters    int       `json:"radiusMeters"`
	StakeCents      int64     `json:"stakeCents"`
	CharityID       uuid.UUID `json:"charityId"`
	DaysOfWeek      []int     `json:"daysOfWeek"`
	TimeHour        int       `json:"timeHour"`
	TimeMinute      int       `json:"timeMinute"`
}

// UpdatePledgeInput is a partial update; nil fields are left unchanged.
type UpdatePledgeInput struct {
	Name            *string    `json:"name"`
	TargetLatitude  *float64   `json:"targetLatitude"`
	TargetLongitude *float64   `json:"targetLongitude"`
	RadiusMeters    *int       `json:"radiusMeters"`
	StakeCents      *int64     `json:"stakeCents"`
	CharityID       *uuid.UUID `json:"charityId"`
	DaysOfWeek      *[]int     `json:"daysOfWeek"`
	TimeHour        *int       `json:"timeHour"`
	TimeMinute      *int       `json:"timeMinute"`
	Active          *bool      `json:"active"`
}

func buildRecurrence(days []int, hour, minute int) (domain.Recurrence, error) {
	if len(days) == 0 {
		return domain.Recurrence{}, invalid("daysOfWeek", "at least one weekday is required")
	}
	weekdays := make([]time.Weekday, 0, len(days))
	seen := make(map[int]bool, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return domain.Recurrence{}, invalid("daysOfWeek", "weekday %d is outside 0 (Sunday) to 6 (Saturday)", d)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		weekdays = append(weekdays, time.Weekday(d))
	}
	if hour < 0 || hour > 23 {
		return domain.Recurrence{}, invalid("timeHour", "hour %d is outside 0-23", hour)
	}
	if minute < 0 || minute > 59 {
		return domain.Recurrence{}, invalid("timeMinute", "minute %d is outside 0-59", minute)
	}
	return domain.Recurrence{Weekdays: weekdays, Hour: hour, Minute: minute}, nil
}

// validatePledge checks the invariants every stored pledge must satisfy.
func validatePledge(p *domain.Pledge) error {
	if math.IsNaN(p.TargetLatitude) || p.TargetLatitude < -90 || p.TargetLatitude > 90 {
		return invalid("targetLatitude", "must be between -90 and 90")
	}
	if math.IsNaN(p.TargetLongitude) || p.TargetLongitude < -180 || p.TargetLongitude > 180 {
		return invalid("targetLongitude", "must be between -180 and 180")
	}
	if p.RadiusMeters <= 0 {
		return invalid("radiusMeters", "must be greater than zero")
	}
	if p.StakeCents < 0 {
		return invalid("stakeCents", "must not be negative")
	}
	if p.CharityID == uuid.Nil {
		return invalid("charityId", "is required")
	}
	if _, err := buildRecurrence(weekdayInts(p.Recurrence.Weekdays), p.Recurrence.Hour, p.Recurrence.Minute); err != nil {
		return err
	}
	return nil
}

func weekdayInts(days []time.Weekday) []int {
	out := make([]int, 0, len(days))
	for _, d := range days {
		out = append(out, int(d))
	}
	return out
}

func validateFix(fix domain.LocationFix) error {
	if math.IsNaN(fix.Latitude) || fix.Latitude < -90 || fix.Latitude > 90 {
		return invalid("lat", "must be between -90 and 90")
	}
	if math.IsNaN(fix.Longitude) || fix.Longitude < -180 || fix.Longitude > 180 {
		return invalid("lon", "must be between -180 and 180")
	}
	return nil
}
