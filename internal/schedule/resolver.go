/**
 * @description
 * Weekly recurrence resolution for pledges. The resolver holds no state beyond the
 * configured zone; every reference instant is passed in by the caller.
 */
package schedule

import (
	"time"

	"github.com/d9rick/GeoPledge/internal/domain"
)

// lookaheadDays is how many days past the reference day are scanned. Scanning the
// reference day plus seven more guarantees the same weekday one week later is seen.
const lookaheadDays = 7

// Resolver evaluates recurrence rules in a single wall-clock zone.
type Resolver struct {
	loc *time.Location
}

// NewResolver creates a resolver for the given zone. A nil zone means UTC.
func NewResolver(loc *time.Location) Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return Resolver{loc: loc}
}

// Location returns the zone the resolver interprets rules in.
func (r Resolver) Location() *time.Location {
	if r.loc == nil {
		return time.UTC
	}
	return r.loc
}

// NextOccurrence returns the first slot of rule strictly after from. When no slot
// is found in the lookahead window it falls back to from itself, so the result is
// best-effort and not guaranteed to lie in the future.
func (r Resolver) NextOccurrence(rule domain.Recurrence, from time.Time) time.Time {
	next, _ := r.NextOccurrenceStrict(rule, from)
	return next
}

// NextOccurrenceStrict is NextOccurrence that also reports whether a strictly
// later slot was actually found.
func (r Resolver) NextOccurrenceStrict(rule domain.Recurrence, from time.Time) (time.Time, bool) {
	local := from.In(r.Location())
	for offset := 0; offset <= lookaheadDays; offset++ {
		candidate := time.Date(
			local.Year(), local.Month(), local.Day()+offset,
			rule.Hour, rule.Minute, 0, 0,
			r.Location(),
		)
		if rule.HasWeekday(candidate.Weekday()) && candidate.After(from) {
			return candidate, true
		}
	}
	return from, false
}

// IsScheduledNow reports whether instant falls inside one of rule's slots. Matching
// is minute-granular: any second within the scheduled minute counts.
func (r Resolver) IsScheduledNow(rule domain.Recurrence, instant time.Time) bool {
	local := instant.In(r.Location())
	if !rule.HasWeekday(local.Weekday()) {
		return false
	}
	return local.Hour() == rule.Hour && local.Minute() == rule.Minute
}

// SlotFor returns the scheduled minute instant belongs to, in the resolver's zone.
func (r Resolver) SlotFor(instant time.Time) time.Time {
	local := instant.In(r.Location())
	return time.Date(
		local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), 0, 0,
		r.Location(),
	)
}
