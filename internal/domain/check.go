package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckStatus is the outcome of one scheduled occurrence.
type CheckStatus int

const (
	CheckStatusMet CheckStatus = iota + 1
	CheckStatusViolated
)

// String returns the persisted representation of the status.
func (s CheckStatus) String() string {
	switch s {
	case CheckStatusMet:
		return "MET"
	case CheckStatusViolated:
		return "VIOLATED"
	default:
		return fmt.Sprintf("CheckStatus(%d)", int(s))
	}
}

// Valid reports whether s is one of the two known outcomes.
func (s CheckStatus) Valid() bool {
	return s == CheckStatusMet || s == CheckStatusViolated
}

// ParseCheckStatus converts the persisted representation back into a CheckStatus.
func ParseCheckStatus(raw string) (CheckStatus, error) {
	switch raw {
	case "MET":
		return CheckStatusMet, nil
	case "VIOLATED":
		return CheckStatusViolated, nil
	default:
		return 0, fmt.Errorf("unknown check status %q", raw)
	}
}

// MarshalJSON encodes the status as its string form.
func (s CheckStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid check status %d", int(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form of the status.
func (s *CheckStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseCheckStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PledgeCheck is the persisted compliance record for one pledge slot.
type PledgeCheck struct {
	ID            uuid.UUID   `json:"id"`
	PledgeID      uuid.UUID   `json:"pledge_id"`
	ScheduledFor  time.Time   `json:"scheduled_for"`
	Status        CheckStatus `json:"status"`
	UserLatitude  float64     `json:"user_latitude"`
	UserLongitude float64     `json:"user_longitude"`
	CheckedAt     time.Time   `json:"checked_at"`
}

// PledgeView is the read-facing projection of a pledge.
type PledgeView struct {
	ID               uuid.UUID    `json:"id"`
	Name             string       `json:"name"`
	NextScheduledRun time.Time    `json:"nextScheduledRun"`
	StakeCents       int64        `json:"stakeCents"`
	LastStatus       *CheckStatus `json:"lastStatus"`
}
