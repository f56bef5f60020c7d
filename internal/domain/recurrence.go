package domain

import (
	"fmt"
	"time"
)

// RecurrencePattern identifies how often a recurring task regenerates.
type RecurrencePattern string

const (
	RecurDaily   RecurrencePattern = "daily"
	RecurWeekly  RecurrencePattern = "weekly"
	RecurMonthly RecurrencePattern = "monthly"
)

// Valid reports whether p is a supported pattern.
func (p RecurrencePattern) Valid() bool {
	return p == RecurDaily || p == RecurWeekly || p == RecurMonthly
}

// Recurrence is the rule governing automatic regeneration of a task after
// completion. Until, when set, is the last due date for which a new
// occurrence may be created.
type Recurrence struct {
	Pattern RecurrencePattern `json:"pattern"`
	Until   *time.Time        `json:"until,omitempty"`
}

// Validate checks that the rule carries a supported pattern.
func (r *Recurrence) Validate() error {
	if !r.Pattern.Valid() {
		return fmt.Errorf("%w: %w: unknown pattern %q", ErrValidation, ErrInvalidRecurrence, r.Pattern)
	}
	return nil
}

// Advance returns the next occurrence of t under the given pattern.
//
// Daily and weekly advancement add calendar days, so the wall-clock time is
// preserved across daylight-saving transitions. Monthly advancement preserves
// the day-of-month, clamping to the last valid day of the target month when
// the original day does not exist (Jan 31 -> Feb 28, or Feb 29 in leap years).
func Advance(t time.Time, pattern RecurrencePattern) time.Time {
	switch pattern {
	case RecurDaily:
		return t.AddDate(0, 0, 1)
	case RecurWeekly:
		return t.AddDate(0, 0, 7)
	case RecurMonthly:
		return addMonthClamped(t)
	default:
		// Rules are validated at creation time; an unknown pattern here is
		// a programming error, not recoverable state.
		panic(fmt.Sprintf("domain: unknown recurrence pattern %q", pattern))
	}
}

// addMonthClamped adds one month, clamping the day-of-month to the last
// valid day of the target month. time.AddDate is not used because it
// normalizes overflow (Jan 31 + 1 month would become Mar 2/3).
func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()

	// Zeroth day of the month after next = last day of next month.
	lastDay := time.Date(year, month+2, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > lastDay {
		day = lastDay
	}

	return time.Date(year, month+1, day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
