package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceDaily(t *testing.T) {
	due := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)
	next := Advance(due, RecurDaily)
	assert.Equal(t, time.Date(2025, 3, 2, 17, 0, 0, 0, time.UTC), next)
}

func TestAdvanceDailyAcrossDSTBoundary(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// US DST starts 2025-03-09: the calendar day is only 23 wall-clock
	// hours long. Daily advancement must preserve the local clock time,
	// not add a flat 24h.
	due := time.Date(2025, 3, 8, 9, 0, 0, 0, loc)
	next := Advance(due, RecurDaily)

	assert.Equal(t, 9, next.Hour(), "local clock time must be preserved")
	assert.Equal(t, 9, next.Day())
	assert.NotEqual(t, 24*time.Hour, next.Sub(due), "DST day is 23h, not 24h")
}

func TestAdvanceWeekly(t *testing.T) {
	due := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)
	next := Advance(due, RecurWeekly)
	assert.Equal(t, time.Date(2025, 3, 8, 17, 0, 0, 0, time.UTC), next)
}

func TestAdvanceMonthlyClampsToMonthEnd(t *testing.T) {
	testCases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "Jan 31 non-leap year clamps to Feb 28",
			in:   time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC),
			want: time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "Jan 31 leap year clamps to Feb 29",
			in:   time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "Mar 31 clamps to Apr 30",
			in:   time.Date(2025, 3, 31, 8, 30, 0, 0, time.UTC),
			want: time.Date(2025, 4, 30, 8, 30, 0, 0, time.UTC),
		},
		{
			name: "mid-month day is preserved",
			in:   time.Date(2025, 4, 15, 8, 30, 0, 0, time.UTC),
			want: time.Date(2025, 5, 15, 8, 30, 0, 0, time.UTC),
		},
		{
			name: "December rolls into January of next year",
			in:   time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC),
			want: time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Advance(tc.in, RecurMonthly))
		})
	}
}

func TestRecurrenceValidate(t *testing.T) {
	valid := &Recurrence{Pattern: RecurDaily}
	assert.NoError(t, valid.Validate())

	invalid := &Recurrence{Pattern: RecurrencePattern("fortnightly")}
	err := invalid.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRecurrence)
}
