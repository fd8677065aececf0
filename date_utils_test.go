package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate_Formats(t *testing.T) {
	pinToday(t, testToday)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"iso", "2024-03-15", "2024-03-15"},
		{"iso single digits", "2024-3-5", "2024-03-05"},
		{"iso with time", "2024-03-15T08:30:00Z", "2024-03-15"},
		{"iso with offset", "2024-03-15T08:30:00-03:00", "2024-03-15"},
		{"regional slash", "15/03/2024", "2024-03-15"},
		{"regional dash", "5-3-2024", "2024-03-05"},
		{"regional dot", "05.03.2024", "2024-03-05"},
		{"surrounding space", "  2024-03-15 ", "2024-03-15"},
		{"next year", "2026-01-01", "2026-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format(isoLayout))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseDate_Rejects(t *testing.T) {
	pinToday(t, testToday)

	for _, input := range []string{
		"",
		"not a date",
		"2024-02-30",
		"30/02/2024",
		"2023-02-29",
		"2024-13-01",
		"2024-00-10",
		"32/01/2024",
		"1899-12-31",
		"2027-01-01",
		"15/03/24",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := parseDate(input)
			assert.ErrorIs(t, err, ErrParse)
			assert.True(t, parseFlexibleDate(input).IsZero())
		})
	}
}

func TestParseDate_LeapDay(t *testing.T) {
	pinToday(t, testToday)

	d, err := parseDate("29/02/2024")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.Format(isoLayout))
}

func TestExtractDate(t *testing.T) {
	pinToday(t, testToday)

	t.Run("first text wins", func(t *testing.T) {
		d := extractDate("Último control 2024-01-10", "Tomado el 02/02/2023")
		assert.Equal(t, "2024-01-10", d.String())
	})

	t.Run("falls through to later text", func(t *testing.T) {
		d := extractDate("sin fecha", "Tomado el 02/02/2023")
		assert.Equal(t, "2023-02-02", d.String())
	})

	t.Run("skips invalid candidates", func(t *testing.T) {
		d := extractDate("31/02/2024 corregido a 01/03/2024")
		assert.Equal(t, "2024-03-01", d.String())
	})

	t.Run("unpadded iso", func(t *testing.T) {
		d := extractDate("Control 2024-1-5")
		assert.Equal(t, "2024-01-05", d.String())
	})

	t.Run("nothing found", func(t *testing.T) {
		assert.True(t, extractDate("", "sin registro").IsZero())
	})
}

func TestToDate(t *testing.T) {
	pinToday(t, testToday)

	d := mustDate(t, "2024-05-01")
	assert.Equal(t, d, toDate(d))
	assert.Equal(t, d, toDate(&d))
	assert.Equal(t, d, toDate("01/05/2024"))
	assert.Equal(t, d, toDate(time.Date(2024, time.May, 1, 18, 0, 0, 0, time.UTC)))
	assert.True(t, toDate(nil).IsZero())
	assert.True(t, toDate(42).IsZero())
	assert.True(t, toDate(time.Time{}).IsZero())
}

func TestIsCurrent_WindowBoundary(t *testing.T) {
	pinToday(t, testToday)

	assert.True(t, isCurrent(daysAgo(0), 365))
	assert.True(t, isCurrent(daysAgo(365), 365), "a record exactly window days old is current")
	assert.False(t, isCurrent(daysAgo(366), 365))
	assert.True(t, isCurrent(daysAgo(30), 30))
	assert.False(t, isCurrent(daysAgo(31), 30))
	assert.False(t, isCurrent(Date{}, 365), "missing date is never current")
}

func TestDaysSince_IgnoresTimeOfDay(t *testing.T) {
	late := time.Date(2025, time.June, 15, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 1, daysSince(Date{time.Date(2025, time.June, 14, 0, 0, 0, 0, time.UTC)}, late))
	assert.Equal(t, 0, daysSince(Date{time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)}, late))
}

func TestAgeFromBirthdate(t *testing.T) {
	pinToday(t, testToday)

	assert.Equal(t, 25, ageFromBirthdate(mustDate(t, "2000-06-15")), "birthday today")
	assert.Equal(t, 24, ageFromBirthdate(mustDate(t, "2000-06-16")), "birthday tomorrow")
	assert.Equal(t, 0, ageFromBirthdate(Date{}))
	assert.Equal(t, 0, ageFromBirthdate(mustDate(t, "2026-01-01")), "future birthdates clamp to zero")
}

func TestDate_JSON(t *testing.T) {
	pinToday(t, testToday)

	var d Date
	require.NoError(t, d.UnmarshalJSON([]byte(`"15/03/2024"`)))
	assert.Equal(t, "2024-03-15", d.String())

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-15"`, string(out))

	require.NoError(t, d.UnmarshalJSON([]byte(`"garbage"`)))
	assert.True(t, d.IsZero())

	require.NoError(t, d.UnmarshalJSON([]byte(`null`)))
	out, err = d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}
