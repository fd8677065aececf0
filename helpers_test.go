package main

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

var testToday = time.Date(2025, time.June, 15, 10, 30, 0, 0, time.UTC)

// pinToday fixes timeNow for the duration of the test.
func pinToday(t *testing.T, today time.Time) {
	t.Helper()
	previous := timeNow
	timeNow = func() time.Time { return today }
	t.Cleanup(func() { timeNow = previous })
}

func daysAgo(days int) Date {
	return Date{calendarDay(testToday).AddDate(0, 0, -days)}
}

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d := parseFlexibleDate(s)
	if d.IsZero() {
		t.Fatalf("invalid test date %q", s)
	}
	return d
}

func intPtr(i int) *int {
	return &i
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func testBuilder() *AlertBuilder {
	return NewAlertBuilder(defaultCatalog, nil, testLogger())
}
