package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoLayout = "2006-01-02"

var (
	// Replaced in tests to pin "today"
	timeNow = time.Now

	isoDateRegex      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[T ][0-9:.]+(?:Z|[+\-]\d{2}:?\d{2})?)?$`)
	regionalDateRegex = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})$`)
	embeddedDateRegex = regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}`)
)

// parseDate accepts ISO (YYYY-MM-DD, optionally with a time part) and regional
// (D/M/YYYY with "/", "-" or "." separators) dates.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	var year, month, day string
	if m := isoDateRegex.FindStringSubmatch(s); m != nil {
		year, month, day = m[1], m[2], m[3]
	} else if m := regionalDateRegex.FindStringSubmatch(s); m != nil {
		day, month, year = m[1], m[2], m[3]
	} else {
		return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrParse, s)
	}

	return buildDate(year, month, day)
}

func buildDate(yearStr, monthStr, dayStr string) (time.Time, error) {
	year, errY := strconv.Atoi(yearStr)
	month, errM := strconv.Atoi(monthStr)
	day, errD := strconv.Atoi(dayStr)
	if errY != nil || errM != nil || errD != nil {
		return time.Time{}, fmt.Errorf("%w: non numeric date parts", ErrParse)
	}

	// Validate ranges before construction
	maxYear := timeNow().Year() + 1
	if year < 1900 || year > maxYear || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: date out of range %04d-%02d-%02d", ErrParse, year, month, day)
	}

	// time.Date normalizes Feb 30 into March, so compare back
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: invalid calendar date %04d-%02d-%02d", ErrParse, year, month, day)
	}

	return t, nil
}

// parseFlexibleDate never fails: anything unparseable is the zero Date.
func parseFlexibleDate(s string) Date {
	t, err := parseDate(s)
	if err != nil {
		return Date{}
	}
	return Date{t}
}

// toDate converts values that may already be parsed.
func toDate(v any) Date {
	switch value := v.(type) {
	case Date:
		return value
	case *Date:
		if value == nil {
			return Date{}
		}
		return *value
	case time.Time:
		if value.IsZero() {
			return Date{}
		}
		return Date{calendarDay(value)}
	case string:
		return parseFlexibleDate(value)
	}
	return Date{}
}

// extractDate returns the first valid date-shaped substring, scanning the
// texts in the order given.
func extractDate(texts ...string) Date {
	for _, text := range texts {
		for _, candidate := range embeddedDateRegex.FindAllString(text, -1) {
			if d := parseFlexibleDate(candidate); !d.IsZero() {
				return d
			}
		}
	}
	return Date{}
}

// Midnight UTC of the calendar day t falls on in its own location
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysSince(d Date, now time.Time) int {
	elapsed := calendarDay(now).Sub(calendarDay(d.Time))
	return int(elapsed / (24 * time.Hour))
}

func isCurrent(d Date, windowDays int) bool {
	if d.IsZero() {
		return false
	}
	return daysSince(d, timeNow()) <= windowDays
}

func ageFromBirthdate(birth Date) int {
	if birth.IsZero() {
		return 0
	}
	age := yearsBetween(birth.Time, timeNow())
	if age < 0 {
		return 0
	}
	return age
}

func yearsBetween(start, end time.Time) int {
	// Get difference in years
	years := end.Year() - start.Year()

	// Adjust if end month or day is before start month or day
	if end.Month() < start.Month() || (end.Month() == start.Month() && end.Day() < start.Day()) {
		years--
	}

	return years
}
