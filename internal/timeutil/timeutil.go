// Package timeutil converts between user wall-clock input and the canonical
// UTC instants stored for scheduled posts.
package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WallClockLayout is the zone-naive input and display format
const WallClockLayout = "2006-01-02 15:04"

// StorageLayout is the UTC text layout of the post_time column.
// It sorts lexicographically in time order.
const StorageLayout = "2006-01-02 15:04"

// ErrInvalidTimeFormat is returned when input is not a valid YYYY-MM-DD HH:MM
var ErrInvalidTimeFormat = errors.New("invalid date/time format, use YYYY-MM-DD HH:MM")

// LoadZone resolves an IANA zone name. Empty means UTC.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
	}
	return loc, nil
}

// ToCanonical interprets wallClock as local time in zone and returns the
// UTC instant truncated to the minute.
func ToCanonical(wallClock string, zone *time.Location) (time.Time, error) {
	if zone == nil {
		zone = time.UTC
	}
	s := strings.TrimSpace(wallClock)
	// datetime-local inputs submit "YYYY-MM-DDTHH:MM"
	if len(s) == len(WallClockLayout) && s[10] == 'T' {
		s = s[:10] + " " + s[11:]
	}
	local, err := time.ParseInLocation(WallClockLayout, s, zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, wallClock)
	}
	return Canonical(local), nil
}

// Canonical converts any instant to the stored representation: UTC with
// seconds and below dropped.
func Canonical(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// ToDisplay formats a canonical instant as wall-clock time in zone
func ToDisplay(t time.Time, zone *time.Location) string {
	if zone == nil {
		zone = time.UTC
	}
	return t.In(zone).Format(WallClockLayout)
}

// FormatStorage renders an instant for the post_time column
func FormatStorage(t time.Time) string {
	return Canonical(t).Format(StorageLayout)
}

// ParseStorage reads a post_time column value back into a UTC instant
func ParseStorage(s string) (time.Time, error) {
	t, err := time.ParseInLocation(StorageLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed stored time %q: %w", s, err)
	}
	return t, nil
}
