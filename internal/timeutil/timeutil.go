// Package timeutil holds the time conversions shared by the provider client,
// the reminder core and the chat commands. Everything except FormatForDisplay
// is zone independent.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// ProviderLayout is the wire format of clist.by timestamps (always UTC).
	ProviderLayout = "2006-01-02T15:04:05"
	// DisplayLayout renders like "Mon 02.01. 15:04".
	DisplayLayout = "Mon 02.01. 15:04"
	// DefaultZone is used when no display zone is configured.
	DefaultZone = "Europe/Berlin"
)

// ParseProviderTime parses a provider timestamp as UTC.
func ParseProviderTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ProviderLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse provider time %q: %w", s, err)
	}
	return t, nil
}

// FormatProviderTime is the inverse of ParseProviderTime.
func FormatProviderTime(t time.Time) string {
	return t.UTC().Format(ProviderLayout)
}

// FormatForDisplay renders t in loc (UTC when loc is nil).
func FormatForDisplay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DisplayLayout)
}

// RoundToNearestMinute rounds half away from zero: 90s becomes 2m, 29s
// becomes 0.
func RoundToNearestMinute(d time.Duration) time.Duration {
	return d.Round(time.Minute)
}

// LoadLocation resolves an IANA zone name. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}

// FormatDuration renders d as "H:MM:SS", prefixed with "N day(s), " when d
// spans whole days: 2h is "2:00:00", 24h59m is "1 day, 0:59:00".
// Sub-second precision is dropped by flooring. Negative durations follow
// Python's timedelta: the day count is negative and the clock part is not,
// so -5m is "-1 day, 23:55:00".
func FormatDuration(d time.Duration) string {
	return formatClock(d, true)
}

// FormatShortDuration is FormatDuration without the seconds: "2:00",
// "1 day, 2:30".
func FormatShortDuration(d time.Duration) string {
	return formatClock(d, false)
}

func formatClock(d time.Duration, seconds bool) string {
	total := int64(d / time.Second)
	if d%time.Second < 0 {
		total--
	}
	days := total / 86400
	rest := total % 86400
	if rest < 0 {
		days--
		rest += 86400
	}
	h, m, s := rest/3600, (rest%3600)/60, rest%60

	var b strings.Builder
	if days != 0 {
		b.WriteString(strconv.FormatInt(days, 10))
		if days == 1 || days == -1 {
			b.WriteString(" day, ")
		} else {
			b.WriteString(" days, ")
		}
	}
	b.WriteString(strconv.FormatInt(h, 10))
	fmt.Fprintf(&b, ":%02d", m)
	if seconds {
		fmt.Fprintf(&b, ":%02d", s)
	}
	return b.String()
}
