// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"fmt"
	"strings"
	"time"
)

// weekdayNames maps accepted weekday spellings to time.Weekday.
var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sun":       time.Sunday,
	"mon":       time.Monday,
	"tue":       time.Tuesday,
	"wed":       time.Wednesday,
	"thu":       time.Thursday,
	"fri":       time.Friday,
	"sat":       time.Saturday,
}

// parseClock parses a strict "HH:MM" 24-hour clock string into minutes
// since midnight.
func parseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("clock value out of range: %q", s)
	}
	return hh*60 + mm, nil
}

// ValidateSchedule checks weekday names, clock strings and the timezone.
// Schedules are validated when rules are accepted so evaluation never has
// to handle a malformed schedule.
func ValidateSchedule(s *Schedule) error {
	if s == nil {
		return nil
	}
	for _, day := range s.Days {
		if _, ok := weekdayNames[strings.ToLower(strings.TrimSpace(day))]; !ok {
			return &ScheduleParseError{Field: "days", Value: day}
		}
	}
	if s.StartTime != "" {
		if _, err := parseClock(s.StartTime); err != nil {
			return &ScheduleParseError{Field: "start_time", Value: s.StartTime, Err: err}
		}
	}
	if s.EndTime != "" {
		if _, err := parseClock(s.EndTime); err != nil {
			return &ScheduleParseError{Field: "end_time", Value: s.EndTime, Err: err}
		}
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return &ScheduleParseError{Field: "timezone", Value: s.Timezone, Err: err}
		}
	}
	return nil
}

// dayAllowed reports whether the weekday passes the day filter. An empty
// filter allows every day.
func dayAllowed(days []string, day time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	for _, d := range days {
		if wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(d))]; ok && wd == day {
			return true
		}
	}
	return false
}

// previousWeekday returns the weekday before day.
func previousWeekday(day time.Weekday) time.Weekday {
	return (day + 6) % 7
}

// ScheduleActive reports whether the schedule is active at the given
// instant. A nil schedule is always active.
//
// The instant is converted to the schedule's timezone before any clock or
// weekday comparison. With both bounds set and start > end the window spans
// midnight; the post-midnight tail belongs to the window that started the
// previous day, so the weekday filter is checked against that previous day.
// start == end means active for exactly that minute, not all day.
//
// Schedules must have passed ValidateSchedule; a malformed clock string
// here evaluates as inactive rather than panicking.
func ScheduleActive(s *Schedule, instant time.Time) bool {
	if s == nil {
		return true
	}

	loc := time.UTC
	if s.Timezone != "" {
		if l, err := time.LoadLocation(s.Timezone); err == nil {
			loc = l
		}
	}
	local := instant.In(loc)
	cur := local.Hour()*60 + local.Minute()

	hasStart := s.StartTime != ""
	hasEnd := s.EndTime != ""

	var start, end int
	if hasStart {
		v, err := parseClock(s.StartTime)
		if err != nil {
			return false
		}
		start = v
	}
	if hasEnd {
		v, err := parseClock(s.EndTime)
		if err != nil {
			return false
		}
		end = v
	}

	switch {
	case !hasStart && !hasEnd:
		return dayAllowed(s.Days, local.Weekday())

	case hasStart && !hasEnd:
		return cur >= start && dayAllowed(s.Days, local.Weekday())

	case !hasStart && hasEnd:
		return cur <= end && dayAllowed(s.Days, local.Weekday())

	case start <= end:
		return cur >= start && cur <= end && dayAllowed(s.Days, local.Weekday())

	default:
		// Midnight-spanning window.
		if cur >= start {
			return dayAllowed(s.Days, local.Weekday())
		}
		if cur <= end {
			return dayAllowed(s.Days, previousWeekday(local.Weekday()))
		}
		return false
	}
}
