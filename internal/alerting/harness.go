// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"time"
)

// EventTestResult is the per-event outcome of a dry-run rule evaluation.
type EventTestResult struct {
	EventID           string   `json:"event_id"`
	Matches           bool     `json:"matches"`
	ScheduleActive    bool     `json:"schedule_active"`
	MatchedConditions []string `json:"matched_conditions"`
	DedupKeys         []string `json:"dedup_keys,omitempty"`
}

// RuleTestResult summarizes a dry run of one rule over a set of events.
type RuleTestResult struct {
	EventsTested  int               `json:"events_tested"`
	EventsMatched int               `json:"events_matched"`
	MatchRate     float64           `json:"match_rate"`
	Results       []EventTestResult `json:"results"`
}

// TestRule evaluates a candidate rule against sample events without
// touching the cooldown store, the alert store, or any delivery channel.
// It is the backing for the rule-authoring dry-run endpoint: authors see
// exactly what would match, including schedule outcomes and the dedup
// keys each event would produce.
//
// The schedule is evaluated at each event's timestamp; testTime, when
// non-zero, overrides that so authors can probe a schedule at a specific
// instant. An event without a timestamp falls back to the current time,
// matching live evaluation. Enabled is ignored: disabled rules can be
// tested.
func TestRule(rule *AlertRule, events []Event, testTime time.Time) (*RuleTestResult, error) {
	return testRuleAt(rule, events, testTime, time.Now)
}

func testRuleAt(rule *AlertRule, events []Event, testTime time.Time, clock Clock) (*RuleTestResult, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	result := &RuleTestResult{
		EventsTested: len(events),
		Results:      make([]EventTestResult, 0, len(events)),
	}

	for i := range events {
		event := &events[i]

		instant := event.Timestamp
		if !testTime.IsZero() {
			instant = testTime
		} else if instant.IsZero() {
			instant = clock()
		}

		active := ScheduleActive(rule.Schedule, instant)
		match := EvaluateConditions(rule, event)
		matches := active && match.Matches

		r := EventTestResult{
			EventID:           event.ID,
			Matches:           matches,
			ScheduleActive:    active,
			MatchedConditions: match.MatchedConditions,
		}

		if matches {
			result.EventsMatched++
			keys, err := BuildDedupKeys(rule.DedupKeyTemplate, event, rule)
			if err != nil {
				return nil, err
			}
			r.DedupKeys = make([]string, len(keys))
			for j, k := range keys {
				r.DedupKeys[j] = k.Key
			}
		}

		result.Results = append(result.Results, r)
	}

	if result.EventsTested > 0 {
		result.MatchRate = float64(result.EventsMatched) / float64(result.EventsTested)
	}
	return result, nil
}
