// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

// MatchResult is the outcome of evaluating a rule's conditions against one
// event. MatchedConditions lists every condition field that was checked and
// passed, including passes on an overall non-match; it feeds the rule test
// harness and dashboard explainability, never control flow.
type MatchResult struct {
	Matches           bool     `json:"matches"`
	MatchedConditions []string `json:"matched_conditions"`
}

// conditionSet is the common shape shared by a rule's explicit condition
// fields and its legacy Conditions object. Semantics: OR within a field
// (set membership), AND across non-nil fields.
type conditionSet struct {
	riskThreshold *float64
	objectTypes   []string
	cameraIDs     []string
	zoneIDs       []string
	minConfidence *float64
}

func explicitConditions(rule *AlertRule) conditionSet {
	return conditionSet{
		riskThreshold: rule.RiskThreshold,
		objectTypes:   rule.ObjectTypes,
		cameraIDs:     rule.CameraIDs,
		zoneIDs:       rule.ZoneIDs,
		minConfidence: rule.MinConfidence,
	}
}

func legacyConditions(c *LegacyConditions) conditionSet {
	return conditionSet{
		riskThreshold: c.RiskThreshold,
		objectTypes:   c.ObjectTypes,
		cameraIDs:     c.CameraIDs,
		zoneIDs:       c.ZoneIDs,
		minConfidence: c.MinConfidence,
	}
}

// evaluate checks every non-nil field and returns the AND verdict plus the
// names of fields that passed. All fields are evaluated even after a
// failure so the passed list stays complete for explainability.
func (c conditionSet) evaluate(event *Event, prefix string) (bool, []string) {
	matches := true
	var passed []string

	check := func(name string, ok bool) {
		if ok {
			passed = append(passed, prefix+name)
		} else {
			matches = false
		}
	}

	if c.riskThreshold != nil {
		check("risk_threshold", event.RiskScore != nil && *event.RiskScore >= *c.riskThreshold)
	}
	if len(c.objectTypes) > 0 {
		check("object_types", intersects(c.objectTypes, event.ObjectTypes))
	}
	if len(c.cameraIDs) > 0 {
		check("camera_ids", containsString(c.cameraIDs, event.CameraID))
	}
	if len(c.zoneIDs) > 0 {
		check("zone_ids", intersects(c.zoneIDs, event.ZoneIDs))
	}
	if c.minConfidence != nil {
		check("min_confidence", event.Confidence >= *c.minConfidence)
	}

	return matches, passed
}

// EvaluateConditions evaluates a rule's AND-combined condition set against
// an event. A rule with every condition field nil matches every event (an
// open rule). When the legacy Conditions object is present its verdict is
// ANDed with the explicit fields'; legacy passes are reported with a
// "legacy." prefix.
func EvaluateConditions(rule *AlertRule, event *Event) MatchResult {
	matches, passed := explicitConditions(rule).evaluate(event, "")

	if rule.Conditions != nil {
		legacyOK, legacyPassed := legacyConditions(rule.Conditions).evaluate(event, "legacy.")
		matches = matches && legacyOK
		passed = append(passed, legacyPassed...)
	}

	return MatchResult{Matches: matches, MatchedConditions: passed}
}

// prefilterMatch is the cheap membership gate run before schedule
// evaluation. A miss on any camera, zone or object-type scope can never
// match regardless of schedule or thresholds, so the engine skips the
// rest of the pipeline for out-of-scope events.
func prefilterMatch(rule *AlertRule, event *Event) bool {
	if !scopeMatch(rule.CameraIDs, rule.ZoneIDs, rule.ObjectTypes, event) {
		return false
	}
	if c := rule.Conditions; c != nil {
		return scopeMatch(c.CameraIDs, c.ZoneIDs, c.ObjectTypes, event)
	}
	return true
}

func scopeMatch(cameraIDs, zoneIDs, objectTypes []string, event *Event) bool {
	if len(cameraIDs) > 0 && !containsString(cameraIDs, event.CameraID) {
		return false
	}
	if len(zoneIDs) > 0 && !intersects(zoneIDs, event.ZoneIDs) {
		return false
	}
	if len(objectTypes) > 0 && !intersects(objectTypes, event.ObjectTypes) {
		return false
	}
	return true
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
