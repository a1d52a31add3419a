// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"strings"
)

// DefaultDedupKeyTemplate is used when a rule leaves DedupKeyTemplate empty.
const DefaultDedupKeyTemplate = "{rule_id}:{camera_id}"

// maxDedupKeyLength bounds the cooldown-store key space.
const maxDedupKeyLength = 256

// placeholderObjectType triggers per-object-type key fan-out.
const placeholderObjectType = "{object_type}"

var knownPlaceholders = []string{"{camera_id}", "{rule_id}", placeholderObjectType}

// DedupKey is one concrete cooldown key derived from a rule's template.
// ObjectType is set when the template fanned out per object class.
type DedupKey struct {
	Key        string
	ObjectType string
}

// validKeyChar reports whether c is allowed in a cooldown-store key:
// alphanumeric, underscore, hyphen, colon.
func validKeyChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '-', c == ':':
		return true
	}
	return false
}

// ValidateDedupKeyTemplate rejects templates with unknown placeholders or
// literal characters outside the key charset. Used at rule-validation time.
func ValidateDedupKeyTemplate(template string) error {
	if template == "" {
		return nil
	}
	stripped := template
	for _, p := range knownPlaceholders {
		stripped = strings.ReplaceAll(stripped, p, "")
	}
	if strings.ContainsAny(stripped, "{}") {
		return &ValidationError{Field: "dedup_key_template", Reason: "unknown placeholder in template"}
	}
	for i := 0; i < len(stripped); i++ {
		if !validKeyChar(stripped[i]) {
			return &ValidationError{
				Field:  "dedup_key_template",
				Reason: "template contains characters outside [A-Za-z0-9_:-]",
			}
		}
	}
	return nil
}

// checkKey validates a fully substituted key against the store key space.
func checkKey(key string) error {
	if key == "" {
		return &ValidationError{Field: "dedup_key", Reason: "key is empty"}
	}
	if len(key) > maxDedupKeyLength {
		return &ValidationError{Field: "dedup_key", Reason: "key exceeds maximum length"}
	}
	for i := 0; i < len(key); i++ {
		if !validKeyChar(key[i]) {
			return &ValidationError{Field: "dedup_key", Reason: "key contains characters outside [A-Za-z0-9_:-]"}
		}
	}
	return nil
}

// BuildDedupKeys performs literal substitution of {camera_id}, {rule_id}
// and {object_type} against the event and rule. When the template contains
// {object_type} and the event carries multiple object types, one key is
// built per distinct type so each object class claims and suppresses
// independently. Invalid templates or values surface as a *ValidationError
// before any store interaction.
func BuildDedupKeys(template string, event *Event, rule *AlertRule) ([]DedupKey, error) {
	if template == "" {
		template = DefaultDedupKeyTemplate
	}
	if err := ValidateDedupKeyTemplate(template); err != nil {
		return nil, err
	}

	base := strings.ReplaceAll(template, "{camera_id}", event.CameraID)
	base = strings.ReplaceAll(base, "{rule_id}", rule.ID)

	if !strings.Contains(base, placeholderObjectType) {
		if err := checkKey(base); err != nil {
			return nil, err
		}
		return []DedupKey{{Key: base}}, nil
	}

	objectTypes := event.ObjectTypes
	if len(objectTypes) == 0 {
		objectTypes = []string{"unknown"}
	}

	keys := make([]DedupKey, 0, len(objectTypes))
	seen := make(map[string]struct{}, len(objectTypes))
	for _, ot := range objectTypes {
		if _, dup := seen[ot]; dup {
			continue
		}
		seen[ot] = struct{}{}

		key := strings.ReplaceAll(base, placeholderObjectType, ot)
		if err := checkKey(key); err != nil {
			return nil, err
		}
		keys = append(keys, DedupKey{Key: key, ObjectType: ot})
	}
	return keys, nil
}

// ValidateRule checks everything a rule author can get wrong: severity,
// condition ranges, cooldown, schedule and dedup template. Rules are
// validated before they reach the engine, so evaluation never errors on
// rule shape.
func ValidateRule(rule *AlertRule) error {
	if rule.ID == "" {
		return &ValidationError{Field: "id", Reason: "rule id is required"}
	}
	if !rule.Severity.Valid() {
		return &ValidationError{Field: "severity", Reason: "must be one of low, medium, high, critical"}
	}
	if rule.CooldownSeconds != nil && *rule.CooldownSeconds < 0 {
		return &ValidationError{Field: "cooldown_seconds", Reason: "must be >= 0"}
	}
	if err := validateRange("risk_threshold", rule.RiskThreshold, 0, 100); err != nil {
		return err
	}
	if err := validateRange("min_confidence", rule.MinConfidence, 0, 1); err != nil {
		return err
	}
	if rule.Conditions != nil {
		if err := validateRange("conditions.risk_threshold", rule.Conditions.RiskThreshold, 0, 100); err != nil {
			return err
		}
		if err := validateRange("conditions.min_confidence", rule.Conditions.MinConfidence, 0, 1); err != nil {
			return err
		}
	}
	if err := ValidateSchedule(rule.Schedule); err != nil {
		return err
	}
	return ValidateDedupKeyTemplate(rule.DedupKeyTemplate)
}

func validateRange(field string, v *float64, lo, hi float64) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return &ValidationError{Field: field, Reason: "value out of range"}
	}
	return nil
}
