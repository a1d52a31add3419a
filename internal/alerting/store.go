// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/logging"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/metrics"
)

const alertSchema = `
CREATE TABLE IF NOT EXISTS alerts (
	id              VARCHAR PRIMARY KEY,
	event_id        VARCHAR NOT NULL,
	rule_id         VARCHAR,
	severity        VARCHAR NOT NULL,
	status          VARCHAR NOT NULL,
	dedup_key       VARCHAR NOT NULL,
	channels        JSON,
	metadata        JSON,
	acknowledged_by VARCHAR,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL,
	delivered_at    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS alert_rules (
	id         VARCHAR PRIMARY KEY,
	name       VARCHAR NOT NULL,
	enabled    BOOLEAN NOT NULL,
	definition JSON NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
`

// DuckDBStore persists alerts and rules in DuckDB. It implements both
// AlertStore and RuleSource. Rules are stored as their full JSON
// definition so nullable condition fields round-trip exactly.
type DuckDBStore struct {
	conn  *sql.DB
	clock Clock

	// Enabled-rule cache. Rule edits are rare relative to event volume,
	// so a short TTL keeps the hot path off the database.
	ruleMu       sync.RWMutex
	cachedRules  []AlertRule
	rulesFetched time.Time
	ruleCacheTTL time.Duration
}

// NewDuckDBStore opens (or creates) the database at path and initializes
// the schema. Use ":memory:" for an ephemeral store.
func NewDuckDBStore(path string, clock Clock) (*DuckDBStore, error) {
	if clock == nil {
		clock = time.Now
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := conn.Exec(alertSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	logging.Info().Str("path", path).Msg("alert store opened")
	return &DuckDBStore{
		conn:         conn,
		clock:        clock,
		ruleCacheTTL: 5 * time.Second,
	}, nil
}

// Close closes the database connection.
func (s *DuckDBStore) Close() error {
	return s.conn.Close()
}

// SaveAlert implements AlertStore.
func (s *DuckDBStore) SaveAlert(ctx context.Context, alert *Alert) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("insert", "alerts", time.Since(start)) }()

	channels, err := json.Marshal(alert.Channels)
	if err != nil {
		return fmt.Errorf("encoding channels: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO alerts (id, event_id, rule_id, severity, status, dedup_key,
			channels, metadata, acknowledged_by, created_at, updated_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.EventID, nullString(alert.RuleID), string(alert.Severity),
		string(alert.Status), alert.DedupKey, string(channels), string(alert.Metadata),
		nullString(alert.AcknowledgedBy), alert.CreatedAt.UTC(), alert.UpdatedAt.UTC(),
		nullTime(alert.DeliveredAt))
	if err != nil {
		return fmt.Errorf("inserting alert %s: %w", alert.ID, err)
	}
	return nil
}

// GetAlert implements AlertStore.
func (s *DuckDBStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "alerts", time.Since(start)) }()

	row := s.conn.QueryRowContext(ctx, `
		SELECT id, event_id, rule_id, severity, status, dedup_key,
			channels::VARCHAR, metadata::VARCHAR, acknowledged_by, created_at, updated_at, delivered_at
		FROM alerts WHERE id = ?`, id)

	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying alert %s: %w", id, err)
	}
	return alert, nil
}

// ListAlerts implements AlertStore. Results are newest first.
func (s *DuckDBStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "alerts", time.Since(start)) }()

	var where []string
	var args []interface{}

	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if len(filter.Severities) > 0 {
		where = append(where, "severity IN ("+placeholders(len(filter.Severities))+")")
		for _, sev := range filter.Severities {
			args = append(args, string(sev))
		}
	}
	if filter.RuleID != "" {
		where = append(where, "rule_id = ?")
		args = append(args, filter.RuleID)
	}
	if filter.StartDate != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		where = append(where, "created_at <= ?")
		args = append(args, filter.EndDate.UTC())
	}

	query := `
		SELECT id, event_id, rule_id, severity, status, dedup_key,
			channels::VARCHAR, metadata::VARCHAR, acknowledged_by, created_at, updated_at, delivered_at
		FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// TransitionAlert implements AlertStore. The transition is a single
// guarded UPDATE: the status check and the write cannot interleave with a
// concurrent transition, so exactly one of two racing callers wins.
func (s *DuckDBStore) TransitionAlert(ctx context.Context, id string, from []AlertStatus, to AlertStatus, at time.Time, by string) (*Alert, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("update", "alerts", time.Since(start)) }()

	set := "status = ?, updated_at = ?"
	args := []interface{}{string(to), at.UTC()}
	if to == StatusDelivered {
		set += ", delivered_at = ?"
		args = append(args, at.UTC())
	}
	if by != "" {
		set += ", acknowledged_by = ?"
		args = append(args, by)
	}

	args = append(args, id)
	query := "UPDATE alerts SET " + set + " WHERE id = ? AND status IN (" + placeholders(len(from)) + ")"
	for _, st := range from {
		args = append(args, string(st))
	}

	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transitioning alert %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transitioning alert %s: %w", id, err)
	}

	if affected == 0 {
		// Guard failed: distinguish missing alert from state conflict.
		current, err := s.GetAlert(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &StateConflictError{AlertID: id, From: current.Status, To: to}
	}

	return s.GetAlert(ctx, id)
}

// ListEnabledRules implements RuleSource. Served from a short-TTL cache;
// SaveRule and SetRuleEnabled invalidate it.
func (s *DuckDBStore) ListEnabledRules(ctx context.Context) ([]AlertRule, error) {
	s.ruleMu.RLock()
	if s.cachedRules != nil && time.Since(s.rulesFetched) < s.ruleCacheTTL {
		rules := s.cachedRules
		s.ruleMu.RUnlock()
		return rules, nil
	}
	s.ruleMu.RUnlock()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("select", "alert_rules", time.Since(start)) }()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT definition::VARCHAR FROM alert_rules WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing enabled rules: %w", err)
	}
	defer rows.Close()

	var rules []AlertRule
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return nil, fmt.Errorf("scanning rule row: %w", err)
		}
		var rule AlertRule
		if err := json.Unmarshal([]byte(def), &rule); err != nil {
			return nil, fmt.Errorf("decoding rule definition: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.ruleMu.Lock()
	s.cachedRules = rules
	s.rulesFetched = time.Now()
	s.ruleMu.Unlock()
	return rules, nil
}

// SaveRule validates and upserts a rule.
func (s *DuckDBStore) SaveRule(ctx context.Context, rule *AlertRule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("upsert", "alert_rules", time.Since(start)) }()

	now := s.clock().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	def, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("encoding rule definition: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO alert_rules (id, name, enabled, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			definition = excluded.definition,
			updated_at = excluded.updated_at`,
		rule.ID, rule.Name, rule.Enabled, string(def), rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving rule %s: %w", rule.ID, err)
	}

	s.invalidateRuleCache()
	return nil
}

// SetRuleEnabled flips a rule's enabled flag without replacing its
// definition.
func (s *DuckDBStore) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("update", "alert_rules", time.Since(start)) }()

	res, err := s.conn.ExecContext(ctx, `
		UPDATE alert_rules
		SET enabled = ?,
			definition = json_merge_patch(definition, ?),
			updated_at = ?
		WHERE id = ?`,
		enabled, fmt.Sprintf(`{"enabled":%t}`, enabled), s.clock().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating rule %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &ValidationError{Field: "id", Reason: "rule not found"}
	}

	s.invalidateRuleCache()
	return nil
}

func (s *DuckDBStore) invalidateRuleCache() {
	s.ruleMu.Lock()
	s.cachedRules = nil
	s.ruleMu.Unlock()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row scanner) (*Alert, error) {
	var (
		alert       Alert
		ruleID      sql.NullString
		channels    sql.NullString
		metadata    sql.NullString
		ackBy       sql.NullString
		deliveredAt sql.NullTime
		severity    string
		status      string
	)

	err := row.Scan(&alert.ID, &alert.EventID, &ruleID, &severity, &status,
		&alert.DedupKey, &channels, &metadata, &ackBy,
		&alert.CreatedAt, &alert.UpdatedAt, &deliveredAt)
	if err != nil {
		return nil, err
	}

	alert.RuleID = ruleID.String
	alert.Severity = Severity(severity)
	alert.Status = AlertStatus(status)
	alert.AcknowledgedBy = ackBy.String
	if channels.Valid && channels.String != "" && channels.String != "null" {
		if err := json.Unmarshal([]byte(channels.String), &alert.Channels); err != nil {
			return nil, fmt.Errorf("decoding channels: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		alert.Metadata = json.RawMessage(metadata.String)
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		alert.DeliveredAt = &t
	}
	return &alert, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

var (
	_ AlertStore = (*DuckDBStore)(nil)
	_ RuleSource = (*DuckDBStore)(nil)
)
