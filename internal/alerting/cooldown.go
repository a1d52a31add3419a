// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/logging"
	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/metrics"
)

// ClaimResult is the outcome of a cooldown claim or duplicate check.
type ClaimResult struct {
	// Claimed is true when the key was free and has now been reserved.
	Claimed bool `json:"claimed"`

	// ExistingAlertID is the alert that owns the live entry when Claimed
	// is false.
	ExistingAlertID string `json:"existing_alert_id,omitempty"`

	// SecondsUntilExpiry is the remaining cooldown when Claimed is false.
	SecondsUntilExpiry int `json:"seconds_until_expiry,omitempty"`
}

// CooldownStore is the sole serialization point of the engine. TryClaim
// must be atomic with respect to concurrent callers for the same key:
// two simultaneous events producing the same key must not both claim.
type CooldownStore interface {
	// TryClaim atomically reserves key for cooldown if no live entry
	// exists, recording alertID as the owner. cooldown == 0 means no
	// deduplication: the claim always succeeds and nothing is stored.
	TryClaim(ctx context.Context, key, alertID string, cooldown time.Duration) (ClaimResult, error)

	// CheckDuplicate reports whether a live entry exists for key without
	// mutating anything.
	CheckDuplicate(ctx context.Context, key string) (ClaimResult, error)

	// Release drops the entry for key, if any. Used to roll back a claim
	// whose alert could not be persisted.
	Release(ctx context.Context, key string) error

	// CleanupExpired actively evicts dead entries and returns the count
	// removed. TryClaim never treats an expired entry as live regardless
	// of whether this has run.
	CleanupExpired(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}

// remainingSeconds converts a time-until-expiry to whole seconds, rounding
// up so a caller never sees 0 for a still-live entry.
func remainingSeconds(expiresAt, now time.Time) int {
	return int(math.Ceil(expiresAt.Sub(now).Seconds()))
}

// dedupEntry is a live cooldown reservation.
type dedupEntry struct {
	AlertID   string    `json:"alert_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MemoryCooldownStore is a mutex-guarded in-process cooldown store.
// Expired entries are evicted lazily on access and by CleanupExpired.
type MemoryCooldownStore struct {
	mu      sync.Mutex
	entries map[string]dedupEntry
	clock   Clock
	closed  bool
}

// NewMemoryCooldownStore creates an in-memory cooldown store. A nil clock
// defaults to time.Now.
func NewMemoryCooldownStore(clock Clock) *MemoryCooldownStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryCooldownStore{
		entries: make(map[string]dedupEntry),
		clock:   clock,
	}
}

// TryClaim implements CooldownStore. The check and the write happen under
// one lock acquisition, never as a read-then-write pair.
func (s *MemoryCooldownStore) TryClaim(_ context.Context, key, alertID string, cooldown time.Duration) (ClaimResult, error) {
	if cooldown <= 0 {
		return ClaimResult{Claimed: true}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ClaimResult{}, ErrStoreClosed
	}

	now := s.clock()
	if existing, ok := s.entries[key]; ok && now.Before(existing.ExpiresAt) {
		metrics.CooldownClaims.WithLabelValues("duplicate").Inc()
		return ClaimResult{
			Claimed:            false,
			ExistingAlertID:    existing.AlertID,
			SecondsUntilExpiry: remainingSeconds(existing.ExpiresAt, now),
		}, nil
	}

	s.entries[key] = dedupEntry{AlertID: alertID, ExpiresAt: now.Add(cooldown)}
	metrics.CooldownClaims.WithLabelValues("claimed").Inc()
	return ClaimResult{Claimed: true}, nil
}

// CheckDuplicate implements CooldownStore.
func (s *MemoryCooldownStore) CheckDuplicate(_ context.Context, key string) (ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ClaimResult{}, ErrStoreClosed
	}

	now := s.clock()
	existing, ok := s.entries[key]
	if !ok || !now.Before(existing.ExpiresAt) {
		return ClaimResult{Claimed: true}, nil
	}
	return ClaimResult{
		Claimed:            false,
		ExistingAlertID:    existing.AlertID,
		SecondsUntilExpiry: remainingSeconds(existing.ExpiresAt, now),
	}, nil
}

// Release implements CooldownStore.
func (s *MemoryCooldownStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.entries, key)
	return nil
}

// CleanupExpired implements CooldownStore.
func (s *MemoryCooldownStore) CleanupExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	now := s.clock()
	count := 0
	for key, entry := range s.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(s.entries, key)
			count++
		}
	}
	metrics.CooldownEntriesSwept.Add(float64(count))
	return count, nil
}

// Size returns the number of entries currently held, live or not.
func (s *MemoryCooldownStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close implements CooldownStore.
func (s *MemoryCooldownStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// SweepService periodically evicts expired cooldown entries. It implements
// suture.Service via Serve.
type SweepService struct {
	store    CooldownStore
	interval time.Duration
}

// NewSweepService creates a sweeper for the given store. Interval defaults
// to one minute.
func NewSweepService(store CooldownStore, interval time.Duration) *SweepService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepService{store: store, interval: interval}
}

// Serve runs the sweep loop until the context is canceled.
func (s *SweepService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			count, err := s.store.CleanupExpired(sweepCtx)
			cancel()
			if err != nil {
				return err
			}
			if count > 0 {
				logging.Debug().Int("count", count).Msg("swept expired cooldown entries")
			}
		}
	}
}
