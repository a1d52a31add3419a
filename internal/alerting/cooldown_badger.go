// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019/internal/metrics"
)

// errEntryLive is an internal signal carried out of the badger transaction
// when a live entry blocks a claim.
var errEntryLive = errors.New("cooldown entry is live")

// BadgerCooldownStore is a BadgerDB-backed cooldown store. Claims survive
// process restarts, so a crash mid-cooldown cannot cause an alert storm.
//
// Atomicity: the existence check and the write happen inside a single
// badger Update transaction. Concurrent claimers for the same key abort
// each other at commit; the losers retry, observe the winner's live
// entry, and report a duplicate. Badger's native TTL handles eviction;
// CleanupExpired is a forced pass on top of that.
type BadgerCooldownStore struct {
	db     *badger.DB
	prefix []byte
	clock  Clock
	mu     sync.RWMutex
	closed bool
}

// NewBadgerCooldownStore wraps a shared badger instance. A nil clock
// defaults to time.Now.
func NewBadgerCooldownStore(db *badger.DB, clock Clock) *BadgerCooldownStore {
	if clock == nil {
		clock = time.Now
	}
	return &BadgerCooldownStore{
		db:     db,
		prefix: []byte("cooldown:"),
		clock:  clock,
	}
}

func (s *BadgerCooldownStore) makeKey(key string) []byte {
	return append(append([]byte{}, s.prefix...), []byte(key)...)
}

// TryClaim implements CooldownStore.
func (s *BadgerCooldownStore) TryClaim(ctx context.Context, key, alertID string, cooldown time.Duration) (ClaimResult, error) {
	if cooldown <= 0 {
		return ClaimResult{Claimed: true}, nil
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ClaimResult{}, ErrStoreClosed
	}
	s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return ClaimResult{}, errors.Join(ErrStoreUnavailable, err)
	}

	now := s.clock()
	var blocking dedupEntry

	claim := func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			storeKey := s.makeKey(key)

			item, err := txn.Get(storeKey)
			if err == nil {
				var existing dedupEntry
				if valErr := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &existing)
				}); valErr == nil && now.Before(existing.ExpiresAt) {
					blocking = existing
					return errEntryLive
				}
				// Entry expired or unreadable; overwrite below.
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			entry := dedupEntry{AlertID: alertID, ExpiresAt: now.Add(cooldown)}
			data, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			return txn.SetEntry(badger.NewEntry(storeKey, data).WithTTL(cooldown))
		})
	}

	err := claim()
	// A conflict means another claimer committed first. The loser retries
	// so it reads the winner's entry and reports a duplicate instead of
	// surfacing a transient store error.
	for attempts := 0; errors.Is(err, badger.ErrConflict) && attempts < 3; attempts++ {
		err = claim()
	}

	switch {
	case err == nil:
		metrics.CooldownClaims.WithLabelValues("claimed").Inc()
		return ClaimResult{Claimed: true}, nil
	case errors.Is(err, errEntryLive):
		metrics.CooldownClaims.WithLabelValues("duplicate").Inc()
		return ClaimResult{
			Claimed:            false,
			ExistingAlertID:    blocking.AlertID,
			SecondsUntilExpiry: remainingSeconds(blocking.ExpiresAt, now),
		}, nil
	default:
		metrics.CooldownClaims.WithLabelValues("error").Inc()
		return ClaimResult{}, errors.Join(ErrStoreUnavailable, err)
	}
}

// CheckDuplicate implements CooldownStore.
func (s *BadgerCooldownStore) CheckDuplicate(ctx context.Context, key string) (ClaimResult, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ClaimResult{}, ErrStoreClosed
	}
	s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return ClaimResult{}, errors.Join(ErrStoreUnavailable, err)
	}

	now := s.clock()
	result := ClaimResult{Claimed: true}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.makeKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var entry dedupEntry
			if err := json.Unmarshal(val, &entry); err != nil {
				return err
			}
			if now.Before(entry.ExpiresAt) {
				result = ClaimResult{
					Claimed:            false,
					ExistingAlertID:    entry.AlertID,
					SecondsUntilExpiry: remainingSeconds(entry.ExpiresAt, now),
				}
			}
			return nil
		})
	})
	if err != nil {
		return ClaimResult{}, errors.Join(ErrStoreUnavailable, err)
	}
	return result, nil
}

// Release implements CooldownStore.
func (s *BadgerCooldownStore) Release(ctx context.Context, key string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.makeKey(key))
	})
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// CleanupExpired implements CooldownStore. Badger evicts TTL'd entries
// during compaction on its own; this scan forces the issue so the sweeper
// keeps the key space tight under low write volume.
func (s *BadgerCooldownStore) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrStoreClosed
	}
	s.mu.RUnlock()

	now := s.clock()
	count := 0

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var dead [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var entry dedupEntry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				continue
			}
			if !now.Before(entry.ExpiresAt) {
				key := make([]byte, len(item.Key()))
				copy(key, item.Key())
				dead = append(dead, key)
			}
		}

		for _, key := range dead {
			if err := txn.Delete(key); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return count, errors.Join(ErrStoreUnavailable, err)
	}

	metrics.CooldownEntriesSwept.Add(float64(count))
	return count, nil
}

// Close marks the store closed. The badger instance is shared and is not
// closed here.
func (s *BadgerCooldownStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var (
	_ CooldownStore = (*MemoryCooldownStore)(nil)
	_ CooldownStore = (*BadgerCooldownStore)(nil)
)
