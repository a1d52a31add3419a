// Nemotron Home Security Intelligence - Alert Decision Engine
// Copyright 2026 Mike Svoboda (mikesvoboda)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mikesvoboda/nemotron-v3-home-security-intelligence-sub019

package alerting

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCooldownStoreTryClaim(t *testing.T) {
	clock := newTestClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	store := NewMemoryCooldownStore(clock.Now)
	ctx := context.Background()

	first, err := store.TryClaim(ctx, "r1:front-door", "alert-1", 300*time.Second)
	if err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}
	if !first.Claimed {
		t.Fatal("first claim should succeed")
	}

	clock.Advance(10 * time.Second)
	second, err := store.TryClaim(ctx, "r1:front-door", "alert-2", 300*time.Second)
	if err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}
	if second.Claimed {
		t.Fatal("second claim inside the cooldown should be suppressed")
	}
	if second.ExistingAlertID != "alert-1" {
		t.Errorf("ExistingAlertID = %q, want alert-1", second.ExistingAlertID)
	}
	if second.SecondsUntilExpiry != 290 {
		t.Errorf("SecondsUntilExpiry = %d, want 290", second.SecondsUntilExpiry)
	}
}

func TestMemoryCooldownStoreExpiry(t *testing.T) {
	clock := newTestClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	store := NewMemoryCooldownStore(clock.Now)
	ctx := context.Background()

	if _, err := store.TryClaim(ctx, "k", "a1", 60*time.Second); err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}

	clock.Advance(60 * time.Second)
	result, err := store.TryClaim(ctx, "k", "a2", 60*time.Second)
	if err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}
	if !result.Claimed {
		t.Error("claim at exact expiry instant should succeed")
	}
}

func TestMemoryCooldownStoreZeroCooldown(t *testing.T) {
	store := NewMemoryCooldownStore(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := store.TryClaim(ctx, "k", "a", 0)
		if err != nil {
			t.Fatalf("TryClaim() error = %v", err)
		}
		if !result.Claimed {
			t.Fatalf("claim %d with zero cooldown should succeed", i)
		}
	}
	if store.Size() != 0 {
		t.Errorf("zero-cooldown claims stored %d entries, want 0", store.Size())
	}
}

func TestMemoryCooldownStoreConcurrentClaims(t *testing.T) {
	store := NewMemoryCooldownStore(nil)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	claimed := make([]bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := store.TryClaim(ctx, "contended", "a", time.Minute)
			if err != nil {
				t.Errorf("TryClaim() error = %v", err)
				return
			}
			claimed[i] = result.Claimed
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range claimed {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("%d goroutines claimed, want exactly 1", winners)
	}
}

func TestMemoryCooldownStoreCheckDuplicate(t *testing.T) {
	clock := newTestClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	store := NewMemoryCooldownStore(clock.Now)
	ctx := context.Background()

	free, err := store.CheckDuplicate(ctx, "k")
	if err != nil {
		t.Fatalf("CheckDuplicate() error = %v", err)
	}
	if !free.Claimed {
		t.Error("unknown key should report claimable")
	}

	if _, err := store.TryClaim(ctx, "k", "a1", time.Minute); err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}

	dup, err := store.CheckDuplicate(ctx, "k")
	if err != nil {
		t.Fatalf("CheckDuplicate() error = %v", err)
	}
	if dup.Claimed {
		t.Error("live key should report duplicate")
	}
	if dup.ExistingAlertID != "a1" {
		t.Errorf("ExistingAlertID = %q, want a1", dup.ExistingAlertID)
	}

	// Read-only: a probe must not extend or create entries.
	if store.Size() != 1 {
		t.Errorf("Size() = %d after probes, want 1", store.Size())
	}
}

func TestMemoryCooldownStoreRelease(t *testing.T) {
	store := NewMemoryCooldownStore(nil)
	ctx := context.Background()

	if _, err := store.TryClaim(ctx, "k", "a1", time.Minute); err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}
	if err := store.Release(ctx, "k"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	result, err := store.TryClaim(ctx, "k", "a2", time.Minute)
	if err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}
	if !result.Claimed {
		t.Error("claim after release should succeed")
	}
}

func TestMemoryCooldownStoreCleanupExpired(t *testing.T) {
	clock := newTestClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	store := NewMemoryCooldownStore(clock.Now)
	ctx := context.Background()

	if _, err := store.TryClaim(ctx, "short", "a1", 30*time.Second); err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}
	if _, err := store.TryClaim(ctx, "long", "a2", 10*time.Minute); err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}

	clock.Advance(time.Minute)
	count, err := store.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CleanupExpired() = %d, want 1", count)
	}
	if store.Size() != 1 {
		t.Errorf("Size() = %d after cleanup, want 1", store.Size())
	}
}

func TestMemoryCooldownStoreClosed(t *testing.T) {
	store := NewMemoryCooldownStore(nil)
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := store.TryClaim(context.Background(), "k", "a", time.Minute); err != ErrStoreClosed {
		t.Errorf("TryClaim() after close error = %v, want ErrStoreClosed", err)
	}
	if _, err := store.CheckDuplicate(context.Background(), "k"); err != ErrStoreClosed {
		t.Errorf("CheckDuplicate() after close error = %v, want ErrStoreClosed", err)
	}
}

func TestRemainingSeconds(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		delta time.Duration
		want  int
	}{
		{290 * time.Second, 290},
		{500 * time.Millisecond, 1},
		{60*time.Second + time.Millisecond, 61},
	}
	for _, tt := range tests {
		if got := remainingSeconds(now.Add(tt.delta), now); got != tt.want {
			t.Errorf("remainingSeconds(+%v) = %d, want %d", tt.delta, got, tt.want)
		}
	}
}
