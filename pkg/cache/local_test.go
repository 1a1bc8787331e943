package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestLocalStore_SetAndGet(t *testing.T) {
	store := NewLocalStore(10)
	ctx := context.Background()

	entry := NewCacheEntry([]byte("value"), 1*time.Minute, 5*time.Minute)
	if err := store.Set(ctx, "k", entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != "value" {
		t.Errorf("Data = %q, want %q", got.Data, "value")
	}
}

func TestLocalStore_Get_Miss(t *testing.T) {
	store := NewLocalStore(10)

	_, err := store.Get(context.Background(), "absent")
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestLocalStore_Get_ExpiredEntry(t *testing.T) {
	store := NewLocalStore(10)
	ctx := context.Background()

	expired := &CacheEntry{
		Data:       []byte("old"),
		FreshUntil: time.Now().Add(-2 * time.Hour),
		StaleUntil: time.Now().Add(-1 * time.Hour),
	}
	if err := store.Set(ctx, "k", expired); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := store.Get(ctx, "k"); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}

	// The read also sweeps the expired entry.
	if n, _ := store.Len(ctx); n != 0 {
		t.Errorf("Len = %d after expired read, want 0", n)
	}
}

func TestLocalStore_Get_StaleEntryServed(t *testing.T) {
	store := NewLocalStore(10)
	ctx := context.Background()

	stale := &CacheEntry{
		Data:       []byte("stale"),
		FreshUntil: time.Now().Add(-1 * time.Minute),
		StaleUntil: time.Now().Add(1 * time.Hour),
	}
	if err := store.Set(ctx, "k", stale); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed for stale entry: %v", err)
	}
	if got.State() != StateStale {
		t.Errorf("State = %v, want %v", got.State(), StateStale)
	}
}

func TestLocalStore_EvictsEarliestExpiry(t *testing.T) {
	store := NewLocalStore(3)
	ctx := context.Background()

	// "b" has the earliest stale deadline and must be the eviction victim.
	deadlines := map[string]time.Duration{
		"a": 3 * time.Hour,
		"b": 1 * time.Hour,
		"c": 2 * time.Hour,
	}
	for key, d := range deadlines {
		entry := &CacheEntry{
			Data:       []byte(key),
			FreshUntil: time.Now().Add(d),
			StaleUntil: time.Now().Add(d),
		}
		if err := store.Set(ctx, key, entry); err != nil {
			t.Fatalf("Set(%q) failed: %v", key, err)
		}
	}

	if err := store.Set(ctx, "d", NewCacheEntry([]byte("d"), time.Hour, time.Hour)); err != nil {
		t.Fatalf("Set(d) failed: %v", err)
	}

	if n, _ := store.Len(ctx); n != 3 {
		t.Errorf("Len = %d after overflow insert, want 3", n)
	}
	if _, err := store.Get(ctx, "b"); err != ErrCacheMiss {
		t.Errorf("Expected earliest-expiring key \"b\" to be evicted, got %v", err)
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, err := store.Get(ctx, key); err != nil {
			t.Errorf("key %q unexpectedly missing: %v", key, err)
		}
	}
}

func TestLocalStore_OverwriteDoesNotEvict(t *testing.T) {
	store := NewLocalStore(2)
	ctx := context.Background()

	store.Set(ctx, "a", NewCacheEntry([]byte("1"), time.Hour, 0))
	store.Set(ctx, "b", NewCacheEntry([]byte("2"), time.Hour, 0))

	// Replacing an existing key at capacity must not evict anything.
	if err := store.Set(ctx, "a", NewCacheEntry([]byte("3"), time.Hour, 0)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if n, _ := store.Len(ctx); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != "3" {
		t.Errorf("Data = %q, want %q", got.Data, "3")
	}
}

func TestLocalStore_DeleteAndClear(t *testing.T) {
	store := NewLocalStore(10)
	ctx := context.Background()

	store.Set(ctx, "a", NewCacheEntry([]byte("1"), time.Hour, 0))
	store.Set(ctx, "b", NewCacheEntry([]byte("2"), time.Hour, 0))

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "a"); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n, _ := store.Len(ctx); n != 0 {
		t.Errorf("Len = %d after Clear, want 0", n)
	}
}

func TestLocalStore_DeleteByPrefix(t *testing.T) {
	store := NewLocalStore(10)
	ctx := context.Background()

	for _, key := range []string{"prompt:acme:a:v=0", "prompt:acme:a:v=1", "prompt:acme:b:v=0"} {
		store.Set(ctx, key, NewCacheEntry([]byte("x"), time.Hour, 0))
	}

	if err := store.DeleteByPrefix(ctx, "prompt:acme:a:"); err != nil {
		t.Fatalf("DeleteByPrefix failed: %v", err)
	}

	if n, _ := store.Len(ctx); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
	if _, err := store.Get(ctx, "prompt:acme:b:v=0"); err != nil {
		t.Errorf("unrelated key removed: %v", err)
	}
}

func TestLocalStore_CleanupExpired(t *testing.T) {
	store := NewLocalStore(10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		expired := &CacheEntry{
			Data:       []byte("old"),
			FreshUntil: time.Now().Add(-2 * time.Hour),
			StaleUntil: time.Now().Add(-1 * time.Hour),
		}
		store.Set(ctx, fmt.Sprintf("expired-%d", i), expired)
	}
	store.Set(ctx, "live", NewCacheEntry([]byte("new"), time.Hour, 0))

	if removed := store.CleanupExpired(ctx); removed != 3 {
		t.Errorf("CleanupExpired removed %d, want 3", removed)
	}
	if n, _ := store.Len(ctx); n != 1 {
		t.Errorf("Len = %d after cleanup, want 1", n)
	}
}

func TestLocalStore_Locks(t *testing.T) {
	store := NewLocalStore(10)
	ctx := context.Background()

	acquired, err := store.AcquireLock(ctx, "lock:fetch:k", 1*time.Hour)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !acquired {
		t.Fatal("first acquisition should succeed")
	}

	acquired, err = store.AcquireLock(ctx, "lock:fetch:k", 1*time.Hour)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if acquired {
		t.Error("second acquisition should fail while lock is held")
	}

	if err := store.ReleaseLock(ctx, "lock:fetch:k"); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}

	acquired, _ = store.AcquireLock(ctx, "lock:fetch:k", 1*time.Hour)
	if !acquired {
		t.Error("acquisition after release should succeed")
	}
}

func TestLocalStore_LockExpiresWithoutRelease(t *testing.T) {
	store := NewLocalStore(10)
	ctx := context.Background()

	// Simulated crash: the holder acquires and never releases.
	if acquired, _ := store.AcquireLock(ctx, "lock:fetch:k", 50*time.Millisecond); !acquired {
		t.Fatal("first acquisition should succeed")
	}

	if acquired, _ := store.AcquireLock(ctx, "lock:fetch:k", 50*time.Millisecond); acquired {
		t.Fatal("acquisition before timeout should fail")
	}

	time.Sleep(60 * time.Millisecond)

	if acquired, _ := store.AcquireLock(ctx, "lock:fetch:k", 50*time.Millisecond); !acquired {
		t.Error("acquisition after lock timeout should succeed")
	}
}
