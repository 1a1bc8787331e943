package cache

import (
	"testing"
	"time"
)

func TestCacheEntry_State(t *testing.T) {
	tests := []struct {
		name       string
		freshUntil time.Time
		staleUntil time.Time
		want       State
	}{
		{
			name:       "fresh entry",
			freshUntil: time.Now().Add(1 * time.Hour),
			staleUntil: time.Now().Add(2 * time.Hour),
			want:       StateFresh,
		},
		{
			name:       "stale entry",
			freshUntil: time.Now().Add(-1 * time.Minute),
			staleUntil: time.Now().Add(1 * time.Hour),
			want:       StateStale,
		},
		{
			name:       "expired entry",
			freshUntil: time.Now().Add(-2 * time.Hour),
			staleUntil: time.Now().Add(-1 * time.Hour),
			want:       StateExpired,
		},
		{
			name:       "just expired",
			freshUntil: time.Now().Add(-2 * time.Second),
			staleUntil: time.Now().Add(-1 * time.Second),
			want:       StateExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{
				FreshUntil: tt.freshUntil,
				StaleUntil: tt.staleUntil,
			}
			if got := entry.State(); got != tt.want {
				t.Errorf("State() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewCacheEntry_Windows(t *testing.T) {
	entry := NewCacheEntry([]byte("payload"), 1*time.Minute, 5*time.Minute)

	if entry.State() != StateFresh {
		t.Errorf("new entry state = %v, want %v", entry.State(), StateFresh)
	}
	if entry.StaleUntil.Before(entry.FreshUntil) {
		t.Errorf("StaleUntil %v before FreshUntil %v", entry.StaleUntil, entry.FreshUntil)
	}

	gap := entry.StaleUntil.Sub(entry.FreshUntil)
	if gap != 5*time.Minute {
		t.Errorf("stale window = %v, want %v", gap, 5*time.Minute)
	}
}

func TestNewCacheEntry_ZeroStaleTTL(t *testing.T) {
	// A zero stale window collapses STALE: the entry goes straight from
	// fresh to expired.
	entry := NewCacheEntry([]byte("payload"), 0, 0)

	if !entry.IsExpired() {
		t.Error("entry with zero ttl and zero stale ttl should be expired immediately")
	}
	if entry.State() != StateExpired {
		t.Errorf("State() = %v, want %v", entry.State(), StateExpired)
	}
}

func TestNewCacheEntry_ZeroTTLCacheThrough(t *testing.T) {
	// ttl=0 with a stale window: immediately non-fresh but still servable.
	entry := NewCacheEntry([]byte("payload"), 0, 1*time.Hour)

	if entry.IsFresh() {
		t.Error("entry with zero ttl should not be fresh")
	}
	if entry.State() != StateStale {
		t.Errorf("State() = %v, want %v", entry.State(), StateStale)
	}
}

func TestCacheEntry_TTL(t *testing.T) {
	tests := []struct {
		name       string
		staleUntil time.Time
		wantMin    time.Duration
		wantMax    time.Duration
	}{
		{
			name:       "one hour remaining",
			staleUntil: time.Now().Add(1 * time.Hour),
			wantMin:    59 * time.Minute,
			wantMax:    61 * time.Minute,
		},
		{
			name:       "already expired",
			staleUntil: time.Now().Add(-1 * time.Hour),
			wantMin:    0,
			wantMax:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{
				StaleUntil: tt.staleUntil,
			}
			got := entry.TTL()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}
