package cache

import (
	"testing"
	"time"
)

func TestSnapshotCacheSetGetDelete(t *testing.T) {
	c := NewSnapshotCache(time.Minute)

	if _, ok := c.Get("user-a"); ok {
		t.Error("empty cache returned a snapshot")
	}

	c.Set("user-a", []byte("snap-1"))
	got, ok := c.Get("user-a")
	if !ok || string(got) != "snap-1" {
		t.Errorf("Get = %q, %v", got, ok)
	}

	// Later payload replaces the earlier one.
	c.Set("user-a", []byte("snap-2"))
	got, _ = c.Get("user-a")
	if string(got) != "snap-2" {
		t.Errorf("expected snap-2, got %q", got)
	}

	c.Delete("user-a")
	if _, ok := c.Get("user-a"); ok {
		t.Error("deleted snapshot still served")
	}
}

func TestSnapshotCacheTTL(t *testing.T) {
	c := NewSnapshotCache(30 * time.Millisecond)
	c.Set("user-a", []byte("stale"))

	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get("user-a"); ok {
		t.Error("expired snapshot still served")
	}

	// Expired entries linger until cleanup removes them.
	if c.Len() != 1 {
		t.Errorf("expected 1 lingering entry, got %d", c.Len())
	}
	if removed := c.Cleanup(); removed != 1 {
		t.Errorf("Cleanup removed %d, want 1", removed)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

func TestSnapshotCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewSnapshotCache(0)
	c.Set("user-a", []byte("forever"))

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("user-a"); !ok {
		t.Error("entry expired with ttl disabled")
	}
	if removed := c.Cleanup(); removed != 0 {
		t.Errorf("Cleanup removed %d with ttl disabled", removed)
	}
}

func TestSnapshotCacheShardsIndependentUsers(t *testing.T) {
	c := NewSnapshotCache(time.Minute)

	users := []string{"user-a", "user-b", "user-c", "user-d"}
	for _, u := range users {
		c.Set(u, []byte(u))
	}
	if c.Len() != len(users) {
		t.Fatalf("expected %d entries, got %d", len(users), c.Len())
	}
	for _, u := range users {
		got, ok := c.Get(u)
		if !ok || string(got) != u {
			t.Errorf("Get(%s) = %q, %v", u, got, ok)
		}
	}
}
