package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestLRUCacheSetGet(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	if err := c.Set(ctx, "key-1", []byte("value-1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, err := c.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(val) != "value-1" {
		t.Errorf("value = %q, want value-1", val)
	}

	val, err = c.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if val != nil {
		t.Errorf("missing key returned %q, want nil", val)
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	if err := c.Set(ctx, "ephemeral", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	val, err := c.Get(ctx, "ephemeral")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != nil {
		t.Errorf("expired key returned %q, want nil", val)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		if err := c.Set(ctx, key, []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("stats = (%d, %d), want (3, 3)", size, capacity)
	}

	// Oldest entries were evicted.
	val, _ := c.Get(ctx, "key-0")
	if val != nil {
		t.Error("key-0 should have been evicted")
	}
	val, _ = c.Get(ctx, "key-4")
	if val == nil {
		t.Error("key-4 should still be cached")
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	_ = c.Set(ctx, "key-1", []byte("v"), time.Minute)
	if err := c.Delete(ctx, "key-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	val, _ := c.Get(ctx, "key-1")
	if val != nil {
		t.Error("deleted key still present")
	}
}

func TestLRUCacheRiskScoreRoundTrip(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	score := &domain.RiskScore{
		Score:        42.5,
		Factors:      []string{"Velocity: 8 transactions in the last hour"},
		CalculatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := c.SetRiskScore(ctx, "acct-1", score, time.Minute); err != nil {
		t.Fatalf("SetRiskScore: %v", err)
	}

	got, err := c.GetRiskScore(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetRiskScore: %v", err)
	}
	if got == nil || got.Score != score.Score || len(got.Factors) != 1 {
		t.Errorf("got %+v, want %+v", got, score)
	}
	if got.Level() != domain.RiskMedium {
		t.Errorf("level = %s, want medium", got.Level())
	}

	got, err = c.GetRiskScore(ctx, "acct-unknown")
	if err != nil {
		t.Fatalf("GetRiskScore missing: %v", err)
	}
	if got != nil {
		t.Errorf("missing account returned %+v, want nil", got)
	}
}

func TestLRUCacheCounterWindow(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, "acct-1", 50*time.Millisecond)
		if err != nil {
			t.Fatalf("IncrementCounter: %v", err)
		}
		if got != want {
			t.Errorf("counter = %d, want %d", got, want)
		}
	}

	// Window expiry resets the counter.
	time.Sleep(60 * time.Millisecond)
	got, err := c.IncrementCounter(ctx, "acct-1", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if got != 1 {
		t.Errorf("counter after window = %d, want 1", got)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("New memory: %v", err)
	}
	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("New(memory) = %T, want *LRUCache", c)
	}

	if _, err := New(domain.CacheConfig{Type: "bogus"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
