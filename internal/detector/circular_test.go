package detector

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

func TestCircularFlowFindsCycleOnce(t *testing.T) {
	store := graph.NewMemoryStore()
	seedAccounts(t, store, "acct-a", "acct-b", "acct-c")

	now := time.Now().UTC()
	seedTransactions(t, store, []txSeed{
		{id: "tx-1", from: "acct-a", to: "acct-b", amount: 1000, at: now.Add(-3 * time.Hour), flagged: true},
		{id: "tx-2", from: "acct-b", to: "acct-c", amount: 950, at: now.Add(-2 * time.Hour), flagged: true},
		{id: "tx-3", from: "acct-c", to: "acct-a", amount: 900, at: now.Add(-1 * time.Hour), flagged: true},
	})

	d := &CircularFlow{}
	res := d.Detect(context.Background(), store, domain.DefaultDetectionConfig())

	if res.TimedOut || len(res.SoftErrors) > 0 {
		t.Fatalf("unexpected degradation: timedOut=%v softErrors=%v", res.TimedOut, res.SoftErrors)
	}
	// The same cycle is reachable from all three start accounts but must
	// be reported exactly once.
	if len(res.Evidence) != 1 {
		t.Fatalf("got %d evidence items, want 1", len(res.Evidence))
	}

	ev := res.Evidence[0]
	if ev.Pattern != domain.PatternCircularFlow {
		t.Errorf("pattern = %s, want %s", ev.Pattern, domain.PatternCircularFlow)
	}
	if len(ev.TransactionIDs) != 3 {
		t.Errorf("cycle has %d transactions, want 3", len(ev.TransactionIDs))
	}
	if math.Abs(ev.Confidence-0.8) > 1e-9 {
		t.Errorf("confidence = %v, want 0.8 for fully flagged cycle", ev.Confidence)
	}
	if len(ev.Factors) != 4 {
		t.Errorf("got %d factors, want one per transaction plus summary", len(ev.Factors))
	}
}

func TestCircularFlowConfidenceScalesWithFlaggedFraction(t *testing.T) {
	store := graph.NewMemoryStore()
	seedAccounts(t, store, "acct-a", "acct-b", "acct-c")

	now := time.Now().UTC()
	seedTransactions(t, store, []txSeed{
		{id: "tx-1", from: "acct-a", to: "acct-b", amount: 1000, at: now.Add(-3 * time.Hour), flagged: true},
		{id: "tx-2", from: "acct-b", to: "acct-c", amount: 950, at: now.Add(-2 * time.Hour), flagged: true},
		{id: "tx-3", from: "acct-c", to: "acct-a", amount: 900, at: now.Add(-1 * time.Hour)},
	})

	d := &CircularFlow{}
	res := d.Detect(context.Background(), store, domain.DefaultDetectionConfig())

	if len(res.Evidence) != 1 {
		t.Fatalf("got %d evidence items, want 1", len(res.Evidence))
	}
	want := 0.8 * 2.0 / 3.0
	if math.Abs(res.Evidence[0].Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", res.Evidence[0].Confidence, want)
	}
}

func TestCircularFlowStrictModeSkipsUnflaggedHops(t *testing.T) {
	store := graph.NewMemoryStore()
	seedAccounts(t, store, "acct-a", "acct-b", "acct-c")

	now := time.Now().UTC()
	seedTransactions(t, store, []txSeed{
		{id: "tx-1", from: "acct-a", to: "acct-b", amount: 1000, at: now.Add(-3 * time.Hour), flagged: true},
		{id: "tx-2", from: "acct-b", to: "acct-c", amount: 950, at: now.Add(-2 * time.Hour)},
		{id: "tx-3", from: "acct-c", to: "acct-a", amount: 900, at: now.Add(-1 * time.Hour), flagged: true},
	})

	cfg := domain.DefaultDetectionConfig()
	cfg.StrictCycles = true

	d := &CircularFlow{}
	res := d.Detect(context.Background(), store, cfg)
	if len(res.Evidence) != 0 {
		t.Fatalf("strict mode reported %d cycles through an unflagged hop", len(res.Evidence))
	}
}

func TestCircularFlowHonorsLengthBounds(t *testing.T) {
	store := graph.NewMemoryStore()
	seedAccounts(t, store, "acct-a", "acct-b")

	now := time.Now().UTC()
	// Two-hop ping-pong is below the default minimum cycle length.
	seedTransactions(t, store, []txSeed{
		{id: "tx-1", from: "acct-a", to: "acct-b", amount: 500, at: now.Add(-2 * time.Hour), flagged: true},
		{id: "tx-2", from: "acct-b", to: "acct-a", amount: 500, at: now.Add(-1 * time.Hour), flagged: true},
	})

	d := &CircularFlow{}
	res := d.Detect(context.Background(), store, domain.DefaultDetectionConfig())
	if len(res.Evidence) != 0 {
		t.Fatalf("got %d evidence items for a 2-cycle, want 0", len(res.Evidence))
	}
}

func TestCircularFlowRequiresForwardTimestamps(t *testing.T) {
	store := graph.NewMemoryStore()
	seedAccounts(t, store, "acct-a", "acct-b", "acct-c")

	now := time.Now().UTC()
	// Timestamps strictly decrease around the loop, so no start account
	// sees a forward-in-time traversal: the money could not have flowed
	// around regardless of where the scan enters the cycle.
	seedTransactions(t, store, []txSeed{
		{id: "tx-1", from: "acct-a", to: "acct-b", amount: 1000, at: now.Add(-1 * time.Hour), flagged: true},
		{id: "tx-2", from: "acct-b", to: "acct-c", amount: 950, at: now.Add(-2 * time.Hour), flagged: true},
		{id: "tx-3", from: "acct-c", to: "acct-a", amount: 900, at: now.Add(-3 * time.Hour), flagged: true},
	})

	d := &CircularFlow{}
	res := d.Detect(context.Background(), store, domain.DefaultDetectionConfig())
	if len(res.Evidence) != 0 {
		t.Fatalf("got %d evidence items for a time-inconsistent cycle, want 0", len(res.Evidence))
	}
}

func TestCircularFlowIgnoresStaleCycles(t *testing.T) {
	store := graph.NewMemoryStore()
	seedAccounts(t, store, "acct-a", "acct-b", "acct-c")

	old := time.Now().UTC().Add(-90 * 24 * time.Hour)
	seedTransactions(t, store, []txSeed{
		{id: "tx-1", from: "acct-a", to: "acct-b", amount: 1000, at: old, flagged: true},
		{id: "tx-2", from: "acct-b", to: "acct-c", amount: 950, at: old.Add(time.Hour), flagged: true},
		{id: "tx-3", from: "acct-c", to: "acct-a", amount: 900, at: old.Add(2 * time.Hour), flagged: true},
	})

	d := &CircularFlow{}
	res := d.Detect(context.Background(), store, domain.DefaultDetectionConfig())
	if len(res.Evidence) != 0 {
		t.Fatalf("got %d evidence items outside the window, want 0", len(res.Evidence))
	}
}
