package graph

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newSQLiteStore(t *testing.T) domain.GraphStore {
	t.Helper()
	store, err := New(domain.GraphConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "graph.db"),
	})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStoreRingUpsertPreservesIdentity(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	members := []domain.RingMember{
		{EntityID: "acct-1", Kind: domain.KindAccount, Role: domain.RoleMule},
		{EntityID: "acct-2", Kind: domain.KindAccount, Role: domain.RoleMule},
	}

	first := &domain.FraudRing{
		ID: "ring-1", DetectedAt: time.Now().UTC(), Confidence: 0.6,
		Status: domain.RingConfirmed, TotalAmount: 100, Members: members,
		PatternTypes: []domain.PatternType{domain.PatternFanOut},
	}
	if err := s.CreateFraudRing(ctx, first); err != nil {
		t.Fatalf("CreateFraudRing: %v", err)
	}

	// A later run finds the same component under a fresh ID.
	second := &domain.FraudRing{
		ID: "ring-2", DetectedAt: time.Now().UTC(), Confidence: 0.9,
		Status: domain.RingInvestigating, TotalAmount: 250, Members: members,
		PatternTypes: []domain.PatternType{domain.PatternFanOut, domain.PatternMule},
	}
	if err := s.CreateFraudRing(ctx, second); err != nil {
		t.Fatalf("CreateFraudRing upsert: %v", err)
	}

	// The caller's ring now carries the persisted identity and the
	// investigator-owned status.
	if second.ID != "ring-1" {
		t.Errorf("upserted ring ID = %s, want ring-1", second.ID)
	}
	if second.Status != domain.RingConfirmed {
		t.Errorf("upserted ring status = %s, want %s", second.Status, domain.RingConfirmed)
	}

	rings, err := s.ListFraudRings(ctx)
	if err != nil {
		t.Fatalf("ListFraudRings: %v", err)
	}
	if len(rings) != 1 {
		t.Fatalf("persisted rings = %d, want 1", len(rings))
	}
	got := rings[0]
	if got.ID != "ring-1" || got.Status != domain.RingConfirmed {
		t.Errorf("persisted ring = %s/%s, want ring-1/%s", got.ID, got.Status, domain.RingConfirmed)
	}
	if got.Confidence != 0.9 || got.TotalAmount != 250 {
		t.Errorf("confidence/amount = %v/%v, want refreshed 0.9/250", got.Confidence, got.TotalAmount)
	}
	if len(got.PatternTypes) != 2 {
		t.Errorf("pattern types = %v, want both contributing patterns", got.PatternTypes)
	}

	// The fresh ID was never persisted, so lookups resolve only the
	// original ring.
	if phantom, err := s.GetFraudRing(ctx, "ring-2"); err != nil || phantom != nil {
		t.Errorf("GetFraudRing(ring-2) = %v, %v, want nil, nil", phantom, err)
	}
	byID, err := s.GetFraudRing(ctx, "ring-1")
	if err != nil {
		t.Fatalf("GetFraudRing(ring-1): %v", err)
	}
	if byID == nil || len(byID.Members) != 2 {
		t.Fatalf("GetFraudRing(ring-1) = %+v, want the upserted ring", byID)
	}
}
