package detector

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

func TestSharedInfraDetectsSharedDevice(t *testing.T) {
	store := graph.NewMemoryStore()
	now := time.Now().UTC()

	err := store.PutDevice(context.Background(), &domain.Device{
		ID: "dev-1", Type: "mobile", LastSeen: now,
	}, []string{"cust-b", "cust-a"})
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}
	// Single-user device must not produce evidence.
	err = store.PutDevice(context.Background(), &domain.Device{
		ID: "dev-2", Type: "desktop", LastSeen: now,
	}, []string{"cust-a"})
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}

	d := &SharedInfra{}
	res := d.Detect(context.Background(), store, domain.DefaultDetectionConfig())

	if len(res.Evidence) != 1 {
		t.Fatalf("got %d evidence items, want 1", len(res.Evidence))
	}
	ev := res.Evidence[0]
	if len(ev.DeviceIDs) != 1 || ev.DeviceIDs[0] != "dev-1" {
		t.Errorf("devices = %v, want [dev-1]", ev.DeviceIDs)
	}
	if len(ev.CustomerIDs) != 2 || ev.CustomerIDs[0] != "cust-a" || ev.CustomerIDs[1] != "cust-b" {
		t.Errorf("customers = %v, want sorted [cust-a cust-b]", ev.CustomerIDs)
	}
	if math.Abs(ev.Confidence-0.7) > 1e-9 {
		t.Errorf("confidence = %v, want 0.7 for 2 sharers", ev.Confidence)
	}
}

func TestSharedInfraDetectsSharedIP(t *testing.T) {
	store := graph.NewMemoryStore()
	seedAccounts(t, store, "acct-a", "acct-b", "acct-c")

	now := time.Now().UTC()
	seedTransactions(t, store, []txSeed{
		{id: "tx-1", from: "acct-a", to: "acct-c", amount: 100, at: now.Add(-2 * time.Hour), ip: "203.0.113.7"},
		{id: "tx-2", from: "acct-b", to: "acct-c", amount: 100, at: now.Add(-1 * time.Hour), ip: "203.0.113.7"},
	})

	d := &SharedInfra{}
	res := d.Detect(context.Background(), store, domain.DefaultDetectionConfig())

	if len(res.Evidence) != 1 {
		t.Fatalf("got %d evidence items, want 1", len(res.Evidence))
	}
	ev := res.Evidence[0]
	if len(ev.IPs) != 1 || ev.IPs[0] != "203.0.113.7" {
		t.Errorf("ips = %v, want [203.0.113.7]", ev.IPs)
	}
	// Both sides of each transfer touched the IP.
	if len(ev.AccountIDs) != 3 {
		t.Errorf("accounts = %v, want 3 distinct", ev.AccountIDs)
	}
	if math.Abs(ev.Confidence-0.8) > 1e-9 {
		t.Errorf("confidence = %v, want 0.8 for 3 sharers", ev.Confidence)
	}
}

func TestSharedInfraConfidenceCap(t *testing.T) {
	if got := sharedConfidence(10); got != 0.9 {
		t.Errorf("sharedConfidence(10) = %v, want capped 0.9", got)
	}
	if got := sharedConfidence(2); math.Abs(got-0.7) > 1e-9 {
		t.Errorf("sharedConfidence(2) = %v, want 0.7", got)
	}
}

func TestSharedInfraIgnoresStaleDevices(t *testing.T) {
	store := graph.NewMemoryStore()
	old := time.Now().UTC().Add(-120 * 24 * time.Hour)

	err := store.PutDevice(context.Background(), &domain.Device{
		ID: "dev-old", Type: "mobile", LastSeen: old,
	}, []string{"cust-a", "cust-b"})
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}

	d := &SharedInfra{}
	res := d.Detect(context.Background(), store, domain.DefaultDetectionConfig())
	if len(res.Evidence) != 0 {
		t.Fatalf("got %d evidence items for a stale device, want 0", len(res.Evidence))
	}
}
