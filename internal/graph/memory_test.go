package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func seedAccount(t *testing.T, s *MemoryStore, id string) {
	t.Helper()
	if err := s.PutAccount(context.Background(), &domain.Account{ID: id, Status: domain.AccountActive}); err != nil {
		t.Fatalf("PutAccount %s: %v", id, err)
	}
}

func TestMemoryStoreAbsentLookupsReturnNil(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.GetAccount(ctx, "missing")
	if err != nil || a != nil {
		t.Errorf("GetAccount missing = (%v, %v), want (nil, nil)", a, err)
	}
	c, err := s.GetCustomer(ctx, "missing")
	if err != nil || c != nil {
		t.Errorf("GetCustomer missing = (%v, %v), want (nil, nil)", c, err)
	}
	r, err := s.GetFraudRing(ctx, "missing")
	if err != nil || r != nil {
		t.Errorf("GetFraudRing missing = (%v, %v), want (nil, nil)", r, err)
	}
}

func TestMemoryStoreRejectsInvalidEntities(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.PutAccount(ctx, &domain.Account{Status: domain.AccountActive}); err == nil {
		t.Error("expected error for account without id")
	}
	if err := s.PutTransaction(ctx, &domain.Transaction{ID: "tx-1", Amount: -5, DebitAccountID: "a"}); err == nil {
		t.Error("expected error for non-positive amount")
	}
	if err := s.PutTransaction(ctx, &domain.Transaction{ID: "tx-2", Amount: 10}); err == nil {
		t.Error("expected error for transaction with no linked account")
	}
}

func TestMemoryStoreTransactionQueries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, s, "a")
	seedAccount(t, s, "b")
	seedAccount(t, s, "c")

	now := time.Now().UTC()
	txs := []*domain.Transaction{
		{ID: "t3", Amount: 30, DebitAccountID: "a", CreditAccountID: "c", Timestamp: now.Add(-1 * time.Hour)},
		{ID: "t1", Amount: 10, DebitAccountID: "a", CreditAccountID: "b", Timestamp: now.Add(-3 * time.Hour)},
		{ID: "t2", Amount: 20, DebitAccountID: "b", CreditAccountID: "a", Timestamp: now.Add(-2 * time.Hour)},
		{ID: "t0", Amount: 5, DebitAccountID: "b", CreditAccountID: "c", Timestamp: now.Add(-50 * time.Hour)},
	}
	for _, tx := range txs {
		if err := s.PutTransaction(ctx, tx); err != nil {
			t.Fatalf("PutTransaction %s: %v", tx.ID, err)
		}
	}

	got, err := s.TransactionsForAccount(ctx, "a", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("TransactionsForAccount: %v", err)
	}
	wantOrder := []string{"t1", "t2", "t3"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d transactions, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s (timestamp ascending)", i, got[i].ID, id)
		}
	}

	out, err := s.OutgoingTransactions(ctx, "a", time.Time{})
	if err != nil {
		t.Fatalf("OutgoingTransactions: %v", err)
	}
	if len(out) != 2 || out[0].ID != "t1" || out[1].ID != "t3" {
		t.Errorf("outgoing = %v, want [t1 t3]", txIDs(out))
	}

	all, err := s.TransactionsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("TransactionsSince: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("window scan = %d transactions, want 3 (t0 excluded)", len(all))
	}
}

func txIDs(txs []*domain.Transaction) []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}

func TestMemoryStoreNeighbors(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, s, "acct-1")
	seedAccount(t, s, "acct-2")
	err := s.PutCustomer(ctx, &domain.Customer{ID: "cust-1"}, map[string]domain.OwnershipRole{
		"acct-1": domain.OwnerPrimary,
		"acct-2": domain.OwnerJoint,
	})
	if err != nil {
		t.Fatalf("PutCustomer: %v", err)
	}
	err = s.PutDevice(ctx, &domain.Device{ID: "dev-1", LastSeen: time.Now()}, []string{"cust-1"})
	if err != nil {
		t.Fatalf("PutDevice: %v", err)
	}

	paths, err := s.Neighbors(ctx, "cust-1", []domain.RelationshipKind{domain.RelOwns}, 1)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %d, want 2 owned accounts", len(paths))
	}
	for _, p := range paths {
		if len(p.Steps) != 1 || p.Steps[0].Rel != domain.RelOwns {
			t.Errorf("unexpected path %+v", p)
		}
	}

	// Two hops: account -> customer -> device.
	paths, err = s.Neighbors(ctx, "acct-1", []domain.RelationshipKind{domain.RelOwns, domain.RelUsedDevice}, 2)
	if err != nil {
		t.Fatalf("Neighbors depth 2: %v", err)
	}
	foundDevice := false
	for _, p := range paths {
		last := p.Steps[len(p.Steps)-1]
		if last.ToID == "dev-1" && len(p.Steps) == 2 {
			foundDevice = true
		}
	}
	if !foundDevice {
		t.Error("expected a two-hop path reaching dev-1")
	}
}

func TestMemoryStoreSharedInfraViews(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.PutDevice(ctx, &domain.Device{ID: "dev-shared", LastSeen: now}, []string{"cust-1", "cust-2"})
	if err != nil {
		t.Fatalf("PutDevice: %v", err)
	}
	err = s.PutDevice(ctx, &domain.Device{ID: "dev-solo", LastSeen: now}, []string{"cust-1"})
	if err != nil {
		t.Fatalf("PutDevice: %v", err)
	}

	devices, err := s.DevicesSharedAcrossCustomers(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DevicesSharedAcrossCustomers: %v", err)
	}
	if len(devices) != 1 || devices[0].Device.ID != "dev-shared" {
		t.Fatalf("shared devices = %+v, want only dev-shared", devices)
	}
	if len(devices[0].CustomerIDs) != 2 || devices[0].CustomerIDs[0] != "cust-1" {
		t.Errorf("customer ids = %v, want sorted pair", devices[0].CustomerIDs)
	}

	seedAccount(t, s, "a")
	seedAccount(t, s, "b")
	seedAccount(t, s, "c")
	for _, pair := range []struct{ id, from, to string }{{"ip-tx-1", "a", "b"}, {"ip-tx-2", "c", "b"}} {
		err := s.PutTransaction(ctx, &domain.Transaction{
			ID: pair.id, Amount: 100, DebitAccountID: pair.from, CreditAccountID: pair.to,
			Timestamp: now.Add(-time.Hour), IPAddress: "203.0.113.7",
		})
		if err != nil {
			t.Fatalf("PutTransaction: %v", err)
		}
	}

	ips, err := s.IPsSharedAcrossAccounts(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("IPsSharedAcrossAccounts: %v", err)
	}
	if len(ips) != 1 || ips[0].IP.Address != "203.0.113.7" {
		t.Fatalf("shared ips = %+v, want one entry", ips)
	}
	if len(ips[0].AccountIDs) != 3 {
		t.Errorf("accounts on shared ip = %v, want a, b, c", ips[0].AccountIDs)
	}
}

func TestMemoryStoreEngineWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, s, "acct-1")
	err := s.PutTransaction(ctx, &domain.Transaction{
		ID: "tx-1", Amount: 100, DebitAccountID: "acct-1", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("PutTransaction: %v", err)
	}

	if err := s.SetRiskScore(ctx, "acct-1", 240); err != nil {
		t.Fatalf("SetRiskScore: %v", err)
	}
	a, _ := s.GetAccount(ctx, "acct-1")
	if a.RiskScore != 100 {
		t.Errorf("risk score = %.1f, want clamped to 100", a.RiskScore)
	}

	if err := s.SetRiskScore(ctx, "ghost", 10); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SetRiskScore ghost = %v, want ErrNotFound", err)
	}

	if err := s.FlagTransaction(ctx, "tx-1", 0.8); err != nil {
		t.Fatalf("FlagTransaction: %v", err)
	}
	txs, _ := s.TransactionsForAccount(ctx, "acct-1", time.Time{})
	if !txs[0].Flagged || txs[0].FraudScore != 0.8 {
		t.Errorf("flagged = %v score = %.2f, want true / 0.8", txs[0].Flagged, txs[0].FraudScore)
	}
	if err := s.FlagTransaction(ctx, "ghost", 0.5); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FlagTransaction ghost = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreRingUpsert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	members := []domain.RingMember{
		{EntityID: "a", Kind: domain.KindAccount, Role: domain.RoleMule},
		{EntityID: "b", Kind: domain.KindAccount, Role: domain.RoleVictim},
	}

	first := &domain.FraudRing{
		ID: "ring-1", DetectedAt: time.Now(), Confidence: 0.6,
		Status: domain.RingInvestigating, Members: members, TotalAmount: 100,
	}
	first.MemberSignature = first.ComputeSignature()
	if err := s.CreateFraudRing(ctx, first); err != nil {
		t.Fatalf("CreateFraudRing: %v", err)
	}

	// Same component again: refreshed, not duplicated, ID preserved.
	second := &domain.FraudRing{
		ID: "ring-2", DetectedAt: time.Now(), Confidence: 0.9,
		Status: domain.RingInvestigating, Members: members, TotalAmount: 250,
	}
	second.MemberSignature = second.ComputeSignature()
	if err := s.CreateFraudRing(ctx, second); err != nil {
		t.Fatalf("CreateFraudRing upsert: %v", err)
	}
	if second.ID != "ring-1" {
		t.Errorf("upsert id = %s, want original ring-1", second.ID)
	}

	rings, err := s.ListFraudRings(ctx)
	if err != nil {
		t.Fatalf("ListFraudRings: %v", err)
	}
	if len(rings) != 1 {
		t.Fatalf("rings = %d, want 1 after upsert", len(rings))
	}
	if rings[0].Confidence != 0.9 || rings[0].TotalAmount != 250 {
		t.Errorf("ring not refreshed: %+v", rings[0])
	}
}

func TestMemoryStoreAccountsForCustomer(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, s, "acct-2")
	seedAccount(t, s, "acct-1")
	err := s.PutCustomer(ctx, &domain.Customer{ID: "cust-1"}, map[string]domain.OwnershipRole{
		"acct-2": domain.OwnerPrimary,
		"acct-1": domain.OwnerJoint,
	})
	if err != nil {
		t.Fatalf("PutCustomer: %v", err)
	}

	accounts, err := s.AccountsForCustomer(ctx, "cust-1")
	if err != nil {
		t.Fatalf("AccountsForCustomer: %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != "acct-1" || accounts[1].ID != "acct-2" {
		t.Errorf("accounts = %v, want sorted [acct-1 acct-2]", accountIDs(accounts))
	}

	none, err := s.AccountsForCustomer(ctx, "ghost")
	if err != nil {
		t.Fatalf("AccountsForCustomer ghost: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ghost customer accounts = %d, want 0", len(none))
	}
}

func accountIDs(accounts []*domain.Account) []string {
	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	return ids
}
