package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/velocity"
)

func newTestService(t *testing.T) (*Service, *graph.MemoryStore) {
	t.Helper()
	store := graph.NewMemoryStore()
	vel := velocity.NewService(store, nil)
	return NewService(store, nil, vel, nil), store
}

func seedAccount(t *testing.T, store *graph.MemoryStore, id, country string, risk float64) {
	t.Helper()
	err := store.PutAccount(context.Background(), &domain.Account{
		ID: id, Status: domain.AccountActive, Country: country, RiskScore: risk,
	})
	if err != nil {
		t.Fatalf("seed account %s: %v", id, err)
	}
}

func seedTx(t *testing.T, store *graph.MemoryStore, tx domain.Transaction) {
	t.Helper()
	if tx.Amount == 0 {
		tx.Amount = 100
	}
	tx.Currency = "USD"
	tx.Type = domain.TxTransfer
	if err := store.PutTransaction(context.Background(), &tx); err != nil {
		t.Fatalf("seed transaction %s: %v", tx.ID, err)
	}
}

func TestScoreAccountVelocityComponent(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "acct-1", "US", 0)
	seedAccount(t, store, "acct-2", "US", 0)

	now := time.Now().UTC()
	for i, id := range []string{"tx-1", "tx-2", "tx-3"} {
		seedTx(t, store, domain.Transaction{
			ID: id, Timestamp: now.Add(-time.Duration(i+1) * time.Minute),
			DebitAccountID: "acct-1", CreditAccountID: "acct-2",
		})
	}

	score, err := svc.ScoreAccount(context.Background(), "acct-1", nil)
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	if math.Abs(score.Score-6) > 1e-9 {
		t.Errorf("score = %v, want 6 (3 transactions x 2)", score.Score)
	}
	if len(score.Factors) != 1 || !strings.Contains(score.Factors[0], "3 transactions") {
		t.Errorf("factors = %v, want a single velocity factor", score.Factors)
	}
}

func TestScoreAccountVelocityCapped(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "acct-1", "US", 0)
	seedAccount(t, store, "acct-2", "US", 0)

	now := time.Now().UTC()
	for i := 0; i < 40; i++ {
		seedTx(t, store, domain.Transaction{
			ID: fmt.Sprintf("tx-%02d", i), Timestamp: now.Add(-time.Duration(i) * time.Second),
			DebitAccountID: "acct-1", CreditAccountID: "acct-2",
		})
	}

	score, err := svc.ScoreAccount(context.Background(), "acct-1", nil)
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	if score.Score != CapVelocity {
		t.Errorf("score = %v, want velocity capped at %v", score.Score, CapVelocity)
	}
}

func TestScoreAccountPatternComponent(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "acct-1", "US", 0)
	seedAccount(t, store, "acct-2", "US", 0)

	now := time.Now().UTC()
	seedTx(t, store, domain.Transaction{
		ID: "tx-old-flagged", Timestamp: now.Add(-48 * time.Hour), Flagged: true,
		DebitAccountID: "acct-1", CreditAccountID: "acct-2",
	})
	seedTx(t, store, domain.Transaction{
		ID: "tx-old-flagged-2", Timestamp: now.Add(-72 * time.Hour), Flagged: true,
		DebitAccountID: "acct-2", CreditAccountID: "acct-1",
	})

	score, err := svc.ScoreAccount(context.Background(), "acct-1", nil)
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	if math.Abs(score.Score-10) > 1e-9 {
		t.Errorf("score = %v, want 10 (2 flagged x 5)", score.Score)
	}
}

func TestScoreAccountPersistsAndFlags(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "acct-1", "US", 0)
	seedAccount(t, store, "acct-2", "US", 0)

	now := time.Now().UTC()
	seedTx(t, store, domain.Transaction{
		ID: "tx-1", Timestamp: now.Add(-10 * time.Minute),
		DebitAccountID: "acct-1", CreditAccountID: "acct-2",
	})

	evidence := []domain.Evidence{{
		Pattern:        domain.PatternFanOut,
		Confidence:     0.6,
		TransactionIDs: []string{"tx-1"},
		AccountIDs:     []string{"acct-1", "acct-2"},
	}}

	score, err := svc.ScoreAccount(context.Background(), "acct-1", evidence)
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}

	account, err := store.GetAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if account.RiskScore != score.Score {
		t.Errorf("persisted score = %v, want %v", account.RiskScore, score.Score)
	}

	txs, err := store.TransactionsForAccount(context.Background(), "acct-1", time.Time{})
	if err != nil {
		t.Fatalf("TransactionsForAccount: %v", err)
	}
	if !txs[0].Flagged || txs[0].FraudScore != 0.6 {
		t.Errorf("tx flagged=%v fraudScore=%v, want flagged with 0.6", txs[0].Flagged, txs[0].FraudScore)
	}
}

func TestScoreAccountCountsRunEvidenceAsPattern(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "acct-1", "US", 0)
	seedAccount(t, store, "acct-2", "US", 0)

	// Quiet history: one unflagged transaction outside the velocity
	// window. Only this run's evidence can move the score.
	seedTx(t, store, domain.Transaction{
		ID: "tx-1", Timestamp: time.Now().UTC().Add(-30 * time.Hour),
		DebitAccountID: "acct-1", CreditAccountID: "acct-2",
	})

	evidence := []domain.Evidence{{
		Pattern:        domain.PatternFanOut,
		Confidence:     0.6,
		TransactionIDs: []string{"tx-1"},
		AccountIDs:     []string{"acct-1", "acct-2"},
	}}

	score, err := svc.ScoreAccount(context.Background(), "acct-1", evidence)
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	// The freshly flagged transaction feeds the pattern component of
	// the same call.
	if math.Abs(score.Score-5) > 1e-9 {
		t.Errorf("score = %v, want 5 (1 flagged x 5)", score.Score)
	}
	found := false
	for _, f := range score.Factors {
		if strings.Contains(f, "Pattern") {
			found = true
		}
	}
	if !found {
		t.Errorf("factors = %v, want a pattern factor", score.Factors)
	}
}

func TestScoreAccountInfrastructureComponent(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "acct-1", "US", 0)
	seedAccount(t, store, "acct-risky", "US", 90)

	evidence := []domain.Evidence{{
		Pattern:    domain.PatternSharedInfra,
		Confidence: 0.7,
		AccountIDs: []string{"acct-1", "acct-risky"},
		IPs:        []string{"203.0.113.9"},
	}}

	score, err := svc.ScoreAccount(context.Background(), "acct-1", evidence)
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	if math.Abs(score.Score-15) > 1e-9 {
		t.Errorf("score = %v, want 15 for a high-risk infrastructure link", score.Score)
	}

	// Escalates to 20 once the linked account joins a confirmed ring.
	err = store.CreateFraudRing(context.Background(), &domain.FraudRing{
		ID: "ring-1", Status: domain.RingConfirmed, DetectedAt: time.Now().UTC(),
		Members: []domain.RingMember{
			{EntityID: "acct-risky", Kind: domain.KindAccount, Role: domain.RoleMule},
			{EntityID: "acct-other", Kind: domain.KindAccount, Role: domain.RoleVictim},
		},
	})
	if err != nil {
		t.Fatalf("CreateFraudRing: %v", err)
	}

	score, err = svc.ScoreAccount(context.Background(), "acct-1", evidence)
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	if math.Abs(score.Score-CapInfra) > 1e-9 {
		t.Errorf("score = %v, want %v for a confirmed-ring link", score.Score, CapInfra)
	}
}

func TestScoreAccountGeographicComponent(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "acct-1", "US", 0)
	seedAccount(t, store, "acct-foreign", "PA", 0)

	// Outside the velocity window, inside the strategy window.
	seedTx(t, store, domain.Transaction{
		ID: "tx-1", Timestamp: time.Now().UTC().Add(-36 * time.Hour),
		DebitAccountID: "acct-1", CreditAccountID: "acct-foreign",
	})

	score, err := svc.ScoreAccount(context.Background(), "acct-1", nil)
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	// One mismatch (5) + one extra country (3).
	if math.Abs(score.Score-8) > 1e-9 {
		t.Errorf("score = %v, want 8", score.Score)
	}
	found := false
	for _, f := range score.Factors {
		if strings.Contains(f, "Geographic") {
			found = true
		}
	}
	if !found {
		t.Errorf("factors = %v, want a geographic factor", score.Factors)
	}
}

func TestScoreAccountClampAndFactors(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "acct-1", "US", 0)

	score, err := svc.ScoreAccount(context.Background(), "acct-1", nil)
	if err != nil {
		t.Fatalf("ScoreAccount: %v", err)
	}
	if score.Score != 0 {
		t.Errorf("quiet account score = %v, want 0", score.Score)
	}
	if len(score.Factors) != 0 {
		t.Errorf("quiet account factors = %v, want none", score.Factors)
	}
	if score.Score < 0 || score.Score > 100 {
		t.Errorf("score %v outside [0,100]", score.Score)
	}
}

func TestScoreAccountMissing(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ScoreAccount(context.Background(), "nope", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestScoreCustomer(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seedAccount(t, store, "acct-1", "US", 60)
	seedAccount(t, store, "acct-2", "US", 40)
	err := store.PutCustomer(ctx, &domain.Customer{
		ID: "cust-1", KYCStatus: domain.KYCFailed,
	}, map[string]domain.OwnershipRole{
		"acct-1": domain.OwnerPrimary,
		"acct-2": domain.OwnerPrimary,
	})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	score, err := svc.ScoreCustomer(ctx, "cust-1")
	if err != nil {
		t.Fatalf("ScoreCustomer: %v", err)
	}
	// 25 (KYC failed) + 30 * (50/100) = 40.
	if math.Abs(score.Score-40) > 1e-9 {
		t.Errorf("score = %v, want 40", score.Score)
	}
	if len(score.Factors) != 2 {
		t.Errorf("factors = %v, want KYC and account-risk factors", score.Factors)
	}
}

func TestScoreCustomerMissing(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ScoreCustomer(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
