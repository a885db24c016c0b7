package detector

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

func seedAccounts(t *testing.T, store *graph.MemoryStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := store.PutAccount(context.Background(), &domain.Account{
			ID:     id,
			Status: domain.AccountActive,
		})
		if err != nil {
			t.Fatalf("seed account %s: %v", id, err)
		}
	}
}

type txSeed struct {
	id      string
	from    string
	to      string
	amount  float64
	at      time.Time
	flagged bool
	ip      string
}

func seedTransactions(t *testing.T, store *graph.MemoryStore, seeds []txSeed) {
	t.Helper()
	for _, s := range seeds {
		err := store.PutTransaction(context.Background(), &domain.Transaction{
			ID:              s.id,
			Amount:          s.amount,
			Currency:        "USD",
			Timestamp:       s.at,
			Type:            domain.TxTransfer,
			Flagged:         s.flagged,
			DebitAccountID:  s.from,
			CreditAccountID: s.to,
			IPAddress:       s.ip,
		})
		if err != nil {
			t.Fatalf("seed transaction %s: %v", s.id, err)
		}
	}
}

// expiredContext returns a context whose deadline has already passed.
func expiredContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	t.Cleanup(cancel)
	return ctx
}

func TestDetectorsReportTimeoutOnExpiredContext(t *testing.T) {
	store := graph.NewMemoryStore()
	seedAccounts(t, store, "acct-1", "acct-2")
	now := time.Now().UTC()
	seedTransactions(t, store, []txSeed{
		{id: "tx-1", from: "acct-1", to: "acct-2", amount: 100, at: now},
	})

	cfg := domain.DefaultDetectionConfig()
	for _, d := range All() {
		res := d.Detect(expiredContext(t), store, cfg)
		if !res.TimedOut {
			t.Errorf("%s: expected TimedOut on expired context", d.Name())
		}
		if len(res.Warnings()) == 0 {
			t.Errorf("%s: expected a timeout warning", d.Name())
		}
	}
}

func TestAllReturnsStableDetectorOrder(t *testing.T) {
	names := make([]domain.PatternType, 0, len(All()))
	for _, d := range All() {
		names = append(names, d.Name())
	}
	for i, want := range domain.AllPatterns {
		if names[i] != want {
			t.Fatalf("detector %d: got %s, want %s", i, names[i], want)
		}
	}
}
