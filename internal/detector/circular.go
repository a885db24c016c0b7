package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// maxCycleEvidence caps the evidence items one circular scan emits.
const maxCycleEvidence = 100

// cycleBaseConfidence is the confidence of a fully flagged cycle; it is
// scaled down by the flagged fraction when unflagged hops are present.
const cycleBaseConfidence = 0.8

// CircularFlow finds directed transaction cycles that return money to
// its origin account: A -> B -> C -> A.
//
// The scan is a bounded-depth DFS from every account over outgoing
// transactions inside the trailing window. Worst case is O(N*D^L) for N
// accounts, average out-degree D and max cycle length L, so the depth
// bound and window are load-bearing, not tuning.
type CircularFlow struct{}

// Name returns the pattern type.
func (d *CircularFlow) Name() domain.PatternType { return domain.PatternCircularFlow }

// Detect scans for cycles of length within [MinCycleLength, MaxCycleLength].
func (d *CircularFlow) Detect(ctx context.Context, store domain.GraphStore, cfg domain.DetectionConfig) *Result {
	res := &Result{Pattern: domain.PatternCircularFlow}
	since := time.Now().UTC().Add(-cfg.CycleWindow())

	accountIDs, err := store.ListAccountIDs(ctx)
	if err != nil {
		if stop, timedOut := cancelled(ctx); stop {
			res.TimedOut = timedOut
			return res
		}
		res.SoftErrors = append(res.SoftErrors, fmt.Sprintf("list accounts: %v", err))
		return res
	}

	scan := &cycleScan{
		store:    store,
		cfg:      cfg,
		since:    since,
		outgoing: make(map[string][]*domain.Transaction),
		seen:     make(map[string]bool),
		res:      res,
	}

	for _, accountID := range accountIDs {
		if stop, timedOut := cancelled(ctx); stop {
			res.TimedOut = timedOut
			return res
		}
		scan.walk(ctx, accountID, accountID, nil, map[string]bool{accountID: true})
		if len(res.Evidence) >= maxCycleEvidence {
			break
		}
	}

	return res
}

type cycleScan struct {
	store    domain.GraphStore
	cfg      domain.DetectionConfig
	since    time.Time
	outgoing map[string][]*domain.Transaction
	seen     map[string]bool // canonical cycle signatures
	res      *Result
}

// walk extends the transaction path from current, closing a cycle when
// it returns to origin within the length bounds.
func (s *cycleScan) walk(ctx context.Context, origin, current string, path []*domain.Transaction, onPath map[string]bool) {
	if len(path) >= s.cfg.MaxCycleLength || len(s.res.Evidence) >= maxCycleEvidence {
		return
	}
	if stop, timedOut := cancelled(ctx); stop {
		s.res.TimedOut = s.res.TimedOut || timedOut
		return
	}

	txs, err := s.fetchOutgoing(ctx, current)
	if err != nil {
		if stop, timedOut := cancelled(ctx); stop {
			s.res.TimedOut = s.res.TimedOut || timedOut
			return
		}
		// Skip this sub-query and keep scanning elsewhere.
		s.res.SoftErrors = append(s.res.SoftErrors, fmt.Sprintf("outgoing transactions for %s: %v", current, err))
		return
	}

	for _, tx := range txs {
		if tx.CreditAccountID == "" {
			continue
		}
		// Money flows forward in time along a cycle.
		if len(path) > 0 {
			prev := path[len(path)-1]
			if tx.Timestamp.Before(prev.Timestamp) {
				continue
			}
			if tx.Timestamp.Sub(path[0].Timestamp) > s.cfg.CycleWindow() {
				continue
			}
		}
		if s.cfg.StrictCycles && !tx.Flagged {
			continue
		}

		next := tx.CreditAccountID
		if next == origin {
			if len(path)+1 >= s.cfg.MinCycleLength {
				s.accept(append(path, tx))
			}
			continue
		}
		if onPath[next] {
			continue // accounts on a cycle must be pairwise distinct
		}

		onPath[next] = true
		s.walk(ctx, origin, next, append(path, tx), onPath)
		delete(onPath, next)
	}
}

func (s *cycleScan) fetchOutgoing(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	if txs, ok := s.outgoing[accountID]; ok {
		return txs, nil
	}
	txs, err := s.store.OutgoingTransactions(ctx, accountID, s.since)
	if err != nil {
		return nil, err
	}
	s.outgoing[accountID] = txs
	return txs, nil
}

// accept records a cycle unless an equivalent one (same transaction
// set) was already found from a different start account.
func (s *cycleScan) accept(cycle []*domain.Transaction) {
	ev := domain.Evidence{
		Pattern:    domain.PatternCircularFlow,
		DetectedAt: time.Now().UTC(),
	}

	flagged := 0
	total := 0.0
	for _, tx := range cycle {
		ev.TransactionIDs = append(ev.TransactionIDs, tx.ID)
		ev.Amounts = append(ev.Amounts, tx.Amount)
		ev.AccountIDs = append(ev.AccountIDs, tx.DebitAccountID)
		ev.Factors = append(ev.Factors, fmt.Sprintf("Transaction %s: %.2f %s", tx.ID, tx.Amount, tx.Currency))
		if tx.Flagged {
			flagged++
		}
		total += tx.Amount
	}

	key := ev.Key()
	if s.seen[key] {
		return
	}
	s.seen[key] = true

	ev.Confidence = cycleBaseConfidence * float64(flagged) / float64(len(cycle))
	ev.Factors = append(ev.Factors,
		fmt.Sprintf("Cycle of %d accounts moving %.2f total", len(cycle), total))
	s.res.Evidence = append(s.res.Evidence, ev)
}
