package detector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// muleConfidence is the confidence assigned to a qualifying mule account.
const muleConfidence = 0.85

// muleBalanceRatio is the maximum allowed |in-out|/in imbalance for a
// flow-through account.
const muleBalanceRatio = 0.1

// Mule finds flow-through accounts: high inbound throughput forwarded
// quickly with little residue.
//
// Inbound and outbound transactions are paired FIFO by timestamp: each
// outbound consumes the earliest unconsumed inbound that precedes it.
type Mule struct{}

// Name returns the pattern type.
func (d *Mule) Name() domain.PatternType { return domain.PatternMule }

// Detect scans every account's activity for mule flow-through.
func (d *Mule) Detect(ctx context.Context, store domain.GraphStore, cfg domain.DetectionConfig) *Result {
	res := &Result{Pattern: domain.PatternMule}

	accountIDs, err := store.ListAccountIDs(ctx)
	if err != nil {
		if stop, timedOut := cancelled(ctx); stop {
			res.TimedOut = timedOut
			return res
		}
		res.SoftErrors = append(res.SoftErrors, fmt.Sprintf("list accounts: %v", err))
		return res
	}

	for _, accountID := range accountIDs {
		if stop, timedOut := cancelled(ctx); stop {
			res.TimedOut = timedOut
			return res
		}

		// The account's own activity is the window: throughput and hold
		// gaps are judged over everything it has touched.
		txs, err := store.TransactionsForAccount(ctx, accountID, time.Time{})
		if err != nil {
			if stop, timedOut := cancelled(ctx); stop {
				res.TimedOut = timedOut
				return res
			}
			res.SoftErrors = append(res.SoftErrors, fmt.Sprintf("transactions for %s: %v", accountID, err))
			continue
		}

		if ev, ok := evaluateMule(accountID, txs, cfg); ok {
			res.Evidence = append(res.Evidence, ev)
		}
	}

	return res
}

// evaluateMule applies the three mule criteria to one account.
func evaluateMule(accountID string, txs []*domain.Transaction, cfg domain.DetectionConfig) (domain.Evidence, bool) {
	var ins, outs []*domain.Transaction
	var totalIn, totalOut float64

	for _, tx := range txs {
		switch accountID {
		case tx.CreditAccountID:
			ins = append(ins, tx)
			totalIn += tx.Amount
		case tx.DebitAccountID:
			outs = append(outs, tx)
			totalOut += tx.Amount
		}
	}

	if totalIn < cfg.MuleMinThroughput {
		return domain.Evidence{}, false
	}
	if math.Abs(totalIn-totalOut)/totalIn >= muleBalanceRatio {
		return domain.Evidence{}, false
	}

	// FIFO pairing: both slices arrive timestamp ascending from the
	// store; each outbound consumes the earliest unconsumed inbound
	// that does not postdate it.
	shortestHold := time.Duration(-1)
	j := 0
	for _, out := range outs {
		if j >= len(ins) {
			break
		}
		if ins[j].Timestamp.After(out.Timestamp) {
			continue
		}
		hold := out.Timestamp.Sub(ins[j].Timestamp)
		if shortestHold < 0 || hold < shortestHold {
			shortestHold = hold
		}
		j++
	}

	if shortestHold < 0 || shortestHold > cfg.MuleMaxHold() {
		return domain.Evidence{}, false
	}

	ev := domain.Evidence{
		Pattern:    domain.PatternMule,
		Confidence: muleConfidence,
		AccountIDs: []string{accountID},
		Factors: []string{
			fmt.Sprintf("Account %s received %.2f and forwarded %.2f", accountID, totalIn, totalOut),
			fmt.Sprintf("Retention ratio %.3f below %.2f", math.Abs(totalIn-totalOut)/totalIn, muleBalanceRatio),
			fmt.Sprintf("Shortest hold %.1f hours", shortestHold.Hours()),
		},
		DetectedAt: time.Now().UTC(),
	}
	for _, tx := range txs {
		ev.TransactionIDs = append(ev.TransactionIDs, tx.ID)
		ev.Amounts = append(ev.Amounts, tx.Amount)
	}
	return ev, true
}
