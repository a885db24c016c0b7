package detector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// fanAggregate accumulates one account's side of a fan pattern.
type fanAggregate struct {
	accountID      string
	counterparties map[string]bool
	transactionIDs []string
	amounts        []float64
	totalAmount    float64
}

// FanOut finds accounts sending to many distinct recipients inside the
// trailing window. One linear pass over the window's transactions.
type FanOut struct{}

// Name returns the pattern type.
func (d *FanOut) Name() domain.PatternType { return domain.PatternFanOut }

// Detect scans for accounts with >= FanMinCount distinct recipients.
func (d *FanOut) Detect(ctx context.Context, store domain.GraphStore, cfg domain.DetectionConfig) *Result {
	return detectFan(ctx, store, cfg, domain.PatternFanOut)
}

// FanIn finds accounts receiving from many distinct senders inside the
// trailing window.
type FanIn struct{}

// Name returns the pattern type.
func (d *FanIn) Name() domain.PatternType { return domain.PatternFanIn }

// Detect scans for accounts with >= FanMinCount distinct senders.
func (d *FanIn) Detect(ctx context.Context, store domain.GraphStore, cfg domain.DetectionConfig) *Result {
	return detectFan(ctx, store, cfg, domain.PatternFanIn)
}

func detectFan(ctx context.Context, store domain.GraphStore, cfg domain.DetectionConfig, pattern domain.PatternType) *Result {
	res := &Result{Pattern: pattern}
	since := time.Now().UTC().Add(-cfg.FanWindow())

	txs, err := store.TransactionsSince(ctx, since)
	if err != nil {
		if stop, timedOut := cancelled(ctx); stop {
			res.TimedOut = timedOut
			return res
		}
		res.SoftErrors = append(res.SoftErrors, fmt.Sprintf("transactions since %s: %v", since.Format(time.RFC3339), err))
		return res
	}

	aggregates := make(map[string]*fanAggregate)
	var order []string

	for i, tx := range txs {
		// Cancellation check between traversal steps, amortized.
		if i%1024 == 0 {
			if stop, timedOut := cancelled(ctx); stop {
				res.TimedOut = timedOut
				break
			}
		}

		var hub, counterparty string
		if pattern == domain.PatternFanOut {
			hub, counterparty = tx.DebitAccountID, tx.CreditAccountID
		} else {
			hub, counterparty = tx.CreditAccountID, tx.DebitAccountID
		}
		if hub == "" || counterparty == "" {
			continue
		}

		agg, ok := aggregates[hub]
		if !ok {
			agg = &fanAggregate{accountID: hub, counterparties: make(map[string]bool)}
			aggregates[hub] = agg
			order = append(order, hub)
		}
		agg.counterparties[counterparty] = true
		agg.transactionIDs = append(agg.transactionIDs, tx.ID)
		agg.amounts = append(agg.amounts, tx.Amount)
		agg.totalAmount += tx.Amount
	}

	var qualified []*fanAggregate
	for _, hub := range order {
		agg := aggregates[hub]
		if len(agg.counterparties) >= cfg.FanMinCount {
			qualified = append(qualified, agg)
		}
	}

	// Counterparty count descending, ties by total amount descending.
	sort.SliceStable(qualified, func(i, j int) bool {
		if len(qualified[i].counterparties) != len(qualified[j].counterparties) {
			return len(qualified[i].counterparties) > len(qualified[j].counterparties)
		}
		return qualified[i].totalAmount > qualified[j].totalAmount
	})

	for _, agg := range qualified {
		n := len(agg.counterparties)
		direction := "sent to"
		if pattern == domain.PatternFanIn {
			direction = "received from"
		}
		res.Evidence = append(res.Evidence, domain.Evidence{
			Pattern:        pattern,
			Confidence:     min(0.9, float64(n)/10),
			TransactionIDs: agg.transactionIDs,
			Amounts:        agg.amounts,
			AccountIDs:     append([]string{agg.accountID}, sortedKeys(agg.counterparties)...),
			Factors: []string{
				fmt.Sprintf("Account %s %s %d accounts", agg.accountID, direction, n),
				fmt.Sprintf("Total amount: %.2f", agg.totalAmount),
			},
			DetectedAt: time.Now().UTC(),
		})
	}

	return res
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
