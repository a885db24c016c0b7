// Package scoring computes explainable composite risk scores.
//
// The composite is additive over capped components: velocity (30),
// pattern history (25), infrastructure links (20), geographic (15) and
// device/IP reputation (10). Every non-zero component contributes a
// human-readable factor string, so a score is never unexplained.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/velocity"
)

const (
	velocityWindow = time.Hour
	patternWindow  = 7 * 24 * time.Hour
	scoreCacheTTL  = 5 * time.Minute

	// highRiskThreshold marks a linked entity as high risk.
	highRiskThreshold = 70.0
)

// Service computes and persists account risk scores.
type Service struct {
	store      domain.GraphStore
	cache      domain.Cache
	velocity   *velocity.Service
	geographic Strategy
	deviceIP   Strategy
	logger     *slog.Logger
}

// NewService creates a scoring service with the default strategies.
func NewService(store domain.GraphStore, cache domain.Cache, vel *velocity.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		cache:      cache,
		velocity:   vel,
		geographic: NewGeographicStrategy(),
		deviceIP:   NewDeviceIPStrategy(),
		logger:     logger,
	}
}

// SetStrategies swaps the pluggable components. Nil keeps the current one.
func (s *Service) SetStrategies(geographic, deviceIP Strategy) {
	if geographic != nil {
		s.geographic = geographic
	}
	if deviceIP != nil {
		s.deviceIP = deviceIP
	}
}

// ScoreAccount flags the run evidence transactions that involve the
// account, computes the composite risk score, and persists it via
// SetRiskScore. Flagging happens first so the velocity and pattern
// components see the run's own findings, not just prior history.
func (s *Service) ScoreAccount(ctx context.Context, accountID string, runEvidence []domain.Evidence) (domain.RiskScore, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if account == nil {
		return domain.RiskScore{}, fmt.Errorf("score account: %w: %s", domain.ErrNotFound, accountID)
	}

	s.flagEvidence(ctx, accountID, runEvidence)

	score := domain.RiskScore{CalculatedAt: time.Now().UTC()}
	addComponent := func(points float64, factor string) {
		if points <= 0 {
			return
		}
		score.Score += points
		score.Factors = append(score.Factors, factor)
	}

	// Velocity: recent bursts of activity.
	txLastHour, err := s.velocity.TransactionCount(ctx, accountID, velocityWindow)
	if err != nil {
		return domain.RiskScore{}, err
	}
	addComponent(
		min(CapVelocity, float64(txLastHour)*2),
		fmt.Sprintf("Velocity: %d transactions in the last hour", txLastHour),
	)

	// Pattern history: previously flagged activity.
	flagged, err := s.velocity.FlaggedCount(ctx, accountID, patternWindow)
	if err != nil {
		return domain.RiskScore{}, err
	}
	addComponent(
		min(CapPattern, float64(flagged)*5),
		fmt.Sprintf("Pattern: %d flagged transactions in the last 7 days", flagged),
	)

	// Infrastructure: shared devices or IPs linking to risky entities.
	infraPts, infraFactor, err := s.infraComponent(ctx, accountID, runEvidence)
	if err != nil {
		return domain.RiskScore{}, err
	}
	addComponent(infraPts, infraFactor)

	// Pluggable strategies.
	input, err := s.buildStrategyInput(ctx, account)
	if err != nil {
		return domain.RiskScore{}, err
	}
	for _, strat := range []Strategy{s.geographic, s.deviceIP} {
		if strat == nil {
			continue
		}
		points, factor, err := strat.Score(ctx, input)
		if err != nil {
			// A broken strategy degrades its component to zero rather
			// than failing the score.
			s.logger.Warn("scoring strategy failed", "strategy", strat.Name(), "account", accountID, "error", err)
			continue
		}
		addComponent(domain.ClampScore(points, 0, strat.Cap()), factor)
	}

	score.Score = domain.ClampScore(score.Score, 0, 100)

	if err := s.store.SetRiskScore(ctx, accountID, score.Score); err != nil {
		return domain.RiskScore{}, fmt.Errorf("persist risk score for %s: %w", accountID, err)
	}

	if s.cache != nil {
		if err := s.cache.SetRiskScore(ctx, accountID, &score, scoreCacheTTL); err != nil {
			s.logger.Warn("cache risk score failed", "account", accountID, "error", err)
		}
	}

	return score, nil
}

// ScoreCustomer derives a read-only customer score from KYC state and
// owned-account risk. Nothing is persisted.
func (s *Service) ScoreCustomer(ctx context.Context, customerID string) (domain.RiskScore, error) {
	customer, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("load customer %s: %w", customerID, err)
	}
	if customer == nil {
		return domain.RiskScore{}, fmt.Errorf("score customer: %w: %s", domain.ErrNotFound, customerID)
	}

	score := domain.RiskScore{CalculatedAt: time.Now().UTC()}

	switch customer.KYCStatus {
	case domain.KYCFailed:
		score.Score += 25
		score.Factors = append(score.Factors, "KYC verification failed")
	case domain.KYCPending:
		score.Score += 15
		score.Factors = append(score.Factors, "KYC verification pending")
	}

	accounts, err := s.store.AccountsForCustomer(ctx, customerID)
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("load accounts for %s: %w", customerID, err)
	}
	if len(accounts) > 0 {
		total := 0.0
		for _, a := range accounts {
			total += a.RiskScore
		}
		avg := total / float64(len(accounts))
		if avg > 0 {
			score.Score += 30 * avg / 100
			score.Factors = append(score.Factors, fmt.Sprintf("Average account risk %.1f across %d accounts", avg, len(accounts)))
		}
	}
	if n := len(accounts); n > 5 {
		score.Score += min(10, 2*float64(n-5))
		score.Factors = append(score.Factors, fmt.Sprintf("Holds %d accounts", n))
	}

	score.Score = domain.ClampScore(score.Score, 0, 100)
	return score, nil
}

// infraComponent scores shared-infrastructure links: 20 when linked to
// a member of a confirmed fraud ring, 15 when linked to a high-risk
// entity, else 0.
func (s *Service) infraComponent(ctx context.Context, accountID string, runEvidence []domain.Evidence) (float64, string, error) {
	linkedAccounts := make(map[string]bool)
	linkedCustomers := make(map[string]bool)
	for _, ev := range runEvidence {
		if ev.Pattern != domain.PatternSharedInfra || !containsID(ev.AccountIDs, accountID) {
			continue
		}
		for _, id := range ev.AccountIDs {
			if id != accountID {
				linkedAccounts[id] = true
			}
		}
		for _, id := range ev.CustomerIDs {
			linkedCustomers[id] = true
		}
	}
	if len(linkedAccounts) == 0 && len(linkedCustomers) == 0 {
		return 0, "", nil
	}

	rings, err := s.store.ListFraudRings(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("list fraud rings: %w", err)
	}
	for _, ring := range rings {
		if ring.Status != domain.RingConfirmed {
			continue
		}
		for _, m := range ring.Members {
			if (m.Kind == domain.KindAccount && linkedAccounts[m.EntityID]) ||
				(m.Kind == domain.KindCustomer && linkedCustomers[m.EntityID]) {
				return CapInfra, "Infrastructure: shares a device or IP with a confirmed fraud ring member", nil
			}
		}
	}

	for id := range linkedAccounts {
		linked, err := s.store.GetAccount(ctx, id)
		if err != nil {
			return 0, "", fmt.Errorf("load linked account %s: %w", id, err)
		}
		if linked != nil && linked.RiskScore > highRiskThreshold {
			return 15, fmt.Sprintf("Infrastructure: shares a device or IP with high-risk account %s", id), nil
		}
	}

	return 0, "", nil
}

// buildStrategyInput aggregates the account's trailing-window activity
// into the view strategies score on.
func (s *Service) buildStrategyInput(ctx context.Context, account *domain.Account) (*StrategyInput, error) {
	since := time.Now().UTC().Add(-patternWindow)
	txs, err := s.store.TransactionsForAccount(ctx, account.ID, since)
	if err != nil {
		return nil, fmt.Errorf("load transactions for %s: %w", account.ID, err)
	}

	input := &StrategyInput{Account: account}

	countries := make(map[string]bool)
	if account.Country != "" {
		countries[account.Country] = true
	}
	devices := make(map[string]bool)
	ips := make(map[string]bool)
	counterpartyCountry := make(map[string]string)

	for _, tx := range txs {
		other := tx.CreditAccountID
		if other == account.ID {
			other = tx.DebitAccountID
		}
		if other != "" {
			country, ok := counterpartyCountry[other]
			if !ok {
				acct, err := s.store.GetAccount(ctx, other)
				if err != nil {
					return nil, fmt.Errorf("load counterparty %s: %w", other, err)
				}
				if acct != nil {
					country = acct.Country
				}
				counterpartyCountry[other] = country
			}
			if country != "" {
				countries[country] = true
				if account.Country != "" && country != account.Country {
					input.CountryMismatches++
				}
			}
		}
		if tx.DeviceID != "" {
			devices[tx.DeviceID] = true
		}
		if tx.IPAddress != "" {
			ips[tx.IPAddress] = true
		}
	}

	input.DistinctCountries = len(countries)
	input.DistinctDevices = len(devices)
	input.DistinctIPs = len(ips)

	// Trust and proxy flags come from the shared-infrastructure views;
	// the store contract has no per-device or per-IP getter.
	if len(devices) > 0 {
		shared, err := s.store.DevicesSharedAcrossCustomers(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("load shared devices: %w", err)
		}
		for _, sd := range shared {
			if devices[sd.Device.ID] && !sd.Device.Trusted {
				input.UntrustedDevices++
			}
		}
	}
	if len(ips) > 0 {
		shared, err := s.store.IPsSharedAcrossAccounts(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("load shared ips: %w", err)
		}
		for _, si := range shared {
			if ips[si.IP.Address] && (si.IP.Proxy || si.IP.VPN) {
				input.ProxyIPs++
			}
		}
	}

	return input, nil
}

// flagEvidence marks the account's evidence transactions with each
// item's confidence. Failures are logged, not fatal: the score already
// stands on its own.
func (s *Service) flagEvidence(ctx context.Context, accountID string, runEvidence []domain.Evidence) {
	flagged := false
	for _, ev := range runEvidence {
		if !containsID(ev.AccountIDs, accountID) {
			continue
		}
		for _, txID := range ev.TransactionIDs {
			if err := s.store.FlagTransaction(ctx, txID, ev.Confidence); err != nil {
				s.logger.Warn("flag transaction failed", "tx", txID, "error", err)
				continue
			}
			flagged = true
		}
	}
	if flagged && s.velocity != nil {
		s.velocity.Invalidate(ctx, accountID, velocityWindow, patternWindow)
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
