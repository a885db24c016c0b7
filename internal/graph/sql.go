// Package graph provides graph store implementations for Harrier.
package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// maxTraversalPaths bounds the result size of a Neighbors call.
const maxTraversalPaths = 100

// SQLStore implements domain.GraphStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new graph store based on configuration.
func New(cfg domain.GraphConfig) (domain.GraphStore, error) {
	if cfg.Driver == "memory" {
		return NewMemoryStore(), nil
	}

	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// GetAccount retrieves an account by ID. Absent accounts return nil, nil.
func (s *SQLStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT id, number, type, status, balance, risk_score, country, currency, created_at
		FROM accounts
		WHERE id = ?
	`

	var a domain.Account
	err := s.db.QueryRowContext(ctx, s.rebind(query), id).Scan(
		&a.ID, &a.Number, &a.Type, &a.Status, &a.Balance,
		&a.RiskScore, &a.Country, &a.Currency, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetCustomer retrieves a customer by ID. Absent customers return nil, nil.
func (s *SQLStore) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	query := `
		SELECT id, first_name, last_name, country, kyc_status, customer_since
		FROM customers
		WHERE id = ?
	`

	var c domain.Customer
	err := s.db.QueryRowContext(ctx, s.rebind(query), id).Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Country, &c.KYCStatus, &c.CustomerSince,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListAccountIDs returns every account ID in stable order.
func (s *SQLStore) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const txColumns = `id, amount, currency, timestamp, type, channel, is_flagged,
	fraud_score, debit_account_id, credit_account_id, device_id, ip_address`

func scanTransaction(rows *sql.Rows) (*domain.Transaction, error) {
	var t domain.Transaction
	var flagged int
	if err := rows.Scan(
		&t.ID, &t.Amount, &t.Currency, &t.Timestamp, &t.Type, &t.Channel,
		&flagged, &t.FraudScore, &t.DebitAccountID, &t.CreditAccountID,
		&t.DeviceID, &t.IPAddress,
	); err != nil {
		return nil, err
	}
	t.Flagged = flagged == 1
	return &t, nil
}

func (s *SQLStore) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		// Defensive: skip rows that violate entity invariants instead of
		// letting bad ingestion crash a detection run.
		if err := tx.Validate(); err != nil {
			continue
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// TransactionsForAccount returns transactions touching the account since
// the given time, ordered by timestamp ascending.
func (s *SQLStore) TransactionsForAccount(ctx context.Context, accountID string, since time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE (debit_account_id = ? OR credit_account_id = ?)
		  AND timestamp >= ?
		ORDER BY timestamp ASC
	`
	return s.queryTransactions(ctx, query, accountID, accountID, since)
}

// TransactionsSince returns all transactions in the trailing window,
// ordered by timestamp ascending.
func (s *SQLStore) TransactionsSince(ctx context.Context, since time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE timestamp >= ?
		ORDER BY timestamp ASC
	`
	return s.queryTransactions(ctx, query, since)
}

// OutgoingTransactions returns transactions debited from the account,
// ordered by timestamp ascending.
func (s *SQLStore) OutgoingTransactions(ctx context.Context, accountID string, since time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE debit_account_id = ?
		  AND timestamp >= ?
		ORDER BY timestamp ASC
	`
	return s.queryTransactions(ctx, query, accountID, since)
}

// Neighbors performs a bounded breadth-first traversal from a node over
// the given relationship kinds, up to maxDepth hops. The result is
// capped at maxTraversalPaths paths.
func (s *SQLStore) Neighbors(ctx context.Context, nodeID string, kinds []domain.RelationshipKind, maxDepth int) ([]domain.Path, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}

	wanted := make(map[domain.RelationshipKind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}

	var paths []domain.Path
	visited := map[string]bool{nodeID: true}
	frontier := []domain.Path{{}}
	frontierNodes := []string{nodeID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var nextFrontier []domain.Path
		var nextNodes []string

		for i, p := range frontier {
			if err := ctx.Err(); err != nil {
				return paths, err
			}

			steps, err := s.adjacentSteps(ctx, frontierNodes[i], wanted)
			if err != nil {
				return nil, err
			}

			for _, step := range steps {
				if visited[step.ToID] {
					continue
				}
				visited[step.ToID] = true

				np := domain.Path{Steps: append(append([]domain.PathStep(nil), p.Steps...), step)}
				paths = append(paths, np)
				if len(paths) >= maxTraversalPaths {
					return paths, nil
				}
				nextFrontier = append(nextFrontier, np)
				nextNodes = append(nextNodes, step.ToID)
			}
		}

		frontier = nextFrontier
		frontierNodes = nextNodes
	}

	return paths, nil
}

// adjacentSteps collects one-hop edges from a node across the
// relationship tables. Transaction flow is collapsed to
// account->account CREDITED_TO steps.
func (s *SQLStore) adjacentSteps(ctx context.Context, nodeID string, wanted map[domain.RelationshipKind]bool) ([]domain.PathStep, error) {
	var steps []domain.PathStep

	if wanted[domain.RelOwns] {
		rows, err := s.db.QueryContext(ctx, s.rebind(`
			SELECT customer_id, account_id FROM account_owners
			WHERE customer_id = ? OR account_id = ?
		`), nodeID, nodeID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var cust, acct string
			if err := rows.Scan(&cust, &acct); err != nil {
				rows.Close()
				return nil, err
			}
			to := acct
			if acct == nodeID {
				to = cust
			}
			steps = append(steps, domain.PathStep{FromID: nodeID, Rel: domain.RelOwns, ToID: to})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if wanted[domain.RelUsedDevice] {
		rows, err := s.db.QueryContext(ctx, s.rebind(`
			SELECT device_id, customer_id FROM device_users
			WHERE device_id = ? OR customer_id = ?
		`), nodeID, nodeID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var dev, cust string
			if err := rows.Scan(&dev, &cust); err != nil {
				rows.Close()
				return nil, err
			}
			to := dev
			if dev == nodeID {
				to = cust
			}
			steps = append(steps, domain.PathStep{FromID: nodeID, Rel: domain.RelUsedDevice, ToID: to})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if wanted[domain.RelCreditedTo] || wanted[domain.RelDebitedFrom] {
		rows, err := s.db.QueryContext(ctx, s.rebind(`
			SELECT debit_account_id, credit_account_id FROM transactions
			WHERE (debit_account_id = ? OR credit_account_id = ?)
			  AND debit_account_id != '' AND credit_account_id != ''
		`), nodeID, nodeID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var debit, credit string
			if err := rows.Scan(&debit, &credit); err != nil {
				rows.Close()
				return nil, err
			}
			to := credit
			if credit == nodeID {
				to = debit
			}
			steps = append(steps, domain.PathStep{FromID: nodeID, Rel: domain.RelCreditedTo, ToID: to})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return steps, nil
}

// DevicesSharedAcrossCustomers returns devices used by two or more
// distinct customers within the window, with sorted customer IDs.
func (s *SQLStore) DevicesSharedAcrossCustomers(ctx context.Context, since time.Time) ([]domain.SharedDevice, error) {
	query := `
		SELECT d.id, d.type, d.os, d.is_trusted, d.first_seen, d.last_seen, d.usage_count, u.customer_id
		FROM devices d
		JOIN device_users u ON u.device_id = d.id
		WHERE d.last_seen >= ?
		ORDER BY d.id, u.customer_id
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDevice := make(map[string]*domain.SharedDevice)
	var order []string
	for rows.Next() {
		var d domain.Device
		var trusted int
		var customerID string
		if err := rows.Scan(&d.ID, &d.Type, &d.OS, &trusted, &d.FirstSeen, &d.LastSeen, &d.UsageCount, &customerID); err != nil {
			return nil, err
		}
		d.Trusted = trusted == 1

		entry, ok := byDevice[d.ID]
		if !ok {
			entry = &domain.SharedDevice{Device: d}
			byDevice[d.ID] = entry
			order = append(order, d.ID)
		}
		entry.CustomerIDs = append(entry.CustomerIDs, customerID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var shared []domain.SharedDevice
	for _, id := range order {
		entry := byDevice[id]
		entry.CustomerIDs = dedupeSorted(entry.CustomerIDs)
		if len(entry.CustomerIDs) >= 2 {
			shared = append(shared, *entry)
		}
	}
	return shared, nil
}

// IPsSharedAcrossAccounts returns IP addresses used by transactions of
// two or more distinct accounts within the window, with sorted account IDs.
func (s *SQLStore) IPsSharedAcrossAccounts(ctx context.Context, since time.Time) ([]domain.SharedIP, error) {
	query := `
		SELECT t.ip_address, t.debit_account_id, t.credit_account_id
		FROM transactions t
		WHERE t.ip_address != '' AND t.timestamp >= ?
		ORDER BY t.ip_address
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accountsByIP := make(map[string][]string)
	var order []string
	for rows.Next() {
		var addr, debit, credit string
		if err := rows.Scan(&addr, &debit, &credit); err != nil {
			return nil, err
		}
		if _, ok := accountsByIP[addr]; !ok {
			order = append(order, addr)
		}
		if debit != "" {
			accountsByIP[addr] = append(accountsByIP[addr], debit)
		}
		if credit != "" {
			accountsByIP[addr] = append(accountsByIP[addr], credit)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var shared []domain.SharedIP
	for _, addr := range order {
		accounts := dedupeSorted(accountsByIP[addr])
		if len(accounts) < 2 {
			continue
		}
		ip, err := s.getIPAddress(ctx, addr)
		if err != nil {
			return nil, err
		}
		if ip == nil {
			ip = &domain.IPAddress{Address: addr}
		}
		shared = append(shared, domain.SharedIP{IP: *ip, AccountIDs: accounts})
	}
	return shared, nil
}

func (s *SQLStore) getIPAddress(ctx context.Context, address string) (*domain.IPAddress, error) {
	query := `
		SELECT address, country, is_proxy, is_vpn, risk_score, first_seen, last_seen
		FROM ip_addresses
		WHERE address = ?
	`
	var ip domain.IPAddress
	var proxy, vpn int
	err := s.db.QueryRowContext(ctx, s.rebind(query), address).Scan(
		&ip.Address, &ip.Country, &proxy, &vpn, &ip.RiskScore, &ip.FirstSeen, &ip.LastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ip.Proxy = proxy == 1
	ip.VPN = vpn == 1
	return &ip, nil
}

// AccountsForCustomer returns the accounts owned by a customer.
func (s *SQLStore) AccountsForCustomer(ctx context.Context, customerID string) ([]*domain.Account, error) {
	query := `
		SELECT a.id, a.number, a.type, a.status, a.balance, a.risk_score, a.country, a.currency, a.created_at
		FROM accounts a
		JOIN account_owners o ON o.account_id = a.id
		WHERE o.customer_id = ?
		ORDER BY a.id
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Number, &a.Type, &a.Status, &a.Balance,
			&a.RiskScore, &a.Country, &a.Currency, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// SetRiskScore writes a clamped risk score back to an account.
func (s *SQLStore) SetRiskScore(ctx context.Context, accountID string, score float64) error {
	score = domain.ClampScore(score, 0, 100)
	result, err := s.db.ExecContext(ctx, s.rebind(`UPDATE accounts SET risk_score = ? WHERE id = ?`), score, accountID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}
	return nil
}

// FlagTransaction marks a transaction with a fraud score.
func (s *SQLStore) FlagTransaction(ctx context.Context, txID string, fraudScore float64) error {
	fraudScore = domain.ClampScore(fraudScore, 0, 1)
	result, err := s.db.ExecContext(ctx, s.rebind(`UPDATE transactions SET is_flagged = 1, fraud_score = ? WHERE id = ?`), fraudScore, txID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, txID)
	}
	return nil
}

// CreateFraudRing upserts a ring keyed on its member signature, so
// repeated runs over an unchanged graph never create duplicates.
// When the component already exists, the caller's ring takes over the
// persisted ID and investigation status, matching MemoryStore.
func (s *SQLStore) CreateFraudRing(ctx context.Context, ring *domain.FraudRing) error {
	if ring.MemberSignature == "" {
		ring.MemberSignature = ring.ComputeSignature()
	}

	var existingID, existingStatus string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, status FROM fraud_rings WHERE member_signature = ?`),
		ring.MemberSignature,
	).Scan(&existingID, &existingStatus)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		ring.ID = existingID
		ring.Status = domain.RingStatus(existingStatus)
	}

	members, _ := json.Marshal(ring.Members)
	evidence, _ := json.Marshal(ring.Evidence)
	patterns, _ := json.Marshal(ring.PatternTypes)

	query := `
		INSERT INTO fraud_rings (
			id, detected_at, confidence, status, total_amount,
			pattern_types, member_signature, members, evidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_signature) DO UPDATE SET
			confidence = excluded.confidence,
			total_amount = excluded.total_amount,
			pattern_types = excluded.pattern_types,
			members = excluded.members,
			evidence = excluded.evidence
	`

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		ring.ID, ring.DetectedAt, ring.Confidence, ring.Status, ring.TotalAmount,
		string(patterns), ring.MemberSignature, string(members), string(evidence),
	)
	return err
}

// GetFraudRing retrieves a ring by ID. Absent rings return nil, nil.
func (s *SQLStore) GetFraudRing(ctx context.Context, ringID string) (*domain.FraudRing, error) {
	query := `
		SELECT id, detected_at, confidence, status, total_amount,
		       pattern_types, member_signature, members, evidence
		FROM fraud_rings
		WHERE id = ?
	`
	row := s.db.QueryRowContext(ctx, s.rebind(query), ringID)
	ring, err := scanRing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ring, err
}

// ListFraudRings returns every ring ordered by detection time descending.
func (s *SQLStore) ListFraudRings(ctx context.Context) ([]*domain.FraudRing, error) {
	query := `
		SELECT id, detected_at, confidence, status, total_amount,
		       pattern_types, member_signature, members, evidence
		FROM fraud_rings
		ORDER BY detected_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rings []*domain.FraudRing
	for rows.Next() {
		ring, err := scanRing(rows)
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}
	return rings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRing(row rowScanner) (*domain.FraudRing, error) {
	var ring domain.FraudRing
	var patterns, members, evidence string
	if err := row.Scan(
		&ring.ID, &ring.DetectedAt, &ring.Confidence, &ring.Status, &ring.TotalAmount,
		&patterns, &ring.MemberSignature, &members, &evidence,
	); err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(patterns), &ring.PatternTypes)
	json.Unmarshal([]byte(members), &ring.Members)
	json.Unmarshal([]byte(evidence), &ring.Evidence)
	return &ring, nil
}

// PutAccount stores an account (ingestion/seeding only).
func (s *SQLStore) PutAccount(ctx context.Context, account *domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO accounts (id, number, type, status, balance, risk_score, country, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			balance = excluded.balance,
			risk_score = excluded.risk_score
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		account.ID, account.Number, account.Type, account.Status, account.Balance,
		account.RiskScore, account.Country, account.Currency, account.CreatedAt,
	)
	return err
}

// PutCustomer stores a customer with account ownership links.
func (s *SQLStore) PutCustomer(ctx context.Context, customer *domain.Customer, owned map[string]domain.OwnershipRole) error {
	query := `
		INSERT INTO customers (id, first_name, last_name, country, kyc_status, customer_since)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET kyc_status = excluded.kyc_status
	`
	if _, err := s.db.ExecContext(ctx, s.rebind(query),
		customer.ID, customer.FirstName, customer.LastName, customer.Country,
		customer.KYCStatus, customer.CustomerSince,
	); err != nil {
		return err
	}

	for accountID, role := range owned {
		ownQuery := `
			INSERT INTO account_owners (customer_id, account_id, role)
			VALUES (?, ?, ?)
			ON CONFLICT(customer_id, account_id) DO UPDATE SET role = excluded.role
		`
		if _, err := s.db.ExecContext(ctx, s.rebind(ownQuery), customer.ID, accountID, role); err != nil {
			return err
		}
	}
	return nil
}

// PutTransaction stores a transaction (ingestion/seeding only).
func (s *SQLStore) PutTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	flagged := 0
	if tx.Flagged {
		flagged = 1
	}

	query := `
		INSERT INTO transactions (
			id, amount, currency, timestamp, type, channel, is_flagged,
			fraud_score, debit_account_id, credit_account_id, device_id, ip_address
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, s.rebind(query),
		tx.ID, tx.Amount, tx.Currency, tx.Timestamp, tx.Type, tx.Channel, flagged,
		tx.FraudScore, tx.DebitAccountID, tx.CreditAccountID, tx.DeviceID, tx.IPAddress,
	); err != nil {
		return err
	}

	if tx.IPAddress != "" {
		ipQuery := `
			INSERT INTO ip_addresses (address, country, is_proxy, is_vpn, risk_score, first_seen, last_seen)
			VALUES (?, '', 0, 0, 0, ?, ?)
			ON CONFLICT(address) DO UPDATE SET last_seen = excluded.last_seen
		`
		if _, err := s.db.ExecContext(ctx, s.rebind(ipQuery), tx.IPAddress, tx.Timestamp, tx.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// PutDevice stores a device with its customer usage links.
func (s *SQLStore) PutDevice(ctx context.Context, device *domain.Device, customerIDs []string) error {
	trusted := 0
	if device.Trusted {
		trusted = 1
	}
	query := `
		INSERT INTO devices (id, type, os, is_trusted, first_seen, last_seen, usage_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_seen = excluded.last_seen,
			usage_count = excluded.usage_count
	`
	if _, err := s.db.ExecContext(ctx, s.rebind(query),
		device.ID, device.Type, device.OS, trusted,
		device.FirstSeen, device.LastSeen, device.UsageCount,
	); err != nil {
		return err
	}

	for _, customerID := range customerIDs {
		useQuery := `
			INSERT INTO device_users (device_id, customer_id)
			VALUES (?, ?)
			ON CONFLICT(device_id, customer_id) DO NOTHING
		`
		if _, err := s.db.ExecContext(ctx, s.rebind(useQuery), device.ID, customerID); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// dedupeSorted sorts and removes duplicates from a string slice.
func dedupeSorted(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	var prev string
	for i, v := range in {
		if i == 0 || v != prev {
			out = append(out, v)
		}
		prev = v
	}
	return out
}
