package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// MemoryStore is an in-memory graph store. It backs tests, development
// and the benchmark harness, and serializes all access with a RWMutex
// so detectors see a consistent snapshot.
type MemoryStore struct {
	mu sync.RWMutex

	accounts     map[string]*domain.Account
	customers    map[string]*domain.Customer
	owners       map[string]map[string]domain.OwnershipRole // customerID -> accountID -> role
	transactions map[string]*domain.Transaction
	devices      map[string]*domain.Device
	deviceUsers  map[string]map[string]bool // deviceID -> customerID set
	ips          map[string]*domain.IPAddress
	rings        map[string]*domain.FraudRing // by ID
	ringsBySig   map[string]*domain.FraudRing

	// txOrder keeps insertion IDs for deterministic timestamp-sorted scans.
	txOrder []string
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*domain.Account),
		customers:    make(map[string]*domain.Customer),
		owners:       make(map[string]map[string]domain.OwnershipRole),
		transactions: make(map[string]*domain.Transaction),
		devices:      make(map[string]*domain.Device),
		deviceUsers:  make(map[string]map[string]bool),
		ips:          make(map[string]*domain.IPAddress),
		rings:        make(map[string]*domain.FraudRing),
		ringsBySig:   make(map[string]*domain.FraudRing),
	}
}

// GetAccount returns a copy of the account, or nil, nil when absent.
func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// GetCustomer returns a copy of the customer, or nil, nil when absent.
func (s *MemoryStore) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// ListAccountIDs returns every account ID sorted.
func (s *MemoryStore) ListAccountIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) scanTransactions(match func(*domain.Transaction) bool) []*domain.Transaction {
	var txs []*domain.Transaction
	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if tx == nil || !match(tx) {
			continue
		}
		cp := *tx
		txs = append(txs, &cp)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})
	return txs
}

// TransactionsForAccount returns transactions touching the account,
// timestamp ascending.
func (s *MemoryStore) TransactionsForAccount(ctx context.Context, accountID string, since time.Time) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanTransactions(func(tx *domain.Transaction) bool {
		return (tx.DebitAccountID == accountID || tx.CreditAccountID == accountID) &&
			!tx.Timestamp.Before(since)
	}), nil
}

// TransactionsSince returns all transactions in the window, timestamp ascending.
func (s *MemoryStore) TransactionsSince(ctx context.Context, since time.Time) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanTransactions(func(tx *domain.Transaction) bool {
		return !tx.Timestamp.Before(since)
	}), nil
}

// OutgoingTransactions returns transactions debited from the account,
// timestamp ascending.
func (s *MemoryStore) OutgoingTransactions(ctx context.Context, accountID string, since time.Time) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanTransactions(func(tx *domain.Transaction) bool {
		return tx.DebitAccountID == accountID && !tx.Timestamp.Before(since)
	}), nil
}

// Neighbors performs a bounded breadth-first traversal.
func (s *MemoryStore) Neighbors(ctx context.Context, nodeID string, kinds []domain.RelationshipKind, maxDepth int) ([]domain.Path, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}

	wanted := make(map[domain.RelationshipKind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

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
			for _, step := range s.adjacentSteps(frontierNodes[i], wanted) {
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

func (s *MemoryStore) adjacentSteps(nodeID string, wanted map[domain.RelationshipKind]bool) []domain.PathStep {
	var steps []domain.PathStep

	if wanted[domain.RelOwns] {
		for customerID, accounts := range s.owners {
			for accountID := range accounts {
				if customerID == nodeID {
					steps = append(steps, domain.PathStep{FromID: nodeID, Rel: domain.RelOwns, ToID: accountID})
				} else if accountID == nodeID {
					steps = append(steps, domain.PathStep{FromID: nodeID, Rel: domain.RelOwns, ToID: customerID})
				}
			}
		}
	}

	if wanted[domain.RelUsedDevice] {
		for deviceID, users := range s.deviceUsers {
			for customerID := range users {
				if deviceID == nodeID {
					steps = append(steps, domain.PathStep{FromID: nodeID, Rel: domain.RelUsedDevice, ToID: customerID})
				} else if customerID == nodeID {
					steps = append(steps, domain.PathStep{FromID: nodeID, Rel: domain.RelUsedDevice, ToID: deviceID})
				}
			}
		}
	}

	if wanted[domain.RelCreditedTo] || wanted[domain.RelDebitedFrom] {
		for _, tx := range s.transactions {
			if tx.DebitAccountID == "" || tx.CreditAccountID == "" {
				continue
			}
			if tx.DebitAccountID == nodeID {
				steps = append(steps, domain.PathStep{FromID: nodeID, Rel: domain.RelCreditedTo, ToID: tx.CreditAccountID})
			} else if tx.CreditAccountID == nodeID {
				steps = append(steps, domain.PathStep{FromID: nodeID, Rel: domain.RelCreditedTo, ToID: tx.DebitAccountID})
			}
		}
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].ToID < steps[j].ToID })
	return steps
}

// DevicesSharedAcrossCustomers returns devices used by >= 2 customers.
func (s *MemoryStore) DevicesSharedAcrossCustomers(ctx context.Context, since time.Time) ([]domain.SharedDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deviceIDs := make([]string, 0, len(s.deviceUsers))
	for id := range s.deviceUsers {
		deviceIDs = append(deviceIDs, id)
	}
	sort.Strings(deviceIDs)

	var shared []domain.SharedDevice
	for _, id := range deviceIDs {
		users := s.deviceUsers[id]
		if len(users) < 2 {
			continue
		}
		device := s.devices[id]
		if device == nil || device.LastSeen.Before(since) {
			continue
		}
		customerIDs := make([]string, 0, len(users))
		for customerID := range users {
			customerIDs = append(customerIDs, customerID)
		}
		sort.Strings(customerIDs)
		shared = append(shared, domain.SharedDevice{Device: *device, CustomerIDs: customerIDs})
	}
	return shared, nil
}

// IPsSharedAcrossAccounts returns IPs used by transactions of >= 2 accounts.
func (s *MemoryStore) IPsSharedAcrossAccounts(ctx context.Context, since time.Time) ([]domain.SharedIP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountsByIP := make(map[string]map[string]bool)
	for _, tx := range s.transactions {
		if tx.IPAddress == "" || tx.Timestamp.Before(since) {
			continue
		}
		set, ok := accountsByIP[tx.IPAddress]
		if !ok {
			set = make(map[string]bool)
			accountsByIP[tx.IPAddress] = set
		}
		if tx.DebitAccountID != "" {
			set[tx.DebitAccountID] = true
		}
		if tx.CreditAccountID != "" {
			set[tx.CreditAccountID] = true
		}
	}

	addrs := make([]string, 0, len(accountsByIP))
	for addr := range accountsByIP {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	var shared []domain.SharedIP
	for _, addr := range addrs {
		set := accountsByIP[addr]
		if len(set) < 2 {
			continue
		}
		accountIDs := make([]string, 0, len(set))
		for id := range set {
			accountIDs = append(accountIDs, id)
		}
		sort.Strings(accountIDs)

		ip := s.ips[addr]
		if ip == nil {
			ip = &domain.IPAddress{Address: addr}
		}
		shared = append(shared, domain.SharedIP{IP: *ip, AccountIDs: accountIDs})
	}
	return shared, nil
}

// AccountsForCustomer returns the accounts owned by a customer.
func (s *MemoryStore) AccountsForCustomer(ctx context.Context, customerID string) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := s.owners[customerID]
	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var accounts []*domain.Account
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			cp := *a
			accounts = append(accounts, &cp)
		}
	}
	return accounts, nil
}

// SetRiskScore writes a clamped risk score back to an account.
func (s *MemoryStore) SetRiskScore(ctx context.Context, accountID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}
	a.ApplyRiskScore(score)
	return nil
}

// FlagTransaction marks a transaction with a fraud score.
func (s *MemoryStore) FlagTransaction(ctx context.Context, txID string, fraudScore float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[txID]
	if !ok {
		return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, txID)
	}
	tx.Flagged = true
	tx.FraudScore = domain.ClampScore(fraudScore, 0, 1)
	return nil
}

// CreateFraudRing upserts a ring keyed on its member signature.
func (s *MemoryStore) CreateFraudRing(ctx context.Context, ring *domain.FraudRing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ring.MemberSignature == "" {
		ring.MemberSignature = ring.ComputeSignature()
	}

	if existing, ok := s.ringsBySig[ring.MemberSignature]; ok {
		// Same component detected again: refresh evidence but keep the
		// original ID and investigation status.
		existing.Confidence = ring.Confidence
		existing.TotalAmount = ring.TotalAmount
		existing.PatternTypes = ring.PatternTypes
		existing.Members = ring.Members
		existing.Evidence = ring.Evidence
		ring.ID = existing.ID
		ring.Status = existing.Status
		return nil
	}

	cp := *ring
	s.rings[ring.ID] = &cp
	s.ringsBySig[ring.MemberSignature] = &cp
	return nil
}

// GetFraudRing returns a copy of the ring, or nil, nil when absent.
func (s *MemoryStore) GetFraudRing(ctx context.Context, ringID string) (*domain.FraudRing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ring, ok := s.rings[ringID]
	if !ok {
		return nil, nil
	}
	cp := *ring
	return &cp, nil
}

// ListFraudRings returns every ring ordered by detection time descending.
func (s *MemoryStore) ListFraudRings(ctx context.Context) ([]*domain.FraudRing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rings := make([]*domain.FraudRing, 0, len(s.rings))
	for _, ring := range s.rings {
		cp := *ring
		rings = append(rings, &cp)
	}
	sort.Slice(rings, func(i, j int) bool {
		if rings[i].DetectedAt.Equal(rings[j].DetectedAt) {
			return rings[i].ID < rings[j].ID
		}
		return rings[i].DetectedAt.After(rings[j].DetectedAt)
	})
	return rings, nil
}

// PutAccount stores an account.
func (s *MemoryStore) PutAccount(ctx context.Context, account *domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

// PutCustomer stores a customer with ownership links.
func (s *MemoryStore) PutCustomer(ctx context.Context, customer *domain.Customer, owned map[string]domain.OwnershipRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *customer
	s.customers[customer.ID] = &cp
	if len(owned) > 0 {
		m, ok := s.owners[customer.ID]
		if !ok {
			m = make(map[string]domain.OwnershipRole)
			s.owners[customer.ID] = m
		}
		for accountID, role := range owned {
			m[accountID] = role
		}
	}
	return nil
}

// PutTransaction stores a transaction.
func (s *MemoryStore) PutTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transactions[tx.ID]; !exists {
		s.txOrder = append(s.txOrder, tx.ID)
	}
	cp := *tx
	s.transactions[tx.ID] = &cp

	if tx.IPAddress != "" {
		if _, ok := s.ips[tx.IPAddress]; !ok {
			s.ips[tx.IPAddress] = &domain.IPAddress{
				Address:   tx.IPAddress,
				FirstSeen: tx.Timestamp,
				LastSeen:  tx.Timestamp,
			}
		} else if s.ips[tx.IPAddress].LastSeen.Before(tx.Timestamp) {
			s.ips[tx.IPAddress].LastSeen = tx.Timestamp
		}
	}
	return nil
}

// PutDevice stores a device with its customer usage links.
func (s *MemoryStore) PutDevice(ctx context.Context, device *domain.Device, customerIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *device
	s.devices[device.ID] = &cp
	users, ok := s.deviceUsers[device.ID]
	if !ok {
		users = make(map[string]bool)
		s.deviceUsers[device.ID] = users
	}
	for _, customerID := range customerIDs {
		users[customerID] = true
	}
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases all data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]*domain.Account)
	s.customers = make(map[string]*domain.Customer)
	s.transactions = make(map[string]*domain.Transaction)
	s.txOrder = nil
	return nil
}
