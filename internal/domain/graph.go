package domain

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the detection pipeline.
var (
	// ErrStoreUnavailable means the graph store is entirely unreachable.
	// It is the only fatal error: a run that hits it reports Failed.
	ErrStoreUnavailable = errors.New("graph store unavailable")

	// ErrConcurrentRun is returned when a detection run is requested
	// while another is in flight. Requests are rejected, never queued.
	ErrConcurrentRun = errors.New("detection run already in progress")

	// ErrNotFound marks a missing record where absence is a fault
	// rather than a normal optional result.
	ErrNotFound = errors.New("record not found")
)

// RelationshipKind names an edge type in the graph.
type RelationshipKind string

const (
	RelOwns        RelationshipKind = "OWNS"
	RelDebitedFrom RelationshipKind = "DEBITED_FROM"
	RelCreditedTo  RelationshipKind = "CREDITED_TO"
	RelUsedDevice  RelationshipKind = "USED_DEVICE"
	RelFromIP      RelationshipKind = "FROM_IP"
	RelMemberOf    RelationshipKind = "MEMBER_OF"
)

// PathStep is one hop in a traversal path.
type PathStep struct {
	FromID string           `json:"fromId"`
	Rel    RelationshipKind `json:"rel"`
	ToID   string           `json:"toId"`
}

// Path is an ordered sequence of hops from a traversal.
type Path struct {
	Steps []PathStep `json:"steps"`
}

// SharedDevice pairs a device with the distinct customers that used it.
type SharedDevice struct {
	Device      Device   `json:"device"`
	CustomerIDs []string `json:"customerIds"`
}

// SharedIP pairs an IP address with the distinct accounts that
// transacted through it.
type SharedIP struct {
	IP         IPAddress `json:"ip"`
	AccountIDs []string  `json:"accountIds"`
}

// GraphStore is the external graph database contract consumed by the
// engine. Lookups for absent entities return (nil, nil); only true
// faults return errors. Implementations serialize their own reads and
// writes; detectors treat the store as a read-only snapshot.
//
// SetRiskScore, FlagTransaction and CreateFraudRing are the only writes
// the engine performs. The Put* methods exist for ingestion and test
// seeding and are never called by detectors or scoring.
type GraphStore interface {
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	ListAccountIDs(ctx context.Context) ([]string, error)

	// TransactionsForAccount returns transactions touching the account
	// (either side) since the given time, ordered by timestamp ascending.
	TransactionsForAccount(ctx context.Context, accountID string, since time.Time) ([]*Transaction, error)

	// TransactionsSince returns all transactions in the trailing window,
	// ordered by timestamp ascending.
	TransactionsSince(ctx context.Context, since time.Time) ([]*Transaction, error)

	// OutgoingTransactions returns transactions debited from the account
	// since the given time, ordered by timestamp ascending.
	OutgoingTransactions(ctx context.Context, accountID string, since time.Time) ([]*Transaction, error)

	// Neighbors performs a bounded traversal from a node over the given
	// relationship kinds, up to maxDepth hops.
	Neighbors(ctx context.Context, nodeID string, kinds []RelationshipKind, maxDepth int) ([]Path, error)

	DevicesSharedAcrossCustomers(ctx context.Context, since time.Time) ([]SharedDevice, error)
	IPsSharedAcrossAccounts(ctx context.Context, since time.Time) ([]SharedIP, error)
	AccountsForCustomer(ctx context.Context, customerID string) ([]*Account, error)

	// Writes permitted to the engine.
	SetRiskScore(ctx context.Context, accountID string, score float64) error
	FlagTransaction(ctx context.Context, txID string, fraudScore float64) error
	CreateFraudRing(ctx context.Context, ring *FraudRing) error
	GetFraudRing(ctx context.Context, ringID string) (*FraudRing, error)
	ListFraudRings(ctx context.Context) ([]*FraudRing, error)

	// Ingestion / seeding.
	PutAccount(ctx context.Context, account *Account) error
	PutCustomer(ctx context.Context, customer *Customer, ownedAccountIDs map[string]OwnershipRole) error
	PutTransaction(ctx context.Context, tx *Transaction) error
	PutDevice(ctx context.Context, device *Device, customerIDs []string) error

	Ping(ctx context.Context) error
	Close() error
}

// GraphConfig holds configuration for graph store initialization.
type GraphConfig struct {
	// Driver is the store driver: "sqlite", "postgres" or "memory"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
