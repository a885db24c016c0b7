package domain

import (
	"fmt"
	"time"
)

// TransactionType classifies a transaction.
type TransactionType string

const (
	TxTransfer   TransactionType = "transfer"
	TxWithdrawal TransactionType = "withdrawal"
	TxDeposit    TransactionType = "deposit"
	TxPayment    TransactionType = "payment"
)

// TransactionChannel is the channel a transaction arrived through.
type TransactionChannel string

const (
	ChannelOnline TransactionChannel = "online"
	ChannelATM    TransactionChannel = "atm"
	ChannelBranch TransactionChannel = "branch"
	ChannelMobile TransactionChannel = "mobile"
)

// Transaction is an edge in the money-flow graph. It is immutable once
// created except for Flagged and FraudScore, which only the detection
// pipeline updates.
type Transaction struct {
	ID         string             `json:"id"`
	Amount     float64            `json:"amount"`
	Currency   string             `json:"currency"`
	Timestamp  time.Time          `json:"timestamp"`
	Type       TransactionType    `json:"type"`
	Channel    TransactionChannel `json:"channel,omitempty"`
	Flagged    bool               `json:"isFlagged"`
	FraudScore float64            `json:"fraudScore"` // within [0,1]

	// Linked accounts. At least one must be set.
	DebitAccountID  string `json:"debitAccountId,omitempty"`
	CreditAccountID string `json:"creditAccountId,omitempty"`

	// Shared-infrastructure anchors.
	DeviceID  string `json:"deviceId,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
}

// Validate checks transaction invariants. The core skips rather than
// crashes on rows that fail this, since upstream ingestion owns them.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction id is required")
	}
	if t.Amount <= 0 {
		return fmt.Errorf("transaction %s: amount must be positive, got %.2f", t.ID, t.Amount)
	}
	if t.DebitAccountID == "" && t.CreditAccountID == "" {
		return fmt.Errorf("transaction %s: at least one linked account is required", t.ID)
	}
	if t.FraudScore < 0 || t.FraudScore > 1 {
		return fmt.Errorf("transaction %s: fraud score %.2f outside [0,1]", t.ID, t.FraudScore)
	}
	return nil
}

// Device is a shared-infrastructure anchor linked to customers.
type Device struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"` // mobile, desktop, tablet
	OS         string    `json:"os"`
	Trusted    bool      `json:"isTrusted"`
	FirstSeen  time.Time `json:"firstSeen"`
	LastSeen   time.Time `json:"lastSeen"`
	UsageCount int       `json:"usageCount"`
}

// IPAddress is a shared-infrastructure anchor linked to transactions.
type IPAddress struct {
	Address   string    `json:"address"`
	Country   string    `json:"country"`
	Proxy     bool      `json:"isProxy"`
	VPN       bool      `json:"isVpn"`
	RiskScore float64   `json:"riskScore"` // within [0,1]
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}
