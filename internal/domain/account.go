// Package domain defines the core entities and interfaces for Harrier.
package domain

import (
	"fmt"
	"time"
)

// AccountType classifies an account.
type AccountType string

const (
	AccountChecking AccountType = "checking"
	AccountSavings  AccountType = "savings"
	AccountCredit   AccountType = "credit"
)

// AccountStatus is the lifecycle state of an account.
// Transitions are one-way: active -> suspended -> closed.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

// statusRank orders statuses along the one-way lattice.
var statusRank = map[AccountStatus]int{
	AccountActive:    0,
	AccountSuspended: 1,
	AccountClosed:    2,
}

// Account is a bank account node in the transaction graph.
type Account struct {
	ID        string        `json:"id"`
	Number    string        `json:"number"`
	Type      AccountType   `json:"type"`
	Status    AccountStatus `json:"status"`
	Balance   float64       `json:"balance"`
	RiskScore float64       `json:"riskScore"` // always within [0,100]
	Country   string        `json:"country"`
	Currency  string        `json:"currency"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ApplyRiskScore sets the risk score, clamping to [0,100].
func (a *Account) ApplyRiskScore(score float64) {
	a.RiskScore = ClampScore(score, 0, 100)
}

// TransitionStatus moves the account along the status lattice.
// Reopening (moving backwards) is rejected.
func (a *Account) TransitionStatus(next AccountStatus) error {
	cur, ok := statusRank[a.Status]
	if !ok {
		return fmt.Errorf("unknown account status: %s", a.Status)
	}
	nxt, ok := statusRank[next]
	if !ok {
		return fmt.Errorf("unknown account status: %s", next)
	}
	if nxt < cur {
		return fmt.Errorf("invalid status transition: %s -> %s", a.Status, next)
	}
	a.Status = next
	return nil
}

// Validate checks account invariants at the boundary.
func (a *Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account id is required")
	}
	if _, ok := statusRank[a.Status]; !ok {
		return fmt.Errorf("unknown account status: %s", a.Status)
	}
	if a.RiskScore < 0 || a.RiskScore > 100 {
		return fmt.Errorf("risk score %.2f outside [0,100]", a.RiskScore)
	}
	return nil
}

// KYCStatus is the know-your-customer verification state.
type KYCStatus string

const (
	KYCVerified KYCStatus = "verified"
	KYCPending  KYCStatus = "pending"
	KYCFailed   KYCStatus = "failed"
)

// OwnershipRole tags a customer's relationship to an account.
type OwnershipRole string

const (
	OwnerPrimary     OwnershipRole = "primary"
	OwnerJoint       OwnershipRole = "joint"
	OwnerBeneficiary OwnershipRole = "beneficiary"
)

// Customer is a customer node. Risk level is derived, never stored.
type Customer struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Country       string    `json:"country"`
	KYCStatus     KYCStatus `json:"kycStatus"`
	CustomerSince time.Time `json:"customerSince"`
}

// FullName returns the display name.
func (c *Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

// RiskLevel is a categorical risk band derived from a numeric score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// LevelForScore maps a [0,100] score onto a risk band.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score < 30:
		return RiskLow
	case score < 60:
		return RiskMedium
	case score < 85:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// ClampScore bounds v to [lo, hi].
func ClampScore(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
