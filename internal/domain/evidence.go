package domain

import (
	"sort"
	"strings"
	"time"
)

// PatternType names a fraud pattern a detector can produce.
type PatternType string

const (
	PatternCircularFlow PatternType = "circular_flow"
	PatternFanOut       PatternType = "fan_out"
	PatternFanIn        PatternType = "fan_in"
	PatternMule         PatternType = "mule"
	PatternSharedInfra  PatternType = "shared_infrastructure"
)

// AllPatterns lists every detector pattern in a stable order.
var AllPatterns = []PatternType{
	PatternCircularFlow,
	PatternFanOut,
	PatternFanIn,
	PatternMule,
	PatternSharedInfra,
}

// Evidence is one detected pattern instance. It is a value object:
// equality is by content, and it is never persisted as a graph node.
type Evidence struct {
	Pattern        PatternType `json:"pattern"`
	Confidence     float64     `json:"confidence"` // within [0,1]
	TransactionIDs []string    `json:"transactionIds"`

	// Amounts is parallel to TransactionIDs. Ring assembly sums
	// amounts over distinct transactions without re-reading the graph.
	Amounts []float64 `json:"amounts,omitempty"`

	AccountIDs  []string  `json:"accountIds,omitempty"`
	CustomerIDs []string  `json:"customerIds,omitempty"`
	DeviceIDs   []string  `json:"deviceIds,omitempty"`
	IPs         []string  `json:"ips,omitempty"`
	Factors     []string  `json:"factors"`
	DetectedAt  time.Time `json:"detectedAt"`
}

// Key returns a content signature independent of detection order.
// Used for evidence set comparison and deduplication.
func (e *Evidence) Key() string {
	txs := append([]string(nil), e.TransactionIDs...)
	sort.Strings(txs)
	accts := append([]string(nil), e.AccountIDs...)
	sort.Strings(accts)
	custs := append([]string(nil), e.CustomerIDs...)
	sort.Strings(custs)
	infra := append(append([]string(nil), e.DeviceIDs...), e.IPs...)
	sort.Strings(infra)
	return string(e.Pattern) + "|" + strings.Join(txs, ",") + "|" +
		strings.Join(accts, ",") + "|" + strings.Join(custs, ",") + "|" +
		strings.Join(infra, ",")
}

// RiskScore is a composite account score with its explanation.
// Any score above zero carries at least one factor.
type RiskScore struct {
	Score        float64   `json:"score"` // within [0,100]
	Factors      []string  `json:"factors"`
	CalculatedAt time.Time `json:"calculatedAt"`
}

// Level returns the categorical band for the score.
func (r RiskScore) Level() RiskLevel {
	return LevelForScore(r.Score)
}

// RunStatus is the detection run state machine.
type RunStatus string

const (
	RunPending               RunStatus = "pending"
	RunRunning               RunStatus = "running"
	RunCompleted             RunStatus = "completed"
	RunCompletedWithWarnings RunStatus = "completed_with_warnings"
	RunFailed                RunStatus = "failed"
)

// DetectionRunResult is the outcome of one orchestrated detection run.
type DetectionRunResult struct {
	RunID             string                     `json:"runId"`
	Status            RunStatus                  `json:"status"`
	StartedAt         time.Time                  `json:"startedAt"`
	FinishedAt        time.Time                  `json:"finishedAt"`
	EvidenceByPattern map[PatternType][]Evidence `json:"evidenceByPattern"`
	RingsCreated      []*FraudRing               `json:"ringsCreated"`
	AccountsScored    map[string]RiskScore       `json:"accountsScored"`
	Warnings          []string                   `json:"warnings,omitempty"`
	DurationMs        int64                      `json:"durationMs"`
}

// EvidenceCount returns the total evidence items across patterns.
func (r *DetectionRunResult) EvidenceCount() int {
	n := 0
	for _, evs := range r.EvidenceByPattern {
		n += len(evs)
	}
	return n
}

// AllEvidence flattens evidence in stable pattern order.
func (r *DetectionRunResult) AllEvidence() []Evidence {
	var out []Evidence
	for _, p := range AllPatterns {
		out = append(out, r.EvidenceByPattern[p]...)
	}
	return out
}
