package domain

import (
	"sort"
	"strings"
	"time"
)

// RingStatus is the investigation state of a fraud ring. It is the only
// field mutated after creation, by an external investigator action.
type RingStatus string

const (
	RingInvestigating RingStatus = "investigating"
	RingConfirmed     RingStatus = "confirmed"
	RingFalsePositive RingStatus = "false_positive"
)

// MemberRole tags a ring member's inferred role.
type MemberRole string

const (
	RoleOrganizer MemberRole = "organizer"
	RoleMule      MemberRole = "mule"
	RoleVictim    MemberRole = "victim"
)

// EntityKind distinguishes ring member entity types.
type EntityKind string

const (
	KindAccount  EntityKind = "account"
	KindCustomer EntityKind = "customer"
)

// RingMember is one entity in a fraud ring with its inferred role.
type RingMember struct {
	EntityID string     `json:"entityId"`
	Kind     EntityKind `json:"kind"`
	Role     MemberRole `json:"role"`
}

// FraudRing is a connected component of entities linked by overlapping
// evidence. Created only by the ring assembler.
type FraudRing struct {
	ID           string        `json:"id"`
	DetectedAt   time.Time     `json:"detectedAt"`
	Confidence   float64       `json:"confidence"` // within [0,1]
	Status       RingStatus    `json:"status"`
	Members      []RingMember  `json:"members"`
	TotalAmount  float64       `json:"totalAmount"`
	PatternTypes []PatternType `json:"patternTypes"`

	// MemberSignature is a deterministic key over the sorted member set.
	// Stores upsert on it, so re-running detection over an unchanged
	// graph never creates a duplicate ring for the same component.
	MemberSignature string `json:"memberSignature"`

	// Evidence that contributed to this ring, kept for explainability.
	Evidence []Evidence `json:"evidence,omitempty"`
}

// ComputeSignature derives the member signature from the member set.
func (r *FraudRing) ComputeSignature() string {
	ids := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		ids = append(ids, string(m.Kind)+":"+m.EntityID)
	}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

// MemberIDs returns the member entity IDs in sorted order.
func (r *FraudRing) MemberIDs() []string {
	ids := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		ids = append(ids, m.EntityID)
	}
	sort.Strings(ids)
	return ids
}
