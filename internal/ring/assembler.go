// Package ring assembles fraud rings from detection evidence.
//
// Entities co-occurring on an evidence item are linked; connected
// components of size two or more become fraud rings. Assembly is pure:
// persistence is the caller's job.
package ring

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
)

// RoleFunc infers a member's role from the component's evidence.
type RoleFunc func(entityID string, kind domain.EntityKind, evidence []domain.Evidence) domain.MemberRole

// Assembler builds fraud rings via union-find over evidence entities.
type Assembler struct {
	roles RoleFunc
}

// NewAssembler creates an assembler with the default role inference.
func NewAssembler() *Assembler {
	return &Assembler{roles: InferRole}
}

// SetRoleFunc overrides role inference. Nil restores the default.
func (a *Assembler) SetRoleFunc(fn RoleFunc) {
	if fn == nil {
		fn = InferRole
	}
	a.roles = fn
}

// memberKey is the union-find node identity: "kind:entityID", matching
// the ring member signature encoding.
func memberKey(kind domain.EntityKind, id string) string {
	return string(kind) + ":" + id
}

// Assemble links entities co-occurring per evidence item and returns
// one ring per component of size >= 2, ordered by member signature.
func (a *Assembler) Assemble(evidence []domain.Evidence, detectedAt time.Time) []*domain.FraudRing {
	uf := newUnionFind()
	evidenceByKey := make(map[string][]int) // member key -> evidence indexes

	for i, ev := range evidence {
		keys := entityKeys(ev)
		if len(keys) == 0 {
			continue
		}
		for _, k := range keys {
			uf.add(k)
			evidenceByKey[k] = append(evidenceByKey[k], i)
		}
		for _, k := range keys[1:] {
			uf.union(keys[0], k)
		}
	}

	// Group members by component root.
	components := make(map[string][]string)
	for _, k := range uf.nodes() {
		root := uf.find(k)
		components[root] = append(components[root], k)
	}

	var rings []*domain.FraudRing
	for _, members := range components {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		rings = append(rings, a.buildRing(members, evidence, evidenceByKey, detectedAt))
	}

	sort.Slice(rings, func(i, j int) bool {
		return rings[i].MemberSignature < rings[j].MemberSignature
	})
	return rings
}

func (a *Assembler) buildRing(memberKeys []string, evidence []domain.Evidence, evidenceByKey map[string][]int, detectedAt time.Time) *domain.FraudRing {
	// Distinct contributing evidence, in input order.
	seen := make(map[int]bool)
	var indexes []int
	for _, k := range memberKeys {
		for _, i := range evidenceByKey[k] {
			if !seen[i] {
				seen[i] = true
				indexes = append(indexes, i)
			}
		}
	}
	sort.Ints(indexes)

	contributing := make([]domain.Evidence, 0, len(indexes))
	patterns := make(map[domain.PatternType]bool)
	confidence := 0.0
	amountByTx := make(map[string]float64)

	for _, i := range indexes {
		ev := evidence[i]
		contributing = append(contributing, ev)
		patterns[ev.Pattern] = true
		if ev.Confidence > confidence {
			confidence = ev.Confidence
		}
		for j, txID := range ev.TransactionIDs {
			if j < len(ev.Amounts) {
				amountByTx[txID] = ev.Amounts[j]
			} else if _, ok := amountByTx[txID]; !ok {
				amountByTx[txID] = 0
			}
		}
	}

	total := 0.0
	for _, amount := range amountByTx {
		total += amount
	}

	ring := &domain.FraudRing{
		ID:          uuid.NewString(),
		DetectedAt:  detectedAt,
		Confidence:  confidence,
		Status:      domain.RingInvestigating,
		TotalAmount: total,
		Evidence:    contributing,
	}

	for p := range patterns {
		ring.PatternTypes = append(ring.PatternTypes, p)
	}
	sort.Slice(ring.PatternTypes, func(i, j int) bool {
		return ring.PatternTypes[i] < ring.PatternTypes[j]
	})

	for _, k := range memberKeys {
		kind, id := splitMemberKey(k)
		ring.Members = append(ring.Members, domain.RingMember{
			EntityID: id,
			Kind:     kind,
			Role:     a.roles(id, kind, contributing),
		})
	}
	ring.MemberSignature = ring.ComputeSignature()
	return ring
}

// InferRole is the default role inference: mule evidence wins, a pure
// fan-out hub is the organizer, everyone else is a victim.
func InferRole(entityID string, kind domain.EntityKind, evidence []domain.Evidence) domain.MemberRole {
	if kind != domain.KindAccount {
		return domain.RoleVictim
	}

	fanSource := false
	fanCounterparty := false
	for _, ev := range evidence {
		switch ev.Pattern {
		case domain.PatternMule:
			for _, id := range ev.AccountIDs {
				if id == entityID {
					return domain.RoleMule
				}
			}
		case domain.PatternFanOut:
			if len(ev.AccountIDs) == 0 {
				continue
			}
			if ev.AccountIDs[0] == entityID {
				fanSource = true
				continue
			}
			for _, id := range ev.AccountIDs[1:] {
				if id == entityID {
					fanCounterparty = true
				}
			}
		}
	}

	if fanSource && !fanCounterparty {
		return domain.RoleOrganizer
	}
	return domain.RoleVictim
}

func entityKeys(ev domain.Evidence) []string {
	keys := make([]string, 0, len(ev.AccountIDs)+len(ev.CustomerIDs))
	seen := make(map[string]bool)
	for _, id := range ev.AccountIDs {
		k := memberKey(domain.KindAccount, id)
		if id != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, id := range ev.CustomerIDs {
		k := memberKey(domain.KindCustomer, id)
		if id != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func splitMemberKey(k string) (domain.EntityKind, string) {
	for i := 0; i < len(k); i++ {
		if k[i] == ':' {
			return domain.EntityKind(k[:i]), k[i+1:]
		}
	}
	return domain.KindAccount, k
}

// unionFind is a plain disjoint-set with path compression.
type unionFind struct {
	parent map[string]string
	order  []string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) add(k string) {
	if _, ok := u.parent[k]; !ok {
		u.parent[k] = k
		u.order = append(u.order, k)
	}
}

func (u *unionFind) find(k string) string {
	root := k
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[k] != root {
		u.parent[k], k = root, u.parent[k]
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

func (u *unionFind) nodes() []string {
	return u.order
}
