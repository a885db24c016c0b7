// Package detector implements the fraud pattern detectors.
//
// Each detector is a stateless function of the graph store and the
// detection parameters. Detectors never mutate the graph, check for
// cancellation between traversal steps, and degrade on per-sub-query
// store errors instead of failing the whole scan.
package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Detector is one pattern detection algorithm.
type Detector interface {
	// Name returns the pattern this detector produces.
	Name() domain.PatternType

	// Detect scans the store and returns evidence. A partial result with
	// TimedOut set is returned when the context deadline expires
	// mid-scan; per-sub-query failures are recorded as soft errors.
	Detect(ctx context.Context, store domain.GraphStore, cfg domain.DetectionConfig) *Result
}

// Result is the outcome of a single detector scan.
type Result struct {
	Pattern    domain.PatternType
	Evidence   []domain.Evidence
	TimedOut   bool
	SoftErrors []string
}

// Warnings renders the result's degradations as warning strings.
func (r *Result) Warnings() []string {
	var out []string
	if r.TimedOut {
		out = append(out, fmt.Sprintf("%s: timed_out with %d partial evidence items", r.Pattern, len(r.Evidence)))
	}
	for _, e := range r.SoftErrors {
		out = append(out, fmt.Sprintf("%s: %s", r.Pattern, e))
	}
	return out
}

// All returns the five detectors in stable order.
func All() []Detector {
	return []Detector{
		&CircularFlow{},
		&FanOut{},
		&FanIn{},
		&Mule{},
		&SharedInfra{},
	}
}

// cancelled reports whether the scan should stop, distinguishing a
// deadline (soft timeout, keep partial results) from other causes.
func cancelled(ctx context.Context) (stop, timedOut bool) {
	err := ctx.Err()
	if err == nil {
		return false, false
	}
	return true, errors.Is(err, context.DeadlineExceeded)
}
