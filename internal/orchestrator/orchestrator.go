// Package orchestrator coordinates detection runs: detector dispatch,
// ring assembly, account scoring and event publication.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/detector"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/ring"
	"github.com/opensource-finance/harrier/internal/scoring"
)

// maxRetainedRuns bounds the in-memory run history.
const maxRetainedRuns = 100

// alertConfidence is the ring confidence at which an alert event is
// published in addition to the ring-created event.
const alertConfidence = 0.7

// Engine runs the detection pipeline. At most one run is in flight at
// a time; a second request is rejected with ErrConcurrentRun, never
// queued.
type Engine struct {
	store     domain.GraphStore
	bus       domain.EventBus
	scoring   *scoring.Service
	assembler *ring.Assembler
	detectors []detector.Detector
	cfg       domain.DetectionConfig
	logger    *slog.Logger
	tracer    trace.Tracer

	inFlight atomic.Bool

	mu           sync.RWMutex
	runs         map[string]*domain.DetectionRunResult
	runOrder     []string
	lastEvidence []domain.Evidence
}

// New creates a detection engine over the given store and services.
func New(store domain.GraphStore, bus domain.EventBus, scoringSvc *scoring.Service, cfg domain.DetectionConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		bus:       bus,
		scoring:   scoringSvc,
		assembler: ring.NewAssembler(),
		detectors: detector.All(),
		cfg:       cfg.Normalize(),
		logger:    logger,
		tracer:    otel.Tracer("harrier/orchestrator"),
		runs:      make(map[string]*domain.DetectionRunResult),
	}
}

// Assembler exposes the ring assembler for role-function overrides.
func (e *Engine) Assembler() *ring.Assembler { return e.assembler }

// Run executes one full detection run. Overrides apply to this run
// only; zero-valued fields keep the engine's configuration.
func (e *Engine) Run(ctx context.Context, overrides *domain.DetectionConfig) (*domain.DetectionRunResult, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, domain.ErrConcurrentRun
	}
	defer e.inFlight.Store(false)

	cfg := e.mergeConfig(overrides)
	start := time.Now().UTC()
	result := &domain.DetectionRunResult{
		RunID:             uuid.NewString(),
		Status:            domain.RunPending,
		StartedAt:         start,
		EvidenceByPattern: make(map[domain.PatternType][]domain.Evidence),
		AccountsScored:    make(map[string]domain.RiskScore),
	}

	ctx, span := e.tracer.Start(ctx, "detection.run",
		trace.WithAttributes(attribute.String("run.id", result.RunID)))
	defer span.End()

	if err := e.store.Ping(ctx); err != nil {
		result.Status = domain.RunFailed
		result.Warnings = append(result.Warnings, fmt.Sprintf("graph store unreachable: %v", err))
		e.finish(result, start, nil)
		return result, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	result.Status = domain.RunRunning
	e.publish(ctx, domain.TopicRunStarted, runEvent{RunID: result.RunID, Status: result.Status})
	e.logger.Info("detection run started", "run_id", result.RunID)

	// Dispatch all detectors concurrently, each under its own soft
	// timeout, all under the global deadline. Ring assembly needs the
	// full evidence set, so everything is collected before moving on.
	runCtx, cancel := context.WithTimeout(ctx, cfg.GlobalTimeout())
	defer cancel()

	results := make([]*detector.Result, len(e.detectors))
	var wg sync.WaitGroup
	for i, d := range e.detectors {
		wg.Add(1)
		go func(idx int, d detector.Detector) {
			defer wg.Done()
			dctx, dcancel := context.WithTimeout(runCtx, cfg.DetectorTimeout())
			defer dcancel()

			_, dspan := e.tracer.Start(dctx, "detection.detector",
				trace.WithAttributes(attribute.String("detector", string(d.Name()))))
			defer dspan.End()

			results[idx] = d.Detect(dctx, e.store, cfg)
		}(i, d)
	}
	wg.Wait()

	var allEvidence []domain.Evidence
	for _, res := range results {
		if res == nil {
			continue
		}
		if len(res.Evidence) > 0 {
			result.EvidenceByPattern[res.Pattern] = res.Evidence
			allEvidence = append(allEvidence, res.Evidence...)
		}
		result.Warnings = append(result.Warnings, res.Warnings()...)
	}

	e.assembleRings(ctx, result, allEvidence)
	e.scoreAccounts(ctx, result, allEvidence)

	if len(result.Warnings) > 0 {
		result.Status = domain.RunCompletedWithWarnings
	} else {
		result.Status = domain.RunCompleted
	}
	e.finish(result, start, allEvidence)

	e.publish(ctx, domain.TopicRunCompleted, runEvent{
		RunID:         result.RunID,
		Status:        result.Status,
		EvidenceCount: result.EvidenceCount(),
		RingsCreated:  len(result.RingsCreated),
		Warnings:      len(result.Warnings),
	})
	e.logger.Info("detection run finished",
		"run_id", result.RunID,
		"status", result.Status,
		"evidence", result.EvidenceCount(),
		"rings", len(result.RingsCreated),
		"accounts_scored", len(result.AccountsScored),
		"duration_ms", result.DurationMs,
	)

	return result, nil
}

// ScoreAccount computes a standalone score using the latest run's
// evidence when present.
func (e *Engine) ScoreAccount(ctx context.Context, accountID string) (domain.RiskScore, error) {
	e.mu.RLock()
	evidence := e.lastEvidence
	e.mu.RUnlock()
	return e.scoring.ScoreAccount(ctx, accountID, evidence)
}

// ExplainRing returns a ring with its members and contributing
// evidence.
func (e *Engine) ExplainRing(ctx context.Context, ringID string) (*domain.FraudRing, error) {
	r, err := e.store.GetFraudRing(ctx, ringID)
	if err != nil {
		return nil, fmt.Errorf("load ring %s: %w", ringID, err)
	}
	if r == nil {
		return nil, fmt.Errorf("explain ring: %w: %s", domain.ErrNotFound, ringID)
	}
	return r, nil
}

// GetRun returns a retained run result.
func (e *Engine) GetRun(runID string) (*domain.DetectionRunResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runs[runID]
	return r, ok
}

// Running reports whether a run is currently in flight.
func (e *Engine) Running() bool {
	return e.inFlight.Load()
}

func (e *Engine) assembleRings(ctx context.Context, result *domain.DetectionRunResult, evidence []domain.Evidence) {
	rings := e.assembler.Assemble(evidence, result.StartedAt)
	for _, r := range rings {
		if err := e.store.CreateFraudRing(ctx, r); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("persist ring %s: %v", r.MemberSignature, err))
			continue
		}
		result.RingsCreated = append(result.RingsCreated, r)
		e.publish(ctx, domain.TopicRingCreated, ringEvent{
			RunID:      result.RunID,
			RingID:     r.ID,
			Confidence: r.Confidence,
			Members:    len(r.Members),
		})
		if r.Confidence >= alertConfidence {
			e.publish(ctx, domain.TopicAlert, ringEvent{
				RunID:      result.RunID,
				RingID:     r.ID,
				Confidence: r.Confidence,
				Members:    len(r.Members),
			})
		}
	}
}

func (e *Engine) scoreAccounts(ctx context.Context, result *domain.DetectionRunResult, evidence []domain.Evidence) {
	touched := make(map[string]bool)
	for _, ev := range evidence {
		for _, id := range ev.AccountIDs {
			if id != "" {
				touched[id] = true
			}
		}
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		score, err := e.scoring.ScoreAccount(ctx, id, evidence)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("score account %s: %v", id, err))
			continue
		}
		result.AccountsScored[id] = score
	}
}

// finish stamps timings and retains the run, evicting the oldest entry
// past the retention bound.
func (e *Engine) finish(result *domain.DetectionRunResult, start time.Time, evidence []domain.Evidence) {
	result.FinishedAt = time.Now().UTC()
	result.DurationMs = result.FinishedAt.Sub(start).Milliseconds()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs[result.RunID] = result
	e.runOrder = append(e.runOrder, result.RunID)
	if len(e.runOrder) > maxRetainedRuns {
		delete(e.runs, e.runOrder[0])
		e.runOrder = e.runOrder[1:]
	}
	if evidence != nil {
		e.lastEvidence = evidence
	}
}

// mergeConfig overlays non-zero override fields onto the engine config.
func (e *Engine) mergeConfig(overrides *domain.DetectionConfig) domain.DetectionConfig {
	cfg := e.cfg
	if overrides == nil {
		return cfg
	}
	o := *overrides
	if o.MinCycleLength > 0 {
		cfg.MinCycleLength = o.MinCycleLength
	}
	if o.MaxCycleLength > 0 {
		cfg.MaxCycleLength = o.MaxCycleLength
	}
	if o.CycleWindowDays > 0 {
		cfg.CycleWindowDays = o.CycleWindowDays
	}
	if o.StrictCycles {
		cfg.StrictCycles = true
	}
	if o.FanMinCount > 0 {
		cfg.FanMinCount = o.FanMinCount
	}
	if o.FanWindowHours > 0 {
		cfg.FanWindowHours = o.FanWindowHours
	}
	if o.MuleMinThroughput > 0 {
		cfg.MuleMinThroughput = o.MuleMinThroughput
	}
	if o.MuleMaxHoldHours > 0 {
		cfg.MuleMaxHoldHours = o.MuleMaxHoldHours
	}
	if o.InfraWindowDays > 0 {
		cfg.InfraWindowDays = o.InfraWindowDays
	}
	if o.DetectorTimeoutMs > 0 {
		cfg.DetectorTimeoutMs = o.DetectorTimeoutMs
	}
	if o.GlobalTimeoutMs > 0 {
		cfg.GlobalTimeoutMs = o.GlobalTimeoutMs
	}
	return cfg.Normalize()
}

type runEvent struct {
	RunID         string           `json:"runId"`
	Status        domain.RunStatus `json:"status"`
	EvidenceCount int              `json:"evidenceCount,omitempty"`
	RingsCreated  int              `json:"ringsCreated,omitempty"`
	Warnings      int              `json:"warnings,omitempty"`
}

type ringEvent struct {
	RunID      string  `json:"runId"`
	RingID     string  `json:"ringId"`
	Confidence float64 `json:"confidence"`
	Members    int     `json:"members"`
}

func (e *Engine) publish(ctx context.Context, topic string, event any) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, topic, payload); err != nil {
		e.logger.Warn("publish event failed", "topic", topic, "error", err)
	}
}
