// Package worker triggers detection runs from event bus requests.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/orchestrator"
)

// Worker listens for run requests on the EventBus and executes them
// through the detection engine.
type Worker struct {
	bus    domain.EventBus
	engine *orchestrator.Engine
	logger *slog.Logger

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, engine *orchestrator.Engine, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		engine: engine,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RunRequest is the message payload for requesting a detection run.
// Overrides apply to the requested run only.
type RunRequest struct {
	RequestID string                  `json:"requestId,omitempty"`
	Overrides *domain.DetectionConfig `json:"overrides,omitempty"`
}

// Start subscribes to the run request topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRunRequested, w.handleRunRequest)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("worker started", "topic", domain.TopicRunRequested)
	return nil
}

// handleRunRequest executes one detection run for a bus request.
func (w *Worker) handleRunRequest(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req RunRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			w.logger.Error("failed to parse run request",
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
	}
	if req.RequestID == "" {
		req.RequestID = msg.ID
	}

	w.logger.Debug("processing run request", "request_id", req.RequestID)

	result, err := w.engine.Run(ctx, req.Overrides)
	if err != nil {
		// A run already in flight covers this request; the requester
		// can observe its completion on the run topics.
		if errors.Is(err, domain.ErrConcurrentRun) {
			w.logger.Warn("run request dropped, detection already in progress",
				"request_id", req.RequestID,
			)
			return nil
		}
		w.logger.Error("detection run failed",
			"request_id", req.RequestID,
			"error", err,
		)
		return err
	}

	w.logger.Info("run request processed",
		"request_id", req.RequestID,
		"run_id", result.RunID,
		"status", result.Status,
		"rings", len(result.RingsCreated),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.logger.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
