package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/orchestrator"
	"github.com/opensource-finance/harrier/internal/scoring"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	engine  *orchestrator.Engine
	store   domain.GraphStore
	scoring *scoring.Service
	cache   domain.Cache
	version string
}

// NewHandler creates a new API handler.
func NewHandler(engine *orchestrator.Engine, store domain.GraphStore, scoringSvc *scoring.Service, cache domain.Cache, version string) *Handler {
	return &Handler{
		engine:  engine,
		store:   store,
		scoring: scoringSvc,
		cache:   cache,
		version: version,
	}
}

// StartRun handles POST /runs. The optional body carries per-run
// configuration overrides; zero-valued fields keep engine defaults.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var overrides *domain.DetectionConfig
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
		return
	}
	if len(body) > 0 {
		var cfg domain.DetectionConfig
		if err := json.Unmarshal(body, &cfg); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
		overrides = &cfg
	}

	result, err := h.engine.Run(ctx, overrides)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrConcurrentRun):
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "detection run already in progress",
			})
		case errors.Is(err, domain.ErrStoreUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": "graph store unavailable",
				"runId": result.RunID,
			})
		default:
			slog.Error("detection run failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "detection run failed",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetRun retrieves a retained run result by ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	result, ok := h.engine.GetRun(runID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ScoreAccount computes a fresh risk score for an account.
func (h *Handler) ScoreAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "account id is required",
		})
		return
	}

	score, err := h.engine.ScoreAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "account not found",
			})
			return
		}
		slog.Error("failed to score account", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to score account",
		})
		return
	}

	writeJSON(w, http.StatusOK, scoreResponse(accountID, score))
}

// ScoreCustomer computes a read-only risk score for a customer.
func (h *Handler) ScoreCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")
	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}

	score, err := h.scoring.ScoreCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "customer not found",
			})
			return
		}
		slog.Error("failed to score customer", "customer_id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to score customer",
		})
		return
	}

	writeJSON(w, http.StatusOK, scoreResponse(customerID, score))
}

// ListRings returns all persisted fraud rings.
func (h *Handler) ListRings(w http.ResponseWriter, r *http.Request) {
	rings, err := h.store.ListFraudRings(r.Context())
	if err != nil {
		slog.Error("failed to list fraud rings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list fraud rings",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rings": rings,
		"count": len(rings),
	})
}

// ExplainRing returns a ring with its contributing evidence.
func (h *Handler) ExplainRing(w http.ResponseWriter, r *http.Request) {
	ringID := chi.URLParam(r, "id")
	if ringID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "ring id is required",
		})
		return
	}

	ring, err := h.engine.ExplainRing(r.Context(), ringID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "ring not found",
			})
			return
		}
		slog.Error("failed to explain ring", "ring_id", ringID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to explain ring",
		})
		return
	}

	writeJSON(w, http.StatusOK, ring)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func scoreResponse(entityID string, score domain.RiskScore) map[string]any {
	return map[string]any{
		"id":           entityID,
		"score":        score.Score,
		"level":        score.Level(),
		"factors":      score.Factors,
		"calculatedAt": score.CalculatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
