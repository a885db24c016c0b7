package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/orchestrator"
	"github.com/opensource-finance/harrier/internal/scoring"
	"github.com/opensource-finance/harrier/internal/velocity"
)

func newTestWorker(eventBus domain.EventBus) (*Worker, *graph.MemoryStore) {
	store := graph.NewMemoryStore()
	vel := velocity.NewService(store, nil)
	svc := scoring.NewService(store, nil, vel, nil)
	engine := orchestrator.New(store, eventBus, svc, domain.DefaultDetectionConfig(), nil)
	return NewWorker(eventBus, engine, nil), store
}

// seedFanOut plants a hub spraying to enough fresh recipients to yield
// one fan-out evidence item and one assembled ring.
func seedFanOut(t *testing.T, store *graph.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.PutAccount(ctx, &domain.Account{ID: "hub", Status: domain.AccountActive}); err != nil {
		t.Fatalf("seed hub: %v", err)
	}
	for i := 0; i < 6; i++ {
		dst := fmt.Sprintf("dst-%d", i)
		if err := store.PutAccount(ctx, &domain.Account{ID: dst, Status: domain.AccountActive}); err != nil {
			t.Fatalf("seed account: %v", err)
		}
		err := store.PutTransaction(ctx, &domain.Transaction{
			ID: fmt.Sprintf("tx-%02d", i), Amount: 800, Currency: "USD",
			Timestamp: now.Add(-time.Duration(i+1) * time.Minute), Type: domain.TxTransfer,
			DebitAccountID: "hub", CreditAccountID: dst,
		})
		if err != nil {
			t.Fatalf("seed transaction: %v", err)
		}
	}
}

func TestWorkerStartAndStop(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w, _ := newTestWorker(eventBus)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 1 {
		t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
	}
	if len(stats.Topics) != 1 || stats.Topics[0] != domain.TopicRunRequested {
		t.Errorf("topics = %v, want [%s]", stats.Topics, domain.TopicRunRequested)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	stats = w.GetStats()
	if stats.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}
}

func TestWorkerRunsDetectionOnRequest(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w, store := newTestWorker(eventBus)
	seedFanOut(t, store)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	var completed atomic.Bool
	var completedPayload atomic.Pointer[[]byte]
	_, err := eventBus.Subscribe(context.Background(), domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		payload := msg.Payload
		completedPayload.Store(&payload)
		completed.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	req := RunRequest{RequestID: "req-001"}
	payload, _ := json.Marshal(req)
	if err := eventBus.Publish(context.Background(), domain.TopicRunRequested, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !completed.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !completed.Load() {
		t.Fatal("run completion event not published")
	}

	var event struct {
		RunID  string           `json:"runId"`
		Status domain.RunStatus `json:"status"`
	}
	if err := json.Unmarshal(*completedPayload.Load(), &event); err != nil {
		t.Fatalf("parse completion event: %v", err)
	}
	if event.RunID == "" {
		t.Error("completion event missing run id")
	}
	if event.Status != domain.RunCompleted {
		t.Errorf("status = %s, want %s", event.Status, domain.RunCompleted)
	}

	result, ok := w.engine.GetRun(event.RunID)
	if !ok {
		t.Fatalf("run %s not retained by engine", event.RunID)
	}
	if len(result.RingsCreated) != 1 {
		t.Errorf("rings created = %d, want 1 from the seeded fan-out", len(result.RingsCreated))
	}
}

func TestWorkerHandlesEmptyPayload(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w, _ := newTestWorker(eventBus)
	msg := &domain.Message{ID: "msg-1", Topic: domain.TopicRunRequested}
	if err := w.handleRunRequest(context.Background(), msg); err != nil {
		t.Fatalf("handleRunRequest: %v", err)
	}
}

func TestWorkerRejectsMalformedPayload(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w, _ := newTestWorker(eventBus)
	msg := &domain.Message{
		ID:      "msg-bad",
		Topic:   domain.TopicRunRequested,
		Payload: []byte("{not json"),
	}
	if err := w.handleRunRequest(context.Background(), msg); err == nil {
		t.Error("expected error for malformed payload")
	}
}
