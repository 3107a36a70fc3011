package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/notify"
)

func (e *env) intent(t *testing.T, owner uuid.UUID, hash string, amount int64, expiresAt time.Time) {
	t.Helper()
	pi := &models.PaymentIntent{
		PaymentHash:    hash,
		UserID:         owner,
		AmountSats:     amount,
		PaymentRequest: "lnbc" + hash,
		Status:         models.IntentStatusPending,
		ExpiresAt:      expiresAt,
	}
	if err := e.store.Intents.Create(context.Background(), pi); err != nil {
		t.Fatalf("create intent: %v", err)
	}
}

func TestProcessIncomingPayment_WebhookThenPoll(t *testing.T) {
	e := newEnv(t)
	user := e.user(t)
	e.intent(t, user, "abc123", 5_000, time.Now().Add(time.Hour))
	ctx := context.Background()

	first, err := e.deposits.ProcessIncomingPayment(ctx, "abc123", models.ProviderWebhook, json.RawMessage(`{"payment_hash":"abc123"}`))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if !first.Paid || first.AlreadyProcessed || first.Amount != 5_000 {
		t.Errorf("webhook result: %+v", first)
	}

	second, err := e.deposits.ProcessIncomingPayment(ctx, "abc123", models.ProviderPoll, nil)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !second.Paid || !second.AlreadyProcessed || second.Amount != 5_000 {
		t.Errorf("poll result: %+v", second)
	}

	if got := e.balance(t, user, models.AccountAvailable); got != 5_000 {
		t.Errorf("available: got %d, want 5000", got)
	}
	pi, err := e.store.Intents.GetByHash(ctx, "abc123")
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	if pi.Status != models.IntentStatusCompleted {
		t.Errorf("intent status: got %s, want COMPLETED", pi.Status)
	}
	events, err := e.store.Events.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Provider != models.ProviderWebhook {
		t.Errorf("expected one webhook event, got %+v", events)
	}
	if n := len(e.notes.ofType(notify.TypePaymentReceived)); n != 1 {
		t.Errorf("PAYMENT_RECEIVED notifications: got %d, want 1", n)
	}
	e.assertReconciled(t)
}

func TestProcessIncomingPayment_ConcurrentTriggersCreditOnce(t *testing.T) {
	e := newEnv(t)
	user := e.user(t)
	e.intent(t, user, "abc123", 5_000, time.Now().Add(time.Hour))

	var wg sync.WaitGroup
	var mu sync.Mutex
	credited := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			provider := models.ProviderWebhook
			if i%2 == 1 {
				provider = models.ProviderPoll
			}
			res, err := e.deposits.ProcessIncomingPayment(context.Background(), "abc123", provider, nil)
			if err != nil {
				t.Errorf("process: %v", err)
				return
			}
			if !res.AlreadyProcessed {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if credited != 1 {
		t.Errorf("expected exactly one credit, got %d", credited)
	}
	if got := e.balance(t, user, models.AccountAvailable); got != 5_000 {
		t.Errorf("available: got %d, want 5000", got)
	}

	events, err := e.store.Events.ListRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var rows []*models.PaymentEvent
	for _, ev := range events {
		if ev.PaymentHash == "abc123" {
			rows = append(rows, ev)
		}
	}
	if len(rows) != 1 {
		t.Fatalf("payment events for abc123: got %d, want 1", len(rows))
	}
	if rows[0].AmountSats != 5_000 || rows[0].Status != models.IntentStatusCompleted {
		t.Errorf("event row: amount %d status %q, want 5000 COMPLETED", rows[0].AmountSats, rows[0].Status)
	}
	e.assertReconciled(t)
}

// An event that already exists for a still-pending intent is the losing side
// of a race: it must be absorbed without crediting again.
func TestProcessIncomingPayment_DuplicateEventAbsorbed(t *testing.T) {
	e := newEnv(t)
	user := e.user(t)
	e.intent(t, user, "abc123", 5_000, time.Now().Add(time.Hour))
	ctx := context.Background()

	tx, err := e.store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := e.store.Events.InsertTx(ctx, tx, &models.PaymentEvent{ID: uuid.New(), PaymentHash: "abc123", Provider: models.ProviderWebhook}); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	res, err := e.deposits.ProcessIncomingPayment(ctx, "abc123", models.ProviderPoll, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Paid || !res.AlreadyProcessed {
		t.Errorf("expected absorbed duplicate, got %+v", res)
	}
	if got := e.balance(t, user, models.AccountAvailable); got != 0 {
		t.Errorf("duplicate must not credit, available is %d", got)
	}
	if n := len(e.notes.ofType(notify.TypePaymentReceived)); n != 0 {
		t.Errorf("duplicate must not notify, got %d", n)
	}
}

func TestProcessIncomingPayment_ExpiredIntentIsCredited(t *testing.T) {
	e := newEnv(t)
	user := e.user(t)
	e.intent(t, user, "late", 700, time.Now().Add(-time.Minute))

	res, err := e.deposits.ProcessIncomingPayment(context.Background(), "late", models.ProviderWebhook, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.AlreadyProcessed || res.Amount != 700 {
		t.Errorf("result: %+v", res)
	}
	if got := e.balance(t, user, models.AccountAvailable); got != 700 {
		t.Errorf("available: got %d, want 700", got)
	}
}

func TestProcessIncomingPayment_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.deposits.ProcessIncomingPayment(ctx, "unknown", models.ProviderWebhook, nil); !errors.Is(err, models.ErrIntentNotFound) {
		t.Errorf("unknown hash: expected ErrIntentNotFound, got %v", err)
	}
	if _, err := e.deposits.ProcessIncomingPayment(ctx, "", models.ProviderWebhook, nil); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("empty hash: expected ErrInvalidInput, got %v", err)
	}
	e.assertReconciled(t)
}
