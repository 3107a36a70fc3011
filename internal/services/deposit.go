package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bereka/backend/internal/ledger"
	"github.com/bereka/backend/internal/metrics"
	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/notify"
	"github.com/bereka/backend/internal/repository"
)

type IntentRepo interface {
	GetByHash(ctx context.Context, paymentHash string) (*models.PaymentIntent, error)
	MarkCompletedTx(ctx context.Context, tx pgx.Tx, paymentHash string) (bool, error)
}

type PaymentEventRepo interface {
	InsertTx(ctx context.Context, tx pgx.Tx, ev *models.PaymentEvent) error
}

// DepositResult reports the outcome of an inbound payment.
type DepositResult struct {
	Paid             bool  `json:"paid"`
	AlreadyProcessed bool  `json:"alreadyProcessed"`
	Amount           int64 `json:"amount"`
}

// DepositIntake credits confirmed inbound payments exactly once, whichever
// trigger (webhook or poll) reports them first.
type DepositIntake struct {
	DB       repository.TxBeginner
	Ledger   *ledger.Ledger
	Intents  IntentRepo
	Events   PaymentEventRepo
	Notifier notify.Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// ProcessIncomingPayment credits the intent's owner for a paid invoice. The
// unique payment_hash on payment events is the only idempotency guard: a
// concurrent duplicate loses the insert and reports AlreadyProcessed.
func (d *DepositIntake) ProcessIncomingPayment(ctx context.Context, paymentHash, provider string, raw json.RawMessage) (res *DepositResult, err error) {
	defer func() {
		switch {
		case err != nil:
			metrics.RecordDeposit(provider, outcome(err))
		case res.AlreadyProcessed:
			metrics.RecordDeposit(provider, "duplicate")
		default:
			metrics.RecordDeposit(provider, "credited")
		}
	}()

	if paymentHash == "" {
		return nil, fmt.Errorf("%w: payment hash required", models.ErrInvalidInput)
	}
	intent, err := d.Intents.GetByHash(ctx, paymentHash)
	if err != nil {
		return nil, err
	}
	if intent.Status == models.IntentStatusCompleted {
		return &DepositResult{Paid: true, AlreadyProcessed: true, Amount: intent.AmountSats}, nil
	}
	if intent.Expired(d.now()) {
		d.Logger.Warn("crediting payment for expired intent", "payment_hash", paymentHash, "expires_at", intent.ExpiresAt)
	}

	tx, err := d.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	ev := &models.PaymentEvent{
		ID:          uuid.New(),
		PaymentHash: paymentHash,
		Provider:    provider,
		AmountSats:  intent.AmountSats,
		Status:      models.IntentStatusCompleted,
		RawPayload:  raw,
	}
	if err := d.Events.InsertTx(ctx, tx, ev); err != nil {
		if errors.Is(err, models.ErrDuplicatePayment) {
			d.Logger.Info("payment already processed", "payment_hash", paymentHash, "provider", provider)
			return &DepositResult{Paid: true, AlreadyProcessed: true, Amount: intent.AmountSats}, nil
		}
		return nil, err
	}
	if _, err := d.Intents.MarkCompletedTx(ctx, tx, paymentHash); err != nil {
		return nil, err
	}
	avail, err := d.Ledger.UserAccount(ctx, tx, intent.UserID, models.AccountAvailable)
	if err != nil {
		return nil, err
	}
	entry, err := d.Ledger.Transfer(ctx, tx, models.ExternalDepositsAccountID, avail.ID, intent.AmountSats, models.RefDeposit, paymentHash)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	ledger.RecordCommitted(entry)

	d.Logger.Info("payment credited", "payment_hash", paymentHash, "provider", provider, "user_id", intent.UserID, "amount", intent.AmountSats)
	if d.Notifier != nil {
		n := notify.Notification{Type: notify.TypePaymentReceived, RecipientUserID: intent.UserID, Amount: intent.AmountSats}
		if err := d.Notifier.Notify(ctx, n); err != nil {
			d.Logger.Error("failed to queue notification", "type", n.Type, "user_id", n.RecipientUserID, "error", err)
		}
	}
	return &DepositResult{Paid: true, Amount: intent.AmountSats}, nil
}

func (d *DepositIntake) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}
