package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bereka/backend/internal/models"
)

type IntentRepo struct {
	pool *pgxpool.Pool
}

func NewIntentRepo(pool *pgxpool.Pool) *IntentRepo {
	return &IntentRepo{pool: pool}
}

func (r *IntentRepo) Create(ctx context.Context, pi *models.PaymentIntent) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO payment_intents (payment_hash, user_id, amount_sats, payment_request, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, pi.PaymentHash, pi.UserID, pi.AmountSats, pi.PaymentRequest, pi.Status, pi.ExpiresAt).Scan(&pi.CreatedAt)
}

func (r *IntentRepo) GetByHash(ctx context.Context, paymentHash string) (*models.PaymentIntent, error) {
	var pi models.PaymentIntent
	err := r.pool.QueryRow(ctx, `
		SELECT payment_hash, user_id, amount_sats, payment_request, status, expires_at, created_at
		FROM payment_intents WHERE payment_hash = $1
	`, paymentHash).Scan(&pi.PaymentHash, &pi.UserID, &pi.AmountSats, &pi.PaymentRequest, &pi.Status, &pi.ExpiresAt, &pi.CreatedAt)
	if err != nil {
		return nil, notFound(err, models.ErrIntentNotFound)
	}
	return &pi, nil
}

// MarkCompletedTx flips a PENDING intent to COMPLETED. It reports false when
// the intent was already completed.
func (r *IntentRepo) MarkCompletedTx(ctx context.Context, tx pgx.Tx, paymentHash string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE payment_intents SET status = 'COMPLETED' WHERE payment_hash = $1 AND status = 'PENDING'
	`, paymentHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountPending counts a user's unpaid, unexpired invoices.
func (r *IntentRepo) CountPending(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM payment_intents
		WHERE user_id = $1 AND status = 'PENDING' AND expires_at > now()
	`, userID).Scan(&n)
	return n, err
}

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// InsertTx records a processed payment. The unique index on payment_hash
// turns a second insert into models.ErrDuplicatePayment.
func (r *EventRepo) InsertTx(ctx context.Context, tx pgx.Tx, ev *models.PaymentEvent) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO payment_events (id, payment_hash, provider, amount_sats, status, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, ev.ID, ev.PaymentHash, ev.Provider, ev.AmountSats, ev.Status, ev.RawPayload).Scan(&ev.CreatedAt)
	if IsUniqueViolation(err) {
		return models.ErrDuplicatePayment
	}
	return err
}

func (r *EventRepo) ListRecent(ctx context.Context, limit int) ([]*models.PaymentEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, payment_hash, provider, amount_sats, status, raw_payload, created_at
		FROM payment_events ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PaymentEvent
	for rows.Next() {
		var ev models.PaymentEvent
		if err := rows.Scan(&ev.ID, &ev.PaymentHash, &ev.Provider, &ev.AmountSats, &ev.Status, &ev.RawPayload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &ev)
	}
	return list, rows.Err()
}
