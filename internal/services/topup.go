package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bereka/backend/internal/lightning"
	"github.com/bereka/backend/internal/models"
)

type ProfileReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type IntentStore interface {
	Create(ctx context.Context, pi *models.PaymentIntent) error
	GetByHash(ctx context.Context, paymentHash string) (*models.PaymentIntent, error)
}

// InvoiceRail is the payment provider surface used for top-ups.
type InvoiceRail interface {
	CreateInvoice(ctx context.Context, invoiceKey string, amount int64, memo string, expiry time.Duration) (*lightning.Invoice, error)
	GetPayment(ctx context.Context, invoiceKey, paymentHash string) (*lightning.Payment, error)
}

type TopUpInvoice struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
	Amount         int64  `json:"amount"`
}

type PaymentStatus struct {
	Paid   bool  `json:"paid"`
	Amount int64 `json:"amount,omitempty"`
}

// TopUpService creates Lightning invoices for deposits and polls their status.
type TopUpService struct {
	Profiles ProfileReader
	Intents  IntentStore
	Rail     InvoiceRail
	Deposits *DepositIntake
	Expiry   time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// CreateInvoice asks the provider for an invoice on the user's wallet and
// records a PENDING intent for it.
func (s *TopUpService) CreateInvoice(ctx context.Context, userID uuid.UUID, amount int64) (*TopUpInvoice, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	profile, err := s.Profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !profile.HasWallet() {
		return nil, models.ErrWalletNotProvisioned
	}

	inv, err := s.Rail.CreateInvoice(ctx, *profile.LNbitsInvoiceKey, amount, fmt.Sprintf("Bereka top-up for %s", userID), s.Expiry)
	if err != nil {
		return nil, err
	}
	intent := &models.PaymentIntent{
		PaymentHash:    inv.PaymentHash,
		UserID:         userID,
		AmountSats:     amount,
		PaymentRequest: inv.PaymentRequest,
		Status:         models.IntentStatusPending,
		ExpiresAt:      s.now().Add(s.Expiry),
	}
	if err := s.Intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("store payment intent: %w", err)
	}
	s.Logger.Info("invoice created", "user_id", userID, "payment_hash", inv.PaymentHash, "amount", amount)
	return &TopUpInvoice{PaymentHash: inv.PaymentHash, PaymentRequest: inv.PaymentRequest, Amount: amount}, nil
}

// CheckPayment polls the provider for an intent owned by userID and credits
// it when paid.
func (s *TopUpService) CheckPayment(ctx context.Context, userID uuid.UUID, paymentHash string) (*PaymentStatus, error) {
	if paymentHash == "" {
		return nil, fmt.Errorf("%w: missing paymentHash", models.ErrInvalidInput)
	}
	intent, err := s.Intents.GetByHash(ctx, paymentHash)
	if err != nil {
		return nil, err
	}
	if intent.UserID != userID {
		return nil, fmt.Errorf("%w: payment intent belongs to another user", models.ErrUnauthorized)
	}
	if intent.Status == models.IntentStatusCompleted {
		return &PaymentStatus{Paid: true, Amount: intent.AmountSats}, nil
	}

	profile, err := s.Profiles.GetByID(ctx, intent.UserID)
	if err != nil {
		return nil, err
	}
	if !profile.HasWallet() {
		return nil, models.ErrWalletNotProvisioned
	}
	p, err := s.Rail.GetPayment(ctx, *profile.LNbitsInvoiceKey, paymentHash)
	if err != nil {
		return nil, err
	}
	if !p.Paid {
		return &PaymentStatus{Paid: false}, nil
	}
	res, err := s.Deposits.ProcessIncomingPayment(ctx, paymentHash, models.ProviderPoll, p.Raw)
	if err != nil {
		return nil, err
	}
	return &PaymentStatus{Paid: true, Amount: res.Amount}, nil
}

func (s *TopUpService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
