// Package wallet provisions the payment-provider wallet each user receives
// top-ups into.
package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/bereka/backend/internal/lightning"
	"github.com/bereka/backend/internal/models"
)

// Info is the public view of a provisioned wallet. Keys are never returned.
type Info struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	SetWalletKeys(ctx context.Context, id uuid.UUID, lnbitsID, adminKey, invoiceKey string) error
}

// Provider creates wallets on the payment rail.
type Provider interface {
	CreateWallet(ctx context.Context, userName string) (*lightning.Wallet, error)
}

type Service struct {
	profiles ProfileStore
	provider Provider
	log      *slog.Logger
	inflight singleflight.Group
}

func NewService(profiles ProfileStore, provider Provider, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{profiles: profiles, provider: provider, log: log}
}

// CreateWallet returns the user's wallet, provisioning it on first use.
// Concurrent calls for the same user share one provider request.
func (s *Service) CreateWallet(ctx context.Context, userID uuid.UUID) (*Info, error) {
	v, err, _ := s.inflight.Do(userID.String(), func() (any, error) {
		return s.provision(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	info := *v.(*Info)
	return &info, nil
}

func (s *Service) provision(ctx context.Context, userID uuid.UUID) (*Info, error) {
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.HasWallet() {
		return &Info{ID: *p.LNbitsID}, nil
	}

	w, err := s.provider.CreateWallet(ctx, p.Username)
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	if w.ID == "" || w.InvoiceKey == "" {
		return nil, fmt.Errorf("%w: incomplete wallet in provider response", models.ErrUpstreamProvider)
	}
	if err := s.profiles.SetWalletKeys(ctx, userID, w.ID, w.AdminKey, w.InvoiceKey); err != nil {
		return nil, fmt.Errorf("store wallet keys: %w", err)
	}
	s.log.Info("wallet provisioned", "user_id", userID, "lnbits_id", w.ID)
	return &Info{ID: w.ID, Created: true}, nil
}
