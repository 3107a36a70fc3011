package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bereka/backend/internal/metrics"
	"github.com/bereka/backend/internal/models"
)

// AccountStore is the account repository surface the ledger needs.
type AccountStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	GetByOwnerKind(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, kind string) (*models.Account, error)
	AddBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta int64) (int64, error)
	List(ctx context.Context) ([]*models.Account, error)
}

// EntryStore is the append-only ledger entry store.
type EntryStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	NetBalances(ctx context.Context) (map[uuid.UUID]int64, error)
}

// Ledger owns the transfer primitive: the only code path that changes an
// account balance. Every transfer writes exactly one ledger entry in the same
// transaction as the two balance updates.
type Ledger struct {
	Accounts AccountStore
	Entries  EntryStore
}

func New(accounts AccountStore, entries EntryStore) *Ledger {
	return &Ledger{Accounts: accounts, Entries: entries}
}

// Transfer moves amount sats from one account to another inside tx. The
// caller owns the transaction and decides when to commit, and reports the
// returned entry with RecordCommitted once the commit succeeds.
//
// Both rows are locked in ascending id order, so concurrent transfers over
// the same pair of accounts cannot deadlock.
func (l *Ledger) Transfer(ctx context.Context, tx pgx.Tx, from, to uuid.UUID, amount int64, refKind, refID string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if from == to {
		return nil, fmt.Errorf("%w: transfer to the same account", models.ErrInvalidInput)
	}

	var src *models.Account
	for _, id := range lockOrder(from, to) {
		acc, err := l.Accounts.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		if id == from {
			src = acc
		}
	}

	if src.Bounded() && src.Balance < amount {
		return nil, models.ErrInsufficientFunds
	}
	if _, err := l.Accounts.AddBalance(ctx, tx, from, -amount); err != nil {
		return nil, fmt.Errorf("debit %s: %w", from, err)
	}
	if _, err := l.Accounts.AddBalance(ctx, tx, to, amount); err != nil {
		return nil, fmt.Errorf("credit %s: %w", to, err)
	}

	entry := &models.LedgerEntry{
		ID:              uuid.New(),
		DebitAccountID:  from,
		CreditAccountID: to,
		Amount:          amount,
		ReferenceKind:   refKind,
		ReferenceID:     refID,
	}
	if err := l.Entries.CreateTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return entry, nil
}

// RecordCommitted counts entries whose transaction has committed. Entries
// from a rolled back transaction must not be passed here.
func RecordCommitted(entries ...*models.LedgerEntry) {
	for _, e := range entries {
		if e != nil {
			metrics.RecordTransfer(e.ReferenceKind, e.Amount)
		}
	}
}

// UserAccount resolves a user's AVAILABLE or ESCROW account inside tx.
func (l *Ledger) UserAccount(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, kind string) (*models.Account, error) {
	acc, err := l.Accounts.GetByOwnerKind(ctx, tx, ownerID, kind)
	if err != nil {
		return nil, fmt.Errorf("%s account of %s: %w", kind, ownerID, err)
	}
	return acc, nil
}

// PlatformAccount returns the id of a platform singleton account.
func (l *Ledger) PlatformAccount(kind string) (uuid.UUID, error) {
	id, ok := models.PlatformAccountID(kind)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s is not a platform account", models.ErrInvalidInput, kind)
	}
	return id, nil
}

func lockOrder(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() < b.String() {
		return [2]uuid.UUID{a, b}
	}
	return [2]uuid.UUID{b, a}
}
