package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bereka/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, owner_id, kind, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Kind, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateForOwner creates the AVAILABLE and ESCROW accounts of a user. Existing accounts are kept.
func (r *AccountRepo) CreateForOwner(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (id, owner_id, kind, balance)
		VALUES ($1, $3, 'AVAILABLE', 0), ($2, $3, 'ESCROW', 0)
		ON CONFLICT (owner_id, kind) WHERE owner_id IS NOT NULL DO NOTHING
	`, uuid.New(), uuid.New(), ownerID)
	return err
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, models.ErrAccountNotFound)
	}
	return a, nil
}

// GetByIDForUpdate locks the account row for update. Call within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, models.ErrAccountNotFound)
	}
	return a, nil
}

// GetByOwnerKind resolves a user's account of the given kind inside tx. It does not lock.
func (r *AccountRepo) GetByOwnerKind(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, kind string) (*models.Account, error) {
	a, err := scanAccount(tx.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 AND kind = $2
	`, ownerID, kind))
	if err != nil {
		return nil, notFound(err, models.ErrAccountNotFound)
	}
	return a, nil
}

// AddBalance applies delta to the account and returns the new balance.
// For AVAILABLE and ESCROW accounts the update only matches while the
// resulting balance stays non-negative, so an overdraft yields ErrInsufficientFunds.
func (r *AccountRepo) AddBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = now()
		WHERE id = $2 AND (kind NOT IN ('AVAILABLE', 'ESCROW') OR balance + $1 >= 0)
		RETURNING balance
	`, delta, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, models.ErrInsufficientFunds
	}
	return newBalance, err
}

func (r *AccountRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY kind`, ownerID)
}

func (r *AccountRepo) List(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
}

func (r *AccountRepo) list(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
