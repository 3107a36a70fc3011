package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bereka/backend/internal/models"
)

// LedgerRepo stores append-only ledger entries. There is no update or delete.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const entryColumns = `id, debit_account_id, credit_account_id, amount, reference_kind, reference_id, created_at`

func scanEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	if err := row.Scan(&e.ID, &e.DebitAccountID, &e.CreditAccountID, &e.Amount, &e.ReferenceKind, &e.ReferenceID, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateTx inserts a ledger entry inside the given transaction.
func (r *LedgerRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, debit_account_id, credit_account_id, amount, reference_kind, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.DebitAccountID, e.CreditAccountID, e.Amount, e.ReferenceKind, e.ReferenceID).Scan(&e.CreatedAt)
}

// ListByReferenceTx returns the entries recorded for a reference id (job id or payment hash).
func (r *LedgerRepo) ListByReferenceTx(ctx context.Context, tx pgx.Tx, referenceID string) ([]*models.LedgerEntry, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries WHERE reference_id = $1 ORDER BY created_at, id
	`, referenceID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *LedgerRepo) ListByReference(ctx context.Context, referenceID string) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries WHERE reference_id = $1 ORDER BY created_at, id
	`, referenceID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// ListByAccountIDs returns the most recent entries touching any of the accounts.
func (r *LedgerRepo) ListByAccountIDs(ctx context.Context, accountIDs []uuid.UUID, limit int) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE debit_account_id = ANY($1) OR credit_account_id = ANY($1)
		ORDER BY created_at DESC, id
		LIMIT $2
	`, accountIDs, limit)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// NetBalances replays the ledger: credits minus debits per account.
func (r *LedgerRepo) NetBalances(ctx context.Context) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT account_id, SUM(delta)::bigint FROM (
			SELECT credit_account_id AS account_id, amount AS delta FROM ledger_entries
			UNION ALL
			SELECT debit_account_id, -amount FROM ledger_entries
		) moves
		GROUP BY account_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	net := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var sum int64
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, err
		}
		net[id] = sum
	}
	return net, rows.Err()
}

func collectEntries(rows pgx.Rows) ([]*models.LedgerEntry, error) {
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
