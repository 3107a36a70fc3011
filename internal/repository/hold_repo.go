package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bereka/backend/internal/models"
)

type HoldRepo struct {
	pool *pgxpool.Pool
}

func NewHoldRepo(pool *pgxpool.Pool) *HoldRepo {
	return &HoldRepo{pool: pool}
}

const holdColumns = `id, job_id, amount, status, created_at, updated_at`

func scanHold(row pgx.Row) (*models.EscrowHold, error) {
	var h models.EscrowHold
	if err := row.Scan(&h.ID, &h.JobID, &h.Amount, &h.Status, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

// CreateTx inserts a HELD hold for the job. job_id is unique, so a retried
// insert leaves the existing row untouched and reports created=false.
func (r *HoldRepo) CreateTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, amount int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO escrow_holds (id, job_id, amount, status)
		VALUES ($1, $2, $3, 'HELD')
		ON CONFLICT (job_id) DO NOTHING
	`, uuid.New(), jobID, amount)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *HoldRepo) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.EscrowHold, error) {
	h, err := scanHold(r.pool.QueryRow(ctx, `SELECT `+holdColumns+` FROM escrow_holds WHERE job_id = $1`, jobID))
	if err != nil {
		return nil, notFound(err, models.ErrHoldNotFound)
	}
	return h, nil
}

func (r *HoldRepo) GetByJobIDForUpdate(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.EscrowHold, error) {
	h, err := scanHold(tx.QueryRow(ctx, `SELECT `+holdColumns+` FROM escrow_holds WHERE job_id = $1 FOR UPDATE`, jobID))
	if err != nil {
		return nil, notFound(err, models.ErrHoldNotFound)
	}
	return h, nil
}

func (r *HoldRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_holds SET status = $2, updated_at = now() WHERE job_id = $1
	`, jobID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrHoldNotFound
	}
	return nil
}
