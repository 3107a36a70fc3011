package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bereka/backend/internal/models"
)

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

const disputeColumns = `id, job_id, opened_by, reason, status, resolution, resolved_by, resolved_at, created_at`

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	if err := row.Scan(&d.ID, &d.JobID, &d.OpenedBy, &d.Reason, &d.Status, &d.Resolution, &d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DisputeRepo) CreateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	return tx.QueryRow(ctx, `
		INSERT INTO disputes (id, job_id, opened_by, reason, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, d.ID, d.JobID, d.OpenedBy, d.Reason, d.Status).Scan(&d.CreatedAt)
}

// LatestByJobIDForUpdate locks and returns the most recent dispute of a job.
func (r *DisputeRepo) LatestByJobIDForUpdate(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Dispute, error) {
	d, err := scanDispute(tx.QueryRow(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE job_id = $1
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE
	`, jobID))
	if err != nil {
		return nil, notFound(err, models.ErrDisputeNotFound)
	}
	return d, nil
}

// ResolveTx records the resolution on an OPEN dispute.
func (r *DisputeRepo) ResolveTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	tag, err := tx.Exec(ctx, `
		UPDATE disputes SET status = $2, resolution = $3, resolved_by = $4, resolved_at = $5
		WHERE id = $1 AND status = 'OPEN'
	`, d.ID, d.Status, d.Resolution, d.ResolvedBy, d.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidState
	}
	return nil
}

func (r *DisputeRepo) ListOpen(ctx context.Context) ([]*models.Dispute, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE status = 'OPEN' ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}
