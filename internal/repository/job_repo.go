package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bereka/backend/internal/models"
)

// JobFilter narrows job listings. Zero values are ignored.
type JobFilter struct {
	Status    string
	CreatorID *uuid.UUID
	WorkerID  *uuid.UUID
	Limit     int
}

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, creator_id, worker_id, title, description, category, budget_sats, status, deadline, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	if err := row.Scan(&j.ID, &j.CreatorID, &j.WorkerID, &j.Title, &j.Description, &j.Category, &j.BudgetSats, &j.Status, &j.Deadline, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, creator_id, worker_id, title, description, category, budget_sats, status, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, j.ID, j.CreatorID, j.WorkerID, j.Title, j.Description, j.Category, j.BudgetSats, j.Status, j.Deadline).Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, models.ErrJobNotFound)
	}
	return j, nil
}

// GetByIDForUpdate locks the job row, serializing state changes per job.
func (r *JobRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, models.ErrJobNotFound)
	}
	return j, nil
}

func (r *JobRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	tag, err := tx.Exec(ctx, `UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// AssignWorkerTx sets the worker and moves the job to IN_PROGRESS.
func (r *JobRepo) AssignWorkerTx(ctx context.Context, tx pgx.Tx, id, workerID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE jobs SET worker_id = $2, status = 'IN_PROGRESS', updated_at = now() WHERE id = $1
	`, id, workerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

func (r *JobRepo) List(ctx context.Context, f JobFilter) ([]*models.Job, error) {
	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.CreatorID != nil {
		args = append(args, *f.CreatorID)
		where = append(where, fmt.Sprintf("creator_id = $%d", len(args)))
	}
	if f.WorkerID != nil {
		args = append(args, *f.WorkerID)
		where = append(where, fmt.Sprintf("worker_id = $%d", len(args)))
	}
	q := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}
