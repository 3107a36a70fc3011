package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bereka/backend/internal/models"
)

// Repository stores profiles in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileColumns = `id, email, username, role, password_hash, lnbits_id, lnbits_admin_key, lnbits_invoice_key, created_at`

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.Email, &p.Username, &p.Role, &p.PasswordHash,
		&p.LNbitsID, &p.LNbitsAdminKey, &p.LNbitsInvoiceKey, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateTx inserts a profile. A taken email surfaces as a unique violation.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Profile) error {
	return tx.QueryRow(ctx, `
		INSERT INTO profiles (id, email, username, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, p.ID, p.Email, p.Username, p.Role, p.PasswordHash).Scan(&p.CreatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE email = $1`, email))
}

// SetWalletKeys stores the provider wallet of a profile.
func (r *Repository) SetWalletKeys(ctx context.Context, id uuid.UUID, lnbitsID, adminKey, invoiceKey string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE profiles SET lnbits_id = $2, lnbits_admin_key = $3, lnbits_invoice_key = $4
		WHERE id = $1
	`, id, lnbitsID, adminKey, invoiceKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrProfileNotFound
	}
	return nil
}

// SetRole changes a profile's role. Admins are provisioned out of band.
func (r *Repository) SetRole(ctx context.Context, id uuid.UUID, role string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrProfileNotFound
	}
	return nil
}
