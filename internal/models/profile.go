package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile roles.
const (
	RoleWorker = "worker"
	RoleClient = "client"
	RoleAdmin  = "admin"
)

type Profile struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Username         string    `json:"username"`
	Role             string    `json:"role"`
	PasswordHash     string    `json:"-"`
	LNbitsID         *string   `json:"lnbits_id,omitempty"`
	LNbitsAdminKey   *string   `json:"-"`
	LNbitsInvoiceKey *string   `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// HasWallet reports whether a provider wallet has been provisioned.
func (p *Profile) HasWallet() bool {
	return p.LNbitsID != nil && *p.LNbitsID != "" && p.LNbitsInvoiceKey != nil && *p.LNbitsInvoiceKey != ""
}
