package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger reference kinds.
const (
	RefDeposit     = "DEPOSIT"
	RefEscrowFund  = "ESCROW_FUND"
	RefPayout      = "PAYOUT"
	RefPlatformFee = "PLATFORM_FEE"
	RefRefund      = "REFUND"
	RefSplit       = "SPLIT"
)

// LedgerEntry is one immutable movement of sats between two accounts.
type LedgerEntry struct {
	ID              uuid.UUID `json:"id"`
	DebitAccountID  uuid.UUID `json:"debit_account_id"`
	CreditAccountID uuid.UUID `json:"credit_account_id"`
	Amount          int64     `json:"amount"`
	ReferenceKind   string    `json:"reference_kind"`
	ReferenceID     string    `json:"reference_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// Delta returns the signed effect of the entry on accountID.
func (e *LedgerEntry) Delta(accountID uuid.UUID) int64 {
	var d int64
	if e.CreditAccountID == accountID {
		d += e.Amount
	}
	if e.DebitAccountID == accountID {
		d -= e.Amount
	}
	return d
}
