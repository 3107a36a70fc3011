package models

import (
	"time"

	"github.com/google/uuid"
)

// Account kinds.
const (
	AccountAvailable        = "AVAILABLE"
	AccountEscrow           = "ESCROW"
	AccountPlatformFees     = "PLATFORM_FEES"
	AccountExternalDeposits = "EXTERNAL_DEPOSITS"
)

// Platform singleton accounts, seeded by the initial migration.
var (
	PlatformFeesAccountID     = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	ExternalDepositsAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

type Account struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   *uuid.UUID `json:"owner_id,omitempty"`
	Kind      string     `json:"kind"`
	Balance   int64      `json:"balance"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Bounded reports whether the account balance may never go below zero.
// EXTERNAL_DEPOSITS is the contra account for inbound money and goes negative.
func (a *Account) Bounded() bool {
	return a.Kind == AccountAvailable || a.Kind == AccountEscrow
}

// IsPlatform reports whether kind names a platform singleton account.
func IsPlatform(kind string) bool {
	return kind == AccountPlatformFees || kind == AccountExternalDeposits
}

// PlatformAccountID returns the fixed id of a platform singleton account.
func PlatformAccountID(kind string) (uuid.UUID, bool) {
	switch kind {
	case AccountPlatformFees:
		return PlatformFeesAccountID, true
	case AccountExternalDeposits:
		return ExternalDepositsAccountID, true
	}
	return uuid.Nil, false
}
