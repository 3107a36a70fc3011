package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Specific errors wrap one of
// these so callers classify with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicatePayment  = errors.New("duplicate payment")
	ErrUpstreamProvider  = errors.New("upstream provider error")
)

var (
	ErrAccountNotFound      = fmt.Errorf("account %w", ErrNotFound)
	ErrJobNotFound          = fmt.Errorf("job %w", ErrNotFound)
	ErrIntentNotFound       = fmt.Errorf("payment intent %w", ErrNotFound)
	ErrDisputeNotFound      = fmt.Errorf("dispute %w", ErrNotFound)
	ErrHoldNotFound         = fmt.Errorf("escrow hold %w", ErrNotFound)
	ErrProfileNotFound      = fmt.Errorf("profile %w", ErrNotFound)
	ErrInvalidAmount        = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrWalletNotProvisioned = fmt.Errorf("%w: wallet not provisioned", ErrInvalidState)
)
