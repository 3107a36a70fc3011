package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Mismatch is an account whose cached balance disagrees with the ledger replay.
type Mismatch struct {
	AccountID uuid.UUID `json:"account_id"`
	Kind      string    `json:"kind"`
	Cached    int64     `json:"cached"`
	Replayed  int64     `json:"replayed"`
}

// Report is the result of a reconciliation run.
type Report struct {
	Accounts   int        `json:"accounts"`
	Total      int64      `json:"total"`
	Mismatches []Mismatch `json:"mismatches"`
}

// OK reports whether every balance matched and the system total is zero.
func (r *Report) OK() bool {
	return len(r.Mismatches) == 0 && r.Total == 0
}

// Reconcile replays every ledger entry and compares the result with the
// cached account balances. Since every transfer debits and credits the same
// amount, the sum of all balances must also be zero.
func (l *Ledger) Reconcile(ctx context.Context) (*Report, error) {
	net, err := l.Entries.NetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay ledger: %w", err)
	}
	accounts, err := l.Accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	rep := &Report{Accounts: len(accounts), Mismatches: []Mismatch{}}
	seen := make(map[uuid.UUID]bool, len(accounts))
	for _, a := range accounts {
		seen[a.ID] = true
		rep.Total += a.Balance
		if a.Balance != net[a.ID] {
			rep.Mismatches = append(rep.Mismatches, Mismatch{AccountID: a.ID, Kind: a.Kind, Cached: a.Balance, Replayed: net[a.ID]})
		}
	}
	for id, sum := range net {
		if !seen[id] && sum != 0 {
			rep.Mismatches = append(rep.Mismatches, Mismatch{AccountID: id, Replayed: sum})
		}
	}
	return rep, nil
}
