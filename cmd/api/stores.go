package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bereka/backend/internal/auth"
	"github.com/bereka/backend/internal/dashboard"
	"github.com/bereka/backend/internal/jobs"
	"github.com/bereka/backend/internal/ledger"
	"github.com/bereka/backend/internal/middleware"
	"github.com/bereka/backend/internal/notify"
	"github.com/bereka/backend/internal/repository"
	"github.com/bereka/backend/internal/repository/memory"
	"github.com/bereka/backend/internal/services"
	"github.com/bereka/backend/internal/wallet"
)

// Each store type below is the union of what its consumers ask for, so the
// Postgres and in-memory repositories can be wired through one path.

type accountStore interface {
	ledger.AccountStore
	auth.AccountCreator
	dashboard.AccountLister
}

type entryStore interface {
	ledger.EntryStore
	services.EscrowEntryRepo
	dashboard.EntryLister
}

type jobStore interface {
	jobs.Repo
	services.EscrowJobRepo
	notify.JobReader
}

type disputeStore interface {
	jobs.DisputeRepo
	services.EscrowDisputeRepo
	dashboard.DisputeLister
}

type intentStore interface {
	services.IntentRepo
	services.IntentStore
	middleware.PendingCounter
}

type eventStore interface {
	services.PaymentEventRepo
	dashboard.EventLister
}

type profileStore interface {
	auth.ProfileStore
	wallet.ProfileStore
	SetRole(ctx context.Context, id uuid.UUID, role string) error
}

type stores struct {
	DB       repository.TxBeginner
	Accounts accountStore
	Entries  entryStore
	Jobs     jobStore
	Disputes disputeStore
	Holds    services.EscrowHoldRepo
	Intents  intentStore
	Events   eventStore
	Profiles profileStore
}

func postgresStores(pool *pgxpool.Pool) *stores {
	return &stores{
		DB:       pool,
		Accounts: repository.NewAccountRepo(pool),
		Entries:  repository.NewLedgerRepo(pool),
		Jobs:     repository.NewJobRepo(pool),
		Disputes: repository.NewDisputeRepo(pool),
		Holds:    repository.NewHoldRepo(pool),
		Intents:  repository.NewIntentRepo(pool),
		Events:   repository.NewEventRepo(pool),
		Profiles: auth.NewRepository(pool),
	}
}

func memoryStores(s *memory.Store) *stores {
	return &stores{
		DB:       s,
		Accounts: s.Accounts,
		Entries:  s.Ledger,
		Jobs:     s.Jobs,
		Disputes: s.Disputes,
		Holds:    s.Holds,
		Intents:  s.Intents,
		Events:   s.Events,
		Profiles: s.Profiles,
	}
}
