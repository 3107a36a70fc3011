// Package memory is an in-memory implementation of the repository contracts.
// It is a single-writer store: one transaction at a time owns a private copy
// of the data, and Commit swaps that copy in as the new committed state.
// Readers outside a transaction only ever see committed state.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bereka/backend/internal/models"
)

var (
	errNotSQL  = errors.New("memory store: SQL is not supported")
	errForeign = errors.New("memory store: transaction does not belong to this store")
)

type ownerKind struct {
	owner uuid.UUID
	kind  string
}

type state struct {
	accounts    map[uuid.UUID]models.Account
	byOwnerKind map[ownerKind]uuid.UUID
	entries     []models.LedgerEntry
	jobs        map[uuid.UUID]models.Job
	holds       map[uuid.UUID]models.EscrowHold
	disputes    map[uuid.UUID]models.Dispute
	intents     map[string]models.PaymentIntent
	events      map[string]models.PaymentEvent
	profiles    map[uuid.UUID]models.Profile
	emails      map[string]uuid.UUID
}

func newState() *state {
	return &state{
		accounts:    make(map[uuid.UUID]models.Account),
		byOwnerKind: make(map[ownerKind]uuid.UUID),
		jobs:        make(map[uuid.UUID]models.Job),
		holds:       make(map[uuid.UUID]models.EscrowHold),
		disputes:    make(map[uuid.UUID]models.Dispute),
		intents:     make(map[string]models.PaymentIntent),
		events:      make(map[string]models.PaymentEvent),
		profiles:    make(map[uuid.UUID]models.Profile),
		emails:      make(map[string]uuid.UUID),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:    make(map[uuid.UUID]models.Account, len(s.accounts)),
		byOwnerKind: make(map[ownerKind]uuid.UUID, len(s.byOwnerKind)),
		entries:     append([]models.LedgerEntry(nil), s.entries...),
		jobs:        make(map[uuid.UUID]models.Job, len(s.jobs)),
		holds:       make(map[uuid.UUID]models.EscrowHold, len(s.holds)),
		disputes:    make(map[uuid.UUID]models.Dispute, len(s.disputes)),
		intents:     make(map[string]models.PaymentIntent, len(s.intents)),
		events:      make(map[string]models.PaymentEvent, len(s.events)),
		profiles:    make(map[uuid.UUID]models.Profile, len(s.profiles)),
		emails:      make(map[string]uuid.UUID, len(s.emails)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.byOwnerKind {
		c.byOwnerKind[k] = v
	}
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.holds {
		c.holds[k] = v
	}
	for k, v := range s.disputes {
		c.disputes[k] = v
	}
	for k, v := range s.intents {
		c.intents[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	return c
}

// Store holds the committed state and hands out single-writer transactions.
type Store struct {
	writer    chan struct{}
	mu        sync.RWMutex
	committed *state
	now       func() time.Time

	Accounts *AccountRepo
	Ledger   *LedgerRepo
	Jobs     *JobRepo
	Disputes *DisputeRepo
	Holds    *HoldRepo
	Intents  *IntentRepo
	Events   *EventRepo
	Profiles *ProfileRepo
}

// New returns a store seeded with the platform singleton accounts.
func New() *Store {
	s := &Store{
		writer:    make(chan struct{}, 1),
		committed: newState(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	now := s.now()
	for _, kind := range []string{models.AccountPlatformFees, models.AccountExternalDeposits} {
		id, _ := models.PlatformAccountID(kind)
		s.committed.accounts[id] = models.Account{ID: id, Kind: kind, CreatedAt: now, UpdatedAt: now}
	}
	s.Accounts = &AccountRepo{s: s}
	s.Ledger = &LedgerRepo{s: s}
	s.Jobs = &JobRepo{s: s}
	s.Disputes = &DisputeRepo{s: s}
	s.Holds = &HoldRepo{s: s}
	s.Intents = &IntentRepo{s: s}
	s.Events = &EventRepo{s: s}
	s.Profiles = &ProfileRepo{s: s}
	return s
}

// Begin waits for the writer slot, then returns a transaction working on a
// private copy of the committed state.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.RLock()
	work := s.committed.clone()
	s.mu.RUnlock()
	return &Tx{store: s, work: work}, nil
}

// read runs fn against the committed state.
func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.committed)
}

// write runs fn against the working state of tx.
func (s *Store) write(tx pgx.Tx, fn func(st *state) error) error {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return errForeign
	}
	if t.done {
		return pgx.ErrTxClosed
	}
	return fn(t.work)
}

// autocommit runs fn in its own transaction, for writes made outside one.
func (s *Store) autocommit(ctx context.Context, fn func(st *state) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.write(tx, fn); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Tx implements pgx.Tx over the in-memory working copy. SQL entry points
// return an error; repositories type-assert the transaction instead.
type Tx struct {
	store *Store
	work  *state
	done  bool
}

func (t *Tx) finish(apply bool) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	if apply {
		t.store.mu.Lock()
		t.store.committed = t.work
		t.store.mu.Unlock()
	}
	t.work = nil
	<-t.store.writer
	return nil
}

func (t *Tx) Commit(context.Context) error   { return t.finish(true) }
func (t *Tx) Rollback(context.Context) error { return t.finish(false) }

func (t *Tx) Begin(context.Context) (pgx.Tx, error) { return nil, errNotSQL }
func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNotSQL
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errNotSQL }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return errRow{} }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errNotSQL
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errNotSQL
}
func (t *Tx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(...any) error { return errNotSQL }

// uniqueViolation mimics the PostgreSQL error so callers detect it the same way.
func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}
