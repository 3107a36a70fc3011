package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/bereka/backend/internal/ledger"
	"github.com/bereka/backend/internal/metrics"
	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/notify"
	"github.com/bereka/backend/internal/repository/memory"
)

// ---------------------------------------------------------------------------
// Shared fixture: the real services over the in-memory store.
// ---------------------------------------------------------------------------

type recordNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordNotifier) ofType(typ string) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type fakeAdmins map[uuid.UUID]bool

func (f fakeAdmins) RequireAdmin(_ context.Context, userID uuid.UUID) error {
	if !f[userID] {
		return fmt.Errorf("%w: admin role required", models.ErrUnauthorized)
	}
	return nil
}

type env struct {
	store    *memory.Store
	ledger   *ledger.Ledger
	escrow   *EscrowManager
	deposits *DepositIntake
	notes    *recordNotifier
	admin    uuid.UUID
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := memory.New()
	l := ledger.New(s.Accounts, s.Ledger)
	notes := &recordNotifier{}
	admin := uuid.New()
	return &env{
		store:  s,
		ledger: l,
		notes:  notes,
		admin:  admin,
		escrow: &EscrowManager{
			DB:       s,
			Ledger:   l,
			Jobs:     s.Jobs,
			Holds:    s.Holds,
			Disputes: s.Disputes,
			Entries:  s.Ledger,
			Fees:     FeePolicy{Rate: DefaultFeeRate},
			Admins:   fakeAdmins{admin: true},
			Notifier: notes,
			Logger:   discardLogger(),
		},
		deposits: &DepositIntake{
			DB:       s,
			Ledger:   l,
			Intents:  s.Intents,
			Events:   s.Events,
			Notifier: notes,
			Logger:   discardLogger(),
		},
	}
}

// user creates a profile with its AVAILABLE and ESCROW accounts.
func (e *env) user(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	p := &models.Profile{ID: id, Email: id.String() + "@example.com", Username: id.String()[:8], Role: models.RoleClient}
	if err := e.store.Profiles.CreateTx(ctx, tx, p); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := e.store.Accounts.CreateForOwner(ctx, tx, id); err != nil {
		t.Fatalf("create accounts: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return id
}

// deposit credits a user's AVAILABLE account from EXTERNAL_DEPOSITS.
func (e *env) deposit(t *testing.T, owner uuid.UUID, amount int64) {
	t.Helper()
	ctx := context.Background()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	acc, err := e.ledger.UserAccount(ctx, tx, owner, models.AccountAvailable)
	if err != nil {
		t.Fatalf("available account: %v", err)
	}
	if _, err := e.ledger.Transfer(ctx, tx, models.ExternalDepositsAccountID, acc.ID, amount, models.RefDeposit, uuid.NewString()); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func (e *env) job(t *testing.T, creator uuid.UUID, budget int64) uuid.UUID {
	t.Helper()
	j := &models.Job{ID: uuid.New(), CreatorID: creator, Title: "Logo design", BudgetSats: budget, Status: models.JobStatusOpen}
	if err := e.store.Jobs.Create(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j.ID
}

// assign puts a worker on a funded job (IN_PROGRESS).
func (e *env) assign(t *testing.T, jobID, worker uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	if err := e.store.Jobs.AssignWorkerTx(ctx, tx, jobID, worker); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func (e *env) setStatus(t *testing.T, jobID uuid.UUID, status string) {
	t.Helper()
	ctx := context.Background()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	if err := e.store.Jobs.UpdateStatusTx(ctx, tx, jobID, status); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// dispute opens a dispute on the job and moves it to DISPUTED.
func (e *env) dispute(t *testing.T, jobID, openedBy uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	d := &models.Dispute{ID: uuid.New(), JobID: jobID, OpenedBy: openedBy, Reason: "not delivered", Status: models.DisputeStatusOpen}
	if err := e.store.Disputes.CreateTx(ctx, tx, d); err != nil {
		t.Fatalf("create dispute: %v", err)
	}
	if err := e.store.Jobs.UpdateStatusTx(ctx, tx, jobID, models.JobStatusDisputed); err != nil {
		t.Fatalf("set disputed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// inFlight returns a funded job with a worker assigned and work in REVIEW.
func (e *env) inFlight(t *testing.T, budget int64) (creator, worker, jobID uuid.UUID) {
	t.Helper()
	creator, worker = e.user(t), e.user(t)
	e.deposit(t, creator, 10_000)
	jobID = e.job(t, creator, budget)
	if err := e.escrow.FundEscrow(context.Background(), jobID, creator); err != nil {
		t.Fatalf("FundEscrow: %v", err)
	}
	e.assign(t, jobID, worker)
	e.setStatus(t, jobID, models.JobStatusReview)
	return creator, worker, jobID
}

func (e *env) balance(t *testing.T, owner uuid.UUID, kind string) int64 {
	t.Helper()
	accs, err := e.store.Accounts.ListByOwner(context.Background(), owner)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	for _, a := range accs {
		if a.Kind == kind {
			return a.Balance
		}
	}
	t.Fatalf("no %s account for %s", kind, owner)
	return 0
}

func (e *env) platformFees(t *testing.T) int64 {
	t.Helper()
	a, err := e.store.Accounts.GetByID(context.Background(), models.PlatformFeesAccountID)
	if err != nil {
		t.Fatalf("platform account: %v", err)
	}
	return a.Balance
}

func (e *env) jobStatus(t *testing.T, jobID uuid.UUID) string {
	t.Helper()
	j, err := e.store.Jobs.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return j.Status
}

func (e *env) holdStatus(t *testing.T, jobID uuid.UUID) string {
	t.Helper()
	h, err := e.store.Holds.GetByJobID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get hold: %v", err)
	}
	return h.Status
}

// assertReconciled replays the ledger and compares it with cached balances.
func (e *env) assertReconciled(t *testing.T) {
	t.Helper()
	rep, err := e.ledger.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !rep.OK() {
		t.Errorf("ledger out of balance: %+v", rep.Mismatches)
	}
}

// transfersRecorded reads bereka_ledger_transfers_total for one reference kind.
func transfersRecorded(t *testing.T, kind string) float64 {
	t.Helper()
	families, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "bereka_ledger_transfers_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "reference_kind" && lp.GetValue() == kind {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
