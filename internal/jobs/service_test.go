package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bereka/backend/internal/ledger"
	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/notify"
	"github.com/bereka/backend/internal/repository/memory"
	"github.com/bereka/backend/internal/services"
)

// ---------------------------------------------------------------------------
// Fixture
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

func (r *recordNotifier) last(typ string) *notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Type == typ {
			n := r.sent[i]
			return &n
		}
	}
	return nil
}

type adminSet map[uuid.UUID]bool

func (a adminSet) RequireAdmin(_ context.Context, id uuid.UUID) error {
	if !a[id] {
		return fmt.Errorf("%w: admin role required", models.ErrUnauthorized)
	}
	return nil
}

type fixture struct {
	store *memory.Store
	svc   *service
	notes *recordNotifier
	admin uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()
	l := ledger.New(s.Accounts, s.Ledger)
	notes := &recordNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	admin := uuid.New()
	escrow := &services.EscrowManager{
		DB:       s,
		Ledger:   l,
		Jobs:     s.Jobs,
		Holds:    s.Holds,
		Disputes: s.Disputes,
		Entries:  s.Ledger,
		Fees:     services.FeePolicy{Rate: services.DefaultFeeRate},
		Admins:   adminSet{admin: true},
		Notifier: notes,
		Logger:   logger,
	}
	svc := NewService(Deps{
		DB:       s,
		Jobs:     s.Jobs,
		Disputes: s.Disputes,
		Profiles: s.Profiles,
		Escrow:   escrow,
		Notifier: notes,
		Logger:   logger,
	})
	return &fixture{store: s, svc: svc, notes: notes, admin: admin}
}

// user registers a profile with accounts and an optional opening balance.
func (f *fixture) user(t *testing.T, balance int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	require.NoError(t, f.store.Profiles.CreateTx(ctx, tx, &models.Profile{
		ID: id, Email: id.String() + "@example.com", Username: id.String()[:8], Role: models.RoleClient,
	}))
	require.NoError(t, f.store.Accounts.CreateForOwner(ctx, tx, id))
	if balance > 0 {
		l := ledger.New(f.store.Accounts, f.store.Ledger)
		acc, err := l.UserAccount(ctx, tx, id, models.AccountAvailable)
		require.NoError(t, err)
		_, err = l.Transfer(ctx, tx, models.ExternalDepositsAccountID, acc.ID, balance, models.RefDeposit, uuid.NewString())
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit(ctx))
	return id
}

// funded returns a FUNDED job owned by a creator with 10k sats.
func (f *fixture) funded(t *testing.T, budget int64) (creator, jobID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	creator = f.user(t, 10_000)
	job, err := f.svc.CreateJob(ctx, creator, CreateJobInput{Title: "Translate a whitepaper", BudgetSats: budget})
	require.NoError(t, err)
	require.NoError(t, f.svc.FundEscrow(ctx, job.ID, creator))
	return creator, job.ID
}

func (f *fixture) status(t *testing.T, jobID uuid.UUID) string {
	t.Helper()
	j, err := f.svc.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	return j.Status
}

// ---------------------------------------------------------------------------
// CreateJob / ListJobs
// ---------------------------------------------------------------------------

func TestCreateJob(t *testing.T) {
	f := newFixture(t)
	creator := f.user(t, 0)

	job, err := f.svc.CreateJob(context.Background(), creator, CreateJobInput{
		Title:      "  Design a logo ",
		Category:   "Design",
		BudgetSats: 2500,
	})
	require.NoError(t, err)
	assert.Equal(t, "Design a logo", job.Title)
	assert.Equal(t, "design", job.Category)
	assert.Equal(t, models.JobStatusOpen, job.Status)
	assert.Equal(t, creator, job.CreatorID)
	assert.Nil(t, job.WorkerID)
}

func TestCreateJob_Rejections(t *testing.T) {
	f := newFixture(t)
	creator := f.user(t, 0)

	tests := []struct {
		name string
		in   CreateJobInput
	}{
		{"blank title", CreateJobInput{Title: "   ", BudgetSats: 100}},
		{"zero budget", CreateJobInput{Title: "Copywriting", BudgetSats: 0}},
		{"negative budget", CreateJobInput{Title: "Copywriting", BudgetSats: -10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateJob(context.Background(), creator, tt.in)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestListJobs_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, 0), f.user(t, 0)
	for i := 0; i < 2; i++ {
		_, err := f.svc.CreateJob(ctx, alice, CreateJobInput{Title: "Alice job", BudgetSats: 100})
		require.NoError(t, err)
	}
	bobJob, err := f.svc.CreateJob(ctx, bob, CreateJobInput{Title: "Bob job", BudgetSats: 100})
	require.NoError(t, err)
	_, err = f.svc.CancelJob(ctx, bobJob.ID, bob)
	require.NoError(t, err)

	all, err := f.svc.ListJobs(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := f.svc.ListJobs(ctx, Filter{CreatorID: &alice})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	cancelled, err := f.svc.ListJobs(ctx, Filter{Status: models.JobStatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, bobJob.ID, cancelled[0].ID)

	_, err = f.svc.ListJobs(ctx, Filter{Status: "ARCHIVED"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestLifecycle_AssignSubmitApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, jobID := f.funded(t, 4000)
	worker := f.user(t, 0)

	job, err := f.svc.AssignWorker(ctx, jobID, creator, worker)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, job.Status)
	require.NotNil(t, job.WorkerID)
	assert.Equal(t, worker, *job.WorkerID)

	accepted := f.notes.last(notify.TypeJobAccepted)
	require.NotNil(t, accepted)
	assert.Equal(t, worker, accepted.RecipientUserID)

	job, err = f.svc.SubmitWork(ctx, jobID, worker)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusReview, job.Status)

	ready := f.notes.last(notify.TypeSubmissionReady)
	require.NotNil(t, ready)
	assert.Equal(t, creator, ready.RecipientUserID)

	payout, err := f.svc.ApprovePayout(ctx, jobID, creator)
	require.NoError(t, err)
	assert.Equal(t, int64(3800), payout.Payout)
	assert.Equal(t, int64(200), payout.Fee)
	assert.Equal(t, models.JobStatusCompleted, f.status(t, jobID))
}

func TestAssignWorker_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, jobID := f.funded(t, 1000)
	worker := f.user(t, 0)
	stranger := f.user(t, 0)

	_, err := f.svc.AssignWorker(ctx, jobID, stranger, worker)
	assert.ErrorIs(t, err, models.ErrUnauthorized, "non-creator")

	_, err = f.svc.AssignWorker(ctx, jobID, creator, creator)
	assert.ErrorIs(t, err, models.ErrInvalidInput, "self-assignment")

	_, err = f.svc.AssignWorker(ctx, jobID, creator, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound, "unknown worker")

	open, err := f.svc.CreateJob(ctx, creator, CreateJobInput{Title: "Unfunded", BudgetSats: 100})
	require.NoError(t, err)
	_, err = f.svc.AssignWorker(ctx, open.ID, creator, worker)
	assert.ErrorIs(t, err, models.ErrInvalidState, "unfunded job")

	_, err = f.svc.AssignWorker(ctx, uuid.New(), creator, worker)
	assert.ErrorIs(t, err, models.ErrNotFound, "unknown job")

	assert.Equal(t, models.JobStatusFunded, f.status(t, jobID))
	assert.Nil(t, f.notes.last(notify.TypeJobAccepted))
}

func TestSubmitWork_OnlyAssignedWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, jobID := f.funded(t, 1000)
	worker := f.user(t, 0)
	_, err := f.svc.AssignWorker(ctx, jobID, creator, worker)
	require.NoError(t, err)

	_, err = f.svc.SubmitWork(ctx, jobID, creator)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.svc.SubmitWork(ctx, jobID, worker)
	require.NoError(t, err)

	_, err = f.svc.SubmitWork(ctx, jobID, worker)
	assert.ErrorIs(t, err, models.ErrInvalidState, "second submission")
}

// ---------------------------------------------------------------------------
// Disputes
// ---------------------------------------------------------------------------

func TestOpenDispute_ThenResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, jobID := f.funded(t, 4000)
	worker := f.user(t, 0)
	_, err := f.svc.AssignWorker(ctx, jobID, creator, worker)
	require.NoError(t, err)

	d, err := f.svc.OpenDispute(ctx, jobID, worker, "client unresponsive")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, d.Status)
	assert.Equal(t, worker, d.OpenedBy)
	assert.Equal(t, models.JobStatusDisputed, f.status(t, jobID))

	opened := f.notes.last(notify.TypeDisputeOpened)
	require.NotNil(t, opened)
	assert.Equal(t, creator, opened.RecipientUserID, "the other party is told")

	open, err := f.store.Disputes.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, d.ID, open[0].ID)

	_, err = f.svc.ResolveDispute(ctx, jobID, models.ResolutionSplit, creator)
	assert.ErrorIs(t, err, models.ErrUnauthorized, "non-admin")

	res, err := f.svc.ResolveDispute(ctx, jobID, models.ResolutionSplit, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), res.CreatorAmount)
	assert.Equal(t, int64(1900), res.WorkerAmount)
	assert.Equal(t, int64(100), res.Fee)
	assert.Equal(t, models.JobStatusCompleted, f.status(t, jobID))
}

func TestOpenDispute_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, jobID := f.funded(t, 1000)
	worker := f.user(t, 0)
	_, err := f.svc.OpenDispute(ctx, jobID, creator, "changed my mind")
	assert.ErrorIs(t, err, models.ErrInvalidState, "no worker yet")

	_, err = f.svc.AssignWorker(ctx, jobID, creator, worker)
	require.NoError(t, err)

	_, err = f.svc.OpenDispute(ctx, jobID, creator, "  ")
	assert.ErrorIs(t, err, models.ErrInvalidInput, "blank reason")

	_, err = f.svc.OpenDispute(ctx, jobID, f.user(t, 0), "I am not involved")
	assert.ErrorIs(t, err, models.ErrUnauthorized, "outsider")

	_, err = f.svc.OpenDispute(ctx, jobID, creator, "late delivery")
	require.NoError(t, err)
	_, err = f.svc.OpenDispute(ctx, jobID, worker, "counter claim")
	assert.ErrorIs(t, err, models.ErrInvalidState, "already disputed")

	open, err := f.store.Disputes.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

// ---------------------------------------------------------------------------
// Cancel
// ---------------------------------------------------------------------------

func TestCancelJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.user(t, 0)
	job, err := f.svc.CreateJob(ctx, creator, CreateJobInput{Title: "Proofreading", BudgetSats: 300})
	require.NoError(t, err)

	_, err = f.svc.CancelJob(ctx, job.ID, f.user(t, 0))
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	cancelled, err := f.svc.CancelJob(ctx, job.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)

	err = f.svc.FundEscrow(ctx, job.ID, creator)
	assert.ErrorIs(t, err, models.ErrInvalidState, "cancelled jobs cannot be funded")
}

func TestCancelJob_FundedIsRejected(t *testing.T) {
	f := newFixture(t)
	creator, jobID := f.funded(t, 1000)

	_, err := f.svc.CancelJob(context.Background(), jobID, creator)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.Equal(t, models.JobStatusFunded, f.status(t, jobID))
}
