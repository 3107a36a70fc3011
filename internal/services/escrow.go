package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bereka/backend/internal/ledger"
	"github.com/bereka/backend/internal/metrics"
	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/notify"
	"github.com/bereka/backend/internal/repository"
)

// EscrowJobRepo is the job repository surface escrow needs.
type EscrowJobRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

type EscrowHoldRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, amount int64) (bool, error)
	GetByJobIDForUpdate(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.EscrowHold, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, status string) error
}

type EscrowDisputeRepo interface {
	LatestByJobIDForUpdate(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Dispute, error)
	ResolveTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
}

type EscrowEntryRepo interface {
	ListByReferenceTx(ctx context.Context, tx pgx.Tx, referenceID string) ([]*models.LedgerEntry, error)
}

// AdminGate authorizes privileged operations against the stored role.
type AdminGate interface {
	RequireAdmin(ctx context.Context, userID uuid.UUID) error
}

// EscrowManager moves a job's budget between the creator, the worker and the
// platform. Every operation runs in one transaction with the job row locked.
type EscrowManager struct {
	DB       repository.TxBeginner
	Ledger   *ledger.Ledger
	Jobs     EscrowJobRepo
	Holds    EscrowHoldRepo
	Disputes EscrowDisputeRepo
	Entries  EscrowEntryRepo
	Fees     FeePolicy
	Admins   AdminGate
	Notifier notify.Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

// Payout is the result of approving a job.
type Payout struct {
	JobID            uuid.UUID `json:"jobId"`
	WorkerID         uuid.UUID `json:"workerId"`
	Payout           int64     `json:"payout"`
	Fee              int64     `json:"fee"`
	AlreadyCompleted bool      `json:"alreadyCompleted,omitempty"`
}

// Resolution is the result of resolving a dispute.
type Resolution struct {
	JobID         uuid.UUID `json:"jobId"`
	Resolution    string    `json:"resolution"`
	CreatorAmount int64     `json:"creatorAmount"`
	WorkerAmount  int64     `json:"workerAmount"`
	Fee           int64     `json:"fee"`
}

type leg struct {
	from, to uuid.UUID
	amount   int64
	kind     string
}

// FundEscrow moves the job budget from the creator's AVAILABLE account into
// their ESCROW account and marks the job FUNDED.
func (m *EscrowManager) FundEscrow(ctx context.Context, jobID, callerID uuid.UUID) (err error) {
	defer func() { metrics.RecordEscrow("fund_escrow", outcome(err)) }()

	tx, err := m.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	job, err := m.Jobs.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if job.CreatorID != callerID {
		return fmt.Errorf("%w: only the job creator can fund escrow", models.ErrUnauthorized)
	}
	if job.Status != models.JobStatusOpen {
		return fmt.Errorf("%w: job is %s, not OPEN", models.ErrInvalidState, job.Status)
	}
	if job.BudgetSats <= 0 {
		return models.ErrInvalidAmount
	}

	avail, err := m.Ledger.UserAccount(ctx, tx, job.CreatorID, models.AccountAvailable)
	if err != nil {
		return err
	}
	escrow, err := m.Ledger.UserAccount(ctx, tx, job.CreatorID, models.AccountEscrow)
	if err != nil {
		return err
	}
	entry, err := m.Ledger.Transfer(ctx, tx, avail.ID, escrow.ID, job.BudgetSats, models.RefEscrowFund, jobID.String())
	if err != nil {
		return err
	}
	created, err := m.Holds.CreateTx(ctx, tx, jobID, job.BudgetSats)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("%w: escrow already held for job", models.ErrInvalidState)
	}
	if err := m.Jobs.UpdateStatusTx(ctx, tx, jobID, models.JobStatusFunded); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	ledger.RecordCommitted(entry)
	m.Logger.Info("escrow funded", "job_id", jobID, "amount", job.BudgetSats)
	return nil
}

// ApprovePayout releases the escrow to the worker minus the platform fee.
// Approving an already completed job returns the recorded amounts.
func (m *EscrowManager) ApprovePayout(ctx context.Context, jobID, callerID uuid.UUID) (p *Payout, err error) {
	defer func() { metrics.RecordEscrow("approve_payout", outcome(err)) }()

	tx, err := m.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := m.Jobs.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CreatorID != callerID {
		return nil, fmt.Errorf("%w: only the job creator can approve payout", models.ErrUnauthorized)
	}
	if !job.HasWorker() {
		return nil, fmt.Errorf("%w: no worker assigned", models.ErrInvalidState)
	}
	if job.Status == models.JobStatusCompleted {
		return m.priorPayout(ctx, tx, job)
	}
	if job.Status != models.JobStatusInProgress && job.Status != models.JobStatusReview {
		return nil, fmt.Errorf("%w: job is %s", models.ErrInvalidState, job.Status)
	}

	hold, err := m.heldFunds(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	creatorEscrow, err := m.Ledger.UserAccount(ctx, tx, job.CreatorID, models.AccountEscrow)
	if err != nil {
		return nil, err
	}
	workerAvail, err := m.Ledger.UserAccount(ctx, tx, *job.WorkerID, models.AccountAvailable)
	if err != nil {
		return nil, err
	}

	payout, fee := m.Fees.Split(hold.Amount)
	entries, err := m.apply(ctx, tx, jobID, []leg{
		{creatorEscrow.ID, workerAvail.ID, payout, models.RefPayout},
		{creatorEscrow.ID, models.PlatformFeesAccountID, fee, models.RefPlatformFee},
	})
	if err != nil {
		return nil, err
	}
	if err := m.Holds.UpdateStatusTx(ctx, tx, jobID, models.HoldStatusReleased); err != nil {
		return nil, err
	}
	if err := m.Jobs.UpdateStatusTx(ctx, tx, jobID, models.JobStatusCompleted); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	ledger.RecordCommitted(entries...)

	m.Logger.Info("payout approved", "job_id", jobID, "worker_id", *job.WorkerID, "payout", payout, "fee", fee)
	m.notify(ctx, notify.Notification{Type: notify.TypePayoutApproved, RecipientUserID: *job.WorkerID, JobID: &jobID, Amount: payout})
	return &Payout{JobID: jobID, WorkerID: *job.WorkerID, Payout: payout, Fee: fee}, nil
}

// priorPayout rebuilds the result of an earlier completion from the ledger.
func (m *EscrowManager) priorPayout(ctx context.Context, tx pgx.Tx, job *models.Job) (*Payout, error) {
	workerAvail, err := m.Ledger.UserAccount(ctx, tx, *job.WorkerID, models.AccountAvailable)
	if err != nil {
		return nil, err
	}
	entries, err := m.Entries.ListByReferenceTx(ctx, tx, job.ID.String())
	if err != nil {
		return nil, err
	}
	p := &Payout{JobID: job.ID, WorkerID: *job.WorkerID, AlreadyCompleted: true}
	for _, e := range entries {
		switch e.CreditAccountID {
		case workerAvail.ID:
			p.Payout += e.Amount
		case models.PlatformFeesAccountID:
			p.Fee += e.Amount
		}
	}
	return p, nil
}

// ResolveDispute settles a disputed job as an admin decided. The admin role
// is checked against the store before anything is locked.
func (m *EscrowManager) ResolveDispute(ctx context.Context, jobID uuid.UUID, resolution string, adminID uuid.UUID) (r *Resolution, err error) {
	defer func() { metrics.RecordEscrow("resolve_dispute", outcome(err)) }()

	if !models.ValidResolution(resolution) {
		return nil, fmt.Errorf("%w: unknown resolution %q", models.ErrInvalidInput, resolution)
	}
	if err := m.Admins.RequireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	tx, err := m.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := m.Jobs.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusDisputed {
		return nil, fmt.Errorf("%w: job is %s, not DISPUTED", models.ErrInvalidState, job.Status)
	}
	dispute, err := m.Disputes.LatestByJobIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != models.DisputeStatusOpen {
		return nil, fmt.Errorf("%w: dispute already resolved", models.ErrInvalidState)
	}
	hold, err := m.heldFunds(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}

	creatorEscrow, err := m.Ledger.UserAccount(ctx, tx, job.CreatorID, models.AccountEscrow)
	if err != nil {
		return nil, err
	}
	creatorAvail, err := m.Ledger.UserAccount(ctx, tx, job.CreatorID, models.AccountAvailable)
	if err != nil {
		return nil, err
	}

	res := &Resolution{JobID: jobID, Resolution: resolution}
	holdStatus := models.HoldStatusReleased
	var legs []leg
	if resolution == models.ResolutionRefund {
		res.CreatorAmount = hold.Amount
		holdStatus = models.HoldStatusRefunded
		legs = []leg{{creatorEscrow.ID, creatorAvail.ID, hold.Amount, models.RefRefund}}
	} else {
		if !job.HasWorker() {
			return nil, fmt.Errorf("%w: no worker assigned", models.ErrInvalidState)
		}
		workerAvail, err := m.Ledger.UserAccount(ctx, tx, *job.WorkerID, models.AccountAvailable)
		if err != nil {
			return nil, err
		}
		if resolution == models.ResolutionPayWorker {
			res.WorkerAmount, res.Fee = m.Fees.Split(hold.Amount)
			legs = []leg{
				{creatorEscrow.ID, workerAvail.ID, res.WorkerAmount, models.RefPayout},
				{creatorEscrow.ID, models.PlatformFeesAccountID, res.Fee, models.RefPlatformFee},
			}
		} else {
			res.CreatorAmount = hold.Amount / 2
			res.WorkerAmount, res.Fee = m.Fees.Split(hold.Amount - res.CreatorAmount)
			legs = []leg{
				{creatorEscrow.ID, creatorAvail.ID, res.CreatorAmount, models.RefSplit},
				{creatorEscrow.ID, workerAvail.ID, res.WorkerAmount, models.RefSplit},
				{creatorEscrow.ID, models.PlatformFeesAccountID, res.Fee, models.RefPlatformFee},
			}
		}
	}
	entries, err := m.apply(ctx, tx, jobID, legs)
	if err != nil {
		return nil, err
	}
	if err := m.Holds.UpdateStatusTx(ctx, tx, jobID, holdStatus); err != nil {
		return nil, err
	}

	now := m.now()
	dispute.Status = models.DisputeStatusResolved
	dispute.Resolution = &resolution
	dispute.ResolvedBy = &adminID
	dispute.ResolvedAt = &now
	if err := m.Disputes.ResolveTx(ctx, tx, dispute); err != nil {
		return nil, err
	}
	if err := m.Jobs.UpdateStatusTx(ctx, tx, jobID, models.JobStatusCompleted); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	ledger.RecordCommitted(entries...)

	m.Logger.Info("dispute resolved", "job_id", jobID, "resolution", resolution, "admin_id", adminID,
		"creator_amount", res.CreatorAmount, "worker_amount", res.WorkerAmount, "fee", res.Fee)
	for _, uid := range []*uuid.UUID{&job.CreatorID, job.WorkerID} {
		if uid == nil {
			continue
		}
		m.notify(ctx, notify.Notification{Type: notify.TypeDisputeResolved, RecipientUserID: *uid, JobID: &jobID, Resolution: resolution})
	}
	return res, nil
}

func (m *EscrowManager) heldFunds(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.EscrowHold, error) {
	hold, err := m.Holds.GetByJobIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if hold.Status != models.HoldStatusHeld {
		return nil, fmt.Errorf("%w: escrow is %s", models.ErrInvalidState, hold.Status)
	}
	return hold, nil
}

// apply writes each non-zero leg as a ledger transfer referencing the job.
func (m *EscrowManager) apply(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, legs []leg) ([]*models.LedgerEntry, error) {
	entries := make([]*models.LedgerEntry, 0, len(legs))
	for _, l := range legs {
		if l.amount == 0 {
			continue
		}
		e, err := m.Ledger.Transfer(ctx, tx, l.from, l.to, l.amount, l.kind, jobID.String())
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (m *EscrowManager) notify(ctx context.Context, n notify.Notification) {
	if m.Notifier == nil {
		return
	}
	if err := m.Notifier.Notify(ctx, n); err != nil {
		m.Logger.Error("failed to queue notification", "type", n.Type, "user_id", n.RecipientUserID, "error", err)
	}
}

func (m *EscrowManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_input"
	}
	return "error"
}
