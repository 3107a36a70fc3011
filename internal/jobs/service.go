package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/notify"
	"github.com/bereka/backend/internal/repository"
	"github.com/bereka/backend/internal/services"
)

// CreateJobInput carries the caller-supplied fields of a new job.
type CreateJobInput struct {
	Title       string
	Description string
	Category    string
	BudgetSats  int64
	Deadline    *time.Time
}

// Filter narrows ListJobs.
type Filter = repository.JobFilter

type Service interface {
	CreateJob(ctx context.Context, creatorID uuid.UUID, in CreateJobInput) (*models.Job, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, f Filter) ([]*models.Job, error)
	AssignWorker(ctx context.Context, jobID, creatorID, workerID uuid.UUID) (*models.Job, error)
	SubmitWork(ctx context.Context, jobID, workerID uuid.UUID) (*models.Job, error)
	OpenDispute(ctx context.Context, jobID, callerID uuid.UUID, reason string) (*models.Dispute, error)
	CancelJob(ctx context.Context, jobID, creatorID uuid.UUID) (*models.Job, error)
	FundEscrow(ctx context.Context, jobID, callerID uuid.UUID) error
	ApprovePayout(ctx context.Context, jobID, callerID uuid.UUID) (*services.Payout, error)
	ResolveDispute(ctx context.Context, jobID uuid.UUID, resolution string, adminID uuid.UUID) (*services.Resolution, error)
}

// Repo is the job storage surface the controller needs.
type Repo interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	AssignWorkerTx(ctx context.Context, tx pgx.Tx, id, workerID uuid.UUID) error
	List(ctx context.Context, f repository.JobFilter) ([]*models.Job, error)
}

type DisputeRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
}

type ProfileReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// Escrow is implemented by services.EscrowManager.
type Escrow interface {
	FundEscrow(ctx context.Context, jobID, callerID uuid.UUID) error
	ApprovePayout(ctx context.Context, jobID, callerID uuid.UUID) (*services.Payout, error)
	ResolveDispute(ctx context.Context, jobID uuid.UUID, resolution string, adminID uuid.UUID) (*services.Resolution, error)
}

// Deps wires a jobs service.
type Deps struct {
	DB       repository.TxBeginner
	Jobs     Repo
	Disputes DisputeRepo
	Profiles ProfileReader
	Escrow   Escrow
	Notifier notify.Notifier
	Logger   *slog.Logger
}

type service struct {
	Deps
}

func NewService(d Deps) *service {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &service{Deps: d}
}

var _ Service = (*service)(nil)

func (s *service) CreateJob(ctx context.Context, creatorID uuid.UUID, in CreateJobInput) (*models.Job, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	}
	if in.BudgetSats <= 0 {
		return nil, models.ErrInvalidAmount
	}
	j := &models.Job{
		ID:          uuid.New(),
		CreatorID:   creatorID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		BudgetSats:  in.BudgetSats,
		Status:      models.JobStatusOpen,
		Deadline:    in.Deadline,
	}
	if err := s.Jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.Logger.Info("job created", "job_id", j.ID, "creator_id", creatorID, "budget_sats", j.BudgetSats)
	return j, nil
}

func (s *service) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return s.Jobs.GetByID(ctx, jobID)
}

func (s *service) ListJobs(ctx context.Context, f Filter) ([]*models.Job, error) {
	if f.Status != "" && !models.ValidJobStatus(f.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, f.Status)
	}
	return s.Jobs.List(ctx, f)
}

// AssignWorker puts a worker on a funded job.
func (s *service) AssignWorker(ctx context.Context, jobID, creatorID, workerID uuid.UUID) (*models.Job, error) {
	if workerID == creatorID {
		return nil, fmt.Errorf("%w: the creator cannot work on their own job", models.ErrInvalidInput)
	}
	if _, err := s.Profiles.GetByID(ctx, workerID); err != nil {
		return nil, err
	}

	job, err := s.transition(ctx, jobID, models.JobStatusInProgress, func(j *models.Job) error {
		if j.CreatorID != creatorID {
			return fmt.Errorf("%w: only the job creator can assign a worker", models.ErrUnauthorized)
		}
		return nil
	}, func(tx pgx.Tx) error {
		return s.Jobs.AssignWorkerTx(ctx, tx, jobID, workerID)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notify.Notification{Type: notify.TypeJobAccepted, RecipientUserID: workerID, JobID: &jobID})
	return job, nil
}

// SubmitWork moves an in-progress job to REVIEW.
func (s *service) SubmitWork(ctx context.Context, jobID, workerID uuid.UUID) (*models.Job, error) {
	job, err := s.transition(ctx, jobID, models.JobStatusReview, func(j *models.Job) error {
		if j.WorkerID == nil || *j.WorkerID != workerID {
			return fmt.Errorf("%w: only the assigned worker can submit work", models.ErrUnauthorized)
		}
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notify.Notification{Type: notify.TypeSubmissionReady, RecipientUserID: job.CreatorID, JobID: &jobID})
	return job, nil
}

// CancelJob withdraws an unfunded job.
func (s *service) CancelJob(ctx context.Context, jobID, creatorID uuid.UUID) (*models.Job, error) {
	return s.transition(ctx, jobID, models.JobStatusCancelled, func(j *models.Job) error {
		if j.CreatorID != creatorID {
			return fmt.Errorf("%w: only the job creator can cancel", models.ErrUnauthorized)
		}
		return nil
	}, nil)
}

// OpenDispute marks the job DISPUTED and records an OPEN dispute in the same
// transaction. The other party is notified.
func (s *service) OpenDispute(ctx context.Context, jobID, callerID uuid.UUID, reason string) (*models.Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", models.ErrInvalidInput)
	}
	d := &models.Dispute{
		ID:       uuid.New(),
		JobID:    jobID,
		OpenedBy: callerID,
		Reason:   reason,
		Status:   models.DisputeStatusOpen,
	}
	job, err := s.transition(ctx, jobID, models.JobStatusDisputed, func(j *models.Job) error {
		if !j.IsParty(callerID) {
			return fmt.Errorf("%w: only the creator or the assigned worker can open a dispute", models.ErrUnauthorized)
		}
		return nil
	}, func(tx pgx.Tx) error {
		if err := s.Jobs.UpdateStatusTx(ctx, tx, jobID, models.JobStatusDisputed); err != nil {
			return err
		}
		return s.Disputes.CreateTx(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}

	other := job.CreatorID
	if other == callerID && job.HasWorker() {
		other = *job.WorkerID
	}
	s.notify(ctx, notify.Notification{Type: notify.TypeDisputeOpened, RecipientUserID: other, JobID: &jobID})
	return d, nil
}

func (s *service) FundEscrow(ctx context.Context, jobID, callerID uuid.UUID) error {
	return s.Escrow.FundEscrow(ctx, jobID, callerID)
}

func (s *service) ApprovePayout(ctx context.Context, jobID, callerID uuid.UUID) (*services.Payout, error) {
	return s.Escrow.ApprovePayout(ctx, jobID, callerID)
}

func (s *service) ResolveDispute(ctx context.Context, jobID uuid.UUID, resolution string, adminID uuid.UUID) (*services.Resolution, error) {
	return s.Escrow.ResolveDispute(ctx, jobID, resolution, adminID)
}

// transition locks the job, runs the caller check and verifies the state
// machine allows the move. apply defaults to a plain status update.
func (s *service) transition(ctx context.Context, jobID uuid.UUID, to string, check func(*models.Job) error, apply func(pgx.Tx) error) (*models.Job, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	job, err := s.Jobs.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if err := check(job); err != nil {
		return nil, err
	}
	if !models.CanTransition(job.Status, to) {
		return nil, fmt.Errorf("%w: job is %s, cannot move to %s", models.ErrInvalidState, job.Status, to)
	}

	if apply == nil {
		apply = func(tx pgx.Tx) error { return s.Jobs.UpdateStatusTx(ctx, tx, jobID, to) }
	}
	if err := apply(tx); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit %s: %w", strings.ToLower(to), err)
	}
	s.Logger.Info("job status changed", "job_id", jobID, "from", job.Status, "to", to)

	return s.Jobs.GetByID(ctx, jobID)
}

func (s *service) notify(ctx context.Context, n notify.Notification) {
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.Logger.Error("notification enqueue failed", "type", n.Type, "job_id", n.JobID, "error", err)
	}
}
