package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/bereka/backend/internal/models"
)

type SendNotificationArgs struct {
	Notification
}

func (SendNotificationArgs) Kind() string { return "send_notification" }

// ProfileReader resolves a recipient's email address.
type ProfileReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// JobReader resolves the job title used in templates.
type JobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// Sender renders a notification and hands it to a Mailer.
type Sender struct {
	Profiles ProfileReader
	Jobs     JobReader
	Mailer   Mailer
	Logger   *slog.Logger
}

// Deliver sends n. A recipient without an email address is skipped.
func (s *Sender) Deliver(ctx context.Context, n Notification) error {
	p, err := s.Profiles.GetByID(ctx, n.RecipientUserID)
	if errors.Is(err, models.ErrNotFound) {
		s.Logger.Warn("notification recipient not found", "type", n.Type, "user_id", n.RecipientUserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if p.Email == "" {
		s.Logger.Info("recipient has no email, skipping", "type", n.Type, "user_id", n.RecipientUserID)
		return nil
	}

	var title string
	if n.JobID != nil {
		j, err := s.Jobs.GetByID(ctx, *n.JobID)
		switch {
		case err == nil:
			title = j.Title
		case !errors.Is(err, models.ErrNotFound):
			return fmt.Errorf("load job: %w", err)
		}
	}

	email, err := Render(n, p.Email, title)
	if err != nil {
		return err
	}
	if err := s.Mailer.Send(ctx, email); err != nil {
		return err
	}
	s.Logger.Info("notification sent", "type", n.Type, "user_id", n.RecipientUserID)
	return nil
}

type SendNotificationWorker struct {
	river.WorkerDefaults[SendNotificationArgs]
	sender *Sender
}

func NewSendNotificationWorker(s *Sender) *SendNotificationWorker {
	return &SendNotificationWorker{sender: s}
}

// Work returns the delivery error so River retries with backoff.
func (w *SendNotificationWorker) Work(ctx context.Context, job *river.Job[SendNotificationArgs]) error {
	if err := w.sender.Deliver(ctx, job.Args.Notification); err != nil {
		return fmt.Errorf("send %s notification: %w", job.Args.Type, err)
	}
	return nil
}
