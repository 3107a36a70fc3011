package notify

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Notifier queues a notification. Failures never roll back the money movement
// that triggered them; callers log and carry on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// RiverNotifier enqueues a send_notification job.
type RiverNotifier struct {
	Client *river.Client[pgx.Tx]
}

func (r *RiverNotifier) Notify(ctx context.Context, n Notification) error {
	_, err := r.Client.Insert(ctx, SendNotificationArgs{Notification: n}, nil)
	return err
}

// DirectNotifier delivers in a background goroutine. Used when no job queue
// is available (memory store).
type DirectNotifier struct {
	Sender *Sender
	Logger *slog.Logger
}

func (d *DirectNotifier) Notify(ctx context.Context, n Notification) error {
	go func() {
		if err := d.Sender.Deliver(context.WithoutCancel(ctx), n); err != nil {
			d.Logger.Error("notification delivery failed", "type", n.Type, "user_id", n.RecipientUserID, "error", err)
		}
	}()
	return nil
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
