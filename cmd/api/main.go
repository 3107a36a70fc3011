package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/bereka/backend/internal/config"
	"github.com/bereka/backend/internal/database"
	"github.com/bereka/backend/internal/middleware"
	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/notify"
	"github.com/bereka/backend/internal/repository/memory"
)

const (
	shutdownTimeout   = 15 * time.Second
	limiterSweepEvery = 10 * time.Minute
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	for _, name := range cfg.InsecureDefaults() {
		logger.Warn("insecure development default in use", "setting", name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mailer notify.Mailer = notify.LogMailer{Logger: logger}
	if cfg.ResendAPIKey != "" {
		mailer = notify.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom)
	} else {
		logger.Warn("RESEND_API_KEY not set, notifications will only be logged")
	}

	var (
		st        *stores
		notifier  notify.Notifier
		ping      func(ctx context.Context) error
		stopQueue = func(context.Context) {}
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, all data is lost on exit")
		st = memoryStores(memory.New())
		notifier = &notify.DirectNotifier{
			Sender: &notify.Sender{Profiles: st.Profiles, Jobs: st.Jobs, Mailer: mailer, Logger: logger},
			Logger: logger,
		}

	default:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info("connected to PostgreSQL")

		if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
			return err
		}

		migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
		if err != nil {
			return err
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			return err
		}
		logger.Info("river migrations applied")

		st = postgresStores(pool)
		sender := &notify.Sender{Profiles: st.Profiles, Jobs: st.Jobs, Mailer: mailer, Logger: logger}

		workers := river.NewWorkers()
		river.AddWorker(workers, notify.NewSendNotificationWorker(sender))

		riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
			Queues: map[string]river.QueueConfig{
				river.QueueDefault: {MaxWorkers: 10},
			},
			Workers: workers,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		if err := riverClient.Start(ctx); err != nil {
			return err
		}
		stopQueue = func(ctx context.Context) {
			if err := riverClient.Stop(ctx); err != nil {
				logger.Error("river client stop failed", "error", err)
			}
		}

		notifier = &notify.RiverNotifier{Client: riverClient}
		ping = pool.Ping
	}

	bootstrapAdmins(ctx, st.Profiles, cfg.AdminEmails, logger)

	pollLimiter := middleware.NewRateLimiter(cfg.PollRatePerSec, cfg.PollBurst, logger)
	sweepDone := make(chan struct{})
	defer close(sweepDone)
	pollLimiter.StartCleanup(limiterSweepEvery, sweepDone)

	api, err := buildRoutes(cfg, st, notifier, pollLimiter, ping, logger)
	if err != nil {
		return err
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}).Handler(api)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	stopQueue(shutdownCtx)
	return nil
}

// bootstrapAdmins promotes existing profiles listed in ADMIN_EMAILS. Missing
// profiles are skipped; the auth service stores them as admins when they
// register.
func bootstrapAdmins(ctx context.Context, profiles profileStore, emails []string, logger *slog.Logger) {
	for _, email := range emails {
		p, err := profiles.GetByEmail(ctx, email)
		if errors.Is(err, models.ErrNotFound) {
			logger.Warn("admin email has no profile yet", "email", email)
			continue
		}
		if err != nil {
			logger.Error("admin bootstrap lookup failed", "email", email, "error", err)
			continue
		}
		if p.Role == models.RoleAdmin {
			continue
		}
		if err := profiles.SetRole(ctx, p.ID, models.RoleAdmin); err != nil {
			logger.Error("admin bootstrap failed", "email", email, "error", err)
			continue
		}
		logger.Info("profile promoted to admin", "user_id", p.ID)
	}
}
