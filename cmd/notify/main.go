// Command notify runs the host notification consumer on its own. It joins the
// same NATS queue group as the API, so each check-in is mailed once however
// many API and notify processes are running.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/visitor-management/internal/mailer"
	"github.com/diagnosis/visitor-management/internal/notify"
	"github.com/diagnosis/visitor-management/internal/repository"
	"github.com/diagnosis/visitor-management/pkg/config"
	"github.com/diagnosis/visitor-management/pkg/database"
	"github.com/diagnosis/visitor-management/pkg/events"
	"github.com/diagnosis/visitor-management/pkg/logger"
	mw "github.com/diagnosis/visitor-management/pkg/middleware"
)

func main() {
	cfg := config.Load()
	logger.SetDefault(logger.New(os.Stdout, cfg.Server.LogLevel))

	if !cfg.NATS.Enabled {
		logger.Error("The notify worker needs NATS; set NATS_ENABLED=true")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	bus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	emailSvc := mailer.FromConfig(cfg.Email)

	notifier := notify.NewNotifier(repository.NewUserRepository(pool), repository.NewLocationRepository(pool), emailSvc, cfg.Server.Location())
	if err := notifier.Register(bus); err != nil {
		logger.Error("Failed to subscribe", "error", err)
		os.Exit(1)
	}

	metrics := mw.NewMetrics("vms_notify")

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Logging)
	r.Use(mw.Health(map[string]mw.HealthCheck{"database": pool.Ping}))
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.NATS.NotifyPort,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down notify worker...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Notify worker shutdown error", "error", err)
		}
	}()

	logger.Info("Starting notify worker", "port", cfg.NATS.NotifyPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Notify worker error", "error", err)
		os.Exit(1)
	}
}
