package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/visitor-management/internal/http/handlers"
	httpmw "github.com/diagnosis/visitor-management/internal/http/middleware"
	"github.com/diagnosis/visitor-management/internal/mailer"
	"github.com/diagnosis/visitor-management/internal/notify"
	"github.com/diagnosis/visitor-management/internal/repository"
	"github.com/diagnosis/visitor-management/internal/service"
	"github.com/diagnosis/visitor-management/internal/session"
	"github.com/diagnosis/visitor-management/pkg/cache"
	"github.com/diagnosis/visitor-management/pkg/config"
	"github.com/diagnosis/visitor-management/pkg/database"
	"github.com/diagnosis/visitor-management/pkg/events"
	"github.com/diagnosis/visitor-management/pkg/logger"
	mw "github.com/diagnosis/visitor-management/pkg/middleware"
)

func main() {
	cfg := config.Load()
	logger.SetDefault(logger.New(os.Stdout, cfg.Server.LogLevel))

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Session, kiosk and idempotency state share one store. Memory mode runs
	// without Redis and therefore without rate limiting.
	var (
		redisClient   *redis.Client
		store         session.Store
		rateLimitRepo repository.RateLimitRepository
	)
	if cfg.Auth.SessionStore == "memory" {
		logger.Warn("Using in-memory session store; state is lost on restart")
		store = session.NewMemoryStore()
	} else {
		redisClient, err = cache.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		store = session.NewRedisStore(redisClient, "")
		rateLimitRepo = repository.NewRateLimitRepository(redisClient)
	}

	eventBus := connectEventBus(cfg)
	defer eventBus.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(pool)
	locationRepo := repository.NewLocationRepository(pool)
	visitRepo := repository.NewVisitRepository(pool)
	visitorRepo := repository.NewVisitorRepository(pool)

	metrics := mw.NewMetrics("vms")
	emailSvc := mailer.FromConfig(cfg.Email)

	// Initialize services
	sessions := session.NewManager(store, cfg.Auth.SessionTTL)
	authService := service.NewAuthService(userRepo, rateLimitRepo, sessions, metrics, cfg)
	userService := service.NewUserService(userRepo)
	locationService := service.NewLocationService(locationRepo)
	visitService := service.NewVisitService(visitRepo, visitorRepo, userRepo, locationRepo, rateLimitRepo, emailSvc, eventBus, metrics, cfg)
	kioskService := service.NewKioskService(store, visitService, userService, locationService, cfg)

	notifier := notify.NewNotifier(userRepo, locationRepo, emailSvc, cfg.Server.Location())
	if err := notifier.Register(eventBus); err != nil {
		logger.Error("Failed to subscribe host notifier", "error", err)
		os.Exit(1)
	}

	if err := userService.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminName, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword); err != nil {
		logger.Error("Failed to bootstrap administrator", "error", err)
		os.Exit(1)
	}

	var limiter httpmw.Limiter
	if rateLimitRepo != nil {
		limiter = rateLimitRepo
	}
	h := handlers.New(authService, userService, locationService, visitService, kioskService, limiter, cfg)

	// Setup router
	r := chi.NewRouter()
	if cfg.Server.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("visitor-management"))
	r.Use(mw.Logging)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.ErrorContext(r.Context(), "Panic recovered", "error", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	})
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health(healthChecks(pool.Ping, redisClient)))
	r.Use(metrics.Middleware)
	r.Use(mw.IdempotencyMiddleware(store, cfg.Server.IdempotencyTTL, "/auth/login"))

	r.Handle("/metrics", metrics.Handler())
	r.Mount("/v1", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down visitor management service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting visitor management service", "port", cfg.Server.Port, "timezone", cfg.Server.Timezone)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func connectEventBus(cfg *config.Config) events.EventBus {
	if !cfg.NATS.Enabled {
		logger.Info("NATS disabled, delivering events in process")
		return events.NewLocalEventBus()
	}
	bus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	return bus
}

func healthChecks(pingDB mw.HealthCheck, redisClient *redis.Client) map[string]mw.HealthCheck {
	checks := map[string]mw.HealthCheck{"database": pingDB}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			if !cache.Healthy(ctx, redisClient) {
				return errors.New("redis ping failed")
			}
			return nil
		}
	}
	return checks
}
