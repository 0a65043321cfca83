package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mates-hr/screenshare-server-go/internal/audit"
	"github.com/mates-hr/screenshare-server-go/internal/config"
	"github.com/mates-hr/screenshare-server-go/internal/database"
	"github.com/mates-hr/screenshare-server-go/internal/handler"
	"github.com/mates-hr/screenshare-server-go/internal/jobs"
	"github.com/mates-hr/screenshare-server-go/internal/middleware"
	"github.com/mates-hr/screenshare-server-go/internal/notify"
	"github.com/mates-hr/screenshare-server-go/internal/redis"
	"github.com/mates-hr/screenshare-server-go/internal/repository"
	"github.com/mates-hr/screenshare-server-go/internal/service"
	"github.com/mates-hr/screenshare-server-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)
	notificationRepo := repository.NewNotificationRepository(db.DB)
	auditRepo := repository.NewAuditLogRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	notifier := notify.NewService(notificationRepo, broker)
	recorder := audit.NewService(auditRepo)
	screenShareService := service.NewScreenShareService(
		sessionRepo, userRepo, notifier, broker, recorder, cfg,
	)
	defer screenShareService.Close()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := screenShareService.RebuildActiveIndex(startupCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to rebuild active session index")
	}
	startupCancel()

	authMiddleware := middleware.NewAuthMiddleware(userRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	screenShareHandler := handler.NewScreenShareHandler(screenShareService)
	notificationsHandler := handler.NewNotificationsHandler(notificationRepo)
	eventsHandler := handler.NewEventsHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		r.Get("/events", eventsHandler.ServeHTTP)
		r.Mount("/screenshare", screenShareHandler.Routes())
		r.Mount("/notifications", notificationsHandler.Routes())
	})

	sweepJob := jobs.NewExpirySweepJob(sessionRepo, screenShareService, config.ExpirySweepInterval)
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
