package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/solovey/codemesh/internal/application/config"
	"github.com/solovey/codemesh/internal/application/constant"
	"github.com/solovey/codemesh/internal/application/metric"
	"github.com/solovey/codemesh/internal/infra/adapters/memory"
	"github.com/solovey/codemesh/internal/infra/adapters/postgres"
	"github.com/solovey/codemesh/internal/infra/adapters/postgres/repository"
	"github.com/solovey/codemesh/internal/infra/ports/http/handlers"
	"github.com/solovey/codemesh/internal/infra/ports/http/server"
	"github.com/solovey/codemesh/internal/registry"
	"github.com/solovey/codemesh/internal/relay"
	"github.com/solovey/codemesh/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: slog.LevelInfo},
			),
		),
	)

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	slog.Info("Running app", slog.Bool("debug", cfg.Debug))

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	userRepo := repository.NewUserRepo(dbConn)
	roomRepo := repository.NewRoomRepo(dbConn)
	versionRepo := repository.NewVersionRepo(dbConn)
	connRepo := memory.NewConnectionRepository()

	userUsecase := usecase.NewUserUsecase([]byte(cfg.JWTSecret), userRepo)
	roomUsecase := usecase.NewRoomUsecase(roomRepo)
	versionUsecase := usecase.NewVersionUsecase(roomRepo, versionRepo)
	aiUsecase := usecase.NewAIUsecase(cfg.AI)
	executeUsecase := usecase.NewExecuteUsecase(cfg.Exec)

	roomRegistry := registry.New()
	eventRelay := relay.New(roomRegistry, connRepo)

	authHandler := handlers.NewAuthHandler(userUsecase)
	roomHandler := handlers.NewRoomHandler(roomUsecase)
	versionHandler := handlers.NewVersionHandler(versionUsecase)
	aiHandler := handlers.NewAIHandler(aiUsecase)
	executeHandler := handlers.NewExecuteHandler(executeUsecase)
	iceHandler := handlers.NewIceHandler(cfg)
	wsHandler := handlers.NewWebSocketHandler(cfg, connRepo, eventRelay)

	echoSrv := server.New(cfg, authHandler, roomHandler, versionHandler, aiHandler, executeHandler, iceHandler, wsHandler)

	metricsSrv := metric.NewServer()

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricsPort)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error(
			"Metrics server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}
}
