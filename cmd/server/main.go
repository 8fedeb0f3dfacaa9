package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/browsertest/dashboard/internal/agentapi"
	"github.com/browsertest/dashboard/internal/api"
	"github.com/browsertest/dashboard/internal/config"
	"github.com/browsertest/dashboard/internal/database"
	"github.com/browsertest/dashboard/internal/events"
	"github.com/browsertest/dashboard/internal/livestatus"
	"github.com/browsertest/dashboard/internal/logging"
	"github.com/browsertest/dashboard/internal/server"
	"github.com/browsertest/dashboard/internal/tracker"
	"github.com/browsertest/dashboard/internal/wizard"
	"github.com/browsertest/dashboard/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.DevMode, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Determine which client to use
	var client agentapi.Client
	if cfg.UseMock {
		logger.Info("Using MOCK agent API client (USE_MOCK=true)")
		client = agentapi.NewMockClient()
	} else {
		logger.Info("Using REAL agent API client", zap.String("url", cfg.APIURL))
		httpClient := api.New(cfg.APIURL, api.WithTimeout(cfg.RequestTimeout), api.WithLogger(logger))
		client = agentapi.NewRealClient(httpClient, logger)
	}
	svc := agentapi.NewService(client)

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to open history database", zap.Error(err))
	}
	defer db.Close()
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, keeping task history in memory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	board := tracker.NewBoard()
	hub := events.NewHub()

	live := livestatus.New(cfg.WSURL, livestatus.WithLogger(logger))
	refresher := worker.NewWorker(client, board, db, hub, live, logger)
	live.OnStateChange(refresher.HandleStateChange)
	live.Subscribe(func(msg livestatus.Message) {
		// keep the socket reader free; the worker coalesces queued live refreshes
		go refresher.HandleMessage(ctx, msg)
	})

	wiz := wizard.New(svc, hub, logger.Named("wizard"))
	wiz.OnChange(func(s wizard.State) {
		hub.Broadcast(events.New(events.TypeTask, s))
	})

	srv := server.NewServer(svc, db, board, hub, wiz, cfg.TemplatesDir,
		server.WithLogger(logger),
		server.WithVersion(cfg.Version),
		server.WithRefresher(refresher),
		server.WithAccessLog(!cfg.DevMode),
	)

	go refresher.Start(ctx)
	if cfg.UseMock {
		logger.Info("Live status disabled in mock mode, polling only")
	} else if err := live.Connect(ctx); err != nil {
		logger.Warn("Live status unavailable, will retry", zap.String("url", live.URL()), zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down...")

		live.Disconnect()
		// ends the open event streams so Shutdown does not wait on them
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Starting Browser Test Dashboard",
		zap.String("addr", cfg.ListenAddr),
		zap.String("version", cfg.Version),
		zap.Bool("mock", cfg.UseMock))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server stopped.")
}
