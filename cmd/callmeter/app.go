package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nvoloshin/callmeter/internal/auth"
	"github.com/nvoloshin/callmeter/internal/db"
	"github.com/nvoloshin/callmeter/internal/events"
	"github.com/nvoloshin/callmeter/internal/handlers"
	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/media"
	"github.com/nvoloshin/callmeter/internal/metrics"
	"github.com/nvoloshin/callmeter/internal/repository/postgres"
	"github.com/nvoloshin/callmeter/internal/service/callsession"
	"github.com/nvoloshin/callmeter/internal/service/ledger"
	"github.com/nvoloshin/callmeter/internal/service/settlement"
	"github.com/nvoloshin/callmeter/internal/settings"
)

const eventBusSize = 256

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger    logger.Logger
	bus       *events.Bus
	processor *settlement.Processor
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Settings cache runs without redis when no address is configured
	settingsCache := settings.NewCache(nil, storage.Settings(), logger)
	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		settingsCache = settings.NewCache(rdb, storage.Settings(), logger)
	}

	// Initialize services
	bus := events.NewBus(eventBusSize, logger)
	m := metrics.New()
	mediaClient := media.NewClient(c.MediaAddr, logger)

	ledgerService := ledger.NewService(storage, bus, logger)
	sessionService := callsession.NewService(storage, bus, logger)

	processor := settlement.New(
		settlement.Config{Interval: c.SettleInterval, Workers: c.SettleWorkers},
		storage,
		settingsCache,
		mediaClient,
		bus,
		m,
		logger,
	)

	authenticator, err := auth.New(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("error while creating authenticator. Err: %w", err)
	}

	mux := handlers.NewRouter(
		authenticator,
		sessionService,
		ledgerService,
		settingsCache,
		m.Handler(),
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     logger,
		bus:        bus,
		processor:  processor,
	}, nil
}

// Run starts the settlement loop and the http server, and closes both
// gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	processorStopped := s.processor.Process(srvCtx)
	notifierStopped := s.startNotifier(srvCtx)

	idleConnsClosed := make(chan struct{})
	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-processorStopped
	<-notifierStopped

	return err
}

// startNotifier drains the event bus. The notification collaborator is a
// separate system; for now the events become structured log lines.
func (s *ServerApp) startNotifier(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-s.bus.Events():
				s.logger.Info("Billing event",
					"event", event.Name,
					"user_id", event.UserID,
					"session_id", event.SessionID,
					"coins", event.Coins,
					"reason", event.Reason,
				)
			}
		}
	}()

	return stopped
}
