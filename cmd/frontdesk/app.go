package main

import (
	"context"
	"fmt"

	"frontdesk/answers"
	"frontdesk/auth"
	"frontdesk/config"
	"frontdesk/db"
	"frontdesk/helprequest"
	"frontdesk/knowledge"
	"frontdesk/notify"
	"frontdesk/outbox"
	"frontdesk/resolution"
	"frontdesk/sweeper"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// app holds the wired services shared by every command.
type app struct {
	cfg          config.Config
	logger       *zap.Logger
	pool         *pgxpool.Pool
	answers      *answers.Store
	requests     *helprequest.Service
	orchestrator *resolution.Orchestrator
	sweeper      *sweeper.Sweeper
	dispatcher   *outbox.Dispatcher
	auth         *auth.Service
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		return nil, fmt.Errorf("bootstrap database pool: %w", err)
	}

	store := answers.NewStore(pool, nil).WithLogger(logger.Named("answers"))
	writer := outbox.NewWriter(nil)
	requests := helprequest.NewService(pool, nil, store, writer, cfg.RequestTTL).
		WithLogger(logger.Named("helprequest"))

	orchestrator := resolution.NewOrchestrator(knowledge.NewMatcher(cfg.Business), store, requests).
		WithLogger(logger.Named("resolution"))

	notifier := notify.NewLogNotifier(logger.Named("notify"))
	dispatcher := outbox.NewDispatcher(pool, nil, notify.Handlers(notifier), outbox.DispatcherOptions{
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	}).WithLogger(logger.Named("outbox"))

	return &app{
		cfg:          cfg,
		logger:       logger,
		pool:         pool,
		answers:      store,
		requests:     requests,
		orchestrator: orchestrator,
		sweeper:      sweeper.New(requests, cfg.SweepInterval).WithLogger(logger.Named("sweeper")),
		dispatcher:   dispatcher,
		auth:         auth.NewService(auth.NewRepository(pool), cfg.JWTSecret).WithTokenTTL(cfg.TokenTTL),
	}, nil
}

func (a *app) server() *Server {
	srv := NewServer(a.orchestrator, a.requests, a.answers, a.auth, a.logger.Named("http"))
	srv.ping = a.pool.Ping
	return srv
}

func (a *app) Close() {
	a.pool.Close()
}
