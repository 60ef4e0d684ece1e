// Package app builds the relay's dependency graph from configuration.
package app

import (
	"context"

	"e2e_relay/internal/auth"
	"e2e_relay/internal/config"
	"e2e_relay/internal/repository"
	"e2e_relay/internal/repository/memory"
	"e2e_relay/internal/repository/mongodb"
	"e2e_relay/internal/repository/postgres"
	"e2e_relay/internal/service"
	"e2e_relay/internal/service/account"
	"e2e_relay/internal/service/contact"
	"e2e_relay/internal/service/keyexchange"
	"e2e_relay/internal/service/prekey"
	"e2e_relay/internal/service/presence"
	redisSvc "e2e_relay/internal/service/redis"
	"e2e_relay/internal/service/relay"
	"e2e_relay/internal/service/server"
	"e2e_relay/internal/utils/log"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Wire bundles the store, the optional redis client and the services.
type Wire struct {
	Config   *config.Config
	Store    repository.Store
	Redis    *redisSvc.RedisService
	Services server.Services
	Server   *server.HttpServer
}

// OpenStore connects the configured storage engine.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.Storage.DSN)
	case config.DriverMongo:
		return mongodb.Open(ctx, cfg.Storage.DSN, cfg.Storage.Database)
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// NewWire opens storage and redis, migrates the schema and builds the
// services.
func NewWire(ctx context.Context, cfg *config.Config) (*Wire, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, errors.Wrap(err, "migrate")
	}

	var rds *redisSvc.RedisService
	if cfg.Redis.Addr != "" {
		rds, err = redisSvc.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
	} else {
		log.Info("redis disabled, pending summaries are counted from storage")
	}

	return Build(cfg, store, rds), nil
}

// Build wires the services over an already open store. rds may be nil.
func Build(cfg *config.Config, store repository.Store, rds *redisSvc.RedisService) *Wire {
	registry := presence.NewRegistry()
	notifier := presence.NewNotifier(registry)

	var hints service.InboxHints
	if rds != nil {
		hints = redisSvc.NewInbox(rds)
	}

	prekeys := prekey.NewService(store.Prekeys(), cfg.Prekeys.MaxBatch)
	contacts := contact.NewService(store.Users(), store.Contacts(), notifier)
	svc := server.Services{
		Accounts: account.NewService(store.Users(), prekeys),
		Prekeys:  prekeys,
		Contacts: contacts,
		Keys: keyexchange.NewService(
			store.Users(), store.Prekeys(), store.Ephemerals(),
			contacts, notifier, cfg.Relay.RequireContact,
		),
		Relay: relay.NewService(store.Users(), store.Messages(), contacts, notifier, hints, relay.Options{
			RequireContact: cfg.Relay.RequireContact,
			MaxCiphertext:  cfg.Relay.MaxCiphertext,
		}),
		Registry: registry,
		Tokens:   auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL),
	}

	return &Wire{
		Config:   cfg,
		Store:    store,
		Redis:    rds,
		Services: svc,
		Server:   server.NewHttpServer(cfg, svc),
	}
}

// Serve runs the HTTP server until ctx is cancelled.
func (w *Wire) Serve(ctx context.Context) error {
	log.Info("relay starting",
		zap.String("storage", w.Config.Storage.Driver),
		zap.Bool("redis", w.Redis != nil),
		zap.Bool("require_contact", w.Config.Relay.RequireContact),
	)
	return w.Server.Run(ctx)
}

func (w *Wire) Close(ctx context.Context) error {
	var first error
	if w.Redis != nil {
		if err := w.Redis.Close(); err != nil {
			first = errors.Wrap(err, "close redis")
		}
	}
	if err := w.Store.Close(ctx); err != nil && first == nil {
		first = errors.Wrap(err, "close store")
	}
	return first
}
