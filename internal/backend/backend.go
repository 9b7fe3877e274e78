// Package backend selects and wires a ledger store from configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"khata/internal/amqp"
	"khata/internal/config"
	"khata/internal/ledger"
	"khata/internal/memstore"
	"khata/internal/mongostore"
	"khata/internal/storage"
)

// Type names a storage backend.
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MongoBackend  Type = "mongo"
	MemoryBackend Type = "memory"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, MongoBackend, MemoryBackend:
		return true
	}
	return false
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Result holds the wired ledger service and its cleanup.
type Result struct {
	Service *ledger.Service
	Cleanup CleanupFunc
}

// Factory builds a ledger service for the configured backend.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Create builds the store named by cfg.DataBackend and a ledger service on
// top of it. The AMQP publisher is optional: on connection failure the
// service runs without commit events, matching a deployment with no broker.
func (f *Factory) Create(ctx context.Context, cfg *config.Config) (*Result, error) {
	backendType := Type(cfg.DataBackend)
	if !backendType.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	opts, pubCleanup := f.publisherOptions(cfg)

	switch backendType {
	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return &Result{
			Service: ledger.NewService(store, opts...),
			Cleanup: chain(pubCleanup, store.Close),
		}, nil

	case MongoBackend:
		store, err := mongostore.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("initialize mongo store: %w", err)
		}
		f.logger.Info("Initialized MongoDB backend", "database", cfg.MongoDatabase)
		return &Result{
			Service: ledger.NewService(store, opts...),
			Cleanup: chain(pubCleanup, func() error { return store.Close(context.Background()) }),
		}, nil

	default:
		f.logger.Info("Initialized memory backend")
		return &Result{
			Service: ledger.NewService(memstore.New(), opts...),
			Cleanup: pubCleanup,
		}, nil
	}
}

func (f *Factory) publisherOptions(cfg *config.Config) ([]ledger.Option, CleanupFunc) {
	if cfg.AMQPURL == "" {
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without commit events", "error", err)
		return nil, nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return []ledger.Option{ledger.WithPublisher(client)}, client.Close
}

func chain(cleanups ...CleanupFunc) CleanupFunc {
	return func() error {
		var firstErr error
		for _, cleanup := range cleanups {
			if cleanup == nil {
				continue
			}
			if err := cleanup(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
}
