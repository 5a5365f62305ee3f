package main

import (
	"business-connect/contract"
	"business-connect/infrastructure/local"
	"business-connect/infrastructure/postgres"
	bcredis "business-connect/infrastructure/redis"
	"business-connect/infrastructure/supabase"
	"business-connect/internal"
	"business-connect/repositories"
	"business-connect/runtime/workers"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// backend is what the engine needs from the chosen deployment.
type backend struct {
	store      contract.MessageStore
	reads      contract.ReadTracker
	subscriber contract.Subscriber
	workers    []contract.Worker
	inspect    internal.RowSource
	closers    []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, log *slog.Logger, config internal.Config, tokens supabase.TokenSource) (*backend, error) {
	b := &backend{}
	var fanout *workers.EventFanout

	switch config.Backend {
	case internal.BackendLocal:
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		b.closers = append(b.closers, func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		})
		fanout = workers.NewEventFanout(log, config.Table, config.BufferSize)
		store := local.NewStore(
			repositories.NewMessageRepository(db, log, config.LimitMessages),
			repositories.NewReadMarkerRepository(db),
			fanout,
		)
		b.store, b.reads = store, store
		b.workers = append(b.workers, fanout)
		b.inspect = internal.BadgerSource(db)

	case internal.BackendPostgres:
		db, err := postgres.NewDB(ctx, config.PostgresURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			b.Close()
			return nil, err
		}
		store := postgres.NewStore(db)
		b.store, b.reads = store, store

	case internal.BackendSupabase:
		client := supabase.NewClient(config.SupabaseURL, config.SupabaseAnonKey, tokens, config.RequestTimeout)
		b.store, b.reads = client, client
	}

	if err := b.openRealtime(ctx, log, config, tokens, fanout); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backend) openRealtime(ctx context.Context, log *slog.Logger, config internal.Config,
	tokens supabase.TokenSource, fanout *workers.EventFanout) error {
	switch config.RealtimeSource() {
	case internal.RealtimeLocal:
		b.subscriber = fanout
	case internal.RealtimePostgres:
		b.subscriber = postgres.NewListener(log, config.PostgresURL, config.JoinTimeout)
	case internal.RealtimeRedis:
		client, err := bcredis.NewClient(ctx, config.RedisAddr)
		if err != nil {
			log.Warn("Redis unreachable, views will poll", "address", config.RedisAddr, "error", err)
			return nil
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.store = bcredis.NewRelay(log, b.store, client, config.Table)
		b.subscriber = bcredis.NewSubscriber(log, client, config.JoinTimeout)
	case internal.RealtimeSupabase:
		rt, err := supabase.NewRealtime(log, config.SupabaseURL, config.SupabaseAnonKey, tokens, config.JoinTimeout)
		if err != nil {
			return err
		}
		b.subscriber = rt
	}
	return nil
}
