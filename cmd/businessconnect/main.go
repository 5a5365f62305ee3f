package main

import (
	"business-connect/auth"
	"business-connect/domain"
	"business-connect/internal"
	"business-connect/observability"
	"business-connect/runtime"
	"business-connect/runtime/workers"
	"business-connect/sink"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	localSecret       = "business-connect-local-secret"
	heartbeatInterval = 5 * time.Second
	shutdownTimeout   = 3 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Session
	session, err := signIn(config)
	if err != nil {
		return err
	}
	self, _ := session.CurrentUserID()

	// 4. Backend
	backend, err := openBackend(ctx, log, config, session)
	if err != nil {
		return err
	}
	defer backend.Close()

	// 5. Engine & Supervision
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	monitor := observability.NewMessagingMonitor(registry)
	terminal := sink.NewTerminal(os.Stdout, session, config.Colours)
	sup := workers.NewSupervisor(log, config.RestartInterval)

	engine := runtime.NewEngine(log, sup, workers.NewEventLoop(log, config.BufferSize),
		backend.store, session, terminal, terminal, monitor).
		WithReadTracker(backend.reads).
		WithPolling(config.PollInterval, config.PollLimit)
	if backend.subscriber != nil {
		engine.WithSubscriber(backend.subscriber, config.Table)
	}

	grpcServer, healthServer := internal.NewHealthServer()
	sup.Add(backend.workers...)
	sup.Add(workers.NewHeartbeatWorker(log, heartbeatInterval, monitor, healthServer, engine.Ping))
	engineDone := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(engineDone)
	}()

	// 6. Health & Debug servers
	if config.HealthPort > 0 {
		if err := internal.ServeHealth(ctx, log, grpcServer, config.HealthPort); err != nil {
			return err
		}
	}
	if config.DebugPort > 0 {
		source := internal.TimelineSource(engine, backend.inspect)
		internal.StartDebugServer(ctx, log, config.DebugPort,
			internal.NewDebugRouter(source, monitor.GetLatest, registry))
	}

	// 7. Prompt until /quit or a signal
	terminal.Info("Signed in as %s on %s (realtime: %s). Type /open <peer>.", self, config.Backend, config.RealtimeSource())
	newPrompt(engine, terminal).loop(ctx, os.Stdin)

	// 8. Final Cleanup
	if err := shutdown(log, engine, engineDone, shutdownTimeout); err != nil {
		log.Warn("Shutdown incomplete", "error", err)
	} else {
		log.Info("Program stopped cleanly")
	}
	return nil
}

// shutdown closes the active view and waits for every supervised worker.
// The backend is closed by the caller afterwards, so nothing may still use it.
func shutdown(log *slog.Logger, engine *runtime.Engine, engineDone <-chan struct{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := engine.Shutdown(ctx); err != nil {
		log.Warn("Engine shutdown incomplete", "error", err)
	}
	select {
	case <-engineDone:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workers still running: %w", ctx.Err())
	}
}

// signIn uses ACCESS_TOKEN when set. A local backend without one gets a
// token minted for LOCAL_USER_ID.
func signIn(config internal.Config) (*auth.Session, error) {
	secret := []byte(config.JWTSecret)
	token := config.AccessToken
	if token == "" && config.Backend == internal.BackendLocal {
		if len(secret) == 0 {
			secret = []byte(localSecret)
		}
		minted, err := auth.GenerateToken(secret, domain.UserID(config.LocalUserID), "", 24*time.Hour)
		if err != nil {
			return nil, err
		}
		token = minted
	}
	session := auth.NewSession(secret)
	if err := session.SignIn(token); err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}
	return session, nil
}
