package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AathavaleHarsh/issue-resolver/internal/agent"
	"github.com/AathavaleHarsh/issue-resolver/internal/config"
	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
	"github.com/AathavaleHarsh/issue-resolver/internal/logging"
	"github.com/AathavaleHarsh/issue-resolver/internal/session"
	"github.com/AathavaleHarsh/issue-resolver/internal/ws"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		port       int
		executor   string
	)
	flagSet := pflag.NewFlagSet("issue-resolver", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "config.yaml", "path to config file (defaults are used if it does not exist)")
	flagSet.IntVar(&port, "port", 0, "override server port")
	flagSet.StringVar(&executor, "executor", "", "override executor kind (scripted, openai, anthropic)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if executor != "" {
		cfg.Executor.Kind = executor
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	exec, err := agent.FromConfig(cfg.Executor, logger)
	if err != nil {
		return err
	}

	registry := session.NewRegistry(func(o *session.RegistryOptions) {
		o.IdleWindow = cfg.Sessions.IdleEviction
		o.MaxEventBytes = cfg.Sessions.MaxEventBytes
		o.Logger = logger
	})
	dispatcher := dispatch.New(registry, exec, func(o *dispatch.Options) {
		o.Timeout = cfg.Executor.Timeout
		o.Logger = logger
	})
	server := ws.NewServer(cfg, registry, dispatcher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logger.Info("issue resolver started",
		zap.String("executor", cfg.Executor.Kind),
		zap.Duration("executor_timeout", cfg.Executor.Timeout),
		zap.Duration("idle_eviction", cfg.Sessions.IdleEviction))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("executors still running at exit", zap.Error(err))
	}
	registry.Close()
	return nil
}
