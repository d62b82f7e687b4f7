package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"raffle/internal/config"
	"raffle/internal/logger"
	"raffle/internal/oracle"
	"raffle/internal/storage"
	"raffle/internal/tracker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configuration, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(configuration.Logger()); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sqliteStorage, err := storage.NewSqliteStorage(configuration.DatabasePath)
	if err != nil {
		logger.Fatal("cannot open storage", zap.Error(err))
	}
	defer func() {
		if err := sqliteStorage.Close(); err != nil {
			logger.Error("cannot close storage", zap.Error(err))
		}
	}()

	trackerInstance := tracker.NewTracker(ctx, oracle.New(sqliteStorage), configuration.OracleInterval)

	done := make(chan struct{})
	go func() {
		defer close(done)
		trackerInstance.Loop()
	}()

	select {
	case <-done:
	case <-waitForInterrupt():
		logger.Info("interrupt received, stopping")
		cancel()
		<-done
	}
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
