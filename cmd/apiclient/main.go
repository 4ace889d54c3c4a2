package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adda-Baaj/apiclient/internal/app"
	"github.com/Adda-Baaj/apiclient/internal/cli"
	"github.com/Adda-Baaj/apiclient/internal/config"
	"github.com/Adda-Baaj/apiclient/internal/logger"
	"github.com/Adda-Baaj/apiclient/pkg/httpclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "apiclient: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// stdout carries command output; logs go to stderr.
	log, err := logger.InitWithWriter(cfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("apiclient starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := app.NewRunner(ctx, cfg, log, httpclient.WithRestyLogger(log.Sugar()))
	if err != nil {
		logger.ErrorObj("failed to initialize runner", "error", err.Error())
		return err
	}
	defer func() {
		if cerr := runner.Close(); cerr != nil {
			logger.WarnObj("runner close failed", "error", cerr.Error())
		}
	}()

	return cli.NewRootCommand(runner).ExecuteContext(ctx)
}
