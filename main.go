package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"hl_bootstrap/internal/bootstrap"
	"hl_bootstrap/internal/config"
	"hl_bootstrap/internal/utils"
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, fs, err := config.Load(os.Args[1:], os.LookupEnv)
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Usage: hl-bootstrap [flags] [hl-visor args...]\n\n")
		fmt.Fprintf(os.Stderr, "Every flag can also be set as %s<FLAG_NAME>, e.g. %s.\n\n",
			config.EnvPrefix, config.EnvName("seed-peers-amount"))
		fs.PrintDefaults()
		return 0, nil
	}
	if err != nil {
		return 1, err
	}

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogPath)
	if err != nil {
		return 1, err
	}
	defer logger.Sync()

	logger.Debug("loaded settings",
		zap.String("config_file", cfg.ConfigPath),
		zap.String("network", cfg.Network),
		zap.String("seed_source", cfg.SeedSource),
		zap.Strings("args", cfg.Args),
	)

	// Interrupts abort preparation; once hl-visor runs they are forwarded.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code, err := bootstrap.New(cfg, bootstrap.DefaultDeps(cfg, logger)).Run(ctx)
	if err != nil {
		logger.Error("bootstrap failed", zap.Error(err))
	}
	return code, err
}
