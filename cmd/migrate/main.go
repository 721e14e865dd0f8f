package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/noah-isme/toko-orderlines/internal/config"
	"github.com/noah-isme/toko-orderlines/internal/migrate"
	"github.com/noah-isme/toko-orderlines/internal/obs"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of migrating up")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "migrate").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *down > 0 {
		err = migrate.Down(ctx, cfg.DatabaseURL, *down, logger)
	} else {
		err = migrate.Up(ctx, cfg.DatabaseURL, logger)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
}
