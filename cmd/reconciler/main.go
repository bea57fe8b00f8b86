package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/spotdesk/escrow-reconciler/internal/adapter/cache"
	"github.com/spotdesk/escrow-reconciler/internal/adapter/pg"
	api "github.com/spotdesk/escrow-reconciler/internal/api/http"
	"github.com/spotdesk/escrow-reconciler/internal/config"
	"github.com/spotdesk/escrow-reconciler/internal/logging"
	"github.com/spotdesk/escrow-reconciler/internal/recon"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx := context.Background()

	orders, err := pg.NewOrderStore(ctx, cfg.OrdersDSN, logger)
	if err != nil {
		logger.Fatal("order store unavailable", zap.Error(err))
	}
	defer orders.Close()

	ledger, err := pg.NewLedger(ctx, cfg.LedgerDSN)
	if err != nil {
		logger.Fatal("escrow ledger unavailable", zap.Error(err))
	}
	defer ledger.Close()

	book := cache.NewRedisBook(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := book.Ping(ctx); err != nil {
		logger.Fatal("depth cache unavailable", zap.Error(err))
	}
	defer book.Close()

	params := recon.Params{
		Epsilon:       cfg.EpsilonDecimal(),
		DustThreshold: cfg.DustDecimal(),
		CustodyDomain: cfg.CustodyDomain,
		BotOwners:     cfg.BotOwnerSet(),
		Symbol:        cfg.Symbol,
	}
	eng := recon.New(orders, ledger, book, params, logger)

	if cfg.HTTPAddr != "" {
		logger.Info("serving reconcile trigger", zap.String("addr", cfg.HTTPAddr))
		if err := api.NewServer(eng, logger).Run(cfg.HTTPAddr); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
		return
	}

	summary, err := eng.Run(ctx)
	if err != nil {
		logger.Fatal("reconciliation pass failed", zap.Error(err))
	}
	// A completed pass exits zero no matter how many orders were faulty.
	fmt.Printf("run %s: scanned=%d skipped=%d faulty=%d repaired=%d failed=%d elapsed=%s\n",
		summary.RunID, summary.Scanned, summary.Skipped, summary.Faulty,
		summary.Repaired, summary.Failed, summary.Elapsed)
}
