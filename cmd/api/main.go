package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"topupgate/internal/config"
	"topupgate/internal/core/reconcile"
	httpx "topupgate/internal/http"
	"topupgate/internal/ledger"
	"topupgate/internal/metrics"
	"topupgate/internal/services/topup"
	"topupgate/internal/store/postgres"
	"topupgate/internal/x402"
)

func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The acceptance set is built exactly once; every request reads
	// this immutable slice.
	accepts, err := x402.BuildAcceptanceSet(paymentTerms(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("cannot build payment acceptance set")
	}
	log.Info().Int("descriptors", len(accepts)).Msg("payment acceptance set ready")

	verifier := x402.NewFacilitatorClient(cfg.Payment.FacilitatorURL, 30*time.Second)
	if err := verifier.CheckSupport(ctx); err != nil {
		log.Fatal().Err(err).Str("url", cfg.Payment.FacilitatorURL).Msg("facilitator unreachable")
	}

	ledgerClient := ledger.NewClient(cfg.Ledger.BaseURL, cfg.Ledger.APIKey, 15*time.Second)
	rec := metrics.NewPrometheusRecorder()

	// Receipt store and reconcile worker run only when a database is
	// configured; the core request path works without them.
	var receipts topup.ReceiptStore
	if cfg.DB.DSN != "" {
		pool := postgres.MustOpen(ctx, cfg.DB.DSN)
		defer pool.Close()
		repo := postgres.NewRepo(pool)
		receipts = repo

		worker := reconcile.NewWorker(repo, ledgerClient)
		go worker.Run(ctx)
	}

	svc := topup.NewService(ledgerClient, receipts, cfg.Payment.TopUpCost, rec)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
	}

	r := httpx.NewRouter(httpx.RouterDependencies{
		Config:       cfg,
		Accepts:      accepts,
		Verifier:     verifier,
		LedgerClient: ledgerClient,
		TopupService: svc,
		Metrics:      rec,
		Redis:        rdb,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("topupgate API listening on :%s", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	log.Info().Msg("server stopped")
}

// paymentTerms maps environment configuration onto the terms the
// acceptance set is built from. Solana comes first in preference order.
func paymentTerms(cfg config.Cfg) x402.TermsConfig {
	return x402.TermsConfig{
		Amount:      cfg.Payment.TopUpCost,
		Asset:       cfg.Payment.Asset,
		Resource:    "/topup",
		Description: "Workspace credit top-up",
		Networks: []x402.NetworkTerms{
			{Network: x402.Network(cfg.Payment.SolanaNetwork), PayTo: cfg.Payment.SolanaPayTo},
			{Network: x402.Network(cfg.Payment.EVMNetwork), PayTo: cfg.Payment.EVMPayTo},
		},
	}
}
