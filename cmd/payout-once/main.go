// Command payout-once runs a single payout round and exits. Useful for
// operating on a backlog while the scheduled service is paused.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/wnt/health-to-earn/internal/chain"
	"github.com/wnt/health-to-earn/internal/config"
	"github.com/wnt/health-to-earn/internal/logger"
	"github.com/wnt/health-to-earn/internal/payout"
	"github.com/wnt/health-to-earn/internal/sampler"
	"github.com/wnt/health-to-earn/internal/store"
)

func main() {
	envFile := flag.String("envFile", ".env", "Path to .env file")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall round timeout")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No .env file found at %s, using environment variables", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := store.New(ctx, cfg.FirestoreProjectID, cfg.CredentialsFile, logg)
	if err != nil {
		logg.Fatal().Err(err).Msg("Failed to connect to Firestore")
	}
	defer st.Close()

	network := chain.MainNet
	if cfg.NetworkType == "testnet" {
		network = chain.TestNet
	}

	account, err := chain.AccountFromPrivateKey(cfg.DappPrivateKey, network)
	if err != nil {
		logg.Fatal().Err(err).Msg("Failed to load dapp account")
	}

	signer, err := chain.NewSigner(account, cfg.GenerationHash, cfg.EpochAdjustment)
	if err != nil {
		logg.Fatal().Err(err).Msg("Failed to initialize transaction signer")
	}

	pool, err := chain.NewNodePool(cfg.NodeURLs, logg)
	if err != nil {
		logg.Fatal().Err(err).Msg("Failed to initialize node pool")
	}

	broadcaster := payout.NewBroadcaster(
		st, st,
		sampler.New(time.Now().UnixNano()),
		signer, chain.NewClient(pool, logg),
		payout.Config{MosaicID: cfg.CurrencyMosaic, Mean: cfg.PayoutMean},
		logg,
	)
	scheduler := payout.NewScheduler(st, broadcaster, payout.SchedulerConfig{
		Stagger:      cfg.PayoutStagger,
		ClaimTimeout: cfg.ClaimTimeout,
		MaxAttempts:  cfg.MaxAttempts,
	}, logg)

	scheduler.RunOnce(ctx)
	logg.Info().Msg("Payout round completed")
}
