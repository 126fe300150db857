package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wnt/health-to-earn/internal/chain"
	"github.com/wnt/health-to-earn/internal/config"
	"github.com/wnt/health-to-earn/internal/logger"
	"github.com/wnt/health-to-earn/internal/payout"
	"github.com/wnt/health-to-earn/internal/sampler"
	"github.com/wnt/health-to-earn/internal/server"
	"github.com/wnt/health-to-earn/internal/store"
	"github.com/wnt/health-to-earn/internal/strava"
)

func main() {
	// Parse command-line arguments
	envFile := flag.String("envFile", ".env", "Path to .env file")
	flag.Parse()

	// Load environment variables from the specified file
	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No .env file found at %s, using environment variables", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	logg.Info().Str("address", account.Address().Plain()).Msg("Dapp account loaded")

	signer, err := chain.NewSigner(account, cfg.GenerationHash, cfg.EpochAdjustment)
	if err != nil {
		logg.Fatal().Err(err).Msg("Failed to initialize transaction signer")
	}

	pool, err := chain.NewNodePool(cfg.NodeURLs, logg)
	if err != nil {
		logg.Fatal().Err(err).Msg("Failed to initialize node pool")
	}
	announcer := chain.NewClient(pool, logg)

	broadcaster := payout.NewBroadcaster(
		st, st,
		sampler.New(time.Now().UnixNano()),
		signer, announcer,
		payout.Config{MosaicID: cfg.CurrencyMosaic, Mean: cfg.PayoutMean},
		logg,
	)
	scheduler := payout.NewScheduler(st, broadcaster, payout.SchedulerConfig{
		Interval:     cfg.PayoutInterval,
		Stagger:      cfg.PayoutStagger,
		ClaimTimeout: cfg.ClaimTimeout,
		MaxAttempts:  cfg.MaxAttempts,
	}, logg)

	webhook := strava.NewService(st, cfg.StravaVerifyToken, logg)
	httpServer := server.New(st, webhook, logg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx, ":"+cfg.HTTPPort) })
	g.Go(func() error { return runMetricsServer(ctx, ":"+cfg.MetricsPort) })

	if err := g.Wait(); err != nil {
		logg.Fatal().Err(err).Msg("Service exited with error")
	}
	logg.Info().Msg("Service stopped")
}

// runMetricsServer serves prometheus metrics until ctx is cancelled.
func runMetricsServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}
