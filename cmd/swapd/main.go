package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-labs/swapd/params"
	"github.com/meridian-labs/swapd/pkg/api"
	"github.com/meridian-labs/swapd/pkg/pubsub"
	"github.com/meridian-labs/swapd/pkg/queue"
	"github.com/meridian-labs/swapd/pkg/router"
	"github.com/meridian-labs/swapd/pkg/storage"
	"github.com/meridian-labs/swapd/pkg/util"
	"github.com/meridian-labs/swapd/pkg/venue"
	"github.com/meridian-labs/swapd/pkg/worker"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger(os.Getenv("LOG_FILE"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Storage: one pebble database holds orders and job records ----
	db, err := storage.Open(cfg.Store.Path)
	if err != nil {
		sugar.Fatalw("store open failed", "path", cfg.Store.Path, "err", err)
	}
	defer db.Close()
	orders := storage.NewPebbleOrderStore(db)

	// ---- Update channel transport ----
	var broker pubsub.Broker
	if cfg.Redis.Addr != "" {
		rb := pubsub.NewRedisBroker(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rb.Ping(context.Background()); err != nil {
			sugar.Fatalw("redis unreachable", "addr", cfg.Redis.Addr, "err", err)
		}
		broker = rb
		sugar.Infow("update transport ready", "kind", "redis", "addr", cfg.Redis.Addr)
	} else {
		broker = pubsub.NewMemoryBroker()
		sugar.Infow("update transport ready", "kind", "memory")
	}

	// ---- Venue adapters + router (registration order breaks quote ties) ----
	tokens := venue.DefaultTokens()
	rtr := router.New(sugar,
		venue.NewRaydium(cfg.Venues.RaydiumURL, cfg.Venues.QuoteTimeout, tokens),
		venue.NewMeteora(cfg.Venues.MeteoraURL, cfg.Venues.QuoteTimeout, tokens),
	)

	// ---- Queue, processor, dispatcher ----
	q := queue.New(db, sugar)
	proc := worker.New(orders, broker, rtr, worker.SimSubmitter{}, worker.Config{
		SignerPubkey: cfg.Wallet.SignerPubkey,
		SlippageBps:  cfg.Venues.SlippageBps,
	}, sugar)
	disp := queue.NewDispatcher(q, proc.Process, queue.DispatcherConfig{
		Concurrency:  cfg.Queue.Concurrency,
		RateLimit:    cfg.Queue.RateLimit,
		RateWindow:   cfg.Queue.RateWindow,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		BaseDelay:    cfg.Queue.BaseDelay,
		MaxDelay:     cfg.Queue.MaxDelay,
		LeaseTTL:     cfg.Queue.LeaseTTL,
		PollInterval: cfg.Queue.PollInterval,
	}, sugar)

	// ---- API server + subscription gateway ----
	srv := api.NewServer(orders, q, broker, cfg.API.AllowedOrigins, sugar)
	httpSrv := &http.Server{Addr: cfg.API.Addr, Handler: srv.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return disp.Run(gctx) })
	g.Go(func() error {
		sugar.Infow("api listening", "addr", cfg.API.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	err = multierr.Append(err, broker.Close())
	if err != nil {
		sugar.Errorw("shutdown finished with errors", "err", err)
	} else {
		sugar.Info("swapd stopped")
	}
}
