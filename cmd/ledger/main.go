package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/stock-ledger/internal/api"
	"github.com/example/stock-ledger/internal/command"
	"github.com/example/stock-ledger/internal/config"
	"github.com/example/stock-ledger/internal/domain/inventory"
	"github.com/example/stock-ledger/internal/logging"
	"github.com/example/stock-ledger/internal/monitor"
	"github.com/example/stock-ledger/internal/publisher"
	"github.com/example/stock-ledger/internal/query"
	"github.com/example/stock-ledger/internal/reconciler"
	"github.com/example/stock-ledger/internal/tracing"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Stock ledger stopped with error")
	}
	log.Info().Msg("Stock ledger stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.Component("ledger")
	logger.Info().
		Str("store", cfg.StoreDriver).
		Str("cache", cfg.CacheDriver).
		Str("transport", cfg.Transport).
		Str("idempotency", cfg.IdempotencyDriver).
		Msg("Starting stock ledger")

	shutdownTracing, err := tracing.InitTracerProvider(cfg.AppName, cfg.JaegerEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	res := &resources{}
	defer res.close()

	ledgerStore, warehouses, err := res.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	transport, err := res.openTransport(ctx, cfg)
	if err != nil {
		return err
	}

	pub := publisher.New(transport, publisher.Config{
		Workers:          cfg.PublishWorkers,
		QueueSize:        cfg.PublishQueueSize,
		MaxAttempts:      cfg.PublishMaxAttempts,
		InitialBackoff:   cfg.PublishInitialBackoff,
		MaxBackoff:       cfg.PublishMaxBackoff,
		DeadLetterSuffix: cfg.DeadLetterSuffix,
	}, publisher.WithOutcomeHandler(logOutcome))

	processed, err := res.openIdempotency(ctx, cfg)
	if err != nil {
		return err
	}

	opts := []inventory.Option{
		inventory.WithPublisher(pub),
		inventory.WithWarehouseDirectory(warehouses),
		inventory.WithLowStockThreshold(cfg.LowStockThreshold),
		inventory.WithMaxAttempts(cfg.MaxCASAttempts),
		inventory.WithMonitor(monitor.New(cfg.LowStockThreshold, cfg.CriticalStockLevel)),
		inventory.WithBackorderDedupe(processed),
	}
	cache, err := res.openCache(ctx, cfg)
	if err != nil {
		return err
	}
	if cache != nil {
		opts = append(opts, inventory.WithCache(cache))
	}
	engine := inventory.NewService(ledgerStore, opts...)

	rec := reconciler.New(engine, warehouses, processed, pub)

	productConsumer, err := res.openConsumer(cfg, inventory.TopicProductCreated, transport)
	if err != nil {
		return err
	}
	adjustConsumer, err := res.openConsumer(cfg, inventory.TopicStockAdjust, transport)
	if err != nil {
		return err
	}

	handlers := api.NewHandlers(command.NewHandler(engine), query.NewHandler(engine))
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consume(gctx, productConsumer, inventory.TopicProductCreated, rec.HandleProductCreated)
	})
	g.Go(func() error {
		return consume(gctx, adjustConsumer, inventory.TopicStockAdjust, rec.HandleStockAdjustment)
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		if err := pub.Close(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Publisher did not drain before shutdown")
		}
		return nil
	})

	return g.Wait()
}

func logOutcome(o publisher.Outcome) {
	if o.Err == nil {
		return
	}
	log.Error().
		Err(o.Err).
		Str("topic", o.Topic).
		Str("key", o.Key).
		Int("attempts", o.Attempts).
		Msg("Event dropped after retries")
}

