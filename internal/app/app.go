// Package app assembles the service graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fx-signal-lab/internal/api"
	"fx-signal-lab/internal/config"
	"fx-signal-lab/internal/ledger"
	"fx-signal-lab/internal/metrics"
	"fx-signal-lab/internal/notify"
	"fx-signal-lab/internal/observability"
	"fx-signal-lab/internal/pricefeed"
	"fx-signal-lab/internal/storage"
	chstore "fx-signal-lab/internal/storage/clickhouse"
	filestore "fx-signal-lab/internal/storage/file"
	"fx-signal-lab/internal/storage/memory"
	"fx-signal-lab/internal/storage/migrations"
	"fx-signal-lab/internal/storage/postgres"
	redisstore "fx-signal-lab/internal/storage/redis"
	"fx-signal-lab/internal/verification"
)

// App holds the wired components. Close releases every connection.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Metrics    *observability.Metrics
	Ledger     *ledger.Ledger
	Aggregator *metrics.Aggregator
	Prices     pricefeed.Feed
	Notifier   *notify.Manager
	Verifier   *verification.Verifier
	API        *api.Server

	redis   *goredis.Client
	closers []func() error
}

// New connects the configured backends, applies pending migrations and
// wires the ledger, verifier and API. ctx bounds connection setup and the
// lifetime of streaming price feeds.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(cfg.App.MetricsNamespace),
	}

	if err := a.build(ctx); err != nil {
		if cerr := a.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("cleanup after failed startup")
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	signals, err := a.signalStore(ctx)
	if err != nil {
		return err
	}
	stats, err := a.statisticsStore(ctx)
	if err != nil {
		return err
	}
	prices, err := a.priceFeed(ctx)
	if err != nil {
		return err
	}
	notifier, err := a.notifier(ctx)
	if err != nil {
		return err
	}

	a.Prices = prices
	a.Notifier = notifier
	a.Ledger = ledger.New(ledger.Options{
		Store:       signals,
		VerifyAfter: a.Config.Verification.VerifyAfter(),
		Announcer:   notifier,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
	})
	a.Aggregator = metrics.NewAggregator(metrics.AggregatorOptions{
		Source:  a.Ledger,
		Store:   stats,
		Metrics: a.Metrics,
		Logger:  a.Logger,
	})
	a.Verifier = verification.New(verification.Options{
		Ledger:       a.Ledger,
		Prices:       prices,
		Notifier:     notifier,
		Statistics:   a.Aggregator,
		PollInterval: a.Config.Verification.PollInterval,
		BatchSize:    a.Config.Verification.BatchSize,
		Metrics:      a.Metrics,
		Logger:       a.Logger,
	})
	a.API = api.New(api.Options{
		Ledger:      a.Ledger,
		Statistics:  a.Aggregator,
		Verifier:    a.Verifier,
		CORSOrigins: a.Config.API.CORSOrigins,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
		Debug:       a.Config.App.LogLevel == "debug" || a.Config.App.LogLevel == "trace",
	})

	a.Logger.Info().
		Str("storage", a.Config.Storage.Backend).
		Str("price_feed", prices.Name()).
		Strs("notifiers", notifier.Enabled()).
		Dur("verify_after", a.Ledger.VerifyAfter()).
		Msg("service graph ready")
	return nil
}

func (a *App) signalStore(ctx context.Context) (storage.SignalStore, error) {
	sc := a.Config.Storage
	switch sc.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, sc.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.onClose(func() error { pool.Close(); return nil })

		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			a.Logger.Info().Strs("versions", applied).Msg("postgres migrations applied")
		}
		return postgres.NewSignalStore(pool), nil

	case "redis":
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return redisstore.NewSignalStore(client, sc.RedisKeyPrefix), nil

	case "file":
		return filestore.NewSignalStore(sc.FilePath)

	default:
		return memory.NewSignalStore(), nil
	}
}

// statisticsStore uses ClickHouse when configured; otherwise history lives in memory.
func (a *App) statisticsStore(ctx context.Context) (storage.StatisticsStore, error) {
	dsn := a.Config.Storage.ClickhouseDSN
	if dsn == "" {
		return memory.NewStatisticsStore(), nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	a.onClose(conn.Close)
	return chstore.NewStatisticsStore(conn), nil
}

func (a *App) priceFeed(ctx context.Context) (pricefeed.Feed, error) {
	pc := a.Config.PriceFeed

	var primary pricefeed.Feed
	switch pc.Source {
	case "alphavantage":
		primary = pricefeed.NewAlphaVantageFeed(pricefeed.AlphaVantageOptions{
			BaseURL: pc.APIURL,
			APIKey:  pc.APIKey,
		})
	case "yahoo":
		primary = pricefeed.NewYahooFeed()
	case "stream":
		stream, err := pricefeed.NewStreamFeed(ctx, pricefeed.StreamOptions{
			URL:    pc.StreamURL,
			Pairs:  pc.Pairs,
			MaxAge: pc.MaxAge,
			Logger: a.Logger,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(stream.Close)
		primary = stream
	default:
		return pricefeed.NewDemoFeed(), nil
	}

	if pc.Fallback {
		return pricefeed.NewChain(a.Logger, primary, pricefeed.NewDemoFeed()), nil
	}
	return primary, nil
}

func (a *App) notifier(ctx context.Context) (*notify.Manager, error) {
	nc := a.Config.Notify
	m := notify.NewManager(notify.ManagerOptions{Metrics: a.Metrics, Logger: a.Logger})

	if nc.Log {
		m.AddNotifier(notify.NewLogNotifier(a.Logger))
	}
	if nc.SlackWebhookURL != "" {
		m.AddNotifier(notify.NewSlackNotifier(nc.SlackWebhookURL))
	}
	if nc.RedisChannel != "" {
		client, err := a.redisClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("redis notifier: %w", err)
		}
		m.AddNotifier(notify.NewRedisPublisher(client, nc.RedisChannel))
	}
	return m, nil
}

// redisClient connects once and shares the client between the signal
// store and the notifier.
func (a *App) redisClient(ctx context.Context) (*goredis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	if a.Config.Storage.RedisURL == "" {
		return nil, errors.New("REDIS_URL is not set")
	}
	client, err := redisstore.NewClient(ctx, a.Config.Storage.RedisURL, a.Config.Storage.RedisPassword)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.onClose(client.Close)
	return client, nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
