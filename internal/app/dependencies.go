package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/solar-symphony/internal/config"
	"github.com/noah-isme/solar-symphony/internal/invoice"
	"github.com/noah-isme/solar-symphony/internal/obs"
)

// Options tunes how shared clients are built for a particular binary.
type Options struct {
	// ApplicationName is reported to Postgres as application_name.
	ApplicationName string
	// RedisMetrics enables redisotel metrics in addition to tracing.
	RedisMetrics bool
	// Migrate applies the invoice schema before the pool is opened.
	Migrate bool
}

// Dependencies holds the clients shared by the API and the worker.
type Dependencies struct {
	Redis    *redis.Client
	DB       *pgxpool.Pool
	Invoices invoice.Store
	Logger   zerolog.Logger

	redisOpt asynq.RedisConnOpt
}

// New connects Redis and, when DATABASE_URL is set, Postgres. Invoices are
// stored in Postgres when it is configured and in Redis otherwise.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	redisClient, err := newRedis(ctx, cfg.RedisURL, opts.RedisMetrics, logger)
	if err != nil {
		return nil, err
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("parse task queue redis url: %w", err)
	}
	deps := &Dependencies{Redis: redisClient, Logger: logger, redisOpt: redisOpt}

	if !cfg.UsePostgres() {
		deps.Invoices = invoice.NewRedisStore(redisClient)
		logger.Info().Msg("invoice store: redis")
		return deps, nil
	}

	if opts.Migrate {
		if err := invoice.Migrate(cfg.DatabaseURL); err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("migrate invoices: %w", err)
		}
	}
	pool, err := newPool(ctx, cfg.DatabaseURL, opts.ApplicationName)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.DB = pool
	deps.Invoices = &invoice.PostgresStore{DB: pool}
	logger.Info().Msg("invoice store: postgres")
	return deps, nil
}

// NewTaskClient returns an asynq client bound to the configured Redis.
func (d *Dependencies) NewTaskClient() *asynq.Client {
	return asynq.NewClient(d.redisOpt)
}

// NewTaskServer returns an asynq server bound to the configured Redis.
func (d *Dependencies) NewTaskServer(cfg asynq.Config) *asynq.Server {
	return asynq.NewServer(d.redisOpt, cfg)
}

// Close releases every client. Safe to call on a partially built value.
func (d *Dependencies) Close() error {
	var errs []error
	if d.DB != nil {
		d.DB.Close()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func newPool(ctx context.Context, url, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{Name: "invoice.pgx"}
	if appName != "" {
		if poolConfig.ConnConfig.RuntimeParams == nil {
			poolConfig.ConnConfig.RuntimeParams = map[string]string{}
		}
		poolConfig.ConnConfig.RuntimeParams["application_name"] = appName
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
