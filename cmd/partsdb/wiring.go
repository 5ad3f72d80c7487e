package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pcparts/partsdb/config"
	"github.com/pcparts/partsdb/importer"
	"github.com/pcparts/partsdb/logger"
	"github.com/pcparts/partsdb/mapping"
	"github.com/pcparts/partsdb/models"
	"github.com/pcparts/partsdb/opendb"
	"github.com/pcparts/partsdb/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// env is the configured runtime shared by the subcommands.
type env struct {
	cfg *config.Config
	log *zap.Logger
}

func setup(flags *globalFlags) (*env, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, codeError(exitUsage, "load config: %s", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, codeError(exitUsage, "init logger: %s", err)
	}

	return &env{cfg: cfg, log: log.With(zap.String("env", cfg.App.Env))}, nil
}

func (e *env) close() {
	_ = e.log.Sync()
}

func (e *env) telemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:           e.cfg.Telemetry.Enabled,
		CollectorEndpoint: e.cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     e.cfg.Telemetry.SamplingRatio,
		ServiceName:       e.cfg.Telemetry.ServiceName,
		Insecure:          e.cfg.Telemetry.Insecure,
		MetricsInterval:   e.cfg.Telemetry.MetricsInterval,
	}
}

// telemetry installs the trace and metric providers and returns their shutdown.
func (e *env) telemetry(ctx context.Context) (func(), error) {
	cfg := e.telemetryConfig()

	tp, err := telemetry.NewTracerProvider(ctx, cfg, e.log)
	if err != nil {
		return nil, err
	}
	mp, err := telemetry.NewMeterProvider(ctx, cfg, e.log)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}

	return func() {
		_ = mp.Shutdown(context.Background())
		_ = tp.Shutdown(context.Background())
	}, nil
}

// registry returns the built-in mappings plus any found in the mappings dir.
func (e *env) registry() (*mapping.Registry, error) {
	reg := mapping.DefaultRegistry()
	if e.cfg.Mappings.Dir == "" {
		return reg, nil
	}

	added, err := reg.LoadDir(e.cfg.Mappings.Dir)
	if err != nil {
		return nil, codeError(exitUsage, "load mappings: %s", err)
	}
	if len(added) > 0 {
		e.log.Info("Loaded category mappings",
			zap.String("dir", e.cfg.Mappings.Dir),
			zap.Strings("categories", added),
		)
	}
	return reg, nil
}

// locker returns the configured import lock and a function releasing its resources.
func (e *env) locker(ctx context.Context) (importer.Locker, func(), error) {
	if e.cfg.Lock.Backend != "redis" {
		return importer.NewMemoryLocker(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     e.cfg.Redis.Addr(),
		Password: e.cfg.Redis.Password,
		DB:       e.cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", e.cfg.Redis.Addr(), err)
	}

	e.log.Info("Using redis import lock", zap.String("addr", e.cfg.Redis.Addr()))
	return importer.NewRedisLocker(client, e.cfg.Lock.TTL, e.log), func() { _ = client.Close() }, nil
}

func (e *env) database() (*gorm.DB, func(), error) {
	db, err := models.Open(e.cfg.Database, e.log)
	if err != nil {
		return nil, nil, err
	}
	if err := telemetry.InstrumentDB(db, e.telemetryConfig(), e.cfg.Database.Driver, e.log); err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

// importer builds an Importer over db with the configured source, lock and metrics.
func (e *env) importer(ctx context.Context, db *gorm.DB, reg *mapping.Registry) (*importer.Importer, func(), error) {
	source, err := opendb.New(e.cfg.OpenDB, e.log)
	if err != nil {
		return nil, nil, codeError(exitUsage, "%s", err)
	}

	locker, release, err := e.locker(ctx)
	if err != nil {
		return nil, nil, err
	}

	metrics, err := telemetry.NewImportMetrics(nil)
	if err != nil {
		release()
		return nil, nil, err
	}

	imp := importer.New(db, reg, source,
		importer.WithLocker(locker),
		importer.WithLogger(e.log),
		importer.WithMetrics(metrics),
		importer.WithMaxIssues(e.cfg.OpenDB.MaxIssues),
	)
	return imp, release, nil
}
