package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/config"
	"github.com/MrEthical07/credcore/logging"
	"github.com/MrEthical07/credcore/notify"
	"github.com/MrEthical07/credcore/ratelimit"
	"github.com/MrEthical07/credcore/store/redisstore"
	"github.com/MrEthical07/credcore/store/sqlstore"
)

// app is one wired engine plus everything it owns.
type app struct {
	settings *config.Settings
	log      *zap.Logger
	store    credcore.AccountStore
	sql      *sqlstore.Store
	engine   *credcore.Engine
	registry *prometheus.Registry

	closers []func() error
}

func openApp(ctx context.Context, s *config.Settings) (a *app, err error) {
	log, err := logging.New(s.Log)
	if err != nil {
		return nil, err
	}
	a = &app{settings: s, log: log, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var rdb redis.UniversalClient
	if s.Store.Driver == "redis" || s.Limiter.Backend == "redis" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    s.Redis.Addrs,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	// -------- STORE --------
	switch s.Store.Driver {
	case "memory":
		log.Warn("using in-memory account store; data is lost on exit")
		a.store = credcore.NewMemoryStore()
	case "redis":
		rs, err := redisstore.New(rdb, redisstore.Options{Prefix: s.Redis.Prefix, Logger: log})
		if err != nil {
			return nil, err
		}
		a.store = rs
	case "sqlite", "postgres":
		driver := sqlstore.DriverSQLite
		if s.Store.Driver == "postgres" {
			driver = sqlstore.DriverPostgres
		}
		db, err := sqlstore.Open(ctx, driver, s.Store.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		ss, err := sqlstore.New(db, sqlstore.Options{Table: s.Store.Table, Logger: log})
		if err != nil {
			return nil, err
		}
		a.sql = ss
		a.store = ss
	}

	// -------- NOTIFIER --------
	var notifier credcore.Notifier
	switch s.Notifier.Kind {
	case "log":
		notifier = notify.NewLog(log)
	case "smtp":
		n, err := notify.NewSMTP(s.Notifier.SMTP, log)
		if err != nil {
			return nil, err
		}
		notifier = n
	case "kafka":
		n, err := notify.NewKafka(s.Notifier.Kafka, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n.Close)
		notifier = n
	}

	b := credcore.New().
		WithConfig(s.Engine).
		WithStore(a.store).
		WithNotifier(notifier).
		WithLogger(log).
		WithMetricsRegisterer(a.registry)

	// -------- LIMITERS --------
	if s.Limiter.Backend == "redis" {
		reset, err := ratelimit.NewRedis(rdb, s.Redis.Prefix+"rl:reset:", s.Engine.RateLimit.PasswordReset)
		if err != nil {
			return nil, err
		}
		verify, err := ratelimit.NewRedis(rdb, s.Redis.Prefix+"rl:verify:", s.Engine.RateLimit.EmailVerification)
		if err != nil {
			return nil, err
		}
		b.WithPasswordResetLimiter(reset).WithEmailVerificationLimiter(verify)
	}

	if s.Engine.Audit.Enabled {
		b.WithAuditSink(credcore.NewZapSink(log.Named("audit")))
	}

	a.engine, err = b.Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.closers = append(a.closers, func() error {
		a.engine.Close()
		return nil
	})
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for _, c := range slices.Backward(a.closers) {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.log.Sync()
	return errors.Join(errs...)
}
