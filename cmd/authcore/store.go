package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/ratelimit"
	"github.com/MrEthical07/authcore/stores/redisstore"
	"github.com/MrEthical07/authcore/stores/sqlstore"
)

// backend is an opened store plus the account-creation and schema hooks the
// Store interface does not carry.
type backend struct {
	store   authcore.Store
	redis   redis.UniversalClient
	create  func(ctx context.Context, account authcore.Account) error
	migrate func(ctx context.Context) error
	close   func() error
}

func (a *app) openBackend(ctx context.Context) (*backend, error) {
	switch a.opts.store {
	case "sqlite", "postgres":
		dialect := sqlstore.SQLite
		open := sqlstore.OpenSQLite
		if a.opts.store == "postgres" {
			dialect = sqlstore.Postgres
			open = sqlstore.OpenPostgres
		}
		db, err := open(ctx, a.opts.dsn)
		if err != nil {
			return nil, err
		}
		s := sqlstore.New(db, dialect)
		a.logger.Debug("store opened", "backend", dialect.String())
		return &backend{
			store:   s,
			create:  s.Insert,
			migrate: func(ctx context.Context) error { return sqlstore.Migrate(ctx, db, dialect) },
			close:   db.Close,
		}, nil

	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{a.opts.dsn}})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: %v", redisstore.ErrRedisUnavailable, err)
		}
		s := redisstore.New(client, a.opts.redisPrefix)
		a.logger.Debug("store opened", "backend", "redis", "addr", a.opts.dsn)
		return &backend{
			store:   s,
			redis:   client,
			create:  s.Put,
			migrate: func(context.Context) error { return nil },
			close:   client.Close,
		}, nil
	}
	return nil, usageError{msg: fmt.Sprintf("unknown store %q", a.opts.store)}
}

// engine builds an Engine over the backend. Events are logged without
// their secrets; the last code or link is kept in a.delivery for stdout.
func (a *app) engine(b *backend) (*authcore.Engine, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	builder := authcore.New().
		WithConfig(cfg).
		WithStore(b.store).
		WithLogger(a.logger).
		WithEventSink(authcore.EventSinkFunc(a.logEvent))
	limiter, err := attemptLimiter(b, cfg.Verification)
	if err != nil {
		return nil, err
	}
	if limiter != nil {
		builder = builder.WithAttemptLimiter(limiter)
	}
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(authcore.NewSlogSink(a.logger.With("component", "audit")))
	}
	return builder.Build()
}

// attemptLimiter shares counters through redis when the backend has a
// client. SQL backends get an in-process bucket that lives as long as the
// command.
func attemptLimiter(b *backend, cfg authcore.VerificationConfig) (authcore.AttemptLimiter, error) {
	if cfg.MaxAttempts == 0 {
		return nil, nil
	}
	if b.redis != nil {
		l, err := ratelimit.FromConfig(b.redis, cfg)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	l, err := ratelimit.NewLocal(ratelimit.Config{MaxAttempts: cfg.MaxAttempts, Window: cfg.AttemptWindow})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (a *app) logEvent(ctx context.Context, event authcore.Event) {
	switch e := event.(type) {
	case authcore.LoginAttemptEvent:
		a.logger.InfoContext(ctx, "event", "name", e.EventName(), "identifier", e.Identifier, "succeeded", e.Succeeded)
	case authcore.VerificationCodeCreatedEvent:
		a.delivery = e.Code
		a.logger.InfoContext(ctx, "event", "name", e.EventName(), "account", e.AccountID, "to", e.To)
	case authcore.VerificationURLCreatedEvent:
		a.delivery = e.URL
		a.logger.InfoContext(ctx, "event", "name", e.EventName(), "account", e.AccountID, "to", e.To)
	case authcore.AccountVerifiedEvent:
		a.logger.InfoContext(ctx, "event", "name", e.EventName(), "account", e.Account.ID, "method", e.Method)
	default:
		a.logger.DebugContext(ctx, "event", "name", event.EventName())
	}
}
