// Package app wires configuration, storage, cache, use case and HTTP server
// together and runs them until the context is canceled.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/tinylink/internal/adapter/repository/memory"
	"github.com/vadimbarashkov/tinylink/internal/config"
	"github.com/vadimbarashkov/tinylink/internal/entity"
	"github.com/vadimbarashkov/tinylink/internal/usecase"
	"github.com/vadimbarashkov/tinylink/migrations"
	"github.com/vadimbarashkov/tinylink/pkg/logger"
	"github.com/vadimbarashkov/tinylink/pkg/postgres"
	"github.com/vadimbarashkov/tinylink/pkg/shortcode"
	"golang.org/x/sync/errgroup"

	rediscache "github.com/vadimbarashkov/tinylink/internal/adapter/cache/redis"
	delivery "github.com/vadimbarashkov/tinylink/internal/adapter/delivery/http"
	pgrepo "github.com/vadimbarashkov/tinylink/internal/adapter/repository/postgres"
)

const serviceName = "tinylink"

type linkStore interface {
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Insert(ctx context.Context, code, targetURL string) (*entity.Link, error)
	SelectAll(ctx context.Context) ([]entity.Link, error)
	SelectByCode(ctx context.Context, code string) (*entity.Link, error)
	DeleteByCode(ctx context.Context, code string) error
	IncrementClicks(ctx context.Context, code string) error
	Ping(ctx context.Context) error
}

func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	startedAt := time.Now()

	log, logCloser, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("%s: failed to build logger: %w", op, err)
	}
	defer logCloser.Close()

	store, closeStore, err := openStore(ctx, cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer closeStore()

	var cache *rediscache.LinkCache
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("%s: failed to connect to redis: %w", op, err)
		}

		cache = rediscache.NewLinkCache(client, rediscache.WithTTL(cfg.Redis.TTL))
		log.Info("target cache enabled", slog.String("addr", cfg.Redis.Addr))
	}

	handler := newHandler(cfg, log, store, cache, startedAt)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        handler,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(log.Logger.Handler(), slog.LevelError),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server started",
			slog.String("addr", server.Addr),
			slog.String("env", cfg.Env),
			slog.String("storage", cfg.Storage),
		)

		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

func newLogger(cfg *config.Config) (*httplog.Logger, io.Closer, error) {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, nil, err
	}

	return logger.New(serviceName, logger.Options{
		Level:      level,
		JSON:       cfg.Log.JSON,
		Concise:    cfg.Log.Concise,
		Tags:       map[string]string{"env": cfg.Env},
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
}

// openStore returns the configured link store and a function releasing it.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (linkStore, func() error, error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn("using in-memory storage, links are lost on restart")
		return memory.NewLinkRepository(), func() error { return nil }, nil
	}

	dsn := cfg.Postgres.DSN()

	db, err := postgres.New(
		ctx,
		dsn,
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := postgres.RunMigrations(migrations.FS, ".", dsn); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("database connected",
		slog.String("host", cfg.Postgres.Host),
		slog.String("db", cfg.Postgres.DB),
	)

	return pgrepo.NewLinkRepository(db), db.Close, nil
}

// newHandler builds the use case over store and returns the routed HTTP handler.
// A nil cache disables caching.
func newHandler(
	cfg *config.Config,
	log *httplog.Logger,
	store linkStore,
	cache *rediscache.LinkCache,
	startedAt time.Time,
) http.Handler {
	gen := shortcode.New(shortcode.WithLength(cfg.ShortCode.Length))

	opts := []usecase.Option{
		usecase.WithLogger(log.Logger),
		usecase.WithMaxRetries(cfg.ShortCode.MaxRetries),
		usecase.WithQueryTimeout(cfg.Postgres.QueryTimeout),
		usecase.WithClickTimeout(cfg.Postgres.ClickTimeout),
	}
	if cache != nil {
		opts = append(opts, usecase.WithCache(cache))
	}

	linkUseCase := usecase.New(store, gen, opts...)

	return delivery.NewRouter(log, linkUseCase,
		delivery.WithAllowedOrigins(cfg.HTTPServer.AllowedOrigins),
		delivery.WithDocsPath(cfg.HTTPServer.DocsPath),
		delivery.WithRequestTimeout(cfg.HTTPServer.RequestTimeout),
		delivery.WithStartTime(startedAt),
	)
}
