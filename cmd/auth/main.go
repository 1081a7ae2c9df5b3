package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/appsqa/appsqa-auth/internal/config"
	"github.com/appsqa/appsqa-auth/internal/database"
	httptransport "github.com/appsqa/appsqa-auth/internal/http"
	"github.com/appsqa/appsqa-auth/internal/http/handler"
	"github.com/appsqa/appsqa-auth/internal/http/middleware"
	"github.com/appsqa/appsqa-auth/internal/mail"
	"github.com/appsqa/appsqa-auth/internal/metrics"
	"github.com/appsqa/appsqa-auth/internal/repository"
	"github.com/appsqa/appsqa-auth/internal/server"
	"github.com/appsqa/appsqa-auth/internal/service"
	"github.com/appsqa/appsqa-auth/internal/telemetry"
	"github.com/appsqa/appsqa-auth/internal/token"
)

func main() {
	_ = godotenv.Load()

	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newUserRepository,
			newSessionRepository,
			newLoginTokenRepository,
			newClientRepository,
			newCodeRepository,
			newTokenRepository,
			newConsentRepository,
			newSSOTokenRepository,
			newCodec,
			newMailSender,
			newMetrics,
			newRateLimiter,
			service.NewSessionService,
			service.NewPasswordlessService,
			service.NewOAuthService,
			service.NewSSOService,
			newDiscoveryService,
			handler.NewAuthHandler,
			handler.NewOAuthHandler,
			handler.NewSSOHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(runMigrations, useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func runMigrations(cfg config.Config, logger *zap.Logger) error {
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")
	return nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newSessionRepository(pool *pgxpool.Pool) repository.SessionRepository {
	return repository.NewPostgresSessionRepo(pool)
}

func newLoginTokenRepository(pool *pgxpool.Pool) repository.LoginTokenRepository {
	return repository.NewPostgresLoginTokenRepo(pool)
}

func newClientRepository(pool *pgxpool.Pool) repository.ClientRepository {
	return repository.NewPostgresClientRepo(pool)
}

func newCodeRepository(pool *pgxpool.Pool) repository.CodeRepository {
	return repository.NewPostgresCodeRepo(pool)
}

func newTokenRepository(pool *pgxpool.Pool) repository.TokenRepository {
	return repository.NewPostgresTokenRepo(pool)
}

func newConsentRepository(pool *pgxpool.Pool) repository.ConsentRepository {
	return repository.NewPostgresConsentRepo(pool)
}

func newSSOTokenRepository(pool *pgxpool.Pool) repository.SSOTokenRepository {
	return repository.NewPostgresSSOTokenRepo(pool)
}

func newCodec(cfg config.Config) *token.Codec {
	return token.NewCodec(cfg.SigningSecret, cfg.Issuer)
}

func newMailSender(logger *zap.Logger) mail.Sender {
	return mail.NewLogSender(logger)
}

func newMetrics() (*metrics.Collector, metrics.Recorder) {
	collector := metrics.NewCollector()
	return collector, collector
}

func newRateLimiter(cfg config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newDiscoveryService(cfg config.Config) *service.DiscoveryService {
	return service.NewDiscoveryService(cfg.Issuer)
}

func newAuthMiddleware(sessions *service.SessionService) *middleware.Auth {
	return &middleware.Auth{Sessions: sessions}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
