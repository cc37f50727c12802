package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/labdesk/labdesk/internal/config"
	"github.com/labdesk/labdesk/internal/domain/labreport"
	"github.com/labdesk/labdesk/internal/platform/auth"
	"github.com/labdesk/labdesk/internal/platform/blobstore"
	"github.com/labdesk/labdesk/internal/platform/db"
	"github.com/labdesk/labdesk/internal/platform/httpjson"
	"github.com/labdesk/labdesk/internal/platform/labsource"
	"github.com/labdesk/labdesk/internal/platform/livefeed"
	"github.com/labdesk/labdesk/internal/platform/metrics"
	"github.com/labdesk/labdesk/internal/platform/middleware"
	"github.com/labdesk/labdesk/migrations"
)

const (
	uploadPath = "/api/v1/lab-reports/upload"
	feedPath   = "/api/v1/ws"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer(autoMigrate bool) error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Database
	var pool *pgxpool.Pool
	if cfg.UsePostgres() {
		pool, err = db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		if autoMigrate {
			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				logger.Fatal().Err(err).Msg("migration failed")
			}
			logger.Info().Int("applied", count).Msg("migrations up to date")
		}
	} else {
		logger.Warn().Msg("DATABASE_URL not set, report history is kept in memory")
	}

	// Blob storage
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up blob storage")
	}

	e, err := newServer(cfg, logger, pool, blobs)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	if cfg.BlobBackend != config.BlobBackendMinio {
		return blobstore.NewInMemoryBlobStore(), nil
	}
	client, err := blobstore.NewMinioClient(blobstore.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	store := blobstore.NewMinioBlobStore(client, cfg.MinioBucket)
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// newServer wires the HTTP stack. pool may be nil, in which case history is
// kept in memory and /health/db is not served.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, blobs blobstore.BlobStore) (*echo.Echo, error) {
	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	renderer, err := newRenderer(cfg)
	if err != nil {
		return nil, err
	}
	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}
	source := labsource.NewClient(cfg.ReportSourceURL, cfg.ReportSourceTimeout)

	var repo labreport.ReportRepository
	if pool != nil {
		repo = labreport.NewReportRepoPG(pool)
	} else {
		repo = labreport.NewReportRepoMemory()
	}

	hub := livefeed.NewHub()
	svc := labreport.NewService(repo, renderer, source, resolver, blobs,
		labreport.WithMetrics(m),
		labreport.WithEvents(hub),
		labreport.WithPDFValidation(cfg.UploadValidatePDF),
	)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = httpjson.Serializer{}

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost},
		AllowHeaders:  []string{"Authorization", "Content-Type", "If-None-Match", middleware.RequestIDHeader},
		ExposeHeaders: []string{"ETag", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit, uploadPath))
	e.Use(m.Middleware())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, feedPath))

	// Auth middleware
	if cfg.AuthEnabled() {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			Secret:   []byte(cfg.AuthJWTSecret),
			Skipper:  auth.AuthSkipper,
		}))
	} else {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	e.GET("/metrics", m.Handler())

	// API
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	labreport.NewHandler(svc).RegisterRoutes(apiV1)
	livefeed.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	return e, nil
}
