// Command server runs the MealMate HTTP API.
//
// Configuration comes from the environment (optionally seeded from a .env
// file). The server migrates the SQLite schema on start, connects to Redis
// when REDIS_URL is set, and shuts down gracefully on SIGINT/SIGTERM.
//
//	@title			MealMate API
//	@version		1.0
//	@description	Meal companion matching and meetup admission service.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-mealmate-backend/internal/cache"
	"github.com/tbourn/go-mealmate-backend/internal/config"
	httpapi "github.com/tbourn/go-mealmate-backend/internal/http"
	"github.com/tbourn/go-mealmate-backend/internal/observability"
	"github.com/tbourn/go-mealmate-backend/internal/repo"
	"github.com/tbourn/go-mealmate-backend/internal/services"
	"github.com/tbourn/go-mealmate-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if !sysutil.IsTruthy(os.Getenv("DOTENV_DISABLE")) {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()
	}

	cfg := config.MustLoad()

	appVersion := sysutil.ResolveVersion(version)
	sysutil.SetupLogging(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
		Version: appVersion,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	rankCache, closeCache := openCache(ctx, cfg.Redis)
	defer closeCache()

	go purgeRetryKeys(ctx, db, time.Hour)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg, rankCache)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", appVersion).
			Str("base_path", cfg.APIBasePath).
			Bool("cache", rankCache != nil).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// purgeRetryKeys drops expired join-request retry keys every interval until
// ctx is done.
func purgeRetryKeys(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge retry keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged expired retry keys")
			}
		}
	}
}

// openCache connects to Redis when configured. Any failure leaves the
// service running without a cache.
func openCache(ctx context.Context, rc config.RedisConfig) (services.RankCache, func()) {
	noop := func() {}
	if rc.Addr == "" {
		return nil, noop
	}
	rdb := cache.NewClient(cache.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	rankCache := cache.NewRankCache(rdb, rc.Prefix)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rankCache.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("addr", rc.Addr).Msg("redis unavailable, recommendations will not be cached")
		_ = rdb.Close()
		return nil, noop
	}
	return rankCache, func() { _ = rdb.Close() }
}
