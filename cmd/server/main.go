package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	echoapi "github.com/nimbusid/oauthd/api/echo"
	"github.com/nimbusid/oauthd/cache"
	"github.com/nimbusid/oauthd/config"
	"github.com/nimbusid/oauthd/domain"
	"github.com/nimbusid/oauthd/internal/audit"
	"github.com/nimbusid/oauthd/internal/metrics"
	applog "github.com/nimbusid/oauthd/log"
	"github.com/nimbusid/oauthd/mongodb"
	"github.com/nimbusid/oauthd/ratelimit"
	"github.com/nimbusid/oauthd/services"
	"github.com/nimbusid/oauthd/websession"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applog.Setup(cfg.LogLevel, cfg.LogPretty)

	domain.DefaultRateLimitPolicy = domain.RateLimitPolicy{
		MaxRequests: cfg.RateLimitMaxRequests,
		Window:      time.Duration(cfg.RateLimitWindowSec) * time.Second,
		Enabled:     cfg.RateLimitMaxRequests > 0,
	}

	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db", cfg.MongoDBName).
		Str("issuer_domain", cfg.IssuerDomain).
		Msg("Starting oauthd server")

	ctx := context.Background()
	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MongoDB connection")
	}
	db := mongodb.GetDB()

	// Repositories
	credRepo := mongodb.NewCredentialRepository(db)
	sessionRepo := mongodb.NewSessionRepository(db)
	codeRepo := mongodb.NewAuthCodeRepository(db)
	tokenRepo := mongodb.NewTokenRepository(db)
	userRepo := mongodb.NewUserRepository(db)
	secLogRepo := mongodb.NewSecurityLogRepository(db)
	usageRepo := mongodb.NewUsageStatRepository(db)
	webSessRepo := mongodb.NewWebSessionRepository(db)

	// Rate limiter: Redis when configured, otherwise per-process memory.
	var limiter ratelimit.Limiter
	var memLimiter *ratelimit.MemoryLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		limiter = ratelimit.NewRedisLimiter(rdb, "oauthd")
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis rate limiter")
	} else {
		memLimiter = ratelimit.NewMemoryLimiter(ratelimit.SystemClock(), time.Minute)
		limiter = memLimiter
		log.Info().Msg("Using in-memory rate limiter")
	}

	metrics.InitCustomMetrics(prometheus.DefaultRegisterer)

	recorder := audit.NewRecorder(secLogRepo)
	tokenCache := cache.NewAccessTokenCache(domain.AccessTokenTTL)
	defer tokenCache.Close()

	flowSvc := services.NewFlowService(credRepo, sessionRepo, codeRepo, userRepo, usageRepo,
		limiter, recorder, cfg.IssuerDomain, cfg.AuthPageURL)
	tokenSvc := services.NewTokenService(credRepo, sessionRepo, codeRepo, tokenRepo, usageRepo,
		limiter, recorder, tokenCache)
	userInfoSvc := services.NewUserInfoService(credRepo, tokenRepo, userRepo, usageRepo,
		limiter, recorder, tokenCache)
	webSvc := websession.NewService(userRepo, webSessRepo)

	// Periodic cleanup of expired sessions and codes.
	cleanupDone := make(chan struct{})
	go cleanupLoop(sessionRepo, codeRepo, cleanupDone)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	oauthAPI := echoapi.NewOAuth2API(flowSvc, tokenSvc, userInfoSvc, webSvc)
	oauthAPI.RegisterRoutes(e)

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	close(cleanupDone)
	if memLimiter != nil {
		memLimiter.Close()
	}
	mongodb.CloseMongoDB(shutdownCtx)
	log.Info().Msg("Server gracefully stopped")
}

func cleanupLoop(sessions domain.SessionRepository, codes domain.AuthCodeRepository, done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			now := time.Now().UTC()
			if n, err := sessions.DeleteExpired(ctx, now); err != nil {
				log.Error().Err(err).Msg("Failed to delete expired sessions")
			} else if n > 0 {
				log.Debug().Int64("count", n).Msg("Deleted expired sessions")
			}
			if n, err := codes.DeleteExpired(ctx, now); err != nil {
				log.Error().Err(err).Msg("Failed to delete expired authorization codes")
			} else if n > 0 {
				log.Debug().Int64("count", n).Msg("Deleted expired authorization codes")
			}
			cancel()
		}
	}
}
