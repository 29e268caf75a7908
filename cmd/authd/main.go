package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"authd/internal/attest"
	"authd/internal/config"
	"authd/internal/httpapi"
	"authd/internal/kv"
	"authd/internal/mailer"
	"authd/internal/ratelimit"
	"authd/internal/session"
	"authd/internal/storage"
	"authd/internal/token"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	store := kv.NewStore(redisClient)

	tokens, err := token.NewService(cfg.JWTSecrets(), cfg.AccessTokenTTL, store)
	if err != nil {
		return err
	}
	sessions, err := session.NewManager(storage.NewPostgresRefreshTokens(db), cfg.RefreshTokenTTL)
	if err != nil {
		return err
	}

	smtp := mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	mail := mailer.NewService(smtp, store, cfg.EmailVerificationCodeLimit, cfg.AppBaseURL)

	srv := httpapi.NewServer(httpapi.Options{
		Log:               log,
		Users:             storage.NewPostgresUsers(db),
		Sessions:          sessions,
		Tokens:            tokens,
		Store:             store,
		Mail:              mail,
		Attester:          attest.NewService(store, attest.ECDSAVerifier{}, cfg.IsLocal()),
		Limiter:           ratelimit.NewLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow),
		UserLimiter:       ratelimit.NewLimiter(redisClient, cfg.RateLimitUserRequests, cfg.RateLimitWindow),
		Lockout:           ratelimit.NewLockout(redisClient, cfg.LoginLockoutThreshold, cfg.LoginLockoutWindow),
		CORSOrigin:        cfg.CORSOrigin,
		SecureCookies:     !cfg.IsLocal(),
		ResetRequestLimit: cfg.PasswordResetRequestLimit,
		CodeAttemptLimit:  cfg.EmailVerificationCodeLimit,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "environment", cfg.Environment)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
