package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"portfolio/internal/util"
	"portfolio/pkg/notify"
	"portfolio/pkg/storage"
	"portfolio/pkg/store"
	"portfolio/services/portfolio/internal/app"
	"portfolio/services/portfolio/internal/config"
	"portfolio/services/portfolio/internal/server"
	"portfolio/services/portfolio/internal/web"
)

const sessionPruneInterval = 15 * time.Minute

func main() {
	cfg, err := config.Load(os.Getenv("PORTFOLIO_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("portfolio server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) error {
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		return err
	}

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	keys := config.SessionKeys(cfg.SessionSecret)
	if len(keys) == 0 {
		logger.Warn("SESSION_SECRET not set, sessions will not survive a restart")
		keys = [][]byte{securecookie.GenerateRandomKey(32), nil}
	}
	sessions := store.NewGormSessionStore(st.DB(), sessionTTL, keys...)
	sessions.SetSecure(cfg.IsProduction())

	var (
		objects      storage.ObjectStore
		imageOrigins []string
	)
	if cfg.MinioEndpoint != "" {
		minioCfg := storage.MinioConfig{
			Endpoint:   cfg.MinioEndpoint,
			AccessKey:  cfg.MinioAccessKey,
			SecretKey:  cfg.MinioSecretKey,
			Bucket:     cfg.MinioBucket,
			UseSSL:     cfg.MinioUseSSL,
			PublicURL:  cfg.MinioPublicURL,
			PublicRead: true,
		}
		minioStore, err := storage.NewMinioStore(ctx, minioCfg)
		if err != nil {
			return fmt.Errorf("init object store: %w", err)
		}
		objects = minioStore
		if origin := storage.PublicOrigin(minioCfg); origin != "" {
			imageOrigins = append(imageOrigins, origin)
		}
	} else {
		logger.Info("object storage not configured, image uploads disabled")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
	}

	var notifier notify.Notifier = notify.Nop{}
	switch {
	case cfg.AMQPURL != "":
		amqpNotifier, err := notify.NewAMQPNotifier(notify.AMQPConfig{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange})
		if err != nil {
			return fmt.Errorf("init notifier: %w", err)
		}
		notifier = amqpNotifier
	case cfg.ContactStream != "" && redisClient != nil:
		streamNotifier, err := notify.NewRedisStreamNotifier(redisClient, cfg.ContactStream, 0)
		if err != nil {
			return fmt.Errorf("init notifier: %w", err)
		}
		notifier = streamNotifier
	}
	defer notifier.Close()

	appCore, err := app.New(app.Config{
		Store:             st,
		Objects:           objects,
		Notifier:          notifier,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		AllowedExtensions: cfg.AllowedExtensions,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	if cfg.AdminPassword != "" {
		admin, created, err := appCore.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if created {
			logger.Info("admin account created", "email", admin.Email)
		}
	} else {
		logger.Warn("ADMIN_PASSWORD not set, skipping admin seed")
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}

	serverCfg := server.Config{
		App:                       appCore,
		Sessions:                  sessions,
		CookieName:                cfg.SessionCookieName,
		LoginRateLimitPerMinute:   cfg.LoginRateLimitPerMinute,
		ContactRateLimitPerMinute: cfg.ContactRateLimitPerMinute,
		TrustedProxies:            trusted,
		CORSAllowedOrigins:        cfg.CORSAllowedOrigins,
		ImageOrigins:              imageOrigins,
		Health:                    st.Ping,
	}
	if redisClient != nil {
		serverCfg.Redis = redisClient
	} else {
		logger.Warn("REDIS_ADDR not set, rate limiting disabled")
	}
	if cfg.StaticDir != "" {
		spa, err := web.SPA(cfg.StaticDir)
		if err != nil {
			return fmt.Errorf("init static bundle: %w", err)
		}
		serverCfg.Static = spa
	} else {
		views, err := web.New(web.Config{Items: appCore, UploadsEnabled: appCore.UploadsEnabled()})
		if err != nil {
			return fmt.Errorf("init views: %w", err)
		}
		serverCfg.Views = views
	}
	httpServer, err := server.New(serverCfg)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("portfolio server listening", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(sessionPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				removed, err := sessions.DeleteExpired(gctx)
				if err != nil {
					logger.Warn("prune sessions failed", "err", err)
					continue
				}
				if removed > 0 {
					logger.Debug("pruned expired sessions", "count", removed)
				}
			}
		}
	})
	return g.Wait()
}
