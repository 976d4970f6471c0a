package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/rideloop/gateway/internal/config"
	"github.com/rideloop/gateway/internal/events"
	"github.com/rideloop/gateway/internal/httpserver"
	"github.com/rideloop/gateway/internal/verifycache"
	"github.com/rideloop/gateway/pkg/authclient"
	"github.com/rideloop/gateway/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file, using system environment")
	}

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	backend := authclient.New(cfg.BackendURL)
	producer := events.NewProducer(cfg.KafkaBrokers, cfg.AuditTopic, logger)
	defer producer.Close()
	cache := verifycache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.VerifyCacheTTL, logger)
	defer cache.Close()

	e := echo.New()
	e.HideBanner = true
	httpserver.Timeouts(e)

	if err := httpserver.Register(e, &httpserver.Deps{
		Cfg:     cfg,
		Logger:  logger,
		Backend: backend,
		Events:  producer,
		Cache:   cache,
	}); err != nil {
		log.Fatalf("register routes: %v", err)
	}

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("start: %v", err)
		}
	}()
	logger.Info("gateway started", "addr", cfg.ListenAddr, "env", cfg.Env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
