// roomlink-bridged runs the in-process bridge emulator as a daemon:
// remote SDK clients dial its /bridge WebSocket endpoint while a small
// REST API mints room auth tokens and reports health.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	handlers "roomlink/internal/handlers/http"
	localbridge "roomlink/internal/infrastructure/bridge/local"
	"roomlink/internal/infrastructure/bridge/local/store"
	wsbridge "roomlink/internal/infrastructure/bridge/ws"
	"roomlink/internal/infrastructure/middleware"
	"roomlink/internal/infrastructure/monitoring"
	"roomlink/pkg/config"
	"roomlink/pkg/logger"
	"roomlink/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "roomlink-bridged",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to init tracing", "error", err)
	}

	health := monitoring.NewHealthChecker()

	var kv store.Store
	if cfg.Redis.Enabled {
		client, err := store.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		health.AddRedisCheck(client, 2*time.Second)
		kv = store.NewRedis(client, log)
	} else {
		kv = store.NewMemory()
	}
	defer kv.Close()

	backend := localbridge.New(kv, cfg.Emulator.JWTSecret, log)
	defer backend.Close()

	bridgeSrv := wsbridge.NewServer(backend, wsbridge.ServerConfig{
		ReadTimeout:  cfg.Bridge.PongTimeout,
		WriteTimeout: cfg.Bridge.WriteTimeout,
	}, log)
	defer bridgeSrv.Close()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	handlers.NewTokenHandler(cfg.Emulator.JWTSecret, cfg.Daemon.TokenTTL).SetupRoutes(router)

	router.GET("/bridge", gin.WrapF(bridgeSrv.HandleBridge))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := health.CheckAll(ctx)
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":      status.Status,
			"checks":      status.Checks,
			"connections": bridgeSrv.ConnectionCount(),
		})
	})

	srv := &http.Server{Addr: cfg.Daemon.Address, Handler: router}
	go func() {
		log.Infow("bridge daemon listening", "address", cfg.Daemon.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infow("received shutdown signal", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracing", "error", err)
	}

	log.Info("bridge daemon stopped")
}
