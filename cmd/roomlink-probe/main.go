// roomlink-probe joins a room and logs everything the bridge reports.
// It exists to exercise a bridge deployment end to end: auth token
// exchange, join, peer and track updates, messages and the shared
// session store.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomlink/internal/auth"
	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/internal/core/session"
	localbridge "roomlink/internal/infrastructure/bridge/local"
	"roomlink/internal/infrastructure/bridge/local/store"
	wsbridge "roomlink/internal/infrastructure/bridge/ws"
	"roomlink/internal/infrastructure/monitoring"
	"roomlink/pkg/config"
	"roomlink/pkg/logger"
	"roomlink/pkg/retry"
	"roomlink/pkg/tracing"
)

type bridgeConn interface {
	ports.Bridge
	ports.EventSource
	Close() error
}

func main() {
	roomCode := flag.String("room", "lobby", "room code to join")
	username := flag.String("name", "probe", "peer name")
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
		ServiceName: "roomlink-probe",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to init tracing", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := monitoring.NewHealthChecker()
	metrics := monitoring.NewPrometheusCollector()

	var bridge bridgeConn
	switch cfg.Bridge.Mode {
	case "ws":
		wsCfg := wsbridge.Config{
			URL:          cfg.Bridge.URL,
			WriteTimeout: cfg.Bridge.WriteTimeout,
			AckTimeout:   cfg.Bridge.AckTimeout,
			PingInterval: cfg.Bridge.PingInterval,
			PongTimeout:  cfg.Bridge.PongTimeout,
			SendRate:     cfg.Bridge.SendRate,
			SendBurst:    cfg.Bridge.SendBurst,
			Retry: retry.Config{
				Enabled:      cfg.Retry.Enabled,
				MaxAttempts:  cfg.Retry.MaxAttempts,
				InitialDelay: cfg.Retry.InitialDelay,
				MaxDelay:     cfg.Retry.MaxDelay,
				Multiplier:   cfg.Retry.Multiplier,
				Jitter:       true,
			},
		}
		bridge, err = wsbridge.Dial(ctx, wsCfg, log)
		if err != nil {
			log.Fatalw("failed to dial bridge", "url", cfg.Bridge.URL, "error", err)
		}
	default:
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
		bridge = localbridge.New(kv, cfg.Emulator.JWTSecret, log)
	}
	defer bridge.Close()

	var monitoringSrv *http.Server
	if cfg.Monitoring.Enabled {
		router := monitoring.NewRouter(health, cfg.Logging.Level == "debug")
		monitoringSrv = &http.Server{Addr: cfg.Monitoring.Address, Handler: router}
		go func() {
			log.Infow("monitoring server listening", "address", cfg.Monitoring.Address)
			if err := monitoringSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("monitoring server failed", "error", err)
			}
		}()
	}

	sess := session.New(bridge, bridge, metrics, log)
	registerDelegates(sess, log)

	tokens := auth.NewTokenProvider(sess, time.Hour)
	defer tokens.Close()

	token, err := tokens.Token(ctx, *roomCode, *username)
	if err != nil {
		log.Fatalw("failed to fetch auth token", "room", *roomCode, "error", err)
	}

	if err := sess.Join(ctx, session.JoinConfig{Username: *username, AuthToken: token}); err != nil {
		log.Fatalw("failed to join room", "room", *roomCode, "error", err)
	}
	log.Infow("joined room", "room", *roomCode, "session", sess.ID())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infow("received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := sess.Leave(shutdownCtx); err != nil {
		log.Warnw("leave failed", "error", err)
	}
	if err := sess.Destroy(shutdownCtx); err != nil {
		log.Warnw("destroy failed", "error", err)
	}

	if monitoringSrv != nil {
		if err := monitoringSrv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during monitoring server shutdown", "error", err)
		}
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracing", "error", err)
	}

	log.Info("probe stopped")
}

func registerDelegates(sess *session.Session, log interface {
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
}) {
	logEvent := func(ev session.Event) {
		switch {
		case ev.Exception != nil:
			log.Warnw("bridge error", "event", ev.Type, "code", ev.Exception.Code, "description", ev.Exception.Description)
		case ev.Peer != nil:
			log.Infow("event", "type", ev.Type, "update", ev.UpdateKind, "peer", ev.Peer.PeerID, "name", ev.Peer.Name)
		case ev.Room != nil:
			log.Infow("event", "type", ev.Type, "update", ev.RoomUpdate, "room", ev.Room.ID)
		case ev.Message != nil:
			from := ""
			if ev.Message.Sender != nil {
				from = ev.Message.Sender.Name
			}
			log.Infow("message", "from", from, "text", ev.Message.Payload)
		default:
			log.Infow("event", "type", ev.Type)
		}
	}

	for _, eventType := range []domain.EventType{
		domain.EventJoin,
		domain.EventRoomUpdate,
		domain.EventPeerUpdate,
		domain.EventTrackUpdate,
		domain.EventError,
		domain.EventMessage,
		domain.EventRemovedFromRoom,
		domain.EventSessionStoreAvailable,
	} {
		if err := sess.AddEventListener(eventType, logEvent); err != nil {
			log.Warnw("failed to register listener", "event", eventType, "error", err)
		}
	}
}
