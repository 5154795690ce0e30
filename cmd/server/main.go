package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"yuzu/receptionist/internal/api"
	"yuzu/receptionist/internal/config"
	"yuzu/receptionist/internal/dialogue"
	"yuzu/receptionist/internal/events"
	"yuzu/receptionist/internal/health"
	"yuzu/receptionist/internal/llm"
	"yuzu/receptionist/internal/logging"
	"yuzu/receptionist/internal/maps"
	"yuzu/receptionist/internal/monitor"
	"yuzu/receptionist/internal/sms"
	"yuzu/receptionist/internal/store"
	"yuzu/receptionist/internal/types"
)

var checkOnly = flag.Bool("check", false, "run deep health checks against every upstream and exit")

func main() {
	flag.Parse()
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := logging.New(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	st, pinger, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("session store", zap.Error(err))
	}
	checker := health.NewChecker(cfg, pinger)

	if *checkOnly {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		status := checker.Deep(ctx)
		fmt.Print(status.String())
		if !status.OK {
			os.Exit(1)
		}
		return
	}

	ev := events.NewLog()
	hub := monitor.NewHub()
	ev.Subscribe(hub.Publish)
	ev.Subscribe(func(e types.Event) {
		logger.Debug("event", zap.String("call_sid", e.CallSid), zap.String("type", e.Type))
	})

	ctl := dialogue.NewController(cfg, st, ev,
		maps.NewClient(cfg.Maps.APIKey, cfg.Maps.BaseURL),
		llm.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model),
		sms.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber, cfg.Upstream.Timeout),
		logger.Named("dialogue"),
	)

	h := api.NewHandlers(cfg, ctl, st, ev, checker, logger.Named("api"))
	mon := monitor.NewServer(hub, logger.Named("monitor"))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(logger.Named("http"), api.NewRouter(h, mon.HandleWS)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// gRPC health
	gs := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	go health.Sync(ctx, hs, checker, 10*time.Second)
	go func() {
		l, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
		if err != nil {
			logger.Error("grpc listen", zap.Error(err))
			return
		}
		logger.Info("grpc health listening", zap.String("addr", l.Addr().String()))
		if err := gs.Serve(l); err != nil {
			logger.Error("grpc serve", zap.Error(err))
		}
	}()

	if cfg.Session.IdleTTL > 0 {
		go sweep(ctx, ctl, cfg.Session.IdleTTL, logger)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received; stopping server")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		gs.GracefulStop()
	}()

	logger.Info("server starting",
		zap.String("addr", addr),
		zap.String("session_backend", cfg.Session.Backend),
		zap.String("delivery", cfg.Directions.Delivery),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func openStore(cfg config.Config, logger *zap.Logger) (store.Store, health.Pinger, error) {
	switch cfg.Session.Backend {
	case "", "memory":
		return store.NewMemory(), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		rs := store.NewRedis(client, store.WithTTL(cfg.Session.IdleTTL))
		if err := rs.Ping(ctx); err != nil {
			logger.Warn("redis not reachable at startup", zap.String("addr", cfg.Session.RedisAddr), zap.Error(err))
		}
		return rs, rs, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// sweep evicts sessions and event logs of calls that never reported a
// terminal status.
func sweep(ctx context.Context, ctl *dialogue.Controller, idle time.Duration, logger *zap.Logger) {
	interval := idle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sessions, logs, err := ctl.ExpireIdle(ctx, idle)
			if err != nil {
				logger.Warn("idle sweep failed", zap.Error(err))
			}
			if sessions > 0 || logs > 0 {
				logger.Info("idle calls evicted", zap.Int("sessions", sessions), zap.Int("event_logs", logs))
			}
		}
	}
}

func logMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
