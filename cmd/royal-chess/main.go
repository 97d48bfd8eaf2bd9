package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Prashantpareek-dev/Royal-Chess/internal/archive"
	appcfg "github.com/Prashantpareek-dev/Royal-Chess/internal/config"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/msgcat"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/obslog"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/ratelimit"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/room"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/session"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/status"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/ws"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	ctx := context.Background()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis_url_invalid", zap.Error(err))
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis_ping_failed", zap.Error(err))
	}

	var rec archive.Recorder
	var pg *archive.PostgresRecorder
	if cfg.DatabaseURL != "" {
		pg, err = archive.NewPostgresRecorder(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive_init_failed", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("archive_schema_failed", zap.Error(err))
		}
		rec = pg
	} else {
		rec = archive.NewMemoryRecorder()
		logger.Info("archive_memory_only")
	}

	cat, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		logger.Fatal("msgcat_init_failed", zap.Error(err))
	}

	reg := room.NewRegistry(cfg.ChatHistoryLimit)
	store := session.NewTokenStore(rdb, cfg.SessionTTL)
	limiter := ratelimit.New()
	hub := ws.NewHub()

	coord := session.NewCoordinator(reg, store, hub, limiter, cat, rec, session.Config{
		GracePeriod: cfg.GracePeriod,
		ChatRule:    ratelimit.Rule{Limit: cfg.ChatRateLimit, Window: cfg.ChatRateWindow},
		ChatMaxLen:  cfg.ChatMaxLen,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(hub, coord))
	gameSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	statusSrv := status.NewServer(reg, hub)

	sweepCtx, stopSweeps := context.WithCancel(ctx)
	go runSweeps(sweepCtx, cfg, reg, store, limiter)

	go func() {
		logger.Info("ws_listen", zap.String("addr", cfg.ListenAddr))
		if err := gameSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("game_server_failed", zap.Error(err))
		}
	}()
	go func() {
		if err := statusSrv.ListenAndServe(cfg.StatusAddr); err != nil {
			logger.Fatal("status_server_failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown_start")

	stopSweeps()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = gameSrv.Shutdown(shutdownCtx)
	_ = statusSrv.Shutdown()
	if pg != nil {
		_ = pg.Close()
	}
	_ = rdb.Close()
	logger.Info("shutdown_done")
}

// runSweeps evicts idle rooms, orphaned session tokens, and stale
// rate-limit state on one shared interval.
func runSweeps(ctx context.Context, cfg *appcfg.AppConfig, reg *room.Registry, store *session.TokenStore, limiter *ratelimit.Limiter) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.SweepIdle(time.Now(), cfg.RoomIdleTTL)
			if n, err := store.SweepOrphans(ctx, reg.Has); err != nil {
				obslog.L().Warn("session_sweep_failed", zap.Error(err))
			} else if n > 0 {
				obslog.L().Info("session_sweep", zap.Int("removed", n))
			}
			limiter.Sweep(cfg.RoomIdleTTL)
		}
	}
}
