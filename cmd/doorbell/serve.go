package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/config"
	"github.com/davicafu/doorbell/internal/event/application"
	eventHttp "github.com/davicafu/doorbell/internal/event/infra/inbound/http"
	"github.com/davicafu/doorbell/internal/event/infra/inbound/ws"
	"github.com/davicafu/doorbell/internal/event/infra/outbound/analytics/clickhouse"
	eventCache "github.com/davicafu/doorbell/internal/event/infra/outbound/cache"
	"github.com/davicafu/doorbell/internal/event/infra/outbound/sinks"
	"github.com/davicafu/doorbell/internal/live"
	sharedCache "github.com/davicafu/doorbell/shared/platform/cache"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the live channel",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------- Store ----------------
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// ---------------- Cache ----------------
	var cacheInstance sharedCache.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if rc, err := eventCache.NewRedisEventCache(ctx, rdb, eventCache.DefaultNamespace, cfg.CacheTTL); err != nil {
			log.Warn("Redis unavailable, using in-memory cache", zap.Error(err))
		} else {
			cacheInstance = rc
			log.Info("Redis connected, cache enabled", zap.String("addr", cfg.RedisAddr))
		}
	}
	if cacheInstance == nil {
		mem := eventCache.NewInMemoryEventCache(cfg.CacheTTL, 3*cfg.CacheTTL, 64<<20)
		defer mem.Stop()
		cacheInstance = mem
	}

	// ---------------- Live ----------------
	registry := live.NewRegistry(live.RegistryConfig{
		QueueSize:    cfg.LiveQueueSize,
		WriteTimeout: cfg.LiveWriteTimeout,
	}, log)
	broadcaster := live.NewBroadcaster(registry, live.BroadcasterConfig{
		InboxSize:       cfg.BroadcastInboxSize,
		EvictAfterDrops: cfg.LiveEvictAfterDrops,
	}, log)
	// el dispatcher sobrevive a la señal: se detiene a mano tras vaciar el servidor
	broadcaster.Start(context.WithoutCancel(ctx))

	registerSinks(ctx, cfg, registry)

	// --------------- Servicios --------------
	ingestService := application.NewIngestService(store, broadcaster, cacheInstance, cfg.MaxPayloadBytes, log)
	queryService := application.NewQueryService(store, cacheInstance, log)

	// ---------------- HTTP ----------------
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), eventHttp.CORS())

	eventHttp.RegisterEventRoutes(router, eventHttp.NewEventHandler(ingestService, queryService, log))
	eventHttp.RegisterLegacyRoutes(router, eventHttp.NewLegacyHandler(ingestService, queryService, log))
	eventHttp.RegisterHealthRoute(router, registry.Viewers, registry.Sinks)
	ws.RegisterLiveRoute(router, ws.NewLiveHandler(registry, cfg.LivePingInterval, log))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			broadcaster.Stop()
			registry.Close()
			return err
		}
	case <-ctx.Done():
	}

	// ---------------- Shutdown ----------------
	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	// primero se reparte lo pendiente, después se cierran los suscriptores
	broadcaster.Stop()
	registry.Close()
	log.Info("Server stopped", zap.Int64("dropped_notifications", broadcaster.Dropped()))
	return nil
}

// registerSinks da de alta como suscriptores los sinks configurados.
// Un sink que no arranca se registra en el log y el servidor sigue sin él.
func registerSinks(ctx context.Context, cfg *config.Config, registry *live.Registry) {
	if len(cfg.KafkaBrokers) > 0 {
		register(registry, "kafka", sinks.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log))
	}

	if cfg.NATSURL != "" {
		sink, err := sinks.NewNATSSink(cfg.NATSURL, cfg.NATSSubject, log)
		if err != nil {
			log.Warn("NATS sink disabled", zap.Error(err))
		} else {
			register(registry, "nats", sink)
		}
	}

	if cfg.ClickHouseAddr != "" {
		db, err := clickhouse.OpenDB(cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			log.Warn("ClickHouse sink disabled", zap.Error(err))
			return
		}
		eventLog := clickhouse.NewEventLog(db, log)
		if err := eventLog.InitSchema(ctx); err != nil {
			log.Warn("ClickHouse sink disabled", zap.Error(err))
			_ = eventLog.Close()
			return
		}
		register(registry, "clickhouse", eventLog)
	}
}

func register(registry *live.Registry, name string, t live.Transport) {
	sub, err := registry.RegisterSink(t)
	if err != nil {
		log.Warn("Sink not registered", zap.String("sink", name), zap.Error(err))
		return
	}
	log.Info("Sink registered", zap.String("sink", name), zap.String("connection_id", sub.ID()))
}
