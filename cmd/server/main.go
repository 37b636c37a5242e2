package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/auth"
	"github.com/teamgrid/realtime/internal/config"
	"github.com/teamgrid/realtime/internal/event"
	"github.com/teamgrid/realtime/internal/eventstore"
	"github.com/teamgrid/realtime/internal/gateway"
	"github.com/teamgrid/realtime/internal/ingest"
	"github.com/teamgrid/realtime/internal/notification"
	"github.com/teamgrid/realtime/internal/observability"
	"github.com/teamgrid/realtime/internal/orchestrator"
	"github.com/teamgrid/realtime/internal/presence"
	"github.com/teamgrid/realtime/internal/ratelimit"
	"github.com/teamgrid/realtime/internal/repository"
	"github.com/teamgrid/realtime/internal/repository/postgres"
	"github.com/teamgrid/realtime/internal/room"
)

func main() {
	cfg := config.Load()

	observability.InitLogger(cfg.ServiceName)
	log := observability.Log

	ctx, cancel := setupSignalHandler(log)
	defer cancel()

	instanceID := getOrGenerateInstanceID(cfg.InstanceID)

	// Event plumbing
	bus := event.NewBus(log)
	store := eventstore.New(log)
	store.RegisterProjection(eventstore.NewConversationActivity())
	eventstore.AttachJournal(bus, store, log)

	registry := event.NewRegistry(log)
	orch := orchestrator.New(bus, registry, orchestrator.StaticScorer{
		Decision: orchestrator.RouteDecision{
			TargetHandlers: []string{"default"},
			Priority:       1,
			Confidence:     0.5,
		},
	}, log)
	orch.Attach()

	// Gateway state
	pres := presence.NewRegistry()
	rooms := room.NewDirectory()
	limits := ratelimit.New(ratelimit.DefaultQuotas())
	verifier := auth.NewHS256Verifier(cfg.JWTSecret)

	var mirror *presence.Mirror
	if cfg.RedisEnabled {
		mirror = presence.NewMirror(initRedis(ctx, cfg.RedisAddr, log), instanceID)
	}

	gw := gateway.New(pres, rooms, limits, bus, verifier, log, gateway.Options{
		Mirror: mirror,
	})
	wsHandler := gateway.NewHandler(gw, mirror, log)

	// Optional collaborators
	var repo *postgres.MessageRepository
	if cfg.PersistEnabled && cfg.PostgresURL != "" {
		db, err := postgres.NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer db.Close()
		repo = postgres.NewMessageRepository(db)
		repository.NewPersister(repo, log).Attach(registry, 10)
	}

	if cfg.KafkaEnabled {
		sink := notification.NewKafkaSink(cfg.KafkaBrokers, cfg.NotifTopic)
		defer sink.Close()

		// Offline delivery needs the durable participant set; without a
		// store it degrades to the live room snapshot.
		var participants notification.ParticipantSource = notification.NewRoomParticipants(rooms)
		if repo != nil {
			participants = repo
		}
		notification.NewNotifier(sink, pres, participants, log).Attach(registry, 5)

		consumer, err := ingest.New(cfg.KafkaBrokers, cfg.IngestTopics, cfg.IngestGroup, bus, log)
		if err != nil {
			log.Fatal("failed to create ingest consumer", zap.Error(err))
		}
		consumer.Start(ctx)
		defer consumer.Close()
	}

	// Servers
	obsSrv := initObservabilityServer(cfg)
	mainSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: initMainRouter(wsHandler)}

	startServers(cfg, obsSrv, mainSrv, log)

	<-ctx.Done()
	performGracefulShutdown(obsSrv, mainSrv, log)
}

func setupSignalHandler(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
		cancel()
	}()
	return ctx, cancel
}

func getOrGenerateInstanceID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func initRedis(ctx context.Context, addr string, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	return client
}

func initObservabilityServer(cfg *config.Config) *http.Server {
	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Get("/health/live", observability.HealthLiveHandler)
	mux.Get("/health/ready", observability.HealthReadyHandler())
	return &http.Server{Addr: cfg.ObsHTTPAddr, Handler: mux}
}

func initMainRouter(wsHandler *gateway.Handler) http.Handler {
	mux := chi.NewRouter()
	// Connection attempts are limited per source IP; frame-level limits live
	// in the gateway.
	mux.With(httprate.LimitByIP(30, time.Minute)).Handle("/ws", wsHandler)
	return mux
}

func startServers(cfg *config.Config, obsSrv, mainSrv *http.Server, log *zap.Logger) {
	go func() {
		log.Info("starting observability server", zap.String("addr", cfg.ObsHTTPAddr))
		if err := obsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("observability server error", zap.Error(err))
		}
	}()
	go func() {
		log.Info("starting gateway server", zap.String("addr", cfg.HTTPAddr))
		if err := mainSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("gateway server error", zap.Error(err))
		}
	}()
}

func performGracefulShutdown(obs, main *http.Server, log *zap.Logger) {
	log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := main.Shutdown(ctx); err != nil {
		log.Error("error during gateway server shutdown", zap.Error(err))
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Error("error during observability server shutdown", zap.Error(err))
	}
	log.Info("shutdown complete, exiting")
}
