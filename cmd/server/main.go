package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"did-registry/internal/events"
	jwttoken "did-registry/internal/jwt_token"
	"did-registry/internal/platform/config"
	"did-registry/internal/platform/httpserver"
	"did-registry/internal/platform/logger"
	platformredis "did-registry/internal/platform/redis"
	registrycache "did-registry/internal/registry/cache"
	registryhandler "did-registry/internal/registry/handler"
	registrymetrics "did-registry/internal/registry/metrics"
	registryservice "did-registry/internal/registry/service"
	registrystore "did-registry/internal/registry/store"
	httptransport "did-registry/internal/transport/http"
)

// main wires dependencies by configuration and keeps the server lifecycle
// small. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when configured, in-memory otherwise.
	var (
		recordStore registryservice.Store
		eventStore  events.Store
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pg := registrystore.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("registry schema", "error", err)
			os.Exit(1)
		}
		pgEvents := events.NewPostgresStore(db)
		if err := pgEvents.EnsureSchema(ctx); err != nil {
			log.Error("events schema", "error", err)
			os.Exit(1)
		}
		recordStore = pg
		eventStore = pgEvents
	} else {
		recordStore = registrystore.NewInMemory()
		eventStore = events.NewInMemoryStore()
	}

	// Event publisher, with a Kafka sink when seeds are configured.
	publisherOpts := []events.Option{events.WithLogger(log)}
	if len(cfg.KafkaSeeds) > 0 {
		sink, err := events.NewKafkaSink(ctx, cfg.KafkaSeeds, cfg.KafkaTopic)
		if err != nil {
			log.Error("kafka sink", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		publisherOpts = append(publisherOpts, events.WithSink(sink))
		if cfg.EventBuffer > 0 {
			publisherOpts = append(publisherOpts, events.WithAsyncBuffer(cfg.EventBuffer))
		}
	}
	publisher := events.NewPublisher(eventStore, publisherOpts...)
	defer publisher.Close()

	// Optional Redis resolve cache.
	serviceOpts := []registryservice.Option{
		registryservice.WithLogger(log),
		registryservice.WithMetrics(registrymetrics.New()),
	}
	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(config.DefaultRedisConfig(cfg.RedisURL))
		if err != nil {
			log.Error("redis client", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		serviceOpts = append(serviceOpts,
			registryservice.WithResolveCache(registrycache.New(redisClient.Client, config.ResolveCacheTTL)))
	}

	registry := registryservice.New(recordStore, publisher, serviceOpts...)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	handler := registryhandler.New(registry, log, jwttoken.NewJWTServiceAdapter(jwtService))
	router := httptransport.NewRouter(handler, log)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting did-registry", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return httpserver.Shutdown(srv)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
