package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gifwars/internal/clock"
	"gifwars/internal/config"
	"gifwars/internal/events"
	"gifwars/internal/game"
	"gifwars/internal/gateway"
	"gifwars/internal/round"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	repo, cleanup, err := setupStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up game store")
	}
	defer cleanup()

	gwCfg := gateway.Config{Connection: gateway.DefaultConnectionConfig()}
	if cfg.NATS.Enabled {
		consumer := gateway.DefaultConsumerConfig()
		consumer.URL = cfg.NATS.URL
		consumer.StreamName = cfg.NATS.StreamName
		consumer.SubjectFilter = cfg.NATS.SubjectPrefix + ".>"
		gwCfg.Consumer = &consumer
	}

	gw, err := gateway.NewService(gwCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway")
	}

	// Engine events go to JetStream when the broker is enabled; the
	// gateway consumes them back off the stream. Without a broker the
	// gateway is fed directly through its bridge publisher.
	var publisher events.Publisher
	if cfg.NATS.Enabled {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.StreamName = cfg.NATS.StreamName
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		jsCfg.MaxAge = cfg.GameTTL

		js, err := events.NewJetStreamPublisher(jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect publisher to NATS")
		}
		defer js.Close()
		publisher = js
	} else {
		publisher = events.Fanout{events.NewLogPublisher(log.Logger), gw.Bridge()}
	}

	timers := round.TimerConfig{
		SubmissionMinutes: cfg.Timers.SubmissionMinutes,
		SubmissionSeconds: cfg.Timers.SubmissionSeconds,
		VoteMinutes:       cfg.Timers.VoteMinutes,
		VoteSeconds:       cfg.Timers.VoteSeconds,
	}
	registry := clock.NewRegistry(clockwork.NewRealClock())
	orch := round.NewOrchestrator(repo, publisher, registry, timers)
	defer orch.Shutdown()

	go sweepExpiredGames(ctx, repo, cfg.GameTTL)

	mux := http.NewServeMux()
	gw.RegisterRoutes(mux)
	gateway.NewAPI(orch).RegisterRoutes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := gw.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Str("store", cfg.Store).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}

func setupStore(ctx context.Context, cfg config.Config) (game.Repository, func(), error) {
	if cfg.Store == "memory" {
		log.Info().Msg("using in-memory game store")
		return game.NewMemoryRepository(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := game.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info().
		Str("host", cfg.Postgres.Host).
		Str("database", cfg.Postgres.Database).
		Msg("connected to Postgres game store")
	return repo, pool.Close, nil
}

// sweepExpiredGames removes games older than the TTL every few minutes.
func sweepExpiredGames(ctx context.Context, repo game.Repository, ttl time.Duration) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.DeleteExpired(ctx, time.Now().UTC().Add(-ttl))
			if err != nil {
				log.Error().Err(err).Msg("failed to sweep expired games")
				continue
			}
			if deleted > 0 {
				log.Info().Int64("deleted", deleted).Msg("swept expired games")
			}
		}
	}
}
