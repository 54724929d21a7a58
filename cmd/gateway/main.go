package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/dbconfig"
	"github.com/scrivano/boardsync/internal/gateway"
	"github.com/scrivano/boardsync/internal/persist"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	port := getEnv("GATEWAY_PORT", "8080")
	natsURL := getEnv("NATS_URL", "nats://localhost:4222")
	enableBridge := getEnvBool("ENABLE_BRIDGE", false)
	enablePersistence := getEnvBool("ENABLE_PERSISTENCE", true)
	instanceID := uuid.New().String()

	clock := clockwork.NewRealClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info().
		Str("instance_id", instanceID).
		Str("port", port).
		Bool("bridge", enableBridge).
		Bool("persistence", enablePersistence).
		Msg("starting board gateway")

	// Persistence is optional; without it the gateway holds sessions in
	// memory only.
	var repo *persist.Repository
	var loader gateway.SnapshotLoader
	if enablePersistence {
		dbCfg := dbconfig.NewConfigFromEnv()
		pool, err := pgxpool.New(ctx, dbCfg.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create database pool")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		repo = persist.NewRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure snapshot schema")
		}
		loader = repo
		log.Info().Str("database", dbCfg.Database).Msg("snapshot persistence enabled")
	}

	config := gateway.Config{
		Connection:   gateway.DefaultConnectionConfig(),
		Bridge:       gateway.DefaultBridgeConfig(),
		EnableBridge: enableBridge,
	}
	config.Bridge.URL = natsURL

	// No authorizer here: session membership is checked upstream by the
	// identity service, the gateway runs in dev-admit mode when deployed
	// behind it.
	service, err := gateway.NewService(config, nil, loader, clock, instanceID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      c.Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	if repo != nil {
		saver := persist.NewSaver(service.Hub(), repo, clock, persist.DefaultInterval)
		go saver.Start(ctx)
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Cancelling the root context stops the hub, bridge and saver; the
	// saver does a final flush on its way out.
	cancel()
	time.Sleep(1 * time.Second)

	log.Info().Msg("board gateway shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
