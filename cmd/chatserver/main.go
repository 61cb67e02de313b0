// Command chatserver starts the chat service: it loads configuration, wires
// persistence, security, the connection hub, and the domain orchestrator,
// then serves the REST and WebSocket transports until signaled to stop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alitto/pond"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatcore/server/internal/blobstore"
	"github.com/chatcore/server/internal/blobstore/local"
	"github.com/chatcore/server/internal/blobstore/s3store"
	"github.com/chatcore/server/internal/config"
	"github.com/chatcore/server/internal/hub"
	"github.com/chatcore/server/internal/orchestrator"
	"github.com/chatcore/server/internal/persistence"
	"github.com/chatcore/server/internal/persistence/memory"
	"github.com/chatcore/server/internal/persistence/postgres"
	"github.com/chatcore/server/internal/persistence/rediscache"
	"github.com/chatcore/server/internal/security"
	transporthttp "github.com/chatcore/server/internal/transport/http"
	"github.com/chatcore/server/internal/transport/ws"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "chatcore").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("configuration invalid")
		os.Exit(2)
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize persistence")
	}
	defer store.Close()

	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob storage")
	}

	hashPool := pond.New(4, 256)
	defer hashPool.StopAndWait()

	sec, err := security.New(cfg, hashPool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize security service")
	}

	connHub := hub.New(time.Duration(cfg.WebsocketPingInterval) * time.Second)
	go connHub.Run()
	defer connHub.Stop()

	orch := orchestrator.New(store, sec, connHub, blobs)

	router := mux.NewRouter()

	wsServer := ws.New(connHub, orch, sec, cfg.WebsocketOutboundQueueDepth)
	wsServer.Register(router)

	httpServer := transporthttp.New(orch, sec)
	router.PathPrefix("/").Handler(httpServer.Handler())

	srv := &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting chat server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func newStore(cfg *config.Config) (persistence.Store, error) {
	var store persistence.Store
	switch cfg.DatabaseType {
	case config.DatabaseSQL:
		pg, err := postgres.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = pg
	default:
		store = memory.New()
	}

	if cfg.RedisURL != "" {
		cached, err := rediscache.New(store, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return cached, nil
	}
	return store, nil
}

func newBlobStore(cfg *config.Config) (blobstore.Store, error) {
	if cfg.StorageType == config.StorageS3 {
		return s3store.New(cfg.S3Bucket, cfg.S3Region)
	}
	return local.New(cfg.StoragePath)
}
