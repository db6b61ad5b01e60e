package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaydb/remotestore/internal/localstore"
	"github.com/relaydb/remotestore/internal/logging"
	"github.com/relaydb/remotestore/internal/remotestore"
	"github.com/relaydb/remotestore/internal/syncengine"
	"github.com/relaydb/remotestore/internal/transport/wsdatastore"
)

func main() {
	// 1. Load Configuration
	cfg := loadDemoConfig()
	log.Println("Starting Remote Store demo...")

	if cfg.Backend.URL == "" {
		log.Fatal("backend.url is required")
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	// 2. Start the bundled reference backend (see internal/transport/wsdatastore/server.go)
	// so this binary can run a whole Watch+Write round trip with no external
	// dependency. A real deployment would point cfg.Backend.URL at an actual
	// datastore and skip this block.
	mux := http.NewServeMux()
	mux.Handle("/ws", wsdatastore.NewServer(logger))
	backendServer := &http.Server{Addr: cfg.Backend.ListenAddr, Handler: mux}
	go func() {
		logger.Info("bundled backend listening", "addr", cfg.Backend.ListenAddr)
		if err := backendServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("bundled backend failed: %v", err)
		}
	}()

	// 3. Construct collaborators
	local := localstore.New()
	engine := syncengine.New(logger, local)
	datastore := wsdatastore.New(logger, cfg.Backend.URL, nil, cfg.Backend.PermanentErrorCodes, cfg.Backend.PermanentWriteErrorCodes)

	store := remotestore.New(logger, cfg.Remote, datastore, local, engine)
	datastore.SetEnqueue(store.Enqueue)

	// 4. Start the Remote Store
	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startCancel()
	if err := store.Start(startCtx); err != nil {
		log.Fatalf("Failed to start remote store: %v", err)
	}
	logger.Info("remote store started", "backend", cfg.Backend.URL)

	store.EnableNetwork()

	// Exercise both streams: one listen target and one pending mutation.
	if err := store.Listen(remotestore.QueryData{
		TargetID:        1,
		Query:           remotestore.Query{Collection: "demo"},
		SnapshotVersion: remotestore.SnapshotVersionNone,
		SequenceNumber:  1,
		Purpose:         remotestore.PurposeListen,
	}); err != nil {
		log.Fatalf("invalid listen query: %v", err)
	}
	local.Enqueue(remotestore.MutationBatch{
		BatchID: 1,
		Mutations: []remotestore.Mutation{
			{DocumentKey: "demo/1", Kind: "set", Fields: map[string]interface{}{"hello": "world"}},
		},
	})
	store.FillWritePipeline()

	// 5. Wait for Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down remote store demo")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := store.Shutdown(shutdownCtx); err != nil {
		logger.Error("remote store shutdown failed", "error", err)
	}
	if err := backendServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("bundled backend shutdown failed", "error", err)
	}

	if err := logging.Shutdown(); err != nil {
		log.Printf("Warning: Error closing log files: %v", err)
	}
	log.Println("Remote Store demo exiting")
}
