package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/priyank/cloudvault/internal/backend"
	"github.com/priyank/cloudvault/internal/chunker"
	"github.com/priyank/cloudvault/internal/compress"
	"github.com/priyank/cloudvault/internal/config"
	"github.com/priyank/cloudvault/internal/coordinator"
	"github.com/priyank/cloudvault/internal/handlers"
	"github.com/priyank/cloudvault/internal/ledger"
	"github.com/priyank/cloudvault/internal/localstore"
	"github.com/priyank/cloudvault/internal/logging"
	"github.com/priyank/cloudvault/internal/tracing"
)

func main() {
	log.Println("Starting CloudVault service...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.NewDefault()
	log.Printf("Service: %s, Port: %s, Tier: %s", cfg.ServiceName, cfg.ServicePort, cfg.Tier)

	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	// Ledger database
	log.Println("Connecting to ledger database...")
	db, err := sql.Open("mysql", cfg.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open ledger database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to reach ledger database: %v", err)
	}

	// Stats cache is optional: an empty REDIS_HOST disables it.
	var cache *ledger.StatsCache
	if cfg.RedisHost != "" {
		log.Println("Connecting to Redis...")
		cache, err = ledger.NewStatsCache(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to initialize stats cache: %v", err)
		}
		defer cache.Close()
	}

	led := ledger.NewSQL(db, cache, logger)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := led.EnsureSchema(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to ensure ledger schema: %v", err)
		}
	}

	// Backend ladder, in priority order
	log.Println("Connecting to MinIO...")
	minioBackend, err := backend.NewMinioBackend(
		cfg.MinIOEndpoint,
		cfg.MinIOAccessKey,
		cfg.MinIOSecretKey,
		cfg.MinIOBucketName,
		cfg.MinIOUseSSL,
	)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO backend: %v", err)
	}

	chunkerInstance := chunker.NewChunker(cfg.GetChunkSizeBytes())
	httpBackend := backend.NewHTTPObjectBackend(
		cfg.HTTPStoreBaseURL, cfg.HTTPStoreToken, cfg.HTTPStoreBucket, chunkerInstance)

	store := localstore.New(cfg.LocalStorePath)
	defer store.Close()
	localBackend := backend.NewLocalBackend(store, logger)

	registry := backend.NewRegistry(minioBackend, httpBackend, localBackend)

	compressor := compress.New(compress.DefaultOptions(), logger)
	coord := coordinator.New(registry, led, compressor, coordinator.PolicyFromConfig(cfg), logger)

	// HTTP router
	router := mux.NewRouter()

	router.Handle("/health", handlers.NewHealthHandler(registry)).Methods("GET")

	uploadHandler := handlers.NewUploadHandler(coord, logger)
	listHandler := handlers.NewListHandler(led, logger)
	deleteHandler := handlers.NewDeleteHandler(coord, logger)
	resolveHandler := handlers.NewResolveHandler(coord, logger)
	contentHandler := handlers.NewContentHandler(led, store, coord, logger)
	statsHandler := handlers.NewStatsHandler(led, logger)

	router.Handle("/files", otelhttp.NewHandler(uploadHandler, "POST /files")).Methods("POST")
	router.Handle("/files", otelhttp.NewHandler(listHandler, "GET /files")).Methods("GET")
	router.Handle("/files/{file_id}", otelhttp.NewHandler(deleteHandler, "DELETE /files/{file_id}")).Methods("DELETE")
	router.Handle("/files/{file_id}/url", otelhttp.NewHandler(resolveHandler, "GET /files/{file_id}/url")).Methods("GET")
	router.Handle("/files/{file_id}/content", otelhttp.NewHandler(contentHandler, "GET /files/{file_id}/content")).Methods("GET")
	router.Handle("/stats", otelhttp.NewHandler(statsHandler, "GET /stats")).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on port %s", cfg.ServicePort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
