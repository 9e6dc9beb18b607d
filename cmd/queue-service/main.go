package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/config"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/directory"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/httpapi"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/store"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/store/memory"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/store/postgres"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type backend interface {
	store.EntryStore
	store.ProviderDirectory
}

func main() {
	cfg := config.Load()

	shutdownTracing, err := telemetry.Setup(context.Background(), "queue-service")
	if err != nil {
		log.Printf("telemetry disabled: %v", err)
	}

	var db backend
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		db = postgres.NewStore(pool)
	} else {
		log.Printf("DB_DSN not set, using in-memory store")
		db = memory.NewStore()
	}

	providers := directory.NewCached(db, cfg.ProviderCacheTTL)
	handler := httpapi.NewHandler(db, providers)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:         cfg.RateLimitPerMinute,
		IPBurst:             cfg.RateLimitBurst,
		DepartmentPerMinute: cfg.DeptRateLimitPerMinute,
		DepartmentBurst:     cfg.DeptRateLimitBurst,
	})

	var routes http.Handler = handler.Routes()
	if !cfg.AuthDisabled {
		routes = httpapi.AuthMiddleware(db, routes)
	}
	chain := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(routes)), "queue-service")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      chain,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go func() {
		if cfg.ReturnGrace <= 0 || cfg.ReturnInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.ReturnInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			count, err := db.AutoReturn(ctx, cfg.ReturnGrace, cfg.ReturnBatchSize)
			cancel()
			if err != nil {
				log.Printf("auto return error: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("auto return requeued %d entries", count)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("telemetry shutdown error: %v", err)
	}
}
