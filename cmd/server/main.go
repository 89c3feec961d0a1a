// Command server exposes the extraction pipeline over HTTP. Requests are
// processed one at a time because every request appends to the same node
// and edge files.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/txt2kgx"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	addr := flag.String("addr", ":8090", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := txt2kgx.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("TXT2KGX_API_KEY")
	corsOrigins := os.Getenv("TXT2KGX_CORS_ORIGINS")

	p, err := txt2kgx.New(cfg)
	if err != nil {
		slog.Error("creating pipeline", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	h := newHandler(p)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /extract", h.handleExtract)
	mux.HandleFunc("POST /ingest", h.handleIngest)
	mux.HandleFunc("GET /documents", h.handleListDocuments)
	mux.HandleFunc("GET /runs/{id}", h.handleGetRun)
	mux.HandleFunc("GET /unmapped", h.handleUnmapped)
	mux.HandleFunc("GET /grammar", h.handleGrammar)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // extraction waits on the generation service
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr, "nodes_file", cfg.NodesFile, "edges_file", cfg.EdgesFile)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
