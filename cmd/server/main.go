package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spongelab/sponge"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := sponge.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	// Override from environment variables.
	if v := os.Getenv("SPONGE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SPONGE_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("SPONGE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("SPONGE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SPONGE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("SPONGE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	// Fallback: check well-known provider env vars for API keys.
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	apiKey := os.Getenv("SPONGE_API_KEY")
	corsOrigins := os.Getenv("SPONGE_CORS_ORIGINS")

	engine, err := sponge.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := newHandler(engine, cfg.MaxUploadBytes)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /onboard", h.handleOnboard)
	mux.HandleFunc("POST /chat_turn", h.handleChatTurn)
	mux.HandleFunc("POST /upload", h.handleUpload)
	mux.HandleFunc("GET /graph_view", h.handleGraphView)
	mux.HandleFunc("GET /node/{id}", h.handleNode)
	mux.HandleFunc("GET /nuggets", h.handleListNuggets)
	mux.HandleFunc("POST /nugget/{id}/feedback", h.handleSubmitFeedback)
	mux.HandleFunc("GET /nugget/{id}/feedback", h.handleGetFeedback)
	mux.HandleFunc("POST /nugget/{id}/status", h.handleUpdateStatus)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = withRequestLog(handler)
	handler = withAuth(apiKey, handler)
	handler = withCORS(corsOrigins, handler)
	handler = withRecovery(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // pipeline runs can be long
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
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
