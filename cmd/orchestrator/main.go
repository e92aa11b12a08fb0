// Command orchestrator runs the LLM-to-TTS orchestrator's WebSocket
// server, bridging streamed chat completions to the TTS gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxstream/gateway/internal/gwconfig"
	"github.com/voxstream/gateway/internal/obs"
	"github.com/voxstream/gateway/internal/orchserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := gwconfig.LoadOrchestratorConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		return 1
	}

	logger := obs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.InitTracing(ctx, obs.TracingConfig{ServiceName: "orchestrator", Enabled: cfg.TracingEnabled})
	if err != nil {
		slog.Error("failed to initialize tracing", "err", err)
		return 1
	}
	defer shutdownTracing(context.Background())

	if cfg.SGLangAPIKey == "" {
		slog.Error("SGLANG_API_KEY is not set; the orchestrator cannot reach its only upstream")
		return 1
	}

	srv := &orchserver.Server{
		Config:     cfg,
		HTTPClient: &http.Client{Timeout: 0}, // SSE bodies are long-lived; per-request timeout is caller-supplied via context
		Logger:     logger,
		StartedAt:  time.Now(),
	}

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	addr := cfg.Host + ":" + cfg.Port
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("orchestrator listening", "addr", addr, "sglang_base_url", cfg.SGLangBaseURL, "ws_tts_url", cfg.WSTTSURL)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen error", "err", err)
			return 1
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
			return 1
		}
	}

	slog.Info("goodbye")
	return 0
}
