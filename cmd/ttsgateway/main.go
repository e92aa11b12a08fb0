// Command ttsgateway runs the TTS gateway's WebSocket server.
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
	"github.com/voxstream/gateway/internal/gwmetrics"
	"github.com/voxstream/gateway/internal/obs"
	"github.com/voxstream/gateway/internal/ttsengine"
	"github.com/voxstream/gateway/internal/ttsserver"
	"github.com/voxstream/gateway/internal/ttssession"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := gwconfig.LoadTTSGatewayConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ttsgateway: %v\n", err)
		return 1
	}

	logger := obs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.InitTracing(ctx, obs.TracingConfig{ServiceName: "ws-tts-gateway", Enabled: cfg.TracingEnabled})
	if err != nil {
		slog.Error("failed to initialize tracing", "err", err)
		return 1
	}
	defer shutdownTracing(context.Background())

	engine, err := ttsengine.Build(cfg.Engine,
		ttsengine.LocalCLIConfig{
			BinPath:    cfg.PiperBin,
			ModelPath:  cfg.PiperModel,
			SpeakerID:  cfg.PiperSpeakerID,
			ExtraArgs:  cfg.PiperExtraArgs,
			OutputMode: cfg.PiperOutputMode,
		},
		ttsengine.RemoteRPCConfig{URL: cfg.RemoteTTSURL, APIKey: cfg.RemoteTTSAPIKey},
	)
	if err != nil {
		slog.Error("failed to build tts engine", "err", err)
		return 1
	}

	manager := ttssession.NewManager(engine, ttssession.Config{
		CacheSize:         cfg.CacheSize,
		SendQueueCapacity: cfg.SendQueueHighWaterMark,
		DefaultTTL:        time.Duration(cfg.DefaultTTLSeconds) * time.Second,
	})

	srv := &ttsserver.Server{
		Engine:         engine,
		Manager:        manager,
		Metrics:        gwmetrics.New(),
		Logger:         logger,
		EngineName:     cfg.Engine,
		EngineResolved: cfg.Engine,
		Version:        cfg.Version,
		StartedAt:      time.Now(),
	}

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	addr := cfg.Host + ":" + cfg.Port
	httpServer := &http.Server{Addr: addr, Handler: mux}

	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	defer cancelCleanup()
	go manager.CleanupLoop(cleanupCtx, 10*time.Second)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("ws-tts-gateway listening", "addr", addr, "engine", cfg.Engine)
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
