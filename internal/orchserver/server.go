// Package orchserver implements the orchestrator's /chat WebSocket
// endpoint: it authenticates the client, parses the chat request, streams
// an LLM completion, and relays segmented text to the TTS gateway while
// forwarding both LLM and TTS events back to the client.
package orchserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/voxstream/gateway/internal/gwconfig"
	"github.com/voxstream/gateway/internal/llmstream"
	"github.com/voxstream/gateway/internal/ttsbridge"
	"github.com/voxstream/gateway/internal/wsproto"
)

// Server wires the orchestrator's configuration and HTTP client to
// /chat and /healthz.
type Server struct {
	Config     *gwconfig.OrchestratorConfig
	HTTPClient *http.Client
	Logger     *slog.Logger
	StartedAt  time.Time
}

// RegisterRoutes attaches /chat and /healthz to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /chat", s.handleChat)
	newHealthHandler(s.StartedAt).Register(mux)
}

func (s *Server) authorized(r *http.Request) bool {
	expected := s.Config.APIKey
	if expected == "" {
		return true
	}
	if r.URL.Query().Get("api_key") == expected {
		return true
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok && strings.TrimSpace(rest) == expected {
			return true
		}
	}
	return false
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "missing/invalid api_key", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	conn.SetReadLimit(4 * 1024 * 1024)
	go pingLoop(ctx, conn, cancel)

	var writeMu sync.Mutex
	writeLocked := func(v any) error {
		data, err := wsproto.Marshal(v)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.Write(ctx, websocket.MessageText, data)
	}
	writeRawLocked := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.Write(ctx, websocket.MessageText, data)
	}

	_, first, err := conn.Read(ctx)
	if err != nil {
		return
	}
	req, err := ParseChatRequest(first)
	if err != nil {
		writeLocked(orchestratorError(wsproto.ErrBadRequest, err.Error()))
		return
	}

	s.runChatSession(ctx, conn, req, writeLocked, writeRawLocked)
}

func orchestratorError(code, message string) wsproto.ErrorMessage {
	return wsproto.ErrorMessage{Type: wsproto.TypeOrchestratorError, Code: code, Message: message}
}

var tracer = otel.Tracer("github.com/voxstream/gateway/internal/orchserver")

// pingInterval sits in the middle of the spec's 20-30s heartbeat window.
const pingInterval = 25 * time.Second

// pingLoop sends periodic WebSocket pings until ctx is done, calling cancel
// the first time a ping goes unanswered so a half-open connection is torn
// down within one heartbeat window instead of waiting on a higher-level
// idle timeout.
func pingLoop(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, pingInterval)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				cancel()
				return
			}
		}
	}
}

func (s *Server) ttsURLFor(req *ChatRequest) string {
	if s.Config.AllowClientTTSURL && req.WSTTSURL != "" {
		return req.WSTTSURL
	}
	return s.Config.WSTTSURL
}

func (s *Server) runChatSession(
	ctx context.Context,
	conn *websocket.Conn,
	req *ChatRequest,
	writeLocked func(any) error,
	writeRawLocked func([]byte) error,
) {
	ctx, span := tracer.Start(ctx, "chat_session", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
	))
	defer span.End()

	cancelRequested := make(chan struct{})
	var cancelOnce sync.Once
	requestCancel := func() { cancelOnce.Do(func() { close(cancelRequested) }) }

	llmCtx, llmCancel := context.WithCancel(ctx)
	defer llmCancel()
	go func() {
		select {
		case <-cancelRequested:
			llmCancel()
		case <-llmCtx.Done():
		}
	}()

	textUnits := make(chan string, s.Config.TextQueueCapacity)

	flushMinChars := s.Config.TTSFlushMinChars
	flushOnPunct := s.Config.TTSFlushOnPunct

	startedAt := time.Now()

	if err := writeLocked(orchestratorStart{
		Type:             wsproto.TypeOrchestratorStart,
		SessionID:        req.SessionID,
		TTSFlushMinChars: flushMinChars,
		TTSFlushOnPunct:  flushOnPunct,
	}); err != nil {
		return
	}

	bridge, err := ttsbridge.Dial(ctx, ttsbridge.Config{
		URL:         s.ttsURLFor(req),
		APIKey:      s.Config.WSTTSAPIKey,
		SessionID:   req.SessionID,
		AudioFormat: req.AudioFormat,
		SampleRate:  req.SampleRate,
		Channels:    req.Channels,
	})
	if err != nil {
		writeLocked(orchestratorError(wsproto.ErrInternal, err.Error()))
		return
	}
	defer bridge.Close()

	frames := make(chan ttsbridge.Frame, 32)
	bridgeTerminal := make(chan struct{})
	var terminalOnce sync.Once

	// The four background tasks below (bridge reader, frame relay, text
	// sender, client-cancel watcher) run for the life of the chat session.
	// errgroup supervises them as a unit; none of their errors should
	// abort the others, so they're logged rather than propagated.
	var g errgroup.Group

	g.Go(func() error {
		bridge.ReadLoop(ctx, frames)
		close(frames)
		return nil
	})
	g.Go(func() error {
		for f := range frames {
			writeRawLocked(f.Raw)
			if f.Terminal() {
				terminalOnce.Do(func() { close(bridgeTerminal) })
			}
		}
		terminalOnce.Do(func() { close(bridgeTerminal) })
		return nil
	})
	g.Go(func() error {
		if err := bridge.SenderLoop(ctx, req.SessionID, textUnits, cancelRequested); err != nil {
			writeLocked(orchestratorError(wsproto.ErrTTSSend, err.Error()))
			return err
		}
		return nil
	})
	g.Go(func() error {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return nil
			}
			typ, err := wsproto.DecodeType(data)
			if err != nil {
				continue
			}
			if typ == wsproto.TypeCancel {
				requestCancel()
				return nil
			}
		}
	})
	go func() {
		if err := g.Wait(); err != nil {
			s.Logger.Warn("chat session background task failed", "session_id", req.SessionID, "err", err)
		}
	}()

	go func() {
		if err := bridge.PingLoop(ctx); err != nil {
			s.Logger.Warn("tts bridge ping failed, tearing down session", "session_id", req.SessionID, "err", err)
			writeLocked(orchestratorError(wsproto.ErrTTSSend, "tts bridge connection lost"))
			llmCancel()
		}
	}()

	result, streamErr := llmstream.Stream(llmCtx, s.HTTPClient, llmstream.Config{
		URL:           s.Config.ChatCompletionsURL(),
		APIKey:        s.Config.SGLangAPIKey,
		Model:         s.Config.SGLangModel,
		Prompt:        req.Prompt,
		FlushMinChars: flushMinChars,
		FlushOnPunct:  flushOnPunct,
	}, textUnits, llmstream.Callbacks{
		OnDelta: func(delta string) {
			writeLocked(llmDelta{Type: wsproto.TypeLLMDelta, Delta: delta})
		},
		OnToolCallsDelta: func(calls []llmstream.ToolCall) {
			writeLocked(toolCallsDelta{Type: wsproto.TypeToolCallsDelta, ToolCalls: calls})
		},
		OnParseError: func(raw string) {
			writeLocked(orchestratorError(wsproto.ErrLLMParse, raw))
		},
	})

	cancelled := llmCtx.Err() != nil
	clientCancelled := isClosed(cancelRequested)

	switch {
	case cancelled:
		span.SetAttributes(attribute.Bool("session.cancelled", true))
		writeLocked(orchestratorCancelled{Type: wsproto.TypeOrchestratorCancel})
		if clientCancelled {
			waitFor(bridgeTerminal, 5*time.Second)
		}
	case errors.Is(streamErr, llmstream.ErrBackpressure):
		span.SetStatus(codes.Error, "backpressure")
		writeLocked(orchestratorError(wsproto.ErrBackpressure, "text unit queue exceeded capacity, aborting stream"))
		// Backpressure is terminal: cancel the TTS session instead of
		// letting it finish the queued text, then tear the chat down.
		requestCancel()
		waitFor(bridgeTerminal, 5*time.Second)
		return
	case streamErr != nil:
		span.SetStatus(codes.Error, streamErr.Error())
		writeLocked(orchestratorError(wsproto.ErrInternal, streamErr.Error()))
		close(textUnits) // SenderLoop's text_end path also unblocks the bridge
	default:
		span.SetAttributes(attribute.Int("session.full_text_len", len(result.FullText)))
		writeLocked(llmDone{
			Type:        wsproto.TypeLLMDone,
			ElapsedMs:   time.Since(startedAt).Milliseconds(),
			FullTextLen: len(result.FullText),
			ToolCalls:   result.ToolCalls,
		})
	}

	if !cancelled && !clientCancelled {
		waitFor(bridgeTerminal, 120*time.Second)
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func waitFor(done <-chan struct{}, timeout time.Duration) {
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// orchestratorStart, llmDelta, llmDone, toolCallsDelta, orchestratorCancelled
// are the orchestrator → client message shapes, not part of wsproto's
// tagged union because they never need to be *decoded* by this service
// (only ever produced here).
type orchestratorStart struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id"`
	TTSFlushMinChars int    `json:"tts_flush_min_chars"`
	TTSFlushOnPunct  bool   `json:"tts_flush_on_punct"`
}

type llmDelta struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

type toolCallsDelta struct {
	Type      string                `json:"type"`
	ToolCalls []llmstream.ToolCall `json:"tool_calls"`
}

type llmDone struct {
	Type        string                `json:"type"`
	ElapsedMs   int64                 `json:"elapsed_ms"`
	FullTextLen int                   `json:"full_text_len"`
	ToolCalls   []llmstream.ToolCall `json:"tool_calls"`
}

type orchestratorCancelled struct {
	Type string `json:"type"`
}
