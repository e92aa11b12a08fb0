package ttssession

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxstream/gateway/internal/ttsengine"
	"github.com/voxstream/gateway/internal/wsproto"
)

var tracer = otel.Tracer("github.com/voxstream/gateway/internal/ttssession")

// ErrSpecMismatch is returned by GetOrCreate when an existing session's
// AudioSpec does not match the one in a subsequent "start" frame.
var ErrSpecMismatch = fmt.Errorf("ttssession: audio_spec mismatch for existing session")

// Config bounds the manager's defaults; zero values fall back to sensible
// defaults.
type Config struct {
	CacheSize         int
	SendQueueCapacity int
	TextQueueCapacity int
	DefaultTTL        time.Duration
	PopTimeout        time.Duration
}

func (c Config) withDefaults() Config {
	if c.CacheSize <= 0 {
		c.CacheSize = 64
	}
	if c.SendQueueCapacity <= 0 {
		c.SendQueueCapacity = 1024
	}
	if c.TextQueueCapacity <= 0 {
		c.TextQueueCapacity = 256
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 60 * time.Second
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = 200 * time.Millisecond
	}
	return c
}

// Manager creates, looks up, cleans up sessions, and spawns their
// synthesis loops. State transitions are captured under a mutex, with the
// actual synthesis I/O always performed outside the lock.
type Manager struct {
	engine ttsengine.Engine
	cfg    Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager constructs a Manager backed by engine.
func NewManager(engine ttsengine.Engine, cfg Config) *Manager {
	return &Manager{
		engine:   engine,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the existing session for id if its AudioSpec
// matches, or creates a new one. ttlSeconds <= 0 uses the manager's
// default TTL.
func (m *Manager) GetOrCreate(id string, spec AudioSpec, ttlSeconds int) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[id]; ok {
		if existing.Spec != spec {
			return nil, false, ErrSpecMismatch
		}
		existing.Touch()
		return existing, false, nil
	}

	ttl := m.cfg.DefaultTTL
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	s := NewSession(id, spec, ttl, m.cfg.CacheSize, m.cfg.SendQueueCapacity, m.cfg.TextQueueCapacity)
	m.sessions[id] = s
	return s, true, nil
}

// Lookup returns the session for id, if any.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove deletes a session from the registry (called by the server once a
// tts_end has been written for it).
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Cancel marks s cancelled and best-effort interrupts its in-flight
// synthesis, draining any queued-but-unsynthesized text units. It does not
// push tts_end itself — that's pushed directly by the caller (the server's
// frame handler) in response to the cancel message, not by the synth loop.
func (m *Manager) Cancel(s *Session) {
	s.MarkCancelled()
drain:
	for {
		select {
		case <-s.TextUnits:
		default:
			break drain
		}
	}
}

// StartSynthLoopIfNeeded spawns the synthesis loop for s if one is not
// already running. It is safe to call this redundantly; at most one loop
// runs per session.
func (m *Manager) StartSynthLoopIfNeeded(ctx context.Context, s *Session) {
	loopCtx, cancel := context.WithCancel(ctx)
	if !s.trySetSynthRunning(cancel) {
		cancel()
		return
	}
	go func() {
		defer s.clearSynthRunning()
		defer cancel()
		m.runSynthLoop(loopCtx, s)
	}()
}

// runSynthLoop pulls queued text units and synthesizes audio for each
// until the session finishes, is cancelled, or the context is done.
func (m *Manager) runSynthLoop(ctx context.Context, s *Session) {
	for {
		if s.Cancelled() {
			return
		}

		text, ok := m.popTextUnit(ctx, s)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			if s.Finished() {
				s.Enqueue(wsproto.TTSEnd{Type: wsproto.TypeTTSEnd, SessionID: s.ID, Seq: s.Seq()})
				return
			}
			continue
		}

		if !m.synthesizeUnit(ctx, s, text) {
			return
		}
	}
}

// synthesizeUnit synthesizes one text unit and enqueues its audio chunks,
// wrapping the work in a synthesize_unit span. It reports whether the synth
// loop should continue (false means the caller should return immediately:
// backpressure, cancellation, or a synthesis error already handled here).
func (m *Manager) synthesizeUnit(ctx context.Context, s *Session, text string) bool {
	start, end := s.nextUnitRange()

	unitCtx, span := tracer.Start(ctx, "synthesize_unit", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.Int64("unit.index_start", start),
		attribute.Int64("unit.index_end", end),
		attribute.Int("unit.text_len", len(text)),
	))
	defer span.End()

	chunks, errCh := m.engine.SynthesizePCM16Stream(unitCtx, text, ttsengine.AudioSpec{
		SampleRate: s.Spec.SampleRate,
		Channels:   s.Spec.Channels,
	}, ttsengine.DefaultChunkBytes)

	for chunk := range chunks {
		ac := wsproto.AudioChunk{
			Type:           wsproto.TypeAudioChunk,
			SessionID:      s.ID,
			Seq:            s.Seq(),
			UnitIndexStart: start,
			UnitIndexEnd:   end,
			PCMBase64:      base64.StdEncoding.EncodeToString(chunk),
		}
		s.Cache.Add(CacheEntry{UnitIndexStart: start, UnitIndexEnd: end, Chunk: ac})
		if !s.Enqueue(ac) {
			s.SignalBackpressure()
			span.SetStatus(codes.Error, "backpressure")
			return false // server-side writer owns teardown
		}
		if s.Cancelled() {
			span.SetAttributes(attribute.Bool("unit.cancelled", true))
			return false
		}
	}
	if err := <-errCh; err != nil {
		s.Enqueue(wsproto.ErrorMessage{
			Type:      wsproto.TypeError,
			SessionID: s.ID,
			Seq:       s.Seq(),
			Code:      wsproto.ErrInternal,
			Message:   err.Error(),
		})
		span.SetStatus(codes.Error, err.Error())
		return false
	}
	return true
}

// popTextUnit blocks up to PopTimeout for the next queued text unit.
func (m *Manager) popTextUnit(ctx context.Context, s *Session) (string, bool) {
	timer := time.NewTimer(m.cfg.PopTimeout)
	defer timer.Stop()
	select {
	case text := <-s.TextUnits:
		return text, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// CleanupLoop periodically destroys sessions idle past their TTL. It runs
// until ctx is cancelled.
func (m *Manager) CleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.IdleFor() > s.TTL {
			delete(m.sessions, id)
		}
	}
}

// Count reports the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
