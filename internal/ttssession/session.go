// Package ttssession implements per-session state, the replay cache, and
// the session manager (synthesis-loop lifecycle, cleanup, resume) for the
// TTS gateway.
package ttssession

import (
	"context"
	"sync"
	"time"
)

// AudioSpec is the immutable-after-creation audio contract for a session.
type AudioSpec struct {
	Format     string // "pcm16_raw" | "pcm16_wav"
	SampleRate int
	Channels   int
}

// Session holds all per-connection/per-conversation state for one TTS
// session. Most fields are guarded by mu; the text-unit and send queues
// are plain buffered channels, giving a FIFO that stays lock-free between
// producer and consumer.
type Session struct {
	ID   string
	Spec AudioSpec
	TTL  time.Duration

	mu           sync.Mutex
	seq          int64
	unitIndex    int64
	finished     bool
	cancelled    bool
	lastActivity time.Time
	synthRunning bool
	synthCancel  context.CancelFunc
	ttfaRecorded bool

	TextUnits    chan string
	SendQueue    chan any
	Cache        *Cache
	Backpressure chan struct{}
}

// NewSession constructs a Session. sendQueueCapacity is the outbound
// high-water mark; textQueueCapacity bounds the pending text-unit FIFO.
func NewSession(id string, spec AudioSpec, ttl time.Duration, cacheSize, sendQueueCapacity, textQueueCapacity int) *Session {
	return &Session{
		ID:           id,
		Spec:         spec,
		TTL:          ttl,
		lastActivity: time.Now(),
		TextUnits:    make(chan string, textQueueCapacity),
		SendQueue:    make(chan any, sendQueueCapacity),
		Cache:        NewCache(cacheSize),
		Backpressure: make(chan struct{}, 1),
	}
}

// Touch records activity, resetting the idle-expiry clock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IdleFor reports how long the session has been inactive.
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// Seq returns the last sequence number observed from the peer.
func (s *Session) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// SetSeq records the last sequence number observed from the peer; echoed
// into outgoing messages.
func (s *Session) SetSeq(seq int64) {
	s.mu.Lock()
	s.seq = seq
	s.mu.Unlock()
}

// Finished reports whether the peer has sent text_end.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// MarkFinished records that the peer has sent text_end.
func (s *Session) MarkFinished() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
}

// Cancelled reports whether the session has been cancelled.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// MarkCancelled records cancellation and best-effort interrupts any
// in-flight synthesis call via its context.
func (s *Session) MarkCancelled() {
	s.mu.Lock()
	s.cancelled = true
	cancel := s.synthCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// nextUnitRange assigns and advances [unitIndex, unitIndex+1).
func (s *Session) nextUnitRange() (start, end int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start = s.unitIndex
	end = start + 1
	s.unitIndex = end
	return start, end
}

// trySetSynthRunning atomically transitions from not-running to running,
// storing cancel for MarkCancelled to invoke. Returns false if a synth
// loop is already running: at most one runs per session at a time.
func (s *Session) trySetSynthRunning(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synthRunning {
		return false
	}
	s.synthRunning = true
	s.synthCancel = cancel
	return true
}

func (s *Session) clearSynthRunning() {
	s.mu.Lock()
	s.synthRunning = false
	s.synthCancel = nil
	s.mu.Unlock()
}

// RecordTTFAOnce reports whether this is the first time this session has
// had a chance to record its Time-To-First-Audio, flipping the flag if so.
// The caller (the writer/sender loop, which knows when a message actually
// leaves the wire) uses this to know whether to observe the sample.
func (s *Session) RecordTTFAOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttfaRecorded {
		return false
	}
	s.ttfaRecorded = true
	return true
}

// Enqueue attempts a non-blocking send to SendQueue. It returns false when
// the queue is at its high-water mark, which the caller must treat as a
// backpressure condition.
func (s *Session) Enqueue(msg any) bool {
	select {
	case s.SendQueue <- msg:
		return true
	default:
		return false
	}
}

// SignalBackpressure notifies the writer that the send queue is at its
// high-water mark. Non-blocking: a pending signal is enough, a second one
// before the writer observes it is a no-op.
func (s *Session) SignalBackpressure() {
	select {
	case s.Backpressure <- struct{}{}:
	default:
	}
}
