// Package ttsserver implements the TTS gateway's /tts WebSocket endpoint,
// /healthz, and /metrics. Outbound delivery uses a single
// writer-goroutine-per-connection model rather than a send lock: every
// outbound frame funnels through the session's SendQueue, so only one
// goroutine ever calls conn.Write.
package ttsserver

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/voxstream/gateway/internal/gwmetrics"
	"github.com/voxstream/gateway/internal/ttsengine"
	"github.com/voxstream/gateway/internal/ttssession"
	"github.com/voxstream/gateway/internal/wsproto"
)

// Server wires the TTS engine, session manager, and metrics collector to
// HTTP/WebSocket routes.
type Server struct {
	Engine         ttsengine.Engine
	Manager        *ttssession.Manager
	Metrics        *gwmetrics.Collector
	Logger         *slog.Logger
	EngineName     string // as configured via WS_TTS_ENGINE
	EngineResolved string
	Version        string
	StartedAt      time.Time
}

// RegisterRoutes attaches /tts, /healthz, and /metrics to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /tts", s.handleTTS)
	mux.Handle("GET /metrics", s.Metrics.Handler())

	var backendFields func() map[string]any
	if r, ok := s.Engine.(ttsengine.Readiness); ok {
		backendFields = r.ReadinessFields
	}
	newHealthHandler(s.EngineName, s.EngineResolved, s.Version, s.StartedAt, backendFields).Register(mux)
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(4 * 1024 * 1024)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go pingLoop(ctx, conn, cancel)

	s.Metrics.IncActive(1)
	defer s.Metrics.IncActive(-1)

	var (
		sess           *ttssession.Session
		writerStarted  bool
		startMonotonic time.Time
	)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writerDone := make(chan struct{})
	fail := func(code, message string, seq int64) {
		payload := wsproto.ErrorMessage{Type: wsproto.TypeError, Code: code, Message: message, Seq: seq}
		if sess != nil {
			payload.SessionID = sess.ID
		}
		if sess != nil && writerStarted {
			// writerLoop counts the error when it sends it and closes the
			// connection after this terminal frame; wait for it so the
			// deferred Close does not cut the frame off.
			sess.Enqueue(payload)
			select {
			case <-writerDone:
			case <-time.After(time.Second):
			}
			return
		}
		s.Metrics.IncError(code)
		data, err := wsproto.Marshal(payload)
		if err != nil {
			return
		}
		conn.Write(ctx, websocket.MessageText, data)
		conn.Close(websocket.StatusNormalClosure, "")
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		typ, err := wsproto.DecodeType(data)
		if err != nil {
			fail(wsproto.ErrBadRequest, err.Error(), 0)
			return
		}

		if typ != wsproto.TypeStart && sess == nil {
			fail(wsproto.ErrBadRequest, "send start first", 0)
			return
		}
		if sess != nil {
			sess.Touch()
		}

		switch typ {
		case wsproto.TypeStart:
			start, err := wsproto.DecodeStart(data)
			if err != nil {
				fail(wsproto.ErrBadRequest, err.Error(), 0)
				return
			}
			spec := ttssession.AudioSpec{Format: start.AudioFormat, SampleRate: start.SampleRate, Channels: start.Channels}
			newSess, created, err := s.Manager.GetOrCreate(start.SessionID, spec, 0)
			if err != nil {
				fail(wsproto.ErrBadRequest, err.Error(), 0)
				return
			}
			sess = newSess
			sess.Touch()
			startMonotonic = time.Now()
			if created {
				s.Metrics.IncSessions()
			}

			if !writerStarted {
				writerStarted = true
				go func(sess *ttssession.Session, startMonotonic time.Time) {
					defer close(writerDone)
					s.writerLoop(ctx, conn, sess, startMonotonic)
				}(sess, startMonotonic)
			}

			ack := wsproto.StartAck{
				Type:        wsproto.TypeStartAck,
				SessionID:   sess.ID,
				AudioFormat: spec.Format,
				SampleRate:  spec.SampleRate,
				Channels:    spec.Channels,
				TTLSeconds:  int(sess.TTL.Seconds()),
			}
			if spec.Format == "pcm16_wav" {
				hdr := ttsengine.BuildWAVHeader(spec.SampleRate, spec.Channels)
				ack.WAVHeaderBase64 = base64.StdEncoding.EncodeToString(hdr)
			}
			if !sess.Enqueue(ack) {
				sess.SignalBackpressure()
			}

		case wsproto.TypeTextDelta:
			td, err := wsproto.DecodeTextDelta(data)
			if err != nil {
				fail(wsproto.ErrBadRequest, err.Error(), 0)
				return
			}
			if td.SessionID != sess.ID {
				fail(wsproto.ErrBadRequest, "session_id mismatch", td.Seq)
				return
			}
			sess.SetSeq(td.Seq)
			if !pushTextUnit(sess, td.Text) {
				sess.SignalBackpressure()
			}
			s.Manager.StartSynthLoopIfNeeded(ctx, sess)

		case wsproto.TypeTextEnd:
			end, err := wsproto.DecodeTextEnd(data)
			if err != nil {
				fail(wsproto.ErrBadRequest, err.Error(), 0)
				return
			}
			if end.SessionID != sess.ID {
				fail(wsproto.ErrBadRequest, "session_id mismatch", end.Seq)
				return
			}
			sess.SetSeq(end.Seq)
			sess.MarkFinished()
			s.Manager.StartSynthLoopIfNeeded(ctx, sess)

		case wsproto.TypeCancel:
			c, err := wsproto.DecodeCancel(data)
			if err != nil {
				fail(wsproto.ErrBadRequest, err.Error(), 0)
				return
			}
			sess.SetSeq(c.Seq)
			s.Manager.Cancel(sess)
			sess.Enqueue(wsproto.TTSEnd{Type: wsproto.TypeTTSEnd, SessionID: sess.ID, Seq: sess.Seq(), Cancelled: true})

		case wsproto.TypeResume:
			res, err := wsproto.DecodeResume(data)
			if err != nil {
				fail(wsproto.ErrBadRequest, err.Error(), 0)
				return
			}
			if res.SessionID != sess.ID {
				fail(wsproto.ErrBadRequest, "session_id mismatch", 0)
				return
			}
			oldest, ok := sess.Cache.OldestUnitIndexStart()
			if !ok || res.LastUnitIndexReceived < oldest {
				sess.Enqueue(wsproto.ErrorMessage{
					Type:      wsproto.TypeError,
					SessionID: sess.ID,
					Seq:       sess.Seq(),
					Code:      wsproto.ErrResumeNotAvailable,
					Message:   "requested unit index predates the surviving cache window, start a new session",
				})
			} else {
				for _, entry := range sess.Cache.EntriesAfter(res.LastUnitIndexReceived) {
					chunk := entry.Chunk
					chunk.Seq = sess.Seq()
					sess.Enqueue(chunk)
				}
			}

		default:
			fail(wsproto.ErrBadRequest, "unknown type: "+typ, 0)
			return
		}
	}
}

// pingInterval sits in the middle of the 20-30s heartbeat window dead
// connections are expected to be detected within.
const pingInterval = 25 * time.Second

// pingLoop sends periodic WebSocket pings until ctx is done, calling cancel
// the first time a ping goes unanswered so a half-open client connection is
// torn down within one heartbeat window rather than hanging until the
// session's idle-TTL sweep notices.
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

func pushTextUnit(s *ttssession.Session, text string) bool {
	select {
	case s.TextUnits <- text:
		return true
	default:
		return false
	}
}

// writerLoop is the sole writer to conn for the lifetime of the
// connection. It observes the session's send queue and out-of-band
// backpressure signal, records time-to-first-audio, and tears the
// connection down once a terminal frame (tts_end/error) is written.
func (s *Server) writerLoop(ctx context.Context, conn *websocket.Conn, sess *ttssession.Session, startMonotonic time.Time) {
	for {
		select {
		case msg := <-sess.SendQueue:
			if ac, ok := msg.(wsproto.AudioChunk); ok && sess.RecordTTFAOnce() {
				s.Metrics.ObserveTTFAMillis(float64(time.Since(startMonotonic).Milliseconds()))
				_ = ac
			}
			if em, ok := msg.(wsproto.ErrorMessage); ok {
				s.Metrics.IncError(em.Code)
			}
			data, err := wsproto.Marshal(msg)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
			if isTerminal(msg) {
				if _, ok := msg.(wsproto.TTSEnd); ok {
					s.Manager.Remove(sess.ID)
				}
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		case <-sess.Backpressure:
			s.Metrics.IncError(wsproto.ErrBackpressure)
			errMsg := wsproto.ErrorMessage{
				Type:      wsproto.TypeError,
				SessionID: sess.ID,
				Seq:       sess.Seq(),
				Code:      wsproto.ErrBackpressure,
				Message:   "send queue exceeded its high-water mark",
			}
			if data, err := wsproto.Marshal(errMsg); err == nil {
				conn.Write(ctx, websocket.MessageText, data)
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ctx.Done():
			return
		}
	}
}

func isTerminal(msg any) bool {
	switch msg.(type) {
	case wsproto.TTSEnd, wsproto.ErrorMessage:
		return true
	default:
		return false
	}
}
