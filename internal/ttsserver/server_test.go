package ttsserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxstream/gateway/internal/gwmetrics"
	"github.com/voxstream/gateway/internal/ttsengine"
	"github.com/voxstream/gateway/internal/ttssession"
	"github.com/voxstream/gateway/internal/wsproto"
)

func decodeError(raw []byte) (wsproto.ErrorMessage, error) {
	var e wsproto.ErrorMessage
	err := json.Unmarshal(raw, &e)
	return e, err
}

func newTestServer(t *testing.T) *httptest.Server {
	return newTestServerWithConfig(t, ttssession.Config{PopTimeout: 20 * time.Millisecond})
}

func newTestServerWithConfig(t *testing.T, cfg ttssession.Config) *httptest.Server {
	t.Helper()
	mgr := ttssession.NewManager(&ttsengine.DummyEngine{ToneHz: 440, MillisPerChar: 1}, cfg)
	srv := &Server{
		Engine:         &ttsengine.DummyEngine{ToneHz: 440, MillisPerChar: 1},
		Manager:        mgr,
		Metrics:        gwmetrics.New(),
		Logger:         slog.Default(),
		EngineName:     "dummy",
		EngineResolved: "dummy",
		Version:        "test",
		StartedAt:      time.Now(),
	}
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func dialTTS(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+httpURL[len("http"):]+"/tts", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestHandleTTS_HappyPath(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	conn := dialTTS(t, srv.URL)
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := wsproto.Start{Type: wsproto.TypeStart, SessionID: "s1", AudioFormat: "pcm16_raw", SampleRate: 16000, Channels: 1}
	data, _ := wsproto.Marshal(start)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write start failed: %v", err)
	}

	_, ackData, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read start_ack failed: %v", err)
	}
	if typ, _ := wsproto.DecodeType(ackData); typ != wsproto.TypeStartAck {
		t.Fatalf("expected start_ack, got %s", typ)
	}

	end := wsproto.TextEnd{Type: wsproto.TypeTextEnd, SessionID: "s1", Seq: 1}
	data, _ = wsproto.Marshal(end)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write text_end failed: %v", err)
	}

	sawTTSEnd := false
	for i := 0; i < 20 && !sawTTSEnd; i++ {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read failed before tts_end: %v", err)
		}
		typ, _ := wsproto.DecodeType(frame)
		if typ == wsproto.TypeTTSEnd {
			sawTTSEnd = true
		}
	}
	if !sawTTSEnd {
		t.Fatal("expected to observe a tts_end frame")
	}
}

func TestHandleTTS_RequiresStartFirst(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	conn := dialTTS(t, srv.URL)
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	end := wsproto.TextEnd{Type: wsproto.TypeTextEnd, SessionID: "s1", Seq: 1}
	data, _ := wsproto.Marshal(end)
	conn.Write(ctx, websocket.MessageText, data)

	_, frame, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	typ, _ := wsproto.DecodeType(frame)
	if typ != wsproto.TypeError {
		t.Fatalf("expected error frame, got %s", typ)
	}
	errMsg, err := decodeError(frame)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errMsg.Code != wsproto.ErrBadRequest {
		t.Errorf("expected bad_request code, got %s", errMsg.Code)
	}
}

func TestHandleTTS_ResumeMissReturnsResumeNotAvailable(t *testing.T) {
	srv := newTestServerWithConfig(t, ttssession.Config{PopTimeout: 20 * time.Millisecond, CacheSize: 1})
	defer srv.Close()

	conn := dialTTS(t, srv.URL)
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := wsproto.Start{Type: wsproto.TypeStart, SessionID: "s1", AudioFormat: "pcm16_raw", SampleRate: 16000, Channels: 1}
	data, _ := wsproto.Marshal(start)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write start failed: %v", err)
	}
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("read start_ack failed: %v", err)
	}

	// Three text units, cache size 1: only unit [2,3) survives eviction.
	for i, seq := range []int64{1, 2, 3} {
		td := wsproto.TextDelta{Type: wsproto.TypeTextDelta, SessionID: "s1", Seq: seq, Text: "hello"}
		data, _ := wsproto.Marshal(td)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			t.Fatalf("write text_delta %d failed: %v", i, err)
		}
		// Drain the audio_chunk(s) for this unit before sending the next,
		// so the synth loop's cache adds happen in the expected order.
		for {
			_, frame, err := conn.Read(ctx)
			if err != nil {
				t.Fatalf("read audio_chunk failed: %v", err)
			}
			if typ, _ := wsproto.DecodeType(frame); typ == wsproto.TypeAudioChunk {
				break
			}
		}
	}

	// Drop the connection without text_end and reconnect: the session and
	// its cache outlive the connection, whereas a tts_end closes it.
	conn.Close(websocket.StatusNormalClosure, "")
	conn = dialTTS(t, srv.URL)
	defer conn.Close(websocket.StatusNormalClosure, "")
	data, _ = wsproto.Marshal(start)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write start on reconnect failed: %v", err)
	}
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("read start_ack on reconnect failed: %v", err)
	}

	// last_unit_index_received=0 predates the surviving window (which
	// starts at unit index 2), so this must fail even though unit [2,3)
	// would otherwise satisfy UnitIndexEnd > 0.
	resume := wsproto.Resume{Type: wsproto.TypeResume, SessionID: "s1", LastUnitIndexReceived: 0}
	data, _ = wsproto.Marshal(resume)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write resume failed: %v", err)
	}

	_, frame, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	typ, _ := wsproto.DecodeType(frame)
	if typ != wsproto.TypeError {
		t.Fatalf("expected error frame, got %s", typ)
	}
	errMsg, err := decodeError(frame)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errMsg.Code != wsproto.ErrResumeNotAvailable {
		t.Errorf("expected resume_not_available, got %s", errMsg.Code)
	}
}

func TestHandleTTS_HealthzServesEngineFields(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
