package ttsbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxstream/gateway/internal/wsproto"
)

func echoTTSServer(t *testing.T, onFrame func(data []byte)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			onFrame(data)
			typ, err := wsproto.DecodeType(data)
			if err != nil {
				continue
			}
			if typ == wsproto.TypeTextEnd {
				end := wsproto.TTSEnd{Type: wsproto.TypeTTSEnd, SessionID: "s1", Seq: 9}
				b, _ := wsproto.Marshal(end)
				conn.Write(ctx, websocket.MessageText, b)
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func TestDial_SendsStartFrame(t *testing.T) {
	gotStart := make(chan []byte, 1)
	srv := echoTTSServer(t, func(data []byte) {
		select {
		case gotStart <- data:
		default:
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := Dial(ctx, Config{URL: wsURL(srv.URL), SessionID: "s1", AudioFormat: "pcm16_raw", SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer b.Close()

	select {
	case data := <-gotStart:
		start, err := wsproto.DecodeStart(data)
		if err != nil {
			t.Fatalf("server failed to decode start frame: %v", err)
		}
		if start.SessionID != "s1" || start.SampleRate != 16000 {
			t.Errorf("unexpected start frame: %+v", start)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for start frame")
	}
}

func TestSenderLoop_ClosedChannelSendsTextEnd(t *testing.T) {
	srv := echoTTSServer(t, func([]byte) {})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := Dial(ctx, Config{URL: wsURL(srv.URL), SessionID: "s1", AudioFormat: "pcm16_raw", SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer b.Close()

	textUnits := make(chan string)
	close(textUnits)
	cancelRequested := make(chan struct{})

	if err := b.SenderLoop(ctx, "s1", textUnits, cancelRequested); err != nil {
		t.Fatalf("unexpected sender loop error: %v", err)
	}

	frames := make(chan Frame, 4)
	if err := b.ReadLoop(ctx, frames); err != nil {
		t.Fatalf("unexpected read loop error: %v", err)
	}
	select {
	case f := <-frames:
		if f.Type != wsproto.TypeTTSEnd || !f.Terminal() {
			t.Errorf("expected terminal tts_end frame, got %+v", f)
		}
	default:
		t.Fatal("expected a frame from the read loop")
	}
}
