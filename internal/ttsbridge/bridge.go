// Package ttsbridge is the orchestrator's WebSocket client to the TTS
// gateway's /tts endpoint: it dials out, sends the initial start frame,
// and relays text units and terminal frames in both directions for the
// life of one chat session.
package ttsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxstream/gateway/internal/wsproto"
)

// Config describes the session this bridge opens on the TTS gateway.
type Config struct {
	URL         string
	APIKey      string
	SessionID   string
	AudioFormat string
	SampleRate  int
	Channels    int
}

// Bridge owns one outbound WebSocket connection to the TTS gateway for the
// lifetime of a single chat session.
type Bridge struct {
	conn *websocket.Conn

	mu  sync.Mutex
	seq int64
}

// Dial opens the connection and sends the initial "start" frame.
func Dial(ctx context.Context, cfg Config) (*Bridge, error) {
	opts := &websocket.DialOptions{}
	if cfg.APIKey != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + cfg.APIKey}}
	}
	conn, _, err := websocket.Dial(ctx, cfg.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("ttsbridge: dial %s: %w", cfg.URL, err)
	}
	conn.SetReadLimit(16 * 1024 * 1024)

	b := &Bridge{conn: conn}
	start := wsproto.Start{
		Type:        wsproto.TypeStart,
		SessionID:   cfg.SessionID,
		AudioFormat: cfg.AudioFormat,
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.Channels,
	}
	if err := b.send(ctx, start); err != nil {
		conn.Close(websocket.StatusInternalError, "start send failed")
		return nil, err
	}
	return b, nil
}

func (b *Bridge) send(ctx context.Context, v any) error {
	data, err := wsproto.Marshal(v)
	if err != nil {
		return fmt.Errorf("ttsbridge: encode: %w", err)
	}
	return b.conn.Write(ctx, websocket.MessageText, data)
}

func (b *Bridge) nextSeq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq
}

// SendText forwards one flushed text unit as a text_delta frame.
func (b *Bridge) SendText(ctx context.Context, sessionID, text string) error {
	return b.send(ctx, wsproto.TextDelta{
		Type:      wsproto.TypeTextDelta,
		SessionID: sessionID,
		Seq:       b.nextSeq(),
		Text:      text,
	})
}

// SendTextEnd signals that no further text will arrive for this session.
func (b *Bridge) SendTextEnd(ctx context.Context, sessionID string) error {
	return b.send(ctx, wsproto.TextEnd{Type: wsproto.TypeTextEnd, SessionID: sessionID, Seq: b.nextSeq()})
}

// SendCancel terminates the session early.
func (b *Bridge) SendCancel(ctx context.Context, sessionID string) error {
	return b.send(ctx, wsproto.Cancel{Type: wsproto.TypeCancel, SessionID: sessionID, Seq: b.nextSeq()})
}

// Close tears down the connection.
func (b *Bridge) Close() error {
	return b.conn.Close(websocket.StatusNormalClosure, "")
}

// Frame is one decoded inbound message from the TTS gateway, kept as raw
// JSON plus its discriminant so the caller can forward it to the chat
// client unmodified.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

// Terminal reports whether this frame ends the TTS session (tts_end or
// error).
func (f Frame) Terminal() bool {
	return f.Type == wsproto.TypeTTSEnd || f.Type == wsproto.TypeError
}

// ReadLoop reads frames from the TTS gateway until a terminal frame
// arrives, ctx is cancelled, or the connection fails, sending each decoded
// frame on out. The caller is responsible for draining out promptly; this
// blocks on out <- f so a slow consumer applies backpressure to the read
// loop itself.
func (b *Bridge) ReadLoop(ctx context.Context, out chan<- Frame) error {
	for {
		_, data, err := b.conn.Read(ctx)
		if err != nil {
			return err
		}
		typ, err := wsproto.DecodeType(data)
		if err != nil {
			continue // malformed frame from a well-behaved peer: ignore and keep reading
		}
		f := Frame{Type: typ, Raw: json.RawMessage(data)}
		select {
		case out <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
		if f.Terminal() {
			return nil
		}
	}
}

// SenderLoop drains textUnits, forwarding each as a text_delta, until the
// channel closes (the LLM stream finished normally) or cancelRequested
// fires. It then sends text_end or cancel to match.
func (b *Bridge) SenderLoop(ctx context.Context, sessionID string, textUnits <-chan string, cancelRequested <-chan struct{}) error {
	for {
		select {
		case <-cancelRequested:
			return b.SendCancel(ctx, sessionID)
		case text, ok := <-textUnits:
			if !ok {
				select {
				case <-cancelRequested:
					return b.SendCancel(ctx, sessionID)
				default:
					return b.SendTextEnd(ctx, sessionID)
				}
			}
			if err := b.SendText(ctx, sessionID, text); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// DialTimeout is a connect timeout callers can place on ctx before Dial.
// Dial applies no timeout of its own; it relies on ctx's deadline.
const DialTimeout = 10 * time.Second

// PingInterval sits in the middle of the spec's 20-30s heartbeat window.
const PingInterval = 25 * time.Second

// PingLoop sends periodic WebSocket pings to the TTS gateway until ctx is
// done, returning the first ping error so the caller can tear the session
// down instead of waiting for a blocked Read to notice the dead peer.
func (b *Bridge) PingLoop(ctx context.Context) error {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, PingInterval)
			err := b.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
