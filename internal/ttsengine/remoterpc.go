package ttsengine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// RemoteRPCConfig configures the remote_rpc backend: a WebSocket endpoint
// that accepts a single synthesis request and streams back PCM16 chunks.
type RemoteRPCConfig struct {
	URL    string
	APIKey string
}

// RemoteRPCEngine dials a remote synthesis service over WebSocket for each
// request: it sends a single request frame, reads back a stream of chunk
// frames, and reads a final frame marking completion.
type RemoteRPCEngine struct {
	cfg RemoteRPCConfig
}

// NewRemoteRPCEngine validates cfg and returns a ready RemoteRPCEngine.
func NewRemoteRPCEngine(cfg RemoteRPCConfig) (*RemoteRPCEngine, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ttsengine: remote_rpc requires a URL (REMOTE_TTS_URL)")
	}
	return &RemoteRPCEngine{cfg: cfg}, nil
}

type remoteRequest struct {
	Text       string `json:"text"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type remoteResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error,omitempty"`
}

func (e *RemoteRPCEngine) dial(ctx context.Context) (*websocket.Conn, error) {
	var header http.Header
	if e.cfg.APIKey != "" {
		header = http.Header{"Authorization": []string{"Bearer " + e.cfg.APIKey}}
	}
	conn, _, err := websocket.Dial(ctx, e.cfg.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("ttsengine: remote_rpc dial: %w", err)
	}
	return conn, nil
}

// SynthesizePCM16 implements Engine by draining the streaming variant.
func (e *RemoteRPCEngine) SynthesizePCM16(ctx context.Context, text string, spec AudioSpec) ([]byte, error) {
	chunks, errCh := e.SynthesizePCM16Stream(ctx, text, spec, DefaultChunkBytes)
	var buf []byte
	for chunk := range chunks {
		buf = append(buf, chunk...)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return buf, nil
}

// SynthesizePCM16Stream implements Engine.
func (e *RemoteRPCEngine) SynthesizePCM16Stream(ctx context.Context, text string, spec AudioSpec, chunkBytes int) (<-chan []byte, <-chan error) {
	out := make(chan []byte)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		conn, err := e.dial(ctx)
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "synthesis complete")

		req := remoteRequest{Text: text, SampleRate: spec.SampleRate, Channels: spec.Channels}
		payload, _ := json.Marshal(req)
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			errCh <- fmt.Errorf("ttsengine: remote_rpc send request: %w", err)
			return
		}

		var pending []byte
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errCh <- fmt.Errorf("ttsengine: remote_rpc read: %w", err)
				return
			}
			var resp remoteResponse
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			if resp.Error != "" {
				errCh <- fmt.Errorf("ttsengine: remote_rpc backend error: %s", resp.Error)
				return
			}
			if resp.Audio != "" {
				pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
				if err != nil {
					errCh <- fmt.Errorf("ttsengine: remote_rpc decode audio: %w", err)
					return
				}
				pending = append(pending, pcm...)
				for len(pending) >= chunkBytes {
					select {
					case out <- pending[:chunkBytes]:
					case <-ctx.Done():
						return
					}
					pending = pending[chunkBytes:]
				}
			}
			if resp.IsFinal {
				if len(pending) > 0 {
					select {
					case out <- pending:
					case <-ctx.Done():
						return
					}
				}
				return
			}
		}
	}()

	return out, errCh
}
