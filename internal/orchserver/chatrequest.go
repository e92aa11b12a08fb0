package orchserver

import (
	"encoding/json"
	"fmt"
)

// ChatRequest is the single JSON object the client sends as the first
// frame on /chat.
type ChatRequest struct {
	Prompt      string
	SessionID   string
	AudioFormat string
	SampleRate  int
	Channels    int
	// WSTTSURL lets a trusted caller point this orchestrator at a
	// non-default TTS gateway. Honored only when ALLOW_CLIENT_TTS_URL=true.
	WSTTSURL string
}

type chatRequestWire struct {
	Prompt      *string `json:"prompt"`
	SessionID   *string `json:"session_id"`
	AudioFormat *string `json:"audio_format"`
	SampleRate  *int    `json:"sample_rate"`
	Channels    *int    `json:"channels"`
	WSTTSURL    *string `json:"ws_tts_url"`
}

// ParseChatRequest validates and decodes the first /chat frame.
func ParseChatRequest(raw []byte) (*ChatRequest, error) {
	var w chatRequestWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	req := &ChatRequest{}
	var err error
	if req.Prompt, err = requireNonEmptyString(w.Prompt, "prompt"); err != nil {
		return nil, err
	}
	if req.SessionID, err = requireNonEmptyString(w.SessionID, "session_id"); err != nil {
		return nil, err
	}
	if req.AudioFormat, err = requireNonEmptyString(w.AudioFormat, "audio_format"); err != nil {
		return nil, err
	}
	if req.AudioFormat != "pcm16_raw" && req.AudioFormat != "pcm16_wav" {
		return nil, fmt.Errorf("unsupported audio_format %q", req.AudioFormat)
	}
	if w.SampleRate == nil {
		return nil, fmt.Errorf("field %q must be an integer", "sample_rate")
	}
	req.SampleRate = *w.SampleRate
	if w.Channels == nil {
		return nil, fmt.Errorf("field %q must be an integer", "channels")
	}
	req.Channels = *w.Channels
	if w.WSTTSURL != nil {
		req.WSTTSURL = *w.WSTTSURL
	}
	return req, nil
}

func requireNonEmptyString(v *string, field string) (string, error) {
	if v == nil || *v == "" {
		return "", fmt.Errorf("field %q must be a non-empty string", field)
	}
	return *v, nil
}
