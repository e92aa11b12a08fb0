// Package wsproto implements the tagged-union JSON control protocol shared
// between the TTS gateway and the orchestrator. Each variant is its own
// struct carrying a Type discriminant; [DecodeType] reads the discriminant
// and a per-variant decoder ([DecodeStart], [DecodeTextDelta], ...)
// validates that variant's required fields. DecodeType accepts any string
// type; rejecting unknown discriminants is left to the caller's dispatch.
package wsproto

import (
	"encoding/json"
	"fmt"
)

// Message types exchanged over the /tts and /chat WebSocket endpoints.
const (
	TypeStart             = "start"
	TypeStartAck           = "start_ack"
	TypeTextDelta          = "text_delta"
	TypeTextEnd            = "text_end"
	TypeCancel             = "cancel"
	TypeResume             = "resume"
	TypeAudioChunk         = "audio_chunk"
	TypeTTSEnd             = "tts_end"
	TypeError              = "error"
	TypeOrchestratorStart  = "orchestrator_start"
	TypeOrchestratorCancel = "orchestrator_cancelled"
	TypeOrchestratorError  = "orchestrator_error"
	TypeLLMDelta           = "llm_delta"
	TypeLLMDone            = "llm_done"
	TypeToolCallsDelta     = "tool_calls_delta"
)

// Error codes reported in the "error"/"orchestrator_error" message's "code"
// field.
const (
	ErrBadRequest          = "bad_request"
	ErrBackpressure        = "backpressure"
	ErrResumeNotAvailable  = "resume_not_available"
	ErrInternal            = "internal_error"
	ErrTTSSend             = "tts_send_error"
	ErrLLMParse            = "llm_parse_error"
)

// ProtocolError reports a client-fault condition: malformed JSON, a missing
// required field, a type mismatch, or an unrecognized discriminant. The
// caller maps this to a "bad_request" error message and closes the
// connection.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "wsproto: " + e.Reason }

func protoErrf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// Start is sent client → tts to open or resume a session. Type is omitted
// by DecodeStart's caller (the discriminant is validated separately) but
// included here so the orchestrator's TTS bridge can marshal it outbound.
type Start struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	AudioFormat string `json:"audio_format"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
}

// StartAck is sent tts → client in reply to Start.
type StartAck struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id"`
	AudioFormat      string `json:"audio_format"`
	SampleRate       int    `json:"sample_rate"`
	Channels         int    `json:"channels"`
	TTLSeconds       int    `json:"ttl_s"`
	WAVHeaderBase64  string `json:"wav_header_base64,omitempty"`
}

// TextDelta is sent client → tts carrying one segment of text to synthesize.
type TextDelta struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	Text      string `json:"text"`
}

// TextEnd is sent client → tts to signal no further text will arrive.
type TextEnd struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// Cancel is sent client → tts (or orchestrator client → orchestrator) to
// terminate a session early.
type Cancel struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// Resume is sent client → tts after reconnecting to replay cached audio.
// Type is only needed when constructing this struct for outbound marshaling
// (e.g. in tests); decoding goes through the envelope type instead.
type Resume struct {
	Type                  string `json:"type"`
	SessionID             string `json:"session_id"`
	LastUnitIndexReceived int64  `json:"last_unit_index_received"`
}

// AudioChunk is sent tts → client carrying one ordered slice of synthesized
// audio.
type AudioChunk struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id"`
	Seq            int64  `json:"seq"`
	UnitIndexStart int64  `json:"unit_index_start"`
	UnitIndexEnd   int64  `json:"unit_index_end"`
	PCMBase64      string `json:"pcm_base64"`
}

// TTSEnd is sent tts → client exactly once per session, always last.
type TTSEnd struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// ErrorMessage is sent tts → client or orchestrator → client describing a
// terminal or non-fatal error condition.
type ErrorMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Seq       int64  `json:"seq,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// envelope is the minimal shape used to discriminate an inbound frame
// before decoding it into a concrete variant.
type envelope struct {
	Type                  *json.RawMessage `json:"type"`
	SessionID             *json.RawMessage `json:"session_id"`
	AudioFormat           *json.RawMessage `json:"audio_format"`
	SampleRate            *json.RawMessage `json:"sample_rate"`
	Channels              *json.RawMessage `json:"channels"`
	Seq                   *json.RawMessage `json:"seq"`
	Text                  *json.RawMessage `json:"text"`
	LastUnitIndexReceived *json.RawMessage `json:"last_unit_index_received"`
}

func requireString(raw *json.RawMessage, field string) (string, error) {
	if raw == nil {
		return "", protoErrf("missing required field %q", field)
	}
	var s string
	if err := json.Unmarshal(*raw, &s); err != nil {
		return "", protoErrf("field %q must be a string", field)
	}
	return s, nil
}

func requireInt(raw *json.RawMessage, field string) (int64, error) {
	if raw == nil {
		return 0, protoErrf("missing required field %q", field)
	}
	var n int64
	if err := json.Unmarshal(*raw, &n); err != nil {
		return 0, protoErrf("field %q must be an integer", field)
	}
	return n, nil
}

// DecodeType reads only the "type" discriminant from a raw inbound frame.
func DecodeType(raw []byte) (string, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return "", protoErrf("invalid JSON: %v", err)
	}
	typ, err := requireString(e.Type, "type")
	if err != nil {
		return "", err
	}
	return typ, nil
}

// DecodeStart validates and decodes a "start" frame.
func DecodeStart(raw []byte) (*Start, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, protoErrf("invalid JSON: %v", err)
	}
	sessionID, err := requireString(e.SessionID, "session_id")
	if err != nil {
		return nil, err
	}
	format, err := requireString(e.AudioFormat, "audio_format")
	if err != nil {
		return nil, err
	}
	if format != "pcm16_raw" && format != "pcm16_wav" {
		return nil, protoErrf("unsupported audio_format %q", format)
	}
	sampleRate, err := requireInt(e.SampleRate, "sample_rate")
	if err != nil {
		return nil, err
	}
	channels, err := requireInt(e.Channels, "channels")
	if err != nil {
		return nil, err
	}
	return &Start{
		SessionID:   sessionID,
		AudioFormat: format,
		SampleRate:  int(sampleRate),
		Channels:    int(channels),
	}, nil
}

// DecodeTextDelta validates and decodes a "text_delta" frame.
func DecodeTextDelta(raw []byte) (*TextDelta, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, protoErrf("invalid JSON: %v", err)
	}
	sessionID, err := requireString(e.SessionID, "session_id")
	if err != nil {
		return nil, err
	}
	seq, err := requireInt(e.Seq, "seq")
	if err != nil {
		return nil, err
	}
	text, err := requireString(e.Text, "text")
	if err != nil {
		return nil, err
	}
	return &TextDelta{SessionID: sessionID, Seq: seq, Text: text}, nil
}

// DecodeTextEnd validates and decodes a "text_end" frame.
func DecodeTextEnd(raw []byte) (*TextEnd, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, protoErrf("invalid JSON: %v", err)
	}
	sessionID, err := requireString(e.SessionID, "session_id")
	if err != nil {
		return nil, err
	}
	seq, err := requireInt(e.Seq, "seq")
	if err != nil {
		return nil, err
	}
	return &TextEnd{SessionID: sessionID, Seq: seq}, nil
}

// DecodeCancel validates and decodes a "cancel" frame.
func DecodeCancel(raw []byte) (*Cancel, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, protoErrf("invalid JSON: %v", err)
	}
	sessionID, err := requireString(e.SessionID, "session_id")
	if err != nil {
		return nil, err
	}
	seq, err := requireInt(e.Seq, "seq")
	if err != nil {
		return nil, err
	}
	return &Cancel{SessionID: sessionID, Seq: seq}, nil
}

// DecodeResume validates and decodes a "resume" frame.
func DecodeResume(raw []byte) (*Resume, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, protoErrf("invalid JSON: %v", err)
	}
	sessionID, err := requireString(e.SessionID, "session_id")
	if err != nil {
		return nil, err
	}
	last, err := requireInt(e.LastUnitIndexReceived, "last_unit_index_received")
	if err != nil {
		return nil, err
	}
	return &Resume{SessionID: sessionID, LastUnitIndexReceived: last}, nil
}

// Marshal is a thin wrapper around json.Marshal used for all outbound
// frames, kept in one place so the compact-JSON contract (no extra
// whitespace) stays centralized; encoding/json's default Marshal already
// produces compact output.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
