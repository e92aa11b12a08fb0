package wsproto

import "testing"

func TestDecodeStart_OK(t *testing.T) {
	raw := []byte(`{"type":"start","session_id":"s1","audio_format":"pcm16_raw","sample_rate":22050,"channels":1}`)
	s, err := DecodeStart(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SessionID != "s1" || s.AudioFormat != "pcm16_raw" || s.SampleRate != 22050 || s.Channels != 1 {
		t.Errorf("unexpected decode: %+v", s)
	}
}

func TestDecodeStart_MissingField(t *testing.T) {
	raw := []byte(`{"type":"start","audio_format":"pcm16_raw","sample_rate":22050,"channels":1}`)
	if _, err := DecodeStart(raw); err == nil {
		t.Fatal("expected error for missing session_id")
	}
}

func TestDecodeStart_BadFormat(t *testing.T) {
	raw := []byte(`{"type":"start","session_id":"s1","audio_format":"mp3","sample_rate":22050,"channels":1}`)
	if _, err := DecodeStart(raw); err == nil {
		t.Fatal("expected error for unsupported audio_format")
	}
}

func TestDecodeStart_TypeMismatch(t *testing.T) {
	raw := []byte(`{"type":"start","session_id":"s1","audio_format":"pcm16_raw","sample_rate":"twenty","channels":1}`)
	if _, err := DecodeStart(raw); err == nil {
		t.Fatal("expected error for non-integer sample_rate")
	}
}

func TestDecodeType_Unknown(t *testing.T) {
	typ, err := DecodeType([]byte(`{"type":"frobnicate"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typ != "frobnicate" {
		t.Errorf("got %q", typ)
	}
}

func TestDecodeType_InvalidJSON(t *testing.T) {
	if _, err := DecodeType([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestDecodeResume_OK(t *testing.T) {
	r, err := DecodeResume([]byte(`{"type":"resume","session_id":"s1","last_unit_index_received":3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.LastUnitIndexReceived != 3 {
		t.Errorf("got %d", r.LastUnitIndexReceived)
	}
}
