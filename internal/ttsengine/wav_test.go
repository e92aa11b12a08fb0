package ttsengine

import (
	"encoding/binary"
	"testing"
)

func TestBuildWAVHeader_Shape(t *testing.T) {
	h := BuildWAVHeader(22050, 1)
	if len(h) != 44 {
		t.Fatalf("header length = %d, want 44", len(h))
	}
	if string(h[0:4]) != "RIFF" {
		t.Errorf("missing RIFF tag")
	}
	if string(h[8:12]) != "WAVE" {
		t.Errorf("missing WAVE tag")
	}
	if string(h[12:16]) != "fmt " {
		t.Errorf("missing fmt chunk")
	}
	if string(h[36:40]) != "data" {
		t.Errorf("missing data chunk")
	}
}

func TestParseWAVPCM16_RoundTrip(t *testing.T) {
	hdr := BuildWAVHeader(16000, 2)
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	// BuildWAVHeader leaves the sizes at zero; patch them as a writer would.
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+len(pcm)))
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(len(pcm)))
	wav := append(append([]byte{}, hdr...), pcm...)

	sr, ch, data, err := parseWAVPCM16(wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sr != 16000 || ch != 2 {
		t.Errorf("got sr=%d ch=%d", sr, ch)
	}
	if string(data) != string(pcm) {
		t.Errorf("data mismatch: got %v want %v", data, pcm)
	}
}

func TestValidatePCM16FromBackend_MismatchFails(t *testing.T) {
	hdr := BuildWAVHeader(16000, 1)
	wav := append(append([]byte{}, hdr...), []byte{1, 2}...)

	_, err := validatePCM16FromBackend(wav, AudioSpec{SampleRate: 22050, Channels: 1})
	if err == nil {
		t.Fatal("expected error on sample rate mismatch")
	}
}

func TestValidatePCM16FromBackend_PassthroughWhenNotWAV(t *testing.T) {
	raw := []byte{9, 9, 9, 9}
	out, err := validatePCM16FromBackend(raw, AudioSpec{SampleRate: 22050, Channels: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != string(raw) {
		t.Errorf("passthrough mismatch")
	}
}
