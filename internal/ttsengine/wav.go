package ttsengine

import (
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the fixed size of a minimal 44-byte PCM RIFF/WAVE header.
const wavHeaderSize = 44

const pcmFormatCode = 1

// BuildWAVHeader builds a 44-byte RIFF/WAVE/fmt/data header for PCM16 audio
// with the data chunk size left at zero (the client is expected to patch it
// in when persisting to a file).
func BuildWAVHeader(sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], pcmFormatCode)
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], 0)
	return h
}

// isRIFFWAV reports whether b looks like a RIFF/WAVE container.
func isRIFFWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// parseWAVPCM16 walks a RIFF/WAVE container's chunks and extracts the PCM16
// format parameters and raw sample data: chunks are word-aligned, the walk
// stops once both "fmt " and "data" are found, and any format other than
// 16-bit PCM is rejected rather than resampled.
func parseWAVPCM16(wav []byte) (sampleRate, channels int, data []byte, err error) {
	if !isRIFFWAV(wav) {
		return 0, 0, nil, fmt.Errorf("ttsengine: not a RIFF/WAVE container")
	}
	if len(wav) < wavHeaderSize {
		return 0, 0, nil, fmt.Errorf("ttsengine: WAVE container shorter than minimal header")
	}

	var (
		haveFmt  bool
		haveData bool
		bits     int
	)

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		payloadStart := offset + 8
		payloadEnd := payloadStart + size
		if payloadEnd > len(wav) {
			break
		}

		switch chunkID {
		case "fmt ":
			if size < 16 {
				return 0, 0, nil, fmt.Errorf("ttsengine: fmt chunk too small (%d bytes)", size)
			}
			fmtPayload := wav[payloadStart:payloadEnd]
			audioFormat := int(binary.LittleEndian.Uint16(fmtPayload[0:2]))
			if audioFormat != pcmFormatCode {
				return 0, 0, nil, fmt.Errorf("ttsengine: unsupported WAVE format code %d, want PCM (1)", audioFormat)
			}
			channels = int(binary.LittleEndian.Uint16(fmtPayload[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtPayload[4:8]))
			bits = int(binary.LittleEndian.Uint16(fmtPayload[14:16]))
			haveFmt = true
		case "data":
			data = wav[payloadStart:payloadEnd]
			haveData = true
		}

		if haveFmt && haveData {
			break
		}

		// chunks are word-aligned
		offset = payloadEnd + (size % 2)
	}

	if !haveFmt || !haveData {
		return 0, 0, nil, fmt.Errorf("ttsengine: missing fmt or data chunk")
	}
	if bits != 16 {
		return 0, 0, nil, fmt.Errorf("ttsengine: unsupported bits-per-sample %d, want 16", bits)
	}
	return sampleRate, channels, data, nil
}

// validatePCM16FromBackend validates or extracts raw PCM16LE bytes from
// whatever a backend produced: if it is a RIFF/WAVE container it is parsed
// and its format is checked against the requested AudioSpec; otherwise the
// bytes are assumed to already be raw PCM16LE (the stdout passthrough case).
func validatePCM16FromBackend(raw []byte, spec AudioSpec) ([]byte, error) {
	if !isRIFFWAV(raw) {
		return raw, nil
	}
	sr, ch, data, err := parseWAVPCM16(raw)
	if err != nil {
		return nil, err
	}
	if sr != spec.SampleRate || ch != spec.Channels {
		return nil, fmt.Errorf("ttsengine: backend produced sample_rate=%d channels=%d, want sample_rate=%d channels=%d",
			sr, ch, spec.SampleRate, spec.Channels)
	}
	return data, nil
}
