package ttsengine

import (
	"context"
	"encoding/binary"
	"math"
)

// DummyEngine synthesizes a fixed-frequency sine tone whose duration is
// proportional to the input text length. It shells out to nothing and
// never fails validation, making it suitable for local development and
// tests.
type DummyEngine struct {
	// ToneHz is the sine frequency. Defaults to 440 Hz if zero.
	ToneHz float64
	// MillisPerChar is how many milliseconds of audio one input character
	// produces. Defaults to 30ms if zero.
	MillisPerChar float64
}

func (d *DummyEngine) toneHz() float64 {
	if d.ToneHz <= 0 {
		return 440.0
	}
	return d.ToneHz
}

func (d *DummyEngine) millisPerChar() float64 {
	if d.MillisPerChar <= 0 {
		return 30.0
	}
	return d.MillisPerChar
}

// SynthesizePCM16 implements Engine.
func (d *DummyEngine) SynthesizePCM16(_ context.Context, text string, spec AudioSpec) ([]byte, error) {
	if text == "" {
		return []byte{}, nil
	}
	durationMs := float64(len([]rune(text))) * d.millisPerChar()
	numFrames := int(durationMs / 1000.0 * float64(spec.SampleRate))
	if numFrames <= 0 {
		numFrames = 1
	}

	buf := make([]byte, numFrames*spec.Channels*2)
	freq := d.toneHz()
	for i := 0; i < numFrames; i++ {
		sample := int16(0.2 * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(spec.SampleRate)))
		for c := 0; c < spec.Channels; c++ {
			off := (i*spec.Channels + c) * 2
			binary.LittleEndian.PutUint16(buf[off:off+2], uint16(sample))
		}
	}
	return buf, nil
}

// SynthesizePCM16Stream implements Engine by synthesizing the whole tone
// and slicing it, matching every other backend's contract.
func (d *DummyEngine) SynthesizePCM16Stream(ctx context.Context, text string, spec AudioSpec, chunkBytes int) (<-chan []byte, <-chan error) {
	return synthThenSlice(ctx, d.SynthesizePCM16, text, spec, chunkBytes)
}
