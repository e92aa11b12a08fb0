// Package ttsengine defines the pluggable TTS synthesis backend contract
// and its concrete implementations (dummy, local_cli, remote_rpc).
package ttsengine

import "context"

// AudioSpec describes the PCM16 format a synthesis result must conform to.
type AudioSpec struct {
	SampleRate int
	Channels   int
}

// Engine synthesizes text into strict PCM16 little-endian audio at the
// requested AudioSpec. Implementations that receive RIFF/WAVE output from
// their backend must strip and validate the header rather than silently
// resampling on a mismatch.
type Engine interface {
	// SynthesizePCM16 returns the complete raw PCM16LE payload for text.
	SynthesizePCM16(ctx context.Context, text string, spec AudioSpec) ([]byte, error)

	// SynthesizePCM16Stream returns a channel of PCM16LE chunks, each at
	// most chunkBytes long. The channel is closed when synthesis completes
	// or ctx is cancelled; a synthesis error is reported via the returned
	// error channel before both close.
	SynthesizePCM16Stream(ctx context.Context, text string, spec AudioSpec, chunkBytes int) (<-chan []byte, <-chan error)
}

// DefaultChunkBytes is the default streaming chunk size.
const DefaultChunkBytes = 8192

// streamBySlicing is the shared "synthesize whole, then slice" strategy
// used by the dummy and local_cli backends (via synthThenSlice): they
// produce a complete PCM16 buffer that is then chunked for delivery.
// remote_rpc does not use it; it re-chunks audio frames as they arrive.
func streamBySlicing(ctx context.Context, pcm []byte, chunkBytes int) (<-chan []byte, <-chan error) {
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	out := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		for i := 0; i < len(pcm); i += chunkBytes {
			end := i + chunkBytes
			if end > len(pcm) {
				end = len(pcm)
			}
			chunk := pcm[i:end]
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errCh
}

// synthThenSlice is a helper that backends compose with their own
// SynthesizePCM16 implementation to build SynthesizePCM16Stream.
func synthThenSlice(ctx context.Context, synth func(context.Context, string, AudioSpec) ([]byte, error), text string, spec AudioSpec, chunkBytes int) (<-chan []byte, <-chan error) {
	pcm, err := synth(ctx, text, spec)
	if err != nil {
		out := make(chan []byte)
		errCh := make(chan error, 1)
		close(out)
		errCh <- err
		close(errCh)
		return out, errCh
	}
	return streamBySlicing(ctx, pcm, chunkBytes)
}
