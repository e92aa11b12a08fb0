package ttsengine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// LocalCLIConfig configures the local_cli backend.
type LocalCLIConfig struct {
	BinPath    string
	ModelPath  string
	SpeakerID  *int
	ExtraArgs  []string
	// OutputMode is "file" (default) or "stdout", matching PIPER_OUTPUT_MODE.
	OutputMode string
}

// LocalCLIEngine shells out to a CLI speech synthesizer binary (e.g.
// Piper), writing text to its stdin. In "file" mode it reads a WAV payload
// back from a temp file and validates it; in "stdout" mode it passes
// --output-raw and takes stdout as raw PCM16LE, which is passed through
// unvalidated unless it starts with a RIFF/WAVE header.
type LocalCLIEngine struct {
	cfg LocalCLIConfig
}

// NewLocalCLIEngine validates cfg and returns a ready LocalCLIEngine.
func NewLocalCLIEngine(cfg LocalCLIConfig) (*LocalCLIEngine, error) {
	if cfg.BinPath == "" {
		return nil, fmt.Errorf("ttsengine: local_cli requires a binary path (PIPER_BIN)")
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ttsengine: local_cli requires a model path (PIPER_MODEL)")
	}
	if cfg.OutputMode == "" {
		cfg.OutputMode = "file"
	}
	return &LocalCLIEngine{cfg: cfg}, nil
}

func (e *LocalCLIEngine) buildArgs(outPath string) []string {
	args := []string{"--model", e.cfg.ModelPath}
	if e.cfg.SpeakerID != nil {
		args = append(args, "--speaker", fmt.Sprintf("%d", *e.cfg.SpeakerID))
	}
	if e.cfg.OutputMode == "stdout" {
		args = append(args, "--output-raw")
	} else {
		args = append(args, "--output_file", outPath)
	}
	args = append(args, e.cfg.ExtraArgs...)
	return args
}

// SynthesizePCM16 implements Engine.
func (e *LocalCLIEngine) SynthesizePCM16(ctx context.Context, text string, spec AudioSpec) ([]byte, error) {
	if text == "" {
		return []byte{}, nil
	}

	if e.cfg.OutputMode == "stdout" {
		return e.runStdout(ctx, text, spec)
	}
	return e.runTempFile(ctx, text, spec)
}

func (e *LocalCLIEngine) runStdout(ctx context.Context, text string, spec AudioSpec) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.cfg.BinPath, e.buildArgs("")...)
	cmd.Stdin = strings.NewReader(text + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ttsengine: local_cli synthesis failed: %v: %s", err, truncate(stderr.String(), 2000))
	}
	return validatePCM16FromBackend(stdout.Bytes(), spec)
}

func (e *LocalCLIEngine) runTempFile(ctx context.Context, text string, spec AudioSpec) ([]byte, error) {
	tmp, err := os.CreateTemp("", "ttsengine-*.wav")
	if err != nil {
		return nil, fmt.Errorf("ttsengine: create temp output file: %w", err)
	}
	outPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, e.cfg.BinPath, e.buildArgs(outPath)...)
	cmd.Stdin = strings.NewReader(text + "\n")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ttsengine: local_cli synthesis failed: %v: %s", err, truncate(stderr.String(), 2000))
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("ttsengine: read synthesis output: %w", err)
	}
	return validatePCM16FromBackend(out, spec)
}

// SynthesizePCM16Stream implements Engine.
func (e *LocalCLIEngine) SynthesizePCM16Stream(ctx context.Context, text string, spec AudioSpec, chunkBytes int) (<-chan []byte, <-chan error) {
	return synthThenSlice(ctx, e.SynthesizePCM16, text, spec, chunkBytes)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ReadinessFields reports backend-existence checks surfaced in the TTS
// gateway's /healthz payload.
func (e *LocalCLIEngine) ReadinessFields() map[string]any {
	return map[string]any{
		"piper_bin_exists":   fileExists(e.cfg.BinPath),
		"piper_model_exists": fileExists(e.cfg.ModelPath),
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
