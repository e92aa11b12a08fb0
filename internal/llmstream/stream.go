// Package llmstream streams chat-completion deltas from an OpenAI-style
// SSE endpoint, accumulating tool calls and segmenting content into
// flush-ready text units for the TTS bridge.
//
// The SSE body is parsed by hand with bufio.Scanner rather than through an
// OpenAI client SDK: a malformed "data: " line must be reported to the
// client as orchestrator_error{code:"llm_parse_error"} and the stream must
// continue, a recovery path no off-the-shelf streaming client exposes.
package llmstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrBackpressure is returned by Stream when textUnits is full at flush
// time: the caller's consumer (the TTS bridge's sender loop) isn't
// draining fast enough, so the stream is aborted rather than blocking
// indefinitely on the channel send.
var ErrBackpressure = errors.New("llmstream: text unit queue backpressure")

// punctuation is the flush-triggering punctuation set: CJK and ASCII
// sentence/clause boundaries, plus newline.
const punctuation = "，。！？；：,.!?;\n"

// Config describes one streamed chat-completion request.
type Config struct {
	URL              string
	APIKey           string
	Model            string
	Prompt           string
	FlushMinChars    int
	FlushOnPunct     bool
}

// Callbacks lets the caller observe the stream as it is parsed, so the
// orchestrator can forward each event to the chat client as it happens.
type Callbacks struct {
	OnDelta          func(content string)
	OnToolCallsDelta func(calls []ToolCall)
	OnParseError     func(rawLine string)
}

// Result is returned once the stream ends normally.
type Result struct {
	FullText  string
	ToolCalls []ToolCall
}

type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content   string        `json:"content"`
			ToolCalls []rawToolCall `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream posts Config.Prompt to an OpenAI-compatible /v1/chat/completions
// endpoint with stream:true, and parses the SSE body line by line. Content
// deltas are segmented into text units and sent on textUnits as each flush
// threshold is reached (length first, then trailing punctuation).
//
// If the stream completes without ctx being cancelled, any remaining
// buffered text is flushed and textUnits is closed. On cancellation the
// channel is left open and unclosed for the caller (which owns the
// cancel/resume decision) to deal with.
func Stream(ctx context.Context, client *http.Client, cfg Config, textUnits chan<- string, cb Callbacks) (Result, error) {
	if cfg.APIKey == "" {
		return Result{}, fmt.Errorf("llmstream: missing API key")
	}
	flushMinChars := cfg.FlushMinChars
	if flushMinChars <= 0 {
		flushMinChars = 12
	}

	payload := map[string]any{
		"model":    cfg.Model,
		"messages": []map[string]string{{"role": "user", "content": cfg.Prompt}},
		"stream":   true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("llmstream: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("llmstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("llmstream: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2000))
		return Result{}, fmt.Errorf("llmstream: upstream responded %d: %s", resp.StatusCode, string(b))
	}

	acc := NewToolCallAccumulator()
	var fullText strings.Builder
	var ttsBuffer strings.Builder

	// flush is a non-blocking send: a full channel means the consumer is
	// falling behind, which is reported to the caller as ErrBackpressure
	// rather than allowed to block the stream indefinitely.
	flush := func() bool {
		if ttsBuffer.Len() == 0 {
			return true
		}
		select {
		case textUnits <- ttsBuffer.String():
			ttsBuffer.Reset()
			return true
		default:
			return false
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if line == "data: [DONE]" {
			break
		}

		var chunk sseChunk
		if err := json.Unmarshal([]byte(line[len("data: "):]), &chunk); err != nil || len(chunk.Choices) == 0 {
			if cb.OnParseError != nil {
				cb.OnParseError(truncate(line, 2000))
			}
			continue
		}

		delta := chunk.Choices[0].Delta
		if len(delta.ToolCalls) > 0 {
			acc.Apply(delta.ToolCalls)
			if cb.OnToolCallsDelta != nil {
				cb.OnToolCallsDelta(acc.Snapshot())
			}
		}

		if delta.Content != "" {
			fullText.WriteString(delta.Content)
			if cb.OnDelta != nil {
				cb.OnDelta(delta.Content)
			}
			ttsBuffer.WriteString(delta.Content)
			shouldFlush := ttsBuffer.Len() >= flushMinChars ||
				(cfg.FlushOnPunct && endsInPunctuation(ttsBuffer.String()))
			if shouldFlush && !flush() {
				return Result{FullText: fullText.String(), ToolCalls: acc.Snapshot()}, ErrBackpressure
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("llmstream: reading stream: %w", err)
	}

	if ctx.Err() == nil {
		if !flush() {
			return Result{FullText: fullText.String(), ToolCalls: acc.Snapshot()}, ErrBackpressure
		}
		close(textUnits)
	}

	return Result{FullText: fullText.String(), ToolCalls: acc.Snapshot()}, nil
}

func endsInPunctuation(s string) bool {
	if s == "" {
		return false
	}
	last := []rune(s)
	return strings.ContainsRune(punctuation, last[len(last)-1])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
