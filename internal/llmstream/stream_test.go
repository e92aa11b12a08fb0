package llmstream

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl, _ := w.(http.Flusher)
		bw := bufio.NewWriter(w)
		for _, l := range lines {
			fmt.Fprintln(bw, l)
		}
		bw.Flush()
		if fl != nil {
			fl.Flush()
		}
	}))
}

func TestStream_FlushesOnLengthThreshold(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"hello world, this is long enough"}}]}`,
		"data: [DONE]",
	})
	defer srv.Close()

	textUnits := make(chan string, 8)
	res, err := Stream(context.Background(), srv.Client(), Config{
		URL: srv.URL, APIKey: "k", Model: "m", Prompt: "p",
		FlushMinChars: 12, FlushOnPunct: true,
	}, textUnits, Callbacks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FullText != "hello world, this is long enough" {
		t.Errorf("unexpected full text: %q", res.FullText)
	}
	select {
	case unit := <-textUnits:
		if unit == "" {
			t.Error("expected non-empty flushed unit")
		}
	default:
		t.Error("expected at least one flushed text unit")
	}
}

func TestStream_ParseErrorIsNonFatal(t *testing.T) {
	srv := sseServer(t, []string{
		"data: {not json}",
		`data: {"choices":[{"delta":{"content":"ok"}}]}`,
		"data: [DONE]",
	})
	defer srv.Close()

	var parseErrs []string
	textUnits := make(chan string, 8)
	res, err := Stream(context.Background(), srv.Client(), Config{
		URL: srv.URL, APIKey: "k", Model: "m", Prompt: "p",
		FlushMinChars: 1000, FlushOnPunct: false,
	}, textUnits, Callbacks{
		OnParseError: func(raw string) { parseErrs = append(parseErrs, raw) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parseErrs) != 1 {
		t.Fatalf("expected exactly one parse error, got %d", len(parseErrs))
	}
	if res.FullText != "ok" {
		t.Errorf("unexpected full text after recovering from parse error: %q", res.FullText)
	}
}

func TestStream_ToolCallsAccumulate(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"lookup","arguments":"{\"q\":"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"x\"}"}}]}}]}`,
		"data: [DONE]",
	})
	defer srv.Close()

	var seen []ToolCall
	textUnits := make(chan string, 8)
	res, err := Stream(context.Background(), srv.Client(), Config{
		URL: srv.URL, APIKey: "k", Model: "m", Prompt: "p",
		FlushMinChars: 12, FlushOnPunct: true,
	}, textUnits, Callbacks{
		OnToolCallsDelta: func(calls []ToolCall) { seen = calls },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.ToolCalls) != 1 {
		t.Fatalf("expected 1 accumulated tool call, got %d", len(res.ToolCalls))
	}
	tc := res.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "lookup" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if tc.Function.Arguments != `{"q":"x"}` {
		t.Errorf("unexpected accumulated arguments: %q", tc.Function.Arguments)
	}
	if len(seen) == 0 {
		t.Error("expected OnToolCallsDelta to be invoked")
	}
}

func TestStream_MissingAPIKey(t *testing.T) {
	textUnits := make(chan string, 1)
	_, err := Stream(context.Background(), http.DefaultClient, Config{URL: "http://example.invalid"}, textUnits, Callbacks{})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestEndsInPunctuation(t *testing.T) {
	cases := map[string]bool{"hi.": true, "hi,": true, "hi": false, "": false, "你好。": true}
	for s, want := range cases {
		if got := endsInPunctuation(s); got != want {
			t.Errorf("endsInPunctuation(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestStream_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	textUnits := make(chan string, 1)
	_, err := Stream(context.Background(), srv.Client(), Config{URL: srv.URL, APIKey: "k"}, textUnits, Callbacks{})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected error mentioning 500, got %v", err)
	}
}

func TestStream_CancelledDoesNotCloseChannel(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"x"}}]}`,
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	textUnits := make(chan string, 1)
	_, _ = Stream(ctx, srv.Client(), Config{URL: srv.URL, APIKey: "k", FlushMinChars: 1000}, textUnits, Callbacks{})

	select {
	case _, ok := <-textUnits:
		if !ok {
			t.Error("channel should not be closed when context was cancelled mid-stream")
		}
	default:
	}
}
