package gwconfig

import (
	"strings"

	"github.com/voxstream/gateway/internal/obs"
)

// OrchestratorConfig is the root configuration for cmd/orchestrator.
type OrchestratorConfig struct {
	Host   string
	Port   string
	APIKey string // ORCH_API_KEY; empty disables auth

	SGLangBaseURL string
	SGLangAPIKey  string
	SGLangModel   string

	TTSFlushMinChars int
	TTSFlushOnPunct  bool

	WSTTSURL        string
	WSTTSAPIKey     string
	AllowClientTTSURL bool

	TextQueueCapacity int

	LogLevel  obs.LogLevel
	LogFormat obs.LogFormat
	TracingEnabled bool
}

// LoadOrchestratorConfig reads the orchestrator's configuration from the
// environment, including default upstream URLs for SGLANG_BASE_URL and
// WS_TTS_URL so the service is runnable with zero configuration against a
// locally-running SGLang server and TTS gateway.
func LoadOrchestratorConfig() (*OrchestratorConfig, error) {
	return &OrchestratorConfig{
		Host:              getEnv("ORCH_HOST", "0.0.0.0"),
		Port:              getEnv("ORCH_PORT", "9100"),
		APIKey:            strings.TrimSpace(getEnv("ORCH_API_KEY", "")),
		SGLangBaseURL:     strings.TrimRight(getEnv("SGLANG_BASE_URL", "http://localhost:8082"), "/"),
		SGLangAPIKey:      getEnv("SGLANG_API_KEY", ""),
		SGLangModel:       getEnv("SGLANG_MODEL", ""),
		TTSFlushMinChars:  getEnvInt("TTS_FLUSH_MIN_CHARS", 12),
		TTSFlushOnPunct:   boolEnv("TTS_FLUSH_ON_PUNCT", true),
		WSTTSURL:          getEnv("WS_TTS_URL", "ws://localhost:9000/tts"),
		WSTTSAPIKey:       getEnv("WS_TTS_API_KEY", ""),
		AllowClientTTSURL: boolEnv("ALLOW_CLIENT_TTS_URL", false),
		TextQueueCapacity: getEnvInt("ORCH_TEXT_QUEUE_SIZE", 1024),
		LogLevel:          logLevelEnv("LOG_LEVEL", obs.LogInfo),
		LogFormat:         logFormatEnv("LOG_FORMAT", obs.FormatText),
		TracingEnabled:    boolEnv("OTEL_TRACES_ENABLED", false),
	}, nil
}

// ChatCompletionsURL builds the upstream chat-completions URL.
func (c *OrchestratorConfig) ChatCompletionsURL() string {
	return c.SGLangBaseURL + "/v1/chat/completions"
}
