package gwconfig

import "github.com/voxstream/gateway/internal/obs"

// TTSGatewayConfig is the root configuration for cmd/ttsgateway.
type TTSGatewayConfig struct {
	Host string
	Port string

	Engine string // WS_TTS_ENGINE: dummy | local_cli | remote_rpc
	Version string

	CacheSize             int
	SendQueueHighWaterMark int
	DefaultTTLSeconds      int

	PiperBin        string
	PiperModel      string
	PiperSpeakerID  *int
	PiperExtraArgs  []string
	PiperOutputMode string
	PiperChunkBytes int

	RemoteTTSURL    string
	RemoteTTSAPIKey string

	LogLevel  obs.LogLevel
	LogFormat obs.LogFormat
	TracingEnabled bool
}

// LoadTTSGatewayConfig reads the TTS gateway's configuration from the
// environment.
func LoadTTSGatewayConfig() (*TTSGatewayConfig, error) {
	cfg := &TTSGatewayConfig{
		Host:                   getEnv("WS_TTS_HOST", "0.0.0.0"),
		Port:                   getEnv("WS_TTS_PORT", "9000"),
		Engine:                 getEnv("WS_TTS_ENGINE", "dummy"),
		Version:                getEnv("WS_TTS_VERSION", "dev"),
		CacheSize:              getEnvInt("TTS_CACHE_SIZE", 64),
		SendQueueHighWaterMark: getEnvInt("TTS_BACKPRESSURE_HIGH_WATER", 1024),
		DefaultTTLSeconds:      getEnvInt("TTS_SESSION_TTL_SECONDS", 60),
		PiperBin:               getEnv("PIPER_BIN", ""),
		PiperModel:             getEnv("PIPER_MODEL", ""),
		PiperOutputMode:        getEnv("PIPER_OUTPUT_MODE", "file"),
		PiperChunkBytes:        getEnvInt("PIPER_CHUNK_BYTES", 8192),
		RemoteTTSURL:           getEnv("REMOTE_TTS_URL", ""),
		RemoteTTSAPIKey:        getEnv("REMOTE_TTS_API_KEY", ""),
		LogLevel:               logLevelEnv("LOG_LEVEL", obs.LogInfo),
		LogFormat:              logFormatEnv("LOG_FORMAT", obs.FormatText),
		TracingEnabled:         boolEnv("OTEL_TRACES_ENABLED", false),
	}

	if v := getEnv("PIPER_SPEAKER_ID", ""); v != "" {
		if n, err := parseIntPtr(v); err == nil {
			cfg.PiperSpeakerID = n
		}
	}
	if v := getEnv("PIPER_EXTRA_ARGS", ""); v != "" {
		cfg.PiperExtraArgs = splitSpace(v)
	}

	return cfg, nil
}
