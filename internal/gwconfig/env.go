// Package gwconfig loads the environment-variable-driven configuration for
// both services, expressed as typed Config structs with a
// Load() (*Config, error) constructor per service — see DESIGN.md for why
// this stays stdlib rather than reaching for a flag/file-oriented library.
package gwconfig

import (
	"os"
	"strconv"
	"strings"

	"github.com/voxstream/gateway/internal/obs"
)

func getEnv(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// boolEnv parses name case-insensitively against the truthy set
// {"1","true","yes","y","on"}.
func boolEnv(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func logLevelEnv(name string, def obs.LogLevel) obs.LogLevel {
	switch strings.ToLower(getEnv(name, string(def))) {
	case string(obs.LogDebug):
		return obs.LogDebug
	case string(obs.LogWarn):
		return obs.LogWarn
	case string(obs.LogError):
		return obs.LogError
	default:
		return obs.LogInfo
	}
}

func logFormatEnv(name string, def obs.LogFormat) obs.LogFormat {
	if strings.ToLower(getEnv(name, string(def))) == string(obs.FormatJSON) {
		return obs.FormatJSON
	}
	return obs.FormatText
}
