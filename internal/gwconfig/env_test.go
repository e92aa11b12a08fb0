package gwconfig

import "testing"

func TestBoolEnv_Defaults(t *testing.T) {
	t.Setenv("TEST_BOOL_UNSET", "")
	if !boolEnv("TEST_BOOL_UNSET_MISSING", true) {
		t.Error("expected default true for unset var")
	}
}

func TestBoolEnv_TruthyValues(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "Y", "on"} {
		t.Setenv("TEST_BOOL_TRUTHY", v)
		if !boolEnv("TEST_BOOL_TRUTHY", false) {
			t.Errorf("expected %q to parse truthy", v)
		}
	}
}

func TestBoolEnv_FalsyValues(t *testing.T) {
	t.Setenv("TEST_BOOL_FALSY", "false")
	if boolEnv("TEST_BOOL_FALSY", true) {
		t.Error("expected 'false' to parse falsy")
	}
}

func TestLoadOrchestratorConfig_Defaults(t *testing.T) {
	cfg, err := LoadOrchestratorConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChatCompletionsURL() != cfg.SGLangBaseURL+"/v1/chat/completions" {
		t.Errorf("unexpected chat completions URL: %s", cfg.ChatCompletionsURL())
	}
	if cfg.TTSFlushMinChars != 12 {
		t.Errorf("expected default flush min chars 12, got %d", cfg.TTSFlushMinChars)
	}
}

func TestLoadTTSGatewayConfig_Defaults(t *testing.T) {
	cfg, err := LoadTTSGatewayConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine != "dummy" {
		t.Errorf("expected default engine dummy, got %q", cfg.Engine)
	}
	if cfg.CacheSize != 64 {
		t.Errorf("expected default cache size 64, got %d", cfg.CacheSize)
	}
}
