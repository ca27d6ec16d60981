package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configEnvVars = []string{
	"CONFIG_FILE", "SERVICE_PRINCIPAL", "HTTP_PORT", "METRICS_PORT", "OWNER_ID", "LOG_LEVEL", "LOG_FORMAT",
	"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_API_KEY", "STT_MODEL", "STT_ENDPOINT", "STT_SAMPLE_RATE_HZ",
	"STT_VAD_THRESHOLD", "STT_PREFIX_PADDING", "STT_SILENCE_DURATION", "OPENAI_API_KEY", "DEEPGRAM_API_KEY",
	"CAPTURE_COMMAND", "CAPTURE_STOP_GRACE", "ME_AUDIO_FORMAT", "TURN_DEBOUNCE",
	"STORAGE_DRIVER", "MONGO_URI", "MONGO_DATABASE", "STORAGE_PERSIST_TIMEOUT",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_PARTIAL", "KAFKA_TOPIC_FINAL", "KAFKA_PRINCIPAL",
}

// clearEnv blanks every variable Load reads; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnvVars {
		t.Setenv(v, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Service.Principal != "svc-conversation-transcriber" {
		t.Errorf("expected default principal 'svc-conversation-transcriber', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default http port '8080', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.MetricsPort != "9090" {
		t.Errorf("expected default metrics port '9090', got %s", cfg.Service.MetricsPort)
	}

	if cfg.STT.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.SampleRateHz != 24000 {
		t.Errorf("expected default sample rate 24000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.SilenceDuration != 100*time.Millisecond {
		t.Errorf("expected default silence duration 100ms, got %v", cfg.STT.SilenceDuration)
	}

	if cfg.Aggregator.Debounce != 2*time.Second {
		t.Errorf("expected default debounce 2s, got %v", cfg.Aggregator.Debounce)
	}
	if cfg.Capture.Command != nil {
		t.Errorf("expected no capture command override, got %v", cfg.Capture.Command)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("expected default storage driver 'memory', got %s", cfg.Storage.Driver)
	}
	if cfg.Storage.PersistTimeout != 5*time.Second {
		t.Errorf("expected default persist timeout 5s, got %v", cfg.Storage.PersistTimeout)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}

	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogFormat != "json" {
		t.Errorf("expected default log format 'json', got %s", cfg.Observability.LogFormat)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STT_PROVIDER", "Deepgram")
	t.Setenv("STT_LANGUAGE_CODE", "es-ES")
	t.Setenv("STT_SAMPLE_RATE_HZ", "16000")
	t.Setenv("STT_SILENCE_DURATION", "300ms")
	t.Setenv("TURN_DEBOUNCE", "1500ms")
	t.Setenv("CAPTURE_COMMAND", "parec --format=s16le  --rate=24000")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("STORAGE_DRIVER", "mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.HTTPPort)
	}
	if cfg.STT.Provider != "deepgram" {
		t.Errorf("expected STT provider 'deepgram', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.SilenceDuration != 300*time.Millisecond {
		t.Errorf("expected silence duration 300ms, got %v", cfg.STT.SilenceDuration)
	}
	if cfg.Aggregator.Debounce != 1500*time.Millisecond {
		t.Errorf("expected debounce 1.5s, got %v", cfg.Aggregator.Debounce)
	}
	if len(cfg.Capture.Command) != 3 || cfg.Capture.Command[0] != "parec" {
		t.Errorf("unexpected capture command %q", cfg.Capture.Command)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %q", cfg.Kafka.Brokers)
	}
	if cfg.Storage.Driver != "mongo" || cfg.Storage.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STT_SAMPLE_RATE_HZ", "not-a-number")
	t.Setenv("STT_VAD_THRESHOLD", "high")
	t.Setenv("TURN_DEBOUNCE", "invalid")
	t.Setenv("KAFKA_ENABLED", "invalid")
	t.Setenv("STORAGE_PERSIST_TIMEOUT", "5")

	cfg := Load()

	if cfg.STT.SampleRateHz != 24000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.VADThreshold != 0.5 {
		t.Errorf("expected default VAD threshold on invalid input, got %v", cfg.STT.VADThreshold)
	}
	if cfg.Aggregator.Debounce != 2*time.Second {
		t.Errorf("expected default debounce on invalid input, got %v", cfg.Aggregator.Debounce)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected default Kafka enabled on invalid input")
	}
	if cfg.Storage.PersistTimeout != 5*time.Second {
		t.Errorf("expected default persist timeout on unitless input, got %v", cfg.Storage.PersistTimeout)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "my-service")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestLoad_ProviderKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("STT_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	if got := Load().STT.APIKey; got != "sk-test" {
		t.Errorf("expected provider-native key, got %q", got)
	}

	t.Setenv("STT_API_KEY", "explicit")
	if got := Load().STT.APIKey; got != "explicit" {
		t.Errorf("expected STT_API_KEY to win, got %q", got)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
service:
  owner_id: alice
stt:
  provider: google
  silence_duration: 250ms
aggregator:
  debounce: 3s
kafka:
  enabled: true
  brokers: [broker:9092]
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STT_PROVIDER", "mock")

	cfg := Load()

	if cfg.Service.OwnerID != "alice" {
		t.Errorf("expected owner from file, got %s", cfg.Service.OwnerID)
	}
	if cfg.STT.Provider != "mock" {
		t.Errorf("expected env to override file provider, got %s", cfg.STT.Provider)
	}
	if cfg.STT.SilenceDuration != 250*time.Millisecond {
		t.Errorf("expected silence duration from file, got %v", cfg.STT.SilenceDuration)
	}
	if cfg.Aggregator.Debounce != 3*time.Second {
		t.Errorf("expected debounce from file, got %v", cfg.Aggregator.Debounce)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 1 {
		t.Errorf("unexpected kafka config %+v", cfg.Kafka)
	}
	// Keys absent from the file keep their defaults.
	if cfg.STT.LanguageCode != "en-US" || cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected untouched defaults, got language %s port %s", cfg.STT.LanguageCode, cfg.Service.HTTPPort)
	}
}

func TestApplyFile_Errors(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("stt: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := cfg.ApplyFile(path); err == nil {
		t.Error("expected parse error")
	}
	if cfg.STT.Provider != "mock" {
		t.Errorf("expected config untouched after failed parse, got %s", cfg.STT.Provider)
	}
}

func TestLoad_UnreadableConfigFileIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if got := Load().STT.Provider; got != "mock" {
		t.Errorf("expected defaults when the file is missing, got %s", got)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL_VAR", tt.envValue)

			got := envOrDefaultBool("TEST_BOOL_VAR", tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestEnvOrDefaultList(t *testing.T) {
	def := []string{"default"}
	tests := []struct {
		name  string
		value string
		sep   string
		want  []string
	}{
		{"unset", "", ",", def},
		{"comma", "a,b", ",", []string{"a", "b"}},
		{"trims and drops empties", " a , ,b ", ",", []string{"a", "b"}},
		{"only separators", ",,", ",", def},
		{"whitespace", "cmd  -x\t-y", " ", []string{"cmd", "-x", "-y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_LIST_VAR", tt.value)

			got := envOrDefaultList("TEST_LIST_VAR", tt.sep, def)
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %q, want %q", got, tt.want)
				}
			}
		})
	}
}
