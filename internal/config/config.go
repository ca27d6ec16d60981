// Package config loads service configuration from defaults, an optional
// YAML file and environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	STT           STTConfig           `yaml:"stt"`
	Capture       CaptureConfig       `yaml:"capture"`
	Aggregator    AggregatorConfig    `yaml:"aggregator"`
	Storage       StorageConfig       `yaml:"storage"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServiceConfig holds service identity and listener configuration.
type ServiceConfig struct {
	Principal   string `yaml:"principal"`
	HTTPPort    string `yaml:"http_port"`
	MetricsPort string `yaml:"metrics_port"`
	OwnerID     string `yaml:"owner_id"` // user the session records belong to
}

// STTConfig holds STT provider configuration.
type STTConfig struct {
	Provider        string        `yaml:"provider"` // openai, deepgram, google, mock
	LanguageCode    string        `yaml:"language_code"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	Endpoint        string        `yaml:"endpoint"`
	SampleRateHz    int           `yaml:"sample_rate_hz"`
	VADThreshold    float64       `yaml:"vad_threshold"`
	PrefixPadding   time.Duration `yaml:"prefix_padding"`
	SilenceDuration time.Duration `yaml:"silence_duration"`
}

// CaptureConfig holds system audio capture configuration.
type CaptureConfig struct {
	Command   []string      `yaml:"command"` // empty selects the platform default
	StopGrace time.Duration `yaml:"stop_grace"`
	MeFormat  string        `yaml:"me_format"`
}

// AggregatorConfig holds turn aggregation configuration.
type AggregatorConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	Driver         string        `yaml:"driver"` // memory, mongo
	MongoURI       string        `yaml:"mongo_uri"`
	MongoDatabase  string        `yaml:"mongo_database"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
}

// KafkaConfig holds Kafka publisher configuration.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicPartial string   `yaml:"topic_partial"`
	TopicFinal   string   `yaml:"topic_final"`
	Principal    string   `yaml:"principal"`
}

// ObservabilityConfig holds logging configuration.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// providerKeyEnv lists the provider-native variables consulted when
// STT_API_KEY is unset.
var providerKeyEnv = map[string]string{
	"openai":   "OPENAI_API_KEY",
	"deepgram": "DEEPGRAM_API_KEY",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal:   "svc-conversation-transcriber",
			HTTPPort:    "8080",
			MetricsPort: "9090",
			OwnerID:     "local",
		},
		STT: STTConfig{
			Provider:        "mock",
			LanguageCode:    "en-US",
			SampleRateHz:    24000,
			VADThreshold:    0.5,
			PrefixPadding:   200 * time.Millisecond,
			SilenceDuration: 100 * time.Millisecond,
		},
		Capture: CaptureConfig{
			StopGrace: 2 * time.Second,
		},
		Aggregator: AggregatorConfig{
			Debounce: 2 * time.Second,
		},
		Storage: StorageConfig{
			Driver:         "memory",
			MongoDatabase:  "transcriber",
			PersistTimeout: 5 * time.Second,
		},
		Kafka: KafkaConfig{
			TopicPartial: "transcript.partial",
			TopicFinal:   "transcript.final",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load builds the configuration. A YAML file named by CONFIG_FILE is
// applied over the defaults, then environment variables over both. A file
// that cannot be read or parsed is logged and skipped.
func Load() *Config {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Ignoring config file")
		}
	}

	cfg.applyEnv()
	return cfg
}

// ApplyFile overlays the YAML file at path. Keys absent from the file keep
// their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	next := *c
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	*c = next
	return nil
}

func (c *Config) applyEnv() {
	c.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", c.Service.Principal)
	c.Service.HTTPPort = envOrDefault("HTTP_PORT", c.Service.HTTPPort)
	c.Service.MetricsPort = envOrDefault("METRICS_PORT", c.Service.MetricsPort)
	c.Service.OwnerID = envOrDefault("OWNER_ID", c.Service.OwnerID)

	c.STT.Provider = strings.ToLower(envOrDefault("STT_PROVIDER", c.STT.Provider))
	c.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", c.STT.LanguageCode)
	c.STT.APIKey = envOrDefault("STT_API_KEY", c.STT.APIKey)
	if c.STT.APIKey == "" {
		if key, ok := providerKeyEnv[c.STT.Provider]; ok {
			c.STT.APIKey = os.Getenv(key)
		}
	}
	c.STT.Model = envOrDefault("STT_MODEL", c.STT.Model)
	c.STT.Endpoint = envOrDefault("STT_ENDPOINT", c.STT.Endpoint)
	c.STT.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", c.STT.SampleRateHz)
	c.STT.VADThreshold = envOrDefaultFloat("STT_VAD_THRESHOLD", c.STT.VADThreshold)
	c.STT.PrefixPadding = envOrDefaultDuration("STT_PREFIX_PADDING", c.STT.PrefixPadding)
	c.STT.SilenceDuration = envOrDefaultDuration("STT_SILENCE_DURATION", c.STT.SilenceDuration)

	c.Capture.Command = envOrDefaultList("CAPTURE_COMMAND", " ", c.Capture.Command)
	c.Capture.StopGrace = envOrDefaultDuration("CAPTURE_STOP_GRACE", c.Capture.StopGrace)
	c.Capture.MeFormat = envOrDefault("ME_AUDIO_FORMAT", c.Capture.MeFormat)

	c.Aggregator.Debounce = envOrDefaultDuration("TURN_DEBOUNCE", c.Aggregator.Debounce)

	c.Storage.Driver = strings.ToLower(envOrDefault("STORAGE_DRIVER", c.Storage.Driver))
	c.Storage.MongoURI = envOrDefault("MONGO_URI", c.Storage.MongoURI)
	c.Storage.MongoDatabase = envOrDefault("MONGO_DATABASE", c.Storage.MongoDatabase)
	c.Storage.PersistTimeout = envOrDefaultDuration("STORAGE_PERSIST_TIMEOUT", c.Storage.PersistTimeout)

	c.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", ",", c.Kafka.Brokers)
	c.Kafka.TopicPartial = envOrDefault("KAFKA_TOPIC_PARTIAL", c.Kafka.TopicPartial)
	c.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", c.Kafka.TopicFinal)
	c.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Kafka.Principal)
	if c.Kafka.Principal == "" {
		c.Kafka.Principal = c.Service.Principal
	}

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits on sep, dropping empty items. Space splits on any
// whitespace.
func envOrDefaultList(key, sep string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var parts []string
	if sep == " " {
		parts = strings.Fields(v)
	} else {
		parts = strings.Split(v, sep)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
