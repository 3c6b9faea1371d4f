// Package config loads the service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the single configuration schema of the service.
type Config struct {
	Service       ServiceConfig
	Storage       StorageConfig
	STTProvider   string
	ASR           ASRConfig
	Voice         VoiceConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
	GRPCPort  string
	Env       string
}

// StorageConfig holds the S3-compatible object store settings.
type StorageConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	PresignExpiry   time.Duration
	MaxAttempts     int
}

// Missing lists the required object store keys that are not set.
func (s StorageConfig) Missing() []string {
	var missing []string
	for _, kv := range []struct{ key, val string }{
		{"TOS_ACCESS_KEY_ID", s.AccessKeyID},
		{"TOS_SECRET_ACCESS_KEY", s.SecretAccessKey},
		{"TOS_BUCKET", s.Bucket},
		{"TOS_REGION", s.Region},
		{"TOS_ENDPOINT", s.Endpoint},
	} {
		if kv.val == "" {
			missing = append(missing, kv.key)
		}
	}
	return missing
}

// ASRConfig holds the speech service settings.
type ASRConfig struct {
	Endpoint      string
	QueryEndpoint string
	AppID         string
	Token         string
	ResourceID    string
	Model         string
	PollInterval  time.Duration
	PollTimeout   time.Duration
	HTTPTimeout   time.Duration
}

// Missing lists the required speech service keys that are not set.
func (a ASRConfig) Missing() []string {
	var missing []string
	if a.Endpoint == "" {
		missing = append(missing, "VOLC_ASR_ENDPOINT")
	}
	if a.AppID == "" {
		missing = append(missing, "VOLC_ASR_APP_ID")
	}
	if a.Token == "" {
		missing = append(missing, "VOLC_ASR_TOKEN")
	}
	return missing
}

// VoiceConfig holds negotiation defaults and upload limits.
type VoiceConfig struct {
	DefaultLanguage string
	DefaultFormat   string
	MaxUploadBytes  int64
}

// KafkaConfig holds Kafka publisher settings.
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicCompleted string
	TopicTimedOut  string
	Principal      string
	PublishTimeout time.Duration
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// LoadDotEnv reads a .env file into the environment when one exists.
// Variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load builds the configuration from environment variables.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-transcription")

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
			Env:       os.Getenv("ENV"),
		},
		Storage: StorageConfig{
			AccessKeyID:     os.Getenv("TOS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("TOS_SECRET_ACCESS_KEY"),
			Bucket:          os.Getenv("TOS_BUCKET"),
			Region:          os.Getenv("TOS_REGION"),
			Endpoint:        normalizeEndpoint(os.Getenv("TOS_ENDPOINT")),
			ForcePathStyle:  envOrDefaultBool("TOS_FORCE_PATH_STYLE", false),
			PresignExpiry:   envOrDefaultDuration("TOS_PRESIGN_EXPIRY", 600*time.Second),
			MaxAttempts:     envOrDefaultInt("TOS_MAX_ATTEMPTS", 3),
		},
		STTProvider: envOrDefault("STT_PROVIDER", "volc"),
		ASR: ASRConfig{
			Endpoint:      os.Getenv("VOLC_ASR_ENDPOINT"),
			QueryEndpoint: os.Getenv("VOLC_ASR_QUERY_ENDPOINT"),
			AppID:         os.Getenv("VOLC_ASR_APP_ID"),
			Token:         os.Getenv("VOLC_ASR_TOKEN"),
			ResourceID:    envOrDefault("VOLC_ASR_RESOURCE_ID", "volc.bigasr.auc"),
			Model:         envOrDefault("VOLC_ASR_MODEL", "bigmodel"),
			PollInterval:  envOrDefaultDuration("VOLC_ASR_POLL_INTERVAL", 1200*time.Millisecond),
			PollTimeout:   envOrDefaultDuration("VOLC_ASR_POLL_TIMEOUT", 45*time.Second),
			HTTPTimeout:   envOrDefaultDuration("VOLC_ASR_HTTP_TIMEOUT", 60*time.Second),
		},
		Voice: VoiceConfig{
			DefaultLanguage: envOrDefault("VOLC_ASR_LANGUAGE", "zh-CN"),
			DefaultFormat:   envOrDefault("VOLC_ASR_FORMAT", "webm"),
			MaxUploadBytes:  int64(envOrDefaultInt("VOICE_MAX_UPLOAD_BYTES", 10*1024*1024)),
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        splitList(os.Getenv("KAFKA_BROKERS")),
			TopicCompleted: envOrDefault("KAFKA_TOPIC_COMPLETED", "voice.transcription.completed"),
			TopicTimedOut:  envOrDefault("KAFKA_TOPIC_TIMED_OUT", "voice.transcription.timedout"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", principal),
			PublishTimeout: envOrDefaultDuration("KAFKA_PUBLISH_TIMEOUT", 2*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
