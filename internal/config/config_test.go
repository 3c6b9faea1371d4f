package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

var allVars = []string{
	"SERVICE_PRINCIPAL", "HTTP_PORT", "GRPC_PORT", "ENV",
	"TOS_ACCESS_KEY_ID", "TOS_SECRET_ACCESS_KEY", "TOS_BUCKET", "TOS_REGION", "TOS_ENDPOINT",
	"TOS_FORCE_PATH_STYLE", "TOS_PRESIGN_EXPIRY", "TOS_MAX_ATTEMPTS",
	"STT_PROVIDER", "VOLC_ASR_ENDPOINT", "VOLC_ASR_QUERY_ENDPOINT", "VOLC_ASR_APP_ID", "VOLC_ASR_TOKEN",
	"VOLC_ASR_RESOURCE_ID", "VOLC_ASR_MODEL", "VOLC_ASR_POLL_INTERVAL", "VOLC_ASR_POLL_TIMEOUT",
	"VOLC_ASR_HTTP_TIMEOUT", "VOLC_ASR_LANGUAGE", "VOLC_ASR_FORMAT", "VOICE_MAX_UPLOAD_BYTES",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_COMPLETED", "KAFKA_TOPIC_TIMED_OUT", "KAFKA_PRINCIPAL",
	"LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR",
}

func clearEnv() {
	for _, v := range allVars {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-voice-transcription" {
		t.Errorf("expected default principal 'svc-voice-transcription', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default HTTP port '8080', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default gRPC port '50051', got %s", cfg.Service.GRPCPort)
	}

	// Object store defaults
	if cfg.Storage.PresignExpiry != 600*time.Second {
		t.Errorf("expected default presign expiry 600s, got %v", cfg.Storage.PresignExpiry)
	}
	if cfg.Storage.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Storage.MaxAttempts)
	}
	if cfg.Storage.ForcePathStyle {
		t.Error("expected path style off by default")
	}

	// Speech service defaults
	if cfg.STTProvider != "volc" {
		t.Errorf("expected default STT provider 'volc', got %s", cfg.STTProvider)
	}
	if cfg.ASR.ResourceID != "volc.bigasr.auc" {
		t.Errorf("expected default resource id, got %s", cfg.ASR.ResourceID)
	}
	if cfg.ASR.Model != "bigmodel" {
		t.Errorf("expected default model 'bigmodel', got %s", cfg.ASR.Model)
	}
	if cfg.ASR.PollInterval != 1200*time.Millisecond {
		t.Errorf("expected default poll interval 1.2s, got %v", cfg.ASR.PollInterval)
	}
	if cfg.ASR.PollTimeout != 45*time.Second {
		t.Errorf("expected default poll timeout 45s, got %v", cfg.ASR.PollTimeout)
	}

	// Negotiation defaults
	if cfg.Voice.DefaultLanguage != "zh-CN" {
		t.Errorf("expected default language 'zh-CN', got %s", cfg.Voice.DefaultLanguage)
	}
	if cfg.Voice.DefaultFormat != "webm" {
		t.Errorf("expected default format 'webm', got %s", cfg.Voice.DefaultFormat)
	}
	if cfg.Voice.MaxUploadBytes != 10*1024*1024 {
		t.Errorf("expected default max upload 10MiB, got %d", cfg.Voice.MaxUploadBytes)
	}

	// Kafka defaults
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Kafka.TopicCompleted != "voice.transcription.completed" {
		t.Errorf("unexpected completed topic %s", cfg.Kafka.TopicCompleted)
	}
	if cfg.Kafka.PublishTimeout != 2*time.Second {
		t.Errorf("expected 2s publish timeout, got %v", cfg.Kafka.PublishTimeout)
	}

	// Observability defaults
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
	if cfg.Observability.MetricsAddr != ":9090" {
		t.Errorf("expected default metrics addr ':9090', got %s", cfg.Observability.MetricsAddr)
	}

	if got := cfg.Storage.Missing(); len(got) != 5 {
		t.Errorf("expected all 5 store keys missing, got %v", got)
	}
	if got := cfg.ASR.Missing(); len(got) != 3 {
		t.Errorf("expected all 3 speech keys missing, got %v", got)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv()
	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("HTTP_PORT", "9000")
	os.Setenv("TOS_ACCESS_KEY_ID", "AK")
	os.Setenv("TOS_SECRET_ACCESS_KEY", "SK")
	os.Setenv("TOS_BUCKET", "voice-bucket")
	os.Setenv("TOS_REGION", "cn-beijing")
	os.Setenv("TOS_ENDPOINT", "tos-s3-cn-beijing.volces.com")
	os.Setenv("TOS_FORCE_PATH_STYLE", "true")
	os.Setenv("STT_PROVIDER", "mock")
	os.Setenv("VOLC_ASR_ENDPOINT", "https://asr.example.com/api/v3/auc/bigmodel/submit")
	os.Setenv("VOLC_ASR_APP_ID", "app")
	os.Setenv("VOLC_ASR_TOKEN", "token")
	os.Setenv("VOLC_ASR_POLL_TIMEOUT", "10s")
	os.Setenv("VOLC_ASR_LANGUAGE", "en-US")
	os.Setenv("KAFKA_ENABLED", "true")
	os.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	os.Setenv("LOG_LEVEL", "debug")
	defer clearEnv()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9000" {
		t.Errorf("expected HTTP port '9000', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Storage.Endpoint != "https://tos-s3-cn-beijing.volces.com" {
		t.Errorf("expected https scheme to be added, got %s", cfg.Storage.Endpoint)
	}
	if !cfg.Storage.ForcePathStyle {
		t.Error("expected path style on")
	}
	if got := cfg.Storage.Missing(); len(got) != 0 {
		t.Errorf("expected no missing store keys, got %v", got)
	}
	if got := cfg.ASR.Missing(); len(got) != 0 {
		t.Errorf("expected no missing speech keys, got %v", got)
	}
	if cfg.STTProvider != "mock" {
		t.Errorf("expected STT provider 'mock', got %s", cfg.STTProvider)
	}
	if cfg.ASR.PollTimeout != 10*time.Second {
		t.Errorf("expected poll timeout 10s, got %v", cfg.ASR.PollTimeout)
	}
	if cfg.Voice.DefaultLanguage != "en-US" {
		t.Errorf("expected language 'en-US', got %s", cfg.Voice.DefaultLanguage)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if !reflect.DeepEqual(cfg.Kafka.Brokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv()
	os.Setenv("TOS_PRESIGN_EXPIRY", "soon")
	os.Setenv("TOS_MAX_ATTEMPTS", "-1")
	os.Setenv("VOLC_ASR_POLL_INTERVAL", "invalid")
	os.Setenv("VOLC_ASR_POLL_TIMEOUT", "0s")
	os.Setenv("VOICE_MAX_UPLOAD_BYTES", "lots")
	os.Setenv("KAFKA_ENABLED", "maybe")
	defer clearEnv()

	cfg := Load()

	// Should fall back to defaults on parse errors
	if cfg.Storage.PresignExpiry != 600*time.Second {
		t.Errorf("expected default presign expiry on invalid input, got %v", cfg.Storage.PresignExpiry)
	}
	if cfg.Storage.MaxAttempts != 3 {
		t.Errorf("expected default max attempts on invalid input, got %d", cfg.Storage.MaxAttempts)
	}
	if cfg.ASR.PollInterval != 1200*time.Millisecond {
		t.Errorf("expected default poll interval on invalid input, got %v", cfg.ASR.PollInterval)
	}
	if cfg.ASR.PollTimeout != 45*time.Second {
		t.Errorf("expected bounded default poll timeout on zero input, got %v", cfg.ASR.PollTimeout)
	}
	if cfg.Voice.MaxUploadBytes != 10*1024*1024 {
		t.Errorf("expected default max upload on invalid input, got %d", cfg.Voice.MaxUploadBytes)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled on invalid input")
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv()
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	defer os.Unsetenv("SERVICE_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"tos.example.com", "https://tos.example.com"},
		{"http://127.0.0.1:9000", "http://127.0.0.1:9000"},
		{" https://tos.example.com ", "https://tos.example.com"},
	}
	for _, tt := range tests {
		if got := normalizeEndpoint(tt.in); got != tt.want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv()
	defer clearEnv()

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("TOS_BUCKET=from-file\nHTTP_PORT=7000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	os.Setenv("HTTP_PORT", "8181")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	cfg := Load()

	if cfg.Storage.Bucket != "from-file" {
		t.Errorf("expected bucket from file, got %s", cfg.Storage.Bucket)
	}
	if cfg.Service.HTTPPort != "8181" {
		t.Errorf("expected existing env to win, got %s", cfg.Service.HTTPPort)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("expected no error for absent file, got %v", err)
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
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
