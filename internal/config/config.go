package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Port      string `yaml:"port"`
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// WhatsApp Cloud API
	WebhookVerifyToken    string        `yaml:"webhook_verify_token"`
	WhatsAppAppSecret     string        `yaml:"whatsapp_app_secret"`
	WhatsAppPhoneNumberID string        `yaml:"whatsapp_phone_number_id"`
	WhatsAppGraphAPIBase  string        `yaml:"whatsapp_graph_api_base"`
	WhatsAppHTTPTimeout   time.Duration `yaml:"whatsapp_http_timeout"`

	// Gemini completion backend
	GeminiModel      string        `yaml:"gemini_model"`
	AIRequestTimeout time.Duration `yaml:"ai_request_timeout"`
	BaselinePersona  string        `yaml:"baseline_persona"`
	AssistantLabel   string        `yaml:"assistant_label"`

	// Relay behaviour
	SessionHistoryLimit int  `yaml:"session_history_limit"`
	SerializePerUser    bool `yaml:"serialize_per_user"`
	WorkerCount         int  `yaml:"worker_count"`
	InboxBuffer         int  `yaml:"inbox_buffer"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	MetricsEnabled     bool     `yaml:"metrics_enabled"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	return &Config{
		Port:                  "3000",
		Env:                   "development",
		LogLevel:              "info",
		LogFormat:             "json",
		WebhookVerifyToken:    "verify-me",
		WhatsAppPhoneNumberID: "657991800734493",
		WhatsAppGraphAPIBase:  "https://graph.facebook.com/v17.0",
		WhatsAppHTTPTimeout:   15 * time.Second,
		GeminiModel:           "gemini-2.0-flash",
		AIRequestTimeout:      30 * time.Second,
		AssistantLabel:        "🤖 Gemini",
		SessionHistoryLimit:   0,
		SerializePerUser:      true,
		WorkerCount:           4,
		InboxBuffer:           256,
		CORSAllowedOrigins:    []string{"*"},
		MetricsEnabled:        true,
	}
}

// Load reads configuration from environment variables on top of Defaults.
func Load() *Config {
	return applyEnv(Defaults())
}

// LoadFile reads a YAML file on top of Defaults, then applies environment
// overrides. Explicit env vars always win over the file.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return applyEnv(cfg), nil
}

// FromEnvironment honours CONFIG_FILE when set and falls back to Load.
func FromEnvironment() (*Config, error) {
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		return LoadFile(path)
	}
	return Load(), nil
}

func applyEnv(cfg *Config) *Config {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	cfg.WebhookVerifyToken = getEnv("WEBHOOK_VERIFY_TOKEN", cfg.WebhookVerifyToken)
	cfg.WhatsAppAppSecret = getEnv("WHATSAPP_APP_SECRET", cfg.WhatsAppAppSecret)
	cfg.WhatsAppPhoneNumberID = getEnv("WHATSAPP_PHONE_NUMBER_ID", cfg.WhatsAppPhoneNumberID)
	cfg.WhatsAppGraphAPIBase = strings.TrimRight(getEnv("WHATSAPP_GRAPH_API_BASE", cfg.WhatsAppGraphAPIBase), "/")
	cfg.WhatsAppHTTPTimeout = getEnvAsDuration("WHATSAPP_HTTP_TIMEOUT", cfg.WhatsAppHTTPTimeout)

	cfg.GeminiModel = getEnv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.AIRequestTimeout = getEnvAsDuration("AI_REQUEST_TIMEOUT", cfg.AIRequestTimeout)
	cfg.BaselinePersona = getEnv("BASELINE_PERSONA", cfg.BaselinePersona)
	cfg.AssistantLabel = getEnv("ASSISTANT_LABEL", cfg.AssistantLabel)

	cfg.SessionHistoryLimit = getEnvAsInt("SESSION_HISTORY_LIMIT", cfg.SessionHistoryLimit)
	cfg.SerializePerUser = getEnvAsBool("SERIALIZE_PER_USER", cfg.SerializePerUser)
	cfg.WorkerCount = getEnvAsInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.InboxBuffer = getEnvAsInt("INBOX_BUFFER", cfg.InboxBuffer)

	cfg.CORSAllowedOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)
	cfg.MetricsEnabled = getEnvAsBool("METRICS_ENABLED", cfg.MetricsEnabled)
	return cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
