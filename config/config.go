// Package config loads the settings of the agentdeck binaries from
// AGENTDECK_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Transport selects the client transport.
type Transport string

const (
	TransportHTTP      Transport = "http"
	TransportWebSocket Transport = "ws"
)

// Provider selects the model backend of the server.
type Provider string

const (
	ProviderMock      Provider = "mock"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Config holds client and server settings.
type Config struct {
	// Client
	ServerURL     string
	Transport     Transport
	Agent         string
	RunTimeout    time.Duration
	CancelTimeout time.Duration

	// Server
	ListenAddr    string
	AllowedOrigin string
	Provider      Provider
	ModelName     string // empty uses the provider default
	Instruction   string
	Grounding     bool // Gemini Google Search grounding

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string // interactive client only; empty disables client logging
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
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

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

// Load reads all env vars and builds the config.
func Load() (*Config, error) {
	runTimeout, err := getDurationEnv("AGENTDECK_RUN_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cancelTimeout, err := getDurationEnv("AGENTDECK_CANCEL_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerURL:     getEnv("AGENTDECK_SERVER_URL", "http://localhost:8080"),
		Transport:     Transport(getEnv("AGENTDECK_TRANSPORT", string(TransportHTTP))),
		Agent:         getEnv("AGENTDECK_AGENT", "assistant"),
		RunTimeout:    runTimeout,
		CancelTimeout: cancelTimeout,

		ListenAddr:    getEnv("AGENTDECK_LISTEN_ADDR", ":8080"),
		AllowedOrigin: getEnv("AGENTDECK_ALLOWED_ORIGIN", "*"),
		Provider:      Provider(getEnv("AGENTDECK_PROVIDER", string(ProviderMock))),
		ModelName:     getEnv("AGENTDECK_MODEL", ""),
		Instruction:   getEnv("AGENTDECK_INSTRUCTION", "You are a helpful assistant. Keep responses concise and cite your sources."),
		Grounding:     getBoolEnv("AGENTDECK_GEMINI_GROUNDING", true),

		OpenAIAPIKey:    getEnv("AGENTDECK_OPENAI_API_KEY", os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:   getEnv("AGENTDECK_OPENAI_BASE_URL", ""),
		AnthropicAPIKey: getEnv("AGENTDECK_ANTHROPIC_API_KEY", os.Getenv("ANTHROPIC_API_KEY")),
		GeminiAPIKey:    getEnv("AGENTDECK_GEMINI_API_KEY", os.Getenv("GEMINI_API_KEY")),

		LogLevel:  getEnv("AGENTDECK_LOG_LEVEL", "info"),
		LogFormat: getEnv("AGENTDECK_LOG_FORMAT", "text"),
		LogFile:   getEnv("AGENTDECK_LOG_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportHTTP, TransportWebSocket:
	default:
		return fmt.Errorf("AGENTDECK_TRANSPORT: unsupported transport %q (want http or ws)", c.Transport)
	}

	switch c.Provider {
	case ProviderMock, ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("AGENTDECK_PROVIDER: unsupported provider %q", c.Provider)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("AGENTDECK_LOG_FORMAT: unsupported format %q (want json or text)", c.LogFormat)
	}

	if c.ServerURL == "" {
		return fmt.Errorf("AGENTDECK_SERVER_URL must not be empty")
	}
	return nil
}
