// Package config provides environment configuration for the relay.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/capitalize-ai/imbot-relay/internal/model"
)

// Config holds all configuration for the application. It is loaded once at
// startup and treated as read-only afterwards.
type Config struct {
	// Server settings
	ServerPort         string        `envconfig:"PORT" default:"8080"`
	ServerReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	ServerWriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ProcessingTimeout  time.Duration `envconfig:"PROCESSING_TIMEOUT" default:"90s"`

	// Assistant backend
	OpenAIAPIKey          string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL         string        `envconfig:"OPENAI_BASE_URL"`
	AssistantID           string        `envconfig:"ASSISTANT_ID"`
	AssistantInstructions string        `envconfig:"ASSISTANT_INSTRUCTIONS" default:"Answer based on the internal guidelines of the laboratory."`
	ImageInstructions     string        `envconfig:"IMAGE_INSTRUCTIONS" default:"Analyze the attached image and give a useful answer to the laboratory team."`
	RunTimeout            time.Duration `envconfig:"RUN_TIMEOUT" default:"18s"`
	PollInterval          time.Duration `envconfig:"POLL_INTERVAL" default:"700ms"`

	// Fallback completion
	FallbackProvider string `envconfig:"FALLBACK_PROVIDER" default:"openai"`
	FallbackModel    string `envconfig:"FALLBACK_MODEL" default:"gpt-4o-mini"`
	FallbackPersona  string `envconfig:"FALLBACK_PERSONA" default:"You are a helpful virtual assistant for a clinical laboratory team. Answer briefly and politely."`
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY"`

	// Platform
	BitrixWebhook     string `envconfig:"BITRIX_WEBHOOK"`
	BitrixWebhookSend string `envconfig:"BITRIX_WEBHOOK_SEND"`
	PublicURL         string `envconfig:"PUBLIC_URL" default:"http://localhost:8080"`
	BotID             string `envconfig:"BOT_ID"`
	BotCode           string `envconfig:"BOT_CODE" default:"imbot_relay_assistant"`
	BotName           string `envconfig:"BOT_NAME" default:"AI Assistant"`
	BotColor          string `envconfig:"BOT_COLOR" default:"ORANGE"`
	BotEmail          string `envconfig:"BOT_EMAIL"`
	BotWorkPosition   string `envconfig:"BOT_WORK_POSITION"`
	WelcomeMessage    string `envconfig:"WELCOME_MESSAGE" default:"Hello! I am your virtual assistant. How can I help you?"`

	// Outbound HTTP
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	// Service hours
	ServiceHoursEnabled  bool   `envconfig:"SERVICE_HOURS_ENABLED" default:"false"`
	ServiceHoursStart    string `envconfig:"SERVICE_HOURS_START" default:"06:30"`
	ServiceHoursEnd      string `envconfig:"SERVICE_HOURS_END" default:"23:00"`
	ServiceHoursTimezone string `envconfig:"SERVICE_HOURS_TZ" default:"Local"`
	ServiceHoursMessage  string `envconfig:"SERVICE_HOURS_MESSAGE" default:"The assistant is available from 06:30 to 23:00. Please come back during that window."`

	// Rate limiting
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"120"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Tracing
	TracingEndpoint string `envconfig:"TRACING_ENDPOINT" default:"localhost:4318"`
	TracingEnabled  bool   `envconfig:"TRACING_ENABLED" default:"false"`

	// NATS relay feed, disabled when NATSURL is empty
	NATSURL           string `envconfig:"NATS_URL"`
	NATSCAFile        string `envconfig:"NATS_CA_FILE"`
	NATSCertFile      string `envconfig:"NATS_CERT_FILE"`
	NATSKeyFile       string `envconfig:"NATS_KEY_FILE"`
	NATSToken         string `envconfig:"NATS_TOKEN"`
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"relay"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	cfg.BitrixWebhook = strings.TrimRight(strings.TrimSpace(cfg.BitrixWebhook), "/")
	cfg.BitrixWebhookSend = strings.TrimRight(strings.TrimSpace(cfg.BitrixWebhookSend), "/")
	cfg.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")

	if cfg.ProcessingTimeout <= cfg.RunTimeout {
		return nil, fmt.Errorf("PROCESSING_TIMEOUT (%s) must exceed RUN_TIMEOUT (%s)", cfg.ProcessingTimeout, cfg.RunTimeout)
	}

	if cfg.ServiceHoursEnabled {
		if _, err := cfg.ServiceHours(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// SenderMode returns the delivery identity for this deployment: an explicit
// bot when BOT_ID is set, the webhook principal otherwise.
func (c *Config) SenderMode() model.SenderMode {
	if strings.TrimSpace(c.BotID) != "" {
		return model.SenderModeBot
	}
	return model.SenderModeWebhook
}

// SendWebhook returns the webhook base used for outbound messages.
func (c *Config) SendWebhook() string {
	if c.BitrixWebhookSend != "" {
		return c.BitrixWebhookSend
	}
	return c.BitrixWebhook
}

// WebhookPath returns the path segment of the webhook base, e.g. "/rest/1/token".
func (c *Config) WebhookPath() (string, error) {
	if c.BitrixWebhook == "" {
		return "", fmt.Errorf("BITRIX_WEBHOOK is not configured")
	}
	u, err := url.Parse(c.BitrixWebhook)
	if err != nil {
		return "", fmt.Errorf("invalid BITRIX_WEBHOOK: %w", err)
	}
	path := strings.TrimRight(u.Path, "/")
	if !strings.HasPrefix(path, "/rest/") {
		return "", fmt.Errorf("BITRIX_WEBHOOK has no /rest/ path segment")
	}
	return path, nil
}

// HandlerURL is the public callback URL announced to the platform.
func (c *Config) HandlerURL() string {
	return c.PublicURL + "/handler"
}

// Window is a daily service window in a fixed location.
type Window struct {
	Start    time.Duration
	End      time.Duration
	Location *time.Location
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	t = t.In(w.Location)
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	return offset >= w.Start && offset < w.End
}

// ServiceHours parses the service-hours settings.
func (c *Config) ServiceHours() (Window, error) {
	start, err := parseClock(c.ServiceHoursStart)
	if err != nil {
		return Window{}, fmt.Errorf("invalid SERVICE_HOURS_START: %w", err)
	}
	end, err := parseClock(c.ServiceHoursEnd)
	if err != nil {
		return Window{}, fmt.Errorf("invalid SERVICE_HOURS_END: %w", err)
	}
	if end <= start {
		return Window{}, fmt.Errorf("SERVICE_HOURS_END must be after SERVICE_HOURS_START")
	}
	loc, err := time.LoadLocation(c.ServiceHoursTimezone)
	if err != nil {
		return Window{}, fmt.Errorf("invalid SERVICE_HOURS_TZ: %w", err)
	}
	return Window{Start: start, End: end, Location: loc}, nil
}

func parseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
