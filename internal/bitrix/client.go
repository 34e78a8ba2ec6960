// Package bitrix talks to the messaging platform's REST webhook.
package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/imbot-relay/internal/assistant"
	"github.com/capitalize-ai/imbot-relay/internal/model"
	"github.com/capitalize-ai/imbot-relay/pkg/logger"
	"github.com/capitalize-ai/imbot-relay/pkg/metrics"
)

// REST methods used by the relay.
const (
	MethodBotMessageAdd = "imbot.message.add"
	MethodMessageAdd    = "im.message.add"
	MethodRegister      = "imbot.register"
	MethodUnregister    = "imbot.unregister"
)

// maxLoggedBody bounds how much of a response body is logged.
const maxLoggedBody = 400

var tracer trace.Tracer = otel.Tracer("github.com/capitalize-ai/imbot-relay/internal/bitrix")

// MethodURL returns the endpoint of a REST method under a webhook base.
func MethodURL(base, method string) string {
	return strings.TrimRight(base, "/") + "/" + method + ".json"
}

// Options configures a Client.
type Options struct {
	// SendWebhook is the webhook base used for outbound messages.
	SendWebhook string
	// BotID selects bot delivery when set.
	BotID      string
	HTTPClient *http.Client
}

// Client posts replies and manages the bot registration.
type Client struct {
	sendBase   string
	botID      string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a platform client.
func NewClient(opts Options, log *logger.Logger) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		sendBase:   strings.TrimRight(opts.SendWebhook, "/"),
		botID:      strings.TrimSpace(opts.BotID),
		httpClient: opts.HTTPClient,
		logger:     log,
	}
}

// Mode returns the sender identity deliveries use.
func (c *Client) Mode() model.SenderMode {
	if c.botID != "" {
		return model.SenderModeBot
	}
	return model.SenderModeWebhook
}

// Deliver posts text into the conversation. Failures are logged and reported
// in the result, never returned.
func (c *Client) Deliver(ctx context.Context, conversationID, text string) model.DeliveryResult {
	attempt := model.DeliveryAttempt{
		ConversationID: conversationID,
		Text:           assistant.StripCitations(text),
		SenderMode:     c.Mode(),
	}
	result := model.DeliveryResult{Attempt: attempt}

	method := MethodMessageAdd
	body := map[string]string{
		"DIALOG_ID": attempt.ConversationID,
		"MESSAGE":   attempt.Text,
	}
	if attempt.SenderMode == model.SenderModeBot {
		method = MethodBotMessageAdd
		body["BOT_ID"] = c.botID
	}

	ctx, span := tracer.Start(ctx, "bitrix.deliver", trace.WithAttributes(
		attribute.String("bitrix.method", method),
		attribute.String("relay.sender_mode", string(attempt.SenderMode)),
	))
	defer span.End()

	log := c.logger.WithContext(ctx).With(
		zap.String("method", method),
		zap.String("dialog_id", conversationID),
	)

	status, respBody, err := c.post(ctx, MethodURL(c.sendBase, method), body)
	result.StatusCode = status
	result.Body = truncate(respBody, maxLoggedBody)
	if err == nil {
		err = responseError(status, respBody)
	}
	if err != nil {
		result.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		metrics.RecordDelivery(string(attempt.SenderMode), false)
		log.Error("delivery failed",
			zap.Int("status", status),
			zap.String("body", result.Body),
			zap.Error(err),
		)
		return result
	}

	result.Delivered = true
	span.SetAttributes(attribute.Int("http.status_code", status))
	metrics.RecordDelivery(string(attempt.SenderMode), true)
	log.Info("delivery sent",
		zap.Int("status", status),
		zap.String("body", result.Body),
	)
	return result
}

// Properties are the display properties of a registered bot.
type Properties struct {
	Name         string `json:"NAME"`
	Color        string `json:"COLOR,omitempty"`
	Email        string `json:"EMAIL,omitempty"`
	WorkPosition string `json:"WORK_POSITION,omitempty"`
}

// Registration is the imbot.register request body.
type Registration struct {
	Code                string     `json:"CODE"`
	Type                string     `json:"TYPE"`
	EventMessageAdd     string     `json:"EVENT_MESSAGE_ADD"`
	EventWelcomeMessage string     `json:"EVENT_WELCOME_MESSAGE"`
	EventBotDelete      string     `json:"EVENT_BOT_DELETE"`
	OpenLine            string     `json:"OPENLINE"`
	Properties          Properties `json:"PROPERTIES"`
}

// NewRegistration builds a chat-bot registration whose events all point at
// handlerURL.
func NewRegistration(code, handlerURL string, props Properties) Registration {
	return Registration{
		Code:                code,
		Type:                "B",
		EventMessageAdd:     handlerURL,
		EventWelcomeMessage: handlerURL,
		EventBotDelete:      handlerURL,
		OpenLine:            "N",
		Properties:          props,
	}
}

// Register posts reg to endpoint, a full imbot.register URL. The decoded JSON
// response is returned, or {"raw": body} when it is not JSON.
func (c *Client) Register(ctx context.Context, endpoint string, reg Registration) (map[string]any, error) {
	status, body, err := c.post(ctx, endpoint, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register bot: %w", err)
	}
	c.logger.Info("bot registration response",
		zap.Int("status", status),
		zap.String("body", truncate(body, maxLoggedBody)),
	)
	return decodeResponse(body), nil
}

// Unregister removes the bot through the webhook base.
func (c *Client) Unregister(ctx context.Context, base, botID string) (map[string]any, error) {
	status, body, err := c.post(ctx, MethodURL(base, MethodUnregister), map[string]string{"BOT_ID": botID})
	if err != nil {
		return nil, fmt.Errorf("failed to unregister bot: %w", err)
	}
	c.logger.Info("bot unregistration response",
		zap.Int("status", status),
		zap.String("body", truncate(body, maxLoggedBody)),
	)
	return decodeResponse(body), nil
}

func (c *Client) post(ctx context.Context, url string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// responseError reports non-2xx statuses and REST error envelopes.
func responseError(status int, body []byte) error {
	if status < 200 || status >= 300 {
		return fmt.Errorf("unexpected status %d", status)
	}
	var envelope struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		return fmt.Errorf("platform error %s: %s", envelope.Error, envelope.Description)
	}
	return nil
}

func decodeResponse(body []byte) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil || out == nil {
		return map[string]any{"raw": string(body)}
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
