package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/imbot-relay/internal/llm"
	"github.com/capitalize-ai/imbot-relay/internal/model"
	"github.com/capitalize-ai/imbot-relay/pkg/logger"
	"github.com/capitalize-ai/imbot-relay/pkg/metrics"
)

// User-facing replies produced without a generated answer.
const (
	MsgNotConfigured   = "Configuration missing: OPENAI_API_KEY or ASSISTANT_ID."
	MsgStillProcessing = "Still processing your request; please try again in a moment."
	MsgNoReply         = "The assistant returned no answer."
	MsgInternalError   = "An internal error occurred while talking to the AI. Please try again."
	msgNotCompleted    = "I could not complete the answer (status: %s)."
)

const (
	fallbackMaxTokens   = 600
	fallbackTemperature = 0.4
)

// Options configures a Client.
type Options struct {
	APIKey          string
	AssistantID     string
	Instructions    string
	Timeout         time.Duration
	FallbackModel   string
	FallbackPersona string
}

// Client answers text messages through an assistant run, falling back to a
// one-shot completion when the run does not complete.
type Client struct {
	runner   *Runner
	fallback llm.Client
	opts     Options
	logger   *logger.Logger
}

// NewClient creates a client. fallback may be nil, in which case
// degradations produce fixed replies instead.
func NewClient(runner *Runner, fallback llm.Client, opts Options, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		runner:   runner,
		fallback: fallback,
		opts:     opts,
		logger:   log,
	}
}

// Configured reports whether credentials and the assistant id are present.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.opts.APIKey) != "" && strings.TrimSpace(c.opts.AssistantID) != ""
}

// RunJob returns a displayable reply for content. It never fails.
func (c *Client) RunJob(ctx context.Context, content string) string {
	if !c.Configured() {
		c.logger.Warn("assistant not configured, skipping run")
		return MsgNotConfigured
	}

	text, err := c.runner.Run(ctx, Request{
		Message:      UserMessage{Text: content},
		Instructions: c.opts.Instructions,
		Timeout:      c.opts.Timeout,
		Route:        model.RouteText,
	})
	return OrFallback(text, err, func(d *Degraded) string {
		if c.fallback == nil {
			return degradedReply(d)
		}
		return c.complete(ctx, content, d)
	})
}

// complete runs the fallback completion for a degraded run.
func (c *Client) complete(ctx context.Context, content string, d *Degraded) string {
	ctx, span := tracer.Start(ctx, "assistant.fallback", trace.WithAttributes(
		attribute.String("relay.degraded_stage", string(d.Stage)),
		attribute.String("relay.fallback_provider", c.fallback.Name()),
	))
	defer span.End()

	resp, err := c.fallback.Complete(ctx, &llm.CompletionRequest{
		Model:       c.opts.FallbackModel,
		System:      c.opts.FallbackPersona,
		Messages:    []llm.ChatMessage{{Role: "user", Content: content}},
		MaxTokens:   fallbackMaxTokens,
		Temperature: fallbackTemperature,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		if err == nil {
			err = fmt.Errorf("empty completion")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback failed")
		metrics.RecordFallback(string(d.Stage), false)
		c.logger.Error("fallback completion failed",
			zap.String("provider", c.fallback.Name()),
			zap.String("stage", string(d.Stage)),
			zap.Error(err),
		)
		return MsgInternalError
	}

	metrics.RecordFallback(string(d.Stage), true)
	c.logger.Info("fallback completion used",
		zap.String("provider", c.fallback.Name()),
		zap.String("stage", string(d.Stage)),
		zap.Int64("latency_ms", resp.LatencyMs),
	)
	return StripCitations(resp.Content)
}

// degradedReply is the fixed reply for a degraded run with no fallback.
func degradedReply(d *Degraded) string {
	switch d.Stage {
	case StageTimeout:
		return MsgStillProcessing
	case StageStatus:
		return fmt.Sprintf(msgNotCompleted, d.Status)
	case StageNoReply:
		return MsgNoReply
	default:
		return MsgInternalError
	}
}
