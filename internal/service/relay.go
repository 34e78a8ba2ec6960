// Package service routes classified platform events to the AI backend and
// delivers the replies.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/imbot-relay/internal/config"
	"github.com/capitalize-ai/imbot-relay/internal/model"
	natsclient "github.com/capitalize-ai/imbot-relay/internal/nats"
	"github.com/capitalize-ai/imbot-relay/pkg/logger"
	"github.com/capitalize-ai/imbot-relay/pkg/metrics"
)

// Response statuses reported to the platform.
const (
	StatusOK           = "ok"
	StatusIgnored      = "ignored"
	StatusNoDialog     = "no_dialog"
	StatusOutsideHours = "outside_hours"
)

// MsgEmpty is the reply to a message carrying neither text nor a file.
const MsgEmpty = "Empty message or no attachment. Please send a text or a valid attachment."

// deliveryTimeout bounds a delivery once processing is done. It runs on its
// own budget so an expired processing deadline still reaches the user.
const deliveryTimeout = 20 * time.Second

// Responder produces a reply for user text.
type Responder interface {
	RunJob(ctx context.Context, content string) string
}

// FileAnalyzer produces a reply for an attachment.
type FileAnalyzer interface {
	AnalyzeFile(ctx context.Context, url, displayName string) string
}

// Deliverer posts a reply into a conversation.
type Deliverer interface {
	Deliver(ctx context.Context, conversationID, text string) model.DeliveryResult
}

// Options configures a RelayService.
type Options struct {
	WelcomeMessage string
	// ServiceHours is nil when every hour is in service.
	ServiceHours        *config.Window
	ServiceHoursMessage string
}

// Outcome is the result of handling one event.
type Outcome struct {
	Status     string
	Route      model.Route
	Delivered  bool
	SenderMode model.SenderMode
}

// RelayService handles classified events.
type RelayService struct {
	responder Responder
	analyzer  FileAnalyzer
	deliverer Deliverer
	publisher natsclient.Publisher
	opts      Options
	logger    *logger.Logger
	now       func() time.Time
}

// NewRelayService creates a relay service. A nil publisher discards records.
func NewRelayService(
	responder Responder,
	analyzer FileAnalyzer,
	deliverer Deliverer,
	publisher natsclient.Publisher,
	opts Options,
	log *logger.Logger,
) *RelayService {
	if publisher == nil {
		publisher = natsclient.NoopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RelayService{
		responder: responder,
		analyzer:  analyzer,
		deliverer: deliverer,
		publisher: publisher,
		opts:      opts,
		logger:    log,
		now:       time.Now,
	}
}

// Handle routes one event. It never fails; delivery problems are logged by
// the deliverer and reflected in Outcome.Delivered only.
func (s *RelayService) Handle(ctx context.Context, event model.InboundEvent) Outcome {
	start := s.now()
	log := s.logger.WithContext(ctx).With(
		zap.String("event", event.RawEvent),
		zap.String("dialog_id", event.ConversationID),
	)

	outcome := s.route(ctx, event, log)

	metrics.InboundEventsTotal.WithLabelValues(string(event.Kind), outcome.Status).Inc()
	if outcome.Status == StatusIgnored || outcome.Status == StatusNoDialog {
		return outcome
	}

	s.publish(ctx, model.RelayRecord{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Kind:           event.Kind,
		ConversationID: event.ConversationID,
		Route:          outcome.Route,
		Delivered:      outcome.Delivered,
		SenderMode:     outcome.SenderMode,
		DurationMs:     s.now().Sub(start).Milliseconds(),
		CreatedAt:      start.UTC(),
	}, log)
	return outcome
}

func (s *RelayService) route(ctx context.Context, event model.InboundEvent, log *logger.Logger) Outcome {
	switch event.Kind {
	case model.EventKindBotDeleted:
		log.Info("bot removed from portal")
		return Outcome{Status: StatusOK, Route: model.RouteNone}
	case model.EventKindJoinChat, model.EventKindMessageAdded:
	default:
		return Outcome{Status: StatusIgnored, Route: model.RouteNone}
	}

	if event.ConversationID == "" {
		log.Info("event has no conversation id, dropping")
		return Outcome{Status: StatusNoDialog, Route: model.RouteNone}
	}

	if event.Kind == model.EventKindJoinChat {
		return s.reply(ctx, event.ConversationID, model.RouteWelcome, s.opts.WelcomeMessage, StatusOK)
	}

	if w := s.opts.ServiceHours; w != nil && !w.Contains(s.now()) {
		log.Info("message outside service hours")
		return s.reply(ctx, event.ConversationID, model.RouteOutsideHours, s.opts.ServiceHoursMessage, StatusOutsideHours)
	}

	if event.Empty() {
		return s.reply(ctx, event.ConversationID, model.RouteEmpty, MsgEmpty, StatusOK)
	}

	if event.HasFile() {
		log.Info("attachment received", zap.String("file", event.File.DisplayName))
		text := s.analyzer.AnalyzeFile(ctx, event.File.URL, event.File.DisplayName)
		return s.reply(ctx, event.ConversationID, model.RouteFile, text, StatusOK)
	}

	log.Debug("text message received", zap.Int("length", len(event.Text)))
	text := s.responder.RunJob(ctx, event.Text)
	return s.reply(ctx, event.ConversationID, model.RouteText, text, StatusOK)
}

func (s *RelayService) reply(ctx context.Context, conversationID string, route model.Route, text, status string) Outcome {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	result := s.deliverer.Deliver(dctx, conversationID, text)
	return Outcome{
		Status:     status,
		Route:      route,
		Delivered:  result.Delivered,
		SenderMode: result.Attempt.SenderMode,
	}
}

func (s *RelayService) publish(ctx context.Context, record model.RelayRecord, log *logger.Logger) {
	if err := s.publisher.Publish(ctx, record); err != nil {
		metrics.RelayFeedPublishFailures.Inc()
		log.Warn("failed to publish relay record", zap.Error(err))
	}
}
