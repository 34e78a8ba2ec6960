package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/imbot-relay/internal/inbound"
	"github.com/capitalize-ai/imbot-relay/internal/model"
	"github.com/capitalize-ai/imbot-relay/internal/service"
	"github.com/capitalize-ai/imbot-relay/pkg/logger"
	"github.com/capitalize-ai/imbot-relay/pkg/metrics"
)

// EventHandler handles a classified event.
type EventHandler interface {
	Handle(ctx context.Context, event model.InboundEvent) service.Outcome
}

// WebhookHandler receives platform events on POST /handler.
type WebhookHandler struct {
	classifier *inbound.Classifier
	events     EventHandler
	timeout    time.Duration
	logger     *logger.Logger
}

// NewWebhookHandler creates a webhook handler. timeout bounds the processing
// of one event, independently of the inbound connection.
func NewWebhookHandler(classifier *inbound.Classifier, events EventHandler, timeout time.Duration, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		classifier: classifier,
		events:     events,
		timeout:    timeout,
		logger:     log,
	}
}

// Handle handles POST /handler. Recognized events always get a 200 so the
// platform does not retry them.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	log := h.logger.WithContext(r.Context())

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("webhook handler panic", zap.Any("panic", rec), zap.Stack("stack"))
			writeError(w, http.StatusInternalServerError, fmt.Sprint(rec))
		}
	}()

	payload := inbound.Normalize(r)
	event := h.classifier.Classify(payload)

	log.Debug("webhook received",
		zap.String("content_type", r.Header.Get("Content-Type")),
		zap.String("event", event.RawEvent),
		zap.String("kind", string(event.Kind)),
	)

	if event.Kind == model.EventKindUnknown {
		metrics.InboundEventsTotal.WithLabelValues(string(event.Kind), service.StatusIgnored).Inc()
		writeJSON(w, http.StatusOK, map[string]string{
			"status": service.StatusIgnored,
			"event":  event.RawEvent,
		})
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	outcome := h.events.Handle(ctx, event)
	writeJSON(w, http.StatusOK, map[string]string{
		"status": outcome.Status,
	})
}
