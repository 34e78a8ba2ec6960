package model

import (
	"time"
)

// SenderMode selects the identity replies are posted under.
type SenderMode string

const (
	// SenderModeBot posts as an explicitly identified bot.
	SenderModeBot SenderMode = "bot"
	// SenderModeWebhook posts as the principal owning the webhook token.
	SenderModeWebhook SenderMode = "webhook"
)

// DeliveryAttempt is a single outbound post of reply text.
type DeliveryAttempt struct {
	ConversationID string     `json:"conversation_id"`
	Text           string     `json:"text"`
	SenderMode     SenderMode `json:"sender_mode"`
}

// DeliveryResult is the outcome of a DeliveryAttempt.
type DeliveryResult struct {
	Attempt    DeliveryAttempt `json:"attempt"`
	Delivered  bool            `json:"delivered"`
	StatusCode int             `json:"status_code,omitempty"`
	Body       string          `json:"body,omitempty"`
	Err        error           `json:"-"`
}

// Route is the path an event took through the relay.
type Route string

const (
	RouteText         Route = "text"
	RouteFile         Route = "file"
	RouteWelcome      Route = "welcome"
	RouteEmpty        Route = "empty"
	RouteOutsideHours Route = "outside_hours"
	RouteNone         Route = "none"
)

// RelayRecord summarizes one handled event for the relay feed.
type RelayRecord struct {
	ID             string     `json:"id"`
	Kind           EventKind  `json:"kind"`
	ConversationID string     `json:"conversation_id"`
	Route          Route      `json:"route"`
	Delivered      bool       `json:"delivered"`
	SenderMode     SenderMode `json:"sender_mode,omitempty"`
	DurationMs     int64      `json:"duration_ms"`
	CreatedAt      time.Time  `json:"created_at"`
}
