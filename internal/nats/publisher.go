package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/capitalize-ai/imbot-relay/internal/model"
)

// DefaultSubjectPrefix is the root of the relay subject tree.
const DefaultSubjectPrefix = "relay"

// Publisher emits relay records.
type Publisher interface {
	Publish(ctx context.Context, record model.RelayRecord) error
}

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
}

// FeedPublisher publishes relay records as JSON on <prefix>.<kind>.
type FeedPublisher struct {
	conn   conn
	prefix string
}

// NewFeedPublisher creates a publisher on the client's connection.
func NewFeedPublisher(client *Client, prefix string) *FeedPublisher {
	return newFeedPublisher(client.Conn(), prefix)
}

func newFeedPublisher(c conn, prefix string) *FeedPublisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &FeedPublisher{conn: c, prefix: prefix}
}

// Subject returns the subject a record of the given kind is published on.
func (p *FeedPublisher) Subject(kind model.EventKind) string {
	return fmt.Sprintf("%s.%s", p.prefix, kind)
}

// Publish sends one record. Core NATS publishing does not wait for
// acknowledgement, so ctx is only checked before sending.
func (p *FeedPublisher) Publish(ctx context.Context, record model.RelayRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal relay record: %w", err)
	}
	if err := p.conn.Publish(p.Subject(record.Kind), data); err != nil {
		return fmt.Errorf("failed to publish relay record: %w", err)
	}
	return nil
}

// NoopPublisher discards records. It is used when NATS is not configured.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, model.RelayRecord) error { return nil }
