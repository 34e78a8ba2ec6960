package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/imbot-relay/internal/model"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestFeedPublisher_Publish(t *testing.T) {
	c := &fakeConn{}
	p := newFeedPublisher(c, "lab.relay.")

	record := model.RelayRecord{
		ID:             "rec-1",
		Kind:           model.EventKindMessageAdded,
		ConversationID: "chat7",
		Route:          model.RouteText,
		Delivered:      true,
		CreatedAt:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), record))

	require.Len(t, c.subjects, 1)
	assert.Equal(t, "lab.relay.message_added", c.subjects[0])

	var got model.RelayRecord
	require.NoError(t, json.Unmarshal(c.payloads[0], &got))
	assert.Equal(t, record, got)
}

func TestFeedPublisher_DefaultPrefix(t *testing.T) {
	p := newFeedPublisher(&fakeConn{}, "")
	assert.Equal(t, "relay.join_chat", p.Subject(model.EventKindJoinChat))
}

func TestFeedPublisher_Errors(t *testing.T) {
	p := newFeedPublisher(&fakeConn{err: errors.New("no responders")}, "relay")
	assert.ErrorContains(t, p.Publish(context.Background(), model.RelayRecord{}), "no responders")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &fakeConn{}
	assert.ErrorIs(t, newFeedPublisher(c, "relay").Publish(ctx, model.RelayRecord{}), context.Canceled)
	assert.Empty(t, c.subjects)
}

func TestNoopPublisher(t *testing.T) {
	assert.NoError(t, NoopPublisher{}.Publish(context.Background(), model.RelayRecord{}))
}

func TestSecurityOptions(t *testing.T) {
	assert.Empty(t, securityOptions(Config{URL: "nats://localhost:4222"}))
	assert.Len(t, securityOptions(Config{Token: "secret"}), 1)
	assert.Len(t, securityOptions(Config{CAFile: "ca.pem"}), 1)
	assert.Len(t, securityOptions(Config{CAFile: "ca.pem", CertFile: "c.pem", KeyFile: "k.pem", Token: "t"}), 3)
	assert.Len(t, securityOptions(Config{CertFile: "c.pem", KeyFile: "k.pem"}), 0)
}
