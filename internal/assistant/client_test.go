package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/imbot-relay/internal/model"
)

func testOptions() Options {
	return Options{
		APIKey:          "sk-test",
		AssistantID:     "asst_1",
		Instructions:    "be useful",
		Timeout:         time.Second,
		FallbackModel:   "gpt-4o-mini",
		FallbackPersona: "persona",
	}
}

func TestRunJob_CompletedSkipsFallback(t *testing.T) {
	b := newFakeBackend(model.JobStatusCompleted)
	b.messages = []ThreadMessage{{Role: RoleAssistant, Texts: []string{"The answer 【3:1†doc.pdf】is 42."}}}
	fb := &fakeLLM{content: "fallback"}

	got := NewClient(newTestRunner(b), fb, testOptions(), nil).RunJob(context.Background(), "question")

	assert.Equal(t, "The answer is 42.", got)
	assert.Zero(t, fb.calls)
}

func TestRunJob_DegradedUsesFallback(t *testing.T) {
	tests := []struct {
		name     string
		statuses []model.JobStatus
		timeout  time.Duration
	}{
		{"requires external action", []model.JobStatus{model.JobStatusRequiresExternalAction}, time.Second},
		{"failed", []model.JobStatus{model.JobStatusFailed}, time.Second},
		{"cancelled", []model.JobStatus{model.JobStatusCancelled}, time.Second},
		{"expired", []model.JobStatus{model.JobStatusExpired}, time.Second},
		{"timeout", []model.JobStatus{model.JobStatusRunning}, 20 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend(tt.statuses...)
			fb := &fakeLLM{content: "fallback answer"}
			opts := testOptions()
			opts.Timeout = tt.timeout

			got := NewClient(newTestRunner(b), fb, opts, nil).RunJob(context.Background(), "question")

			assert.Equal(t, "fallback answer", got)
			assert.Equal(t, 1, fb.calls)
			assert.Zero(t, b.count("RecentMessages"))
		})
	}
}

func TestRunJob_TransportFailureUsesFallback(t *testing.T) {
	b := newFakeBackend()
	b.errs["CreateThread"] = errBoom
	fb := &fakeLLM{content: "fallback answer"}

	got := NewClient(newTestRunner(b), fb, testOptions(), nil).RunJob(context.Background(), "question")

	assert.Equal(t, "fallback answer", got)
	assert.Equal(t, 1, b.total())
}

func TestRunJob_FallbackRequest(t *testing.T) {
	b := newFakeBackend(model.JobStatusFailed)
	fb := &fakeLLM{content: "ok"}

	NewClient(newTestRunner(b), fb, testOptions(), nil).RunJob(context.Background(), "what is up")

	require.NotNil(t, fb.last)
	assert.Equal(t, "persona", fb.last.System)
	assert.Equal(t, "gpt-4o-mini", fb.last.Model)
	assert.Equal(t, fallbackMaxTokens, fb.last.MaxTokens)
	assert.InDelta(t, fallbackTemperature, fb.last.Temperature, 0.0001)
	require.Len(t, fb.last.Messages, 1)
	assert.Equal(t, "what is up", fb.last.Messages[0].Content)
}

func TestRunJob_FallbackFailure(t *testing.T) {
	b := newFakeBackend(model.JobStatusFailed)
	fb := &fakeLLM{err: errBoom}

	got := NewClient(newTestRunner(b), fb, testOptions(), nil).RunJob(context.Background(), "q")

	assert.Equal(t, MsgInternalError, got)
}

func TestRunJob_NotConfigured(t *testing.T) {
	b := newFakeBackend(model.JobStatusCompleted)
	fb := &fakeLLM{content: "fallback"}
	opts := testOptions()
	opts.AssistantID = ""

	got := NewClient(newTestRunner(b), fb, opts, nil).RunJob(context.Background(), "q")

	assert.Equal(t, MsgNotConfigured, got)
	assert.Zero(t, b.total())
	assert.Zero(t, fb.calls)
}

func TestRunJob_WithoutFallback(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		b := newFakeBackend(model.JobStatusQueued)
		opts := testOptions()
		opts.Timeout = 20 * time.Millisecond

		got := NewClient(newTestRunner(b), nil, opts, nil).RunJob(context.Background(), "q")
		assert.Equal(t, MsgStillProcessing, got)
	})

	t.Run("failed", func(t *testing.T) {
		b := newFakeBackend(model.JobStatusFailed)

		got := NewClient(newTestRunner(b), nil, testOptions(), nil).RunJob(context.Background(), "q")
		assert.Equal(t, "I could not complete the answer (status: failed).", got)
	})

	t.Run("no reply", func(t *testing.T) {
		b := newFakeBackend(model.JobStatusCompleted)

		got := NewClient(newTestRunner(b), nil, testOptions(), nil).RunJob(context.Background(), "q")
		assert.Equal(t, MsgNoReply, got)
	})

	t.Run("transport", func(t *testing.T) {
		b := newFakeBackend()
		b.errs["StartRun"] = errBoom

		got := NewClient(newTestRunner(b), nil, testOptions(), nil).RunJob(context.Background(), "q")
		assert.Equal(t, MsgInternalError, got)
	})
}
