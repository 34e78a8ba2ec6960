// Package assistant drives assistant runs on the AI backend: create a thread,
// submit the user's content, start a run, poll it to a terminal status and
// read the reply, degrading to a synchronous completion when it does not
// complete.
package assistant

import (
	"context"
	"strings"

	"github.com/capitalize-ai/imbot-relay/internal/model"
)

// RoleAssistant is the author role of backend-generated messages.
const RoleAssistant = "assistant"

// UserMessage is the content submitted to a thread. ImageFileID, when set,
// references an uploaded image that accompanies Text.
type UserMessage struct {
	Text        string
	ImageFileID string
}

// ThreadMessage is one message read back from a thread.
type ThreadMessage struct {
	Role  string
	Texts []string
}

// Text joins the text segments of the message.
func (m ThreadMessage) Text() string {
	return strings.TrimSpace(strings.Join(m.Texts, "\n"))
}

// Backend is the job-based assistant API.
type Backend interface {
	CreateThread(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, threadID string, msg UserMessage) error
	StartRun(ctx context.Context, threadID, assistantID, instructions string) (string, error)
	RunStatus(ctx context.Context, threadID, runID string) (model.JobStatus, error)
	// RecentMessages returns up to limit messages, newest first.
	RecentMessages(ctx context.Context, threadID string, limit int) ([]ThreadMessage, error)
	UploadFile(ctx context.Context, name string, data []byte) (string, error)
}
