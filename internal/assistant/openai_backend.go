package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/imbot-relay/internal/model"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIBackend implements Backend on the OpenAI Assistants API.
type OpenAIBackend struct {
	client     *openai.Client
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIBackend creates a backend. An empty baseURL uses the public API
// and a nil httpClient uses http.DefaultClient.
func NewOpenAIBackend(apiKey, baseURL string, httpClient *http.Client) *OpenAIBackend {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	config.HTTPClient = httpClient

	return &OpenAIBackend{
		client:     openai.NewClientWithConfig(config),
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// CreateThread creates an empty thread.
func (b *OpenAIBackend) CreateThread(ctx context.Context) (string, error) {
	thread, err := b.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	return thread.ID, nil
}

// AddMessage appends a user message to the thread.
func (b *OpenAIBackend) AddMessage(ctx context.Context, threadID string, msg UserMessage) error {
	if msg.ImageFileID != "" {
		return b.addImageMessage(ctx, threadID, msg)
	}

	_, err := b.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: msg.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

type contentPart struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ImageFile *imageFileParam `json:"image_file,omitempty"`
}

type imageFileParam struct {
	FileID string `json:"file_id"`
}

// addImageMessage posts a message whose content is a text part followed by
// an image_file part. openai.MessageRequest only carries string content.
func (b *OpenAIBackend) addImageMessage(ctx context.Context, threadID string, msg UserMessage) error {
	body, err := json.Marshal(map[string]any{
		"role": openai.ChatMessageRoleUser,
		"content": []contentPart{
			{Type: "text", Text: msg.Text},
			{Type: "image_file", ImageFile: &imageFileParam{FileID: msg.ImageFileID}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal image message: %w", err)
	}

	url := fmt.Sprintf("%s/threads/%s/messages", b.baseURL, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build image message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to add image message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 400))
		return fmt.Errorf("failed to add image message: status %d: %s", resp.StatusCode, snippet)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// StartRun starts a run of the assistant on the thread.
func (b *OpenAIBackend) StartRun(ctx context.Context, threadID, assistantID, instructions string) (string, error) {
	run, err := b.client.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID:  assistantID,
		Instructions: instructions,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return run.ID, nil
}

// RunStatus retrieves the current status of a run.
func (b *OpenAIBackend) RunStatus(ctx context.Context, threadID, runID string) (model.JobStatus, error) {
	run, err := b.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve run: %w", err)
	}
	return jobStatus(run.Status), nil
}

// RecentMessages lists the newest messages of the thread.
func (b *OpenAIBackend) RecentMessages(ctx context.Context, threadID string, limit int) ([]ThreadMessage, error) {
	order := "desc"
	list, err := b.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	out := make([]ThreadMessage, 0, len(list.Messages))
	for _, m := range list.Messages {
		tm := ThreadMessage{Role: m.Role}
		for _, c := range m.Content {
			if c.Type == "text" && c.Text != nil {
				tm.Texts = append(tm.Texts, c.Text.Value)
			}
		}
		out = append(out, tm)
	}
	return out, nil
}

// UploadFile stores data in the backend's file storage for assistants.
func (b *OpenAIBackend) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	file, err := b.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return file.ID, nil
}

// jobStatus maps backend run statuses onto the relay's job lifecycle.
// Statuses this relay does not know are treated as failures.
func jobStatus(status openai.RunStatus) model.JobStatus {
	switch string(status) {
	case "queued":
		return model.JobStatusQueued
	case "in_progress", "cancelling":
		return model.JobStatusRunning
	case "requires_action":
		return model.JobStatusRequiresExternalAction
	case "completed":
		return model.JobStatusCompleted
	case "cancelled":
		return model.JobStatusCancelled
	case "expired":
		return model.JobStatusExpired
	default:
		return model.JobStatusFailed
	}
}
