package assistant

import (
	"context"
	"errors"
	"sync"

	"github.com/capitalize-ai/imbot-relay/internal/llm"
	"github.com/capitalize-ai/imbot-relay/internal/model"
)

type fakeBackend struct {
	mu       sync.Mutex
	statuses []model.JobStatus
	messages []ThreadMessage
	errs     map[string]error
	calls    map[string]int
	added    []UserMessage
	uploads  []string
}

func newFakeBackend(statuses ...model.JobStatus) *fakeBackend {
	return &fakeBackend{
		statuses: statuses,
		errs:     map[string]error{},
		calls:    map[string]int{},
	}
}

func (f *fakeBackend) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.errs[method]
}

func (f *fakeBackend) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeBackend) CreateThread(ctx context.Context) (string, error) {
	if err := f.record("CreateThread"); err != nil {
		return "", err
	}
	return "thread_1", nil
}

func (f *fakeBackend) AddMessage(ctx context.Context, threadID string, msg UserMessage) error {
	if err := f.record("AddMessage"); err != nil {
		return err
	}
	f.mu.Lock()
	f.added = append(f.added, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) StartRun(ctx context.Context, threadID, assistantID, instructions string) (string, error) {
	if err := f.record("StartRun"); err != nil {
		return "", err
	}
	return "run_1", nil
}

func (f *fakeBackend) RunStatus(ctx context.Context, threadID, runID string) (model.JobStatus, error) {
	if err := f.record("RunStatus"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return model.JobStatusRunning, nil
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status, nil
}

func (f *fakeBackend) RecentMessages(ctx context.Context, threadID string, limit int) ([]ThreadMessage, error) {
	if err := f.record("RecentMessages"); err != nil {
		return nil, err
	}
	return f.messages, nil
}

func (f *fakeBackend) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	if err := f.record("UploadFile"); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, name)
	f.mu.Unlock()
	return "file_1", nil
}

type fakeLLM struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
	last    *llm.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

func (f *fakeLLM) Name() string { return "fake" }

var errBoom = errors.New("boom")
