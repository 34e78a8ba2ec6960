package assistant

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/imbot-relay/internal/model"
	"github.com/capitalize-ai/imbot-relay/pkg/logger"
	"github.com/capitalize-ai/imbot-relay/pkg/metrics"
)

const (
	// DefaultPollInterval is the pause between run status checks.
	DefaultPollInterval = 700 * time.Millisecond
	// DefaultTimeout is the poll budget of a run.
	DefaultTimeout = 18 * time.Second
	// recentMessageLimit bounds how many thread messages are scanned for the reply.
	recentMessageLimit = 10
)

var tracer trace.Tracer = otel.Tracer("github.com/capitalize-ai/imbot-relay/internal/assistant")

// Request describes one run.
type Request struct {
	Message      UserMessage
	Instructions string
	Timeout      time.Duration
	Route        model.Route
}

// Runner executes the create, submit, start, poll and fetch protocol.
type Runner struct {
	backend      Backend
	assistantID  string
	pollInterval time.Duration
	logger       *logger.Logger
}

// NewRunner creates a runner for the given assistant.
func NewRunner(backend Backend, assistantID string, pollInterval time.Duration, log *logger.Logger) *Runner {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{
		backend:      backend,
		assistantID:  assistantID,
		pollInterval: pollInterval,
		logger:       log,
	}
}

// Run executes one run and returns the assistant's reply with citations
// stripped. Every failure is returned as a *Degraded.
func (r *Runner) Run(ctx context.Context, req Request) (reply string, err error) {
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}

	ctx, span := tracer.Start(ctx, "assistant.run", trace.WithAttributes(
		attribute.String("relay.route", string(req.Route)),
	))
	job := model.NewRemoteJob("", time.Now())

	defer func() {
		status := string(job.Status)
		if err != nil {
			d := AsDegraded(err)
			if d.Stage == StageTimeout {
				status = string(StageTimeout)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, string(d.Stage))
			r.logger.Warn("assistant run degraded",
				zap.String("route", string(req.Route)),
				zap.String("stage", string(d.Stage)),
				zap.String("status", string(d.Status)),
				zap.String("thread_id", job.ConversationHandle),
				zap.String("run_id", job.JobID),
				zap.Duration("elapsed", job.Elapsed()),
				zap.Error(d.Err),
			)
		}
		span.SetAttributes(attribute.String("relay.job_status", string(job.Status)))
		span.End()
		metrics.RecordRun(string(req.Route), status, job.Elapsed().Seconds())
	}()

	threadID, err := r.backend.CreateThread(ctx)
	if err != nil {
		return "", &Degraded{Stage: StageCreateThread, Status: job.Status, Err: err}
	}
	job.ConversationHandle = threadID

	if err := r.backend.AddMessage(ctx, threadID, req.Message); err != nil {
		return "", &Degraded{Stage: StageAddMessage, Status: job.Status, Err: err}
	}

	runID, err := r.backend.StartRun(ctx, threadID, r.assistantID, req.Instructions)
	if err != nil {
		return "", &Degraded{Stage: StageStartRun, Status: job.Status, Err: err}
	}
	job.JobID = runID
	job.Observe(model.JobStatusQueued)

	if err := r.poll(ctx, job, req.Timeout); err != nil {
		return "", err
	}
	if job.Status != model.JobStatusCompleted {
		return "", &Degraded{Stage: StageStatus, Status: job.Status}
	}

	messages, err := r.backend.RecentMessages(ctx, threadID, recentMessageLimit)
	if err != nil {
		return "", &Degraded{Stage: StageFetchMessages, Status: job.Status, Err: err}
	}
	for _, msg := range messages {
		if msg.Role != RoleAssistant {
			continue
		}
		if text := StripCitations(msg.Text()); text != "" {
			r.logger.Info("assistant run completed",
				zap.String("route", string(req.Route)),
				zap.String("thread_id", threadID),
				zap.String("run_id", runID),
				zap.Duration("elapsed", job.Elapsed()),
			)
			return text, nil
		}
	}
	return "", &Degraded{Stage: StageNoReply, Status: job.Status, Err: ErrNoReply}
}

// poll checks the run status until it is terminal, the budget runs out or
// ctx is done. The run is never cancelled on the backend.
func (r *Runner) poll(ctx context.Context, job *model.RemoteJob, budget time.Duration) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(budget)
	defer deadline.Stop()

	for {
		status, err := r.backend.RunStatus(ctx, job.ConversationHandle, job.JobID)
		if err != nil {
			return &Degraded{Stage: StagePoll, Status: job.Status, Err: err}
		}
		job.Observe(status)
		if job.Status.Terminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return &Degraded{Stage: StagePoll, Status: job.Status, Err: ctx.Err()}
		case <-deadline.C:
			return &Degraded{Stage: StageTimeout, Status: job.Status, Err: ErrTimeout}
		case <-ticker.C:
		}
	}
}
