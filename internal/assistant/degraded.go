package assistant

import (
	"errors"
	"fmt"

	"github.com/capitalize-ai/imbot-relay/internal/model"
)

// Stage names the step of a run that degraded.
type Stage string

const (
	StageCreateThread  Stage = "create_thread"
	StageAddMessage    Stage = "add_message"
	StageStartRun      Stage = "start_run"
	StagePoll          Stage = "poll"
	StageTimeout       Stage = "timeout"
	StageStatus        Stage = "status"
	StageFetchMessages Stage = "fetch_messages"
	StageNoReply       Stage = "no_reply"
	StageUnknown       Stage = "unknown"
)

// ErrTimeout is wrapped by degradations caused by the poll budget running out.
var ErrTimeout = errors.New("run did not reach a terminal status in time")

// ErrNoReply is wrapped when a completed run has no assistant-authored text.
var ErrNoReply = errors.New("no assistant message in thread")

// Degraded describes a run that did not produce a reply.
type Degraded struct {
	Stage  Stage
	Status model.JobStatus
	Err    error
}

func (d *Degraded) Error() string {
	if d.Err == nil {
		return fmt.Sprintf("assistant run degraded at %s (status %s)", d.Stage, d.Status)
	}
	return fmt.Sprintf("assistant run degraded at %s (status %s): %v", d.Stage, d.Status, d.Err)
}

func (d *Degraded) Unwrap() error {
	return d.Err
}

// TimedOut reports whether the poll budget ran out.
func (d *Degraded) TimedOut() bool {
	return d.Stage == StageTimeout
}

// AsDegraded converts any error into a *Degraded.
func AsDegraded(err error) *Degraded {
	var d *Degraded
	if errors.As(err, &d) {
		return d
	}
	return &Degraded{Stage: StageUnknown, Err: err}
}

// OrFallback returns text when err is nil and otherwise the result of
// fallback for the degradation.
func OrFallback(text string, err error, fallback func(*Degraded) string) string {
	if err == nil {
		return text
	}
	return fallback(AsDegraded(err))
}
