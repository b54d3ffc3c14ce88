package batch

import (
	"context"

	"github.com/MimeLyc/sales-playbook/internal/jobs"
	"github.com/MimeLyc/sales-playbook/internal/progress"
)

// ProgressStream delivers a job's progress events. C is closed after the
// terminal event or when Close is called.
type ProgressStream struct {
	C <-chan progress.Event

	closeFn func()
}

func (s *ProgressStream) Close() {
	if s != nil && s.closeFn != nil {
		s.closeFn()
	}
}

// SubscribeToProgress attaches to the live events of a job. A job that has
// already finished yields a single event rebuilt from its stored state.
func (o *Orchestrator) SubscribeToProgress(ctx context.Context, id string) (*ProgressStream, error) {
	sub := o.bus.Subscribe(id)

	job, err := o.tracker.Get(ctx, id)
	if err != nil {
		sub.Close()
		return nil, err
	}
	if !job.Status.Terminal() {
		return &ProgressStream{C: sub.C, closeFn: sub.Close}, nil
	}

	sub.Close()
	ch := make(chan progress.Event, 1)
	ch <- terminalEvent(job)
	close(ch)
	return &ProgressStream{C: ch}, nil
}

func terminalEvent(j *jobs.Job) progress.Event {
	if j.Status == jobs.StatusFailed {
		return failureEvent(j, j.ErrorMessage)
	}
	ev := progress.Event{
		Stage:           jobs.StageDone,
		Current:         j.TotalFiles,
		Total:           j.TotalFiles,
		Message:         "Analysis complete",
		ResultReference: j.ResultReference,
	}
	if failed := j.FailedFiles(); failed > 0 {
		ev.Error = partialFailure(failed, j.TotalFiles)
	}
	return ev
}
