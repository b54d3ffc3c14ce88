package maintenance

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/sales-playbook/internal/jobs"
	"github.com/MimeLyc/sales-playbook/internal/llm"
	"github.com/MimeLyc/sales-playbook/internal/metrics"
	"github.com/MimeLyc/sales-playbook/internal/progress"
	"github.com/MimeLyc/sales-playbook/pkg/file"
	"github.com/MimeLyc/sales-playbook/pkg/icron"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

const (
	DefaultCronExpr       = "0 */10 * * * *"
	DefaultStaleJobAfter  = 30 * time.Minute
	DefaultTempFileMaxAge = time.Hour

	InterruptedMessage = "processing interrupted"
)

type Options struct {
	CronExpr       string
	StaleJobAfter  time.Duration
	TempDir        string
	TempFileMaxAge time.Duration
}

func (o Options) withDefaults() Options {
	if o.CronExpr == "" {
		o.CronExpr = DefaultCronExpr
	}
	if o.StaleJobAfter <= 0 {
		o.StaleJobAfter = DefaultStaleJobAfter
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.TempFileMaxAge <= 0 {
		o.TempFileMaxAge = DefaultTempFileMaxAge
	}
	return o
}

// Report summarises one maintenance run.
type Report struct {
	ReapedJobs   []string
	RemovedFiles int
}

// Janitor fails jobs abandoned by a previous process and removes leftover
// transcription temp files.
type Janitor struct {
	tracker   *jobs.Tracker
	store     jobs.Store
	publisher progress.Publisher
	opts      Options
	now       func() time.Time

	cron  *cron.Cron
	group singleflight.Group
}

func New(tracker *jobs.Tracker, store jobs.Store, publisher progress.Publisher, opts Options) *Janitor {
	return &Janitor{
		tracker:   tracker,
		store:     store,
		publisher: publisher,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// Start runs once immediately and then on every cron trigger until Stop.
func (j *Janitor) Start(ctx context.Context) error {
	if _, err := icron.Parse(j.opts.CronExpr); err != nil {
		return err
	}

	j.runLogged(ctx)

	j.cron = cron.New(cron.WithParser(icron.Parser))
	if _, err := j.cron.AddFunc(j.opts.CronExpr, func() { j.runLogged(ctx) }); err != nil {
		return err
	}
	j.cron.Start()

	if info, err := icron.GetTriggerInfo(j.opts.CronExpr, j.now()); err == nil {
		log.Info("Maintenance scheduled with %q, next run at %s (in %s)",
			info.Expression, info.Next.Format(time.DateTime), info.TimeUntilNext.Round(time.Second))
	}
	return nil
}

// Stop halts the schedule and waits for a running pass to end.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

func (j *Janitor) runLogged(ctx context.Context) {
	report, err := j.RunOnce(ctx)
	if err != nil {
		log.Error("Maintenance run failed: %v", err)
	}
	if len(report.ReapedJobs) > 0 || report.RemovedFiles > 0 {
		log.Info("Maintenance reaped %d jobs, removed %d temp files", len(report.ReapedJobs), report.RemovedFiles)
	}
}

// RunOnce performs a single pass. Concurrent callers share the same pass.
func (j *Janitor) RunOnce(ctx context.Context) (Report, error) {
	v, err, _ := j.group.Do("maintenance", func() (any, error) {
		var report Report
		reaped, reapErr := j.reapStale(ctx)
		report.ReapedJobs = reaped
		removed, sweepErr := j.sweepTempFiles()
		report.RemovedFiles = removed
		return report, errors.Join(reapErr, sweepErr)
	})
	report, _ := v.(Report)
	return report, err
}

func (j *Janitor) reapStale(ctx context.Context) ([]string, error) {
	candidates, err := j.store.ListJobsByStatus(ctx, jobs.StatusPending, jobs.StatusProcessing)
	if err != nil {
		return nil, err
	}

	cutoff := j.now().Add(-j.opts.StaleJobAfter)
	var (
		reaped []string
		errs   []error
	)
	for _, candidate := range candidates {
		if j.tracker.IsLive(candidate.ID) || !candidate.UpdatedAt.Before(cutoff) {
			continue
		}
		snap, err := j.tracker.Update(ctx, candidate.ID, func(job *jobs.Job) error {
			if job.Status.Terminal() {
				return errAlreadyTerminal
			}
			job.Fail(InterruptedMessage)
			return nil
		})
		if errors.Is(err, errAlreadyTerminal) {
			continue
		}
		if snap == nil {
			errs = append(errs, err)
			continue
		}
		log.Warn("Marked stale batch job %s as failed (last update %s)", candidate.ID, candidate.UpdatedAt.Format(time.RFC3339))
		reaped = append(reaped, candidate.ID)
		if j.publisher != nil {
			j.publisher.Publish(snap.ID, interruptedEvent(snap))
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	metrics.AddReaped(len(reaped))
	return reaped, errors.Join(errs...)
}

var errAlreadyTerminal = errors.New("job already finished")

func interruptedEvent(job *jobs.Job) progress.Event {
	stage := job.CurrentStage
	if stage == jobs.StageNone {
		stage = jobs.StageUploading
	}
	return progress.Event{
		Stage:   stage,
		Current: job.ProcessedFiles,
		Total:   job.TotalFiles,
		Message: "Processing failed",
		Error:   job.ErrorMessage,
	}
}

func (j *Janitor) sweepTempFiles() (int, error) {
	stale, err := file.FindOlderThan(j.opts.TempDir, llm.TempFilePattern, j.now().Add(-j.opts.TempFileMaxAge))
	if err != nil {
		return 0, err
	}
	return file.RemoveAll(stale)
}
