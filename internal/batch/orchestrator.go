package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/sales-playbook/internal/analysis"
	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/internal/files"
	"github.com/MimeLyc/sales-playbook/internal/jobs"
	"github.com/MimeLyc/sales-playbook/internal/llm"
	"github.com/MimeLyc/sales-playbook/internal/metrics"
	"github.com/MimeLyc/sales-playbook/internal/outcome"
	"github.com/MimeLyc/sales-playbook/internal/progress"
	"github.com/MimeLyc/sales-playbook/pkg/log"
	"github.com/MimeLyc/sales-playbook/pkg/retry"
)

const (
	DefaultConcurrencyLimit = 3
	MinContentLength        = 100
)

// RawFile is one uploaded file as received from the client.
type RawFile struct {
	Name        string
	Data        []byte
	ContentType string
}

// AnalysisCreator runs and persists the analysis of tagged transcripts.
type AnalysisCreator interface {
	Create(ctx context.Context, transcripts []analysis.Transcript, hooks analysis.Hooks) (*analysis.Analysis, error)
}

// FileStore keeps the raw uploads for download and audit.
type FileStore interface {
	Create(ctx context.Context, up files.Upload) (*files.Record, error)
}

type Options struct {
	ConcurrencyLimit int
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	MinContentLength int
}

func (o Options) withDefaults() Options {
	if o.ConcurrencyLimit <= 0 {
		o.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = retry.DefaultMaxAttempts
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = retry.DefaultBaseDelay
	}
	if o.MinContentLength <= 0 {
		o.MinContentLength = MinContentLength
	}
	return o
}

type Deps struct {
	Tracker     *jobs.Tracker
	Bus         *progress.Bus
	Publisher   progress.Publisher
	Transcriber llm.Transcriber
	Detector    outcome.Detector
	Analyses    AnalysisCreator
	Files       FileStore
}

// Orchestrator drives batch jobs from submission to a stored analysis.
// Every job runs two supervised background tasks: the processing pipeline
// and raw file persistence.
type Orchestrator struct {
	tracker     *jobs.Tracker
	bus         *progress.Bus
	publisher   progress.Publisher
	transcriber llm.Transcriber
	detector    outcome.Detector
	analyses    AnalysisCreator
	files       FileStore
	opts        Options

	newID func() string
	now   func() time.Time

	wg sync.WaitGroup
}

func New(deps Deps, opts Options) *Orchestrator {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = deps.Bus
	}
	return &Orchestrator{
		tracker:     deps.Tracker,
		bus:         deps.Bus,
		publisher:   publisher,
		transcriber: deps.Transcriber,
		detector:    deps.Detector,
		analyses:    deps.Analyses,
		files:       deps.Files,
		opts:        opts.withDefaults(),
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// SubmitBatch records a pending job for files and starts processing it in
// the background. Invalid batch sizes are rejected before anything is stored.
func (o *Orchestrator) SubmitBatch(ctx context.Context, raw []RawFile) (*jobs.Job, error) {
	if err := ValidateCount(len(raw)); err != nil {
		return nil, err
	}

	infos := make([]jobs.FileInfo, len(raw))
	for i, f := range raw {
		infos[i] = jobs.FileInfo{Filename: f.Name, IsAudio: IsAudioFile(f.Name)}
	}

	job, err := o.tracker.Create(ctx, jobs.New(o.newID(), infos, o.now()))
	if err != nil {
		return nil, err
	}
	metrics.IncBatchJob(string(jobs.StatusPending))
	log.Info("Batch job %s created with %d files", job.ID, job.TotalFiles)

	bg := context.WithoutCancel(ctx)
	o.spawn(bg, "pipeline", job.ID, func(ctx context.Context) error {
		return o.runPipeline(ctx, job.ID, raw)
	})
	o.spawn(bg, "file persistence", job.ID, func(ctx context.Context) error {
		return o.persistFiles(ctx, job.ID, raw)
	})

	return job, nil
}

// spawn runs fn as a supervised task: its error or panic is logged and
// never reaches the submitter or the sibling task.
func (o *Orchestrator) spawn(ctx context.Context, name, jobID string, fn func(context.Context) error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := apperr.SafeExecute(func() error { return fn(ctx) }); err != nil {
			log.Error("Job %s %s failed: %v", jobID, name, err)
		}
	}()
}

func (o *Orchestrator) GetJobStatus(ctx context.Context, id string) (*jobs.Job, error) {
	return o.tracker.Get(ctx, id)
}

// Wait blocks until every background task has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown waits for background tasks until ctx is done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("batch jobs still running: %w", ctx.Err())
	}
}

// persistFiles stores every raw file and links the stored records back onto
// the job's descriptors. Files that fail to store are logged and skipped.
func (o *Orchestrator) persistFiles(ctx context.Context, jobID string, raw []RawFile) error {
	if o.files == nil {
		return nil
	}

	records := make([]*files.Record, len(raw))
	var failed []string
	for i, f := range raw {
		rec, err := o.files.Create(ctx, files.Upload{
			Data:       f.Data,
			Filename:   f.Name,
			MimeType:   f.ContentType,
			BatchJobID: jobID,
		})
		if err != nil {
			log.Warn("Job %s: failed to persist %s: %v", jobID, f.Name, err)
			failed = append(failed, f.Name)
			continue
		}
		records[i] = rec
	}

	_, err := o.update(ctx, jobID, func(j *jobs.Job) error {
		for i, rec := range records {
			if rec == nil || i >= len(j.Files) {
				continue
			}
			j.Files[i].FileID = rec.ID
			j.Files[i].FileKey = rec.Key
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("Job %s: %d files persisted to storage", jobID, len(raw)-len(failed))
	if len(failed) > 0 {
		return fmt.Errorf("%d files were not persisted: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// update applies fn through the tracker. A failed write is logged and the
// in-memory state carries on; the next successful write persists it.
func (o *Orchestrator) update(ctx context.Context, id string, fn func(*jobs.Job) error) (*jobs.Job, error) {
	snap, err := o.tracker.Update(ctx, id, fn)
	if err != nil && snap != nil && apperr.IsErrorType(err, apperr.ErrStorage) {
		log.Warn("Job %s state not persisted, continuing: %v", id, err)
		return snap, nil
	}
	return snap, err
}

func (o *Orchestrator) publish(jobID string, ev progress.Event) {
	o.publisher.Publish(jobID, ev)
}

func (o *Orchestrator) retryOptions(name string) []retry.Option {
	return []retry.Option{
		retry.WithMaxAttempts(o.opts.RetryAttempts),
		retry.WithBaseDelay(o.opts.RetryBaseDelay),
		retry.WithName(name),
		retry.OnRetry(func(int, time.Duration, error) { metrics.IncRetry(name) }),
	}
}
