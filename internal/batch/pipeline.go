package batch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/sales-playbook/internal/analysis"
	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/internal/jobs"
	"github.com/MimeLyc/sales-playbook/internal/llm"
	"github.com/MimeLyc/sales-playbook/internal/metrics"
	"github.com/MimeLyc/sales-playbook/internal/outcome"
	"github.com/MimeLyc/sales-playbook/internal/progress"
	"github.com/MimeLyc/sales-playbook/pkg/lang"
	"github.com/MimeLyc/sales-playbook/pkg/log"
	"github.com/MimeLyc/sales-playbook/pkg/retry"
)

// processed is the outcome of turning one raw file into transcript text.
type processed struct {
	text string
	err  error
}

func (o *Orchestrator) runPipeline(ctx context.Context, jobID string, raw []RawFile) error {
	if err := o.tracker.Acquire(ctx, jobID); err != nil {
		return err
	}
	defer o.tracker.Release(jobID)

	metrics.JobStarted()
	defer metrics.JobFinished()

	logger := log.With(map[string]any{"job_id": jobID})
	started := time.Now()

	err := apperr.SafeExecute(func() error { return o.execute(ctx, jobID, raw, logger) })
	if err != nil {
		logger.Error("Batch job failed after %s: %v", time.Since(started).Round(time.Millisecond), err)
		o.fail(ctx, jobID, err)
		return err
	}
	logger.Info("Batch job completed in %s", time.Since(started).Round(time.Millisecond))
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, jobID string, raw []RawFile, logger *log.Logger) error {
	total := len(raw)

	_, err := o.update(ctx, jobID, func(j *jobs.Job) error {
		j.Status = jobs.StatusProcessing
		return j.Advance(jobs.StageUploading)
	})
	if err != nil {
		return err
	}
	o.publish(jobID, progress.Event{Stage: jobs.StageUploading, Current: 0, Total: total, Message: "Files received"})

	stageStart := time.Now()
	if _, err := o.update(ctx, jobID, func(j *jobs.Job) error { return j.Advance(jobs.StageTranscribing) }); err != nil {
		return err
	}
	o.publish(jobID, progress.Event{Stage: jobs.StageTranscribing, Current: 0, Total: total, Message: "Processing files"})

	texts, err := o.processFiles(ctx, jobID, raw, logger)
	if err != nil {
		return err
	}
	metrics.ObserveStage(string(jobs.StageTranscribing), time.Since(stageStart).Seconds())

	if len(texts) < MinFiles {
		return apperr.Errorf(apperr.ErrUnprocessable,
			"insufficient successfully processed files: %d of %d succeeded, at least %d required",
			len(texts), total, MinFiles)
	}

	stageStart = time.Now()
	transcripts, err := o.detectOutcomes(ctx, jobID, texts)
	if err != nil {
		return err
	}
	metrics.ObserveStage(string(jobs.StageDetecting), time.Since(stageStart).Seconds())

	if _, err := o.update(ctx, jobID, func(j *jobs.Job) error { return j.Advance(jobs.StageAnalyzing) }); err != nil {
		return err
	}
	o.publish(jobID, progress.Event{Stage: jobs.StageAnalyzing, Current: 0, Total: 1, Message: "Analyzing transcripts"})

	var hookErr error
	hooks := analysis.Hooks{
		OnGenerating: func(ctx context.Context) {
			o.publish(jobID, progress.Event{Stage: jobs.StageAnalyzing, Current: 1, Total: 1, Message: "Comparison complete"})
			if _, err := o.update(ctx, jobID, func(j *jobs.Job) error { return j.Advance(jobs.StageGenerating) }); err != nil {
				hookErr = err
				return
			}
			o.publish(jobID, progress.Event{Stage: jobs.StageGenerating, Current: 0, Total: 1, Message: "Generating playbook"})
		},
	}

	result, err := o.analyses.Create(ctx, transcripts, hooks)
	if err != nil {
		return err
	}
	if hookErr != nil {
		logger.Warn("Stage change to generating was not recorded: %v", hookErr)
	}
	o.publish(jobID, progress.Event{Stage: jobs.StageGenerating, Current: 1, Total: 1, Message: "Playbook generated"})

	return o.finish(ctx, jobID, result.ID, logger)
}

// processFiles turns every raw file into text, ConcurrencyLimit files at a
// time. Each chunk finishes before the next starts. The returned texts keep
// submission order and skip failed files.
func (o *Orchestrator) processFiles(ctx context.Context, jobID string, raw []RawFile, logger *log.Logger) ([]string, error) {
	results := make([]processed, len(raw))
	width := o.opts.ConcurrencyLimit

	for start := 0; start < len(raw); start += width {
		end := min(start+width, len(raw))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				var text string
				err := apperr.SafeExecute(func() error {
					var perr error
					text, perr = o.processFile(gctx, raw[i])
					return perr
				})
				results[i] = processed{text: text, err: err}
				return o.recordFile(gctx, jobID, i, raw[i], text, err, logger)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	texts := make([]string, 0, len(raw))
	for _, r := range results {
		if r.err == nil {
			texts = append(texts, r.text)
		}
	}
	return texts, nil
}

func (o *Orchestrator) processFile(ctx context.Context, f RawFile) (string, error) {
	var text string
	if IsAudioFile(f.Name) {
		if o.transcriber == nil {
			return "", apperr.NewError(apperr.ErrConfig, "audio transcription is not configured")
		}
		tr, err := retry.Do(ctx, func(ctx context.Context) (llm.Transcription, error) {
			return o.transcriber.TranscribeAudio(ctx, f.Data, f.Name)
		}, o.retryOptions("transcription")...)
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(tr.Text)
	} else {
		text = strings.TrimSpace(strings.ToValidUTF8(string(f.Data), "�"))
	}

	if utf8.RuneCountInString(text) < o.opts.MinContentLength {
		return "", apperr.Errorf(apperr.ErrValidation, "Content too short (min %d chars)", o.opts.MinContentLength)
	}
	return text, nil
}

// recordFile marks the file processed on the job and reports progress. Only a
// failure to update the job is returned; file errors are recorded on it.
func (o *Orchestrator) recordFile(ctx context.Context, jobID string, index int, f RawFile, text string, fileErr error, logger *log.Logger) error {
	errMsg := ""
	language := ""
	if fileErr != nil {
		errMsg = fmt.Sprintf("%s: %s", f.Name, apperr.Message(fileErr))
		logger.Warn("File %s failed: %v", f.Name, fileErr)
	} else {
		language = lang.Detect(text)
	}
	metrics.IncBatchFile(IsAudioFile(f.Name), fileErr == nil)

	snap, err := o.update(ctx, jobID, func(j *jobs.Job) error {
		if err := j.MarkFileProcessed(index, errMsg); err != nil {
			return err
		}
		if language != "" {
			j.Files[index].Language = language
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.publish(jobID, progress.Event{
		Stage:   jobs.StageTranscribing,
		Current: snap.ProcessedFiles,
		Total:   snap.TotalFiles,
		Message: fmt.Sprintf("Processed %s", f.Name),
	})
	return nil
}

// detectOutcomes classifies each transcript in turn.
func (o *Orchestrator) detectOutcomes(ctx context.Context, jobID string, texts []string) ([]analysis.Transcript, error) {
	if _, err := o.update(ctx, jobID, func(j *jobs.Job) error { return j.Advance(jobs.StageDetecting) }); err != nil {
		return nil, err
	}
	o.publish(jobID, progress.Event{Stage: jobs.StageDetecting, Current: 0, Total: len(texts), Message: "Detecting meeting outcomes"})

	transcripts := make([]analysis.Transcript, 0, len(texts))
	for i, text := range texts {
		res, err := retry.Do(ctx, func(ctx context.Context) (outcome.Result, error) {
			return o.detector.Detect(ctx, text)
		}, o.retryOptions("outcome detection")...)
		if err != nil {
			return nil, err
		}
		transcripts = append(transcripts, analysis.Transcript{
			Content:    text,
			Outcome:    res.Outcome,
			Confidence: res.Confidence,
			Reason:     res.Reason,
		})
		o.publish(jobID, progress.Event{
			Stage:   jobs.StageDetecting,
			Current: i + 1,
			Total:   len(texts),
			Message: fmt.Sprintf("Meeting %d classified as %s", i+1, res.Outcome),
		})
	}
	return transcripts, nil
}

func (o *Orchestrator) finish(ctx context.Context, jobID, resultRef string, logger *log.Logger) error {
	snap, err := o.update(ctx, jobID, func(j *jobs.Job) error {
		j.Complete(resultRef, o.now())
		return nil
	})
	if err != nil {
		return err
	}
	metrics.IncBatchJob(string(jobs.StatusCompleted))

	ev := progress.Event{
		Stage:           jobs.StageDone,
		Current:         snap.TotalFiles,
		Total:           snap.TotalFiles,
		Message:         "Analysis complete",
		ResultReference: resultRef,
	}
	if failed := snap.FailedFiles(); failed > 0 {
		ev.Error = partialFailure(failed, snap.TotalFiles)
		logger.Warn("Completed with partial success: %s", ev.Error)
	}
	o.publish(jobID, ev)
	return nil
}

// fail records a stage-fatal error on the job and sends the final event.
func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error) {
	msg := apperr.Message(cause)
	snap, err := o.update(ctx, jobID, func(j *jobs.Job) error {
		j.Fail(msg)
		return nil
	})
	if err != nil {
		log.Error("Failed to record failure of job %s: %v", jobID, err)
		snap, err = o.tracker.Get(ctx, jobID)
		if err != nil {
			o.publish(jobID, progress.Event{Stage: jobs.StageUploading, Message: "Processing failed", Error: msg})
			return
		}
	}
	metrics.IncBatchJob(string(jobs.StatusFailed))
	o.publish(jobID, failureEvent(snap, msg))
}

func failureEvent(j *jobs.Job, msg string) progress.Event {
	stage := j.CurrentStage
	if stage == jobs.StageNone {
		stage = jobs.StageUploading
	}
	return progress.Event{
		Stage:   stage,
		Current: j.ProcessedFiles,
		Total:   j.TotalFiles,
		Message: "Processing failed",
		Error:   msg,
	}
}

func partialFailure(failed, total int) string {
	return fmt.Sprintf("%d of %d files failed to process", failed, total)
}
