package batch

import (
	"context"

	"github.com/MimeLyc/sales-playbook/internal/outcome"
	"github.com/MimeLyc/sales-playbook/pkg/lang"
	"github.com/MimeLyc/sales-playbook/pkg/log"
	"github.com/MimeLyc/sales-playbook/pkg/retry"
)

// UploadResult is a single transcript together with its detected outcome.
type UploadResult struct {
	Content         string             `json:"content"`
	Filename        string             `json:"filename"`
	DetectedOutcome outcome.Outcome    `json:"detectedOutcome"`
	Confidence      outcome.Confidence `json:"confidence"`
	Reason          string             `json:"reason"`
	IsTranscribed   bool               `json:"isTranscribed"`
	Language        string             `json:"language,omitempty"`
}

// ProcessUpload turns one file into text and classifies it right away.
// Unlike a batch, any failure is returned to the caller.
func (o *Orchestrator) ProcessUpload(ctx context.Context, f RawFile) (*UploadResult, error) {
	if err := ValidateFile(f.Name, int64(len(f.Data))); err != nil {
		return nil, err
	}
	log.Info("Processing file: %s (%d bytes)", f.Name, len(f.Data))

	text, err := o.processFile(ctx, f)
	if err != nil {
		return nil, err
	}

	res, err := retry.Do(ctx, func(ctx context.Context) (outcome.Result, error) {
		return o.detector.Detect(ctx, text)
	}, o.retryOptions("outcome detection")...)
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		Content:         text,
		Filename:        f.Name,
		DetectedOutcome: res.Outcome,
		Confidence:      res.Confidence,
		Reason:          res.Reason,
		IsTranscribed:   IsAudioFile(f.Name),
		Language:        lang.Detect(text),
	}, nil
}
