package analysis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/internal/outcome"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

// Runner produces a Result from outcome-tagged transcripts.
type Runner interface {
	Run(ctx context.Context, transcripts []Transcript, hooks Hooks) (*Result, error)
}

// Service creates, persists and serves analyses.
type Service struct {
	runner   Runner
	store    Store
	detector outcome.Detector
	newID    func() string
	now      func() time.Time
}

func NewService(runner Runner, store Store, detector outcome.Detector) *Service {
	return &Service{
		runner:   runner,
		store:    store,
		detector: detector,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Create runs the pipeline over already classified transcripts and persists
// the result under a new id.
func (s *Service) Create(ctx context.Context, transcripts []Transcript, hooks Hooks) (*Analysis, error) {
	res, err := s.runner.Run(ctx, transcripts, hooks)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		ID:          s.newID(),
		Transcripts: transcripts,
		Result:      *res,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.SaveAnalysis(ctx, a); err != nil {
		return nil, apperr.WrapError(err, apperr.ErrStorage, "failed to save analysis").WithContext("analysis_id", a.ID)
	}
	log.Info("Analysis %s saved (%d won, %d lost)", a.ID, a.Summary.WonMeetings, a.Summary.LostMeetings)
	return a, nil
}

// CreateFromTexts classifies raw transcript texts concurrently and then
// creates an analysis from them. Any classification failure aborts.
func (s *Service) CreateFromTexts(ctx context.Context, texts []string) (*Analysis, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	log.Info("Detecting outcomes for %d transcripts", len(texts))
	transcripts := make([]Transcript, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		g.Go(func() error {
			res, err := s.detector.Detect(gctx, text)
			if err != nil {
				return err
			}
			transcripts[i] = Transcript{
				Content:    text,
				Outcome:    res.Outcome,
				Confidence: res.Confidence,
				Reason:     res.Reason,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.Create(ctx, transcripts, Hooks{})
}

// ValidateTexts checks the count and minimum length of raw transcripts.
func ValidateTexts(texts []string) error {
	if len(texts) < MinTranscripts || len(texts) > MaxTranscripts {
		return apperr.Errorf(apperr.ErrValidation, "between %d and %d transcripts are required, got %d",
			MinTranscripts, MaxTranscripts, len(texts))
	}
	for i, t := range texts {
		if len([]rune(strings.TrimSpace(t))) < MinTranscriptLength {
			return apperr.Errorf(apperr.ErrValidation, "transcript %d must have at least %d characters",
				i+1, MinTranscriptLength)
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]*Analysis, error) {
	list, err := s.store.ListAnalyses(ctx, ListLimit)
	if err != nil {
		return nil, apperr.WrapError(err, apperr.ErrStorage, "failed to list analyses")
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Analysis, error) {
	a, err := s.store.GetAnalysis(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, id)
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteAnalysis(ctx, id); err != nil {
		return s.lookupError(err, id)
	}
	log.Info("Analysis %s deleted", id)
	return nil
}

func (s *Service) lookupError(err error, id string) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.Errorf(apperr.ErrNotFound, "Analysis with ID %s not found", id)
	}
	return apperr.WrapError(err, apperr.ErrStorage, "failed to load analysis").WithContext("analysis_id", id)
}
