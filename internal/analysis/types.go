package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/MimeLyc/sales-playbook/internal/outcome"
)

const (
	MinTranscripts      = 2
	MaxTranscripts      = 20
	MinTranscriptLength = 100
	// ListLimit caps List results, newest first.
	ListLimit = 50
)

var ErrNotFound = errors.New("analysis not found")

// Transcript is a meeting transcript tagged with its detected outcome.
type Transcript struct {
	Content    string             `json:"content"`
	Outcome    outcome.Outcome    `json:"outcome"`
	Confidence outcome.Confidence `json:"confidence"`
	Reason     string             `json:"reason"`
}

type Summary struct {
	TotalMeetings int       `json:"totalMeetings"`
	WonMeetings   int       `json:"wonMeetings"`
	LostMeetings  int       `json:"lostMeetings"`
	AnalysisDate  time.Time `json:"analysisDate"`
}

type EngagementMoment struct {
	Quote       string `json:"quote"`
	Context     string `json:"context"`
	SpeakerTurn string `json:"speakerTurn"`
	ImpactLevel string `json:"impactLevel"`
}

type EffectiveQuestion struct {
	Question        string  `json:"question"`
	AvgResponseTime string  `json:"avgResponseTime"`
	SuccessRate     float64 `json:"successRate"`
	SuggestedTiming string  `json:"suggestedTiming"`
}

type ObjectionAnalysis struct {
	Objection             string   `json:"objection"`
	Frequency             int      `json:"frequency"`
	SuccessfulResponses   []string `json:"successfulResponses"`
	UnsuccessfulResponses []string `json:"unsuccessfulResponses"`
	RecommendedResponse   string   `json:"recommendedResponse"`
}

type PlaybookSuggestion struct {
	Section string `json:"section"`
	Content string `json:"content"`
	BasedOn string `json:"basedOn"`
}

// Result is the assembled output of one pipeline run.
type Result struct {
	Summary             Summary              `json:"summary"`
	EngagementMoments   []EngagementMoment   `json:"engagementMoments"`
	EffectiveQuestions  []EffectiveQuestion  `json:"effectiveQuestions"`
	Objections          []ObjectionAnalysis  `json:"objections"`
	PlaybookSuggestions []PlaybookSuggestion `json:"playbookSuggestions"`
}

// Analysis is a persisted Result together with its input transcripts.
type Analysis struct {
	ID          string       `json:"id"`
	Transcripts []Transcript `json:"transcripts"`
	Result
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists analyses. Get and Delete return ErrNotFound for unknown ids.
type Store interface {
	SaveAnalysis(ctx context.Context, a *Analysis) error
	GetAnalysis(ctx context.Context, id string) (*Analysis, error)
	ListAnalyses(ctx context.Context, limit int) ([]*Analysis, error)
	DeleteAnalysis(ctx context.Context, id string) error
}

// Hooks lets the caller observe pipeline milestones.
type Hooks struct {
	// OnGenerating runs after the comparative stage, before playbook
	// generation starts.
	OnGenerating func(ctx context.Context)
}

func (h Hooks) generating(ctx context.Context) {
	if h.OnGenerating != nil {
		h.OnGenerating(ctx)
	}
}
