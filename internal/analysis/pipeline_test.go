package analysis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/internal/outcome"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestPipeline(gen *scriptedGenerator) *Pipeline {
	return NewPipeline(gen, language.BrazilianPortuguese, WithClock(func() time.Time { return fixedNow }))
}

func TestPipelineRun_HappyPath(t *testing.T) {
	gen := newScriptedGenerator()
	var order []string
	gen.onCall = func(stage string) {
		if stage != "extraction" {
			order = append(order, stage)
		}
	}
	hooks := Hooks{OnGenerating: func(context.Context) { order = append(order, "hook") }}

	res, err := newTestPipeline(gen).Run(context.Background(), []Transcript{
		transcript(outcome.Won, "won one"),
		transcript(outcome.Lost, "lost one"),
		transcript(outcome.Won, "won two"),
	}, hooks)
	require.NoError(t, err)

	assert.Equal(t, 3, gen.count("extraction"))
	assert.Equal(t, []string{"comparison", "hook", "playbook"}, order)

	assert.Equal(t, 3, res.Summary.TotalMeetings)
	assert.Equal(t, 2, res.Summary.WonMeetings)
	assert.Equal(t, 1, res.Summary.LostMeetings)
	assert.Equal(t, fixedNow, res.Summary.AnalysisDate)
	require.Len(t, res.EffectiveQuestions, 2)
	assert.InDelta(t, 80, res.EffectiveQuestions[0].SuccessRate, 1e-9)
}

func TestPipelineRun_ExtractionFailuresAreDropped(t *testing.T) {
	gen := newScriptedGenerator()
	gen.failOn = func(prompt string) bool {
		return stageOf(prompt) == "extraction" && strings.Contains(prompt, "broken")
	}

	res, err := newTestPipeline(gen).Run(context.Background(), []Transcript{
		transcript(outcome.Won, "broken won"),
		transcript(outcome.Lost, "fine lost"),
	}, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.TotalMeetings)
	assert.Equal(t, 1, gen.count("comparison"))
}

func TestPipelineRun_PanickingExtractionIsDropped(t *testing.T) {
	gen := newScriptedGenerator()
	gen.failOn = func(prompt string) bool {
		if stageOf(prompt) == "extraction" && strings.Contains(prompt, "explode") {
			panic("decoder blew up")
		}
		return false
	}

	res, err := newTestPipeline(gen).Run(context.Background(), []Transcript{
		transcript(outcome.Won, "explode won"),
		transcript(outcome.Lost, "fine lost"),
	}, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.TotalMeetings)
	assert.Equal(t, 1, gen.count("playbook"))
}

func TestPipelineRun_AllExtractionsFail(t *testing.T) {
	gen := newScriptedGenerator()
	gen.failOn = func(prompt string) bool { return stageOf(prompt) == "extraction" }

	_, err := newTestPipeline(gen).Run(context.Background(), []Transcript{
		transcript(outcome.Won, "a"),
		transcript(outcome.Lost, "b"),
	}, Hooks{})
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrUnprocessable))
	assert.Zero(t, gen.count("comparison"))
}

func TestPipelineRun_ComparisonFailureIsFatal(t *testing.T) {
	gen := newScriptedGenerator()
	gen.replies["comparison"] = "not json"
	hookCalled := false

	_, err := newTestPipeline(gen).Run(context.Background(), []Transcript{
		transcript(outcome.Won, "a"),
		transcript(outcome.Lost, "b"),
	}, Hooks{OnGenerating: func(context.Context) { hookCalled = true }})
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrUnprocessable))
	assert.False(t, hookCalled)
	assert.Zero(t, gen.count("playbook"))
}

func TestPipelineRun_PlaybookFailureIsFatal(t *testing.T) {
	gen := newScriptedGenerator()
	gen.failOn = func(prompt string) bool { return stageOf(prompt) == "playbook" }

	_, err := newTestPipeline(gen).Run(context.Background(), []Transcript{
		transcript(outcome.Won, "a"),
		transcript(outcome.Won, "b"),
	}, Hooks{})
	require.Error(t, err)
}

func TestPipelineRun_PromptsCarryInputsAndLanguage(t *testing.T) {
	var prompts []string
	gen := newScriptedGenerator()
	wrapped := &capturingGenerator{inner: gen, prompts: &prompts}
	p := NewPipeline(wrapped, language.English, WithExtractionConcurrency(1))

	_, err := p.Run(context.Background(), []Transcript{
		transcript(outcome.Won, "Client asked for the contract"),
		transcript(outcome.Lost, "Client will think about it"),
	}, Hooks{})
	require.NoError(t, err)

	require.Len(t, prompts, 4)
	assert.Contains(t, prompts[0], "Client asked for the contract")
	assert.Contains(t, prompts[0], "MEETING OUTCOME: won")
	for _, pr := range prompts {
		assert.Contains(t, pr, "Always respond in English")
		assert.NotContains(t, pr, "{language_directive}")
	}
}

type capturingGenerator struct {
	inner   *scriptedGenerator
	prompts *[]string
}

func (c *capturingGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	*c.prompts = append(*c.prompts, prompt)
	return c.inner.GenerateText(ctx, prompt)
}
