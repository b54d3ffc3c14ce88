package outcome

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
)

type recordingGenerator struct {
	reply  string
	prompt string
}

func (g *recordingGenerator) GenerateText(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.reply, nil
}

func TestDetect_ParsesAndNormalizes(t *testing.T) {
	gen := &recordingGenerator{reply: "```json\n{\"outcome\": \"Won\", \"confidence\": \"HIGH\", \"reason\": \"pediu proposta\"}\n```"}
	c := NewClassifier(gen, language.BrazilianPortuguese)

	res, err := c.Detect(context.Background(), "Cliente: pode mandar o contrato?")
	require.NoError(t, err)
	assert.Equal(t, Won, res.Outcome)
	assert.Equal(t, High, res.Confidence)
	assert.Equal(t, "pediu proposta", res.Reason)

	assert.Contains(t, gen.prompt, "Cliente: pode mandar o contrato?")
	assert.Contains(t, gen.prompt, "Always respond in Brazilian Portuguese")
	assert.NotContains(t, gen.prompt, "{transcript}")
}

func TestDetect_TruncatesTranscript(t *testing.T) {
	gen := &recordingGenerator{reply: `{"outcome":"lost","confidence":"low","reason":"r"}`}
	c := NewClassifier(gen, language.English)

	long := strings.Repeat("é", CharLimit) + "TAIL"
	_, err := c.Detect(context.Background(), long)
	require.NoError(t, err)
	assert.Contains(t, gen.prompt, strings.Repeat("é", CharLimit))
	assert.NotContains(t, gen.prompt, "TAIL")
}

func TestDetect_RejectsUnknownLabels(t *testing.T) {
	for _, reply := range []string{
		`{"outcome":"pending","confidence":"high","reason":"r"}`,
		`{"outcome":"won","confidence":"certain","reason":"r"}`,
		`no json at all`,
	} {
		gen := &recordingGenerator{reply: reply}
		_, err := NewClassifier(gen, language.English).Detect(context.Background(), "t")
		require.Error(t, err, reply)
		assert.True(t, apperr.IsErrorType(err, apperr.ErrUnprocessable), reply)
	}
}
