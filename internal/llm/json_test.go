package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
)

type stubGenerator struct {
	reply string
	err   error
}

func (s stubGenerator) GenerateText(context.Context, string) (string, error) {
	return s.reply, s.err
}

type verdict struct {
	Outcome string   `json:"outcome"`
	Tags    []string `json:"tags"`
}

func (v *verdict) Normalize() {
	if v.Tags == nil {
		v.Tags = []string{}
	}
}

func (v *verdict) Validate() error {
	if v.Outcome != "won" && v.Outcome != "lost" {
		return errors.New("bad outcome")
	}
	return nil
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"fenced with language": {"Here you go:\n```json\n{\"a\": 1}\n```\nthanks", `{"a": 1}`},
		"fenced plain":         {"```\n[1, 2]\n```", `[1, 2]`},
		"bare object":          {"Sure! {\"a\": {\"b\": 2}} done", `{"a": {"b": 2}}`},
		"bare array":           {"list: [1, 2, 3]", `[1, 2, 3]`},
		"plain text":           {"  nothing here  ", "nothing here"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractJSON(tc.in))
		})
	}
}

func TestGenerateStructured_DecodesAndNormalizes(t *testing.T) {
	gen := stubGenerator{reply: "```json\n{\"outcome\": \"won\"}\n```"}

	out, err := GenerateStructured[verdict](context.Background(), gen, "p")
	require.NoError(t, err)
	assert.Equal(t, "won", out.Outcome)
	assert.NotNil(t, out.Tags)
	assert.Empty(t, out.Tags)
}

func TestGenerateStructured_UnparseableIsUnprocessable(t *testing.T) {
	gen := stubGenerator{reply: "I cannot answer that"}

	_, err := GenerateStructured[verdict](context.Background(), gen, "p")
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrUnprocessable))
}

func TestGenerateStructured_ValidationFailureIsUnprocessable(t *testing.T) {
	gen := stubGenerator{reply: `{"outcome": "maybe"}`}

	_, err := GenerateStructured[verdict](context.Background(), gen, "p")
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrUnprocessable))
}

func TestGenerateStructured_PropagatesProviderError(t *testing.T) {
	providerErr := apperr.NewError(apperr.ErrRateLimited, "slow down")
	gen := stubGenerator{err: providerErr}

	_, err := GenerateStructured[verdict](context.Background(), gen, "p")
	assert.Same(t, providerErr, err)
}

func TestGenerateStructured_Slices(t *testing.T) {
	gen := stubGenerator{reply: `["a", "b"]`}

	out, err := GenerateStructured[[]string](context.Background(), gen, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)
}
