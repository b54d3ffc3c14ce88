package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)
)

// Normalizer is implemented by decoded LLM structures that need defaults
// filled in, e.g. nil slices replaced with empty ones.
type Normalizer interface {
	Normalize()
}

// Validator is implemented by decoded LLM structures with value constraints.
type Validator interface {
	Validate() error
}

// ExtractJSON isolates the JSON payload of a model reply: the first fenced
// code block, else the outermost object or array span, else the trimmed text.
func ExtractJSON(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bareJSON.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// GenerateStructured asks gen for a JSON reply and decodes it into T.
// Replies that do not decode, or fail T's Validate, are unprocessable.
func GenerateStructured[T any](ctx context.Context, gen TextGenerator, prompt string) (T, error) {
	var out T

	text, err := gen.GenerateText(ctx, prompt)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal([]byte(ExtractJSON(text)), &out); err != nil {
		log.Error("Failed to parse LLM response as JSON: %s", truncate(text, 500))
		return out, apperr.NewErrorWithCause(apperr.ErrUnprocessable, "Failed to parse AI response. Please try again.", err)
	}

	if n, ok := any(&out).(Normalizer); ok {
		n.Normalize()
	}
	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, apperr.NewErrorWithCause(apperr.ErrUnprocessable, "AI response has unexpected content", err)
		}
	}
	return out, nil
}
