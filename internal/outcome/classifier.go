package outcome

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/MimeLyc/sales-playbook/internal/llm"
	"github.com/MimeLyc/sales-playbook/pkg/lang"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

// CharLimit caps how much of a transcript is sent for classification.
const CharLimit = 4000

type Outcome string

const (
	Won  Outcome = "won"
	Lost Outcome = "lost"
)

func (o Outcome) Valid() bool { return o == Won || o == Lost }

type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

func (c Confidence) Valid() bool { return c == High || c == Medium || c == Low }

type Result struct {
	Outcome    Outcome    `json:"outcome"`
	Confidence Confidence `json:"confidence"`
	Reason     string     `json:"reason"`
}

func (r *Result) Normalize() {
	r.Outcome = Outcome(strings.ToLower(strings.TrimSpace(string(r.Outcome))))
	r.Confidence = Confidence(strings.ToLower(strings.TrimSpace(string(r.Confidence))))
}

func (r *Result) Validate() error {
	if !r.Outcome.Valid() {
		return fmt.Errorf("unexpected outcome %q", r.Outcome)
	}
	if !r.Confidence.Valid() {
		return fmt.Errorf("unexpected confidence %q", r.Confidence)
	}
	return nil
}

// Detector labels a meeting transcript as won or lost.
type Detector interface {
	Detect(ctx context.Context, transcript string) (Result, error)
}

type Classifier struct {
	gen       llm.TextGenerator
	directive string
}

var _ Detector = (*Classifier)(nil)

func NewClassifier(gen llm.TextGenerator, responseLanguage language.Tag) *Classifier {
	return &Classifier{gen: gen, directive: lang.Directive(responseLanguage)}
}

func (c *Classifier) Detect(ctx context.Context, transcript string) (Result, error) {
	prompt := strings.NewReplacer(
		"{transcript}", truncateRunes(transcript, CharLimit),
		"{language_directive}", c.directive,
	).Replace(detectionPrompt)

	res, err := llm.GenerateStructured[Result](ctx, c.gen, prompt)
	if err != nil {
		return Result{}, err
	}
	log.Info("Outcome detected: %s (%s)", res.Outcome, res.Confidence)
	return res, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
