package analysis

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/internal/llm"
	"github.com/MimeLyc/sales-playbook/internal/metrics"
	"github.com/MimeLyc/sales-playbook/internal/outcome"
	"github.com/MimeLyc/sales-playbook/pkg/lang"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

// DefaultExtractionConcurrency bounds stage A fan-out when no limit is given.
const DefaultExtractionConcurrency = 8

// Pipeline runs the three analysis stages: per-transcript extraction,
// won-versus-lost comparison and playbook generation.
type Pipeline struct {
	gen         llm.TextGenerator
	directive   string
	concurrency int
	now         func() time.Time
}

type PipelineOption func(*Pipeline)

// WithExtractionConcurrency bounds the number of concurrent extraction calls.
func WithExtractionConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(gen llm.TextGenerator, responseLanguage language.Tag, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		gen:         gen,
		directive:   lang.Directive(responseLanguage),
		concurrency: DefaultExtractionConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Run(ctx context.Context, transcripts []Transcript, hooks Hooks) (*Result, error) {
	log.Info("Starting analysis with %d transcripts", len(transcripts))

	var won, lost []Transcript
	for _, t := range transcripts {
		switch t.Outcome {
		case outcome.Won:
			won = append(won, t)
		case outcome.Lost:
			lost = append(lost, t)
		}
	}
	log.Info("Split: %d won, %d lost", len(won), len(lost))

	log.Info("Stage 1: Extracting data from transcripts")
	start := time.Now()
	wonExtractions, lostExtractions := p.extractAll(ctx, won, lost)
	metrics.ObserveStage("extraction", time.Since(start).Seconds())
	if len(wonExtractions) == 0 && len(lostExtractions) == 0 {
		return nil, apperr.NewError(apperr.ErrUnprocessable, "Failed to extract data from any transcript")
	}

	log.Info("Stage 2: Comparing extractions")
	start = time.Now()
	cmp, err := p.compare(ctx, wonExtractions, lostExtractions)
	metrics.ObserveStage("comparison", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	hooks.generating(ctx)

	log.Info("Stage 3: Generating playbook content")
	start = time.Now()
	pb, err := p.generatePlaybook(ctx, cmp)
	metrics.ObserveStage("playbook", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	log.Info("Formatting final result")
	res := assemble(transcripts, cmp, pb, p.now())
	return &res, nil
}

// extractAll runs stage A for both subsets concurrently. Failed extractions
// are logged and dropped; input order is kept within each subset.
func (p *Pipeline) extractAll(ctx context.Context, won, lost []Transcript) ([]extraction, []extraction) {
	wonOut := make([]*extraction, len(won))
	lostOut := make([]*extraction, len(lost))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	launch := func(list []Transcript, out []*extraction) {
		for i, t := range list {
			g.Go(func() error {
				var ex extraction
				err := apperr.SafeExecute(func() error {
					var xerr error
					ex, xerr = p.extract(ctx, t)
					return xerr
				})
				if err != nil {
					log.Warn("Failed to extract from %s transcript %d: %s", t.Outcome, i, apperr.Message(err))
					return nil
				}
				out[i] = &ex
				return nil
			})
		}
	}
	launch(won, wonOut)
	launch(lost, lostOut)
	_ = g.Wait()

	wonExtractions, lostExtractions := compact(wonOut), compact(lostOut)
	log.Info("Extraction complete: %d/%d successful",
		len(wonExtractions)+len(lostExtractions), len(won)+len(lost))
	return wonExtractions, lostExtractions
}

func (p *Pipeline) extract(ctx context.Context, t Transcript) (extraction, error) {
	prompt := render(extractionPrompt, map[string]string{
		"transcript":         t.Content,
		"outcome":            string(t.Outcome),
		"language_directive": p.directive,
	})
	return llm.GenerateStructured[extraction](ctx, p.gen, prompt)
}

func (p *Pipeline) compare(ctx context.Context, won, lost []extraction) (comparison, error) {
	prompt := render(comparativePrompt, map[string]string{
		"won_extractions":    indentJSON(won),
		"lost_extractions":   indentJSON(lost),
		"language_directive": p.directive,
	})
	return llm.GenerateStructured[comparison](ctx, p.gen, prompt)
}

func (p *Pipeline) generatePlaybook(ctx context.Context, cmp comparison) (playbook, error) {
	prompt := render(playbookPrompt, map[string]string{
		"comparative_analysis": indentJSON(cmp),
		"language_directive":   p.directive,
	})
	return llm.GenerateStructured[playbook](ctx, p.gen, prompt)
}

func compact(in []*extraction) []extraction {
	out := make([]extraction, 0, len(in))
	for _, ex := range in {
		if ex != nil {
			out = append(out, *ex)
		}
	}
	return out
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
