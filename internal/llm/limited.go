package llm

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type limited struct {
	inner TextGenerator
	sem   *semaphore.Weighted
}

// NewLimited bounds the number of in-flight calls to inner. A non-positive
// limit returns inner unchanged.
func NewLimited(inner TextGenerator, maxConcurrent int) TextGenerator {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limited{
		inner: inner,
		sem:   semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

func (l *limited) GenerateText(ctx context.Context, prompt string) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer l.sem.Release(1)
	return l.inner.GenerateText(ctx, prompt)
}
