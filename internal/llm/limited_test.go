package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowGenerator struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return prompt, nil
}

func TestLimited_BoundsConcurrency(t *testing.T) {
	inner := &slowGenerator{}
	gen := NewLimited(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gen.GenerateText(context.Background(), "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.peak.Load(), int32(2))
}

func TestLimited_ZeroIsPassthrough(t *testing.T) {
	inner := &slowGenerator{}
	assert.Same(t, TextGenerator(inner), NewLimited(inner, 0))
}

func TestLimited_HonoursContext(t *testing.T) {
	block := make(chan struct{})
	inner := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		<-block
		return "", nil
	})
	gen := NewLimited(inner, 1)

	go func() { _, _ = gen.GenerateText(context.Background(), "holder") }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := gen.GenerateText(ctx, "waiter")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) GenerateText(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
