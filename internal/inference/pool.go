package inference

import (
	"context"
)

// Pool bounds concurrent generations against the single loaded model.
// Requests queue for a worker slot and respect ctx cancellation while
// waiting; once a slot is held the generation runs to completion.
type Pool struct {
	backend Generator
	slots   chan struct{}
}

// NewPool wraps backend with a fixed number of worker slots.
func NewPool(backend Generator, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		backend: backend,
		slots:   make(chan struct{}, workers),
	}
}

func (p *Pool) acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) release() {
	<-p.slots
}

func (p *Pool) Generate(ctx context.Context, prompt string, params Params) (*Result, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()
	return p.backend.Generate(ctx, prompt, params)
}

func (p *Pool) GenerateStream(ctx context.Context, prompt string, params Params, callback StreamCallback) (*Result, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()
	return p.backend.GenerateStream(ctx, prompt, params, callback)
}

func (p *Pool) CountTokens(text string) int { return p.backend.CountTokens(text) }

func (p *Pool) Model() string { return p.backend.Model() }

var _ Generator = (*Pool)(nil)
