// Package mock provides a scripted Provider for tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ineyio/industrymatch"
)

// Provider is a mock LLM provider for testing.
type Provider struct {
	name         string
	text         string
	staticErr    error
	failAfter    int
	callCount    atomic.Int64
	responseFunc func(industrymatch.GenerateRequest) (industrymatch.GenerateResponse, error)

	mu       sync.Mutex
	requests []industrymatch.GenerateRequest
}

var _ industrymatch.Provider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		name: "mock",
		text: `{"classifications": []}`,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithText sets the response text returned by every call.
func WithText(text string) Option {
	return func(p *Provider) { p.text = text }
}

// WithError makes the provider always return this error.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithFailAfter makes the provider fail after n successful calls.
func WithFailAfter(n int) Option {
	return func(p *Provider) { p.failAfter = n }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func(industrymatch.GenerateRequest) (industrymatch.GenerateResponse, error)) Option {
	return func(p *Provider) { p.responseFunc = fn }
}

func (p *Provider) Name() string { return p.name }

// GenerateContent records the request and returns the scripted reply.
func (p *Provider) GenerateContent(ctx context.Context, req industrymatch.GenerateRequest) (industrymatch.GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return industrymatch.GenerateResponse{}, err
	}

	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	count := p.callCount.Add(1)

	if p.staticErr != nil {
		return industrymatch.GenerateResponse{}, p.staticErr
	}
	if p.failAfter > 0 && int(count) > p.failAfter {
		return industrymatch.GenerateResponse{}, industrymatch.ErrProviderUnavailable
	}
	if p.responseFunc != nil {
		return p.responseFunc(req)
	}

	return industrymatch.GenerateResponse{
		Text:         p.text,
		FinishReason: "stop",
		Usage:        industrymatch.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}, nil
}

// CallCount returns the number of calls made to the provider.
func (p *Provider) CallCount() int64 { return p.callCount.Load() }

// Requests returns a copy of every request seen so far.
func (p *Provider) Requests() []industrymatch.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]industrymatch.GenerateRequest, len(p.requests))
	copy(out, p.requests)
	return out
}
