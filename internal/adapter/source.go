package adapter

import (
	"context"
	"errors"
)

// Source is the chunk source used by the relay: a provider fixed at setup time
// plus the generation defaults applied to every prompt.
type Source struct {
	provider Provider
	defaults Request
}

// NewSource binds a provider to its per-request defaults.
func NewSource(p Provider, defaults Request) (*Source, error) {
	if p == nil {
		return nil, errors.New("adapter: provider required")
	}
	return &Source{provider: p, defaults: defaults}, nil
}

// Name reports the underlying provider.
func (s *Source) Name() string { return s.provider.Name() }

// Open establishes a stream for prompt whose fragments are rendered in f.
func (s *Source) Open(ctx context.Context, prompt string, f Format) (ChunkStream, error) {
	req := s.defaults
	req.Prompt = prompt
	stream, err := s.provider.OpenStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return RenderStream(stream, f), nil
}
