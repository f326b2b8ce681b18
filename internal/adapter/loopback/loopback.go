package loopback

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/tokligence/streamledger/internal/adapter"
)

// Ensure LoopbackAdapter implements Provider.
var _ adapter.Provider = (*LoopbackAdapter)(nil)

// DefaultTokenDelay is the pause before each simulated token.
const DefaultTokenDelay = 50 * time.Millisecond

// LoopbackAdapter simulates a streaming provider by echoing the prompt back
// one whitespace-delimited token at a time. It is used when no upstream
// credential is configured.
type LoopbackAdapter struct {
	delay time.Duration
}

// New creates a LoopbackAdapter. A negative delay disables pacing.
func New(delay time.Duration) *LoopbackAdapter {
	if delay < 0 {
		delay = 0
	}
	return &LoopbackAdapter{delay: delay}
}

func (a *LoopbackAdapter) Name() string { return "loopback" }

// OpenStream never fails: the simulated response is always available.
func (a *LoopbackAdapter) OpenStream(ctx context.Context, req adapter.Request) (adapter.ChunkStream, error) {
	return &tokenStream{ctx: ctx, tokens: Tokens(req.Prompt), delay: a.delay}, nil
}

// Tokens returns the fragments the adapter yields for prompt, in order.
func Tokens(prompt string) []string {
	text := "Echo: " + prompt + "\nThis is a simulated streaming response."
	fields := strings.Fields(text)
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f + " "
	}
	return out
}

type tokenStream struct {
	ctx    context.Context
	tokens []string
	next   int
	delay  time.Duration
}

func (s *tokenStream) Recv() (string, error) {
	if s.next >= len(s.tokens) {
		return "", io.EOF
	}
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return "", s.ctx.Err()
		case <-timer.C:
		}
	} else if err := s.ctx.Err(); err != nil {
		return "", err
	}
	tok := s.tokens[s.next]
	s.next++
	return tok, nil
}

func (s *tokenStream) Close() error {
	s.next = len(s.tokens)
	return nil
}
