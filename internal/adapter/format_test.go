package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/tokligence/streamledger/internal/openai"
)

type sliceStream struct {
	items  []string
	closed bool
}

func (s *sliceStream) Recv() (string, error) {
	if len(s.items) == 0 {
		return "", io.EOF
	}
	next := s.items[0]
	s.items = s.items[1:]
	return next, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type staticProvider struct {
	stream *sliceStream
	got    Request
	err    error
}

func (p *staticProvider) Name() string { return "static" }

func (p *staticProvider) OpenStream(_ context.Context, req Request) (ChunkStream, error) {
	p.got = req
	if p.err != nil {
		return nil, p.err
	}
	return p.stream, nil
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatText, "text": FormatText, " OpenAI ": FormatOpenAI}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseFormat(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestRenderText(t *testing.T) {
	if got := Render("Hello ", FormatText); got != "Hello " {
		t.Fatalf("unexpected text render %q", got)
	}
}

func TestRenderOpenAI(t *testing.T) {
	for _, text := range []string{"Hello ", "", `quote " and <tag> & "\n"`, "ünïcødé"} {
		line := Render(text, FormatOpenAI)
		if !strings.HasSuffix(line, "\n") || strings.Count(line, "\n") != 1 {
			t.Fatalf("expected single line for %q, got %q", text, line)
		}
		var env openai.DeltaEnvelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		if env.Text() != text {
			t.Fatalf("round trip mismatch: got %q want %q", env.Text(), text)
		}
	}
	if got := Render("a<b", FormatOpenAI); got != `{"choices":[{"delta":{"content":"a<b"}}]}`+"\n" {
		t.Fatalf("unexpected envelope %q", got)
	}
}

func TestSourceOpenAppliesDefaultsAndFormat(t *testing.T) {
	p := &staticProvider{stream: &sliceStream{items: []string{"Hi ", "there "}}}
	src, err := NewSource(p, Request{Model: "gpt-3.5-turbo", Temperature: 0.7, MaxTokens: 1000})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	stream, err := src.Open(context.Background(), "hello", FormatOpenAI)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p.got.Prompt != "hello" || p.got.Model != "gpt-3.5-turbo" || p.got.MaxTokens != 1000 {
		t.Fatalf("unexpected request %+v", p.got)
	}
	first, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if first != Render("Hi ", FormatOpenAI) {
		t.Fatalf("fragment not rendered: %q", first)
	}
	_, _ = stream.Recv()
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	_ = stream.Close()
	if !p.stream.closed {
		t.Fatalf("close not propagated")
	}
}

func TestSourceOpenError(t *testing.T) {
	p := &staticProvider{err: &UnavailableError{Provider: "static", Attempts: 3, Err: errors.New("boom")}}
	src, _ := NewSource(p, Request{})
	_, err := src.Open(context.Background(), "x", FormatText)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestNewSourceRequiresProvider(t *testing.T) {
	if _, err := NewSource(nil, Request{}); err == nil {
		t.Fatalf("expected error")
	}
}
