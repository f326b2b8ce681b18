package loopback

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/tokligence/streamledger/internal/adapter"
)

func drain(t *testing.T, s adapter.ChunkStream) []string {
	t.Helper()
	var out []string
	for {
		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		out = append(out, frag)
	}
}

func TestLoopbackAdapterHi(t *testing.T) {
	stream, err := New(0).OpenStream(context.Background(), adapter.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	got := drain(t, stream)
	want := []string{"Echo: ", "hi ", "This ", "is ", "a ", "simulated ", "streaming ", "response. "}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected tokens %q", got)
	}
}

func TestLoopbackAdapterCollapsesWhitespace(t *testing.T) {
	stream, _ := New(0).OpenStream(context.Background(), adapter.Request{Prompt: "a  b\tc"})
	got := strings.Join(drain(t, stream), "")
	if got != "Echo: a b c This is a simulated streaming response. " {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestLoopbackAdapterDeterministic(t *testing.T) {
	a := New(0)
	s1, _ := a.OpenStream(context.Background(), adapter.Request{Prompt: "same prompt"})
	s2, _ := a.OpenStream(context.Background(), adapter.Request{Prompt: "same prompt"})
	if strings.Join(drain(t, s1), "") != strings.Join(drain(t, s2), "") {
		t.Fatalf("expected identical sequences")
	}
}

func TestLoopbackAdapterHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, _ := New(time.Hour).OpenStream(ctx, adapter.Request{Prompt: "hi"})
	cancel()
	if _, err := stream.Recv(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLoopbackAdapterPacing(t *testing.T) {
	stream, _ := New(5 * time.Millisecond).OpenStream(context.Background(), adapter.Request{Prompt: "x"})
	start := time.Now()
	n := len(drain(t, stream))
	if elapsed := time.Since(start); elapsed < time.Duration(n)*5*time.Millisecond {
		t.Fatalf("stream too fast: %v for %d tokens", elapsed, n)
	}
}
