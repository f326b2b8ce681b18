package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tokligence/streamledger/internal/openai"
)

// Format selects how fragments are rendered on the wire.
type Format string

const (
	// FormatText forwards fragments unchanged.
	FormatText Format = "text"
	// FormatOpenAI wraps every fragment in a one-line JSON delta envelope.
	FormatOpenAI Format = "openai"
)

// ParseFormat validates a format name. The empty string selects FormatText.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatOpenAI:
		return FormatOpenAI, nil
	default:
		return "", fmt.Errorf("adapter: unknown response format %q", s)
	}
}

// ContentType is the HTTP content type of a stream rendered in f.
func (f Format) ContentType() string {
	if f == FormatOpenAI {
		return "application/x-ndjson"
	}
	return "text/plain; charset=utf-8"
}

// Render converts raw text into the wire unit for f.
func Render(text string, f Format) string {
	if f != FormatOpenAI {
		return text
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a struct of strings cannot fail.
	_ = enc.Encode(openai.NewDeltaEnvelope(text))
	return buf.String()
}

// RenderStream wraps s so every fragment is rendered in f before it is
// returned.
func RenderStream(s ChunkStream, f Format) ChunkStream {
	if f != FormatOpenAI {
		return s
	}
	return &renderedStream{inner: s, format: f}
}

type renderedStream struct {
	inner  ChunkStream
	format Format
}

func (r *renderedStream) Recv() (string, error) {
	text, err := r.inner.Recv()
	if err != nil {
		return "", err
	}
	return Render(text, r.format), nil
}

func (r *renderedStream) Close() error { return r.inner.Close() }
