package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
)

type stubHTTPClient struct {
	handler func(*http.Request) (*http.Response, error)
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return s.handler(req)
}

func respond(status int, contentType string, body io.Reader) *http.Response {
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(body), Header: h}
}

// brokenReader returns its data then fails, like a reset connection.
type brokenReader struct {
	data string
	done bool
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.done {
		return 0, io.ErrUnexpectedEOF
	}
	b.done = true
	return copy(p, b.data), nil
}

func TestNewNormalisesURL(t *testing.T) {
	c, err := New("localhost:8000", "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.baseURL.String() != "http://localhost:8000" {
		t.Fatalf("unexpected base url %s", c.baseURL)
	}
	if _, err := New("http://", "", nil); err == nil {
		t.Fatalf("expected error for empty host")
	}
}

func TestStreamText(t *testing.T) {
	stub := &stubHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost || req.URL.Path != "/stream" {
			t.Fatalf("unexpected request: %s %s", req.Method, req.URL.Path)
		}
		if req.Header.Get("X-API-Key") != "k" {
			t.Fatalf("api key not sent")
		}
		body, _ := io.ReadAll(req.Body)
		if !strings.Contains(string(body), `"prompt":"hi"`) {
			t.Fatalf("unexpected body %s", body)
		}
		return respond(http.StatusOK, "text/plain; charset=utf-8", strings.NewReader("Echo: hi ")), nil
	}}
	c, _ := New("http://example.com", "k", stub)

	var got strings.Builder
	err := c.Stream(context.Background(), "hi", "", func(s string) error {
		got.WriteString(s)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got.String() != "Echo: hi " {
		t.Fatalf("unexpected output %q", got.String())
	}
}

func TestStreamNDJSONLines(t *testing.T) {
	body := `{"choices":[{"delta":{"content":"a "}}]}` + "\n" + `{"choices":[{"delta":{"content":"b "}}]}` + "\n"
	stub := &stubHTTPClient{handler: func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, "application/x-ndjson", strings.NewReader(body)), nil
	}}
	c, _ := New("http://example.com", "", stub)

	var lines []string
	if err := c.Stream(context.Background(), "x", "openai", func(s string) error {
		lines = append(lines, s)
		return nil
	}); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(lines) != 2 || !strings.HasSuffix(lines[0], "\n") {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestStreamInterrupted(t *testing.T) {
	stub := &stubHTTPClient{handler: func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, "text/plain", &brokenReader{data: "partial "}), nil
	}}
	c, _ := New("http://example.com", "", stub)

	var got strings.Builder
	err := c.Stream(context.Background(), "x", "", func(s string) error {
		got.WriteString(s)
		return nil
	})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected interruption, got %v", err)
	}
	if got.String() != "partial " {
		t.Fatalf("partial output lost: %q", got.String())
	}
}

func TestStatusErrors(t *testing.T) {
	stub := &stubHTTPClient{handler: func(*http.Request) (*http.Response, error) {
		return respond(http.StatusServiceUnavailable, "application/json", strings.NewReader(`{"error":"upstream unavailable"}`)), nil
	}}
	c, _ := New("http://example.com", "", stub)

	err := c.Stream(context.Background(), "x", "", func(string) error { return nil })
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable || statusErr.Message != "upstream unavailable" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestHistory(t *testing.T) {
	id := uuid.New()
	stub := &stubHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/history":
			if req.URL.Query().Get("limit") != "5" || req.URL.Query().Get("offset") != "2" {
				t.Fatalf("unexpected query %s", req.URL.RawQuery)
			}
			return respond(http.StatusOK, "application/json", strings.NewReader(
				`{"conversations":[{"id":"`+id.String()+`","prompt":"p","response":"r","created_at":"2024-01-01T00:00:00Z"}],"total":3,"limit":5,"offset":2}`)), nil
		case "/history/" + id.String():
			return respond(http.StatusOK, "application/json", strings.NewReader(
				`{"id":"`+id.String()+`","prompt":"p","response":"r","created_at":"2024-01-01T00:00:00Z"}`)), nil
		default:
			return respond(http.StatusNotFound, "application/json", strings.NewReader(`{"error":"conversation not found"}`)), nil
		}
	}}
	c, _ := New("http://example.com", "", stub)
	ctx := context.Background()

	page, err := c.ListHistory(ctx, 5, 2)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if page.Total != 3 || len(page.Records) != 1 || page.Records[0].ID != id {
		t.Fatalf("unexpected page %+v", page)
	}

	rec, err := c.GetHistory(ctx, id)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if rec.Prompt != "p" || rec.Response != "r" {
		t.Fatalf("unexpected record %+v", rec)
	}

	_, err = c.GetHistory(ctx, uuid.New())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
