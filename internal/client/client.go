package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tokligence/streamledger/internal/history"
	"github.com/tokligence/streamledger/internal/httpserver"
)

// HTTPClient abstracts the Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a streamledgerd instance.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient HTTPClient
}

// New constructs a client for baseURL. A missing scheme defaults to http.
// Streams are open-ended, so the default http.Client has no timeout; callers
// bound requests through ctx.
func New(baseURL, apiKey string, httpClient HTTPClient) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: parsed, apiKey: apiKey, httpClient: httpClient}, nil
}

// Stream posts prompt and calls onFragment with each chunk of the body as it
// arrives. For the openai format every call receives one complete line.
// A connection that ends without a clean close yields an error after the
// fragments already delivered.
func (c *Client) Stream(ctx context.Context, prompt, format string, onFragment func(string) error) error {
	resp, err := c.do(ctx, http.MethodPost, "/stream", httpserver.StreamRequest{Prompt: prompt, Format: format})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/x-ndjson") {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				if cbErr := onFragment(line); cbErr != nil {
					return cbErr
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("stream interrupted: %w", err)
			}
		}
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if cbErr := onFragment(string(buf[:n])); cbErr != nil {
				return cbErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream interrupted: %w", err)
		}
	}
}

// ListHistory returns one page of stored conversations, newest first.
func (c *Client) ListHistory(ctx context.Context, limit, offset int) (history.Page, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page history.Page
	if err := c.doJSON(ctx, http.MethodGet, path, &page); err != nil {
		return history.Page{}, err
	}
	return page, nil
}

// GetHistory fetches one conversation.
func (c *Client) GetHistory(ctx context.Context, id uuid.UUID) (history.Record, error) {
	var rec history.Record
	if err := c.doJSON(ctx, http.MethodGet, "/history/"+id.String(), &rec); err != nil {
		return history.Record{}, err
	}
	return rec, nil
}

// Health reports the server status.
func (c *Client) Health(ctx context.Context) (httpserver.HealthResponse, error) {
	var resp httpserver.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", &resp); err != nil {
		return httpserver.HealthResponse{}, err
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	resp, err := c.do(ctx, method, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// do sends the request and converts error statuses into *StatusError.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
	}

	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	endpoint := c.baseURL.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(httpserver.APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var errPayload struct {
			Error string `json:"error"`
		}
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, &errPayload); err == nil {
			statusErr.Message = strings.TrimSpace(errPayload.Error)
		}
		return nil, statusErr
	}
	return resp, nil
}
