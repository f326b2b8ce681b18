package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"go.uber.org/zap"

	"github.com/tokligence/streamledger/internal/adapter"
	openaitypes "github.com/tokligence/streamledger/internal/openai"
)

// Ensure OpenAIAdapter implements Provider.
var _ adapter.Provider = (*OpenAIAdapter)(nil)

// OpenAIAdapter streams chat completions from the OpenAI API or any
// compatible upstream.
type OpenAIAdapter struct {
	client oai.Client
	logger *zap.Logger
}

// Config holds configuration for the OpenAI adapter.
type Config struct {
	APIKey       string
	BaseURL      string // optional, defaults to https://api.openai.com/v1
	Organization string // optional
	// RequestTimeout bounds the wait for response headers. The stream body
	// itself is not subject to it.
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// New creates an OpenAIAdapter instance. SDK retries are disabled; retrying
// stream establishment is the job of the retry adapter.
func New(cfg Config) (*OpenAIAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key required")
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = timeout
		httpClient = &http.Client{Transport: transport}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(httpClient),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIAdapter{client: oai.NewClient(opts...), logger: logger}, nil
}

func (a *OpenAIAdapter) Name() string { return "openai" }

// OpenStream sends a streaming chat completion request with the prompt as a
// single user message. It returns once response headers arrive.
func (a *OpenAIAdapter) OpenStream(ctx context.Context, req adapter.Request) (adapter.ChunkStream, error) {
	if req.Model == "" {
		return nil, errors.New("openai: model required")
	}
	params := oai.ChatCompletionNewParams{
		Model:       oai.ChatModel(req.Model),
		Messages:    []oai.ChatCompletionMessageParamUnion{oai.UserMessage(req.Prompt)},
		Temperature: oai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = oai.Int(int64(req.MaxTokens))
	}

	var raw *http.Response
	err := a.client.Post(ctx, "chat/completions", params, &raw,
		option.WithJSONSet("stream", true),
		option.WithHeader("Accept", "text/event-stream"),
	)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return nil, &adapter.StatusError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("openai: open stream: %w", err)
	}
	dec := ssestream.NewDecoder(raw)
	if dec == nil {
		return nil, errors.New("openai: empty stream response")
	}
	return &chunkStream{dec: dec, logger: a.logger}, nil
}

// chunkStream extracts delta content from upstream events. Events that do not
// decode or carry no content are skipped.
type chunkStream struct {
	dec    ssestream.Decoder
	logger *zap.Logger
	done   bool
}

func (s *chunkStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.dec.Next() {
		data := bytes.TrimSpace(s.dec.Event().Data)
		if len(data) == 0 {
			continue
		}
		if string(data) == "[DONE]" {
			s.done = true
			return "", io.EOF
		}
		var chunk openaitypes.ChatCompletionChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			s.logger.Debug("skipping undecodable event", zap.Error(err))
			continue
		}
		if chunk.Error != nil {
			s.done = true
			return "", fmt.Errorf("openai: stream error: %s", chunk.Error.Message)
		}
		if text := chunk.DeltaContent(); text != "" {
			return text, nil
		}
	}
	s.done = true
	if err := s.dec.Err(); err != nil {
		return "", fmt.Errorf("openai: read stream: %w", err)
	}
	return "", io.EOF
}

func (s *chunkStream) Close() error {
	s.done = true
	return s.dec.Close()
}
