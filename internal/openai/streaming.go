package openai

// ChatCompletionChunk is one server-sent event of a streamed chat completion
// as emitted by OpenAI compatible upstreams. Only the fields the relay needs
// are decoded; everything else is ignored.
type ChatCompletionChunk struct {
	ID      string                      `json:"id,omitempty"`
	Model   string                      `json:"model,omitempty"`
	Choices []ChatCompletionChunkChoice `json:"choices"`
	Error   *StreamError                `json:"error,omitempty"`
}

// ChatCompletionChunkChoice represents a choice in a streaming chunk.
type ChatCompletionChunkChoice struct {
	Index        int              `json:"index,omitempty"`
	Delta        ChatMessageDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason,omitempty"`
}

// ChatMessageDelta represents the incremental content in a stream chunk.
type ChatMessageDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// StreamError is the error object some upstreams emit inside an open stream.
type StreamError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}

// DeltaContent returns the content of the first choice, or "" when the chunk
// carries none.
func (c *ChatCompletionChunk) DeltaContent() string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// DeltaEnvelope is the minimal record written to clients that asked for the
// structured wire format: {"choices":[{"delta":{"content":"..."}}]}.
type DeltaEnvelope struct {
	Choices []DeltaChoice `json:"choices"`
}

// DeltaChoice wraps a single delta inside a DeltaEnvelope.
type DeltaChoice struct {
	Delta DeltaContent `json:"delta"`
}

// DeltaContent holds the text of one fragment.
type DeltaContent struct {
	Content string `json:"content"`
}

// NewDeltaEnvelope wraps text in a single-choice envelope.
func NewDeltaEnvelope(text string) DeltaEnvelope {
	return DeltaEnvelope{Choices: []DeltaChoice{{Delta: DeltaContent{Content: text}}}}
}

// Text returns the content of the first choice.
func (e DeltaEnvelope) Text() string {
	if len(e.Choices) == 0 {
		return ""
	}
	return e.Choices[0].Delta.Content
}
