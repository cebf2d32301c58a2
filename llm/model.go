package llm

import (
	"context"
	"time"
)

// Message is a single chat turn in the conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params carries backend-specific generation arguments (max_tokens,
// temperature, ...). Keys a backend does not understand are ignored.
type Params map[string]any

// LoadResult reports the outcome of loading a model into memory.
type LoadResult struct {
	Name     string        `json:"name"`
	Loaded   bool          `json:"loaded"`
	Cached   bool          `json:"cached,omitempty"`
	LoadTime time.Duration `json:"load_time,omitempty"`
}

// ChatChoice is one candidate response inside a ChatResponse.
type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse is a chat completion in the OpenAI-compatible shape.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object,omitempty"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}

// StreamChunk is one increment of a streaming chat response. A non-nil Err
// is the terminal failure signal; the producer closes the channel right
// after pushing it, and pushes nothing afterwards.
type StreamChunk struct {
	Content string
	Err     error
}

// Model is the capability contract for an inference backend resource.
// Implementations own their internal synchronization; the rest of the system
// only calls into them and assumes at most one concurrent load per name.
type Model interface {
	Name() string
	Loaded() bool

	// Load brings the model into memory. Idempotent when already loaded.
	Load(ctx context.Context) (*LoadResult, error)

	// Generate produces a text completion for a raw prompt.
	Generate(ctx context.Context, prompt string, params Params) (string, error)

	// Chat produces a structured completion for a conversation.
	Chat(ctx context.Context, messages []Message, params Params) (*ChatResponse, error)

	// Unload releases the model, reporting whether it was loaded.
	Unload() bool
}

// ChatStreamer is the optional streaming capability. Whether a model
// supports streaming is answered by a single interface assertion at the
// point where the stream is opened.
type ChatStreamer interface {
	// ChatStream produces a lazy sequence of partial responses. The returned
	// channel is closed after exactly one terminal signal: either normal
	// exhaustion or a chunk carrying Err.
	ChatStream(ctx context.Context, messages []Message, params Params) (<-chan StreamChunk, error)
}
