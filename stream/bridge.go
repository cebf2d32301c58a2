package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/llm"
	"github.com/cdreetz/crebAI/logger"
	"github.com/cdreetz/crebAI/metrics"
)

// frameBuffer decouples the producer from a slow consumer for short bursts.
const frameBuffer = 16

// Delta is the incremental payload of one streaming frame.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Choice is one streamed candidate. FinishReason stays null until the
// terminal frame.
type Choice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// FrameError is the terminal error payload of a failed stream.
type FrameError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Frame is one unit of a streaming chat completion in the OpenAI-compatible
// chunk shape. Either Choices or Error is set, never both.
type Frame struct {
	ID      string      `json:"id,omitempty"`
	Object  string      `json:"object,omitempty"`
	Created int64       `json:"created,omitempty"`
	Model   string      `json:"model,omitempty"`
	Choices []Choice    `json:"choices,omitempty"`
	Error   *FrameError `json:"error,omitempty"`
}

// Bridge turns a model's incremental output into a bounded channel of
// completion frames. Every stream it opens ends with exactly one terminal
// signal, a stop frame or an error frame, followed by channel close; failures
// to open the stream surface the same way, so consumers handle one shape.
type Bridge struct {
	models       *llm.Registry
	defaultModel string
	metrics      *metrics.Metrics
	logger       *logger.Logger
}

// NewBridge constructs a bridge over a model registry.
func NewBridge(models *llm.Registry, defaultModel string, m *metrics.Metrics, lg *logger.Logger) *Bridge {
	return &Bridge{
		models:       models,
		defaultModel: defaultModel,
		metrics:      m,
		logger:       lg,
	}
}

// StreamChat opens a streaming chat completion and returns its frame channel.
// The first frame carries the assistant role, each increment follows as a
// content frame, and the stream closes after its single terminal frame.
// Cancelling ctx tears the stream down without a terminal frame.
func (b *Bridge) StreamChat(ctx context.Context, modelName string, messages []llm.Message, params llm.Params) <-chan Frame {
	if modelName == "" {
		modelName = b.defaultModel
	}

	out := make(chan Frame, frameBuffer)
	go b.produce(ctx, out, modelName, messages, params)
	return out
}

func (b *Bridge) produce(ctx context.Context, out chan<- Frame, modelName string, messages []llm.Message, params llm.Params) {
	defer close(out)

	model, err := b.models.GetOrLoad(ctx, modelName)
	if err != nil {
		b.sendError(ctx, out, modelName, err)
		return
	}

	streamer, ok := model.(llm.ChatStreamer)
	if !ok {
		b.sendError(ctx, out, modelName, errors.NewStreamingUnsupportedError(
			fmt.Sprintf("model %s does not support streaming", modelName)))
		return
	}

	chunks, err := streamer.ChatStream(ctx, messages, params)
	if err != nil {
		b.sendError(ctx, out, modelName, err)
		return
	}

	streamID := "chatcmpl-" + uuid.New().String()
	created := time.Now().Unix()

	// Role frame first, before any content.
	if !b.send(ctx, out, Frame{
		ID:      streamID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   modelName,
		Choices: []Choice{{Delta: Delta{Role: "assistant"}}},
	}) {
		return
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			b.sendError(ctx, out, modelName, chunk.Err)
			return
		}
		if chunk.Content == "" {
			continue
		}
		if !b.send(ctx, out, Frame{
			ID:      streamID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   modelName,
			Choices: []Choice{{Delta: Delta{Content: chunk.Content}}},
		}) {
			return
		}
	}

	stop := "stop"
	b.send(ctx, out, Frame{
		ID:      streamID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   modelName,
		Choices: []Choice{{FinishReason: &stop}},
	})
}

// send delivers one frame, reporting false when the context ended first.
func (b *Bridge) send(ctx context.Context, out chan<- Frame, frame Frame) bool {
	select {
	case out <- frame:
		b.metrics.StreamFrames.Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

// sendError emits the terminal error frame for a failed stream.
func (b *Bridge) sendError(ctx context.Context, out chan<- Frame, modelName string, cause error) {
	kind := errors.Kind(cause)
	message := cause.Error()
	if taskErr, ok := errors.IsTaskError(cause); ok {
		message = taskErr.Message
	}

	b.metrics.StreamErrors.Inc()
	b.logger.Error("chat stream failed", map[string]any{
		"model": modelName,
		"kind":  string(kind),
		"error": message,
	})

	b.send(ctx, out, Frame{
		Error: &FrameError{Message: message, Type: string(kind)},
	})
}
