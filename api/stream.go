package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/llm"
	"github.com/cdreetz/crebAI/logger"
	"github.com/cdreetz/crebAI/stream"
)

// ChatStreamOpener opens streaming chat completions.
type ChatStreamOpener interface {
	StreamChat(ctx context.Context, modelName string, messages []llm.Message, params llm.Params) <-chan stream.Frame
}

// NewChatStreamHandler returns an HTTP handler that serves chat completions
// as server-sent events. Each frame goes out as one data event; the stream
// ends with a [DONE] marker after the terminal frame.
func NewChatStreamHandler(opener ChatStreamOpener, lg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondWithError(w, errors.NewValidationError("method not allowed"), lg)
			return
		}

		var req chatRequest
		if err := decodeBody(w, r, &req); err != nil {
			respondWithError(w, err, lg)
			return
		}

		if len(req.Messages) == 0 {
			respondWithError(w, errors.NewValidationError("messages are required"), lg)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			respondWithError(w, errors.NewInternalError("streaming unsupported by connection"), lg)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		frames := opener.StreamChat(r.Context(), req.ModelName, req.Messages, req.Params)
		for frame := range frames {
			data, err := json.Marshal(frame)
			if err != nil {
				// Skip to the sentinel so the stream still terminates cleanly.
				lg.Error("failed to encode stream frame", map[string]any{
					"error": err.Error(),
				})
				break
			}

			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				// Client went away; the producer notices through r.Context().
				return
			}
			flusher.Flush()
		}

		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}
