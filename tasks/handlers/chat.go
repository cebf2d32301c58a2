package handlers

import (
	"context"
	"encoding/json"

	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/llm"
	"github.com/cdreetz/crebAI/logger"
	"github.com/cdreetz/crebAI/tasks"
)

var _ TaskHandler = (*ChatCompletionHandler)(nil)

// ChatCompletionHandler runs a chat_completion task against the backend
// capability matching the requested model.
type ChatCompletionHandler struct {
	models       *llm.Registry
	defaultModel string
	logger       *logger.Logger
}

// NewChatCompletionHandler constructs a handler bound to a model registry.
func NewChatCompletionHandler(models *llm.Registry, defaultModel string, lg *logger.Logger) *ChatCompletionHandler {
	return &ChatCompletionHandler{
		models:       models,
		defaultModel: defaultModel,
		logger:       lg,
	}
}

// ChatCompletionParams is the params payload accepted by chat_completion tasks.
type ChatCompletionParams struct {
	Messages  []llm.Message `json:"messages"`
	ModelName string        `json:"model_name,omitempty"`
	Params    llm.Params    `json:"params,omitempty"`
}

func (h *ChatCompletionHandler) Run(ctx context.Context, task *tasks.Task) (json.RawMessage, error) {
	var p ChatCompletionParams
	if err := json.Unmarshal(task.Params, &p); err != nil {
		return nil, errors.NewValidationError("invalid chat_completion params", map[string]any{
			"task_id": task.ID,
			"error":   err.Error(),
		})
	}

	if len(p.Messages) == 0 {
		return nil, errors.NewValidationError("messages are required", map[string]any{
			"task_id": task.ID,
		})
	}

	modelName := p.ModelName
	if modelName == "" {
		modelName = h.defaultModel
	}

	model, err := h.models.GetOrLoad(ctx, modelName)
	if err != nil {
		return nil, err
	}

	h.logger.Task(task.ID, "generating chat completion", map[string]any{
		"model":         modelName,
		"message_count": len(p.Messages),
	})

	resp, err := model.Chat(ctx, p.Messages, p.Params)
	if err != nil {
		return nil, err
	}

	return json.Marshal(resp)
}
