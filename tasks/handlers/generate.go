package handlers

import (
	"context"
	"encoding/json"

	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/llm"
	"github.com/cdreetz/crebAI/logger"
	"github.com/cdreetz/crebAI/tasks"
)

var _ TaskHandler = (*TextGenerationHandler)(nil)

// TextGenerationHandler runs a text_generation task against the backend
// capability matching the requested model.
type TextGenerationHandler struct {
	models       *llm.Registry
	defaultModel string
	logger       *logger.Logger
}

// NewTextGenerationHandler constructs a handler bound to a model registry.
func NewTextGenerationHandler(models *llm.Registry, defaultModel string, lg *logger.Logger) *TextGenerationHandler {
	return &TextGenerationHandler{
		models:       models,
		defaultModel: defaultModel,
		logger:       lg,
	}
}

// TextGenerationParams is the params payload accepted by text_generation tasks.
type TextGenerationParams struct {
	Prompt    string     `json:"prompt"`
	ModelName string     `json:"model_name,omitempty"`
	Params    llm.Params `json:"params,omitempty"`
}

func (h *TextGenerationHandler) Run(ctx context.Context, task *tasks.Task) (json.RawMessage, error) {
	var p TextGenerationParams
	if err := json.Unmarshal(task.Params, &p); err != nil {
		return nil, errors.NewValidationError("invalid text_generation params", map[string]any{
			"task_id": task.ID,
			"error":   err.Error(),
		})
	}

	if p.Prompt == "" {
		return nil, errors.NewValidationError("prompt is required", map[string]any{
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

	h.logger.Task(task.ID, "generating text", map[string]any{
		"model": modelName,
	})

	text, err := model.Generate(ctx, p.Prompt, p.Params)
	if err != nil {
		return nil, err
	}

	return json.Marshal(text)
}
