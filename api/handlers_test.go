package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdreetz/crebAI/config"
	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/llm"
	"github.com/cdreetz/crebAI/logger"
	"github.com/cdreetz/crebAI/stream"
	"github.com/cdreetz/crebAI/tasks"
	"github.com/cdreetz/crebAI/tasks/registry"
	"github.com/cdreetz/crebAI/tasks/store"
)

func testLogger() *logger.Logger {
	var buf bytes.Buffer
	return logger.New("ERROR", &buf)
}

// fakeSubmitter records submissions and returns a scripted task or error.
type fakeSubmitter struct {
	lastType   string
	lastParams json.RawMessage
	err        error
}

func (f *fakeSubmitter) Submit(ctx context.Context, taskType string, params json.RawMessage) (*tasks.Task, error) {
	f.lastType = taskType
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return tasks.NewTask(taskType, params), nil
}

func TestGenerateHandler(t *testing.T) {
	submitter := &fakeSubmitter{}
	handler := NewGenerateHandler(submitter, testLogger())

	body := `{"prompt":"write a haiku","model_name":"llama-3"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/text/generate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, "pending", resp.Status)

	assert.Equal(t, "text_generation", submitter.lastType)
	assert.Contains(t, string(submitter.lastParams), "write a haiku")
}

func TestGenerateHandler_Validation(t *testing.T) {
	testCases := []struct {
		name     string
		method   string
		body     string
		wantCode int
	}{
		{"wrong method", http.MethodGet, "", http.StatusBadRequest},
		{"malformed json", http.MethodPost, `{"prompt":`, http.StatusBadRequest},
		{"missing prompt", http.MethodPost, `{}`, http.StatusBadRequest},
		{"empty prompt", http.MethodPost, `{"prompt":""}`, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewGenerateHandler(&fakeSubmitter{}, testLogger())

			req := httptest.NewRequest(tc.method, "/api/v1/text/generate", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "validation", resp.Type)
		})
	}
}

func TestGenerateHandler_SubmitError(t *testing.T) {
	submitter := &fakeSubmitter{err: errors.NewInternalError("store unavailable")}
	handler := NewGenerateHandler(submitter, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/text/generate", strings.NewReader(`{"prompt":"hi"}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChatHandler(t *testing.T) {
	submitter := &fakeSubmitter{}
	handler := NewChatHandler(submitter, testLogger())

	body := `{"messages":[{"role":"user","content":"hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "chat_completion", submitter.lastType)
}

func TestChatHandler_MissingMessages(t *testing.T) {
	handler := NewChatHandler(&fakeSubmitter{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskStatusHandler(t *testing.T) {
	taskStore := store.NewMemoryTaskStore()
	created, err := taskStore.Create(context.Background(), "text_generation", json.RawMessage(`{"prompt":"hi"}`))
	require.NoError(t, err)

	handler := NewTaskStatusHandler(taskStore, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+created.ID, nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.ID, resp.TaskID)
	assert.Equal(t, "pending", resp.Status)
	assert.Nil(t, resp.Result)
}

func TestTaskStatusHandler_NotFound(t *testing.T) {
	handler := NewTaskStatusHandler(store.NewMemoryTaskStore(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/does-not-exist", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskStatusHandler_CompletedTaskCarriesResult(t *testing.T) {
	taskStore := store.NewMemoryTaskStore()
	created, err := taskStore.Create(context.Background(), "text_generation", json.RawMessage(`{"prompt":"hi"}`))
	require.NoError(t, err)
	require.NoError(t, taskStore.Claim(context.Background(), created.ID))
	require.NoError(t, taskStore.UpdateStatus(context.Background(), created.ID, tasks.StatusCompleted, &tasks.Result{
		Output: json.RawMessage(`"a haiku"`),
	}))

	handler := NewTaskStatusHandler(taskStore, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+created.ID, nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Result)
	assert.JSONEq(t, `"a haiku"`, string(resp.Result.Output))
	assert.NotNil(t, resp.CompletedAt)
}

func TestTaskListHandler(t *testing.T) {
	taskStore := store.NewMemoryTaskStore()
	for i := 0; i < 3; i++ {
		_, err := taskStore.Create(context.Background(), "text_generation", json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	handler := NewTaskListHandler(taskStore, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?limit=2", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp TaskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Tasks, 2)
}

func TestTaskListHandler_StatusFilter(t *testing.T) {
	taskStore := store.NewMemoryTaskStore()
	first, err := taskStore.Create(context.Background(), "text_generation", json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = taskStore.Create(context.Background(), "text_generation", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, taskStore.Claim(context.Background(), first.ID))

	handler := NewTaskListHandler(taskStore, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?status=processing", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	var resp TaskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, first.ID, resp.Tasks[0].TaskID)
}

func TestTaskListHandler_InvalidQuery(t *testing.T) {
	handler := NewTaskListHandler(store.NewMemoryTaskStore(), testLogger())

	testCases := []struct {
		name string
		url  string
	}{
		{"unknown status", "/api/v1/tasks?status=bogus"},
		{"negative limit", "/api/v1/tasks?limit=-1"},
		{"non-numeric skip", "/api/v1/tasks?skip=abc"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// fakeStreamOpener plays back a fixed frame sequence.
type fakeStreamOpener struct {
	frames []stream.Frame
}

func (f *fakeStreamOpener) StreamChat(ctx context.Context, modelName string, messages []llm.Message, params llm.Params) <-chan stream.Frame {
	out := make(chan stream.Frame, len(f.frames))
	for _, frame := range f.frames {
		out <- frame
	}
	close(out)
	return out
}

func TestChatStreamHandler(t *testing.T) {
	stop := "stop"
	opener := &fakeStreamOpener{frames: []stream.Frame{
		{ID: "chatcmpl-1", Object: "chat.completion.chunk", Choices: []stream.Choice{{Delta: stream.Delta{Role: "assistant"}}}},
		{ID: "chatcmpl-1", Object: "chat.completion.chunk", Choices: []stream.Choice{{Delta: stream.Delta{Content: "Hello"}}}},
		{ID: "chatcmpl-1", Object: "chat.completion.chunk", Choices: []stream.Choice{{FinishReason: &stop}}},
	}}
	handler := NewChatStreamHandler(opener, testLogger())

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 4)
	assert.Contains(t, events[0], `"role":"assistant"`)
	assert.Contains(t, events[1], `"content":"Hello"`)
	assert.Contains(t, events[2], `"finish_reason":"stop"`)
	assert.Equal(t, "[DONE]", events[3])
}

func TestChatStreamHandler_ErrorFrame(t *testing.T) {
	opener := &fakeStreamOpener{frames: []stream.Frame{
		{Error: &stream.FrameError{Message: "model ghost not found", Type: "not_found"}},
	}}
	handler := NewChatStreamHandler(opener, testLogger())

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	// Transport-level success; the failure travels inside the stream.
	assert.Equal(t, http.StatusOK, rec.Code)

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Contains(t, events[0], `"type":"not_found"`)
	assert.Equal(t, "[DONE]", events[1])
}

func TestChatStreamHandler_Validation(t *testing.T) {
	handler := NewChatStreamHandler(&fakeStreamOpener{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

// parseSSE extracts the data payloads from a raw event stream body.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()

	var events []string
	for _, line := range strings.Split(body, "\n") {
		if data, found := strings.CutPrefix(line, "data: "); found {
			events = append(events, data)
		}
	}
	return events
}

type noopHandler struct{}

func (noopHandler) Run(ctx context.Context, task *tasks.Task) (json.RawMessage, error) {
	return nil, nil
}

func TestHealthHandler(t *testing.T) {
	cfg := &config.Config{Version: "1.2.3"}
	handlerRegistry := registry.NewRegistry()
	handlerRegistry.Register("text_generation", noopHandler{})

	handler := NewHealthHandler(cfg, handlerRegistry, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, []string{"text_generation"}, resp.RegisteredTasks)
}

// stubModel is a minimal registry entry for model endpoint tests.
type stubModel struct {
	name   string
	loaded bool
}

func (m *stubModel) Name() string { return m.name }
func (m *stubModel) Loaded() bool { return m.loaded }

func (m *stubModel) Load(ctx context.Context) (*llm.LoadResult, error) {
	cached := m.loaded
	m.loaded = true
	return &llm.LoadResult{Name: m.name, Loaded: true, Cached: cached}, nil
}

func (m *stubModel) Generate(ctx context.Context, prompt string, params llm.Params) (string, error) {
	return "", nil
}

func (m *stubModel) Chat(ctx context.Context, messages []llm.Message, params llm.Params) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{}, nil
}

func (m *stubModel) Unload() bool {
	wasLoaded := m.loaded
	m.loaded = false
	return wasLoaded
}

func TestModelListHandler(t *testing.T) {
	models := llm.NewRegistry(nil, testLogger())
	models.Register(&stubModel{name: "llama-3", loaded: true})

	handler := NewModelListHandler(models, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ModelListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 1)
	assert.Equal(t, "llama-3", resp.Models[0].Name)
	assert.True(t, resp.Models[0].Loaded)
}

func TestModelActionHandler_Load(t *testing.T) {
	models := llm.NewRegistry(nil, testLogger())
	models.Register(&stubModel{name: "llama-3"})

	handler := NewModelActionHandler(models, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/models/llama-3/load", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp llm.LoadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "llama-3", resp.Name)
	assert.True(t, resp.Loaded)
}

func TestModelActionHandler_Unload(t *testing.T) {
	models := llm.NewRegistry(nil, testLogger())
	models.Register(&stubModel{name: "llama-3", loaded: true})

	handler := NewModelActionHandler(models, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/models/llama-3/unload", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp UnloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Unloaded)
}

func TestModelActionHandler_Errors(t *testing.T) {
	models := llm.NewRegistry(nil, testLogger())
	handler := NewModelActionHandler(models, testLogger())

	testCases := []struct {
		name     string
		url      string
		wantCode int
	}{
		{"unknown model load", "/api/v1/models/ghost/load", http.StatusNotFound},
		{"unknown model unload", "/api/v1/models/ghost/unload", http.StatusNotFound},
		{"unknown action", "/api/v1/models/llama-3/explode", http.StatusBadRequest},
		{"missing action", "/api/v1/models/llama-3", http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.url, nil)
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestRespondWithError_WrapsPlainErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	respondWithError(rec, fmt.Errorf("something broke"), testLogger())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal", resp.Type)
	assert.Equal(t, "something broke", resp.Error)
}
