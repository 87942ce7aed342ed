package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seungwon-Robin/Chatbot/services"
)

type stubChatbot struct {
	answer  string
	err     error
	queries []string
	state   string
}

func (s *stubChatbot) GenerateResponse(_ context.Context, query string) (string, error) {
	s.queries = append(s.queries, query)
	return s.answer, s.err
}

func (s *stubChatbot) Status() services.Status {
	state := s.state
	if state == "" {
		state = services.StateReady.String()
	}
	return services.Status{State: state, Songs: 2, IndexedVectors: 2, Dimension: 128, EmbeddingModel: "simple"}
}

func newTestRouter(t *testing.T, bot *stubChatbot) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router, err := NewRouter("test", NewChatController(bot, "Music Chatbot"))
	require.NoError(t, err)
	return router
}

func postChat(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestChat_Success(t *testing.T) {
	bot := &stubChatbot{answer: "Try Blue Night."}
	router := newTestRouter(t, bot)

	w := postChat(router, `{"message":"  I feel relaxed "}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"response": "Try Blue Night."}, decodeBody(t, w))
	assert.Equal(t, []string{"I feel relaxed"}, bot.queries)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestChat_EmptyMessage(t *testing.T) {
	for _, body := range []string{`{"message":""}`, `{"message":"   "}`, `{}`} {
		bot := &stubChatbot{}
		router := newTestRouter(t, bot)

		w := postChat(router, body)

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, map[string]any{"error": msgEmptyMessage}, decodeBody(t, w))
		assert.Empty(t, bot.queries, "chatbot must not be called for %s", body)
	}
}

func TestChat_MalformedBody(t *testing.T) {
	bot := &stubChatbot{}
	router := newTestRouter(t, bot)

	w := postChat(router, `{"message":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]any{"error": msgInvalidRequest}, decodeBody(t, w))
	assert.Empty(t, bot.queries)
}

func TestChat_InternalFailureIsHidden(t *testing.T) {
	bot := &stubChatbot{err: fmt.Errorf("%w: quota exceeded for key sk-123", services.ErrGeneration)}
	router := newTestRouter(t, bot)

	w := postChat(router, `{"message":"I feel relaxed"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, map[string]any{"error": msgGenerationFail}, decodeBody(t, w))
	assert.NotContains(t, w.Body.String(), "quota")
}

func TestChat_RetrievalFailure(t *testing.T) {
	bot := &stubChatbot{err: errors.New("index is not ready")}
	router := newTestRouter(t, bot)

	w := postChat(router, `{"message":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestID_Propagates(t *testing.T) {
	router := newTestRouter(t, &stubChatbot{answer: "ok"})

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &stubChatbot{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["status"])
	chatbot, ok := body["chatbot"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), chatbot["songs"])
}

func TestHealth_NotReady(t *testing.T) {
	router := newTestRouter(t, &stubChatbot{state: services.StateLoading.String()})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIndexPageAndStatic(t *testing.T) {
	router := newTestRouter(t, &stubChatbot{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<title>Music Chatbot</title>")
	assert.Contains(t, w.Body.String(), `id="chat-form"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/script.js", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fetch('/chat'")
}
