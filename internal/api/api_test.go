package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumora-ai/lumora/config"
	"github.com/lumora-ai/lumora/handlers"
	"github.com/lumora-ai/lumora/internal/auth"
	"github.com/lumora-ai/lumora/internal/extract"
	"github.com/lumora-ai/lumora/internal/store"
	"github.com/lumora-ai/lumora/services"
)

type stubDoer struct {
	status int
	body   string
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
	}
	return &http.Response{
		StatusCode: s.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(s.body)),
	}, nil
}

func completionBody(reply string) string {
	return fmt.Sprintf(`{"id":"cmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`, reply)
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret: "test-secret",
		Upstream: config.UpstreamConfig{
			BaseURL:      "https://llm.example.com/v1",
			APIKey:       "sk-config",
			ChatModel:    "chat-model",
			VisionModel:  "vision-model",
			SummaryModel: "summary-model",
			SystemPrompt: "You are a helpful assistant.",
			Timeout:      10 * time.Second,
		},
		Limits: config.LimitsConfig{
			MaxUploadBytes:    1 << 20,
			ExtractRuneLimit:  65536,
			SummaryThreshold:  16,
			RecentMessageKeep: 6,
		},
	}
}

func setupTestRouter(t *testing.T, cfg *config.Config, doer services.Doer) (*gin.Engine, *store.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sugar := zap.NewNop().Sugar()

	authService, err := auth.NewService(cfg.JWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}

	sessions := store.NewMemoryStore()
	extractor := extract.New(cfg.Limits.ExtractRuneLimit)
	chatService := services.NewChatService(cfg, doer, sugar)
	summaryService := services.NewSummaryService(cfg, doer, sugar)

	chatHandler := handlers.NewChatHandler(cfg, chatService, sessions, sugar)
	documentHandler := handlers.NewDocumentHandler(cfg, extractor, chatHandler, sugar)
	summaryHandler := handlers.NewSummaryHandler(cfg, summaryService, extractor, sugar)
	sessionHandler := handlers.NewSessionHandler(sessions, sugar)

	router := gin.New()
	NewHandler(authService, cfg.AuthRequired, chatHandler, documentHandler, summaryHandler, sessionHandler).RegisterRoutes(router)

	return router, sessions
}

func TestAuthRegisterAndLogin(t *testing.T) {
	router, _ := setupTestRouter(t, testConfig(), &stubDoer{status: http.StatusOK, body: completionBody("x")})

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "secret123",
	})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var registerResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &registerResp)
	if registerResp["token"] == "" {
		t.Fatalf("expected token in registration response")
	}

	rec = httptest.NewRecorder()
	req = newJSONRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": "alice",
		"password":   "secret123",
	})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatRoundTrip(t *testing.T) {
	router, _ := setupTestRouter(t, testConfig(), &stubDoer{status: http.StatusOK, body: completionBody("hello back")})

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/chat", map[string]any{"message": "hello"})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var chatResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &chatResp)

	sessionID, _ := chatResp["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("expected a generated session id")
	}
	reply := chatResp["message"].(map[string]any)
	if reply["content"] != "hello back" {
		t.Fatalf("expected assistant reply, got %v", reply)
	}

	// second turn on the same session
	rec = httptest.NewRecorder()
	req = newJSONRequest(t, http.MethodPost, "/api/chat", map[string]any{"message": "and again", "session_id": sessionID})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 on second turn, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/session/"+sessionID+"/history", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for history, got %d", rec.Code)
	}

	var historyResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &historyResp)
	if historyResp["count"].(float64) != 4 {
		t.Fatalf("expected 4 stored turns, got %v", historyResp["count"])
	}
	messages := historyResp["messages"].([]any)
	first := messages[0].(map[string]any)
	if first["role"] != "user" || first["content"] != "hello" {
		t.Fatalf("expected first stored turn to be the user message, got %v", first)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/session/"+sessionID, nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 for delete, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/session/"+sessionID+"/history", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after delete, got %d", rec.Code)
	}
}

func TestChatUnknownSession(t *testing.T) {
	router, _ := setupTestRouter(t, testConfig(), &stubDoer{status: http.StatusOK, body: completionBody("x")})

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi", "session_id": "nope"})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatImageOnly(t *testing.T) {
	router, _ := setupTestRouter(t, testConfig(), &stubDoer{status: http.StatusOK, body: completionBody("a grey cat")})

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/chat", map[string]any{"image_url": "https://images.example.com/cat.png"})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for image-only chat, got %d: %s", rec.Code, rec.Body.String())
	}

	var chatResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &chatResp)
	if chatResp["model"] != "vision-model" {
		t.Fatalf("expected vision model for image turn, got %v", chatResp["model"])
	}

	sessionID, _ := chatResp["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("expected a session id for image-only chat")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/session/"+sessionID+"/history", nil)
	router.ServeHTTP(rec, req)

	var historyResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &historyResp)
	messages := historyResp["messages"].([]any)
	first := messages[0].(map[string]any)
	if first["content"] != "[image attached]" {
		t.Fatalf("expected image marker as stored user turn, got %v", first["content"])
	}
}

func TestChatRequiresContent(t *testing.T) {
	router, _ := setupTestRouter(t, testConfig(), &stubDoer{status: http.StatusOK, body: completionBody("x")})

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/chat", map[string]any{})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	doer := &stubDoer{status: http.StatusInternalServerError, body: `{"error":{"message":"upstream exploded"}}`}
	router, _ := setupTestRouter(t, testConfig(), doer)

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d: %s", rec.Code, rec.Body.String())
	}

	var errResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &errResp)
	detail, _ := errResp["detail"].(string)
	if !strings.Contains(detail, "upstream exploded") {
		t.Fatalf("expected upstream error body forwarded, got %q", detail)
	}
}

func TestChatUpstreamFailureCreatesNoSession(t *testing.T) {
	doer := &stubDoer{status: http.StatusInternalServerError, body: `{"error":{"message":"upstream exploded"}}`}
	router, sessions := setupTestRouter(t, testConfig(), doer)

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d: %s", rec.Code, rec.Body.String())
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected no session left behind after failed upstream call, got %d", sessions.Len())
	}
}

func TestChatUpload(t *testing.T) {
	router, _ := setupTestRouter(t, testConfig(), &stubDoer{status: http.StatusOK, body: completionBody("doc reply")})

	body, contentType := buildMultipart(t, "notes.txt", []byte("the quick brown fox"), map[string]string{
		"message": "what does it say?",
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/upload", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var chatResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &chatResp)
	sessionID, _ := chatResp["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("expected a session id for upload chat")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/session/"+sessionID+"/history", nil)
	router.ServeHTTP(rec, req)

	var historyResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &historyResp)
	messages := historyResp["messages"].([]any)
	first := messages[0].(map[string]any)
	content := first["content"].(string)
	if !strings.Contains(content, "notes.txt") {
		t.Fatalf("expected stored user turn to mention the attachment, got %q", content)
	}
}

func TestChatUploadUnsupportedFormat(t *testing.T) {
	router, _ := setupTestRouter(t, testConfig(), &stubDoer{status: http.StatusOK, body: completionBody("x")})

	body, contentType := buildMultipart(t, "tool.exe", []byte{0x4D, 0x5A, 0x00, 0xFF, 0x01, 0x02}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/upload", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status 415, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestChatUploadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxUploadBytes = 64
	router, _ := setupTestRouter(t, cfg, &stubDoer{status: http.StatusOK, body: completionBody("x")})

	body, contentType := buildMultipart(t, "big.txt", bytes.Repeat([]byte("a"), 10240), nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/upload", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestExtractEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t, testConfig(), &stubDoer{status: http.StatusOK, body: completionBody("x")})

	body, contentType := buildMultipart(t, "readme.md", []byte("# Title\n\nbody text"), nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/extract", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var extractResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &extractResp)
	if extractResp["format"] != "markdown" {
		t.Fatalf("expected markdown format, got %v", extractResp["format"])
	}
	if extractResp["truncated"] != false {
		t.Fatalf("expected truncated=false, got %v", extractResp["truncated"])
	}
	if !strings.Contains(extractResp["text"].(string), "# Title") {
		t.Fatalf("expected extracted text, got %v", extractResp["text"])
	}
}

func TestSummarizeEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t, testConfig(), &stubDoer{status: http.StatusOK, body: completionBody("a tight summary")})

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/summarize", map[string]any{"text": "a very long document", "target_words": 20})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var summaryResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &summaryResp)
	if summaryResp["summary"] != "a tight summary" {
		t.Fatalf("expected summary, got %v", summaryResp["summary"])
	}
}

func TestAuthRequiredProtectsChat(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRequired = true
	router, _ := setupTestRouter(t, cfg, &stubDoer{status: http.StatusOK, body: completionBody("guarded")})

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = newJSONRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "carol",
		"password": "secret123",
	})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var registerResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &registerResp)
	token := registerResp["token"].(string)

	rec = httptest.NewRecorder()
	req = newJSONRequest(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func newJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func buildMultipart(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	return &buf, writer.FormDataContentType()
}

func decodeBody(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
