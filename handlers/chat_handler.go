package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumora-ai/lumora/config"
	"github.com/lumora-ai/lumora/internal/store"
	"github.com/lumora-ai/lumora/services"
)

// ChatHandler serves the JSON chat endpoint and owns the session round-trip:
// load history, call the upstream API, then create the session if needed and
// append both turns on success.
type ChatHandler struct {
	cfg      *config.Config
	chat     *services.ChatService
	sessions store.ConversationStore
	logger   *zap.SugaredLogger
}

func NewChatHandler(cfg *config.Config, chat *services.ChatService, sessions store.ConversationStore, logger *zap.SugaredLogger) *ChatHandler {
	return &ChatHandler{cfg: cfg, chat: chat, sessions: sessions, logger: logger}
}

type chatRequestPayload struct {
	Token             string  `json:"token"`
	SessionID         string  `json:"session_id"`
	Message           string  `json:"message"`
	Image             string  `json:"image"`
	ImageURL          string  `json:"image_url"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	SummaryThreshold  int     `json:"summary_threshold"`
	RecentMessageKeep int     `json:"recent_message_keep"`
	TimeoutMS         int     `json:"timeout_ms"`
}

func (h *ChatHandler) HandleChat(c *gin.Context) {
	var payload chatRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
		return
	}

	if strings.TrimSpace(payload.Message) == "" && strings.TrimSpace(payload.Image) == "" && strings.TrimSpace(payload.ImageURL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message or image is required"})
		return
	}

	imageURL, err := resolveImageAttachment(payload.Image, payload.ImageURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image attachment", "detail": err.Error()})
		return
	}

	token := resolveToken(c, h.cfg, payload.Token)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api token is required"})
		return
	}

	h.completeTurn(c, token, payload.SessionID, chatTurn{
		Message:           payload.Message,
		ImageURL:          imageURL,
		Temperature:       payload.Temperature,
		MaxTokens:         payload.MaxTokens,
		SummaryThreshold:  payload.SummaryThreshold,
		RecentMessageKeep: payload.RecentMessageKeep,
		TimeoutMS:         payload.TimeoutMS,
	})
}

// chatTurn is the handler-internal shape shared by the JSON and multipart
// chat endpoints.
type chatTurn struct {
	Message           string
	DocumentName      string
	DocumentText      string
	ImageURL          string
	Temperature       float64
	MaxTokens         int
	SummaryThreshold  int
	RecentMessageKeep int
	TimeoutMS         int
}

func (h *ChatHandler) completeTurn(c *gin.Context, token, sessionID string, turn chatTurn) {
	ctx, cancel := contextWithTimeout(c.Request.Context(), turn.TimeoutMS, h.cfg.Upstream.Timeout)
	defer cancel()

	sessionID = strings.TrimSpace(sessionID)

	var history []store.Message
	var err error
	if sessionID != "" {
		history, err = h.sessions.History(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			h.logger.Errorf("load session %s failed: %v", sessionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session", "detail": err.Error()})
			return
		}
	}

	req := services.ChatRequest{
		History:            toServiceMessages(history),
		UserMessage:        turn.Message,
		DocumentName:       turn.DocumentName,
		DocumentText:       turn.DocumentText,
		ImageURL:           turn.ImageURL,
		SummaryThreshold:   orDefault(turn.SummaryThreshold, h.cfg.Limits.SummaryThreshold),
		RecentMessageCount: orDefault(turn.RecentMessageKeep, h.cfg.Limits.RecentMessageKeep),
		Temperature:        turn.Temperature,
		MaxTokens:          turn.MaxTokens,
	}

	result, err := h.chat.GenerateReply(ctx, token, req)
	if err != nil {
		h.logger.Warnf("chat completion failed: %v", err)
		c.JSON(statusFromError(err), gin.H{"error": "chat completion failed", "detail": err.Error()})
		return
	}

	// New sessions are materialized only now, so a failed upstream call never
	// leaves an empty orphan behind.
	if sessionID == "" {
		sessionID, err = h.sessions.Create(context.WithoutCancel(ctx))
		if err != nil {
			h.logger.Errorf("create session failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session", "detail": err.Error()})
			return
		}
	}

	now := time.Now().UTC()
	userTurn := store.Message{Role: store.RoleUser, Content: recordedUserContent(turn), CreatedAt: now}
	assistantTurn := store.Message{Role: store.RoleAssistant, Content: result.Reply.Content, CreatedAt: now}

	if err := h.sessions.Append(context.WithoutCancel(ctx), sessionID, userTurn, assistantTurn); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.logger.Errorf("append to session %s failed: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record conversation", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":      sessionID,
		"message":         result.Reply,
		"model":           result.Model,
		"usage":           result.Usage,
		"history_summary": result.HistorySummary,
		"raw":             result.Raw,
	})
}

// recordedUserContent is what gets appended to the session for the user
// turn. Document uploads without a message keep a readable marker so later
// prompts still make sense.
func recordedUserContent(turn chatTurn) string {
	message := strings.TrimSpace(turn.Message)
	if turn.DocumentText == "" {
		if message == "" && turn.ImageURL != "" {
			return "[image attached]"
		}
		return message
	}

	name := strings.TrimSpace(turn.DocumentName)
	if name == "" {
		name = "document"
	}
	if message == "" {
		return "[attached " + name + "]"
	}
	return message + "\n[attached " + name + "]"
}

func toServiceMessages(history []store.Message) []services.Message {
	out := make([]services.Message, 0, len(history))
	for _, msg := range history {
		out = append(out, services.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}

func orDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
