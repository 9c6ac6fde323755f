package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumora-ai/lumora/internal/store"
)

// SessionHandler exposes read and delete access to conversation histories.
type SessionHandler struct {
	sessions store.ConversationStore
	logger   *zap.SugaredLogger
}

func NewSessionHandler(sessions store.ConversationStore, logger *zap.SugaredLogger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

func (h *SessionHandler) HandleHistory(c *gin.Context) {
	sessionID := c.Param("id")

	history, err := h.sessions.History(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.logger.Errorf("load session %s failed: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   history,
		"count":      len(history),
	})
}

func (h *SessionHandler) HandleDelete(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.sessions.Delete(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.logger.Errorf("delete session %s failed: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session", "detail": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}
