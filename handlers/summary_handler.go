package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumora-ai/lumora/config"
	"github.com/lumora-ai/lumora/internal/extract"
	"github.com/lumora-ai/lumora/services"
)

// SummaryHandler serves the stateless summarization endpoint. It accepts
// either a JSON body with text or a multipart upload to extract first.
type SummaryHandler struct {
	cfg       *config.Config
	summary   *services.SummaryService
	extractor *extract.Extractor
	logger    *zap.SugaredLogger
}

func NewSummaryHandler(cfg *config.Config, summary *services.SummaryService, extractor *extract.Extractor, logger *zap.SugaredLogger) *SummaryHandler {
	return &SummaryHandler{cfg: cfg, summary: summary, extractor: extractor, logger: logger}
}

type summaryRequestPayload struct {
	Token       string  `json:"token"`
	Text        string  `json:"text"`
	TargetWords int     `json:"target_words"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TimeoutMS   int     `json:"timeout_ms"`
}

func (h *SummaryHandler) HandleSummarize(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		h.summarizeUpload(c)
		return
	}

	var payload summaryRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
		return
	}

	if strings.TrimSpace(payload.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	h.respond(c, payload.Token, payload.Text, "", payload.TargetWords, payload.Temperature, payload.MaxTokens, payload.TimeoutMS)
}

func (h *SummaryHandler) summarizeUpload(c *gin.Context) {
	filename, data, ok := readUpload(c, h.cfg.Limits.MaxUploadBytes, h.logger)
	if !ok {
		return
	}

	result, err := h.extractor.Extract(filename, data)
	if err != nil {
		h.logger.Warnf("extract %s failed: %v", filename, err)
		c.JSON(statusFromExtractError(err), gin.H{"error": "document extraction failed", "detail": err.Error()})
		return
	}

	h.respond(c, c.PostForm("token"), result.Text, filename,
		postFormInt(c, "target_words"), postFormFloat(c, "temperature"),
		postFormInt(c, "max_tokens"), postFormInt(c, "timeout_ms"))
}

func (h *SummaryHandler) respond(c *gin.Context, explicitToken, text, filename string, targetWords int, temperature float64, maxTokens, timeoutMS int) {
	token := resolveToken(c, h.cfg, explicitToken)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api token is required"})
		return
	}

	ctx, cancel := contextWithTimeout(c.Request.Context(), timeoutMS, h.cfg.Upstream.Timeout)
	defer cancel()

	result, err := h.summary.Summarize(ctx, token, services.SummaryRequest{
		Text:        text,
		TargetWords: targetWords,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		h.logger.Warnf("summarize failed: %v", err)
		c.JSON(statusFromError(err), gin.H{"error": "summarization failed", "detail": err.Error()})
		return
	}

	response := gin.H{
		"summary": result.Summary,
		"model":   result.Model,
		"usage":   result.Usage,
		"raw":     result.Raw,
	}
	if filename != "" {
		response["filename"] = filename
	}

	c.JSON(http.StatusOK, response)
}
