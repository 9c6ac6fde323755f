package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumora-ai/lumora/config"
	"github.com/lumora-ai/lumora/internal/extract"
)

// DocumentHandler serves the multipart endpoints: chat-with-upload and the
// bare extraction route.
type DocumentHandler struct {
	cfg       *config.Config
	extractor *extract.Extractor
	chat      *ChatHandler
	logger    *zap.SugaredLogger
}

func NewDocumentHandler(cfg *config.Config, extractor *extract.Extractor, chat *ChatHandler, logger *zap.SugaredLogger) *DocumentHandler {
	return &DocumentHandler{cfg: cfg, extractor: extractor, chat: chat, logger: logger}
}

// HandleChatUpload runs extraction on the uploaded file and then completes a
// chat turn with the document folded in as context.
func (h *DocumentHandler) HandleChatUpload(c *gin.Context) {
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

	token := resolveToken(c, h.cfg, c.PostForm("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api token is required"})
		return
	}

	h.chat.completeTurn(c, token, c.PostForm("session_id"), chatTurn{
		Message:           c.PostForm("message"),
		DocumentName:      filename,
		DocumentText:      result.Text,
		Temperature:       postFormFloat(c, "temperature"),
		MaxTokens:         postFormInt(c, "max_tokens"),
		SummaryThreshold:  postFormInt(c, "summary_threshold"),
		RecentMessageKeep: postFormInt(c, "recent_message_keep"),
		TimeoutMS:         postFormInt(c, "timeout_ms"),
	})
}

// HandleExtract returns the extracted text without calling the LLM.
func (h *DocumentHandler) HandleExtract(c *gin.Context) {
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

	c.JSON(http.StatusOK, gin.H{
		"filename":  filename,
		"format":    result.Format,
		"text":      result.Text,
		"truncated": result.Truncated,
		"chars":     utf8.RuneCountInString(result.Text),
	})
}

// readUpload fetches the "file" part, enforcing the size cap before any
// bytes are parsed.
func readUpload(c *gin.Context, maxBytes int64, logger *zap.SugaredLogger) (string, []byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+4096)

	header, err := c.FormFile("file")
	if err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "request body too large") {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": "file upload is required", "detail": err.Error()})
		return "", nil, false
	}

	if header.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds upload limit"})
		return "", nil, false
	}

	data, err := readMultipartFile(header)
	if err != nil {
		logger.Warnf("read upload %s failed: %v", header.Filename, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload", "detail": err.Error()})
		return "", nil, false
	}

	return header.Filename, data, true
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func postFormInt(c *gin.Context, key string) int {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

func postFormFloat(c *gin.Context, key string) float64 {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}
