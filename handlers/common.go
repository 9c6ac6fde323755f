package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumora-ai/lumora/config"
	"github.com/lumora-ai/lumora/internal/extract"
)

func statusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func statusFromExtractError(err error) int {
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, extract.ErrMalformedDocument), errors.Is(err, extract.ErrEmptyDocument):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func parseAuthorizationToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}

	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}

	return ""
}

// resolveToken picks the upstream API token: explicit request field first,
// then the Authorization header, then the configured key. When internal auth
// is enabled the Authorization header carries the session JWT, not an
// upstream key, so it is skipped.
func resolveToken(c *gin.Context, cfg *config.Config, explicit string) string {
	if token := strings.TrimSpace(explicit); token != "" {
		return token
	}

	if !cfg.AuthRequired {
		if header := parseAuthorizationToken(c.GetHeader("Authorization")); header != "" {
			return header
		}
	}

	return strings.TrimSpace(cfg.Upstream.APIKey)
}

func contextWithTimeout(parent context.Context, timeoutMS int, fallback time.Duration) (context.Context, context.CancelFunc) {
	if timeoutMS > 0 {
		return context.WithTimeout(parent, time.Duration(timeoutMS)*time.Millisecond)
	}
	if fallback <= 0 {
		fallback = 60 * time.Second
	}
	return context.WithTimeout(parent, fallback)
}

// resolveImageAttachment normalizes an image attachment into something the
// upstream vision API accepts: an http(s) URL or a data URI.
func resolveImageAttachment(inline, url string) (string, error) {
	if url = strings.TrimSpace(url); url != "" {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return "", fmt.Errorf("image_url must be an http(s) url")
		}
		return url, nil
	}

	inline = strings.TrimSpace(inline)
	if inline == "" {
		return "", nil
	}

	if strings.HasPrefix(inline, "data:") {
		return inline, nil
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, inline)

	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	mimeType := http.DetectContentType(decoded)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("attachment is not an image (%s)", mimeType)
	}

	return "data:" + mimeType + ";base64," + cleaned, nil
}
