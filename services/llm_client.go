package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const llmHTTPTimeout = 60 * time.Second

// Doer is the HTTP seam services use so tests can stub the upstream API.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

type upstreamAPIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type upstreamErrorEnvelope struct {
	Error *upstreamAPIError `json:"error,omitempty"`
}

func newDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = llmHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

func decodeUpstreamError(body []byte) *upstreamAPIError {
	if len(body) == 0 {
		return nil
	}

	var envelope upstreamErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	if envelope.Error == nil {
		return nil
	}

	envelope.Error.Message = strings.TrimSpace(envelope.Error.Message)
	return envelope.Error
}

// buildUpstreamAPIError shapes a non-2xx upstream response into an error
// carrying the status code and the upstream body (or a 256-byte snippet).
func buildUpstreamAPIError(statusCode int, body []byte) error {
	if apiErr := decodeUpstreamError(body); apiErr != nil {
		if apiErr.Code != "" && apiErr.Message != "" {
			return fmt.Errorf("llm api error (%d, %s): %s", statusCode, apiErr.Code, apiErr.Message)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("llm api error (%d): %s", statusCode, apiErr.Message)
		}
		if apiErr.Code != "" {
			return fmt.Errorf("llm api error (%d, %s)", statusCode, apiErr.Code)
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("llm api error (%d): %s", statusCode, snippet)
}
