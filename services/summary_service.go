package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lumora-ai/lumora/config"
)

const summarySystemPrompt = "You are an expert summarizer. Produce a faithful, self-contained summary of the content provided by the user. Do not add information that is not in the source."

// SummaryRequest describes a stateless summarization call.
type SummaryRequest struct {
	Text        string
	TargetWords int
	Temperature float64
	MaxTokens   int
}

// SummaryResponse wraps the produced summary plus upstream metadata.
type SummaryResponse struct {
	Summary string          `json:"summary"`
	Usage   *ChatUsage      `json:"usage,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
	Model   string          `json:"model"`
}

// SummaryService forwards summarization prompts to the upstream API.
type SummaryService struct {
	chat   *ChatService
	model  string
	logger *zap.SugaredLogger
}

func NewSummaryService(cfg *config.Config, client Doer, logger *zap.SugaredLogger) *SummaryService {
	model := strings.TrimSpace(cfg.Upstream.SummaryModel)
	if model == "" {
		model = strings.TrimSpace(cfg.Upstream.ChatModel)
	}

	return &SummaryService{
		chat:   NewChatService(cfg, client, logger),
		model:  model,
		logger: logger,
	}
}

// Summarize sends the content with a summarization system prompt and returns
// the assistant's summary.
func (s *SummaryService) Summarize(ctx context.Context, token string, req SummaryRequest) (*SummaryResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("authorization token is required")
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("text to summarize is required")
	}

	instruction := "Summarize the following content."
	if req.TargetWords > 0 {
		instruction = fmt.Sprintf("Summarize the following content in about %d words.", req.TargetWords)
	}

	payload := chatAPIRequest{
		Model: s.model,
		Messages: []apiMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: instruction + "\n\n" + text},
		},
	}
	if req.Temperature > 0 {
		payload.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload.MaxTokens = req.MaxTokens
	}

	apiResp, raw, err := s.chat.complete(ctx, token, payload)
	if err != nil {
		return nil, err
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("summary response contained no choices")
	}

	summary := strings.TrimSpace(apiResp.Choices[0].Message.Content)
	if summary == "" {
		return nil, fmt.Errorf("summary response was empty")
	}

	return &SummaryResponse{
		Summary: summary,
		Usage:   apiResp.Usage,
		Raw:     raw,
		Model:   s.model,
	}, nil
}
