package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lumora-ai/lumora/config"
)

const (
	defaultSummaryThreshold  = 16
	defaultRecentMessageKeep = 6
	maxSummaryRuneLength     = 200
)

// Message mirrors an upstream chat message with plain-string content.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatUsage contains token usage metadata returned by the upstream API.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest describes one chat turn to orchestrate.
type ChatRequest struct {
	History            []Message
	UserMessage        string
	DocumentName       string
	DocumentText       string
	ImageURL           string
	SummaryThreshold   int
	RecentMessageCount int
	Temperature        float64
	MaxTokens          int
}

// ChatResponse wraps the assistant reply and debug metadata.
type ChatResponse struct {
	Reply          Message         `json:"reply"`
	Usage          *ChatUsage      `json:"usage,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
	Model          string          `json:"model"`
	HistorySummary string          `json:"history_summary"`
}

// ChatService composes prompts and forwards them to the upstream chat
// completions endpoint. Requests carrying an image use the vision model.
type ChatService struct {
	baseURL      string
	chatModel    string
	visionModel  string
	systemPrompt string
	client       Doer
	logger       *zap.SugaredLogger
}

// NewChatService constructs a ChatService from cfg. A nil client gets the
// default HTTP client with the configured timeout.
func NewChatService(cfg *config.Config, client Doer, logger *zap.SugaredLogger) *ChatService {
	base := strings.TrimRight(cfg.Upstream.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	chatModel := strings.TrimSpace(cfg.Upstream.ChatModel)
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}

	visionModel := strings.TrimSpace(cfg.Upstream.VisionModel)
	if visionModel == "" {
		visionModel = chatModel
	}

	if client == nil {
		client = newDefaultHTTPClient(cfg.Upstream.Timeout)
	}

	return &ChatService{
		baseURL:      base,
		chatModel:    chatModel,
		visionModel:  visionModel,
		systemPrompt: strings.TrimSpace(cfg.Upstream.SystemPrompt),
		client:       client,
		logger:       logger,
	}
}

// GenerateReply builds the prompt from history, document context and the new
// user turn, then calls the upstream chat completion API.
func (s *ChatService) GenerateReply(ctx context.Context, token string, req ChatRequest) (*ChatResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("authorization token is required")
	}

	userInput := strings.TrimSpace(req.UserMessage)
	if userInput == "" && strings.TrimSpace(req.DocumentText) == "" && strings.TrimSpace(req.ImageURL) == "" {
		return nil, fmt.Errorf("user message, image, or document content is required")
	}

	summaryThreshold := req.SummaryThreshold
	if summaryThreshold <= 0 {
		summaryThreshold = defaultSummaryThreshold
	}

	recentKeep := req.RecentMessageCount
	if recentKeep <= 0 {
		recentKeep = defaultRecentMessageKeep
	}
	if recentKeep > summaryThreshold {
		recentKeep = summaryThreshold
	}

	historySummary, preservedHistory := splitHistory(req.History, summaryThreshold, recentKeep)

	promptMessages := make([]apiMessage, 0, 4+len(preservedHistory))
	if s.systemPrompt != "" {
		promptMessages = append(promptMessages, apiMessage{Role: "system", Content: s.systemPrompt})
	}
	if doc := strings.TrimSpace(req.DocumentText); doc != "" {
		promptMessages = append(promptMessages, apiMessage{Role: "system", Content: documentContext(req.DocumentName, doc)})
	}
	if historySummary != "" {
		promptMessages = append(promptMessages, apiMessage{Role: "system", Content: "Summary of the earlier conversation:\n" + historySummary})
	}
	for _, msg := range preservedHistory {
		promptMessages = append(promptMessages, apiMessage{Role: msg.Role, Content: msg.Content})
	}

	model := s.chatModel
	userTurn := apiMessage{Role: "user", Content: userInput}
	if imageURL := strings.TrimSpace(req.ImageURL); imageURL != "" {
		model = s.visionModel
		parts := make([]contentPart, 0, 2)
		if userInput != "" {
			parts = append(parts, contentPart{Type: "text", Text: userInput})
		}
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURLPart{URL: imageURL}})
		userTurn.Content = parts
	} else if userInput == "" {
		userTurn.Content = "Please respond to the attached document."
	}
	promptMessages = append(promptMessages, userTurn)

	payload := chatAPIRequest{
		Model:    model,
		Messages: promptMessages,
	}
	if req.Temperature > 0 {
		payload.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload.MaxTokens = req.MaxTokens
	}

	apiResp, raw, err := s.complete(ctx, token, payload)
	if err != nil {
		return nil, err
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("chat response contained no choices")
	}

	reply := apiResp.Choices[0].Message
	if strings.TrimSpace(reply.Role) == "" {
		reply.Role = "assistant"
	}

	return &ChatResponse{
		Reply:          reply,
		Usage:          apiResp.Usage,
		Raw:            raw,
		Model:          model,
		HistorySummary: historySummary,
	}, nil
}

func (s *ChatService) complete(ctx context.Context, token string, payload chatAPIRequest) (*chatAPIResponse, json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	endpoint := s.baseURL + "/chat/completions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("create chat request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return nil, nil, fmt.Errorf("call chat api: %w", err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read chat response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, nil, buildUpstreamAPIError(response.StatusCode, respBody)
	}

	var apiResp chatAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, nil, fmt.Errorf("decode chat response: %w", err)
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return nil, nil, fmt.Errorf("llm chat error: %s", apiResp.Error.Message)
	}

	return &apiResp, json.RawMessage(respBody), nil
}

func documentContext(name, text string) string {
	var builder strings.Builder
	builder.WriteString("The user attached a document")
	if name = strings.TrimSpace(name); name != "" {
		builder.WriteString(fmt.Sprintf(" (%s)", name))
	}
	builder.WriteString(". Use its content below as context for the conversation.\n---\n")
	builder.WriteString(text)
	builder.WriteString("\n---")
	return builder.String()
}

func splitHistory(history []Message, threshold, recentKeep int) (string, []Message) {
	cleaned := make([]Message, 0, len(history))
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = "user"
		}
		cleaned = append(cleaned, Message{Role: role, Content: content})
	}

	if threshold <= 0 || len(cleaned) <= threshold {
		return "", cleaned
	}

	if recentKeep <= 0 {
		recentKeep = defaultRecentMessageKeep
	}
	if recentKeep >= len(cleaned) {
		recentKeep = len(cleaned)
	}

	summaryCutoff := len(cleaned) - recentKeep
	summary := summariseMessages(cleaned[:summaryCutoff])
	preserved := append([]Message(nil), cleaned[summaryCutoff:]...)

	return summary, preserved
}

func summariseMessages(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	var builder strings.Builder
	index := 1
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		builder.WriteString(fmt.Sprintf("%d. %s: %s\n", index, msg.Role, truncateRunes(content, maxSummaryRuneLength)))
		index++
	}

	return strings.TrimSpace(builder.String())
}

func truncateRunes(input string, max int) string {
	if max <= 0 {
		return input
	}

	count := 0
	for i := range input {
		if count == max {
			return input[:i] + "…"
		}
		count++
	}
	return input
}

type apiMessage struct {
	Role string `json:"role"`
	// Content is a string for plain turns or []contentPart for vision turns.
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

type chatAPIRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

type chatAPIChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatAPIResponse struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Choices []chatAPIChoice   `json:"choices"`
	Usage   *ChatUsage        `json:"usage"`
	Error   *upstreamAPIError `json:"error,omitempty"`
}
