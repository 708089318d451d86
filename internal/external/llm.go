package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"aidflow/internal/config"
	"aidflow/internal/types"
)

const chatCompletionsPath = "/v1/chat/completions"

// ChatMessage is a single turn in a chat completion conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient abstracts the chat completion call so the assistant service
// can be tested with a stub.
type ChatClient interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// chatCompletionRequest is the OpenAI-compatible request envelope.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// LLMHTTPClient implements ChatClient against any OpenAI-compatible
// chat completions endpoint through BaseClient.
type LLMHTTPClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	model   string
	logger  *slog.Logger
}

// NewLLMClient creates an LLMHTTPClient from the chat configuration.
func NewLLMClient(cfg config.ChatConfig, logger *slog.Logger) *LLMHTTPClient {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	return &LLMHTTPClient{
		base:    NewBaseClient(httpClient, "llm", DefaultRetryPolicy(), logger),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		logger:  logger,
	}
}

// Complete sends the conversation to the upstream model and returns the
// assistant's reply text.
func (c *LLMHTTPClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	payload := chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.3,
		MaxTokens:   1024,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to encode chat completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build chat completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamRateLimited {
			return "", err
		}
		return "", types.NewAppError(types.ErrCodeUpstreamLLM,
			"chat completion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("chat completion rejected",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return "", types.NewAppError(types.ErrCodeUpstreamLLM,
			fmt.Sprintf("chat completion returned status %d", resp.StatusCode), nil)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM,
			"failed to decode chat completion response", err)
	}

	if parsed.Error != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM,
			fmt.Sprintf("chat completion error: %s", parsed.Error.Message), nil)
	}
	if len(parsed.Choices) == 0 {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM,
			"chat completion returned no choices", nil)
	}

	return parsed.Choices[0].Message.Content, nil
}
