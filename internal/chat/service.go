package chat

import (
	"context"
	"fmt"
	"log/slog"

	"aidflow/internal/config"
	"aidflow/internal/external"
	"aidflow/internal/types"
)

const systemPromptTemplate = `You are the assistant for the AidFlow platform. You have access to real international development aid data covering 2015-2023.

IMPORTANT: Base your responses on the data context provided below, not general knowledge.

Current data context:
%s

When answering:
1. Use specific numbers, trends, and names from the context above.
2. For future years, use only the model forecast figures provided; never make your own predictions.
3. If the context does not cover the question, say so rather than guessing.`

// Reply is the assistant's answer to one message.
type Reply struct {
	Response  string         `json:"response"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"message_metadata,omitempty"`
}

// Service runs the conversation loop: record the user turn, assemble the
// data context, call the model, record and return the reply. With no API
// key configured it answers with the data context alone.
type Service struct {
	store    SessionStore
	builder  *ContextBuilder
	llm      external.ChatClient
	logger   *slog.Logger
	model    string
	maxTurns int
	enabled  bool
}

func NewService(cfg config.ChatConfig, store SessionStore, builder *ContextBuilder, llm external.ChatClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		builder:  builder,
		llm:      llm,
		logger:   logger,
		model:    cfg.Model,
		maxTurns: cfg.MaxTurns,
		enabled:  cfg.APIKey != "",
	}
}

// Send handles one user message for the session and returns the reply.
func (s *Service) Send(ctx context.Context, sessionID, content string) (*Reply, error) {
	if sessionID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"session_id is required", nil)
	}
	if content == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"message is required", nil)
	}

	s.store.Append(sessionID, Message{Role: "user", Content: content})

	dataContext := s.builder.Build(ctx, content)

	var (
		answer   string
		metadata map[string]any
	)
	if !s.enabled {
		answer = "AI assistance is not configured. Here is what the data shows:\n\n" + dataContext
		metadata = map[string]any{"degraded": true}
	} else {
		reply, err := s.complete(ctx, sessionID, dataContext)
		if err != nil {
			s.logger.Error("chat completion failed", "session_id", sessionID, "error", err.Error())
			return nil, err
		}
		answer = reply
		metadata = map[string]any{"model": s.model}
	}

	s.store.Append(sessionID, Message{Role: "assistant", Content: answer, Metadata: metadata})

	return &Reply{Response: answer, SessionID: sessionID, Metadata: metadata}, nil
}

// complete builds the message list from the system prompt plus recent
// history and calls the model. History is capped at maxTurns messages so
// long sessions do not blow the context window.
func (s *Service) complete(ctx context.Context, sessionID, dataContext string) (string, error) {
	messages := []external.ChatMessage{
		{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, dataContext)},
	}

	history := s.store.Get(sessionID)
	if s.maxTurns > 0 && len(history) > s.maxTurns {
		history = history[len(history)-s.maxTurns:]
	}
	for _, msg := range history {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		messages = append(messages, external.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	return s.llm.Complete(ctx, messages)
}

// History returns the stored messages for a session. Unknown sessions
// yield an empty slice, matching a cleared or expired session.
func (s *Service) History(sessionID string) []Message {
	msgs := s.store.Get(sessionID)
	if msgs == nil {
		return []Message{}
	}
	return msgs
}

// ClearHistory drops the session's stored messages.
func (s *Service) ClearHistory(sessionID string) {
	s.store.Clear(sessionID)
}

// Sessions lists the IDs of live sessions.
func (s *Service) Sessions() []string {
	return s.store.Sessions()
}
