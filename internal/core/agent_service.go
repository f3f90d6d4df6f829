package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"tasknest.io/tasknest/internal/store"
)

// ChatResult is one resolved turn: the assistant's reply, the conversation
// it belongs to, and the tool calls executed on the way.
type ChatResult struct {
	Response       string           `json:"response"`
	ConversationID int64            `json:"conversation_id"`
	ToolCalls      []ToolCallRecord `json:"tool_calls"`
}

// AgentService runs the tool-calling loop for one inbound message. It holds
// no per-conversation state; continuity comes entirely from persisted
// messages, so any instance can serve any turn.
type AgentService struct {
	store         *store.SQLiteStore
	llm           LLMClient
	executor      *Executor
	maxToolRounds int
}

func NewAgentService(db *store.SQLiteStore, llm LLMClient, executor *Executor, maxToolRounds int) *AgentService {
	if maxToolRounds < 1 {
		maxToolRounds = 1
	}
	return &AgentService{
		store:         db,
		llm:           llm,
		executor:      executor,
		maxToolRounds: maxToolRounds,
	}
}

// ProcessMessage resolves one turn. A non-nil error means the turn never
// started (the store was unreachable before the model was involved) and maps
// to a 5xx; every failure inside the loop comes back as a chat response.
func (s *AgentService) ProcessMessage(ctx context.Context, userID, message string, conversationID *int64) (*ChatResult, error) {
	var convID int64
	if conversationID == nil {
		conv, err := s.store.CreateConversation(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		convID = conv.ID
	} else {
		convID = *conversationID
		conv, err := s.store.GetConversation(convID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		if conv == nil {
			// Foreign or missing conversation: reply in-band without
			// persisting anything or touching the model.
			return &ChatResult{
				Response:       "Error: Conversation not found or access denied.",
				ConversationID: convID,
				ToolCalls:      []ToolCallRecord{},
			}, nil
		}
	}

	// Persist the inbound message before any model call so a failed turn
	// still leaves a record of what was asked.
	userMsg := store.Message{ConversationID: convID, UserID: userID, Role: "user", Content: message}
	if err := s.store.CreateMessage(&userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	msgs, err := s.store.GetMessagesByConversation(convID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	// The just-saved inbound message is sent as the current turn, not
	// replayed in the history.
	history := make([]ChatTurn, 0, len(msgs))
	for _, m := range msgs[:len(msgs)-1] {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		history = append(history, ChatTurn{Role: role, Text: m.Content})
	}

	text, records, err := s.runToolLoop(ctx, userID, message, history)
	if err != nil {
		return s.apologize(convID, userID, fmt.Sprintf("Sorry, I encountered an API error: %v", err)), nil
	}

	assistantMsg := store.Message{ConversationID: convID, UserID: userID, Role: "assistant", Content: text}
	if err := s.store.CreateMessage(&assistantMsg); err != nil {
		return s.apologize(convID, userID, fmt.Sprintf("Sorry, I encountered an unexpected error: %v", err)), nil
	}

	return &ChatResult{
		Response:       text,
		ConversationID: convID,
		ToolCalls:      records,
	}, nil
}

// runToolLoop drives the bounded reason/execute cycle: initial model call,
// then up to maxToolRounds rounds of sequential tool execution, each fed
// back for another pass. The last permitted round is followed by a finalize
// call that disallows further tool requests, forcing a textual answer.
func (s *AgentService) runToolLoop(ctx context.Context, userID, message string, history []ChatTurn) (string, []ToolCallRecord, error) {
	records := []ToolCallRecord{}
	var results []ToolResult

	resp, err := s.llm.ChatWithTools(ctx, &ChatRequest{Message: message, History: history})
	if err != nil {
		return "", nil, err
	}

	for round := 1; len(resp.ToolCalls) > 0; round++ {
		for _, call := range resp.ToolCalls {
			// Strictly sequential, in request order: each result lands
			// before the next call is issued.
			output := s.executor.Execute(call.Name, userID, call.Args)
			results = append(results, ToolResult{Call: call, Output: output})
			records = append(records, ToolCallRecord{Name: call.Name, Arguments: call.Args, Result: output})
		}

		req := &ChatRequest{Message: message, History: history, ToolResults: results}
		if round >= s.maxToolRounds {
			// Finalize: empty outbound message, tool issuance disabled.
			req.Message = ""
			req.ForceFinal = true
		}

		resp, err = s.llm.ChatWithTools(ctx, req)
		if err != nil {
			return "", nil, err
		}
		if req.ForceFinal {
			// Whatever came back, no further tool requests are honored.
			break
		}
	}

	return resp.Text, records, nil
}

// apologize converts a loop failure into a user-facing reply. Persisting the
// apology is best-effort; a secondary failure must not mask the response.
func (s *AgentService) apologize(convID int64, userID, text string) *ChatResult {
	log.Error().Int64("conversation_id", convID).Str("user_id", userID).Msg(text)

	msg := store.Message{ConversationID: convID, UserID: userID, Role: "assistant", Content: text}
	if err := s.store.CreateMessage(&msg); err != nil {
		log.Warn().Err(err).Int64("conversation_id", convID).Msg("Failed to persist apology message")
	}

	return &ChatResult{
		Response:       text,
		ConversationID: convID,
		ToolCalls:      []ToolCallRecord{},
	}
}
