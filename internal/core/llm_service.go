package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"tasknest.io/tasknest/internal/config"
)

const agentSystemInstruction = "You are an intelligent task assistant. You have access to tools to manage the user's todo list. " +
	"You MUST use these tools whenever a user asks to add, list, search, update, or delete tasks. " +
	"IMPORTANT: If a user refers to a task by name, you MUST FIRST use `search_tasks` or `list_tasks` to find the correct numeric 'id'. " +
	"You CANNOT guess the ID. You CANNOT use the title as the ID. " +
	"Once you have the ID from the search/list result, use that ID in `update_task`, `complete_task`, or `delete_task`. " +
	"If you don't find a task with search, tell the user you couldn't find it. Be concise and professional."

// ChatTurn is one prior message, with the role vocabulary the model expects
// ("user" or "model").
type ChatTurn struct {
	Role string
	Text string
}

// ToolResult pairs a tool call with its executed output, fed back to the
// model on the follow-up pass.
type ToolResult struct {
	Call   ToolCallRequest
	Output any
}

// ChatRequest is one reasoning-model invocation. ForceFinal marks the
// finalize call: tool issuance is disabled and the model must answer in text.
type ChatRequest struct {
	Message     string
	History     []ChatTurn
	ToolResults []ToolResult
	ForceFinal  bool
}

type ChatResponse struct {
	Text      string
	ToolCalls []ToolCallRequest
}

// LLMClient is the orchestrator's view of the reasoning model.
type LLMClient interface {
	ChatWithTools(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

type LLMService struct {
	client    *genai.Client
	modelName string
}

func NewLLMService() *LLMService {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GenAI client")
	}

	return &LLMService{
		client:    client,
		modelName: config.AppConfig.GeminiModel,
	}
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing GenAI client")
		}
	}
}

// ChatWithTools is stateless: the full content list is rebuilt on every call
// from the history and the tool results accumulated so far.
func (s *LLMService) ChatWithTools(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := s.client.GenerativeModel(s.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(agentSystemInstruction)},
	}
	model.Tools = []*genai.Tool{{FunctionDeclarations: toolDeclarations()}}
	if req.ForceFinal {
		model.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingNone},
		}
	}

	var history []*genai.Content
	for _, turn := range req.History {
		history = append(history, &genai.Content{
			Role:  turn.Role,
			Parts: []genai.Part{genai.Text(turn.Text)},
		})
	}

	var sendParts []genai.Part
	if len(req.ToolResults) > 0 {
		// On follow-up passes the current message (if any) and the model's
		// previous function calls are already part of the exchange; replay
		// them as history and send the tool outputs as this turn.
		if req.Message != "" {
			history = append(history, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(req.Message)},
			})
		}
		var callParts []genai.Part
		for _, tr := range req.ToolResults {
			callParts = append(callParts, genai.FunctionCall{Name: tr.Call.Name, Args: tr.Call.Args})
			sendParts = append(sendParts, genai.FunctionResponse{
				Name:     tr.Call.Name,
				Response: wrapToolOutput(tr.Output),
			})
		}
		history = append(history, &genai.Content{Role: "model", Parts: callParts})
	} else {
		sendParts = []genai.Part{genai.Text(req.Message)}
	}

	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, sendParts...)
	if err != nil {
		return nil, fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		log.Warn().Msg("Gemini response was empty or had no valid candidates")
		return &ChatResponse{Text: "I'm sorry, I couldn't generate a response at this time. Please try again."}, nil
	}

	out := &ChatResponse{}
	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			responseText.WriteString(string(p))
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, ToolCallRequest{Name: p.Name, Args: p.Args})
		default:
			log.Debug().Str("type", fmt.Sprintf("%T", part)).Msg("Ignoring non-text, non-call response part")
		}
	}
	out.Text = responseText.String()

	return out, nil
}

// wrapToolOutput fits an executor result into the map shape FunctionResponse
// requires; list results get a wrapper key.
func wrapToolOutput(output any) map[string]any {
	if m, ok := output.(map[string]any); ok {
		return m
	}
	return map[string]any{"results": output}
}
