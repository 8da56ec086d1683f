package convert

import (
	"testing"

	"github.com/llmwire/llmwire/internal/api/anthropic"
	"github.com/llmwire/llmwire/internal/api/openai"
)

func TestStopReasonMapping(t *testing.T) {
	tests := []struct {
		stop   string
		finish string
	}{
		{"end_turn", "stop"},
		{"stop_sequence", "stop"},
		{"max_tokens", "length"},
		{"tool_use", "tool_calls"},
		{"", "stop"},
	}
	for _, tt := range tests {
		if got := StopReasonToFinishReason(tt.stop); got != tt.finish {
			t.Errorf("StopReasonToFinishReason(%q) = %q, want %q", tt.stop, got, tt.finish)
		}
	}

	reverse := []struct {
		finish string
		stop   string
	}{
		{"stop", "end_turn"},
		{"length", "max_tokens"},
		{"tool_calls", "tool_use"},
		{"content_filter", "stop_sequence"},
		{"", "end_turn"},
	}
	for _, tt := range reverse {
		if got := FinishReasonToStopReason(tt.finish); got != tt.stop {
			t.Errorf("FinishReasonToStopReason(%q) = %q, want %q", tt.finish, got, tt.stop)
		}
	}
}

func TestAnthropicRequestToOpenAI(t *testing.T) {
	req := &anthropic.MessagesRequest{
		Model:     "fast",
		MaxTokens: 512,
		Stream:    true,
		System:    anthropic.SystemPrompt{{Type: "text", Text: "be terse"}},
		Messages: []anthropic.Message{
			{Role: "user", Content: anthropic.ContentBlock{{Type: "text", Text: "what's the weather?"}}},
			{Role: "assistant", Content: anthropic.ContentBlock{
				{Type: "text", Text: "let me check"},
				{Type: "tool_use", ID: "toolu_1", Name: "get_weather", Input: map[string]any{"city": "Oslo"}},
			}},
			{Role: "user", Content: anthropic.ContentBlock{
				{Type: "tool_result", ToolUseID: "toolu_1", Content: anthropic.ToolResultContent{Text: "12C, rain"}},
			}},
		},
		Tools: []anthropic.Tool{{
			Name:        "get_weather",
			Description: "current weather",
			InputSchema: map[string]any{"type": "object"},
		}},
		ToolChoice: &anthropic.ToolChoice{Type: "any"},
	}

	out, err := AnthropicRequestToOpenAI(req, "gpt-4o-mini")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if out.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want resolved name", out.Model)
	}
	if out.MaxTokens != 512 || !out.Stream {
		t.Errorf("max_tokens/stream not carried: %+v", out)
	}
	if out.StreamOptions == nil || !out.StreamOptions.IncludeUsage {
		t.Error("streaming request should ask the upstream for usage")
	}

	if len(out.Messages) != 4 {
		t.Fatalf("got %d messages, want 4 (system, user, assistant, tool)", len(out.Messages))
	}
	if out.Messages[0].Role != "system" || out.Messages[0].Content.PlainText() != "be terse" {
		t.Errorf("system message = %+v", out.Messages[0])
	}
	asst := out.Messages[2]
	if asst.Role != "assistant" || len(asst.ToolCalls) != 1 {
		t.Fatalf("assistant message = %+v", asst)
	}
	if asst.ToolCalls[0].ID != "toolu_1" || asst.ToolCalls[0].Function.Name != "get_weather" {
		t.Errorf("tool call = %+v", asst.ToolCalls[0])
	}
	if asst.ToolCalls[0].Function.Arguments != `{"city":"Oslo"}` {
		t.Errorf("arguments = %q", asst.ToolCalls[0].Function.Arguments)
	}
	toolMsg := out.Messages[3]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "toolu_1" || toolMsg.Content.PlainText() != "12C, rain" {
		t.Errorf("tool message = %+v", toolMsg)
	}

	if out.ToolChoice != "required" {
		t.Errorf("tool_choice = %v, want required", out.ToolChoice)
	}
	if len(out.Tools) != 1 || out.Tools[0].Function.Name != "get_weather" {
		t.Errorf("tools = %+v", out.Tools)
	}
}

func TestAnthropicRequestToOpenAIImages(t *testing.T) {
	req := &anthropic.MessagesRequest{
		Model:     "vision",
		MaxTokens: 100,
		Messages: []anthropic.Message{{
			Role: "user",
			Content: anthropic.ContentBlock{
				{Type: "text", Text: "describe this"},
				{Type: "image", Source: &anthropic.ImageSource{Type: "base64", MediaType: "image/png", Data: "aGk="}},
			},
		}},
	}

	out, err := AnthropicRequestToOpenAI(req, "gpt-4o")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	parts := out.Messages[0].Content.Parts
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if parts[1].ImageURL == nil || parts[1].ImageURL.URL != "data:image/png;base64,aGk=" {
		t.Errorf("image part = %+v", parts[1])
	}
}

func TestOpenAIRequestToAnthropic(t *testing.T) {
	temp := float32(0.2)
	req := &openai.ChatCompletionRequest{
		Model:       "fast",
		Temperature: &temp,
		Messages: []openai.Message{
			{Role: "system", Content: openai.MessageContent{Text: "be terse"}},
			{Role: "user", Content: openai.MessageContent{Text: "hi"}},
			{Role: "assistant", ToolCalls: []openai.ToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: openai.FunctionCall{
					Name:      "lookup",
					Arguments: `{"q":"go"}`,
				},
			}}},
			{Role: "tool", ToolCallID: "call_1", Content: openai.MessageContent{Text: "found it"}},
		},
		Tools: []openai.Tool{{
			Type:     "function",
			Function: openai.FunctionTool{Name: "lookup", Parameters: map[string]any{"type": "object"}},
		}},
		ToolChoice: "auto",
	}

	out, err := OpenAIRequestToAnthropic(req, "claude-sonnet")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if out.MaxTokens != defaultMaxTokens {
		t.Errorf("max_tokens = %d, want default %d when the client omits it", out.MaxTokens, defaultMaxTokens)
	}
	if len(out.System) != 1 || out.System[0].Text != "be terse" {
		t.Errorf("system = %+v", out.System)
	}
	if len(out.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(out.Messages))
	}

	asst := out.Messages[1]
	if len(asst.Content) != 1 || asst.Content[0].Type != "tool_use" {
		t.Fatalf("assistant content = %+v", asst.Content)
	}
	input, ok := asst.Content[0].Input.(map[string]any)
	if !ok || input["q"] != "go" {
		t.Errorf("tool input = %#v", asst.Content[0].Input)
	}

	toolResult := out.Messages[2]
	if toolResult.Role != "user" || toolResult.Content[0].Type != "tool_result" ||
		toolResult.Content[0].ToolUseID != "call_1" {
		t.Errorf("tool result message = %+v", toolResult)
	}

	if out.ToolChoice == nil || out.ToolChoice.Type != "auto" {
		t.Errorf("tool_choice = %+v", out.ToolChoice)
	}
}

func TestOpenAIRequestToAnthropicRejectsBadToolArguments(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model: "fast",
		Messages: []openai.Message{{
			Role: "assistant",
			ToolCalls: []openai.ToolCall{{
				ID:       "call_1",
				Function: openai.FunctionCall{Name: "lookup", Arguments: "{not json"},
			}},
		}},
	}
	if _, err := OpenAIRequestToAnthropic(req, "claude-sonnet"); err == nil {
		t.Fatal("expected conversion error for malformed tool arguments")
	}
}
