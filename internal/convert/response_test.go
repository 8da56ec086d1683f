package convert

import (
	"testing"

	"github.com/llmwire/llmwire/internal/api/anthropic"
	"github.com/llmwire/llmwire/internal/api/openai"
)

func TestAnthropicResponseToOpenAI(t *testing.T) {
	resp := &anthropic.MessagesResponse{
		ID:   "msg_abc",
		Type: "message",
		Role: "assistant",
		Content: []anthropic.ResponseContent{
			{Type: "text", Text: "checking"},
			{Type: "tool_use", ID: "toolu_1", Name: "get_weather", Input: map[string]any{"city": "Oslo"}},
		},
		Model:      "claude-sonnet",
		StopReason: "tool_use",
		Usage: anthropic.Usage{
			InputTokens:          20,
			OutputTokens:         7,
			CacheReadInputTokens: 5,
		},
	}

	out, err := AnthropicResponseToOpenAI(resp, "fast")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if out.ID != "msg_abc" || out.Model != "fast" || out.Object != "chat.completion" {
		t.Errorf("envelope = %+v", out)
	}
	choice := out.Choices[0]
	if choice.FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %q, want tool_calls", choice.FinishReason)
	}
	if choice.Message.Content.PlainText() != "checking" {
		t.Errorf("content = %q", choice.Message.Content.PlainText())
	}
	if len(choice.Message.ToolCalls) != 1 || choice.Message.ToolCalls[0].Function.Arguments != `{"city":"Oslo"}` {
		t.Errorf("tool calls = %+v", choice.Message.ToolCalls)
	}
	// Total excludes cache-read tokens; those ride only in the details.
	if out.Usage.PromptTokens != 20 || out.Usage.CompletionTokens != 7 || out.Usage.TotalTokens != 27 {
		t.Errorf("usage = %+v", out.Usage)
	}
	if out.Usage.PromptTokensDetails == nil || out.Usage.PromptTokensDetails.CachedTokens != 5 {
		t.Errorf("cached tokens not carried: %+v", out.Usage.PromptTokensDetails)
	}
}

func TestOpenAIResponseToAnthropic(t *testing.T) {
	resp := &openai.ChatCompletionResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4o",
		Choices: []openai.Choice{{
			Message: openai.Message{
				Role:    "assistant",
				Content: openai.MessageContent{Text: "done"},
				ToolCalls: []openai.ToolCall{{
					ID:       "call_9",
					Type:     "function",
					Function: openai.FunctionCall{Name: "lookup", Arguments: `{"q":1}`},
				}},
			},
			FinishReason: "length",
		}},
		Usage: openai.Usage{PromptTokens: 11, CompletionTokens: 3, TotalTokens: 14},
	}

	out, err := OpenAIResponseToAnthropic(resp, "fast")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if out.StopReason != "max_tokens" {
		t.Errorf("stop_reason = %q, want max_tokens", out.StopReason)
	}
	if len(out.Content) != 2 || out.Content[0].Text != "done" || out.Content[1].Type != "tool_use" {
		t.Errorf("content = %+v", out.Content)
	}
	// Cache fields must be present even when the upstream never reports them.
	if out.Usage.CacheReadInputTokens != 0 || out.Usage.CacheCreationInputTokens != 0 {
		t.Errorf("cache usage should default to zero: %+v", out.Usage)
	}
	if out.Usage.InputTokens != 11 || out.Usage.OutputTokens != 3 {
		t.Errorf("usage = %+v", out.Usage)
	}
}

func TestOpenAIResponseToAnthropicNoChoices(t *testing.T) {
	if _, err := OpenAIResponseToAnthropic(&openai.ChatCompletionResponse{}, "fast"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
