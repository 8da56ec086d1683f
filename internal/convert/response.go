package convert

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llmwire/llmwire/internal/api/anthropic"
	"github.com/llmwire/llmwire/internal/api/openai"
	"github.com/llmwire/llmwire/internal/domain"
)

// AnthropicResponseToOpenAI converts a non-streaming Messages response into
// an openai chat completion response. model is echoed back as the client
// asked for it.
func AnthropicResponseToOpenAI(resp *anthropic.MessagesResponse, model string) (*openai.ChatCompletionResponse, error) {
	msg := openai.Message{Role: "assistant"}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				return nil, domain.ErrConversion("content", fmt.Sprintf("tool_use input: %v", err))
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: openai.FunctionCall{
					Name:      block.Name,
					Arguments: string(args),
				},
			})
		case "thinking", "redacted_thinking":
			// Not representable in the openai protocol; dropped.
		default:
			return nil, domain.ErrConversion("content", fmt.Sprintf("unsupported block type %q", block.Type))
		}
	}
	msg.Content = openai.MessageContent{Text: text.String()}

	id := resp.ID
	if id == "" {
		id = "chatcmpl-" + uuid.NewString()
	}
	return &openai.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openai.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: StopReasonToFinishReason(resp.StopReason),
		}},
		Usage: openai.UsageFromCanonical(resp.Usage.ToCanonical()),
	}, nil
}

// OpenAIResponseToAnthropic converts an openai chat completion response into
// a Messages response. Only the first choice is carried over.
func OpenAIResponseToAnthropic(resp *openai.ChatCompletionResponse, model string) (*anthropic.MessagesResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, domain.ErrConversion("choices", "response has no choices")
	}
	choice := resp.Choices[0]

	var content []anthropic.ResponseContent
	if text := choice.Message.Content.PlainText(); text != "" {
		content = append(content, anthropic.ResponseContent{Type: "text", Text: text})
	}
	for _, call := range choice.Message.ToolCalls {
		input, err := decodeToolArguments(call.Function.Arguments)
		if err != nil {
			return nil, domain.ErrConversion("choices[0].message.tool_calls", err.Error())
		}
		content = append(content, anthropic.ResponseContent{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: input,
		})
	}
	if content == nil {
		content = []anthropic.ResponseContent{}
	}

	id := resp.ID
	if id == "" {
		id = "msg_" + uuid.NewString()
	}
	return &anthropic.MessagesResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Content:    content,
		Model:      model,
		StopReason: FinishReasonToStopReason(choice.FinishReason),
		Usage:      anthropic.UsageFromCanonical(resp.Usage.ToCanonical()),
	}, nil
}
