package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llmwire/llmwire/internal/api/anthropic"
	"github.com/llmwire/llmwire/internal/api/openai"
	"github.com/llmwire/llmwire/internal/domain"
)

// defaultMaxTokens is used when an openai client omits the token cap but the
// anthropic protocol requires one.
const defaultMaxTokens = 1024

// AnthropicRequestToOpenAI converts an Anthropic Messages request into an
// OpenAI chat completion request. model is the already-resolved upstream
// model name.
func AnthropicRequestToOpenAI(req *anthropic.MessagesRequest, model string) (*openai.ChatCompletionRequest, error) {
	out := &openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Stop:        req.StopSequences,
	}
	if req.Stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	if system := systemText(req.System); system != "" {
		out.Messages = append(out.Messages, openai.Message{
			Role:    "system",
			Content: openai.MessageContent{Text: system},
		})
	}

	for i, msg := range req.Messages {
		converted, err := anthropicMessageToOpenAI(msg)
		if err != nil {
			return nil, domain.ErrConversion(fmt.Sprintf("messages[%d]", i), err.Error())
		}
		out.Messages = append(out.Messages, converted...)
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: "function",
			Function: openai.FunctionTool{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Type {
		case "auto":
			out.ToolChoice = "auto"
		case "any":
			out.ToolChoice = "required"
		case "tool":
			out.ToolChoice = map[string]any{
				"type":     "function",
				"function": map[string]any{"name": req.ToolChoice.Name},
			}
		}
	}

	return out, nil
}

// anthropicMessageToOpenAI expands one anthropic message. A single message
// can fan out: tool_result blocks become separate "tool" role messages, and
// text alongside tool_use becomes the assistant message's content.
func anthropicMessageToOpenAI(msg anthropic.Message) ([]openai.Message, error) {
	var (
		out       []openai.Message
		parts     []openai.ContentPart
		toolCalls []openai.ToolCall
		hasImage  bool
	)

	for _, part := range msg.Content {
		switch part.Type {
		case "text", "":
			parts = append(parts, openai.ContentPart{Type: "text", Text: part.Text})
		case "image":
			url, err := imageSourceToURL(part.Source)
			if err != nil {
				return nil, err
			}
			parts = append(parts, openai.ContentPart{Type: "image_url", ImageURL: &openai.ImageURL{URL: url}})
			hasImage = true
		case "tool_use":
			args, err := json.Marshal(part.Input)
			if err != nil {
				return nil, fmt.Errorf("tool_use input: %w", err)
			}
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   part.ID,
				Type: "function",
				Function: openai.FunctionCall{
					Name:      part.Name,
					Arguments: string(args),
				},
			})
		case "tool_result":
			out = append(out, openai.Message{
				Role:       "tool",
				ToolCallID: part.ToolUseID,
				Content:    openai.MessageContent{Text: part.Content.PlainText()},
			})
		default:
			return nil, fmt.Errorf("unsupported content block type %q", part.Type)
		}
	}

	if len(parts) > 0 || len(toolCalls) > 0 {
		m := openai.Message{Role: msg.Role, ToolCalls: toolCalls}
		if hasImage {
			m.Content = openai.MessageContent{Parts: parts}
		} else {
			var b strings.Builder
			for _, p := range parts {
				b.WriteString(p.Text)
			}
			m.Content = openai.MessageContent{Text: b.String()}
		}
		out = append(out, m)
	}

	return out, nil
}

func imageSourceToURL(src *anthropic.ImageSource) (string, error) {
	if src == nil {
		return "", fmt.Errorf("image block without source")
	}
	switch src.Type {
	case "base64":
		return fmt.Sprintf("data:%s;base64,%s", src.MediaType, src.Data), nil
	case "url":
		return src.URL, nil
	default:
		return "", fmt.Errorf("unsupported image source type %q", src.Type)
	}
}

func systemText(system anthropic.SystemPrompt) string {
	var texts []string
	for _, block := range system {
		if block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// OpenAIRequestToAnthropic converts an OpenAI chat completion request into
// an Anthropic Messages request. model is the already-resolved upstream
// model name.
func OpenAIRequestToAnthropic(req *openai.ChatCompletionRequest, model string) (*anthropic.MessagesRequest, error) {
	out := &anthropic.MessagesRequest{
		Model:         model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stream:        req.Stream,
		StopSequences: req.Stop,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = req.MaxCompletionTokens
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}

	for i, msg := range req.Messages {
		switch msg.Role {
		case "system", "developer":
			out.System = append(out.System, anthropic.SystemBlock{Type: "text", Text: msg.Content.PlainText()})
		case "tool":
			out.Messages = append(out.Messages, anthropic.Message{
				Role: "user",
				Content: anthropic.ContentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   anthropic.ToolResultContent{Text: msg.Content.PlainText()},
				}},
			})
		case "user", "assistant":
			converted, err := openaiMessageToAnthropic(msg)
			if err != nil {
				return nil, domain.ErrConversion(fmt.Sprintf("messages[%d]", i), err.Error())
			}
			out.Messages = append(out.Messages, converted)
		default:
			return nil, domain.ErrConversion(fmt.Sprintf("messages[%d].role", i),
				fmt.Sprintf("unsupported role %q", msg.Role))
		}
	}

	for _, tool := range req.Tools {
		schema := tool.Function.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out.Tools = append(out.Tools, anthropic.Tool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}
	if tc, err := openaiToolChoiceToAnthropic(req.ToolChoice); err != nil {
		return nil, err
	} else if tc != nil {
		out.ToolChoice = tc
	}

	return out, nil
}

func openaiMessageToAnthropic(msg openai.Message) (anthropic.Message, error) {
	out := anthropic.Message{Role: msg.Role}

	if msg.Content.IsParts() {
		for _, part := range msg.Content.Parts {
			switch part.Type {
			case "text":
				out.Content = append(out.Content, anthropic.ContentPart{Type: "text", Text: part.Text})
			case "image_url":
				if part.ImageURL == nil {
					return anthropic.Message{}, fmt.Errorf("image_url part without url")
				}
				src, err := urlToImageSource(part.ImageURL.URL)
				if err != nil {
					return anthropic.Message{}, err
				}
				out.Content = append(out.Content, anthropic.ContentPart{Type: "image", Source: src})
			default:
				return anthropic.Message{}, fmt.Errorf("unsupported content part type %q", part.Type)
			}
		}
	} else if msg.Content.Text != "" {
		out.Content = append(out.Content, anthropic.ContentPart{Type: "text", Text: msg.Content.Text})
	}

	for _, call := range msg.ToolCalls {
		input, err := decodeToolArguments(call.Function.Arguments)
		if err != nil {
			return anthropic.Message{}, fmt.Errorf("tool call %s: %w", call.ID, err)
		}
		out.Content = append(out.Content, anthropic.ContentPart{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: input,
		})
	}

	return out, nil
}

// urlToImageSource turns an openai image reference into an anthropic image
// source: data: URIs become inline base64, everything else stays a URL.
func urlToImageSource(url string) (*anthropic.ImageSource, error) {
	if !strings.HasPrefix(url, "data:") {
		return &anthropic.ImageSource{Type: "url", URL: url}, nil
	}
	meta, data, found := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
	if !found {
		return nil, fmt.Errorf("malformed data URI")
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, fmt.Errorf("data URI is not base64-encoded")
	}
	return &anthropic.ImageSource{Type: "base64", MediaType: mediaType, Data: data}, nil
}

// decodeToolArguments parses the JSON arguments string. Empty arguments are
// an empty object; the anthropic protocol requires input to be an object.
func decodeToolArguments(arguments string) (any, error) {
	if strings.TrimSpace(arguments) == "" {
		return map[string]any{}, nil
	}
	var input any
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return input, nil
}

func openaiToolChoiceToAnthropic(choice any) (*anthropic.ToolChoice, error) {
	switch v := choice.(type) {
	case nil:
		return nil, nil
	case string:
		switch v {
		case "auto":
			return &anthropic.ToolChoice{Type: "auto"}, nil
		case "required":
			return &anthropic.ToolChoice{Type: "any"}, nil
		case "none":
			return nil, nil
		}
		return nil, domain.ErrConversion("tool_choice", fmt.Sprintf("unsupported value %q", v))
	case map[string]any:
		fn, _ := v["function"].(map[string]any)
		name, _ := fn["name"].(string)
		if name == "" {
			return nil, domain.ErrConversion("tool_choice", "function name is required")
		}
		return &anthropic.ToolChoice{Type: "tool", Name: name}, nil
	default:
		return nil, domain.ErrConversion("tool_choice", "unsupported shape")
	}
}
