package convert

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/llmwire/llmwire/internal/api/anthropic"
	"github.com/llmwire/llmwire/internal/api/openai"
	"github.com/llmwire/llmwire/internal/domain"
)

// anthropicToOpenAIStream turns an anthropic event stream into openai chat
// completion chunks. Tool-use input fragments are buffered until the block
// closes, then surface as a single complete tool_calls chunk.
type anthropicToOpenAIStream struct {
	id      string
	model   string
	created int64

	usage      domain.Usage
	stopReason string
	text       strings.Builder

	inTool    bool
	toolID    string
	toolName  string
	toolArgs  strings.Builder
	toolIndex int

	finishSent bool
}

func newAnthropicToOpenAIStream(model, requestID string) *anthropicToOpenAIStream {
	return &anthropicToOpenAIStream{
		id:      "chatcmpl-" + requestID,
		model:   model,
		created: time.Now().Unix(),
	}
}

func (s *anthropicToOpenAIStream) ApplyDelta(event string, data []byte) ([]Frame, error) {
	// The payload type is authoritative; the SSE event name merely repeats it.
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("decode stream event: %w", err)
	}
	if header.Type == "" {
		header.Type = event
	}

	switch header.Type {
	case "ping":
		return nil, nil

	case "message_start":
		var ev anthropic.MessageStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode message_start: %w", err)
		}
		s.usage.Merge(ev.Message.Usage.ToCanonical())
		return s.chunk(openai.ChunkDelta{Role: "assistant"}, nil)

	case "content_block_start":
		var ev anthropic.ContentBlockStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode content_block_start: %w", err)
		}
		if ev.ContentBlock.Type == "tool_use" {
			s.inTool = true
			s.toolID = ev.ContentBlock.ID
			s.toolName = ev.ContentBlock.Name
			s.toolArgs.Reset()
		}
		return nil, nil

	case "content_block_delta":
		var ev anthropic.ContentBlockDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode content_block_delta: %w", err)
		}
		switch ev.Delta.Type {
		case "text_delta":
			s.text.WriteString(ev.Delta.Text)
			return s.chunk(openai.ChunkDelta{Content: ev.Delta.Text}, nil)
		case "input_json_delta":
			s.toolArgs.WriteString(ev.Delta.PartialJSON)
			return nil, nil
		}
		return nil, nil

	case "content_block_stop":
		if !s.inTool {
			return nil, nil
		}
		args := s.toolArgs.String()
		if args == "" {
			args = "{}"
		}
		delta := openai.ChunkDelta{ToolCalls: []openai.ToolCallChunk{{
			Index: s.toolIndex,
			ID:    s.toolID,
			Type:  "function",
			Function: &openai.FunctionCallChunk{
				Name:      s.toolName,
				Arguments: args,
			},
		}}}
		s.inTool = false
		s.toolIndex++
		return s.chunk(delta, nil)

	case "message_delta":
		var ev anthropic.MessageDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode message_delta: %w", err)
		}
		if ev.Delta.StopReason != "" {
			s.stopReason = ev.Delta.StopReason
		}
		if ev.Usage != nil {
			s.usage.OutputTokens = ev.Usage.OutputTokens
		}
		return nil, nil

	case "message_stop":
		return s.finishChunk()

	case "error":
		apiErr, perr := anthropic.ParseErrorResponse(data)
		if perr != nil || apiErr == nil {
			return nil, fmt.Errorf("upstream reported an unparseable error")
		}
		return nil, &domain.APIError{
			Type:    domain.ErrorTypeUpstream,
			Message: apiErr.Message,
		}
	}

	// Unknown event types are skipped so protocol additions don't break the
	// relay.
	return nil, nil
}

func (s *anthropicToOpenAIStream) Finish() []Frame {
	var frames []Frame
	if !s.finishSent {
		frames, _ = s.finishChunk()
	}
	return append(frames, Frame{Done: true})
}

func (s *anthropicToOpenAIStream) finishChunk() ([]Frame, error) {
	s.finishSent = true
	finish := StopReasonToFinishReason(s.stopReason)
	usage := openai.UsageFromCanonical(s.usage)
	return s.chunk(openai.ChunkDelta{}, &finish, withUsage(&usage))
}

type chunkOption func(*openai.ChatCompletionChunk)

func withUsage(u *openai.Usage) chunkOption {
	return func(c *openai.ChatCompletionChunk) { c.Usage = u }
}

func (s *anthropicToOpenAIStream) chunk(delta openai.ChunkDelta, finish *string, opts ...chunkOption) ([]Frame, error) {
	c := openai.ChatCompletionChunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []openai.ChunkChoice{{Delta: delta, FinishReason: finish}},
	}
	for _, opt := range opts {
		opt(&c)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return []Frame{{Data: data}}, nil
}

func (s *anthropicToOpenAIStream) Usage() domain.Usage { return s.usage }

func (s *anthropicToOpenAIStream) FinishReason() string {
	if s.stopReason == "" {
		return ""
	}
	return StopReasonToFinishReason(s.stopReason)
}

func (s *anthropicToOpenAIStream) AccumulatedText() string { return s.text.String() }
