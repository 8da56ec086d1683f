package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llmwire/llmwire/internal/api/anthropic"
	"github.com/llmwire/llmwire/internal/api/openai"
	"github.com/llmwire/llmwire/internal/domain"
)

// openaiToAnthropicStream turns openai chat completion chunks into the
// anthropic event stream. Tool-call fragments are buffered per choice index
// and emitted as complete blocks when the stream ends, so the client never
// sees a half-assembled tool call.
type openaiToAnthropicStream struct {
	id    string
	model string

	started   bool
	textOpen  bool
	textIndex int
	nextIndex int

	tools     map[int]*toolAccumulator
	toolOrder []int

	usage        domain.Usage
	finishReason string
	text         strings.Builder
	finished     bool
}

type toolAccumulator struct {
	id   string
	name string
	args strings.Builder
}

func newOpenAIToAnthropicStream(model, requestID string) *openaiToAnthropicStream {
	return &openaiToAnthropicStream{
		id:    "msg_" + requestID,
		model: model,
		tools: make(map[int]*toolAccumulator),
	}
}

func (s *openaiToAnthropicStream) ApplyDelta(_ string, data []byte) ([]Frame, error) {
	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("decode stream chunk: %w", err)
	}

	var frames []Frame
	if !s.started {
		start, err := s.messageStart()
		if err != nil {
			return nil, err
		}
		frames = append(frames, start)
		s.started = true
	}

	if chunk.Usage != nil {
		s.usage.Merge(chunk.Usage.ToCanonical())
	}

	for _, choice := range chunk.Choices {
		if choice.Index != 0 {
			continue
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			s.finishReason = *choice.FinishReason
		}

		if choice.Delta.Content != "" {
			if !s.textOpen {
				s.textIndex = s.nextIndex
				s.nextIndex++
				f, err := blockStart(s.textIndex, anthropic.ResponseContent{Type: "text"})
				if err != nil {
					return nil, err
				}
				frames = append(frames, f)
				s.textOpen = true
			}
			s.text.WriteString(choice.Delta.Content)
			f, err := eventFrame("content_block_delta", anthropic.ContentBlockDeltaEvent{
				Type:  "content_block_delta",
				Index: s.textIndex,
				Delta: anthropic.BlockDelta{Type: "text_delta", Text: choice.Delta.Content},
			})
			if err != nil {
				return nil, err
			}
			frames = append(frames, f)
		}

		for _, tc := range choice.Delta.ToolCalls {
			acc, ok := s.tools[tc.Index]
			if !ok {
				acc = &toolAccumulator{}
				s.tools[tc.Index] = acc
				s.toolOrder = append(s.toolOrder, tc.Index)
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function != nil {
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args.WriteString(tc.Function.Arguments)
			}
		}
	}

	return frames, nil
}

// Finish closes any open blocks, flushes buffered tool calls as complete
// blocks, and terminates the message.
func (s *openaiToAnthropicStream) Finish() []Frame {
	if s.finished {
		return nil
	}
	s.finished = true

	var frames []Frame
	appendFrame := func(f Frame, err error) {
		if err == nil {
			frames = append(frames, f)
		}
	}

	if !s.started {
		appendFrame(s.messageStart())
	}
	if s.textOpen {
		appendFrame(eventFrame("content_block_stop", anthropic.ContentBlockStopEvent{
			Type:  "content_block_stop",
			Index: s.textIndex,
		}))
		s.textOpen = false
	}

	for _, key := range s.toolOrder {
		acc := s.tools[key]
		index := s.nextIndex
		s.nextIndex++
		appendFrame(blockStart(index, anthropic.ResponseContent{
			Type:  "tool_use",
			ID:    acc.id,
			Name:  acc.name,
			Input: map[string]any{},
		}))
		// One delta carrying the fully assembled argument JSON.
		args := acc.args.String()
		if args == "" {
			args = "{}"
		}
		appendFrame(eventFrame("content_block_delta", anthropic.ContentBlockDeltaEvent{
			Type:  "content_block_delta",
			Index: index,
			Delta: anthropic.BlockDelta{Type: "input_json_delta", PartialJSON: args},
		}))
		appendFrame(eventFrame("content_block_stop", anthropic.ContentBlockStopEvent{
			Type:  "content_block_stop",
			Index: index,
		}))
	}

	appendFrame(eventFrame("message_delta", anthropic.MessageDeltaEvent{
		Type:  "message_delta",
		Delta: anthropic.MessageDelta{StopReason: FinishReasonToStopReason(s.finishReason)},
		Usage: &anthropic.DeltaUsage{OutputTokens: s.usage.OutputTokens},
	}))
	appendFrame(eventFrame("message_stop", anthropic.MessageStopEvent{Type: "message_stop"}))

	return frames
}

func (s *openaiToAnthropicStream) messageStart() (Frame, error) {
	return eventFrame("message_start", anthropic.MessageStartEvent{
		Type: "message_start",
		Message: anthropic.MessagesResponse{
			ID:      s.id,
			Type:    "message",
			Role:    "assistant",
			Content: []anthropic.ResponseContent{},
			Model:   s.model,
			Usage:   anthropic.UsageFromCanonical(s.usage),
		},
	})
}

func blockStart(index int, block anthropic.ResponseContent) (Frame, error) {
	return eventFrame("content_block_start", anthropic.ContentBlockStartEvent{
		Type:         "content_block_start",
		Index:        index,
		ContentBlock: block,
	})
}

func eventFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

func (s *openaiToAnthropicStream) Usage() domain.Usage { return s.usage }

func (s *openaiToAnthropicStream) FinishReason() string { return s.finishReason }

func (s *openaiToAnthropicStream) AccumulatedText() string { return s.text.String() }
