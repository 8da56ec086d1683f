package convert

import (
	"encoding/json"
	"strings"

	"github.com/llmwire/llmwire/internal/api/anthropic"
	"github.com/llmwire/llmwire/internal/api/openai"
	"github.com/llmwire/llmwire/internal/domain"
)

// openaiPassthrough forwards openai chunks unchanged while still observing
// usage and finish reason for the finalization record.
type openaiPassthrough struct {
	usage        domain.Usage
	finishReason string
	text         strings.Builder
	finishSeen   bool
}

func newOpenAIPassthrough() *openaiPassthrough { return &openaiPassthrough{} }

func (s *openaiPassthrough) ApplyDelta(_ string, data []byte) ([]Frame, error) {
	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err == nil {
		if chunk.Usage != nil {
			s.usage.Merge(chunk.Usage.ToCanonical())
		}
		for _, choice := range chunk.Choices {
			if choice.Index != 0 {
				continue
			}
			s.text.WriteString(choice.Delta.Content)
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				s.finishReason = *choice.FinishReason
				s.finishSeen = true
			}
		}
	}
	// Forward even when the chunk didn't parse; the client gets exactly what
	// the upstream sent.
	return []Frame{{Data: data}}, nil
}

func (s *openaiPassthrough) Finish() []Frame {
	var frames []Frame
	if !s.finishSeen {
		finish := "stop"
		usage := openai.UsageFromCanonical(s.usage)
		data, err := json.Marshal(openai.ChatCompletionChunk{
			Object:  "chat.completion.chunk",
			Choices: []openai.ChunkChoice{{FinishReason: &finish}},
			Usage:   &usage,
		})
		if err == nil {
			frames = append(frames, Frame{Data: data})
		}
		s.finishSeen = true
	}
	return append(frames, Frame{Done: true})
}

func (s *openaiPassthrough) Usage() domain.Usage { return s.usage }

func (s *openaiPassthrough) FinishReason() string { return s.finishReason }

func (s *openaiPassthrough) AccumulatedText() string { return s.text.String() }

// anthropicPassthrough forwards anthropic events unchanged while observing
// usage and stop reason. If the upstream ends without message_stop, the
// terminal events are synthesized so the client always sees a complete
// message.
type anthropicPassthrough struct {
	usage      domain.Usage
	stopReason string
	text       strings.Builder
	stopSeen   bool
}

func newAnthropicPassthrough() *anthropicPassthrough { return &anthropicPassthrough{} }

func (s *anthropicPassthrough) ApplyDelta(event string, data []byte) ([]Frame, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err == nil {
		if header.Type == "" {
			header.Type = event
		}
		switch header.Type {
		case "message_start":
			var ev anthropic.MessageStartEvent
			if json.Unmarshal(data, &ev) == nil {
				s.usage.Merge(ev.Message.Usage.ToCanonical())
			}
		case "content_block_delta":
			var ev anthropic.ContentBlockDeltaEvent
			if json.Unmarshal(data, &ev) == nil {
				s.text.WriteString(ev.Delta.Text)
			}
		case "message_delta":
			var ev anthropic.MessageDeltaEvent
			if json.Unmarshal(data, &ev) == nil {
				if ev.Delta.StopReason != "" {
					s.stopReason = ev.Delta.StopReason
				}
				if ev.Usage != nil {
					s.usage.OutputTokens = ev.Usage.OutputTokens
				}
			}
		case "message_stop":
			s.stopSeen = true
		}
	}
	return []Frame{{Event: event, Data: data}}, nil
}

func (s *anthropicPassthrough) Finish() []Frame {
	if s.stopSeen {
		return nil
	}
	s.stopSeen = true

	stop := s.stopReason
	if stop == "" {
		stop = "end_turn"
	}
	var frames []Frame
	if f, err := eventFrame("message_delta", anthropic.MessageDeltaEvent{
		Type:  "message_delta",
		Delta: anthropic.MessageDelta{StopReason: stop},
		Usage: &anthropic.DeltaUsage{OutputTokens: s.usage.OutputTokens},
	}); err == nil {
		frames = append(frames, f)
	}
	if f, err := eventFrame("message_stop", anthropic.MessageStopEvent{Type: "message_stop"}); err == nil {
		frames = append(frames, f)
	}
	return frames
}

func (s *anthropicPassthrough) Usage() domain.Usage { return s.usage }

func (s *anthropicPassthrough) FinishReason() string {
	if s.stopReason == "" {
		return ""
	}
	return StopReasonToFinishReason(s.stopReason)
}

func (s *anthropicPassthrough) AccumulatedText() string { return s.text.String() }
