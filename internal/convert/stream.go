package convert

import (
	"github.com/llmwire/llmwire/internal/domain"
)

// Frame is one server-sent event destined for the client. Event is the SSE
// event name (the anthropic protocol names its events; the openai protocol
// uses bare data frames). Done marks the protocol termination sentinel and
// carries no payload.
type Frame struct {
	Event string
	Data  []byte
	Done  bool
}

// StreamConverter translates upstream stream payloads into client frames.
// Implementations are stateful and must be fed events in upstream order from
// a single goroutine. Tool-call arguments arriving as JSON fragments are
// buffered internally so the client sees each tool call exactly once, fully
// assembled.
type StreamConverter interface {
	// ApplyDelta consumes one upstream event (SSE event name, which may be
	// empty, plus the JSON payload) and returns zero or more client frames.
	ApplyDelta(event string, data []byte) ([]Frame, error)

	// Finish closes the stream, returning whatever terminal frames the
	// client protocol still requires. If the upstream already delivered its
	// own terminal event this only emits the sentinel (if the client
	// protocol has one). Must be called exactly once, after which
	// ApplyDelta must not be called again.
	Finish() []Frame

	// Usage returns the token accounting observed so far.
	Usage() domain.Usage

	// FinishReason returns the stop reason observed so far, in openai
	// finish_reason vocabulary, or "" if none arrived.
	FinishReason() string

	// AccumulatedText returns the assistant text relayed so far, used to
	// estimate output tokens when the upstream never reported usage.
	AccumulatedText() string
}

// NewStreamConverter builds the converter for an upstream/client wire format
// pair. clientModel is the model name echoed to the client; requestID seeds
// synthesized message identifiers.
func NewStreamConverter(upstream, client domain.WireFormat, clientModel, requestID string) StreamConverter {
	switch {
	case upstream == domain.WireFormatAnthropic && client == domain.WireFormatOpenAI:
		return newAnthropicToOpenAIStream(clientModel, requestID)
	case upstream == domain.WireFormatOpenAI && client == domain.WireFormatAnthropic:
		return newOpenAIToAnthropicStream(clientModel, requestID)
	case upstream == domain.WireFormatAnthropic:
		return newAnthropicPassthrough()
	default:
		return newOpenAIPassthrough()
	}
}
