// Package convert translates requests, responses, and streamed deltas
// between the anthropic and openai wire protocols. All non-streaming
// conversions are pure functions of their input plus the static mapping
// tables in this file; streaming conversion keeps per-stream state to
// reassemble tool-call JSON split across chunks.
package convert

// StopReasonToFinishReason maps anthropic stop_reason vocabulary to openai
// finish_reason vocabulary.
func StopReasonToFinishReason(stop string) string {
	switch stop {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		// end_turn, stop_sequence, and anything unknown surface as a
		// normal stop.
		return "stop"
	}
}

// FinishReasonToStopReason maps openai finish_reason vocabulary to anthropic
// stop_reason vocabulary.
func FinishReasonToStopReason(finish string) string {
	switch finish {
	case "tool_calls":
		return "tool_use"
	case "length":
		return "max_tokens"
	case "content_filter":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}
